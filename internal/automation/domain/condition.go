package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ConditionOperator 条件比较运算符
type ConditionOperator string

const (
	OperatorEquals       ConditionOperator = "EQ"           // 等于
	OperatorNotEquals    ConditionOperator = "NEQ"          // 不等于
	OperatorGreaterThan  ConditionOperator = "GT"           // 大于
	OperatorGreaterEqual ConditionOperator = "GTE"          // 大于等于
	OperatorLessThan     ConditionOperator = "LT"           // 小于
	OperatorLessEqual    ConditionOperator = "LTE"          // 小于等于
	OperatorContains     ConditionOperator = "CONTAINS"     // 包含子串
	OperatorStartsWith   ConditionOperator = "STARTS_WITH"  // 以子串开头
	OperatorEndsWith     ConditionOperator = "ENDS_WITH"    // 以子串结尾
	OperatorIn           ConditionOperator = "IN"           // 在枚举集合内（逗号分隔）
	OperatorBetween      ConditionOperator = "BETWEEN"      // 闭区间，值为 "min,max"
	OperatorIsSet        ConditionOperator = "IS_SET"       // 字段有值
	OperatorIsNull       ConditionOperator = "IS_NULL"      // 字段无值
	OperatorBeforeToday  ConditionOperator = "BEFORE_TODAY" // 日期早于今天
)

// LogicalOperator 条件之间的连接符
type LogicalOperator string

const (
	LogicalAnd LogicalOperator = "AND"
	LogicalOr  LogicalOperator = "OR"
)

// RuleCondition 规则条件。
// Sequence 决定求值顺序；LogicalOp 是该条件与前序累计结果之间的连接符，
// 第一个条件的连接符被忽略。GroupRef 相同的条件先合并为一个括号组再参与折叠。
type RuleCondition struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	RuleNo    string            `gorm:"column:rule_no;type:varchar(32);index;not null" json:"rule_no"`
	Sequence  int               `gorm:"column:sequence;not null" json:"sequence"`
	Field     string            `gorm:"column:field;type:varchar(64);not null" json:"field"`
	Operator  ConditionOperator `gorm:"column:operator;type:varchar(16);not null" json:"operator"`
	Value     string            `gorm:"column:value;type:varchar(255)" json:"value"`
	LogicalOp LogicalOperator   `gorm:"column:logical_op;type:varchar(8)" json:"logical_op"`
	GroupRef  string            `gorm:"column:group_ref;type:varchar(32)" json:"group_ref"`
}

// TableName 表名
func (RuleCondition) TableName() string {
	return "rule_conditions"
}

// FactContext 条件求值的事实上下文，键为字段名
type FactContext map[string]any

// Evaluate 对单个条件求值
func (c *RuleCondition) Evaluate(facts FactContext) (bool, error) {
	raw, exists := facts[c.Field]

	switch c.Operator {
	case OperatorIsSet:
		return exists && raw != nil && fmt.Sprintf("%v", raw) != "", nil
	case OperatorIsNull:
		return !exists || raw == nil || fmt.Sprintf("%v", raw) == "", nil
	case OperatorBeforeToday:
		if !exists || raw == nil {
			return false, nil
		}
		t, err := toTime(raw)
		if err != nil {
			return false, fmt.Errorf("%w: field %s: %v", ErrInvariantViolation, c.Field, err)
		}
		today := time.Now().Truncate(24 * time.Hour)
		return t.Before(today), nil
	}

	if !exists {
		return false, nil
	}

	switch c.Operator {
	case OperatorEquals:
		return compareEqual(raw, c.Value), nil
	case OperatorNotEquals:
		return !compareEqual(raw, c.Value), nil
	case OperatorGreaterThan, OperatorGreaterEqual, OperatorLessThan, OperatorLessEqual:
		return compareOrdered(raw, c.Value, c.Operator)
	case OperatorContains:
		return strings.Contains(fmt.Sprintf("%v", raw), c.Value), nil
	case OperatorStartsWith:
		return strings.HasPrefix(fmt.Sprintf("%v", raw), c.Value), nil
	case OperatorEndsWith:
		return strings.HasSuffix(fmt.Sprintf("%v", raw), c.Value), nil
	case OperatorBetween:
		actual, ok := toDecimal(raw)
		if !ok {
			return false, fmt.Errorf("%w: value %v is not numeric", ErrInvariantViolation, raw)
		}
		low, high, err := parseDecimalRange(c.Value)
		if err != nil {
			return false, fmt.Errorf("%w: condition value %q: %v", ErrInvariantViolation, c.Value, err)
		}
		return actual.GreaterThanOrEqual(low) && actual.LessThanOrEqual(high), nil
	case OperatorIn:
		actual := fmt.Sprintf("%v", raw)
		for _, candidate := range strings.Split(c.Value, ",") {
			if strings.TrimSpace(candidate) == actual {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("%w: unknown operator %q", ErrInvariantViolation, c.Operator)
	}
}

func compareEqual(raw any, expected string) bool {
	// 数值按 decimal 语义比较，避免 "10.0" != "10" 的假性不等
	if actualDec, ok := toDecimal(raw); ok {
		if expectedDec, err := decimal.NewFromString(expected); err == nil {
			return actualDec.Equal(expectedDec)
		}
	}
	return fmt.Sprintf("%v", raw) == expected
}

func compareOrdered(raw any, expected string, op ConditionOperator) (bool, error) {
	actual, ok := toDecimal(raw)
	if !ok {
		return false, fmt.Errorf("%w: value %v is not numeric", ErrInvariantViolation, raw)
	}
	threshold, err := decimal.NewFromString(expected)
	if err != nil {
		return false, fmt.Errorf("%w: condition value %q is not numeric", ErrInvariantViolation, expected)
	}
	switch op {
	case OperatorGreaterThan:
		return actual.GreaterThan(threshold), nil
	case OperatorGreaterEqual:
		return actual.GreaterThanOrEqual(threshold), nil
	case OperatorLessThan:
		return actual.LessThan(threshold), nil
	case OperatorLessEqual:
		return actual.LessThanOrEqual(threshold), nil
	default:
		return false, fmt.Errorf("%w: operator %q is not ordered", ErrInvariantViolation, op)
	}
}

// parseDecimalRange 解析 "min,max" 形式的闭区间
func parseDecimalRange(value string) (decimal.Decimal, decimal.Decimal, error) {
	parts := strings.SplitN(value, ",", 2)
	if len(parts) != 2 {
		return decimal.Zero, decimal.Zero, fmt.Errorf("expected \"min,max\", got %q", value)
	}
	low, err := decimal.NewFromString(strings.TrimSpace(parts[0]))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("lower bound %q is not numeric", parts[0])
	}
	high, err := decimal.NewFromString(strings.TrimSpace(parts[1]))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("upper bound %q is not numeric", parts[1])
	}
	if high.LessThan(low) {
		return decimal.Zero, decimal.Zero, fmt.Errorf("range %q is inverted", value)
	}
	return low, high, nil
}

func toDecimal(raw any) (decimal.Decimal, bool) {
	switch v := raw.(type) {
	case decimal.Decimal:
		return v, true
	case int:
		return decimal.NewFromInt(int64(v)), true
	case int64:
		return decimal.NewFromInt(v), true
	case float64:
		return decimal.NewFromFloat(v), true
	case string:
		d, err := decimal.NewFromString(v)
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}

func toTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, fmt.Errorf("nil time")
		}
		return *v, nil
	case string:
		return time.Parse(time.DateOnly, v)
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %v", raw)
	}
}

// EvaluateConditions 对条件序列求值。
// 求值是左结合的折叠：result = ((c1 op2 c2) op3 c3) ...，没有运算符优先级。
// GroupRef 相同的相邻条件先在组内折叠成一个布尔值，再以组内第一个条件的
// 连接符参与外层折叠。空条件列表恒为真。
func EvaluateConditions(conditions []RuleCondition, facts FactContext) (bool, error) {
	if len(conditions) == 0 {
		return true, nil
	}

	type unit struct {
		value     bool
		logicalOp LogicalOperator
	}
	var units []unit

	i := 0
	for i < len(conditions) {
		c := conditions[i]
		if c.GroupRef == "" {
			v, err := c.Evaluate(facts)
			if err != nil {
				return false, err
			}
			units = append(units, unit{value: v, logicalOp: c.LogicalOp})
			i++
			continue
		}

		// 同组连续条件折叠成一个括号组
		groupOp := c.LogicalOp
		groupValue := false
		first := true
		for i < len(conditions) && conditions[i].GroupRef == c.GroupRef {
			v, err := conditions[i].Evaluate(facts)
			if err != nil {
				return false, err
			}
			if first {
				groupValue = v
				first = false
			} else {
				groupValue = applyLogical(groupValue, v, conditions[i].LogicalOp)
			}
			i++
		}
		units = append(units, unit{value: groupValue, logicalOp: groupOp})
	}

	result := units[0].value
	for _, u := range units[1:] {
		result = applyLogical(result, u.value, u.logicalOp)
	}
	return result, nil
}

func applyLogical(acc, next bool, op LogicalOperator) bool {
	if op == LogicalOr {
		return acc || next
	}
	// 缺省按 AND 处理
	return acc && next
}
