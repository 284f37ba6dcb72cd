package domain

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wyfcoding/oiltrading/pkg/idgen"
)

// RuleType 规则类型，决定目标提供者如何筛选候选对象
type RuleType string

const (
	// RuleTypeAutoSettlement 自动创建结算单
	RuleTypeAutoSettlement RuleType = "AUTO_SETTLEMENT"
	// RuleTypeAutoApproval 自动审批结算单
	RuleTypeAutoApproval RuleType = "AUTO_APPROVAL"
	// RuleTypeAutoFinalization 自动定稿结算单
	RuleTypeAutoFinalization RuleType = "AUTO_FINALIZATION"
	// RuleTypeChargeCalculation 自动计提费用
	RuleTypeChargeCalculation RuleType = "CHARGE_CALCULATION"
	// RuleTypePaymentMatching 付款核销与提醒
	RuleTypePaymentMatching RuleType = "PAYMENT_MATCHING"
	// RuleTypeConsolidation 多结算单合并处理
	RuleTypeConsolidation RuleType = "CONSOLIDATION"
)

// RuleScope 规则作用域，限定规则命中的目标范围
type RuleScope string

const (
	ScopeAll             RuleScope = "ALL"               // 全部目标
	ScopePurchaseOnly    RuleScope = "PURCHASE_ONLY"     // 仅采购侧
	ScopeSalesOnly       RuleScope = "SALES_ONLY"        // 仅销售侧
	ScopeByPartner       RuleScope = "BY_PARTNER"        // 指定交易对手
	ScopeByProduct       RuleScope = "BY_PRODUCT"        // 指定产品
	ScopeByQuantityRange RuleScope = "BY_QUANTITY_RANGE" // 数量区间，过滤值为 "min,max"
)

// TriggerType 触发方式
type TriggerType string

const (
	TriggerManual    TriggerType = "MANUAL"    // 人工触发
	TriggerScheduled TriggerType = "SCHEDULED" // 定时触发
	TriggerOnEvent   TriggerType = "ON_EVENT"  // 事件触发
)

// ExecutionStrategy 多目标执行策略
type ExecutionStrategy string

const (
	// StrategySequential 逐个目标顺序执行
	StrategySequential ExecutionStrategy = "SEQUENTIAL"
	// StrategyParallel 并发执行，受并发度上限约束
	StrategyParallel ExecutionStrategy = "PARALLEL"
	// StrategyGrouped 按分组维度分组，组间失败互不影响
	StrategyGrouped ExecutionStrategy = "GROUPED"
	// StrategyConsolidated 所有目标合并为一次动作调用
	StrategyConsolidated ExecutionStrategy = "CONSOLIDATED"
)

// GroupingDimension 分组策略的分组维度
type GroupingDimension string

const (
	GroupByPartner GroupingDimension = "PARTNER" // 按交易对手
	GroupByProduct GroupingDimension = "PRODUCT" // 按产品
	GroupByMonth   GroupingDimension = "MONTH"   // 按单据月份
)

// AutomationRule 自动化规则聚合根。
// 条件、动作与执行参数只能通过聚合方法变更；每次变更递增 RuleVersion。
type AutomationRule struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	RuleNo      string      `gorm:"column:rule_no;type:varchar(32);uniqueIndex;not null" json:"rule_no"`
	Name        string      `gorm:"column:name;type:varchar(128);not null" json:"name"`
	Description string      `gorm:"column:description;type:varchar(255)" json:"description"`
	RuleType    RuleType    `gorm:"column:rule_type;type:varchar(32);index;not null" json:"rule_type"`
	Scope       RuleScope   `gorm:"column:scope;type:varchar(32);not null;default:ALL" json:"scope"`
	ScopeFilter string      `gorm:"column:scope_filter;type:varchar(128)" json:"scope_filter"`
	TriggerType TriggerType `gorm:"column:trigger_type;type:varchar(16);not null" json:"trigger_type"`
	// Schedule 定时触发的 cron 表达式，仅 TriggerScheduled 使用
	Schedule string `gorm:"column:schedule;type:varchar(64)" json:"schedule"`
	// EventTopic 事件触发监听的主题，仅 TriggerOnEvent 使用
	EventTopic string `gorm:"column:event_topic;type:varchar(128)" json:"event_topic"`

	Strategy ExecutionStrategy `gorm:"column:strategy;type:varchar(16);not null" json:"strategy"`
	// GroupingDimension 分组策略的分组维度，仅 StrategyGrouped 使用
	GroupingDimension GroupingDimension `gorm:"column:grouping_dimension;type:varchar(16)" json:"grouping_dimension"`
	// MaxSettlementsPerExecution 单次执行允许创建的结算单上限，0 表示不限
	MaxSettlementsPerExecution int `gorm:"column:max_settlements_per_execution;not null;default:0" json:"max_settlements_per_execution"`
	// MaxParallelism 并行策略的并发度上限，0 时取引擎缺省值
	MaxParallelism int `gorm:"column:max_parallelism;not null;default:0" json:"max_parallelism"`
	// ActionTimeoutSeconds 单个动作的超时秒数，0 时取引擎缺省值
	ActionTimeoutSeconds int `gorm:"column:action_timeout_seconds;not null;default:0" json:"action_timeout_seconds"`

	Enabled     bool  `gorm:"column:enabled;not null;default:false" json:"enabled"`
	RuleVersion int64 `gorm:"column:rule_version;not null;default:1" json:"rule_version"`

	ExecutionCount int64      `gorm:"column:execution_count;not null;default:0" json:"execution_count"`
	SuccessCount   int64      `gorm:"column:success_count;not null;default:0" json:"success_count"`
	FailureCount   int64      `gorm:"column:failure_count;not null;default:0" json:"failure_count"`
	LastExecutedAt *time.Time `gorm:"column:last_executed_at" json:"last_executed_at"`

	Conditions []RuleCondition `gorm:"foreignKey:RuleNo;references:RuleNo" json:"conditions"`
	Actions    []RuleAction    `gorm:"foreignKey:RuleNo;references:RuleNo" json:"actions"`

	CreatedBy string `gorm:"column:created_by;type:varchar(64)" json:"created_by"`
	UpdatedBy string `gorm:"column:updated_by;type:varchar(64)" json:"updated_by"`
	Version   int64  `gorm:"column:version;not null;default:0" json:"version"`
}

// TableName 表名
func (AutomationRule) TableName() string {
	return "automation_rules"
}

// NewAutomationRule 创建规则，初始为禁用状态、作用域为全部目标
func NewAutomationRule(name string, ruleType RuleType, triggerType TriggerType, strategy ExecutionStrategy, createdBy string) *AutomationRule {
	return &AutomationRule{
		RuleNo:      fmt.Sprintf("RUL%d", idgen.GenID()),
		Name:        name,
		RuleType:    ruleType,
		Scope:       ScopeAll,
		TriggerType: triggerType,
		Strategy:    strategy,
		Enabled:     false,
		RuleVersion: 1,
		CreatedBy:   createdBy,
		UpdatedBy:   createdBy,
		Conditions:  []RuleCondition{},
		Actions:     []RuleAction{},
	}
}

// Validate 校验规则定义是否完整可执行
func (r *AutomationRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: rule name is required", ErrInvariantViolation)
	}
	if len(r.Conditions) == 0 {
		return fmt.Errorf("%w: rule %s has no conditions", ErrInvariantViolation, r.RuleNo)
	}
	if len(r.Actions) == 0 {
		return fmt.Errorf("%w: rule %s has no actions", ErrInvariantViolation, r.RuleNo)
	}
	if err := r.validateScope(r.Scope, r.ScopeFilter); err != nil {
		return err
	}
	switch r.Strategy {
	case StrategySequential, StrategyParallel, StrategyConsolidated:
	case StrategyGrouped:
		switch r.GroupingDimension {
		case GroupByPartner, GroupByProduct, GroupByMonth:
		default:
			return fmt.Errorf("%w: grouped rule %s needs a grouping dimension", ErrInvariantViolation, r.RuleNo)
		}
	default:
		return fmt.Errorf("%w: unknown execution strategy %q", ErrInvariantViolation, r.Strategy)
	}
	if r.TriggerType == TriggerScheduled {
		if r.Schedule == "" {
			return fmt.Errorf("%w: scheduled rule %s has no cron expression", ErrInvariantViolation, r.RuleNo)
		}
		if _, err := cron.ParseStandard(r.Schedule); err != nil {
			return fmt.Errorf("%w: invalid cron expression %q: %v", ErrInvariantViolation, r.Schedule, err)
		}
	}
	if r.TriggerType == TriggerOnEvent && r.EventTopic == "" {
		return fmt.Errorf("%w: event rule %s has no topic", ErrInvariantViolation, r.RuleNo)
	}
	if r.MaxSettlementsPerExecution < 0 || r.MaxParallelism < 0 || r.ActionTimeoutSeconds < 0 {
		return fmt.Errorf("%w: execution limits must not be negative", ErrInvariantViolation)
	}
	return nil
}

func (r *AutomationRule) validateScope(scope RuleScope, filter string) error {
	switch scope {
	case "", ScopeAll, ScopePurchaseOnly, ScopeSalesOnly:
		return nil
	case ScopeByPartner, ScopeByProduct:
		if filter == "" {
			return fmt.Errorf("%w: scope %s needs a filter value", ErrInvariantViolation, scope)
		}
		return nil
	case ScopeByQuantityRange:
		if _, _, err := parseDecimalRange(filter); err != nil {
			return fmt.Errorf("%w: scope %s needs a \"min,max\" filter: %v", ErrInvariantViolation, scope, err)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown rule scope %q", ErrInvariantViolation, scope)
	}
}

// SetScope 设置作用域与过滤值并递增规则版本
func (r *AutomationRule) SetScope(scope RuleScope, filter, by string) error {
	if err := r.validateScope(scope, filter); err != nil {
		return err
	}
	r.Scope = scope
	r.ScopeFilter = filter
	r.bumpVersion(by)
	return nil
}

// MatchesScope 判断目标的事实上下文是否落在规则作用域内
func (r *AutomationRule) MatchesScope(facts FactContext) (bool, error) {
	switch r.Scope {
	case "", ScopeAll:
		return true, nil
	case ScopePurchaseOnly:
		return factString(facts, "contract_kind") == "PURCHASE", nil
	case ScopeSalesOnly:
		return factString(facts, "contract_kind") == "SALES", nil
	case ScopeByPartner:
		return factString(facts, "partner_code") == r.ScopeFilter, nil
	case ScopeByProduct:
		return factString(facts, "product_code") == r.ScopeFilter, nil
	case ScopeByQuantityRange:
		qty, ok := toDecimal(facts["quantity_mt"])
		if !ok {
			return false, nil
		}
		low, high, err := parseDecimalRange(r.ScopeFilter)
		if err != nil {
			return false, fmt.Errorf("%w: rule %s scope filter: %v", ErrInvariantViolation, r.RuleNo, err)
		}
		return qty.GreaterThanOrEqual(low) && qty.LessThanOrEqual(high), nil
	default:
		return false, fmt.Errorf("%w: unknown rule scope %q", ErrInvariantViolation, r.Scope)
	}
}

func factString(facts FactContext, field string) string {
	v, ok := facts[field]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// Enable 启用规则。定义不完整的规则拒绝启用。
func (r *AutomationRule) Enable(by string) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Enabled {
		return nil
	}
	r.Enabled = true
	r.UpdatedBy = by
	return nil
}

// Disable 禁用规则
func (r *AutomationRule) Disable(by string) {
	r.Enabled = false
	r.UpdatedBy = by
}

// SetConditions 整体替换条件并递增规则版本
func (r *AutomationRule) SetConditions(conditions []RuleCondition, by string) {
	for i := range conditions {
		conditions[i].RuleNo = r.RuleNo
		conditions[i].Sequence = i + 1
	}
	r.Conditions = conditions
	r.bumpVersion(by)
}

// SetActions 整体替换动作并递增规则版本
func (r *AutomationRule) SetActions(actions []RuleAction, by string) {
	for i := range actions {
		actions[i].RuleNo = r.RuleNo
		actions[i].Sequence = i + 1
	}
	r.Actions = actions
	r.bumpVersion(by)
}

// UpdateExecution 更新执行参数并递增规则版本
func (r *AutomationRule) UpdateExecution(strategy ExecutionStrategy, dimension GroupingDimension, maxSettlements, maxParallelism, actionTimeoutSeconds int, by string) error {
	switch strategy {
	case StrategySequential, StrategyParallel, StrategyConsolidated:
	case StrategyGrouped:
		switch dimension {
		case GroupByPartner, GroupByProduct, GroupByMonth:
		default:
			return fmt.Errorf("%w: grouped strategy needs a grouping dimension", ErrInvariantViolation)
		}
	default:
		return fmt.Errorf("%w: unknown execution strategy %q", ErrInvariantViolation, strategy)
	}
	if maxSettlements < 0 || maxParallelism < 0 || actionTimeoutSeconds < 0 {
		return fmt.Errorf("%w: execution limits must not be negative", ErrInvariantViolation)
	}
	r.Strategy = strategy
	r.GroupingDimension = dimension
	r.MaxSettlementsPerExecution = maxSettlements
	r.MaxParallelism = maxParallelism
	r.ActionTimeoutSeconds = actionTimeoutSeconds
	r.bumpVersion(by)
	return nil
}

// RecordExecution 累计执行计数
func (r *AutomationRule) RecordExecution(success bool) {
	now := time.Now()
	r.ExecutionCount++
	if success {
		r.SuccessCount++
	} else {
		r.FailureCount++
	}
	r.LastExecutedAt = &now
}

func (r *AutomationRule) bumpVersion(by string) {
	r.RuleVersion++
	r.UpdatedBy = by
}
