package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionOperators(t *testing.T) {
	facts := FactContext{
		"status":       "FINALIZED",
		"quantity_mt":  decimal.NewFromInt(1000),
		"total_amount": "502000",
		"partner":      "GLENCORE-SG",
		"due_date":     time.Now().AddDate(0, 0, -3),
		"empty_field":  "",
	}

	tests := []struct {
		name string
		cond RuleCondition
		want bool
	}{
		{"eq match", RuleCondition{Field: "status", Operator: OperatorEquals, Value: "FINALIZED"}, true},
		{"eq mismatch", RuleCondition{Field: "status", Operator: OperatorEquals, Value: "DRAFT"}, false},
		{"neq", RuleCondition{Field: "status", Operator: OperatorNotEquals, Value: "DRAFT"}, true},
		{"numeric eq tolerates formatting", RuleCondition{Field: "quantity_mt", Operator: OperatorEquals, Value: "1000.00"}, true},
		{"gt", RuleCondition{Field: "total_amount", Operator: OperatorGreaterThan, Value: "500000"}, true},
		{"gte boundary", RuleCondition{Field: "total_amount", Operator: OperatorGreaterEqual, Value: "502000"}, true},
		{"lt false", RuleCondition{Field: "total_amount", Operator: OperatorLessThan, Value: "502000"}, false},
		{"lte boundary", RuleCondition{Field: "quantity_mt", Operator: OperatorLessEqual, Value: "1000"}, true},
		{"contains", RuleCondition{Field: "partner", Operator: OperatorContains, Value: "GLENCORE"}, true},
		{"starts_with", RuleCondition{Field: "partner", Operator: OperatorStartsWith, Value: "GLENCORE"}, true},
		{"starts_with miss", RuleCondition{Field: "partner", Operator: OperatorStartsWith, Value: "SG"}, false},
		{"ends_with", RuleCondition{Field: "partner", Operator: OperatorEndsWith, Value: "-SG"}, true},
		{"ends_with miss", RuleCondition{Field: "partner", Operator: OperatorEndsWith, Value: "GLENCORE"}, false},
		{"between inside", RuleCondition{Field: "quantity_mt", Operator: OperatorBetween, Value: "500,1500"}, true},
		{"between lower boundary", RuleCondition{Field: "quantity_mt", Operator: OperatorBetween, Value: "1000,2000"}, true},
		{"between upper boundary", RuleCondition{Field: "quantity_mt", Operator: OperatorBetween, Value: "0,1000"}, true},
		{"between outside", RuleCondition{Field: "quantity_mt", Operator: OperatorBetween, Value: "1001,2000"}, false},
		{"in", RuleCondition{Field: "status", Operator: OperatorIn, Value: "APPROVED, FINALIZED"}, true},
		{"in miss", RuleCondition{Field: "status", Operator: OperatorIn, Value: "DRAFT,CANCELLED"}, false},
		{"is_set", RuleCondition{Field: "partner", Operator: OperatorIsSet}, true},
		{"is_set empty string", RuleCondition{Field: "empty_field", Operator: OperatorIsSet}, false},
		{"is_set missing", RuleCondition{Field: "nonexistent", Operator: OperatorIsSet}, false},
		{"is_null missing", RuleCondition{Field: "nonexistent", Operator: OperatorIsNull}, true},
		{"is_null empty string", RuleCondition{Field: "empty_field", Operator: OperatorIsNull}, true},
		{"is_null populated", RuleCondition{Field: "partner", Operator: OperatorIsNull}, false},
		{"before_today", RuleCondition{Field: "due_date", Operator: OperatorBeforeToday}, true},
		{"missing field is false", RuleCondition{Field: "nonexistent", Operator: OperatorEquals, Value: "x"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cond.Evaluate(facts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConditionEvaluateErrors(t *testing.T) {
	facts := FactContext{"partner": "GLENCORE-SG"}

	_, err := (&RuleCondition{Field: "partner", Operator: OperatorGreaterThan, Value: "10"}).Evaluate(facts)
	require.ErrorIs(t, err, ErrInvariantViolation)

	_, err = (&RuleCondition{Field: "partner", Operator: "LIKE", Value: "x"}).Evaluate(facts)
	require.ErrorIs(t, err, ErrInvariantViolation)

	// BETWEEN 的区间值必须是合法的 "min,max"
	numeric := FactContext{"quantity_mt": "100"}
	_, err = (&RuleCondition{Field: "quantity_mt", Operator: OperatorBetween, Value: "100"}).Evaluate(numeric)
	require.ErrorIs(t, err, ErrInvariantViolation)

	_, err = (&RuleCondition{Field: "quantity_mt", Operator: OperatorBetween, Value: "200,100"}).Evaluate(numeric)
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestEvaluateConditionsLeftFold(t *testing.T) {
	facts := FactContext{"a": "1", "b": "2", "c": "3"}

	// true AND false OR true：左结合折叠 ⇒ (true AND false) OR true = true
	conds := []RuleCondition{
		{Sequence: 1, Field: "a", Operator: OperatorEquals, Value: "1"},
		{Sequence: 2, Field: "b", Operator: OperatorEquals, Value: "99", LogicalOp: LogicalAnd},
		{Sequence: 3, Field: "c", Operator: OperatorEquals, Value: "3", LogicalOp: LogicalOr},
	}
	got, err := EvaluateConditions(conds, facts)
	require.NoError(t, err)
	assert.True(t, got)

	// true OR true AND false：左结合 ⇒ (true OR true) AND false = false，
	// 没有优先级规则可以救它
	conds = []RuleCondition{
		{Sequence: 1, Field: "a", Operator: OperatorEquals, Value: "1"},
		{Sequence: 2, Field: "b", Operator: OperatorEquals, Value: "2", LogicalOp: LogicalOr},
		{Sequence: 3, Field: "c", Operator: OperatorEquals, Value: "99", LogicalOp: LogicalAnd},
	}
	got, err = EvaluateConditions(conds, facts)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluateConditionsGrouping(t *testing.T) {
	facts := FactContext{"a": "1", "b": "2", "c": "3"}

	// (A AND B=false) OR C=true ⇒ true：组先折叠为 false，再与 C 做 OR
	conds := []RuleCondition{
		{Sequence: 1, Field: "a", Operator: OperatorEquals, Value: "1", GroupRef: "g1"},
		{Sequence: 2, Field: "b", Operator: OperatorEquals, Value: "99", LogicalOp: LogicalAnd, GroupRef: "g1"},
		{Sequence: 3, Field: "c", Operator: OperatorEquals, Value: "3", LogicalOp: LogicalOr},
	}
	got, err := EvaluateConditions(conds, facts)
	require.NoError(t, err)
	assert.True(t, got)

	// 不分组时同样的条件串左结合折叠为 false
	for i := range conds {
		conds[i].GroupRef = ""
	}
	conds[2].LogicalOp = LogicalAnd
	conds[1].LogicalOp = LogicalAnd
	conds[1].Value = "2"
	conds[2].Value = "99"
	got, err = EvaluateConditions(conds, facts)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestEvaluateConditionsGroupJoinsWithFirstConditionOp(t *testing.T) {
	facts := FactContext{"a": "1", "b": "2", "c": "3"}

	// C=false OR (A AND B) ⇒ 组以其首条件的 OR 参与外层折叠 ⇒ true
	conds := []RuleCondition{
		{Sequence: 1, Field: "c", Operator: OperatorEquals, Value: "99"},
		{Sequence: 2, Field: "a", Operator: OperatorEquals, Value: "1", LogicalOp: LogicalOr, GroupRef: "g1"},
		{Sequence: 3, Field: "b", Operator: OperatorEquals, Value: "2", LogicalOp: LogicalAnd, GroupRef: "g1"},
	}
	got, err := EvaluateConditions(conds, facts)
	require.NoError(t, err)
	assert.True(t, got)
}

func TestEvaluateConditionsEmptyIsTrue(t *testing.T) {
	got, err := EvaluateConditions(nil, FactContext{})
	require.NoError(t, err)
	assert.True(t, got)
}
