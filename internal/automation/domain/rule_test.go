package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRule() *AutomationRule {
	rule := NewAutomationRule("overdue reminder", RuleTypePaymentMatching, TriggerManual, StrategySequential, "ops")
	rule.Conditions = []RuleCondition{{Sequence: 1, Field: "days_overdue", Operator: OperatorGreaterThan, Value: "0"}}
	rule.Actions = []RuleAction{{Sequence: 1, ActionType: ActionSendNotification}}
	return rule
}

func TestNewRuleStartsDisabled(t *testing.T) {
	rule := validRule()
	assert.False(t, rule.Enabled)
	assert.EqualValues(t, 1, rule.RuleVersion)
	assert.Equal(t, ScopeAll, rule.Scope)
}

func TestEnableRequiresValidDefinition(t *testing.T) {
	rule := NewAutomationRule("incomplete", RuleTypeAutoSettlement, TriggerManual, StrategySequential, "ops")

	// 没有条件也没有动作的规则不允许启用
	err := rule.Enable("ops")
	require.ErrorIs(t, err, ErrInvariantViolation)
	assert.False(t, rule.Enabled)

	// 补上条件后仍缺动作
	rule.Conditions = []RuleCondition{{Sequence: 1, Field: "quantity_mt", Operator: OperatorGreaterThan, Value: "0"}}
	err = rule.Enable("ops")
	require.ErrorIs(t, err, ErrInvariantViolation)
	assert.False(t, rule.Enabled)

	rule.Actions = []RuleAction{{Sequence: 1, ActionType: ActionCreateSettlement}}
	require.NoError(t, rule.Enable("ops"))
	assert.True(t, rule.Enabled)

	// 重复启用幂等
	require.NoError(t, rule.Enable("ops"))
}

func TestValidateRequiresAtLeastOneCondition(t *testing.T) {
	rule := validRule()
	rule.Conditions = nil

	err := rule.Validate()
	require.ErrorIs(t, err, ErrInvariantViolation)
	assert.Contains(t, err.Error(), "no conditions")
}

func TestScheduledRuleRequiresValidCron(t *testing.T) {
	rule := validRule()
	rule.TriggerType = TriggerScheduled

	err := rule.Validate()
	require.ErrorIs(t, err, ErrInvariantViolation)

	rule.Schedule = "not a cron"
	err = rule.Validate()
	require.ErrorIs(t, err, ErrInvariantViolation)

	rule.Schedule = "0 6 * * *"
	require.NoError(t, rule.Validate())
}

func TestEventRuleRequiresTopic(t *testing.T) {
	rule := validRule()
	rule.TriggerType = TriggerOnEvent

	err := rule.Validate()
	require.ErrorIs(t, err, ErrInvariantViolation)

	rule.EventTopic = "oiltrading.settlement.events"
	require.NoError(t, rule.Validate())
}

func TestSetScopeValidation(t *testing.T) {
	rule := validRule()
	before := rule.RuleVersion

	// 指定交易对手必须带过滤值
	err := rule.SetScope(ScopeByPartner, "", "ops")
	require.ErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, ScopeAll, rule.Scope)

	err = rule.SetScope(ScopeByQuantityRange, "1000,500", "ops")
	require.ErrorIs(t, err, ErrInvariantViolation)

	err = rule.SetScope("REGIONAL", "", "ops")
	require.ErrorIs(t, err, ErrInvariantViolation)

	require.NoError(t, rule.SetScope(ScopeByPartner, "P-100", "ops"))
	assert.Equal(t, ScopeByPartner, rule.Scope)
	assert.Equal(t, "P-100", rule.ScopeFilter)
	assert.Equal(t, before+1, rule.RuleVersion)
}

func TestMatchesScope(t *testing.T) {
	rule := validRule()

	require.NoError(t, rule.SetScope(ScopePurchaseOnly, "", "ops"))
	ok, err := rule.MatchesScope(FactContext{"contract_kind": "PURCHASE"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = rule.MatchesScope(FactContext{"contract_kind": "SALES"})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rule.SetScope(ScopeByProduct, "BRENT", "ops"))
	ok, err = rule.MatchesScope(FactContext{"product_code": "BRENT"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = rule.MatchesScope(FactContext{"product_code": "WTI"})
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rule.SetScope(ScopeByQuantityRange, "100,200", "ops"))
	ok, err = rule.MatchesScope(FactContext{"quantity_mt": "150"})
	require.NoError(t, err)
	assert.True(t, ok)
	// 缺少数量事实视为不在范围内
	ok, err = rule.MatchesScope(FactContext{})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSetConditionsResequencesAndBumpsVersion(t *testing.T) {
	rule := validRule()
	before := rule.RuleVersion

	rule.SetConditions([]RuleCondition{
		{Field: "status", Operator: OperatorEquals, Value: "FINALIZED", Sequence: 42},
		{Field: "amount", Operator: OperatorGreaterThan, Value: "0", LogicalOp: LogicalAnd, Sequence: 7},
	}, "ops")

	assert.Equal(t, before+1, rule.RuleVersion)
	require.Len(t, rule.Conditions, 2)
	assert.Equal(t, 1, rule.Conditions[0].Sequence)
	assert.Equal(t, 2, rule.Conditions[1].Sequence)
	assert.Equal(t, rule.RuleNo, rule.Conditions[0].RuleNo)
}

func TestSetActionsBumpsVersion(t *testing.T) {
	rule := validRule()
	before := rule.RuleVersion

	rule.SetActions([]RuleAction{
		{ActionType: ActionCreateSettlement, StopOnFailure: true},
		{ActionType: ActionFinalizeSettlement},
	}, "ops")

	assert.Equal(t, before+1, rule.RuleVersion)
	assert.Equal(t, 1, rule.Actions[0].Sequence)
	assert.Equal(t, 2, rule.Actions[1].Sequence)
	assert.True(t, rule.Actions[0].StopOnFailure)
	assert.False(t, rule.Actions[1].StopOnFailure)
}

func TestUpdateExecutionValidation(t *testing.T) {
	rule := validRule()

	err := rule.UpdateExecution("ROUND_ROBIN", "", 0, 0, 0, "ops")
	require.ErrorIs(t, err, ErrInvariantViolation)

	err = rule.UpdateExecution(StrategyParallel, "", -1, 0, 0, "ops")
	require.ErrorIs(t, err, ErrInvariantViolation)

	// 分组策略必须指定分组维度
	err = rule.UpdateExecution(StrategyGrouped, "", 0, 0, 0, "ops")
	require.ErrorIs(t, err, ErrInvariantViolation)

	before := rule.RuleVersion
	require.NoError(t, rule.UpdateExecution(StrategyGrouped, GroupByPartner, 50, 8, 60, "ops"))
	assert.Equal(t, StrategyGrouped, rule.Strategy)
	assert.Equal(t, GroupByPartner, rule.GroupingDimension)
	assert.Equal(t, 50, rule.MaxSettlementsPerExecution)
	assert.Equal(t, 8, rule.MaxParallelism)
	assert.Equal(t, 60, rule.ActionTimeoutSeconds)
	assert.Equal(t, before+1, rule.RuleVersion)
}

func TestRecordExecutionCounters(t *testing.T) {
	rule := validRule()

	rule.RecordExecution(true)
	rule.RecordExecution(true)
	rule.RecordExecution(false)

	assert.EqualValues(t, 3, rule.ExecutionCount)
	assert.EqualValues(t, 2, rule.SuccessCount)
	assert.EqualValues(t, 1, rule.FailureCount)
	require.NotNil(t, rule.LastExecutedAt)
}

func TestExecutionClosesOnlyOnce(t *testing.T) {
	rule := validRule()
	exec := NewRuleExecution(rule, TriggerManual, "ops")
	assert.Equal(t, ExecutionStatusRunning, exec.Status)
	assert.Equal(t, rule.RuleVersion, exec.RuleVersion)
	assert.False(t, exec.IsClosed())

	require.NoError(t, exec.Complete())
	assert.True(t, exec.IsClosed())
	require.NotNil(t, exec.FinishedAt)

	err := exec.Fail("late failure")
	require.ErrorIs(t, err, ErrIllegalStateTransition)
	assert.Equal(t, ExecutionStatusCompleted, exec.Status)
}

func TestExecutionCancel(t *testing.T) {
	rule := validRule()
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	require.NoError(t, exec.Cancel("operator aborted"))
	assert.Equal(t, ExecutionStatusCancelled, exec.Status)
	assert.Equal(t, "operator aborted", exec.ErrorMessage)
	require.NotNil(t, exec.FinishedAt)

	err := exec.Cancel("again")
	require.ErrorIs(t, err, ErrIllegalStateTransition)
}

func TestAppendLogJoinsLines(t *testing.T) {
	rule := validRule()
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	exec.AppendLog("first")
	exec.AppendLog("second")
	assert.Equal(t, "first\nsecond", exec.Log)
}
