package domain

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor 按 failOn 集合决定哪些目标失败，并记录全部调用
type fakeExecutor struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]bool
}

func (f *fakeExecutor) Execute(_ context.Context, action RuleAction, target ActionTarget) (ActionResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, target.TargetID)
	f.mu.Unlock()

	if f.failOn[target.TargetID] {
		return ActionResult{ActionType: action.ActionType, TargetID: target.TargetID}, errors.New("downstream rejected")
	}
	return ActionResult{ActionType: action.ActionType, TargetID: target.TargetID, SettlementsCreated: 1}, nil
}

func newEngineRule(strategy ExecutionStrategy, stopOnFailure bool) *AutomationRule {
	rule := NewAutomationRule("auto settle", RuleTypeAutoSettlement, TriggerManual, strategy, "ops")
	rule.Actions = []RuleAction{{Sequence: 1, ActionType: ActionCreateSettlement, StopOnFailure: stopOnFailure}}
	return rule
}

func targetsFor(ids ...string) []ActionTarget {
	out := make([]ActionTarget, 0, len(ids))
	for _, id := range ids {
		out = append(out, ActionTarget{TargetID: id, Facts: FactContext{"contract_id": id}})
	}
	return out
}

func TestSequentialStopOnFailureAbortsRun(t *testing.T) {
	executor := &fakeExecutor{failOn: map[string]bool{"C-2": true}}
	engine := NewEngine(executor)
	rule := newEngineRule(StrategySequential, true)
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	err := engine.Execute(context.Background(), rule, targetsFor("C-1", "C-2", "C-3"), exec)
	require.NoError(t, err)

	// 第二个目标失败后第三个不再执行
	assert.Equal(t, []string{"C-1", "C-2"}, executor.calls)
	assert.Equal(t, 2, exec.ActionsExecuted)
	assert.Equal(t, 1, exec.ActionsFailed)
	assert.Equal(t, 1, exec.SettlementCount)
	assert.Equal(t, ExecutionStatusFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, "downstream rejected")
	require.NotNil(t, exec.FinishedAt)
}

func TestSequentialContinuesWhenActionToleratesFailure(t *testing.T) {
	executor := &fakeExecutor{failOn: map[string]bool{"C-2": true}}
	engine := NewEngine(executor)
	rule := newEngineRule(StrategySequential, false)
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	err := engine.Execute(context.Background(), rule, targetsFor("C-1", "C-2", "C-3"), exec)
	require.NoError(t, err)

	assert.Equal(t, []string{"C-1", "C-2", "C-3"}, executor.calls)
	assert.Equal(t, 3, exec.ActionsExecuted)
	assert.Equal(t, 1, exec.ActionsFailed)
	assert.Equal(t, ExecutionStatusPartiallyCompleted, exec.Status)
}

func TestParallelContinuesPastFailures(t *testing.T) {
	executor := &fakeExecutor{failOn: map[string]bool{"C-2": true}}
	engine := NewEngine(executor)
	rule := newEngineRule(StrategyParallel, false)
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	err := engine.Execute(context.Background(), rule, targetsFor("C-1", "C-2", "C-3"), exec)
	require.NoError(t, err)

	assert.Len(t, executor.calls, 3)
	assert.Equal(t, 3, exec.ActionsExecuted)
	assert.Equal(t, 1, exec.ActionsFailed)
	assert.Equal(t, 2, exec.SettlementCount)
	assert.Equal(t, ExecutionStatusPartiallyCompleted, exec.Status)
}

func TestAllTargetsSucceed(t *testing.T) {
	executor := &fakeExecutor{}
	engine := NewEngine(executor)
	rule := newEngineRule(StrategySequential, true)
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	err := engine.Execute(context.Background(), rule, targetsFor("C-1", "C-2"), exec)
	require.NoError(t, err)

	assert.Equal(t, ExecutionStatusCompleted, exec.Status)
	assert.Equal(t, 2, exec.SettlementCount)
	assert.Empty(t, exec.ErrorMessage)
}

func TestNoEligibleTargetsSkipsExecution(t *testing.T) {
	executor := &fakeExecutor{}
	engine := NewEngine(executor)
	rule := newEngineRule(StrategySequential, true)
	rule.Conditions = []RuleCondition{
		{Sequence: 1, Field: "status", Operator: OperatorEquals, Value: "FINALIZED"},
	}
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	targets := []ActionTarget{{TargetID: "C-1", Facts: FactContext{"status": "DRAFT"}}}
	err := engine.Execute(context.Background(), rule, targets, exec)
	require.NoError(t, err)

	assert.Empty(t, executor.calls)
	assert.Equal(t, ExecutionStatusSkipped, exec.Status)
	assert.Equal(t, 0, exec.TargetCount)
	assert.Equal(t, 1, exec.ConditionsEvaluated)
}

func TestConditionsFilterTargets(t *testing.T) {
	executor := &fakeExecutor{}
	engine := NewEngine(executor)
	rule := newEngineRule(StrategySequential, true)
	rule.Conditions = []RuleCondition{
		{Sequence: 1, Field: "quantity_mt", Operator: OperatorGreaterThan, Value: "500"},
	}
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	targets := []ActionTarget{
		{TargetID: "C-1", Facts: FactContext{"quantity_mt": "1000"}},
		{TargetID: "C-2", Facts: FactContext{"quantity_mt": "300"}},
		{TargetID: "C-3", Facts: FactContext{"quantity_mt": "750"}},
	}
	err := engine.Execute(context.Background(), rule, targets, exec)
	require.NoError(t, err)

	assert.Equal(t, []string{"C-1", "C-3"}, executor.calls)
	assert.Equal(t, 2, exec.TargetCount)
	assert.Equal(t, 3, exec.ConditionsEvaluated)
}

func TestScopeFiltersTargetsBeforeConditions(t *testing.T) {
	executor := &fakeExecutor{}
	engine := NewEngine(executor)
	rule := newEngineRule(StrategySequential, true)
	rule.Scope = ScopeByPartner
	rule.ScopeFilter = "P-100"
	rule.Conditions = []RuleCondition{
		{Sequence: 1, Field: "status", Operator: OperatorEquals, Value: "OPEN"},
	}
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	targets := []ActionTarget{
		{TargetID: "S-1", Facts: FactContext{"partner_code": "P-100", "status": "OPEN"}},
		{TargetID: "S-2", Facts: FactContext{"partner_code": "P-200", "status": "OPEN"}},
		{TargetID: "S-3", Facts: FactContext{"partner_code": "P-100", "status": "CLOSED"}},
	}
	err := engine.Execute(context.Background(), rule, targets, exec)
	require.NoError(t, err)

	assert.Equal(t, []string{"S-1"}, executor.calls)
	// 超出作用域的目标不触发条件求值
	assert.Equal(t, 2, exec.ConditionsEvaluated)
}

func TestQuantityRangeScope(t *testing.T) {
	executor := &fakeExecutor{}
	engine := NewEngine(executor)
	rule := newEngineRule(StrategySequential, true)
	rule.Scope = ScopeByQuantityRange
	rule.ScopeFilter = "500,1000"
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	targets := []ActionTarget{
		{TargetID: "C-1", Facts: FactContext{"quantity_mt": "499.99"}},
		{TargetID: "C-2", Facts: FactContext{"quantity_mt": "500"}},
		{TargetID: "C-3", Facts: FactContext{"quantity_mt": "1000"}},
		{TargetID: "C-4", Facts: FactContext{"quantity_mt": "1200"}},
	}
	err := engine.Execute(context.Background(), rule, targets, exec)
	require.NoError(t, err)

	assert.Equal(t, []string{"C-2", "C-3"}, executor.calls)
}

func TestMaxSettlementsDefersExcessTargets(t *testing.T) {
	executor := &fakeExecutor{}
	engine := NewEngine(executor)
	rule := newEngineRule(StrategySequential, true)
	rule.MaxSettlementsPerExecution = 2
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	err := engine.Execute(context.Background(), rule, targetsFor("C-1", "C-2", "C-3", "C-4", "C-5"), exec)
	require.NoError(t, err)

	assert.Equal(t, []string{"C-1", "C-2"}, executor.calls)
	assert.Equal(t, 2, exec.TargetCount)
	assert.Equal(t, 3, exec.DeferredTargets)
	assert.Equal(t, ExecutionStatusCompleted, exec.Status)
	assert.Contains(t, exec.Log, "deferred 3 targets")
}

func TestGroupedRunsGroupsInKeyOrder(t *testing.T) {
	executor := &fakeExecutor{}
	engine := NewEngine(executor)
	rule := newEngineRule(StrategyGrouped, true)
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	targets := []ActionTarget{
		{TargetID: "C-3", GroupKey: "partner-b", Facts: FactContext{}},
		{TargetID: "C-1", GroupKey: "partner-a", Facts: FactContext{}},
		{TargetID: "C-2", GroupKey: "partner-a", Facts: FactContext{}},
	}
	err := engine.Execute(context.Background(), rule, targets, exec)
	require.NoError(t, err)

	assert.Equal(t, []string{"C-1", "C-2", "C-3"}, executor.calls)
}

func TestGroupedFailureOnlyAbortsOwnGroup(t *testing.T) {
	executor := &fakeExecutor{failOn: map[string]bool{"A-1": true}}
	engine := NewEngine(executor)
	rule := newEngineRule(StrategyGrouped, true)
	rule.GroupingDimension = GroupByPartner
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	targets := []ActionTarget{
		{TargetID: "A-1", Facts: FactContext{"partner_code": "P-A"}},
		{TargetID: "A-2", Facts: FactContext{"partner_code": "P-A"}},
		{TargetID: "B-1", Facts: FactContext{"partner_code": "P-B"}},
	}
	err := engine.Execute(context.Background(), rule, targets, exec)
	require.NoError(t, err)

	// A 组首个目标失败后放弃 A-2，B 组照常执行
	assert.Equal(t, []string{"A-1", "B-1"}, executor.calls)
	assert.Equal(t, 2, exec.ActionsExecuted)
	assert.Equal(t, 1, exec.ActionsFailed)
	assert.Equal(t, ExecutionStatusPartiallyCompleted, exec.Status)
}

func TestGroupingDimensionOverridesGroupKey(t *testing.T) {
	executor := &fakeExecutor{}
	engine := NewEngine(executor)
	rule := newEngineRule(StrategyGrouped, true)
	rule.GroupingDimension = GroupByMonth
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	targets := []ActionTarget{
		{TargetID: "S-3", GroupKey: "z", Facts: FactContext{"month": "2026-02"}},
		{TargetID: "S-1", GroupKey: "a", Facts: FactContext{"month": "2026-01"}},
		{TargetID: "S-2", GroupKey: "m", Facts: FactContext{"month": "2026-01"}},
	}
	err := engine.Execute(context.Background(), rule, targets, exec)
	require.NoError(t, err)

	// 按月份分组而不是目标自带的键
	assert.Equal(t, []string{"S-1", "S-2", "S-3"}, executor.calls)
}

func TestExecutionRecordsAffectedTargets(t *testing.T) {
	executor := &fakeExecutor{failOn: map[string]bool{"C-2": true}}
	engine := NewEngine(executor)
	rule := newEngineRule(StrategySequential, false)
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	err := engine.Execute(context.Background(), rule, targetsFor("C-1", "C-2", "C-3"), exec)
	require.NoError(t, err)

	assert.Equal(t, []string{"C-1", "C-3"}, exec.AffectedIDs)
	assert.Contains(t, exec.Log, "C-2")
	assert.Contains(t, exec.Log, "downstream rejected")
}

func TestConsolidatedInvokesActionOnce(t *testing.T) {
	var captured ActionTarget
	executor := &capturingExecutor{capture: &captured}
	engine := NewEngine(executor)
	rule := newEngineRule(StrategyConsolidated, true)
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	err := engine.Execute(context.Background(), rule, targetsFor("C-1", "C-2", "C-3"), exec)
	require.NoError(t, err)

	assert.Equal(t, 1, exec.ActionsExecuted)
	assert.Equal(t, "C-1,C-2,C-3", captured.TargetID)
	assert.Equal(t, 3, captured.Facts["target_count"])
	assert.Equal(t, []string{"C-1", "C-2", "C-3"}, captured.Facts["target_ids"])
}

type capturingExecutor struct {
	capture *ActionTarget
}

func (c *capturingExecutor) Execute(_ context.Context, action RuleAction, target ActionTarget) (ActionResult, error) {
	*c.capture = target
	return ActionResult{ActionType: action.ActionType, TargetID: target.TargetID, SettlementsCreated: 1}, nil
}

func TestActionChainStopsOnFlaggedFailure(t *testing.T) {
	executor := &actionAwareExecutor{failOnAction: ActionAddCharge}
	engine := NewEngine(executor)
	rule := newEngineRule(StrategySequential, false)
	rule.Actions = []RuleAction{
		{Sequence: 2, ActionType: ActionAddCharge, StopOnFailure: true},
		{Sequence: 1, ActionType: ActionCreateSettlement},
		{Sequence: 3, ActionType: ActionFinalizeSettlement},
	}
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	err := engine.Execute(context.Background(), rule, targetsFor("C-1"), exec)
	require.NoError(t, err)

	// 按 Sequence 排序执行，标记中断的第二个动作失败后第三个不再执行
	assert.Equal(t, []ActionType{ActionCreateSettlement, ActionAddCharge}, executor.calls)
	assert.Equal(t, 2, exec.ActionsExecuted)
	assert.Equal(t, 1, exec.ActionsFailed)
	assert.Equal(t, ExecutionStatusFailed, exec.Status)
}

func TestActionChainContinuesPastTolerantFailure(t *testing.T) {
	executor := &actionAwareExecutor{failOnAction: ActionAddCharge}
	engine := NewEngine(executor)
	rule := newEngineRule(StrategySequential, false)
	rule.Actions = []RuleAction{
		{Sequence: 1, ActionType: ActionCreateSettlement},
		{Sequence: 2, ActionType: ActionAddCharge},
		{Sequence: 3, ActionType: ActionFinalizeSettlement},
	}
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	err := engine.Execute(context.Background(), rule, targetsFor("C-1"), exec)
	require.NoError(t, err)

	assert.Equal(t, []ActionType{ActionCreateSettlement, ActionAddCharge, ActionFinalizeSettlement}, executor.calls)
	assert.Equal(t, 3, exec.ActionsExecuted)
	assert.Equal(t, 1, exec.ActionsFailed)
	assert.Equal(t, []string{"C-1"}, exec.AffectedIDs)
	assert.Equal(t, ExecutionStatusPartiallyCompleted, exec.Status)
}

type actionAwareExecutor struct {
	calls        []ActionType
	failOnAction ActionType
}

func (a *actionAwareExecutor) Execute(_ context.Context, action RuleAction, target ActionTarget) (ActionResult, error) {
	a.calls = append(a.calls, action.ActionType)
	if action.ActionType == a.failOnAction {
		return ActionResult{ActionType: action.ActionType, TargetID: target.TargetID}, errors.New("charge rejected")
	}
	return ActionResult{ActionType: action.ActionType, TargetID: target.TargetID, SettlementsCreated: 1}, nil
}

func TestUnknownStrategyFailsExecution(t *testing.T) {
	engine := NewEngine(&fakeExecutor{})
	rule := newEngineRule("ROUND_ROBIN", true)
	exec := NewRuleExecution(rule, TriggerManual, "ops")

	err := engine.Execute(context.Background(), rule, targetsFor("C-1"), exec)
	require.ErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, ExecutionStatusFailed, exec.Status)
}
