package domain

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	defaultParallelism   = 4
	defaultActionTimeout = 30 * time.Second
)

// Engine 规则执行引擎。
// 针对一批目标按规则的策略执行动作，把统计写进执行记录并关闭它。
type Engine struct {
	executor ActionExecutor
}

// NewEngine 创建并返回一个新的执行引擎。
func NewEngine(executor ActionExecutor) *Engine {
	return &Engine{executor: executor}
}

// executionStats 一次执行的累计统计，并行策略下由互斥锁保护
type executionStats struct {
	mu          sync.Mutex
	executed    int
	failed      int
	settlements int
	affected    []string
	logs        []string
	halted      bool
	firstErr    error
}

func (s *executionStats) record(result ActionResult, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed++
	if err != nil {
		s.failed++
		if s.firstErr == nil {
			s.firstErr = err
		}
		return
	}
	s.settlements += result.SettlementsCreated
}

func (s *executionStats) markAffected(targetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.affected = append(s.affected, targetID)
}

func (s *executionStats) markHalted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halted = true
}

func (s *executionStats) logf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, fmt.Sprintf(format, args...))
}

// Execute 执行规则并关闭执行记录。
// 先按作用域与条件筛掉不满足的目标；没有任何目标满足时记录为 SKIPPED。
// MaxSettlementsPerExecution 大于零时超出的目标顺延到下一次执行。
func (e *Engine) Execute(ctx context.Context, rule *AutomationRule, targets []ActionTarget, exec *RuleExecution) error {
	eligible, conditionsEvaluated, err := e.filterTargets(rule, targets)
	if err != nil {
		_ = exec.Fail(err.Error())
		return err
	}
	exec.ConditionsEvaluated = conditionsEvaluated

	if len(eligible) == 0 {
		exec.TargetCount = 0
		return exec.Skip()
	}

	if limit := rule.MaxSettlementsPerExecution; limit > 0 && len(eligible) > limit {
		exec.DeferredTargets = len(eligible) - limit
		eligible = eligible[:limit]
		exec.AppendLog(fmt.Sprintf("deferred %d targets beyond per-execution limit %d", exec.DeferredTargets, limit))
		slog.InfoContext(ctx, "targets deferred to next execution",
			"rule_no", rule.RuleNo, "deferred", exec.DeferredTargets)
	}
	exec.TargetCount = len(eligible)

	stats := &executionStats{}
	switch rule.Strategy {
	case StrategySequential:
		e.runSequential(ctx, rule, eligible, stats)
	case StrategyParallel:
		e.runParallel(ctx, rule, eligible, stats)
	case StrategyGrouped:
		e.runGrouped(ctx, rule, eligible, stats)
	case StrategyConsolidated:
		e.runConsolidated(ctx, rule, eligible, stats)
	default:
		err := fmt.Errorf("%w: unknown execution strategy %q", ErrInvariantViolation, rule.Strategy)
		_ = exec.Fail(err.Error())
		return err
	}

	exec.ActionsExecuted = stats.executed
	exec.ActionsFailed = stats.failed
	exec.SettlementCount = stats.settlements
	exec.AffectedIDs = stats.affected
	for _, line := range stats.logs {
		exec.AppendLog(line)
	}

	return e.closeExecution(exec, stats)
}

func (e *Engine) closeExecution(exec *RuleExecution, stats *executionStats) error {
	switch {
	case stats.failed == 0:
		return exec.Complete()
	case stats.halted:
		return exec.Fail(stats.firstErr.Error())
	case stats.executed > stats.failed:
		return exec.PartiallyComplete(stats.firstErr.Error())
	default:
		return exec.Fail(stats.firstErr.Error())
	}
}

// filterTargets 先按规则作用域、再按条件筛选目标，返回条件求值次数
func (e *Engine) filterTargets(rule *AutomationRule, targets []ActionTarget) ([]ActionTarget, int, error) {
	eligible := make([]ActionTarget, 0, len(targets))
	evaluated := 0
	for _, t := range targets {
		inScope, err := rule.MatchesScope(t.Facts)
		if err != nil {
			return nil, evaluated, fmt.Errorf("failed to match scope for target %s: %w", t.TargetID, err)
		}
		if !inScope {
			continue
		}
		evaluated += len(rule.Conditions)
		ok, err := EvaluateConditions(rule.Conditions, t.Facts)
		if err != nil {
			return nil, evaluated, fmt.Errorf("failed to evaluate conditions for target %s: %w", t.TargetID, err)
		}
		if ok {
			eligible = append(eligible, t)
		}
	}
	return eligible, evaluated, nil
}

// runTarget 在单个目标上按顺序执行全部动作。
// 失败动作的 StopOnFailure 为真时返回该错误并放弃后续动作，否则继续执行。
func (e *Engine) runTarget(ctx context.Context, rule *AutomationRule, target ActionTarget, stats *executionStats) error {
	succeeded := false
	for _, action := range sortedActions(rule.Actions) {
		actionCtx, cancel := context.WithTimeout(ctx, e.actionTimeout(rule))
		result, err := e.executor.Execute(actionCtx, action, target)
		cancel()

		stats.record(result, err)
		if err != nil {
			stats.logf("action %s on target %s failed: %v", action.ActionType, target.TargetID, err)
			slog.WarnContext(ctx, "rule action failed",
				"rule_no", rule.RuleNo,
				"action", string(action.ActionType),
				"target", target.TargetID,
				"error", err)
			if action.StopOnFailure {
				if succeeded {
					stats.markAffected(target.TargetID)
				}
				return err
			}
			continue
		}
		succeeded = true
	}
	if succeeded {
		stats.markAffected(target.TargetID)
	}
	return nil
}

func (e *Engine) runSequential(ctx context.Context, rule *AutomationRule, targets []ActionTarget, stats *executionStats) {
	for _, target := range targets {
		if err := e.runTarget(ctx, rule, target, stats); err != nil {
			// 失败动作要求中断，剩余目标不再执行
			stats.markHalted()
			return
		}
	}
}

func (e *Engine) runParallel(ctx context.Context, rule *AutomationRule, targets []ActionTarget, stats *executionStats) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism(rule))

	for _, target := range targets {
		target := target
		g.Go(func() error {
			if err := e.runTarget(gctx, rule, target, stats); err != nil {
				// 返回错误以取消组内其余目标
				stats.markHalted()
				return err
			}
			return nil
		})
	}
	_ = g.Wait()
}

// runGrouped 按分组维度分组后逐组执行。
// 组内失败动作要求中断时只放弃该组的剩余目标，其他组照常执行。
func (e *Engine) runGrouped(ctx context.Context, rule *AutomationRule, targets []ActionTarget, stats *executionStats) {
	groups := make(map[string][]ActionTarget)
	var keys []string
	for _, t := range targets {
		key := groupKeyFor(rule, t)
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], t)
	}
	sort.Strings(keys)

	for _, key := range keys {
		for _, target := range groups[key] {
			if err := e.runTarget(ctx, rule, target, stats); err != nil {
				stats.logf("group %s aborted after target %s", key, target.TargetID)
				break
			}
		}
	}
}

// groupKeyFor 按规则的分组维度从事实上下文取分组键，取不到时退回目标自带的键
func groupKeyFor(rule *AutomationRule, t ActionTarget) string {
	var field string
	switch rule.GroupingDimension {
	case GroupByPartner:
		field = "partner_code"
	case GroupByProduct:
		field = "product_code"
	case GroupByMonth:
		field = "month"
	default:
		return t.GroupKey
	}
	if v := factString(t.Facts, field); v != "" {
		return v
	}
	return t.GroupKey
}

// runConsolidated 所有目标合并为一个复合目标，每个动作只调用一次。
// 复合目标的事实上下文带有 target_ids 与 target_count。
func (e *Engine) runConsolidated(ctx context.Context, rule *AutomationRule, targets []ActionTarget, stats *executionStats) {
	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		ids = append(ids, t.TargetID)
	}
	consolidated := ActionTarget{
		TargetID: strings.Join(ids, ","),
		Facts: FactContext{
			"target_ids":   ids,
			"target_count": len(targets),
		},
	}
	if err := e.runTarget(ctx, rule, consolidated, stats); err != nil {
		stats.markHalted()
	}
}

func (e *Engine) parallelism(rule *AutomationRule) int {
	if rule.MaxParallelism > 0 {
		return rule.MaxParallelism
	}
	return defaultParallelism
}

func (e *Engine) actionTimeout(rule *AutomationRule) time.Duration {
	if rule.ActionTimeoutSeconds > 0 {
		return time.Duration(rule.ActionTimeoutSeconds) * time.Second
	}
	return defaultActionTimeout
}

func sortedActions(actions []RuleAction) []RuleAction {
	sorted := make([]RuleAction, len(actions))
	copy(sorted, actions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Sequence < sorted[j].Sequence
	})
	return sorted
}
