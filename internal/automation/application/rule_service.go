// Package application 规则自动化上下文的应用服务：规则管理、触发与调度。
package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wyfcoding/oiltrading/internal/automation/domain"
	"github.com/wyfcoding/oiltrading/pkg/metrics"
)

// CreateRuleCommand 创建规则
type CreateRuleCommand struct {
	Name        string
	Description string
	RuleType    domain.RuleType
	TriggerType domain.TriggerType
	Strategy    domain.ExecutionStrategy
	Scope       domain.RuleScope
	ScopeFilter string
	Schedule    string
	EventTopic  string
	Operator    string
}

// RuleService 规则管理与触发服务。
type RuleService struct {
	ruleRepo domain.RuleRepository
	execRepo domain.ExecutionRepository
	provider domain.TargetProvider
	engine   *domain.Engine
	metrics  *metrics.Metrics
}

func NewRuleService(
	ruleRepo domain.RuleRepository,
	execRepo domain.ExecutionRepository,
	provider domain.TargetProvider,
	engine *domain.Engine,
	m *metrics.Metrics,
) *RuleService {
	return &RuleService{
		ruleRepo: ruleRepo,
		execRepo: execRepo,
		provider: provider,
		engine:   engine,
		metrics:  m,
	}
}

// CreateRule 创建规则
func (s *RuleService) CreateRule(ctx context.Context, cmd *CreateRuleCommand) (*domain.AutomationRule, error) {
	rule := domain.NewAutomationRule(cmd.Name, cmd.RuleType, cmd.TriggerType, cmd.Strategy, cmd.Operator)
	rule.Description = cmd.Description
	rule.Schedule = cmd.Schedule
	rule.EventTopic = cmd.EventTopic
	if cmd.Scope != "" {
		rule.Scope = cmd.Scope
		rule.ScopeFilter = cmd.ScopeFilter
	}

	if err := s.ruleRepo.Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}
	slog.InfoContext(ctx, "automation rule created", "rule_no", rule.RuleNo, "type", string(cmd.RuleType))
	return rule, nil
}

// SetConditions 替换规则条件
func (s *RuleService) SetConditions(ctx context.Context, ruleNo string, conditions []domain.RuleCondition, operator string) (*domain.AutomationRule, error) {
	return s.mutate(ctx, ruleNo, func(rule *domain.AutomationRule) error {
		rule.SetConditions(conditions, operator)
		return nil
	})
}

// SetActions 替换规则动作
func (s *RuleService) SetActions(ctx context.Context, ruleNo string, actions []domain.RuleAction, operator string) (*domain.AutomationRule, error) {
	return s.mutate(ctx, ruleNo, func(rule *domain.AutomationRule) error {
		rule.SetActions(actions, operator)
		return nil
	})
}

// UpdateExecution 更新执行参数
func (s *RuleService) UpdateExecution(ctx context.Context, ruleNo string, strategy domain.ExecutionStrategy, dimension domain.GroupingDimension, maxSettlements, maxParallelism, actionTimeoutSeconds int, operator string) (*domain.AutomationRule, error) {
	return s.mutate(ctx, ruleNo, func(rule *domain.AutomationRule) error {
		return rule.UpdateExecution(strategy, dimension, maxSettlements, maxParallelism, actionTimeoutSeconds, operator)
	})
}

// SetScope 更新规则作用域
func (s *RuleService) SetScope(ctx context.Context, ruleNo string, scope domain.RuleScope, filter, operator string) (*domain.AutomationRule, error) {
	return s.mutate(ctx, ruleNo, func(rule *domain.AutomationRule) error {
		return rule.SetScope(scope, filter, operator)
	})
}

// EnableRule 启用规则
func (s *RuleService) EnableRule(ctx context.Context, ruleNo, operator string) (*domain.AutomationRule, error) {
	return s.mutate(ctx, ruleNo, func(rule *domain.AutomationRule) error {
		return rule.Enable(operator)
	})
}

// DisableRule 禁用规则
func (s *RuleService) DisableRule(ctx context.Context, ruleNo, operator string) (*domain.AutomationRule, error) {
	return s.mutate(ctx, ruleNo, func(rule *domain.AutomationRule) error {
		rule.Disable(operator)
		return nil
	})
}

// GetRule 查询规则
func (s *RuleService) GetRule(ctx context.Context, ruleNo string) (*domain.AutomationRule, error) {
	return s.ruleRepo.FindByNo(ctx, ruleNo)
}

// ListRules 分页列出规则
func (s *RuleService) ListRules(ctx context.Context, offset, limit int) ([]*domain.AutomationRule, int64, error) {
	return s.ruleRepo.List(ctx, offset, limit)
}

// ListExecutions 查询规则的执行历史
func (s *RuleService) ListExecutions(ctx context.Context, ruleNo string, offset, limit int) ([]*domain.RuleExecution, int64, error) {
	return s.execRepo.FindByRule(ctx, ruleNo, offset, limit)
}

// TriggerRule 触发一次规则执行。禁用的规则拒绝触发。
func (s *RuleService) TriggerRule(ctx context.Context, ruleNo string, triggerType domain.TriggerType, triggeredBy string) (*domain.RuleExecution, error) {
	rule, err := s.ruleRepo.FindByNo(ctx, ruleNo)
	if err != nil {
		return nil, err
	}
	if !rule.Enabled {
		return nil, fmt.Errorf("%w: rule %s is disabled", domain.ErrIllegalStateTransition, ruleNo)
	}

	targets, err := s.provider.LoadTargets(ctx, rule)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule targets: %w", err)
	}

	execution := domain.NewRuleExecution(rule, triggerType, triggeredBy)
	if err := s.execRepo.Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	// 引擎错误已体现在执行记录的状态与错误信息里
	if err := s.engine.Execute(ctx, rule, targets, execution); err != nil {
		slog.WarnContext(ctx, "rule execution finished with errors", "rule_no", ruleNo, "error", err)
	}
	if err := s.execRepo.Save(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to save execution result: %w", err)
	}

	rule.RecordExecution(execution.Status == domain.ExecutionStatusCompleted ||
		execution.Status == domain.ExecutionStatusSkipped)
	if err := s.ruleRepo.Save(ctx, rule); err != nil {
		slog.WarnContext(ctx, "failed to update rule counters", "rule_no", ruleNo, "error", err)
	}

	if s.metrics != nil {
		s.metrics.RuleExecutionsTotal.WithLabelValues(string(rule.RuleType), string(execution.Status)).Inc()
	}
	slog.InfoContext(ctx, "rule executed",
		"rule_no", ruleNo,
		"execution_no", execution.ExecutionNo,
		"status", string(execution.Status),
		"targets", execution.TargetCount,
		"actions_executed", execution.ActionsExecuted,
		"settlements", execution.SettlementCount)
	return execution, nil
}

func (s *RuleService) mutate(ctx context.Context, ruleNo string, fn func(*domain.AutomationRule) error) (*domain.AutomationRule, error) {
	rule, err := s.ruleRepo.FindByNo(ctx, ruleNo)
	if err != nil {
		return nil, err
	}
	if err := fn(rule); err != nil {
		return nil, err
	}
	if err := s.ruleRepo.Save(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to save rule: %w", err)
	}
	return rule, nil
}
