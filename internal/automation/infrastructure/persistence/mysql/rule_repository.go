// Package mysql 规则自动化上下文的 MySQL 持久化实现。
package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/wyfcoding/oiltrading/internal/automation/domain"
)

// ruleRepository 规则仓储实现
type ruleRepository struct {
	db *gorm.DB
}

// NewRuleRepository 创建并返回一个新的规则仓储实例。
func NewRuleRepository(db *gorm.DB) domain.RuleRepository {
	return &ruleRepository{db: db}
}

// Save 保存规则（带乐观锁），条件与动作整体重写
func (r *ruleRepository) Save(ctx context.Context, rule *domain.AutomationRule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if rule.ID == 0 {
			rule.Version = 1
			if err := tx.Create(rule).Error; err != nil {
				return fmt.Errorf("failed to create rule: %w", err)
			}
			return nil
		}

		currentVersion := rule.Version
		result := tx.Model(&domain.AutomationRule{}).
			Where("rule_no = ? AND version = ?", rule.RuleNo, currentVersion).
			Updates(map[string]any{
				"name":                          rule.Name,
				"description":                   rule.Description,
				"trigger_type":                  rule.TriggerType,
				"schedule":                      rule.Schedule,
				"event_topic":                   rule.EventTopic,
				"strategy":                      rule.Strategy,
				"scope":                         rule.Scope,
				"scope_filter":                  rule.ScopeFilter,
				"grouping_dimension":            rule.GroupingDimension,
				"max_settlements_per_execution": rule.MaxSettlementsPerExecution,
				"max_parallelism":               rule.MaxParallelism,
				"action_timeout_seconds":        rule.ActionTimeoutSeconds,
				"enabled":                       rule.Enabled,
				"rule_version":                  rule.RuleVersion,
				"execution_count":               rule.ExecutionCount,
				"success_count":                 rule.SuccessCount,
				"failure_count":                 rule.FailureCount,
				"last_executed_at":              rule.LastExecutedAt,
				"updated_by":                    rule.UpdatedBy,
				"version":                       currentVersion + 1,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update rule: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: rule %s version %d", domain.ErrVersionConflict, rule.RuleNo, currentVersion)
		}
		rule.Version = currentVersion + 1

		if err := tx.Where("rule_no = ?", rule.RuleNo).Delete(&domain.RuleCondition{}).Error; err != nil {
			return fmt.Errorf("failed to clear conditions: %w", err)
		}
		for i := range rule.Conditions {
			rule.Conditions[i].ID = 0
			rule.Conditions[i].RuleNo = rule.RuleNo
		}
		if len(rule.Conditions) > 0 {
			if err := tx.Create(&rule.Conditions).Error; err != nil {
				return fmt.Errorf("failed to save conditions: %w", err)
			}
		}

		if err := tx.Where("rule_no = ?", rule.RuleNo).Delete(&domain.RuleAction{}).Error; err != nil {
			return fmt.Errorf("failed to clear actions: %w", err)
		}
		for i := range rule.Actions {
			rule.Actions[i].ID = 0
			rule.Actions[i].RuleNo = rule.RuleNo
		}
		if len(rule.Actions) > 0 {
			if err := tx.Create(&rule.Actions).Error; err != nil {
				return fmt.Errorf("failed to save actions: %w", err)
			}
		}
		return nil
	})
}

// FindByNo 按规则号查询，连带条件与动作
func (r *ruleRepository) FindByNo(ctx context.Context, ruleNo string) (*domain.AutomationRule, error) {
	var rule domain.AutomationRule
	err := r.db.WithContext(ctx).
		Preload("Conditions", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Preload("Actions", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Where("rule_no = ?", ruleNo).
		First(&rule).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: rule %s", domain.ErrNotFound, ruleNo)
		}
		return nil, fmt.Errorf("failed to find rule: %w", err)
	}
	return &rule, nil
}

// FindEnabled 查询全部启用的规则
func (r *ruleRepository) FindEnabled(ctx context.Context) ([]*domain.AutomationRule, error) {
	return r.findRules(ctx, r.db.WithContext(ctx).Where("enabled = ?", true))
}

// FindEnabledByTrigger 按触发方式查询启用的规则
func (r *ruleRepository) FindEnabledByTrigger(ctx context.Context, trigger domain.TriggerType) ([]*domain.AutomationRule, error) {
	return r.findRules(ctx, r.db.WithContext(ctx).
		Where("enabled = ? AND trigger_type = ?", true, trigger))
}

// List 分页列出规则
func (r *ruleRepository) List(ctx context.Context, offset, limit int) ([]*domain.AutomationRule, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.AutomationRule{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count rules: %w", err)
	}
	rules, err := r.findRules(ctx, r.db.WithContext(ctx).Offset(offset).Limit(limit))
	if err != nil {
		return nil, 0, err
	}
	return rules, total, nil
}

func (r *ruleRepository) findRules(ctx context.Context, query *gorm.DB) ([]*domain.AutomationRule, error) {
	var rules []*domain.AutomationRule
	err := query.
		Preload("Conditions", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Preload("Actions", func(db *gorm.DB) *gorm.DB {
			return db.Order("sequence ASC")
		}).
		Order("created_at DESC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find rules: %w", err)
	}
	return rules, nil
}

// executionRepository 执行记录仓储实现
type executionRepository struct {
	db *gorm.DB
}

// NewExecutionRepository 创建并返回一个新的执行记录仓储实例。
func NewExecutionRepository(db *gorm.DB) domain.ExecutionRepository {
	return &executionRepository{db: db}
}

func (r *executionRepository) Save(ctx context.Context, execution *domain.RuleExecution) error {
	if execution.ID == 0 {
		if err := r.db.WithContext(ctx).Create(execution).Error; err != nil {
			return fmt.Errorf("failed to create execution: %w", err)
		}
		return nil
	}
	if err := r.db.WithContext(ctx).Save(execution).Error; err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}
	return nil
}

func (r *executionRepository) FindByNo(ctx context.Context, executionNo string) (*domain.RuleExecution, error) {
	var execution domain.RuleExecution
	err := r.db.WithContext(ctx).Where("execution_no = ?", executionNo).First(&execution).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: execution %s", domain.ErrNotFound, executionNo)
		}
		return nil, fmt.Errorf("failed to find execution: %w", err)
	}
	return &execution, nil
}

func (r *executionRepository) FindByRule(ctx context.Context, ruleNo string, offset, limit int) ([]*domain.RuleExecution, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.RuleExecution{}).
		Where("rule_no = ?", ruleNo).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count executions: %w", err)
	}

	var executions []*domain.RuleExecution
	err := r.db.WithContext(ctx).
		Where("rule_no = ?", ruleNo).
		Order("started_at DESC").
		Offset(offset).Limit(limit).
		Find(&executions).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find executions: %w", err)
	}
	return executions, total, nil
}
