package domain

import "context"

// RuleRepository 规则仓储接口
type RuleRepository interface {
	// Save 保存规则及其条件与动作。版本不匹配返回 ErrVersionConflict。
	Save(ctx context.Context, rule *AutomationRule) error
	// FindByNo 按规则号查询，连带条件与动作。未找到返回 ErrNotFound。
	FindByNo(ctx context.Context, ruleNo string) (*AutomationRule, error)
	// FindEnabled 查询全部启用的规则
	FindEnabled(ctx context.Context) ([]*AutomationRule, error)
	// FindEnabledByTrigger 按触发方式查询启用的规则
	FindEnabledByTrigger(ctx context.Context, trigger TriggerType) ([]*AutomationRule, error)
	// List 分页列出规则
	List(ctx context.Context, offset, limit int) ([]*AutomationRule, int64, error)
}

// ExecutionRepository 执行记录仓储接口
type ExecutionRepository interface {
	Save(ctx context.Context, execution *RuleExecution) error
	FindByNo(ctx context.Context, executionNo string) (*RuleExecution, error)
	FindByRule(ctx context.Context, ruleNo string, offset, limit int) ([]*RuleExecution, int64, error)
}
