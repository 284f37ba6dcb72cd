package domain

import (
	"context"
	"time"
)

// ActionType 动作类型
type ActionType string

const (
	// ActionCreateSettlement 为目标合同创建结算单
	ActionCreateSettlement ActionType = "CREATE_SETTLEMENT"
	// ActionApproveSettlement 审批通过目标结算单
	ActionApproveSettlement ActionType = "APPROVE_SETTLEMENT"
	// ActionFinalizeSettlement 定稿目标结算单
	ActionFinalizeSettlement ActionType = "FINALIZE_SETTLEMENT"
	// ActionAddCharge 向目标结算单追加费用
	ActionAddCharge ActionType = "ADD_CHARGE"
	// ActionSendNotification 发送通知
	ActionSendNotification ActionType = "SEND_NOTIFICATION"
	// ActionUpdateStatus 推进目标结算单状态
	ActionUpdateStatus ActionType = "UPDATE_STATUS"
	// ActionCreatePayment 为目标结算单创建付款
	ActionCreatePayment ActionType = "CREATE_PAYMENT"
)

// RuleAction 规则动作。Sequence 决定同一目标上动作的执行顺序；
// StopOnFailure 为真的动作失败时中断整个动作链。
type RuleAction struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	RuleNo        string     `gorm:"column:rule_no;type:varchar(32);index;not null" json:"rule_no"`
	Sequence      int        `gorm:"column:sequence;not null" json:"sequence"`
	ActionType    ActionType `gorm:"column:action_type;type:varchar(32);not null" json:"action_type"`
	StopOnFailure bool       `gorm:"column:stop_on_failure;not null;default:false" json:"stop_on_failure"`
	// Parameters 动作参数，JSON 编码
	Parameters string `gorm:"column:parameters;type:text" json:"parameters"`
}

// TableName 表名
func (RuleAction) TableName() string {
	return "rule_actions"
}

// ActionTarget 规则的一个执行目标：一张合同或一张结算单及其事实上下文
type ActionTarget struct {
	TargetID string
	GroupKey string
	Facts    FactContext
}

// ActionResult 单个动作在单个目标上的执行结果
type ActionResult struct {
	ActionType         ActionType
	TargetID           string
	SettlementsCreated int
	Err                error
}

// ActionExecutor 动作执行器，由基础设施层实现。
// Execute 必须尊重 ctx 超时；返回的 SettlementsCreated 用于执行记录的统计。
type ActionExecutor interface {
	Execute(ctx context.Context, action RuleAction, target ActionTarget) (ActionResult, error)
}

// TargetProvider 目标提供者：根据规则类型加载候选目标及其事实上下文
type TargetProvider interface {
	LoadTargets(ctx context.Context, rule *AutomationRule) ([]ActionTarget, error)
}
