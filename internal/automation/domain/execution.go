package domain

import (
	"fmt"
	"time"

	"github.com/wyfcoding/oiltrading/pkg/idgen"
)

// ExecutionStatus 执行记录状态
type ExecutionStatus string

const (
	ExecutionStatusRunning            ExecutionStatus = "RUNNING"             // 执行中
	ExecutionStatusCompleted          ExecutionStatus = "COMPLETED"           // 全部成功
	ExecutionStatusPartiallyCompleted ExecutionStatus = "PARTIALLY_COMPLETED" // 部分成功
	ExecutionStatusFailed             ExecutionStatus = "FAILED"              // 失败
	ExecutionStatusCancelled          ExecutionStatus = "CANCELLED"           // 被取消
	ExecutionStatusSkipped            ExecutionStatus = "SKIPPED"             // 条件不满足，未执行
)

// RuleExecution 一次规则执行的记录。
// 记录只关闭一次：Complete/Fail/PartiallyComplete/Skip 之后状态不再变化。
type RuleExecution struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ExecutionNo string      `gorm:"column:execution_no;type:varchar(32);uniqueIndex;not null" json:"execution_no"`
	RuleNo      string      `gorm:"column:rule_no;type:varchar(32);index;not null" json:"rule_no"`
	RuleVersion int64       `gorm:"column:rule_version;not null" json:"rule_version"`
	TriggeredBy string      `gorm:"column:triggered_by;type:varchar(64)" json:"triggered_by"`
	TriggerType TriggerType `gorm:"column:trigger_type;type:varchar(16)" json:"trigger_type"`

	Status              ExecutionStatus `gorm:"column:status;type:varchar(24);index;not null" json:"status"`
	TargetCount         int             `gorm:"column:target_count;not null;default:0" json:"target_count"`
	ConditionsEvaluated int             `gorm:"column:conditions_evaluated;not null;default:0" json:"conditions_evaluated"`
	ActionsExecuted     int             `gorm:"column:actions_executed;not null;default:0" json:"actions_executed"`
	ActionsFailed       int             `gorm:"column:actions_failed;not null;default:0" json:"actions_failed"`
	SettlementCount     int             `gorm:"column:settlement_count;not null;default:0" json:"settlement_count"`
	DeferredTargets     int             `gorm:"column:deferred_targets;not null;default:0" json:"deferred_targets"`
	AffectedIDs         []string        `gorm:"column:affected_ids;serializer:json;type:text" json:"affected_ids"`
	Log                 string          `gorm:"column:log;type:text" json:"log"`
	ErrorMessage        string          `gorm:"column:error_message;type:text" json:"error_message"`

	StartedAt  time.Time  `gorm:"column:started_at;not null" json:"started_at"`
	FinishedAt *time.Time `gorm:"column:finished_at" json:"finished_at"`
}

// TableName 表名
func (RuleExecution) TableName() string {
	return "rule_executions"
}

// NewRuleExecution 开始一次执行
func NewRuleExecution(rule *AutomationRule, triggerType TriggerType, triggeredBy string) *RuleExecution {
	return &RuleExecution{
		ExecutionNo: fmt.Sprintf("EXE%d", idgen.GenID()),
		RuleNo:      rule.RuleNo,
		RuleVersion: rule.RuleVersion,
		TriggeredBy: triggeredBy,
		TriggerType: triggerType,
		Status:      ExecutionStatusRunning,
		StartedAt:   time.Now(),
	}
}

// AppendLog 追加一行执行日志
func (e *RuleExecution) AppendLog(line string) {
	if e.Log != "" {
		e.Log += "\n"
	}
	e.Log += line
}

// IsClosed 执行是否已结束
func (e *RuleExecution) IsClosed() bool {
	return e.Status != ExecutionStatusRunning
}

// close 以给定终态关闭执行记录，重复关闭报错
func (e *RuleExecution) close(status ExecutionStatus, errMsg string) error {
	if e.IsClosed() {
		return fmt.Errorf("%w: execution %s is already %s", ErrIllegalStateTransition, e.ExecutionNo, e.Status)
	}
	now := time.Now()
	e.Status = status
	e.ErrorMessage = errMsg
	e.FinishedAt = &now
	return nil
}

// Complete 全部成功
func (e *RuleExecution) Complete() error {
	return e.close(ExecutionStatusCompleted, "")
}

// PartiallyComplete 部分成功
func (e *RuleExecution) PartiallyComplete(errMsg string) error {
	return e.close(ExecutionStatusPartiallyCompleted, errMsg)
}

// Fail 失败
func (e *RuleExecution) Fail(errMsg string) error {
	return e.close(ExecutionStatusFailed, errMsg)
}

// Cancel 执行被人工或系统取消
func (e *RuleExecution) Cancel(reason string) error {
	return e.close(ExecutionStatusCancelled, reason)
}

// Skip 条件不满足，未执行任何动作
func (e *RuleExecution) Skip() error {
	return e.close(ExecutionStatusSkipped, "")
}
