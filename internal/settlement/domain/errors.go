package domain

import (
	"errors"
	"fmt"

	"github.com/wyfcoding/oiltrading/pkg/fsm"
)

// 结算域错误分类。所有业务方法在变更前校验前置条件，
// 校验失败时返回下列哨兵错误之一（可能经过 %w 包装），绝不产生部分变更。
var (
	// ErrInvariantViolation 业务不变量被破坏（负数金额、零金额结算、定价窗口起止颠倒等）
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrIllegalStateTransition 当前状态不允许该操作
	ErrIllegalStateTransition = errors.New("illegal state transition")
	// ErrNotFound 目标实体不存在
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict 乐观锁版本冲突，调用方需重试
	ErrVersionConflict = errors.New("version conflict")
	// ErrExternalDependency 外部依赖（价格源、通知通道）失败
	ErrExternalDependency = errors.New("external dependency failure")
)

// wrapTransitionErr 把状态机错误归入 ErrIllegalStateTransition 分类
func wrapTransitionErr(err error) error {
	if errors.Is(err, fsm.ErrTransitionNotAllowed) {
		return fmt.Errorf("%w: %v", ErrIllegalStateTransition, err)
	}
	return err
}
