// Package domain 规则自动化上下文的领域模型：规则、条件、动作与执行引擎。
package domain

import "errors"

var (
	// ErrInvariantViolation 业务不变量被破坏
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrIllegalStateTransition 非法状态流转
	ErrIllegalStateTransition = errors.New("illegal state transition")
	// ErrNotFound 实体不存在
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict 乐观锁版本冲突
	ErrVersionConflict = errors.New("version conflict")
	// ErrExternalDependency 外部依赖不可用
	ErrExternalDependency = errors.New("external dependency failure")
)
