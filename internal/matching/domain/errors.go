// Package domain 合同匹配上下文的领域模型与仓储接口。
package domain

import "errors"

var (
	// ErrInvariantViolation 业务不变量被破坏
	ErrInvariantViolation = errors.New("invariant violation")
	// ErrNotFound 实体不存在
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict 乐观锁版本冲突
	ErrVersionConflict = errors.New("version conflict")
)
