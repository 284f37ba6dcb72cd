// Package fsm 提供泛型有限状态机，用于聚合根的状态流转校验
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrTransitionNotAllowed 当前状态下不允许触发该事件
var ErrTransitionNotAllowed = errors.New("fsm: transition not allowed")

type transitionKey[S comparable, E comparable] struct {
	from  S
	event E
}

// Machine 有限状态机。S 为状态类型，E 为事件类型。
type Machine[S comparable, E comparable] struct {
	mu          sync.Mutex
	current     S
	transitions map[transitionKey[S, E]]S
}

// NewMachine 创建状态机，current 为初始状态
func NewMachine[S comparable, E comparable](current S) *Machine[S, E] {
	return &Machine[S, E]{
		current:     current,
		transitions: make(map[transitionKey[S, E]]S),
	}
}

// AddTransition 注册一条合法流转：from --event--> to
func (m *Machine[S, E]) AddTransition(from S, event E, to S) *Machine[S, E] {
	m.transitions[transitionKey[S, E]{from: from, event: event}] = to
	return m
}

// Trigger 触发事件。若当前状态没有注册该事件的流转则返回 ErrTransitionNotAllowed。
func (m *Machine[S, E]) Trigger(ctx context.Context, event E) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	to, ok := m.transitions[transitionKey[S, E]{from: m.current, event: event}]
	if !ok {
		return fmt.Errorf("%w: state %v does not accept event %v", ErrTransitionNotAllowed, m.current, event)
	}
	m.current = to
	return nil
}

// Current 返回当前状态
func (m *Machine[S, E]) Current() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Can 判断当前状态是否允许触发该事件
func (m *Machine[S, E]) Can(event E) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.transitions[transitionKey[S, E]{from: m.current, event: event}]
	return ok
}
