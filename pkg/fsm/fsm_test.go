package fsm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMachineTransitions(t *testing.T) {
	ctx := context.Background()
	m := NewMachine[string, string]("DRAFT").
		AddTransition("DRAFT", "SUBMIT", "SUBMITTED").
		AddTransition("SUBMITTED", "APPROVE", "APPROVED")

	assert.Equal(t, "DRAFT", m.Current())
	assert.True(t, m.Can("SUBMIT"))
	assert.False(t, m.Can("APPROVE"))

	require.NoError(t, m.Trigger(ctx, "SUBMIT"))
	assert.Equal(t, "SUBMITTED", m.Current())

	err := m.Trigger(ctx, "SUBMIT")
	require.ErrorIs(t, err, ErrTransitionNotAllowed)
	assert.Equal(t, "SUBMITTED", m.Current(), "failed trigger must not change state")

	require.NoError(t, m.Trigger(ctx, "APPROVE"))
	assert.Equal(t, "APPROVED", m.Current())
}

func TestMachineRespectsContext(t *testing.T) {
	m := NewMachine[string, string]("DRAFT").
		AddTransition("DRAFT", "SUBMIT", "SUBMITTED")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Trigger(ctx, "SUBMIT")
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, "DRAFT", m.Current())
}
