package domain

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayment(t *testing.T) *Payment {
	t.Helper()
	p, err := NewPayment("STL-1", PaymentDirectionOutgoing, PaymentMethodWireTransfer, decimal.NewFromInt(1000), "USD", nil, "ops")
	require.NoError(t, err)
	require.Equal(t, PaymentStatusPending, p.Status)
	return p
}

func TestNewPaymentRejectsNonPositiveAmount(t *testing.T) {
	_, err := NewPayment("STL-1", PaymentDirectionOutgoing, PaymentMethodWireTransfer, decimal.Zero, "USD", nil, "ops")
	require.ErrorIs(t, err, ErrInvariantViolation)

	_, err = NewPayment("STL-1", PaymentDirectionOutgoing, PaymentMethodWireTransfer, decimal.NewFromInt(-5), "USD", nil, "ops")
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestPaymentHappyPath(t *testing.T) {
	ctx := context.Background()
	p := newTestPayment(t)

	require.NoError(t, p.Initiate(ctx, "MT103-777", "ops"))
	assert.Equal(t, PaymentStatusInitiated, p.Status)
	assert.Equal(t, "MT103-777", p.BankReference)

	require.NoError(t, p.Dispatch(ctx, "ops"))
	assert.Equal(t, PaymentStatusInTransit, p.Status)

	valueDate := time.Date(2026, 4, 2, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.Complete(ctx, valueDate, "ops"))
	assert.Equal(t, PaymentStatusCompleted, p.Status)
	require.NotNil(t, p.ValueDate)
	assert.True(t, p.ValueDate.Equal(valueDate))

	// 每次流转都留痕
	require.Len(t, p.History, 3)
	assert.Equal(t, PaymentStatusPending, p.History[0].FromStatus)
	assert.Equal(t, PaymentStatusInitiated, p.History[0].ToStatus)
	assert.Equal(t, PaymentStatusInTransit, p.History[2].FromStatus)
	assert.Equal(t, PaymentStatusCompleted, p.History[2].ToStatus)
}

func TestPaymentCompleteDirectlyFromInitiated(t *testing.T) {
	ctx := context.Background()
	p := newTestPayment(t)
	require.NoError(t, p.Initiate(ctx, "REF-1", "ops"))
	require.NoError(t, p.Complete(ctx, time.Now(), "ops"))
	assert.Equal(t, PaymentStatusCompleted, p.Status)
}

func TestPaymentFailRecordsNote(t *testing.T) {
	ctx := context.Background()
	p := newTestPayment(t)
	require.NoError(t, p.Initiate(ctx, "REF-1", "ops"))
	require.NoError(t, p.Fail(ctx, "beneficiary account closed", "ops"))
	assert.Equal(t, PaymentStatusFailed, p.Status)
	assert.Equal(t, "beneficiary account closed", p.FailureNote)
	assert.Equal(t, "beneficiary account closed", p.History[len(p.History)-1].Reason)
}

func TestPaymentCancelOnlyBeforeDispatch(t *testing.T) {
	ctx := context.Background()

	p := newTestPayment(t)
	require.NoError(t, p.Cancel(ctx, "duplicate instruction", "ops"))
	assert.Equal(t, PaymentStatusCancelled, p.Status)

	p = newTestPayment(t)
	require.NoError(t, p.Initiate(ctx, "REF-1", "ops"))
	require.NoError(t, p.Dispatch(ctx, "ops"))
	err := p.Cancel(ctx, "too late", "ops")
	require.ErrorIs(t, err, ErrIllegalStateTransition)
}

func TestPaymentReturnFromCompleted(t *testing.T) {
	ctx := context.Background()
	p := newTestPayment(t)
	require.NoError(t, p.Initiate(ctx, "REF-1", "ops"))
	require.NoError(t, p.Complete(ctx, time.Now(), "ops"))
	require.NoError(t, p.Return(ctx, "returned by intermediary bank", "ops"))
	assert.Equal(t, PaymentStatusReturned, p.Status)
}

func TestPaymentIllegalTransitions(t *testing.T) {
	ctx := context.Background()
	p := newTestPayment(t)

	// 未发起不能出账也不能完成
	require.ErrorIs(t, p.Dispatch(ctx, "ops"), ErrIllegalStateTransition)
	require.ErrorIs(t, p.Complete(ctx, time.Now(), "ops"), ErrIllegalStateTransition)
	require.ErrorIs(t, p.Return(ctx, "nope", "ops"), ErrIllegalStateTransition)

	// 失败路径不是循环：失败后不允许再发起
	require.NoError(t, p.Initiate(ctx, "REF-1", "ops"))
	require.NoError(t, p.Fail(ctx, "rejected", "ops"))
	require.ErrorIs(t, p.Initiate(ctx, "REF-2", "ops"), ErrIllegalStateTransition)
}

func TestPaymentIsProcessable(t *testing.T) {
	ctx := context.Background()

	// 电汇缺银行账户时不可发起
	p := newTestPayment(t)
	assert.False(t, p.IsProcessable())

	require.NoError(t, p.SetBankDetails("HSBC SG", "111-222", "DBS SG", "333-444", "ops"))
	assert.True(t, p.IsProcessable())

	// 发起后不再视为待处理
	require.NoError(t, p.Initiate(ctx, "REF-1", "ops"))
	assert.False(t, p.IsProcessable())

	// 发起后也不允许再补录银行账户
	err := p.SetBankDetails("HSBC SG", "111-222", "DBS SG", "333-444", "ops")
	require.ErrorIs(t, err, ErrIllegalStateTransition)

	// 非电汇方式不要求银行账户
	open, err := NewPayment("STL-1", PaymentDirectionIncoming, PaymentMethodOpenAccount, decimal.NewFromInt(100), "USD", nil, "ops")
	require.NoError(t, err)
	assert.True(t, open.IsProcessable())
}

func TestPaymentIsOverdue(t *testing.T) {
	p, err := NewPayment("STL-1", PaymentDirectionIncoming, PaymentMethodOpenAccount, decimal.NewFromInt(100), "USD", nil, "ops")
	require.NoError(t, err)
	p.CreatedAt = time.Now().AddDate(0, 0, -10)

	// 创建 10 天，5 天宽限已过，30 天未过
	assert.True(t, p.IsOverdue(5))
	assert.False(t, p.IsOverdue(30))

	// 已完成不算逾期
	require.NoError(t, p.Initiate(context.Background(), "REF-1", "ops"))
	require.NoError(t, p.Complete(context.Background(), time.Now(), "ops"))
	assert.False(t, p.IsOverdue(5))

	// 已取消不算逾期
	cancelled, err := NewPayment("STL-1", PaymentDirectionIncoming, PaymentMethodOpenAccount, decimal.NewFromInt(100), "USD", nil, "ops")
	require.NoError(t, err)
	cancelled.CreatedAt = time.Now().AddDate(0, 0, -10)
	require.NoError(t, cancelled.Cancel(context.Background(), "void", "ops"))
	assert.False(t, cancelled.IsOverdue(5))
}
