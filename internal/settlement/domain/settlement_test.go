package domain

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSettlement(t *testing.T) *Settlement {
	t.Helper()
	s := NewSettlement("PC-1001", ContractSidePurchase, DocumentTypeFinalInvoice, "USD", "trader")
	require.NotEmpty(t, s.SettlementNo)
	require.Equal(t, SettlementStatusDraft, s.Status)
	return s
}

func TestSettlementAmountRollup(t *testing.T) {
	s := newTestSettlement(t)

	err := s.UpdateActualQuantities(decimal.NewFromInt(1000), decimal.NewFromInt(7330), "trader")
	require.NoError(t, err)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	err = s.UpdateBenchmarkPrice("PLATTS-DUBAI", decimal.NewFromInt(500), "USD", "DUBAI + 2.50", start, end, "trader")
	require.NoError(t, err)

	_, err = s.AddCharge(ChargeTypeDemurrage, "卸港滞期", decimal.NewFromInt(2000), "USD", nil, "LAYTIME-22", "ops")
	require.NoError(t, err)

	assert.True(t, s.CargoValue.Equal(decimal.NewFromInt(500000)), "cargo value = %s", s.CargoValue)
	assert.True(t, s.TotalCharges.Equal(decimal.NewFromInt(2000)), "total charges = %s", s.TotalCharges)
	assert.True(t, s.TotalSettlementAmount.Equal(decimal.NewFromInt(502000)), "total = %s", s.TotalSettlementAmount)
}

func TestRecalculateAmountsIsIdempotent(t *testing.T) {
	s := newTestSettlement(t)
	require.NoError(t, s.UpdateActualQuantities(decimal.NewFromInt(500), decimal.Zero, "trader"))
	s.BenchmarkPrice = decimal.NewFromFloat(81.25)
	s.RecalculateAmounts()
	first := s.TotalSettlementAmount

	s.RecalculateAmounts()
	s.RecalculateAmounts()
	assert.True(t, first.Equal(s.TotalSettlementAmount))
}

func TestSetCalculationQuantitiesOverridesActual(t *testing.T) {
	s := newTestSettlement(t)
	require.NoError(t, s.UpdateActualQuantities(decimal.NewFromInt(1000), decimal.NewFromInt(7330), "trader"))
	s.BenchmarkPrice = decimal.NewFromInt(500)

	// 改按提单量计价后，计算量与实际量脱钩
	err := s.SetCalculationQuantities(decimal.NewFromInt(980), decimal.NewFromInt(7183), CalculationModeBillOfLading, "ops")
	require.NoError(t, err)
	assert.Equal(t, CalculationModeBillOfLading, s.CalculationMode)
	assert.True(t, s.CargoValue.Equal(decimal.NewFromInt(490000)), "cargo value = %s", s.CargoValue)

	// 实际量更新不再联动计算量
	require.NoError(t, s.UpdateActualQuantities(decimal.NewFromInt(1010), decimal.NewFromInt(7400), "trader"))
	assert.True(t, s.CalculationQuantityMT.Equal(decimal.NewFromInt(980)))

	err = s.SetCalculationQuantities(decimal.NewFromInt(-1), decimal.Zero, CalculationModeOutturn, "ops")
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestDespatchChargeReducesTotal(t *testing.T) {
	s := newTestSettlement(t)
	require.NoError(t, s.UpdateActualQuantities(decimal.NewFromInt(100), decimal.Zero, "trader"))
	s.BenchmarkPrice = decimal.NewFromInt(100)
	s.RecalculateAmounts()

	_, err := s.AddCharge(ChargeTypeDespatch, "速遣费", decimal.NewFromInt(500), "USD", nil, "", "ops")
	require.NoError(t, err)

	assert.True(t, s.TotalCharges.Equal(decimal.NewFromInt(-500)))
	assert.True(t, s.TotalSettlementAmount.Equal(decimal.NewFromInt(9500)))
}

func TestAddChargeRejectsNegativeAmount(t *testing.T) {
	s := newTestSettlement(t)
	_, err := s.AddCharge(ChargeTypeDemurrage, "", decimal.NewFromInt(-1), "USD", nil, "", "ops")
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestAddChargeRejectsCurrencyMismatch(t *testing.T) {
	s := newTestSettlement(t)
	_, err := s.AddCharge(ChargeTypeInspectionFee, "", decimal.NewFromInt(100), "EUR", nil, "", "ops")
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestRemoveChargeRecalculates(t *testing.T) {
	s := newTestSettlement(t)
	charge, err := s.AddCharge(ChargeTypePortCharges, "港杂费", decimal.NewFromInt(300), "USD", nil, "", "ops")
	require.NoError(t, err)
	require.True(t, s.TotalCharges.Equal(decimal.NewFromInt(300)))

	require.NoError(t, s.RemoveCharge(charge.ChargeNo, "ops"))
	assert.True(t, s.TotalCharges.IsZero())

	err = s.RemoveCharge("CHG-unknown", "ops")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBenchmarkPriceValidation(t *testing.T) {
	s := newTestSettlement(t)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	err := s.UpdateBenchmarkPrice("B1", decimal.NewFromInt(-1), "USD", "", start, end, "trader")
	require.ErrorIs(t, err, ErrInvariantViolation)

	err = s.UpdateBenchmarkPrice("B1", decimal.NewFromInt(80), "USD", "", end, start, "trader")
	require.ErrorIs(t, err, ErrInvariantViolation)

	// 跨币种且未设置汇率时拒绝
	err = s.UpdateBenchmarkPrice("B1", decimal.NewFromInt(80), "EUR", "", start, end, "trader")
	require.ErrorIs(t, err, ErrInvariantViolation)

	require.NoError(t, s.SetExchangeRate(decimal.NewFromFloat(1.08), "trader"))
	err = s.UpdateBenchmarkPrice("B1", decimal.NewFromInt(80), "EUR", "", start, end, "trader")
	require.NoError(t, err)
}

func TestCrossCurrencyBenchmarkAmount(t *testing.T) {
	s := newTestSettlement(t)
	require.NoError(t, s.UpdateActualQuantities(decimal.NewFromInt(100), decimal.Zero, "trader"))
	require.NoError(t, s.SetExchangeRate(decimal.NewFromFloat(1.1), "trader"))

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateBenchmarkPrice("B1", decimal.NewFromInt(100), "EUR", "", start, end, "trader"))

	// 100 MT × 100 EUR × 1.1 = 11000 USD
	assert.True(t, s.BenchmarkAmount.Equal(decimal.NewFromInt(11000)), "benchmark amount = %s", s.BenchmarkAmount)
}

func TestSettlementLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestSettlement(t)

	require.NoError(t, s.UpdateActualQuantities(decimal.NewFromInt(1000), decimal.Zero, "trader"))
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpdateBenchmarkPrice("B1", decimal.NewFromInt(500), "USD", "", start, end, "trader"))

	require.NoError(t, s.EnterData(ctx, "INV-2026-001", time.Now(), "trader"))
	assert.Equal(t, SettlementStatusDataEntered, s.Status)

	require.NoError(t, s.MarkCalculated(ctx, "trader"))
	require.NoError(t, s.Review(ctx, "reviewer"))
	require.NoError(t, s.Approve(ctx, "approver"))
	require.NoError(t, s.Finalize(ctx, "approver"))

	assert.Equal(t, SettlementStatusFinalized, s.Status)
	assert.True(t, s.IsFinalized)
	assert.Equal(t, "approver", s.FinalizedBy)
	assert.NotNil(t, s.FinalizedAt)
}

func TestFinalizeDirectlyFromCalculated(t *testing.T) {
	ctx := context.Background()
	s := newTestSettlement(t)
	require.NoError(t, s.UpdateActualQuantities(decimal.NewFromInt(10), decimal.Zero, "trader"))
	s.BenchmarkPrice = decimal.NewFromInt(50)
	s.RecalculateAmounts()

	require.NoError(t, s.EnterData(ctx, "INV-1", time.Now(), "trader"))
	require.NoError(t, s.MarkCalculated(ctx, "trader"))
	require.NoError(t, s.Finalize(ctx, "trader"))
	assert.True(t, s.IsFinalized)
}

func TestFinalizeFromDraftRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestSettlement(t)
	s.TotalSettlementAmount = decimal.NewFromInt(100)
	err := s.Finalize(ctx, "trader")
	require.ErrorIs(t, err, ErrIllegalStateTransition)
}

func TestFinalizeRejectsZeroTotal(t *testing.T) {
	ctx := context.Background()
	s := newTestSettlement(t)
	s.Status = SettlementStatusCalculated
	s.initFSM()
	err := s.Finalize(ctx, "trader")
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestDoubleFinalizeRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestSettlement(t)
	require.NoError(t, s.UpdateActualQuantities(decimal.NewFromInt(10), decimal.Zero, "trader"))
	s.BenchmarkPrice = decimal.NewFromInt(50)
	s.RecalculateAmounts()
	require.NoError(t, s.EnterData(ctx, "INV-1", time.Now(), "trader"))
	require.NoError(t, s.MarkCalculated(ctx, "trader"))
	require.NoError(t, s.Finalize(ctx, "trader"))

	err := s.Finalize(ctx, "trader")
	require.ErrorIs(t, err, ErrIllegalStateTransition)
}

func TestFinalizedSettlementIsImmutable(t *testing.T) {
	ctx := context.Background()
	s := newTestSettlement(t)
	require.NoError(t, s.UpdateActualQuantities(decimal.NewFromInt(10), decimal.Zero, "trader"))
	s.BenchmarkPrice = decimal.NewFromInt(50)
	s.RecalculateAmounts()
	require.NoError(t, s.EnterData(ctx, "INV-1", time.Now(), "trader"))
	require.NoError(t, s.MarkCalculated(ctx, "trader"))
	require.NoError(t, s.Finalize(ctx, "trader"))

	_, err := s.AddCharge(ChargeTypeDemurrage, "", decimal.NewFromInt(1), "USD", nil, "", "ops")
	require.ErrorIs(t, err, ErrIllegalStateTransition)

	err = s.UpdateActualQuantities(decimal.NewFromInt(20), decimal.Zero, "trader")
	require.ErrorIs(t, err, ErrIllegalStateTransition)

	err = s.SetAdjustment(decimal.NewFromInt(5), "trader")
	require.ErrorIs(t, err, ErrIllegalStateTransition)

	err = s.Cancel(ctx, "too late", "trader")
	require.ErrorIs(t, err, ErrIllegalStateTransition)
}

func TestCancelFromAnyNonTerminalState(t *testing.T) {
	ctx := context.Background()

	s := newTestSettlement(t)
	require.NoError(t, s.Cancel(ctx, "duplicate entry", "trader"))
	assert.Equal(t, SettlementStatusCancelled, s.Status)
	assert.Equal(t, "duplicate entry", s.CancelReason)

	// 已取消后不允许再流转
	err := s.EnterData(ctx, "INV-1", time.Now(), "trader")
	require.ErrorIs(t, err, ErrIllegalStateTransition)
}

func TestIsFullyPaid(t *testing.T) {
	s := newTestSettlement(t)
	s.TotalSettlementAmount = decimal.NewFromInt(1000)

	p1, err := NewPayment(s.SettlementNo, PaymentDirectionOutgoing, PaymentMethodWireTransfer, decimal.NewFromInt(600), "USD", nil, "ops")
	require.NoError(t, err)
	p2, err := NewPayment(s.SettlementNo, PaymentDirectionOutgoing, PaymentMethodWireTransfer, decimal.NewFromInt(400), "USD", nil, "ops")
	require.NoError(t, err)

	assert.False(t, s.IsFullyPaid([]*Payment{p1, p2}), "pending payments do not count")

	p1.Status = PaymentStatusCompleted
	assert.False(t, s.IsFullyPaid([]*Payment{p1, p2}))
	assert.True(t, s.OutstandingAmount([]*Payment{p1, p2}).Equal(decimal.NewFromInt(400)))

	p2.Status = PaymentStatusCompleted
	assert.True(t, s.IsFullyPaid([]*Payment{p1, p2}))
	assert.True(t, s.OutstandingAmount([]*Payment{p1, p2}).IsZero())
}
