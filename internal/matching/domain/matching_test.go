package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedgerWithContracts(t *testing.T) *MatchingLedger {
	t.Helper()
	l := NewMatchingLedger("CRUDE-DUBAI", "ops")
	require.NoError(t, l.RegisterContract(ContractRef{Kind: ContractKindPurchase, ID: "PC-1"}, decimal.NewFromInt(1000)))
	require.NoError(t, l.RegisterContract(ContractRef{Kind: ContractKindSales, ID: "SC-1"}, decimal.NewFromInt(800)))
	return l
}

func TestRegisterContractValidation(t *testing.T) {
	l := NewMatchingLedger("CRUDE-DUBAI", "ops")

	err := l.RegisterContract(ContractRef{Kind: "SWAP", ID: "X-1"}, decimal.NewFromInt(100))
	require.ErrorIs(t, err, ErrInvariantViolation)

	err = l.RegisterContract(ContractRef{Kind: ContractKindPurchase, ID: "PC-1"}, decimal.Zero)
	require.ErrorIs(t, err, ErrInvariantViolation)

	require.NoError(t, l.RegisterContract(ContractRef{Kind: ContractKindPurchase, ID: "PC-1"}, decimal.NewFromInt(100)))
	err = l.RegisterContract(ContractRef{Kind: ContractKindPurchase, ID: "PC-1"}, decimal.NewFromInt(200))
	require.ErrorIs(t, err, ErrInvariantViolation)

	// 同编号不同方向视为不同合同
	require.NoError(t, l.RegisterContract(ContractRef{Kind: ContractKindSales, ID: "PC-1"}, decimal.NewFromInt(100)))
}

func TestCreateMatchConsumesAvailability(t *testing.T) {
	l := newLedgerWithContracts(t)

	m, err := l.CreateMatch("PC-1", "SC-1", decimal.NewFromInt(500), "ops")
	require.NoError(t, err)
	assert.Equal(t, MatchStatusActive, m.Status)

	avail, err := l.AvailableQuantity(ContractRef{Kind: ContractKindPurchase, ID: "PC-1"})
	require.NoError(t, err)
	assert.True(t, avail.Equal(decimal.NewFromInt(500)))

	avail, err = l.AvailableQuantity(ContractRef{Kind: ContractKindSales, ID: "SC-1"})
	require.NoError(t, err)
	assert.True(t, avail.Equal(decimal.NewFromInt(300)))
}

func TestCreateMatchRejectsOverAllocation(t *testing.T) {
	l := newLedgerWithContracts(t)

	// 销售侧只有 800 可用
	_, err := l.CreateMatch("PC-1", "SC-1", decimal.NewFromInt(900), "ops")
	require.ErrorIs(t, err, ErrInvariantViolation)

	_, err = l.CreateMatch("PC-1", "SC-1", decimal.Zero, "ops")
	require.ErrorIs(t, err, ErrInvariantViolation)

	_, err = l.CreateMatch("PC-404", "SC-1", decimal.NewFromInt(10), "ops")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReleaseMatchRestoresAvailability(t *testing.T) {
	l := newLedgerWithContracts(t)
	m, err := l.CreateMatch("PC-1", "SC-1", decimal.NewFromInt(800), "ops")
	require.NoError(t, err)

	// 销售侧已满额
	_, err = l.CreateMatch("PC-1", "SC-1", decimal.NewFromInt(1), "ops")
	require.ErrorIs(t, err, ErrInvariantViolation)

	require.NoError(t, l.ReleaseMatch(m.MatchNo, "nomination cancelled"))

	avail, err := l.AvailableQuantity(ContractRef{Kind: ContractKindSales, ID: "SC-1"})
	require.NoError(t, err)
	assert.True(t, avail.Equal(decimal.NewFromInt(800)))

	// 重复解除幂等
	require.NoError(t, l.ReleaseMatch(m.MatchNo, "again"))
	assert.Equal(t, "nomination cancelled", m.ReleaseReason)

	require.ErrorIs(t, l.ReleaseMatch("MAT-404", "x"), ErrNotFound)
}

func TestAdjustDownClampsAvailabilityAtZero(t *testing.T) {
	l := newLedgerWithContracts(t)
	_, err := l.CreateMatch("PC-1", "SC-1", decimal.NewFromInt(700), "ops")
	require.NoError(t, err)

	// 总量调减到已匹配量以下：既有匹配不失效，余量截断到零
	ref := ContractRef{Kind: ContractKindPurchase, ID: "PC-1"}
	require.NoError(t, l.AdjustContractQuantity(ref, decimal.NewFromInt(500)))

	avail, err := l.AvailableQuantity(ref)
	require.NoError(t, err)
	assert.True(t, avail.IsZero())

	pos, err := l.Position(ref)
	require.NoError(t, err)
	assert.True(t, pos.TotalQuantityMT.Equal(decimal.NewFromInt(500)))
	assert.True(t, pos.MatchedMT.Equal(decimal.NewFromInt(700)))
	assert.True(t, pos.AvailableMT.IsZero())

	// 匹配仍然生效
	assert.Equal(t, MatchStatusActive, l.Matches[0].Status)
}

func TestAssignToGroup(t *testing.T) {
	l := newLedgerWithContracts(t)
	m, err := l.CreateMatch("PC-1", "SC-1", decimal.NewFromInt(100), "ops")
	require.NoError(t, err)

	require.NoError(t, l.AssignToGroup(m.MatchNo, "TGP-1"))
	assert.Equal(t, "TGP-1", m.TradeGroupNo)

	l.ReleaseMatch(m.MatchNo, "done")
	err = l.AssignToGroup(m.MatchNo, "TGP-2")
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestTradeGroupPnL(t *testing.T) {
	g := NewTradeGroup("Q2 dubai arb", "CRUDE-DUBAI", "ops")

	require.NoError(t, g.AddLeg(ContractRef{Kind: ContractKindPurchase, ID: "PC-1"}, decimal.NewFromInt(1000), decimal.NewFromInt(500000), "USD"))
	require.NoError(t, g.AddLeg(ContractRef{Kind: ContractKindSales, ID: "SC-1"}, decimal.NewFromInt(600), decimal.NewFromInt(330000), "USD"))
	require.NoError(t, g.AddLeg(ContractRef{Kind: ContractKindSales, ID: "SC-2"}, decimal.NewFromInt(400), decimal.NewFromInt(224000), "USD"))

	assert.True(t, g.PurchaseAmount().Equal(decimal.NewFromInt(500000)))
	assert.True(t, g.SalesAmount().Equal(decimal.NewFromInt(554000)))
	assert.True(t, g.GrossPnL().Equal(decimal.NewFromInt(54000)))
	assert.True(t, g.NetQuantityMT().IsZero())
	assert.True(t, g.UnrealizedPnL(decimal.NewFromInt(600)).IsZero())
}

func TestTradeGroupUnrealizedPnL(t *testing.T) {
	g := NewTradeGroup("open leg", "CRUDE-DUBAI", "ops")

	// 采购 1000 MT 均价 500，仅售出 600 MT，剩 400 MT 净多头
	require.NoError(t, g.AddLeg(ContractRef{Kind: ContractKindPurchase, ID: "PC-1"}, decimal.NewFromInt(1000), decimal.NewFromInt(500000), "USD"))
	require.NoError(t, g.AddLeg(ContractRef{Kind: ContractKindSales, ID: "SC-1"}, decimal.NewFromInt(600), decimal.NewFromInt(330000), "USD"))

	// 市场价 520：400 × (520 - 500) = 8000
	assert.True(t, g.UnrealizedPnL(decimal.NewFromInt(520)).Equal(decimal.NewFromInt(8000)))
	// 市场价 480：400 × (480 - 500) = -8000
	assert.True(t, g.UnrealizedPnL(decimal.NewFromInt(480)).Equal(decimal.NewFromInt(-8000)))

	// 再售出 700 MT 均价 550，转为 300 MT 净空头，按销售均价 550 估值
	require.NoError(t, g.AddLeg(ContractRef{Kind: ContractKindSales, ID: "SC-2"}, decimal.NewFromInt(700), decimal.NewFromInt(385000), "USD"))
	// 市场价 530：300 × (550 - 530) = 6000
	assert.True(t, g.NetQuantityMT().Equal(decimal.NewFromInt(-300)))
	assert.True(t, g.UnrealizedPnL(decimal.NewFromInt(530)).Equal(decimal.NewFromInt(6000)))
}

func TestTradeGroupMembershipRules(t *testing.T) {
	g := NewTradeGroup("g", "CRUDE-DUBAI", "ops")
	ref := ContractRef{Kind: ContractKindPurchase, ID: "PC-1"}

	require.NoError(t, g.AddLeg(ref, decimal.NewFromInt(100), decimal.NewFromInt(50000), "USD"))
	err := g.AddLeg(ref, decimal.NewFromInt(100), decimal.NewFromInt(50000), "USD")
	require.ErrorIs(t, err, ErrInvariantViolation)

	err = g.AddLeg(ContractRef{Kind: "", ID: ""}, decimal.Zero, decimal.Zero, "USD")
	require.ErrorIs(t, err, ErrInvariantViolation)

	require.NoError(t, g.RemoveLeg(ref))
	require.ErrorIs(t, g.RemoveLeg(ref), ErrNotFound)
}

func TestTradeGroupCloseFreezesLegs(t *testing.T) {
	g := NewTradeGroup("g", "CRUDE-DUBAI", "ops")
	ref := ContractRef{Kind: ContractKindPurchase, ID: "PC-1"}
	require.NoError(t, g.AddLeg(ref, decimal.NewFromInt(100), decimal.NewFromInt(50000), "USD"))

	require.NoError(t, g.Close())
	assert.Equal(t, TradeGroupStatusClosed, g.Status)
	require.NotNil(t, g.ClosedAt)

	err := g.AddLeg(ContractRef{Kind: ContractKindSales, ID: "SC-1"}, decimal.NewFromInt(100), decimal.NewFromInt(60000), "USD")
	require.ErrorIs(t, err, ErrInvariantViolation)
	require.ErrorIs(t, g.RemoveLeg(ref), ErrInvariantViolation)
	require.ErrorIs(t, g.Close(), ErrInvariantViolation)
}
