package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/oiltrading/pkg/idgen"
)

// TradeGroupStatus 贸易组状态
type TradeGroupStatus string

const (
	TradeGroupStatusOpen   TradeGroupStatus = "OPEN"   // 进行中
	TradeGroupStatusClosed TradeGroupStatus = "CLOSED" // 已关闭
)

// TradeGroupLeg 贸易组成员：一张合同在组内的金额与数量贡献
type TradeGroupLeg struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	TradeGroupNo string          `gorm:"column:trade_group_no;type:varchar(32);index;not null" json:"trade_group_no"`
	ContractKind ContractKind    `gorm:"column:contract_kind;type:varchar(16);not null" json:"contract_kind"`
	ContractID   string          `gorm:"column:contract_id;type:varchar(32);index;not null" json:"contract_id"`
	QuantityMT   decimal.Decimal `gorm:"column:quantity_mt;type:decimal(20,4)" json:"quantity_mt"`
	Amount       decimal.Decimal `gorm:"column:amount;type:decimal(20,4)" json:"amount"`
	Currency     string          `gorm:"column:currency;type:varchar(3)" json:"currency"`
}

// TableName 表名
func (TradeGroupLeg) TableName() string {
	return "trade_group_legs"
}

// TradeGroup 贸易组聚合根：一组相互关联的采购/销售合同，
// 用于汇总组内的数量与损益。
type TradeGroup struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TradeGroupNo string           `gorm:"column:trade_group_no;type:varchar(32);uniqueIndex;not null" json:"trade_group_no"`
	Name         string           `gorm:"column:name;type:varchar(128)" json:"name"`
	ProductCode  string           `gorm:"column:product_code;type:varchar(32);index" json:"product_code"`
	Status       TradeGroupStatus `gorm:"column:status;type:varchar(16);index;not null" json:"status"`
	ClosedAt     *time.Time       `gorm:"column:closed_at" json:"closed_at"`

	Legs []TradeGroupLeg `gorm:"foreignKey:TradeGroupNo;references:TradeGroupNo" json:"legs"`

	CreatedBy string `gorm:"column:created_by;type:varchar(64)" json:"created_by"`
	Version   int64  `gorm:"column:version;not null;default:0" json:"version"`
}

// TableName 表名
func (TradeGroup) TableName() string {
	return "trade_groups"
}

// NewTradeGroup 创建贸易组
func NewTradeGroup(name, productCode, createdBy string) *TradeGroup {
	return &TradeGroup{
		TradeGroupNo: fmt.Sprintf("TGP%d", idgen.GenID()),
		Name:         name,
		ProductCode:  productCode,
		Status:       TradeGroupStatusOpen,
		CreatedBy:    createdBy,
		Legs:         []TradeGroupLeg{},
	}
}

// AddLeg 添加成员合同。关闭后的组不允许再添加；同一合同不允许重复添加。
func (g *TradeGroup) AddLeg(ref ContractRef, quantityMT, amount decimal.Decimal, currency string) error {
	if g.Status == TradeGroupStatusClosed {
		return fmt.Errorf("%w: trade group %s is closed", ErrInvariantViolation, g.TradeGroupNo)
	}
	if !ref.Valid() {
		return fmt.Errorf("%w: invalid contract reference %s", ErrInvariantViolation, ref)
	}
	for i := range g.Legs {
		if g.Legs[i].ContractKind == ref.Kind && g.Legs[i].ContractID == ref.ID {
			return fmt.Errorf("%w: contract %s is already in group", ErrInvariantViolation, ref)
		}
	}
	g.Legs = append(g.Legs, TradeGroupLeg{
		TradeGroupNo: g.TradeGroupNo,
		ContractKind: ref.Kind,
		ContractID:   ref.ID,
		QuantityMT:   quantityMT,
		Amount:       amount,
		Currency:     currency,
	})
	return nil
}

// RemoveLeg 移除成员合同
func (g *TradeGroup) RemoveLeg(ref ContractRef) error {
	if g.Status == TradeGroupStatusClosed {
		return fmt.Errorf("%w: trade group %s is closed", ErrInvariantViolation, g.TradeGroupNo)
	}
	for i := range g.Legs {
		if g.Legs[i].ContractKind == ref.Kind && g.Legs[i].ContractID == ref.ID {
			g.Legs = append(g.Legs[:i], g.Legs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: contract %s", ErrNotFound, ref)
}

// Close 关闭贸易组，之后成员不可变更
func (g *TradeGroup) Close() error {
	if g.Status == TradeGroupStatusClosed {
		return fmt.Errorf("%w: trade group %s is already closed", ErrInvariantViolation, g.TradeGroupNo)
	}
	now := time.Now()
	g.Status = TradeGroupStatusClosed
	g.ClosedAt = &now
	return nil
}

// PurchaseAmount 组内采购合同金额合计
func (g *TradeGroup) PurchaseAmount() decimal.Decimal {
	return g.sumAmount(ContractKindPurchase)
}

// SalesAmount 组内销售合同金额合计
func (g *TradeGroup) SalesAmount() decimal.Decimal {
	return g.sumAmount(ContractKindSales)
}

// GrossPnL 组内毛损益：销售合计减采购合计
func (g *TradeGroup) GrossPnL() decimal.Decimal {
	return g.SalesAmount().Sub(g.PurchaseAmount())
}

// PurchaseQuantityMT 组内采购数量合计
func (g *TradeGroup) PurchaseQuantityMT() decimal.Decimal {
	return g.sumQuantity(ContractKindPurchase)
}

// SalesQuantityMT 组内销售数量合计
func (g *TradeGroup) SalesQuantityMT() decimal.Decimal {
	return g.sumQuantity(ContractKindSales)
}

// NetQuantityMT 组内净敞口数量：采购减销售
func (g *TradeGroup) NetQuantityMT() decimal.Decimal {
	return g.PurchaseQuantityMT().Sub(g.SalesQuantityMT())
}

// UnrealizedPnL 按市场快照价对净敞口估值。净多头（采购未被销售覆盖）
// 按采购均价与市场价的价差计算，净空头反之；无敞口时为零。
func (g *TradeGroup) UnrealizedPnL(marketPrice decimal.Decimal) decimal.Decimal {
	net := g.NetQuantityMT()
	if net.IsZero() {
		return decimal.Zero
	}
	if net.IsPositive() {
		return net.Mul(marketPrice.Sub(g.averagePrice(ContractKindPurchase)))
	}
	return net.Neg().Mul(g.averagePrice(ContractKindSales).Sub(marketPrice))
}

func (g *TradeGroup) averagePrice(kind ContractKind) decimal.Decimal {
	qty := g.sumQuantity(kind)
	if qty.IsZero() {
		return decimal.Zero
	}
	return g.sumAmount(kind).Div(qty)
}

func (g *TradeGroup) sumAmount(kind ContractKind) decimal.Decimal {
	sum := decimal.Zero
	for i := range g.Legs {
		if g.Legs[i].ContractKind == kind {
			sum = sum.Add(g.Legs[i].Amount)
		}
	}
	return sum
}

func (g *TradeGroup) sumQuantity(kind ContractKind) decimal.Decimal {
	sum := decimal.Zero
	for i := range g.Legs {
		if g.Legs[i].ContractKind == kind {
			sum = sum.Add(g.Legs[i].QuantityMT)
		}
	}
	return sum
}
