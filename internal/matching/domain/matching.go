package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/oiltrading/pkg/idgen"
)

// ContractKind 合同方向
type ContractKind string

const (
	ContractKindPurchase ContractKind = "PURCHASE" // 采购合同
	ContractKindSales    ContractKind = "SALES"    // 销售合同
)

// ContractRef 合同引用，方向加编号唯一定位一张合同
type ContractRef struct {
	Kind ContractKind `gorm:"-" json:"kind"`
	ID   string       `gorm:"-" json:"id"`
}

// String 形如 PURCHASE/PC-1001
func (r ContractRef) String() string {
	return fmt.Sprintf("%s/%s", r.Kind, r.ID)
}

// Valid 引用是否完整
func (r ContractRef) Valid() bool {
	return (r.Kind == ContractKindPurchase || r.Kind == ContractKindSales) && r.ID != ""
}

// MatchStatus 匹配状态
type MatchStatus string

const (
	MatchStatusActive   MatchStatus = "ACTIVE"   // 生效
	MatchStatusReleased MatchStatus = "RELEASED" // 已解除
)

// ContractMatch 一次采购与销售合同之间的数量匹配
type ContractMatch struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	MatchNo            string          `gorm:"column:match_no;type:varchar(32);uniqueIndex;not null" json:"match_no"`
	PurchaseContractID string          `gorm:"column:purchase_contract_id;type:varchar(32);index;not null" json:"purchase_contract_id"`
	SalesContractID    string          `gorm:"column:sales_contract_id;type:varchar(32);index;not null" json:"sales_contract_id"`
	QuantityMT         decimal.Decimal `gorm:"column:quantity_mt;type:decimal(20,4);not null" json:"quantity_mt"`
	TradeGroupNo       string          `gorm:"column:trade_group_no;type:varchar(32);index" json:"trade_group_no"`
	Status             MatchStatus     `gorm:"column:status;type:varchar(16);index;not null" json:"status"`
	ReleasedAt         *time.Time      `gorm:"column:released_at" json:"released_at"`
	ReleaseReason      string          `gorm:"column:release_reason;type:varchar(255)" json:"release_reason"`
	CreatedBy          string          `gorm:"column:created_by;type:varchar(64)" json:"created_by"`
}

// TableName 表名
func (ContractMatch) TableName() string {
	return "contract_matches"
}

// Release 解除匹配。重复解除是幂等的。
func (m *ContractMatch) Release(reason string) {
	if m.Status == MatchStatusReleased {
		return
	}
	now := time.Now()
	m.Status = MatchStatusReleased
	m.ReleasedAt = &now
	m.ReleaseReason = reason
}

// ContractPosition 匹配台账中一张合同的头寸视图
type ContractPosition struct {
	Ref             ContractRef
	TotalQuantityMT decimal.Decimal
	MatchedMT       decimal.Decimal
	AvailableMT     decimal.Decimal
}

// MatchingLedger 合同匹配台账聚合根。
// 维护一组合同的总量与已匹配量，保证可匹配余量永不为负。
// 匹配在创建时校验余量；合同总量事后调减不会追溯性地使既有匹配失效，
// 余量计算结果为负时截断到零。
type MatchingLedger struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	LedgerNo    string `gorm:"column:ledger_no;type:varchar(32);uniqueIndex;not null" json:"ledger_no"`
	ProductCode string `gorm:"column:product_code;type:varchar(32);index" json:"product_code"`

	Contracts []LedgerContract `gorm:"foreignKey:LedgerNo;references:LedgerNo" json:"contracts"`
	Matches   []ContractMatch  `gorm:"-" json:"matches"`

	CreatedBy string `gorm:"column:created_by;type:varchar(64)" json:"created_by"`
	Version   int64  `gorm:"column:version;not null;default:0" json:"version"`
}

// TableName 表名
func (MatchingLedger) TableName() string {
	return "matching_ledgers"
}

// LedgerContract 登记在台账中的合同及其总量
type LedgerContract struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	LedgerNo        string          `gorm:"column:ledger_no;type:varchar(32);index;not null" json:"ledger_no"`
	ContractKind    ContractKind    `gorm:"column:contract_kind;type:varchar(16);not null" json:"contract_kind"`
	ContractID      string          `gorm:"column:contract_id;type:varchar(32);index;not null" json:"contract_id"`
	TotalQuantityMT decimal.Decimal `gorm:"column:total_quantity_mt;type:decimal(20,4);not null" json:"total_quantity_mt"`
}

// TableName 表名
func (LedgerContract) TableName() string {
	return "matching_ledger_contracts"
}

// Ref 合同引用
func (c LedgerContract) Ref() ContractRef {
	return ContractRef{Kind: c.ContractKind, ID: c.ContractID}
}

// NewMatchingLedger 创建匹配台账
func NewMatchingLedger(productCode, createdBy string) *MatchingLedger {
	return &MatchingLedger{
		LedgerNo:    fmt.Sprintf("MLG%d", idgen.GenID()),
		ProductCode: productCode,
		CreatedBy:   createdBy,
		Contracts:   []LedgerContract{},
		Matches:     []ContractMatch{},
	}
}

// RegisterContract 登记合同。总量必须为正；同一合同只能登记一次。
func (l *MatchingLedger) RegisterContract(ref ContractRef, totalQuantityMT decimal.Decimal) error {
	if !ref.Valid() {
		return fmt.Errorf("%w: invalid contract reference %s", ErrInvariantViolation, ref)
	}
	if !totalQuantityMT.IsPositive() {
		return fmt.Errorf("%w: contract quantity must be positive", ErrInvariantViolation)
	}
	if l.findContract(ref) != nil {
		return fmt.Errorf("%w: contract %s is already registered", ErrInvariantViolation, ref)
	}
	l.Contracts = append(l.Contracts, LedgerContract{
		LedgerNo:        l.LedgerNo,
		ContractKind:    ref.Kind,
		ContractID:      ref.ID,
		TotalQuantityMT: totalQuantityMT,
	})
	return nil
}

// AdjustContractQuantity 调整合同总量。调减不追溯校验既有匹配，
// 余量由 AvailableQuantity 截断到零。
func (l *MatchingLedger) AdjustContractQuantity(ref ContractRef, totalQuantityMT decimal.Decimal) error {
	if !totalQuantityMT.IsPositive() {
		return fmt.Errorf("%w: contract quantity must be positive", ErrInvariantViolation)
	}
	c := l.findContract(ref)
	if c == nil {
		return fmt.Errorf("%w: contract %s", ErrNotFound, ref)
	}
	c.TotalQuantityMT = totalQuantityMT
	return nil
}

func (l *MatchingLedger) findContract(ref ContractRef) *LedgerContract {
	for i := range l.Contracts {
		if l.Contracts[i].ContractKind == ref.Kind && l.Contracts[i].ContractID == ref.ID {
			return &l.Contracts[i]
		}
	}
	return nil
}

// MatchedQuantity 合同已被生效匹配占用的数量
func (l *MatchingLedger) MatchedQuantity(ref ContractRef) decimal.Decimal {
	matched := decimal.Zero
	for i := range l.Matches {
		m := &l.Matches[i]
		if m.Status != MatchStatusActive {
			continue
		}
		switch {
		case ref.Kind == ContractKindPurchase && m.PurchaseContractID == ref.ID:
			matched = matched.Add(m.QuantityMT)
		case ref.Kind == ContractKindSales && m.SalesContractID == ref.ID:
			matched = matched.Add(m.QuantityMT)
		}
	}
	return matched
}

// AvailableQuantity 合同可匹配余量，不会为负
func (l *MatchingLedger) AvailableQuantity(ref ContractRef) (decimal.Decimal, error) {
	c := l.findContract(ref)
	if c == nil {
		return decimal.Zero, fmt.Errorf("%w: contract %s", ErrNotFound, ref)
	}
	available := c.TotalQuantityMT.Sub(l.MatchedQuantity(ref))
	if available.IsNegative() {
		return decimal.Zero, nil
	}
	return available, nil
}

// Position 合同头寸视图
func (l *MatchingLedger) Position(ref ContractRef) (*ContractPosition, error) {
	c := l.findContract(ref)
	if c == nil {
		return nil, fmt.Errorf("%w: contract %s", ErrNotFound, ref)
	}
	matched := l.MatchedQuantity(ref)
	available := c.TotalQuantityMT.Sub(matched)
	if available.IsNegative() {
		available = decimal.Zero
	}
	return &ContractPosition{
		Ref:             ref,
		TotalQuantityMT: c.TotalQuantityMT,
		MatchedMT:       matched,
		AvailableMT:     available,
	}, nil
}

// CreateMatch 在采购与销售合同之间建立数量匹配。
// 数量必须为正且不超过双方当前余量；校验只在创建时发生。
func (l *MatchingLedger) CreateMatch(purchaseID, salesID string, quantityMT decimal.Decimal, createdBy string) (*ContractMatch, error) {
	if !quantityMT.IsPositive() {
		return nil, fmt.Errorf("%w: match quantity must be positive", ErrInvariantViolation)
	}
	purchaseRef := ContractRef{Kind: ContractKindPurchase, ID: purchaseID}
	salesRef := ContractRef{Kind: ContractKindSales, ID: salesID}

	purchaseAvail, err := l.AvailableQuantity(purchaseRef)
	if err != nil {
		return nil, err
	}
	salesAvail, err := l.AvailableQuantity(salesRef)
	if err != nil {
		return nil, err
	}
	if quantityMT.GreaterThan(purchaseAvail) {
		return nil, fmt.Errorf("%w: match quantity %s exceeds purchase available %s",
			ErrInvariantViolation, quantityMT, purchaseAvail)
	}
	if quantityMT.GreaterThan(salesAvail) {
		return nil, fmt.Errorf("%w: match quantity %s exceeds sales available %s",
			ErrInvariantViolation, quantityMT, salesAvail)
	}

	match := ContractMatch{
		MatchNo:            fmt.Sprintf("MAT%d", idgen.GenID()),
		PurchaseContractID: purchaseID,
		SalesContractID:    salesID,
		QuantityMT:         quantityMT,
		Status:             MatchStatusActive,
		CreatedBy:          createdBy,
	}
	l.Matches = append(l.Matches, match)
	return &l.Matches[len(l.Matches)-1], nil
}

// ReleaseMatch 解除匹配，释放双方余量
func (l *MatchingLedger) ReleaseMatch(matchNo, reason string) error {
	for i := range l.Matches {
		if l.Matches[i].MatchNo == matchNo {
			l.Matches[i].Release(reason)
			return nil
		}
	}
	return fmt.Errorf("%w: match %s", ErrNotFound, matchNo)
}

// AssignToGroup 把匹配归入贸易组
func (l *MatchingLedger) AssignToGroup(matchNo, groupNo string) error {
	for i := range l.Matches {
		if l.Matches[i].MatchNo == matchNo {
			if l.Matches[i].Status != MatchStatusActive {
				return fmt.Errorf("%w: match %s is released", ErrInvariantViolation, matchNo)
			}
			l.Matches[i].TradeGroupNo = groupNo
			return nil
		}
	}
	return fmt.Errorf("%w: match %s", ErrNotFound, matchNo)
}
