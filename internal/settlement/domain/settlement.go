// Package domain 包含货物结算服务的领域模型、仓储接口和领域服务。
// 结算单是聚合根：费用台账、金额计算和状态机都只能通过聚合方法变更。
package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/oiltrading/pkg/fsm"
	"github.com/wyfcoding/oiltrading/pkg/idgen"
)

// SettlementStatus 结算单状态
type SettlementStatus string

const (
	SettlementStatusDraft       SettlementStatus = "DRAFT"        // 草稿
	SettlementStatusDataEntered SettlementStatus = "DATA_ENTERED" // 数据已录入
	SettlementStatusCalculated  SettlementStatus = "CALCULATED"   // 已计算
	SettlementStatusReviewed    SettlementStatus = "REVIEWED"     // 已复核
	SettlementStatusApproved    SettlementStatus = "APPROVED"     // 已审批
	SettlementStatusFinalized   SettlementStatus = "FINALIZED"    // 已定稿（终态）
	SettlementStatusCancelled   SettlementStatus = "CANCELLED"    // 已取消（终态）
)

// ContractSide 合同方向
type ContractSide string

const (
	ContractSidePurchase ContractSide = "PURCHASE" // 采购
	ContractSideSales    ContractSide = "SALES"    // 销售
)

// DocumentType 结算单据类型
type DocumentType string

const (
	DocumentTypeProvisionalInvoice DocumentType = "PROVISIONAL_INVOICE" // 暂定发票
	DocumentTypeFinalInvoice       DocumentType = "FINAL_INVOICE"       // 终结发票
	DocumentTypeDebitNote          DocumentType = "DEBIT_NOTE"          // 借项通知
	DocumentTypeCreditNote         DocumentType = "CREDIT_NOTE"         // 贷项通知
)

// CalculationMode 计算量取值策略
type CalculationMode string

const (
	CalculationModeActual       CalculationMode = "ACTUAL"         // 计算量取实际量
	CalculationModeBillOfLading CalculationMode = "BILL_OF_LADING" // 计算量取提单量
	CalculationModeOutturn      CalculationMode = "OUTTURN"        // 计算量取到岸量
)

// AuditInfo 审计信息值对象，以组合方式嵌入各聚合根
type AuditInfo struct {
	CreatedBy string `gorm:"column:created_by;type:varchar(64)" json:"created_by"`
	UpdatedBy string `gorm:"column:updated_by;type:varchar(64)" json:"updated_by"`
}

// Settlement 结算单聚合根。
// 字段只能通过下面的业务方法变更；一旦 IsFinalized 置位，除独立审计的更正流程外不允许任何变更。
type Settlement struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	SettlementNo string    `gorm:"column:settlement_no;type:varchar(32);uniqueIndex;not null" json:"settlement_no"`

	ContractID   string       `gorm:"column:contract_id;type:varchar(32);index;not null" json:"contract_id"`
	ContractSide ContractSide `gorm:"column:contract_side;type:varchar(16);not null" json:"contract_side"`
	PartnerCode  string       `gorm:"column:partner_code;type:varchar(32);index" json:"partner_code"`
	ProductCode  string       `gorm:"column:product_code;type:varchar(32);index" json:"product_code"`

	DocumentType DocumentType `gorm:"column:document_type;type:varchar(32);not null" json:"document_type"`
	DocumentNo   string       `gorm:"column:document_no;type:varchar(64);index" json:"document_no"`
	DocumentDate *time.Time   `gorm:"column:document_date" json:"document_date"`

	// 实际量：公吨与桶两套计量
	ActualQuantityMT  decimal.Decimal `gorm:"column:actual_quantity_mt;type:decimal(20,4)" json:"actual_quantity_mt"`
	ActualQuantityBBL decimal.Decimal `gorm:"column:actual_quantity_bbl;type:decimal(20,4)" json:"actual_quantity_bbl"`
	// 计算量：按 CalculationMode 可能与实际量不同
	CalculationQuantityMT  decimal.Decimal `gorm:"column:calculation_quantity_mt;type:decimal(20,4)" json:"calculation_quantity_mt"`
	CalculationQuantityBBL decimal.Decimal `gorm:"column:calculation_quantity_bbl;type:decimal(20,4)" json:"calculation_quantity_bbl"`
	CalculationMode        CalculationMode `gorm:"column:calculation_mode;type:varchar(16)" json:"calculation_mode"`

	BenchmarkID        string          `gorm:"column:benchmark_id;type:varchar(32)" json:"benchmark_id"`
	BenchmarkPrice     decimal.Decimal `gorm:"column:benchmark_price;type:decimal(20,6)" json:"benchmark_price"`
	BenchmarkCurrency  string          `gorm:"column:benchmark_currency;type:varchar(3)" json:"benchmark_currency"`
	PriceFormula       string          `gorm:"column:price_formula;type:varchar(255)" json:"price_formula"`
	PricingPeriodStart *time.Time      `gorm:"column:pricing_period_start" json:"pricing_period_start"`
	PricingPeriodEnd   *time.Time      `gorm:"column:pricing_period_end" json:"pricing_period_end"`

	// Currency 是结算币种；所有金额字段均以该币种表达。
	// 跨币种参与计算必须先通过 SetExchangeRate 提供已换算好的汇率，否则拒绝。
	Currency     string          `gorm:"column:currency;type:varchar(3);not null" json:"currency"`
	ExchangeRate decimal.Decimal `gorm:"column:exchange_rate;type:decimal(18,8)" json:"exchange_rate"`

	BenchmarkAmount       decimal.Decimal `gorm:"column:benchmark_amount;type:decimal(20,4)" json:"benchmark_amount"`
	AdjustmentAmount      decimal.Decimal `gorm:"column:adjustment_amount;type:decimal(20,4)" json:"adjustment_amount"`
	CargoValue            decimal.Decimal `gorm:"column:cargo_value;type:decimal(20,4)" json:"cargo_value"`
	TotalCharges          decimal.Decimal `gorm:"column:total_charges;type:decimal(20,4)" json:"total_charges"`
	TotalSettlementAmount decimal.Decimal `gorm:"column:total_settlement_amount;type:decimal(20,4)" json:"total_settlement_amount"`

	Status       SettlementStatus `gorm:"column:status;type:varchar(16);index;not null" json:"status"`
	IsFinalized  bool             `gorm:"column:is_finalized;not null;default:false" json:"is_finalized"`
	FinalizedBy  string           `gorm:"column:finalized_by;type:varchar(64)" json:"finalized_by"`
	FinalizedAt  *time.Time       `gorm:"column:finalized_at" json:"finalized_at"`
	CancelReason string           `gorm:"column:cancel_reason;type:varchar(255)" json:"cancel_reason"`

	Charges []SettlementCharge `gorm:"foreignKey:SettlementNo;references:SettlementNo" json:"charges"`

	Audit AuditInfo `gorm:"embedded" json:"audit"`
	// Version 乐观锁版本号，持久化层在写入时比较
	Version int64 `gorm:"column:version;not null;default:0" json:"version"`

	fsm *fsm.Machine[SettlementStatus, string]
}

// TableName 表名
func (Settlement) TableName() string {
	return "settlements"
}

// 状态机事件
const (
	settlementEventEnterData = "ENTER_DATA"
	settlementEventCalculate = "CALCULATE"
	settlementEventReview    = "REVIEW"
	settlementEventApprove   = "APPROVE"
	settlementEventFinalize  = "FINALIZE"
	settlementEventCancel    = "CANCEL"
)

// NewSettlement 创建结算单，初始状态为草稿
func NewSettlement(contractID string, side ContractSide, docType DocumentType, currency, createdBy string) *Settlement {
	s := &Settlement{
		SettlementNo:    fmt.Sprintf("STL%d", idgen.GenID()),
		ContractID:      contractID,
		ContractSide:    side,
		DocumentType:    docType,
		Currency:        currency,
		CalculationMode: CalculationModeActual,
		Status:          SettlementStatusDraft,
		Audit:           AuditInfo{CreatedBy: createdBy, UpdatedBy: createdBy},
		Charges:         []SettlementCharge{},
	}
	s.initFSM()
	return s
}

func (s *Settlement) initFSM() {
	m := fsm.NewMachine[SettlementStatus, string](s.Status)
	m.AddTransition(SettlementStatusDraft, settlementEventEnterData, SettlementStatusDataEntered)
	m.AddTransition(SettlementStatusDataEntered, settlementEventCalculate, SettlementStatusCalculated)
	m.AddTransition(SettlementStatusCalculated, settlementEventReview, SettlementStatusReviewed)
	m.AddTransition(SettlementStatusReviewed, settlementEventApprove, SettlementStatusApproved)
	// 定稿允许从已计算直达，也允许走完整的复核/审批链路
	m.AddTransition(SettlementStatusCalculated, settlementEventFinalize, SettlementStatusFinalized)
	m.AddTransition(SettlementStatusReviewed, settlementEventFinalize, SettlementStatusFinalized)
	m.AddTransition(SettlementStatusApproved, settlementEventFinalize, SettlementStatusFinalized)
	// 取消：任何非终态都可以取消
	m.AddTransition(SettlementStatusDraft, settlementEventCancel, SettlementStatusCancelled)
	m.AddTransition(SettlementStatusDataEntered, settlementEventCancel, SettlementStatusCancelled)
	m.AddTransition(SettlementStatusCalculated, settlementEventCancel, SettlementStatusCancelled)
	m.AddTransition(SettlementStatusReviewed, settlementEventCancel, SettlementStatusCancelled)
	m.AddTransition(SettlementStatusApproved, settlementEventCancel, SettlementStatusCancelled)
	s.fsm = m
}

// InitFSM 确保状态机已初始化（从仓储加载后调用）
func (s *Settlement) InitFSM() {
	if s.fsm == nil {
		s.initFSM()
	}
}

func (s *Settlement) trigger(ctx context.Context, event string) error {
	s.InitFSM()
	if err := s.fsm.Trigger(ctx, event); err != nil {
		return wrapTransitionErr(err)
	}
	s.Status = s.fsm.Current()
	return nil
}

// guardMutable 校验结算单仍可变更
func (s *Settlement) guardMutable() error {
	if !s.CanBeModified() {
		return fmt.Errorf("%w: settlement %s is finalized", ErrIllegalStateTransition, s.SettlementNo)
	}
	return nil
}

// CanBeModified 结算单是否仍可变更
func (s *Settlement) CanBeModified() bool {
	return !s.IsFinalized && s.Status != SettlementStatusFinalized
}

// RequiresRecalculation 结算单是否仍缺少计算要素
func (s *Settlement) RequiresRecalculation() bool {
	return s.Status == SettlementStatusDraft &&
		(s.BenchmarkAmount.IsZero() || s.CalculationQuantityMT.IsZero())
}

// UpdateActualQuantities 更新实际量。允许在任何非定稿状态调用，数量必须非负。
// 计算策略为 ACTUAL 时计算量随实际量联动。
func (s *Settlement) UpdateActualQuantities(quantityMT, quantityBBL decimal.Decimal, by string) error {
	if err := s.guardMutable(); err != nil {
		return err
	}
	if quantityMT.IsNegative() || quantityBBL.IsNegative() {
		return fmt.Errorf("%w: actual quantities must not be negative", ErrInvariantViolation)
	}

	s.ActualQuantityMT = quantityMT
	s.ActualQuantityBBL = quantityBBL
	if s.CalculationMode == CalculationModeActual {
		s.CalculationQuantityMT = quantityMT
		s.CalculationQuantityBBL = quantityBBL
	}
	s.Audit.UpdatedBy = by
	s.RecalculateAmounts()
	return nil
}

// SetCalculationQuantities 显式设置计算量及取值策略
func (s *Settlement) SetCalculationQuantities(quantityMT, quantityBBL decimal.Decimal, mode CalculationMode, by string) error {
	if err := s.guardMutable(); err != nil {
		return err
	}
	if quantityMT.IsNegative() || quantityBBL.IsNegative() {
		return fmt.Errorf("%w: calculation quantities must not be negative", ErrInvariantViolation)
	}

	s.CalculationQuantityMT = quantityMT
	s.CalculationQuantityBBL = quantityBBL
	s.CalculationMode = mode
	s.Audit.UpdatedBy = by
	s.RecalculateAmounts()
	return nil
}

// UpdateBenchmarkPrice 更新基准价并重算下游金额。
// 价格必须非负；定价期起止必须有序；基准价币种与结算币种不同时必须先提供汇率。
func (s *Settlement) UpdateBenchmarkPrice(benchmarkID string, price decimal.Decimal, currency, formula string, periodStart, periodEnd time.Time, by string) error {
	if err := s.guardMutable(); err != nil {
		return err
	}
	if price.IsNegative() {
		return fmt.Errorf("%w: benchmark price must not be negative", ErrInvariantViolation)
	}
	if periodStart.After(periodEnd) {
		return fmt.Errorf("%w: pricing period start %s is after end %s",
			ErrInvariantViolation, periodStart.Format(time.DateOnly), periodEnd.Format(time.DateOnly))
	}
	if currency != s.Currency && s.ExchangeRate.IsZero() {
		return fmt.Errorf("%w: benchmark currency %s differs from settlement currency %s and no exchange rate is set",
			ErrInvariantViolation, currency, s.Currency)
	}

	s.BenchmarkID = benchmarkID
	s.BenchmarkPrice = price
	s.BenchmarkCurrency = currency
	s.PriceFormula = formula
	s.PricingPeriodStart = &periodStart
	s.PricingPeriodEnd = &periodEnd
	s.Audit.UpdatedBy = by
	s.RecalculateAmounts()
	return nil
}

// SetAdjustment 设置合同调价金额（升贴水等），以结算币种表达
func (s *Settlement) SetAdjustment(amount decimal.Decimal, by string) error {
	if err := s.guardMutable(); err != nil {
		return err
	}
	s.AdjustmentAmount = amount
	s.Audit.UpdatedBy = by
	s.RecalculateAmounts()
	return nil
}

// SetExchangeRate 设置基准价币种到结算币种的汇率，必须为正数
func (s *Settlement) SetExchangeRate(rate decimal.Decimal, by string) error {
	if err := s.guardMutable(); err != nil {
		return err
	}
	if !rate.IsPositive() {
		return fmt.Errorf("%w: exchange rate must be positive", ErrInvariantViolation)
	}
	s.ExchangeRate = rate
	s.Audit.UpdatedBy = by
	s.RecalculateAmounts()
	return nil
}

// RecalculateAmounts 重算全部派生金额：
// benchmarkAmount = 基准价 × 计算量（跨币种时乘以汇率）
// cargoValue = benchmarkAmount + adjustmentAmount
// totalCharges = Σ 费用有效金额
// totalSettlementAmount = cargoValue + totalCharges
// 相同输入重复调用结果一致。
func (s *Settlement) RecalculateAmounts() {
	amount := s.BenchmarkPrice.Mul(s.CalculationQuantityMT)
	if s.BenchmarkCurrency != "" && s.BenchmarkCurrency != s.Currency {
		amount = amount.Mul(s.ExchangeRate)
	}
	s.BenchmarkAmount = amount
	s.CargoValue = s.BenchmarkAmount.Add(s.AdjustmentAmount)

	total := decimal.Zero
	for i := range s.Charges {
		total = total.Add(s.Charges[i].EffectiveAmount())
	}
	s.TotalCharges = total
	s.TotalSettlementAmount = s.CargoValue.Add(s.TotalCharges)
}

// AddCharge 向费用台账追加一笔费用并重算总额。
// 金额必须非负（方向由费用类型表达）；币种必须与结算币种一致；定稿后拒绝。
func (s *Settlement) AddCharge(chargeType ChargeType, description string, amount decimal.Decimal, currency string, incurredAt *time.Time, reference, by string) (*SettlementCharge, error) {
	if err := s.guardMutable(); err != nil {
		return nil, err
	}
	if !chargeType.IsValid() {
		return nil, fmt.Errorf("%w: unknown charge type %q", ErrInvariantViolation, chargeType)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: charge amount must not be negative", ErrInvariantViolation)
	}
	if currency != s.Currency {
		return nil, fmt.Errorf("%w: charge currency %s differs from settlement currency %s",
			ErrInvariantViolation, currency, s.Currency)
	}

	charge := SettlementCharge{
		ChargeNo:     fmt.Sprintf("CHG%d", idgen.GenID()),
		SettlementNo: s.SettlementNo,
		ChargeType:   chargeType,
		Description:  description,
		Amount:       amount,
		Currency:     currency,
		IncurredAt:   incurredAt,
		Reference:    reference,
		CreatedBy:    by,
		CreatedAt:    time.Now(),
	}
	s.Charges = append(s.Charges, charge)
	s.Audit.UpdatedBy = by
	s.RecalculateAmounts()
	return &s.Charges[len(s.Charges)-1], nil
}

// RemoveCharge 从费用台账删除一笔费用并重算总额
func (s *Settlement) RemoveCharge(chargeNo, by string) error {
	if err := s.guardMutable(); err != nil {
		return err
	}
	for i := range s.Charges {
		if s.Charges[i].ChargeNo == chargeNo {
			s.Charges = append(s.Charges[:i], s.Charges[i+1:]...)
			s.Audit.UpdatedBy = by
			s.RecalculateAmounts()
			return nil
		}
	}
	return fmt.Errorf("%w: charge %s", ErrNotFound, chargeNo)
}

// EnterData 录入完成，推进到 DATA_ENTERED
func (s *Settlement) EnterData(ctx context.Context, docNo string, docDate time.Time, by string) error {
	if err := s.trigger(ctx, settlementEventEnterData); err != nil {
		return err
	}
	s.DocumentNo = docNo
	s.DocumentDate = &docDate
	s.Audit.UpdatedBy = by
	return nil
}

// MarkCalculated 计算完成，推进到 CALCULATED。要求计算量与基准金额已就绪。
func (s *Settlement) MarkCalculated(ctx context.Context, by string) error {
	if s.CalculationQuantityMT.IsZero() || s.BenchmarkAmount.IsZero() {
		return fmt.Errorf("%w: settlement %s has no calculated amounts", ErrInvariantViolation, s.SettlementNo)
	}
	if err := s.trigger(ctx, settlementEventCalculate); err != nil {
		return err
	}
	s.Audit.UpdatedBy = by
	return nil
}

// Review 复核通过，推进到 REVIEWED
func (s *Settlement) Review(ctx context.Context, by string) error {
	if err := s.trigger(ctx, settlementEventReview); err != nil {
		return err
	}
	s.Audit.UpdatedBy = by
	return nil
}

// Approve 审批通过，推进到 APPROVED
func (s *Settlement) Approve(ctx context.Context, by string) error {
	if err := s.trigger(ctx, settlementEventApprove); err != nil {
		return err
	}
	s.Audit.UpdatedBy = by
	return nil
}

// Finalize 定稿。只能从 CALCULATED / REVIEWED / APPROVED 触发；
// 结算总额为零时拒绝；重复定稿返回 ErrIllegalStateTransition，绝不静默成功。
func (s *Settlement) Finalize(ctx context.Context, by string) error {
	if s.IsFinalized {
		return fmt.Errorf("%w: settlement %s is already finalized", ErrIllegalStateTransition, s.SettlementNo)
	}
	if s.TotalSettlementAmount.IsZero() {
		return fmt.Errorf("%w: settlement %s has zero total amount", ErrInvariantViolation, s.SettlementNo)
	}
	if err := s.trigger(ctx, settlementEventFinalize); err != nil {
		return err
	}

	now := time.Now()
	s.IsFinalized = true
	s.FinalizedBy = by
	s.FinalizedAt = &now
	s.Audit.UpdatedBy = by
	return nil
}

// Cancel 取消结算单。任何非终态均可取消。
func (s *Settlement) Cancel(ctx context.Context, reason, by string) error {
	if err := s.trigger(ctx, settlementEventCancel); err != nil {
		return err
	}
	s.CancelReason = reason
	s.Audit.UpdatedBy = by
	return nil
}

// IsFullyPaid 已完成的付款是否已覆盖结算总额
func (s *Settlement) IsFullyPaid(payments []*Payment) bool {
	paid := decimal.Zero
	for _, p := range payments {
		if p.Status == PaymentStatusCompleted {
			paid = paid.Add(p.Amount)
		}
	}
	return paid.GreaterThanOrEqual(s.TotalSettlementAmount)
}

// OutstandingAmount 未付余额（不小于零）
func (s *Settlement) OutstandingAmount(payments []*Payment) decimal.Decimal {
	paid := decimal.Zero
	for _, p := range payments {
		if p.Status == PaymentStatusCompleted {
			paid = paid.Add(p.Amount)
		}
	}
	outstanding := s.TotalSettlementAmount.Sub(paid)
	if outstanding.IsNegative() {
		return decimal.Zero
	}
	return outstanding
}
