package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/oiltrading/pkg/fsm"
	"github.com/wyfcoding/oiltrading/pkg/idgen"
)

// PaymentStatus 付款状态
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"    // 待发起
	PaymentStatusInitiated PaymentStatus = "INITIATED"  // 已发起
	PaymentStatusInTransit PaymentStatus = "IN_TRANSIT" // 在途
	PaymentStatusCompleted PaymentStatus = "COMPLETED"  // 已完成
	PaymentStatusFailed    PaymentStatus = "FAILED"     // 失败
	PaymentStatusCancelled PaymentStatus = "CANCELLED"  // 已取消
	PaymentStatusReturned  PaymentStatus = "RETURNED"   // 已退回
)

// PaymentDirection 资金方向
type PaymentDirection string

const (
	PaymentDirectionOutgoing PaymentDirection = "OUTGOING" // 对外付款
	PaymentDirectionIncoming PaymentDirection = "INCOMING" // 收款
)

// PaymentMethod 付款方式
type PaymentMethod string

const (
	PaymentMethodWireTransfer    PaymentMethod = "WIRE_TRANSFER"    // 电汇
	PaymentMethodLetterOfCredit  PaymentMethod = "LETTER_OF_CREDIT" // 信用证
	PaymentMethodDocumentaryColl PaymentMethod = "DOCUMENTARY_COLL" // 跟单托收
	PaymentMethodOpenAccount     PaymentMethod = "OPEN_ACCOUNT"     // 赊销
)

// 付款状态机事件
const (
	paymentEventInitiate = "INITIATE"
	paymentEventDispatch = "DISPATCH"
	paymentEventComplete = "COMPLETE"
	paymentEventFail     = "FAIL"
	paymentEventCancel   = "CANCEL"
	paymentEventReturn   = "RETURN"
)

// PaymentStatusChange 付款状态变更明细，只追加不修改
type PaymentStatusChange struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	PaymentNo  string        `gorm:"column:payment_no;type:varchar(32);index;not null" json:"payment_no"`
	FromStatus PaymentStatus `gorm:"column:from_status;type:varchar(16);not null" json:"from_status"`
	ToStatus   PaymentStatus `gorm:"column:to_status;type:varchar(16);not null" json:"to_status"`
	Reason     string        `gorm:"column:reason;type:varchar(255)" json:"reason"`
	Actor      string        `gorm:"column:actor;type:varchar(64)" json:"actor"`
	OccurredAt time.Time     `gorm:"column:occurred_at;not null" json:"occurred_at"`
}

// TableName 表名
func (PaymentStatusChange) TableName() string {
	return "payment_status_changes"
}

// Payment 付款实体。状态只通过状态机事件推进，每次推进都会在 History 中留痕。
type Payment struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PaymentNo    string           `gorm:"column:payment_no;type:varchar(32);uniqueIndex;not null" json:"payment_no"`
	SettlementNo string           `gorm:"column:settlement_no;type:varchar(32);index;not null" json:"settlement_no"`
	Direction    PaymentDirection `gorm:"column:direction;type:varchar(16);not null" json:"direction"`
	Method       PaymentMethod    `gorm:"column:method;type:varchar(32);not null" json:"method"`

	Amount   decimal.Decimal `gorm:"column:amount;type:decimal(20,4);not null" json:"amount"`
	Currency string          `gorm:"column:currency;type:varchar(3);not null" json:"currency"`

	PayerBank     string `gorm:"column:payer_bank;type:varchar(128)" json:"payer_bank"`
	PayerAccount  string `gorm:"column:payer_account;type:varchar(64)" json:"payer_account"`
	PayeeBank     string `gorm:"column:payee_bank;type:varchar(128)" json:"payee_bank"`
	PayeeAccount  string `gorm:"column:payee_account;type:varchar(64)" json:"payee_account"`
	BankReference string `gorm:"column:bank_reference;type:varchar(64)" json:"bank_reference"`

	DueDate     *time.Time    `gorm:"column:due_date" json:"due_date"`
	ValueDate   *time.Time    `gorm:"column:value_date" json:"value_date"`
	Status      PaymentStatus `gorm:"column:status;type:varchar(16);index;not null" json:"status"`
	FailureNote string        `gorm:"column:failure_note;type:varchar(255)" json:"failure_note"`

	History []PaymentStatusChange `gorm:"foreignKey:PaymentNo;references:PaymentNo" json:"history"`

	Audit   AuditInfo `gorm:"embedded" json:"audit"`
	Version int64     `gorm:"column:version;not null;default:0" json:"version"`

	fsm *fsm.Machine[PaymentStatus, string]
}

// TableName 表名
func (Payment) TableName() string {
	return "payments"
}

// NewPayment 创建待发起付款。金额必须为正。
func NewPayment(settlementNo string, direction PaymentDirection, method PaymentMethod, amount decimal.Decimal, currency string, dueDate *time.Time, createdBy string) (*Payment, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: payment amount must be positive", ErrInvariantViolation)
	}
	p := &Payment{
		CreatedAt:    time.Now(),
		PaymentNo:    fmt.Sprintf("PAY%d", idgen.GenID()),
		SettlementNo: settlementNo,
		Direction:    direction,
		Method:       method,
		Amount:       amount,
		Currency:     currency,
		DueDate:      dueDate,
		Status:       PaymentStatusPending,
		Audit:        AuditInfo{CreatedBy: createdBy, UpdatedBy: createdBy},
	}
	p.initFSM()
	return p, nil
}

func (p *Payment) initFSM() {
	m := fsm.NewMachine[PaymentStatus, string](p.Status)
	m.AddTransition(PaymentStatusPending, paymentEventInitiate, PaymentStatusInitiated)
	m.AddTransition(PaymentStatusInitiated, paymentEventDispatch, PaymentStatusInTransit)
	m.AddTransition(PaymentStatusInitiated, paymentEventComplete, PaymentStatusCompleted)
	m.AddTransition(PaymentStatusInTransit, paymentEventComplete, PaymentStatusCompleted)
	m.AddTransition(PaymentStatusInitiated, paymentEventFail, PaymentStatusFailed)
	m.AddTransition(PaymentStatusInTransit, paymentEventFail, PaymentStatusFailed)
	m.AddTransition(PaymentStatusPending, paymentEventCancel, PaymentStatusCancelled)
	m.AddTransition(PaymentStatusInitiated, paymentEventCancel, PaymentStatusCancelled)
	m.AddTransition(PaymentStatusCompleted, paymentEventReturn, PaymentStatusReturned)
	m.AddTransition(PaymentStatusInTransit, paymentEventReturn, PaymentStatusReturned)
	p.fsm = m
}

// InitFSM 确保状态机已初始化（从仓储加载后调用）
func (p *Payment) InitFSM() {
	if p.fsm == nil {
		p.initFSM()
	}
}

func (p *Payment) trigger(ctx context.Context, event, reason, actor string) error {
	p.InitFSM()
	from := p.Status
	if err := p.fsm.Trigger(ctx, event); err != nil {
		return wrapTransitionErr(err)
	}
	p.Status = p.fsm.Current()
	p.History = append(p.History, PaymentStatusChange{
		PaymentNo:  p.PaymentNo,
		FromStatus: from,
		ToStatus:   p.Status,
		Reason:     reason,
		Actor:      actor,
		OccurredAt: time.Now(),
	})
	p.Audit.UpdatedBy = actor
	return nil
}

// Initiate 发起付款
func (p *Payment) Initiate(ctx context.Context, bankRef, by string) error {
	if err := p.trigger(ctx, paymentEventInitiate, "payment initiated", by); err != nil {
		return err
	}
	p.BankReference = bankRef
	return nil
}

// Dispatch 资金出账，进入在途
func (p *Payment) Dispatch(ctx context.Context, by string) error {
	return p.trigger(ctx, paymentEventDispatch, "funds dispatched", by)
}

// Complete 付款完成，记录实际到账日
func (p *Payment) Complete(ctx context.Context, valueDate time.Time, by string) error {
	if err := p.trigger(ctx, paymentEventComplete, "payment completed", by); err != nil {
		return err
	}
	p.ValueDate = &valueDate
	return nil
}

// Fail 付款失败，note 记录银行返回的失败原因
func (p *Payment) Fail(ctx context.Context, note, by string) error {
	if err := p.trigger(ctx, paymentEventFail, note, by); err != nil {
		return err
	}
	p.FailureNote = note
	return nil
}

// Cancel 取消付款。只能在发起出账前取消。
func (p *Payment) Cancel(ctx context.Context, reason, by string) error {
	return p.trigger(ctx, paymentEventCancel, reason, by)
}

// Return 付款被退回
func (p *Payment) Return(ctx context.Context, reason, by string) error {
	return p.trigger(ctx, paymentEventReturn, reason, by)
}

// SetBankDetails 登记付款方与收款方银行账户。只允许在发起前补录。
func (p *Payment) SetBankDetails(payerBank, payerAccount, payeeBank, payeeAccount, by string) error {
	if p.Status != PaymentStatusPending {
		return fmt.Errorf("%w: bank details of payment %s can only be set before initiation", ErrIllegalStateTransition, p.PaymentNo)
	}
	p.PayerBank = payerBank
	p.PayerAccount = payerAccount
	p.PayeeBank = payeeBank
	p.PayeeAccount = payeeAccount
	p.Audit.UpdatedBy = by
	return nil
}

// IsProcessable 付款是否具备发起条件：必须处于待发起状态，
// 电汇还要求付款方与收款方银行账户齐备。
func (p *Payment) IsProcessable() bool {
	if p.Status != PaymentStatusPending {
		return false
	}
	if p.Method == PaymentMethodWireTransfer {
		return p.PayerBank != "" && p.PayerAccount != "" &&
			p.PayeeBank != "" && p.PayeeAccount != ""
	}
	return true
}

// IsOverdue 付款是否逾期：创建日加宽限天数早于当前时间。
// 已完成与已取消的付款不算逾期。
func (p *Payment) IsOverdue(thresholdDays int) bool {
	switch p.Status {
	case PaymentStatusCompleted, PaymentStatusCancelled:
		return false
	}
	return time.Now().After(p.CreatedAt.AddDate(0, 0, thresholdDays))
}
