package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/oiltrading/internal/settlement/domain"
)

// CreatePaymentCommand 创建付款
type CreatePaymentCommand struct {
	SettlementNo string
	Direction    domain.PaymentDirection
	Method       domain.PaymentMethod
	Amount       decimal.Decimal
	Currency     string
	DueDate      *time.Time
	PayerBank    string
	PayerAccount string
	PayeeBank    string
	PayeeAccount string
	Operator     string
}

// PaymentCommandService 处理付款相关的写操作。
type PaymentCommandService struct {
	paymentRepo    domain.PaymentRepository
	settlementRepo domain.SettlementRepository
	publisher      domain.EventPublisher
}

func NewPaymentCommandService(
	paymentRepo domain.PaymentRepository,
	settlementRepo domain.SettlementRepository,
	publisher domain.EventPublisher,
) *PaymentCommandService {
	return &PaymentCommandService{
		paymentRepo:    paymentRepo,
		settlementRepo: settlementRepo,
		publisher:      publisher,
	}
}

// CreatePayment 为已定稿结算单创建付款。币种必须与结算单一致。
func (s *PaymentCommandService) CreatePayment(ctx context.Context, cmd *CreatePaymentCommand) (*PaymentDTO, error) {
	settlement, err := s.settlementRepo.FindByNo(ctx, cmd.SettlementNo)
	if err != nil {
		return nil, err
	}
	if !settlement.IsFinalized {
		return nil, fmt.Errorf("%w: settlement %s is not finalized", domain.ErrIllegalStateTransition, cmd.SettlementNo)
	}
	if cmd.Currency != settlement.Currency {
		return nil, fmt.Errorf("%w: payment currency %s differs from settlement currency %s",
			domain.ErrInvariantViolation, cmd.Currency, settlement.Currency)
	}

	payment, err := domain.NewPayment(cmd.SettlementNo, cmd.Direction, cmd.Method, cmd.Amount, cmd.Currency, cmd.DueDate, cmd.Operator)
	if err != nil {
		return nil, err
	}
	if err := payment.SetBankDetails(cmd.PayerBank, cmd.PayerAccount, cmd.PayeeBank, cmd.PayeeAccount, cmd.Operator); err != nil {
		return nil, err
	}
	if err := s.paymentRepo.Save(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to save payment: %w", err)
	}

	slog.InfoContext(ctx, "payment created",
		"payment_no", payment.PaymentNo,
		"settlement_no", cmd.SettlementNo,
		"amount", cmd.Amount.String())
	return toPaymentDTO(payment), nil
}

// Initiate 发起付款
func (s *PaymentCommandService) Initiate(ctx context.Context, paymentNo, bankRef, operator string) (*PaymentDTO, error) {
	return s.transition(ctx, paymentNo, func(p *domain.Payment) error {
		return p.Initiate(ctx, bankRef, operator)
	})
}

// Dispatch 资金出账
func (s *PaymentCommandService) Dispatch(ctx context.Context, paymentNo, operator string) (*PaymentDTO, error) {
	return s.transition(ctx, paymentNo, func(p *domain.Payment) error {
		return p.Dispatch(ctx, operator)
	})
}

// Complete 付款完成
func (s *PaymentCommandService) Complete(ctx context.Context, paymentNo string, valueDate time.Time, operator string) (*PaymentDTO, error) {
	return s.transition(ctx, paymentNo, func(p *domain.Payment) error {
		return p.Complete(ctx, valueDate, operator)
	})
}

// Fail 付款失败
func (s *PaymentCommandService) Fail(ctx context.Context, paymentNo, note, operator string) (*PaymentDTO, error) {
	return s.transition(ctx, paymentNo, func(p *domain.Payment) error {
		return p.Fail(ctx, note, operator)
	})
}

// Cancel 取消付款
func (s *PaymentCommandService) Cancel(ctx context.Context, paymentNo, reason, operator string) (*PaymentDTO, error) {
	return s.transition(ctx, paymentNo, func(p *domain.Payment) error {
		return p.Cancel(ctx, reason, operator)
	})
}

// Return 付款退回
func (s *PaymentCommandService) Return(ctx context.Context, paymentNo, reason, operator string) (*PaymentDTO, error) {
	return s.transition(ctx, paymentNo, func(p *domain.Payment) error {
		return p.Return(ctx, reason, operator)
	})
}

func (s *PaymentCommandService) transition(ctx context.Context, paymentNo string, fn func(*domain.Payment) error) (*PaymentDTO, error) {
	payment, err := s.paymentRepo.FindByNo(ctx, paymentNo)
	if err != nil {
		return nil, err
	}
	from := payment.Status
	if err := fn(payment); err != nil {
		return nil, err
	}
	if err := s.paymentRepo.Save(ctx, payment); err != nil {
		return nil, fmt.Errorf("failed to save payment: %w", err)
	}

	if s.publisher != nil {
		event := domain.PaymentStatusChangedEvent{
			BaseEvent:    newBaseEvent("payment.status_changed"),
			PaymentNo:    payment.PaymentNo,
			SettlementNo: payment.SettlementNo,
			FromStatus:   from,
			ToStatus:     payment.Status,
			Amount:       payment.Amount,
			Currency:     payment.Currency,
		}
		if err := s.publisher.Publish(ctx, domain.TopicPaymentEvents, payment.PaymentNo, event); err != nil {
			slog.WarnContext(ctx, "failed to publish payment event", "payment_no", paymentNo, "error", err)
		}
	}
	return toPaymentDTO(payment), nil
}
