package application

import (
	"context"
	"fmt"

	"github.com/wyfcoding/oiltrading/internal/settlement/domain"
)

// SettlementQueryService 处理所有结算相关的查询操作（Queries）。
type SettlementQueryService struct {
	repo        domain.SettlementRepository
	paymentRepo domain.PaymentRepository
	pricingRepo domain.PricingEventRepository
}

// NewSettlementQueryService 构造函数。
func NewSettlementQueryService(
	repo domain.SettlementRepository,
	paymentRepo domain.PaymentRepository,
	pricingRepo domain.PricingEventRepository,
) *SettlementQueryService {
	return &SettlementQueryService{
		repo:        repo,
		paymentRepo: paymentRepo,
		pricingRepo: pricingRepo,
	}
}

// GetSettlement 按结算单号查询
func (q *SettlementQueryService) GetSettlement(ctx context.Context, settlementNo string) (*SettlementDTO, error) {
	settlement, err := q.repo.FindByNo(ctx, settlementNo)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	return toSettlementDTO(settlement), nil
}

// ListByContract 查询某合同下的全部结算单
func (q *SettlementQueryService) ListByContract(ctx context.Context, contractID string) ([]*SettlementDTO, error) {
	settlements, err := q.repo.FindByContract(ctx, contractID)
	if err != nil {
		return nil, err
	}
	dtos := make([]*SettlementDTO, 0, len(settlements))
	for _, s := range settlements {
		dtos = append(dtos, toSettlementDTO(s))
	}
	return dtos, nil
}

// ListByStatus 按状态分页查询
func (q *SettlementQueryService) ListByStatus(ctx context.Context, status domain.SettlementStatus, offset, limit int) ([]*SettlementDTO, int64, error) {
	settlements, total, err := q.repo.FindByStatus(ctx, status, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	dtos := make([]*SettlementDTO, 0, len(settlements))
	for _, s := range settlements {
		dtos = append(dtos, toSettlementDTO(s))
	}
	return dtos, total, nil
}

// ListPayments 查询结算单下的付款
func (q *SettlementQueryService) ListPayments(ctx context.Context, settlementNo string) ([]*PaymentDTO, error) {
	payments, err := q.paymentRepo.FindBySettlement(ctx, settlementNo)
	if err != nil {
		return nil, err
	}
	dtos := make([]*PaymentDTO, 0, len(payments))
	for _, p := range payments {
		dtos = append(dtos, toPaymentDTO(p))
	}
	return dtos, nil
}

// ListPricingEvents 查询结算单下的定价事件
func (q *SettlementQueryService) ListPricingEvents(ctx context.Context, settlementNo string) ([]*PricingEventDTO, error) {
	events, err := q.pricingRepo.FindBySettlement(ctx, settlementNo)
	if err != nil {
		return nil, err
	}
	dtos := make([]*PricingEventDTO, 0, len(events))
	for _, e := range events {
		dtos = append(dtos, toPricingEventDTO(e))
	}
	return dtos, nil
}

// GetPaymentSummary 结算单付款汇总
func (q *SettlementQueryService) GetPaymentSummary(ctx context.Context, settlementNo string) (map[string]any, error) {
	settlement, err := q.repo.FindByNo(ctx, settlementNo)
	if err != nil {
		return nil, err
	}
	payments, err := q.paymentRepo.FindBySettlement(ctx, settlementNo)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"settlement_no":      settlementNo,
		"total_amount":       settlement.TotalSettlementAmount.String(),
		"outstanding_amount": settlement.OutstandingAmount(payments).String(),
		"fully_paid":         settlement.IsFullyPaid(payments),
		"payment_count":      len(payments),
	}, nil
}
