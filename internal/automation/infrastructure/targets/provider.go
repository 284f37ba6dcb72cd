// Package targets 规则目标提供者：按规则类型从业务库加载候选目标及其事实上下文。
package targets

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/oiltrading/internal/automation/domain"
	matchingdomain "github.com/wyfcoding/oiltrading/internal/matching/domain"
	settlementdomain "github.com/wyfcoding/oiltrading/internal/settlement/domain"
)

// provider 基于共享业务库的目标提供者
type provider struct {
	db *gorm.DB
}

// NewProvider 创建并返回一个新的目标提供者实例。
func NewProvider(db *gorm.DB) domain.TargetProvider {
	return &provider{db: db}
}

// LoadTargets 按规则类型加载候选目标
func (p *provider) LoadTargets(ctx context.Context, rule *domain.AutomationRule) ([]domain.ActionTarget, error) {
	switch rule.RuleType {
	case domain.RuleTypeAutoSettlement:
		return p.contractsWithoutSettlement(ctx)
	case domain.RuleTypeAutoApproval,
		domain.RuleTypeAutoFinalization,
		domain.RuleTypeChargeCalculation,
		domain.RuleTypeConsolidation:
		return p.openSettlements(ctx)
	case domain.RuleTypePaymentMatching:
		return p.openPayments(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown rule type %q", domain.ErrInvariantViolation, rule.RuleType)
	}
}

// contractsWithoutSettlement 已登记但尚无结算单的合同
func (p *provider) contractsWithoutSettlement(ctx context.Context) ([]domain.ActionTarget, error) {
	var contracts []matchingdomain.LedgerContract
	err := p.db.WithContext(ctx).
		Where("contract_id NOT IN (?)",
			p.db.Model(&settlementdomain.Settlement{}).
				Select("contract_id").
				Where("status <> ?", settlementdomain.SettlementStatusCancelled)).
		Find(&contracts).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load unsettled contracts: %v", domain.ErrExternalDependency, err)
	}

	targets := make([]domain.ActionTarget, 0, len(contracts))
	for _, c := range contracts {
		targets = append(targets, domain.ActionTarget{
			TargetID: c.ContractID,
			GroupKey: c.LedgerNo,
			Facts: domain.FactContext{
				"contract_id":   c.ContractID,
				"contract_kind": string(c.ContractKind),
				"quantity_mt":   c.TotalQuantityMT,
			},
		})
	}
	return targets, nil
}

// openSettlements 未定稿且未取消的结算单
func (p *provider) openSettlements(ctx context.Context) ([]domain.ActionTarget, error) {
	var settlements []settlementdomain.Settlement
	err := p.db.WithContext(ctx).
		Where("is_finalized = ? AND status NOT IN ?", false,
			[]settlementdomain.SettlementStatus{
				settlementdomain.SettlementStatusCancelled,
				settlementdomain.SettlementStatusFinalized,
			}).
		Find(&settlements).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load open settlements: %v", domain.ErrExternalDependency, err)
	}

	targets := make([]domain.ActionTarget, 0, len(settlements))
	for _, s := range settlements {
		facts := domain.FactContext{
			"settlement_no": s.SettlementNo,
			"contract_id":   s.ContractID,
			"partner_code":  s.PartnerCode,
			"product_code":  s.ProductCode,
			"status":        string(s.Status),
			"quantity_mt":   s.CalculationQuantityMT,
			"total_amount":  s.TotalSettlementAmount,
			"currency":      s.Currency,
		}
		if s.DocumentDate != nil {
			facts["document_date"] = *s.DocumentDate
			facts["month"] = s.DocumentDate.Format("2006-01")
		}
		targets = append(targets, domain.ActionTarget{
			TargetID: s.SettlementNo,
			GroupKey: s.ContractID,
			Facts:    facts,
		})
	}
	return targets, nil
}

// openPayments 尚未完成或取消、仍可推进匹配的付款
func (p *provider) openPayments(ctx context.Context) ([]domain.ActionTarget, error) {
	now := time.Now()
	var payments []settlementdomain.Payment
	err := p.db.WithContext(ctx).
		Where("status IN ?",
			[]settlementdomain.PaymentStatus{
				settlementdomain.PaymentStatusPending,
				settlementdomain.PaymentStatusInitiated,
				settlementdomain.PaymentStatusInTransit,
			}).
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load open payments: %v", domain.ErrExternalDependency, err)
	}

	targets := make([]domain.ActionTarget, 0, len(payments))
	for _, pay := range payments {
		facts := domain.FactContext{
			"payment_no":    pay.PaymentNo,
			"settlement_no": pay.SettlementNo,
			"amount":        pay.Amount,
			"currency":      pay.Currency,
			"status":        string(pay.Status),
		}
		if pay.DueDate != nil {
			facts["due_date"] = *pay.DueDate
			facts["days_overdue"] = int(now.Sub(*pay.DueDate).Hours() / 24)
		}
		targets = append(targets, domain.ActionTarget{
			TargetID: pay.PaymentNo,
			GroupKey: pay.SettlementNo,
			Facts:    facts,
		})
	}
	return targets, nil
}
