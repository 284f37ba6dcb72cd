// Package mysql 结算上下文的 MySQL 持久化实现。
package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/wyfcoding/oiltrading/internal/settlement/domain"
)

// settlementRepository 结算单仓储实现
type settlementRepository struct {
	db *gorm.DB
}

// NewSettlementRepository 创建并返回一个新的结算单仓储实例。
func NewSettlementRepository(db *gorm.DB) domain.SettlementRepository {
	return &settlementRepository{db: db}
}

// Save 保存结算单（带乐观锁）。
// 新建记录直接插入；已有记录按版本号更新，版本不匹配返回 ErrVersionConflict。
func (r *settlementRepository) Save(ctx context.Context, settlement *domain.Settlement) error {
	if settlement.ID == 0 {
		settlement.Version = 1
		if err := r.db.WithContext(ctx).Create(settlement).Error; err != nil {
			return fmt.Errorf("failed to create settlement: %w", err)
		}
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		currentVersion := settlement.Version
		result := tx.Model(&domain.Settlement{}).
			Where("settlement_no = ? AND version = ?", settlement.SettlementNo, currentVersion).
			Updates(map[string]any{
				"document_no":              settlement.DocumentNo,
				"document_date":            settlement.DocumentDate,
				"actual_quantity_mt":       settlement.ActualQuantityMT,
				"actual_quantity_bbl":      settlement.ActualQuantityBBL,
				"calculation_quantity_mt":  settlement.CalculationQuantityMT,
				"calculation_quantity_bbl": settlement.CalculationQuantityBBL,
				"calculation_mode":         settlement.CalculationMode,
				"benchmark_id":             settlement.BenchmarkID,
				"benchmark_price":          settlement.BenchmarkPrice,
				"benchmark_currency":       settlement.BenchmarkCurrency,
				"price_formula":            settlement.PriceFormula,
				"pricing_period_start":     settlement.PricingPeriodStart,
				"pricing_period_end":       settlement.PricingPeriodEnd,
				"exchange_rate":            settlement.ExchangeRate,
				"benchmark_amount":         settlement.BenchmarkAmount,
				"adjustment_amount":        settlement.AdjustmentAmount,
				"cargo_value":              settlement.CargoValue,
				"total_charges":            settlement.TotalCharges,
				"total_settlement_amount":  settlement.TotalSettlementAmount,
				"status":                   settlement.Status,
				"is_finalized":             settlement.IsFinalized,
				"finalized_by":             settlement.FinalizedBy,
				"finalized_at":             settlement.FinalizedAt,
				"cancel_reason":            settlement.CancelReason,
				"updated_by":               settlement.Audit.UpdatedBy,
				"version":                  currentVersion + 1,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update settlement: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: settlement %s version %d", domain.ErrVersionConflict, settlement.SettlementNo, currentVersion)
		}
		settlement.Version = currentVersion + 1

		// 费用台账整体重写：先删后插，保持与聚合内存状态一致
		if err := tx.Where("settlement_no = ?", settlement.SettlementNo).Delete(&domain.SettlementCharge{}).Error; err != nil {
			return fmt.Errorf("failed to clear charges: %w", err)
		}
		for i := range settlement.Charges {
			settlement.Charges[i].ID = 0
			settlement.Charges[i].SettlementNo = settlement.SettlementNo
		}
		if len(settlement.Charges) > 0 {
			if err := tx.Create(&settlement.Charges).Error; err != nil {
				return fmt.Errorf("failed to save charges: %w", err)
			}
		}
		return nil
	})
}

// FindByNo 按结算单号查询，连带费用台账
func (r *settlementRepository) FindByNo(ctx context.Context, settlementNo string) (*domain.Settlement, error) {
	var settlement domain.Settlement
	err := r.db.WithContext(ctx).
		Preload("Charges").
		Where("settlement_no = ?", settlementNo).
		First(&settlement).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: settlement %s", domain.ErrNotFound, settlementNo)
		}
		return nil, fmt.Errorf("failed to find settlement: %w", err)
	}
	settlement.InitFSM()
	return &settlement, nil
}

// FindByContract 查询某合同下的全部结算单
func (r *settlementRepository) FindByContract(ctx context.Context, contractID string) ([]*domain.Settlement, error) {
	var settlements []*domain.Settlement
	err := r.db.WithContext(ctx).
		Preload("Charges").
		Where("contract_id = ?", contractID).
		Order("created_at DESC").
		Find(&settlements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find settlements by contract: %w", err)
	}
	for _, s := range settlements {
		s.InitFSM()
	}
	return settlements, nil
}

// FindByStatus 按状态分页查询
func (r *settlementRepository) FindByStatus(ctx context.Context, status domain.SettlementStatus, offset, limit int) ([]*domain.Settlement, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&domain.Settlement{}).
		Where("status = ?", status).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count settlements: %w", err)
	}

	var settlements []*domain.Settlement
	err := r.db.WithContext(ctx).
		Preload("Charges").
		Where("status = ?", status).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&settlements).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find settlements by status: %w", err)
	}
	for _, s := range settlements {
		s.InitFSM()
	}
	return settlements, total, nil
}

// CountByStatus 按状态统计数量
func (r *settlementRepository) CountByStatus(ctx context.Context, status domain.SettlementStatus) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&domain.Settlement{}).
		Where("status = ?", status).Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count settlements: %w", err)
	}
	return total, nil
}
