// Package mysql 合同匹配上下文的 MySQL 持久化实现。
package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/wyfcoding/oiltrading/internal/matching/domain"
)

// matchingLedgerRepository 匹配台账仓储实现
type matchingLedgerRepository struct {
	db *gorm.DB
}

// NewMatchingLedgerRepository 创建并返回一个新的匹配台账仓储实例。
func NewMatchingLedgerRepository(db *gorm.DB) domain.MatchingLedgerRepository {
	return &matchingLedgerRepository{db: db}
}

// Save 保存台账。合同与匹配随台账一并落库，台账头按版本号做乐观锁。
func (r *matchingLedgerRepository) Save(ctx context.Context, ledger *domain.MatchingLedger) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if ledger.ID == 0 {
			ledger.Version = 1
			if err := tx.Create(ledger).Error; err != nil {
				return fmt.Errorf("failed to create matching ledger: %w", err)
			}
		} else {
			currentVersion := ledger.Version
			result := tx.Model(&domain.MatchingLedger{}).
				Where("ledger_no = ? AND version = ?", ledger.LedgerNo, currentVersion).
				Updates(map[string]any{
					"product_code": ledger.ProductCode,
					"version":      currentVersion + 1,
				})
			if result.Error != nil {
				return fmt.Errorf("failed to update matching ledger: %w", result.Error)
			}
			if result.RowsAffected == 0 {
				return fmt.Errorf("%w: ledger %s version %d", domain.ErrVersionConflict, ledger.LedgerNo, currentVersion)
			}
			ledger.Version = currentVersion + 1

			for i := range ledger.Contracts {
				ledger.Contracts[i].LedgerNo = ledger.LedgerNo
				if err := tx.Save(&ledger.Contracts[i]).Error; err != nil {
					return fmt.Errorf("failed to save ledger contract: %w", err)
				}
			}
		}

		for i := range ledger.Matches {
			if err := tx.Save(&ledger.Matches[i]).Error; err != nil {
				return fmt.Errorf("failed to save contract match: %w", err)
			}
		}
		return nil
	})
}

// FindByNo 按台账号查询，连带合同与匹配
func (r *matchingLedgerRepository) FindByNo(ctx context.Context, ledgerNo string) (*domain.MatchingLedger, error) {
	var ledger domain.MatchingLedger
	err := r.db.WithContext(ctx).
		Preload("Contracts").
		Where("ledger_no = ?", ledgerNo).
		First(&ledger).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: matching ledger %s", domain.ErrNotFound, ledgerNo)
		}
		return nil, fmt.Errorf("failed to find matching ledger: %w", err)
	}

	// 匹配记录按台账下登记的合同加载
	contractIDs := make([]string, 0, len(ledger.Contracts))
	for _, c := range ledger.Contracts {
		contractIDs = append(contractIDs, c.ContractID)
	}
	if len(contractIDs) > 0 {
		var matches []domain.ContractMatch
		err = r.db.WithContext(ctx).
			Where("purchase_contract_id IN ? OR sales_contract_id IN ?", contractIDs, contractIDs).
			Order("created_at ASC").
			Find(&matches).Error
		if err != nil {
			return nil, fmt.Errorf("failed to load matches: %w", err)
		}
		ledger.Matches = matches
	}
	return &ledger, nil
}

// FindByProduct 按品种查询台账
func (r *matchingLedgerRepository) FindByProduct(ctx context.Context, productCode string) ([]*domain.MatchingLedger, error) {
	var ledgers []*domain.MatchingLedger
	err := r.db.WithContext(ctx).
		Preload("Contracts").
		Where("product_code = ?", productCode).
		Find(&ledgers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find ledgers by product: %w", err)
	}
	return ledgers, nil
}

// FindMatchesByContract 查询涉及某合同的全部匹配
func (r *matchingLedgerRepository) FindMatchesByContract(ctx context.Context, ref domain.ContractRef) ([]*domain.ContractMatch, error) {
	var matches []*domain.ContractMatch
	query := r.db.WithContext(ctx)
	switch ref.Kind {
	case domain.ContractKindPurchase:
		query = query.Where("purchase_contract_id = ?", ref.ID)
	case domain.ContractKindSales:
		query = query.Where("sales_contract_id = ?", ref.ID)
	default:
		return nil, fmt.Errorf("%w: invalid contract reference %s", domain.ErrInvariantViolation, ref)
	}
	if err := query.Order("created_at ASC").Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("failed to find matches: %w", err)
	}
	return matches, nil
}

// tradeGroupRepository 贸易组仓储实现
type tradeGroupRepository struct {
	db *gorm.DB
}

// NewTradeGroupRepository 创建并返回一个新的贸易组仓储实例。
func NewTradeGroupRepository(db *gorm.DB) domain.TradeGroupRepository {
	return &tradeGroupRepository{db: db}
}

// Save 保存贸易组，组头按版本号做乐观锁，成员先删后插
func (r *tradeGroupRepository) Save(ctx context.Context, group *domain.TradeGroup) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if group.ID == 0 {
			group.Version = 1
			if err := tx.Create(group).Error; err != nil {
				return fmt.Errorf("failed to create trade group: %w", err)
			}
			return nil
		}

		currentVersion := group.Version
		result := tx.Model(&domain.TradeGroup{}).
			Where("trade_group_no = ? AND version = ?", group.TradeGroupNo, currentVersion).
			Updates(map[string]any{
				"name":      group.Name,
				"status":    group.Status,
				"closed_at": group.ClosedAt,
				"version":   currentVersion + 1,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update trade group: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: trade group %s version %d", domain.ErrVersionConflict, group.TradeGroupNo, currentVersion)
		}
		group.Version = currentVersion + 1

		if err := tx.Where("trade_group_no = ?", group.TradeGroupNo).Delete(&domain.TradeGroupLeg{}).Error; err != nil {
			return fmt.Errorf("failed to clear trade group legs: %w", err)
		}
		for i := range group.Legs {
			group.Legs[i].ID = 0
			group.Legs[i].TradeGroupNo = group.TradeGroupNo
		}
		if len(group.Legs) > 0 {
			if err := tx.Create(&group.Legs).Error; err != nil {
				return fmt.Errorf("failed to save trade group legs: %w", err)
			}
		}
		return nil
	})
}

// FindByNo 按组号查询，连带成员
func (r *tradeGroupRepository) FindByNo(ctx context.Context, groupNo string) (*domain.TradeGroup, error) {
	var group domain.TradeGroup
	err := r.db.WithContext(ctx).
		Preload("Legs").
		Where("trade_group_no = ?", groupNo).
		First(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: trade group %s", domain.ErrNotFound, groupNo)
		}
		return nil, fmt.Errorf("failed to find trade group: %w", err)
	}
	return &group, nil
}

// FindOpen 查询全部进行中的贸易组
func (r *tradeGroupRepository) FindOpen(ctx context.Context) ([]*domain.TradeGroup, error) {
	var groups []*domain.TradeGroup
	err := r.db.WithContext(ctx).
		Preload("Legs").
		Where("status = ?", domain.TradeGroupStatusOpen).
		Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find open trade groups: %w", err)
	}
	return groups, nil
}
