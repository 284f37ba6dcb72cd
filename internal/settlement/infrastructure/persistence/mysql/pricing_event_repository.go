package mysql

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/wyfcoding/oiltrading/internal/settlement/domain"
)

// pricingEventRepository 定价事件仓储实现
type pricingEventRepository struct {
	db *gorm.DB
}

// NewPricingEventRepository 创建并返回一个新的定价事件仓储实例。
func NewPricingEventRepository(db *gorm.DB) domain.PricingEventRepository {
	return &pricingEventRepository{db: db}
}

func (r *pricingEventRepository) Save(ctx context.Context, event *domain.PricingEvent) error {
	if event.ID == 0 {
		if err := r.db.WithContext(ctx).Create(event).Error; err != nil {
			return fmt.Errorf("failed to create pricing event: %w", err)
		}
		return nil
	}
	if err := r.db.WithContext(ctx).Save(event).Error; err != nil {
		return fmt.Errorf("failed to save pricing event: %w", err)
	}
	return nil
}

func (r *pricingEventRepository) FindByNo(ctx context.Context, eventNo string) (*domain.PricingEvent, error) {
	var event domain.PricingEvent
	err := r.db.WithContext(ctx).Where("event_no = ?", eventNo).First(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: pricing event %s", domain.ErrNotFound, eventNo)
		}
		return nil, fmt.Errorf("failed to find pricing event: %w", err)
	}
	return &event, nil
}

func (r *pricingEventRepository) FindBySettlement(ctx context.Context, settlementNo string) ([]*domain.PricingEvent, error) {
	var events []*domain.PricingEvent
	err := r.db.WithContext(ctx).
		Where("settlement_no = ?", settlementNo).
		Order("created_at ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find pricing events: %w", err)
	}
	return events, nil
}
