package mysql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/wyfcoding/oiltrading/internal/settlement/domain"
)

// paymentRepository 付款仓储实现
type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建并返回一个新的付款仓储实例。
func NewPaymentRepository(db *gorm.DB) domain.PaymentRepository {
	return &paymentRepository{db: db}
}

// Save 保存付款（带乐观锁）。状态历史只追加未入库的记录。
func (r *paymentRepository) Save(ctx context.Context, payment *domain.Payment) error {
	if payment.ID == 0 {
		payment.Version = 1
		if err := r.db.WithContext(ctx).Create(payment).Error; err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		currentVersion := payment.Version
		result := tx.Model(&domain.Payment{}).
			Where("payment_no = ? AND version = ?", payment.PaymentNo, currentVersion).
			Updates(map[string]any{
				"status":         payment.Status,
				"bank_reference": payment.BankReference,
				"value_date":     payment.ValueDate,
				"failure_note":   payment.FailureNote,
				"updated_by":     payment.Audit.UpdatedBy,
				"version":        currentVersion + 1,
			})
		if result.Error != nil {
			return fmt.Errorf("failed to update payment: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: payment %s version %d", domain.ErrVersionConflict, payment.PaymentNo, currentVersion)
		}
		payment.Version = currentVersion + 1

		for i := range payment.History {
			if payment.History[i].ID != 0 {
				continue
			}
			if err := tx.Create(&payment.History[i]).Error; err != nil {
				return fmt.Errorf("failed to append status history: %w", err)
			}
		}
		return nil
	})
}

// FindByNo 按付款单号查询，连带状态变更历史
func (r *paymentRepository) FindByNo(ctx context.Context, paymentNo string) (*domain.Payment, error) {
	var payment domain.Payment
	err := r.db.WithContext(ctx).
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("occurred_at ASC")
		}).
		Where("payment_no = ?", paymentNo).
		First(&payment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: payment %s", domain.ErrNotFound, paymentNo)
		}
		return nil, fmt.Errorf("failed to find payment: %w", err)
	}
	payment.InitFSM()
	return &payment, nil
}

// FindBySettlement 查询某结算单下的全部付款
func (r *paymentRepository) FindBySettlement(ctx context.Context, settlementNo string) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	err := r.db.WithContext(ctx).
		Preload("History", func(db *gorm.DB) *gorm.DB {
			return db.Order("occurred_at ASC")
		}).
		Where("settlement_no = ?", settlementNo).
		Order("created_at ASC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find payments by settlement: %w", err)
	}
	for _, p := range payments {
		p.InitFSM()
	}
	return payments, nil
}

// FindOverdue 查询截至 asOf 已逾期的付款
func (r *paymentRepository) FindOverdue(ctx context.Context, asOf time.Time) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	err := r.db.WithContext(ctx).
		Where("due_date IS NOT NULL AND due_date < ? AND status IN ?", asOf,
			[]domain.PaymentStatus{domain.PaymentStatusPending, domain.PaymentStatusInitiated, domain.PaymentStatusInTransit}).
		Order("due_date ASC").
		Find(&payments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find overdue payments: %w", err)
	}
	for _, p := range payments {
		p.InitFSM()
	}
	return payments, nil
}
