package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// SettlementRepository 结算单仓储接口
type SettlementRepository interface {
	// Save 保存聚合根。对已存在的记录按版本号做乐观锁校验，
	// 版本不匹配时返回 ErrVersionConflict。
	Save(ctx context.Context, settlement *Settlement) error
	// FindByNo 按结算单号查询，连带费用台账。未找到时返回 ErrNotFound。
	FindByNo(ctx context.Context, settlementNo string) (*Settlement, error)
	// FindByContract 查询某合同下的全部结算单
	FindByContract(ctx context.Context, contractID string) ([]*Settlement, error)
	// FindByStatus 按状态分页查询
	FindByStatus(ctx context.Context, status SettlementStatus, offset, limit int) ([]*Settlement, int64, error)
	// CountByStatus 按状态统计数量
	CountByStatus(ctx context.Context, status SettlementStatus) (int64, error)
}

// PaymentRepository 付款仓储接口
type PaymentRepository interface {
	Save(ctx context.Context, payment *Payment) error
	FindByNo(ctx context.Context, paymentNo string) (*Payment, error)
	// FindBySettlement 查询某结算单下的全部付款，连带状态变更历史
	FindBySettlement(ctx context.Context, settlementNo string) ([]*Payment, error)
	// FindOverdue 查询截至 asOf 已逾期的付款
	FindOverdue(ctx context.Context, asOf time.Time) ([]*Payment, error)
}

// PricingEventRepository 定价事件仓储接口
type PricingEventRepository interface {
	Save(ctx context.Context, event *PricingEvent) error
	FindByNo(ctx context.Context, eventNo string) (*PricingEvent, error)
	FindBySettlement(ctx context.Context, settlementNo string) ([]*PricingEvent, error)
}

// BenchmarkQuote 某基准某交易日的报价
type BenchmarkQuote struct {
	BenchmarkID string
	QuoteDate   time.Time
	Price       decimal.Decimal
	Currency    string
}

// PriceResolver 基准价解析服务。
// 给定基准和定价日序列，返回序列内有报价日期的算术均价及币种和报价天数。
// 序列内没有任何报价时返回 ErrNotFound，上游数据源不可用时返回 ErrExternalDependency。
type PriceResolver interface {
	ResolveAverage(ctx context.Context, benchmarkID string, dates []time.Time) (decimal.Decimal, string, int, error)
	QuotesOn(ctx context.Context, benchmarkID string, dates []time.Time) ([]BenchmarkQuote, error)
}
