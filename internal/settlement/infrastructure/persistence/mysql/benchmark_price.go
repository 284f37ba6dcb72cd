package mysql

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/wyfcoding/oiltrading/internal/settlement/domain"
)

// BenchmarkPriceModel 基准价行情表
type BenchmarkPriceModel struct {
	ID          uint            `gorm:"primaryKey"`
	BenchmarkID string          `gorm:"column:benchmark_id;type:varchar(32);uniqueIndex:idx_benchmark_date;not null"`
	QuoteDate   time.Time       `gorm:"column:quote_date;uniqueIndex:idx_benchmark_date;not null"`
	Price       decimal.Decimal `gorm:"column:price;type:decimal(20,6);not null"`
	Currency    string          `gorm:"column:currency;type:varchar(3);not null"`
	Source      string          `gorm:"column:source;type:varchar(32)"`
	CreatedAt   time.Time
}

// TableName 表名
func (BenchmarkPriceModel) TableName() string {
	return "benchmark_prices"
}

// benchmarkPriceResolver 基于行情表的基准价解析实现
type benchmarkPriceResolver struct {
	db *gorm.DB
}

// NewBenchmarkPriceResolver 创建并返回一个新的基准价解析实例。
func NewBenchmarkPriceResolver(db *gorm.DB) domain.PriceResolver {
	return &benchmarkPriceResolver{db: db}
}

// ResolveAverage 返回定价日序列内有报价日期的算术均价。
// 节假日无报价即自然缺席，均价以实际有报价的日期为准。
func (r *benchmarkPriceResolver) ResolveAverage(ctx context.Context, benchmarkID string, dates []time.Time) (decimal.Decimal, string, int, error) {
	quotes, err := r.QuotesOn(ctx, benchmarkID, dates)
	if err != nil {
		return decimal.Zero, "", 0, err
	}
	if len(quotes) == 0 {
		return decimal.Zero, "", 0, fmt.Errorf("%w: no quotes for benchmark %s on %d pricing dates",
			domain.ErrNotFound, benchmarkID, len(dates))
	}

	sum := decimal.Zero
	for _, q := range quotes {
		sum = sum.Add(q.Price)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(quotes))))
	return avg, quotes[0].Currency, len(quotes), nil
}

// QuotesOn 返回定价日序列上的全部报价，按日期升序
func (r *benchmarkPriceResolver) QuotesOn(ctx context.Context, benchmarkID string, dates []time.Time) ([]domain.BenchmarkQuote, error) {
	if len(dates) == 0 {
		return nil, nil
	}
	days := make([]string, 0, len(dates))
	for _, d := range dates {
		days = append(days, d.Format(time.DateOnly))
	}

	var models []BenchmarkPriceModel
	err := r.db.WithContext(ctx).
		Where("benchmark_id = ? AND DATE(quote_date) IN ?", benchmarkID, days).
		Order("quote_date ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load benchmark quotes: %v", domain.ErrExternalDependency, err)
	}

	quotes := make([]domain.BenchmarkQuote, 0, len(models))
	for _, m := range models {
		quotes = append(quotes, domain.BenchmarkQuote{
			BenchmarkID: m.BenchmarkID,
			QuoteDate:   m.QuoteDate,
			Price:       m.Price,
			Currency:    m.Currency,
		})
	}
	return quotes, nil
}
