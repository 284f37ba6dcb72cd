package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wyfcoding/oiltrading/pkg/idgen"
)

// PricingEventType 锚定定价窗口的物理事件类型
type PricingEventType string

const (
	PricingEventBL  PricingEventType = "BL"  // 提单
	PricingEventNOR PricingEventType = "NOR" // 备装通知
	PricingEventCOD PricingEventType = "COD" // 卸货证书
)

// IsValid 判断事件类型是否为已定义的枚举值
func (t PricingEventType) IsValid() bool {
	switch t {
	case PricingEventBL, PricingEventNOR, PricingEventCOD:
		return true
	}
	return false
}

// PricingWindow 定价窗口值对象：事件日前后各若干个自然日。
// 定价日序列剔除周六周日；IncludeEventDay 为假时再剔除事件日本身。
// 相同输入重复解析结果一致。
type PricingWindow struct {
	EventDate       time.Time `gorm:"column:event_date" json:"event_date"`
	BeforeDays      int       `gorm:"column:before_days" json:"before_days"`
	AfterDays       int       `gorm:"column:after_days" json:"after_days"`
	IncludeEventDay bool      `gorm:"column:include_event_day" json:"include_event_day"`
}

// Validate 校验窗口参数
func (w PricingWindow) Validate() error {
	if w.EventDate.IsZero() {
		return fmt.Errorf("%w: pricing window needs an event date", ErrInvariantViolation)
	}
	if w.BeforeDays < 0 || w.AfterDays < 0 {
		return fmt.Errorf("%w: pricing window days must not be negative", ErrInvariantViolation)
	}
	return nil
}

// Period 窗口的自然日起止（含两端）：事件日前 BeforeDays 天到事件日后 AfterDays 天
func (w PricingWindow) Period() (time.Time, time.Time, error) {
	if err := w.Validate(); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return w.EventDate.AddDate(0, 0, -w.BeforeDays), w.EventDate.AddDate(0, 0, w.AfterDays), nil
}

// PricingDates 窗口内的逐日定价日期序列：
// [periodStart, periodEnd] 内剔除周六周日，IncludeEventDay 为假时剔除事件日。
func (w PricingWindow) PricingDates() ([]time.Time, error) {
	start, end, err := w.Period()
	if err != nil {
		return nil, err
	}
	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		if !w.IncludeEventDay && sameDay(d, w.EventDate) {
			continue
		}
		dates = append(dates, d)
	}
	return dates, nil
}

// TotalPricingDays 定价日天数
func (w PricingWindow) TotalPricingDays() (int, error) {
	dates, err := w.PricingDates()
	if err != nil {
		return 0, err
	}
	return len(dates), nil
}

// Reanchor 以新的事件日重建窗口，其余参数不变
func (w PricingWindow) Reanchor(eventDate time.Time) PricingWindow {
	w.EventDate = eventDate
	return w
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// PricingEvent 定价事件实体。
// 记录一次基准价在定价窗口内的解析结果；以实际事件日确认后窗口重新锚定，
// 此后事件不再变更。
type PricingEvent struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	EventNo      string           `gorm:"column:event_no;type:varchar(32);uniqueIndex;not null" json:"event_no"`
	SettlementNo string           `gorm:"column:settlement_no;type:varchar(32);index;not null" json:"settlement_no"`
	BenchmarkID  string           `gorm:"column:benchmark_id;type:varchar(32);not null" json:"benchmark_id"`
	EventType    PricingEventType `gorm:"column:event_type;type:varchar(8);not null" json:"event_type"`

	Window           PricingWindow `gorm:"embedded" json:"window"`
	PeriodStart      time.Time     `gorm:"column:period_start" json:"period_start"`
	PeriodEnd        time.Time     `gorm:"column:period_end" json:"period_end"`
	TotalPricingDays int           `gorm:"column:total_pricing_days" json:"total_pricing_days"`

	AveragePrice  decimal.Decimal `gorm:"column:average_price;type:decimal(20,6)" json:"average_price"`
	PriceCurrency string          `gorm:"column:price_currency;type:varchar(3)" json:"price_currency"`
	QuotedDays    int             `gorm:"column:quoted_days" json:"quoted_days"`

	IsConfirmed     bool       `gorm:"column:is_confirmed;not null;default:false" json:"is_confirmed"`
	ActualEventDate *time.Time `gorm:"column:actual_event_date" json:"actual_event_date"`
	ConfirmedBy     string     `gorm:"column:confirmed_by;type:varchar(64)" json:"confirmed_by"`
	ConfirmedAt     *time.Time `gorm:"column:confirmed_at" json:"confirmed_at"`
}

// TableName 表名
func (PricingEvent) TableName() string {
	return "pricing_events"
}

// NewPricingEvent 创建待确认的定价事件
func NewPricingEvent(settlementNo, benchmarkID string, eventType PricingEventType, window PricingWindow) (*PricingEvent, error) {
	if !eventType.IsValid() {
		return nil, fmt.Errorf("%w: unknown pricing event type %q", ErrInvariantViolation, eventType)
	}
	start, end, err := window.Period()
	if err != nil {
		return nil, err
	}
	days, err := window.TotalPricingDays()
	if err != nil {
		return nil, err
	}
	return &PricingEvent{
		EventNo:          fmt.Sprintf("PRC%d", idgen.GenID()),
		SettlementNo:     settlementNo,
		BenchmarkID:      benchmarkID,
		EventType:        eventType,
		Window:           window,
		PeriodStart:      start,
		PeriodEnd:        end,
		TotalPricingDays: days,
	}, nil
}

// PricingDates 当前窗口的定价日序列
func (e *PricingEvent) PricingDates() ([]time.Time, error) {
	return e.Window.PricingDates()
}

// Confirm 以实际事件日确认定价事件：窗口重新锚定到实际事件日并重算起止，
// 确认只能发生一次，之后事件不可变更。
func (e *PricingEvent) Confirm(actualEventDate time.Time, by string) error {
	if e.IsConfirmed {
		return fmt.Errorf("%w: pricing event %s is already confirmed", ErrIllegalStateTransition, e.EventNo)
	}
	if actualEventDate.IsZero() {
		return fmt.Errorf("%w: actual event date is required", ErrInvariantViolation)
	}

	window := e.Window.Reanchor(actualEventDate)
	start, end, err := window.Period()
	if err != nil {
		return err
	}
	days, err := window.TotalPricingDays()
	if err != nil {
		return err
	}

	now := time.Now()
	e.Window = window
	e.PeriodStart = start
	e.PeriodEnd = end
	e.TotalPricingDays = days
	e.IsConfirmed = true
	e.ActualEventDate = &actualEventDate
	e.ConfirmedBy = by
	e.ConfirmedAt = &now
	return nil
}
