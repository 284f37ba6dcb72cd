package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestPricingWindowPeriod(t *testing.T) {
	// 2026-03-11 是周三
	w := PricingWindow{EventDate: date(2026, 3, 11), BeforeDays: 2, AfterDays: 2, IncludeEventDay: true}

	start, end, err := w.Period()
	require.NoError(t, err)
	assert.True(t, start.Equal(date(2026, 3, 9)))
	assert.True(t, end.Equal(date(2026, 3, 13)))
}

func TestPricingWindowValidation(t *testing.T) {
	_, _, err := PricingWindow{BeforeDays: 1, AfterDays: 1}.Period()
	require.ErrorIs(t, err, ErrInvariantViolation)

	_, _, err = PricingWindow{EventDate: date(2026, 3, 11), BeforeDays: -1}.Period()
	require.ErrorIs(t, err, ErrInvariantViolation)

	_, _, err = PricingWindow{EventDate: date(2026, 3, 11), AfterDays: -3}.Period()
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestPricingDatesExcludeWeekends(t *testing.T) {
	// 窗口 03-09（周一）到 03-13（周五）再向后两天跨过周末到 03-17
	w := PricingWindow{EventDate: date(2026, 3, 13), BeforeDays: 4, AfterDays: 4, IncludeEventDay: true}

	dates, err := w.PricingDates()
	require.NoError(t, err)
	// 9 个自然日里剔除 03-14（周六）和 03-15（周日）
	require.Len(t, dates, 7)
	for _, d := range dates {
		assert.NotEqual(t, time.Saturday, d.Weekday())
		assert.NotEqual(t, time.Sunday, d.Weekday())
	}
	assert.True(t, dates[0].Equal(date(2026, 3, 9)))
	assert.True(t, dates[6].Equal(date(2026, 3, 17)))
}

func TestPricingDatesExcludeEventDayWhenFlagged(t *testing.T) {
	event := date(2026, 3, 11)
	with := PricingWindow{EventDate: event, BeforeDays: 1, AfterDays: 1, IncludeEventDay: true}
	without := PricingWindow{EventDate: event, BeforeDays: 1, AfterDays: 1, IncludeEventDay: false}

	withDates, err := with.PricingDates()
	require.NoError(t, err)
	withoutDates, err := without.PricingDates()
	require.NoError(t, err)

	assert.Len(t, withDates, 3)
	assert.Len(t, withoutDates, 2)
	for _, d := range withoutDates {
		assert.False(t, sameDay(d, event))
	}
}

func TestWindowLengthProperty(t *testing.T) {
	// 自然日长度恒为 before + after + 1；定价日数不超过自然日长度
	for before := 0; before <= 10; before++ {
		for after := 0; after <= 10; after++ {
			w := PricingWindow{EventDate: date(2026, 3, 11), BeforeDays: before, AfterDays: after, IncludeEventDay: true}
			start, end, err := w.Period()
			require.NoError(t, err)

			calendarDays := int(end.Sub(start).Hours()/24) + 1
			assert.Equal(t, before+after+1, calendarDays)

			days, err := w.TotalPricingDays()
			require.NoError(t, err)
			assert.LessOrEqual(t, days, calendarDays)
		}
	}
}

func TestPricingDatesAreRestartable(t *testing.T) {
	w := PricingWindow{EventDate: date(2026, 3, 11), BeforeDays: 3, AfterDays: 3, IncludeEventDay: false}

	first, err := w.PricingDates()
	require.NoError(t, err)
	second, err := w.PricingDates()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestNewPricingEventDerivesWindow(t *testing.T) {
	w := PricingWindow{EventDate: date(2026, 3, 11), BeforeDays: 2, AfterDays: 2, IncludeEventDay: true}
	e, err := NewPricingEvent("STL-1", "PLATTS-DUBAI", PricingEventBL, w)
	require.NoError(t, err)

	assert.True(t, e.PeriodStart.Equal(date(2026, 3, 9)))
	assert.True(t, e.PeriodEnd.Equal(date(2026, 3, 13)))
	assert.Equal(t, 5, e.TotalPricingDays)
	assert.False(t, e.IsConfirmed)

	_, err = NewPricingEvent("STL-1", "PLATTS-DUBAI", "ETA", w)
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestConfirmReanchorsWindow(t *testing.T) {
	w := PricingWindow{EventDate: date(2026, 3, 11), BeforeDays: 2, AfterDays: 2, IncludeEventDay: true}
	e, err := NewPricingEvent("STL-1", "PLATTS-DUBAI", PricingEventNOR, w)
	require.NoError(t, err)

	// 实际备装比预计晚一周
	actual := date(2026, 3, 18)
	require.NoError(t, e.Confirm(actual, "ops"))

	assert.True(t, e.IsConfirmed)
	assert.True(t, e.Window.EventDate.Equal(actual))
	assert.True(t, e.PeriodStart.Equal(date(2026, 3, 16)))
	assert.True(t, e.PeriodEnd.Equal(date(2026, 3, 20)))
	require.NotNil(t, e.ActualEventDate)
	assert.Equal(t, "ops", e.ConfirmedBy)
}

func TestConfirmOnlyOnce(t *testing.T) {
	w := PricingWindow{EventDate: date(2026, 3, 11), BeforeDays: 1, AfterDays: 1, IncludeEventDay: true}
	e, err := NewPricingEvent("STL-1", "PLATTS-DUBAI", PricingEventCOD, w)
	require.NoError(t, err)

	require.NoError(t, e.Confirm(date(2026, 3, 12), "ops"))
	err = e.Confirm(date(2026, 3, 13), "ops")
	require.ErrorIs(t, err, ErrIllegalStateTransition)
	assert.True(t, e.Window.EventDate.Equal(date(2026, 3, 12)), "failed confirm must not move the window")

	err = e.Confirm(time.Time{}, "ops")
	require.ErrorIs(t, err, ErrIllegalStateTransition)
}
