package util

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
)

// ErrUnorderedDates is returned when trading dates are not strictly
// increasing.
var ErrUnorderedDates = errors.New("trading dates not strictly increasing")

// TradingCalendar is the ordered sequence of trading dates of a panel.
type TradingCalendar struct {
	dates []time.Time
}

// NewTradingCalendar builds a calendar from dates, which must be strictly
// increasing after normalisation to days.
func NewTradingCalendar(dates []time.Time) (*TradingCalendar, error) {
	out := make([]time.Time, len(dates))
	for i, d := range dates {
		out[i] = domain.Day(d)
		if i > 0 && !out[i].After(out[i-1]) {
			return nil, fmt.Errorf("%s after %s: %w",
				out[i].Format(domain.DateLayout), out[i-1].Format(domain.DateLayout), ErrUnorderedDates)
		}
	}
	return &TradingCalendar{dates: out}, nil
}

// Len returns the number of trading dates.
func (tc *TradingCalendar) Len() int { return len(tc.dates) }

// Date returns the i-th trading date.
func (tc *TradingCalendar) Date(i int) time.Time { return tc.dates[i] }

// Dates returns a copy of all trading dates.
func (tc *TradingCalendar) Dates() []time.Time {
	return append([]time.Time(nil), tc.dates...)
}

// Index returns the position of d, or -1 when d is not a trading date.
func (tc *TradingCalendar) Index(d time.Time) int {
	day := domain.Day(d)
	i := sort.Search(len(tc.dates), func(i int) bool { return !tc.dates[i].Before(day) })
	if i < len(tc.dates) && tc.dates[i].Equal(day) {
		return i
	}
	return -1
}

// Next returns the first trading date strictly after d.
func (tc *TradingCalendar) Next(d time.Time) (time.Time, bool) {
	day := domain.Day(d)
	i := sort.Search(len(tc.dates), func(i int) bool { return tc.dates[i].After(day) })
	if i == len(tc.dates) {
		return time.Time{}, false
	}
	return tc.dates[i], true
}

// Between returns the calendar restricted to [start, end]. A zero bound is
// open.
func (tc *TradingCalendar) Between(start, end time.Time) *TradingCalendar {
	var out []time.Time
	for _, d := range tc.dates {
		if !start.IsZero() && d.Before(domain.Day(start)) {
			continue
		}
		if !end.IsZero() && d.After(domain.Day(end)) {
			break
		}
		out = append(out, d)
	}
	return &TradingCalendar{dates: out}
}

// CalendarDays returns the number of calendar days from the i-th to the
// (i+1)-th trading date.
func (tc *TradingCalendar) CalendarDays(i int) int {
	if i < 0 || i+1 >= len(tc.dates) {
		return 0
	}
	return int(tc.dates[i+1].Sub(tc.dates[i]).Hours() / 24)
}
