// Package cashasset synthesises a riskless "cash" instrument from an
// annualised risk-free rate series, so that an allocation can park value in
// cash and earn the rate through the same price mechanics as any other
// asset.
package cashasset

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/panel"
)

// Defaults used when a Config field is left zero.
const (
	DefaultSymbol   = "CASH"
	DefaultDayCount = 360
)

// Synthesizer errors.
var (
	// ErrNoDates is returned when Build is called without dates.
	ErrNoDates = errors.New("no trading dates")

	// ErrUnordered is returned when the trading dates are not strictly
	// increasing.
	ErrUnordered = errors.New("trading dates not strictly increasing")

	// ErrNoRate is returned when no rate observation exists on or before a
	// trading date.
	ErrNoRate = errors.New("no risk-free rate known as of date")

	// ErrCashSymbolExists is returned by Merge when the panel already holds
	// the cash symbol.
	ErrCashSymbolExists = errors.New("cash symbol already present in panel")
)

// Config controls the synthetic instrument.
type Config struct {
	Symbol   string `yaml:"symbol"`
	DayCount int    `yaml:"day_count"`
}

// DefaultConfig returns the documented defaults: symbol CASH on an
// ACT/360 basis.
func DefaultConfig() Config {
	return Config{Symbol: DefaultSymbol, DayCount: DefaultDayCount}
}

func (c Config) withDefaults() Config {
	if c.Symbol == "" {
		c.Symbol = DefaultSymbol
	}
	if c.DayCount <= 0 {
		c.DayCount = DefaultDayCount
	}
	return c
}

// Rate is one observation of an annualised rate in decimal (0.03 = 3%).
type Rate struct {
	Date   time.Time `yaml:"date"`
	Annual float64   `yaml:"rate"`
}

// RateSeries is a set of rate observations. It need not be sorted or
// aligned to the trading calendar.
type RateSeries []Rate

// AsOf returns the most recent observation on or before date. Observations
// with a NaN rate are skipped so that gaps are filled from the last known
// value.
func (rs RateSeries) AsOf(date time.Time) (float64, bool) {
	return rs.sorted().asOf(date)
}

// asOf is AsOf on a series already normalised by sorted.
func (rs RateSeries) asOf(date time.Time) (float64, bool) {
	day := domain.Day(date)
	i := sort.Search(len(rs), func(i int) bool { return rs[i].Date.After(day) })
	for j := i - 1; j >= 0; j-- {
		if !math.IsNaN(rs[j].Annual) {
			return rs[j].Annual, true
		}
	}
	return 0, false
}

func (rs RateSeries) sorted() RateSeries {
	out := make(RateSeries, len(rs))
	for i, r := range rs {
		out[i] = Rate{Date: domain.Day(r.Date), Annual: r.Annual}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Build produces one panel row per date for the synthetic instrument.
//
// The accrual factor of date t is 1 + rate_t * days(t, t+1) / DayCount and
// the close is the running product of factors; the last date has no
// following interval and its factor is exactly 1. Open is the previous
// close (1.0 on the first date), high and low coincide with open and close,
// ExecRefTPlus1 is the next open. Indicator columns are NaN.
func Build(dates []time.Time, rates RateSeries, cfg Config) ([]domain.PanelRow, error) {
	cfg = cfg.withDefaults()
	if len(dates) == 0 {
		return nil, ErrNoDates
	}

	days := make([]time.Time, len(dates))
	for i, d := range dates {
		days[i] = domain.Day(d)
		if i > 0 && !days[i].After(days[i-1]) {
			return nil, fmt.Errorf("%s after %s: %w",
				days[i].Format(domain.DateLayout), days[i-1].Format(domain.DateLayout), ErrUnordered)
		}
	}

	sorted := rates.sorted()
	factors := make([]float64, len(days))
	for i, d := range days {
		if i == len(days)-1 {
			factors[i] = 1
			break
		}
		rate, ok := sorted.asOf(d)
		if !ok {
			return nil, fmt.Errorf("%s: %w", d.Format(domain.DateLayout), ErrNoRate)
		}
		frac := float64(calendarDays(d, days[i+1])) / float64(cfg.DayCount)
		factors[i] = 1 + rate*frac
	}

	rows := make([]domain.PanelRow, len(days))
	prevClose := 1.0
	for i, d := range days {
		open := prevClose
		closePx := prevClose * factors[i]
		rows[i] = domain.PanelRow{
			Date:          d,
			Asset:         cfg.Symbol,
			Open:          open,
			High:          math.Max(open, closePx),
			Low:           math.Min(open, closePx),
			Close:         closePx,
			AdjClose:      closePx,
			Volume:        0,
			Dividends:     0,
			StockSplits:   1,
			LogReturn:     math.Log(factors[i]),
			DollarVolume:  0,
			Volatility:    0,
			Spread:        0,
			ExecRefTPlus1: math.NaN(),
			Indicators:    domain.NoIndicators(),
			IsCash:        true,
		}
		if i > 0 {
			rows[i-1].ExecRefTPlus1 = open
		}
		prevClose = closePx
	}
	return rows, nil
}

// Merge adds the cash rows to p. The cash symbol must not already be one of
// the panel's assets.
func Merge(p *panel.Panel, rows []domain.PanelRow) error {
	if len(rows) == 0 {
		return nil
	}
	symbol := rows[0].Asset
	if p.HasAsset(symbol) {
		return fmt.Errorf("merging %s: %w", symbol, ErrCashSymbolExists)
	}
	return p.Add(rows...)
}

// DailyRate converts an annual rate in percent into a simple daily rate in
// decimal on the given day-count basis.
func DailyRate(annualPct float64, basis int) float64 {
	if basis <= 0 {
		basis = DefaultDayCount
	}
	return annualPct / 100 / float64(basis)
}

// DailyFactor returns 1 + DailyRate(annualPct, basis).
func DailyFactor(annualPct float64, basis int) float64 {
	return 1 + DailyRate(annualPct, basis)
}

func calendarDays(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Hours() / 24))
}
