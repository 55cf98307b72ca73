// Package domain defines the core data types shared across the backtester:
// bars, price panel rows, orders, priced trades and portfolio snapshots.
package domain

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the canonical date format used for keys, logs and files.
const DateLayout = "2006-01-02"

// Day normalises t to midnight UTC of its calendar date. Panel keys and
// order keys are always compared as days.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is a single OHLCV bar as delivered by a market data source.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Key identifies a row of a (date, asset) keyed table.
type Key struct {
	Date  time.Time
	Asset string
}

// NewKey builds a Key with the date normalised to a day.
func NewKey(date time.Time, asset string) Key {
	return Key{Date: Day(date), Asset: asset}
}

func (k Key) String() string {
	return k.Date.Format(DateLayout) + "/" + k.Asset
}

// Less orders keys by date, then asset.
func (k Key) Less(o Key) bool {
	if !k.Date.Equal(o.Date) {
		return k.Date.Before(o.Date)
	}
	return k.Asset < o.Asset
}

// Indicators holds the technical indicator columns of a panel row. They are
// computed upstream; NaN marks a value that is not available.
type Indicators struct {
	SMA20      float64
	SMA60      float64
	EMA12      float64
	EMA26      float64
	RSI14      float64
	MACDLine   float64
	MACDSignal float64
	MACDHist   float64
	BollMiddle float64
	BollUpper  float64
	BollLower  float64
	BollWidth  float64
	CCI20      float64
	ADX14      float64
	PlusDI14   float64
	MinusDI14  float64
}

// NoIndicators returns an Indicators value with every field set to NaN.
func NoIndicators() Indicators {
	nan := math.NaN()
	return Indicators{
		SMA20: nan, SMA60: nan, EMA12: nan, EMA26: nan, RSI14: nan,
		MACDLine: nan, MACDSignal: nan, MACDHist: nan,
		BollMiddle: nan, BollUpper: nan, BollLower: nan, BollWidth: nan,
		CCI20: nan, ADX14: nan, PlusDI14: nan, MinusDI14: nan,
	}
}

// PanelRow is one (date, asset) row of the price panel.
//
// ExecRefTPlus1 is the price at which an order formed on Date is filled:
// the next interval's open. It is NaN only on an asset's last date.
// Spread is the relative bid-ask spread estimate and Volatility the
// volatility estimate; both are NaN when the upstream estimator produced
// nothing for the row.
type PanelRow struct {
	Date          time.Time
	Asset         string
	Open          float64
	High          float64
	Low           float64
	Close         float64
	AdjClose      float64
	Volume        float64
	Dividends     float64
	StockSplits   float64
	LogReturn     float64
	DollarVolume  float64
	Volatility    float64
	Spread        float64
	ExecRefTPlus1 float64
	Indicators
	IsCash bool
}

// Key returns the row's (date, asset) key.
func (r PanelRow) Key() Key { return NewKey(r.Date, r.Asset) }

// SpreadOrZero returns the spread estimate clamped at zero. Missing and
// negative estimates both yield zero.
func (r PanelRow) SpreadOrZero() float64 {
	return NonNegative(r.Spread)
}

// VolatilityOrZero returns the volatility estimate clamped at zero.
func (r PanelRow) VolatilityOrZero() float64 {
	return NonNegative(r.Volatility)
}

// NonNegative maps NaN, infinities and negative values to zero.
func NonNegative(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

// Finite reports whether v is neither NaN nor infinite.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// ---------------------------------------------------------------------------
// Orders and trades
// ---------------------------------------------------------------------------

// Order is a signed target trade quantity for one (date, asset):
// positive buys, negative sells.
type Order struct {
	Date     time.Time
	Asset    string
	Quantity float64
}

// Key returns the order's (date, asset) key.
func (o Order) Key() Key { return NewKey(o.Date, o.Asset) }

// Trade is a priced, lot-rounded trade.
type Trade struct {
	Date        time.Time
	Asset       string
	Q           float64 // rounded signed quantity
	PRef        float64 // reference price
	PExec       float64 // spread-adjusted execution price
	Spread      float64 // relative spread applied, already clamped at zero
	NotionalAbs float64 // |Q| * PExec
	SpreadCost  float64 // |Q| * PRef * 0.5 * Spread
}

// Key returns the trade's (date, asset) key.
func (t Trade) Key() Key { return NewKey(t.Date, t.Asset) }

// Side returns +1 for buys, -1 for sells and 0 for empty trades.
func (t Trade) Side() int {
	switch {
	case t.Q > 0:
		return 1
	case t.Q < 0:
		return -1
	}
	return 0
}

// CostedTrade is a Trade with commission and slippage applied.
type CostedTrade struct {
	Trade
	Fees      float64
	VolSlip   float64
	TotalCost float64 // SpreadCost + Fees + VolSlip
}

func (t CostedTrade) String() string {
	return fmt.Sprintf("%s q=%.4f p_exec=%.6f cost=%.6f", t.Key(), t.Q, t.PExec, t.TotalCost)
}

// ---------------------------------------------------------------------------
// Portfolio state
// ---------------------------------------------------------------------------

// Snapshot records the portfolio state at the end of one step.
type Snapshot struct {
	RunID             string
	Step              int
	Date              time.Time
	Cash              float64
	Value             float64
	ValuePreRebalance float64
	Fees              float64
	TotalCost         float64
	Shares            map[string]float64
	Weights           map[string]float64
}
