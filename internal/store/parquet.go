package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ PanelStore = (*ParquetStore)(nil)
var _ TradeStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore, PanelStore and TradeStore using Parquet
// files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// PanelRecord is the Parquet schema of one panel row. Missing values are
// stored as NaN.
type PanelRecord struct {
	Date          int64   `parquet:"date,timestamp(millisecond)"`
	Asset         string  `parquet:"asset"`
	Open          float64 `parquet:"open"`
	High          float64 `parquet:"high"`
	Low           float64 `parquet:"low"`
	Close         float64 `parquet:"close"`
	AdjClose      float64 `parquet:"adj_close"`
	Volume        float64 `parquet:"volume"`
	Dividends     float64 `parquet:"dividends"`
	StockSplits   float64 `parquet:"stock_splits"`
	LogReturn     float64 `parquet:"log_return"`
	DollarVolume  float64 `parquet:"dollar_volume"`
	Volatility    float64 `parquet:"vol_hl"`
	Spread        float64 `parquet:"spread_cs"`
	ExecRefTPlus1 float64 `parquet:"exec_ref_tplus1"`
	SMA20         float64 `parquet:"sma_20"`
	SMA60         float64 `parquet:"sma_60"`
	EMA12         float64 `parquet:"ema_12"`
	EMA26         float64 `parquet:"ema_26"`
	RSI14         float64 `parquet:"rsi_14"`
	MACDLine      float64 `parquet:"macd_line"`
	MACDSignal    float64 `parquet:"macd_signal"`
	MACDHist      float64 `parquet:"macd_hist"`
	BollMiddle    float64 `parquet:"boll_middle"`
	BollUpper     float64 `parquet:"boll_upper"`
	BollLower     float64 `parquet:"boll_lower"`
	BollWidth     float64 `parquet:"boll_width"`
	CCI20         float64 `parquet:"cci_20"`
	ADX14         float64 `parquet:"adx_14"`
	PlusDI14      float64 `parquet:"plus_di_14"`
	MinusDI14     float64 `parquet:"minus_di_14"`
	IsCash        int32   `parquet:"is_cash"`
}

// TradeRecord is the Parquet schema of one costed trade.
type TradeRecord struct {
	Date        int64   `parquet:"date,timestamp(millisecond)"`
	Asset       string  `parquet:"asset"`
	Q           float64 `parquet:"q"`
	PRef        float64 `parquet:"p_ref"`
	PExec       float64 `parquet:"p_exec"`
	Spread      float64 `parquet:"spread"`
	NotionalAbs float64 `parquet:"notional_abs"`
	SpreadCost  float64 `parquet:"spread_cost"`
	Fees        float64 `parquet:"fees"`
	VolSlip     float64 `parquet:"vol_slip"`
	TotalCost   float64 `parquet:"total_cost"`
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/bars/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) WriteBars(_ context.Context, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		sym := strings.ToUpper(b.Symbol)
		k := key{symbol: sym, year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], BarRecord{
			Symbol:     sym,
			Timestamp:  b.Timestamp.UnixMilli(),
			Open:       b.Open,
			High:       b.High,
			Low:        b.Low,
			Close:      b.Close,
			Volume:     b.Volume,
			TradeCount: b.TradeCount,
			VWAP:       b.VWAP,
		})
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, k.year)

		// Read existing records to merge.
		existing, _ := readParquetFile[BarRecord](path)
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and time range.
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		records, err := readParquetFile[BarRecord](s.barPath(symbol, year))
		if err != nil {
			// File doesn't exist for this year — skip.
			continue
		}

		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if ts.Before(start) || ts.After(end) {
				continue
			}
			bars = append(bars, domain.Bar{
				Symbol:     r.Symbol,
				Timestamp:  ts,
				Open:       r.Open,
				High:       r.High,
				Low:        r.Low,
				Close:      r.Close,
				Volume:     r.Volume,
				TradeCount: r.TradeCount,
				VWAP:       r.VWAP,
			})
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data.
func (s *ParquetStore) ListSymbols(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.DataDir, "bars"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// PanelStore implementation
// ---------------------------------------------------------------------------

// WritePanel replaces <DataDir>/panels/<name>.parquet.
func (s *ParquetStore) WritePanel(_ context.Context, name string, rows []domain.PanelRow) error {
	path, err := s.panelPath(name)
	if err != nil {
		return err
	}
	records := make([]PanelRecord, len(rows))
	for i, r := range rows {
		records[i] = toPanelRecord(r)
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date < records[j].Date
		}
		return records[i].Asset < records[j].Asset
	})
	if err := writeParquetFile(path, records); err != nil {
		return fmt.Errorf("writing panel %s: %w", name, err)
	}
	return nil
}

// ReadPanel reads a panel written by WritePanel.
func (s *ParquetStore) ReadPanel(_ context.Context, name string) ([]domain.PanelRow, error) {
	path, err := s.panelPath(name)
	if err != nil {
		return nil, err
	}
	records, err := readParquetFile[PanelRecord](path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("panel %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("reading panel %s: %w", name, err)
	}
	rows := make([]domain.PanelRow, len(records))
	for i, r := range records {
		rows[i] = fromPanelRecord(r)
	}
	return rows, nil
}

func toPanelRecord(r domain.PanelRow) PanelRecord {
	rec := PanelRecord{
		Date:          domain.Day(r.Date).UnixMilli(),
		Asset:         r.Asset,
		Open:          r.Open,
		High:          r.High,
		Low:           r.Low,
		Close:         r.Close,
		AdjClose:      r.AdjClose,
		Volume:        r.Volume,
		Dividends:     r.Dividends,
		StockSplits:   r.StockSplits,
		LogReturn:     r.LogReturn,
		DollarVolume:  r.DollarVolume,
		Volatility:    r.Volatility,
		Spread:        r.Spread,
		ExecRefTPlus1: r.ExecRefTPlus1,
		SMA20:         r.SMA20,
		SMA60:         r.SMA60,
		EMA12:         r.EMA12,
		EMA26:         r.EMA26,
		RSI14:         r.RSI14,
		MACDLine:      r.MACDLine,
		MACDSignal:    r.MACDSignal,
		MACDHist:      r.MACDHist,
		BollMiddle:    r.BollMiddle,
		BollUpper:     r.BollUpper,
		BollLower:     r.BollLower,
		BollWidth:     r.BollWidth,
		CCI20:         r.CCI20,
		ADX14:         r.ADX14,
		PlusDI14:      r.PlusDI14,
		MinusDI14:     r.MinusDI14,
	}
	if r.IsCash {
		rec.IsCash = 1
	}
	return rec
}

func fromPanelRecord(r PanelRecord) domain.PanelRow {
	return domain.PanelRow{
		Date:          time.UnixMilli(r.Date).UTC(),
		Asset:         r.Asset,
		Open:          r.Open,
		High:          r.High,
		Low:           r.Low,
		Close:         r.Close,
		AdjClose:      r.AdjClose,
		Volume:        r.Volume,
		Dividends:     r.Dividends,
		StockSplits:   r.StockSplits,
		LogReturn:     r.LogReturn,
		DollarVolume:  r.DollarVolume,
		Volatility:    r.Volatility,
		Spread:        r.Spread,
		ExecRefTPlus1: r.ExecRefTPlus1,
		Indicators: domain.Indicators{
			SMA20:      r.SMA20,
			SMA60:      r.SMA60,
			EMA12:      r.EMA12,
			EMA26:      r.EMA26,
			RSI14:      r.RSI14,
			MACDLine:   r.MACDLine,
			MACDSignal: r.MACDSignal,
			MACDHist:   r.MACDHist,
			BollMiddle: r.BollMiddle,
			BollUpper:  r.BollUpper,
			BollLower:  r.BollLower,
			BollWidth:  r.BollWidth,
			CCI20:      r.CCI20,
			ADX14:      r.ADX14,
			PlusDI14:   r.PlusDI14,
			MinusDI14:  r.MinusDI14,
		},
		IsCash: r.IsCash == 1,
	}
}

// ---------------------------------------------------------------------------
// TradeStore implementation
// ---------------------------------------------------------------------------

// WriteTrades merges trades into <DataDir>/runs/<runID>/trades.parquet.
func (s *ParquetStore) WriteTrades(_ context.Context, runID string, trades []domain.CostedTrade) error {
	path, err := s.tradePath(runID)
	if err != nil {
		return err
	}
	if len(trades) == 0 {
		return nil
	}

	records := make([]TradeRecord, len(trades))
	for i, t := range trades {
		records[i] = TradeRecord{
			Date:        domain.Day(t.Date).UnixMilli(),
			Asset:       t.Asset,
			Q:           t.Q,
			PRef:        t.PRef,
			PExec:       t.PExec,
			Spread:      t.Spread,
			NotionalAbs: t.NotionalAbs,
			SpreadCost:  t.SpreadCost,
			Fees:        t.Fees,
			VolSlip:     t.VolSlip,
			TotalCost:   t.TotalCost,
		}
	}

	existing, _ := readParquetFile[TradeRecord](path)
	if err := writeParquetFile(path, mergeTradeRecords(existing, records)); err != nil {
		return fmt.Errorf("writing trades for run %s: %w", runID, err)
	}
	return nil
}

// ReadTrades reads the trades of a run. A run without trades yields an
// empty result.
func (s *ParquetStore) ReadTrades(_ context.Context, runID string) ([]domain.CostedTrade, error) {
	path, err := s.tradePath(runID)
	if err != nil {
		return nil, err
	}
	records, err := readParquetFile[TradeRecord](path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading trades for run %s: %w", runID, err)
	}
	out := make([]domain.CostedTrade, len(records))
	for i, r := range records {
		out[i] = domain.CostedTrade{
			Trade: domain.Trade{
				Date:        time.UnixMilli(r.Date).UTC(),
				Asset:       r.Asset,
				Q:           r.Q,
				PRef:        r.PRef,
				PExec:       r.PExec,
				Spread:      r.Spread,
				NotionalAbs: r.NotionalAbs,
				SpreadCost:  r.SpreadCost,
			},
			Fees:      r.Fees,
			VolSlip:   r.VolSlip,
			TotalCost: r.TotalCost,
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/bars/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol string, year int) string {
	return filepath.Join(s.DataDir, "bars", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// panelPath returns <dataDir>/panels/<name>.parquet.
func (s *ParquetStore) panelPath(name string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.DataDir, "panels", name+".parquet"), nil
}

// tradePath returns <dataDir>/runs/<runID>/trades.parquet.
func (s *ParquetStore) tradePath(runID string) (string, error) {
	if err := checkName(runID); err != nil {
		return "", err
	}
	return filepath.Join(s.DataDir, "runs", runID, "trades.parquet"), nil
}

func checkName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("name %q: %w", name, ErrInvalidInput)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

// mergeTradeRecords deduplicates trade records by (date, asset), preferring
// new records over existing ones. Results are sorted by (date, asset).
func mergeTradeRecords(existing, incoming []TradeRecord) []TradeRecord {
	type key struct {
		date  int64
		asset string
	}
	seen := make(map[key]TradeRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Date, r.Asset}] = r
	}
	for _, r := range incoming {
		seen[key{r.Date, r.Asset}] = r
	}

	merged := make([]TradeRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Date != merged[j].Date {
			return merged[i].Date < merged[j].Date
		}
		return merged[i].Asset < merged[j].Asset
	})
	return merged
}
