package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
)

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	bp := ps.barPath("aapl", 2024)
	wantBarPath := filepath.Join("/data", "bars", "AAPL", "2024.parquet")
	if bp != wantBarPath {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, wantBarPath)
	}

	tp, err := ps.tradePath("run-1")
	if err != nil {
		t.Fatalf("tradePath: %v", err)
	}
	wantTradePath := filepath.Join("/data", "runs", "run-1", "trades.parquet")
	if tp != wantTradePath {
		t.Errorf("tradePath mismatch:\n  got  %s\n  want %s", tp, wantTradePath)
	}

	for _, bad := range []string{"", "../x", "a/b", ".hidden"} {
		if _, err := ps.panelPath(bad); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("panelPath(%q) error = %v, want ErrInvalidInput", bad, err)
		}
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	bars := []domain.Bar{
		{
			Symbol:     "AAPL",
			Timestamp:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			Open:       185.0,
			High:       186.5,
			Low:        184.0,
			Close:      185.5,
			Volume:     50000000,
			TradeCount: 500000,
			VWAP:       185.25,
		},
		{
			Symbol:     "AAPL",
			Timestamp:  time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
			Open:       185.5,
			High:       187.0,
			Low:        185.0,
			Close:      186.0,
			Volume:     45000000,
			TradeCount: 450000,
			VWAP:       185.75,
		},
	}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	got, err := ps.ReadBars(ctx, "AAPL", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 185.5 {
		t.Errorf("first bar Close = %v, want 185.5", got[0].Close)
	}
	if got[1].Close != 186.0 {
		t.Errorf("second bar Close = %v, want 186.0", got[1].Close)
	}

	// Overwriting a bar merges rather than duplicating.
	bars[1].Close = 190
	if err := ps.WriteBars(ctx, bars[1:]); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}
	got, err = ps.ReadBars(ctx, "AAPL", start, end)
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 || got[1].Close != 190 {
		t.Errorf("after merge got %d bars, last close %v; want 2 bars, close 190", len(got), got[len(got)-1].Close)
	}
}

func TestParquetStoreListSymbols(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	symbols, err := ps.ListSymbols(ctx)
	if err != nil || symbols != nil {
		t.Fatalf("ListSymbols on empty store = %v, %v; want nil, nil", symbols, err)
	}

	bars := []domain.Bar{
		{Symbol: "GOOGL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 140.5},
		{Symbol: "AAPL", Timestamp: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Close: 185.5},
	}
	if err := ps.WriteBars(ctx, bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
	symbols, err = ps.ListSymbols(ctx)
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "AAPL" || symbols[1] != "GOOGL" {
		t.Errorf("ListSymbols = %v, want [AAPL GOOGL]", symbols)
	}
}

func TestParquetStorePanelRoundTrip(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := []domain.PanelRow{
		{Date: d.AddDate(0, 0, 1), Asset: "SPY", Close: 471, ExecRefTPlus1: math.NaN(), Spread: 0.001, Indicators: domain.NoIndicators()},
		{Date: d, Asset: "SPY", Open: 469, Close: 470, ExecRefTPlus1: 470.5, Spread: 0.001, Indicators: domain.NoIndicators()},
		{Date: d, Asset: "CASH", Open: 1, Close: 1.0001, ExecRefTPlus1: 1.0001, IsCash: true, Indicators: domain.NoIndicators()},
	}
	if err := ps.WritePanel(ctx, "us", rows); err != nil {
		t.Fatalf("WritePanel: %v", err)
	}

	got, err := ps.ReadPanel(ctx, "us")
	if err != nil {
		t.Fatalf("ReadPanel: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ReadPanel returned %d rows, want 3", len(got))
	}
	if got[0].Asset != "CASH" || !got[0].IsCash {
		t.Errorf("first row = %s cash=%v, want CASH cash=true", got[0].Asset, got[0].IsCash)
	}
	if !got[1].Date.Equal(d) || got[1].ExecRefTPlus1 != 470.5 {
		t.Errorf("second row = %s ref %v, want 2024-01-02/SPY ref 470.5", got[1].Key(), got[1].ExecRefTPlus1)
	}
	if !math.IsNaN(got[2].ExecRefTPlus1) || !math.IsNaN(got[2].SMA20) {
		t.Errorf("NaN columns did not survive: ref %v sma20 %v", got[2].ExecRefTPlus1, got[2].SMA20)
	}

	if _, err := ps.ReadPanel(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ReadPanel(missing) error = %v, want ErrNotFound", err)
	}
}

func sampleTrades() []domain.CostedTrade {
	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	return []domain.CostedTrade{
		{
			Trade: domain.Trade{Date: d, Asset: "SPY", Q: 10, PRef: 100, PExec: 100.1, Spread: 0.002, NotionalAbs: 1001, SpreadCost: 1},
			Fees:  0.5005, TotalCost: 1.5005,
		},
		{
			Trade: domain.Trade{Date: d, Asset: "CASH", Q: -5, PRef: 1, PExec: 1, NotionalAbs: 5},
		},
	}
}

func testTradeStore(t *testing.T, ts TradeStore) {
	t.Helper()
	ctx := context.Background()

	if err := ts.WriteTrades(ctx, "run-1", sampleTrades()); err != nil {
		t.Fatalf("WriteTrades: %v", err)
	}
	// Rewriting the same (date, asset) replaces the row.
	again := sampleTrades()[:1]
	again[0].Q = 11
	if err := ts.WriteTrades(ctx, "run-1", again); err != nil {
		t.Fatalf("WriteTrades (again): %v", err)
	}

	got, err := ts.ReadTrades(ctx, "run-1")
	if err != nil {
		t.Fatalf("ReadTrades: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadTrades returned %d trades, want 2", len(got))
	}
	if got[0].Asset != "CASH" || got[1].Asset != "SPY" {
		t.Errorf("order = [%s %s], want [CASH SPY]", got[0].Asset, got[1].Asset)
	}
	if got[1].Q != 11 || got[1].Fees != 0.5005 || got[1].TotalCost != 1.5005 {
		t.Errorf("SPY trade = %+v", got[1])
	}

	empty, err := ts.ReadTrades(ctx, "run-2")
	if err != nil || len(empty) != 0 {
		t.Errorf("ReadTrades(run-2) = %v, %v; want empty, nil", empty, err)
	}
	if err := ts.WriteTrades(ctx, "", sampleTrades()); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("WriteTrades with empty run id error = %v, want ErrInvalidInput", err)
	}
}

func TestParquetStoreTrades(t *testing.T) {
	testTradeStore(t, NewParquetStore(t.TempDir()))
}

func openSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore(%q) returned error: %v", dbPath, err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Errorf("Close() returned error: %v", cerr)
		}
	})
	return store
}

func TestSQLiteStoreOpen(t *testing.T) {
	store := openSQLite(t)
	if err := store.db.Ping(); err != nil {
		t.Fatalf("db.Ping() returned error: %v", err)
	}
	// Migrations are idempotent.
	if err := store.migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestSQLiteStoreTrades(t *testing.T) {
	testTradeStore(t, openSQLite(t))
}

func TestSQLiteStoreSnapshots(t *testing.T) {
	store := openSQLite(t)
	ctx := context.Background()

	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	for step := 1; step >= 0; step-- {
		snap := domain.Snapshot{
			RunID:             "run-1",
			Step:              step,
			Date:              d.AddDate(0, 0, step),
			Cash:              100 - float64(step),
			Value:             1000 + float64(step),
			ValuePreRebalance: 1001,
			Fees:              0.5,
			TotalCost:         1.5,
			Shares:            map[string]float64{"SPY": 2},
			Weights:           map[string]float64{"SPY": 0.9},
		}
		if err := store.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("SaveSnapshot(%d): %v", step, err)
		}
	}

	got, err := store.ListSnapshots(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ListSnapshots returned %d, want 2", len(got))
	}
	if got[0].Step != 0 || got[1].Step != 1 {
		t.Errorf("steps = %d,%d, want 0,1", got[0].Step, got[1].Step)
	}
	if !got[1].Date.Equal(d.AddDate(0, 0, 1)) {
		t.Errorf("Date = %v, want %v", got[1].Date, d.AddDate(0, 0, 1))
	}
	if got[1].Shares["SPY"] != 2 || got[1].Weights["SPY"] != 0.9 {
		t.Errorf("maps = %v / %v", got[1].Shares, got[1].Weights)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0] != "run-1" {
		t.Errorf("ListRuns = %v, want [run-1]", runs)
	}

	if _, err := store.ListSnapshots(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("ListSnapshots(nope) error = %v, want ErrNotFound", err)
	}
}
