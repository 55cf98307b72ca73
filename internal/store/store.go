// Package store defines storage interfaces for persisting and retrieving
// bars, price panels, executed trades and portfolio snapshots.
package store

import (
	"context"
	"time"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
)

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars, merging with stored bars.
	WriteBars(ctx context.Context, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol within [start, end].
	ReadBars(ctx context.Context, symbol string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols with stored bars.
	ListSymbols(ctx context.Context) ([]string, error)
}

// PanelStore persists named price panels.
type PanelStore interface {
	// WritePanel replaces the panel stored under name.
	WritePanel(ctx context.Context, name string, rows []domain.PanelRow) error

	// ReadPanel returns the rows of the named panel sorted by (date, asset).
	ReadPanel(ctx context.Context, name string) ([]domain.PanelRow, error)
}

// TradeStore persists the costed trades of a backtest run.
type TradeStore interface {
	// WriteTrades appends trades to a run, replacing any stored trade with
	// the same (date, asset).
	WriteTrades(ctx context.Context, runID string, trades []domain.CostedTrade) error

	// ReadTrades returns the trades of a run sorted by (date, asset).
	ReadTrades(ctx context.Context, runID string) ([]domain.CostedTrade, error)
}

// SnapshotStore persists per-step portfolio snapshots.
type SnapshotStore interface {
	// SaveSnapshot inserts or replaces the snapshot of (RunID, Step).
	SaveSnapshot(ctx context.Context, snap domain.Snapshot) error

	// ListSnapshots returns the snapshots of a run in step order.
	ListSnapshots(ctx context.Context, runID string) ([]domain.Snapshot, error)

	// ListRuns returns the ids of all runs with at least one snapshot.
	ListRuns(ctx context.Context) ([]string, error)
}
