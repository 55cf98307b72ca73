package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/subcommands"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/config"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/engine"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/panel"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/store"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/strategy"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/strategy/builtins"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/util"
)

// app bundles what every command needs: configuration, logger and stores.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	parquet *store.ParquetStore
	sqlite  *store.SQLiteStore // nil when storage.sqlite_path is empty
}

func newApp() (*app, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", *configPath, err)
	}
	log := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(log)

	a := &app{cfg: cfg, log: log, parquet: store.NewParquetStore(cfg.Storage.DataDir)}
	if cfg.Storage.SQLitePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
			return nil, err
		}
		if a.sqlite, err = store.NewSQLiteStore(cfg.Storage.SQLitePath); err != nil {
			return nil, fmt.Errorf("opening run database: %w", err)
		}
	}
	return a, nil
}

func (a *app) Close() {
	if a.sqlite != nil {
		if err := a.sqlite.Close(); err != nil {
			a.log.Warn("closing run database", "error", err)
		}
	}
}

// snapshots and trades return the run stores, or nil interfaces when no
// database is configured.
func (a *app) snapshots() store.SnapshotStore {
	if a.sqlite == nil {
		return nil
	}
	return a.sqlite
}

func (a *app) trades() store.TradeStore {
	if a.sqlite == nil {
		return nil
	}
	return a.sqlite
}

func (a *app) registry() *strategy.Registry {
	r := strategy.NewRegistry()
	builtins.RegisterAll(r, builtins.Options{Weights: a.cfg.Backtest.Weights})
	return r
}

func (a *app) risk() *engine.RiskManager {
	b := a.cfg.Backtest
	if b.MaxPositionPct <= 0 && b.MaxDailyLossPct <= 0 {
		return nil
	}
	cash := ""
	if a.cfg.Cash.Enabled {
		cash = a.cfg.Cash.Symbol
	}
	return engine.NewRiskManager(b.MaxPositionPct, b.MaxDailyLossPct, cash)
}

func (a *app) loadPanel(ctx context.Context, name string) (*panel.Panel, error) {
	rows, err := a.parquet.ReadPanel(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("reading panel %q: %w", name, err)
	}
	return panel.FromRows(rows)
}

// run opens the app, calls fn and maps its error to an exit status.
func run(ctx context.Context, fn func(context.Context, *app) error) subcommands.ExitStatus {
	a, err := newApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer a.Close()
	if err := fn(ctx, a); err != nil {
		a.log.Error("command failed", "error", err)
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
