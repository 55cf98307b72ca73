package main

import (
	"context"
	"flag"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/api"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/engine"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/gather"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/strategy"
)

type serveCmd struct {
	refresh time.Duration
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve backtests over gRPC" }
func (*serveCmd) Usage() string {
	return `tplus serve [-refresh 24h]

  Starts the gRPC Backtest and health services on server.host:grpc_port.
  With -refresh the bar store is topped up from Alpaca at that interval.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.refresh, "refresh", 0, "bar refresh interval; 0 disables")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, a *app) error {
		defaults, err := backtestConfig(a)
		if err != nil {
			return err
		}
		reg := a.registry()
		svc := api.NewBacktestService(
			reg,
			strategy.NewBacktester(reg, a.snapshots(), a.trades(), a.risk(), a.log),
			engine.NewEngine(defaults.Execution, a.cfg.Costs, a.trades(), a.log),
			a.parquet,
			a.snapshots(),
			api.Defaults{Panel: a.cfg.Backtest.Panel, Account: defaults.Account, Execution: defaults.Execution},
			a.log,
		)
		srv := api.NewServer(a.cfg.GRPCAddr(), svc, a.log)

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error { return srv.ListenAndServe(ctx) })
		if c.refresh > 0 && len(a.cfg.Backtest.Assets) > 0 {
			g.Go(func() error { return refreshBars(ctx, a, c.refresh) })
		}
		return g.Wait()
	})
}

// refreshBars fetches the last week of bars for backtest.assets every
// interval until ctx is done.
func refreshBars(ctx context.Context, a *app, every time.Duration) error {
	al := a.cfg.Alpaca
	src := gather.NewAlpacaSource(al.APIKey, al.APISecret, al.DataURL, a.cfg.Fetch.Feed)
	opts := gather.Options{
		BatchSize:       a.cfg.Fetch.BatchSize,
		RateLimitPerMin: a.cfg.Fetch.RateLimitPerMin,
		MaxRetries:      a.cfg.Fetch.MaxRetries,
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		end := domain.Day(time.Now())
		r := gather.DateRange{Start: end.AddDate(0, 0, -7), End: end}
		g := gather.NewDailyBarGatherer(src, a.parquet, a.cfg.Backtest.Assets, r, opts, a.log)
		if err := g.Run(ctx); err != nil {
			a.log.Warn("bar refresh failed", "error", err)
		}
	}
}
