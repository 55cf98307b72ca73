package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/engine"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/execution"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/fees"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/report"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/strategy"
)

// ---------------------------------------------------------------------------
// run
// ---------------------------------------------------------------------------

type runCmd struct {
	strategy   string
	panel      string
	symbols    string
	start, end string
	runID      string
	costs      string
	trades     int
	raw        bool
	style      string
	width      int
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "backtest a strategy on a stored panel" }
func (*runCmd) Usage() string {
	return `tplus run [-strategy equal-weight] [-panel default] [-symbols ...] [-start ...] [-end ...]

  Steps the portfolio account through the panel with the strategy's target
  weights, filling at next-interval prices, and prints a report.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.strategy, "strategy", "", "strategy name; defaults to backtest.strategy")
	f.StringVar(&c.panel, "panel", "", "panel name; defaults to backtest.panel")
	f.StringVar(&c.symbols, "symbols", "", "comma separated assets; defaults to backtest.assets or every panel asset")
	f.StringVar(&c.start, "start", "", "first date")
	f.StringVar(&c.end, "end", "", "last date")
	f.StringVar(&c.runID, "id", "", "run id; generated when empty")
	f.StringVar(&c.costs, "costs", "", "costs YAML file overriding the costs section")
	f.IntVar(&c.trades, "trades", 20, "trade rows in the report, -1 for all")
	f.BoolVar(&c.raw, "raw", false, "print markdown without terminal styling")
	f.StringVar(&c.style, "style", "", "glamour style (dark, light, notty); auto when empty")
	f.IntVar(&c.width, "width", 100, "report word wrap width")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, a *app) error {
		cfg, err := backtestConfig(a)
		if err != nil {
			return err
		}
		if c.strategy != "" {
			cfg.Strategy = c.strategy
		}
		if cfg.Account.Fees, err = costs(a, c.costs); err != nil {
			return err
		}
		cfg.RunID = c.runID
		cfg.Assets = symbolList(c.symbols, cfg.Assets)
		if cfg.Start, cfg.End, err = dateRange(a, c.start, c.end); err != nil {
			return err
		}

		name := c.panel
		if name == "" {
			name = a.cfg.Backtest.Panel
		}
		p, err := a.loadPanel(ctx, name)
		if err != nil {
			return err
		}

		reg := a.registry()
		bt := strategy.NewBacktester(reg, a.snapshots(), a.trades(), a.risk(), a.log)
		res, err := bt.Run(ctx, p, cfg)
		if err != nil {
			return err
		}

		md, err := report.Markdown(res, report.Options{MaxTrades: c.trades})
		if err != nil {
			return err
		}
		if !c.raw {
			if md, err = report.Render(md, c.style, c.width); err != nil {
				return err
			}
		}
		fmt.Fprint(os.Stdout, md)
		return nil
	})
}

// backtestConfig assembles the account and execution settings from the
// configuration file.
func backtestConfig(a *app) (strategy.BacktestConfig, error) {
	exec, err := a.cfg.ExecutionConfig()
	if err != nil {
		return strategy.BacktestConfig{}, err
	}
	acc, err := a.cfg.PortfolioConfig()
	if err != nil {
		return strategy.BacktestConfig{}, err
	}
	return strategy.BacktestConfig{
		Strategy:  a.cfg.Backtest.Strategy,
		Assets:    a.cfg.Backtest.Assets,
		Account:   acc,
		Execution: exec,
	}, nil
}

// costs returns the costs section, or the contents of path when set.
func costs(a *app, path string) (fees.Config, error) {
	if path == "" {
		return a.cfg.Costs, nil
	}
	cfg, err := fees.LoadConfig(path)
	if err != nil {
		return cfg, fmt.Errorf("loading costs %s: %w", path, err)
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// execute
// ---------------------------------------------------------------------------

type executeCmd struct {
	panel  string
	column string
	runID  string
	costs  string
}

func (*executeCmd) Name() string     { return "execute" }
func (*executeCmd) Synopsis() string { return "price an order file against a panel" }
func (*executeCmd) Usage() string {
	return `tplus execute [-panel default] [-column delta_shares] [-id run] [-costs costs.yaml] <orders.yaml>

  Fills every order of the chosen column at the next-interval reference
  price widened by half the spread, applies commission and slippage and
  prints the trade table. With -id the trades are stored under that run.
`
}

func (c *executeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.panel, "panel", "", "panel name; defaults to backtest.panel")
	f.StringVar(&c.column, "column", "", "order column; defaults to execution.order_column")
	f.StringVar(&c.runID, "id", "", "store the trades under this run id")
	f.StringVar(&c.costs, "costs", "", "costs YAML file overriding the costs section")
}

func (c *executeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	return run(ctx, func(ctx context.Context, a *app) error {
		set, err := execution.LoadOrderSet(f.Arg(0))
		if err != nil {
			return err
		}
		exec, err := a.cfg.ExecutionConfig()
		if err != nil {
			return err
		}
		if c.column != "" {
			exec.OrderColumn = c.column
		}
		name := c.panel
		if name == "" {
			name = a.cfg.Backtest.Panel
		}
		p, err := a.loadPanel(ctx, name)
		if err != nil {
			return err
		}

		fc, err := costs(a, c.costs)
		if err != nil {
			return err
		}
		eng := engine.NewEngine(exec, fc, a.trades(), a.log)
		res, err := eng.ExecuteOrderSet(ctx, c.runID, p, set)
		if err != nil {
			return err
		}
		for _, t := range res.Trades {
			fmt.Fprintf(os.Stdout, "%s\t%s\t%s\t%s\t%s\n",
				t.Date.Format(domain.DateLayout), t.Asset,
				report.Fixed(t.Q, 4), report.Fixed(t.PExec, 4), report.Fixed(t.TotalCost, 4))
		}
		fmt.Fprintf(os.Stdout, "fees %s  spread %s  total %s\n",
			report.Fixed(res.Fees, 4), report.Fixed(res.SpreadCost, 4), report.Fixed(res.TotalCost, 4))
		return nil
	})
}

// ---------------------------------------------------------------------------
// runs
// ---------------------------------------------------------------------------

type runsCmd struct{}

func (*runsCmd) Name() string             { return "runs" }
func (*runsCmd) Synopsis() string         { return "list stored backtest runs" }
func (*runsCmd) Usage() string            { return "tplus runs\n" }
func (*runsCmd) SetFlags(_ *flag.FlagSet) {}

func (*runsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, a *app) error {
		if a.sqlite == nil {
			return fmt.Errorf("storage.sqlite_path is not set")
		}
		ids, err := a.sqlite.ListRuns(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			snaps, err := a.sqlite.ListSnapshots(ctx, id)
			if err != nil {
				return err
			}
			last := snaps[len(snaps)-1]
			fmt.Fprintf(os.Stdout, "%s\t%d steps\t%s\t%s\n", id, len(snaps),
				last.Date.Format(domain.DateLayout), report.Money(last.Value, "USD"))
		}
		return nil
	})
}
