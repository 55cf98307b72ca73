package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/cashasset"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/gather"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/panel"
)

// symbolList returns the comma separated flag value, or fallback.
func symbolList(flagValue string, fallback []string) []string {
	if flagValue == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(flagValue, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, strings.ToUpper(s))
		}
	}
	return out
}

// dateRange parses the optional start/end flags over the configured range.
func dateRange(a *app, start, end string) (time.Time, time.Time, error) {
	s, e, err := a.cfg.DateRange()
	if err != nil {
		return s, e, err
	}
	if start != "" {
		if s, err = time.Parse(domain.DateLayout, start); err != nil {
			return s, e, fmt.Errorf("-start: %w", err)
		}
	}
	if end != "" {
		if e, err = time.Parse(domain.DateLayout, end); err != nil {
			return s, e, fmt.Errorf("-end: %w", err)
		}
	}
	return s, e, nil
}

// ---------------------------------------------------------------------------
// fetch
// ---------------------------------------------------------------------------

type fetchCmd struct {
	symbols    string
	start, end string
}

func (*fetchCmd) Name() string     { return "fetch" }
func (*fetchCmd) Synopsis() string { return "download daily bars from Alpaca into the bar store" }
func (*fetchCmd) Usage() string {
	return `tplus fetch [-symbols SPY,TLT] [-start YYYY-MM-DD] [-end YYYY-MM-DD]

  Downloads daily bars for the symbols (default: backtest.assets) and
  merges them into <data_dir>/bars.
`
}

func (c *fetchCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbols, "symbols", "", "comma separated symbols; defaults to backtest.assets")
	f.StringVar(&c.start, "start", "", "first date; defaults to backtest.start")
	f.StringVar(&c.end, "end", "", "last date; defaults to backtest.end or today")
}

func (c *fetchCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, a *app) error {
		symbols := symbolList(c.symbols, a.cfg.Backtest.Assets)
		if len(symbols) == 0 {
			return fmt.Errorf("no symbols: pass -symbols or set backtest.assets")
		}
		start, end, err := dateRange(a, c.start, c.end)
		if err != nil {
			return err
		}
		if end.IsZero() {
			end = domain.Day(time.Now())
		}
		if start.IsZero() {
			return fmt.Errorf("no start date: pass -start or set backtest.start")
		}

		al := a.cfg.Alpaca
		src := gather.NewAlpacaSource(al.APIKey, al.APISecret, al.DataURL, a.cfg.Fetch.Feed)
		g := gather.NewDailyBarGatherer(src, a.parquet, symbols, gather.DateRange{Start: start, End: end},
			gather.Options{
				BatchSize:       a.cfg.Fetch.BatchSize,
				RateLimitPerMin: a.cfg.Fetch.RateLimitPerMin,
				MaxRetries:      a.cfg.Fetch.MaxRetries,
			}, a.log)
		return g.Run(ctx)
	})
}

// ---------------------------------------------------------------------------
// build
// ---------------------------------------------------------------------------

type buildCmd struct {
	name       string
	symbols    string
	start, end string
	noCash     bool
}

func (*buildCmd) Name() string     { return "build" }
func (*buildCmd) Synopsis() string { return "build a price panel from stored bars" }
func (*buildCmd) Usage() string {
	return `tplus build [-name default] [-symbols SPY,TLT] [-start ...] [-end ...] [-no-cash]

  Turns stored daily bars into a (date, asset) panel with next-open
  reference prices, adds the synthetic cash asset when cash.enabled is set
  and writes the panel to <data_dir>/panels/<name>.parquet.
`
}

func (c *buildCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "panel name; defaults to backtest.panel")
	f.StringVar(&c.symbols, "symbols", "", "comma separated symbols; defaults to backtest.assets")
	f.StringVar(&c.start, "start", "", "first date")
	f.StringVar(&c.end, "end", "", "last date")
	f.BoolVar(&c.noCash, "no-cash", false, "do not add the cash asset")
}

func (c *buildCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, a *app) error {
		name := c.name
		if name == "" {
			name = a.cfg.Backtest.Panel
		}
		symbols := symbolList(c.symbols, a.cfg.Backtest.Assets)
		if len(symbols) == 0 {
			var err error
			if symbols, err = a.parquet.ListSymbols(ctx); err != nil {
				return err
			}
		}
		start, end, err := dateRange(a, c.start, c.end)
		if err != nil {
			return err
		}
		if end.IsZero() {
			end = domain.Day(time.Now())
		}
		if start.IsZero() {
			return fmt.Errorf("no start date: pass -start or set backtest.start")
		}

		perSymbol := make([][]domain.Bar, len(symbols))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(8)
		for i, sym := range symbols {
			i, sym := i, sym
			g.Go(func() error {
				bars, err := a.parquet.ReadBars(gctx, sym, start, end)
				if err != nil {
					return fmt.Errorf("reading bars of %s: %w", sym, err)
				}
				perSymbol[i] = bars
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		p := panel.New()
		for i, bars := range perSymbol {
			if len(bars) == 0 {
				a.log.Warn("no bars", "symbol", symbols[i])
				continue
			}
			if err := p.Add(panel.FromBars(bars)...); err != nil {
				return err
			}
		}
		if p.Len() == 0 {
			return fmt.Errorf("no bars for %v", symbols)
		}
		if a.cfg.Cash.Enabled && !c.noCash {
			if err := addCash(a, p); err != nil {
				return err
			}
		}
		if err := p.Validate(); err != nil {
			return err
		}
		if err := a.parquet.WritePanel(ctx, name, p.Rows()); err != nil {
			return err
		}
		a.log.Info("panel written", "name", name, "rows", p.Len(), "assets", len(p.Assets()), "dates", len(p.Dates()))
		return nil
	})
}

// ---------------------------------------------------------------------------
// cash
// ---------------------------------------------------------------------------

type cashCmd struct {
	name string
}

func (*cashCmd) Name() string     { return "cash" }
func (*cashCmd) Synopsis() string { return "add the synthetic cash asset to an existing panel" }
func (*cashCmd) Usage() string {
	return `tplus cash [-name default]

  Builds the cash instrument on the panel's trading calendar from the rate
  file (cash.rate_file) and merges it into the panel.
`
}

func (c *cashCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "panel name; defaults to backtest.panel")
}

func (c *cashCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, a *app) error {
		name := c.name
		if name == "" {
			name = a.cfg.Backtest.Panel
		}
		p, err := a.loadPanel(ctx, name)
		if err != nil {
			return err
		}
		if err := addCash(a, p); err != nil {
			return err
		}
		if err := a.parquet.WritePanel(ctx, name, p.Rows()); err != nil {
			return err
		}
		a.log.Info("cash asset added", "panel", name, "symbol", a.cfg.Cash.Symbol)
		return nil
	})
}

func addCash(a *app, p *panel.Panel) error {
	if a.cfg.Cash.RateFile == "" {
		return fmt.Errorf("cash.rate_file is not set")
	}
	rates, err := cashasset.LoadRates(a.cfg.Cash.RateFile)
	if err != nil {
		return fmt.Errorf("loading rates: %w", err)
	}
	rows, err := cashasset.Build(p.Dates(), rates, a.cfg.CashConfig())
	if err != nil {
		return err
	}
	return cashasset.Merge(p, rows)
}
