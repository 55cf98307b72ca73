package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/store"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/util"
)

// ---------------------------------------------------------------------------
// Compile-time interface checks
// ---------------------------------------------------------------------------

var _ Gatherer = (*DailyBarGatherer)(nil)
var _ BarSource = (*AlpacaSource)(nil)

// ---------------------------------------------------------------------------
// AlpacaSource — daily OHLCV bars from the Alpaca market-data API.
// ---------------------------------------------------------------------------

// AlpacaSource implements BarSource with the Alpaca market-data client.
type AlpacaSource struct {
	client *marketdata.Client
	feed   string
}

// NewAlpacaSource creates an AlpacaSource. An empty dataURL uses the SDK
// default endpoint; an empty feed uses "sip".
func NewAlpacaSource(apiKey, apiSecret, dataURL, feed string) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if feed == "" {
		feed = "sip"
	}
	return &AlpacaSource{client: marketdata.NewClient(opts), feed: feed}
}

// DailyBars fetches daily bars for multiple symbols in a single API call.
func (s *AlpacaSource) DailyBars(ctx context.Context, symbols []string, r DateRange) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	multiBars, err := s.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     r.Start,
		End:       r.End,
		Feed:      s.feed,
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp,
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars, nil
}

// ---------------------------------------------------------------------------
// DailyBarGatherer — batched, rate-limited download into a BarStore.
// ---------------------------------------------------------------------------

// Options tune a DailyBarGatherer.
type Options struct {
	BatchSize       int // symbols per request
	RateLimitPerMin int // requests per minute, 0 = unlimited
	MaxRetries      int // attempts per batch
	RetryDelay      time.Duration
}

// DailyBarGatherer downloads daily bars for a fixed symbol list and writes
// them to a BarStore.
type DailyBarGatherer struct {
	source  BarSource
	store   store.BarStore
	symbols []string
	rng     DateRange
	opts    Options
	limiter *util.RateLimiter
	log     *slog.Logger
}

// NewDailyBarGatherer creates a DailyBarGatherer.
func NewDailyBarGatherer(src BarSource, s store.BarStore, symbols []string, r DateRange, opts Options, log *slog.Logger) *DailyBarGatherer {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if log == nil {
		log = slog.Default()
	}
	up := make([]string, len(symbols))
	for i, sym := range symbols {
		up[i] = strings.ToUpper(sym)
	}
	return &DailyBarGatherer{
		source:  src,
		store:   s,
		symbols: up,
		rng:     r,
		opts:    opts,
		limiter: util.NewRateLimiter(opts.RateLimitPerMin),
		log:     log.With("gatherer", "daily-bars"),
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "daily-bars" }

// Run fetches all symbols batch by batch and stores the bars. A batch that
// still fails after retries aborts the run; batches already written stay
// stored.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	runStart := time.Now()
	var total int
	for i := 0; i < len(g.symbols); i += g.opts.BatchSize {
		end := min(i+g.opts.BatchSize, len(g.symbols))
		batch := g.symbols[i:end]

		var bars []domain.Bar
		err := util.Retry(ctx, g.opts.MaxRetries, g.opts.RetryDelay, func() error {
			if err := g.limiter.Wait(ctx); err != nil {
				return util.Permanent(err)
			}
			var err error
			bars, err = g.source.DailyBars(ctx, batch, g.rng)
			if err != nil {
				g.log.Warn("batch failed", "symbols", len(batch), "error", err)
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("fetching %s..%s: %w", batch[0], batch[len(batch)-1], err)
		}
		if err := g.store.WriteBars(ctx, bars); err != nil {
			return fmt.Errorf("writing bars: %w", err)
		}
		total += len(bars)
		g.log.Debug("batch stored", "symbols", len(batch), "bars", len(bars))
	}

	g.log.Info("complete",
		"symbols", len(g.symbols),
		"bars", total,
		"elapsed", time.Since(runStart).Round(time.Millisecond),
	)
	return nil
}
