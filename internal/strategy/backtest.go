package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/engine"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/execution"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/panel"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/portfolio"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/store"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/util"
)

// Backtest errors.
var (
	// ErrUnknownStrategy is returned when the strategy is not registered.
	ErrUnknownStrategy = errors.New("unknown strategy")

	// ErrUnknownAsset is returned when a requested asset has no panel rows.
	ErrUnknownAsset = errors.New("asset not in panel")

	// ErrTooFewDates is returned when the date range holds fewer than two
	// trading dates.
	ErrTooFewDates = errors.New("backtest needs at least two trading dates")
)

// BacktestConfig describes one run.
type BacktestConfig struct {
	RunID     string // generated when empty
	Strategy  string
	Assets    []string // nil means every panel asset
	Start     time.Time
	End       time.Time
	Account   portfolio.Config
	Execution execution.Config
}

// BacktestResult holds the per-step records and summary metrics of a run.
type BacktestResult struct {
	RunID           string
	Strategy        string
	Start           time.Time
	End             time.Time
	Snapshots       []domain.Snapshot
	Trades          []domain.CostedTrade
	InitialValue    float64
	FinalValue      float64
	TotalFees       float64 // commission and slippage
	TotalSpreadCost float64
	TotalCost       float64
	Turnover        float64 // sum of traded notional over pre-trade value
	TotalTrades     int
	LossBreaches    int
	MaxResidual     float64 // largest |accounting residual| over all steps
	Metrics         Metrics
}

// Backtester walks a panel date by date, asks a strategy for target
// weights and steps a portfolio account with next-interval prices.
type Backtester struct {
	registry  *Registry
	snapshots store.SnapshotStore
	trades    store.TradeStore
	risk      *engine.RiskManager
	log       *slog.Logger
}

// NewBacktester creates a Backtester that looks up strategies in the
// provided registry. The stores and the risk manager may be nil.
func NewBacktester(registry *Registry, snapshots store.SnapshotStore, trades store.TradeStore, risk *engine.RiskManager, log *slog.Logger) *Backtester {
	if log == nil {
		log = slog.Default()
	}
	return &Backtester{
		registry:  registry,
		snapshots: snapshots,
		trades:    trades,
		risk:      risk,
		log:       log.With("component", "backtest"),
	}
}

// Run executes a backtest over the panel.
//
// For every trading date t except the last, the strategy sees the panel up
// to t; the account is valued at close_{t+1} and fills at the reference
// price of row t (exec_ref_tplus1 by default) with row t's spread and
// volatility. Snapshots are dated t+1.
func (bt *Backtester) Run(ctx context.Context, p *panel.Panel, cfg BacktestConfig) (*BacktestResult, error) {
	strat, ok := bt.registry.Get(cfg.Strategy)
	if !ok {
		return nil, fmt.Errorf("%q: %w", cfg.Strategy, ErrUnknownStrategy)
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid panel: %w", err)
	}

	assets := cfg.Assets
	if len(assets) == 0 {
		assets = p.Assets()
	}
	for _, a := range assets {
		if !p.HasAsset(a) {
			return nil, fmt.Errorf("%s: %w", a, ErrUnknownAsset)
		}
	}
	if err := bt.risk.CheckUniverse(assets); err != nil {
		return nil, err
	}

	cal, err := util.NewTradingCalendar(p.Dates())
	if err != nil {
		return nil, err
	}
	cal = cal.Between(cfg.Start, cfg.End)
	if cal.Len() < 2 {
		return nil, ErrTooFewDates
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	log := bt.log.With("run", runID, "strategy", strat.Name())

	acc, err := portfolio.New(assets, cfg.Account, log)
	if err != nil {
		return nil, err
	}
	if err := strat.Init(ctx); err != nil {
		return nil, fmt.Errorf("init %s: %w", strat.Name(), err)
	}

	res := &BacktestResult{
		RunID:        runID,
		Strategy:     strat.Name(),
		Start:        cal.Date(0),
		End:          cal.Date(cal.Len() - 1),
		InitialValue: acc.State().Value,
	}
	refCol := cfg.Execution.ReferenceColumn()
	prevValue := res.InitialValue
	values := []float64{res.InitialValue}

	for i := 0; i < cal.Len()-1; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		t, t1 := cal.Date(i), cal.Date(i+1)

		w, err := strat.Weights(ctx, p.View(t), assets)
		if err != nil {
			return nil, fmt.Errorf("%s weights at %s: %w", strat.Name(), t.Format(domain.DateLayout), err)
		}
		if w, err = bt.risk.CapWeights(w); err != nil {
			return nil, fmt.Errorf("capping weights at %s: %w", t.Format(domain.DateLayout), err)
		}

		in := portfolio.StepInput{
			Date:    t,
			MarkNow: make(map[string]float64, len(assets)),
			Next:    make(map[string]portfolio.NextPrice, len(assets)),
			Target:  w,
		}
		for _, a := range assets {
			np := portfolio.NextPrice{Mark: math.NaN(), Ref: math.NaN()}
			if row, ok := p.Get(t, a); ok {
				in.MarkNow[a] = row.Close
				np.Ref, _ = panel.Value(row, refCol)
				np.Spread = cfg.Execution.Spread(row)
				np.Volatility = row.Volatility
			} else {
				in.MarkNow[a] = math.NaN()
			}
			if row, ok := p.Get(t1, a); ok {
				np.Mark = row.Close
			}
			in.Next[a] = np
		}

		_, info, err := acc.Step(in)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", t.Format(domain.DateLayout), err)
		}

		snap := domain.Snapshot{
			RunID:             runID,
			Step:              i,
			Date:              t1,
			Cash:              info.Cash,
			Value:             info.Value,
			ValuePreRebalance: info.ValuePreRebalance,
			Fees:              info.Fees,
			TotalCost:         info.TotalCost,
			Shares:            acc.State().Shares,
			Weights:           info.Weights,
		}
		res.Snapshots = append(res.Snapshots, snap)
		res.Trades = append(res.Trades, info.Trades...)
		res.TotalFees += info.Fees
		res.TotalSpreadCost += info.SpreadCost
		res.TotalCost += info.TotalCost
		res.TotalTrades += len(info.Trades)
		res.MaxResidual = math.Max(res.MaxResidual, math.Abs(info.Residual()))
		if info.ValuePreRebalance > 0 {
			var traded float64
			for _, tr := range info.Trades {
				traded += tr.NotionalAbs
			}
			res.Turnover += traded / info.ValuePreRebalance
		}

		if err := bt.risk.CheckLoss(prevValue, info.Value); err != nil {
			res.LossBreaches++
			log.Warn("risk limit", "date", t1.Format(domain.DateLayout), "error", err)
		}
		prevValue = info.Value
		values = append(values, info.Value)

		if bt.snapshots != nil {
			if err := bt.snapshots.SaveSnapshot(ctx, snap); err != nil {
				return nil, fmt.Errorf("saving snapshot: %w", err)
			}
		}
		log.Debug("step",
			"date", t1.Format(domain.DateLayout),
			"value", info.Value,
			"cash", info.Cash,
			"trades", len(info.Trades),
			"total_cost", info.TotalCost,
		)
	}

	if bt.trades != nil {
		if err := bt.trades.WriteTrades(ctx, runID, res.Trades); err != nil {
			return nil, fmt.Errorf("saving trades: %w", err)
		}
	}

	res.FinalValue = acc.State().Value
	res.Metrics = ComputeMetrics(values)
	log.Info("backtest complete",
		"steps", len(res.Snapshots),
		"final_value", res.FinalValue,
		"total_cost", res.TotalCost,
		"trades", res.TotalTrades,
	)
	return res, nil
}
