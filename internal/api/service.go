package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/engine"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/execution"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/panel"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/portfolio"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/store"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/strategy"
)

// Defaults are the run settings applied when a request leaves them out.
type Defaults struct {
	Panel     string
	Account   portfolio.Config
	Execution execution.Config
}

// BacktestService serves backtest runs, order quotes and stored run
// history. Requests and responses are google.protobuf.Struct messages.
type BacktestService struct {
	registry   *strategy.Registry
	backtester *strategy.Backtester
	engine     *engine.Engine
	panels     store.PanelStore
	snapshots  store.SnapshotStore
	defaults   Defaults
	log        *slog.Logger
}

// NewBacktestService creates a BacktestService. snapshots may be nil, in
// which case Snapshots and Runs report Unimplemented.
func NewBacktestService(
	registry *strategy.Registry,
	backtester *strategy.Backtester,
	eng *engine.Engine,
	panels store.PanelStore,
	snapshots store.SnapshotStore,
	defaults Defaults,
	log *slog.Logger,
) *BacktestService {
	if log == nil {
		log = slog.Default()
	}
	return &BacktestService{
		registry:   registry,
		backtester: backtester,
		engine:     eng,
		panels:     panels,
		snapshots:  snapshots,
		defaults:   defaults,
		log:        log.With("component", "api"),
	}
}

// Run executes a backtest.
//
// Request fields: strategy, panel, assets (list), start, end (YYYY-MM-DD),
// initial_cash, run_id. Every field is optional.
func (s *BacktestService) Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.loadPanel(ctx, stringField(req, "panel", s.defaults.Panel))
	if err != nil {
		return nil, err
	}
	cfg := strategy.BacktestConfig{
		RunID:     stringField(req, "run_id", ""),
		Strategy:  stringField(req, "strategy", ""),
		Assets:    stringList(req, "assets"),
		Account:   s.defaults.Account,
		Execution: s.defaults.Execution,
	}
	if v := numberField(req, "initial_cash"); v > 0 {
		cfg.Account.InitialCash = v
	}
	if cfg.Start, err = dateField(req, "start"); err != nil {
		return nil, err
	}
	if cfg.End, err = dateField(req, "end"); err != nil {
		return nil, err
	}

	res, err := s.backtester.Run(ctx, p, cfg)
	if err != nil {
		return nil, toStatus(err)
	}
	s.log.Info("backtest served", "run", res.RunID, "strategy", res.Strategy)
	return structpb.NewStruct(map[string]any{
		"run_id":            res.RunID,
		"strategy":          res.Strategy,
		"start":             res.Start.Format(domain.DateLayout),
		"end":               res.End.Format(domain.DateLayout),
		"steps":             len(res.Snapshots),
		"initial_value":     res.InitialValue,
		"final_value":       res.FinalValue,
		"total_fees":        res.TotalFees,
		"total_spread_cost": res.TotalSpreadCost,
		"total_cost":        res.TotalCost,
		"turnover":          res.Turnover,
		"trades":            res.TotalTrades,
		"loss_breaches":     res.LossBreaches,
		"total_return":      num(res.Metrics.TotalReturn),
		"sharpe_ratio":      num(res.Metrics.SharpeRatio),
		"max_drawdown":      num(res.Metrics.MaxDrawdown),
	})
}

// Quote prices orders against a panel without touching any account.
//
// Request fields: panel and orders, a list of {date, asset, quantity}.
func (s *BacktestService) Quote(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.loadPanel(ctx, stringField(req, "panel", s.defaults.Panel))
	if err != nil {
		return nil, err
	}
	var orders []domain.Order
	for i, v := range req.GetFields()["orders"].GetListValue().GetValues() {
		o := v.GetStructValue()
		d, err := dateField(o, "date")
		if err != nil || d.IsZero() {
			return nil, status.Errorf(codes.InvalidArgument, "orders[%d]: missing or bad date", i)
		}
		orders = append(orders, domain.Order{
			Date:     d,
			Asset:    stringField(o, "asset", ""),
			Quantity: numberField(o, "quantity"),
		})
	}

	res, err := s.engine.Execute(ctx, "", p, orders)
	if err != nil {
		return nil, toStatus(err)
	}
	trades := make([]any, 0, len(res.Trades))
	for _, t := range res.Trades {
		trades = append(trades, map[string]any{
			"date":        t.Date.Format(domain.DateLayout),
			"asset":       t.Asset,
			"q":           t.Q,
			"p_ref":       t.PRef,
			"p_exec":      t.PExec,
			"spread":      t.Spread,
			"spread_cost": t.SpreadCost,
			"fees":        t.Fees,
			"vol_slip":    t.VolSlip,
			"total_cost":  t.TotalCost,
		})
	}
	return structpb.NewStruct(map[string]any{
		"trades":      trades,
		"fees":        res.Fees,
		"spread_cost": res.SpreadCost,
		"total_cost":  res.TotalCost,
	})
}

// Strategies lists the registered strategy names.
func (s *BacktestService) Strategies(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	names := make([]any, 0)
	for _, n := range s.registry.List() {
		names = append(names, n)
	}
	return structpb.NewStruct(map[string]any{"strategies": names})
}

// Runs lists the ids of stored runs.
func (s *BacktestService) Runs(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if s.snapshots == nil {
		return nil, status.Error(codes.Unimplemented, "no snapshot store configured")
	}
	ids, err := s.snapshots.ListRuns(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]any, 0, len(ids))
	for _, id := range ids {
		out = append(out, id)
	}
	return structpb.NewStruct(map[string]any{"runs": out})
}

// Snapshots returns the stored equity curve of run_id.
func (s *BacktestService) Snapshots(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if s.snapshots == nil {
		return nil, status.Error(codes.Unimplemented, "no snapshot store configured")
	}
	runID := stringField(req, "run_id", "")
	if runID == "" {
		return nil, status.Error(codes.InvalidArgument, "run_id is required")
	}
	snaps, err := s.snapshots.ListSnapshots(ctx, runID)
	if err != nil {
		return nil, toStatus(err)
	}
	out := make([]any, 0, len(snaps))
	for _, sn := range snaps {
		out = append(out, map[string]any{
			"step":       sn.Step,
			"date":       sn.Date.Format(domain.DateLayout),
			"value":      sn.Value,
			"cash":       sn.Cash,
			"fees":       sn.Fees,
			"total_cost": sn.TotalCost,
		})
	}
	return structpb.NewStruct(map[string]any{"run_id": runID, "snapshots": out})
}

func (s *BacktestService) loadPanel(ctx context.Context, name string) (*panel.Panel, error) {
	rows, err := s.panels.ReadPanel(ctx, name)
	if err != nil {
		return nil, toStatus(fmt.Errorf("panel %q: %w", name, err))
	}
	p, err := panel.FromRows(rows)
	if err != nil {
		return nil, toStatus(err)
	}
	return p, nil
}

// toStatus maps domain errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, strategy.ErrUnknownStrategy),
		errors.Is(err, strategy.ErrUnknownAsset),
		errors.Is(err, strategy.ErrTooFewDates),
		errors.Is(err, panel.ErrMissingExecRef),
		errors.Is(err, panel.ErrMissingMark),
		errors.Is(err, engine.ErrCapUnabsorbed),
		errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, execution.ErrMissingReference),
		errors.Is(err, execution.ErrDuplicateOrder):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, portfolio.ErrShortSale),
		errors.Is(err, portfolio.ErrInsufficientCash),
		errors.Is(err, execution.ErrShortSale):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Error(codes.Internal, err.Error())
}

// ---------------------------------------------------------------------------
// Struct field helpers
// ---------------------------------------------------------------------------

func stringField(s *structpb.Struct, key, def string) string {
	if v, ok := s.GetFields()[key]; ok && v.GetStringValue() != "" {
		return v.GetStringValue()
	}
	return def
}

func numberField(s *structpb.Struct, key string) float64 {
	return s.GetFields()[key].GetNumberValue()
}

func stringList(s *structpb.Struct, key string) []string {
	var out []string
	for _, v := range s.GetFields()[key].GetListValue().GetValues() {
		if str := v.GetStringValue(); str != "" {
			out = append(out, str)
		}
	}
	return out
}

func dateField(s *structpb.Struct, key string) (time.Time, error) {
	str := stringField(s, key, "")
	if str == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(domain.DateLayout, str)
	if err != nil {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "%s: %v", key, err)
	}
	return d, nil
}

// num maps NaN and infinities to null.
func num(v float64) any {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return v
}
