// Package engine coordinates order execution, cost accounting, trade
// persistence and risk checks.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/execution"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/fees"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/panel"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/store"
)

// Engine runs the order pipeline: pricing against the panel, fee
// application and persistence of the costed trades.
type Engine struct {
	exec   execution.Config
	costs  fees.Config
	trades store.TradeStore
	log    *slog.Logger
}

// NewEngine creates a new Engine wired with the given dependencies. A nil
// TradeStore disables persistence.
func NewEngine(exec execution.Config, costs fees.Config, trades store.TradeStore, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		exec:   exec,
		costs:  costs,
		trades: trades,
		log:    log.With("component", "engine"),
	}
}

// ExecutionResult is the outcome of Execute.
type ExecutionResult struct {
	Trades     []domain.CostedTrade
	Fees       float64 // commission and slippage
	SpreadCost float64
	TotalCost  float64
}

// Execute prices orders against p, applies costs with per-row volatility
// as sigma and stores the result under runID.
func (e *Engine) Execute(ctx context.Context, runID string, p *panel.Panel, orders []domain.Order) (ExecutionResult, error) {
	trades, err := execution.Apply(p, orders, e.exec)
	if err != nil {
		return ExecutionResult{}, fmt.Errorf("executing orders: %w", err)
	}

	sigma := make(fees.Sigma, len(trades))
	for _, t := range trades {
		if row, ok := p.Get(t.Date, t.Asset); ok {
			sigma[t.Key()] = row.Volatility
		}
	}
	costed := fees.Apply(trades, e.costs, sigma)

	if e.trades != nil && runID != "" {
		if err := e.trades.WriteTrades(ctx, runID, costed); err != nil {
			return ExecutionResult{}, fmt.Errorf("storing trades: %w", err)
		}
	}

	res := ExecutionResult{
		Trades:     costed,
		Fees:       fees.Total(costed),
		SpreadCost: fees.SpreadCost(costed),
		TotalCost:  fees.TotalCost(costed),
	}
	e.log.Info("orders executed",
		"run", runID, "orders", len(orders), "trades", len(costed), "total_cost", res.TotalCost)
	return res, nil
}

// ExecuteOrderSet is Execute on the configured column of an order set.
func (e *Engine) ExecuteOrderSet(ctx context.Context, runID string, p *panel.Panel, set *execution.OrderSet) (ExecutionResult, error) {
	col := e.exec.OrderColumn
	if col == "" {
		col = execution.DefaultOrderColumn
	}
	orders, err := set.Column(col)
	if err != nil {
		return ExecutionResult{}, err
	}
	return e.Execute(ctx, runID, p, orders)
}
