package builtins

import (
	"context"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/panel"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/strategy"
)

// Compile-time interface checks.
var (
	_ strategy.Strategy = (*EqualWeight)(nil)
	_ strategy.Strategy = (*Fixed)(nil)
	_ strategy.Strategy = (*CashOnly)(nil)
)

// EqualWeight splits the portfolio evenly across the risky assets that
// have a price. With no such asset everything goes to cash.
type EqualWeight struct{}

// NewEqualWeight creates an EqualWeight strategy.
func NewEqualWeight() *EqualWeight { return &EqualWeight{} }

// Name returns "equal-weight".
func (s *EqualWeight) Name() string { return "equal-weight" }

// Init is a no-op.
func (s *EqualWeight) Init(_ context.Context) error { return nil }

// Weights returns 1/n for each priced risky asset.
func (s *EqualWeight) Weights(_ context.Context, view panel.View, assets []string) (map[string]float64, error) {
	cash, risky := split(view, assets)
	w := make(map[string]float64, len(assets))
	for _, a := range risky {
		w[a] = 1 / float64(len(risky))
	}
	return fillCash(w, cash), nil
}

// Fixed holds constant target weights. Assets without a configured weight
// are held at zero.
type Fixed struct {
	weights map[string]float64
}

// NewFixed creates a Fixed strategy. The map is copied.
func NewFixed(weights map[string]float64) *Fixed {
	w := make(map[string]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return &Fixed{weights: w}
}

// Name returns "fixed".
func (s *Fixed) Name() string { return "fixed" }

// Init is a no-op.
func (s *Fixed) Init(_ context.Context) error { return nil }

// Weights returns the configured weights restricted to assets.
func (s *Fixed) Weights(_ context.Context, _ panel.View, assets []string) (map[string]float64, error) {
	w := make(map[string]float64, len(assets))
	for _, a := range assets {
		if v, ok := s.weights[a]; ok {
			w[a] = v
		}
	}
	return w, nil
}

// CashOnly keeps the whole portfolio in the cash asset.
type CashOnly struct{}

// NewCashOnly creates a CashOnly strategy.
func NewCashOnly() *CashOnly { return &CashOnly{} }

// Name returns "cash-only".
func (s *CashOnly) Name() string { return "cash-only" }

// Init is a no-op.
func (s *CashOnly) Init(_ context.Context) error { return nil }

// Weights puts full weight on the cash asset.
func (s *CashOnly) Weights(_ context.Context, view panel.View, assets []string) (map[string]float64, error) {
	cash, _ := split(view, assets)
	if cash == "" {
		return nil, ErrNoCashAsset
	}
	return map[string]float64{cash: 1}, nil
}
