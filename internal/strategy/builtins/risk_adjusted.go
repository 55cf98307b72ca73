package builtins

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/panel"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*RiskAdjusted)(nil)

// Score methods of RiskAdjusted.
const (
	ScoreSharpe  = "sharpe"
	ScoreSortino = "sortino"
	ScoreCalmar  = "calmar"
)

// DefaultLookback is the trailing window, in trading days, of RiskAdjusted.
const DefaultLookback = 252

// RiskAdjusted weights risky assets in proportion to a trailing
// risk-adjusted return score. Negative and undefined scores count as zero,
// each weight is capped at maxWeight and the capped vector renormalised.
// When no asset scores positively everything goes to cash.
type RiskAdjusted struct {
	method    string
	lookback  int
	maxWeight float64
}

// NewRiskAdjusted creates a RiskAdjusted strategy. Empty method selects
// sharpe, a non-positive lookback DefaultLookback and a maxWeight outside
// (0, 1] disables the cap.
func NewRiskAdjusted(method string, lookback int, maxWeight float64) *RiskAdjusted {
	if method == "" {
		method = ScoreSharpe
	}
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	if maxWeight <= 0 || maxWeight > 1 {
		maxWeight = 1
	}
	return &RiskAdjusted{method: method, lookback: lookback, maxWeight: maxWeight}
}

// Name returns "risk-adjusted".
func (s *RiskAdjusted) Name() string { return "risk-adjusted" }

// Init validates the score method.
func (s *RiskAdjusted) Init(_ context.Context) error {
	switch s.method {
	case ScoreSharpe, ScoreSortino, ScoreCalmar:
		return nil
	}
	return fmt.Errorf("risk-adjusted: unknown score method %q", s.method)
}

// Weights scores every risky asset over the trailing window.
func (s *RiskAdjusted) Weights(_ context.Context, view panel.View, assets []string) (map[string]float64, error) {
	cash, risky := split(view, assets)
	scores := make(map[string]float64, len(risky))
	var total float64
	for _, a := range risky {
		px := closes(view, a, s.lookback)
		if px == nil {
			continue
		}
		sc := s.score(strategy.ComputeMetrics(px))
		if math.IsNaN(sc) || sc <= 0 {
			continue
		}
		scores[a] = sc
		total += sc
	}

	w := make(map[string]float64, len(assets))
	if total > 0 {
		ids := make([]string, 0, len(scores))
		for a := range scores {
			ids = append(ids, a)
		}
		sort.Strings(ids)
		var capped float64
		for _, a := range ids {
			w[a] = math.Min(scores[a]/total, s.maxWeight)
			capped += w[a]
		}
		for _, a := range ids {
			w[a] /= capped
		}
	}
	return fillCash(w, cash), nil
}

func (s *RiskAdjusted) score(m strategy.Metrics) float64 {
	switch s.method {
	case ScoreSortino:
		return m.SortinoRatio
	case ScoreCalmar:
		return m.CalmarRatio
	}
	return m.SharpeRatio
}
