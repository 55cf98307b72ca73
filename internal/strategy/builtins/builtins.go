// Package builtins provides the allocation strategies that ship with the
// backtester.
package builtins

import (
	"errors"
	"math"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/panel"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/strategy"
)

// ErrNoCashAsset is returned by strategies that need a cash asset when
// none of the requested assets is one.
var ErrNoCashAsset = errors.New("no cash asset in universe")

// Options parameterises the built-in strategies.
type Options struct {
	Weights     map[string]float64 // fixed
	SMAFast     int                // sma-cross
	SMASlow     int                // sma-cross
	ScoreMethod string             // risk-adjusted
	Lookback    int                // risk-adjusted
	MaxWeight   float64            // risk-adjusted
}

// RegisterAll adds every built-in strategy to r.
func RegisterAll(r *strategy.Registry, opts Options) {
	r.Register(NewEqualWeight())
	r.Register(NewFixed(opts.Weights))
	r.Register(NewCashOnly())
	r.Register(NewSMACross(opts.SMAFast, opts.SMASlow))
	r.Register(NewRiskAdjusted(opts.ScoreMethod, opts.Lookback, opts.MaxWeight))
}

// split partitions assets into the cash asset (empty when none) and the
// risky assets with a usable close at the view's date.
func split(view panel.View, assets []string) (cash string, risky []string) {
	for _, a := range assets {
		row, ok := view.Get(view.AsOf(), a)
		if !ok {
			continue
		}
		if row.IsCash {
			if cash == "" {
				cash = a
			}
			continue
		}
		if domain.Finite(row.Close) && row.Close > 0 {
			risky = append(risky, a)
		}
	}
	return cash, risky
}

// closes returns the last n visible closes of asset, oldest first. It
// returns nil when fewer than n finite closes are available.
func closes(view panel.View, asset string, n int) []float64 {
	hist := view.History(asset)
	if n <= 0 || len(hist) < n {
		return nil
	}
	out := make([]float64, 0, n)
	for _, r := range hist[len(hist)-n:] {
		if !domain.Finite(r.Close) {
			return nil
		}
		out = append(out, r.Close)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	var s float64
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// fillCash assigns the unallocated remainder of w to cash when there is
// one.
func fillCash(w map[string]float64, cash string) map[string]float64 {
	if cash == "" {
		return w
	}
	var sum float64
	for a, v := range w {
		if a != cash {
			sum += v
		}
	}
	w[cash] = math.Max(0, 1-sum)
	return w
}
