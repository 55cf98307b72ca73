package engine

import (
	"errors"
	"fmt"
	"sort"
)

// Risk errors.
var (
	// ErrDailyLoss is reported when the portfolio loses more than the
	// allowed fraction of its value in one step.
	ErrDailyLoss = errors.New("daily loss limit breached")

	// ErrCapUnabsorbed is returned when weight cut by the position cap has
	// nowhere to go: there is no cash asset and no asset below the cap
	// holds weight. The account renormalises weights to a unit sum, so
	// dropping the excess would undo the cap.
	ErrCapUnabsorbed = errors.New("capped weight cannot be absorbed")
)

// RiskManager enforces allocation limits on target weights and watches the
// per-step loss.
type RiskManager struct {
	maxPositionPct  float64
	maxDailyLossPct float64
	cashAsset       string
}

// NewRiskManager creates a RiskManager with the specified risk thresholds.
//
//   - maxPositionPct: maximum weight of a single non-cash asset
//     (e.g. 0.10 for 10%); zero disables the cap.
//   - maxDailyLossPct: maximum fraction of value that may be lost in a
//     single step (e.g. 0.02 for 2%); zero disables the check.
//   - cashAsset: asset that absorbs capped weight; empty redistributes it
//     across the uncapped assets instead. The cash asset must be part of
//     the traded universe (see CheckUniverse).
func NewRiskManager(maxPositionPct, maxDailyLossPct float64, cashAsset string) *RiskManager {
	return &RiskManager{
		maxPositionPct:  maxPositionPct,
		maxDailyLossPct: maxDailyLossPct,
		cashAsset:       cashAsset,
	}
}

// CheckUniverse fails fast when the position cap can never be honoured
// over assets: without the cash asset among them, the non-cash assets
// must be able to hold a unit weight sum under the cap.
func (rm *RiskManager) CheckUniverse(assets []string) error {
	if rm == nil || rm.maxPositionPct <= 0 {
		return nil
	}
	var n int
	for _, a := range assets {
		if rm.cashAsset != "" && a == rm.cashAsset {
			return nil
		}
		n++
	}
	if float64(n)*rm.maxPositionPct < 1-1e-12 {
		return fmt.Errorf("%d assets capped at %.4f without cash asset %q: %w",
			n, rm.maxPositionPct, rm.cashAsset, ErrCapUnabsorbed)
	}
	return nil
}

// CapWeights returns a copy of w with every non-cash weight limited to
// maxPositionPct. The excess goes to the cash asset when one is
// configured; otherwise it is spread pro rata over the assets still below
// the cap and holding weight. Excess that cannot be placed is
// ErrCapUnabsorbed. Negative weights are left alone.
func (rm *RiskManager) CapWeights(w map[string]float64) (map[string]float64, error) {
	out := make(map[string]float64, len(w))
	for k, v := range w {
		out[k] = v
	}
	if rm == nil || rm.maxPositionPct <= 0 {
		return out, nil
	}
	limit := rm.maxPositionPct

	ids := make([]string, 0, len(out))
	for k := range out {
		ids = append(ids, k)
	}
	sort.Strings(ids)

	hasCash := rm.cashAsset != ""

	capped := make(map[string]bool)
	// Assets pushed over the limit by a redistribution are capped in the
	// next round, so the capped set grows until the excess is placed.
	for {
		var excess float64
		for _, id := range ids {
			if id == rm.cashAsset && hasCash {
				continue
			}
			if out[id] > limit {
				excess += out[id] - limit
				out[id] = limit
				capped[id] = true
			}
		}
		if excess <= 1e-12 {
			break
		}
		if hasCash {
			out[rm.cashAsset] += excess
			break
		}

		var room float64
		for _, id := range ids {
			if !capped[id] && out[id] > 0 {
				room += out[id]
			}
		}
		if room <= 0 {
			return nil, fmt.Errorf("%.6f of weight over cap %.4f: %w", excess, limit, ErrCapUnabsorbed)
		}
		for _, id := range ids {
			if !capped[id] && out[id] > 0 {
				out[id] += excess * out[id] / room
			}
		}
	}
	return out, nil
}

// CheckLoss returns ErrDailyLoss when value fell by more than
// maxDailyLossPct relative to prev.
func (rm *RiskManager) CheckLoss(prev, value float64) error {
	if rm == nil || rm.maxDailyLossPct <= 0 || prev <= 0 {
		return nil
	}
	loss := (prev - value) / prev
	if loss > rm.maxDailyLossPct+1e-12 {
		return fmt.Errorf("lost %.4f%% (limit %.4f%%): %w",
			100*loss, 100*rm.maxDailyLossPct, ErrDailyLoss)
	}
	return nil
}
