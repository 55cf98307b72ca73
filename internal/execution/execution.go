// Package execution turns signed order quantities into executable trades:
// lot rounding, T+1 reference pricing and half-spread price adjustment.
package execution

import (
	"math"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
)

// DefaultLotSize trades whole shares.
const DefaultLotSize = 1

// HalfSpreadPrice widens the reference price by half the relative spread
// against the trader: buys (side >= 0) pay pRef*(1+s/2), sells (side < 0)
// receive pRef*(1-s/2). Negative or missing spreads count as zero.
func HalfSpreadPrice(pRef, side, spread float64) float64 {
	s := domain.NonNegative(spread)
	if side >= 0 {
		return pRef * (1 + 0.5*s)
	}
	return pRef * (1 - 0.5*s)
}

// RoundShares rounds a signed quantity to a multiple of lot. Buys are
// floored so they never spend more than intended; sells are ceiled toward
// zero so they never deliver more shares than requested. Zero and NaN yield
// zero; a lot below one is treated as one.
//
//	RoundShares(10.7, 1)  == 10
//	RoundShares(-10.7, 1) == -10
//	RoundShares(12, 5)    == 10
//	RoundShares(-12, 5)   == -10
func RoundShares(q float64, lot int) float64 {
	if lot < 1 {
		lot = DefaultLotSize
	}
	if math.IsNaN(q) || q == 0 {
		return 0
	}
	l := float64(lot)
	var out float64
	if q > 0 {
		out = math.Floor(q/l) * l
	} else {
		out = math.Ceil(q/l) * l
	}
	if out == 0 {
		// normalise -0
		return 0
	}
	return out
}

// Price builds the trade record for a rounded quantity at a reference
// price and relative spread.
func Price(o domain.Order, q, pRef, spread float64) domain.Trade {
	s := domain.NonNegative(spread)
	pExec := HalfSpreadPrice(pRef, q, s)
	return domain.Trade{
		Date:        domain.Day(o.Date),
		Asset:       o.Asset,
		Q:           q,
		PRef:        pRef,
		PExec:       pExec,
		Spread:      s,
		NotionalAbs: math.Abs(q) * pExec,
		SpreadCost:  math.Abs(q) * pRef * 0.5 * s,
	}
}
