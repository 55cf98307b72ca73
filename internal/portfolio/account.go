// Package portfolio implements a cash-and-shares account that rebalances to
// target weights each step, filling at the next interval's reference price
// and charging spread, commission and slippage.
package portfolio

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/execution"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/fees"
)

// EPS guards divisions by portfolio value and weight sums.
const EPS = 1e-12

// DefaultInitialCash is the starting cash when Config.InitialCash is zero.
const DefaultInitialCash = 1_000_000.0

// Account errors.
var (
	// ErrDuplicateAsset is returned by New when an asset id repeats.
	ErrDuplicateAsset = errors.New("duplicate asset id")

	// ErrNoAssets is returned by New without assets.
	ErrNoAssets = errors.New("no assets")

	// ErrShortSale is returned under ShortReject when a target weight would
	// open a short position.
	ErrShortSale = errors.New("target would open a short position")

	// ErrInsufficientCash is returned under CashReject when the rebalance
	// would leave negative cash.
	ErrInsufficientCash = errors.New("insufficient cash for rebalance")

	// ErrUnknownPolicy is returned for an unrecognised policy name.
	ErrUnknownPolicy = errors.New("unknown policy")
)

// ShortPolicy decides how negative target weights are handled when short
// selling is not allowed.
type ShortPolicy string

// Short-sale policies.
const (
	// ShortIgnore clips negative weights to zero before renormalising.
	ShortIgnore ShortPolicy = "ignore"
	// ShortClip clips negative weights and additionally clamps every sell
	// so that no position ends below zero.
	ShortClip ShortPolicy = "clip"
	// ShortReject fails the step on any negative weight.
	ShortReject ShortPolicy = "reject"
)

// CashPolicy decides what happens when a rebalance would overdraw cash.
type CashPolicy string

// Cash policies.
const (
	// CashAllow lets cash go negative (implicit margin).
	CashAllow CashPolicy = "allow"
	// CashReject fails the step and leaves the account untouched.
	CashReject CashPolicy = "reject"
	// CashClip scales all buys down by a common factor.
	CashClip CashPolicy = "clip"
)

// ParseShortPolicy validates a short policy name. Empty means ShortIgnore.
func ParseShortPolicy(s string) (ShortPolicy, error) {
	switch p := ShortPolicy(s); p {
	case "":
		return ShortIgnore, nil
	case ShortIgnore, ShortClip, ShortReject:
		return p, nil
	}
	return "", fmt.Errorf("short policy %q: %w", s, ErrUnknownPolicy)
}

// ParseCashPolicy validates a cash policy name. Empty means CashAllow.
func ParseCashPolicy(s string) (CashPolicy, error) {
	switch p := CashPolicy(s); p {
	case "":
		return CashAllow, nil
	case CashAllow, CashReject, CashClip:
		return p, nil
	}
	return "", fmt.Errorf("cash policy %q: %w", s, ErrUnknownPolicy)
}

// Config parameterises an Account.
type Config struct {
	InitialCash float64
	AllowShort  bool
	ShortPolicy ShortPolicy
	CashPolicy  CashPolicy
	// LotSize > 0 rounds trade quantities with execution.RoundShares;
	// zero trades continuous quantities.
	LotSize int
	Fees    fees.Config
}

// NextPrice holds the t+1 prices of one asset.
type NextPrice struct {
	Mark       float64 // valuation price at t+1
	Ref        float64 // execution reference price
	Spread     float64 // relative spread for the fill
	Volatility float64 // sigma for volatility slippage
}

// StepInput is the data needed for one rebalance.
type StepInput struct {
	Date    time.Time
	MarkNow map[string]float64
	Next    map[string]NextPrice
	Target  map[string]float64
}

// StepInfo reports the outcome of one rebalance.
type StepInfo struct {
	Date              time.Time
	Value             float64
	ValuePre          float64
	ValuePreRebalance float64
	Cash              float64
	Fees              float64 // commission and slippage charged to cash
	SpreadCost        float64
	TotalCost         float64 // SpreadCost + Fees
	MarkDrift         float64 // sum of q * (Mark - Ref)
	Trades            []domain.CostedTrade
	Q                 map[string]float64
	PExec             map[string]float64
	Weights           map[string]float64
}

// Residual returns (Value + TotalCost) - (ValuePreRebalance + MarkDrift),
// which is zero up to floating point error after every step.
func (s StepInfo) Residual() float64 {
	return (s.Value + s.TotalCost) - (s.ValuePreRebalance + s.MarkDrift)
}

// State is a copy of the account's holdings.
type State struct {
	Cash    float64
	Value   float64
	Shares  map[string]float64
	Weights map[string]float64
}

// Account tracks cash and share holdings across rebalancing steps. It is
// not safe for concurrent use.
type Account struct {
	assets []string
	cfg    Config
	log    *slog.Logger

	cash    float64
	value   float64
	shares  map[string]float64
	weights map[string]float64
}

// New creates an Account over the given asset ids, reset to the
// configured initial cash.
func New(assets []string, cfg Config, log *slog.Logger) (*Account, error) {
	if len(assets) == 0 {
		return nil, ErrNoAssets
	}
	seen := make(map[string]struct{}, len(assets))
	for _, a := range assets {
		if _, ok := seen[a]; ok {
			return nil, fmt.Errorf("%s: %w", a, ErrDuplicateAsset)
		}
		seen[a] = struct{}{}
	}
	if cfg.InitialCash == 0 {
		cfg.InitialCash = DefaultInitialCash
	}
	if cfg.ShortPolicy == "" {
		cfg.ShortPolicy = ShortIgnore
	}
	if cfg.CashPolicy == "" {
		cfg.CashPolicy = CashAllow
	}
	if log == nil {
		log = slog.Default()
	}

	a := &Account{
		assets: append([]string(nil), assets...),
		cfg:    cfg,
		log:    log,
	}
	a.Reset(cfg.InitialCash)
	return a, nil
}

// Reset sets cash to initialCash and clears all holdings.
func (a *Account) Reset(initialCash float64) {
	a.cash = initialCash
	a.value = initialCash
	a.shares = make(map[string]float64, len(a.assets))
	a.weights = make(map[string]float64, len(a.assets))
	for _, id := range a.assets {
		a.shares[id] = 0
		a.weights[id] = 0
	}
}

// Assets returns the asset ids in account order.
func (a *Account) Assets() []string {
	return append([]string(nil), a.assets...)
}

// State returns a deep copy of the current holdings.
func (a *Account) State() State {
	return State{
		Cash:    a.cash,
		Value:   a.value,
		Shares:  copyMap(a.shares),
		Weights: copyMap(a.weights),
	}
}

// Step rebalances to in.Target and returns the post-trade weights.
//
// The portfolio is valued at the next marks before trading; targets are
// turned into share counts at those marks and filled at the next reference
// price widened by half the spread. Commission and slippage are charged to
// cash. On error the account is left unchanged.
func (a *Account) Step(in StepInput) (map[string]float64, StepInfo, error) {
	info := StepInfo{Date: domain.Day(in.Date)}

	mark := make(map[string]float64, len(a.assets))
	valuePre, valuePreRebalance := a.cash, a.cash
	for _, id := range a.assets {
		mark[id] = markOrZero(in.Next[id].Mark)
		valuePre += a.shares[id] * markOrZero(in.MarkNow[id])
		valuePreRebalance += a.shares[id] * mark[id]
	}
	info.ValuePre = valuePre
	info.ValuePreRebalance = valuePreRebalance

	w, err := a.normaliseWeights(in.Target)
	if err != nil {
		return nil, info, err
	}

	q := a.deltas(w, mark, in.Next, valuePreRebalance, 1)
	trades, costed, cashAfter := a.price(info.Date, q, in.Next)

	if cashAfter < -EPS {
		switch a.cfg.CashPolicy {
		case CashReject:
			return nil, info, fmt.Errorf("%s: cash after rebalance %.2f: %w",
				info.Date.Format(domain.DateLayout), cashAfter, ErrInsufficientCash)
		case CashClip:
			scale := a.buyScale(q, trades, costed)
			q = a.deltas(w, mark, in.Next, valuePreRebalance, scale)
			trades, costed, cashAfter = a.price(info.Date, q, in.Next)
			if cashAfter < -EPS {
				a.log.Warn("cash negative after clipping buys",
					"date", info.Date.Format(domain.DateLayout), "cash", cashAfter, "scale", scale)
			}
		default:
			a.log.Debug("rebalance overdraws cash",
				"date", info.Date.Format(domain.DateLayout), "cash", cashAfter)
		}
	}

	info.PExec = make(map[string]float64, len(a.assets))
	for _, t := range trades {
		info.PExec[t.Asset] = t.PExec
	}
	for _, id := range a.assets {
		if _, ok := info.PExec[id]; !ok {
			info.PExec[id] = in.Next[id].Ref
		}
		if q[id] != 0 {
			info.MarkDrift += q[id] * (mark[id] - in.Next[id].Ref)
		}
	}

	a.cash = cashAfter
	value := a.cash
	for _, id := range a.assets {
		a.shares[id] += q[id]
		value += a.shares[id] * mark[id]
	}
	a.value = value
	denom := math.Max(a.value, EPS)
	for _, id := range a.assets {
		a.weights[id] = a.shares[id] * mark[id] / denom
	}

	info.Value = a.value
	info.Cash = a.cash
	info.Fees = fees.Total(costed)
	info.SpreadCost = fees.SpreadCost(costed)
	info.TotalCost = fees.TotalCost(costed)
	info.Trades = costed
	info.Q = q
	info.Weights = copyMap(a.weights)
	return copyMap(a.weights), info, nil
}

// normaliseWeights reads the target weight of every asset (missing and
// non-finite count as zero), applies the short policy and rescales to a
// unit sum.
func (a *Account) normaliseWeights(target map[string]float64) (map[string]float64, error) {
	w := make(map[string]float64, len(a.assets))
	var sum float64
	for _, id := range a.assets {
		v := target[id]
		if !domain.Finite(v) {
			v = 0
		}
		if v < 0 && !a.cfg.AllowShort {
			if a.cfg.ShortPolicy == ShortReject {
				return nil, fmt.Errorf("%s weight %v: %w", id, v, ErrShortSale)
			}
			v = 0
		}
		w[id] = v
		sum += v
	}
	denom := math.Max(sum, EPS)
	for id := range w {
		w[id] /= denom
	}
	return w, nil
}

// deltas computes the trade quantities that move the holdings to the
// weights at the given marks. Buys are multiplied by buyScale.
func (a *Account) deltas(w, mark map[string]float64, next map[string]NextPrice, value, buyScale float64) map[string]float64 {
	q := make(map[string]float64, len(a.assets))
	for _, id := range a.assets {
		if !domain.Finite(next[id].Ref) {
			// no fill possible; the asset is frozen for this step
			q[id] = 0
			continue
		}
		var target float64
		if m := mark[id]; m != 0 {
			target = w[id] * value / m
		}
		d := target - a.shares[id]
		if d > 0 {
			d *= buyScale
		}
		if a.cfg.LotSize > 0 {
			d = execution.RoundShares(d, a.cfg.LotSize)
		}
		if !a.cfg.AllowShort && a.cfg.ShortPolicy == ShortClip && a.shares[id]+d < 0 {
			d = -math.Max(a.shares[id], 0)
		}
		q[id] = d
	}
	return q
}

// price fills the non-zero quantities and returns the trades, their costs
// and the cash balance after settlement.
func (a *Account) price(date time.Time, q map[string]float64, next map[string]NextPrice) ([]domain.Trade, []domain.CostedTrade, float64) {
	var trades []domain.Trade
	sigma := make(fees.Sigma)
	cash := a.cash
	for _, id := range a.assets {
		if q[id] == 0 {
			continue
		}
		np := next[id]
		t := execution.Price(domain.Order{Date: date, Asset: id, Quantity: q[id]}, q[id], np.Ref, np.Spread)
		trades = append(trades, t)
		sigma[t.Key()] = np.Volatility
		cash -= t.Q * t.PExec
	}
	costed := fees.Apply(trades, a.cfg.Fees, sigma)
	cash -= fees.Total(costed)
	return trades, costed, cash
}

// buyScale returns the factor in [0, 1] by which buys must shrink so that
// the cash left after sells pays for them including their costs. The
// minimum fee does not shrink with the order, so each buy reserves it up
// front and only the proportional part of the cost is scaled.
func (a *Account) buyScale(q map[string]float64, trades []domain.Trade, costed []domain.CostedTrade) float64 {
	available := a.cash
	var buyCost float64
	for i, t := range trades {
		if q[t.Asset] <= 0 {
			available += -t.Q*t.PExec - costed[i].Fees - costed[i].VolSlip
			continue
		}
		buyCost += t.Q*t.PExec + t.NotionalAbs*a.cfg.Fees.CommissionBps/1e4 + costed[i].VolSlip
		if a.cfg.Fees.MinFeeAbs > 0 {
			available -= a.cfg.Fees.MinFeeAbs
		}
	}
	if buyCost <= 0 {
		return 1
	}
	return math.Max(0, math.Min(1, available/buyCost))
}

func markOrZero(v float64) float64 {
	if !domain.Finite(v) {
		return 0
	}
	return v
}

func copyMap(m map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
