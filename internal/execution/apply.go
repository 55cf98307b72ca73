package execution

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/panel"
)

// DefaultOrderColumn is the order set column read by default.
const DefaultOrderColumn = "delta_shares"

// Execution errors.
var (
	// ErrMissingReference is returned when a non-zero order has no finite
	// reference price in the panel.
	ErrMissingReference = errors.New("missing reference price")

	// ErrUnknownOrderColumn is returned when the configured order column
	// does not exist in the order set.
	ErrUnknownOrderColumn = errors.New("unknown order column")

	// ErrDuplicateOrder is returned when two orders share a (date, asset).
	ErrDuplicateOrder = errors.New("duplicate order for (date, asset)")

	// ErrShortSale is returned under ShortReject when an order would take a
	// position below zero.
	ErrShortSale = errors.New("order would open a short position")
)

// SpreadSource selects where the relative spread of a trade comes from.
type SpreadSource string

// Spread sources.
const (
	// SpreadEstimate uses the panel's spread estimate clamped at zero.
	SpreadEstimate SpreadSource = "estimate"
	// SpreadFixed uses Config.FixedSpreadBps for every trade.
	SpreadFixed SpreadSource = "fixed"
	// SpreadNone prices every trade at the reference price.
	SpreadNone SpreadSource = "none"
)

// ShortPolicy decides what happens to an order that would leave a negative
// position when short selling is not allowed.
type ShortPolicy string

// Short-sale policies.
const (
	// ShortIgnore treats AllowShort as a flag only: orders pass through.
	ShortIgnore ShortPolicy = "ignore"
	// ShortClip reduces the sell so the position closes at exactly zero.
	ShortClip ShortPolicy = "clip"
	// ShortReject fails the whole execution.
	ShortReject ShortPolicy = "reject"
)

// Config controls Apply. The zero value is not useful; start from
// DefaultConfig.
type Config struct {
	OrderColumn     string
	UseNextInterval bool
	SpreadSource    SpreadSource
	FixedSpreadBps  float64
	LotSize         int
	AllowShort      bool
	ShortPolicy     ShortPolicy

	// Holdings are the positions before the first order, used by the
	// short-sale constraint. Nil means flat.
	Holdings map[string]float64
}

// DefaultConfig returns T+1 pricing with the panel spread estimate, whole
// share lots and no short selling enforced only as a flag.
func DefaultConfig() Config {
	return Config{
		OrderColumn:     DefaultOrderColumn,
		UseNextInterval: true,
		SpreadSource:    SpreadEstimate,
		LotSize:         DefaultLotSize,
		AllowShort:      false,
		ShortPolicy:     ShortIgnore,
	}
}

// ReferenceColumn returns the panel column used as reference price.
func (c Config) ReferenceColumn() panel.Column {
	if c.UseNextInterval {
		return panel.ColumnExecRef
	}
	return panel.ColumnOpen
}

// Spread returns the relative spread applied to fills of the row.
func (c Config) Spread(row domain.PanelRow) float64 {
	switch c.SpreadSource {
	case SpreadEstimate:
		return row.SpreadOrZero()
	case SpreadFixed:
		return domain.NonNegative(c.FixedSpreadBps / 1e4)
	}
	return 0
}

// OrderSet is a table of signed quantities keyed by (date, asset) with one
// or more named columns.
type OrderSet struct {
	columns map[string]map[domain.Key]float64
}

// NewOrderSet creates an empty OrderSet.
func NewOrderSet() *OrderSet {
	return &OrderSet{columns: make(map[string]map[domain.Key]float64)}
}

// Set stores the quantity of column at (date, asset), replacing any
// previous value.
func (s *OrderSet) Set(column string, date time.Time, asset string, q float64) {
	col, ok := s.columns[column]
	if !ok {
		col = make(map[domain.Key]float64)
		s.columns[column] = col
	}
	col[domain.NewKey(date, asset)] = q
}

// Columns returns the sorted column names.
func (s *OrderSet) Columns() []string {
	out := make([]string, 0, len(s.columns))
	for name := range s.columns {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Column returns the orders of one column sorted by (date, asset).
func (s *OrderSet) Column(name string) ([]domain.Order, error) {
	col, ok := s.columns[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOrderColumn, name)
	}
	out := make([]domain.Order, 0, len(col))
	for k, q := range col {
		out = append(out, domain.Order{Date: k.Date, Asset: k.Asset, Quantity: q})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out, nil
}

// ApplyOrderSet executes the column cfg.OrderColumn of set against p.
func ApplyOrderSet(p *panel.Panel, set *OrderSet, cfg Config) ([]domain.Trade, error) {
	col := cfg.OrderColumn
	if col == "" {
		col = DefaultOrderColumn
	}
	orders, err := set.Column(col)
	if err != nil {
		return nil, err
	}
	return Apply(p, orders, cfg)
}

// Apply prices every order against the panel and returns the trade records
// sorted by (date, asset).
//
// The reference price is the row's exec_ref_tplus1 (or its open when
// UseNextInterval is false), so an order formed on date t fills at t+1.
// A non-zero order without a finite reference price is a caller error.
// Zero orders on missing rows are dropped. Apply has no side effects; the
// Holdings map is copied before use.
func Apply(p *panel.Panel, orders []domain.Order, cfg Config) ([]domain.Trade, error) {
	refCol := cfg.ReferenceColumn()

	sorted := make([]domain.Order, len(orders))
	copy(sorted, orders)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key().Less(sorted[j].Key()) })

	positions := make(map[string]float64, len(cfg.Holdings))
	for a, q := range cfg.Holdings {
		positions[a] = q
	}
	enforce := !cfg.AllowShort && (cfg.ShortPolicy == ShortClip || cfg.ShortPolicy == ShortReject)

	trades := make([]domain.Trade, 0, len(sorted))
	for i, o := range sorted {
		k := o.Key()
		if i > 0 && sorted[i-1].Key() == k {
			return nil, fmt.Errorf("%s: %w", k, ErrDuplicateOrder)
		}

		q := RoundShares(o.Quantity, cfg.LotSize)
		row, ok := p.Get(o.Date, o.Asset)
		if !ok {
			if q == 0 {
				continue
			}
			return nil, fmt.Errorf("%s: no panel row: %w", k, ErrMissingReference)
		}
		pRef, err := panel.Value(row, refCol)
		if err != nil {
			return nil, err
		}
		if !domain.Finite(pRef) {
			if q == 0 {
				continue
			}
			return nil, fmt.Errorf("%s: %s is %v: %w", k, refCol, pRef, ErrMissingReference)
		}

		if enforce {
			pos := positions[o.Asset]
			if pos+q < 0 {
				if cfg.ShortPolicy == ShortReject {
					return nil, fmt.Errorf("%s: position %v, order %v: %w", k, pos, q, ErrShortSale)
				}
				q = RoundShares(-math.Max(pos, 0), cfg.LotSize)
			}
		}
		positions[o.Asset] += q

		trades = append(trades, Price(o, q, pRef, cfg.Spread(row)))
	}
	return trades, nil
}
