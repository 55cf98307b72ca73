// Package panel holds the (date, asset) keyed price panel consumed by the
// execution engine and the portfolio account.
package panel

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
)

// Panel errors.
var (
	// ErrDuplicateKey is returned when a (date, asset) row is added twice.
	ErrDuplicateKey = errors.New("duplicate (date, asset) row")

	// ErrMissingExecRef is returned by Validate when a row other than the
	// asset's last one has no next-interval reference price.
	ErrMissingExecRef = errors.New("missing exec_ref_tplus1")

	// ErrMissingMark is returned by Validate when a row has no close price.
	ErrMissingMark = errors.New("missing close price")

	// ErrUnknownColumn is returned for a price column name that is not
	// part of the panel schema.
	ErrUnknownColumn = errors.New("unknown price column")
)

// Column names a price column of the panel.
type Column string

// Price columns usable as mark or reference price.
const (
	ColumnOpen     Column = "open"
	ColumnClose    Column = "close"
	ColumnAdjClose Column = "adj_close"
	ColumnExecRef  Column = "exec_ref_tplus1"
)

// ParseColumn validates a column name.
func ParseColumn(name string) (Column, error) {
	switch c := Column(name); c {
	case ColumnOpen, ColumnClose, ColumnAdjClose, ColumnExecRef:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownColumn, name)
}

// Value returns the row's value for the given column.
func Value(r domain.PanelRow, c Column) (float64, error) {
	switch c {
	case ColumnOpen:
		return r.Open, nil
	case ColumnClose:
		return r.Close, nil
	case ColumnAdjClose:
		return r.AdjClose, nil
	case ColumnExecRef:
		return r.ExecRefTPlus1, nil
	}
	return math.NaN(), fmt.Errorf("%w: %q", ErrUnknownColumn, string(c))
}

// Panel is an in-memory price panel. It is not safe for concurrent
// mutation; once built it may be read from several goroutines.
type Panel struct {
	rows   map[domain.Key]domain.PanelRow
	dates  []time.Time
	assets []string
	dirty  bool
}

// New creates an empty Panel.
func New() *Panel {
	return &Panel{rows: make(map[domain.Key]domain.PanelRow)}
}

// FromRows builds a Panel from rows, failing on duplicate keys.
func FromRows(rows []domain.PanelRow) (*Panel, error) {
	p := New()
	if err := p.Add(rows...); err != nil {
		return nil, err
	}
	return p, nil
}

// Add inserts rows. A row whose key is already present is a precondition
// violation; nothing after the offending row is added.
func (p *Panel) Add(rows ...domain.PanelRow) error {
	defer p.index()
	for _, r := range rows {
		r.Date = domain.Day(r.Date)
		k := r.Key()
		if _, ok := p.rows[k]; ok {
			return fmt.Errorf("adding %s: %w", k, ErrDuplicateKey)
		}
		p.rows[k] = r
		p.dirty = true
	}
	return nil
}

// Len returns the number of rows.
func (p *Panel) Len() int { return len(p.rows) }

// Get returns the row for (date, asset).
func (p *Panel) Get(date time.Time, asset string) (domain.PanelRow, bool) {
	r, ok := p.rows[domain.NewKey(date, asset)]
	return r, ok
}

// HasAsset reports whether any row carries the asset.
func (p *Panel) HasAsset(asset string) bool {
	p.index()
	i := sort.SearchStrings(p.assets, asset)
	return i < len(p.assets) && p.assets[i] == asset
}

// Dates returns the sorted distinct dates of the panel.
func (p *Panel) Dates() []time.Time {
	p.index()
	out := make([]time.Time, len(p.dates))
	copy(out, p.dates)
	return out
}

// Assets returns the sorted distinct assets of the panel.
func (p *Panel) Assets() []string {
	p.index()
	out := make([]string, len(p.assets))
	copy(out, p.assets)
	return out
}

// AssetDates returns the sorted dates on which the asset has a row.
func (p *Panel) AssetDates(asset string) []time.Time {
	p.index()
	var out []time.Time
	for _, d := range p.dates {
		if _, ok := p.rows[domain.NewKey(d, asset)]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Rows returns all rows sorted by (date, asset).
func (p *Panel) Rows() []domain.PanelRow {
	out := make([]domain.PanelRow, 0, len(p.rows))
	for _, r := range p.rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key().Less(out[j].Key()) })
	return out
}

// Validate checks the panel invariants: every row has a finite close
// price and every row except an asset's last one has a finite
// exec_ref_tplus1.
func (p *Panel) Validate() error {
	p.index()
	for _, asset := range p.assets {
		dates := p.AssetDates(asset)
		for i, d := range dates {
			r := p.rows[domain.NewKey(d, asset)]
			if !domain.Finite(r.Close) {
				return fmt.Errorf("%s: %w", r.Key(), ErrMissingMark)
			}
			if i < len(dates)-1 && !domain.Finite(r.ExecRefTPlus1) {
				return fmt.Errorf("%s: %w", r.Key(), ErrMissingExecRef)
			}
		}
	}
	return nil
}

// View returns a read-only view of the panel that hides every row dated
// after asOf.
func (p *Panel) View(asOf time.Time) View {
	return View{p: p, asOf: domain.Day(asOf)}
}

// index rebuilds the sorted date and asset lists after mutation.
func (p *Panel) index() {
	if !p.dirty {
		return
	}
	dates := make(map[time.Time]struct{})
	assets := make(map[string]struct{})
	for k := range p.rows {
		dates[k.Date] = struct{}{}
		assets[k.Asset] = struct{}{}
	}
	p.dates = p.dates[:0]
	for d := range dates {
		p.dates = append(p.dates, d)
	}
	sort.Slice(p.dates, func(i, j int) bool { return p.dates[i].Before(p.dates[j]) })
	p.assets = p.assets[:0]
	for a := range assets {
		p.assets = append(p.assets, a)
	}
	sort.Strings(p.assets)
	p.dirty = false
}

// View exposes the rows of a panel up to and including a date. Strategies
// receive a View so that they cannot read future prices.
type View struct {
	p    *Panel
	asOf time.Time
}

// AsOf returns the last visible date.
func (v View) AsOf() time.Time { return v.asOf }

// Assets returns the assets of the underlying panel.
func (v View) Assets() []string { return v.p.Assets() }

// Get returns the row for (date, asset) when date is not after AsOf.
func (v View) Get(date time.Time, asset string) (domain.PanelRow, bool) {
	if domain.Day(date).After(v.asOf) {
		return domain.PanelRow{}, false
	}
	return v.p.Get(date, asset)
}

// History returns the visible rows of an asset in date order.
func (v View) History(asset string) []domain.PanelRow {
	var out []domain.PanelRow
	for _, d := range v.p.AssetDates(asset) {
		if d.After(v.asOf) {
			break
		}
		out = append(out, v.p.rows[domain.NewKey(d, asset)])
	}
	return out
}
