package panel

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func row(d int, asset string, close, ref float64) domain.PanelRow {
	return domain.PanelRow{
		Date:          day(d),
		Asset:         asset,
		Open:          close,
		Close:         close,
		ExecRefTPlus1: ref,
		Indicators:    domain.NoIndicators(),
	}
}

func TestPanelAddAndIndex(t *testing.T) {
	p, err := FromRows([]domain.PanelRow{
		row(3, "TLT", 90, math.NaN()),
		row(2, "SPY", 100, 101),
		row(2, "TLT", 89, 90),
		row(3, "SPY", 102, math.NaN()),
	})
	if err != nil {
		t.Fatalf("FromRows: %v", err)
	}
	if p.Len() != 4 {
		t.Errorf("Len() = %d, want 4", p.Len())
	}
	if got := p.Assets(); len(got) != 2 || got[0] != "SPY" || got[1] != "TLT" {
		t.Errorf("Assets() = %v, want [SPY TLT]", got)
	}
	if got := p.Dates(); len(got) != 2 || !got[0].Equal(day(2)) {
		t.Errorf("Dates() = %v, want [2024-01-02 2024-01-03]", got)
	}
	if !p.HasAsset("TLT") || p.HasAsset("QQQ") {
		t.Error("HasAsset mismatch")
	}
	rows := p.Rows()
	if rows[0].Asset != "SPY" || !rows[0].Date.Equal(day(2)) || rows[3].Asset != "TLT" {
		t.Errorf("Rows() not sorted by (date, asset): %s .. %s", rows[0].Key(), rows[3].Key())
	}

	// Intraday timestamps are truncated to the day.
	if _, ok := p.Get(day(2).Add(15*time.Hour), "SPY"); !ok {
		t.Error("Get with intraday timestamp missed the row")
	}

	if err := p.Add(row(2, "SPY", 1, 1)); !errors.Is(err, ErrDuplicateKey) {
		t.Errorf("Add duplicate error = %v, want ErrDuplicateKey", err)
	}
}

func TestPanelValidate(t *testing.T) {
	p, _ := FromRows([]domain.PanelRow{
		row(2, "SPY", 100, 101),
		row(3, "SPY", 102, math.NaN()),
	})
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil (last row may lack a reference)", err)
	}

	p, _ = FromRows([]domain.PanelRow{
		row(2, "SPY", 100, math.NaN()),
		row(3, "SPY", 102, math.NaN()),
	})
	if err := p.Validate(); !errors.Is(err, ErrMissingExecRef) {
		t.Errorf("Validate() = %v, want ErrMissingExecRef", err)
	}

	p, _ = FromRows([]domain.PanelRow{row(2, "SPY", math.NaN(), 1)})
	if err := p.Validate(); !errors.Is(err, ErrMissingMark) {
		t.Errorf("Validate() = %v, want ErrMissingMark", err)
	}
}

func TestColumns(t *testing.T) {
	r := domain.PanelRow{Open: 1, Close: 2, AdjClose: 3, ExecRefTPlus1: 4}
	tests := []struct {
		name string
		want float64
	}{
		{"open", 1},
		{"close", 2},
		{"adj_close", 3},
		{"exec_ref_tplus1", 4},
	}
	for _, tt := range tests {
		c, err := ParseColumn(tt.name)
		if err != nil {
			t.Fatalf("ParseColumn(%q): %v", tt.name, err)
		}
		if got, _ := Value(r, c); got != tt.want {
			t.Errorf("Value(%s) = %v, want %v", tt.name, got, tt.want)
		}
	}
	if _, err := ParseColumn("vwap"); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("ParseColumn(vwap) error = %v, want ErrUnknownColumn", err)
	}
	if v, err := Value(r, Column("vwap")); !math.IsNaN(v) || err == nil {
		t.Errorf("Value(vwap) = %v, %v; want NaN and an error", v, err)
	}
}

func TestViewHidesFuture(t *testing.T) {
	p, _ := FromRows([]domain.PanelRow{
		row(2, "SPY", 100, 101),
		row(3, "SPY", 102, 103),
		row(4, "SPY", 104, math.NaN()),
	})
	v := p.View(day(3))
	if _, ok := v.Get(day(4), "SPY"); ok {
		t.Error("View.Get returned a row after AsOf")
	}
	if _, ok := v.Get(day(3), "SPY"); !ok {
		t.Error("View.Get missed the AsOf row")
	}
	h := v.History("SPY")
	if len(h) != 2 || h[1].Close != 102 {
		t.Errorf("History = %d rows, want 2 ending at close 102", len(h))
	}
}

func TestFromBars(t *testing.T) {
	bars := []domain.Bar{
		{Symbol: "spy", Timestamp: day(3).Add(5 * time.Hour), Open: 101, High: 102.5, Low: 98.5, Close: 100, Volume: 20},
		{Symbol: "spy", Timestamp: day(2).Add(5 * time.Hour), Open: 99, High: 102, Low: 98, Close: 100, Volume: 10},
	}
	rows := FromBars(bars)
	if len(rows) != 2 {
		t.Fatalf("FromBars returned %d rows, want 2", len(rows))
	}
	first, second := rows[0], rows[1]
	if first.Asset != "SPY" || !first.Date.Equal(day(2)) {
		t.Errorf("first row = %s, want 2024-01-02/SPY", first.Key())
	}
	if first.ExecRefTPlus1 != 101 {
		t.Errorf("ExecRefTPlus1 = %v, want next open 101", first.ExecRefTPlus1)
	}
	if !math.IsNaN(second.ExecRefTPlus1) {
		t.Errorf("last ExecRefTPlus1 = %v, want NaN", second.ExecRefTPlus1)
	}
	if !math.IsNaN(first.Spread) || !math.IsNaN(first.LogReturn) {
		t.Errorf("first row spread/return = %v/%v, want NaN", first.Spread, first.LogReturn)
	}
	if second.LogReturn != 0 {
		t.Errorf("LogReturn = %v, want 0", second.LogReturn)
	}
	if math.Abs(second.Spread-0.0278586) > 1e-6 || math.Abs(second.Volatility-0.0075484) > 1e-6 {
		t.Errorf("spread/vol = %v/%v, want 0.0278586/0.0075484", second.Spread, second.Volatility)
	}
	if second.DollarVolume != 2000 {
		t.Errorf("DollarVolume = %v, want 2000", second.DollarVolume)
	}
}

func TestCorwinSchultz(t *testing.T) {
	tests := []struct {
		name                  string
		ph, pl, h, l          float64
		wantSpread, wantSigma float64
	}{
		{"flat", 100, 100, 100, 100, 0, 0},
		{"gap", 100, 100, 101, 101, 0, 0.0150537},
		{"ranges", 102, 98, 102.5, 98.5, 0.0278586, 0.0075484},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, sig := CorwinSchultz(tt.ph, tt.pl, tt.h, tt.l)
			if math.Abs(s-tt.wantSpread) > 1e-6 || math.Abs(sig-tt.wantSigma) > 1e-6 {
				t.Errorf("CorwinSchultz = %v/%v, want %v/%v", s, sig, tt.wantSpread, tt.wantSigma)
			}
		})
	}
	if s, sig := CorwinSchultz(0, 1, 1, 1); !math.IsNaN(s) || !math.IsNaN(sig) {
		t.Errorf("CorwinSchultz with zero price = %v/%v, want NaN", s, sig)
	}
}
