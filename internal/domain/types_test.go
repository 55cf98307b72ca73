package domain

import (
	"math"
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	// Verify Bar can be instantiated with zero values.
	bar := Bar{}
	if bar.Symbol != "" {
		t.Error("expected empty Symbol for zero-value Bar")
	}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}

	trade := Trade{}
	if trade.Side() != 0 {
		t.Errorf("zero Trade Side() = %d, want 0", trade.Side())
	}
	trade.Q = -3
	if trade.Side() != -1 {
		t.Errorf("sell Trade Side() = %d, want -1", trade.Side())
	}
	trade.Q = 3
	if trade.Side() != 1 {
		t.Errorf("buy Trade Side() = %d, want 1", trade.Side())
	}
}

func TestDayNormalisesToUTCMidnight(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	in := time.Date(2024, 3, 1, 15, 30, 0, 0, loc)
	got := Day(in)
	want := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Day(%v) = %v, want %v", in, got, want)
	}

	a := NewKey(in, "SPY")
	b := NewKey(want, "SPY")
	if a != b {
		t.Errorf("keys %v and %v should be equal", a, b)
	}
	if a.String() != "2024-03-01/SPY" {
		t.Errorf("Key.String() = %q, want %q", a.String(), "2024-03-01/SPY")
	}
}

func TestKeyLess(t *testing.T) {
	d1 := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	if !NewKey(d1, "B").Less(NewKey(d2, "A")) {
		t.Error("earlier date should sort first")
	}
	if !NewKey(d1, "A").Less(NewKey(d1, "B")) {
		t.Error("same date should sort by asset")
	}
}

func TestNonNegative(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.002, 0.002},
		{-0.001, 0},
		{math.NaN(), 0},
		{math.Inf(1), 0},
		{0, 0},
	}
	for _, tt := range tests {
		if got := NonNegative(tt.in); got != tt.want {
			t.Errorf("NonNegative(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNoIndicatorsAllNaN(t *testing.T) {
	ind := NoIndicators()
	for name, v := range map[string]float64{
		"SMA20": ind.SMA20, "RSI14": ind.RSI14, "MACDHist": ind.MACDHist,
		"BollWidth": ind.BollWidth, "ADX14": ind.ADX14, "MinusDI14": ind.MinusDI14,
	} {
		if !math.IsNaN(v) {
			t.Errorf("%s = %v, want NaN", name, v)
		}
	}
}
