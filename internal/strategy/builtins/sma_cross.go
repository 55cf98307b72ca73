package builtins

import (
	"context"
	"fmt"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/panel"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// Default SMA windows.
const (
	DefaultSMAFast = 50
	DefaultSMASlow = 200
)

// SMACross implements a simple moving average crossover allocation. An
// asset is held while its fast SMA of closes is above its slow SMA; held
// assets share the portfolio equally and the rest sits in cash.
type SMACross struct {
	shortPeriod int
	longPeriod  int
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods. Non-positive periods select the defaults.
func NewSMACross(short, long int) *SMACross {
	if short <= 0 {
		short = DefaultSMAFast
	}
	if long <= 0 {
		long = DefaultSMASlow
	}
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Init validates the windows.
func (s *SMACross) Init(_ context.Context) error {
	if s.shortPeriod >= s.longPeriod {
		return fmt.Errorf("sma-cross: fast window %d must be shorter than slow window %d", s.shortPeriod, s.longPeriod)
	}
	return nil
}

// Weights signals each risky asset independently. Assets with less than
// longPeriod closes of history are not held.
func (s *SMACross) Weights(_ context.Context, view panel.View, assets []string) (map[string]float64, error) {
	cash, risky := split(view, assets)
	var long []string
	for _, a := range risky {
		px := closes(view, a, s.longPeriod)
		if px == nil {
			continue
		}
		if mean(px[len(px)-s.shortPeriod:]) > mean(px) {
			long = append(long, a)
		}
	}
	w := make(map[string]float64, len(assets))
	for _, a := range long {
		w[a] = 1 / float64(len(long))
	}
	return fillCash(w, cash), nil
}
