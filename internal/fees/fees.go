// Package fees applies commissions, minimum fees and volatility-scaled
// slippage to priced trades.
package fees

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
)

// Config holds the cost parameters. The zero value charges nothing.
type Config struct {
	CommissionBps  float64 `yaml:"commission_bps"`
	MinFeeAbs      float64 `yaml:"min_fee_abs"`
	UseVolSlippage bool    `yaml:"use_vol_slippage"`
	KBpsPerSigma   float64 `yaml:"k_bps_per_sigma"`
}

// Validate rejects negative or non-finite parameters.
func (c Config) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"commission_bps", c.CommissionBps},
		{"min_fee_abs", c.MinFeeAbs},
		{"k_bps_per_sigma", c.KBpsPerSigma},
	} {
		if !domain.Finite(f.v) || f.v < 0 {
			return fmt.Errorf("fees: %s must be a non-negative number, got %v", f.name, f.v)
		}
	}
	return nil
}

// Sigma maps (date, asset) to a volatility estimate. A missing key means
// no estimate.
type Sigma map[domain.Key]float64

// Lookup returns the estimate for (date, asset) clamped at zero.
func (s Sigma) Lookup(k domain.Key) float64 {
	if s == nil {
		return 0
	}
	return domain.NonNegative(s[k])
}

// Apply returns one CostedTrade per input trade, in input order:
//
//	fees      = max(NotionalAbs * CommissionBps/1e4, MinFeeAbs)
//	vol_slip  = |Q| * PRef * KBpsPerSigma * sigma / 1e4   (UseVolSlippage only)
//	total     = SpreadCost + fees + vol_slip
//
// Trades with Q == 0 are not charged. The input slice is not modified.
func Apply(trades []domain.Trade, cfg Config, sigma Sigma) []domain.CostedTrade {
	out := make([]domain.CostedTrade, len(trades))
	for i, t := range trades {
		ct := domain.CostedTrade{Trade: t}
		if t.Q != 0 {
			ct.Fees = t.NotionalAbs * bpsToFrac(cfg.CommissionBps)
			if cfg.MinFeeAbs > 0 {
				ct.Fees = math.Max(ct.Fees, cfg.MinFeeAbs)
			}
			if cfg.UseVolSlippage {
				ct.VolSlip = math.Abs(t.Q) * t.PRef * bpsToFrac(cfg.KBpsPerSigma*sigma.Lookup(t.Key()))
			}
		}
		ct.TotalCost = t.SpreadCost + ct.Fees + ct.VolSlip
		out[i] = ct
	}
	return out
}

// Total sums commission and slippage: the amount charged to cash on top
// of the spread already contained in the execution price.
func Total(costed []domain.CostedTrade) float64 {
	var sum float64
	for _, c := range costed {
		sum += c.Fees + c.VolSlip
	}
	return sum
}

// TotalCost sums the full transaction cost including the spread.
func TotalCost(costed []domain.CostedTrade) float64 {
	var sum float64
	for _, c := range costed {
		sum += c.TotalCost
	}
	return sum
}

// SpreadCost sums the half-spread cost.
func SpreadCost(costed []domain.CostedTrade) float64 {
	var sum float64
	for _, c := range costed {
		sum += c.SpreadCost
	}
	return sum
}

// LoadConfig reads a costs YAML file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading costs file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing costs file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func bpsToFrac(bps float64) float64 { return bps / 1e4 }
