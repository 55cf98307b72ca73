package strategy

import "math"

// TradingDaysPerYear annualises daily statistics.
const TradingDaysPerYear = 252

// Metrics summarises an equity curve. Return statistics are computed on
// daily log returns; NaN marks a statistic that is undefined for the curve
// (too few points or zero dispersion).
type Metrics struct {
	TotalReturn   float64 // final/initial - 1
	AnnReturn     float64 // mean log return * 252
	AnnVolatility float64 // std of log returns * sqrt(252)
	SharpeRatio   float64
	SortinoRatio  float64
	MaxDrawdown   float64 // most negative peak-to-trough change, <= 0
	CalmarRatio   float64
}

// ComputeMetrics derives Metrics from a portfolio value series.
func ComputeMetrics(values []float64) Metrics {
	m := Metrics{
		TotalReturn:   math.NaN(),
		AnnReturn:     math.NaN(),
		AnnVolatility: math.NaN(),
		SharpeRatio:   math.NaN(),
		SortinoRatio:  math.NaN(),
		CalmarRatio:   math.NaN(),
	}
	if len(values) < 2 || values[0] <= 0 {
		return m
	}
	m.TotalReturn = values[len(values)-1]/values[0] - 1
	m.MaxDrawdown = maxDrawdown(values)

	rets := logReturns(values)
	if len(rets) == 0 {
		return m
	}
	mean, std := meanStd(rets)
	m.AnnReturn = mean * TradingDaysPerYear
	if len(rets) < 2 {
		return m
	}
	m.AnnVolatility = std * math.Sqrt(TradingDaysPerYear)
	if std > 0 {
		m.SharpeRatio = mean / std * math.Sqrt(TradingDaysPerYear)
	}

	var down []float64
	for _, r := range rets {
		if r < 0 {
			down = append(down, r)
		}
	}
	if len(down) >= 2 {
		if _, dstd := meanStd(down); dstd > 0 {
			m.SortinoRatio = mean / dstd * math.Sqrt(TradingDaysPerYear)
		}
	}
	if m.MaxDrawdown < 0 {
		m.CalmarRatio = m.AnnReturn / math.Abs(m.MaxDrawdown)
	}
	return m
}

// logReturns skips pairs with a non-positive value.
func logReturns(values []float64) []float64 {
	out := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] <= 0 || values[i] <= 0 {
			continue
		}
		out = append(out, math.Log(values[i]/values[i-1]))
	}
	return out
}

// meanStd returns the mean and the sample standard deviation.
func meanStd(xs []float64) (mean, std float64) {
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}

func maxDrawdown(values []float64) float64 {
	peak := values[0]
	var dd float64
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd = math.Min(dd, v/peak-1)
		}
	}
	return dd
}
