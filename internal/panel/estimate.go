package panel

import "math"

var (
	csDen = 3 - 2*math.Sqrt2
	bpK2  = math.Sqrt(8 / math.Pi)
)

// CorwinSchultz estimates the relative bid-ask spread and the
// Becker-Parkinson volatility from the high/low ranges of two consecutive
// bars. Both results are clamped at zero; non-positive prices yield NaN.
func CorwinSchultz(prevHigh, prevLow, high, low float64) (spread, sigma float64) {
	if prevHigh <= 0 || prevLow <= 0 || high <= 0 || low <= 0 {
		return math.NaN(), math.NaN()
	}
	beta := sq(math.Log(prevHigh/prevLow)) + sq(math.Log(high/low))
	gamma := sq(math.Log(math.Max(prevHigh, high) / math.Min(prevLow, low)))

	alpha := (math.Sqrt2-1)/csDen*math.Sqrt(beta) - math.Sqrt(gamma/csDen)
	alpha = math.Max(alpha, 0)
	ea := math.Exp(alpha)
	spread = 2 * (ea - 1) / (1 + ea)

	sigma = (1/math.Sqrt2-1)*math.Sqrt(beta)/(bpK2*csDen) + math.Sqrt(gamma/(bpK2*bpK2*csDen))
	return spread, math.Max(sigma, 0)
}

func sq(x float64) float64 { return x * x }
