package panel

import (
	"math"
	"sort"
	"strings"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
)

// FromBars converts OHLCV bars into panel rows. Bars are grouped per
// symbol and sorted by time; each row's ExecRefTPlus1 is the next bar's
// open (NaN for the last bar) and LogReturn is ln(close_t/close_{t-1}).
// Spread and Volatility are the Corwin-Schultz estimates over bars t-1 and
// t; the first bar of each symbol leaves them NaN, as are the indicators.
func FromBars(bars []domain.Bar) []domain.PanelRow {
	groups := make(map[string][]domain.Bar)
	for _, b := range bars {
		sym := strings.ToUpper(b.Symbol)
		groups[sym] = append(groups[sym], b)
	}

	symbols := make([]string, 0, len(groups))
	for sym := range groups {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	nan := math.NaN()
	var rows []domain.PanelRow
	for _, sym := range symbols {
		g := groups[sym]
		sort.Slice(g, func(i, j int) bool { return g[i].Timestamp.Before(g[j].Timestamp) })
		for i, b := range g {
			row := domain.PanelRow{
				Date:          domain.Day(b.Timestamp),
				Asset:         sym,
				Open:          b.Open,
				High:          b.High,
				Low:           b.Low,
				Close:         b.Close,
				AdjClose:      b.Close,
				Volume:        float64(b.Volume),
				StockSplits:   1,
				LogReturn:     nan,
				DollarVolume:  b.Close * float64(b.Volume),
				Volatility:    nan,
				Spread:        nan,
				ExecRefTPlus1: nan,
				Indicators:    domain.NoIndicators(),
			}
			if i > 0 {
				prev := g[i-1]
				if prev.Close > 0 && b.Close > 0 {
					row.LogReturn = math.Log(b.Close / prev.Close)
				}
				row.Spread, row.Volatility = CorwinSchultz(prev.High, prev.Low, b.High, b.Low)
			}
			if i+1 < len(g) {
				row.ExecRefTPlus1 = g[i+1].Open
			}
			rows = append(rows, row)
		}
	}
	return rows
}
