// Package report renders backtest results as markdown, optionally styled
// for the terminal.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"math"
	"text/template"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/glamour"
	"github.com/shopspring/decimal"

	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/domain"
	"github.com/longrodeo/bachelorarbeit-drl-finance/internal/strategy"
)

//go:embed templates/*.md
var templates embed.FS

var backtestTmpl = template.Must(template.ParseFS(templates, "templates/backtest.md"))

// Options controls Markdown.
type Options struct {
	Currency  string // ISO code, default USD
	MaxTrades int    // trade rows shown; 0 hides the table, < 0 shows all
}

type tradeRow struct {
	Date, Asset, Q, PRef, PExec, Cost string
}

type backtestView struct {
	RunID, Strategy, Start, End                        string
	Steps, Trades, LossBreaches                        int
	InitialValue, FinalValue                           string
	TotalReturn, AnnReturn, AnnVolatility, MaxDrawdown string
	Sharpe, Sortino, Calmar                            string
	Fees, SpreadCost, TotalCost, Turnover              string
	Rows                                               []tradeRow
	Truncated                                          int
}

// Markdown renders res as a markdown document.
func Markdown(res *strategy.BacktestResult, opts Options) (string, error) {
	cur := opts.Currency
	if cur == "" {
		cur = money.USD
	}
	m := res.Metrics
	v := backtestView{
		RunID:         res.RunID,
		Strategy:      res.Strategy,
		Start:         res.Start.Format(domain.DateLayout),
		End:           res.End.Format(domain.DateLayout),
		Steps:         len(res.Snapshots),
		Trades:        res.TotalTrades,
		LossBreaches:  res.LossBreaches,
		InitialValue:  Money(res.InitialValue, cur),
		FinalValue:    Money(res.FinalValue, cur),
		TotalReturn:   Percent(m.TotalReturn),
		AnnReturn:     Percent(m.AnnReturn),
		AnnVolatility: Percent(m.AnnVolatility),
		MaxDrawdown:   Percent(m.MaxDrawdown),
		Sharpe:        Fixed(m.SharpeRatio, 2),
		Sortino:       Fixed(m.SortinoRatio, 2),
		Calmar:        Fixed(m.CalmarRatio, 2),
		Fees:          Money(res.TotalFees, cur),
		SpreadCost:    Money(res.TotalSpreadCost, cur),
		TotalCost:     Money(res.TotalCost, cur),
		Turnover:      Fixed(res.Turnover, 2),
	}

	trades := res.Trades
	if opts.MaxTrades >= 0 && len(trades) > opts.MaxTrades {
		v.Truncated = len(trades) - opts.MaxTrades
		trades = trades[:opts.MaxTrades]
		if opts.MaxTrades == 0 {
			v.Truncated = 0
		}
	}
	for _, t := range trades {
		v.Rows = append(v.Rows, tradeRow{
			Date:  t.Date.Format(domain.DateLayout),
			Asset: t.Asset,
			Q:     Fixed(t.Q, 4),
			PRef:  Fixed(t.PRef, 4),
			PExec: Fixed(t.PExec, 4),
			Cost:  Money(t.TotalCost, cur),
		})
	}

	var buf bytes.Buffer
	if err := backtestTmpl.Execute(&buf, v); err != nil {
		return "", fmt.Errorf("rendering backtest report: %w", err)
	}
	return buf.String(), nil
}

// Render styles markdown for a terminal of the given width. Style is a
// glamour style name ("dark", "light", "notty", ...); empty picks one
// from the terminal background.
func Render(md, style string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("creating renderer: %w", err)
	}
	return r.Render(md)
}

// Money formats an amount in the currency's minor units, e.g. "$1,234.57".
// Unknown currencies fall back to two decimals and the code.
func Money(amount float64, currency string) string {
	if !domain.Finite(amount) {
		return "n/a"
	}
	cur := money.GetCurrency(currency)
	if cur == nil {
		return decimal.NewFromFloat(amount).StringFixed(2) + " " + currency
	}
	factor := decimal.New(1, int32(cur.Fraction))
	minor := decimal.NewFromFloat(amount).Mul(factor).Round(0)
	return money.New(minor.IntPart(), cur.Code).Display()
}

// Fixed formats v with the given number of decimals.
func Fixed(v float64, places int32) string {
	if !domain.Finite(v) {
		return "n/a"
	}
	return decimal.NewFromFloat(v).StringFixed(places)
}

// Percent formats a fraction as a percentage with two decimals.
func Percent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "n/a"
	}
	return decimal.NewFromFloat(v).Shift(2).StringFixed(2) + "%"
}
