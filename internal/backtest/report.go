package backtest

import (
	"fmt"
	"io"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// WriteReport renders the per-strategy results as a table with a totals
// footer. Strategies that never fired are listed with dashes so a silent
// detector is visible rather than missing.
func WriteReport(out io.Writer, s *Summary) {
	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{
		"Strategy", "Trades", "Wins", "Losses", "Win %",
		"Gross Profit", "Gross Loss", "Net", "PF", "Avg Pips",
	})

	var totalTrades, totalWins, totalLosses int
	var totalGP, totalGL, totalNet float64

	for _, r := range s.Results {
		if r.Trades == 0 {
			table.Append([]string{r.Strategy, "0", "-", "-", "-", "-", "-", "-", "-", "-"})
			continue
		}
		table.Append([]string{
			r.Strategy,
			fmt.Sprintf("%d", r.Trades),
			fmt.Sprintf("%d", r.Wins),
			fmt.Sprintf("%d", r.Losses),
			fmt.Sprintf("%.1f", r.WinRate),
			humanize.CommafWithDigits(r.GrossProfit, 2),
			humanize.CommafWithDigits(r.GrossLoss, 2),
			humanize.CommafWithDigits(r.Net, 2),
			formatPF(r.ProfitFactor),
			fmt.Sprintf("%.1f", r.AvgPips),
		})
		totalTrades += r.Trades
		totalWins += r.Wins
		totalLosses += r.Losses
		totalGP += r.GrossProfit
		totalGL += r.GrossLoss
		totalNet += r.Net
	}

	totalWinRate := "-"
	if totalTrades > 0 {
		totalWinRate = fmt.Sprintf("%.1f", float64(totalWins)/float64(totalTrades)*100)
	}
	totalPF := 0.0
	if totalGL > 0 {
		totalPF = totalGP / totalGL
	} else if totalGP > 0 {
		totalPF = math.Inf(1)
	}
	table.SetFooter([]string{
		"TOTAL",
		fmt.Sprintf("%d", totalTrades),
		fmt.Sprintf("%d", totalWins),
		fmt.Sprintf("%d", totalLosses),
		totalWinRate,
		humanize.CommafWithDigits(totalGP, 2),
		humanize.CommafWithDigits(totalGL, 2),
		humanize.CommafWithDigits(totalNet, 2),
		formatPF(totalPF),
		"",
	})
	table.Render()
}

func formatPF(pf float64) string {
	if math.IsInf(pf, 1) {
		return "inf"
	}
	return fmt.Sprintf("%.2f", pf)
}
