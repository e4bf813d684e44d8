package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"TradeSentinel/internal/model"
)

func money(v float64) string {
	return humanize.CommafWithDigits(v, 2)
}

// FormatOpen formats a newly opened position for the operator channel.
func FormatOpen(p model.Position) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📈 <b>Opened %s %s</b>\n\n", strings.ToUpper(string(p.Direction)), p.Symbol))
	b.WriteString(fmt.Sprintf("Ticket: %d | Strategy: %s\n", p.Ticket, p.Strategy))
	b.WriteString(fmt.Sprintf("Volume: %.2f @ %.5f\n", p.Volume, p.OpenPrice))
	if p.StopLoss > 0 {
		b.WriteString(fmt.Sprintf("SL: %.5f", p.StopLoss))
		if p.TakeProfit > 0 {
			b.WriteString(fmt.Sprintf(" | TP: %.5f", p.TakeProfit))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatClose formats a confirmed close with its realized result.
func FormatClose(p model.Position, reason string) string {
	icon := "✅"
	if p.Profit < 0 {
		icon = "🔻"
	}
	return fmt.Sprintf("%s <b>Closed %s #%d</b> (%s)\nP/L: %s | Strategy: %s\n",
		icon, p.Symbol, p.Ticket, reason, money(p.Profit), p.Strategy)
}

// FormatCloseFailed is the escalation message for an exhausted close
// protocol. The position stays open under broker protective levels and
// needs manual attention.
func FormatCloseFailed(p model.Position, attempts int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🚨 <b>CLOSE FAILED %s #%d</b>\n\n", p.Symbol, p.Ticket))
	b.WriteString(fmt.Sprintf("All %d close attempts rejected.\n", attempts))
	b.WriteString(fmt.Sprintf("Direction: %s | Volume: %.2f | P/L: %s\n",
		p.Direction, p.Volume, money(p.Profit)))
	b.WriteString("Position left under its protective levels. Manual close required.")
	return b.String()
}

// FormatCapReached announces the daily profit cap with the partition result.
func FormatCapReached(dayProfit float64, closed, kept int) string {
	return fmt.Sprintf("🎯 <b>Daily profit limit reached</b> (+%s)\nClosing %d winning position(s), keeping %d to recover.\nNo new entries until the next trading day.",
		money(dayProfit), closed, kept)
}

// FormatDailySummary is the end-of-day account report.
func FormatDailySummary(symbol string, acct model.AccountSnapshot, dayProfit float64, open int, capped bool) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>Daily summary</b> | %s | %s\n\n", symbol, time.Now().Format("2006-01-02")))
	b.WriteString(fmt.Sprintf("Equity: %s | Balance: %s\n", money(acct.Equity), money(acct.Balance)))
	b.WriteString(fmt.Sprintf("Day P/L: %+s\n", money(dayProfit)))
	b.WriteString(fmt.Sprintf("Open positions: %d\n", open))
	if capped {
		b.WriteString("Daily profit cap: ACTIVE\n")
	}
	return b.String()
}

// FormatPositions lists the currently tracked positions for the /positions
// operator command.
func FormatPositions(positions []model.Position) string {
	if len(positions) == 0 {
		return "No open positions."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>Open positions (%d)</b>\n\n", len(positions)))
	for _, p := range positions {
		flag := ""
		if p.CloseFailed {
			flag = " ⚠️ close-failed"
		}
		b.WriteString(fmt.Sprintf("#%d %s %s %.2f @ %.5f | P/L %s | %s%s\n",
			p.Ticket, p.Symbol, p.Direction, p.Volume, p.OpenPrice,
			money(p.Profit), p.Strategy, flag))
	}
	return b.String()
}
