package notifier

import (
	"fmt"
	"strings"
	"time"

	"SignalScanner/internal/model"
	"SignalScanner/internal/recorder"

	"github.com/dustin/go-humanize"
)

func usd(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	return sign + "$" + humanize.CommafWithDigits(v, 2)
}

func signedUSD(v float64) string {
	if v >= 0 {
		return "+" + usd(v)
	}
	return usd(v)
}

func price(v float64) string { return humanize.CommafWithDigits(v, 6) }

// FormatTradeOpened formats a new position.
func FormatTradeOpened(p model.Position) string {
	var b strings.Builder
	icon := "🟢"
	if p.Direction == model.DirectionShort {
		icon = "🔴"
	}
	b.WriteString(fmt.Sprintf("%s <b>%s %s</b> [%s]\n\n", icon, p.Direction, p.Symbol, p.Strategy.Label()))
	b.WriteString(fmt.Sprintf("Market: %s\n", p.Market))
	b.WriteString(fmt.Sprintf("Entry: %s\n", price(p.EntryPrice)))
	b.WriteString(fmt.Sprintf("Stop loss: %s | Take profit: %s\n", price(p.StopLoss), price(p.TakeProfit)))
	b.WriteString(fmt.Sprintf("Size: %s x%.0f\n", usd(p.PositionSize), p.Leverage))
	b.WriteString(fmt.Sprintf("Time: %s\n", p.EntryTime.UTC().Format("2006-01-02 15:04 MST")))
	return b.String()
}

// FormatTradeClosed formats a realized trade.
func FormatTradeClosed(t model.ClosedTrade) string {
	var b strings.Builder
	icon := "✅"
	if t.PnLUSD < 0 {
		icon = "❌"
	}
	b.WriteString(fmt.Sprintf("%s <b>CLOSE %s %s</b> [%s]\n\n", icon, t.Direction, t.Symbol, t.Strategy.Label()))
	b.WriteString(fmt.Sprintf("Reason: %s\n", t.ExitReason))
	b.WriteString(fmt.Sprintf("Entry: %s → Exit: %s\n", price(t.EntryPrice), price(t.ExitPrice)))
	b.WriteString(fmt.Sprintf("PnL: %+.2f%% (%s)\n", t.PnLPercent, signedUSD(t.PnLUSD)))
	b.WriteString(fmt.Sprintf("Held: %s\n", t.ExitTime.Sub(t.EntryTime).Round(time.Minute)))
	return b.String()
}

// FormatPortfolio formats balances.
func FormatPortfolio(p model.Portfolio) string {
	var b strings.Builder
	b.WriteString("💼 <b>Portfolio</b>\n\n")
	b.WriteString(fmt.Sprintf("Total: %s\n", usd(p.TotalBalance)))
	b.WriteString(fmt.Sprintf("Available: %s\n", usd(p.AvailableBalance)))
	b.WriteString(fmt.Sprintf("In positions: %s\n", usd(p.UsedBalance)))
	b.WriteString(fmt.Sprintf("Total PnL: %s\n", signedUSD(p.TotalPnL)))
	if p.InitialBalance > 0 {
		b.WriteString(fmt.Sprintf("Return: %+.2f%%\n", p.TotalPnL/p.InitialBalance*100))
	}
	return b.String()
}

// FormatPositions lists open positions.
func FormatPositions(positions []model.Position) string {
	if len(positions) == 0 {
		return "📭 No open positions"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📂 <b>Open positions (%d)</b>\n\n", len(positions)))
	for _, p := range positions {
		b.WriteString(fmt.Sprintf("• %s %s [%s] @ %s, opened %s\n",
			p.Direction, p.Symbol, p.Strategy.Label(), price(p.EntryPrice), humanize.Time(p.EntryTime)))
	}
	return b.String()
}

// FormatStatus describes scanner liveness from the last recorded cycle.
func FormatStatus(last *recorder.CycleReport, staleAfter time.Duration, now time.Time) string {
	if last == nil {
		return "⚪ Scanner has not completed a cycle yet"
	}
	state := "🟢 online"
	if now.Sub(last.FinishedAt) > staleAfter {
		state = "🔴 offline"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>Scanner %s</b>\n\n", state))
	b.WriteString(fmt.Sprintf("Last cycle: %s\n", humanize.RelTime(last.FinishedAt, now, "ago", "from now")))
	b.WriteString(fmt.Sprintf("Symbols: %d | Signals: %d | Errors: %d\n", last.Symbols, last.Signals, last.Errors))
	b.WriteString(fmt.Sprintf("Duration: %s\n", last.FinishedAt.Sub(last.StartedAt).Round(time.Millisecond)))
	return b.String()
}
