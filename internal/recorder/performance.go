package recorder

import (
	"math"
	"sort"

	"SignalScanner/internal/model"
)

// Performance aggregates closed trades of one strategy.
type Performance struct {
	Strategy    model.StrategyKind `json:"strategy"`
	TotalTrades int                `json:"total_trades"`
	Wins        int                `json:"wins"`
	Losses      int                `json:"losses"`
	WinRate     float64            `json:"win_rate"`
	TotalPnLUSD float64            `json:"total_pnl_usd"`
	AvgPnLPct   float64            `json:"avg_pnl_percent"`
	BestPnLPct  float64            `json:"best_pnl_percent"`
	WorstPnLPct float64            `json:"worst_pnl_percent"`
}

// Summarize groups trades by strategy. A trade with positive pnl is a win;
// everything else is a loss.
func Summarize(trades []model.ClosedTrade) []Performance {
	byStrategy := map[model.StrategyKind]*Performance{}
	sums := map[model.StrategyKind]float64{}
	for _, tr := range trades {
		p, ok := byStrategy[tr.Strategy]
		if !ok {
			p = &Performance{Strategy: tr.Strategy, BestPnLPct: math.Inf(-1), WorstPnLPct: math.Inf(1)}
			byStrategy[tr.Strategy] = p
		}
		p.TotalTrades++
		if tr.PnLPercent > 0 {
			p.Wins++
		} else {
			p.Losses++
		}
		p.TotalPnLUSD += tr.PnLUSD
		sums[tr.Strategy] += tr.PnLPercent
		p.BestPnLPct = math.Max(p.BestPnLPct, tr.PnLPercent)
		p.WorstPnLPct = math.Min(p.WorstPnLPct, tr.PnLPercent)
	}

	out := make([]Performance, 0, len(byStrategy))
	for kind, p := range byStrategy {
		n := float64(p.TotalTrades)
		p.WinRate = round2(float64(p.Wins) / n * 100)
		p.AvgPnLPct = round2(sums[kind] / n)
		p.TotalPnLUSD = round2(p.TotalPnLUSD)
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
