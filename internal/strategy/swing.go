package strategy

import (
	"fmt"
	"math"

	"SignalScanner/internal/calculator"
	"SignalScanner/internal/config"
	"SignalScanner/internal/model"
)

// zoneRatios are the Fibonacci levels that count as a pullback entry zone.
var zoneRatios = []float64{0.5, 0.618}

// SwingFibonacci buys pullbacks into Fibonacci support inside an established
// uptrend. It is long-only and ignores intraday trading hours.
type SwingFibonacci struct {
	cfg config.SwingConfig
}

// NewSwingFibonacci creates the swing evaluator.
func NewSwingFibonacci(cfg config.SwingConfig) *SwingFibonacci { return &SwingFibonacci{cfg: cfg} }

func (s *SwingFibonacci) Kind() model.StrategyKind { return model.StrategySwing }
func (s *SwingFibonacci) Timeframe() string        { return s.cfg.Timeframe }
func (s *SwingFibonacci) Bars() int                { return s.cfg.Bars }
func (s *SwingFibonacci) SessionGated() bool       { return false }

func (s *SwingFibonacci) Risk() Risk {
	return Risk{StopMultiplier: s.cfg.StopMultiplier, TargetMultiplier: s.cfg.TargetMultiplier}
}

func (s *SwingFibonacci) Indicators() calculator.Params {
	return calculator.Params{
		RSILength:   s.cfg.RSILength,
		ATRLength:   s.cfg.ATRLength,
		SMAFast:     s.cfg.SMAFast,
		SMASlow:     s.cfg.SMASlow,
		SwingWindow: s.cfg.SwingWindow,
	}
}

func (s *SwingFibonacci) Ready(row model.Snapshot) bool {
	return calculator.Valid(row.RSI, row.ATR, row.SMAFast, row.SMASlow)
}

func (s *SwingFibonacci) Evaluate(in Input) Outcome {
	if len(in.History) < s.cfg.MinHistory || len(in.History) < 3 {
		return Outcome{}
	}
	cur := in.Latest()
	pos := in.Position

	switch pos.Direction {
	case model.DirectionLong:
		if cur.RSI > s.cfg.RSIOverbought {
			return exit(pos, model.ExitRSIExhaustion, label(s.Kind(), fmt.Sprintf("RSI %.1f exhausted - close long", cur.RSI)))
		}
		if cur.Close < cur.SMAFast {
			return exit(pos, model.ExitTrendBreak, label(s.Kind(), "trend break below fast SMA - close long"))
		}
		return Outcome{}
	case model.DirectionShort:
		if cur.RSI < 100-s.cfg.RSIOverbought {
			return exit(pos, model.ExitRSIExhaustion, label(s.Kind(), fmt.Sprintf("RSI %.1f exhausted - close short", cur.RSI)))
		}
		if cur.Close > cur.SMAFast {
			return exit(pos, model.ExitTrendBreak, label(s.Kind(), "trend break above fast SMA - close short"))
		}
		return Outcome{}
	}

	if !s.uptrend(cur) || !s.inPullback(in.History) {
		return Outcome{}
	}
	level, ok := s.fibZone(in.History)
	if !ok || !s.rsiReversal(in.History) {
		return Outcome{}
	}
	return Outcome{
		Kind:    model.SignalLongEntry,
		Message: label(s.Kind(), fmt.Sprintf("long entry - pullback to %.1f%% Fibonacci support", level*100)),
	}
}

func (s *SwingFibonacci) uptrend(cur model.Snapshot) bool {
	return cur.Close > cur.SMASlow && cur.SMAFast > cur.SMASlow
}

func (s *SwingFibonacci) inPullback(rows []model.Snapshot) bool {
	r, err := calculator.Retracement(rows, s.cfg.RetraceLookback)
	if err != nil {
		return false
	}
	return r >= s.cfg.RetraceMin && r <= s.cfg.RetraceMax
}

// fibZone returns the zone ratio the close is trading at, if any.
func (s *SwingFibonacci) fibZone(rows []model.Snapshot) (float64, bool) {
	high, low, ok := calculator.LastSwings(rows)
	if !ok {
		return 0, false
	}
	last := rows[len(rows)-1].Close
	for _, lvl := range calculator.FibonacciLevels(high, low) {
		if !isZoneRatio(lvl.Ratio) || lvl.Price <= 0 {
			continue
		}
		if math.Abs(last-lvl.Price)/lvl.Price < s.cfg.FibTolerance {
			return lvl.Ratio, true
		}
	}
	return 0, false
}

// rsiReversal looks at the last three RSI values: oversold, still below
// the momentum line, then back above it.
func (s *SwingFibonacci) rsiReversal(rows []model.Snapshot) bool {
	n := len(rows)
	r0, r1, r2 := rows[n-3].RSI, rows[n-2].RSI, rows[n-1].RSI
	return r0 < s.cfg.RSIOversold && r1 < s.cfg.RSIMomentum && r2 > s.cfg.RSIMomentum
}

func isZoneRatio(r float64) bool {
	for _, z := range zoneRatios {
		if r == z {
			return true
		}
	}
	return false
}
