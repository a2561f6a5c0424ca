package strategy

import (
	"fmt"

	"SignalScanner/internal/calculator"
	"SignalScanner/internal/config"
	"SignalScanner/internal/model"
)

// Momentum trades intraday VWAP breaks while the trend is still weak
// (ADX below level), entering on an RSI threshold cross.
type Momentum struct {
	cfg config.MomentumConfig
}

// NewMomentum creates the intraday momentum evaluator.
func NewMomentum(cfg config.MomentumConfig) *Momentum { return &Momentum{cfg: cfg} }

func (m *Momentum) Kind() model.StrategyKind { return model.StrategyMomentum }
func (m *Momentum) Timeframe() string        { return m.cfg.Timeframe }
func (m *Momentum) Bars() int                { return m.cfg.Bars }
func (m *Momentum) SessionGated() bool       { return true }

func (m *Momentum) Risk() Risk {
	return Risk{StopMultiplier: m.cfg.StopMultiplier, TargetMultiplier: m.cfg.TargetMultiplier}
}

func (m *Momentum) Indicators() calculator.Params {
	return calculator.Params{RSILength: m.cfg.RSILength, ADXLength: m.cfg.ADXLength, ATRLength: m.cfg.ATRLength}
}

func (m *Momentum) Ready(s model.Snapshot) bool {
	return calculator.Valid(s.VWAP, s.RSI, s.ADX, s.ATR)
}

// Evaluate checks exits before entries. A position that exits here is not
// re-entered until a later evaluation.
func (m *Momentum) Evaluate(in Input) Outcome {
	if len(in.History) < 2 {
		return Outcome{}
	}
	cur, prev := in.Latest(), in.Prior()
	pos := in.Position

	if pos.IsOpen() {
		if in.Session.PastSquareOff(in.Now) {
			return exit(pos, model.ExitSessionEnd, label(m.Kind(), "session end - square off"))
		}
		if m.cfg.EnforceStops {
			if out, ok := stopExit(pos, cur); ok {
				return out
			}
		}
		switch {
		case pos.Direction == model.DirectionLong && cur.Close < cur.VWAP:
			return exit(pos, model.ExitVWAPBreak, label(m.Kind(), "VWAP break - close long"))
		case pos.Direction == model.DirectionShort && cur.Close > cur.VWAP:
			return exit(pos, model.ExitVWAPBreak, label(m.Kind(), "VWAP break - close short"))
		}
		return Outcome{}
	}

	if !in.Session.EntryOpen(in.Now) {
		return Outcome{}
	}
	if cur.ADX >= m.cfg.ADXLevel {
		return Outcome{}
	}

	if cur.Close > cur.VWAP && prev.RSI <= m.cfg.RSIBuy && cur.RSI > m.cfg.RSIBuy {
		return Outcome{
			Kind:    model.SignalLongEntry,
			Message: label(m.Kind(), fmt.Sprintf("long entry - RSI crossed %.0f above VWAP, ADX %.1f", m.cfg.RSIBuy, cur.ADX)),
		}
	}
	if cur.Close < cur.VWAP && prev.RSI >= m.cfg.RSISell && cur.RSI < m.cfg.RSISell {
		return Outcome{
			Kind:    model.SignalShortEntry,
			Message: label(m.Kind(), fmt.Sprintf("short entry - RSI crossed %.0f below VWAP, ADX %.1f", m.cfg.RSISell, cur.ADX)),
		}
	}
	return Outcome{}
}

// stopExit closes a position whose bar touched its stop-loss or take-profit.
// The stop is checked first when a bar spans both.
func stopExit(pos model.Position, cur model.Snapshot) (Outcome, bool) {
	switch pos.Direction {
	case model.DirectionLong:
		if pos.StopLoss > 0 && cur.Low <= pos.StopLoss {
			return exit(pos, model.ExitStopLoss, label(pos.Strategy, "stop-loss hit")), true
		}
		if pos.TakeProfit > 0 && cur.High >= pos.TakeProfit {
			return exit(pos, model.ExitTakeProfit, label(pos.Strategy, "take-profit hit")), true
		}
	case model.DirectionShort:
		if pos.StopLoss > 0 && cur.High >= pos.StopLoss {
			return exit(pos, model.ExitStopLoss, label(pos.Strategy, "stop-loss hit")), true
		}
		if pos.TakeProfit > 0 && cur.Low <= pos.TakeProfit {
			return exit(pos, model.ExitTakeProfit, label(pos.Strategy, "take-profit hit")), true
		}
	}
	return Outcome{}, false
}

func label(kind model.StrategyKind, msg string) string {
	return "[" + kind.Label() + "] " + msg
}
