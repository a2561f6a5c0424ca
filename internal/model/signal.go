package model

import "time"

// StrategyKind identifies a strategy evaluator.
type StrategyKind string

const (
	StrategyMomentum StrategyKind = "MOMENTUM"
	StrategySwing    StrategyKind = "SWING_FIBONACCI"
)

// Label is the short prefix used in signal messages.
func (k StrategyKind) Label() string {
	switch k {
	case StrategyMomentum:
		return "MOMENTUM"
	case StrategySwing:
		return "SWING"
	default:
		return string(k)
	}
}

// SignalKind is the action a strategy asks for.
type SignalKind string

const (
	SignalNone       SignalKind = ""
	SignalLongEntry  SignalKind = "LONG_ENTRY"
	SignalShortEntry SignalKind = "SHORT_ENTRY"
	SignalLongExit   SignalKind = "LONG_EXIT"
	SignalShortExit  SignalKind = "SHORT_EXIT"
)

// IsEntry reports whether the signal opens a position.
func (k SignalKind) IsEntry() bool { return k == SignalLongEntry || k == SignalShortEntry }

// IsExit reports whether the signal closes a position.
func (k SignalKind) IsExit() bool { return k == SignalLongExit || k == SignalShortExit }

// Direction returns the position side the signal refers to.
func (k SignalKind) Direction() Direction {
	switch k {
	case SignalLongEntry, SignalLongExit:
		return DirectionLong
	case SignalShortEntry, SignalShortExit:
		return DirectionShort
	default:
		return DirectionFlat
	}
}

// Signal is an immutable record of a strategy decision for one symbol.
type Signal struct {
	ID         string          `json:"id"`
	Symbol     string          `json:"symbol"`
	Market     MarketClass     `json:"market"`
	Strategy   StrategyKind    `json:"strategy"`
	Kind       SignalKind      `json:"kind"`
	Message    string          `json:"message"`
	Price      float64         `json:"price"`
	Indicators IndicatorValues `json:"indicators"`
	ExitReason ExitReason      `json:"exit_reason,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// DedupKey identifies signals that collapse inside one dedup window.
func (s Signal) DedupKey() string {
	return s.Symbol + "|" + string(s.Strategy) + "|" + string(s.Kind)
}
