package strategy

import (
	"time"

	"SignalScanner/internal/calculator"
	"SignalScanner/internal/markethours"
	"SignalScanner/internal/model"
)

// Input is everything an evaluator sees for one (symbol, strategy) unit.
// History is oldest first, warm-up already trimmed.
type Input struct {
	Symbol   model.Symbol
	History  []model.Snapshot
	Position model.Position
	Session  markethours.Session
	Now      time.Time
}

// Latest is the most recent fully-computed row.
func (in Input) Latest() model.Snapshot { return in.History[len(in.History)-1] }

// Prior is the row before Latest.
func (in Input) Prior() model.Snapshot { return in.History[len(in.History)-2] }

// Outcome is the result of one evaluation. A zero Outcome means no signal.
type Outcome struct {
	Kind       model.SignalKind
	Message    string
	ExitReason model.ExitReason
}

// None reports whether the evaluation produced no signal.
func (o Outcome) None() bool { return o.Kind == model.SignalNone }

// Risk holds the ATR multipliers used to place stop-loss and take-profit.
type Risk struct {
	StopMultiplier   float64
	TargetMultiplier float64
}

// Evaluator is a pure function from indicator history and position state
// to at most one signal. Implementations hold only immutable configuration.
type Evaluator interface {
	Kind() model.StrategyKind
	Timeframe() string
	Bars() int
	Indicators() calculator.Params
	// Ready reports whether a row has every indicator the strategy reads.
	Ready(model.Snapshot) bool
	// SessionGated reports whether entries follow the market's trading hours.
	SessionGated() bool
	Risk() Risk
	Evaluate(in Input) Outcome
}

func exit(pos model.Position, reason model.ExitReason, msg string) Outcome {
	kind := model.SignalLongExit
	if pos.Direction == model.DirectionShort {
		kind = model.SignalShortExit
	}
	return Outcome{Kind: kind, Message: msg, ExitReason: reason}
}
