package model

import "time"

// Direction is the position state of one (symbol, strategy) pair.
type Direction string

const (
	DirectionFlat  Direction = "FLAT"
	DirectionLong  Direction = "LONG"
	DirectionShort Direction = "SHORT"
)

// ExitReason records what closed a position.
type ExitReason string

const (
	ExitSessionEnd    ExitReason = "SESSION_END"
	ExitVWAPBreak     ExitReason = "VWAP_BREAK"
	ExitStopLoss      ExitReason = "STOP_LOSS"
	ExitTakeProfit    ExitReason = "TAKE_PROFIT"
	ExitRSIExhaustion ExitReason = "RSI_EXHAUSTION"
	ExitTrendBreak    ExitReason = "TREND_BREAK"
)

// PositionKey identifies one position slot. Strategies never share a slot.
type PositionKey struct {
	Symbol   string       `json:"symbol"`
	Strategy StrategyKind `json:"strategy"`
}

func (k PositionKey) String() string { return k.Symbol + "/" + string(k.Strategy) }

// Position is an open trade.
type Position struct {
	Symbol       string       `json:"symbol"`
	Market       MarketClass  `json:"market"`
	Strategy     StrategyKind `json:"strategy"`
	Direction    Direction    `json:"direction"`
	EntryPrice   float64      `json:"entry_price"`
	EntryTime    time.Time    `json:"entry_time"`
	ATRAtEntry   float64      `json:"atr_at_entry"`
	StopLoss     float64      `json:"stop_loss"`
	TakeProfit   float64      `json:"take_profit"`
	PositionSize float64      `json:"position_size"`
	Leverage     float64      `json:"leverage"`
}

// Key returns the slot this position occupies.
func (p Position) Key() PositionKey { return PositionKey{Symbol: p.Symbol, Strategy: p.Strategy} }

// IsOpen reports whether the position holds a side.
func (p Position) IsOpen() bool { return p.Direction == DirectionLong || p.Direction == DirectionShort }

// ClosedTrade is the permanent record of a finished position.
type ClosedTrade struct {
	ID           string       `json:"id"`
	Symbol       string       `json:"symbol"`
	Market       MarketClass  `json:"market"`
	Strategy     StrategyKind `json:"strategy"`
	Direction    Direction    `json:"direction"`
	EntryPrice   float64      `json:"entry_price"`
	EntryTime    time.Time    `json:"entry_time"`
	ExitPrice    float64      `json:"exit_price"`
	ExitTime     time.Time    `json:"exit_time"`
	PnLPercent   float64      `json:"pnl_percent"`
	PnLUSD       float64      `json:"pnl_usd"`
	PositionSize float64      `json:"position_size"`
	Leverage     float64      `json:"leverage"`
	ExitReason   ExitReason   `json:"exit_reason"`
}
