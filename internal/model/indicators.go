package model

import (
	"math"
	"time"
)

// Snapshot is one row of the indicator set: the bar plus every indicator
// computed at that bar. Indicators still in warm-up are NaN.
type Snapshot struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64

	VWAP    float64
	RSI     float64
	ADX     float64
	ATR     float64
	SMAFast float64
	SMASlow float64

	SwingHigh bool
	SwingLow  bool
}

// IndicatorValues is the subset of a snapshot stored alongside a signal.
type IndicatorValues struct {
	Close   float64 `json:"close"`
	RSI     float64 `json:"rsi"`
	ADX     float64 `json:"adx"`
	VWAP    float64 `json:"vwap"`
	ATR     float64 `json:"atr"`
	SMAFast float64 `json:"sma_fast"`
	SMASlow float64 `json:"sma_slow"`
}

// Values extracts the stored indicator subset. NaN becomes 0 so the
// result is always JSON-encodable.
func (s Snapshot) Values() IndicatorValues {
	return IndicatorValues{
		Close:   finite(s.Close),
		RSI:     finite(s.RSI),
		ADX:     finite(s.ADX),
		VWAP:    finite(s.VWAP),
		ATR:     finite(s.ATR),
		SMAFast: finite(s.SMAFast),
		SMASlow: finite(s.SMASlow),
	}
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
