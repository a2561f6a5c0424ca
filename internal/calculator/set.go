package calculator

import (
	"math"

	"SignalScanner/internal/model"
)

// Params selects the lookback of every indicator in the set. A zero length
// leaves the corresponding column NaN.
type Params struct {
	RSILength   int
	ADXLength   int
	ATRLength   int
	SMAFast     int
	SMASlow     int
	SwingWindow int
}

// MinBars is the shortest input from which every requested indicator can
// produce at least two valid rows.
func (p Params) MinBars() int {
	need := 2
	for _, v := range []int{p.RSILength + 2, 2 * p.ADXLength, p.ATRLength + 1, p.SMAFast + 1, p.SMASlow + 1} {
		if v > need {
			need = v
		}
	}
	return need
}

// Compute derives the indicator set from oldest-first bars.
func Compute(bars []model.OHLCV, p Params) []model.Snapshot {
	n := len(bars)
	rows := make([]model.Snapshot, n)
	if n == 0 {
		return rows
	}

	vwap := VWAPSeries(bars)
	rsi := optional(n, p.RSILength, func() []float64 { return RSISeries(bars, p.RSILength) })
	adx := optional(n, p.ADXLength, func() []float64 { return ADXSeries(bars, p.ADXLength) })
	atr := optional(n, p.ATRLength, func() []float64 { return ATRSeries(bars, p.ATRLength) })
	closes := extractCloses(bars)
	fast := optional(n, p.SMAFast, func() []float64 { return SMASeries(closes, p.SMAFast) })
	slow := optional(n, p.SMASlow, func() []float64 { return SMASeries(closes, p.SMASlow) })
	swingHigh, swingLow := SwingPoints(bars, p.SwingWindow)

	for i, b := range bars {
		rows[i] = model.Snapshot{
			Time:      b.Time,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
			VWAP:      vwap[i],
			RSI:       rsi[i],
			ADX:       adx[i],
			ATR:       atr[i],
			SMAFast:   fast[i],
			SMASlow:   slow[i],
			SwingHigh: swingHigh[i],
			SwingLow:  swingLow[i],
		}
	}
	return rows
}

func optional(n, length int, fn func() []float64) []float64 {
	if length <= 0 {
		return nanSlice(n)
	}
	return fn()
}

// TrimWarmup drops the leading rows for which ready is false, keeping the
// longest fully-ready suffix.
func TrimWarmup(rows []model.Snapshot, ready func(model.Snapshot) bool) []model.Snapshot {
	start := len(rows)
	for start > 0 && ready(rows[start-1]) {
		start--
	}
	return rows[start:]
}

// Valid reports whether every value is a finite number.
func Valid(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
