package calculator

import "SignalScanner/internal/model"

// VWAPSeries is the cumulative volume-weighted average of the typical price
// (H+L+C)/3 from the first bar of the window. Bars before any volume are NaN.
func VWAPSeries(bars []model.OHLCV) []float64 {
	out := nanSlice(len(bars))
	var pv, vol float64
	for i, b := range bars {
		typical := (b.High + b.Low + b.Close) / 3
		pv += typical * b.Volume
		vol += b.Volume
		if vol > 0 {
			out[i] = pv / vol
		}
	}
	return out
}
