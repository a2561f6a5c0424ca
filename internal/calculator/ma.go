package calculator

import (
	"math"

	"SignalScanner/internal/model"
)

// SMASeries returns the rolling simple moving average aligned with prices.
// The first period-1 entries are NaN.
func SMASeries(prices []float64, period int) []float64 {
	return rollingMean(prices, period)
}

// rollingMean averages a full window ending at each index. Windows that
// contain a NaN produce NaN.
func rollingMean(values []float64, period int) []float64 {
	out := nanSlice(len(values))
	if period <= 0 {
		return out
	}
	sum := 0.0
	nans := 0
	for i, v := range values {
		if math.IsNaN(v) {
			nans++
		} else {
			sum += v
		}
		if i >= period {
			old := values[i-period]
			if math.IsNaN(old) {
				nans--
			} else {
				sum -= old
			}
		}
		if i >= period-1 && nans == 0 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

func extractCloses(bars []model.OHLCV) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
