package calculator

import (
	"math"

	"SignalScanner/internal/model"
)

// TrueRange returns max(H-L, |H-prevC|, |L-prevC|) per bar. The first bar
// has no previous close and uses H-L.
func TrueRange(bars []model.OHLCV) []float64 {
	tr := make([]float64, len(bars))
	for i, b := range bars {
		hl := b.High - b.Low
		if i == 0 {
			tr[i] = hl
			continue
		}
		prev := bars[i-1].Close
		tr[i] = math.Max(hl, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
	}
	return tr
}

// ATRSeries is the rolling mean of the true range over period bars.
func ATRSeries(bars []model.OHLCV, period int) []float64 {
	return rollingMean(TrueRange(bars), period)
}
