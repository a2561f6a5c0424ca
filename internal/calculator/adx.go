package calculator

import (
	"math"

	"SignalScanner/internal/model"
)

// ADXSeries computes the average directional index.
//
// +DM/-DM are rolled as means over period and divided by the rolling ATR of
// the same period. DX is averaged over period again, so the first valid value
// sits at index 2*(period-1). A bar with no directional movement at all
// (+DI == -DI == 0) has DX 0.
func ADXSeries(bars []model.OHLCV, period int) []float64 {
	n := len(bars)
	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	for i := 1; i < n; i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		if up > down && up > 0 {
			plusDM[i] = up
		}
		if down > up && down > 0 {
			minusDM[i] = down
		}
	}

	atr := ATRSeries(bars, period)
	plus := rollingMean(plusDM, period)
	minus := rollingMean(minusDM, period)

	dx := nanSlice(n)
	for i := 0; i < n; i++ {
		if math.IsNaN(atr[i]) || math.IsNaN(plus[i]) || math.IsNaN(minus[i]) {
			continue
		}
		var plusDI, minusDI float64
		if atr[i] > 0 {
			plusDI = 100 * plus[i] / atr[i]
			minusDI = 100 * minus[i] / atr[i]
		}
		sum := plusDI + minusDI
		if sum == 0 {
			dx[i] = 0
			continue
		}
		dx[i] = 100 * math.Abs(plusDI-minusDI) / sum
	}
	return rollingMean(dx, period)
}
