package calculator

import (
	"errors"
	"math"

	"SignalScanner/internal/model"
)

// FibRatios are the retracement ratios tracked between the last swing points.
var FibRatios = []float64{0.236, 0.382, 0.5, 0.618, 0.786}

// FibLevel is one retracement price.
type FibLevel struct {
	Ratio float64
	Price float64
}

// RecentRange returns the highest high and lowest low of the last lookback rows.
func RecentRange(rows []model.Snapshot, lookback int) (high, low float64, err error) {
	if len(rows) == 0 {
		return 0, 0, errors.New("no rows provided")
	}
	n := len(rows)
	start := n - lookback
	if start < 0 {
		start = 0
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for i := start; i < n; i++ {
		if rows[i].High > high {
			high = rows[i].High
		}
		if rows[i].Low < low {
			low = rows[i].Low
		}
	}
	return high, low, nil
}

// Retracement returns how far close sits below the recent high, as a fraction of that high.
func Retracement(rows []model.Snapshot, lookback int) (float64, error) {
	high, _, err := RecentRange(rows, lookback)
	if err != nil {
		return 0, err
	}
	if high <= 0 {
		return 0, errors.New("recent high must be positive")
	}
	return (high - rows[len(rows)-1].Close) / high, nil
}

// SwingPoints marks bars whose high (low) is the extreme of the centered
// window and strictly beyond both neighbours. Bars too close to either end
// for a full window are never swing points.
func SwingPoints(bars []model.OHLCV, window int) (highs, lows []bool) {
	n := len(bars)
	highs = make([]bool, n)
	lows = make([]bool, n)
	if window < 3 {
		return highs, lows
	}
	before := window / 2
	after := window - 1 - before
	for i := before; i+after < n; i++ {
		maxHigh := math.Inf(-1)
		minLow := math.Inf(1)
		for j := i - before; j <= i+after; j++ {
			maxHigh = math.Max(maxHigh, bars[j].High)
			minLow = math.Min(minLow, bars[j].Low)
		}
		b := bars[i]
		highs[i] = b.High == maxHigh && b.High > bars[i-1].High && b.High > bars[i+1].High
		lows[i] = b.Low == minLow && b.Low < bars[i-1].Low && b.Low < bars[i+1].Low
	}
	return highs, lows
}

// LastSwings returns the most recent swing high and swing low. ok is false
// unless at least two of each exist.
func LastSwings(rows []model.Snapshot) (high, low float64, ok bool) {
	var nh, nl int
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].SwingHigh {
			if nh == 0 {
				high = rows[i].High
			}
			nh++
		}
		if rows[i].SwingLow {
			if nl == 0 {
				low = rows[i].Low
			}
			nl++
		}
	}
	return high, low, nh >= 2 && nl >= 2
}

// FibonacciLevels projects each ratio down from high toward low.
func FibonacciLevels(high, low float64) []FibLevel {
	span := high - low
	levels := make([]FibLevel, len(FibRatios))
	for i, r := range FibRatios {
		levels[i] = FibLevel{Ratio: r, Price: high - span*r}
	}
	return levels
}
