package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SignalScanner/internal/calculator"
	"SignalScanner/internal/model"
)

var (
	// ErrNoData means the provider returned an empty series.
	ErrNoData = errors.New("no data")
	// ErrInsufficientHistory means too few bars survived indicator warm-up.
	ErrInsufficientHistory = errors.New("insufficient history")
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Price float64
	Bars  map[string][]model.OHLCV // keyed by timeframe
	Err   error
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchBars(_ context.Context, _ model.Symbol, timeframe string, count int) ([]model.OHLCV, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if bars, ok := m.Bars[timeframe]; ok {
		if len(bars) > count {
			bars = bars[len(bars)-count:]
		}
		return bars, nil
	}
	return generateMockBars(m.Price, count, time.Minute), nil
}

func generateMockBars(basePrice float64, count int, step time.Duration) []model.OHLCV {
	bars := make([]model.OHLCV, count)
	start := time.Now().Add(-time.Duration(count) * step)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		bars[i] = model.OHLCV{
			Time:   start.Add(time.Duration(i) * step),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 1000000,
		}
	}
	return bars
}

// Requirement is what a strategy needs from one fetch.
type Requirement struct {
	Timeframe string
	Bars      int
	Params    calculator.Params
	Ready     func(model.Snapshot) bool
}

// Collector orchestrates data fetching and indicator computation.
type Collector struct {
	Fetcher Fetcher
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher) *Collector {
	return &Collector{Fetcher: fetcher}
}

// Collect fetches bars for sym and returns the indicator history with
// warm-up rows removed. At least two rows are returned on success.
func (c *Collector) Collect(ctx context.Context, sym model.Symbol, req Requirement) ([]model.Snapshot, error) {
	bars, err := c.Fetcher.FetchBars(ctx, sym, req.Timeframe, req.Bars)
	if err != nil {
		return nil, fmt.Errorf("fetch %s %s: %w", sym.Name, req.Timeframe, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("fetch %s %s: %w", sym.Name, req.Timeframe, ErrNoData)
	}
	if need := req.Params.MinBars(); len(bars) < need {
		return nil, fmt.Errorf("%s %s: %d bars, need %d: %w", sym.Name, req.Timeframe, len(bars), need, ErrInsufficientHistory)
	}

	rows := calculator.Compute(bars, req.Params)
	if req.Ready != nil {
		rows = calculator.TrimWarmup(rows, req.Ready)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%s %s: %d ready rows: %w", sym.Name, req.Timeframe, len(rows), ErrInsufficientHistory)
	}
	return rows, nil
}
