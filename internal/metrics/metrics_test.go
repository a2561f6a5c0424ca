package metrics

import (
	"testing"
	"time"

	"SignalScanner/internal/model"
	"SignalScanner/internal/recorder"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Cycle(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	start := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	m.ObserveCycle(recorder.CycleReport{StartedAt: start, FinishedAt: start.Add(3 * time.Second), Skipped: 4})

	if got := testutil.ToFloat64(m.CyclesTotal); got != 1 {
		t.Errorf("cycles = %v", got)
	}
	if got := testutil.ToFloat64(m.LastCycle); got != float64(start.Add(3*time.Second).Unix()) {
		t.Errorf("last cycle = %v", got)
	}
	if got := testutil.ToFloat64(m.UnitsSkipped); got != 4 {
		t.Errorf("skipped = %v", got)
	}
}

func TestMetrics_RejectionsSeparateFromErrors(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.Rejected("duplicate")
	m.Rejected("duplicate")
	m.Failed("fetch")

	if got := testutil.ToFloat64(m.RejectionsTotal.WithLabelValues("duplicate")); got != 2 {
		t.Errorf("duplicate rejections = %v", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("fetch")); got != 1 {
		t.Errorf("fetch errors = %v", got)
	}
	if got := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("duplicate")); got != 0 {
		t.Errorf("rejection leaked into errors: %v", got)
	}
}

func TestMetrics_Portfolio(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetPortfolio(model.Portfolio{TotalBalance: 1025, AvailableBalance: 975, UsedBalance: 50, TotalPnL: 25}, 1)

	if got := testutil.ToFloat64(m.Balance.WithLabelValues("available")); got != 975 {
		t.Errorf("available = %v", got)
	}
	if got := testutil.ToFloat64(m.OpenPositions); got != 1 {
		t.Errorf("open = %v", got)
	}
}
