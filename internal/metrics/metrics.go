package metrics

import (
	"SignalScanner/internal/model"
	"SignalScanner/internal/recorder"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the scanner. Business
// rejections and failures are separate series.
type Metrics struct {
	CyclesTotal     prometheus.Counter
	CycleDuration   prometheus.Histogram
	LastCycle       prometheus.Gauge
	UnitsSkipped    prometheus.Counter
	SignalsTotal    *prometheus.CounterVec // labels: strategy, kind
	RejectionsTotal *prometheus.CounterVec // labels: reason
	ErrorsTotal     *prometheus.CounterVec // labels: stage
	TradesOpened    *prometheus.CounterVec // labels: strategy
	TradesClosed    *prometheus.CounterVec // labels: strategy, reason
	OpenPositions   prometheus.Gauge
	Balance         *prometheus.GaugeVec // labels: kind=total|available|used|pnl
}

// NewMetrics creates the scanner metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_cycles_total",
			Help: "Completed scan cycles",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "scanner_cycle_duration_seconds",
			Help:    "Wall time of one scan cycle",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300},
		}),
		LastCycle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanner_last_cycle_timestamp_seconds",
			Help: "Unix time the last cycle finished",
		}),
		UnitsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scanner_units_skipped_total",
			Help: "Symbol/strategy units skipped by closed sessions",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_signals_total",
			Help: "Signals emitted by evaluators (by strategy and kind)",
		}, []string{"strategy", "kind"}),
		RejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_rejections_total",
			Help: "Expected business rejections (dedup, position open, capital)",
		}, []string{"reason"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_errors_total",
			Help: "Failures by pipeline stage",
		}, []string{"stage"}),
		TradesOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_trades_opened_total",
			Help: "Positions opened",
		}, []string{"strategy"}),
		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scanner_trades_closed_total",
			Help: "Positions closed (by exit reason)",
		}, []string{"strategy", "reason"}),
		OpenPositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "scanner_open_positions",
			Help: "Currently open positions",
		}),
		Balance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scanner_portfolio_balance_usd",
			Help: "Portfolio balances",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.CyclesTotal,
		m.CycleDuration,
		m.LastCycle,
		m.UnitsSkipped,
		m.SignalsTotal,
		m.RejectionsTotal,
		m.ErrorsTotal,
		m.TradesOpened,
		m.TradesClosed,
		m.OpenPositions,
		m.Balance,
	)
	return m
}

// ObserveCycle records a finished cycle.
func (m *Metrics) ObserveCycle(r recorder.CycleReport) {
	m.CyclesTotal.Inc()
	m.CycleDuration.Observe(r.FinishedAt.Sub(r.StartedAt).Seconds())
	m.LastCycle.Set(float64(r.FinishedAt.Unix()))
	m.UnitsSkipped.Add(float64(r.Skipped))
}

func (m *Metrics) Signal(s model.Signal) {
	m.SignalsTotal.WithLabelValues(string(s.Strategy), string(s.Kind)).Inc()
}

func (m *Metrics) Rejected(reason string) { m.RejectionsTotal.WithLabelValues(reason).Inc() }

func (m *Metrics) Failed(stage string) { m.ErrorsTotal.WithLabelValues(stage).Inc() }

func (m *Metrics) Opened(p model.Position) {
	m.TradesOpened.WithLabelValues(string(p.Strategy)).Inc()
}

func (m *Metrics) Closed(t model.ClosedTrade) {
	m.TradesClosed.WithLabelValues(string(t.Strategy), string(t.ExitReason)).Inc()
}

// SetPortfolio mirrors the accountant snapshot and open position count.
func (m *Metrics) SetPortfolio(p model.Portfolio, open int) {
	m.Balance.WithLabelValues("total").Set(p.TotalBalance)
	m.Balance.WithLabelValues("available").Set(p.AvailableBalance)
	m.Balance.WithLabelValues("used").Set(p.UsedBalance)
	m.Balance.WithLabelValues("pnl").Set(p.TotalPnL)
	m.OpenPositions.Set(float64(open))
}
