package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"SignalScanner/internal/collector"
	"SignalScanner/internal/config"
	"SignalScanner/internal/gate"
	"SignalScanner/internal/ledger"
	"SignalScanner/internal/markethours"
	"SignalScanner/internal/metrics"
	"SignalScanner/internal/notifier"
	"SignalScanner/internal/portfolio"
	"SignalScanner/internal/recorder"
	"SignalScanner/internal/strategy"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// State is the scan loop state.
type State int32

const (
	Idle State = iota
	Scanning
)

func (s State) String() string {
	if s == Scanning {
		return "scanning"
	}
	return "idle"
}

// Deps wires the scan pipeline.
type Deps struct {
	Config     *config.Config
	Universe   collector.Universe
	Collector  *collector.Collector
	Evaluators []strategy.Evaluator
	Sessions   markethours.Table
	Gate       *gate.Gate
	Ledger     *ledger.Ledger
	Accountant *portfolio.Accountant
	Recorder   recorder.Recorder
	Notifier   notifier.Notifier
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
	Now        func() time.Time
}

// Scheduler runs the scan cycle on a fixed interval plus housekeeping jobs.
type Scheduler struct {
	Deps
	Cron *cron.Cron
	Ctx  context.Context

	log      zerolog.Logger
	state    atomic.Int32
	stopping atomic.Bool
	notifies conc.WaitGroup
}

// NewScheduler creates a new Scheduler. Jobs run with ctx as their parent.
func NewScheduler(ctx context.Context, d Deps) *Scheduler {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Notifier == nil {
		d.Notifier = notifier.Noop{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}
	log := d.Logger.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: log}
	return &Scheduler{
		Deps: d,
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		Ctx: ctx,
		log: log,
	}
}

// RegisterAll registers the scan job and the signal retention job.
func (s *Scheduler) RegisterAll() error {
	s.Cron.Schedule(cron.Every(s.Config.Scanner.Interval), cron.FuncJob(func() {
		s.RunCycle(s.Ctx)
	}))
	if s.Config.Database.SignalRetention > 0 && s.Config.Database.RetentionCron != "" {
		if _, err := s.Cron.AddFunc(s.Config.Database.RetentionCron, s.retentionTask); err != nil {
			return fmt.Errorf("register retention task: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info().Dur("interval", s.Config.Scanner.Interval).Int("workers", s.Config.Scanner.Workers).Msg("scheduler started")
}

// Stop asks a running cycle to finish at the next symbol boundary, waits
// for it and for pending notifications.
func (s *Scheduler) Stop() {
	s.stopping.Store(true)
	<-s.Cron.Stop().Done()
	s.notifies.Wait()
	s.log.Info().Msg("scheduler stopped")
}

// State returns whether a cycle is running.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// Restore loads open positions and balances from the store and seeds the
// dedup window with signals persisted inside it.
func (s *Scheduler) Restore(ctx context.Context) error {
	p, err := s.Recorder.LoadPortfolio(ctx)
	if err != nil {
		return fmt.Errorf("load portfolio: %w", err)
	}
	if p != nil {
		if err := s.Accountant.Restore(*p); err != nil {
			s.log.Warn().Err(err).Msg("portfolio snapshot rejected, rebuilding from trades")
		}
	}
	n, err := s.Ledger.Restore(ctx)
	if err != nil {
		return err
	}

	// The trade tables are the record of truth; the snapshot can lag them
	// by one transition if the process died between the two writes.
	pnl, err := s.Recorder.RealizedPnL(ctx)
	if err != nil {
		return fmt.Errorf("load realized pnl: %w", err)
	}
	var committed float64
	for _, pos := range s.Ledger.Positions() {
		committed += pos.PositionSize
	}
	snap, changed := s.Accountant.Reconcile(pnl, committed)
	if changed {
		s.log.Warn().Float64("used", snap.UsedBalance).Float64("total", snap.TotalBalance).
			Float64("total_pnl", snap.TotalPnL).Msg("portfolio snapshot reconciled with trades")
		if err := s.Recorder.SavePortfolio(ctx, &snap); err != nil {
			return fmt.Errorf("save reconciled portfolio: %w", err)
		}
	}

	since := s.Now().Add(-s.Config.Gate.DedupWindow)
	recent, err := s.Recorder.RecentSignals(ctx, since, 10000)
	if err != nil {
		return fmt.Errorf("load recent signals: %w", err)
	}
	seeded := s.Gate.Seed(recent)
	s.Metrics.SetPortfolio(snap, n)
	s.log.Info().Int("positions", n).Int("dedup_seeded", seeded).Bool("portfolio", p != nil).Msg("state restored")
	return nil
}

// Cleanup deletes signals older than retention.
func (s *Scheduler) Cleanup(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.Recorder.PruneSignals(ctx, s.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("prune signals: %w", err)
	}
	return n, nil
}

func (s *Scheduler) retentionTask() {
	n, err := s.Cleanup(s.Ctx, s.Config.Database.SignalRetention)
	if err != nil {
		s.Metrics.Failed("retention")
		s.log.Error().Err(err).Msg("signal retention")
		return
	}
	s.log.Info().Int64("deleted", n).Dur("retention", s.Config.Database.SignalRetention).Msg("old signals pruned")
}

func (s *Scheduler) notify(text string) {
	s.notifies.Go(func() {
		if err := s.Notifier.Notify(context.WithoutCancel(s.Ctx), text); err != nil {
			s.Metrics.Failed("notify")
			s.log.Error().Err(err).Msg("send notification")
		}
	})
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron " + msg)
}
