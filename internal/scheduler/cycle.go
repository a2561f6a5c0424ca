package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"SignalScanner/internal/collector"
	"SignalScanner/internal/gate"
	"SignalScanner/internal/heartbeat"
	"SignalScanner/internal/ledger"
	"SignalScanner/internal/model"
	"SignalScanner/internal/notifier"
	"SignalScanner/internal/portfolio"
	"SignalScanner/internal/recorder"
	"SignalScanner/internal/strategy"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

const persistTimeout = 10 * time.Second

// tally accumulates per-cycle counters from concurrent workers.
type tally struct {
	mu sync.Mutex
	recorder.CycleReport
}

func (t *tally) add(f func(r *recorder.CycleReport)) {
	t.mu.Lock()
	f(&t.CycleReport)
	t.mu.Unlock()
}

// RunCycle scans every symbol of the universe once. Units run on a bounded
// pool; a stop request ends the cycle at the next symbol boundary. Only a
// cycle that was not stopped writes the heartbeat.
func (s *Scheduler) RunCycle(ctx context.Context) recorder.CycleReport {
	if !s.state.CompareAndSwap(int32(Idle), int32(Scanning)) {
		s.log.Warn().Msg("cycle already running, skipped")
		return recorder.CycleReport{}
	}
	defer s.state.Store(int32(Idle))

	t := &tally{}
	t.StartedAt = s.Now()

	symbols, err := s.Universe.Symbols(ctx)
	if err != nil {
		s.Metrics.Failed("universe")
		s.log.Error().Err(err).Msg("load symbol universe")
		t.Errors++
	}
	t.Symbols = len(symbols)

	p := pool.New().WithMaxGoroutines(s.Config.Scanner.Workers)
	for _, sym := range symbols {
		if s.stopRequested(ctx) {
			t.add(func(r *recorder.CycleReport) { r.Stopped = true })
			break
		}
		sym := sym
		p.Go(func() { s.scanSymbol(ctx, sym, t) })
	}
	p.Wait()

	rep := t.CycleReport
	rep.FinishedAt = s.Now()
	logEvent := s.log.Info()
	if rep.Stopped {
		logEvent = s.log.Warn()
	}
	logEvent.Int("symbols", rep.Symbols).Int("units", rep.Units).Int("skipped", rep.Skipped).
		Int("signals", rep.Signals).Int("accepted", rep.Accepted).Int("rejected", rep.Rejected).
		Int("errors", rep.Errors).Bool("stopped", rep.Stopped).
		Dur("took", rep.FinishedAt.Sub(rep.StartedAt)).Msg("scan cycle finished")

	if rep.Stopped {
		return rep
	}
	s.beat(ctx, &rep)
	return rep
}

func (s *Scheduler) stopRequested(ctx context.Context) bool {
	return s.stopping.Load() || ctx.Err() != nil
}

// beat records the heartbeat of a completed cycle.
func (s *Scheduler) beat(ctx context.Context, rep *recorder.CycleReport) {
	s.Metrics.ObserveCycle(*rep)
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.Recorder.RecordCycle(pctx, rep); err != nil {
		s.Metrics.Failed("record_cycle")
		s.log.Error().Err(err).Msg("record cycle")
	}
	if path := s.Config.Heartbeat.File; path != "" {
		b := heartbeat.Beat{LastScan: rep.FinishedAt, Symbols: rep.Symbols, Signals: rep.Signals, Errors: rep.Errors}
		if err := heartbeat.Write(path, b); err != nil {
			s.Metrics.Failed("heartbeat")
			s.log.Error().Err(err).Str("path", path).Msg("write heartbeat")
		}
	}
}

// scanSymbol evaluates every strategy for sym in order.
func (s *Scheduler) scanSymbol(ctx context.Context, sym model.Symbol, t *tally) {
	if s.stopRequested(ctx) {
		t.add(func(r *recorder.CycleReport) { r.Stopped = true })
		return
	}
	for _, ev := range s.Evaluators {
		s.scanUnit(ctx, sym, ev, t)
	}
}

func (s *Scheduler) scanUnit(ctx context.Context, sym model.Symbol, ev strategy.Evaluator, t *tally) {
	log := s.log.With().Str("symbol", sym.Name).Str("market", string(sym.Market)).Str("strategy", string(ev.Kind())).Logger()
	t.add(func(r *recorder.CycleReport) { r.Units++ })

	session, ok := s.Sessions.For(sym.Market)
	if !ok {
		s.Metrics.Failed("session")
		log.Error().Msg("no trading session for market")
		t.add(func(r *recorder.CycleReport) { r.Errors++ })
		return
	}

	now := s.Now()
	key := model.PositionKey{Symbol: sym.Name, Strategy: ev.Kind()}
	pos, open := s.Ledger.Position(key)
	if ev.SessionGated() && !open && !session.EntryOpen(now) {
		log.Debug().Str("reason", "session_closed").Msg("unit skipped")
		t.add(func(r *recorder.CycleReport) { r.Skipped++ })
		return
	}
	if !open {
		pos = model.Position{Symbol: sym.Name, Market: sym.Market, Strategy: ev.Kind(), Direction: model.DirectionFlat}
	}

	// In-flight fetches are not cancelled by a stop; they finish or time out.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Config.Scanner.FetchTimeout)
	rows, err := s.Collector.Collect(fctx, sym, collector.Requirement{
		Timeframe: ev.Timeframe(),
		Bars:      ev.Bars(),
		Params:    ev.Indicators(),
		Ready:     ev.Ready,
	})
	cancel()
	if err != nil {
		stage := "fetch"
		if errors.Is(err, collector.ErrInsufficientHistory) || errors.Is(err, collector.ErrNoData) {
			stage = "history"
			log.Debug().Err(err).Msg("not enough data")
		} else {
			log.Warn().Err(err).Msg("fetch failed")
		}
		s.Metrics.Failed(stage)
		t.add(func(r *recorder.CycleReport) { r.Errors++ })
		return
	}

	in := strategy.Input{Symbol: sym, History: rows, Position: pos, Session: session, Now: now}
	out := ev.Evaluate(in)
	if out.None() {
		return
	}

	latest := in.Latest()
	sig := model.Signal{
		ID:         uuid.NewString(),
		Symbol:     sym.Name,
		Market:     sym.Market,
		Strategy:   ev.Kind(),
		Kind:       out.Kind,
		Message:    out.Message,
		Price:      latest.Close,
		Indicators: latest.Values(),
		ExitReason: out.ExitReason,
		Timestamp:  now,
	}
	t.add(func(r *recorder.CycleReport) { r.Signals++ })
	s.Metrics.Signal(sig)
	log.Info().Str("kind", string(sig.Kind)).Float64("price", sig.Price).Str("message", sig.Message).Msg("signal")

	s.process(ctx, log, sig, latest, ev, t)
}

// process pushes an evaluated signal through gate, persistence and ledger.
func (s *Scheduler) process(ctx context.Context, log zerolog.Logger, sig model.Signal, latest model.Snapshot, ev strategy.Evaluator, t *tally) {
	key := model.PositionKey{Symbol: sig.Symbol, Strategy: sig.Strategy}
	d := s.Gate.Admit(ctx, sig, s.Ledger.State(key))
	if !d.Accepted {
		if d.Reason == gate.ReasonWindowError {
			s.Metrics.Failed("gate")
			t.add(func(r *recorder.CycleReport) { r.Errors++ })
			return
		}
		s.Metrics.Rejected(d.Reason)
		log.Info().Str("kind", string(sig.Kind)).Str("reason", d.Reason).Msg("signal rejected")
		t.add(func(r *recorder.CycleReport) { r.Rejected++ })
		return
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.Recorder.RecordSignal(pctx, &sig); err != nil {
		s.Gate.Forget(pctx, sig)
		s.Metrics.Failed("record_signal")
		log.Error().Err(err).Msg("record signal")
		t.add(func(r *recorder.CycleReport) { r.Errors++ })
		return
	}

	switch {
	case sig.Kind.IsEntry():
		risk := ev.Risk()
		pos, err := s.Ledger.Open(pctx, ledger.OpenRequest{
			Symbol:           model.Symbol{Name: sig.Symbol, Market: sig.Market},
			Strategy:         sig.Strategy,
			Direction:        sig.Kind.Direction(),
			Price:            sig.Price,
			ATR:              latest.ATR,
			StopMultiplier:   risk.StopMultiplier,
			TargetMultiplier: risk.TargetMultiplier,
			At:               sig.Timestamp,
		})
		if err != nil {
			s.ledgerFailure(pctx, log, sig, "open_trade", err, t)
			return
		}
		s.Metrics.Opened(pos)
		s.notify(notifier.FormatTradeOpened(pos))

	case sig.Kind.IsExit():
		trade, err := s.Ledger.Close(pctx, key, sig.Price, sig.ExitReason, sig.Timestamp)
		if err != nil {
			s.ledgerFailure(pctx, log, sig, "close_trade", err, t)
			return
		}
		s.Metrics.Closed(trade)
		s.notify(notifier.FormatTradeClosed(trade))
	}
	t.add(func(r *recorder.CycleReport) { r.Accepted++ })
	s.Metrics.SetPortfolio(s.Accountant.Snapshot(), len(s.Ledger.Positions()))
}

// ledgerFailure counts a signal the ledger did not apply. A failed write
// releases the dedup claim so the next cycle can retry it.
func (s *Scheduler) ledgerFailure(ctx context.Context, log zerolog.Logger, sig model.Signal, stage string, err error, t *tally) {
	if ledger.IsRejection(err) {
		reason := "position_open"
		switch {
		case errors.Is(err, portfolio.ErrInsufficientCapital):
			reason = "insufficient_capital"
		case errors.Is(err, ledger.ErrNoPosition):
			reason = "no_position"
		}
		s.Metrics.Rejected(reason)
		log.Info().Err(err).Str("reason", reason).Msg("trade rejected")
		t.add(func(r *recorder.CycleReport) { r.Rejected++ })
		return
	}
	s.Gate.Forget(ctx, sig)
	s.Metrics.Failed(stage)
	log.Error().Err(err).Msg("trade not persisted")
	t.add(func(r *recorder.CycleReport) { r.Errors++ })
}
