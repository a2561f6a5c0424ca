package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"SignalScanner/internal/calculator"
	"SignalScanner/internal/collector"
	"SignalScanner/internal/config"
	"SignalScanner/internal/gate"
	"SignalScanner/internal/heartbeat"
	"SignalScanner/internal/ledger"
	"SignalScanner/internal/markethours"
	"SignalScanner/internal/model"
	"SignalScanner/internal/portfolio"
	"SignalScanner/internal/recorder"
	"SignalScanner/internal/strategy"

	"github.com/rs/zerolog"
)

// scripted emits the next queued outcome once per evaluation.
type scripted struct {
	mu      sync.Mutex
	queue   []strategy.Outcome
	gated   bool
	seen    []model.Direction
	atrSeen float64
}

func (s *scripted) Kind() model.StrategyKind { return model.StrategyMomentum }
func (s *scripted) Timeframe() string        { return "1m" }
func (s *scripted) Bars() int                { return 30 }
func (s *scripted) Indicators() calculator.Params {
	return calculator.Params{RSILength: 3, ATRLength: 3}
}
func (s *scripted) Ready(row model.Snapshot) bool { return calculator.Valid(row.RSI, row.ATR) }
func (s *scripted) SessionGated() bool            { return s.gated }
func (s *scripted) Risk() strategy.Risk {
	return strategy.Risk{StopMultiplier: 2.5, TargetMultiplier: 7.5}
}
func (s *scripted) Evaluate(in strategy.Input) strategy.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, in.Position.Direction)
	s.atrSeen = in.Latest().ATR
	if len(s.queue) == 0 {
		return strategy.Outcome{}
	}
	out := s.queue[0]
	s.queue = s.queue[1:]
	return out
}

type memRecorder struct {
	recorder.NoopRecorder
	mu        sync.Mutex
	signals   []model.Signal
	open      map[model.PositionKey]model.Position
	closed    []model.ClosedTrade
	cycles    []recorder.CycleReport
	failOpen  bool
	failClose bool
	failSigs  bool
	portfolio *model.Portfolio
}

func newMemRecorder() *memRecorder {
	return &memRecorder{open: make(map[model.PositionKey]model.Position)}
}

func (m *memRecorder) RecordSignal(_ context.Context, sig *model.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSigs {
		return errors.New("database is locked")
	}
	m.signals = append(m.signals, *sig)
	return nil
}

func (m *memRecorder) RecentSignals(_ context.Context, since time.Time, _ int) ([]model.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Signal
	for _, s := range m.signals {
		if !s.Timestamp.Before(since) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memRecorder) OpenTrade(_ context.Context, pos *model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOpen {
		return errors.New("disk I/O error")
	}
	m.open[pos.Key()] = *pos
	return nil
}

func (m *memRecorder) CloseTrade(_ context.Context, tr *model.ClosedTrade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failClose {
		return errors.New("disk I/O error")
	}
	delete(m.open, model.PositionKey{Symbol: tr.Symbol, Strategy: tr.Strategy})
	m.closed = append(m.closed, *tr)
	return nil
}

func (m *memRecorder) OpenPositions(context.Context) ([]model.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Position
	for _, p := range m.open {
		out = append(out, p)
	}
	return out, nil
}

func (m *memRecorder) RealizedPnL(context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pnl float64
	for _, tr := range m.closed {
		pnl += tr.PnLUSD
	}
	return pnl, nil
}

func (m *memRecorder) LoadPortfolio(context.Context) (*model.Portfolio, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.portfolio, nil
}

func (m *memRecorder) SavePortfolio(_ context.Context, p *model.Portfolio) error {
	m.mu.Lock()
	cp := *p
	m.portfolio = &cp
	m.mu.Unlock()
	return nil
}

func (m *memRecorder) RecordCycle(_ context.Context, rep *recorder.CycleReport) error {
	m.mu.Lock()
	m.cycles = append(m.cycles, *rep)
	m.mu.Unlock()
	return nil
}

type countingFetcher struct {
	collector.Fetcher
	calls atomic.Int32
}

func (c *countingFetcher) FetchBars(ctx context.Context, sym model.Symbol, tf string, n int) ([]model.OHLCV, error) {
	c.calls.Add(1)
	return c.Fetcher.FetchBars(ctx, sym, tf, n)
}

type harness struct {
	s     *Scheduler
	rec   *memRecorder
	ev    *scripted
	acct  *portfolio.Accountant
	led   *ledger.Ledger
	fetch *countingFetcher
	now   time.Time
}

var t0 = time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC) // Wednesday

func newHarness(t *testing.T, symbols []model.Symbol, sessions markethours.Table, outcomes ...strategy.Outcome) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.Scanner.Workers = 2
	cfg.Heartbeat.File = filepath.Join(t.TempDir(), "heartbeat.json")

	h := &harness{rec: newMemRecorder(), ev: &scripted{queue: outcomes}, now: t0}
	h.acct = portfolio.NewAccountant(1000, 50, 5)
	h.led = ledger.New(h.rec, h.acct, zerolog.Nop())
	h.fetch = &countingFetcher{Fetcher: collector.NewMarketRouter(map[model.MarketClass]collector.Fetcher{
		model.MarketCrypto: &collector.MockFetcher{Price: 100},
		model.MarketBIST:   &collector.MockFetcher{Price: 40},
	})}

	h.s = NewScheduler(context.Background(), Deps{
		Config:     cfg,
		Universe:   collector.StaticUniverse(symbols),
		Collector:  collector.NewCollector(h.fetch),
		Evaluators: []strategy.Evaluator{h.ev},
		Sessions:   sessions,
		Gate:       gate.New(gate.NewMemoryWindow(cfg.Gate.DedupWindow), zerolog.Nop()),
		Ledger:     h.led,
		Accountant: h.acct,
		Recorder:   h.rec,
		Logger:     zerolog.Nop(),
		Now:        func() time.Time { return h.now },
	})
	return h
}

var (
	btc       = model.Symbol{Name: "BTCUSDT", Market: model.MarketCrypto}
	cryptoTbl = markethours.Table{model.MarketCrypto: markethours.AlwaysOpenSession}
	longEntry = strategy.Outcome{Kind: model.SignalLongEntry, Message: "[TEST] long"}
	longExit  = strategy.Outcome{Kind: model.SignalLongExit, Message: "[TEST] exit", ExitReason: model.ExitVWAPBreak}
)

func TestRunCycle_EntryOpensPosition(t *testing.T) {
	h := newHarness(t, []model.Symbol{btc}, cryptoTbl, longEntry)

	rep := h.s.RunCycle(context.Background())
	if rep.Signals != 1 || rep.Accepted != 1 || rep.Errors != 0 {
		t.Fatalf("report = %+v", rep)
	}
	key := model.PositionKey{Symbol: "BTCUSDT", Strategy: model.StrategyMomentum}
	pos, ok := h.led.Position(key)
	if !ok || pos.Direction != model.DirectionLong {
		t.Fatalf("position = %+v, %v", pos, ok)
	}
	if pos.StopLoss != pos.EntryPrice-h.ev.atrSeen*2.5 {
		t.Errorf("stop loss %v not 2.5 ATR below %v", pos.StopLoss, pos.EntryPrice)
	}
	if len(h.rec.signals) != 1 || len(h.rec.open) != 1 {
		t.Errorf("store: %d signals, %d open", len(h.rec.signals), len(h.rec.open))
	}
	if p := h.acct.Snapshot(); p.UsedBalance != 50 {
		t.Errorf("portfolio = %+v", p)
	}
	h.s.Stop()
}

func TestRunCycle_NoDoubleEntry(t *testing.T) {
	h := newHarness(t, []model.Symbol{btc}, cryptoTbl, longEntry, longEntry)

	h.s.RunCycle(context.Background())
	h.now = t0.Add(15 * time.Minute) // past the dedup window
	rep := h.s.RunCycle(context.Background())

	if rep.Rejected != 1 || rep.Accepted != 0 {
		t.Errorf("second cycle = %+v", rep)
	}
	if len(h.rec.signals) != 1 {
		t.Errorf("persisted %d signals, want 1", len(h.rec.signals))
	}
	if len(h.led.Positions()) != 1 {
		t.Errorf("positions = %d", len(h.led.Positions()))
	}
}

func TestRunCycle_ExitThenDuplicateEntry(t *testing.T) {
	h := newHarness(t, []model.Symbol{btc}, cryptoTbl, longEntry, longExit, longEntry)

	h.s.RunCycle(context.Background())
	h.now = t0.Add(time.Minute)
	rep := h.s.RunCycle(context.Background())
	if rep.Accepted != 1 || len(h.rec.closed) != 1 {
		t.Fatalf("exit cycle = %+v, closed %d", rep, len(h.rec.closed))
	}
	if h.rec.closed[0].ExitReason != model.ExitVWAPBreak {
		t.Errorf("exit reason = %s", h.rec.closed[0].ExitReason)
	}

	h.now = t0.Add(2 * time.Minute)
	rep = h.s.RunCycle(context.Background())
	if rep.Rejected != 1 {
		t.Errorf("re-entry inside dedup window not rejected: %+v", rep)
	}
	if got := h.ev.seen; len(got) != 3 || got[0] != model.DirectionFlat || got[1] != model.DirectionLong || got[2] != model.DirectionFlat {
		t.Errorf("evaluator saw positions %v", got)
	}
	if p := h.acct.Snapshot(); p.UsedBalance != 0 || p.TotalBalance != p.AvailableBalance {
		t.Errorf("portfolio = %+v", p)
	}
}

func TestRunCycle_FetchFailureIsolated(t *testing.T) {
	us := model.Symbol{Name: "AAPL", Market: model.MarketUS} // no fetcher routed
	sessions := markethours.Table{
		model.MarketCrypto: markethours.AlwaysOpenSession,
		model.MarketUS:     markethours.AlwaysOpenSession,
	}
	h := newHarness(t, []model.Symbol{us, btc}, sessions, longEntry)

	rep := h.s.RunCycle(context.Background())
	if rep.Errors != 1 || rep.Signals != 1 || rep.Symbols != 2 {
		t.Errorf("report = %+v", rep)
	}
	if len(h.rec.cycles) != 1 {
		t.Errorf("cycle not recorded despite failure")
	}
}

func TestRunCycle_PersistFailureKeepsFlat(t *testing.T) {
	h := newHarness(t, []model.Symbol{btc}, cryptoTbl, longEntry)
	h.rec.failOpen = true

	rep := h.s.RunCycle(context.Background())
	if rep.Errors != 1 || rep.Rejected != 0 || rep.Accepted != 0 {
		t.Errorf("report = %+v", rep)
	}
	if len(h.led.Positions()) != 0 {
		t.Error("ledger advanced without persistence")
	}
	if p := h.acct.Snapshot(); p.AvailableBalance != 1000 || p.UsedBalance != 0 {
		t.Errorf("capital leaked: %+v", p)
	}
}

func TestRunCycle_SignalWriteFailureReleasesDedup(t *testing.T) {
	h := newHarness(t, []model.Symbol{btc}, cryptoTbl, longEntry, longEntry)
	h.rec.failSigs = true
	if rep := h.s.RunCycle(context.Background()); rep.Errors != 1 {
		t.Fatalf("report = %+v", rep)
	}

	h.rec.failSigs = false
	h.now = t0.Add(time.Minute)
	rep := h.s.RunCycle(context.Background())
	if rep.Accepted != 1 {
		t.Errorf("retry after failed write was deduplicated: %+v", rep)
	}
}

func TestRunCycle_TradeWriteFailureRetriedNextCycle(t *testing.T) {
	h := newHarness(t, []model.Symbol{btc}, cryptoTbl, longEntry, longEntry)
	h.rec.failOpen = true
	if rep := h.s.RunCycle(context.Background()); rep.Errors != 1 || rep.Accepted != 0 {
		t.Fatalf("failed cycle = %+v", rep)
	}

	h.rec.failOpen = false
	h.now = t0.Add(time.Minute)
	rep := h.s.RunCycle(context.Background())
	if rep.Accepted != 1 || rep.Rejected != 0 {
		t.Errorf("retry cycle = %+v", rep)
	}
	if len(h.led.Positions()) != 1 || len(h.rec.open) != 1 {
		t.Errorf("positions = %d in ledger, %d in store", len(h.led.Positions()), len(h.rec.open))
	}
}

func TestRunCycle_CloseWriteFailureRetriedNextCycle(t *testing.T) {
	h := newHarness(t, []model.Symbol{btc}, cryptoTbl, longEntry, longExit, longExit)
	h.s.RunCycle(context.Background())

	h.rec.failClose = true
	h.now = t0.Add(time.Minute)
	if rep := h.s.RunCycle(context.Background()); rep.Errors != 1 || rep.Accepted != 0 {
		t.Fatalf("failed exit cycle = %+v", rep)
	}
	key := model.PositionKey{Symbol: "BTCUSDT", Strategy: model.StrategyMomentum}
	if h.led.State(key) != model.DirectionLong {
		t.Fatalf("position closed in memory without persistence")
	}

	h.rec.failClose = false
	h.now = t0.Add(2 * time.Minute)
	rep := h.s.RunCycle(context.Background())
	if rep.Accepted != 1 || len(h.rec.closed) != 1 {
		t.Errorf("retry cycle = %+v, closed %d", rep, len(h.rec.closed))
	}
	if h.led.State(key) != model.DirectionFlat {
		t.Errorf("state = %s after retried exit", h.led.State(key))
	}
}

func TestRunCycle_SessionClosedSkipsFetch(t *testing.T) {
	bist := model.Symbol{Name: "THYAO", Market: model.MarketBIST}
	session, err := markethours.NewSession("UTC", "06:00", "11:59", "12:00", true)
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, []model.Symbol{bist}, markethours.Table{model.MarketBIST: session}, longEntry)
	h.ev.gated = true
	h.now = time.Date(2026, 3, 4, 14, 0, 0, 0, time.UTC)

	rep := h.s.RunCycle(context.Background())
	if rep.Skipped != 1 || rep.Signals != 0 {
		t.Errorf("report = %+v", rep)
	}
	if n := h.fetch.calls.Load(); n != 0 {
		t.Errorf("fetched %d times for a closed session", n)
	}
}

func TestRunCycle_HeartbeatWritten(t *testing.T) {
	h := newHarness(t, []model.Symbol{btc}, cryptoTbl)
	h.s.RunCycle(context.Background())

	b, err := heartbeat.Load(h.s.Config.Heartbeat.File)
	if err != nil {
		t.Fatal(err)
	}
	if !b.LastScan.Equal(t0) || b.Symbols != 1 {
		t.Errorf("heartbeat = %+v", b)
	}
}

func TestRunCycle_StopRequested(t *testing.T) {
	h := newHarness(t, []model.Symbol{btc}, cryptoTbl, longEntry)
	h.s.stopping.Store(true)

	rep := h.s.RunCycle(context.Background())
	if !rep.Stopped || rep.Units != 0 {
		t.Errorf("report = %+v", rep)
	}
	if len(h.rec.cycles) != 0 {
		t.Error("stopped cycle recorded a heartbeat")
	}
	if h.s.State() != Idle {
		t.Errorf("state = %s", h.s.State())
	}
}

func TestRestore(t *testing.T) {
	h := newHarness(t, []model.Symbol{btc}, cryptoTbl, longEntry)
	h.s.RunCycle(context.Background())

	// A fresh process over the same store.
	acct := portfolio.NewAccountant(1000, 50, 5)
	led := ledger.New(h.rec, acct, zerolog.Nop())
	g := gate.New(gate.NewMemoryWindow(10*time.Minute), zerolog.Nop())
	s := NewScheduler(context.Background(), Deps{
		Config: h.s.Config, Universe: collector.StaticUniverse{btc},
		Collector: h.s.Collector, Evaluators: nil, Sessions: cryptoTbl,
		Gate: g, Ledger: led, Accountant: acct, Recorder: h.rec,
		Logger: zerolog.Nop(), Now: func() time.Time { return t0.Add(time.Minute) },
	})
	if err := s.Restore(context.Background()); err != nil {
		t.Fatal(err)
	}
	key := model.PositionKey{Symbol: "BTCUSDT", Strategy: model.StrategyMomentum}
	if led.State(key) != model.DirectionLong {
		t.Error("position not restored")
	}
	if p := acct.Snapshot(); p.UsedBalance != 50 {
		t.Errorf("portfolio not restored: %+v", p)
	}
	sig := model.Signal{Symbol: "BTCUSDT", Strategy: model.StrategyMomentum, Kind: model.SignalLongExit, Timestamp: t0.Add(time.Minute)}
	if d := g.Admit(context.Background(), sig, model.DirectionLong); !d.Accepted {
		t.Errorf("unrelated kind rejected: %+v", d)
	}
	sig.Kind = model.SignalLongEntry
	if d := g.Admit(context.Background(), sig, model.DirectionFlat); d.Reason != gate.ReasonDuplicate {
		t.Errorf("seeded entry not deduplicated: %+v", d)
	}
}

func TestRestore_ReconcilesStaleSnapshot(t *testing.T) {
	rec := newMemRecorder()
	open := model.Position{Symbol: "BTCUSDT", Market: model.MarketCrypto, Strategy: model.StrategyMomentum,
		Direction: model.DirectionLong, EntryPrice: 100, EntryTime: t0, PositionSize: 50, Leverage: 5}
	rec.open[open.Key()] = open
	rec.closed = []model.ClosedTrade{{ID: "t1", Symbol: "ETHUSDT", Strategy: model.StrategyMomentum, PnLUSD: 25, PositionSize: 50}}
	// Written before either trade reached the store.
	rec.portfolio = &model.Portfolio{InitialBalance: 1000, TotalBalance: 1000, AvailableBalance: 1000}

	acct := portfolio.NewAccountant(1000, 50, 5)
	s := NewScheduler(context.Background(), Deps{
		Config: config.Default(), Universe: collector.StaticUniverse{btc}, Sessions: cryptoTbl,
		Gate:   gate.New(gate.NewMemoryWindow(10*time.Minute), zerolog.Nop()),
		Ledger: ledger.New(rec, acct, zerolog.Nop()), Accountant: acct, Recorder: rec,
		Logger: zerolog.Nop(), Now: func() time.Time { return t0 },
	})
	if err := s.Restore(context.Background()); err != nil {
		t.Fatal(err)
	}

	p := acct.Snapshot()
	if p.UsedBalance != 50 || p.TotalBalance != 1025 || p.AvailableBalance != 975 || p.TotalPnL != 25 {
		t.Errorf("portfolio = %+v", p)
	}
	if rec.portfolio.UsedBalance != 50 || rec.portfolio.TotalBalance != 1025 {
		t.Errorf("reconciled snapshot not saved: %+v", rec.portfolio)
	}
	if _, err := acct.Allocate(980); !errors.Is(err, portfolio.ErrInsufficientCapital) {
		t.Errorf("allocation beyond available capital: err = %v", err)
	}
}

func TestRestore_RejectedSnapshotRebuiltFromTrades(t *testing.T) {
	rec := newMemRecorder()
	rec.closed = []model.ClosedTrade{{ID: "t1", Symbol: "ETHUSDT", Strategy: model.StrategyMomentum, PnLUSD: -10, PositionSize: 50}}
	rec.portfolio = &model.Portfolio{InitialBalance: 1000, TotalBalance: 1200, AvailableBalance: 1200}

	acct := portfolio.NewAccountant(1000, 50, 5)
	s := NewScheduler(context.Background(), Deps{
		Config: config.Default(), Universe: collector.StaticUniverse{btc}, Sessions: cryptoTbl,
		Gate:   gate.New(gate.NewMemoryWindow(10*time.Minute), zerolog.Nop()),
		Ledger: ledger.New(rec, acct, zerolog.Nop()), Accountant: acct, Recorder: rec,
		Logger: zerolog.Nop(), Now: func() time.Time { return t0 },
	})
	if err := s.Restore(context.Background()); err != nil {
		t.Fatal(err)
	}
	if p := acct.Snapshot(); p.TotalBalance != 990 || p.AvailableBalance != 990 || p.UsedBalance != 0 {
		t.Errorf("portfolio = %+v", p)
	}
}

func TestCleanup(t *testing.T) {
	h := newHarness(t, []model.Symbol{btc}, cryptoTbl)
	if _, err := h.s.Cleanup(context.Background(), 7*24*time.Hour); err != nil {
		t.Fatal(err)
	}
}
