package main

import (
	"context"
	"fmt"
	"io"

	"SignalScanner/internal/collector"
	"SignalScanner/internal/config"
	"SignalScanner/internal/gate"
	"SignalScanner/internal/ledger"
	"SignalScanner/internal/logging"
	"SignalScanner/internal/metrics"
	"SignalScanner/internal/model"
	"SignalScanner/internal/notifier"
	"SignalScanner/internal/portfolio"
	"SignalScanner/internal/recorder"
	"SignalScanner/internal/scheduler"
	"SignalScanner/internal/strategy"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// app holds the wired scanner and everything it owns.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	rec      *recorder.SQLiteRecorder
	registry *prometheus.Registry
	sched    *scheduler.Scheduler
	telegram *notifier.TelegramNotifier

	closers []io.Closer
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// openStore opens the configured database with a logger of its own. It is
// all the read-only commands need.
func openStore(cfg *config.Config) (*recorder.SQLiteRecorder, zerolog.Logger, io.Closer, error) {
	log, logCloser := logging.New(cfg.Logging)
	rec, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
	if err != nil {
		logCloser.Close()
		return nil, log, nil, fmt.Errorf("open database: %w", err)
	}
	return rec, log, logCloser, nil
}

// newApp wires the full pipeline and restores persisted state. Jobs run with
// ctx as their parent.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	rec, log, logCloser, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, rec: rec, closers: []io.Closer{logCloser}}

	sessions, err := cfg.SessionTable()
	if err != nil {
		a.Close()
		return nil, err
	}

	window, err := a.dedupWindow(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	binance := collector.NewBinanceFetcher(cfg.DataSource.BinanceURL, cfg.Proxy)
	yahoo := collector.NewYahooFetcher(cfg.DataSource.YahooURL, cfg.Proxy)
	router := collector.NewMarketRouter(map[model.MarketClass]collector.Fetcher{
		model.MarketCrypto: binance,
		model.MarketBIST:   yahoo,
		model.MarketUS:     yahoo,
	})

	var universe collector.Universe = collector.StaticUniverse(cfg.Universe.Symbols)
	if cfg.Universe.Source == "binance" {
		universe = &collector.ExchangeUniverse{
			Lister:   binance,
			Quote:    cfg.Universe.Quote,
			Limit:    cfg.Universe.Limit,
			Fallback: cfg.Universe.Symbols,
			Log:      log.With().Str("component", "universe").Logger(),
		}
	}

	var notify notifier.Notifier = notifier.Noop{}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != "" {
		a.telegram = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
		notify = a.telegram
	}

	acct := portfolio.NewAccountant(cfg.Portfolio.InitialBalance, cfg.Portfolio.PositionSize, cfg.Portfolio.Leverage)
	a.registry = prometheus.NewRegistry()

	a.sched = scheduler.NewScheduler(ctx, scheduler.Deps{
		Config:     cfg,
		Universe:   universe,
		Collector:  collector.NewCollector(router),
		Evaluators: strategy.FromConfig(cfg.Strategies),
		Sessions:   sessions,
		Gate:       gate.New(window, log),
		Ledger:     ledger.New(rec, acct, log),
		Accountant: acct,
		Recorder:   rec,
		Notifier:   notify,
		Metrics:    metrics.NewMetrics(a.registry),
		Logger:     log,
	})
	if err := a.sched.Restore(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("restore state: %w", err)
	}
	return a, nil
}

func (a *app) dedupWindow(ctx context.Context) (gate.Window, error) {
	if a.cfg.Gate.RedisAddr == "" {
		return gate.NewMemoryWindow(a.cfg.Gate.DedupWindow), nil
	}
	rdb, err := gate.DialRedis(ctx, a.cfg.Gate.RedisAddr, a.cfg.Gate.RedisPassword, a.cfg.Gate.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	a.closers = append(a.closers, rdb)
	a.log.Info().Str("addr", a.cfg.Gate.RedisAddr).Msg("dedup window backed by redis")
	return gate.NewRedisWindow(rdb, a.cfg.Gate.DedupWindow), nil
}

// Close releases the database, redis and log file in reverse order.
func (a *app) Close() {
	if a.rec != nil {
		if err := a.rec.Close(); err != nil {
			a.log.Warn().Err(err).Msg("close database")
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i].Close()
	}
}
