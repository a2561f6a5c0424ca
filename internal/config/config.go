package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"SignalScanner/internal/markethours"
	"SignalScanner/internal/model"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration. It is loaded once at startup
// and passed by pointer; nothing mutates it afterwards.
type Config struct {
	Scanner    ScannerConfig                       `yaml:"scanner"`
	Universe   UniverseConfig                      `yaml:"universe"`
	DataSource DataSourceConfig                    `yaml:"data_source"`
	Strategies StrategiesConfig                    `yaml:"strategies"`
	Gate       GateConfig                          `yaml:"gate"`
	Portfolio  PortfolioConfig                     `yaml:"portfolio"`
	Sessions   map[model.MarketClass]SessionConfig `yaml:"sessions"`
	Database   DatabaseConfig                      `yaml:"database"`
	Heartbeat  HeartbeatConfig                     `yaml:"heartbeat"`
	API        APIConfig                           `yaml:"api"`
	Telegram   TelegramConfig                      `yaml:"telegram"`
	Logging    LoggingConfig                       `yaml:"logging"`
	Proxy      string                              `yaml:"proxy"`
}

type ScannerConfig struct {
	Interval     time.Duration `yaml:"interval"`
	Workers      int           `yaml:"workers"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	RunOnStart   bool          `yaml:"run_on_start"`
}

// UniverseConfig selects the symbols scanned each cycle. Source "binance"
// lists every trading pair quoted in Quote and falls back to Symbols.
type UniverseConfig struct {
	Source  string         `yaml:"source"`
	Quote   string         `yaml:"quote"`
	Limit   int            `yaml:"limit"`
	Symbols []model.Symbol `yaml:"symbols"`
}

type DataSourceConfig struct {
	BinanceURL string `yaml:"binance_url"`
	YahooURL   string `yaml:"yahoo_url"`
}

type StrategiesConfig struct {
	Momentum MomentumConfig `yaml:"momentum"`
	Swing    SwingConfig    `yaml:"swing"`
}

// MomentumConfig parameterizes the intraday VWAP/ADX/RSI strategy.
type MomentumConfig struct {
	Enabled          bool          `yaml:"enabled"`
	Timeframe        string        `yaml:"timeframe"`
	Bars             int           `yaml:"bars"`
	ADXLength        int           `yaml:"adx_length"`
	ADXLevel         float64       `yaml:"adx_level"`
	RSILength        int           `yaml:"rsi_length"`
	RSIBuy           float64       `yaml:"rsi_buy"`
	RSISell          float64       `yaml:"rsi_sell"`
	ATRLength        int           `yaml:"atr_length"`
	StopMultiplier   float64       `yaml:"stop_multiplier"`
	TargetMultiplier float64       `yaml:"target_multiplier"`
	EnforceStops     bool          `yaml:"enforce_stops"`
	Quality          QualityConfig `yaml:"quality"`
}

// QualityConfig enables the entry score filter.
type QualityConfig struct {
	Enabled  bool    `yaml:"enabled"`
	MinScore float64 `yaml:"min_score"`
}

// SwingConfig parameterizes the trend-following Fibonacci pullback strategy.
type SwingConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Timeframe        string  `yaml:"timeframe"`
	Bars             int     `yaml:"bars"`
	MinHistory       int     `yaml:"min_history"`
	SMAFast          int     `yaml:"sma_fast"`
	SMASlow          int     `yaml:"sma_slow"`
	RSILength        int     `yaml:"rsi_length"`
	ATRLength        int     `yaml:"atr_length"`
	RSIOversold      float64 `yaml:"rsi_oversold"`
	RSIMomentum      float64 `yaml:"rsi_momentum"`
	RSIOverbought    float64 `yaml:"rsi_overbought"`
	RetraceLookback  int     `yaml:"retrace_lookback"`
	RetraceMin       float64 `yaml:"retrace_min"`
	RetraceMax       float64 `yaml:"retrace_max"`
	FibTolerance     float64 `yaml:"fib_tolerance"`
	SwingWindow      int     `yaml:"swing_window"`
	StopMultiplier   float64 `yaml:"stop_multiplier"`
	TargetMultiplier float64 `yaml:"target_multiplier"`
}

type GateConfig struct {
	DedupWindow   time.Duration `yaml:"dedup_window"`
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
}

type PortfolioConfig struct {
	InitialBalance float64 `yaml:"initial_balance"`
	PositionSize   float64 `yaml:"position_size"`
	Leverage       float64 `yaml:"leverage"`
}

// SessionConfig is the trading-hours entry for one market class.
type SessionConfig struct {
	AlwaysOpen   bool   `yaml:"always_open"`
	Timezone     string `yaml:"timezone"`
	EntryStart   string `yaml:"entry_start"`
	EntryEnd     string `yaml:"entry_end"`
	SquareOff    string `yaml:"square_off"`
	WeekdaysOnly bool   `yaml:"weekdays_only"`
}

type DatabaseConfig struct {
	SQLitePath      string        `yaml:"sqlite_path"`
	SignalRetention time.Duration `yaml:"signal_retention"`
	RetentionCron   string        `yaml:"retention_cron"`
}

type HeartbeatConfig struct {
	File       string        `yaml:"file"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

type APIConfig struct {
	Addr         string        `yaml:"addr"`
	FeedInterval time.Duration `yaml:"feed_interval"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Console    bool   `yaml:"console"`
	File       bool   `yaml:"file"`
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
}

// Default returns the configuration used when no file or override sets a value.
func Default() *Config {
	return &Config{
		Scanner: ScannerConfig{
			Interval:     60 * time.Second,
			Workers:      8,
			FetchTimeout: 20 * time.Second,
		},
		Universe: UniverseConfig{
			Source: "static",
			Quote:  "USDT",
			Symbols: []model.Symbol{
				{Name: "BTCUSDT", Market: model.MarketCrypto},
				{Name: "ETHUSDT", Market: model.MarketCrypto},
				{Name: "BNBUSDT", Market: model.MarketCrypto},
			},
		},
		DataSource: DataSourceConfig{
			BinanceURL: "https://api.binance.com",
			YahooURL:   "https://query1.finance.yahoo.com",
		},
		Strategies: StrategiesConfig{
			Momentum: MomentumConfig{
				Enabled:          true,
				Timeframe:        "15m",
				Bars:             100,
				ADXLength:        20,
				ADXLevel:         30,
				RSILength:        14,
				RSIBuy:           55,
				RSISell:          35,
				ATRLength:        14,
				StopMultiplier:   2.5,
				TargetMultiplier: 7.5,
				Quality:          QualityConfig{MinScore: 80},
			},
			Swing: SwingConfig{
				Enabled:          true,
				Timeframe:        "1h",
				Bars:             500,
				MinHistory:       50,
				SMAFast:          50,
				SMASlow:          200,
				RSILength:        14,
				ATRLength:        14,
				RSIOversold:      40,
				RSIMomentum:      50,
				RSIOverbought:    70,
				RetraceLookback:  20,
				RetraceMin:       0.05,
				RetraceMax:       0.15,
				FibTolerance:     0.02,
				SwingWindow:      5,
				StopMultiplier:   3.0,
				TargetMultiplier: 7.5,
			},
		},
		Gate: GateConfig{DedupWindow: 10 * time.Minute},
		Portfolio: PortfolioConfig{
			InitialBalance: 1000,
			PositionSize:   50,
			Leverage:       5,
		},
		Sessions: map[model.MarketClass]SessionConfig{
			model.MarketCrypto: {AlwaysOpen: true},
			model.MarketBIST: {
				Timezone: "UTC", EntryStart: "06:00", EntryEnd: "11:59", SquareOff: "12:00", WeekdaysOnly: true,
			},
			model.MarketUS: {
				Timezone: "America/New_York", EntryStart: "09:30", EntryEnd: "15:30", SquareOff: "15:45", WeekdaysOnly: true,
			},
		},
		Database: DatabaseConfig{
			SQLitePath:      "data/scanner.db",
			SignalRetention: 7 * 24 * time.Hour,
			RetentionCron:   "0 0 3 * * *",
		},
		Heartbeat: HeartbeatConfig{File: "data/heartbeat.json"},
		API:       APIConfig{Addr: ":8000", FeedInterval: 5 * time.Second},
		Logging: LoggingConfig{
			Level:      "info",
			Console:    true,
			FilePath:   "logs/scanner.log",
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     30,
		},
	}
}

// Load reads config from a YAML file over the defaults, then applies
// environment variable overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Gate.RedisAddr = v
	}
	if v := os.Getenv("API_ADDR"); v != "" {
		cfg.API.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SCAN_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("parse SCAN_INTERVAL: %w", err)
		}
		cfg.Scanner.Interval = d
	}
	if v := os.Getenv("POSITION_SIZE"); v != "" {
		size, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse POSITION_SIZE: %w", err)
		}
		cfg.Portfolio.PositionSize = size
	}
	if v := os.Getenv("LEVERAGE"); v != "" {
		lev, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("parse LEVERAGE: %w", err)
		}
		cfg.Portfolio.Leverage = lev
	}
	if os.Getenv("RUN_ON_START") == "true" {
		cfg.Scanner.RunOnStart = true
	}

	// Defaults that depend on other fields
	if cfg.Heartbeat.StaleAfter == 0 {
		cfg.Heartbeat.StaleAfter = 2 * cfg.Scanner.Interval
		if cfg.Heartbeat.StaleAfter < 2*time.Minute {
			cfg.Heartbeat.StaleAfter = 2 * time.Minute
		}
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Scanner.Interval <= 0 {
		return fmt.Errorf("scanner.interval must be positive")
	}
	if c.Scanner.Workers < 1 {
		return fmt.Errorf("scanner.workers must be at least 1")
	}
	if c.Scanner.FetchTimeout <= 0 {
		return fmt.Errorf("scanner.fetch_timeout must be positive")
	}
	switch c.Universe.Source {
	case "static":
		if len(c.Universe.Symbols) == 0 {
			return fmt.Errorf("universe.symbols is required for a static universe")
		}
	case "binance":
		if c.Universe.Quote == "" {
			return fmt.Errorf("universe.quote is required for a binance universe")
		}
	default:
		return fmt.Errorf("universe.source %q is not supported", c.Universe.Source)
	}
	for _, s := range c.Universe.Symbols {
		if s.Name == "" {
			return fmt.Errorf("universe.symbols: empty symbol")
		}
		if _, ok := c.Sessions[s.Market]; !ok {
			return fmt.Errorf("universe.symbols: %s has no session for market %q", s.Name, s.Market)
		}
	}
	if _, err := c.SessionTable(); err != nil {
		return err
	}
	if !c.Strategies.Momentum.Enabled && !c.Strategies.Swing.Enabled {
		return fmt.Errorf("at least one strategy must be enabled")
	}
	if err := c.Strategies.Momentum.validate(); err != nil {
		return fmt.Errorf("strategies.momentum: %w", err)
	}
	if err := c.Strategies.Swing.validate(); err != nil {
		return fmt.Errorf("strategies.swing: %w", err)
	}
	if c.Gate.DedupWindow <= 0 {
		return fmt.Errorf("gate.dedup_window must be positive")
	}
	if c.Portfolio.PositionSize <= 0 {
		return fmt.Errorf("portfolio.position_size must be positive")
	}
	if c.Portfolio.Leverage < 1 {
		return fmt.Errorf("portfolio.leverage must be at least 1")
	}
	if c.Portfolio.InitialBalance < 0 {
		return fmt.Errorf("portfolio.initial_balance must not be negative")
	}
	if c.Database.SignalRetention < 0 {
		return fmt.Errorf("database.signal_retention must not be negative")
	}
	return nil
}

func (m MomentumConfig) validate() error {
	if !m.Enabled {
		return nil
	}
	if m.Bars <= 0 || m.ADXLength <= 0 || m.RSILength <= 0 || m.ATRLength <= 0 {
		return fmt.Errorf("bars and indicator lengths must be positive")
	}
	if m.Bars < 2*m.ADXLength {
		return fmt.Errorf("bars %d too short for adx_length %d", m.Bars, m.ADXLength)
	}
	if m.StopMultiplier <= 0 || m.TargetMultiplier <= 0 {
		return fmt.Errorf("stop and target multipliers must be positive")
	}
	if m.Timeframe == "" {
		return fmt.Errorf("timeframe is required")
	}
	return nil
}

func (s SwingConfig) validate() error {
	if !s.Enabled {
		return nil
	}
	if s.Bars <= 0 || s.SMAFast <= 0 || s.SMASlow <= 0 || s.RSILength <= 0 || s.ATRLength <= 0 {
		return fmt.Errorf("bars and indicator lengths must be positive")
	}
	if s.SMAFast >= s.SMASlow {
		return fmt.Errorf("sma_fast must be shorter than sma_slow")
	}
	if s.Bars <= s.SMASlow {
		return fmt.Errorf("bars %d too short for sma_slow %d", s.Bars, s.SMASlow)
	}
	if s.RetraceMin < 0 || s.RetraceMax <= s.RetraceMin {
		return fmt.Errorf("retrace range [%v, %v] is invalid", s.RetraceMin, s.RetraceMax)
	}
	if s.SwingWindow < 3 {
		return fmt.Errorf("swing_window must be at least 3")
	}
	if s.StopMultiplier <= 0 || s.TargetMultiplier <= 0 {
		return fmt.Errorf("stop and target multipliers must be positive")
	}
	if s.Timeframe == "" {
		return fmt.Errorf("timeframe is required")
	}
	return nil
}

// SessionTable builds the trading-hours table from the sessions section.
func (c *Config) SessionTable() (markethours.Table, error) {
	table := make(markethours.Table, len(c.Sessions))
	for market, sc := range c.Sessions {
		if sc.AlwaysOpen {
			table[market] = markethours.AlwaysOpenSession
			continue
		}
		tz := sc.Timezone
		if tz == "" {
			tz = "UTC"
		}
		s, err := markethours.NewSession(tz, sc.EntryStart, sc.EntryEnd, sc.SquareOff, sc.WeekdaysOnly)
		if err != nil {
			return nil, fmt.Errorf("sessions.%s: %w", market, err)
		}
		table[market] = s
	}
	return table, nil
}
