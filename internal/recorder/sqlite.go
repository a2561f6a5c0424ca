package recorder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"SignalScanner/internal/model"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists signals, trades, and portfolio state to SQLite.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger zerolog.Logger) (*SQLiteRecorder, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode lets the API read while the scanner writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: logger.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id          TEXT PRIMARY KEY,
			timestamp   INTEGER NOT NULL,
			symbol      TEXT NOT NULL,
			market      TEXT NOT NULL,
			strategy    TEXT NOT NULL,
			kind        TEXT NOT NULL,
			message     TEXT,
			price       REAL,
			close       REAL,
			rsi         REAL,
			adx         REAL,
			vwap        REAL,
			atr         REAL,
			sma_fast    REAL,
			sma_slow    REAL,
			exit_reason TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_timestamp ON signals(timestamp)`,
		`CREATE TABLE IF NOT EXISTS open_trades (
			symbol        TEXT NOT NULL,
			strategy      TEXT NOT NULL,
			market        TEXT NOT NULL,
			direction     TEXT NOT NULL,
			entry_price   REAL NOT NULL,
			entry_time    INTEGER NOT NULL,
			atr_at_entry  REAL,
			stop_loss     REAL,
			take_profit   REAL,
			position_size REAL NOT NULL,
			leverage      REAL NOT NULL,
			PRIMARY KEY (symbol, strategy)
		)`,
		`CREATE TABLE IF NOT EXISTS closed_trades (
			id            TEXT PRIMARY KEY,
			symbol        TEXT NOT NULL,
			market        TEXT NOT NULL,
			strategy      TEXT NOT NULL,
			direction     TEXT NOT NULL,
			entry_price   REAL NOT NULL,
			entry_time    INTEGER NOT NULL,
			exit_price    REAL NOT NULL,
			exit_time     INTEGER NOT NULL,
			pnl_percent   REAL NOT NULL,
			pnl_usd       REAL NOT NULL,
			position_size REAL NOT NULL,
			leverage      REAL NOT NULL,
			exit_reason   TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_trades_exit_time ON closed_trades(exit_time)`,
		`CREATE TABLE IF NOT EXISTS portfolio (
			id                INTEGER PRIMARY KEY CHECK (id = 1),
			initial_balance   REAL NOT NULL,
			total_balance     REAL NOT NULL,
			available_balance REAL NOT NULL,
			used_balance      REAL NOT NULL,
			total_pnl         REAL NOT NULL,
			updated_at        INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS scan_cycles (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			symbols     INTEGER,
			units       INTEGER,
			skipped     INTEGER,
			signals     INTEGER,
			accepted    INTEGER,
			rejected    INTEGER,
			errors      INTEGER,
			stopped     INTEGER
		)`,
	}
	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordSignal(ctx context.Context, sig *model.Signal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ind := sig.Indicators
	_, err := r.db.ExecContext(ctx, `INSERT INTO signals
		(id, timestamp, symbol, market, strategy, kind, message, price,
		 close, rsi, adx, vwap, atr, sma_fast, sma_slow, exit_reason)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		sig.ID, sig.Timestamp.UnixMilli(), sig.Symbol, string(sig.Market), string(sig.Strategy),
		string(sig.Kind), sig.Message, sig.Price,
		ind.Close, ind.RSI, ind.ADX, ind.VWAP, ind.ATR, ind.SMAFast, ind.SMASlow,
		string(sig.ExitReason),
	)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// RecentSignals returns signals at or after since, newest first.
func (r *SQLiteRecorder) RecentSignals(ctx context.Context, since time.Time, limit int) ([]model.Signal, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, timestamp, symbol, market, strategy, kind, message, price,
		close, rsi, adx, vwap, atr, sma_fast, sma_slow, exit_reason
		FROM signals WHERE timestamp >= ? ORDER BY timestamp DESC LIMIT ?`,
		since.UnixMilli(), limit)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []model.Signal
	for rows.Next() {
		var (
			s                            model.Signal
			ts                           int64
			market, strategy, kind, exit string
			message                      sql.NullString
		)
		if err := rows.Scan(&s.ID, &ts, &s.Symbol, &market, &strategy, &kind, &message, &s.Price,
			&s.Indicators.Close, &s.Indicators.RSI, &s.Indicators.ADX, &s.Indicators.VWAP,
			&s.Indicators.ATR, &s.Indicators.SMAFast, &s.Indicators.SMASlow, &exit); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		s.Timestamp = time.UnixMilli(ts).UTC()
		s.Market = model.MarketClass(market)
		s.Strategy = model.StrategyKind(strategy)
		s.Kind = model.SignalKind(kind)
		s.Message = message.String
		s.ExitReason = model.ExitReason(exit)
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneSignals deletes signals older than before and reports how many went.
func (r *SQLiteRecorder) PruneSignals(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, err := r.db.ExecContext(ctx, `DELETE FROM signals WHERE timestamp < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune signals: %w", err)
	}
	return res.RowsAffected()
}

// OpenTrade inserts the open position. A second open for the same
// (symbol, strategy) fails on the primary key.
func (r *SQLiteRecorder) OpenTrade(ctx context.Context, pos *model.Position) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.ExecContext(ctx, `INSERT INTO open_trades
		(symbol, strategy, market, direction, entry_price, entry_time,
		 atr_at_entry, stop_loss, take_profit, position_size, leverage)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		pos.Symbol, string(pos.Strategy), string(pos.Market), string(pos.Direction),
		pos.EntryPrice, pos.EntryTime.UnixMilli(),
		pos.ATRAtEntry, pos.StopLoss, pos.TakeProfit, pos.PositionSize, pos.Leverage,
	)
	if err != nil {
		return fmt.Errorf("insert open trade: %w", err)
	}
	return nil
}

// CloseTrade moves a position from open_trades to closed_trades atomically.
func (r *SQLiteRecorder) CloseTrade(ctx context.Context, tr *model.ClosedTrade) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin close trade: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM open_trades WHERE symbol = ? AND strategy = ?`,
		tr.Symbol, string(tr.Strategy))
	if err != nil {
		return fmt.Errorf("delete open trade: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("delete open trade: %w", err)
	} else if n == 0 {
		return fmt.Errorf("close %s/%s: %w", tr.Symbol, tr.Strategy, ErrNoOpenTrade)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO closed_trades
		(id, symbol, market, strategy, direction, entry_price, entry_time,
		 exit_price, exit_time, pnl_percent, pnl_usd, position_size, leverage, exit_reason)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		tr.ID, tr.Symbol, string(tr.Market), string(tr.Strategy), string(tr.Direction),
		tr.EntryPrice, tr.EntryTime.UnixMilli(), tr.ExitPrice, tr.ExitTime.UnixMilli(),
		tr.PnLPercent, tr.PnLUSD, tr.PositionSize, tr.Leverage, string(tr.ExitReason),
	); err != nil {
		return fmt.Errorf("insert closed trade: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit close trade: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) PositionState(ctx context.Context, key model.PositionKey) (model.Direction, error) {
	var dir string
	err := r.db.QueryRowContext(ctx, `SELECT direction FROM open_trades WHERE symbol = ? AND strategy = ?`,
		key.Symbol, string(key.Strategy)).Scan(&dir)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DirectionFlat, nil
	}
	if err != nil {
		return "", fmt.Errorf("query position state: %w", err)
	}
	return model.Direction(dir), nil
}

func (r *SQLiteRecorder) OpenPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT symbol, strategy, market, direction, entry_price, entry_time,
		atr_at_entry, stop_loss, take_profit, position_size, leverage
		FROM open_trades ORDER BY entry_time`)
	if err != nil {
		return nil, fmt.Errorf("query open trades: %w", err)
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		var (
			p                           model.Position
			strategy, market, direction string
			entry                       int64
		)
		if err := rows.Scan(&p.Symbol, &strategy, &market, &direction, &p.EntryPrice, &entry,
			&p.ATRAtEntry, &p.StopLoss, &p.TakeProfit, &p.PositionSize, &p.Leverage); err != nil {
			return nil, fmt.Errorf("scan open trade: %w", err)
		}
		p.Strategy = model.StrategyKind(strategy)
		p.Market = model.MarketClass(market)
		p.Direction = model.Direction(direction)
		p.EntryTime = time.UnixMilli(entry).UTC()
		out = append(out, p)
	}
	return out, rows.Err()
}

// ClosedTrades returns the most recent closed trades, newest exit first.
func (r *SQLiteRecorder) ClosedTrades(ctx context.Context, limit int) ([]model.ClosedTrade, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `SELECT id, symbol, market, strategy, direction, entry_price, entry_time,
		exit_price, exit_time, pnl_percent, pnl_usd, position_size, leverage, exit_reason
		FROM closed_trades ORDER BY exit_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query closed trades: %w", err)
	}
	defer rows.Close()

	var out []model.ClosedTrade
	for rows.Next() {
		var (
			t                                   model.ClosedTrade
			market, strategy, direction, reason string
			entry, exit                         int64
		)
		if err := rows.Scan(&t.ID, &t.Symbol, &market, &strategy, &direction, &t.EntryPrice, &entry,
			&t.ExitPrice, &exit, &t.PnLPercent, &t.PnLUSD, &t.PositionSize, &t.Leverage, &reason); err != nil {
			return nil, fmt.Errorf("scan closed trade: %w", err)
		}
		t.Market = model.MarketClass(market)
		t.Strategy = model.StrategyKind(strategy)
		t.Direction = model.Direction(direction)
		t.ExitReason = model.ExitReason(reason)
		t.EntryTime = time.UnixMilli(entry).UTC()
		t.ExitTime = time.UnixMilli(exit).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// RealizedPnL is the sum of pnl over every closed trade.
func (r *SQLiteRecorder) RealizedPnL(ctx context.Context) (float64, error) {
	var pnl float64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(pnl_usd), 0) FROM closed_trades`).Scan(&pnl); err != nil {
		return 0, fmt.Errorf("sum realized pnl: %w", err)
	}
	return pnl, nil
}

// LoadPortfolio returns the saved snapshot, or nil when none was saved yet.
func (r *SQLiteRecorder) LoadPortfolio(ctx context.Context) (*model.Portfolio, error) {
	var (
		p       model.Portfolio
		updated int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT initial_balance, total_balance, available_balance,
		used_balance, total_pnl, updated_at FROM portfolio WHERE id = 1`).
		Scan(&p.InitialBalance, &p.TotalBalance, &p.AvailableBalance, &p.UsedBalance, &p.TotalPnL, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query portfolio: %w", err)
	}
	p.UpdatedAt = time.UnixMilli(updated).UTC()
	return &p, nil
}

func (r *SQLiteRecorder) SavePortfolio(ctx context.Context, p *model.Portfolio) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.ExecContext(ctx, `INSERT INTO portfolio
		(id, initial_balance, total_balance, available_balance, used_balance, total_pnl, updated_at)
		VALUES (1,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			initial_balance = excluded.initial_balance,
			total_balance = excluded.total_balance,
			available_balance = excluded.available_balance,
			used_balance = excluded.used_balance,
			total_pnl = excluded.total_pnl,
			updated_at = excluded.updated_at`,
		p.InitialBalance, p.TotalBalance, p.AvailableBalance, p.UsedBalance, p.TotalPnL, p.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("save portfolio: %w", err)
	}
	return nil
}

func (r *SQLiteRecorder) RecordCycle(ctx context.Context, rep *CycleReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.ExecContext(ctx, `INSERT INTO scan_cycles
		(started_at, finished_at, symbols, units, skipped, signals, accepted, rejected, errors, stopped)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rep.StartedAt.UnixMilli(), rep.FinishedAt.UnixMilli(), rep.Symbols, rep.Units, rep.Skipped,
		rep.Signals, rep.Accepted, rep.Rejected, rep.Errors, boolInt(rep.Stopped),
	)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	return nil
}

// LastCycle returns the most recent cycle report, or nil before the first cycle.
func (r *SQLiteRecorder) LastCycle(ctx context.Context) (*CycleReport, error) {
	var (
		rep             CycleReport
		started, finish int64
		stopped         int
	)
	err := r.db.QueryRowContext(ctx, `SELECT started_at, finished_at, symbols, units, skipped, signals,
		accepted, rejected, errors, stopped FROM scan_cycles ORDER BY id DESC LIMIT 1`).
		Scan(&started, &finish, &rep.Symbols, &rep.Units, &rep.Skipped, &rep.Signals,
			&rep.Accepted, &rep.Rejected, &rep.Errors, &stopped)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last cycle: %w", err)
	}
	rep.StartedAt = time.UnixMilli(started).UTC()
	rep.FinishedAt = time.UnixMilli(finish).UTC()
	rep.Stopped = stopped != 0
	return &rep, nil
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
