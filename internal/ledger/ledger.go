package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"SignalScanner/internal/model"
	"SignalScanner/internal/portfolio"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrPositionOpen is returned when opening a slot that already holds a position.
	ErrPositionOpen = errors.New("position already open")
	// ErrNoPosition is returned when closing a flat slot.
	ErrNoPosition = errors.New("no open position")
)

// IsRejection reports whether err is an expected business outcome rather
// than a failure.
func IsRejection(err error) bool {
	return errors.Is(err, ErrPositionOpen) ||
		errors.Is(err, ErrNoPosition) ||
		errors.Is(err, portfolio.ErrInsufficientCapital)
}

// Store is the persistence the ledger needs. A transition is applied in
// memory only after the store accepted it.
type Store interface {
	OpenTrade(ctx context.Context, pos *model.Position) error
	CloseTrade(ctx context.Context, trade *model.ClosedTrade) error
	OpenPositions(ctx context.Context) ([]model.Position, error)
	SavePortfolio(ctx context.Context, p *model.Portfolio) error
}

// OpenRequest describes an accepted entry signal.
type OpenRequest struct {
	Symbol           model.Symbol
	Strategy         model.StrategyKind
	Direction        model.Direction
	Price            float64
	ATR              float64
	StopMultiplier   float64
	TargetMultiplier float64
	At               time.Time
}

// Ledger owns the per-(symbol, strategy) position state machine.
// Operations on one key are serialized; different keys never contend.
type Ledger struct {
	store Store
	acct  *portfolio.Accountant
	log   zerolog.Logger

	mu        sync.Mutex
	positions map[model.PositionKey]model.Position
	locks     map[model.PositionKey]*sync.Mutex
}

// New creates an empty ledger.
func New(store Store, acct *portfolio.Accountant, logger zerolog.Logger) *Ledger {
	return &Ledger{
		store:     store,
		acct:      acct,
		log:       logger.With().Str("component", "ledger").Logger(),
		positions: make(map[model.PositionKey]model.Position),
		locks:     make(map[model.PositionKey]*sync.Mutex),
	}
}

// Restore loads open positions from the store of record.
func (l *Ledger) Restore(ctx context.Context) (int, error) {
	positions, err := l.store.OpenPositions(ctx)
	if err != nil {
		return 0, fmt.Errorf("restore positions: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range positions {
		l.positions[p.Key()] = p
	}
	return len(positions), nil
}

// State is the current direction of key; FLAT when nothing is open.
func (l *Ledger) State(key model.PositionKey) model.Direction {
	if p, ok := l.Position(key); ok {
		return p.Direction
	}
	return model.DirectionFlat
}

// Position returns the open position for key.
func (l *Ledger) Position(key model.PositionKey) (model.Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[key]
	return p, ok
}

// Positions returns every open position.
func (l *Ledger) Positions() []model.Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.Position, 0, len(l.positions))
	for _, p := range l.positions {
		out = append(out, p)
	}
	return out
}

// Open moves a FLAT slot to LONG or SHORT. Capital is allocated first and
// handed back if the store rejects the trade.
func (l *Ledger) Open(ctx context.Context, req OpenRequest) (model.Position, error) {
	if req.Direction != model.DirectionLong && req.Direction != model.DirectionShort {
		return model.Position{}, fmt.Errorf("open %s: invalid direction %q", req.Symbol.Name, req.Direction)
	}
	if req.Price <= 0 || math.IsNaN(req.ATR) {
		return model.Position{}, fmt.Errorf("open %s: invalid price %v or atr %v", req.Symbol.Name, req.Price, req.ATR)
	}
	key := model.PositionKey{Symbol: req.Symbol.Name, Strategy: req.Strategy}
	unlock := l.lockKey(key)
	defer unlock()

	if cur, ok := l.Position(key); ok {
		return cur, fmt.Errorf("open %s as %s: %w (%s)", key, req.Direction, ErrPositionOpen, cur.Direction)
	}

	size := l.acct.PositionSize()
	if _, err := l.acct.Allocate(size); err != nil {
		return model.Position{}, fmt.Errorf("open %s: %w", key, err)
	}

	sl, tp := Levels(req.Direction, req.Price, req.ATR, req.StopMultiplier, req.TargetMultiplier)
	pos := model.Position{
		Symbol:       req.Symbol.Name,
		Market:       req.Symbol.Market,
		Strategy:     req.Strategy,
		Direction:    req.Direction,
		EntryPrice:   req.Price,
		EntryTime:    req.At,
		ATRAtEntry:   req.ATR,
		StopLoss:     sl,
		TakeProfit:   tp,
		PositionSize: size,
		Leverage:     l.acct.Leverage(),
	}
	if err := l.store.OpenTrade(ctx, &pos); err != nil {
		if _, rerr := l.acct.Release(size, 0); rerr != nil {
			l.log.Error().Err(rerr).Str("key", key.String()).Msg("capital drift")
		}
		return model.Position{}, fmt.Errorf("persist open %s: %w", key, err)
	}

	l.mu.Lock()
	l.positions[key] = pos
	l.mu.Unlock()

	l.savePortfolio(ctx)
	l.log.Info().Str("symbol", pos.Symbol).Str("strategy", string(pos.Strategy)).
		Str("direction", string(pos.Direction)).Float64("entry", pos.EntryPrice).
		Float64("stop_loss", sl).Float64("take_profit", tp).Msg("position opened")
	return pos, nil
}

// Close moves an open slot back to FLAT and realizes its pnl.
func (l *Ledger) Close(ctx context.Context, key model.PositionKey, exitPrice float64, reason model.ExitReason, at time.Time) (model.ClosedTrade, error) {
	unlock := l.lockKey(key)
	defer unlock()

	pos, ok := l.Position(key)
	if !ok {
		return model.ClosedTrade{}, fmt.Errorf("close %s: %w", key, ErrNoPosition)
	}
	if exitPrice <= 0 {
		return model.ClosedTrade{}, fmt.Errorf("close %s: invalid exit price %v", key, exitPrice)
	}

	pct, usd := PnL(pos.Direction, pos.EntryPrice, exitPrice, pos.PositionSize, pos.Leverage)
	trade := model.ClosedTrade{
		ID:           uuid.NewString(),
		Symbol:       pos.Symbol,
		Market:       pos.Market,
		Strategy:     pos.Strategy,
		Direction:    pos.Direction,
		EntryPrice:   pos.EntryPrice,
		EntryTime:    pos.EntryTime,
		ExitPrice:    exitPrice,
		ExitTime:     at,
		PnLPercent:   pct,
		PnLUSD:       usd,
		PositionSize: pos.PositionSize,
		Leverage:     pos.Leverage,
		ExitReason:   reason,
	}
	if err := l.store.CloseTrade(ctx, &trade); err != nil {
		return model.ClosedTrade{}, fmt.Errorf("persist close %s: %w", key, err)
	}

	l.mu.Lock()
	delete(l.positions, key)
	l.mu.Unlock()

	if _, err := l.acct.Release(pos.PositionSize, usd); err != nil {
		l.log.Error().Err(err).Str("key", key.String()).Msg("capital drift")
	}
	l.savePortfolio(ctx)
	l.log.Info().Str("symbol", trade.Symbol).Str("strategy", string(trade.Strategy)).
		Str("direction", string(trade.Direction)).Float64("exit", exitPrice).
		Float64("pnl_percent", pct).Float64("pnl_usd", usd).Str("reason", string(reason)).Msg("position closed")
	return trade, nil
}

// savePortfolio persists the accountant snapshot. The trade row is the
// record of truth; a failed snapshot is rewritten on the next transition.
func (l *Ledger) savePortfolio(ctx context.Context) {
	snap := l.acct.Snapshot()
	if err := l.store.SavePortfolio(ctx, &snap); err != nil {
		l.log.Warn().Err(err).Msg("save portfolio snapshot")
	}
}

func (l *Ledger) lockKey(key model.PositionKey) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Levels places stop-loss and take-profit ATR multiples away from entry,
// on the losing and winning side of direction respectively.
func Levels(direction model.Direction, entry, atr, stopMult, targetMult float64) (stopLoss, takeProfit float64) {
	if direction == model.DirectionShort {
		return entry + atr*stopMult, entry - atr*targetMult
	}
	return entry - atr*stopMult, entry + atr*targetMult
}

// PnL returns the unlevered price move in percent (rounded to 2 places)
// and the levered dollar result.
func PnL(direction model.Direction, entry, exit, size, leverage float64) (pct, usd float64) {
	if entry == 0 {
		return 0, 0
	}
	raw := (exit - entry) / entry * 100
	if direction == model.DirectionShort {
		raw = -raw
	}
	usd = raw / 100 * size * leverage
	return math.Round(raw*100) / 100, math.Round(usd*1e6) / 1e6
}
