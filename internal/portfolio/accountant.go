package portfolio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"SignalScanner/internal/model"

	"github.com/shopspring/decimal"
)

// ErrInsufficientCapital is returned when an allocation exceeds the available balance.
var ErrInsufficientCapital = errors.New("insufficient available capital")

// ErrOverRelease is returned when more capital is released than is in use.
var ErrOverRelease = errors.New("release exceeds used capital")

var tolerance = decimal.New(1, -6)

func near(a, b decimal.Decimal) bool { return a.Sub(b).Abs().LessThan(tolerance) }

// Accountant is the single writer of the shared capital pool. Every
// mutation happens under one lock, so available + used == total at every
// point another goroutine can observe.
type Accountant struct {
	mu        sync.Mutex
	initial   decimal.Decimal
	total     decimal.Decimal
	available decimal.Decimal
	used      decimal.Decimal
	pnl       decimal.Decimal
	updatedAt time.Time

	positionSize float64
	leverage     float64
	now          func() time.Time
}

// NewAccountant creates a pool holding initialBalance, all of it available.
func NewAccountant(initialBalance, positionSize, leverage float64) *Accountant {
	start := decimal.NewFromFloat(initialBalance)
	return &Accountant{
		initial:      start,
		total:        start,
		available:    start,
		used:         decimal.Zero,
		pnl:          decimal.Zero,
		positionSize: positionSize,
		leverage:     leverage,
		now:          time.Now,
		updatedAt:    time.Now(),
	}
}

// PositionSize is the fixed notional committed per trade.
func (a *Accountant) PositionSize() float64 { return a.positionSize }

// Leverage is the fixed leverage applied to every trade.
func (a *Accountant) Leverage() float64 { return a.leverage }

// Restore replaces the pool with a persisted snapshot. It rejects snapshots
// that break either balance invariant.
func (a *Accountant) Restore(p model.Portfolio) error {
	initial := decimal.NewFromFloat(p.InitialBalance)
	total := decimal.NewFromFloat(p.TotalBalance)
	available := decimal.NewFromFloat(p.AvailableBalance)
	used := decimal.NewFromFloat(p.UsedBalance)
	pnl := decimal.NewFromFloat(p.TotalPnL)
	if !near(available.Add(used), total) {
		return fmt.Errorf("restore portfolio: available %s + used %s != total %s", available, used, total)
	}
	if !near(initial.Add(pnl), total) {
		return fmt.Errorf("restore portfolio: initial %s + pnl %s != total %s", initial, pnl, total)
	}
	if used.IsNegative() {
		return fmt.Errorf("restore portfolio: negative used balance %s", used)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.initial = initial
	a.total = total
	a.available = available
	a.used = used
	a.pnl = pnl
	a.updatedAt = p.UpdatedAt
	return nil
}

// Reconcile rebuilds the pool from the trade tables: total is initial plus
// the realized pnl, used is the notional of the open positions. It reports
// whether the pool changed.
func (a *Accountant) Reconcile(realizedPnL, committed float64) (model.Portfolio, bool) {
	pnl := decimal.NewFromFloat(realizedPnL)
	used := decimal.NewFromFloat(committed)
	a.mu.Lock()
	defer a.mu.Unlock()
	total := a.initial.Add(pnl)
	if near(total, a.total) && near(used, a.used) && near(pnl, a.pnl) {
		return a.snapshotLocked(), false
	}
	a.total = total
	a.used = used
	a.available = total.Sub(used)
	a.pnl = pnl
	a.touch()
	return a.snapshotLocked(), true
}

// Allocate moves size from available to used.
func (a *Accountant) Allocate(size float64) (model.Portfolio, error) {
	amount := decimal.NewFromFloat(size)
	if amount.IsNegative() {
		return model.Portfolio{}, fmt.Errorf("allocate: negative size %v", size)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if amount.GreaterThan(a.available) {
		return a.snapshotLocked(), fmt.Errorf("allocate %s with %s available: %w", amount, a.available, ErrInsufficientCapital)
	}
	a.available = a.available.Sub(amount)
	a.used = a.used.Add(amount)
	a.touch()
	return a.snapshotLocked(), nil
}

// Release returns size to the pool together with the realized pnl. Asking
// for more than is in use releases what is in use and returns ErrOverRelease;
// the pnl is always applied.
func (a *Accountant) Release(size, pnlUSD float64) (model.Portfolio, error) {
	amount := decimal.NewFromFloat(size)
	pnl := decimal.NewFromFloat(pnlUSD)
	a.mu.Lock()
	defer a.mu.Unlock()
	var err error
	if amount.GreaterThan(a.used) {
		err = fmt.Errorf("release %s with %s in use: %w", amount, a.used, ErrOverRelease)
		amount = a.used
	}
	a.used = a.used.Sub(amount)
	a.available = a.available.Add(amount).Add(pnl)
	a.total = a.total.Add(pnl)
	a.pnl = a.pnl.Add(pnl)
	a.touch()
	return a.snapshotLocked(), err
}

// Snapshot returns a consistent copy of the pool.
func (a *Accountant) Snapshot() model.Portfolio {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Accountant) touch() { a.updatedAt = a.now() }

func (a *Accountant) snapshotLocked() model.Portfolio {
	return model.Portfolio{
		InitialBalance:   a.initial.InexactFloat64(),
		TotalBalance:     a.total.InexactFloat64(),
		AvailableBalance: a.available.InexactFloat64(),
		UsedBalance:      a.used.InexactFloat64(),
		TotalPnL:         a.pnl.InexactFloat64(),
		UpdatedAt:        a.updatedAt,
	}
}
