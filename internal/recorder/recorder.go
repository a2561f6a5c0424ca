package recorder

import (
	"context"
	"errors"
	"time"

	"SignalScanner/internal/model"
)

// ErrNoOpenTrade is returned when closing a trade the store does not hold.
var ErrNoOpenTrade = errors.New("no open trade for key")

// CycleReport summarizes one completed scan cycle. The last report doubles
// as the scanner heartbeat.
type CycleReport struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Symbols    int       `json:"symbols"`
	Units      int       `json:"units"`
	Skipped    int       `json:"skipped"`
	Signals    int       `json:"signals"`
	Accepted   int       `json:"accepted"`
	Rejected   int       `json:"rejected"`
	Errors     int       `json:"errors"`
	Stopped    bool      `json:"stopped"`
}

// Recorder is the persistence store. Signals, open trades, closed trades,
// the portfolio snapshot, and cycle reports live here; the presentation
// layer reads only from it.
type Recorder interface {
	RecordSignal(ctx context.Context, sig *model.Signal) error
	RecentSignals(ctx context.Context, since time.Time, limit int) ([]model.Signal, error)
	PruneSignals(ctx context.Context, before time.Time) (int64, error)

	OpenTrade(ctx context.Context, pos *model.Position) error
	CloseTrade(ctx context.Context, trade *model.ClosedTrade) error
	PositionState(ctx context.Context, key model.PositionKey) (model.Direction, error)
	OpenPositions(ctx context.Context) ([]model.Position, error)
	ClosedTrades(ctx context.Context, limit int) ([]model.ClosedTrade, error)
	RealizedPnL(ctx context.Context) (float64, error)

	LoadPortfolio(ctx context.Context) (*model.Portfolio, error)
	SavePortfolio(ctx context.Context, p *model.Portfolio) error

	RecordCycle(ctx context.Context, rep *CycleReport) error
	LastCycle(ctx context.Context) (*CycleReport, error)

	Close() error
}
