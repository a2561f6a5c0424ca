package recorder

import (
	"context"
	"time"

	"SignalScanner/internal/model"
)

// NoopRecorder accepts every write and returns empty reads. It is used
// by dry runs when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) RecordSignal(_ context.Context, _ *model.Signal) error { return nil }

func (n *NoopRecorder) RecentSignals(_ context.Context, _ time.Time, _ int) ([]model.Signal, error) {
	return nil, nil
}

func (n *NoopRecorder) PruneSignals(_ context.Context, _ time.Time) (int64, error) { return 0, nil }

func (n *NoopRecorder) OpenTrade(_ context.Context, _ *model.Position) error { return nil }

func (n *NoopRecorder) CloseTrade(_ context.Context, _ *model.ClosedTrade) error { return nil }

func (n *NoopRecorder) PositionState(_ context.Context, _ model.PositionKey) (model.Direction, error) {
	return model.DirectionFlat, nil
}

func (n *NoopRecorder) OpenPositions(_ context.Context) ([]model.Position, error) { return nil, nil }

func (n *NoopRecorder) ClosedTrades(_ context.Context, _ int) ([]model.ClosedTrade, error) {
	return nil, nil
}

func (n *NoopRecorder) RealizedPnL(_ context.Context) (float64, error) { return 0, nil }

func (n *NoopRecorder) LoadPortfolio(_ context.Context) (*model.Portfolio, error) { return nil, nil }

func (n *NoopRecorder) SavePortfolio(_ context.Context, _ *model.Portfolio) error { return nil }

func (n *NoopRecorder) RecordCycle(_ context.Context, _ *CycleReport) error { return nil }

func (n *NoopRecorder) LastCycle(_ context.Context) (*CycleReport, error) { return nil, nil }

func (n *NoopRecorder) Close() error { return nil }
