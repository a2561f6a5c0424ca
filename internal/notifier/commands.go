package notifier

import (
	"context"
	"time"

	"SignalScanner/internal/recorder"
)

const helpText = "Available commands:\n• /portfolio\n• /positions\n• /status"

// Commands answers read-only chat commands from persisted state.
type Commands struct {
	Recorder   recorder.Recorder
	StaleAfter time.Duration
	Now        func() time.Time
}

// Handle processes a user command and returns a reply.
func (c *Commands) Handle(ctx context.Context, command string) string {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	switch command {
	case "/portfolio":
		p, err := c.Recorder.LoadPortfolio(ctx)
		if err != nil {
			return "⚠️ portfolio unavailable: " + err.Error()
		}
		if p == nil {
			return "⚪ No portfolio recorded yet"
		}
		return FormatPortfolio(*p)
	case "/positions":
		positions, err := c.Recorder.OpenPositions(ctx)
		if err != nil {
			return "⚠️ positions unavailable: " + err.Error()
		}
		return FormatPositions(positions)
	case "/status":
		last, err := c.Recorder.LastCycle(ctx)
		if err != nil {
			return "⚠️ status unavailable: " + err.Error()
		}
		return FormatStatus(last, c.StaleAfter, now())
	default:
		return helpText
	}
}
