// Package gate filters signals before they reach persistence and the
// position ledger.
package gate

import (
	"context"
	"time"

	"SignalScanner/internal/model"

	"github.com/rs/zerolog"
)

// Rejection reasons.
const (
	ReasonDuplicate    = "duplicate"
	ReasonPositionOpen = "position_open"
	ReasonNoPosition   = "no_position"
	ReasonWindowError  = "window_unavailable"
)

// Decision is the gate's verdict. A rejection is an expected outcome, not
// an error.
type Decision struct {
	Accepted bool
	Reason   string
}

// Gate applies position consistency and time-window dedup.
type Gate struct {
	window Window
	log    zerolog.Logger
}

func New(window Window, logger zerolog.Logger) *Gate {
	return &Gate{window: window, log: logger.With().Str("component", "gate").Logger()}
}

// Admit decides whether sig may proceed given the current position state
// of its (symbol, strategy) slot. An accepted signal holds the dedup claim
// until Forget is called.
func (g *Gate) Admit(ctx context.Context, sig model.Signal, state model.Direction) Decision {
	if sig.Kind.IsEntry() && state != model.DirectionFlat {
		return g.reject(sig, ReasonPositionOpen)
	}
	if sig.Kind.IsExit() && state != sig.Kind.Direction() {
		return g.reject(sig, ReasonNoPosition)
	}

	free, err := g.window.Claim(ctx, sig.DedupKey(), sig.Timestamp)
	if err != nil {
		// Without the window the gate cannot tell a repeat from a new
		// signal; the next cycle retries.
		g.log.Warn().Err(err).Str("symbol", sig.Symbol).Str("strategy", string(sig.Strategy)).
			Str("kind", string(sig.Kind)).Msg("dedup window unavailable")
		return Decision{Reason: ReasonWindowError}
	}
	if !free {
		return g.reject(sig, ReasonDuplicate)
	}
	return Decision{Accepted: true}
}

// Forget releases the dedup claim for sig, used when the signal could not
// be persisted after being admitted.
func (g *Gate) Forget(ctx context.Context, sig model.Signal) {
	if err := g.window.Release(ctx, sig.DedupKey()); err != nil {
		g.log.Warn().Err(err).Str("key", sig.DedupKey()).Msg("release dedup claim")
	}
}

func (g *Gate) reject(sig model.Signal, reason string) Decision {
	g.log.Debug().Str("symbol", sig.Symbol).Str("strategy", string(sig.Strategy)).
		Str("kind", string(sig.Kind)).Str("reason", reason).Msg("signal rejected")
	return Decision{Reason: reason}
}

// Seeder is implemented by windows that can be primed with past claims.
type Seeder interface {
	Seed(key string, t time.Time)
}

// Seed replays persisted signals into the dedup window so a restart does
// not re-emit them. It returns how many were seeded.
func (g *Gate) Seed(signals []model.Signal) int {
	s, ok := g.window.(Seeder)
	if !ok {
		return 0
	}
	for _, sig := range signals {
		s.Seed(sig.DedupKey(), sig.Timestamp)
	}
	return len(signals)
}
