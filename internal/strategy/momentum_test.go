package strategy

import (
	"testing"
	"time"

	"SignalScanner/internal/config"
	"SignalScanner/internal/markethours"
	"SignalScanner/internal/model"
)

func bistSession(t *testing.T) markethours.Session {
	t.Helper()
	s, err := markethours.NewSession("UTC", "06:00", "11:59", "12:00", true)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

// wednesday returns 2026-10-14 at the given UTC time.
func wednesday(h, m int) time.Time { return time.Date(2026, 10, 14, h, m, 0, 0, time.UTC) }

func momentumInput(t *testing.T, prevRSI, rsi, adx, close, vwap float64) Input {
	return Input{
		Symbol: model.Symbol{Name: "THYAO", Market: model.MarketBIST},
		History: []model.Snapshot{
			{Close: 100, High: 101, Low: 99, VWAP: 100, RSI: prevRSI, ADX: adx, ATR: 1},
			{Close: close, High: close + 0.5, Low: close - 0.5, VWAP: vwap, RSI: rsi, ADX: adx, ATR: 1},
		},
		Position: model.Position{Direction: model.DirectionFlat},
		Session:  bistSession(t),
		Now:      wednesday(9, 0),
	}
}

func TestMomentum_Entries(t *testing.T) {
	m := NewMomentum(config.Default().Strategies.Momentum)

	tests := []struct {
		name                           string
		prevRSI, rsi, adx, close, vwap float64
		want                           model.SignalKind
	}{
		{"long cross above VWAP", 54, 56, 20, 101, 100, model.SignalLongEntry},
		{"trend too strong", 54, 56, 35, 101, 100, model.SignalNone},
		{"long below VWAP", 54, 56, 20, 99, 100, model.SignalNone},
		{"no cross", 56, 58, 20, 101, 100, model.SignalNone},
		{"short cross below VWAP", 36, 34, 20, 99, 100, model.SignalShortEntry},
		{"short above VWAP", 36, 34, 20, 101, 100, model.SignalNone},
		{"prev exactly at threshold", 55, 56, 20, 101, 100, model.SignalLongEntry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := m.Evaluate(momentumInput(t, tt.prevRSI, tt.rsi, tt.adx, tt.close, tt.vwap))
			if out.Kind != tt.want {
				t.Errorf("kind = %q, want %q (%s)", out.Kind, tt.want, out.Message)
			}
		})
	}
}

func TestMomentum_NoEntryOutsideSession(t *testing.T) {
	m := NewMomentum(config.Default().Strategies.Momentum)
	in := momentumInput(t, 54, 56, 20, 101, 100)
	in.Now = wednesday(13, 0)
	if out := m.Evaluate(in); !out.None() {
		t.Errorf("expected no entry after session, got %q", out.Kind)
	}

	in.Session = markethours.AlwaysOpenSession
	in.Now = time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC)
	if out := m.Evaluate(in); out.Kind != model.SignalLongEntry {
		t.Errorf("24/7 market should enter any time, got %q", out.Kind)
	}
}

func TestMomentum_ForcedSessionExit(t *testing.T) {
	m := NewMomentum(config.Default().Strategies.Momentum)
	in := momentumInput(t, 60, 62, 20, 105, 100)
	in.Position = model.Position{Symbol: "THYAO", Strategy: model.StrategyMomentum, Direction: model.DirectionLong, EntryPrice: 100}
	in.Now = wednesday(12, 30)

	out := m.Evaluate(in)
	if out.Kind != model.SignalLongExit {
		t.Fatalf("kind = %q, want LONG_EXIT", out.Kind)
	}
	if out.ExitReason != model.ExitSessionEnd {
		t.Errorf("reason = %q, want SESSION_END", out.ExitReason)
	}
}

func TestMomentum_VWAPExits(t *testing.T) {
	m := NewMomentum(config.Default().Strategies.Momentum)

	in := momentumInput(t, 50, 50, 20, 99, 100)
	in.Position = model.Position{Direction: model.DirectionLong}
	if out := m.Evaluate(in); out.Kind != model.SignalLongExit || out.ExitReason != model.ExitVWAPBreak {
		t.Errorf("long: got %q/%q", out.Kind, out.ExitReason)
	}

	in = momentumInput(t, 50, 50, 20, 101, 100)
	in.Position = model.Position{Direction: model.DirectionShort}
	if out := m.Evaluate(in); out.Kind != model.SignalShortExit {
		t.Errorf("short: got %q", out.Kind)
	}
}

func TestMomentum_NoEntryWhilePositioned(t *testing.T) {
	m := NewMomentum(config.Default().Strategies.Momentum)
	in := momentumInput(t, 54, 56, 20, 101, 100)
	in.Position = model.Position{Direction: model.DirectionLong}
	if out := m.Evaluate(in); !out.None() {
		t.Errorf("expected no signal while long above VWAP, got %q", out.Kind)
	}
}

func TestMomentum_EnforcedStops(t *testing.T) {
	cfg := config.Default().Strategies.Momentum
	cfg.EnforceStops = true
	m := NewMomentum(cfg)

	in := momentumInput(t, 50, 50, 20, 101, 100)
	in.History[1].Low = 94
	in.Position = model.Position{Direction: model.DirectionLong, StopLoss: 95, TakeProfit: 115}
	if out := m.Evaluate(in); out.ExitReason != model.ExitStopLoss {
		t.Errorf("expected stop-loss exit, got %q/%q", out.Kind, out.ExitReason)
	}

	in.History[1].Low = 100
	in.History[1].High = 116
	if out := m.Evaluate(in); out.ExitReason != model.ExitTakeProfit {
		t.Errorf("expected take-profit exit, got %q/%q", out.Kind, out.ExitReason)
	}

	// Without enforcement the same bar only exits on VWAP.
	m = NewMomentum(config.Default().Strategies.Momentum)
	if out := m.Evaluate(in); !out.None() {
		t.Errorf("stops must be ignored when not enforced, got %q", out.Kind)
	}
}

func TestMomentum_ShortHistory(t *testing.T) {
	m := NewMomentum(config.Default().Strategies.Momentum)
	in := momentumInput(t, 54, 56, 20, 101, 100)
	in.History = in.History[1:]
	if out := m.Evaluate(in); !out.None() {
		t.Error("expected no signal with a single row")
	}
}
