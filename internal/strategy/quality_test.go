package strategy

import (
	"testing"

	"SignalScanner/internal/config"
	"SignalScanner/internal/model"
)

func TestQualityScore(t *testing.T) {
	tests := []struct {
		name string
		snap model.Snapshot
		want float64
	}{
		{"base only", model.Snapshot{ADX: 35, RSI: 50, Close: 103, VWAP: 100}, 50},
		{"adx under 25", model.Snapshot{ADX: 22, RSI: 50, Close: 103, VWAP: 100}, 65},
		{"strong rsi", model.Snapshot{ADX: 35, RSI: 66, Close: 103, VWAP: 100}, 75},
		{"near vwap", model.Snapshot{ADX: 35, RSI: 50, Close: 100.3, VWAP: 100}, 65},
		{"capped", model.Snapshot{ADX: 10, RSI: 30, Close: 100.1, VWAP: 100}, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, factors := QualityScore(tt.snap)
			if got != tt.want {
				t.Errorf("score = %v, want %v (%+v)", got, tt.want, factors)
			}
		})
	}
}

func TestQualityGated(t *testing.T) {
	cfg := config.Default().Strategies
	cfg.Momentum.Quality.Enabled = true
	evs := FromConfig(cfg)
	if len(evs) != 2 {
		t.Fatalf("expected 2 evaluators, got %d", len(evs))
	}
	gated := evs[0]
	if gated.Kind() != model.StrategyMomentum {
		t.Fatalf("first evaluator = %s", gated.Kind())
	}

	// ADX 20 (+15) and 1% from VWAP (+0): score 65 is filtered.
	if out := gated.Evaluate(momentumInput(t, 54, 56, 20, 101, 100)); !out.None() {
		t.Errorf("low quality entry should be filtered, got %q", out.Kind)
	}
	// ADX 15 (+20), RSI 66 (+25), 0.4% from VWAP (+15).
	if out := gated.Evaluate(momentumInput(t, 54, 66, 15, 100.4, 100)); out.Kind != model.SignalLongEntry {
		t.Errorf("high quality entry should pass, got %q", out.Kind)
	}
	// Exits are never filtered.
	in := momentumInput(t, 50, 50, 35, 99, 100)
	in.Position = model.Position{Direction: model.DirectionLong}
	if out := gated.Evaluate(in); out.Kind != model.SignalLongExit {
		t.Errorf("exit must pass the gate, got %q", out.Kind)
	}
}
