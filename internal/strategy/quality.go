package strategy

import (
	"fmt"
	"math"

	"SignalScanner/internal/config"
	"SignalScanner/internal/model"
)

// Factor is one component of the entry quality score.
type Factor struct {
	Name       string
	Points     float64
	Commentary string
}

// QualityScore rates an entry bar from 0 to 100. The base is 50; a weak
// trend, a decisive RSI, and a close near VWAP each add points.
func QualityScore(s model.Snapshot) (float64, []Factor) {
	factors := []Factor{scoreADX(s), scoreRSIDistance(s), scoreVWAPDistance(s)}
	total := 50.0
	for _, f := range factors {
		total += f.Points
	}
	return math.Max(0, math.Min(100, total)), factors
}

// scoreADX favours a young trend.
func scoreADX(s model.Snapshot) Factor {
	var pts float64
	switch {
	case s.ADX < 20:
		pts = 20
	case s.ADX < 25:
		pts = 15
	case s.ADX < 30:
		pts = 10
	}
	return Factor{Name: "ADX", Points: pts, Commentary: fmt.Sprintf("ADX %.1f", s.ADX)}
}

// scoreRSIDistance favours RSI far from the midline.
func scoreRSIDistance(s model.Snapshot) Factor {
	var pts float64
	if s.RSI > 60 || s.RSI < 40 {
		pts += 15
	}
	if s.RSI > 65 || s.RSI < 35 {
		pts += 10
	}
	return Factor{Name: "RSI", Points: pts, Commentary: fmt.Sprintf("RSI %.1f", s.RSI)}
}

// scoreVWAPDistance favours entries that have not run away from VWAP.
func scoreVWAPDistance(s model.Snapshot) Factor {
	if s.VWAP == 0 {
		return Factor{Name: "VWAP", Commentary: "VWAP unavailable"}
	}
	dist := math.Abs(s.Close-s.VWAP) / s.VWAP * 100
	var pts float64
	switch {
	case dist < 0.5:
		pts = 15
	case dist < 1:
		pts = 10
	}
	return Factor{Name: "VWAP", Points: pts, Commentary: fmt.Sprintf("%.2f%% from VWAP", dist)}
}

// QualityGated passes entries only when their quality score reaches a
// minimum. Exits always pass.
type QualityGated struct {
	Evaluator
	MinScore float64
}

// WithQualityGate wraps ev with the entry score filter.
func WithQualityGate(ev Evaluator, minScore float64) *QualityGated {
	return &QualityGated{Evaluator: ev, MinScore: minScore}
}

func (q *QualityGated) Evaluate(in Input) Outcome {
	out := q.Evaluator.Evaluate(in)
	if !out.Kind.IsEntry() {
		return out
	}
	score, _ := QualityScore(in.Latest())
	if score < q.MinScore {
		return Outcome{}
	}
	out.Message = fmt.Sprintf("%s (quality %.0f)", out.Message, score)
	return out
}

// FromConfig returns the enabled evaluators in scan order.
func FromConfig(cfg config.StrategiesConfig) []Evaluator {
	var evs []Evaluator
	if cfg.Momentum.Enabled {
		var ev Evaluator = NewMomentum(cfg.Momentum)
		if cfg.Momentum.Quality.Enabled {
			ev = WithQualityGate(ev, cfg.Momentum.Quality.MinScore)
		}
		evs = append(evs, ev)
	}
	if cfg.Swing.Enabled {
		evs = append(evs, NewSwingFibonacci(cfg.Swing))
	}
	return evs
}
