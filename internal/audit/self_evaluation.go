// Package audit holds read-only collaborators that evaluate each cycle
// after it completes. None of them feed back into control.
package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/engine"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

// #region evaluation
// Evaluation is one cycle's self-assessment.
type Evaluation struct {
	Cycle          int64
	Coherent       bool
	Confidence     float64
	Alignment      float64
	Integrity      float64
	Risk           float64
	Drift          float64
	ActionRequired bool
	Metrics        []Metric
	Reason         string
}

// EvaluationSummary aggregates every evaluation so far, including those
// that have left the recent window.
type EvaluationSummary struct {
	Total            int
	AverageAlignment float64
	ActionRequired   int
}

// #endregion evaluation

// #region self-evaluation
// SelfEvaluation scores alignment as coherence·(1−risk) and integrity as
// max(0, stability−drift). Totals cover every cycle; only the most recent
// window evaluations are retained.
type SelfEvaluation struct {
	mu          sync.Mutex
	prev        *float64
	window      int
	evaluations []Evaluation
	total       int
	alignment   float64
	required    int
}

// NewSelfEvaluation keeps at most window evaluations; window <= 0 keeps
// everything.
func NewSelfEvaluation(window int) *SelfEvaluation {
	return &SelfEvaluation{window: window}
}

// Evaluate scores st and records the result.
func (s *SelfEvaluation) Evaluate(cycle int64, st state.State) Evaluation {
	s.mu.Lock()
	defer s.mu.Unlock()

	rd := Read(st, s.prev)
	c := st.Coherence
	s.prev = &c

	alignment := rd.Coherence * (1 - rd.Risk)
	integrity := max(0, rd.Stability-rd.Drift)
	ev := Evaluation{
		Cycle:      cycle,
		Coherent:   rd.Coherence > 0.5,
		Confidence: 1 - rd.Uncertainty,
		Alignment:  alignment,
		Integrity:  integrity,
		Risk:       rd.Risk,
		Drift:      rd.Drift,
		Metrics: []Metric{
			{Name: "alignment", Value: alignment, Pass: alignment >= minAlignment},
			{Name: "integrity", Value: integrity, Pass: integrity >= minIntegrity},
		},
	}
	ev.ActionRequired = alignment < minAlignment || integrity < minIntegrity
	ev.Reason = "all checks passed"
	if ev.ActionRequired {
		ev.Reason = fmt.Sprintf("action required: alignment %.4f integrity %.4f", alignment, integrity)
	}
	s.total++
	s.alignment += alignment
	if ev.ActionRequired {
		s.required++
	}
	s.evaluations = append(s.evaluations, ev)
	if s.window > 0 && len(s.evaluations) > s.window {
		s.evaluations = append(s.evaluations[:0:0], s.evaluations[len(s.evaluations)-s.window:]...)
	}
	return ev
}

// ObserveCycle implements engine.Observer.
func (s *SelfEvaluation) ObserveCycle(_ context.Context, r engine.Report) error {
	s.Evaluate(r.Cycle, r.State)
	return nil
}

// Evaluations returns the retained window, oldest first.
func (s *SelfEvaluation) Evaluations() []Evaluation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Evaluation(nil), s.evaluations...)
}

func (s *SelfEvaluation) Summary() EvaluationSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := EvaluationSummary{Total: s.total, ActionRequired: s.required}
	if s.total > 0 {
		out.AverageAlignment = s.alignment / float64(s.total)
	}
	return out
}

// #endregion self-evaluation
