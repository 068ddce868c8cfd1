package audit

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/config"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/engine"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/invariant"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

const tol = 1e-9

func near(a, b float64) bool { return math.Abs(a-b) < tol }

func TestSelfEvaluationFormulas(t *testing.T) {
	s := NewSelfEvaluation(0)
	ev := s.Evaluate(1, state.State{Coherence: 0.8, Uncertainty: 0.25})

	risk := 0.25 * 0.2
	if !near(ev.Risk, risk) {
		t.Fatalf("expected risk %.4f, got %.4f", risk, ev.Risk)
	}
	if !near(ev.Alignment, 0.8*(1-risk)) {
		t.Fatalf("unexpected alignment %.6f", ev.Alignment)
	}
	if !near(ev.Integrity, 0.75) {
		t.Fatalf("expected integrity 0.75 with no drift, got %.6f", ev.Integrity)
	}
	if ev.ActionRequired {
		t.Fatalf("healthy state should not require action: %s", ev.Reason)
	}
	if !ev.Coherent {
		t.Fatal("expected coherent")
	}
}

func TestSelfEvaluationDriftAndSummary(t *testing.T) {
	s := NewSelfEvaluation(0)
	s.Evaluate(1, state.State{Coherence: 0.9, Uncertainty: 0.2})
	ev := s.Evaluate(2, state.State{Coherence: 0.3, Uncertainty: 0.7})

	if !near(ev.Drift, 0.6) {
		t.Fatalf("expected drift 0.6, got %.6f", ev.Drift)
	}
	if ev.Integrity != 0 {
		t.Fatalf("expected integrity floored at 0, got %.6f", ev.Integrity)
	}
	if !ev.ActionRequired {
		t.Fatal("expected action required")
	}

	sum := s.Summary()
	if sum.Total != 2 || sum.ActionRequired != 1 {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if len(s.Evaluations()) != 2 {
		t.Fatal("expected two evaluations recorded")
	}
}

func TestSelfEvaluationWindowKeepsTotals(t *testing.T) {
	s := NewSelfEvaluation(4)
	for i := 0; i < 10; i++ {
		s.Evaluate(int64(i+1), state.State{Coherence: 0.8, Uncertainty: 0.25})
	}
	evs := s.Evaluations()
	if len(evs) != 4 {
		t.Fatalf("expected 4 retained evaluations, got %d", len(evs))
	}
	if evs[0].Cycle != 7 || evs[3].Cycle != 10 {
		t.Fatalf("expected cycles 7..10 retained, got %d..%d", evs[0].Cycle, evs[3].Cycle)
	}
	sum := s.Summary()
	if sum.Total != 10 {
		t.Fatalf("expected total 10, got %d", sum.Total)
	}
	if !near(sum.AverageAlignment, 0.8*(1-0.25*0.2)) {
		t.Fatalf("unexpected average alignment %.6f", sum.AverageAlignment)
	}
}

func TestCounterfactualUsesEnforcer(t *testing.T) {
	c := NewCounterfactual(invariant.NewEnforcer(config.Default().Invariants))
	sc := c.Explore(state.State{Coherence: 0.5, Uncertainty: 0.6}, 3)

	if len(sc) != 3 {
		t.Fatalf("expected 3 scenarios, got %d", len(sc))
	}
	byName := map[string]Scenario{}
	for _, s := range sc {
		byName[s.Name] = s
	}
	if byName[HigherCoherence].WouldViolate || byName[LowerUncertainty].WouldViolate {
		t.Fatal("improving scenarios should not violate")
	}
	collapse := byName[CoherenceCollapse]
	if !collapse.WouldViolate {
		t.Fatal("collapse to coherence 0.1 / uncertainty 0.9 should violate")
	}
	if !collapse.Verdict.Has(invariant.ConstraintCoherence) || !collapse.Verdict.Has(invariant.ConstraintUncertainty) {
		t.Fatalf("expected both observable violations, got %s", collapse.Verdict.Reason())
	}
}

func TestCounterfactualPopulationCounts(t *testing.T) {
	c := NewCounterfactual(invariant.NewEnforcer(config.Default().Invariants))
	for _, s := range c.Explore(state.State{Coherence: 0.9, Uncertainty: 0.1}, 21) {
		if !s.Verdict.Has(invariant.ConstraintPopulation) {
			t.Fatalf("%s: expected population violation over cap", s.Name)
		}
	}
}

func TestAssess(t *testing.T) {
	cases := []struct {
		name   string
		series []float64
		trend  Trend
		drift  int
	}{
		{"empty", nil, TrendNone, 0},
		{"single", []float64{0.5}, TrendInsufficient, 0},
		{"improving", []float64{0.4, 0.5, 0.6}, TrendImproving, 0},
		{"degrading", []float64{0.9, 0.5, 0.45}, TrendDegrading, 1},
		{"stable", []float64{0.5, 0.8, 0.5}, TrendStable, 2},
	}
	for _, c := range cases {
		a := Assess(c.series)
		if a.Trend != c.trend {
			t.Fatalf("%s: expected trend %s, got %s", c.name, c.trend, a.Trend)
		}
		if a.DriftEvents != c.drift {
			t.Fatalf("%s: expected %d drift events, got %d", c.name, c.drift, a.DriftEvents)
		}
		if a.Continuous != (c.drift == 0 && len(c.series) > 0) {
			t.Fatalf("%s: unexpected continuity %v", c.name, a.Continuous)
		}
	}
}

func TestContinuityWindow(t *testing.T) {
	c := NewContinuity(3)
	for i, v := range []float64{0.1, 0.2, 0.3, 0.4, 0.5} {
		_ = c.ObserveCycle(context.Background(), engine.Report{Cycle: int64(i + 1), State: state.State{Coherence: v}})
	}
	a := c.Assessment()
	if a.Length != 3 {
		t.Fatalf("expected window of 3, got %d", a.Length)
	}
	if !near(a.AverageCoherence, 0.4) {
		t.Fatalf("expected average 0.4, got %.6f", a.AverageCoherence)
	}
}

func TestEthicsValidate(t *testing.T) {
	cases := []struct {
		st   state.State
		fail bool
	}{
		{state.State{Coherence: 0.7, Uncertainty: 0.3}, false},
		{state.State{Coherence: 0, Uncertainty: 0.3}, true},
		{state.State{Coherence: 0.5, Uncertainty: 1}, true},
		{state.State{Coherence: 0.02, Uncertainty: 0.95}, true},
	}
	for i, c := range cases {
		err := Validate(c.st)
		if c.fail != (err != nil) {
			t.Fatalf("case %d: expected fail=%v, got %v", i, c.fail, err)
		}
		if err != nil && !errors.Is(err, ErrEthics) {
			t.Fatalf("case %d: expected ErrEthics, got %v", i, err)
		}
	}
}

func TestEthicsWindowKeepsTotal(t *testing.T) {
	e := NewEthics(2)
	for i := 0; i < 5; i++ {
		_ = e.ObserveCycle(context.Background(), engine.Report{
			Cycle:     int64(i + 1),
			Committed: true,
			State:     state.State{Coherence: 0, Uncertainty: 0.3},
		})
	}
	// uncommitted cycles are never judged
	_ = e.ObserveCycle(context.Background(), engine.Report{Cycle: 6, State: state.State{}})

	f := e.Findings()
	if len(f) != 2 || f[0].Cycle != 4 || f[1].Cycle != 5 {
		t.Fatalf("expected findings for cycles 4 and 5, got %+v", f)
	}
	if e.Total() != 5 {
		t.Fatalf("expected total 5, got %d", e.Total())
	}
}

func TestSuiteObservesEngine(t *testing.T) {
	cfg := config.Small()
	suite := NewSuite(invariant.NewEnforcer(cfg.Invariants), 50)
	e, err := engine.New(cfg, engine.WithObserver(suite))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	for i := 0; i < 5; i++ {
		_, err := e.Cycle(context.Background(), state.Observation{
			Input:   make([]float64, cfg.Model.InputDim),
			Signals: &state.Signals{Coherence: 0.7, Uncertainty: 0.3},
		})
		if err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}
	rep := suite.Report()
	if rep.Evaluation.Total != 5 || rep.Explored != 5 || rep.Continuity.Length != 5 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if rep.Continuity.Trend != TrendStable {
		t.Fatalf("constant coherence should be stable, got %s", rep.Continuity.Trend)
	}
	if len(rep.Findings) != 0 {
		t.Fatalf("unexpected findings %+v", rep.Findings)
	}
}
