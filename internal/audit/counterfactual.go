package audit

import (
	"context"
	"sync"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/engine"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/invariant"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/linalg"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

// #region scenario
// Scenario is one hypothetical perturbation of the current observables.
type Scenario struct {
	Name         string
	Coherence    float64
	Uncertainty  float64
	RiskDelta    float64
	Verdict      invariant.Verdict
	WouldViolate bool
}

const (
	HigherCoherence   = "higher_coherence"
	LowerUncertainty  = "lower_uncertainty"
	CoherenceCollapse = "coherence_collapse"
)

// #endregion scenario

// #region counterfactual
// Counterfactual asks the real enforcer whether perturbed observables would
// breach an invariant.
type Counterfactual struct {
	enforcer invariant.Enforcer

	mu       sync.Mutex
	last     []Scenario
	explored int
	fragile  int
}

func NewCounterfactual(enforcer invariant.Enforcer) *Counterfactual {
	return &Counterfactual{enforcer: enforcer}
}

// Explore evaluates the three fixed perturbations of st at the given
// population. It has no side effects.
func (c *Counterfactual) Explore(st state.State, population int) []Scenario {
	risk := st.Uncertainty * (1 - st.Coherence)
	out := []Scenario{
		{
			Name:        HigherCoherence,
			Coherence:   linalg.Clamp(st.Coherence+0.2, 0, 1),
			Uncertainty: st.Uncertainty,
			RiskDelta:   -0.2 * risk,
		},
		{
			Name:        LowerUncertainty,
			Coherence:   st.Coherence,
			Uncertainty: linalg.Clamp(st.Uncertainty-0.2, 0, 1),
			RiskDelta:   -0.15 * risk,
		},
		{
			Name:        CoherenceCollapse,
			Coherence:   linalg.Clamp(st.Coherence-0.4, 0, 1),
			Uncertainty: linalg.Clamp(st.Uncertainty+0.3, 0, 1),
			RiskDelta:   0.5,
		},
	}
	for i := range out {
		out[i].Verdict = c.enforcer.Check(invariant.Observables{
			Coherence:   out[i].Coherence,
			Uncertainty: out[i].Uncertainty,
		}, population, 0)
		out[i].WouldViolate = !out[i].Verdict.OK
	}
	return out
}

// ObserveCycle implements engine.Observer. A cycle counts as fragile when
// the collapse scenario would breach an invariant.
func (c *Counterfactual) ObserveCycle(_ context.Context, r engine.Report) error {
	sc := c.Explore(r.State, r.Population)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = sc
	c.explored++
	for _, s := range sc {
		if s.Name == CoherenceCollapse && s.WouldViolate {
			c.fragile++
		}
	}
	return nil
}

// Last returns the scenarios of the most recent cycle.
func (c *Counterfactual) Last() []Scenario {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Scenario(nil), c.last...)
}

// Fragility returns how many observed cycles were fragile out of the total.
func (c *Counterfactual) Fragility() (fragile, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fragile, c.explored
}

// #endregion counterfactual
