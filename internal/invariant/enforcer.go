// Package invariant holds the hard-constraint predicate that gates every
// committed action and every agent lifecycle transition.
package invariant

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/config"
)

// #region enforcer
// Enforcer checks the four hard invariants. It holds only its immutable
// thresholds, so Check is a pure function of its arguments.
type Enforcer struct {
	limits config.InvariantConfig
}

// NewEnforcer creates an enforcer with the given thresholds.
func NewEnforcer(limits config.InvariantConfig) Enforcer {
	return Enforcer{limits: limits}
}

// Limits returns the thresholds in force.
func (e Enforcer) Limits() config.InvariantConfig {
	return e.limits
}

// Check evaluates every constraint, without short-circuiting, so all
// violations for a call are reported together. Boundaries are inclusive:
// uncertainty equal to the ceiling and coherence equal to the floor pass.
// A non-finite observable violates its constraint.
func (e Enforcer) Check(obs Observables, population, depth int) Verdict {
	var violations []Violation

	// 1. Uncertainty ceiling
	if !finite(obs.Uncertainty) || obs.Uncertainty > e.limits.UncertaintyCeiling {
		violations = append(violations, Violation{
			Constraint: ConstraintUncertainty,
			Observed:   obs.Uncertainty,
			Limit:      e.limits.UncertaintyCeiling,
			Reason:     fmt.Sprintf("uncertainty %.4f exceeds ceiling %.4f", obs.Uncertainty, e.limits.UncertaintyCeiling),
		})
	}

	// 2. Coherence floor
	if !finite(obs.Coherence) || obs.Coherence < e.limits.CoherenceFloor {
		violations = append(violations, Violation{
			Constraint: ConstraintCoherence,
			Observed:   obs.Coherence,
			Limit:      e.limits.CoherenceFloor,
			Reason:     fmt.Sprintf("coherence %.4f below floor %.4f", obs.Coherence, e.limits.CoherenceFloor),
		})
	}

	// 3. Population cap
	if population > e.limits.MaxAgents {
		violations = append(violations, Violation{
			Constraint: ConstraintPopulation,
			Observed:   float64(population),
			Limit:      float64(e.limits.MaxAgents),
			Reason:     fmt.Sprintf("population %d exceeds cap %d", population, e.limits.MaxAgents),
		})
	}

	// 4. Recursion depth
	if depth > e.limits.MaxDepth {
		violations = append(violations, Violation{
			Constraint: ConstraintDepth,
			Observed:   float64(depth),
			Limit:      float64(e.limits.MaxDepth),
			Reason:     fmt.Sprintf("recursion depth %d exceeds max %d", depth, e.limits.MaxDepth),
		})
	}

	return Verdict{OK: len(violations) == 0, Violations: violations}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// #endregion enforcer
