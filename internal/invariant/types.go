package invariant

import (
	"errors"
	"fmt"
	"strings"
)

// #region constraint
// Constraint enumerates the hard invariants.
type Constraint string

const (
	ConstraintUncertainty Constraint = "uncertainty_ceiling"
	ConstraintCoherence   Constraint = "coherence_floor"
	ConstraintPopulation  Constraint = "population_cap"
	ConstraintDepth       Constraint = "recursion_depth"
)

// #endregion constraint

// #region observables
// Observables are the state scalars the enforcer reads.
type Observables struct {
	Coherence   float64
	Uncertainty float64
}

// #endregion observables

// #region violation
// Violation describes one breached constraint.
type Violation struct {
	Constraint Constraint
	Observed   float64
	Limit      float64
	Reason     string
}

// #endregion violation

// #region verdict
// Verdict is the enforcer output. OK is true only when Violations is empty.
type Verdict struct {
	OK         bool
	Violations []Violation
}

// Has reports whether c is among the violations.
func (v Verdict) Has(c Constraint) bool {
	for _, x := range v.Violations {
		if x.Constraint == c {
			return true
		}
	}
	return false
}

// Reason joins every violation reason.
func (v Verdict) Reason() string {
	if v.OK {
		return "ok"
	}
	parts := make([]string, len(v.Violations))
	for i, x := range v.Violations {
		parts[i] = x.Reason
	}
	return strings.Join(parts, "; ")
}

// Err returns nil for an OK verdict and a *ViolationError otherwise.
func (v Verdict) Err() error {
	if v.OK {
		return nil
	}
	return &ViolationError{Verdict: v}
}

// #endregion verdict

// #region errors
// ErrConstraintViolation matches every *ViolationError via errors.Is.
var ErrConstraintViolation = errors.New("constraint violation")

// ViolationError carries the rejecting verdict.
type ViolationError struct {
	Verdict Verdict
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConstraintViolation, e.Verdict.Reason())
}

// Is makes errors.Is(err, ErrConstraintViolation) hold.
func (e *ViolationError) Is(target error) bool {
	return target == ErrConstraintViolation
}

// #endregion errors
