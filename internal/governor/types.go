package governor

import (
	"math"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
)

// #region weights
// Weights is the normalised allocation over fields, indexed by field.ID.
// Absent fields carry weight 0.
type Weights [field.Count]float64

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	var s float64
	for _, v := range w {
		s += v
	}
	return s
}

// Dominant returns the field with the largest weight; ties go to the
// lower id.
func (w Weights) Dominant() field.ID {
	best := 0
	for i := 1; i < len(w); i++ {
		if w[i] > w[best] {
			best = i
		}
	}
	return field.ID(best)
}

// Slice returns the weights as a new slice.
func (w Weights) Slice() []float64 {
	out := make([]float64, len(w))
	copy(out, w[:])
	return out
}

// Valid reports whether every weight is in [0,1] and the sum is 1 ± tol.
func (w Weights) Valid(tol float64) bool {
	for _, v := range w {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return false
		}
	}
	return math.Abs(w.Sum()-1) <= tol
}

// #endregion weights

// #region imagined
// Imagined carries each field's mean imagined reward over the horizon.
// Ready is false where no usable signal exists this cycle.
type Imagined struct {
	Mean  [field.Count]float64
	Ready [field.Count]bool
}

// #endregion imagined

// #region decision
const (
	ActionCommit = "commit"
	ActionNoOp   = "no_op"
)

// Decision records what Update did.
type Decision struct {
	Action string // "commit" | "no_op"
	Reason string
}

// UpdateResult bundles everything returned by Update.
type UpdateResult struct {
	Decision Decision
	Loss     float64
	Cause    error // set for no-ops; errors.Is(Cause, buffer.ErrInsufficientData)
}

// Skipped reports whether the update was a no-op.
func (r UpdateResult) Skipped() bool {
	return r.Decision.Action == ActionNoOp
}

// #endregion decision
