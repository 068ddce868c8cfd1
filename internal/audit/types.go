package audit

import "github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"

const (
	// driftThreshold marks a cycle-to-cycle coherence jump as a drift event.
	driftThreshold = 0.2
	// minAlignment and minIntegrity flag an evaluation as needing action.
	minAlignment = 0.4
	minIntegrity = 0.2
)

// #region metric
// Metric is a single audit check result.
type Metric struct {
	Name  string
	Value float64
	Pass  bool
}

// #endregion metric

// #region readings
// Readings are the derived scalars every audit reads from a state.
type Readings struct {
	Coherence   float64
	Uncertainty float64
	Risk        float64
	Stability   float64
	Drift       float64
}

// Read derives risk, stability and drift. prev is the previous cycle's
// coherence; drift is zero when there is none.
func Read(st state.State, prev *float64) Readings {
	r := Readings{
		Coherence:   st.Coherence,
		Uncertainty: st.Uncertainty,
		Risk:        st.Uncertainty * (1 - st.Coherence),
		Stability:   1 - st.Uncertainty,
	}
	if prev != nil {
		d := st.Coherence - *prev
		if d < 0 {
			d = -d
		}
		r.Drift = d
	}
	return r
}

// #endregion readings
