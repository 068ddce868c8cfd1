package state

import "github.com/danielpatrickdp/adaptive-state/ninefield/internal/linalg"

// #region state
// State is the shared latent every downstream module reads, plus the two
// scalar observables the invariant enforcer checks.
type State struct {
	Latent      []float64
	Coherence   float64 // [0,1]
	Uncertainty float64 // [0,1]
}

// Clone returns a deep copy so the caller may keep it past the cycle.
func (s State) Clone() State {
	return State{
		Latent:      linalg.Copy(s.Latent),
		Coherence:   s.Coherence,
		Uncertainty: s.Uncertainty,
	}
}

// #endregion state

// #region observation
// Signals carries externally measured observables. When present on an
// Observation they replace the values derived by the encoder.
type Signals struct {
	Coherence   float64 `json:"coherence" yaml:"coherence"`
	Uncertainty float64 `json:"uncertainty" yaml:"uncertainty"`
}

// Observation is one raw input to a cycle. Reward is the environment reward
// for the action committed in the previous cycle.
type Observation struct {
	Input   []float64
	Reward  float64
	Signals *Signals
}

// #endregion observation

// #region transition
// Transition is one replay buffer entry.
type Transition struct {
	State  []float64
	Action []float64
	Reward float64
	Next   []float64
}

// Clone returns a deep copy.
func (t Transition) Clone() Transition {
	return Transition{
		State:  linalg.Copy(t.State),
		Action: linalg.Copy(t.Action),
		Reward: t.Reward,
		Next:   linalg.Copy(t.Next),
	}
}

// #endregion transition
