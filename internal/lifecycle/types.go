package lifecycle

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrCapacityExceeded is returned by Spawn when the live population is
	// already at the cap.
	ErrCapacityExceeded = errors.New("agent capacity exceeded")
	// ErrIllegalTransition is returned for an edge outside the state machine.
	ErrIllegalTransition = errors.New("illegal lifecycle transition")
	ErrUnknownAgent      = errors.New("unknown agent")
)

// #region phase
type Phase string

const (
	Spawning   Phase = "spawning"
	Active     Phase = "active"
	Dissolving Phase = "dissolving"
	Dissolved  Phase = "dissolved"
)

// edges lists the legal successors of each phase. Dissolved is terminal.
var edges = map[Phase][]Phase{
	Spawning:   {Active, Dissolving},
	Active:     {Dissolving},
	Dissolving: {Dissolved},
}

func canTransition(from, to Phase) bool {
	for _, p := range edges[from] {
		if p == to {
			return true
		}
	}
	return false
}

// #endregion phase

// #region agent
type AgentID uint64

// Agent is an autonomous instance tracked by the manager. Coherence and
// Uncertainty are the agent's local observables.
type Agent struct {
	ID          AgentID
	Phase       Phase
	Depth       int
	Born        int64
	Age         int
	Coherence   float64
	Uncertainty float64
	anchor      []float64
	reason      string
}

func (a *Agent) transition(to Phase) error {
	if !canTransition(a.Phase, to) {
		return fmt.Errorf("%w: agent %d %s -> %s", ErrIllegalTransition, a.ID, a.Phase, to)
	}
	a.Phase = to
	return nil
}

// #endregion agent

// #region residue
// Residue is the compacted summary written to the lineage log when an
// agent dissolves.
type Residue struct {
	ID               string
	Agent            AgentID
	Depth            int
	Born             int64
	DissolvedAt      int64
	Age              int
	FinalCoherence   float64
	FinalUncertainty float64
	AnchorMean       float64
	AnchorNorm       float64
	Reason           string
	At               time.Time
}

// Summary is a one-line rendering used in DISSOLVE events.
func (r Residue) Summary() string {
	return fmt.Sprintf("age=%d coherence=%.4f uncertainty=%.4f reason=%s",
		r.Age, r.FinalCoherence, r.FinalUncertainty, r.Reason)
}

// #endregion residue

// #region report
// StepReport lists what changed during one Step.
type StepReport struct {
	Cycle      int64
	Matured    []AgentID
	Dissolved  []Residue
	Violations int
	Population int
}

// #endregion report
