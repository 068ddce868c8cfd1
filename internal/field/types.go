package field

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

// #region field-id
// ID identifies one of the nine decision fields.
type ID int

const (
	HumanCognitive ID = iota
	HumanBehavioral
	HumanEthical
	AIAlignment
	AIAutonomy
	AISafety
	MultiplanetaryGovernance
	ResourceEcology
	SystemicRegulation
)

// Count is the number of fields.
const Count = 9

var names = [Count]string{
	"human_cognitive",
	"human_behavioral",
	"human_ethical",
	"ai_alignment",
	"ai_autonomy",
	"ai_safety",
	"multiplanetary_governance",
	"resource_ecology",
	"systemic_regulation",
}

func (id ID) String() string {
	if id < 0 || int(id) >= Count {
		return fmt.Sprintf("field(%d)", int(id))
	}
	return names[id]
}

// Valid reports whether id names one of the nine fields.
func (id ID) Valid() bool {
	return id >= 0 && int(id) < Count
}

// ParseID resolves a field name.
func ParseID(name string) (ID, error) {
	for i, n := range names {
		if n == name {
			return ID(i), nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", name)
}

// All returns the fields in id order.
func All() []ID {
	ids := make([]ID, Count)
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}

// #endregion field-id

// #region errors
// ErrUpstreamTimeout marks a policy provider that did not answer in time.
// The field is treated as absent for the cycle.
var ErrUpstreamTimeout = errors.New("upstream timeout")

// #endregion errors

// #region proposal
// Proposal is one field's output for a cycle. It is not mutated after the
// bank returns it.
type Proposal struct {
	Field       ID
	Action      []float64
	Value       float64
	Uncertainty float64   // this field's contribution to global uncertainty
	Latent      []float64 // field latent consumed by the governor
}

// #endregion proposal

// #region interfaces
// Policy proposes an action for the current state. Implementations may be
// local computations or blocking remote calls; remote ones fail with
// ErrUpstreamTimeout when they exceed the context deadline.
type Policy interface {
	ProposeAction(ctx context.Context, st state.State) (Proposal, error)
}

// Actor is the deterministic action function used during imagination.
type Actor interface {
	Act(latent []float64) []float64
}

// #endregion interfaces
