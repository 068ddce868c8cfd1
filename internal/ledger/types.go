package ledger

import (
	"time"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
)

// #region run
// Run is one engine execution.
type Run struct {
	RunID     string
	Scenario  string
	Config    string
	StartedAt time.Time
}

// #endregion run

// #region governor-row
// GovernorRow is one persisted governor event.
type GovernorRow struct {
	RunID     string
	Cycle     int64
	Weights   []float64
	Dominant  field.ID
	Loss      float64
	Action    []float64
	Decision  string // "commit" | "reject" | "empty"
	Update    string // "commit" | "no_op"
	Reason    string
	CreatedAt time.Time
}

// #endregion governor-row

// #region event-row
type EventRow struct {
	RunID      string
	Seq        int64
	Cycle      int64
	Kind       string
	Agent      uint64
	Constraint string
	Detail     string
	CreatedAt  time.Time
}

// #endregion event-row

// #region residue-row
type ResidueRow struct {
	ResidueID        string
	RunID            string
	Agent            uint64
	Depth            int
	Born             int64
	DissolvedAt      int64
	Age              int
	FinalCoherence   float64
	FinalUncertainty float64
	AnchorMean       float64
	AnchorNorm       float64
	Reason           string
	CreatedAt        time.Time
}

// #endregion residue-row
