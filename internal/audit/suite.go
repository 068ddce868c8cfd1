package audit

import (
	"context"
	"errors"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/engine"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/invariant"
)

// #region suite
// Suite bundles every audit collaborator behind one observer.
type Suite struct {
	Self           *SelfEvaluation
	Counterfactual *Counterfactual
	Continuity     *Continuity
	Ethics         *Ethics
}

// NewSuite builds a suite; window bounds every retained history.
func NewSuite(enforcer invariant.Enforcer, window int) *Suite {
	return &Suite{
		Self:           NewSelfEvaluation(window),
		Counterfactual: NewCounterfactual(enforcer),
		Continuity:     NewContinuity(window),
		Ethics:         NewEthics(window),
	}
}

func (s *Suite) ObserveCycle(ctx context.Context, r engine.Report) error {
	return errors.Join(
		s.Self.ObserveCycle(ctx, r),
		s.Counterfactual.ObserveCycle(ctx, r),
		s.Continuity.ObserveCycle(ctx, r),
		s.Ethics.ObserveCycle(ctx, r),
	)
}

// Report is a point-in-time view of every audit.
type Report struct {
	Evaluation    EvaluationSummary
	Fragile       int
	Explored      int
	Continuity    Assessment
	Findings      []Finding
	FindingsTotal int
}

func (s *Suite) Report() Report {
	fragile, explored := s.Counterfactual.Fragility()
	return Report{
		Evaluation:    s.Self.Summary(),
		Fragile:       fragile,
		Explored:      explored,
		Continuity:    s.Continuity.Assessment(),
		Findings:      s.Ethics.Findings(),
		FindingsTotal: s.Ethics.Total(),
	}
}

// #endregion suite
