package scenario

import (
	"context"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/engine"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/events"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/metrics"
)

// #region summary
// Summary aggregates a run.
type Summary struct {
	Cycles          int
	Commits         int
	Rejects         int
	Empty           int
	UpdatesApplied  int
	NoOps           int
	Spawns          int
	Matures         int
	Dissolves       int
	Violations      int
	MissingFields   int
	FinalPopulation int
	MeanLoss        float64
	Dominant        [field.Count]int
}

// Add folds one cycle report into s.
func (s *Summary) Add(r engine.Report) {
	s.Cycles++
	switch r.Outcome {
	case metrics.OutcomeCommit:
		s.Commits++
	case metrics.OutcomeReject:
		s.Rejects++
	default:
		s.Empty++
	}
	if r.Update.Skipped() {
		s.NoOps++
	} else {
		s.MeanLoss += (r.Update.Loss - s.MeanLoss) / float64(s.UpdatesApplied+1)
		s.UpdatesApplied++
	}
	for _, ev := range r.Events {
		switch ev.Kind {
		case events.KindSpawn:
			s.Spawns++
		case events.KindMature:
			s.Matures++
		case events.KindDissolve:
			s.Dissolves++
		case events.KindViolation:
			s.Violations++
		}
	}
	s.MissingFields += len(r.Missing())
	if r.Outcome != metrics.OutcomeEmpty {
		s.Dominant[r.Governor.DominantField]++
	}
	s.FinalPopulation = r.Population
}

// Summarize computes aggregate stats from cycle reports.
func Summarize(reports []engine.Report) Summary {
	var s Summary
	for _, r := range reports {
		s.Add(r)
	}
	return s
}

// #endregion summary

// #region run
// Run feeds up to steps observations from src through e. steps <= 0 runs
// until src is exhausted. On context cancellation the partial summary is
// returned with the error.
func Run(ctx context.Context, e *engine.Engine, src Source, steps int) (Summary, error) {
	var s Summary
	for i := 0; steps <= 0 || i < steps; i++ {
		if err := ctx.Err(); err != nil {
			return s, err
		}
		obs, ok := src.Next()
		if !ok {
			break
		}
		r, err := e.Cycle(ctx, obs)
		if err != nil {
			return s, err
		}
		s.Add(r)
	}
	return s, nil
}

// #endregion run
