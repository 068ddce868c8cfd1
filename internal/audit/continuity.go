package audit

import (
	"context"
	"math"
	"sync"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/engine"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/linalg"
)

// #region trend
type Trend string

const (
	TrendNone         Trend = "none"
	TrendInsufficient Trend = "insufficient_data"
	TrendImproving    Trend = "improving"
	TrendDegrading    Trend = "degrading"
	TrendStable       Trend = "stable"
)

// #endregion trend

// #region assessment
// Assessment summarises a coherence history.
type Assessment struct {
	Length           int
	Continuous       bool
	AverageCoherence float64
	Trend            Trend
	DriftEvents      int
}

// Assess is the pure assessment of a coherence series, oldest first.
func Assess(coherence []float64) Assessment {
	if len(coherence) == 0 {
		return Assessment{Trend: TrendNone}
	}
	a := Assessment{
		Length:           len(coherence),
		AverageCoherence: linalg.Mean(coherence),
		Trend:            TrendInsufficient,
	}
	for i := 1; i < len(coherence); i++ {
		if math.Abs(coherence[i]-coherence[i-1]) > driftThreshold {
			a.DriftEvents++
		}
	}
	a.Continuous = a.DriftEvents == 0
	if len(coherence) >= 2 {
		first, last := coherence[0], coherence[len(coherence)-1]
		switch {
		case last > first:
			a.Trend = TrendImproving
		case last < first:
			a.Trend = TrendDegrading
		default:
			a.Trend = TrendStable
		}
	}
	return a
}

// #endregion assessment

// #region continuity
// Continuity keeps a bounded coherence history fed by the engine.
type Continuity struct {
	mu      sync.Mutex
	window  int
	history []float64
}

// NewContinuity keeps at most window cycles; window <= 0 keeps everything.
func NewContinuity(window int) *Continuity {
	return &Continuity{window: window}
}

func (c *Continuity) ObserveCycle(_ context.Context, r engine.Report) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, r.State.Coherence)
	if c.window > 0 && len(c.history) > c.window {
		c.history = append(c.history[:0:0], c.history[len(c.history)-c.window:]...)
	}
	return nil
}

func (c *Continuity) Assessment() Assessment {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Assess(c.history)
}

// #endregion continuity
