package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/engine"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

var ErrEthics = errors.New("ethics check failed")

// #region ethics
// Finding is one ethics failure attributed to a committed cycle.
type Finding struct {
	Cycle int64
	Rule  string
}

// Ethics flags committed actions taken from degenerate states. It is
// advisory; the invariant enforcer remains the only gate. Only the most
// recent window findings are retained.
type Ethics struct {
	mu       sync.Mutex
	window   int
	findings []Finding
	total    int
}

// NewEthics keeps at most window findings; window <= 0 keeps everything.
func NewEthics(window int) *Ethics {
	return &Ethics{window: window}
}

// Validate returns an ErrEthics-wrapped error naming the first failed rule.
func Validate(st state.State) error {
	rd := Read(st, nil)
	switch {
	case rd.Coherence <= 0:
		return fmt.Errorf("%w: action_from_zero_coherence", ErrEthics)
	case rd.Uncertainty >= 1:
		return fmt.Errorf("%w: action_from_total_uncertainty", ErrEthics)
	case rd.Risk > 0.9 && rd.Stability < 0.1:
		return fmt.Errorf("%w: unstable_high_risk_action", ErrEthics)
	}
	return nil
}

func (e *Ethics) ObserveCycle(_ context.Context, r engine.Report) error {
	if !r.Committed {
		return nil
	}
	if err := Validate(r.State); err != nil {
		e.mu.Lock()
		e.total++
		e.findings = append(e.findings, Finding{Cycle: r.Cycle, Rule: err.Error()})
		if e.window > 0 && len(e.findings) > e.window {
			e.findings = append(e.findings[:0:0], e.findings[len(e.findings)-e.window:]...)
		}
		e.mu.Unlock()
	}
	return nil
}

// Total counts every finding, including those no longer retained.
func (e *Ethics) Total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total
}

func (e *Ethics) Findings() []Finding {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Finding(nil), e.findings...)
}

// #endregion ethics
