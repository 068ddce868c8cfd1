package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/events"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/governor"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/invariant"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/lifecycle"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/metrics"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/worldmodel"
)

// #region observer
// Observer receives the finished report of every cycle. Observers are
// read-only collaborators; an error is logged and never affects control.
type Observer interface {
	ObserveCycle(ctx context.Context, r Report) error
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, r Report) error

func (f ObserverFunc) ObserveCycle(ctx context.Context, r Report) error { return f(ctx, r) }

// #endregion observer

// #region report
// Report is everything one cycle decided. Degraded lists the recoverable
// errors the cycle absorbed.
type Report struct {
	Cycle      int64
	State      state.State
	Proposals  field.Proposals
	Weights    governor.Weights
	Action     []float64
	Verdict    invariant.Verdict
	Committed  bool
	Outcome    string
	Imagined   governor.Imagined
	WorldModel []events.WorldModelEvent
	Train      *worldmodel.TrainReport
	Update     governor.UpdateResult
	Governor   events.GovernorEvent
	Spawned    lifecycle.AgentID
	Lifecycle  lifecycle.StepReport
	Events     []events.Event
	Population int
	Degraded   []error
	Duration   time.Duration
}

// Missing returns the fields absent this cycle.
func (r Report) Missing() []field.ID {
	var out []field.ID
	for _, id := range field.All() {
		if !r.Proposals.Has(id) {
			out = append(out, id)
		}
	}
	return out
}

// #endregion report

// #region options
type Option func(*Engine)

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithEventLog shares an existing lifecycle event log, e.g. one with a
// ledger sink attached.
func WithEventLog(l *events.Log) Option {
	return func(e *Engine) { e.events = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithObserver(obs ...Observer) Option {
	return func(e *Engine) { e.observers = append(e.observers, obs...) }
}

// WithProvider routes a field's proposals through p instead of its local
// module.
func WithProvider(id field.ID, p field.Policy) Option {
	return func(e *Engine) { e.providers[id] = p }
}

// #endregion options
