// Package metrics exposes Prometheus collectors for the decision cycle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ninefield"

// Cycle outcomes used as the "outcome" label.
const (
	OutcomeCommit = "commit"
	OutcomeReject = "reject"
	OutcomeEmpty  = "empty"
)

// #region metrics
// Metrics groups every collector. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	FieldWeight      *prometheus.GaugeVec
	GovernanceLoss   prometheus.Gauge
	Population       prometheus.Gauge
	Violations       *prometheus.CounterVec
	Cycles           *prometheus.CounterVec
	GovernorNoOps    prometheus.Counter
	UpstreamTimeouts *prometheus.CounterVec
	Disagreement     *prometheus.GaugeVec
	ReplaySize       prometheus.Gauge
	CycleDuration    prometheus.Histogram
	LifecycleEvents  *prometheus.CounterVec
}

// New registers all collectors on reg. Pass prometheus.DefaultRegisterer
// in binaries and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		FieldWeight: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "governor",
			Name:      "field_weight",
			Help:      "Current governor weight per field",
		}, []string{"field"}),
		GovernanceLoss: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "governor",
			Name:      "loss",
			Help:      "Governance loss of the last applied update",
		}),
		Population: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "population",
			Help:      "Live agent population",
		}),
		Violations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "invariant",
			Name:      "violations_total",
			Help:      "Invariant violations by constraint",
		}, []string{"constraint"}),
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Decision cycles by outcome",
		}, []string{"outcome"}),
		GovernorNoOps: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "governor",
			Name:      "noop_total",
			Help:      "Governor updates skipped for lack of imagined reward",
		}),
		UpstreamTimeouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "field",
			Name:      "missing_total",
			Help:      "Field proposals missing per cycle by field and cause",
		}, []string{"field", "cause"}),
		Disagreement: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worldmodel",
			Name:      "disagreement",
			Help:      "Mean ensemble disagreement of the last rollout per field",
		}, []string{"field"}),
		ReplaySize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "replay",
			Name:      "transitions",
			Help:      "Transitions held in the replay buffer",
		}),
		CycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one decision cycle",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		LifecycleEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "lifecycle",
			Name:      "events_total",
			Help:      "Lifecycle events by kind",
		}, []string{"kind"}),
	}
}

// #endregion metrics

// #region recorders
func (m *Metrics) ObserveWeight(field string, w float64) {
	if m == nil {
		return
	}
	m.FieldWeight.WithLabelValues(field).Set(w)
}

func (m *Metrics) ObserveLoss(loss float64) {
	if m == nil {
		return
	}
	m.GovernanceLoss.Set(loss)
}

func (m *Metrics) ObserveNoOp() {
	if m == nil {
		return
	}
	m.GovernorNoOps.Inc()
}

func (m *Metrics) ObservePopulation(n int) {
	if m == nil {
		return
	}
	m.Population.Set(float64(n))
}

func (m *Metrics) ObserveViolation(constraint string) {
	if m == nil {
		return
	}
	m.Violations.WithLabelValues(constraint).Inc()
}

func (m *Metrics) ObserveMissing(field, cause string) {
	if m == nil {
		return
	}
	m.UpstreamTimeouts.WithLabelValues(field, cause).Inc()
}

func (m *Metrics) ObserveDisagreement(field string, v float64) {
	if m == nil {
		return
	}
	m.Disagreement.WithLabelValues(field).Set(v)
}

func (m *Metrics) ObserveReplay(n int) {
	if m == nil {
		return
	}
	m.ReplaySize.Set(float64(n))
}

func (m *Metrics) ObserveLifecycle(kind string) {
	if m == nil {
		return
	}
	m.LifecycleEvents.WithLabelValues(kind).Inc()
}

// ObserveCycle counts one cycle and records its duration.
func (m *Metrics) ObserveCycle(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(outcome).Inc()
	m.CycleDuration.Observe(d.Seconds())
}

// #endregion recorders
