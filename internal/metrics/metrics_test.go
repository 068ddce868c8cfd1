package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(reg), reg
}

func TestRecorders(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveWeight("human_ethical", 0.4)
	m.ObserveLoss(-0.25)
	m.ObservePopulation(7)
	m.ObserveViolation("coherence_floor")
	m.ObserveViolation("coherence_floor")
	m.ObserveMissing("ai_safety", "timeout")
	m.ObserveNoOp()
	m.ObserveReplay(12)
	m.ObserveLifecycle("SPAWN")
	m.ObserveCycle(OutcomeCommit, 3*time.Millisecond)

	assert.Equal(t, 0.4, testutil.ToFloat64(m.FieldWeight.WithLabelValues("human_ethical")))
	assert.Equal(t, -0.25, testutil.ToFloat64(m.GovernanceLoss))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.Population))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Violations.WithLabelValues("coherence_floor")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamTimeouts.WithLabelValues("ai_safety", "timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GovernorNoOps))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.ReplaySize))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LifecycleEvents.WithLabelValues("SPAWN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues(OutcomeCommit)))
}

func TestHistogramCollected(t *testing.T) {
	m, reg := newTestMetrics(t)
	m.ObserveCycle(OutcomeReject, time.Millisecond)

	n, err := testutil.GatherAndCount(reg, "ninefield_cycle_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveWeight("x", 1)
	m.ObserveCycle(OutcomeEmpty, time.Second)
	m.ObservePopulation(1)
}

func TestDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
