package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchesReference(t *testing.T) {
	c := Default()

	assert.Equal(t, 0.85, c.Invariants.UncertaintyCeiling)
	assert.Equal(t, 0.15, c.Invariants.CoherenceFloor)
	assert.Equal(t, 20, c.Invariants.MaxAgents)
	assert.Equal(t, 5, c.Invariants.MaxDepth)
	assert.Equal(t, 7, c.Ensemble.Size)
	assert.Equal(t, 5, c.Ensemble.Horizon)
	assert.Equal(t, 0.99, c.Ensemble.Gamma)
	assert.Equal(t, 500_000, c.Replay.Capacity)
	assert.Equal(t, 256, c.Replay.BatchSize)
	assert.Equal(t, 120, c.Governor.HistoryWindow)
	assert.Equal(t, -32.0, c.TargetEntropy)
	require.NoError(t, c.Validate())
}

func TestSmallIsValid(t *testing.T) {
	require.NoError(t, Small().Validate())
}

func TestValidateReportsEveryProblem(t *testing.T) {
	c := Default()
	c.Invariants.UncertaintyCeiling = 1.5
	c.Invariants.MaxAgents = 0
	c.Ensemble.Gamma = 0

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uncertainty_ceiling")
	assert.Contains(t, err.Error(), "max_agents")
	assert.Contains(t, err.Error(), "gamma")
}

func TestValidateBatchLargerThanCapacity(t *testing.T) {
	c := Default()
	c.Replay.Capacity = 10
	c.Replay.BatchSize = 11

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds capacity")
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ninefield.yaml")
	doc := `
invariants:
  max_agents: 12
ensemble:
  horizon: 8
runtime:
  field_timeout: 750ms
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 12, c.Invariants.MaxAgents)
	assert.Equal(t, 8, c.Ensemble.Horizon)
	assert.Equal(t, 750*time.Millisecond, c.Runtime.FieldTimeout)
	// untouched keys keep defaults
	assert.Equal(t, 0.85, c.Invariants.UncertaintyCeiling)
	assert.Equal(t, 7, c.Ensemble.Size)
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("invariants:\n  coherence_floor: -1\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
