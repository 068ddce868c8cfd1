package governor

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/buffer"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/config"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
)

func randomLatents(rng *rand.Rand, dim int) [field.Count][]float64 {
	var out [field.Count][]float64
	for i := range out {
		h := make([]float64, dim)
		for j := range h {
			h[j] = math.Tanh(rng.NormFloat64() * 2)
		}
		out[i] = h
	}
	return out
}

func allReady(mean float64) Imagined {
	var im Imagined
	for i := range im.Ready {
		im.Ready[i] = true
		im.Mean[i] = mean
	}
	return im
}

func TestWeighSumsToOne(t *testing.T) {
	cfg := config.Small()
	g := New(cfg, nil)
	rng := rand.New(rand.NewSource(1))

	for trial := 0; trial < 200; trial++ {
		latents := randomLatents(rng, cfg.Model.FieldLatentDim)
		// drop a random subset, keeping at least one
		for i := range latents {
			if rng.Float64() < 0.3 {
				latents[i] = nil
			}
		}
		latents[rng.Intn(field.Count)] = randomLatents(rng, cfg.Model.FieldLatentDim)[0]

		w, err := g.Weigh(latents)
		require.NoError(t, err)
		assert.InDelta(t, 1.0, w.Sum(), 1e-6)
		require.True(t, w.Valid(1e-6), "weights %v", w)
		for i, h := range latents {
			if h == nil {
				assert.Zero(t, w[i], "absent field %d got weight", i)
			}
		}
	}
}

func TestWeighStableForHugeLogits(t *testing.T) {
	cfg := config.Small()
	g := New(cfg, nil)
	g.bias[field.AISafety] = 1e6
	g.bias[field.AIAlignment] = -1e6

	w, err := g.Weigh(randomLatents(rand.New(rand.NewSource(2)), cfg.Model.FieldLatentDim))
	require.NoError(t, err)
	require.True(t, w.Valid(1e-6))
	assert.InDelta(t, 1.0, w[field.AISafety], 1e-9)
	assert.Equal(t, field.AISafety, w.Dominant())
}

func TestWeighNoProposals(t *testing.T) {
	g := New(config.Small(), nil)
	_, err := g.Weigh([field.Count][]float64{})
	assert.ErrorIs(t, err, ErrNoProposals)
}

func TestWeighRejectsWrongWidth(t *testing.T) {
	g := New(config.Small(), nil)
	var latents [field.Count][]float64
	latents[0] = []float64{1, 2}
	_, err := g.Weigh(latents)
	assert.Error(t, err)
}

func TestSingleFieldTakesAllWeight(t *testing.T) {
	cfg := config.Small()
	g := New(cfg, nil)
	var latents [field.Count][]float64
	latents[field.ResourceEcology] = randomLatents(rand.New(rand.NewSource(3)), cfg.Model.FieldLatentDim)[0]

	w, err := g.Weigh(latents)
	require.NoError(t, err)
	assert.Equal(t, 1.0, w[field.ResourceEcology])
}

func TestAggregateWeightedSum(t *testing.T) {
	var props field.Proposals
	props.Items[field.HumanCognitive] = &field.Proposal{Action: []float64{1, 0}}
	props.Items[field.AISafety] = &field.Proposal{Action: []float64{0, 2}}
	var w Weights
	w[field.HumanCognitive] = 0.25
	w[field.AISafety] = 0.75

	action, err := Aggregate(w, props)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 1.5}, action)

	again, err := Aggregate(w, props)
	require.NoError(t, err)
	assert.Equal(t, action, again)
}

func TestAggregateMissingWeightedProposal(t *testing.T) {
	var props field.Proposals
	var w Weights
	w[field.AIAutonomy] = 1
	_, err := Aggregate(w, props)
	assert.Error(t, err)
}

func TestUpdateShiftsWeightTowardRewardedField(t *testing.T) {
	cfg := config.Small()
	g := New(cfg, nil)
	latents := randomLatents(rand.New(rand.NewSource(4)), cfg.Model.FieldLatentDim)

	before, err := g.Weigh(latents)
	require.NoError(t, err)

	im := allReady(0)
	im.Mean[field.HumanEthical] = 1
	im.Mean[field.AIAutonomy] = -1

	w := before
	var first UpdateResult
	for i := 0; i < 100; i++ {
		res := g.Update(w, im)
		require.False(t, res.Skipped())
		if i == 0 {
			first = res
		}
		w, err = g.Weigh(latents)
		require.NoError(t, err)
	}
	// contexts are fixed for fixed latents, so the log-ratio of the two
	// fields moves only through bias and readout and must grow
	assert.Greater(t,
		math.Log(w[field.HumanEthical]/w[field.AIAutonomy]),
		math.Log(before[field.HumanEthical]/before[field.AIAutonomy]))

	last := g.Update(w, im)
	assert.Less(t, last.Loss, first.Loss)
}

func TestUpdateLossFormula(t *testing.T) {
	g := New(config.Small(), nil)
	var w Weights
	w[0], w[1] = 0.5, 0.5
	var im Imagined
	im.Ready[0], im.Ready[1] = true, true
	im.Mean[0], im.Mean[1] = 2, 4

	res := g.Update(w, im)
	// −(1/2)·(0.5·2 + 0.5·4) = −1.5
	assert.InDelta(t, -1.5, res.Loss, 1e-12)
	assert.Equal(t, ActionCommit, res.Decision.Action)
}

func TestUpdateLossNormalisedOverWeightedFields(t *testing.T) {
	g := New(config.Small(), nil)
	im := allReady(1)
	var w Weights
	for _, id := range field.All() {
		if id != field.ResourceEcology {
			w[id] = 1.0 / 8
		}
	}

	res := g.Update(w, im)
	// eight weighted fields: −(1/8)·Σ(1/8·1) = −0.125, not −1/9
	assert.InDelta(t, -0.125, res.Loss, 1e-12)
}

func TestUpdateInsufficientDataIsNoOp(t *testing.T) {
	cfg := config.Small()
	g := New(cfg, nil)
	latents := randomLatents(rand.New(rand.NewSource(5)), cfg.Model.FieldLatentDim)

	before, err := g.Weigh(latents)
	require.NoError(t, err)

	res := g.Update(before, Imagined{})
	assert.True(t, res.Skipped())
	assert.True(t, errors.Is(res.Cause, buffer.ErrInsufficientData))

	after, err := g.Weigh(latents)
	require.NoError(t, err)
	assert.Equal(t, before, after, "weights changed after a no-op update")

	entries := g.History().Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].NoOp)
}

func TestUpdateIgnoresAbsentFields(t *testing.T) {
	g := New(config.Small(), nil)
	var w Weights
	w[field.AISafety] = 1
	var im Imagined
	im.Ready[field.AISafety] = true
	im.Mean[field.AISafety] = 0.3
	// every other field is unready, but carries no weight

	res := g.Update(w, im)
	assert.False(t, res.Skipped())
}

func TestHistoryBounded(t *testing.T) {
	cfg := config.Small()
	cfg.Governor.HistoryWindow = 5
	g := New(cfg, nil)
	var w Weights
	w[0] = 1
	im := allReady(1)
	for i := 0; i < 12; i++ {
		g.Update(w, im)
	}
	entries := g.History().Entries()
	require.Len(t, entries, 5)
	assert.Equal(t, int64(8), entries[0].Seq)
	assert.Equal(t, int64(12), entries[4].Seq)
	assert.Len(t, g.History().Losses(), 5)
}

func TestDominantTieGoesToLowerID(t *testing.T) {
	var w Weights
	w[2], w[5] = 0.5, 0.5
	assert.Equal(t, field.ID(2), w.Dominant())
}
