package worldmodel

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/buffer"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/config"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/linalg"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type zeroActor struct{ dim int }

func (a zeroActor) Act([]float64) []float64 { return make([]float64, a.dim) }

// constantMember predicts the same reward from every state.
func constantMember(cfg config.Config, id int, reward float64) *Member {
	m := NewMember(id, cfg.Model, cfg.Ensemble, int64(id))
	for i := range m.rew {
		m.rew[i] = 0
	}
	m.bRew = reward
	return m
}

func ensembleOf(cfg config.Config, members ...*Member) *Ensemble {
	e := NewEnsemble(cfg, nil)
	e.members = members
	return e
}

func testState(cfg config.Config) state.State {
	latent := make([]float64, cfg.Model.LatentDim)
	for i := range latent {
		latent[i] = math.Sin(float64(i))
	}
	return state.State{Latent: latent, Coherence: 0.7, Uncertainty: 0.2}
}

func TestKLStandardNormalIsZero(t *testing.T) {
	assert.Equal(t, 0.0, KL([]float64{0, 0, 0}, []float64{0, 0, 0}))
}

func TestKLMatchesFormula(t *testing.T) {
	mean := []float64{1, -0.5}
	logvar := []float64{0.2, -0.3}
	want := 0.5 * ((math.Exp(0.2) + 1 - 1 - 0.2) + (math.Exp(-0.3) + 0.25 - 1 + 0.3))
	assert.InDelta(t, want, KL(mean, logvar), 1e-12)
	assert.Greater(t, KL(mean, logvar), 0.0)
}

func TestDiscountedReturnNoDisagreement(t *testing.T) {
	cfg := config.Small()
	cfg.Ensemble.Horizon = 5
	cfg.Ensemble.Gamma = 0.99
	var members []*Member
	for k := 0; k < 5; k++ {
		members = append(members, constantMember(cfg, k, 1))
	}
	e := ensembleOf(cfg, members...)

	r, err := e.Imagine(context.Background(), testState(cfg), field.AISafety, zeroActor{cfg.Model.ActionDim}, 5)
	require.NoError(t, err)

	want := 1 + 0.99 + math.Pow(0.99, 2) + math.Pow(0.99, 3) + math.Pow(0.99, 4)
	assert.InDelta(t, want, r.Return(), 1e-9)
	assert.InDelta(t, 4.90, r.Return(), 0.005)
	require.Len(t, r.Disagreement, 5)
	for _, d := range r.Disagreement {
		assert.InDelta(t, 0, d, 1e-12)
	}
	assert.Equal(t, field.AISafety, r.Field)
}

func TestDisagreementIsMemberVariance(t *testing.T) {
	cfg := config.Small()
	e := ensembleOf(cfg, constantMember(cfg, 0, 1), constantMember(cfg, 1, 3))

	r, err := e.Imagine(context.Background(), testState(cfg), field.HumanEthical, zeroActor{cfg.Model.ActionDim}, 3)
	require.NoError(t, err)
	require.Len(t, r.Disagreement, 3)
	for _, d := range r.Disagreement {
		assert.InDelta(t, 1.0, d, 1e-12)
	}
	assert.InDelta(t, 2.0, r.Rewards[0], 1e-12)
	assert.InDelta(t, 2.0*cfg.Ensemble.Gamma, r.Rewards[1], 1e-12)
}

func TestRolloutShape(t *testing.T) {
	cfg := config.Small()
	e := NewEnsemble(cfg, nil)
	bank := field.NewBank(cfg, nil)

	actors := map[field.ID]field.Actor{}
	for _, id := range field.All() {
		actors[id] = bank.Module(id)
	}
	out, err := e.ImagineFields(context.Background(), testState(cfg), actors, 0)
	require.NoError(t, err)
	for _, id := range field.All() {
		r := out[id]
		require.NotNil(t, r)
		require.Len(t, r.Steps, cfg.Ensemble.Size)
		for _, steps := range r.Steps {
			require.Len(t, steps, cfg.Ensemble.Horizon)
			assert.Len(t, steps[0].Mean, cfg.Model.WorldLatentDim)
			assert.Len(t, steps[0].LogVar, cfg.Model.WorldLatentDim)
		}
		assert.Len(t, r.Rewards, cfg.Ensemble.Horizon)
	}
}

func TestImagineIsPure(t *testing.T) {
	cfg := config.Small()
	e := NewEnsemble(cfg, nil)
	actor := field.NewModule(field.AIAutonomy, cfg.Model, 3)
	st := testState(cfg)

	a, err := e.Imagine(context.Background(), st, field.AIAutonomy, actor, 4)
	require.NoError(t, err)
	b, err := e.Imagine(context.Background(), st, field.AIAutonomy, actor, 4)
	require.NoError(t, err)
	assert.Equal(t, a.Rewards, b.Rewards)
	assert.Equal(t, a.Disagreement, b.Disagreement)
}

func TestImagineCancelled(t *testing.T) {
	cfg := config.Small()
	e := NewEnsemble(cfg, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Imagine(ctx, testState(cfg), field.AIAutonomy, zeroActor{cfg.Model.ActionDim}, 4)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTrainNeedsFullBatch(t *testing.T) {
	cfg := config.Small()
	e := NewEnsemble(cfg, nil)
	buf := buffer.New(100)

	_, err := e.Train(context.Background(), buf, cfg.Replay.BatchSize)
	require.Error(t, err)
	assert.True(t, errors.Is(err, buffer.ErrInsufficientData))
	assert.False(t, e.Warm())
}

func TestTrainReducesRewardError(t *testing.T) {
	cfg := config.Small()
	cfg.Ensemble.LearningRate = 0.05
	e := NewEnsemble(cfg, nil)
	buf := buffer.New(256)

	st := testState(cfg)
	for i := 0; i < 64; i++ {
		buf.Append(state.Transition{
			State:  st.Latent,
			Action: make([]float64, cfg.Model.ActionDim),
			Reward: 0.5,
			Next:   st.Latent,
		})
	}

	first, err := e.Train(context.Background(), buf, 16)
	require.NoError(t, err)
	var last TrainReport
	for i := 0; i < 200; i++ {
		last, err = e.Train(context.Background(), buf, 16)
		require.NoError(t, err)
	}
	assert.True(t, e.Warm())
	assert.Equal(t, int64(201), last.Round)
	for k := range last.Members {
		assert.Less(t, last.Members[k].Total, first.Members[k].Total, "member %d", k)
		assert.False(t, math.IsNaN(last.Members[k].Total))
	}

	r, err := e.Imagine(context.Background(), st, field.HumanCognitive, zeroActor{cfg.Model.ActionDim}, 1)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, r.Rewards[0], 0.15)
	assert.GreaterOrEqual(t, linalg.Mean(r.Disagreement), 0.0)
}
