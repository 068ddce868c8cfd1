package field

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/config"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testState(cfg config.Config) state.State {
	latent := make([]float64, cfg.Model.LatentDim)
	for i := range latent {
		latent[i] = 0.1 * float64(i%4)
	}
	return state.State{Latent: latent, Coherence: 0.8, Uncertainty: 0.2}
}

type slowPolicy struct{}

func (slowPolicy) ProposeAction(ctx context.Context, _ state.State) (Proposal, error) {
	<-ctx.Done()
	return Proposal{}, ctx.Err()
}

type brokenPolicy struct{ width int }

func (p brokenPolicy) ProposeAction(context.Context, state.State) (Proposal, error) {
	return Proposal{Action: make([]float64, p.width)}, nil
}

type skewedLatentPolicy struct{ action, latent int }

func (p skewedLatentPolicy) ProposeAction(context.Context, state.State) (Proposal, error) {
	return Proposal{Action: make([]float64, p.action), Latent: make([]float64, p.latent)}, nil
}

func TestFieldNames(t *testing.T) {
	assert.Equal(t, "human_cognitive", HumanCognitive.String())
	assert.Equal(t, "systemic_regulation", SystemicRegulation.String())
	assert.Len(t, All(), Count)

	id, err := ParseID("ai_safety")
	require.NoError(t, err)
	assert.Equal(t, AISafety, id)

	_, err = ParseID("astrology")
	assert.Error(t, err)
	assert.False(t, ID(9).Valid())
}

func TestModuleProposalShape(t *testing.T) {
	cfg := config.Small()
	m := NewModule(AIAlignment, cfg.Model, 11)

	p, err := m.ProposeAction(context.Background(), testState(cfg))
	require.NoError(t, err)
	assert.Equal(t, AIAlignment, p.Field)
	assert.Len(t, p.Action, cfg.Model.ActionDim)
	assert.Len(t, p.Latent, cfg.Model.FieldLatentDim)
	assert.GreaterOrEqual(t, p.Uncertainty, 0.0)
	assert.LessOrEqual(t, p.Uncertainty, 1.0)
	for _, a := range p.Action {
		assert.True(t, a >= -1 && a <= 1)
	}
}

func TestModuleRespectsCancelledContext(t *testing.T) {
	cfg := config.Small()
	m := NewModule(AIAlignment, cfg.Model, 11)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.ProposeAction(ctx, testState(cfg))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBankAllPresent(t *testing.T) {
	cfg := config.Small()
	b := NewBank(cfg, nil)

	props := b.ProposeAll(context.Background(), testState(cfg))
	assert.Equal(t, Count, props.Present())
	for _, id := range All() {
		require.True(t, props.Has(id))
		assert.Equal(t, id, props.Items[id].Field)
		assert.NoError(t, props.Missing[id])
	}
}

func TestBankTimeoutMarksFieldMissing(t *testing.T) {
	cfg := config.Small()
	cfg.Runtime.FieldTimeout = 20 * time.Millisecond
	b := NewBank(cfg, nil)
	b.SetProvider(ResourceEcology, slowPolicy{})

	props := b.ProposeAll(context.Background(), testState(cfg))
	assert.Equal(t, Count-1, props.Present())
	assert.False(t, props.Has(ResourceEcology))
	assert.True(t, errors.Is(props.Missing[ResourceEcology], ErrUpstreamTimeout))

	b.SetProvider(ResourceEcology, nil)
	props = b.ProposeAll(context.Background(), testState(cfg))
	assert.Equal(t, Count, props.Present())
}

func TestBankRejectsWrongActionWidth(t *testing.T) {
	cfg := config.Small()
	b := NewBank(cfg, nil)
	b.SetProvider(HumanEthical, brokenPolicy{width: cfg.Model.ActionDim + 1})

	props := b.ProposeAll(context.Background(), testState(cfg))
	assert.False(t, props.Has(HumanEthical))
	assert.Error(t, props.Missing[HumanEthical])
}

func TestBankRejectsWrongLatentWidth(t *testing.T) {
	cfg := config.Small()
	b := NewBank(cfg, nil)
	b.SetProvider(AISafety, skewedLatentPolicy{action: cfg.Model.ActionDim, latent: cfg.Model.FieldLatentDim + 1})

	props := b.ProposeAll(context.Background(), testState(cfg))
	assert.False(t, props.Has(AISafety))
	require.Error(t, props.Missing[AISafety])
	assert.Contains(t, props.Missing[AISafety].Error(), "latent width")
	assert.Equal(t, Count-1, props.Present())
}

func TestBankFillsLatentForProvidersWithoutOne(t *testing.T) {
	cfg := config.Small()
	b := NewBank(cfg, nil)
	b.SetProvider(HumanEthical, brokenPolicy{width: cfg.Model.ActionDim})

	props := b.ProposeAll(context.Background(), testState(cfg))
	require.True(t, props.Has(HumanEthical))
	assert.Len(t, props.Items[HumanEthical].Latent, cfg.Model.FieldLatentDim)
}

func TestTrainCriticMovesTowardReward(t *testing.T) {
	cfg := config.Small()
	m := NewModule(HumanCognitive, cfg.Model, 5)
	s := testState(cfg).Latent
	batch := []state.Transition{{State: s, Action: nil, Reward: 1, Next: make([]float64, len(s))}}

	before := m.Value(s)
	for i := 0; i < 50; i++ {
		m.TrainCritic(batch, 0, 0.05)
	}
	after := m.Value(s)
	assert.Greater(t, after, before)
	assert.InDelta(t, 1.0, after, 0.05)
}
