package field

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/config"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/linalg"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

// #region module
// Module is a locally computed field: a tanh actor, a linear critic, and a
// projection producing the field latent.
type Module struct {
	id ID

	mu         sync.RWMutex
	actor      *linalg.Matrix
	actorBias  []float64
	critic     []float64
	criticBias float64
	proj       *linalg.Matrix
}

// NewModule builds a module with seeded parameters.
func NewModule(id ID, cfg config.ModelConfig, seed int64) *Module {
	rng := rand.New(rand.NewSource(seed))
	return &Module{
		id:        id,
		actor:     linalg.NewRandom(rng, cfg.ActionDim, cfg.LatentDim, 1.0),
		actorBias: make([]float64, cfg.ActionDim),
		critic:    make([]float64, cfg.LatentDim),
		proj:      linalg.NewRandom(rng, cfg.FieldLatentDim, cfg.LatentDim, 1.0),
	}
}

// ID returns the field this module serves.
func (m *Module) ID() ID { return m.id }

// Act returns tanh(W·latent + b).
func (m *Module) Act(latent []float64) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a := m.actor.MulVec(latent)
	for i := range a {
		a[i] = math.Tanh(a[i] + m.actorBias[i])
	}
	return a
}

// Value returns the critic estimate for latent.
func (m *Module) Value(latent []float64) float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return linalg.Dot(m.critic, latent) + m.criticBias
}

// Latent returns the field latent the governor attends over.
func (m *Module) Latent(latent []float64) []float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return linalg.Tanh(m.proj.MulVec(latent))
}

// ProposeAction implements Policy. The uncertainty contribution blends the
// shared uncertainty with how undecided the actor output is.
func (m *Module) ProposeAction(ctx context.Context, st state.State) (Proposal, error) {
	if err := ctx.Err(); err != nil {
		return Proposal{}, err
	}
	action := m.Act(st.Latent)
	var decisiveness float64
	for _, a := range action {
		decisiveness += math.Abs(a)
	}
	if len(action) > 0 {
		decisiveness /= float64(len(action))
	}
	return Proposal{
		Field:       m.id,
		Action:      action,
		Value:       m.Value(st.Latent),
		Uncertainty: linalg.Clamp(0.5*st.Uncertainty+0.5*(1-decisiveness), 0, 1),
		Latent:      m.Latent(st.Latent),
	}, nil
}

// #endregion module

// #region critic-training
// TrainCritic runs one TD(0) pass over batch and returns the mean squared
// TD error before the update.
func (m *Module) TrainCritic(batch []state.Transition, gamma, lr float64) float64 {
	if len(batch) == 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var sq float64
	scale := lr / float64(len(batch))
	for _, t := range batch {
		v := linalg.Dot(m.critic, t.State) + m.criticBias
		next := linalg.Dot(m.critic, t.Next) + m.criticBias
		td := t.Reward + gamma*next - v
		sq += td * td
		td = linalg.Clamp(td, -10, 10)
		linalg.Axpy(scale*td, t.State, m.critic)
		m.criticBias += scale * td
	}
	return sq / float64(len(batch))
}

// #endregion critic-training
