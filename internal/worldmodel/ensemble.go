// Package worldmodel implements the predictive ensemble used for
// imagination rollouts over a bounded horizon.
package worldmodel

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/buffer"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/config"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/linalg"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

// #region rollout
// MemberStep is one member's prediction at one horizon step.
type MemberStep struct {
	Mean   []float64
	LogVar []float64
	Reward float64
}

// Rollout is the imagination result for one field. Steps is indexed
// [member][step]; Rewards and Disagreement are indexed by step.
type Rollout struct {
	Field        field.ID
	Steps        [][]MemberStep
	Rewards      []float64 // γ^t · mean member reward at step t+1
	Disagreement []float64 // variance of member rewards at each step
}

// Return is the discounted imagined reward summed over the horizon.
func (r Rollout) Return() float64 {
	var s float64
	for _, v := range r.Rewards {
		s += v
	}
	return s
}

// MeanReward is the discounted imagined reward averaged over the horizon.
func (r Rollout) MeanReward() float64 {
	if len(r.Rewards) == 0 {
		return 0
	}
	return r.Return() / float64(len(r.Rewards))
}

// MeanDisagreement averages disagreement over the horizon.
func (r Rollout) MeanDisagreement() float64 {
	return linalg.Mean(r.Disagreement)
}

// #endregion rollout

// #region ensemble
// Ensemble holds K members. Imagination is read-only over member
// parameters; training takes each member's write lock in turn.
type Ensemble struct {
	members []*Member
	horizon int
	gamma   float64
	workers int
	rounds  atomic.Int64
	log     *zap.Logger
}

// NewEnsemble builds cfg.Ensemble.Size members with distinct seeds.
func NewEnsemble(cfg config.Config, log *zap.Logger) *Ensemble {
	if log == nil {
		log = zap.NewNop()
	}
	workers := cfg.Runtime.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	e := &Ensemble{
		horizon: cfg.Ensemble.Horizon,
		gamma:   cfg.Ensemble.Gamma,
		workers: workers,
		log:     log,
	}
	for k := 0; k < cfg.Ensemble.Size; k++ {
		seed := cfg.Runtime.Seed*1_000_003 + int64(k)*104_729
		e.members = append(e.members, NewMember(k, cfg.Model, cfg.Ensemble, seed))
	}
	return e
}

// Size returns K.
func (e *Ensemble) Size() int { return len(e.members) }

// Horizon returns the configured imagination horizon.
func (e *Ensemble) Horizon() int { return e.horizon }

// Warm reports whether at least one training round has completed.
func (e *Ensemble) Warm() bool { return e.rounds.Load() > 0 }

// Rounds returns the number of completed training rounds.
func (e *Ensemble) Rounds() int64 { return e.rounds.Load() }

// #endregion ensemble

// #region imagine
// Imagine rolls every member forward horizon steps from st, choosing each
// step's action with actor. Members run in parallel; steps within a member
// are sequential because step t+1 starts from step t's prediction.
func (e *Ensemble) Imagine(ctx context.Context, st state.State, id field.ID, actor field.Actor, horizon int) (Rollout, error) {
	out, err := e.ImagineFields(ctx, st, map[field.ID]field.Actor{id: actor}, horizon)
	if err != nil {
		return Rollout{}, err
	}
	return *out[id], nil
}

// ImagineFields imagines every field in actors with one flat task set of
// (field, member) pairs bounded by the worker limit, joined before return.
func (e *Ensemble) ImagineFields(ctx context.Context, st state.State, actors map[field.ID]field.Actor, horizon int) ([field.Count]*Rollout, error) {
	var out [field.Count]*Rollout
	if horizon <= 0 {
		horizon = e.horizon
	}
	for id := range actors {
		if !id.Valid() {
			return out, fmt.Errorf("imagine: invalid field %d", int(id))
		}
		out[id] = &Rollout{Field: id, Steps: make([][]MemberStep, len(e.members))}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for id, actor := range actors {
		id, actor := id, actor
		for k, m := range e.members {
			k, m := k, m
			g.Go(func() error {
				steps, err := rollMember(gctx, m, st.Latent, actor, horizon)
				if err != nil {
					return fmt.Errorf("imagine %s member %d: %w", id, k, err)
				}
				out[id].Steps[k] = steps
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return [field.Count]*Rollout{}, err
	}

	for _, r := range out {
		if r != nil {
			summarize(r, horizon, e.gamma)
		}
	}
	return out, nil
}

func rollMember(ctx context.Context, m *Member, latent []float64, actor field.Actor, horizon int) ([]MemberStep, error) {
	steps := make([]MemberStep, 0, horizon)
	s := latent
	for t := 0; t < horizon; t++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		a := actor.Act(s)
		mean, logvar := m.Encode(s, a)
		next, r := m.Predict(mean)
		steps = append(steps, MemberStep{Mean: mean, LogVar: logvar, Reward: r})
		s = next
	}
	return steps, nil
}

func summarize(r *Rollout, horizon int, gamma float64) {
	r.Rewards = make([]float64, horizon)
	r.Disagreement = make([]float64, horizon)
	rewards := make([]float64, len(r.Steps))
	discount := 1.0
	for t := 0; t < horizon; t++ {
		for k := range r.Steps {
			rewards[k] = r.Steps[k][t].Reward
		}
		r.Rewards[t] = discount * linalg.Mean(rewards)
		r.Disagreement[t] = linalg.Variance(rewards)
		discount *= gamma
	}
}

// #endregion imagine

// #region train
// TrainReport summarises one training round.
type TrainReport struct {
	Round   int64
	Members []Loss
	MeanKL  float64
}

// Train draws an independent bootstrap batch per member and takes one step
// on each, in parallel. It returns buffer.ErrInsufficientData, wrapped,
// until the buffer holds a full batch.
func (e *Ensemble) Train(ctx context.Context, buf *buffer.Buffer, batchSize int) (TrainReport, error) {
	if !buf.Ready(batchSize) {
		return TrainReport{}, fmt.Errorf("train ensemble: %d/%d transitions: %w", buf.Len(), batchSize, buffer.ErrInsufficientData)
	}
	losses := make([]Loss, len(e.members))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for k, m := range e.members {
		k, m := k, m
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			l, err := m.trainFrom(buf, batchSize)
			if err != nil {
				return err
			}
			losses[k] = l
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return TrainReport{}, fmt.Errorf("train ensemble: %w", err)
	}

	round := e.rounds.Add(1)
	var kl float64
	for _, l := range losses {
		kl += l.KL
	}
	kl /= float64(len(losses))
	if math.IsNaN(kl) {
		e.log.Warn("ensemble KL is NaN", zap.Int64("round", round))
	}
	return TrainReport{Round: round, Members: losses, MeanKL: kl}, nil
}

func (m *Member) trainFrom(buf *buffer.Buffer, n int) (Loss, error) {
	m.mu.Lock()
	batch, err := buf.Sample(m.rng, n)
	m.mu.Unlock()
	if err != nil {
		return Loss{}, err
	}
	return m.Train(batch), nil
}

// #endregion train
