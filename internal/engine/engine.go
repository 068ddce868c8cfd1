// Package engine runs the governed decision cycle: field proposals, governor
// weighting, invariant gating, imagination, learning and agent lifecycle.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/buffer"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/config"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/events"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/governor"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/invariant"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/lifecycle"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/linalg"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/metrics"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/worldmodel"
)

// spawnDepth is the recursion depth of agents spawned by the engine itself.
const spawnDepth = 1

// #region engine
// Engine owns every component of the loop. Cycle calls are serialised.
type Engine struct {
	mu  sync.Mutex
	cfg config.Config

	encoder  *state.Encoder
	bank     *field.Bank
	ensemble *worldmodel.Ensemble
	governor *governor.Governor
	enforcer invariant.Enforcer
	agents   *lifecycle.Manager
	events   *events.Log
	buf      *buffer.Buffer

	providers map[field.ID]field.Policy
	observers []Observer
	metrics   *metrics.Metrics
	log       *zap.Logger
	rng       *rand.Rand

	cycle     int64
	eventSeq  int64
	pending   *state.Transition
	lastState state.State
}

// New validates cfg and builds the engine.
func New(cfg config.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	e := &Engine{
		cfg:       cfg,
		providers: make(map[field.ID]field.Policy),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.events == nil {
		e.events = events.NewLog()
	}

	e.encoder = state.NewEncoder(cfg.Model, cfg.Runtime.Seed)
	e.bank = field.NewBank(cfg, e.log.Named("field"))
	for id, p := range e.providers {
		e.bank.SetProvider(id, p)
	}
	e.ensemble = worldmodel.NewEnsemble(cfg, e.log.Named("worldmodel"))
	e.governor = governor.New(cfg, e.log.Named("governor"))
	e.enforcer = invariant.NewEnforcer(cfg.Invariants)
	e.agents = lifecycle.New(cfg, e.events, e.log.Named("lifecycle"))
	e.buf = buffer.New(cfg.Replay.Capacity)
	e.rng = rand.New(rand.NewSource(cfg.Runtime.Seed ^ 0xc0ffee))
	e.eventSeq = int64(e.events.Len())
	return e, nil
}

// #endregion engine

// #region accessors
func (e *Engine) Config() config.Config          { return e.cfg }
func (e *Engine) Buffer() *buffer.Buffer         { return e.buf }
func (e *Engine) Governor() *governor.Governor   { return e.governor }
func (e *Engine) Ensemble() *worldmodel.Ensemble { return e.ensemble }
func (e *Engine) Bank() *field.Bank              { return e.bank }
func (e *Engine) Agents() *lifecycle.Manager     { return e.agents }
func (e *Engine) Events() *events.Log            { return e.events }
func (e *Engine) Enforcer() invariant.Enforcer   { return e.enforcer }

// AddObserver registers an observer for subsequent cycles.
func (e *Engine) AddObserver(o Observer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, o)
}

// Cycles returns the number of completed cycles.
func (e *Engine) Cycles() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cycle
}

// Transitions exports up to limit of the newest replay entries, oldest first.
func (e *Engine) Transitions(limit int) []state.Transition {
	return e.buf.Snapshot(limit)
}

// #endregion accessors

// #region cycle
// Cycle runs one full decision cycle for obs. Upstream timeouts, missing
// training data, invariant violations and capacity limits degrade the cycle
// but never abort it; only a malformed observation or a cancelled context
// returns an error.
func (e *Engine) Cycle(ctx context.Context, obs state.Observation) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	st, err := e.encoder.Observe(obs)
	if err != nil {
		return Report{}, fmt.Errorf("cycle %d: %w", e.cycle+1, err)
	}
	e.cycle++
	r := Report{Cycle: e.cycle}

	// The previous committed action is resolved by this observation.
	if e.pending != nil {
		t := *e.pending
		t.Reward = obs.Reward
		t.Next = st.Latent
		e.buf.Append(t)
		e.pending = nil
	}

	// 1. Proposals
	r.Proposals = e.bank.ProposeAll(ctx, st)
	for _, id := range field.All() {
		if err := r.Proposals.Missing[id]; err != nil {
			r.Degraded = append(r.Degraded, err)
			cause := "error"
			if errors.Is(err, field.ErrUpstreamTimeout) {
				cause = "timeout"
			}
			e.metrics.ObserveMissing(id.String(), cause)
		}
	}
	if obs.Signals == nil {
		st = refineUncertainty(st, r.Proposals)
	}
	r.State = st
	e.lastState = st

	// 2. Weigh and aggregate
	var latents [field.Count][]float64
	for i, p := range r.Proposals.Items {
		if p != nil {
			latents[i] = p.Latent
		}
	}
	w, err := e.governor.Weigh(latents)
	if err != nil {
		r.Degraded = append(r.Degraded, err)
		r.Outcome = metrics.OutcomeEmpty
		r.Update = noOp("no proposals", err)
		return e.finish(ctx, r, start), nil
	}
	r.Weights = w
	action, err := governor.Aggregate(w, r.Proposals)
	if err != nil {
		r.Degraded = append(r.Degraded, err)
		r.Outcome = metrics.OutcomeEmpty
		r.Update = noOp("aggregate failed", err)
		return e.finish(ctx, r, start), nil
	}
	r.Action = action

	// 3. Gate
	r.Verdict = e.enforcer.Check(observables(st), e.agents.Population(), 0)
	if r.Verdict.OK {
		r.Committed = true
		r.Outcome = metrics.OutcomeCommit
		e.pending = &state.Transition{State: linalg.Copy(st.Latent), Action: linalg.Copy(action)}
	} else {
		r.Outcome = metrics.OutcomeReject
		verr := r.Verdict.Err()
		r.Degraded = append(r.Degraded, verr)
		for _, v := range r.Verdict.Violations {
			if _, err := e.events.Append(events.Event{
				Cycle:      r.Cycle,
				Kind:       events.KindViolation,
				Constraint: string(v.Constraint),
				Detail:     "action rejected: " + v.Reason,
			}); err != nil {
				e.log.Warn("event sink failed", zap.Error(err))
			}
		}
		e.log.Info("action rejected",
			zap.Int64("cycle", r.Cycle),
			zap.String("reason", r.Verdict.Reason()))
	}

	// 4. Imagine
	if r.Committed && e.ensemble.Warm() {
		e.imagine(ctx, st, &r)
	}

	// 5. Train
	e.train(ctx, &r)

	// 6. Update
	if r.Committed {
		r.Update = e.governor.Update(w, r.Imagined)
		if r.Update.Skipped() {
			r.Degraded = append(r.Degraded, r.Update.Cause)
			e.metrics.ObserveNoOp()
		} else {
			e.metrics.ObserveLoss(r.Update.Loss)
		}
	} else {
		r.Update = noOp("action rejected", r.Verdict.Err())
	}

	return e.finish(ctx, r, start), nil
}

// finish runs the lifecycle step, fills the governor event, and notifies
// observers. It runs on every path through Cycle.
func (e *Engine) finish(ctx context.Context, r Report, start time.Time) Report {
	st := e.lastState

	if every := e.cfg.Lifecycle.SpawnEvery; every > 0 && r.Cycle%int64(every) == 0 {
		id, err := e.agents.Spawn(r.Cycle, st, spawnDepth)
		if err != nil {
			r.Degraded = append(r.Degraded, err)
		} else {
			r.Spawned = id
		}
	}
	r.Lifecycle = e.agents.Step(r.Cycle, st)
	r.Population = r.Lifecycle.Population

	r.Events = e.events.Since(e.eventSeq)
	e.eventSeq += int64(len(r.Events))
	for _, ev := range r.Events {
		e.metrics.ObserveLifecycle(string(ev.Kind))
		if ev.Kind == events.KindViolation {
			e.metrics.ObserveViolation(ev.Constraint)
		}
	}

	r.Governor = events.GovernorEvent{
		Cycle:          r.Cycle,
		Weights:        r.Weights,
		DominantField:  r.Weights.Dominant(),
		GovernanceLoss: r.Update.Loss,
		Committed:      r.Committed,
		NoOp:           r.Update.Skipped(),
	}
	if r.Committed {
		r.Governor.CommittedAction = linalg.Copy(r.Action)
	}

	r.Duration = time.Since(start)
	for _, id := range field.All() {
		e.metrics.ObserveWeight(id.String(), r.Weights[id])
	}
	e.metrics.ObservePopulation(r.Population)
	e.metrics.ObserveReplay(e.buf.Len())
	e.metrics.ObserveCycle(r.Outcome, r.Duration)

	for _, o := range e.observers {
		if err := o.ObserveCycle(ctx, r); err != nil {
			e.log.Warn("observer failed", zap.Int64("cycle", r.Cycle), zap.Error(err))
		}
	}
	e.log.Debug("cycle complete",
		zap.Int64("cycle", r.Cycle),
		zap.String("outcome", r.Outcome),
		zap.String("dominant", r.Governor.DominantField.String()),
		zap.Int("population", r.Population),
		zap.Duration("took", r.Duration))
	return r
}

// #endregion cycle

// #region imagine
// imagine rolls out every weighted field and fills r.Imagined. A field is
// Ready only when its rollout completed.
func (e *Engine) imagine(ctx context.Context, st state.State, r *Report) {
	actors := make(map[field.ID]field.Actor)
	for _, id := range field.All() {
		if r.Weights[id] > 0 {
			actors[id] = e.bank.Module(id)
		}
	}
	rollouts, err := e.ensemble.ImagineFields(ctx, st, actors, e.ensemble.Horizon())
	if err != nil {
		r.Degraded = append(r.Degraded, err)
		e.log.Warn("imagination failed", zap.Int64("cycle", r.Cycle), zap.Error(err))
		return
	}
	for _, ro := range rollouts {
		if ro == nil {
			continue
		}
		r.Imagined.Mean[ro.Field] = ro.MeanReward()
		r.Imagined.Ready[ro.Field] = true
		e.metrics.ObserveDisagreement(ro.Field.String(), ro.MeanDisagreement())
		r.WorldModel = append(r.WorldModel, events.WorldModelEvent{
			Cycle:          r.Cycle,
			Field:          ro.Field,
			HorizonRewards: ro.Rewards,
			Disagreement:   ro.Disagreement,
		})
	}
}

// #endregion imagine

// #region train
func (e *Engine) train(ctx context.Context, r *Report) {
	n := e.cfg.Replay.BatchSize
	tr, err := e.ensemble.Train(ctx, e.buf, n)
	if err != nil {
		r.Degraded = append(r.Degraded, err)
		return
	}
	r.Train = &tr
	batch, err := e.buf.Sample(e.rng, n)
	if err != nil {
		r.Degraded = append(r.Degraded, err)
		return
	}
	e.bank.TrainCritics(batch, e.cfg.Ensemble.Gamma, e.cfg.Ensemble.LearningRate)
}

// #endregion train

// #region spawn
// Spawn requests a new agent at depth against the most recent shared state.
func (e *Engine) Spawn(ctx context.Context, depth int) (lifecycle.AgentID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.agents.Spawn(e.cycle, e.lastState, depth)
}

// #endregion spawn

// #region helpers
func observables(st state.State) invariant.Observables {
	return invariant.Observables{Coherence: st.Coherence, Uncertainty: st.Uncertainty}
}

func noOp(reason string, cause error) governor.UpdateResult {
	return governor.UpdateResult{
		Decision: governor.Decision{Action: governor.ActionNoOp, Reason: reason},
		Cause:    cause,
	}
}

// refineUncertainty blends the encoder's saturation estimate with the
// present fields' own uncertainty.
func refineUncertainty(st state.State, props field.Proposals) state.State {
	var us []float64
	for _, p := range props.Items {
		if p != nil {
			us = append(us, p.Uncertainty)
		}
	}
	if len(us) == 0 {
		return st
	}
	st.Uncertainty = linalg.Clamp(0.5*st.Uncertainty+0.5*linalg.Mean(us), 0, 1)
	return st
}

// #endregion helpers
