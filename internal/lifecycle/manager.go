// Package lifecycle admits, matures and retires autonomous agents under the
// hard invariants.
package lifecycle

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/config"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/events"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/invariant"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/linalg"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

const (
	// pull is the per-step fraction an agent's observables move toward the
	// shared state.
	pull = 0.1
	// jitter is the width of the uniform drift noise.
	jitter = 0.02
)

// #region manager
// Manager owns the agent arena. Agents live in a map keyed by id; order
// keeps insertion order for deterministic iteration.
type Manager struct {
	mu       sync.Mutex
	cfg      config.LifecycleConfig
	enforcer invariant.Enforcer
	agents   map[AgentID]*Agent
	order    []AgentID
	next     AgentID
	lineage  []Residue
	log      *events.Log
	rng      *rand.Rand
	logger   *zap.Logger
	now      func() time.Time
}

// New builds a manager. A nil log gets a private one; a nil logger is a no-op.
func New(cfg config.Config, log *events.Log, logger *zap.Logger) *Manager {
	if log == nil {
		log = events.NewLog()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		cfg:      cfg.Lifecycle,
		enforcer: invariant.NewEnforcer(cfg.Invariants),
		agents:   make(map[AgentID]*Agent),
		next:     1,
		log:      log,
		rng:      rand.New(rand.NewSource(cfg.Runtime.Seed ^ 0x11fe)),
		logger:   logger,
		now:      time.Now,
	}
}

// Events exposes the lifecycle event log.
func (m *Manager) Events() *events.Log { return m.log }

// #endregion manager

// #region spawn
// Spawn admits a new agent in the Spawning phase. The population cap is
// checked first; only then is the full invariant set checked against the
// shared state with the prospective population.
func (m *Manager) Spawn(cycle int64, st state.State, depth int) (AgentID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	limits := m.enforcer.Limits()
	if len(m.agents) >= limits.MaxAgents {
		m.emit(events.Event{
			Cycle:      cycle,
			Kind:       events.KindViolation,
			Constraint: string(invariant.ConstraintPopulation),
			Detail:     "spawn blocked",
		})
		return 0, fmt.Errorf("%w: population %d/%d", ErrCapacityExceeded, len(m.agents), limits.MaxAgents)
	}

	verdict := m.enforcer.Check(observables(st), len(m.agents)+1, depth)
	if !verdict.OK {
		for _, v := range verdict.Violations {
			m.emit(events.Event{
				Cycle:      cycle,
				Kind:       events.KindViolation,
				Constraint: string(v.Constraint),
				Detail:     "spawn blocked: " + v.Reason,
			})
		}
		return 0, verdict.Err()
	}

	a := &Agent{
		ID:          m.next,
		Phase:       Spawning,
		Depth:       depth,
		Born:        cycle,
		Coherence:   st.Coherence,
		Uncertainty: st.Uncertainty,
		anchor:      linalg.Copy(st.Latent),
	}
	m.next++
	m.agents[a.ID] = a
	m.order = append(m.order, a.ID)
	m.emit(events.Event{Cycle: cycle, Kind: events.KindSpawn, Agent: uint64(a.ID),
		Detail: fmt.Sprintf("depth=%d", depth)})
	m.logger.Debug("agent spawned", zap.Uint64("agent", uint64(a.ID)), zap.Int64("cycle", cycle))
	return a.ID, nil
}

// #endregion spawn

// #region step
// Step advances every live agent by one cycle: age, drift toward the shared
// state, invariant check, maturation, and retirement. Agents marked
// Dissolving are finalised before Step returns.
func (m *Manager) Step(cycle int64, st state.State) StepReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	report := StepReport{Cycle: cycle}
	population := len(m.agents)

	for _, id := range m.order {
		a := m.agents[id]
		a.Age++
		a.Coherence = linalg.Clamp(a.Coherence+pull*(st.Coherence-a.Coherence)+(m.rng.Float64()-0.5)*jitter, 0, 1)
		a.Uncertainty = linalg.Clamp(a.Uncertainty+pull*(st.Uncertainty-a.Uncertainty)+(m.rng.Float64()-0.5)*jitter, 0, 1)

		verdict := m.enforcer.Check(Observables(a), population, a.Depth)
		switch {
		case !verdict.OK:
			report.Violations += len(verdict.Violations)
			for _, v := range verdict.Violations {
				m.emit(events.Event{
					Cycle:      cycle,
					Kind:       events.KindViolation,
					Agent:      uint64(a.ID),
					Constraint: string(v.Constraint),
					Detail:     v.Reason,
				})
			}
			m.markDissolving(a, "violation: "+verdict.Reason())
		case a.Age >= m.cfg.MaxAge:
			m.markDissolving(a, "max_age")
		case a.Phase == Spawning && a.Age >= m.cfg.MaturationCycles:
			if err := a.transition(Active); err != nil {
				m.logger.Error("maturation failed", zap.Error(err))
				continue
			}
			report.Matured = append(report.Matured, a.ID)
			m.emit(events.Event{Cycle: cycle, Kind: events.KindMature, Agent: uint64(a.ID),
				Detail: fmt.Sprintf("age=%d", a.Age)})
		}
	}

	report.Dissolved = m.finalise(cycle)
	report.Population = len(m.agents)
	return report
}

// #endregion step

// #region dissolve
// Dissolve retires an agent on operator request.
func (m *Manager) Dissolve(cycle int64, id AgentID, reason string) (Residue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.agents[id]
	if !ok {
		return Residue{}, fmt.Errorf("%w: %d", ErrUnknownAgent, id)
	}
	if reason == "" {
		reason = "retired"
	}
	m.markDissolving(a, reason)
	out := m.finalise(cycle)
	for _, r := range out {
		if r.Agent == id {
			return r, nil
		}
	}
	return Residue{}, fmt.Errorf("%w: agent %d not finalised", ErrIllegalTransition, id)
}

func (m *Manager) markDissolving(a *Agent, reason string) {
	if a.Phase == Dissolving {
		return
	}
	if err := a.transition(Dissolving); err != nil {
		m.logger.Error("dissolve refused", zap.Error(err))
		return
	}
	a.reason = reason
}

// finalise moves every Dissolving agent to Dissolved, appends its residue
// to the lineage, and removes it from the arena.
func (m *Manager) finalise(cycle int64) []Residue {
	var out []Residue
	kept := m.order[:0]
	for _, id := range m.order {
		a := m.agents[id]
		if a.Phase != Dissolving {
			kept = append(kept, id)
			continue
		}
		if err := a.transition(Dissolved); err != nil {
			m.logger.Error("finalise failed", zap.Error(err))
			kept = append(kept, id)
			continue
		}
		r := Residue{
			ID:               uuid.NewString(),
			Agent:            a.ID,
			Depth:            a.Depth,
			Born:             a.Born,
			DissolvedAt:      cycle,
			Age:              a.Age,
			FinalCoherence:   a.Coherence,
			FinalUncertainty: a.Uncertainty,
			AnchorMean:       linalg.Mean(a.anchor),
			AnchorNorm:       linalg.Norm(a.anchor),
			Reason:           a.reason,
			At:               m.now(),
		}
		m.lineage = append(m.lineage, r)
		delete(m.agents, id)
		out = append(out, r)
		m.emit(events.Event{Cycle: cycle, Kind: events.KindDissolve, Agent: uint64(id), Detail: r.Summary()})
	}
	m.order = kept
	return out
}

// #endregion dissolve

// #region queries
// Population returns the number of live agents.
func (m *Manager) Population() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.agents)
}

// Live returns copies of the live agents in spawn order.
func (m *Manager) Live() []Agent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Agent, 0, len(m.order))
	for _, id := range m.order {
		a := *m.agents[id]
		a.anchor = nil
		out = append(out, a)
	}
	return out
}

// Lineage returns the append-only residue log.
func (m *Manager) Lineage() []Residue {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Residue(nil), m.lineage...)
}

func (m *Manager) Residue(id AgentID) (Residue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.lineage {
		if r.Agent == id {
			return r, true
		}
	}
	return Residue{}, false
}

// #endregion queries

// #region helpers
func (m *Manager) emit(e events.Event) {
	if _, err := m.log.Append(e); err != nil {
		m.logger.Warn("event sink failed", zap.String("kind", string(e.Kind)), zap.Error(err))
	}
}

func observables(st state.State) invariant.Observables {
	return invariant.Observables{Coherence: st.Coherence, Uncertainty: st.Uncertainty}
}

// Observables returns the agent's local observables.
func Observables(a *Agent) invariant.Observables {
	return invariant.Observables{Coherence: a.Coherence, Uncertainty: a.Uncertainty}
}

// #endregion helpers
