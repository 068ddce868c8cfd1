package field

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/config"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

// #region proposals
// Proposals holds one cycle's field outputs. A nil entry is an absent field
// and Missing records why.
type Proposals struct {
	Items   [Count]*Proposal
	Missing [Count]error
}

// Has reports whether field id produced a proposal.
func (p Proposals) Has(id ID) bool {
	return p.Items[id] != nil
}

// Present returns the number of fields that produced a proposal.
func (p Proposals) Present() int {
	n := 0
	for _, it := range p.Items {
		if it != nil {
			n++
		}
	}
	return n
}

// #endregion proposals

// #region bank
// Bank owns the nine local modules and the policy provider for each field.
// By default a field's provider is its own module.
type Bank struct {
	modules   [Count]*Module
	providers [Count]Policy
	actionDim int
	latentDim int
	timeout   time.Duration
	workers   int
	log       *zap.Logger
}

// NewBank builds modules for every field with seeds derived from cfg.
func NewBank(cfg config.Config, log *zap.Logger) *Bank {
	if log == nil {
		log = zap.NewNop()
	}
	workers := cfg.Runtime.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	b := &Bank{
		actionDim: cfg.Model.ActionDim,
		latentDim: cfg.Model.FieldLatentDim,
		timeout:   cfg.Runtime.FieldTimeout,
		workers:   workers,
		log:       log,
	}
	for _, id := range All() {
		m := NewModule(id, cfg.Model, cfg.Runtime.Seed+int64(id)*7919)
		b.modules[id] = m
		b.providers[id] = m
	}
	return b
}

// Module returns the local module for id.
func (b *Bank) Module(id ID) *Module {
	return b.modules[id]
}

// SetProvider routes field id through p, e.g. a remote reasoning backend.
// Passing nil restores the local module.
func (b *Bank) SetProvider(id ID, p Policy) {
	if p == nil {
		p = b.modules[id]
	}
	b.providers[id] = p
}

// ProposeAll evaluates every field in parallel, each under the configured
// timeout. Failures never abort the cycle; the field is marked missing.
func (b *Bank) ProposeAll(ctx context.Context, st state.State) Proposals {
	var out Proposals
	g := new(errgroup.Group)
	g.SetLimit(b.workers)
	for _, id := range All() {
		id := id
		g.Go(func() error {
			p, err := b.propose(ctx, id, st)
			if err != nil {
				out.Missing[id] = err
				b.log.Warn("field proposal missing",
					zap.String("field", id.String()),
					zap.Error(err))
				return nil
			}
			out.Items[id] = &p
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (b *Bank) propose(ctx context.Context, id ID, st state.State) (Proposal, error) {
	cctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	p, err := b.providers[id].ProposeAction(cctx, st)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrUpstreamTimeout) {
			err = fmt.Errorf("%s: %w: %w", id, ErrUpstreamTimeout, err)
		}
		return Proposal{}, err
	}
	if len(p.Action) != b.actionDim {
		return Proposal{}, fmt.Errorf("%s: action width %d, want %d", id, len(p.Action), b.actionDim)
	}
	p.Field = id
	if p.Latent == nil {
		p.Latent = b.modules[id].Latent(st.Latent)
	}
	if len(p.Latent) != b.latentDim {
		return Proposal{}, fmt.Errorf("%s: latent width %d, want %d", id, len(p.Latent), b.latentDim)
	}
	return p, nil
}

// #endregion bank

// #region training
// TrainCritics updates every module's critic on batch and returns the mean
// TD error per field.
func (b *Bank) TrainCritics(batch []state.Transition, gamma, lr float64) [Count]float64 {
	var losses [Count]float64
	g := new(errgroup.Group)
	g.SetLimit(b.workers)
	for _, id := range All() {
		id := id
		g.Go(func() error {
			losses[id] = b.modules[id].TrainCritic(batch, gamma, lr)
			return nil
		})
	}
	_ = g.Wait()
	return losses
}

// #endregion training
