// Package governor allocates weight across the nine fields with cross-field
// attention and learns from imagined rewards.
package governor

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/buffer"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/config"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/linalg"
)

// ErrNoProposals is returned by Weigh when no field is present.
var ErrNoProposals = errors.New("no field proposals")

// #region governor
// Governor owns the attention parameters. Weigh caches the attention
// context of its most recent call; Update applies to that call.
type Governor struct {
	mu      sync.Mutex
	dim     int
	key     *linalg.Matrix // F x F
	readout []float64      // F
	bias    [field.Count]float64
	lr      float64

	lastContext [field.Count][]float64

	history *History
	log     *zap.Logger
}

// New builds a governor with seeded attention parameters.
func New(cfg config.Config, log *zap.Logger) *Governor {
	if log == nil {
		log = zap.NewNop()
	}
	rng := rand.New(rand.NewSource(cfg.Runtime.Seed ^ 0x5eed))
	f := cfg.Model.FieldLatentDim
	g := &Governor{
		dim:     f,
		key:     linalg.NewRandom(rng, f, f, 1.0),
		readout: make([]float64, f),
		lr:      cfg.Governor.LearningRate,
		history: NewHistory(cfg.Governor.HistoryWindow),
		log:     log,
	}
	for i := range g.readout {
		g.readout[i] = rng.NormFloat64() * 0.1
	}
	return g
}

// History returns the rolling update history.
func (g *Governor) History() *History { return g.history }

// #endregion governor

// #region weigh
// Weigh turns the present field latents into a softmax weighting. Each
// present field attends over every present field; its logit reads out the
// attended context plus a per-field bias. nil latents are absent and get
// weight 0, so the softmax renormalises over the rest.
func (g *Governor) Weigh(latents [field.Count][]float64) (Weights, error) {
	var present []int
	for i, h := range latents {
		if h == nil {
			continue
		}
		if len(h) != g.dim {
			return Weights{}, fmt.Errorf("weigh: %s latent width %d, want %d", field.ID(i), len(h), g.dim)
		}
		present = append(present, i)
	}
	if len(present) == 0 {
		return Weights{}, ErrNoProposals
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	keys := make([][]float64, field.Count)
	for _, j := range present {
		keys[j] = g.key.MulVec(latents[j])
	}

	scale := 1 / math.Sqrt(float64(g.dim))
	logits := make([]float64, len(present))
	scores := make([]float64, len(present))
	g.lastContext = [field.Count][]float64{}
	for n, i := range present {
		for m, j := range present {
			scores[m] = linalg.Dot(latents[i], keys[j]) * scale
		}
		attn := softmax(scores)
		ctx := make([]float64, g.dim)
		for m, j := range present {
			linalg.Axpy(attn[m], latents[j], ctx)
		}
		g.lastContext[i] = ctx
		logits[n] = linalg.Dot(g.readout, ctx) + g.bias[i]
	}

	var w Weights
	for n, p := range softmax(logits) {
		w[present[n]] = p
	}
	return w, nil
}

// softmax is numerically stable: the max logit is subtracted first.
func softmax(logits []float64) []float64 {
	out := make([]float64, len(logits))
	if len(logits) == 0 {
		return out
	}
	max := logits[0]
	for _, l := range logits[1:] {
		if l > max {
			max = l
		}
	}
	var sum float64
	for i, l := range logits {
		out[i] = math.Exp(l - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// #endregion weigh

// #region aggregate
// Aggregate returns the weight-scaled sum of the field actions. A field
// with positive weight must have a proposal.
func Aggregate(w Weights, props field.Proposals) ([]float64, error) {
	var action []float64
	for i, p := range props.Items {
		if w[i] == 0 {
			continue
		}
		if p == nil {
			return nil, fmt.Errorf("aggregate: %s has weight %.6f but no proposal", field.ID(i), w[i])
		}
		if action == nil {
			action = make([]float64, len(p.Action))
		}
		if len(p.Action) != len(action) {
			return nil, fmt.Errorf("aggregate: %s action width %d, want %d", field.ID(i), len(p.Action), len(action))
		}
		linalg.Axpy(w[i], p.Action, action)
	}
	if action == nil {
		return nil, ErrNoProposals
	}
	return action, nil
}

// #endregion aggregate

// #region update
// Update computes the governance loss −(1/N)·Σ wᵢ·R̄ᵢ over the N weighted
// fields and takes one gradient step on the per-field bias and attention
// readout, moving weight toward fields with higher imagined reward. If any
// weighted field lacks an imagined reward the step is skipped and recorded
// as a no-op; parameters are untouched.
func (g *Governor) Update(w Weights, imagined Imagined) UpdateResult {
	var active []int
	for i, v := range w {
		if v > 0 {
			active = append(active, i)
		}
	}
	for _, i := range active {
		if !imagined.Ready[i] {
			res := UpdateResult{
				Decision: Decision{Action: ActionNoOp, Reason: fmt.Sprintf("no imagined reward for %s", field.ID(i))},
				Cause:    fmt.Errorf("governor update: %s: %w", field.ID(i), buffer.ErrInsufficientData),
			}
			g.history.Record(Entry{Weights: w, Dominant: w.Dominant(), NoOp: true})
			g.log.Debug("governor update skipped", zap.String("reason", res.Decision.Reason))
			return res
		}
	}
	if len(active) == 0 {
		g.history.Record(Entry{Weights: w, NoOp: true})
		return UpdateResult{
			Decision: Decision{Action: ActionNoOp, Reason: "no weighted fields"},
			Cause:    ErrNoProposals,
		}
	}

	// N counts weighted fields only; absent fields do not dilute the loss.
	n := float64(len(active))
	var loss, expected float64
	for _, i := range active {
		loss -= w[i] * imagined.Mean[i]
		expected += w[i] * imagined.Mean[i]
	}
	loss /= n

	g.mu.Lock()
	readoutGrad := make([]float64, g.dim)
	for _, i := range active {
		// dL/dlogitᵢ = −(1/N)·wᵢ·(R̄ᵢ − Σⱼ wⱼR̄ⱼ)
		gi := -w[i] * (imagined.Mean[i] - expected) / n
		g.bias[i] -= g.lr * gi
		if ctx := g.lastContext[i]; ctx != nil {
			linalg.Axpy(gi, ctx, readoutGrad)
		}
	}
	linalg.Axpy(-g.lr, readoutGrad, g.readout)
	g.mu.Unlock()

	g.history.Record(Entry{Weights: w, Loss: loss, Dominant: w.Dominant()})
	return UpdateResult{
		Decision: Decision{Action: ActionCommit, Reason: fmt.Sprintf("loss=%.6f over %d fields", loss, len(active))},
		Loss:     loss,
	}
}

// #endregion update
