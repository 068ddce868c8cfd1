package scenario

import (
	"math/rand"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/linalg"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

// DefaultNoise is the noise level used by the CLI.
const DefaultNoise = 0.20

// #region source
// Source yields observations. ok is false once the source is exhausted.
type Source interface {
	Next() (obs state.Observation, ok bool)
}

// #endregion source

// #region generator
// FieldSignal is one field's synthetic observables.
type FieldSignal struct {
	Coherence   float64
	Uncertainty float64
}

// Generator pulls every field's observables toward its preset target with
// seeded noise. It never runs out.
type Generator struct {
	preset   Preset
	inputDim int
	noise    float64
	rng      *rand.Rand
	fields   [field.Count]FieldSignal
}

// NewGenerator seeds per-field observables around the preset targets.
// Stressed fields start low-coherence and high-uncertainty.
func NewGenerator(p Preset, inputDim int, noise float64, seed int64) *Generator {
	g := &Generator{
		preset:   p,
		inputDim: inputDim,
		noise:    noise,
		rng:      rand.New(rand.NewSource(seed)),
	}
	for _, id := range field.All() {
		if p.IsStressed(id) {
			g.fields[id] = FieldSignal{
				Coherence:   linalg.Clamp(0.20+g.jitter(0.08), 0.05, 0.40),
				Uncertainty: linalg.Clamp(0.70+g.jitter(0.1), 0.50, 0.95),
			}
			continue
		}
		g.fields[id] = FieldSignal{
			Coherence:   linalg.Clamp(p.TargetCoherence+g.jitter(0.15), 0.05, 0.98),
			Uncertainty: linalg.Clamp(p.TargetUncertainty+g.jitter(0.1), 0.02, 0.98),
		}
	}
	return g
}

// Fields returns the current per-field observables.
func (g *Generator) Fields() [field.Count]FieldSignal {
	return g.fields
}

// Next advances every field one step and builds the observation. The
// shared observables are governed by the weakest field: minimum coherence
// and maximum uncertainty.
func (g *Generator) Next() (state.Observation, bool) {
	nl := g.noise
	for _, id := range field.All() {
		f := &g.fields[id]
		tc, tu := g.preset.TargetCoherence, g.preset.TargetUncertainty
		if g.preset.IsStressed(id) {
			tc, tu = stressedCoherence, stressedUncertainty
		}
		f.Coherence = linalg.Clamp(f.Coherence+g.jitter(nl*0.03)+(tc-f.Coherence)*0.04, 0.05, 0.98)
		f.Uncertainty = linalg.Clamp(f.Uncertainty+g.jitter(nl*0.02)+(tu-f.Uncertainty)*0.03, 0.02, 0.98)
	}

	sig := &state.Signals{Coherence: 1, Uncertainty: 0}
	var reward float64
	for _, f := range g.fields {
		sig.Coherence = min(sig.Coherence, f.Coherence)
		sig.Uncertainty = max(sig.Uncertainty, f.Uncertainty)
		reward += f.Coherence * (1 - f.Uncertainty)
	}
	reward /= field.Count

	input := make([]float64, g.inputDim)
	for i := range input {
		f := g.fields[i%field.Count]
		if (i/field.Count)%2 == 0 {
			input[i] = 2*f.Coherence - 1
		} else {
			input[i] = 1 - 2*f.Uncertainty
		}
		input[i] += g.jitter(nl * 0.15)
	}
	return state.Observation{Input: input, Reward: reward, Signals: sig}, true
}

// jitter is uniform noise in [-scale, scale).
func (g *Generator) jitter(scale float64) float64 {
	return (g.rng.Float64() - 0.5) * 2 * scale
}

// #endregion generator
