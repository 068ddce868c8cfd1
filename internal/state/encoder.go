package state

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/config"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/linalg"
)

// #region encoder
// Encoder maps a raw input vector to the shared latent. Parameters are fixed
// at construction from the seed; Encode is safe for concurrent use.
type Encoder struct {
	inputDim  int
	latentDim int
	proj      *linalg.Matrix
	layers    []*linalg.Matrix
}

// NewEncoder builds an encoder with seeded random projections.
func NewEncoder(cfg config.ModelConfig, seed int64) *Encoder {
	rng := rand.New(rand.NewSource(seed))
	e := &Encoder{
		inputDim:  cfg.InputDim,
		latentDim: cfg.LatentDim,
		proj:      linalg.NewRandom(rng, cfg.LatentDim, cfg.InputDim, 1.0),
	}
	for i := 0; i < cfg.EncoderLayers; i++ {
		e.layers = append(e.layers, linalg.NewRandom(rng, cfg.LatentDim, cfg.LatentDim, 0.5))
	}
	return e
}

// LatentDim returns the encoder output width.
func (e *Encoder) LatentDim() int { return e.latentDim }

// Encode projects input into the latent and derives the observables:
// coherence falls as the latent spreads out, uncertainty falls as it
// saturates toward ±1.
func (e *Encoder) Encode(input []float64) (State, error) {
	if len(input) != e.inputDim {
		return State{}, fmt.Errorf("encode: input width %d, want %d", len(input), e.inputDim)
	}
	h := linalg.Tanh(e.proj.MulVec(input))
	for _, w := range e.layers {
		mix := w.MulVec(h)
		for i := range h {
			h[i] = math.Tanh(h[i] + mix[i])
		}
	}

	var saturation float64
	for _, v := range h {
		saturation += math.Abs(v)
	}
	saturation /= float64(len(h))

	return State{
		Latent:      h,
		Coherence:   linalg.Clamp(1-linalg.Variance(h), 0, 1),
		Uncertainty: linalg.Clamp(1-saturation, 0, 1),
	}, nil
}

// Observe encodes an observation and applies any explicit signals.
func (e *Encoder) Observe(obs Observation) (State, error) {
	st, err := e.Encode(obs.Input)
	if err != nil {
		return State{}, err
	}
	if obs.Signals != nil {
		st.Coherence = linalg.Clamp(obs.Signals.Coherence, 0, 1)
		st.Uncertainty = linalg.Clamp(obs.Signals.Uncertainty, 0, 1)
	}
	return st, nil
}

// #endregion encoder
