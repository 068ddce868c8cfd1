package worldmodel

import (
	"math"
	"math/rand"
	"sync"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/config"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/linalg"
	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

const (
	logVarMin = -10.0
	logVarMax = 10.0
	gradClip  = 5.0
)

// #region member
// Member is one independently parameterised world model. It encodes
// (state, action) into a diagonal Gaussian latent and decodes the latent
// mean into a next-state latent and a scalar reward.
type Member struct {
	id int

	mu        sync.RWMutex
	encMean   *linalg.Matrix // Z x (D+A)
	encLogVar *linalg.Matrix // Z x (D+A)
	bMean     []float64
	bLogVar   []float64
	dec       *linalg.Matrix // D x Z
	bDec      []float64
	rew       []float64 // Z
	bRew      float64

	lr       float64
	klWeight float64
	rng      *rand.Rand // bootstrap sampling, guarded by mu
}

// NewMember builds a member with its own seed.
func NewMember(id int, model config.ModelConfig, ens config.EnsembleConfig, seed int64) *Member {
	rng := rand.New(rand.NewSource(seed))
	in := model.LatentDim + model.ActionDim
	z := model.WorldLatentDim
	m := &Member{
		id:        id,
		encMean:   linalg.NewRandom(rng, z, in, 1.0),
		encLogVar: linalg.NewRandom(rng, z, in, 0.1),
		bMean:     make([]float64, z),
		bLogVar:   make([]float64, z),
		dec:       linalg.NewRandom(rng, model.LatentDim, z, 1.0),
		bDec:      make([]float64, model.LatentDim),
		rew:       make([]float64, z),
		lr:        ens.LearningRate,
		klWeight:  ens.KLWeight,
		rng:       rng,
	}
	for i := range m.rew {
		m.rew[i] = rng.NormFloat64() * 0.1 / math.Sqrt(float64(z))
	}
	return m
}

// ID returns the member index within its ensemble.
func (m *Member) ID() int { return m.id }

// Encode returns the latent mean and log-variance for (latent, action).
func (m *Member) Encode(latent, action []float64) (mean, logvar []float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.encode(linalg.Concat(latent, action))
}

func (m *Member) encode(x []float64) (mean, logvar []float64) {
	mean = m.encMean.MulVec(x)
	logvar = m.encLogVar.MulVec(x)
	for i := range mean {
		mean[i] += m.bMean[i]
		logvar[i] = linalg.Clamp(logvar[i]+m.bLogVar[i], logVarMin, logVarMax)
	}
	return mean, logvar
}

// Predict decodes a latent sample into the next-state latent and reward.
func (m *Member) Predict(z []float64) (next []float64, reward float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.predict(z)
}

func (m *Member) predict(z []float64) ([]float64, float64) {
	next := m.dec.MulVec(z)
	for i := range next {
		next[i] = math.Tanh(next[i] + m.bDec[i])
	}
	return next, linalg.Dot(m.rew, z) + m.bRew
}

// #endregion member

// #region kl
// KL returns the divergence of N(mean, exp(logvar)) from the standard
// normal: 0.5·Σ(exp(logvar) + mean² − 1 − logvar).
func KL(mean, logvar []float64) float64 {
	var s float64
	for i := range mean {
		s += math.Exp(logvar[i]) + mean[i]*mean[i] - 1 - logvar[i]
	}
	return 0.5 * s
}

// #endregion kl

// #region training
// Loss reports the mean training loss components over one batch.
type Loss struct {
	Reward float64
	Next   float64
	KL     float64
	Total  float64
}

// Train takes one SGD step over batch. The KL term is part of every
// member's loss and keeps the latent calibrated. Training decodes from the
// latent mean so the step is deterministic for a fixed batch.
func (m *Member) Train(batch []state.Transition) Loss {
	if len(batch) == 0 {
		return Loss{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	gMean := linalg.NewMatrix(m.encMean.Rows, m.encMean.Cols)
	gLogVar := linalg.NewMatrix(m.encLogVar.Rows, m.encLogVar.Cols)
	gDec := linalg.NewMatrix(m.dec.Rows, m.dec.Cols)
	gbMean := make([]float64, len(m.bMean))
	gbLogVar := make([]float64, len(m.bLogVar))
	gbDec := make([]float64, len(m.bDec))
	gRew := make([]float64, len(m.rew))
	var gbRew float64

	var loss Loss
	n := float64(len(batch))
	dim := float64(len(m.bDec))

	for _, t := range batch {
		x := linalg.Concat(t.State, t.Action)
		mu, lv := m.encode(x)
		next, r := m.predict(mu)

		dr := r - t.Reward
		loss.Reward += 0.5 * dr * dr

		dPre := make([]float64, len(next))
		for i := range next {
			d := next[i] - t.Next[i]
			loss.Next += 0.5 * d * d / dim
			dPre[i] = d / dim * (1 - next[i]*next[i])
		}
		kl := KL(mu, lv)
		loss.KL += kl

		// decoder and reward head
		linalg.Axpy(dr, mu, gRew)
		gbRew += dr
		gDec.AddOuter(1, dPre, mu)
		linalg.Axpy(1, dPre, gbDec)

		// back into the latent mean: reward head, decoder, KL
		dz := m.dec.MulVecT(dPre)
		for i := range dz {
			dz[i] += dr*m.rew[i] + m.klWeight*mu[i]
		}
		dlv := make([]float64, len(lv))
		for i := range lv {
			dlv[i] = m.klWeight * 0.5 * (math.Exp(lv[i]) - 1)
		}
		gMean.AddOuter(1, dz, x)
		linalg.Axpy(1, dz, gbMean)
		gLogVar.AddOuter(1, dlv, x)
		linalg.Axpy(1, dlv, gbLogVar)
	}

	step := -m.lr / n
	for _, g := range [][]float64{gMean.Data, gLogVar.Data, gDec.Data, gbMean, gbLogVar, gbDec, gRew} {
		linalg.ClipNorm(g, gradClip*n)
	}
	linalg.Axpy(step, gMean.Data, m.encMean.Data)
	linalg.Axpy(step, gLogVar.Data, m.encLogVar.Data)
	linalg.Axpy(step, gDec.Data, m.dec.Data)
	linalg.Axpy(step, gbMean, m.bMean)
	linalg.Axpy(step, gbLogVar, m.bLogVar)
	linalg.Axpy(step, gbDec, m.bDec)
	linalg.Axpy(step, gRew, m.rew)
	m.bRew += step * linalg.Clamp(gbRew, -gradClip*n, gradClip*n)

	loss.Reward /= n
	loss.Next /= n
	loss.KL /= n
	loss.Total = loss.Reward + loss.Next + m.klWeight*loss.KL
	return loss
}

// #endregion training
