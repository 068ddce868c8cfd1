package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// #region config
// Config is the process-wide configuration. It is passed by value to every
// component at construction and never mutated afterwards.
type Config struct {
	Invariants    InvariantConfig `yaml:"invariants"`
	Model         ModelConfig     `yaml:"model"`
	Ensemble      EnsembleConfig  `yaml:"ensemble"`
	Replay        ReplayConfig    `yaml:"replay"`
	Governor      GovernorConfig  `yaml:"governor"`
	Lifecycle     LifecycleConfig `yaml:"lifecycle"`
	Runtime       RuntimeConfig   `yaml:"runtime"`
	TargetEntropy float64         `yaml:"target_entropy"`
}

// InvariantConfig holds the hard limits checked by the invariant enforcer.
type InvariantConfig struct {
	UncertaintyCeiling float64 `yaml:"uncertainty_ceiling"`
	CoherenceFloor     float64 `yaml:"coherence_floor"`
	MaxAgents          int     `yaml:"max_agents"`
	MaxDepth           int     `yaml:"max_depth"`
}

// ModelConfig sizes the encoder, field modules and world-model latents.
// SeqLen and Heads describe the reference backbone and are carried for
// reporting only.
type ModelConfig struct {
	InputDim       int `yaml:"input_dim"`
	LatentDim      int `yaml:"latent_dim"`
	ActionDim      int `yaml:"action_dim"`
	FieldLatentDim int `yaml:"field_latent_dim"`
	WorldLatentDim int `yaml:"world_latent_dim"`
	SeqLen         int `yaml:"seq_len"`
	Heads          int `yaml:"heads"`
	EncoderLayers  int `yaml:"encoder_layers"`
}

// EnsembleConfig controls the world-model ensemble and imagination rollouts.
type EnsembleConfig struct {
	Size         int     `yaml:"size"`
	Horizon      int     `yaml:"horizon"`
	Gamma        float64 `yaml:"gamma"`
	LearningRate float64 `yaml:"learning_rate"`
	KLWeight     float64 `yaml:"kl_weight"`
}

// ReplayConfig bounds the replay buffer and training batches.
type ReplayConfig struct {
	Capacity  int `yaml:"capacity"`
	BatchSize int `yaml:"batch_size"`
}

// GovernorConfig holds governor learning parameters.
type GovernorConfig struct {
	LearningRate  float64 `yaml:"learning_rate"`
	HistoryWindow int     `yaml:"history_window"`
}

// LifecycleConfig holds agent lifecycle bounds, in cycles.
type LifecycleConfig struct {
	MaturationCycles int `yaml:"maturation_cycles"`
	MaxAge           int `yaml:"max_age"`
	SpawnEvery       int `yaml:"spawn_every"` // 0 disables periodic spawning
}

// RuntimeConfig holds execution knobs.
type RuntimeConfig struct {
	FieldTimeout time.Duration `yaml:"field_timeout"`
	Workers      int           `yaml:"workers"` // 0 = GOMAXPROCS
	Seed         int64         `yaml:"seed"`
}

// #endregion config

// #region defaults
// Default returns the reference configuration.
func Default() Config {
	return Config{
		Invariants: InvariantConfig{
			UncertaintyCeiling: 0.85,
			CoherenceFloor:     0.15,
			MaxAgents:          20,
			MaxDepth:           5,
		},
		Model: ModelConfig{
			InputDim:       256,
			LatentDim:      768,
			ActionDim:      32,
			FieldLatentDim: 16,
			WorldLatentDim: 32,
			SeqLen:         128,
			Heads:          12,
			EncoderLayers:  12,
		},
		Ensemble: EnsembleConfig{
			Size:         7,
			Horizon:      5,
			Gamma:        0.99,
			LearningRate: 1e-3,
			KLWeight:     1e-2,
		},
		Replay: ReplayConfig{
			Capacity:  500_000,
			BatchSize: 256,
		},
		Governor: GovernorConfig{
			LearningRate:  0.05,
			HistoryWindow: 120,
		},
		Lifecycle: LifecycleConfig{
			MaturationCycles: 50,
			MaxAge:           500,
			SpawnEvery:       60,
		},
		Runtime: RuntimeConfig{
			FieldTimeout: 2 * time.Second,
			Seed:         42,
		},
		TargetEntropy: -32,
	}
}

// Small returns a reduced configuration with the reference invariants but
// narrow model widths, for tests and quick local runs.
func Small() Config {
	c := Default()
	c.Model.InputDim = 16
	c.Model.LatentDim = 24
	c.Model.ActionDim = 4
	c.Model.FieldLatentDim = 8
	c.Model.WorldLatentDim = 6
	c.Model.EncoderLayers = 2
	c.Ensemble.Size = 3
	c.Replay.Capacity = 1_000
	c.Replay.BatchSize = 16
	c.Runtime.FieldTimeout = 500 * time.Millisecond
	return c
}

// #endregion defaults

// #region load
// Load reads a YAML file and overlays it on Default. Unset keys keep their
// default values.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// #endregion load

// #region validate
// Validate reports every out-of-range setting at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	inv := c.Invariants
	check(inv.UncertaintyCeiling >= 0 && inv.UncertaintyCeiling <= 1, "invariants.uncertainty_ceiling %.4f outside [0,1]", inv.UncertaintyCeiling)
	check(inv.CoherenceFloor >= 0 && inv.CoherenceFloor <= 1, "invariants.coherence_floor %.4f outside [0,1]", inv.CoherenceFloor)
	check(inv.MaxAgents > 0, "invariants.max_agents must be positive, got %d", inv.MaxAgents)
	check(inv.MaxDepth >= 0, "invariants.max_depth must be non-negative, got %d", inv.MaxDepth)

	m := c.Model
	check(m.InputDim > 0, "model.input_dim must be positive")
	check(m.LatentDim > 0, "model.latent_dim must be positive")
	check(m.ActionDim > 0, "model.action_dim must be positive")
	check(m.FieldLatentDim > 0, "model.field_latent_dim must be positive")
	check(m.WorldLatentDim > 0, "model.world_latent_dim must be positive")
	check(m.EncoderLayers >= 0, "model.encoder_layers must be non-negative")

	e := c.Ensemble
	check(e.Size > 0, "ensemble.size must be positive, got %d", e.Size)
	check(e.Horizon > 0, "ensemble.horizon must be positive, got %d", e.Horizon)
	check(e.Gamma > 0 && e.Gamma <= 1, "ensemble.gamma %.4f outside (0,1]", e.Gamma)
	check(e.LearningRate > 0, "ensemble.learning_rate must be positive")
	check(e.KLWeight >= 0, "ensemble.kl_weight must be non-negative")

	check(c.Replay.Capacity > 0, "replay.capacity must be positive, got %d", c.Replay.Capacity)
	check(c.Replay.BatchSize > 0, "replay.batch_size must be positive, got %d", c.Replay.BatchSize)
	check(c.Replay.BatchSize <= c.Replay.Capacity, "replay.batch_size %d exceeds capacity %d", c.Replay.BatchSize, c.Replay.Capacity)

	check(c.Governor.LearningRate > 0, "governor.learning_rate must be positive")
	check(c.Governor.HistoryWindow > 0, "governor.history_window must be positive")

	l := c.Lifecycle
	check(l.MaturationCycles >= 0, "lifecycle.maturation_cycles must be non-negative")
	check(l.MaxAge > l.MaturationCycles, "lifecycle.max_age %d must exceed maturation_cycles %d", l.MaxAge, l.MaturationCycles)
	check(l.SpawnEvery >= 0, "lifecycle.spawn_every must be non-negative")

	check(c.Runtime.FieldTimeout > 0, "runtime.field_timeout must be positive")
	check(c.Runtime.Workers >= 0, "runtime.workers must be non-negative")

	return errors.Join(errs...)
}

// #endregion validate
