// Package scenario drives the engine with synthetic or recorded
// observation streams and summarises the outcome.
package scenario

import (
	"errors"
	"fmt"
	"sort"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
)

var ErrUnknownScenario = errors.New("unknown scenario")

// #region preset
// Preset describes where each field's observables are pulled.
type Preset struct {
	Name              string
	Description       string
	TargetCoherence   float64
	TargetUncertainty float64
	Stressed          []field.ID
}

// stressed fields are pulled to these targets regardless of the preset.
const (
	stressedCoherence   = 0.25
	stressedUncertainty = 0.75
)

var presets = map[string]Preset{
	"balanced": {
		Name:              "balanced",
		Description:       "Smooth coherence distribution across all fields",
		TargetCoherence:   0.70,
		TargetUncertainty: 0.25,
	},
	"high_complexity": {
		Name:              "high_complexity",
		Description:       "Elevated uncertainty across the entire system",
		TargetCoherence:   0.45,
		TargetUncertainty: 0.55,
		Stressed:          field.All(),
	},
	"safety_stress": {
		Name:              "safety_stress",
		Description:       "AI fields under governance pressure",
		TargetCoherence:   0.65,
		TargetUncertainty: 0.28,
		Stressed:          []field.ID{field.AIAlignment, field.AIAutonomy, field.AISafety},
	},
	"governance_crisis": {
		Name:              "governance_crisis",
		Description:       "System-wide coherence collapse",
		TargetCoherence:   0.20,
		TargetUncertainty: 0.80,
		Stressed:          field.All(),
	},
}

// Lookup returns the named preset.
func Lookup(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
	}
	return p, nil
}

// Names returns every preset name, sorted.
func Names() []string {
	out := make([]string, 0, len(presets))
	for n := range presets {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// IsStressed reports whether id is stressed under p.
func (p Preset) IsStressed(id field.ID) bool {
	for _, s := range p.Stressed {
		if s == id {
			return true
		}
	}
	return false
}

// #endregion preset
