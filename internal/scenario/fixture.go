package scenario

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

// #region fixture-types
// Fixture is a recorded observation sequence with expected outcomes.
type Fixture struct {
	Description  string               `json:"description"`
	Observations []FixtureObservation `json:"observations"`
	Expected     []FixtureExpected    `json:"expected"`
}

// FixtureObservation is one recorded observation. A missing input is
// replaced by zeros of the engine's input width.
type FixtureObservation struct {
	Input   []float64      `json:"input,omitempty"`
	Reward  float64        `json:"reward"`
	Signals *state.Signals `json:"signals,omitempty"`
}

// FixtureExpected is the expected outcome of one cycle.
type FixtureExpected struct {
	Cycle   int64  `json:"cycle"`
	Outcome string `json:"outcome"`
}

// #endregion fixture-types

// #region fixture-loader
// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// Source replays the fixture's observations once.
func (f *Fixture) Source(inputDim int) Source {
	return &fixtureSource{obs: f.Observations, inputDim: inputDim}
}

type fixtureSource struct {
	obs      []FixtureObservation
	inputDim int
	next     int
}

func (s *fixtureSource) Next() (state.Observation, bool) {
	if s.next >= len(s.obs) {
		return state.Observation{}, false
	}
	o := s.obs[s.next]
	s.next++
	input := o.Input
	if input == nil {
		input = make([]float64, s.inputDim)
	}
	var sig *state.Signals
	if o.Signals != nil {
		c := *o.Signals
		sig = &c
	}
	return state.Observation{Input: input, Reward: o.Reward, Signals: sig}, true
}

// #endregion fixture-loader
