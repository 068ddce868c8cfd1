// Package events holds the append-only lifecycle event log and the
// per-cycle governor and world-model event records.
package events

import (
	"sync"
	"time"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
)

// #region kind
type Kind string

const (
	KindSpawn     Kind = "SPAWN"
	KindMature    Kind = "MATURE"
	KindViolation Kind = "VIOLATION"
	KindDissolve  Kind = "DISSOLVE"
)

// #endregion kind

// #region event
// Event is one lifecycle record. Agent is zero when the event is not
// attributable to a live agent (a rejected spawn, for example).
type Event struct {
	Seq        int64
	Cycle      int64
	Kind       Kind
	Agent      uint64
	Constraint string
	Detail     string
	At         time.Time
}

// #endregion event

// #region sink
// Sink receives every event appended to a Log.
type Sink interface {
	Record(Event) error
}

// #endregion sink

// #region log
// Log is append-only. Appended events are never mutated; Events returns
// copies.
type Log struct {
	mu     sync.RWMutex
	events []Event
	sinks  []Sink
	now    func() time.Time
}

func NewLog(sinks ...Sink) *Log {
	return &Log{sinks: sinks, now: time.Now}
}

// Attach adds a sink. Only events appended afterwards are forwarded.
func (l *Log) Attach(s Sink) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sinks = append(l.sinks, s)
}

// Append stamps seq and time, stores the event, and forwards it to every
// sink. Sink errors are collected but never undo the append.
func (l *Log) Append(e Event) (Event, error) {
	l.mu.Lock()
	e.Seq = int64(len(l.events)) + 1
	if e.At.IsZero() {
		e.At = l.now()
	}
	l.events = append(l.events, e)
	sinks := append([]Sink(nil), l.sinks...)
	l.mu.Unlock()

	var firstErr error
	for _, s := range sinks {
		if err := s.Record(e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return e, firstErr
}

func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.events)
}

func (l *Log) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Event(nil), l.events...)
}

// Since returns events with Seq greater than seq.
func (l *Log) Since(seq int64) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if seq < 0 {
		seq = 0
	}
	if seq >= int64(len(l.events)) {
		return nil
	}
	return append([]Event(nil), l.events[seq:]...)
}

// Count returns how many events of kind k were appended.
func (l *Log) Count(k Kind) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, e := range l.events {
		if e.Kind == k {
			n++
		}
	}
	return n
}

// #endregion log

// #region governor-event
// GovernorEvent is emitted once per cycle by the governor step.
type GovernorEvent struct {
	Cycle           int64
	Weights         [field.Count]float64
	DominantField   field.ID
	GovernanceLoss  float64
	CommittedAction []float64
	Committed       bool
	NoOp            bool
}

// #endregion governor-event

// #region worldmodel-event
// WorldModelEvent carries one field's imagined rollout summary.
type WorldModelEvent struct {
	Cycle          int64
	Field          field.ID
	HorizonRewards []float64
	Disagreement   []float64
}

// #endregion worldmodel-event
