// Package buffer implements the bounded replay buffer shared by ensemble and
// critic training.
package buffer

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/state"
)

// ErrInsufficientData is returned when a batch is requested before the
// buffer holds one batch worth of transitions.
var ErrInsufficientData = errors.New("insufficient data")

// #region buffer
// Buffer is a FIFO ring of transitions. One writer appends per cycle;
// readers only ever receive deep copies.
type Buffer struct {
	mu    sync.RWMutex
	items []state.Transition
	head  int // index of the oldest entry once full
	size  int
}

// New creates a buffer holding at most capacity transitions.
func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer{items: make([]state.Transition, capacity)}
}

// Append stores a copy of t, evicting the oldest entry when full.
func (b *Buffer) Append(t state.Transition) {
	c := t.Clone()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.size < len(b.items) {
		b.items[(b.head+b.size)%len(b.items)] = c
		b.size++
		return
	}
	b.items[b.head] = c
	b.head = (b.head + 1) % len(b.items)
}

// Len returns the number of stored transitions.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Cap returns the configured capacity.
func (b *Buffer) Cap() int {
	return len(b.items)
}

// Ready reports whether a batch of n can be drawn.
func (b *Buffer) Ready(n int) bool {
	return b.Len() >= n
}

// #endregion buffer

// #region sample
// Sample draws n transitions uniformly with replacement.
func (b *Buffer) Sample(rng *rand.Rand, n int) ([]state.Transition, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n <= 0 {
		return nil, fmt.Errorf("sample size %d: %w", n, ErrInsufficientData)
	}
	if b.size < n {
		return nil, fmt.Errorf("buffer holds %d, batch needs %d: %w", b.size, n, ErrInsufficientData)
	}
	out := make([]state.Transition, n)
	for i := range out {
		idx := (b.head + rng.Intn(b.size)) % len(b.items)
		out[i] = b.items[idx].Clone()
	}
	return out, nil
}

// #endregion sample

// #region snapshot
// Snapshot returns up to limit of the most recent transitions, ordered
// oldest to newest. limit <= 0 returns everything.
func (b *Buffer) Snapshot(limit int) []state.Transition {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := b.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]state.Transition, 0, n)
	for i := b.size - n; i < b.size; i++ {
		out = append(out, b.items[(b.head+i)%len(b.items)].Clone())
	}
	return out
}

// #endregion snapshot
