package governor

import (
	"sync"

	"github.com/danielpatrickdp/adaptive-state/ninefield/internal/field"
)

// #region history
// Entry is one recorded governor update.
type Entry struct {
	Seq      int64
	Weights  Weights
	Loss     float64
	Dominant field.ID
	NoOp     bool
}

// History is a bounded rolling window of entries for trend inspection.
// It never feeds back into control.
type History struct {
	mu      sync.RWMutex
	window  int
	seq     int64
	entries []Entry
}

// NewHistory creates a window of the given size.
func NewHistory(window int) *History {
	if window <= 0 {
		window = 1
	}
	return &History{window: window}
}

// Record appends an entry, dropping the oldest beyond the window.
func (h *History) Record(e Entry) Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	e.Seq = h.seq
	h.entries = append(h.entries, e)
	if len(h.entries) > h.window {
		h.entries = append(h.entries[:0:0], h.entries[len(h.entries)-h.window:]...)
	}
	return e
}

// Entries returns a copy of the window, oldest first.
func (h *History) Entries() []Entry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]Entry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Losses returns the loss series of non-skipped updates, oldest first.
func (h *History) Losses() []float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var out []float64
	for _, e := range h.entries {
		if !e.NoOp {
			out = append(out, e.Loss)
		}
	}
	return out
}

// Len returns the number of entries held.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// #endregion history
