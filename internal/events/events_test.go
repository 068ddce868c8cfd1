package events

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memSink struct {
	mu  sync.Mutex
	got []Event
	err error
}

func (m *memSink) Record(e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.got = append(m.got, e)
	return m.err
}

func TestAppendAssignsSequence(t *testing.T) {
	l := NewLog()
	a, err := l.Append(Event{Kind: KindSpawn, Agent: 1})
	require.NoError(t, err)
	b, err := l.Append(Event{Kind: KindMature, Agent: 1})
	require.NoError(t, err)

	assert.Equal(t, int64(1), a.Seq)
	assert.Equal(t, int64(2), b.Seq)
	assert.False(t, a.At.IsZero())
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 1, l.Count(KindSpawn))
}

func TestEventsReturnsCopy(t *testing.T) {
	l := NewLog()
	_, _ = l.Append(Event{Kind: KindSpawn, Agent: 7})
	got := l.Events()
	got[0].Agent = 99
	assert.Equal(t, uint64(7), l.Events()[0].Agent)
}

func TestSince(t *testing.T) {
	l := NewLog()
	for i := 0; i < 5; i++ {
		_, _ = l.Append(Event{Kind: KindSpawn, Agent: uint64(i + 1)})
	}
	got := l.Since(3)
	require.Len(t, got, 2)
	assert.Equal(t, int64(4), got[0].Seq)
	assert.Nil(t, l.Since(5))
	assert.Len(t, l.Since(-1), 5)
}

func TestSinkFanOut(t *testing.T) {
	a, b := &memSink{}, &memSink{err: errors.New("disk full")}
	l := NewLog(a)
	l.Attach(b)

	_, err := l.Append(Event{Kind: KindViolation, Constraint: "population_cap"})
	require.Error(t, err)
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)
	assert.Equal(t, 1, l.Len(), "sink failure must not undo the append")
}
