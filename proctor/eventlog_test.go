package proctor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLogDrainClears(t *testing.T) {
	l := NewEventLog()
	assert.False(t, l.HasEvidence())

	now := time.Now()
	l.Append(CheatingEvent{Timestamp: now, Category: GazeMovement})
	l.Append(CheatingEvent{Timestamp: now, Category: LipMovement})
	l.Append()

	assert.True(t, l.HasEvidence())
	assert.True(t, l.HasEvidence(), "polling does not consume")
	assert.Len(t, l.Snapshot(), 2)

	got := l.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, GazeMovement, got[0].Category)
	assert.Equal(t, LipMovement, got[1].Category)

	assert.Equal(t, 0, l.Len())
	assert.False(t, l.HasEvidence())
	assert.Empty(t, l.Drain())
}

func TestEventLogDrainUnderConcurrentAppends(t *testing.T) {
	l := NewEventLog()
	const writers, perWriter = 4, 2500

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				// Encode writer and sequence in the timestamp so every event is unique.
				l.Append(CheatingEvent{Timestamp: time.Unix(int64(w), int64(i)), Category: LipMovement})
			}
		}(w)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	var drained []CheatingEvent
drain:
	for {
		drained = append(drained, l.Drain()...)
		select {
		case <-finished:
			drained = append(drained, l.Drain()...)
			break drain
		default:
		}
	}

	require.Len(t, drained, writers*perWriter)
	seen := make(map[time.Time]bool, len(drained))
	last := make(map[int64]int64)
	for _, e := range drained {
		require.False(t, seen[e.Timestamp], "duplicate event %v", e.Timestamp)
		seen[e.Timestamp] = true

		// Per-writer order is preserved across drains.
		w, seq := e.Timestamp.Unix(), int64(e.Timestamp.Nanosecond())
		if prev, ok := last[w]; ok {
			require.Greater(t, seq, prev)
		}
		last[w] = seq
	}
	assert.Equal(t, 0, l.Len())
}

func TestCountByCategory(t *testing.T) {
	counts := CountByCategory([]CheatingEvent{
		{Category: LipMovement}, {Category: LipMovement}, {Category: GazeMovement},
	})
	assert.Equal(t, map[Category]int{LipMovement: 2, GazeMovement: 1}, counts)
}
