package proctor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var centered = GazeState{Tracking: true, Direction: Center}

func categories(events []CheatingEvent) []Category {
	out := make([]Category, 0, len(events))
	for _, e := range events {
		out = append(out, e.Category)
	}
	return out
}

func TestLipRuleAllCombinations(t *testing.T) {
	tests := []struct {
		lips, audio bool
		want        bool
	}{
		{true, true, false},
		{false, false, false},
		{true, false, true},
		{false, true, true},
	}

	now := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	for _, tt := range tests {
		d := NewDecisionEngine(DefaultConfig())
		events := d.Decide(Evidence{Gaze: centered, LipsTalking: tt.lips, AudioTalking: tt.audio, PersonCount: 1}, now)
		assert.Equal(t, tt.want, LipCheating(tt.lips, tt.audio))
		if tt.want {
			require.Len(t, events, 1, "lips=%v audio=%v", tt.lips, tt.audio)
			assert.Equal(t, CheatingEvent{Timestamp: now, Category: LipMovement}, events[0])
		} else {
			assert.Empty(t, events, "lips=%v audio=%v", tt.lips, tt.audio)
		}
	}
}

func TestGazeDebounce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GazeDebounceCycles = 3
	d := NewDecisionEngine(cfg)
	now := time.Now()
	away := Evidence{Gaze: GazeState{}, PersonCount: 1}

	assert.Empty(t, d.Decide(away, now))
	assert.Empty(t, d.Decide(away, now))
	assert.Equal(t, []Category{GazeMovement}, categories(d.Decide(away, now)))
	assert.Equal(t, []Category{GazeMovement}, categories(d.Decide(away, now)), "emits every cycle while the streak holds")

	// Looking back resets the streak.
	assert.Empty(t, d.Decide(Evidence{Gaze: centered, PersonCount: 1}, now))
	assert.Empty(t, d.Decide(away, now))
}

func TestGazeUndebouncedMatchesReference(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GazeDebounceCycles = 1
	d := NewDecisionEngine(cfg)

	assert.Equal(t, []Category{GazeMovement}, categories(d.Decide(Evidence{PersonCount: 1}, time.Now())))
}

func TestGazeOffCenterPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.GazeDebounceCycles = 1
	left := Evidence{Gaze: GazeState{Tracking: true, Direction: Left}, PersonCount: 1}

	d := NewDecisionEngine(cfg)
	assert.Equal(t, []Category{GazeMovement}, categories(d.Decide(left, time.Now())))

	cfg.OffCenterIsDeviation = false
	d = NewDecisionEngine(cfg)
	assert.Empty(t, d.Decide(left, time.Now()))
}

func TestMultiplePersonsRule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PersonDebounceCycles = 2
	d := NewDecisionEngine(cfg)
	crowd := Evidence{Gaze: centered, PersonCount: 2}

	assert.Empty(t, d.Decide(crowd, time.Now()))
	assert.Equal(t, []Category{MultiplePersons}, categories(d.Decide(crowd, time.Now())))
	assert.Empty(t, d.Decide(Evidence{Gaze: centered, PersonCount: 1}, time.Now()))

	cfg.PersonDebounceCycles = 0
	d = NewDecisionEngine(cfg)
	for i := 0; i < 20; i++ {
		assert.Empty(t, d.Decide(crowd, time.Now()))
	}
}

func TestCategoryText(t *testing.T) {
	for _, c := range []Category{GazeMovement, LipMovement, MultiplePersons} {
		b, err := c.MarshalText()
		require.NoError(t, err)
		var back Category
		require.NoError(t, back.UnmarshalText(b))
		assert.Equal(t, c, back)
	}
	assert.Equal(t, "Gaze Movement", GazeMovement.String())
	assert.Equal(t, "Lip Movement", LipMovement.String())

	var c Category
	assert.Error(t, c.UnmarshalText([]byte("Looking Around")))
}
