package proctor

import "time"

// Evidence is everything the decision rules look at for one cycle.
type Evidence struct {
	Gaze         GazeState
	LipsTalking  bool
	AudioTalking bool
	PersonCount  int
}

// DecisionEngine turns per-cycle evidence into cheating events.
// It is driven by the video loop only.
type DecisionEngine struct {
	offCenterIsDeviation bool
	gazeDebounce         int
	maxPersons           int
	personDebounce       int

	gazeStreak   int
	personStreak int
}

func NewDecisionEngine(cfg Config) *DecisionEngine {
	return &DecisionEngine{
		offCenterIsDeviation: cfg.OffCenterIsDeviation,
		gazeDebounce:         max(cfg.GazeDebounceCycles, 1),
		maxPersons:           cfg.MaxPersons,
		personDebounce:       cfg.PersonDebounceCycles,
	}
}

// LipCheating is true exactly when the stabilised lip and audio states disagree.
func LipCheating(lipsTalking, audioTalking bool) bool {
	return lipsTalking != audioTalking
}

// GazeDeviated reports whether the gaze reading counts toward a gaze event.
func (d *DecisionEngine) GazeDeviated(g GazeState) bool {
	if !g.Tracking {
		return true
	}
	return d.offCenterIsDeviation && g.Direction != Center
}

// Decide evaluates one cycle. Events are stamped with now; nil means a
// benign cycle.
func (d *DecisionEngine) Decide(ev Evidence, now time.Time) []CheatingEvent {
	var events []CheatingEvent

	if d.GazeDeviated(ev.Gaze) {
		d.gazeStreak++
	} else {
		d.gazeStreak = 0
	}
	if d.gazeStreak >= d.gazeDebounce {
		events = append(events, CheatingEvent{Timestamp: now, Category: GazeMovement})
	}

	if LipCheating(ev.LipsTalking, ev.AudioTalking) {
		events = append(events, CheatingEvent{Timestamp: now, Category: LipMovement})
	}

	if d.personDebounce > 0 {
		if ev.PersonCount > d.maxPersons {
			d.personStreak++
		} else {
			d.personStreak = 0
		}
		if d.personStreak >= d.personDebounce {
			events = append(events, CheatingEvent{Timestamp: now, Category: MultiplePersons})
		}
	}

	return events
}

// Reset clears the debounce streaks.
func (d *DecisionEngine) Reset() {
	d.gazeStreak = 0
	d.personStreak = 0
}
