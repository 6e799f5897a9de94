package proctor

import "sync"

// EventLog is the ordered, append-only record of cheating events for one
// exam session. Drain atomically hands the whole batch to the report
// consumer and leaves the log empty.
type EventLog struct {
	mu     sync.Mutex
	events []CheatingEvent
}

func NewEventLog() *EventLog {
	return &EventLog{}
}

func (l *EventLog) Append(events ...CheatingEvent) {
	if len(events) == 0 {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, events...)
	l.mu.Unlock()
}

// Drain returns every event in append order and clears the log. An append
// racing with Drain lands either in the returned batch or in the emptied
// log, never both.
func (l *EventLog) Drain() []CheatingEvent {
	l.mu.Lock()
	out := l.events
	l.events = nil
	l.mu.Unlock()
	return out
}

// HasEvidence reports whether any event is pending. It does not mutate the log.
func (l *EventLog) HasEvidence() bool {
	return l.Len() > 0
}

func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Snapshot copies the pending events without clearing them.
func (l *EventLog) Snapshot() []CheatingEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]CheatingEvent, len(l.events))
	copy(out, l.events)
	return out
}

// CountByCategory tallies a batch of events.
func CountByCategory(events []CheatingEvent) map[Category]int {
	counts := make(map[Category]int)
	for _, e := range events {
		counts[e.Category]++
	}
	return counts
}
