package main

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventKind names a settlement event
type EventKind string

const (
	EventReputationRefreshed EventKind = "REPUTATION_REFRESHED"
	EventRoundStarted        EventKind = "ROUND_STARTED"
	EventPayrollClaimed      EventKind = "PAYROLL_CLAIMED"
	EventProxyClaimed        EventKind = "PROXY_CLAIMED"
	EventChallengeAccepted   EventKind = "CHALLENGE_ACCEPTED"
	EventChallengeOpened     EventKind = "CHALLENGE_OPENED"
	EventChallengeHarvested  EventKind = "CHALLENGE_HARVESTED"
)

// DefaultEventLogSize is the number of recent events kept in memory
const DefaultEventLogSize = 1024

// Event is emitted after a settlement operation commits
type Event struct {
	ID        string      `json:"id"`
	Kind      EventKind   `json:"kind"`
	Block     BlockNumber `json:"block"`
	Actor     AccountID   `json:"actor"`
	Subject   AccountID   `json:"subject,omitempty"`
	Count     uint32      `json:"count,omitempty"`
	Amount    Amount      `json:"amount,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// EventLog keeps a bounded window of recent events
type EventLog struct {
	mu     sync.RWMutex
	events []Event
	limit  int
}

// NewEventLog creates an event log keeping at most limit events
func NewEventLog(limit int) *EventLog {
	if limit <= 0 {
		limit = DefaultEventLogSize
	}
	return &EventLog{limit: limit}
}

// Emit stores the event, assigning an ID and timestamp when missing
func (l *EventLog) Emit(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().Unix()
	}

	l.mu.Lock()
	l.events = append(l.events, event)
	if len(l.events) > l.limit {
		l.events = l.events[len(l.events)-l.limit:]
	}
	l.mu.Unlock()

	RecordEvent(event.Kind)
	if logger != nil {
		logger.Info("Settlement event",
			"eventId", event.ID,
			"kind", event.Kind,
			"block", event.Block,
			"actor", event.Actor,
			"subject", event.Subject,
			"count", event.Count,
			"amount", event.Amount)
	}
}

// Recent returns up to n of the newest events, oldest first
func (l *EventLog) Recent(n int) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}
	out := make([]Event, n)
	copy(out, l.events[len(l.events)-n:])
	return out
}

// Filter returns the recent events of the given kind
func (l *EventLog) Filter(kind EventKind) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []Event
	for _, e := range l.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
