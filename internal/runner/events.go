package runner

import (
	"sync"
	"time"
)

// EventKind classifies engine events pushed to subscribers.
type EventKind string

const (
	// EventCompression reports the outcome of a compression attempt.
	EventCompression EventKind = "compression"
	// EventFacts reports facts written after a user message.
	EventFacts EventKind = "facts"
	// EventPersistence reports a failed background save.
	EventPersistence EventKind = "persistence"
	// EventBranch reports branch lifecycle changes.
	EventBranch EventKind = "branch"
)

// Event is a notification about engine activity on one branch.
type Event struct {
	Kind      EventKind      `json:"kind"`
	SessionID string         `json:"session_id"`
	Branch    string         `json:"branch"`
	Detail    string         `json:"detail,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

type eventBus struct {
	mu        sync.RWMutex
	listeners []func(Event)
}

func (b *eventBus) subscribe(fn func(Event)) {
	b.mu.Lock()
	b.listeners = append(b.listeners, fn)
	b.mu.Unlock()
}

// publish calls every listener synchronously. Listeners must not block;
// slow consumers should hand the event off to a channel.
func (b *eventBus) publish(ev Event) {
	ev.Timestamp = time.Now()
	b.mu.RLock()
	listeners := b.listeners
	b.mu.RUnlock()
	for _, fn := range listeners {
		fn(ev)
	}
}
