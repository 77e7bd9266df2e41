package history

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the kind of daemon lifecycle event.
type EventType string

const (
	EventStart       EventType = "start"
	EventSpawnFailed EventType = "spawn_failed"
	EventExit        EventType = "exit"
	EventStop        EventType = "stop"
	EventRetry       EventType = "retry"
	EventGaveUp      EventType = "gave_up"
)

// Record is the daemon state attached to an event.
type Record struct {
	RunID     string    `json:"run_id"`
	HostKey   string    `json:"host_key,omitempty"`
	PID       int       `json:"pid,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Attempt   int       `json:"attempt,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Event represents a lifecycle event exported to external systems.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// NewEvent stamps a record with a fresh ID and the current time.
func NewEvent(t EventType, r Record) Event {
	return Event{ID: uuid.NewString(), Type: t, OccurredAt: time.Now().UTC(), Record: r}
}

// Sink is a destination for history events.
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Fanout sends every event to all sinks and joins their errors.
type Fanout []Sink

func (f Fanout) Send(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Send(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Memory keeps the most recent events in a ring buffer.
type Memory struct {
	mu    sync.Mutex
	size  int
	buf   []Event
	start int
}

// NewMemory returns a Memory sink holding up to size events (default 256).
func NewMemory(size int) *Memory {
	if size <= 0 {
		size = 256
	}
	return &Memory{size: size}
}

func (m *Memory) Send(_ context.Context, e Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.buf) < m.size {
		m.buf = append(m.buf, e)
		return nil
	}
	m.buf[m.start] = e
	m.start = (m.start + 1) % m.size
	return nil
}

// Recent returns up to n events, newest last. n <= 0 returns all.
func (m *Memory) Recent(n int) []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, 0, len(m.buf))
	out = append(out, m.buf[m.start:]...)
	out = append(out, m.buf[:m.start]...)
	if n > 0 && n < len(out) {
		out = out[len(out)-n:]
	}
	return out
}
