// Package history exports lifecycle events of the managed server to
// external analytics stores.
package history

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventStart         EventType = "start"
	EventStop          EventType = "stop"
	EventForcedStop    EventType = "forced_stop"
	EventAvailable     EventType = "available"
	EventWatchdogAlert EventType = "watchdog_alert"
	EventIdleCountdown EventType = "idle_countdown"
	EventIdleShutdown  EventType = "idle_shutdown"
	EventLatch         EventType = "latch"
)

// Record is the server snapshot attached to an event.
type Record struct {
	Name      string    `json:"name"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"started_at"` // zero when not running
	Players   int       `json:"players"`
	Detail    string    `json:"detail,omitempty"`
}

// Event represents a lifecycle event to be exported to external systems.
type Event struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// NewEvent stamps a new event with a random id and the current time.
func NewEvent(t EventType, rec Record) Event {
	return Event{ID: uuid.NewString(), Type: t, OccurredAt: time.Now().UTC(), Record: rec}
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

// Close closes every sink that supports it.
func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// NullTime maps the zero time to NULL for SQL sinks.
func NullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

type timeoutSink struct {
	Sink
	d time.Duration
}

// WithTimeout bounds every Send on s by d.
func WithTimeout(s Sink, d time.Duration) Sink {
	if d <= 0 {
		return s
	}
	return timeoutSink{Sink: s, d: d}
}

func (t timeoutSink) Send(ctx context.Context, e Event) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.Sink.Send(ctx, e)
}

func (t timeoutSink) Close() error {
	if c, ok := t.Sink.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
