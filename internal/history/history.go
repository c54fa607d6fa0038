package history

import (
	"context"
	"time"

	"github.com/loykin/respawn/internal/store"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	// EventStart marks one child launch.
	EventStart EventType = "start"
	// EventExit marks the end of one child run, whatever the outcome.
	EventExit EventType = "exit"
)

// Event represents a lifecycle event to be exported to external systems.
// The embedded record snapshot carries the run's outcome columns, so a
// sink row is self-contained.
type Event struct {
	Type       EventType    `json:"type"`
	OccurredAt time.Time    `json:"occurred_at"`
	Record     store.Record `json:"record"`
}

// Sink is a destination for history events (analytics/statistics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Multi fans one event out to every sink. Send returns the first error
// after attempting all sinks.
type Multi []Sink

func (m Multi) Send(ctx context.Context, e Event) error {
	var firstErr error
	for _, s := range m {
		if err := s.Send(ctx, e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every sink that supports closing.
func (m Multi) Close() error {
	var firstErr error
	for _, s := range m {
		if c, ok := s.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
