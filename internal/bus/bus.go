// Package bus publishes evaluation progress events to in-process or Kafka
// subscribers.
package bus

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Handler is a function that handles events.
type Handler func(ctx context.Context, event Event) error

// Publisher publishes events. The evaluator only needs this half of a Bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, event Event) error
}

// Bus defines the interface for event bus implementations.
type Bus interface {
	Publisher

	// Subscribe subscribes to events on a topic.
	Subscribe(ctx context.Context, topic string, handler Handler) error

	// Close closes the bus and releases resources.
	Close() error
}

// Event represents a bus event.
type Event struct {
	// ID is the unique event identifier.
	ID string `json:"id"`

	// Type is the event type (e.g., "evaluation.query.completed").
	Type string `json:"type"`

	// Source is the component that generated the event.
	Source string `json:"source"`

	// Timestamp is when the event was created, in Unix milliseconds.
	Timestamp int64 `json:"timestamp"`

	// CorrelationID links the events of one evaluation run.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload contains the event data.
	Payload any `json:"payload"`
}

// Source is the default event source.
const Source = "muvera-eval"

// Topics for evaluation events.
const (
	TopicRunStarted     = "evaluation.run.started"
	TopicQueryCompleted = "evaluation.query.completed"
	TopicRunCompleted   = "evaluation.run.completed"
)

// NewEvent creates an event with a fresh id for a run.
func NewEvent(eventType, runID string, payload any) Event {
	return Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		Source:        Source,
		Timestamp:     time.Now().UnixMilli(),
		CorrelationID: runID,
		Payload:       payload,
	}
}
