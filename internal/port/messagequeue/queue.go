// Package messagequeue defines the message queue port (interface) for
// feedback lifecycle events.
package messagequeue

import "context"

// Handler processes a message received from the queue.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subjects for feedback lifecycle events. Consumers (dashboards,
// notifiers, export pipelines) subscribe to these; the engine only
// publishes, best-effort, after a successful mutation.
const (
	SubjectDefinitionCreated = "feedback.definitions.created"
	SubjectDefinitionUpdated = "feedback.definitions.updated"
	SubjectDefinitionDeleted = "feedback.definitions.deleted"
	SubjectInstanceCreated   = "feedback.instances.created"
	SubjectInstanceUpdated   = "feedback.instances.updated"
	SubjectInstanceDeleted   = "feedback.instances.deleted"
	SubjectInstanceVerified  = "feedback.instances.verified"
)
