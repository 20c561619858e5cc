package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventJobStatusChanged fires on every job checkpoint and terminal
	// transition; payload is *models.JobStatusUpdate.
	EventJobStatusChanged EventType = "job_status_changed"

	// EventTemplateParsed fires when template structure extraction reaches
	// ready or error; payload is *models.Template.
	EventTemplateParsed EventType = "template_parsed"

	// EventDocumentCompleted fires when a document's generation finishes;
	// payload is *models.Document.
	EventDocumentCompleted EventType = "document_completed"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes an event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
