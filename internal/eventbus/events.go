package eventbus

import (
	"context"
	"time"
)

// EventType represents the type of an event
type EventType string

// Standard event types
const (
	// Entity extraction events
	EventEntityExtractionStarted EventType = "entity_extraction_started"
	EventEntityExtractionSuccess EventType = "entity_extraction_success"
	EventEntityExtractionFailure EventType = "entity_extraction_failure"

	// Passage retrieval events
	EventRetrievalStarted EventType = "retrieval_started"
	EventRetrievalSuccess EventType = "retrieval_success"
	EventRetrievalFailure EventType = "retrieval_failure"

	// Graph query events
	EventGraphQueryStarted EventType = "graph_query_started"
	EventGraphQuerySuccess EventType = "graph_query_success"
	EventGraphQueryFailure EventType = "graph_query_failure"

	// Answer synthesis events
	EventSynthesisStarted EventType = "synthesis_started"
	EventSynthesisSuccess EventType = "synthesis_success"
	EventSynthesisFailure EventType = "synthesis_failure"

	// Confidence gate events
	EventAnswerAccepted    EventType = "answer_accepted"
	EventAnswerRejected    EventType = "answer_rejected"
	EventFallbackTriggered EventType = "fallback_triggered"

	// Question processing events
	EventQuestionProcessingStarted EventType = "question_processing_started"
	EventQuestionProcessingSuccess EventType = "question_processing_success"
	EventQuestionProcessingFailure EventType = "question_processing_failure"

	// Async question processing events
	EventQuestionAsyncStarted   EventType = "question_async_started"
	EventQuestionAsyncSuccess   EventType = "question_async_success"
	EventQuestionAsyncFailure   EventType = "question_async_failure"
	EventQuestionAsyncCancelled EventType = "question_async_cancelled"

	// System events
	EventSystemError   EventType = "system_error"
	EventSystemWarning EventType = "system_warning"
	EventSystemInfo    EventType = "system_info"
)

// EventHandler is a function that handles events
type EventHandler func(context.Context, Event) error

// Event represents something that has happened within the system
type Event interface {
	// Type returns the event type
	Type() EventType

	// Payload returns the event data
	Payload() interface{}

	// Metadata returns additional information about the event
	Metadata() map[string]interface{}

	// Timestamp returns when the event occurred
	Timestamp() int64

	// Source returns information about what generated the event
	Source() string
}

// EventBus is the central event dispatch system
type EventBus interface {
	// Publish sends an event to all subscribed handlers
	Publish(ctx context.Context, event Event) error

	// Subscribe registers a handler for specific event types
	// Returns a subscription ID that can be used to unsubscribe
	Subscribe(eventTypes []EventType, handler EventHandler) (string, error)

	// SubscribeAll registers a handler for all event types
	// Returns a subscription ID that can be used to unsubscribe
	SubscribeAll(handler EventHandler) (string, error)

	// Unsubscribe removes a subscription by ID
	Unsubscribe(subscriptionID string) error

	// Close shuts down the event bus, cleaning up resources
	Close() error
}

// BaseEvent is a simple implementation of the Event interface
type BaseEvent struct {
	eventType  EventType
	payload    interface{}
	metadata   map[string]interface{}
	timestamp  int64
	sourceInfo string
}

// NewEvent creates a new BaseEvent
func NewEvent(
	eventType EventType,
	payload interface{},
	source string,
	metadata map[string]interface{},
) *BaseEvent {
	if metadata == nil {
		metadata = make(map[string]interface{})
	}

	return &BaseEvent{
		eventType:  eventType,
		payload:    payload,
		metadata:   metadata,
		timestamp:  time.Now().UnixNano(),
		sourceInfo: source,
	}
}

// NewEmptyEvent creates a BaseEvent with no payload, source, or metadata.
// Useful for tests and simple signals.
func NewEmptyEvent(eventType EventType) *BaseEvent {
	return NewEvent(eventType, nil, "", nil)
}

// Type returns the event type
func (e *BaseEvent) Type() EventType {
	return e.eventType
}

// Payload returns the event data
func (e *BaseEvent) Payload() interface{} {
	return e.payload
}

// Metadata returns additional information about the event
func (e *BaseEvent) Metadata() map[string]interface{} {
	return e.metadata
}

// Timestamp returns when the event occurred
func (e *BaseEvent) Timestamp() int64 {
	return e.timestamp
}

// Source returns information about what generated the event
func (e *BaseEvent) Source() string {
	return e.sourceInfo
}

// WithMetadata adds or updates metadata and returns the same event
// This allows for fluent method chaining
func (e *BaseEvent) WithMetadata(key string, value interface{}) *BaseEvent {
	e.metadata[key] = value
	return e
}
