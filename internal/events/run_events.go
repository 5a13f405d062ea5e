// Package events provides event handling for fleet run lifecycle events.
package events

import (
	"sync"
	"time"

	"github.com/upfleet/upfleet/internal/interfaces"
)

// EventType represents the type of run event
type EventType string

const (
	// EventStatusChanged is emitted when a run's status changes
	EventStatusChanged EventType = "status_changed"
	// EventResultReady is emitted when a run's result is ready
	EventResultReady EventType = "result_ready"
	// EventError is emitted when an error occurs
	EventError EventType = "error"
)

// RunEvent represents an event in the run lifecycle
type RunEvent struct {
	Type      EventType
	RunID     string
	Timestamp time.Time

	// Event-specific data
	Status *interfaces.RunStatus
	Result *interfaces.RunResult
	Error  error
}

// EventHandler is a function that handles run events
type EventHandler func(event RunEvent)

// EventBus manages run event subscriptions and dispatching
type EventBus struct {
	mu          sync.RWMutex
	handlers    map[EventType][]EventHandler
	synchronous bool // When true, handlers are called synchronously (for testing)
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]EventHandler),
	}
}

// NewSynchronousEventBus creates a new event bus that calls handlers synchronously (for testing)
func NewSynchronousEventBus() *EventBus {
	return &EventBus{
		handlers:    make(map[EventType][]EventHandler),
		synchronous: true,
	}
}

// Subscribe registers a handler for specific event types
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.handlers[eventType] = append(eb.handlers[eventType], handler)
}

// Publish sends an event to all registered handlers
func (eb *EventBus) Publish(event RunEvent) {
	eb.mu.RLock()
	handlers := eb.handlers[event.Type]
	synchronous := eb.synchronous
	eb.mu.RUnlock()

	if synchronous {
		for _, handler := range handlers {
			handler(event)
		}
	} else {
		// Handlers run asynchronously to avoid blocking the publisher
		for _, handler := range handlers {
			go handler(event)
		}
	}
}

// PublishStatusChange is a convenience method for status change events
func (eb *EventBus) PublishStatusChange(runID string, status interfaces.RunStatus) {
	eb.Publish(RunEvent{
		Type:      EventStatusChanged,
		RunID:     runID,
		Timestamp: time.Now(),
		Status:    &status,
	})
}

// PublishResult is a convenience method for result events
func (eb *EventBus) PublishResult(runID string, result *interfaces.RunResult) {
	eb.Publish(RunEvent{
		Type:      EventResultReady,
		RunID:     runID,
		Timestamp: time.Now(),
		Result:    result,
	})
}

// PublishError is a convenience method for error events
func (eb *EventBus) PublishError(runID string, err error) {
	eb.Publish(RunEvent{
		Type:      EventError,
		RunID:     runID,
		Timestamp: time.Now(),
		Error:     err,
	})
}
