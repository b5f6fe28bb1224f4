package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies the kind of event being published.
type EventType string

// Exchange lifecycle events published by the chat session.
const (
	EventRequestStarted    EventType = "request.started"
	EventFirstToken        EventType = "request.first_token"
	EventExchangeCompleted EventType = "exchange.completed"
	EventRequestFailed     EventType = "request.failed"
	EventRequestCancelled  EventType = "request.cancelled"
	EventPayloadSkipped    EventType = "stream.payload_skipped"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	ChatID    string          `json:"chat_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// RequestStartedPayload is the payload for EventRequestStarted.
type RequestStartedPayload struct {
	PlaceholderID string `json:"placeholder_id"`
	Content       string `json:"content"`
}

// ExchangeCompletedPayload is the payload for EventExchangeCompleted.
type ExchangeCompletedPayload struct {
	UserMessage Message       `json:"user_message"`
	AIMessage   Message       `json:"ai_message"`
	Duration    time.Duration `json:"duration"`
}

// RequestFailedPayload is the payload for EventRequestFailed.
type RequestFailedPayload struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

// PayloadSkippedPayload is the payload for EventPayloadSkipped.
type PayloadSkippedPayload struct {
	EventType string `json:"event_type"`
	Reason    string `json:"reason"`
}

// NewEvent builds an Event with a JSON-encoded payload. A payload that
// fails to encode is dropped rather than failing the publish.
func NewEvent(typ EventType, chatID string, payload any) Event {
	ev := Event{Type: typ, Timestamp: time.Now(), ChatID: chatID}
	if payload != nil {
		if data, err := json.Marshal(payload); err == nil {
			ev.Payload = data
		}
	}
	return ev
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for domain events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
