package types

import "time"

type EventType string

const (
	EventTypeRegistrationCreated   EventType = "registration.created"
	EventTypeConversationStarted   EventType = "conversation.started"
	EventTypeConversationAbandoned EventType = "conversation.abandoned"
	EventTypeConversationExpired   EventType = "conversation.expired"
)

// Event is what the gateway fans out to staff-facing subscribers.
type Event struct {
	EventID        string        `json:"event_id"`
	EventType      EventType     `json:"event_type"`
	OccurredAt     time.Time     `json:"occurred_at"`
	CorrelationKey string        `json:"correlation_key"`
	ConversationID string        `json:"conversation_id,omitempty"`
	Registration   *Registration `json:"registration,omitempty"`
	// Text is a human-readable summary for channels that forward plain text.
	Text string `json:"text,omitempty"`
}
