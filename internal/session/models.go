package session

import (
	"time"

	"github.com/mymunastore/aretenvi/internal/types"
)

type EndReason string

const (
	EndReasonCompleted EndReason = "completed"
	EndReasonAbandoned EndReason = "abandoned"
	EndReasonExpired   EndReason = "expired"
)

// Record is one intake conversation. Records are never deleted; a
// correlation key accumulates one record per conversation it started.
type Record struct {
	ID                string       `json:"id"`
	CorrelationKey    string       `json:"correlation_key"`
	Step              types.Step   `json:"current_step"`
	Fields            types.Fields `json:"collected_fields"`
	Active            bool         `json:"session_active"`
	RegistrationRef   string       `json:"registration_ref,omitempty"`
	EndReason         EndReason    `json:"end_reason,omitempty"`
	Revision          int64        `json:"revision"`
	LastMessageID     string       `json:"last_message_id,omitempty"`
	LastReply         string       `json:"last_reply,omitempty"`
	LastInteractionAt time.Time    `json:"last_interaction_at"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

// Interaction describes the inbound message a mutation is applied for, so a
// redelivery of the same provider message can be answered from the record.
type Interaction struct {
	MessageID string
	Reply     string
	At        time.Time
}

func (i Interaction) at() time.Time {
	if i.At.IsZero() {
		return time.Now().UTC()
	}
	return i.At.UTC()
}
