package types

import "time"

const (
	RegistrationSourceWhatsApp = "whatsapp_bot"
	RegistrationStatusPending  = "pending"
)

type Registration struct {
	ID              string    `json:"id"`
	ReferenceNumber string    `json:"reference_number"`
	ConversationID  string    `json:"conversation_id"`
	CorrelationKey  string    `json:"correlation_key"`
	Fields          Fields    `json:"fields"`
	Source          string    `json:"registration_source"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}
