package session

import (
	"time"

	"gorm.io/datatypes"

	"github.com/mymunastore/aretenvi/internal/types"
)

type conversationRow struct {
	ID             string `gorm:"primaryKey;size:64"`
	CorrelationKey string `gorm:"size:64;not null;index:idx_conversations_key_created,priority:1"`
	// ActiveKey mirrors CorrelationKey while the session is active and is NULL
	// afterwards, so the unique index admits one active record per key.
	ActiveKey         *string                          `gorm:"size:64;uniqueIndex"`
	CurrentStep       string                           `gorm:"size:64;not null"`
	CollectedFields   datatypes.JSONType[types.Fields] `gorm:"not null"`
	SessionActive     bool                             `gorm:"not null;index"`
	RegistrationRef   *string                          `gorm:"size:64"`
	EndReason         string                           `gorm:"size:32"`
	Revision          int64                            `gorm:"not null"`
	LastMessageID     string                           `gorm:"size:191"`
	LastReply         string                           `gorm:"type:text"`
	LastInteractionAt time.Time                        `gorm:"not null;index"`
	CreatedAt         time.Time                        `gorm:"not null;index:idx_conversations_key_created,priority:2"`
	UpdatedAt         time.Time                        `gorm:"not null"`
}

func (conversationRow) TableName() string {
	return "whatsapp_conversation_states"
}

func (r conversationRow) toRecord() Record {
	rec := Record{
		ID:                r.ID,
		CorrelationKey:    r.CorrelationKey,
		Step:              types.Step(r.CurrentStep),
		Fields:            r.CollectedFields.Data(),
		Active:            r.SessionActive,
		EndReason:         EndReason(r.EndReason),
		Revision:          r.Revision,
		LastMessageID:     r.LastMessageID,
		LastReply:         r.LastReply,
		LastInteractionAt: r.LastInteractionAt,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
	if r.RegistrationRef != nil {
		rec.RegistrationRef = *r.RegistrationRef
	}
	return rec
}

func conversationRowFromRecord(rec Record) conversationRow {
	row := conversationRow{
		ID:                rec.ID,
		CorrelationKey:    rec.CorrelationKey,
		CurrentStep:       string(rec.Step),
		CollectedFields:   datatypes.NewJSONType(rec.Fields),
		SessionActive:     rec.Active,
		EndReason:         string(rec.EndReason),
		Revision:          rec.Revision,
		LastMessageID:     rec.LastMessageID,
		LastReply:         rec.LastReply,
		LastInteractionAt: rec.LastInteractionAt,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
	if rec.Active {
		key := rec.CorrelationKey
		row.ActiveKey = &key
	}
	if rec.RegistrationRef != "" {
		ref := rec.RegistrationRef
		row.RegistrationRef = &ref
	}
	return row
}
