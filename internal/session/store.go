package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mymunastore/aretenvi/internal/types"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrStepMismatch means the active record is no longer at the step the
	// caller transitioned from; another delivery got there first.
	ErrStepMismatch = errors.New("conversation step changed")
	ErrActiveExists = errors.New("active conversation already exists")
)

type Store interface {
	GetActive(ctx context.Context, key string) (Record, error)
	Latest(ctx context.Context, key string) (Record, error)
	Create(ctx context.Context, key string, initial types.Step, in Interaction) (Record, error)
	Update(ctx context.Context, key string, from, to types.Step, patch types.Fields, in Interaction) error
	Touch(ctx context.Context, key string, in Interaction) error
	Complete(ctx context.Context, key string, ref string, in Interaction) error
	Reset(ctx context.Context, key string, reason EndReason, in Interaction) error
	ExpireIdle(ctx context.Context, before time.Time) (int, error)
	History(ctx context.Context, key string, limit int) ([]Record, error)
	Close() error
}

func newRecord(key string, initial types.Step, in Interaction) Record {
	now := in.at()
	return Record{
		ID:                uuid.NewString(),
		CorrelationKey:    key,
		Step:              initial,
		Active:            true,
		Revision:          1,
		LastMessageID:     in.MessageID,
		LastReply:         in.Reply,
		LastInteractionAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func applyUpdate(rec Record, to types.Step, patch types.Fields, in Interaction) Record {
	now := in.at()
	out := rec
	out.Step = to
	out.Fields = rec.Fields.Merge(patch)
	out.Revision = rec.Revision + 1
	out.LastMessageID = in.MessageID
	out.LastReply = in.Reply
	out.LastInteractionAt = now
	out.UpdatedAt = now
	return out
}

func applyTouch(rec Record, in Interaction) Record {
	return applyUpdate(rec, rec.Step, types.Fields{}, in)
}

func applyEnd(rec Record, step types.Step, ref string, reason EndReason, in Interaction) Record {
	out := applyUpdate(rec, step, types.Fields{}, in)
	out.Active = false
	out.RegistrationRef = ref
	out.EndReason = reason
	return out
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("correlation key is required")
	}
	return nil
}

func validateTransition(from, to types.Step) error {
	if !from.Valid() || !to.Valid() {
		return fmt.Errorf("invalid transition %q -> %q", from, to)
	}
	return nil
}
