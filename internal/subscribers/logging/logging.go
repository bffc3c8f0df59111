package logging

import (
	"context"
	"log/slog"

	"github.com/mymunastore/aretenvi/internal/types"
)

type Subscriber struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Subscriber {
	return &Subscriber{logger: logger}
}

func (s *Subscriber) Name() string {
	return "logging"
}

func (s *Subscriber) Handle(_ context.Context, event types.Event) error {
	attrs := []any{
		"subscriber", "logging",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"key", event.CorrelationKey,
	}
	if event.ConversationID != "" {
		attrs = append(attrs, "conversation_id", event.ConversationID)
	}
	if event.Registration != nil {
		attrs = append(attrs,
			"ref", event.Registration.ReferenceNumber,
			"service_type", event.Registration.Fields.ServiceType,
		)
	}
	s.logger.Info("intake event", attrs...)
	return nil
}
