// Package intake runs one inbound WhatsApp message through the registration
// conversation: it loads the sender's conversation, asks the state machine
// what to do, persists the outcome and returns the reply text.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mymunastore/aretenvi/internal/flow"
	"github.com/mymunastore/aretenvi/internal/ids"
	"github.com/mymunastore/aretenvi/internal/metrics"
	"github.com/mymunastore/aretenvi/internal/registration"
	"github.com/mymunastore/aretenvi/internal/session"
	"github.com/mymunastore/aretenvi/internal/templates"
	"github.com/mymunastore/aretenvi/internal/types"
)

const duplicateConfirmWindow = 2 * time.Minute

var (
	ErrInvalidMessage = errors.New("sender and text are required")
	errJobAborted     = errors.New("intake job did not complete")
)

type Message struct {
	Sender    string
	Text      string
	MessageID string
}

// Publisher receives staff-facing events. Delivery must not block the reply.
type Publisher interface {
	Dispatch(ctx context.Context, event types.Event)
}

type Deps struct {
	Store      session.Store
	Sink       registration.Sink
	Machine    *flow.Machine
	Serializer *session.Serializer
	Publisher  Publisher
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	// IdleTimeout closes conversations that have been quiet for longer. Zero
	// keeps them open indefinitely.
	IdleTimeout time.Duration
	Now         func() time.Time
}

type Service struct {
	store       session.Store
	sink        registration.Sink
	machine     *flow.Machine
	templates   *templates.Templates
	serializer  *session.Serializer
	publisher   Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
	idleTimeout time.Duration
	now         func() time.Time
}

func New(deps Deps) (*Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("conversation store is required")
	}
	if deps.Sink == nil {
		return nil, fmt.Errorf("registration sink is required")
	}
	if deps.IdleTimeout < 0 {
		return nil, fmt.Errorf("idle timeout must be >= 0")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	machine := deps.Machine
	if machine == nil {
		machine = flow.NewMachine(nil)
	}
	serializer := deps.Serializer
	if serializer == nil {
		serializer = session.NewSerializer(logger, 0)
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		store:       deps.Store,
		sink:        deps.Sink,
		machine:     machine,
		templates:   machine.Templates(),
		serializer:  serializer,
		publisher:   deps.Publisher,
		metrics:     deps.Metrics,
		logger:      logger,
		idleTimeout: deps.IdleTimeout,
		now:         now,
	}, nil
}

// Handle returns the reply for msg. Conversation-level failures are turned
// into reply text; an error is returned only for malformed input, a saturated
// per-sender queue or a cancelled context.
func (s *Service) Handle(ctx context.Context, msg Message) (string, error) {
	msg.Sender = strings.TrimSpace(msg.Sender)
	msg.MessageID = strings.TrimSpace(msg.MessageID)
	if msg.Sender == "" || strings.TrimSpace(msg.Text) == "" {
		return "", ErrInvalidMessage
	}

	started := time.Now()
	var (
		reply   string
		outcome string
		herr    = errJobAborted
	)
	err := s.serializer.Do(ctx, msg.Sender, func(jobCtx context.Context) {
		reply, outcome, herr = s.handle(jobCtx, msg)
	})
	if err != nil {
		if errors.Is(err, session.ErrSessionQueueFull) {
			s.metrics.ObserveMessage(metrics.OutcomeBusy, time.Since(started))
		}
		return "", err
	}
	if herr != nil {
		s.metrics.ObserveMessage(metrics.OutcomeError, time.Since(started))
		return "", herr
	}
	s.metrics.ObserveMessage(outcome, time.Since(started))
	return reply, nil
}

func (s *Service) handle(ctx context.Context, msg Message) (string, string, error) {
	key := msg.Sender
	now := s.now().UTC()
	logger := s.logger.With("key", key, "message_id", msg.MessageID)

	rec, err := s.store.GetActive(ctx, key)
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotFound):
		return s.handleWithoutSession(ctx, logger, msg, now)
	default:
		logger.Error("load conversation failed", "err", err)
		return s.templates.TechnicalError(), metrics.OutcomeError, nil
	}

	if isReplay(rec, msg.MessageID) {
		s.metrics.Replay()
		logger.Info("redelivered message answered from record", "step", rec.Step)
		return rec.LastReply, metrics.OutcomeReplay, nil
	}

	if s.idleTimeout > 0 && now.Sub(rec.LastInteractionAt) > s.idleTimeout {
		return s.expire(ctx, logger, rec, msg, now)
	}

	if flow.IsRestart(msg.Text) {
		return s.restart(ctx, logger, rec, msg, now)
	}

	decision := s.machine.Transition(flow.State{Step: rec.Step, Fields: rec.Fields}, msg.Text)
	in := session.Interaction{MessageID: msg.MessageID, Reply: decision.Reply, At: now}

	switch decision.Action {
	case flow.ActionAdvance:
		err := s.store.Update(ctx, key, decision.From, decision.Next, decision.Patch, in)
		if err != nil {
			return s.recoverWrite(ctx, logger, key, err)
		}
		s.metrics.StepTransition(string(decision.From), string(decision.Next))
		logger.Debug("conversation advanced", "from", decision.From, "step", decision.Next)
		return decision.Reply, metrics.OutcomeAdvanced, nil

	case flow.ActionFinalize:
		return s.finalize(ctx, logger, rec, msg, now)

	case flow.ActionRestart:
		if err := s.store.Reset(ctx, key, session.EndReasonAbandoned, in); err != nil {
			return s.recoverWrite(ctx, logger, key, err)
		}
		s.publish(ctx, s.newEvent(types.EventTypeConversationAbandoned, rec, now))
		logger.Info("conversation abandoned for edit", "step", rec.Step)
		return decision.Reply, metrics.OutcomeRestarted, nil

	default:
		outcome := metrics.OutcomeReply
		if decision.Invalid {
			outcome = metrics.OutcomeInvalid
			s.metrics.ValidationFailure(string(rec.Step))
		}
		if err := s.store.Touch(ctx, key, in); err != nil {
			logger.Warn("touch conversation failed", "step", rec.Step, "err", err)
		}
		return decision.Reply, outcome, nil
	}
}

func (s *Service) handleWithoutSession(ctx context.Context, logger *slog.Logger, msg Message, now time.Time) (string, string, error) {
	if msg.MessageID != "" {
		latest, err := s.store.Latest(ctx, msg.Sender)
		if err == nil && isReplay(latest, msg.MessageID) {
			s.metrics.Replay()
			logger.Info("redelivered message answered from closed conversation", "step", latest.Step)
			return latest.LastReply, metrics.OutcomeReplay, nil
		}
	}

	if flow.IsConfirm(msg.Text) {
		if reply, ok := s.recentCompletion(ctx, msg.Sender, now); ok {
			s.metrics.Replay()
			logger.Info("duplicate confirmation answered from completed conversation")
			return reply, metrics.OutcomeReplay, nil
		}
	}

	switch {
	case flow.IsHelp(msg.Text):
		return s.templates.Help(), metrics.OutcomeReply, nil
	case flow.IsStart(msg.Text), flow.IsRestart(msg.Text):
		return s.start(ctx, logger, msg, now)
	default:
		return s.templates.Welcome(), metrics.OutcomeReply, nil
	}
}

func (s *Service) start(ctx context.Context, logger *slog.Logger, msg Message, now time.Time) (string, string, error) {
	first := types.Next(types.StepWelcome)
	reply := s.templates.Prompt(first, types.Fields{})
	rec, err := s.store.Create(ctx, msg.Sender, first, session.Interaction{MessageID: msg.MessageID, Reply: reply, At: now})
	if err != nil {
		if errors.Is(err, session.ErrActiveExists) {
			return s.currentPrompt(ctx, logger, msg.Sender)
		}
		logger.Error("create conversation failed", "err", err)
		return s.templates.TechnicalError(), metrics.OutcomeError, nil
	}
	s.metrics.StepTransition(string(types.StepWelcome), string(first))
	s.publish(ctx, s.newEvent(types.EventTypeConversationStarted, rec, now))
	logger.Info("conversation started", "conversation_id", rec.ID)
	return reply, metrics.OutcomeAdvanced, nil
}

func (s *Service) restart(ctx context.Context, logger *slog.Logger, rec session.Record, msg Message, now time.Time) (string, string, error) {
	in := session.Interaction{MessageID: msg.MessageID, At: now}
	if err := s.store.Reset(ctx, rec.CorrelationKey, session.EndReasonAbandoned, in); err != nil {
		return s.recoverWrite(ctx, logger, rec.CorrelationKey, err)
	}
	s.publish(ctx, s.newEvent(types.EventTypeConversationAbandoned, rec, now))
	logger.Info("conversation restarted", "step", rec.Step)
	reply, _, err := s.start(ctx, logger, msg, now)
	return reply, metrics.OutcomeRestarted, err
}

func (s *Service) expire(ctx context.Context, logger *slog.Logger, rec session.Record, msg Message, now time.Time) (string, string, error) {
	reply := s.templates.Expired()
	in := session.Interaction{MessageID: msg.MessageID, Reply: reply, At: now}
	if err := s.store.Reset(ctx, rec.CorrelationKey, session.EndReasonExpired, in); err != nil {
		return s.recoverWrite(ctx, logger, rec.CorrelationKey, err)
	}
	s.metrics.SessionsExpired("message", 1)
	s.publish(ctx, s.newEvent(types.EventTypeConversationExpired, rec, now))
	logger.Info("idle conversation expired", "step", rec.Step, "idle", now.Sub(rec.LastInteractionAt).String())
	return reply, metrics.OutcomeExpired, nil
}

func (s *Service) finalize(ctx context.Context, logger *slog.Logger, rec session.Record, msg Message, now time.Time) (string, string, error) {
	reg, err := s.sink.Finalize(ctx, registration.Submission{
		ConversationID: rec.ID,
		CorrelationKey: rec.CorrelationKey,
		Fields:         rec.Fields,
	})
	if err != nil {
		// The message id is not recorded so a provider retry finalizes again.
		s.metrics.FinalizeFailed()
		logger.Error("finalize registration failed", "conversation_id", rec.ID, "err", err)
		return s.templates.TechnicalError(), metrics.OutcomeError, nil
	}

	reply := s.templates.Success(reg.Fields.FullName, reg.ReferenceNumber)
	in := session.Interaction{MessageID: msg.MessageID, Reply: reply, At: now}
	switch err := s.store.Complete(ctx, rec.CorrelationKey, reg.ReferenceNumber, in); {
	case err == nil:
		s.metrics.RegistrationFinalized()
		s.metrics.StepTransition(string(types.StepConfirmation), string(types.StepCompleted))
		event := s.newEvent(types.EventTypeRegistrationCreated, rec, now)
		event.Registration = &reg
		event.Text = s.templates.StaffNotification(reg)
		s.publish(ctx, event)
		logger.Info("registration finalized", "conversation_id", rec.ID, "ref", reg.ReferenceNumber)
	case errors.Is(err, session.ErrStepMismatch), errors.Is(err, session.ErrNotFound):
		logger.Info("conversation already completed elsewhere", "ref", reg.ReferenceNumber)
	default:
		// The sink is idempotent per conversation, so the next "yes" gets
		// the same reference and retries the completion.
		s.metrics.FinalizeFailed()
		logger.Error("complete conversation failed", "ref", reg.ReferenceNumber, "err", err)
		return s.templates.TechnicalError(), metrics.OutcomeError, nil
	}
	return reply, metrics.OutcomeFinalized, nil
}

// recoverWrite answers a failed store write. A lost precondition means
// another delivery moved the conversation on, so the sender gets the
// question that is current now.
func (s *Service) recoverWrite(ctx context.Context, logger *slog.Logger, key string, err error) (string, string, error) {
	if errors.Is(err, session.ErrStepMismatch) {
		logger.Info("conversation moved on concurrently")
		return s.currentPrompt(ctx, logger, key)
	}
	if errors.Is(err, session.ErrNotFound) {
		logger.Warn("conversation disappeared during update")
	} else {
		logger.Error("conversation write failed", "err", err)
	}
	return s.templates.TechnicalError(), metrics.OutcomeError, nil
}

func (s *Service) currentPrompt(ctx context.Context, logger *slog.Logger, key string) (string, string, error) {
	rec, err := s.store.GetActive(ctx, key)
	if err == nil {
		return s.templates.Prompt(rec.Step, rec.Fields), metrics.OutcomeConflict, nil
	}
	if !errors.Is(err, session.ErrNotFound) {
		logger.Error("reload conversation failed", "err", err)
		return s.templates.TechnicalError(), metrics.OutcomeError, nil
	}
	latest, err := s.store.Latest(ctx, key)
	if err == nil && latest.Step == types.StepCompleted && latest.RegistrationRef != "" {
		return s.templates.Success(latest.Fields.FullName, latest.RegistrationRef), metrics.OutcomeConflict, nil
	}
	return s.templates.Welcome(), metrics.OutcomeConflict, nil
}

// recentCompletion returns the success reply when key's latest conversation
// was completed within duplicateConfirmWindow. A second "yes" sent right
// after confirming is then not mistaken for a new start signal.
func (s *Service) recentCompletion(ctx context.Context, key string, now time.Time) (string, bool) {
	latest, err := s.store.Latest(ctx, key)
	if err != nil || latest.Step != types.StepCompleted || latest.RegistrationRef == "" {
		return "", false
	}
	if now.Sub(latest.UpdatedAt) > duplicateConfirmWindow {
		return "", false
	}
	return s.templates.Success(latest.Fields.FullName, latest.RegistrationRef), true
}

func (s *Service) publish(ctx context.Context, event types.Event) {
	if s.publisher == nil {
		return
	}
	s.publisher.Dispatch(context.WithoutCancel(ctx), event)
}

func (s *Service) newEvent(eventType types.EventType, rec session.Record, now time.Time) types.Event {
	return types.Event{
		EventID:        ids.New(),
		EventType:      eventType,
		OccurredAt:     now,
		CorrelationKey: rec.CorrelationKey,
		ConversationID: rec.ID,
	}
}

func isReplay(rec session.Record, messageID string) bool {
	return messageID != "" && rec.LastMessageID == messageID && rec.LastReply != ""
}
