// Package webhook forwards intake events to staff systems (CRM, chat ops
// relays) as signed JSON POSTs.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mymunastore/aretenvi/internal/types"
)

const (
	defaultHTTPTimeout = 10 * time.Second
	errorSnippetBytes  = 512

	EventTypeHeader = "X-Aret-Event"
	DeliveryHeader  = "X-Aret-Delivery"
	TimestampHeader = "X-Aret-Timestamp"
	SignatureHeader = "X-Aret-Signature"

	signaturePrefix = "sha256="
)

type Notification struct {
	EventID         string              `json:"event_id"`
	EventType       types.EventType     `json:"event_type"`
	OccurredAt      time.Time           `json:"occurred_at"`
	CorrelationKey  string              `json:"correlation_key"`
	ConversationID  string              `json:"conversation_id,omitempty"`
	ReferenceNumber string              `json:"reference_number,omitempty"`
	Text            string              `json:"text,omitempty"`
	Registration    *types.Registration `json:"registration,omitempty"`
}

func NewNotification(event types.Event) Notification {
	n := Notification{
		EventID:        event.EventID,
		EventType:      event.EventType,
		OccurredAt:     event.OccurredAt,
		CorrelationKey: event.CorrelationKey,
		ConversationID: event.ConversationID,
		Text:           event.Text,
		Registration:   event.Registration,
	}
	if event.Registration != nil {
		n.ReferenceNumber = event.Registration.ReferenceNumber
	}
	return n
}

type Option func(*Notifier)

type Notifier struct {
	name       string
	url        string
	httpClient *http.Client
	logger     *slog.Logger
	accept     map[types.EventType]bool
	secret     []byte
	now        func() time.Time
}

func New(name string, url string, logger *slog.Logger, opts ...Option) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Notifier{
		name:       strings.TrimSpace(name),
		url:        strings.TrimSpace(url),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		logger:     logger,
		now:        time.Now,
	}
	if n.name == "" {
		n.name = "webhook"
	}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n
}

func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) {
		if client != nil {
			n.httpClient = client
		}
	}
}

// WithEventTypes limits delivery to the listed event types. Without it every
// event is sent.
func WithEventTypes(eventTypes ...types.EventType) Option {
	return func(n *Notifier) {
		if len(eventTypes) == 0 {
			return
		}
		n.accept = make(map[types.EventType]bool, len(eventTypes))
		for _, eventType := range eventTypes {
			n.accept[eventType] = true
		}
	}
}

// WithSigningSecret signs every delivery; see Sign.
func WithSigningSecret(secret string) Option {
	return func(n *Notifier) {
		if secret != "" {
			n.secret = []byte(secret)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(n *Notifier) {
		if now != nil {
			n.now = now
		}
	}
}

func (n *Notifier) Name() string {
	return n.name
}

func (n *Notifier) Handle(ctx context.Context, event types.Event) error {
	if n.accept != nil && !n.accept[event.EventType] {
		return nil
	}

	body, err := json.Marshal(NewNotification(event))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventTypeHeader, string(event.EventType))
	req.Header.Set(DeliveryHeader, event.EventID)
	if len(n.secret) > 0 {
		timestamp := strconv.FormatInt(n.now().Unix(), 10)
		req.Header.Set(TimestampHeader, timestamp)
		req.Header.Set(SignatureHeader, Sign(n.secret, timestamp, body))
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook %s: %w", n.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		n.logger.Debug("staff webhook delivered", "subscriber", n.name, "event_id", event.EventID, "status", resp.StatusCode)
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorSnippetBytes))
	return fmt.Errorf("webhook %s: status %d: %s", n.name, resp.StatusCode, strings.TrimSpace(string(snippet)))
}

// Sign returns "sha256=" followed by the hex HMAC-SHA256 of
// "<timestamp>.<body>". Receivers recompute it and reject stale timestamps.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write([]byte{'.'})
	_, _ = mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign.
func Verify(secret []byte, timestamp string, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, timestamp, body)), []byte(signature))
}
