package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mymunastore/aretenvi/internal/intake"
	"github.com/mymunastore/aretenvi/internal/registration"
	"github.com/mymunastore/aretenvi/internal/session"
	"github.com/mymunastore/aretenvi/internal/types"
)

const (
	maxInboundBytes int64 = 64 << 10
	retryAfter            = "2"
)

type IntakeHandler interface {
	Handle(ctx context.Context, msg intake.Message) (string, error)
}

type RegistrationLookup interface {
	Lookup(ctx context.Context, ref string) (types.Registration, error)
}

type Options struct {
	Addr        string
	WebhookPath string
	// WebhookSecret turns on inbound authentication. PublicWebhookURL is the
	// URL the provider signs when the server sits behind a proxy.
	WebhookSecret    string
	PublicWebhookURL string
	// AdminToken guards the staff routes. They are not mounted when empty.
	AdminToken string

	Intake        IntakeHandler
	Registrations RegistrationLookup
	Feed          http.Handler
	Metrics       http.Handler
}

type server struct {
	logger *slog.Logger
	opts   Options
}

func NewServer(logger *slog.Logger, opts Options) *http.Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.WebhookPath == "" {
		opts.WebhookPath = "/webhook/whatsapp"
	}
	h := &server{logger: logger, opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc(opts.WebhookPath, h.handleInbound)
	if opts.Metrics != nil {
		mux.Handle("/metrics", opts.Metrics)
	}
	if strings.TrimSpace(opts.AdminToken) != "" {
		if opts.Registrations != nil {
			mux.Handle("/v1/registrations/{ref}", h.requireAdmin(http.HandlerFunc(h.handleRegistration)))
		}
		if opts.Feed != nil {
			mux.Handle("/v1/feed/ws", h.requireAdmin(opts.Feed))
		}
	}

	return &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *server) handleInbound(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	switch r.Method {
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodPost:
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	in, err := readInbound(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if s.opts.WebhookSecret != "" && !s.authenticate(r, in) {
		s.logger.Warn("rejected unauthenticated webhook", "remote", r.RemoteAddr, "json", in.json)
		writeError(w, http.StatusForbidden, "invalid webhook signature")
		return
	}
	if in.msg.Sender == "" || strings.TrimSpace(in.msg.Text) == "" {
		writeError(w, http.StatusBadRequest, "From and Body are required")
		return
	}

	reply, err := s.opts.Intake.Handle(r.Context(), in.msg)
	if err != nil {
		switch {
		case errors.Is(err, intake.ErrInvalidMessage):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, session.ErrSessionQueueFull),
			errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, http.StatusServiceUnavailable, "busy, retry later")
		default:
			s.logger.Error("intake failed", "key", in.msg.Sender, "err", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}
	writeTwiML(w, http.StatusOK, reply)
}

func (s *server) authenticate(r *http.Request, in inbound) bool {
	if in.json {
		return secretsEqual(r.Header.Get(webhookSecretHeader), s.opts.WebhookSecret)
	}
	return ValidTwilioSignature(s.opts.WebhookSecret, requestURL(r, s.opts.PublicWebhookURL), in.params, r.Header.Get(twilioSignatureHeader))
}

func (s *server) handleRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ref := strings.TrimSpace(r.PathValue("ref"))
	if ref == "" {
		writeError(w, http.StatusBadRequest, "reference number is required")
		return
	}
	reg, err := s.opts.Registrations.Lookup(r.Context(), ref)
	if err != nil {
		if errors.Is(err, registration.ErrNotFound) {
			writeError(w, http.StatusNotFound, "registration not found")
			return
		}
		s.logger.Error("registration lookup failed", "ref", ref, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (s *server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || !secretsEqual(strings.TrimSpace(token), s.opts.AdminToken) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="aret-intake"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func setCORSHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Twilio-Signature, X-Webhook-Secret")
}

func secretsEqual(got, want string) bool {
	if got == "" || want == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
