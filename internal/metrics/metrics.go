// Package metrics holds the Prometheus collectors of the intake gateway.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aret_intake"

// Outcome labels for MessagesTotal.
const (
	OutcomeReply     = "reply"
	OutcomeAdvanced  = "advanced"
	OutcomeInvalid   = "invalid"
	OutcomeFinalized = "finalized"
	OutcomeRestarted = "restarted"
	OutcomeExpired   = "expired"
	OutcomeReplay    = "replay"
	OutcomeConflict  = "conflict"
	OutcomeError     = "error"
	OutcomeBusy      = "busy"
)

type Metrics struct {
	registry *prometheus.Registry

	messagesTotal      *prometheus.CounterVec
	stepTransitions    *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	registrations      prometheus.Counter
	finalizeFailures   prometheus.Counter
	replays            prometheus.Counter
	sessionsExpired    *prometheus.CounterVec
	deliveryFailures   *prometheus.CounterVec
	feedClients        prometheus.Gauge
	handleDuration     prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		messagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "received_total",
			Help:      "Inbound WhatsApp messages by handling outcome",
		}, []string{"outcome"}),

		stepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "step_transitions_total",
			Help:      "Conversation step transitions",
		}, []string{"from", "to"}),

		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "validation_failures_total",
			Help:      "Rejected answers by step",
		}, []string{"step"}),

		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "finalized_total",
			Help:      "Registrations finalized",
		}),

		finalizeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registration",
			Name:      "finalize_failures_total",
			Help:      "Registration attempts that failed to persist",
		}),

		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "replays_total",
			Help:      "Redelivered messages answered from the stored reply",
		}),

		sessionsExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "conversation",
			Name:      "expired_total",
			Help:      "Conversations closed for inactivity",
		}, []string{"trigger"}),

		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "delivery_failures_total",
			Help:      "Staff notifications dropped after retries",
		}, []string{"subscriber", "event_type"}),

		feedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "clients_connected",
			Help:      "Connected staff live feed clients",
		}),

		handleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "handle_duration_seconds",
			Help:      "Time spent handling one inbound message",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.messagesTotal,
		m.stepTransitions,
		m.validationFailures,
		m.registrations,
		m.finalizeFailures,
		m.replays,
		m.sessionsExpired,
		m.deliveryFailures,
		m.feedClients,
		m.handleDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the exposition format. A nil receiver yields 404s.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveMessage(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.messagesTotal.WithLabelValues(outcome).Inc()
	m.handleDuration.Observe(took.Seconds())
}

func (m *Metrics) StepTransition(from, to string) {
	if m == nil {
		return
	}
	m.stepTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ValidationFailure(step string) {
	if m == nil {
		return
	}
	m.validationFailures.WithLabelValues(step).Inc()
}

func (m *Metrics) RegistrationFinalized() {
	if m == nil {
		return
	}
	m.registrations.Inc()
}

func (m *Metrics) FinalizeFailed() {
	if m == nil {
		return
	}
	m.finalizeFailures.Inc()
}

func (m *Metrics) Replay() {
	if m == nil {
		return
	}
	m.replays.Inc()
}

// SessionsExpired counts expiries; trigger is "message" or "reaper".
func (m *Metrics) SessionsExpired(trigger string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.sessionsExpired.WithLabelValues(trigger).Add(float64(n))
}

func (m *Metrics) DeliveryFailed(subscriber, eventType string) {
	if m == nil {
		return
	}
	m.deliveryFailures.WithLabelValues(subscriber, eventType).Inc()
}

func (m *Metrics) FeedClients(n int) {
	if m == nil {
		return
	}
	m.feedClients.Set(float64(n))
}
