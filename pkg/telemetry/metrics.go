// Package telemetry exposes Prometheus primitives for the service.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the registered collectors. All methods are nil-safe so
// tests can pass a nil *Metrics.
type Metrics struct {
	webhookEvents    *prometheus.CounterVec
	logins           *prometheus.CounterVec
	checkoutSessions prometheus.Counter
}

// NewMetrics registers and returns the Prometheus metrics.
func NewMetrics() *Metrics {
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reelcomic_webhook_events_total",
		Help: "Stripe webhook events by type and outcome.",
	}, []string{"type", "outcome"})

	logins := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reelcomic_logins_total",
		Help: "Login attempts by method and outcome.",
	}, []string{"method", "outcome"})

	checkoutSessions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "reelcomic_checkout_sessions_total",
		Help: "Checkout sessions created.",
	})

	prometheus.MustRegister(webhookEvents, logins, checkoutSessions)

	return &Metrics{
		webhookEvents:    webhookEvents,
		logins:           logins,
		checkoutSessions: checkoutSessions,
	}
}

// ObserveWebhookEvent counts one webhook event outcome
// (processed, duplicate, ignored, failed).
func (m *Metrics) ObserveWebhookEvent(eventType, outcome string) {
	if m == nil {
		return
	}
	m.webhookEvents.WithLabelValues(sanitizeLabel(eventType), sanitizeLabel(outcome)).Inc()
}

// ObserveLogin counts one login attempt.
func (m *Metrics) ObserveLogin(method, outcome string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(sanitizeLabel(method), sanitizeLabel(outcome)).Inc()
}

// ObserveCheckoutSession counts one created checkout session.
func (m *Metrics) ObserveCheckoutSession() {
	if m == nil {
		return
	}
	m.checkoutSessions.Inc()
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
