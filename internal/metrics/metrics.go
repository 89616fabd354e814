// Package metrics exposes Prometheus collectors for payment sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yourorg/walletpay/internal/payment"
)

// Metrics holds the payment session collectors.
type Metrics struct {
	sessionsTotal   *prometheus.CounterVec
	sessionDuration prometheus.Histogram
	retriesTotal    prometheus.Counter
}

// New registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		sessionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletpay_sessions_total",
			Help: "Completed payment sessions by outcome and error kind.",
		}, []string{"outcome", "error_kind"}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "walletpay_session_duration_seconds",
			Help:    "End-to-end duration of payment sessions.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "walletpay_retries_total",
			Help: "User-chosen retries after a failed payment attempt.",
		}),
	}
	reg.MustRegister(m.sessionsTotal, m.sessionDuration, m.retriesTotal)
	return m
}

// SessionCompleted records a finished session.
func (m *Metrics) SessionCompleted(outcome payment.Outcome, attempts int, d time.Duration) {
	status := "success"
	kind := ""
	if !outcome.Success {
		status = "failure"
		kind = string(outcome.Kind)
	}
	m.sessionsTotal.WithLabelValues(status, kind).Inc()
	m.sessionDuration.Observe(d.Seconds())
}

// RetryChosen records a user-chosen retry.
func (m *Metrics) RetryChosen() {
	m.retriesTotal.Inc()
}
