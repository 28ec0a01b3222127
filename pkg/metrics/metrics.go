// Package metrics holds the Prometheus collectors of the bot and the helpers
// that record into them.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "factcheck"

// Event results.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultPanic    = "panic"
	ResultIgnored  = "ignored"
	ResultBusiness = "business_error"
)

var (
	// webhookEvents counts dispatched webhook events.
	// Labels: type (follow, unfollow, message, ...), result
	webhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "events_total",
		Help:      "Webhook events dispatched by type and result",
	}, []string{"type", "result"})

	// webhookEventDuration measures handler run time per event.
	webhookEventDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "event_duration_seconds",
		Help:      "Time spent handling one webhook event",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"type"})

	// webhookInFlight tracks events accepted but not yet finished.
	webhookInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "webhook",
		Name:      "events_in_flight",
		Help:      "Webhook events accepted and still being handled",
	})

	// continuityChecks counts guard outcomes.
	// Labels: outcome (confirmed, no_token, expired, session_superseded, unexpected_shape)
	continuityChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "continuity",
		Name:      "checks_total",
		Help:      "Session continuity checks by outcome",
	}, []string{"outcome"})

	// replies counts outbound reply calls.
	// Labels: status (ok, error)
	replies = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "line",
		Name:      "replies_total",
		Help:      "Reply API calls by status",
	}, []string{"status"})

	// sessionAuth counts bearer checks on the session query endpoint.
	// Labels: result (ok, rejected)
	sessionAuth = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "graphql",
		Name:      "session_auth_total",
		Help:      "Session query authentications by result",
	}, []string{"result"})

	// telemetryReports counts backend contract violations reported to telemetry.
	telemetryReports = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "telemetry",
		Name:      "reports_total",
		Help:      "Errors reported to telemetry by source",
	}, []string{"source"})
)

// ObserveEvent records one finished webhook event.
func ObserveEvent(eventType, result string, d time.Duration) {
	if eventType == "" {
		eventType = "undefined"
	}
	webhookEvents.WithLabelValues(eventType, result).Inc()
	webhookEventDuration.WithLabelValues(eventType).Observe(d.Seconds())
}

// EventStarted increments the in-flight gauge.
func EventStarted() { webhookInFlight.Inc() }

// EventFinished decrements the in-flight gauge.
func EventFinished() { webhookInFlight.Dec() }

// ObserveContinuity records one guard outcome.
func ObserveContinuity(outcome string) {
	continuityChecks.WithLabelValues(outcome).Inc()
}

// ObserveReply records one reply API call.
func ObserveReply(err error) {
	if err != nil {
		replies.WithLabelValues(ResultError).Inc()
		return
	}
	replies.WithLabelValues(ResultOK).Inc()
}

// ObserveSessionAuth records one session query authentication.
func ObserveSessionAuth(ok bool) {
	if ok {
		sessionAuth.WithLabelValues("ok").Inc()
		return
	}
	sessionAuth.WithLabelValues("rejected").Inc()
}

// ObserveReport records one telemetry report.
func ObserveReport(source string) {
	telemetryReports.WithLabelValues(source).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
