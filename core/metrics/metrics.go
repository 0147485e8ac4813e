// Package metrics holds the Prometheus collectors shared by the bot runtime.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "vpnbot"

var (
	// Updates counts inbound Telegram updates by kind (message, callback, other).
	Updates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "updates_total",
		Help:      "Inbound Telegram updates by kind.",
	}, []string{"kind"})

	// HandlerDuration observes handler latency by handler name and status.
	HandlerDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "handler_duration_seconds",
		Help:      "Time spent handling an update.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"handler", "status"})

	// Sessions reports the number of live conversation sessions.
	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions",
		Help:      "Conversation sessions held in memory.",
	})

	// GateDenials counts cooldown denials by gate name.
	GateDenials = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "gate_denials_total",
		Help:      "Actions refused because their cooldown gate was armed.",
	}, []string{"gate"})

	// OfferOutcomes counts offer workflow results.
	OfferOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "offer_outcomes_total",
		Help:      "Offer workflow outcomes.",
	}, []string{"outcome"})

	// Notifications counts administrative fan-out deliveries.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification entries processed by result.",
	}, []string{"result"})

	// BackendRequests counts backend calls by operation and status.
	BackendRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "backend_requests_total",
		Help:      "Backend API calls by operation and status.",
	}, []string{"op", "status"})

	// Panics counts handler panics caught by the recover middleware.
	Panics = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "handler_panics_total",
		Help:      "Handler panics recovered without stopping the poller.",
	})

	// SendFailures counts outbound Telegram calls that failed after retries.
	SendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "send_failures_total",
		Help:      "Outbound Telegram calls that failed after retries.",
	})
)

// Handler exposes the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
