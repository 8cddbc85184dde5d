// Package metrics exposes the prometheus instruments for the relay.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// UpstreamRequests counts calls to generative providers,
	// labelled by provider (gemini/deepseek/ark/mastra) and outcome (ok/error).
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genrelay_upstream_requests_total",
			Help: "Upstream provider requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// StreamEvents counts outward SSE frames by endpoint and frame type.
	StreamEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genrelay_stream_events_total",
			Help: "Server-sent events emitted to clients by endpoint and type",
		},
		[]string{"endpoint", "type"},
	)

	// PollAttempts counts task status polls by terminal outcome.
	PollAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genrelay_task_poll_attempts_total",
			Help: "Task status poll attempts by final outcome",
		},
		[]string{"outcome"},
	)

	// TokensRecorded accumulates recorded token usage by service.
	TokensRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "genrelay_tokens_recorded_total",
			Help: "Tokens recorded by the usage log, by service",
		},
		[]string{"service"},
	)
)

var registerOnce sync.Once

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Init registers all instruments with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(UpstreamRequests)
		prometheus.MustRegister(StreamEvents)
		prometheus.MustRegister(PollAttempts)
		prometheus.MustRegister(TokensRecorded)
	})
}
