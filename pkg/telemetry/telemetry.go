// Package telemetry registers the session's Prometheus metrics on the
// default registry; the debug endpoint serves them via promhttp.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PushesReceived counts protocol pushes by action.
	PushesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentsync_pushes_received_total",
		Help: "Protocol pushes received, by action.",
	}, []string{"action"})

	// RequestsSent counts socket RPC requests by method and outcome.
	RequestsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentsync_requests_total",
		Help: "Socket RPC requests, by action and outcome.",
	}, []string{"action", "outcome"})

	// RequestDuration observes socket RPC round-trip time.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "agentsync_request_duration_seconds",
		Help:    "Socket RPC round-trip time, by action.",
		Buckets: prometheus.DefBuckets,
	}, []string{"action"})

	// Reconnects counts connection attempts by outcome.
	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentsync_reconnects_total",
		Help: "Connection attempts, by outcome.",
	}, []string{"outcome"})

	// RouteTransitions counts settled chat route transitions.
	RouteTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentsync_route_transitions_total",
		Help: "Settled chat route transitions, by final route.",
	}, []string{"final"})

	// EventsSent counts optimistic sends by outcome.
	EventsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentsync_events_sent_total",
		Help: "Optimistically sent events, by outcome.",
	}, []string{"outcome"})

	// RESTRequests counts REST API calls by endpoint and outcome.
	RESTRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "agentsync_rest_requests_total",
		Help: "REST API calls, by endpoint and outcome.",
	}, []string{"endpoint", "outcome"})

	// OpenChats tracks the number of chats currently in state.
	OpenChats = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentsync_chats",
		Help: "Chats currently held in state.",
	})

	// Connected reports whether the socket is logged in (1) or not (0).
	Connected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agentsync_connected",
		Help: "Whether the socket session is logged in.",
	})
)
