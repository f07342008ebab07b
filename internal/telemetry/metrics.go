/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequestsTotal counts HTTP requests by method, endpoint, and status.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidar_api_requests_total",
		Help: "Total number of HTTP requests received",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP request latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vidar_api_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections gauges in-flight HTTP requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidar_api_active_connections",
		Help: "Number of HTTP requests currently being served",
	})

	// APIWebSocketConnections gauges connected event observers.
	APIWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidar_api_websocket_connections",
		Help: "Number of connected websocket event observers",
	})

	// DriverTicksTotal counts playback driver loop iterations.
	DriverTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidar_driver_ticks_total",
		Help: "Total number of playback driver iterations",
	})

	// SelectorResultsTotal counts selector outcomes by sequence tier.
	SelectorResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidar_selector_results_total",
		Help: "Selector outcomes by authoritative sequence",
	}, []string{"sequence"})

	// TransitionsTotal counts transition lifecycle outcomes.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidar_transitions_total",
		Help: "Playback transitions by outcome",
	}, []string{"outcome"})

	// RendererFailuresTotal counts renderer load failures.
	RendererFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidar_renderer_failures_total",
		Help: "Total number of renderer load failures",
	})

	// PreemptionsTotal counts driver waits cut short by catalog changes or
	// schedule boundaries.
	PreemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidar_preemptions_total",
		Help: "Driver waits resolved early, by cause",
	}, []string{"cause"})

	// EventDeliveriesTotal counts events handed to subscriber channels.
	EventDeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidar_event_deliveries_total",
		Help: "Events delivered to subscribers, by event type",
	}, []string{"event_type"})

	// EventSubscriberPrunesTotal counts subscribers dropped for not draining
	// their channel within the send timeout.
	EventSubscriberPrunesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidar_event_subscriber_prunes_total",
		Help: "Subscribers removed after exceeding the send timeout",
	})
)

// Handler exposes the Prometheus metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
