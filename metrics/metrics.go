// Package metrics holds the process-wide Prometheus collectors. Everything is
// registered on the default registry via promauto; expose with promhttp.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tcc_http_requests_total",
		Help: "HTTP requests served, by method, chi route pattern and status code.",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tcc_http_request_duration_seconds",
		Help:    "HTTP request latency by chi route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tcc_events_published_total",
		Help: "Realtime events published to the bus, by event type.",
	}, []string{"type"})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcc_events_dropped_total",
		Help: "Events dropped because a subscriber could not keep up.",
	})

	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tcc_ws_clients",
		Help: "Currently connected websocket clients.",
	})

	MatchesCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tcc_matches_completed_total",
		Help: "Matches recorded as complete, including undone ones.",
	})
)
