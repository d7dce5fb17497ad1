package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workshop",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "workshop",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// TicketTransitions: result, ok, noop, rejected, conflict, error.
	TicketTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "workshop",
		Subsystem: "ticket",
		Name:      "transitions_total",
		Help:      "Ticket lifecycle transitions by action and result",
	}, []string{"action", "result"})

	RealtimeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "workshop",
		Subsystem: "realtime",
		Name:      "subscribers",
		Help:      "Connected websocket subscribers",
	})
)

func ObserveTransition(action, result string) {
	TicketTransitions.WithLabelValues(action, result).Inc()
}
