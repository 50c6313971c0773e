// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package metrics provides the get_status counters and Prometheus
// instrumentation for the control frontend.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the frontend.
type Metrics struct {
	// Status counters mirrored from Status
	MessagesHandled prometheus.Counter
	MsgIDsAdded     prometheus.Counter
	InvalidMessages prometheus.Counter

	// Request metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ReplySize       *prometheus.HistogramVec
	Rejections      *prometheus.CounterVec
	Pings           *prometheus.CounterVec
	Inflight        prometheus.Gauge

	// Upstream metrics
	CircuitBreakerState prometheus.Gauge
	CircuitBreakerTrips prometheus.Counter
	UpstreamConnected   prometheus.Gauge
	UpstreamWaiters     *prometheus.GaugeVec

	// Resource metrics
	GoroutinesActive prometheus.Gauge
}

// New registers all metrics under namespace with reg.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "frontend"
	}
	f := promauto.With(reg)

	return &Metrics{
		MessagesHandled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_handled_total",
			Help:      "Total number of requests and pings received from clients",
		}),
		MsgIDsAdded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "msg_ids_added_total",
			Help:      "Total number of correlation ids generated for requests without one",
		}),
		InvalidMessages: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_messages_total",
			Help:      "Total number of rejected or malformed messages",
		}),
		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "requests_total",
				Help:      "Total number of requests relayed back to clients",
			},
			[]string{"transport", "command", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_duration_seconds",
				Help:      "Time from receiving a request to relaying its reply",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"transport", "command"},
		),
		RequestSize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_size_bytes",
				Help:      "Forwarded request payload size in bytes",
				Buckets:   []float64{64, 256, 1024, 4096, 16384, 65536, 262144},
			},
			[]string{"transport"},
		),
		ReplySize: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "reply_size_bytes",
				Help:      "Relayed reply payload size in bytes",
				Buckets:   []float64{64, 256, 1024, 4096, 16384, 65536, 262144, 1048576},
			},
			[]string{"transport"},
		),
		Rejections: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rejections_total",
				Help:      "Total number of error replies by error code",
			},
			[]string{"transport", "code"},
		),
		Pings: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pings_total",
				Help:      "Total number of liveness probes relayed",
			},
			[]string{"transport"},
		),
		Inflight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "inflight_requests",
			Help:      "Number of requests waiting for an upstream reply",
		}),
		CircuitBreakerState: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_state",
			Help:      "Upstream circuit breaker state (0=closed, 1=half_open, 2=open)",
		}),
		CircuitBreakerTrips: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_trips_total",
			Help:      "Total number of upstream circuit breaker trips",
		}),
		UpstreamConnected: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_connected",
			Help:      "Whether the upstream socket is connected (1) or still dialing (0)",
		}),
		UpstreamWaiters: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "upstream_waiters",
				Help:      "Number of registered upstream reply waiters by kind",
			},
			[]string{"kind"},
		),
		GoroutinesActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines_active",
			Help:      "Number of running goroutines",
		}),
	}
}

// ObserveRequest records a completed request.
func (m *Metrics) ObserveRequest(transport, command, status string, started time.Time) {
	m.RequestsTotal.WithLabelValues(transport, command, status).Inc()
	m.RequestDuration.WithLabelValues(transport, command).Observe(time.Since(started).Seconds())
}
