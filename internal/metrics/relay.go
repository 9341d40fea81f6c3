package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsPublished tracks Publish outcomes by event kind and acceptance.
	EventsPublished = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_published_total",
			Help:      "Total number of events published to the relay pool",
		},
		[]string{"kind", "status"}, // status: accepted, rejected
	)

	// EventsReceived tracks events a Subscription delivered, by kind.
	EventsReceived = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "events_received_total",
			Help:      "Total number of events delivered to a subscription",
		},
		[]string{"kind"},
	)

	// EventSize tracks published event content size in bytes.
	EventSize = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "event_size_bytes",
			Help:      "Size of published event content in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 10), // 64B to 16MB
		},
	)

	// RelayConnections counts relay connection attempts by outcome.
	RelayConnections = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "connection_attempts_total",
			Help:      "Total number of relay connection attempts",
		},
		[]string{"status"}, // connected, failed
	)
)
