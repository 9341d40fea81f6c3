package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExchangesActive tracks prompt→reply exchanges currently in flight,
	// on both the client and expert side.
	ExchangesActive = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "active",
			Help:      "Number of prompt/reply exchanges currently in flight",
		},
		[]string{"role"}, // client, expert
	)

	// ExchangesCompleted tracks how prompt→reply exchanges ended.
	ExchangesCompleted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "completed_total",
			Help:      "Total number of completed prompt/reply exchanges by outcome",
		},
		[]string{"role", "outcome"}, // outcome: replied, failed
	)

	// ExchangeDuration tracks prompt-publish-to-reply-received latency.
	ExchangeDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "duration_seconds",
			Help:      "Duration from prompt publish to reply received",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~410s
		},
		[]string{"role"},
	)

	// ReplyPayloadSize tracks the size of a reply's payload, inline or
	// reassembled from a stream.
	ReplyPayloadSize = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "reply_payload_size_bytes",
			Help:      "Size of a reply payload in bytes",
			Buckets:   prometheus.ExponentialBuckets(64, 4, 12), // 64B to 256MB
		},
	)
)
