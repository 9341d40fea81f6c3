package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AsksPublished tracks Ask events a client has published.
	AsksPublished = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "asks_published_total",
			Help:      "Total number of Ask events published",
		},
	)

	// BidsReceived tracks decrypted, validated bids a client collected.
	BidsReceived = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "bids_received_total",
			Help:      "Total number of validated bids received in response to an Ask",
		},
	)

	// BidsOffered tracks bids an expert sent in response to a matching Ask.
	BidsOffered = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "bids_offered_total",
			Help:      "Total number of bids an expert offered, by outcome",
		},
		[]string{"outcome"}, // offered, declined
	)

	// DiscoveryWindowDuration tracks how long a FindExperts call spent
	// collecting bids before its window closed.
	DiscoveryWindowDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "discovery",
			Name:      "window_duration_seconds",
			Help:      "Wall-clock duration of a discovery window",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		},
	)
)
