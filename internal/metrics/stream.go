package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChunksWritten tracks stream.Writer chunk publishes.
	ChunksWritten = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "chunks_written_total",
			Help:      "Total number of stream chunks published",
		},
		[]string{"status"}, // ok, error
	)

	// ChunksRead tracks stream.Reader chunk deliveries, including
	// out-of-order arrivals held in the reorder window.
	ChunksRead = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "chunks_read_total",
			Help:      "Total number of stream chunks delivered to a reader",
		},
		[]string{"order"}, // in_order, reordered
	)

	// StreamsActive tracks in-flight stream writers/readers.
	StreamsActive = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "active",
			Help:      "Number of currently open stream writers/readers",
		},
		[]string{"role"}, // writer, reader
	)
)
