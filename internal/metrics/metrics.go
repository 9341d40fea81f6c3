// Package metrics exposes Prometheus counters, histograms, and gauges
// for every askrelay subsystem: crypto operations, discovery
// (ask/bid), the relay transport, the client/expert exchange
// lifecycle, payment, and chunked streaming. Grounded on the teacher's
// internal/metrics package (one file per subsystem, promauto-registered
// vars), rebuilt onto askrelay's own subsystems instead of SAGE's
// crypto/handshake/session/message split. Registry and namespace were
// missing from the teacher's copy of this package (every subsystem
// file referenced them without declaring them); they are declared here.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "askrelay"

// Registry is the process-wide Prometheus registry every metric in
// this package registers against. A dedicated registry (rather than
// prometheus.DefaultRegisterer) keeps askrelay's metrics free of
// whatever else an embedding binary's process may register.
var Registry = prometheus.NewRegistry()
