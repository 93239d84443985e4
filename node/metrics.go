package node

import "github.com/prometheus/client_golang/prometheus"

// Metric vectors for the node state machine, grounded on the package-
// level prometheus.*Vec pattern the teacher uses for its index
// manager (chotki's ReindexTaskCount/ReindexDuration et al.). Labeled
// by the local node id only: Nodes that share a local node id, as the
// ServerNodes of one serve process do, add to the same series, and
// peers are not told apart.

var handshakeTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "logux",
	Subsystem: "node",
	Name:      "handshake_total",
}, []string{"node", "result"})

var stateTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "logux",
	Subsystem: "node",
	Name:      "state_transitions",
}, []string{"node", "state"})

var syncBatchesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "logux",
	Subsystem: "node",
	Name:      "sync_batches_sent",
}, []string{"node"})

var syncEntriesSent = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "logux",
	Subsystem: "node",
	Name:      "sync_entries_sent",
}, []string{"node"})

var syncEntriesReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "logux",
	Subsystem: "node",
	Name:      "sync_entries_received",
}, []string{"node"})

var syncRoundTrip = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "logux",
	Subsystem: "node",
	Name:      "sync_round_trip_ms",
	Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
}, []string{"node"})

var errorsByKind = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "logux",
	Subsystem: "node",
	Name:      "errors",
}, []string{"node", "kind", "direction"})
