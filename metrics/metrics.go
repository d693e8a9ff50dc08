package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Message metrics
	MessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgraph_messages_total",
			Help: "Total number of queue messages processed, by outcome",
		},
		[]string{"outcome"},
	)

	PayloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgraph_payloads_total",
			Help: "Total number of payloads handled per pipeline stage",
		},
		[]string{"stage", "status"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "subgraph_batch_duration_seconds",
			Help:    "Duration of one batch from dispatch to collection in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Acknowledgement metrics
	AcksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgraph_acks_total",
			Help: "Total number of message deletions, by status",
		},
		[]string{"status"},
	)

	AckEndpointResolutions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subgraph_ack_endpoint_resolutions_total",
			Help: "Total number of queue endpoint lookups that missed the cache",
		},
	)

	// Sink metrics
	FragmentsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subgraph_fragments_published_total",
			Help: "Total number of graph fragments published, by sink",
		},
		[]string{"sink"},
	)
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"

	StatusOK    = "ok"
	StatusError = "error"
)
