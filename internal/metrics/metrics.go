package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal counts finished logical operations by final status code.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tableadmin_operations_total",
			Help: "Total number of admin operations by final status",
		},
		[]string{"method", "code"},
	)

	// AttemptsTotal counts individual RPC attempts.
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tableadmin_rpc_attempts_total",
			Help: "Total number of RPC attempts, including retries",
		},
		[]string{"method"},
	)

	// RetriesTotal counts retries by the status code that caused them.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tableadmin_rpc_retries_total",
			Help: "Total number of retried RPC attempts",
		},
		[]string{"method", "code"},
	)

	// BackoffSeconds tracks the delays chosen between attempts.
	BackoffSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tableadmin_rpc_backoff_seconds",
			Help:    "Backoff delay before a retry in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		},
		[]string{"method"},
	)

	// OperationLatency tracks end-to-end latency of an operation including retries.
	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tableadmin_operation_latency_seconds",
			Help:    "Admin operation latency in seconds, including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// ConsistencyPolls counts completed consistency checks.
	ConsistencyPolls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tableadmin_consistency_polls_total",
			Help: "Total number of consistency checks by result",
		},
		[]string{"table", "result"},
	)

	// QueueDepth tracks pending completion queue items.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tableadmin_queue_depth",
			Help: "Number of pending completion queue items",
		},
	)
)

// DBConnectionPoolUsage tracks journal database pool usage in percent.
var DBConnectionPoolUsage = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "tableadmin_db_connection_pool_usage_percent",
		Help: "Journal database connection pool usage percentage",
	},
)
