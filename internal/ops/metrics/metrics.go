package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TransitionsTotal tracks lifecycle transitions per service
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_transitions_total",
			Help: "Total number of lifecycle transitions",
		},
		[]string{"service", "to_status"},
	)

	// InvalidTransitionsTotal tracks rejected transition attempts
	InvalidTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_invalid_transitions_total",
			Help: "Total number of rejected lifecycle transitions",
		},
		[]string{"service"},
	)

	// DeploymentStatus reflects the current status per service (1 = current)
	DeploymentStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "shepherd_deployment_status",
			Help: "Current deployment status per service",
		},
		[]string{"service", "status"},
	)

	// HealingAttemptsTotal tracks healing attempts per operation and error type
	HealingAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_healing_attempts_total",
			Help: "Total number of healing attempts",
		},
		[]string{"operation", "error_type"},
	)

	// HealingRunsTotal tracks finished healing runs by outcome
	HealingRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_healing_runs_total",
			Help: "Total number of healing runs by outcome",
		},
		[]string{"operation", "outcome"},
	)

	// OperationDuration tracks wall time of healed operations including waits
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shepherd_operation_duration_seconds",
			Help:    "Healed operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// ProbeFailuresTotal tracks failed liveness probes per service
	ProbeFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_probe_failures_total",
			Help: "Total number of failed liveness probes",
		},
		[]string{"service", "kind"},
	)

	// ProbeLatency tracks liveness probe latency
	ProbeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shepherd_probe_latency_seconds",
			Help:    "Liveness probe latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "kind"},
	)

	// RollbacksTotal tracks rollbacks per service and trigger (auto, operator)
	RollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_rollbacks_total",
			Help: "Total number of rollbacks",
		},
		[]string{"service", "trigger"},
	)

	// EscalationsTotal tracks failures handed to operators
	EscalationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shepherd_escalations_total",
			Help: "Total number of escalated failures",
		},
		[]string{"service", "error_type"},
	)

	// DBConnectionPoolUsage tracks connection pool utilization percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shepherd_db_connection_pool_usage",
			Help: "Database connection pool usage percentage",
		},
	)

	// DBBatchSize tracks row counts of batched writes
	DBBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shepherd_db_batch_size",
			Help:    "Rows per batched database write",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"operation"},
	)
)
