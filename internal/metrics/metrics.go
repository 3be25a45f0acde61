package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsProcessed tracks finished job runs per outcome
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribe_jobs_processed_total",
			Help: "Total number of job runs by outcome",
		},
		[]string{"outcome"},
	)

	// JobDuration tracks wall-clock time of a full job run
	JobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scribe_job_duration_seconds",
			Help:    "Job run duration in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
	)

	// PipelineStageDuration tracks per-stage latency within a job run
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scribe_pipeline_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	// ClaimsTotal tracks claim attempts against the job store
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribe_claims_total",
			Help: "Total number of claim attempts",
		},
		[]string{"result"},
	)

	// HeartbeatsTotal tracks lease heartbeat writes
	HeartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribe_heartbeats_total",
			Help: "Total number of heartbeat writes",
		},
		[]string{"result"},
	)

	// QueueMessagesTotal tracks broker message dispositions
	QueueMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribe_queue_messages_total",
			Help: "Total number of queue messages by disposition",
		},
		[]string{"result"},
	)

	// AuditEventsTotal tracks audit sink writes
	AuditEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scribe_audit_events_total",
			Help: "Total number of audit events emitted",
		},
		[]string{"result"},
	)

	// JobsInFlight tracks jobs currently held by this worker
	JobsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scribe_jobs_in_flight",
			Help: "Number of jobs currently being processed",
		},
	)

	// DBConnectionPoolUsage tracks connection pool saturation
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scribe_db_connection_pool_usage",
			Help: "Percentage of database connections in use",
		},
	)
)
