// Package metrics provides Prometheus metrics for clover.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal tracks update runs by kind and status
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "update",
			Name:      "runs_total",
			Help:      "Total number of update runs by kind and status",
		},
		[]string{"kind", "status"},
	)

	// RunDuration tracks run duration in seconds
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "update",
			Name:      "run_duration_seconds",
			Help:      "Duration of update runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"kind"},
	)

	// RecordsIngested tracks records received and novel per source
	RecordsIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "ingest",
			Name:      "records_total",
			Help:      "Total number of source records by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	// GroupsResolved tracks key groups per key field and outcome
	GroupsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "resolution",
			Name:      "groups_total",
			Help:      "Total number of key groups by key field and outcome",
		},
		[]string{"key", "outcome"},
	)

	// EntityRows is the size of the entity map after the last commit
	EntityRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clover",
			Subsystem: "entitymap",
			Name:      "entity_rows",
			Help:      "Number of rows in the entity map",
		},
	)

	// HistoryRows is the size of the ingestion history after the last commit
	HistoryRows = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clover",
			Subsystem: "entitymap",
			Name:      "history_rows",
			Help:      "Number of records in the ingestion history",
		},
	)

	// SinkPublishes tracks post-commit sink outcomes
	SinkPublishes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "sink",
			Name:      "publishes_total",
			Help:      "Total number of sink publishes by sink and status",
		},
		[]string{"sink", "status"},
	)

	// KafkaMessagesPublished tracks Kafka messages published
	KafkaMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "messages_published_total",
			Help:      "Total number of messages published to Kafka",
		},
		[]string{"topic", "status"},
	)

	// KafkaPublishDuration tracks Kafka publish duration
	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "kafka",
			Name:      "publish_duration_seconds",
			Help:      "Duration of Kafka publish operations in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 5},
		},
	)

	// HTTPRequestsTotal tracks read API requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of read API requests",
		},
		[]string{"method", "path", "status_code"},
	)
)

// RecordRun records a finished run
func RecordRun(kind, status string, durationSeconds float64) {
	RunsTotal.WithLabelValues(kind, status).Inc()
	RunDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordIngest records one appended batch
func RecordIngest(source string, received, novel int) {
	RecordsIngested.WithLabelValues(source, "received").Add(float64(received))
	RecordsIngested.WithLabelValues(source, "novel").Add(float64(novel))
}

// RecordResolution records one resolution pass
func RecordResolution(key string, fused, conflicts int) {
	GroupsResolved.WithLabelValues(key, "fused").Add(float64(fused))
	GroupsResolved.WithLabelValues(key, "conflict").Add(float64(conflicts))
}

// RecordCommit records the size of a committed snapshot
func RecordCommit(historyRows, entityRows int) {
	HistoryRows.Set(float64(historyRows))
	EntityRows.Set(float64(entityRows))
}

// RecordSink records a sink publish
func RecordSink(sink, status string) {
	SinkPublishes.WithLabelValues(sink, status).Inc()
}

// RecordKafkaPublish records a Kafka publish operation
func RecordKafkaPublish(topic, status string, durationSeconds float64) {
	KafkaMessagesPublished.WithLabelValues(topic, status).Inc()
	KafkaPublishDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records a read API request
func RecordHTTPRequest(method, path, statusCode string) {
	HTTPRequestsTotal.WithLabelValues(method, path, statusCode).Inc()
}
