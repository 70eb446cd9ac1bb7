package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertbell_events_received_total",
		Help: "Total number of well-formed events received on the push channel.",
	})

	EventsMalformed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertbell_events_malformed_total",
		Help: "Total number of push-channel payloads dropped because they could not be parsed.",
	})

	EventsEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertbell_events_enqueued_total",
		Help: "Total number of events placed on the ingestion queue.",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertbell_events_dropped_total",
		Help: "Total number of events rejected due to a full ingestion queue.",
	})

	AlertsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertbell_alerts_ingested_total",
		Help: "Total number of new alerts stored, labelled by category.",
	}, []string{"category"})

	AlertsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertbell_alerts_duplicate_total",
		Help: "Total number of events suppressed because the same alert already exists.",
	})

	AlertsUnread = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "alertbell_alerts_unread",
		Help: "Current number of unread alerts, labelled by category.",
	}, []string{"category"})

	StoreWriteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertbell_store_write_errors_total",
		Help: "Total number of failed writes to the persistent store.",
	})

	SourceConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alertbell_source_connected",
		Help: "1 while the push-channel connection is open, 0 otherwise.",
	})

	SourceReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "alertbell_source_reconnects_total",
		Help: "Total number of push-channel reconnect attempts.",
	})

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "alertbell_ingest_duration_ms",
		Help:    "Time from dequeue to durable write, in milliseconds.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250},
	})

	QueueUtilization = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "alertbell_queue_utilization_ratio",
		Help: "Current ingestion queue utilization (0–1).",
	})

	DropdownTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "alertbell_dropdown_transitions_total",
		Help: "Dropdown state transitions, labelled by the state entered.",
	}, []string{"state"})
)
