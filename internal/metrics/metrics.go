package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "healthmate_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Reading intake
	ReadingsReceivedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmate_readings_received_total",
			Help: "Total number of readings received",
		},
		[]string{"source", "status"}, // source: http, kafka; status: accepted, rejected
	)

	// Evaluation
	EvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmate_evaluations_total",
			Help: "Total number of readings evaluated against thresholds",
		},
		[]string{"kind", "verdict"}, // verdict: in_range, out_of_range
	)

	// Dispatch
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmate_dispatch_total",
			Help: "Total number of dispatch invocations by terminal state",
		},
		[]string{"state"}, // skipped, contacts_missing, done
	)

	DeliveryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmate_delivery_total",
			Help: "Total number of email delivery attempts",
		},
		[]string{"result"}, // success, transport, status, serialization
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmate_notifications_total",
			Help: "Total number of local notification enqueues",
		},
		[]string{"result"}, // enqueued, duplicate, failed
	)

	// Email relay
	RelayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmate_relay_requests_total",
			Help: "Total number of requests to the email relay",
		},
		[]string{"result"},
	)

	RelayRequestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "healthmate_relay_request_duration_seconds",
			Help:    "Email relay round trip in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// Worker metrics
	WorkerQueueSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "healthmate_worker_queue_size",
			Help: "Current size of the evaluation queue",
		},
	)

	WorkerQueueCapacity = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "healthmate_worker_queue_capacity",
			Help: "Capacity of the evaluation queue",
		},
	)

	WorkerProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthmate_worker_processed_total",
			Help: "Total number of readings processed by workers",
		},
	)

	WorkerFailedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthmate_worker_failed_total",
			Help: "Total number of readings that failed in workers",
		},
	)

	WorkerJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "healthmate_worker_job_duration_seconds",
			Help:    "Time taken to evaluate and dispatch one reading",
			Buckets: []float64{.001, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	// Kafka
	KafkaPublishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmate_kafka_publish_total",
			Help: "Total number of messages published to Kafka",
		},
		[]string{"status"}, // status: success, failed
	)

	KafkaPublishRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthmate_kafka_publish_retries_total",
			Help: "Total number of Kafka publish retries",
		},
	)

	KafkaPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "healthmate_kafka_publish_duration_seconds",
			Help:    "Time taken to publish one notification to Kafka",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	KafkaConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmate_kafka_consumed_total",
			Help: "Total number of device readings consumed from Kafka",
		},
		[]string{"status"}, // status: accepted, invalid, retried
	)

	// Retention
	RetentionPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "healthmate_retention_purged_total",
			Help: "Total number of readings removed by the retention sweep",
		},
	)

	// UI signal hub
	SignalClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "healthmate_signal_clients",
			Help: "Connected websocket clients",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "healthmate_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
