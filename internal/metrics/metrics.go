// Package metrics holds the Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Submission outcomes, one per terminal state of an ingestion.
const (
	OutcomeSuccess        = "success"
	OutcomeMissingPayload = "missing_payload"
	OutcomeStorageError   = "storage_error"
	OutcomePersistError   = "persistence_error"
	OutcomeCanceled       = "canceled"
)

type Metrics struct {
	Submissions      *prometheus.CounterVec
	PublishFailures  *prometheus.CounterVec
	BlobSize         prometheus.Histogram
	MQTTConnected    prometheus.Gauge
	MQTTDelivered    prometheus.Counter
	MQTTErrors       prometheus.Counter
	MQTTLatency      prometheus.Histogram
	ThumbnailsDone   prometheus.Counter
	ThumbnailsFailed prometheus.Counter
}

// New creates the collectors and registers them with registry.
func New(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handsign_submissions_total",
			Help: "Translation submissions by terminal outcome",
		}, []string{"outcome"}),
		PublishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "handsign_publish_failures_total",
			Help: "Translation events that could not be delivered, by topic",
		}, []string{"topic"}),
		BlobSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "handsign_blob_size_bytes",
			Help:    "Size of stored image blobs",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		MQTTConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "handsign_mqtt_connection_status",
			Help: "Current MQTT connection status (1 for connected, 0 for disconnected)",
		}),
		MQTTDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handsign_mqtt_messages_delivered_total",
			Help: "MQTT messages acknowledged by the broker",
		}),
		MQTTErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handsign_mqtt_errors_total",
			Help: "MQTT publish and connection errors",
		}),
		MQTTLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "handsign_mqtt_publish_latency_seconds",
			Help:    "Time from publish to broker acknowledgement",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		ThumbnailsDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handsign_thumbnails_generated_total",
			Help: "Thumbnails written by the thumbnail worker",
		}),
		ThumbnailsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "handsign_thumbnails_failed_total",
			Help: "Thumbnail jobs that failed",
		}),
	}

	collectors := []prometheus.Collector{
		m.Submissions, m.PublishFailures, m.BlobSize,
		m.MQTTConnected, m.MQTTDelivered, m.MQTTErrors, m.MQTTLatency,
		m.ThumbnailsDone, m.ThumbnailsFailed,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("metrics.New: %w", err)
		}
	}
	return m, nil
}

// NewUnregistered is for tests and tools that never expose /metrics.
func NewUnregistered() *Metrics {
	m, err := New(prometheus.NewRegistry())
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Metrics) SubmissionDone(outcome string) {
	m.Submissions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PublishFailed(topic string) {
	m.PublishFailures.WithLabelValues(topic).Inc()
}

func (m *Metrics) SetMQTTConnected(connected bool) {
	if connected {
		m.MQTTConnected.Set(1)
		return
	}
	m.MQTTConnected.Set(0)
}

func (m *Metrics) ObservePublish(start time.Time, err error) {
	if err != nil {
		m.MQTTErrors.Inc()
		return
	}
	m.MQTTDelivered.Inc()
	m.MQTTLatency.Observe(time.Since(start).Seconds())
}
