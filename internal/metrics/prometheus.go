package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the relay's Prometheus collectors
type Metrics struct {
	// Stream metrics
	ActiveStreams    prometheus.Gauge
	StreamsStarted   prometheus.Counter
	StreamsEnded     prometheus.Counter
	PublishRejected  *prometheus.CounterVec
	StaleUnpublishes prometheus.Counter
	StreamDuration   prometheus.Histogram

	// Fan-out metrics
	Subscribers          prometheus.Gauge
	NotificationsSent    *prometheus.CounterVec
	FramesDelivered      prometheus.Counter
	DeliveryFailures     prometheus.Counter
	SubscribersEvicted   prometheus.Counter
	ExportDropped        prometheus.Counter
	DispatchFanoutLength prometheus.Histogram
}

// New registers all collectors on reg. A nil reg gives a private registry,
// which keeps tests from colliding on the default one.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_streams",
			Help: "Current number of publishing streams",
		}),
		StreamsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_streams_started_total",
			Help: "Total number of accepted publishes",
		}),
		StreamsEnded: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_streams_ended_total",
			Help: "Total number of completed publishes",
		}),
		PublishRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_publish_rejected_total",
			Help: "Publish attempts refused, by reason",
		}, []string{"reason"}),
		StaleUnpublishes: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_stale_unpublish_total",
			Help: "Unpublish events ignored because the publisher did not match",
		}),
		StreamDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_stream_duration_seconds",
			Help:    "Duration of completed publishes",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400},
		}),

		Subscribers: f.NewGauge(prometheus.GaugeOpts{
			Name: "relay_subscribers",
			Help: "Current number of registered notification subscribers",
		}),
		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_notifications_total",
			Help: "Notifications dispatched, by status",
		}, []string{"status"}),
		FramesDelivered: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_frames_delivered_total",
			Help: "Frames accepted by subscriber transports",
		}),
		DeliveryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_delivery_failures_total",
			Help: "Frames refused by subscriber transports",
		}),
		SubscribersEvicted: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_subscribers_evicted_total",
			Help: "Subscribers removed after a failed delivery",
		}),
		ExportDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "relay_export_dropped_total",
			Help: "Notifications the event bus could not queue",
		}),
		DispatchFanoutLength: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_dispatch_fanout",
			Help:    "Subscribers in the snapshot of each dispatch",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
}
