package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector Hermes exposes. Callers hold one
// instance, created via NewMetrics, and pass it by pointer to whichever
// packages need to record against it.
type Metrics struct {
	VAAsReceived *prometheus.CounterVec // by source
	VAAsVerified prometheus.Counter
	VAAsRejected *prometheus.CounterVec // by reason

	SlotsCompleted    *prometheus.CounterVec // by kind: new|out_of_order
	SlotCompletionLag prometheus.Histogram
	LatestSlot        prometheus.Gauge

	CacheFeedsTracked prometheus.Gauge
	CacheEntries      prometheus.Gauge
	CacheEvictions    prometheus.Counter

	SubscribersActive   prometheus.Gauge
	SubscribersTotal    prometheus.Counter
	SubscriptionsByFeed prometheus.Gauge

	BytesSent    prometheus.Counter
	MessagesSent prometheus.Counter
	RateLimited  prometheus.Counter
	SlowClients  prometheus.Counter

	IngestConnected    *prometheus.GaugeVec // by transport
	IngestMessages     *prometheus.CounterVec
	IngestBackpressure *prometheus.CounterVec

	Errors *prometheus.CounterVec // by component, severity
}

// NewMetrics constructs and registers every collector against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		VAAsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_vaas_received_total",
			Help: "Total VAAs received by source",
		}, []string{"source"}),
		VAAsVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_vaas_verified_total",
			Help: "Total VAAs that passed guardian signature verification",
		}),
		VAAsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_vaas_rejected_total",
			Help: "Total VAAs rejected by reason",
		}, []string{"reason"}),

		SlotsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_slots_completed_total",
			Help: "Total slots completed, by completion kind",
		}, []string{"kind"}),
		SlotCompletionLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "hermes_slot_completion_lag_slots",
			Help:    "Distribution of (latest_completed_slot - this_slot) at completion time",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
		}),
		LatestSlot: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hermes_latest_completed_slot",
			Help: "Most recently completed slot number",
		}),

		CacheFeedsTracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hermes_cache_feeds_tracked",
			Help: "Distinct feed IDs currently held in the historical cache",
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hermes_cache_entries",
			Help: "Total (publish_time, slot) entries held across all feeds",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_cache_evictions_total",
			Help: "Total cache entries evicted by the per-feed LRU bound",
		}),

		SubscribersActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hermes_ws_subscribers_active",
			Help: "Current open WebSocket connections",
		}),
		SubscribersTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_ws_subscribers_total",
			Help: "Total WebSocket connections accepted",
		}),
		SubscriptionsByFeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "hermes_ws_subscriptions_total",
			Help: "Total (client, feed) subscription pairs currently registered",
		}),

		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_ws_bytes_sent_total",
			Help: "Total bytes written to WebSocket clients",
		}),
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_ws_messages_sent_total",
			Help: "Total messages written to WebSocket clients",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_ws_rate_limited_total",
			Help: "Total sends skipped by the per-IP byte rate limiter",
		}),
		SlowClients: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hermes_ws_slow_clients_disconnected_total",
			Help: "Total clients disconnected for exceeding the slow-client strike limit",
		}),

		IngestConnected: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hermes_ingest_connected",
			Help: "Ingestion transport connectivity (1=connected, 0=disconnected), by transport",
		}, []string{"transport"}),
		IngestMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_ingest_messages_total",
			Help: "Total messages consumed from an ingestion transport",
		}, []string{"transport"}),
		IngestBackpressure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_ingest_backpressure_total",
			Help: "Total messages dropped or delayed by ingestion backpressure",
		}, []string{"transport", "reason"}),

		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "hermes_errors_total",
			Help: "Total errors by component and severity",
		}, []string{"component", "severity"}),
	}

	reg.MustRegister(
		m.VAAsReceived, m.VAAsVerified, m.VAAsRejected,
		m.SlotsCompleted, m.SlotCompletionLag, m.LatestSlot,
		m.CacheFeedsTracked, m.CacheEntries, m.CacheEvictions,
		m.SubscribersActive, m.SubscribersTotal, m.SubscriptionsByFeed,
		m.BytesSent, m.MessagesSent, m.RateLimited, m.SlowClients,
		m.IngestConnected, m.IngestMessages, m.IngestBackpressure,
		m.Errors,
	)

	return m
}

// Error severities, matching the teacher's categorization.
const (
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
	SeverityFatal    = "fatal"
)

// Handler returns the http.Handler to mount at /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
