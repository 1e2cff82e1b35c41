package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus instrument the service exports. A
// single instance is created at startup and shared by reference.
type Metrics struct {
	// Engine.
	EventsApplied  *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec
	EventDuration  *prometheus.HistogramVec
	EngineSequence prometheus.Gauge

	// Business.
	PoolsCreated   prometheus.Counter
	PoliciesSold   prometheus.Counter
	ClaimsPaid     prometheus.Counter
	ClaimsDeclined prometheus.Counter
	PayoutWeiTotal prometheus.Counter
	PoolCapitalWei *prometheus.GaugeVec

	// Persistence.
	PersistEventsWritten   prometheus.Counter
	PersistJournalsWritten prometheus.Counter
	PersistBatchSize       prometheus.Histogram
	PersistBatchDuration   prometheus.Histogram
	PersistErrors          *prometheus.CounterVec
	PersistLastSequence    prometheus.Gauge

	// Projections.
	ProjectionLag     prometheus.Gauge
	ProjectionErrors  prometheus.Counter
	ProjectionDropped prometheus.Counter

	// Snapshots.
	SnapshotsTaken       prometheus.Counter
	SnapshotDuration     prometheus.Histogram
	SnapshotLastSequence prometheus.Gauge

	// HTTP.
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// NATS.
	NATSMessagesReceived  *prometheus.CounterVec
	NATSMessagesPublished *prometheus.CounterVec
	NATSPublishErrors     prometheus.Counter
}

// NewMetrics registers all instruments on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		EventsApplied: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flightpool_engine_events_applied_total",
			Help: "Events applied by the engine, by event type.",
		}, []string{"event_type"}),
		EventsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flightpool_engine_events_rejected_total",
			Help: "Events rejected by the engine, by event type and reason.",
		}, []string{"event_type", "reason"}),
		EventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flightpool_engine_event_duration_seconds",
			Help:    "End-to-end engine processing time per event.",
			Buckets: prometheus.ExponentialBuckets(0.00001, 2, 16),
		}, []string{"event_type"}),
		EngineSequence: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flightpool_engine_sequence",
			Help: "Last global sequence applied by the engine.",
		}),

		PoolsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightpool_pools_created_total",
			Help: "Insurance pools created.",
		}),
		PoliciesSold: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightpool_policies_sold_total",
			Help: "Policies purchased across all pools.",
		}),
		ClaimsPaid: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightpool_claims_paid_total",
			Help: "Claims settled with a payout.",
		}),
		ClaimsDeclined: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightpool_claims_declined_total",
			Help: "Claim requests processed with no payout (flight not delayed).",
		}),
		PayoutWeiTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightpool_payout_wei_total",
			Help: "Cumulative payouts in wei.",
		}),
		PoolCapitalWei: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flightpool_pool_capital_wei",
			Help: "Current capital per pool in wei.",
		}, []string{"pool_id"}),

		PersistEventsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightpool_persist_events_written_total",
			Help: "Event rows written to the event log.",
		}),
		PersistJournalsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightpool_persist_journals_written_total",
			Help: "Journal rows written to the event log.",
		}),
		PersistBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flightpool_persist_batch_size",
			Help:    "Events per persisted batch.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		PersistBatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flightpool_persist_batch_duration_seconds",
			Help:    "Time to flush one batch to Postgres.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		PersistErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flightpool_persist_errors_total",
			Help: "Persistence failures by stage.",
		}, []string{"stage"}),
		PersistLastSequence: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flightpool_persist_last_sequence",
			Help: "Last sequence durably written to the event log.",
		}),

		ProjectionLag: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flightpool_projection_lag",
			Help: "Engine sequence minus projection watermark.",
		}),
		ProjectionErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightpool_projection_errors_total",
			Help: "Projection update failures.",
		}),
		ProjectionDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightpool_projection_dropped_total",
			Help: "Projection outputs dropped due to backpressure.",
		}),

		SnapshotsTaken: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightpool_snapshots_taken_total",
			Help: "State snapshots persisted.",
		}),
		SnapshotDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "flightpool_snapshot_duration_seconds",
			Help:    "Time to capture and persist one snapshot.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		SnapshotLastSequence: factory.NewGauge(prometheus.GaugeOpts{
			Name: "flightpool_snapshot_last_sequence",
			Help: "Sequence of the most recent snapshot.",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flightpool_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flightpool_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"method", "route"}),

		NATSMessagesReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flightpool_nats_messages_received_total",
			Help: "Messages consumed from JetStream, by stream.",
		}, []string{"stream"}),
		NATSMessagesPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "flightpool_nats_messages_published_total",
			Help: "Outbound events published, by event type.",
		}, []string{"event_type"}),
		NATSPublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "flightpool_nats_publish_errors_total",
			Help: "Outbound publish failures.",
		}),
	}
}
