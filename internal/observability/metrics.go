package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the vAMM service.
type Metrics struct {
	// --- Swap engine ---
	SwapsApplied  *prometheus.CounterVec
	SwapsRejected *prometheus.CounterVec
	SpotPrice     *prometheus.GaugeVec
	SnapshotCount *prometheus.GaugeVec

	// --- Funding ---
	FundingSettled *prometheus.CounterVec
	FundingRate    *prometheus.GaugeVec

	// --- Persistence ---
	PersistBatchDur    prometheus.Histogram
	PersistBatchSize   prometheus.Histogram
	PersistRowsWritten prometheus.Counter
	PersistErrors      *prometheus.CounterVec

	// --- Eventing ---
	EventsPublished *prometheus.CounterVec
	PublishErrors   prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	QueryErrors   *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics. Call once per
// process; promauto registers against the default registry.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005, 0.0001,
		0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.05,
	}

	return &Metrics{
		SwapsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_swaps_applied_total",
			Help: "Swaps successfully applied to the reserves",
		}, []string{"market", "direction"}),

		SwapsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_swaps_rejected_total",
			Help: "Swaps rejected before any state change",
		}, []string{"market", "reason"}),

		SpotPrice: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vamm_spot_price",
			Help: "Instantaneous quote-per-base price (fixed-point units)",
		}, []string{"market"}),

		SnapshotCount: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vamm_reserve_snapshots",
			Help: "Length of the reserve snapshot log",
		}, []string{"market"}),

		FundingSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_funding_settlements_total",
			Help: "Completed funding settlements",
		}, []string{"market"}),

		FundingRate: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vamm_funding_rate",
			Help: "Last settled funding rate (signed fixed-point units)",
		}, []string{"market"}),

		PersistBatchDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vamm_persist_batch_duration_seconds",
			Help:    "Time to flush one persistence batch",
			Buckets: latencyBuckets,
		}),

		PersistBatchSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vamm_persist_batch_size",
			Help:    "Updates per persistence batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),

		PersistRowsWritten: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vamm_persist_rows_written_total",
			Help: "Rows written to the market store",
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_persist_errors_total",
			Help: "Persistence failures by stage",
		}, []string{"stage"}),

		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_events_published_total",
			Help: "Market updates published to NATS",
		}, []string{"kind"}),

		PublishErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vamm_publish_errors_total",
			Help: "Failed NATS publishes (non-fatal, update already persisted)",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_query_requests_total",
			Help: "Query API requests",
		}, []string{"endpoint"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vamm_query_duration_seconds",
			Help:    "Query API latency",
			Buckets: latencyBuckets,
		}, []string{"endpoint"}),

		QueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vamm_query_errors_total",
			Help: "Query API errors",
		}, []string{"endpoint"}),
	}
}
