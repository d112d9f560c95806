package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// RecordsProcessed counts records applied by the engine, by record type
var RecordsProcessed = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payments_engine_records_processed_total",
		Help: "Total number of input records applied by the engine",
	},
	[]string{"type"},
)

// RecordsIgnored counts records rejected by a validation rule, by reason
var RecordsIgnored = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "payments_engine_records_ignored_total",
		Help: "Total number of input records ignored by the engine",
	},
	[]string{"reason"},
)

// Engine processing metrics
var (
	ApplyLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payments_engine_record_apply_seconds",
			Help:    "Latency in seconds to apply individual records",
			Buckets: prometheus.DefBuckets,
		},
	)

	AccountsTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "payments_engine_accounts",
			Help: "Number of client accounts tracked by the engine",
		},
	)
)

func init() {
	prometheus.MustRegister(RecordsProcessed, RecordsIgnored)
	prometheus.MustRegister(ApplyLatency, AccountsTracked)
}
