// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels shared by the request and write counters.
const (
	OutcomeOK        = "ok"
	OutcomeTransport = "transport_error"
	OutcomeMalformed = "malformed"
	OutcomeInvalid   = "invalid"
)

var (
	SolRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solbridge_sol_requests_total",
			Help: "Requests sent to the SOL API by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	ReconcilePasses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "solbridge_reconcile_passes_total",
			Help: "Completed reconciliation passes.",
		},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "solbridge_reconcile_duration_seconds",
			Help:    "Duration of reconciliation passes, including the device fetch.",
			Buckets: prometheus.DefBuckets,
		},
	)

	Accessories = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "solbridge_accessories",
			Help: "Accessory bindings currently known to the reconciler.",
		},
	)

	CharacteristicWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solbridge_characteristic_writes_total",
			Help: "Characteristic writes by characteristic and outcome.",
		},
		[]string{"characteristic", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(SolRequests, ReconcilePasses, ReconcileDuration, Accessories, CharacteristicWrites)
}
