package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result label values
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Cycle outcomes
const (
	CyclePublished  = "published"
	CycleCached     = "cached"
	CycleFetchError = "fetch_error"
	CycleBuildError = "build_error"
)

var (
	// Reconciliation metrics
	CyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gwsync_cycles_total",
			Help: "Total number of reconciliation cycles by outcome",
		},
		[]string{"outcome"},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gwsync_cycle_duration_seconds",
			Help:    "Duration of reconciliation cycles in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReplaysTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gwsync_replays_total",
			Help: "Total number of cached snapshot replays after registry recovery",
		},
	)

	KnownKeys = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gwsync_known_keys",
			Help: "Number of registry keys last published by this node",
		},
	)

	SnapshotAge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gwsync_snapshot_age_seconds",
			Help: "Age of the cached snapshot in seconds",
		},
	)

	// Registry metrics
	RegistryReachable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gwsync_registry_reachable",
			Help: "Whether the registry is reachable (1 = reachable, 0 = unreachable)",
		},
	)

	RegistryOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gwsync_registry_operations_total",
			Help: "Total number of registry operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	// Lease metrics
	LeaseActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gwsync_lease_active",
			Help: "Whether this node holds an active lease (1 = active, 0 = none)",
		},
	)

	LeaseTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gwsync_lease_transitions_total",
			Help: "Total number of lease state transitions by target state",
		},
		[]string{"state"},
	)

	// Gateway metrics
	GatewayFetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gwsync_gateway_fetch_duration_seconds",
			Help:    "Duration of gateway configuration fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	GatewayFetchErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gwsync_gateway_fetch_errors_total",
			Help: "Total number of failed gateway configuration fetches",
		},
	)
)

func init() {
	prometheus.MustRegister(CyclesTotal)
	prometheus.MustRegister(CycleDuration)
	prometheus.MustRegister(ReplaysTotal)
	prometheus.MustRegister(KnownKeys)
	prometheus.MustRegister(SnapshotAge)
	prometheus.MustRegister(RegistryReachable)
	prometheus.MustRegister(RegistryOperationsTotal)
	prometheus.MustRegister(LeaseActive)
	prometheus.MustRegister(LeaseTransitionsTotal)
	prometheus.MustRegister(GatewayFetchDuration)
	prometheus.MustRegister(GatewayFetchErrorsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveOperation counts a registry operation by its outcome
func ObserveOperation(operation string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	RegistryOperationsTotal.WithLabelValues(operation, result).Inc()
}

// SetBool sets a gauge to 1 or 0
func SetBool(g prometheus.Gauge, v bool) {
	if v {
		g.Set(1)
		return
	}
	g.Set(0)
}
