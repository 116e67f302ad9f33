// Package metrics exposes the façade's Prometheus metrics (§6
// "metrics: socket_addr?").
//
// Built with the usual CounterVec/HistogramVec/Gauge shapes, a
// sync.Once-guarded MustRegister, and promhttp.Handler() exposition,
// labelled onto statement kinds, suppliers and the registry rather than
// a cache/replica domain.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// QueryTotal counts queries by statement kind and outcome.
	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "udi_pgp_query_total",
			Help: "Total number of queries dispatched, by statement kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// QueryLatency tracks dispatch latency by statement kind.
	QueryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "udi_pgp_query_latency_seconds",
			Help:    "Query dispatch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// SupplierExecutions counts Execute calls per supplier id.
	SupplierExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "udi_pgp_supplier_executions_total",
			Help: "Total Execute calls per supplier",
		},
		[]string{"supplier_id", "outcome"},
	)

	// RegistryReconciles counts registry reconcile passes and their
	// outcome.
	RegistryReconciles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "udi_pgp_registry_reconciles_total",
			Help: "Total supplier registry reconcile passes",
		},
		[]string{"outcome"},
	)

	// ActiveConnections is the current count of open client connections.
	ActiveConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "udi_pgp_active_connections",
			Help: "Current number of open client connections",
		},
	)

	// LedgerSize is the current number of entries held by the
	// observability ledger.
	LedgerSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "udi_pgp_ledger_size",
			Help: "Current number of entries in the observability ledger",
		},
	)

	once sync.Once
)

// Init registers all metrics with the default Prometheus registry.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(QueryTotal)
		prometheus.MustRegister(QueryLatency)
		prometheus.MustRegister(SupplierExecutions)
		prometheus.MustRegister(RegistryReconciles)
		prometheus.MustRegister(ActiveConnections)
		prometheus.MustRegister(LedgerSize)
	})
}

// Handler returns the Prometheus scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
