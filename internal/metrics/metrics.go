// Package metrics exposes Prometheus counters for storage, query, and access
// activity. Collectors register against the default registry; serve them with
// promhttp.Handler.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storageOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "infragraph_storage_ops_total",
		Help: "Storage operations executed, by operation.",
	}, []string{"op"})

	queries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "infragraph_iql_queries_total",
		Help: "IQL queries executed, by statement kind.",
	}, []string{"kind"})

	accessDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "infragraph_access_denied_total",
		Help: "Access decisions denied, by operation.",
	}, []string{"op"})

	scopeFiltered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "infragraph_scope_filtered_entities_total",
		Help: "Entities removed from read results by scope narrowing.",
	})
)

// IncStorageOp counts one storage operation.
func IncStorageOp(op string) {
	storageOps.WithLabelValues(op).Inc()
}

// IncQuery counts one executed IQL statement.
func IncQuery(kind string) {
	queries.WithLabelValues(kind).Inc()
}

// IncAccessDenied counts one denied access decision.
func IncAccessDenied(op string) {
	accessDenied.WithLabelValues(op).Inc()
}

// AddScopeFiltered counts entities removed by scope post-filtering.
func AddScopeFiltered(n int) {
	if n > 0 {
		scopeFiltered.Add(float64(n))
	}
}
