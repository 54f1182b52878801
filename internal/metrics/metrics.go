// Package metrics exposes Prometheus counters for the scheduling engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	ResultOK    = "ok"
	ResultError = "error"
)

var (
	lifecycleOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classcal",
		Name:      "lifecycle_operations_total",
		Help:      "Session create/update/delete operations by outcome.",
	}, []string{"op", "result"})

	conflictChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "classcal",
		Name:      "conflict_checks_total",
		Help:      "Conflict checks by the tier that produced the report.",
	}, []string{"tier"})

	suggestionFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classcal",
		Name:      "suggestion_failures_total",
		Help:      "Suggestion service calls that failed and were degraded.",
	})

	auxOrphansRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "classcal",
		Name:      "aux_orphans_removed_total",
		Help:      "Auxiliary records removed because no remote session exists.",
	})
)

// Lifecycle records one lifecycle operation. A nil err counts as ok.
func Lifecycle(op string, err error) {
	result := ResultOK
	if err != nil {
		result = ResultError
	}
	lifecycleOps.WithLabelValues(op, result).Inc()
}

func ConflictCheck(tier string) {
	conflictChecks.WithLabelValues(tier).Inc()
}

func SuggestionFailure() {
	suggestionFailures.Inc()
}

func AuxOrphansRemoved(n int) {
	if n > 0 {
		auxOrphansRemoved.Add(float64(n))
	}
}
