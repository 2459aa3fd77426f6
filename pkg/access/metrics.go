package access

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are registered on the default registry and exposed through the
// health server's /metrics endpoint.
var (
	accessChecksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formhive_access_checks_total",
			Help: "Total number of form access checks",
		},
		[]string{"outcome", "cached"},
	)

	sharingMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formhive_sharing_mutations_total",
			Help: "Total number of sharing mutation calls",
		},
		[]string{"operation", "status"},
	)

	decisionCacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formhive_access_decision_cache_ops_total",
			Help: "Decision cache operations by result",
		},
		[]string{"op", "result"},
	)
)

func observeAccessCheck(decision *AccessDecision, cached bool) {
	outcome := "denied"
	if decision.HasAccess {
		outcome = "granted"
	}
	cachedLabel := "false"
	if cached {
		cachedLabel = "true"
	}
	accessChecksTotal.WithLabelValues(outcome, cachedLabel).Inc()
}

func observeSharingMutation(operation string, err error) {
	status := "ok"
	switch {
	case err == nil:
	case IsValidation(err):
		status = "validation_error"
	case IsAccessDenied(err):
		status = "denied"
	case IsNotFound(err):
		status = "not_found"
	default:
		status = "error"
	}
	sharingMutationsTotal.WithLabelValues(operation, status).Inc()
}
