package forms

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/formhive/formhive/pkg/access"
)

var (
	formOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formhive_form_operations_total",
			Help: "Form lifecycle operations by outcome",
		},
		[]string{"operation", "status"},
	)

	formCacheOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formhive_form_cache_ops_total",
			Help: "Form record cache operations by result",
		},
		[]string{"op", "result"},
	)
)

func observeFormOperation(operation string, err error) {
	status := "ok"
	switch {
	case err == nil:
	case access.IsValidation(err):
		status = "validation_error"
	case access.IsAccessDenied(err):
		status = "denied"
	case access.IsNotFound(err):
		status = "not_found"
	default:
		status = "error"
	}
	formOperationsTotal.WithLabelValues(operation, status).Inc()
}

func observeFormCacheOp(op, result string) {
	formCacheOpsTotal.WithLabelValues(op, result).Inc()
}
