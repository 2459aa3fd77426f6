// Package observability provides structured logging, Prometheus metrics,
// health probes, and OpenTelemetry tracing.
//
// # Structured Logging
//
// Loggers emit JSON via slog and carry fields through chaining:
//
//	logger := observability.NewLogger("access")
//	logger.WithField("form_id", formID).Info("permission resolved")
//	logger.WithError(err).Error("grant write failed")
//
// Request identity travels on the context; FromContext stamps it onto
// the log line:
//
//	ctx = observability.WithRequestID(ctx, reqID)
//	observability.FromContext(ctx).Info("handled")
//
// # Prometheus Metrics
//
// All metrics register against a caller-owned registry:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.AccessChecksTotal.WithLabelValues("read", "allowed").Inc()
//
// HTTPMetricsMiddleware instruments a handler chain, and
// RegisterMetricsEndpoint mounts /metrics.
//
// # Health Probes
//
// NewHealthChecker probes Postgres (required) and Redis (optional, only
// degrades the status). RegisterHealthRoutes mounts /health,
// /health/live, and /health/ready:
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	status := checker.Check(ctx)
//
// # OpenTelemetry
//
// InitOTel installs global tracer and meter providers exporting to an
// OTLP collector; ShutdownOTel flushes them on exit:
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "formhive",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
