// Package observability provides structured logging and Prometheus metrics
// for sitekit.
//
// The Logger is a thin structured-JSON wrapper over log/slog with chainable
// field helpers and context propagation:
//
//	log := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	log.WithField("site", "eng").Info("site created")
//
// Metrics covers site lifecycle, membership resolution, the name cache and
// the permission cleaner:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.SiteOperationsTotal.WithLabelValues("create", "ok").Inc()
package observability
