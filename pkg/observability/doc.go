// Package observability is the daemon's telemetry kit: slog-based JSON
// logging, the Prometheus metric set, dependency health probes, ordered
// shutdown, and panic recovery for background jobs.
//
// # Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("port", 8443).Info("server started")
//
// FromContext enriches entries with the request, user and tenant identity
// stored by the edge middleware:
//
//	observability.FromContext(ctx).Warn("token verification failed")
//
// # Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.AuthzDecisionsTotal.WithLabelValues("admin", "denied", "insufficient_role").Inc()
//	metrics.SessionsActive.Inc()
//
// # Health
//
//	checker := observability.NewHealthChecker(redisClient)
//	checker.RegisterCheck("roles_file", rolesFileCheck)
//
// Liveness answers unconditionally; Readiness runs every registered probe
// and turns 503 while any of them fails.
//
// # Shutdown
//
//	sm := observability.NewShutdownManager(logger, server, 30*time.Second)
//	sm.RegisterShutdownFunc(sessions.Close)
//	sm.WaitForShutdown()
//
// Steps run in registration order, so producers can be drained before the
// stores they drain into are closed.
//
// Log enrichment keys live in pkg/contextkeys; the Redis metrics are fed
// by the instrumented client in pkg/storage.
package observability
