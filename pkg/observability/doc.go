// Package observability provides structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// # Structured Logging
//
// Create logger:
//
//	logger, err := observability.NewLogger("info", observability.LogFormatJSON, os.Stderr)
//	logger.WithField("subject_id", id).Info("Role sync enqueued")
//
// Attach the active span to a log line:
//
//	observability.WithTraceContext(ctx, logger).Warn("Platform unavailable")
//
// # Prometheus Metrics
//
// Metrics are registered once and passed down to the queues, workers and HTTP
// layer. Every recorder is safe to call on a nil *Metrics:
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.RecordTick("role_sync", "success", time.Since(start))
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	router.HandleFunc("/readyz", checker.Readiness)
//
// # Tracing
//
//	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
//		Enabled:     true,
//		ServiceName: "rollcall",
//		Endpoint:    "otel-collector:4317",
//	}, logger)
//	defer observability.ShutdownTracing(ctx, tp)
//
// # Shutdown
//
//	sm := observability.NewShutdownManager(logger, 30*time.Second)
//	sm.Register("http", server.Shutdown)
//	sm.WaitForSignal(ctx)
//	err := sm.Shutdown(context.Background())
package observability
