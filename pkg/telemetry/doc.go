// Package telemetry provides observability instrumentation for tabulark.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified system
// for monitoring and debugging tabulark batch execution.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - OpenTelemetry traces with multiple exporters
//  3. Metrics Collection - Prometheus metrics for operational insights
//  4. Event Publishing - Async event system for audit and notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	// Start metrics server
//	if err := tel.StartMetricsServer(); err != nil {
//	    log.Fatal(err)
//	}
//
// Add telemetry to context:
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
// The logger provides component-specific logging with automatic context propagation:
//
//	logger := tel.Logger.NewComponentLogger("orchestrator")
//	logger = logger.WithBatchID("batch-123").WithStepIndex(2)
//	logger.Info("Starting step execution")
//	logger.WithError(err).Error("Step failed")
//
// Log levels: trace, debug, info, warn, error, fatal
//
// # Distributed Tracing
//
// Tracing provides visibility into batch and step flow:
//
//	ctx, span := tel.Tracer.StartBatchSpan(ctx, batchID, chained)
//	defer span.End()
//
//	// Add attributes
//	span.SetAttributes(
//	    telemetry.AttrShape.String("table"),
//	    telemetry.AttrStepIndex.Int(stepIndex),
//	)
//
//	// Record errors
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development)
//
// # Metrics
//
// Prometheus metrics track validation outcomes, execution behavior, and batch throughput:
//
//	tel.Metrics.RecordValidation(accepted)
//	tel.Metrics.RecordViolation("ForbiddenCall")
//	tel.Metrics.RecordExecution("success", duration)
//	tel.Metrics.RecordBatch("all_succeeded", duration)
//	tel.Metrics.RecordTruncation()
//
// Metrics are exposed via HTTP at /metrics (default: :9090/metrics)
//
// # Event Publishing
//
// The event system provides async publishing with buffering and filtering:
//
//	tel.Events.PublishBatchStarted(batchID, stepCount, chained)
//	tel.Events.PublishStepFailed(batchID, stepIndex, class, reason)
//	tel.Events.PublishResultTruncated(batchID, stepIndex, totalRows, keptRows)
//
//	// Subscribe to events
//	tel.Events.Subscribe(func(event telemetry.Event) {
//	    fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
//	}, telemetry.FilterByLevel("warning"))
//
// Event filters: FilterByLevel, FilterByType, FilterByBatchID
//
// # Context Helpers
//
// High-level helpers simplify common instrumentation patterns:
//
//	// Batch context
//	ctx = telemetry.WithBatchContext(ctx, batchID, stepCount, chained)
//	defer telemetry.EndBatchContext(ctx, batchID, status, err)
//
//	// Step context
//	ctx = telemetry.WithStepContext(ctx, batchID, stepIndex, query)
//	defer telemetry.EndStepContext(ctx, batchID, stepIndex, shape, class, err)
//
//	// Phase instrumentation
//	err := telemetry.RecordPhase(ctx, "validate", func() error {
//	    return validator.Check(code)
//	})
//
// # Configuration
//
// The package provides pre-configured setups for different environments:
//
//	// Development (verbose logging, stdout traces, full sampling)
//	cfg := telemetry.DevelopmentConfig()
//
//	// Production (JSON logs, OTLP traces, 10% sampling)
//	cfg := telemetry.ProductionConfig()
//
// # Graceful Shutdown
//
// Always shut down telemetry gracefully to flush pending data:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	if err := tel.Shutdown(ctx); err != nil {
//	    log.Printf("Telemetry shutdown error: %v", err)
//	}
//
// # Common Metrics
//
// Key metrics exposed:
//
//   - tabulark_validations_total{verdict}
//   - tabulark_violations_total{category}
//   - tabulark_executions_total{class}
//   - tabulark_execution_duration_seconds{class}
//   - tabulark_truncations_total
//   - tabulark_batches_total{status}
//   - tabulark_batch_duration_seconds{status}
//   - tabulark_active_batches
//   - tabulark_history_writes_total{status}
package telemetry
