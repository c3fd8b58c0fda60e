package telemetry_test

import (
	"context"
	"fmt"
	"time"

	"github.com/tabulark/tabulark/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	// Create configuration
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"

	// Initialize telemetry
	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	// Add telemetry to context
	ctx := tel.WithContext(context.Background())

	// Use telemetry
	logger := telemetry.FromContext(ctx)
	logger.Info("Application started")

	// Output can vary, so we don't specify output for this example
}

// Example_structuredLogging demonstrates structured logging features.
func Example_structuredLogging() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Logging.Output = "stdout"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Component-specific logger
	logger := tel.Logger.NewComponentLogger("orchestrator")

	// Add context fields
	logger = logger.WithBatchID("batch-123").WithStepIndex(2)

	// Log at different levels
	logger.Debug("Validating generated code")
	logger.Info("Step executed successfully")
	logger.Warn("Result truncated to row cap")

	// Log with error
	err := fmt.Errorf("time budget exceeded")
	logger.WithError(err).Error("Step execution failed")

	// Output varies, no output specified
}

// Example_distributedTracing demonstrates distributed tracing usage.
func Example_distributedTracing() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Tracing.Exporter = "stdout"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start a batch span
	ctx, span := tel.Tracer.StartBatchSpan(ctx, "batch-789", true)
	defer span.End()

	span.SetAttributes(
		telemetry.AttrBatchStatus.String("all_succeeded"),
	)

	// Nested step span
	_, childSpan := tel.Tracer.StartStepSpan(ctx, "batch-789", 0)
	defer childSpan.End()

	childSpan.SetAttributes(
		telemetry.AttrShape.String("table"),
		telemetry.AttrQuery.String("average salary by department"),
	)

	// Simulate work
	time.Sleep(10 * time.Millisecond)

	// Record success
	telemetry.RecordSuccess(childSpan)

	// Output varies, no output specified
}

// Example_metricsCollection demonstrates metrics collection.
func Example_metricsCollection() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = true

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Record validation metrics
	tel.Metrics.RecordValidation(true)
	tel.Metrics.RecordValidation(false)
	tel.Metrics.RecordViolation("ForbiddenCall")

	// Simulate step execution
	start := time.Now()
	time.Sleep(50 * time.Millisecond)
	duration := time.Since(start)

	tel.Metrics.RecordExecution("success", duration)
	tel.Metrics.RecordTruncation()

	// Record batch metrics
	tel.Metrics.RecordBatch("all_succeeded", duration)

	fmt.Println("Metrics recorded successfully")
	// Output: Metrics recorded successfully
}

// Example_eventPublishing demonstrates event publishing and subscription.
func Example_eventPublishing() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Events.EnableAsync = false // Synchronous for example

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Subscribe to events
	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("Event: %s - %s\n", event.Type, event.Message)
	}, nil) // No filter, receive all events

	// Publish events
	tel.Events.PublishBatchStarted("batch-123", 3, true)
	tel.Events.PublishStepStarted("batch-123", 0, "top earners per team")
	tel.Events.PublishStepSucceeded("batch-123", 0, "table", 25*time.Millisecond)

	// Output varies due to async nature, no output specified
}

// Example_batchInstrumentation demonstrates instrumenting a complete batch.
func Example_batchInstrumentation() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start batch context
	batchID := "batch-123"
	ctx = telemetry.WithBatchContext(ctx, batchID, 1, false)

	// Execute batch (simulated)
	executeStep(ctx, batchID)

	// End batch context
	telemetry.EndBatchContext(ctx, batchID, "all_succeeded", nil)

	fmt.Println("Batch instrumentation complete")
	// Output: Batch instrumentation complete
}

func executeStep(ctx context.Context, batchID string) {
	ctx = telemetry.WithStepContext(ctx, batchID, 0, "headcount by office")

	// Get logger from context
	logger := telemetry.FromContext(ctx)
	logger.Info("Executing step")

	// Simulate work
	time.Sleep(10 * time.Millisecond)

	// End step context
	telemetry.EndStepContext(ctx, batchID, 0, "table", "", nil)
}

// Example_phaseInstrumentation demonstrates instrumenting step phases.
func Example_phaseInstrumentation() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Record a validation phase
	err := telemetry.RecordPhase(ctx, "validate", func() error {
		// Simulate validation work
		time.Sleep(5 * time.Millisecond)
		return nil
	})

	if err == nil {
		fmt.Println("Phase completed successfully")
	}

	// Output: Phase completed successfully
}

// Example_instrumentedOperation demonstrates using the InstrumentedContext helper.
func Example_instrumentedOperation() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	// Start instrumented operation
	ic := telemetry.StartOperation(ctx, "rules.reload",
		attribute.String("rules.path", "/etc/tabulark/rules"),
	)
	defer ic.End(nil)

	// Use the instrumented context
	ic.Logger.Info("Reloading policy rules")

	// Simulate reload
	time.Sleep(5 * time.Millisecond)

	ic.Logger.Debug("Policy rules reloaded")

	fmt.Println("Operation instrumentation complete")
	// Output: Operation instrumentation complete
}

// Example_eventFiltering demonstrates event filtering.
func Example_eventFiltering() {
	cfg := telemetry.DefaultConfig()
	cfg.Events.Enabled = true
	cfg.Events.EnableAsync = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Subscribe with level filter (only warnings and errors)
	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("Important event: %s\n", event.Type)
	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))

	// Subscribe with type filter (only timeout events)
	tel.Events.Subscribe(func(event telemetry.Event) {
		fmt.Printf("Timeout event: %s\n", event.Message)
	}, telemetry.FilterByType(telemetry.EventTypeExecutionTimeout))

	// Publish various events
	tel.Events.PublishBatchStarted("batch-123", 2, false)                    // Info - filtered by level filter
	tel.Events.PublishExecutionTimeout("batch-123", 1, 10*time.Second)       // Warning - passes level filter
	tel.Events.PublishStepFailed("batch-123", 1, "timeout", "budget passed") // Error - passes level filter

	// Output varies, no output specified
}

// Example_productionConfiguration demonstrates production-ready configuration.
func Example_productionConfiguration() {
	cfg := telemetry.ProductionConfig()

	// Customize for your environment
	cfg.ServiceVersion = "1.2.3"
	cfg.Environment = "production"

	// Configure OTLP exporter
	cfg.Tracing.Exporter = "otlp"
	cfg.Tracing.Endpoint = "otel-collector.monitoring.svc.cluster.local:4317"
	cfg.Tracing.SamplingRate = 0.1 // 10% sampling
	cfg.Tracing.Insecure = false   // Use TLS in production

	// Configure metrics
	cfg.Metrics.ListenAddress = ":9090"

	// Configure events
	cfg.Events.BufferSize = 10000
	cfg.Events.FlushInterval = 5 * time.Second

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	fmt.Println("Production configuration validated")
	// Output: Production configuration validated
}

// Example_multipleComponents demonstrates telemetry in a multi-component system.
func Example_multipleComponents() {
	cfg := telemetry.DevelopmentConfig()
	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	// Component-specific loggers
	validatorLogger := tel.Logger.NewComponentLogger("validator")
	sandboxLogger := tel.Logger.NewComponentLogger("sandbox")
	historyLogger := tel.Logger.NewComponentLogger("history")

	validatorLogger.Info("Policy engine initialized")
	sandboxLogger.Info("Sandbox ready")
	historyLogger.Info("Attempt log opened")

	fmt.Println("Multi-component logging complete")
	// Output: Multi-component logging complete
}
