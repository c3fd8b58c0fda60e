package config

import (
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Engine.Budget != 10*time.Second {
		t.Errorf("expected 10s budget, got %v", cfg.Engine.Budget)
	}
	if cfg.Engine.MaxSteps != 10_000_000 {
		t.Errorf("expected 10M steps, got %d", cfg.Engine.MaxSteps)
	}
	if cfg.Engine.MaxRows != 10_000 {
		t.Errorf("expected 10k row cap, got %d", cfg.Engine.MaxRows)
	}
	if cfg.Engine.TableName != "df" {
		t.Errorf("expected table name 'df', got %s", cfg.Engine.TableName)
	}
	if cfg.History.Enabled {
		t.Error("history should be disabled by default")
	}
	if cfg.Telemetry.TracingExporter != "none" {
		t.Errorf("expected tracing exporter 'none', got %s", cfg.Telemetry.TracingExporter)
	}
}

func TestTelemetryConfigBridge(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Telemetry.LogLevel = "debug"
	cfg.Telemetry.LogFormat = "console"
	cfg.Telemetry.MetricsEnabled = true
	cfg.Telemetry.MetricsAddress = ":9999"
	cfg.Telemetry.TracingEnabled = true
	cfg.Telemetry.TracingExporter = "otlp"
	cfg.Telemetry.TracingEndpoint = "collector:4317"

	tc := cfg.TelemetryConfig("1.2.3")

	if tc.ServiceVersion != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %s", tc.ServiceVersion)
	}
	if tc.Logging.Level != "debug" {
		t.Errorf("expected debug level, got %s", tc.Logging.Level)
	}
	if tc.Logging.Format != "console" {
		t.Errorf("expected console format, got %s", tc.Logging.Format)
	}
	if !tc.Metrics.Enabled || tc.Metrics.ListenAddress != ":9999" {
		t.Errorf("metrics not carried over: %+v", tc.Metrics)
	}
	if !tc.Tracing.Enabled || tc.Tracing.Exporter != "otlp" || tc.Tracing.Endpoint != "collector:4317" {
		t.Errorf("tracing not carried over: %+v", tc.Tracing)
	}

	if err := tc.Validate(); err != nil {
		t.Errorf("bridged configuration should validate: %v", err)
	}
}
