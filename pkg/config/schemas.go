package config

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validation.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a new schema registry with built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	ctx := cuecontext.New()
	sr := &SchemaRegistry{
		ctx:     ctx,
		schemas: make(map[string]cue.Value),
	}

	// Register built-in schemas
	sr.registerBuiltInSchemas()

	return sr
}

// registerBuiltInSchemas registers all built-in schemas.
func (sr *SchemaRegistry) registerBuiltInSchemas() {
	sr.RegisterSchema("engine", builtinEngineSchema)
	sr.RegisterSchema("policy", builtinPolicySchema)
	sr.RegisterSchema("history", builtinHistorySchema)
	sr.RegisterSchema("telemetry", builtinTelemetrySchema)
	sr.RegisterSchema("dataset", builtinDatasetSchema)
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	// Resolve the definition inside the file so unification validates
	// against it rather than the enclosing file scope.
	it, err := val.Fields(cue.Definitions(true))
	if err == nil {
		for it.Next() {
			if it.Selector().IsDefinition() {
				val = it.Value()
				break
			}
		}
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	// Convert data to CUE value
	dataVal := sr.ctx.Encode(data)
	if err := dataVal.Err(); err != nil {
		return fmt.Errorf("failed to encode data: %w", err)
	}

	// Unify with schema (validates)
	unified := schema.Unify(dataVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}

// ListSchemas returns all registered schema names.
func (sr *SchemaRegistry) ListSchemas() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	names := make([]string, 0, len(sr.schemas))
	for name := range sr.schemas {
		names = append(names, name)
	}
	return names
}

// Built-in schema definitions

const builtinEngineSchema = `
// Engine schema for execution settings
#Engine: {
	// budget is the per-step wall-clock budget in nanoseconds
	budget: int & >0

	// max_steps caps interpreter steps per execution
	max_steps: int & >=1000

	// max_rows caps tabular result rows before truncation
	max_rows: int & >0

	// workers is the worker count for non-chained batches
	workers: int & >0 & <=64

	// table_name is the predeclared input table name
	table_name: string & =~"^[a-zA-Z_][a-zA-Z0-9_]*$"
}
`

const builtinPolicySchema = `
// Policy schema for validation rule settings
#Policy: {
	// paths lists rule files or directories
	paths?: [...string]

	// allowed_calls extends the allowed call surface
	allowed_calls?: [...string & =~"^[a-z_][a-z0-9_]*$"]

	// forbidden_tokens extends the deny list
	forbidden_tokens?: [...string]

	// watch_rules enables hot reload
	watch_rules?: bool
}
`

const builtinHistorySchema = `
// History schema for attempt log settings
#History: {
	enabled: bool

	// path is required when enabled
	if enabled {
		path: string & !=""
	}
	path?: string

	buffer_size?: int & >0
	sync?: bool
	retention_days?: int & >=0
}
`

const builtinTelemetrySchema = `
// Telemetry schema for observability settings
#Telemetry: {
	log_level?: "trace" | "debug" | "info" | "warn" | "error"
	log_format?: "json" | "console"
	metrics_enabled?: bool
	metrics_address?: string
	tracing_enabled?: bool
	tracing_exporter?: "otlp" | "stdout" | "none"
	tracing_endpoint?: string
}
`

const builtinDatasetSchema = `
// Dataset schema for named CSV inputs
#Dataset: {
	// name is the dataset identifier
	name: string & =~"^[a-zA-Z0-9_-]+$"

	// path is the CSV file path
	path: string & !=""
}
`

// ValidateEngine validates engine settings against the engine schema.
func (sr *SchemaRegistry) ValidateEngine(ctx context.Context, engine EngineConfig) error {
	return sr.ValidateAgainstSchema(ctx, "engine", engine)
}

// ValidatePolicy validates policy settings against the policy schema.
func (sr *SchemaRegistry) ValidatePolicy(ctx context.Context, policy PolicyConfig) error {
	return sr.ValidateAgainstSchema(ctx, "policy", policy)
}

// ValidateHistory validates history settings against the history schema.
func (sr *SchemaRegistry) ValidateHistory(ctx context.Context, history HistoryConfig) error {
	return sr.ValidateAgainstSchema(ctx, "history", history)
}

// ValidateDataset validates a dataset entry against the dataset schema.
func (sr *SchemaRegistry) ValidateDataset(ctx context.Context, dataset DatasetConfig) error {
	return sr.ValidateAgainstSchema(ctx, "dataset", dataset)
}
