package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/tabulark/tabulark/pkg/policy"
	"github.com/tabulark/tabulark/pkg/script"
	"github.com/tabulark/tabulark/pkg/table"
	"github.com/tabulark/tabulark/pkg/telemetry"
)

// DefaultTableName is the predeclared name code sees its input table
// under.
const DefaultTableName = "df"

// Orchestrator runs the validate/execute/normalize pipeline, once per
// request or looped over the steps of a batch.
type Orchestrator struct {
	validator  *script.Validator
	executor   *script.Executor
	normalizer *Normalizer
	logger     zerolog.Logger

	generator CodeGenerator
	history   HistorySink
	metrics   *telemetry.Metrics
	tracer    *telemetry.Tracer
	events    *telemetry.EventPublisher
	workers   int
	tableName string
}

// NewOrchestrator wires the three pipeline stages together.
func NewOrchestrator(v *script.Validator, e *script.Executor, n *Normalizer, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		validator:  v,
		executor:   e,
		normalizer: n,
		logger:     logger.With().Str("component", "orchestrator").Logger(),
		workers:    4,
		tableName:  DefaultTableName,
	}
}

// WithGenerator sets the code generator used for steps submitted as bare
// queries.
func (o *Orchestrator) WithGenerator(g CodeGenerator) *Orchestrator {
	o.generator = g
	return o
}

// WithHistory sets the history sink step records are handed to.
func (o *Orchestrator) WithHistory(h HistorySink) *Orchestrator {
	o.history = h
	return o
}

// WithMetrics sets the metrics collector.
func (o *Orchestrator) WithMetrics(m *telemetry.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

// WithTracer sets the tracer batch, step, and phase spans are emitted on.
func (o *Orchestrator) WithTracer(t *telemetry.Tracer) *Orchestrator {
	o.tracer = t
	return o
}

// WithEvents sets the publisher step lifecycle events go to.
func (o *Orchestrator) WithEvents(ep *telemetry.EventPublisher) *Orchestrator {
	o.events = ep
	return o
}

// WithWorkers sets the worker count for non-chained batches.
func (o *Orchestrator) WithWorkers(n int) *Orchestrator {
	if n > 0 {
		o.workers = n
	}
	return o
}

// WithTableName overrides the name the input table is bound under.
func (o *Orchestrator) WithTableName(name string) *Orchestrator {
	if name != "" {
		o.tableName = name
	}
	return o
}

// Run executes one attempt: validate the code, run it against tbl, and
// normalize the result. The returned step is always populated; pipeline
// failures surface on it, not as the error return.
func (o *Orchestrator) Run(ctx context.Context, query, code string, tbl *table.Table, budget time.Duration) *BatchStep {
	step := o.runStep(ctx, "", 0, StepRequest{Query: query, Code: code}, tbl, budget)
	return &step
}

// RunBatch executes every step of req against tbl. Chained batches run
// sequentially, threading each tabular result into the next step;
// non-chained batches may run steps concurrently but always report them
// in submission order.
func (o *Orchestrator) RunBatch(ctx context.Context, req BatchRequest, tbl *table.Table) (*BatchResult, error) {
	if len(req.Steps) == 0 {
		return nil, NewInternalError("batch has no steps", nil)
	}
	if req.ID == "" {
		req.ID = uuid.New().String()
	}
	start := time.Now()

	var batchSpan trace.Span
	if o.tracer != nil {
		ctx, batchSpan = o.tracer.StartBatchSpan(ctx, req.ID, req.Chained)
	}

	o.logger.Info().
		Str("batch_id", req.ID).
		Int("steps", len(req.Steps)).
		Bool("chained", req.Chained).
		Bool("stop_on_error", req.StopOnError).
		Msg("Batch started")

	var (
		steps    []BatchStep
		canceled bool
	)
	if req.Chained || req.StopOnError || o.workers <= 1 {
		steps, canceled = o.runSequential(ctx, req, tbl)
	} else {
		steps, canceled = o.runParallel(ctx, req, tbl)
	}

	status := summarize(steps)
	if canceled {
		status = BatchAborted
	}

	result := &BatchResult{
		ID:      req.ID,
		Status:  status,
		Steps:   steps,
		Elapsed: time.Since(start),
	}

	if batchSpan != nil {
		telemetry.SetAttributes(batchSpan, telemetry.AttrBatchStatus.String(string(status)))
		telemetry.RecordSuccess(batchSpan)
		batchSpan.End()
	}

	o.metrics.RecordBatch(string(status), result.Elapsed)
	o.logger.Info().
		Str("batch_id", req.ID).
		Str("status", string(status)).
		Dur("elapsed", result.Elapsed).
		Msg("Batch finished")

	return result, nil
}

// runSequential executes steps one after another. In chained mode each
// tabular success replaces the input for the next step; a non-tabular
// success aborts the remainder, since it cannot be chained further.
func (o *Orchestrator) runSequential(ctx context.Context, req BatchRequest, tbl *table.Table) ([]BatchStep, bool) {
	steps := make([]BatchStep, 0, len(req.Steps))
	state := tbl

	for i, sr := range req.Steps {
		// Cancellation takes effect between steps, never mid-execution.
		if ctx.Err() != nil {
			return append(steps, skipRemaining(req.Steps[i:], i, StepSkipped)...), true
		}

		step := o.runStep(ctx, req.ID, i, sr, state, req.Budget)
		steps = append(steps, step)

		if step.Success {
			if !req.Chained {
				continue
			}
			if step.Outcome != nil && step.Outcome.Shape == ShapeTable {
				state = step.Outcome.Table
				continue
			}
			// A scalar or series cannot feed the next step.
			o.logger.Warn().
				Str("batch_id", req.ID).
				Int("step", i).
				Msg("Chain aborted on non-tabular result")
			rest := skipRemaining(req.Steps[i+1:], i+1, StepAborted)
			chainErr := NewChainError("previous step produced a non-tabular result")
			for j := range rest {
				rest[j].Outcome = ErrorOutcome(chainErr)
			}
			return append(steps, rest...), false
		}

		if req.StopOnError {
			return append(steps, skipRemaining(req.Steps[i+1:], i+1, StepSkipped)...), false
		}
	}
	return steps, false
}

// runParallel executes non-chained steps on a bounded worker pool. The
// input table is frozen; results land at their submission index.
func (o *Orchestrator) runParallel(ctx context.Context, req BatchRequest, tbl *table.Table) ([]BatchStep, bool) {
	steps := make([]BatchStep, len(req.Steps))
	sem := make(chan struct{}, o.workers)
	var wg sync.WaitGroup
	canceled := false

	for i, sr := range req.Steps {
		if ctx.Err() != nil {
			canceled = true
			steps[i] = BatchStep{Index: i, Query: sr.Query, Code: sr.Code, Status: StepSkipped}
			continue
		}
		wg.Add(1)
		go func(i int, sr StepRequest) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			steps[i] = o.runStep(ctx, req.ID, i, sr, tbl, req.Budget)
		}(i, sr)
	}
	wg.Wait()
	return steps, canceled
}

// runStep performs one full attempt and records it.
func (o *Orchestrator) runStep(ctx context.Context, batchID string, index int, sr StepRequest, tbl *table.Table, budget time.Duration) BatchStep {
	start := time.Now()
	step := BatchStep{Index: index, Query: sr.Query, Code: sr.Code}

	if o.tracer != nil {
		var span trace.Span
		ctx, span = o.tracer.StartStepSpan(ctx, batchID, index)
		defer span.End()
	}
	if o.events != nil {
		_ = o.events.PublishStepStarted(batchID, index, sr.Query)
	}

	code := sr.Code
	if code == "" {
		if o.generator == nil {
			o.finishStep(ctx, batchID, &step, NewInternalError("no code and no generator configured", nil), start)
			return step
		}
		generated, err := o.generator.Generate(ctx, sr.Query, tbl.Schema())
		if err != nil {
			o.finishStep(ctx, batchID, &step, NewInternalError("code generation failed", err), start)
			return step
		}
		code = generated
		step.Code = generated
	}

	vctx, vspan := o.startPhase(ctx, "validate")
	accepted, violations, err := o.validator.Validate(vctx, code)
	vspan.End()
	if err != nil {
		o.finishStep(ctx, batchID, &step, NewInternalError("validation fault", err), start)
		return step
	}
	if len(violations) > 0 {
		o.metrics.RecordValidation(false)
		for _, v := range violations {
			o.metrics.RecordViolation(string(v.Category))
		}
		if o.events != nil {
			_ = o.events.PublishValidationRejected(batchID, index, len(violations))
		}
		step.Violations = violations
		o.finishStep(ctx, batchID, &step, NewValidationError(violations), start)
		return step
	}
	o.metrics.RecordValidation(true)

	ectx, espan := o.startPhase(ctx, "execute")
	raw, err := o.executor.Execute(ectx, accepted, map[string]*table.Table{o.tableName: tbl}, budget)
	espan.End()
	if err != nil {
		if script.IsTimeout(err) {
			if o.events != nil {
				_ = o.events.PublishExecutionTimeout(batchID, index, budget)
			}
			o.finishStep(ctx, batchID, &step, NewTimeoutError("execution exceeded budget", err), start)
		} else {
			o.finishStep(ctx, batchID, &step, NewRuntimeError(err.Error(), err), start)
		}
		return step
	}

	_, nspan := o.startPhase(ctx, "normalize")
	outcome, err := o.normalizer.Normalize(raw)
	nspan.End()
	if err != nil {
		var ee *EngineError
		if e, ok := err.(*EngineError); ok {
			ee = e
		} else {
			ee = NewInternalError("normalization failed", err)
		}
		o.finishStep(ctx, batchID, &step, ee, start)
		return step
	}
	if outcome.Truncated {
		o.metrics.RecordTruncation()
		if o.events != nil {
			_ = o.events.PublishResultTruncated(batchID, index, outcome.TotalRows, outcome.Table.NumRows())
		}
	}

	step.Status = StepSucceeded
	step.Success = true
	step.Outcome = outcome
	step.Elapsed = time.Since(start)
	o.metrics.RecordExecution("success", step.Elapsed)
	if o.events != nil {
		_ = o.events.PublishStepSucceeded(batchID, index, string(outcome.Shape), step.Elapsed)
	}
	span := trace.SpanFromContext(ctx)
	telemetry.SetAttributes(span, telemetry.AttrShape.String(string(outcome.Shape)))
	telemetry.RecordSuccess(span)
	o.record(ctx, batchID, &step)
	return step
}

// startPhase opens a child span for one pipeline phase when tracing is
// wired, or hands back a no-op span otherwise.
func (o *Orchestrator) startPhase(ctx context.Context, phase string) (context.Context, trace.Span) {
	if o.tracer == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return o.tracer.StartPhaseSpan(ctx, phase)
}

// finishStep marks a step failed with its classified error and records it.
func (o *Orchestrator) finishStep(ctx context.Context, batchID string, step *BatchStep, ee *EngineError, start time.Time) {
	step.Status = StepFailed
	step.Outcome = ErrorOutcome(ee.WithStep(step.Index))
	step.Elapsed = time.Since(start)
	o.metrics.RecordExecution(string(ee.Class), step.Elapsed)
	if o.events != nil {
		_ = o.events.PublishStepFailed(batchID, step.Index, string(ee.Class), ee.Message)
	}
	span := trace.SpanFromContext(ctx)
	telemetry.SetAttributes(span, telemetry.AttrErrorClass.String(string(ee.Class)))
	telemetry.RecordError(span, ee)
	o.logger.Debug().
		Str("batch_id", batchID).
		Int("step", step.Index).
		Str("class", string(ee.Class)).
		Msg("Step failed")
	o.record(ctx, batchID, step)
}

// record hands the step to the history sink, best-effort.
func (o *Orchestrator) record(ctx context.Context, batchID string, step *BatchStep) {
	if o.history == nil {
		return
	}
	rec := StepRecord{
		BatchID:   batchID,
		StepIndex: step.Index,
		Query:     step.Query,
		Code:      step.Code,
		Status:    string(step.Status),
		Success:   step.Success,
		ElapsedMS: step.Elapsed.Milliseconds(),
	}
	if step.Outcome != nil {
		rec.Shape = string(step.Outcome.Shape)
		rec.Truncated = step.Outcome.Truncated
		rec.TotalRows = step.Outcome.TotalRows
	}
	if len(step.Violations) > 0 {
		rec.Violations = marshalViolations(step.Violations)
	}
	if err := o.history.Record(ctx, rec); err != nil {
		o.logger.Warn().Err(err).
			Str("batch_id", batchID).
			Int("step", step.Index).
			Msg("History record failed")
	}
}

func marshalViolations(vs []policy.Violation) string {
	data, err := json.Marshal(vs)
	if err != nil {
		return ""
	}
	return string(data)
}

// skipRemaining builds terminal records for steps that never ran.
func skipRemaining(rest []StepRequest, firstIndex int, status StepStatus) []BatchStep {
	out := make([]BatchStep, len(rest))
	for i, sr := range rest {
		out[i] = BatchStep{
			Index:  firstIndex + i,
			Query:  sr.Query,
			Code:   sr.Code,
			Status: status,
		}
	}
	return out
}
