package engine

import (
	"time"

	"github.com/tabulark/tabulark/pkg/policy"
)

// StepStatus is the terminal status of one batch step.
type StepStatus string

const (
	// StepSucceeded means the step validated, ran, and normalized.
	StepSucceeded StepStatus = "succeeded"

	// StepFailed means validation rejected the step or execution
	// faulted.
	StepFailed StepStatus = "failed"

	// StepSkipped means the step never ran because stop-on-error ended
	// the batch, or the batch was canceled, before its turn.
	StepSkipped StepStatus = "skipped"

	// StepAborted means a chained batch hit a non-tabular intermediate
	// result before this step's turn.
	StepAborted StepStatus = "aborted"
)

// StepRequest is one unit of work in a batch: the natural-language query
// and, when the caller already has it, the candidate code. An empty Code
// is filled in by the configured CodeGenerator.
type StepRequest struct {
	Query string `json:"query"`
	Code  string `json:"code,omitempty"`
}

// BatchRequest describes a batch of steps to run against one input
// table. Chained is fixed at creation and never changes mid-batch.
type BatchRequest struct {
	// ID identifies the batch; assigned when empty.
	ID string `json:"id,omitempty"`

	// Steps run in submission order.
	Steps []StepRequest `json:"steps"`

	// Chained threads each tabular result into the next step's input.
	// Non-chained batches run every step against the original table.
	Chained bool `json:"chained"`

	// StopOnError ends the batch at the first failed step, recording
	// the rest as skipped. Default is to continue for partial results.
	StopOnError bool `json:"stop_on_error"`

	// Budget is the per-step wall-clock budget; zero selects the
	// executor default.
	Budget time.Duration `json:"budget,omitempty"`
}

// BatchStep is the append-only record of one executed (or skipped) step.
type BatchStep struct {
	Index      int                `json:"index"`
	Query      string             `json:"query,omitempty"`
	Code       string             `json:"code,omitempty"`
	Status     StepStatus         `json:"status"`
	Success    bool               `json:"success"`
	Outcome    *Outcome           `json:"outcome,omitempty"`
	Violations []policy.Violation `json:"violations,omitempty"`
	Elapsed    time.Duration      `json:"elapsed"`
}

// BatchResult is the terminal record of a batch run.
type BatchResult struct {
	ID      string        `json:"id"`
	Status  BatchStatus   `json:"status"`
	Steps   []BatchStep   `json:"steps"`
	Elapsed time.Duration `json:"elapsed"`
}
