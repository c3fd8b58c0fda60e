package engine

import (
	"context"

	"github.com/tabulark/tabulark/pkg/table"
)

// CodeGenerator supplies candidate code for a query. The production
// implementation wraps the external language-model collaborator; the
// engine only sees the resulting string.
type CodeGenerator interface {
	Generate(ctx context.Context, query string, schema table.Schema) (string, error)
}

// StepRecord is what the engine hands to the history collaborator after
// each recorded step.
type StepRecord struct {
	BatchID    string `json:"batch_id"`
	StepIndex  int    `json:"step_index"`
	Query      string `json:"query"`
	Code       string `json:"code"`
	Status     string `json:"status"`
	Shape      string `json:"shape,omitempty"`
	Success    bool   `json:"success"`
	ElapsedMS  int64  `json:"elapsed_ms"`
	Violations string `json:"violations,omitempty"`
	Truncated  bool   `json:"truncated"`
	TotalRows  int    `json:"total_rows,omitempty"`
}

// HistorySink persists step records. Recording is best-effort: a sink
// failure is logged, never propagated into the batch result.
type HistorySink interface {
	Record(ctx context.Context, rec StepRecord) error
}
