package history

import (
	"context"
	"database/sql"
	"time"
)

// BatchStatus mirrors the terminal status of a recorded batch.
type BatchStatus string

const (
	BatchStatusRunning        BatchStatus = "running"
	BatchStatusAllSucceeded   BatchStatus = "all_succeeded"
	BatchStatusPartialSuccess BatchStatus = "partial_success"
	BatchStatusAllFailed      BatchStatus = "all_failed"
	BatchStatusAborted        BatchStatus = "aborted"
)

// Batch is the stored record of one batch run.
type Batch struct {
	ID          string      `json:"id"`
	Status      BatchStatus `json:"status"`
	Chained     bool        `json:"chained"`
	StopOnError bool        `json:"stop_on_error"`
	StepCount   int         `json:"step_count"`
	StartedAt   time.Time   `json:"started_at"`
	CompletedAt *time.Time  `json:"completed_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Attempt is the stored record of one step attempt. Attempts are
// append-only; re-running a query inserts a new row.
type Attempt struct {
	ID         int64     `json:"id"`
	BatchID    string    `json:"batch_id"`
	StepIndex  int       `json:"step_index"`
	Query      string    `json:"query"`
	Code       string    `json:"code"`
	Status     string    `json:"status"`
	Shape      *string   `json:"shape,omitempty"`
	Success    bool      `json:"success"`
	ElapsedMS  int64     `json:"elapsed_ms"`
	Violations *string   `json:"violations,omitempty"` // JSON array
	Truncated  bool      `json:"truncated"`
	TotalRows  int       `json:"total_rows"`
	CreatedAt  time.Time `json:"created_at"`
}

// AttemptFilter narrows attempt listings. Zero-value fields are ignored.
type AttemptFilter struct {
	BatchID string
	Status  string
	Success *bool
	Since   *time.Time
}

// Stats summarizes the attempt log.
type Stats struct {
	TotalAttempts  int64            `json:"total_attempts"`
	TotalBatches   int64            `json:"total_batches"`
	ByStatus       map[string]int64 `json:"by_status"`
	ByShape        map[string]int64 `json:"by_shape"`
	TruncatedCount int64            `json:"truncated_count"`
}

// Store defines the interface for the attempt log persistence layer.
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Batch operations
	CreateBatch(ctx context.Context, batch *Batch) error
	GetBatch(ctx context.Context, id string) (*Batch, error)
	UpdateBatchStatus(ctx context.Context, id string, status BatchStatus) error
	ListBatches(ctx context.Context, limit, offset int) ([]*Batch, error)
	DeleteBatch(ctx context.Context, id string) error

	// Attempt operations
	InsertAttempt(ctx context.Context, attempt *Attempt) error
	GetAttempt(ctx context.Context, id int64) (*Attempt, error)
	ListAttempts(ctx context.Context, filter AttemptFilter, limit, offset int) ([]*Attempt, error)
	PruneAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Utility
	GetStats(ctx context.Context) (*Stats, error)
	HealthCheck(ctx context.Context) error
}
