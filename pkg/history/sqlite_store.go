package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db   *sql.DB
	path string
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		path: cfg.Path,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// CreateBatch creates a new batch record
func (s *SQLiteStore) CreateBatch(ctx context.Context, batch *Batch) error {
	query := `
		INSERT INTO batches (id, status, chained, stop_on_error, step_count, started_at, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		batch.ID,
		batch.Status,
		batch.Chained,
		batch.StopOnError,
		batch.StepCount,
		batch.StartedAt,
		batch.CompletedAt,
		batch.CreatedAt,
		batch.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}

	return nil
}

// GetBatch retrieves a batch by ID
func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*Batch, error) {
	query := `
		SELECT id, status, chained, stop_on_error, step_count, started_at, completed_at, created_at, updated_at
		FROM batches
		WHERE id = ?
	`

	batch := &Batch{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&batch.ID,
		&batch.Status,
		&batch.Chained,
		&batch.StopOnError,
		&batch.StepCount,
		&batch.StartedAt,
		&batch.CompletedAt,
		&batch.CreatedAt,
		&batch.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("batch not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}

	return batch, nil
}

// UpdateBatchStatus updates the status of a batch. Terminal statuses
// also stamp the completion time.
func (s *SQLiteStore) UpdateBatchStatus(ctx context.Context, id string, status BatchStatus) error {
	query := `
		UPDATE batches
		SET status = ?, completed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	var completedAt *time.Time
	if status != BatchStatusRunning {
		now := time.Now()
		completedAt = &now
	}

	result, err := s.db.ExecContext(ctx, query, status, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to update batch status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("batch not found: %s", id)
	}

	return nil
}

// ListBatches lists batches with pagination, newest first
func (s *SQLiteStore) ListBatches(ctx context.Context, limit, offset int) ([]*Batch, error) {
	query := `
		SELECT id, status, chained, stop_on_error, step_count, started_at, completed_at, created_at, updated_at
		FROM batches
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	batches := []*Batch{}
	for rows.Next() {
		batch := &Batch{}
		err := rows.Scan(
			&batch.ID,
			&batch.Status,
			&batch.Chained,
			&batch.StopOnError,
			&batch.StepCount,
			&batch.StartedAt,
			&batch.CompletedAt,
			&batch.CreatedAt,
			&batch.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		batches = append(batches, batch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating batches: %w", err)
	}

	return batches, nil
}

// DeleteBatch deletes a batch and its attempts in one transaction.
func (s *SQLiteStore) DeleteBatch(ctx context.Context, id string) error {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM attempts WHERE batch_id = ?`, id); err != nil {
		_ = s.RollbackTx(tx)
		return fmt.Errorf("failed to delete batch attempts: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM batches WHERE id = ?`, id)
	if err != nil {
		_ = s.RollbackTx(tx)
		return fmt.Errorf("failed to delete batch: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		_ = s.RollbackTx(tx)
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		_ = s.RollbackTx(tx)
		return fmt.Errorf("batch not found: %s", id)
	}

	return s.CommitTx(tx)
}

// InsertAttempt appends a new attempt to the log
func (s *SQLiteStore) InsertAttempt(ctx context.Context, attempt *Attempt) error {
	query := `
		INSERT INTO attempts (
			batch_id, step_index, query, code, status, shape,
			success, elapsed_ms, violations, truncated, total_rows, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, query,
		attempt.BatchID,
		attempt.StepIndex,
		attempt.Query,
		attempt.Code,
		attempt.Status,
		attempt.Shape,
		attempt.Success,
		attempt.ElapsedMS,
		attempt.Violations,
		attempt.Truncated,
		attempt.TotalRows,
		attempt.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get attempt ID: %w", err)
	}

	attempt.ID = id
	return nil
}

// GetAttempt retrieves an attempt by ID
func (s *SQLiteStore) GetAttempt(ctx context.Context, id int64) (*Attempt, error) {
	query := `
		SELECT id, batch_id, step_index, query, code, status, shape,
			   success, elapsed_ms, violations, truncated, total_rows, created_at
		FROM attempts
		WHERE id = ?
	`

	attempt := &Attempt{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&attempt.ID,
		&attempt.BatchID,
		&attempt.StepIndex,
		&attempt.Query,
		&attempt.Code,
		&attempt.Status,
		&attempt.Shape,
		&attempt.Success,
		&attempt.ElapsedMS,
		&attempt.Violations,
		&attempt.Truncated,
		&attempt.TotalRows,
		&attempt.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("attempt not found: %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attempt: %w", err)
	}

	return attempt, nil
}

// ListAttempts lists attempts matching the filter, newest first.
// Attempts within the same batch keep step order.
func (s *SQLiteStore) ListAttempts(ctx context.Context, filter AttemptFilter, limit, offset int) ([]*Attempt, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.BatchID != "" {
		conds = append(conds, "batch_id = ?")
		args = append(args, filter.BatchID)
	}
	if filter.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Success != nil {
		conds = append(conds, "success = ?")
		args = append(args, *filter.Success)
	}
	if filter.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, *filter.Since)
	}

	query := `
		SELECT id, batch_id, step_index, query, code, status, shape,
			   success, elapsed_ms, violations, truncated, total_rows, created_at
		FROM attempts
	`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC, step_index ASC LIMIT ? OFFSET ?"
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	defer rows.Close()

	attempts := []*Attempt{}
	for rows.Next() {
		attempt := &Attempt{}
		err := rows.Scan(
			&attempt.ID,
			&attempt.BatchID,
			&attempt.StepIndex,
			&attempt.Query,
			&attempt.Code,
			&attempt.Status,
			&attempt.Shape,
			&attempt.Success,
			&attempt.ElapsedMS,
			&attempt.Violations,
			&attempt.Truncated,
			&attempt.TotalRows,
			&attempt.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempts: %w", err)
	}

	return attempts, nil
}

// PruneAttemptsBefore deletes attempts created before the cutoff
func (s *SQLiteStore) PruneAttemptsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM attempts WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune attempts: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rows, nil
}

// GetStats summarizes the attempt log
func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStatus: map[string]int64{}, ByShape: map[string]int64{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts`).Scan(&stats.TotalAttempts); err != nil {
		return nil, fmt.Errorf("failed to count attempts: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM batches`).Scan(&stats.TotalBatches); err != nil {
		return nil, fmt.Errorf("failed to count batches: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM attempts WHERE truncated = 1`).Scan(&stats.TruncatedCount); err != nil {
		return nil, fmt.Errorf("failed to count truncated attempts: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM attempts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to group attempts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan status count: %w", err)
		}
		stats.ByStatus[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating status counts: %w", err)
	}

	shapeRows, err := s.db.QueryContext(ctx, `SELECT shape, COUNT(*) FROM attempts WHERE shape IS NOT NULL GROUP BY shape`)
	if err != nil {
		return nil, fmt.Errorf("failed to group attempts by shape: %w", err)
	}
	defer shapeRows.Close()

	for shapeRows.Next() {
		var shape string
		var count int64
		if err := shapeRows.Scan(&shape, &count); err != nil {
			return nil, fmt.Errorf("failed to scan shape count: %w", err)
		}
		stats.ByShape[shape] = count
	}

	if err := shapeRows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shape counts: %w", err)
	}

	return stats, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.db.PingContext(ctx)
}
