package history

import (
	"context"
	"testing"
	"time"
)

// setupTestStore creates an in-memory SQLite store for testing
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to migrate store: %v", err)
	}

	return store
}

func newBatch(id string) *Batch {
	now := time.Now()
	return &Batch{
		ID:        id,
		Status:    BatchStatusRunning,
		Chained:   true,
		StepCount: 2,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TestStoreLifecycle tests database initialization and closure
func TestStoreLifecycle(t *testing.T) {
	store, err := NewSQLiteStore(Config{
		Path: ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("failed to initialize store: %v", err)
	}

	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("health check failed: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("failed to close store: %v", err)
	}
}

// TestStoreMigrations tests database migrations
func TestStoreMigrations(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	// Check that tables exist by querying them
	tables := []string{"batches", "attempts"}
	for _, table := range tables {
		query := "SELECT COUNT(*) FROM " + table
		var count int
		err := store.db.QueryRowContext(ctx, query).Scan(&count)
		if err != nil {
			t.Errorf("table %s does not exist or is not accessible: %v", table, err)
		}
	}
}

// TestBatchCRUD tests batch record operations
func TestBatchCRUD(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	batch := newBatch("batch-1")

	if err := store.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("failed to create batch: %v", err)
	}

	got, err := store.GetBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("failed to get batch: %v", err)
	}
	if got.Status != BatchStatusRunning || !got.Chained || got.StepCount != 2 {
		t.Errorf("got %+v, want running chained batch with 2 steps", got)
	}
	if got.CompletedAt != nil {
		t.Error("running batch must not have a completion time")
	}

	if err := store.UpdateBatchStatus(ctx, "batch-1", BatchStatusAllSucceeded); err != nil {
		t.Fatalf("failed to update batch status: %v", err)
	}

	got, err = store.GetBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("failed to get batch: %v", err)
	}
	if got.Status != BatchStatusAllSucceeded {
		t.Errorf("status = %s, want all_succeeded", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("terminal status must stamp completion time")
	}

	if err := store.DeleteBatch(ctx, "batch-1"); err != nil {
		t.Fatalf("failed to delete batch: %v", err)
	}
	if _, err := store.GetBatch(ctx, "batch-1"); err == nil {
		t.Error("deleted batch must not be retrievable")
	}
}

// TestDeleteBatchRemovesAttempts tests that deleting a batch takes its
// attempts with it and leaves other batches alone
func TestDeleteBatchRemovesAttempts(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	for _, id := range []string{"batch-1", "batch-2"} {
		if err := store.CreateBatch(ctx, newBatch(id)); err != nil {
			t.Fatalf("failed to create batch: %v", err)
		}
		if err := store.InsertAttempt(ctx, &Attempt{BatchID: id, Status: "succeeded", Success: true}); err != nil {
			t.Fatalf("failed to insert attempt: %v", err)
		}
	}

	if err := store.DeleteBatch(ctx, "batch-1"); err != nil {
		t.Fatalf("failed to delete batch: %v", err)
	}

	gone, err := store.ListAttempts(ctx, AttemptFilter{BatchID: "batch-1"}, 10, 0)
	if err != nil {
		t.Fatalf("failed to list attempts: %v", err)
	}
	if len(gone) != 0 {
		t.Errorf("deleted batch still has %d attempt(s)", len(gone))
	}

	kept, err := store.ListAttempts(ctx, AttemptFilter{BatchID: "batch-2"}, 10, 0)
	if err != nil {
		t.Fatalf("failed to list attempts: %v", err)
	}
	if len(kept) != 1 {
		t.Errorf("surviving batch has %d attempt(s), want 1", len(kept))
	}
}

// TestBatchNotFound tests error handling for missing batches
func TestBatchNotFound(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()

	if _, err := store.GetBatch(ctx, "nope"); err == nil {
		t.Error("expected error for missing batch")
	}
	if err := store.UpdateBatchStatus(ctx, "nope", BatchStatusAborted); err == nil {
		t.Error("expected error updating missing batch")
	}
	if err := store.DeleteBatch(ctx, "nope"); err == nil {
		t.Error("expected error deleting missing batch")
	}
}

// TestListBatchesOrder tests pagination and ordering
func TestListBatchesOrder(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		b := newBatch("batch-" + string(rune('a'+i)))
		b.StartedAt = base.Add(time.Duration(i) * time.Minute)
		if err := store.CreateBatch(ctx, b); err != nil {
			t.Fatalf("failed to create batch: %v", err)
		}
	}

	batches, err := store.ListBatches(ctx, 3, 0)
	if err != nil {
		t.Fatalf("failed to list batches: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}
	// Newest first
	if batches[0].ID != "batch-e" {
		t.Errorf("first batch = %s, want batch-e", batches[0].ID)
	}

	rest, err := store.ListBatches(ctx, 10, 3)
	if err != nil {
		t.Fatalf("failed to list batches: %v", err)
	}
	if len(rest) != 2 {
		t.Errorf("got %d batches after offset, want 2", len(rest))
	}
}

// TestAttemptInsertAndGet tests attempt persistence
func TestAttemptInsertAndGet(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateBatch(ctx, newBatch("batch-1")); err != nil {
		t.Fatalf("failed to create batch: %v", err)
	}

	shape := "Table"
	attempt := &Attempt{
		BatchID:   "batch-1",
		StepIndex: 0,
		Query:     "average salary by team",
		Code:      `result = df.groupby("team", "salary", "mean")`,
		Status:    "succeeded",
		Shape:     &shape,
		Success:   true,
		ElapsedMS: 12,
		Truncated: true,
		TotalRows: 15000,
	}
	if err := store.InsertAttempt(ctx, attempt); err != nil {
		t.Fatalf("failed to insert attempt: %v", err)
	}
	if attempt.ID == 0 {
		t.Fatal("insert must assign an ID")
	}

	got, err := store.GetAttempt(ctx, attempt.ID)
	if err != nil {
		t.Fatalf("failed to get attempt: %v", err)
	}
	if got.Query != attempt.Query || got.Status != "succeeded" || !got.Success {
		t.Errorf("got %+v, want inserted attempt", got)
	}
	if got.Shape == nil || *got.Shape != "Table" {
		t.Errorf("shape = %v, want Table", got.Shape)
	}
	if !got.Truncated || got.TotalRows != 15000 {
		t.Errorf("truncation not preserved: %+v", got)
	}
	if got.Violations != nil {
		t.Error("violations must stay null when absent")
	}
}

// TestListAttemptsFilter tests filtered attempt listing
func TestListAttemptsFilter(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	violations := `[{"category":"ForbiddenCall","detail":"call to open() is not on the allowed operation surface","line":1,"col":10}]`

	inserts := []*Attempt{
		{BatchID: "b1", StepIndex: 0, Status: "succeeded", Success: true},
		{BatchID: "b1", StepIndex: 1, Status: "failed", Violations: &violations},
		{BatchID: "b2", StepIndex: 0, Status: "succeeded", Success: true},
	}
	for _, a := range inserts {
		if err := store.InsertAttempt(ctx, a); err != nil {
			t.Fatalf("failed to insert attempt: %v", err)
		}
	}

	byBatch, err := store.ListAttempts(ctx, AttemptFilter{BatchID: "b1"}, 10, 0)
	if err != nil {
		t.Fatalf("failed to list attempts: %v", err)
	}
	if len(byBatch) != 2 {
		t.Errorf("got %d attempts for b1, want 2", len(byBatch))
	}

	failed, err := store.ListAttempts(ctx, AttemptFilter{Status: "failed"}, 10, 0)
	if err != nil {
		t.Fatalf("failed to list attempts: %v", err)
	}
	if len(failed) != 1 || failed[0].Violations == nil {
		t.Errorf("got %+v, want one failed attempt with violations", failed)
	}

	ok := true
	succeeded, err := store.ListAttempts(ctx, AttemptFilter{Success: &ok}, 10, 0)
	if err != nil {
		t.Fatalf("failed to list attempts: %v", err)
	}
	if len(succeeded) != 2 {
		t.Errorf("got %d succeeded attempts, want 2", len(succeeded))
	}
}

// TestPruneAttempts tests retention pruning
func TestPruneAttempts(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	old := &Attempt{BatchID: "b1", Status: "succeeded", CreatedAt: time.Now().Add(-48 * time.Hour)}
	fresh := &Attempt{BatchID: "b1", Status: "succeeded", CreatedAt: time.Now()}
	for _, a := range []*Attempt{old, fresh} {
		if err := store.InsertAttempt(ctx, a); err != nil {
			t.Fatalf("failed to insert attempt: %v", err)
		}
	}

	pruned, err := store.PruneAttemptsBefore(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("failed to prune: %v", err)
	}
	if pruned != 1 {
		t.Errorf("pruned = %d, want 1", pruned)
	}
	if _, err := store.GetAttempt(ctx, fresh.ID); err != nil {
		t.Errorf("fresh attempt must survive pruning: %v", err)
	}
}

// TestGetStats tests attempt log statistics
func TestGetStats(t *testing.T) {
	store := setupTestStore(t)
	defer store.Close()

	ctx := context.Background()
	if err := store.CreateBatch(ctx, newBatch("batch-1")); err != nil {
		t.Fatalf("failed to create batch: %v", err)
	}

	tableShape, scalarShape := "Table", "Scalar"
	inserts := []*Attempt{
		{BatchID: "batch-1", Status: "succeeded", Success: true, Truncated: true, Shape: &tableShape},
		{BatchID: "batch-1", Status: "succeeded", Success: true, Shape: &scalarShape},
		{BatchID: "batch-1", Status: "failed"},
	}
	for _, a := range inserts {
		if err := store.InsertAttempt(ctx, a); err != nil {
			t.Fatalf("failed to insert attempt: %v", err)
		}
	}

	stats, err := store.GetStats(ctx)
	if err != nil {
		t.Fatalf("failed to get stats: %v", err)
	}
	if stats.TotalAttempts != 3 || stats.TotalBatches != 1 {
		t.Errorf("totals = %d/%d, want 3/1", stats.TotalAttempts, stats.TotalBatches)
	}
	if stats.ByStatus["succeeded"] != 2 || stats.ByStatus["failed"] != 1 {
		t.Errorf("by status = %v, want succeeded:2 failed:1", stats.ByStatus)
	}
	if stats.TruncatedCount != 1 {
		t.Errorf("truncated = %d, want 1", stats.TruncatedCount)
	}
	if stats.ByShape["Table"] != 1 || stats.ByShape["Scalar"] != 1 {
		t.Errorf("by shape = %v, want Table:1 Scalar:1", stats.ByShape)
	}
	if _, ok := stats.ByShape[""]; ok {
		t.Errorf("attempts without a shape must not be counted: %v", stats.ByShape)
	}
}
