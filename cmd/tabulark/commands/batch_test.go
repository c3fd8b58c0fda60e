package commands

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadBatchFile(t *testing.T) {
	tmpDir := t.TempDir()

	codeFile := filepath.Join(tmpDir, "step2.star")
	if err := os.WriteFile(codeFile, []byte("result = df.num_rows()\n"), 0o644); err != nil {
		t.Fatalf("failed to write code file: %v", err)
	}

	batchPath := filepath.Join(tmpDir, "batch.yaml")
	content := `
id: nightly
dataset: sales
chained: true
stop_on_error: true
budget: 2s
steps:
  - query: head of the table
    code: "result = head(df, 5)"
  - query: how many rows
    code_file: ` + codeFile + `
`
	if err := os.WriteFile(batchPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write batch file: %v", err)
	}

	req, dataset, err := loadBatchFile(batchPath)
	if err != nil {
		t.Fatalf("failed to load batch file: %v", err)
	}

	if req.ID != "nightly" {
		t.Errorf("expected id 'nightly', got %s", req.ID)
	}
	if dataset != "sales" {
		t.Errorf("expected dataset 'sales', got %s", dataset)
	}
	if !req.Chained || !req.StopOnError {
		t.Error("expected chained and stop_on_error set")
	}
	if req.Budget != 2*time.Second {
		t.Errorf("expected 2s budget, got %v", req.Budget)
	}
	if len(req.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(req.Steps))
	}
	if req.Steps[1].Code != "result = df.num_rows()\n" {
		t.Errorf("code_file not inlined: %q", req.Steps[1].Code)
	}
}

func TestLoadBatchFileRejectsEmpty(t *testing.T) {
	tmpDir := t.TempDir()
	batchPath := filepath.Join(tmpDir, "empty.yaml")
	if err := os.WriteFile(batchPath, []byte("steps: []\n"), 0o644); err != nil {
		t.Fatalf("failed to write batch file: %v", err)
	}

	if _, _, err := loadBatchFile(batchPath); err == nil {
		t.Error("expected error for batch file with no steps")
	}
}

func TestLoadBatchFileRejectsBadBudget(t *testing.T) {
	tmpDir := t.TempDir()
	batchPath := filepath.Join(tmpDir, "bad.yaml")
	content := `
budget: soon
steps:
  - code: "result = 1"
`
	if err := os.WriteFile(batchPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write batch file: %v", err)
	}

	if _, _, err := loadBatchFile(batchPath); err == nil {
		t.Error("expected error for unparseable budget")
	}
}

func TestResolveSnippet(t *testing.T) {
	tmpDir := t.TempDir()
	snippetPath := filepath.Join(tmpDir, "q.star")
	if err := os.WriteFile(snippetPath, []byte("result = 1\n"), 0o644); err != nil {
		t.Fatalf("failed to write snippet: %v", err)
	}

	got, err := resolveSnippet("", []string{snippetPath})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "result = 1\n" {
		t.Errorf("unexpected snippet %q", got)
	}

	got, err = resolveSnippet("result = 2", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "result = 2" {
		t.Errorf("inline code should win, got %q", got)
	}

	if _, err := resolveSnippet("", nil); err == nil {
		t.Error("expected error with no source")
	}
}
