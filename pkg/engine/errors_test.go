package engine

import (
	"errors"
	"fmt"
	"testing"

	"github.com/tabulark/tabulark/pkg/policy"
)

func TestValidationErrorCarriesViolations(t *testing.T) {
	vs := []policy.Violation{
		{Category: policy.CategoryForbiddenCall, Detail: "call to open() is not on the allowed operation surface", Line: 2, Col: 1},
		{Category: policy.CategorySuspiciousLiteral, Detail: "literal looks like a filesystem path", Line: 3, Col: 5},
	}
	err := NewValidationError(vs)

	if err.Class != ErrorClassValidation {
		t.Errorf("class = %s, want validation", err.Class)
	}
	if len(err.Violations) != 2 {
		t.Fatalf("violations = %d, want 2", len(err.Violations))
	}
	if !IsValidation(err) {
		t.Error("IsValidation must match")
	}
	if IsRetryable(err) {
		t.Error("validation failures are never retryable")
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       *EngineError
		retryable bool
	}{
		{"runtime", NewRuntimeError("missing column", nil), true},
		{"timeout", NewTimeoutError("budget exceeded", nil), true},
		{"shape", NewShapeError("set cannot be represented"), false},
		{"chain", NewChainError("non-tabular intermediate"), false},
		{"internal", NewInternalError("sink unavailable", nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.retryable)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("socket closed")
	err := NewRuntimeError("execution faulted", cause)

	if !errors.Is(err, cause) {
		t.Error("wrapped cause must be reachable via errors.Is")
	}

	var ee *EngineError
	if !errors.As(err, &ee) {
		t.Fatal("errors.As must find the EngineError")
	}
	if ee.Class != ErrorClassRuntime {
		t.Errorf("class = %s, want runtime", ee.Class)
	}
}

func TestWithStep(t *testing.T) {
	err := NewTimeoutError("budget exceeded", nil).WithStep(3)
	if err.Step != 3 {
		t.Errorf("step = %d, want 3", err.Step)
	}
	if !IsTimeout(err) {
		t.Error("class must survive WithStep")
	}
}

func TestErrorOutcome(t *testing.T) {
	out := ErrorOutcome(NewChainError("previous step produced a non-tabular result"))
	if out.Shape != ShapeError {
		t.Fatalf("shape = %s, want error", out.Shape)
	}
	if !out.IsError() {
		t.Error("IsError must report true")
	}
	if out.ErrClass != ErrorClassChain {
		t.Errorf("class = %s, want chain", out.ErrClass)
	}
}
