package script

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/tabulark/tabulark/pkg/policy"
)

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	engine, err := policy.NewEngine(zerolog.Nop())
	if err != nil {
		t.Fatalf("policy.NewEngine: %v", err)
	}
	return NewValidator(policy.DefaultRegistry(), engine, zerolog.Nop())
}

func hasCategory(vs []policy.Violation, c policy.Category) bool {
	for _, v := range vs {
		if v.Category == c {
			return true
		}
	}
	return false
}

func TestValidateAccepts(t *testing.T) {
	v := newTestValidator(t)

	snippets := []string{
		`result = df.filter("salary", ">", 100)`,
		`result = df.groupby("dept", "salary", "mean")`,
		`result = df.sort("salary", ascending=False).head(10)`,
		`result = df.merge(lookup, on="dept", how="left")`,
		`result = len(df.columns())`,
		`result = df.col("salary").mean()`,
		"top = df.sort(\"salary\", ascending=False)\nresult = top.head(3)",
	}
	for _, code := range snippets {
		accepted, violations, err := v.Validate(context.Background(), code)
		if err != nil {
			t.Fatalf("Validate(%q): %v", code, err)
		}
		if len(violations) != 0 {
			t.Errorf("Validate(%q) rejected: %v", code, violations)
			continue
		}
		if accepted != code {
			t.Errorf("Validate(%q) rewrote to %q unexpectedly", code, accepted)
		}
	}
}

func TestValidateRewritesBareExpression(t *testing.T) {
	v := newTestValidator(t)

	accepted, violations, err := v.Validate(context.Background(), `df.head(3)`)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("unexpected violations: %v", violations)
	}
	if accepted != `result = df.head(3)` {
		t.Errorf("rewrite = %q", accepted)
	}
}

func TestValidateRewritesFinalExpressionOnly(t *testing.T) {
	v := newTestValidator(t)

	code := "top = df.sort(\"salary\", ascending=False)\ntop.head(3)"
	accepted, violations, err := v.Validate(context.Background(), code)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("unexpected violations: %v", violations)
	}
	want := "top = df.sort(\"salary\", ascending=False)\nresult = top.head(3)"
	if accepted != want {
		t.Errorf("rewrite = %q, want %q", accepted, want)
	}
}

func TestValidateRejections(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name     string
		code     string
		category policy.Category
	}{
		{"parse failure", `result = df.filter(`, policy.CategorySyntax},
		{"load statement", `load("extra.star", "helper")`, policy.CategoryForbiddenImport},
		{"open call", `result = open("data.csv")`, policy.CategoryForbiddenCall},
		{"unknown call", `result = summon("salary")`, policy.CategoryForbiddenCall},
		{"environment access", `result = os.environ`, policy.CategoryForbiddenCall},
		{"socket connect", `result = socket.create_connection(("10.0.0.1", 80))`, policy.CategoryForbiddenCall},
		{"dunder attribute", `result = df.__class__`, policy.CategoryForbiddenAttribute},
		{"underscore attribute", `result = df._cols`, policy.CategoryForbiddenAttribute},
		{"path literal", `result = df.filter("path", "==", "/etc/passwd")`, policy.CategorySuspiciousLiteral},
		{"endpoint literal", `result = df.filter("url", "==", "https://exfil.example.com/x")`, policy.CategorySuspiciousLiteral},
		{"function definition", "def f(x):\n    return x\nresult = 1", policy.CategoryUnsupportedConstruct},
		{"for loop", "for x in df.columns():\n    y = x\nresult = 1", policy.CategoryUnsupportedConstruct},
		{"lambda", `result = sorted([2, 1], key=lambda x: x)`, policy.CategoryUnsupportedConstruct},
		{"no result produced", `x = 1`, policy.CategoryUnsupportedConstruct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accepted, violations, err := v.Validate(context.Background(), tt.code)
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if accepted != "" {
				t.Fatalf("rejected code should not be returned, got %q", accepted)
			}
			if !hasCategory(violations, tt.category) {
				t.Errorf("violations %v missing category %s", violations, tt.category)
			}
		})
	}
}

func TestValidateWholeCodeRejected(t *testing.T) {
	v := newTestValidator(t)

	// One bad call poisons the whole snippet even though the rest is fine.
	code := "clean = df.head(5)\nresult = eval(\"clean\")"
	accepted, violations, err := v.Validate(context.Background(), code)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if accepted != "" || len(violations) == 0 {
		t.Fatalf("expected rejection, got accepted=%q violations=%v", accepted, violations)
	}
}

func TestValidateDeterministic(t *testing.T) {
	v := newTestValidator(t)

	code := "load(\"x.star\", \"y\")\nresult = open(\"/etc/passwd\")"
	_, first, err := v.Validate(context.Background(), code)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	_, second, err := v.Validate(context.Background(), code)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("verdict changed between runs: %d vs %d violations", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("violation %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestValidateViolationsAreSorted(t *testing.T) {
	v := newTestValidator(t)

	code := "a = open(\"/tmp/x\")\nb = exec(\"y\")\nresult = 1"
	_, violations, err := v.Validate(context.Background(), code)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(violations) < 2 {
		t.Fatalf("expected multiple violations, got %v", violations)
	}
	for i := 1; i < len(violations); i++ {
		if violations[i-1].Line > violations[i].Line {
			t.Fatalf("violations not sorted by line: %v", violations)
		}
	}
}
