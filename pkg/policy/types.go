package policy

import (
	"fmt"
	"time"
)

// Category classifies one reason a candidate snippet was rejected. The set
// is closed and stable so callers can key retry decisions on it.
type Category string

const (
	// CategorySyntax means the snippet failed to parse at all.
	CategorySyntax Category = "Syntax"

	// CategoryForbiddenImport means the snippet tried to load a module.
	// Generated code has no legitimate imports; everything it may use is
	// predeclared.
	CategoryForbiddenImport Category = "ForbiddenImport"

	// CategoryForbiddenCall means a call to a deny-listed name or to a
	// name not resolvable to the allow-list.
	CategoryForbiddenCall Category = "ForbiddenCall"

	// CategoryForbiddenAttribute means reflective attribute access (a name
	// beginning with the underscore sigil).
	CategoryForbiddenAttribute Category = "ForbiddenAttribute"

	// CategorySuspiciousLiteral means a string literal shaped like a
	// filesystem path or network endpoint was passed as a call argument.
	CategorySuspiciousLiteral Category = "SuspiciousLiteral"

	// CategoryUnsupportedConstruct means the snippet defines functions or
	// uses control flow outside the supported straight-line surface.
	CategoryUnsupportedConstruct Category = "UnsupportedConstruct"
)

// Violation is one reason a candidate snippet was rejected.
type Violation struct {
	// Category is the stable classification of this violation.
	Category Category `json:"category"`

	// Detail is the human-readable explanation.
	Detail string `json:"detail"`

	// Line and Col locate the offending construct in the snippet
	// (1-based; zero when no position applies, e.g. whole-file rules).
	Line int `json:"line,omitempty"`
	Col  int `json:"col,omitempty"`
}

func (v Violation) String() string {
	if v.Line > 0 {
		return fmt.Sprintf("%s at %d:%d: %s", v.Category, v.Line, v.Col, v.Detail)
	}
	return fmt.Sprintf("%s: %s", v.Category, v.Detail)
}

// CodeReport is the structural summary of a parsed candidate snippet that
// pattern policies are evaluated against. It is built by the validator and
// carries no references back into the syntax tree.
type CodeReport struct {
	// Imports lists modules named by load statements.
	Imports []ImportRef `json:"imports"`

	// Calls lists every call site with its resolved callee name.
	Calls []CallRef `json:"calls"`

	// Attributes lists every attribute access (x.name).
	Attributes []AttrRef `json:"attributes"`

	// Literals lists string literals that appear as call arguments,
	// tagged with the callee they were passed to.
	Literals []LiteralRef `json:"literals"`

	// Constructs lists flow constructs (def, lambda, for, while, class).
	Constructs []ConstructRef `json:"constructs"`
}

// ImportRef records one load statement.
type ImportRef struct {
	Module string `json:"module"`
	Line   int    `json:"line"`
	Col    int    `json:"col"`
}

// CallRef records one call site. Name is the callee identifier, or the
// attribute name for method-style calls (x.filter -> "filter").
type CallRef struct {
	Name string `json:"name"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
}

// AttrRef records one attribute access.
type AttrRef struct {
	Name string `json:"name"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
}

// LiteralRef records one string literal used as a call argument.
type LiteralRef struct {
	Value string `json:"value"`
	Call  string `json:"call"`
	Line  int    `json:"line"`
	Col   int    `json:"col"`
}

// ConstructRef records one flow construct.
type ConstructRef struct {
	Kind string `json:"kind"`
	Line int    `json:"line"`
	Col  int    `json:"col"`
}

// Rule is one Rego policy with metadata, loadable from a .rego or .json
// file or built in.
type Rule struct {
	// Name is the unique rule name.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Its package must expose a
	// `deny` set whose elements carry message/category/line/col fields.
	Rego string `json:"rego"`

	// Enabled indicates if the rule is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing rules.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional rule metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// CreatedAt is when the rule was created or loaded.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the rule was last updated.
	UpdatedAt time.Time `json:"updated_at"`
}
