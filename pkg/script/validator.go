package script

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"go.starlark.net/syntax"

	"github.com/tabulark/tabulark/pkg/policy"
)

// resultName is the conventional binding every accepted snippet ends up
// assigning its output to.
const resultName = "result"

// Validator decides whether a candidate snippet is safe to execute. It is
// a pure function over (code, registry, pattern rules): the same inputs
// always produce the same verdict.
type Validator struct {
	registry *policy.Registry
	patterns *policy.Engine
	logger   zerolog.Logger
}

// NewValidator creates a validator over the given registry and pattern
// engine.
func NewValidator(registry *policy.Registry, patterns *policy.Engine, logger zerolog.Logger) *Validator {
	return &Validator{
		registry: registry,
		patterns: patterns,
		logger:   logger.With().Str("component", "validator").Logger(),
	}
}

// Validate parses and inspects code. It returns the accepted (possibly
// rewritten) snippet when clean, or the full sorted violation list when
// not. The error return is reserved for pattern-engine faults; a rejected
// snippet is not an error.
func (v *Validator) Validate(ctx context.Context, code string) (string, []policy.Violation, error) {
	f, err := syntax.Parse("snippet.star", code, 0)
	if err != nil {
		violation := policy.Violation{
			Category: policy.CategorySyntax,
			Detail:   err.Error(),
		}
		if se, ok := err.(syntax.Error); ok {
			violation.Detail = se.Msg
			violation.Line = int(se.Pos.Line)
			violation.Col = int(se.Pos.Col)
		}
		return "", []policy.Violation{violation}, nil
	}

	report := &policy.CodeReport{}
	violations := v.inspect(f, report)

	patternViolations, err := v.patterns.Evaluate(ctx, report)
	if err != nil {
		return "", nil, fmt.Errorf("pattern evaluation failed: %w", err)
	}
	violations = append(violations, patternViolations...)

	rewritten, bound := ensureResultBinding(code, f)
	if !bound {
		violations = append(violations, policy.Violation{
			Category: policy.CategoryUnsupportedConstruct,
			Detail:   "snippet does not produce a result value",
		})
	}

	policy.SortViolations(violations)
	violations = dedupeViolations(violations)

	if len(violations) > 0 {
		v.logger.Debug().
			Int("violations", len(violations)).
			Str("first", violations[0].String()).
			Msg("Snippet rejected")
		return "", violations, nil
	}
	return rewritten, nil, nil
}

// inspect walks the syntax tree, filling the code report and collecting
// the structural violations the walk can decide on its own.
func (v *Validator) inspect(f *syntax.File, report *policy.CodeReport) []policy.Violation {
	var violations []policy.Violation

	addConstruct := func(kind string, n syntax.Node) {
		start, _ := n.Span()
		report.Constructs = append(report.Constructs, policy.ConstructRef{
			Kind: kind, Line: int(start.Line), Col: int(start.Col),
		})
		violations = append(violations, policy.Violation{
			Category: policy.CategoryUnsupportedConstruct,
			Detail:   fmt.Sprintf("%s is outside the supported straight-line surface", kind),
			Line:     int(start.Line),
			Col:      int(start.Col),
		})
	}

	syntax.Walk(f, func(n syntax.Node) bool {
		if n == nil {
			return true
		}
		switch node := n.(type) {
		case *syntax.LoadStmt:
			start, _ := node.Span()
			module := ""
			if node.Module != nil {
				if s, ok := node.Module.Value.(string); ok {
					module = s
				}
			}
			report.Imports = append(report.Imports, policy.ImportRef{
				Module: module, Line: int(start.Line), Col: int(start.Col),
			})

		case *syntax.DefStmt:
			addConstruct("function definition", node)
		case *syntax.LambdaExpr:
			addConstruct("lambda", node)
		case *syntax.ForStmt:
			addConstruct("for loop", node)
		case *syntax.WhileStmt:
			addConstruct("while loop", node)

		case *syntax.DotExpr:
			start, _ := node.Name.Span()
			name := node.Name.Name
			report.Attributes = append(report.Attributes, policy.AttrRef{
				Name: name, Line: int(start.Line), Col: int(start.Col),
			})
			if strings.HasPrefix(name, "_") {
				violations = append(violations, policy.Violation{
					Category: policy.CategoryForbiddenAttribute,
					Detail:   fmt.Sprintf("reflective attribute access %q", name),
					Line:     int(start.Line),
					Col:      int(start.Col),
				})
			}

		case *syntax.CallExpr:
			start, _ := node.Span()
			name := calleeName(node.Fn)
			report.Calls = append(report.Calls, policy.CallRef{
				Name: name, Line: int(start.Line), Col: int(start.Col),
			})
			if name == "" {
				violations = append(violations, policy.Violation{
					Category: policy.CategoryUnsupportedConstruct,
					Detail:   "call target is not a plain name",
					Line:     int(start.Line),
					Col:      int(start.Col),
				})
			} else if !v.registry.IsAllowedCall(name) {
				violations = append(violations, policy.Violation{
					Category: policy.CategoryForbiddenCall,
					Detail:   fmt.Sprintf("call to %s() is not on the allowed operation surface", name),
					Line:     int(start.Line),
					Col:      int(start.Col),
				})
			}
			for _, arg := range node.Args {
				recordLiteralArg(report, name, arg)
			}

		case *syntax.Ident:
			if v.registry.IsForbiddenToken(node.Name) {
				start, _ := node.Span()
				violations = append(violations, policy.Violation{
					Category: policy.CategoryForbiddenCall,
					Detail:   fmt.Sprintf("reference to forbidden name %q", node.Name),
					Line:     int(start.Line),
					Col:      int(start.Col),
				})
			}
		}
		return true
	})

	return violations
}

// calleeName resolves a call target to a bare name: f(...) gives "f",
// x.filter(...) gives "filter". Anything else is unresolvable.
func calleeName(fn syntax.Expr) string {
	switch x := fn.(type) {
	case *syntax.Ident:
		return x.Name
	case *syntax.DotExpr:
		return x.Name.Name
	}
	return ""
}

// recordLiteralArg records string literals passed as call arguments,
// including through keyword arguments, for the pattern rules.
func recordLiteralArg(report *policy.CodeReport, call string, arg syntax.Expr) {
	if kw, ok := arg.(*syntax.BinaryExpr); ok && kw.Op == syntax.EQ {
		arg = kw.Y
	}
	lit, ok := arg.(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return
	}
	value, ok := lit.Value.(string)
	if !ok {
		return
	}
	start, _ := lit.Span()
	report.Literals = append(report.Literals, policy.LiteralRef{
		Value: value, Call: call, Line: int(start.Line), Col: int(start.Col),
	})
}

// ensureResultBinding guarantees the snippet binds the conventional
// result name. If it already does, the code is returned unchanged. If the
// final statement is a bare expression, an assignment is spliced in front
// of it. Otherwise nothing can be bound and ok is false.
func ensureResultBinding(code string, f *syntax.File) (string, bool) {
	for _, stmt := range f.Stmts {
		assign, ok := stmt.(*syntax.AssignStmt)
		if !ok || assign.Op != syntax.EQ {
			continue
		}
		if ident, ok := assign.LHS.(*syntax.Ident); ok && ident.Name == resultName {
			return code, true
		}
	}

	if len(f.Stmts) == 0 {
		return "", false
	}
	last, ok := f.Stmts[len(f.Stmts)-1].(*syntax.ExprStmt)
	if !ok {
		return "", false
	}

	start, _ := last.Span()
	lines := strings.Split(code, "\n")
	li := int(start.Line) - 1
	if li < 0 || li >= len(lines) {
		return "", false
	}
	runes := []rune(lines[li])
	ci := int(start.Col) - 1
	if ci < 0 || ci > len(runes) {
		return "", false
	}
	lines[li] = string(runes[:ci]) + resultName + " = " + string(runes[ci:])
	return strings.Join(lines, "\n"), true
}

// dedupeViolations collapses violations reported at the same position
// with the same category, keeping the first detail. The walk and the
// pattern rules intentionally overlap on the worst findings.
func dedupeViolations(vs []policy.Violation) []policy.Violation {
	if len(vs) < 2 {
		return vs
	}
	out := vs[:1]
	for _, v := range vs[1:] {
		prev := out[len(out)-1]
		if v.Category == prev.Category && v.Line == prev.Line && v.Col == prev.Col {
			continue
		}
		out = append(out, v)
	}
	return out
}
