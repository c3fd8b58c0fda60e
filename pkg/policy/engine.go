package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Engine compiles Rego rules and evaluates them against CodeReports.
type Engine struct {
	mu           sync.RWMutex
	rules        map[string]*compiledRule
	logger       zerolog.Logger
	builtinRules []Rule
}

// compiledRule is a rule with its prepared evaluation query.
type compiledRule struct {
	rule     *Rule
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a policy engine with the built-in rules compiled.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		rules:        make(map[string]*compiledRule),
		logger:       logger.With().Str("component", "policy-engine").Logger(),
		builtinRules: GetBuiltinRules(),
	}

	if err := e.loadBuiltinRules(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load built-in rules: %w", err)
	}

	return e, nil
}

// Evaluate runs every enabled rule against the report and returns the
// merged deny violations, sorted deterministically.
func (e *Engine) Evaluate(ctx context.Context, report *CodeReport) ([]Violation, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.rules))
	for name := range e.rules {
		names = append(names, name)
	}
	sort.Strings(names)

	var violations []Violation
	for _, name := range names {
		cr := e.rules[name]
		if !cr.rule.Enabled {
			continue
		}
		vs, err := e.evaluateRule(ctx, cr, report)
		if err != nil {
			return nil, fmt.Errorf("rule %s: %w", cr.rule.Name, err)
		}
		violations = append(violations, vs...)
	}

	SortViolations(violations)
	return violations, nil
}

// evaluateRule evaluates one compiled rule against the report.
func (e *Engine) evaluateRule(ctx context.Context, cr *compiledRule, report *CodeReport) ([]Violation, error) {
	results, err := cr.query.Eval(ctx, rego.EvalInput(report))
	if err != nil {
		return nil, fmt.Errorf("rule evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, decodeViolation(d))
			}
		}
	}
	return violations, nil
}

// decodeViolation maps a Rego deny result into a Violation.
func decodeViolation(result interface{}) Violation {
	v := Violation{Category: CategoryForbiddenCall}
	switch x := result.(type) {
	case string:
		v.Detail = x
	case map[string]interface{}:
		if msg, ok := x["message"].(string); ok {
			v.Detail = msg
		}
		if cat, ok := x["category"].(string); ok {
			v.Category = Category(cat)
		}
		if line, ok := asInt(x["line"]); ok {
			v.Line = line
		}
		if col, ok := asInt(x["col"]); ok {
			v.Col = col
		}
	default:
		v.Detail = fmt.Sprintf("%v", result)
	}
	return v
}

func asInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case fmt.Stringer:
		// OPA yields json.Number for integers in some decode paths.
		var n int
		if _, err := fmt.Sscanf(x.String(), "%d", &n); err == nil {
			return n, true
		}
	}
	return 0, false
}

// SortViolations orders violations by position, then category, then
// detail, so verdicts are reproducible across runs.
func SortViolations(vs []Violation) {
	sort.SliceStable(vs, func(i, j int) bool {
		if vs[i].Line != vs[j].Line {
			return vs[i].Line < vs[j].Line
		}
		if vs[i].Col != vs[j].Col {
			return vs[i].Col < vs[j].Col
		}
		if vs[i].Category != vs[j].Category {
			return vs[i].Category < vs[j].Category
		}
		return vs[i].Detail < vs[j].Detail
	})
}

// LoadRules loads rule files from paths and compiles them into the engine.
func (e *Engine) LoadRules(ctx context.Context, paths []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	loader := NewLoader(e.logger)
	rules, err := loader.LoadFromPaths(ctx, paths)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}

	for i := range rules {
		if err := e.compileAndStoreRule(ctx, &rules[i]); err != nil {
			e.logger.Error().Err(err).
				Str("rule", rules[i].Name).
				Msg("Failed to compile rule")
			return fmt.Errorf("failed to compile rule %s: %w", rules[i].Name, err)
		}
	}

	e.logger.Info().
		Int("count", len(rules)).
		Msg("Rules loaded")

	return nil
}

// compileAndStoreRule compiles a rule's deny query and stores it.
func (e *Engine) compileAndStoreRule(ctx context.Context, rule *Rule) error {
	pkg := extractPackageName(rule.Rego)
	r := rego.New(
		rego.Module(rule.Name, rule.Rego),
		rego.Query(fmt.Sprintf("data.%s.deny", pkg)),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to prepare query: %w", err)
	}

	e.rules[rule.Name] = &compiledRule{
		rule:     rule,
		query:    query,
		compiled: time.Now(),
	}

	e.logger.Debug().
		Str("rule", rule.Name).
		Msg("Rule compiled")

	return nil
}

// extractPackageName extracts the package name from Rego code.
func extractPackageName(src string) string {
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "tabulark.rules"
}

// loadBuiltinRules compiles the built-in rules.
func (e *Engine) loadBuiltinRules(ctx context.Context) error {
	for i := range e.builtinRules {
		if err := e.compileAndStoreRule(ctx, &e.builtinRules[i]); err != nil {
			return fmt.Errorf("failed to compile built-in rule %s: %w", e.builtinRules[i].Name, err)
		}
	}

	e.logger.Info().
		Int("count", len(e.builtinRules)).
		Msg("Built-in rules loaded")

	return nil
}

// GetRule returns a rule by name.
func (e *Engine) GetRule(name string) (*Rule, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cr, exists := e.rules[name]
	if !exists {
		return nil, fmt.Errorf("rule not found: %s", name)
	}
	return cr.rule, nil
}

// ListRules returns all compiled rules.
func (e *Engine) ListRules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]Rule, 0, len(e.rules))
	for _, cr := range e.rules {
		rules = append(rules, *cr.rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Name < rules[j].Name })
	return rules
}

// ReloadRules drops every loaded rule and recompiles the built-ins.
func (e *Engine) ReloadRules(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules = make(map[string]*compiledRule)
	return e.loadBuiltinRules(ctx)
}

// EnableRule enables a rule by name.
func (e *Engine) EnableRule(name string) error {
	return e.setEnabled(name, true)
}

// DisableRule disables a rule by name.
func (e *Engine) DisableRule(name string) error {
	return e.setEnabled(name, false)
}

func (e *Engine) setEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cr, exists := e.rules[name]
	if !exists {
		return fmt.Errorf("rule not found: %s", name)
	}
	cr.rule.Enabled = enabled
	e.logger.Info().Str("rule", name).Bool("enabled", enabled).Msg("Rule toggled")
	return nil
}
