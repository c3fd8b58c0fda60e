package policy

import "sort"

// Registry is the static allow/deny configuration for generated code. It
// is populated once at startup and read-only afterwards, so concurrent
// validations share it without locking.
type Registry struct {
	allowedCalls    map[string]bool
	forbiddenTokens map[string]bool
}

// defaultAllowedCalls is the closed operation surface generated code may
// call: table and series methods plus the safe Starlark universe builtins
// a short transformation legitimately needs.
var defaultAllowedCalls = []string{
	// table operations
	"filter", "select", "drop", "rename", "sort", "head", "tail",
	"distinct", "dropnulls", "fillnulls", "with_column", "date_part",
	"groupby", "agg", "pivot", "melt", "merge", "columns", "col",
	"num_rows", "schema",
	// series reducers
	"sum", "mean", "median", "min", "max", "count", "std", "var",
	"to_list", "keys", "values", "get",
	// safe universe builtins
	"len", "str", "int", "float", "bool", "abs", "range", "sorted",
	"reversed", "zip", "enumerate", "list", "tuple", "dict", "type",
}

// defaultForbiddenTokens are names that must never appear in generated
// code, called or not: process, filesystem, and network primitives plus
// the meta-programming surface that could bypass lexical inspection.
var defaultForbiddenTokens = []string{
	"load", "exec", "eval", "compile", "open", "file", "input",
	"import", "__import__", "getattr", "setattr", "hasattr", "delattr",
	"dir", "globals", "locals", "vars",
	"os", "sys", "subprocess", "socket", "requests", "urllib",
	"pickle", "shelve", "marshal", "shutil", "pathlib", "env", "environ",
}

// NewRegistry builds a registry from the default allow and deny lists
// plus any extra entries. Extra deny entries win over extra allows.
func NewRegistry(extraAllowed, extraForbidden []string) *Registry {
	r := &Registry{
		allowedCalls:    make(map[string]bool),
		forbiddenTokens: make(map[string]bool),
	}
	for _, name := range defaultAllowedCalls {
		r.allowedCalls[name] = true
	}
	for _, name := range extraAllowed {
		r.allowedCalls[name] = true
	}
	for _, name := range defaultForbiddenTokens {
		r.forbiddenTokens[name] = true
	}
	for _, name := range extraForbidden {
		r.forbiddenTokens[name] = true
	}
	// A name on both lists is forbidden.
	for name := range r.forbiddenTokens {
		delete(r.allowedCalls, name)
	}
	return r
}

// DefaultRegistry returns a registry with only the built-in lists.
func DefaultRegistry() *Registry {
	return NewRegistry(nil, nil)
}

// IsAllowedCall reports whether name is on the call allow-list.
func (r *Registry) IsAllowedCall(name string) bool {
	return r.allowedCalls[name]
}

// IsForbiddenToken reports whether the token is deny-listed.
func (r *Registry) IsForbiddenToken(token string) bool {
	return r.forbiddenTokens[token]
}

// AllowedCalls returns the sorted allow-list, for diagnostics and docs.
func (r *Registry) AllowedCalls() []string {
	out := make([]string, 0, len(r.allowedCalls))
	for name := range r.allowedCalls {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ForbiddenTokens returns the sorted deny-list.
func (r *Registry) ForbiddenTokens() []string {
	out := make([]string, 0, len(r.forbiddenTokens))
	for name := range r.forbiddenTokens {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
