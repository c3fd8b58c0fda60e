// Package policy defines the permitted operation surface for generated
// code and evaluates pattern-level rules with Open Policy Agent (OPA).
//
// Two cooperating pieces live here:
//
//  1. Registry - the static, process-wide allow/deny configuration: the
//     allow-list of table and series operations reachable from generated
//     code and the deny-list of process-, filesystem-, network-, and
//     meta-programming primitives. The Registry is read-only after load
//     and safe to share across concurrent validations without locking.
//
//  2. Engine - compiles Rego policies (built-in plus any loaded from rule
//     files) and evaluates them against a CodeReport, the structural
//     summary of a candidate snippet produced by the validator: its
//     imports, calls, attribute accesses, call-argument string literals,
//     and flow constructs. Deny results become Violations.
//
// Built-in policies cover suspicious literals (filesystem paths and
// network endpoints passed as call arguments), import restrictions, and a
// forbidden-call backstop. Custom rules can be loaded from .rego or .json
// files, with optional fsnotify hot reload via Loader.Watch.
//
// Violations carry a stable Category so callers can distinguish "this
// code will never be safe" from "try a different phrasing":
//
//	Syntax, ForbiddenImport, ForbiddenCall, ForbiddenAttribute,
//	SuspiciousLiteral, UnsupportedConstruct
//
// Evaluation is deterministic: the same CodeReport against the same set
// of compiled policies always yields the same violations in the same
// order.
package policy
