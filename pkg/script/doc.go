// Package script validates and executes generated transformation snippets.
//
// Snippets are Starlark programs written against a deliberately small
// surface: one or more bound tables, their allow-listed methods, and a
// handful of safe builtins. The Validator parses a candidate snippet,
// walks its syntax tree against the policy registry and pattern engine,
// and either rejects it with categorized violations or accepts it
// (lightly rewritten so the conventional `result` name is always bound).
// The Executor then runs accepted code on a fresh interpreter thread with
// a wall-clock budget and a step budget; nothing from the ambient process
// is reachable and no state survives between executions.
package script
