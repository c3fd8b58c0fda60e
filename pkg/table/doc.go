// Package table implements the in-memory tabular data model that generated
// code operates on: ordered named columns of equal length with typed cells.
//
// Tables are immutable from the caller's perspective. Every operation
// (filter, aggregate, reshape, arithmetic) returns a new Table or a scalar
// and never aliases the input's column storage, so a Table handed to one
// execution can never be observed mid-mutation by another.
//
// Cell values are restricted to a closed set of Go types:
//
//	nil, string, int64, float64, bool, time.Time
//
// Constructors normalize other integer and float widths into this set and
// reject anything else. The Series type holds one-dimensional labeled
// results (for example the output of a per-group aggregate collapsed to a
// single column).
package table
