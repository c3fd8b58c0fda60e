package table

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Kind classifies the values observed in a column.
type Kind string

const (
	KindString Kind = "string"
	KindInt    Kind = "int"
	KindFloat  Kind = "float"
	KindBool   Kind = "bool"
	KindTime   Kind = "time"
	KindNull   Kind = "null"
	KindMixed  Kind = "mixed"
)

// Table is an ordered sequence of named columns of equal length.
// The zero value is not usable; use FromColumns or FromRecords.
type Table struct {
	names []string
	cols  [][]interface{}
	rows  int
}

// ColumnSchema describes one column for schema summaries.
type ColumnSchema struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Schema is a compact description of a table's shape, suitable for handing
// to the upstream code-generator collaborator.
type Schema struct {
	Columns []ColumnSchema `json:"columns"`
	Rows    int            `json:"rows"`
}

// normalizeCell coerces v into the closed cell type set.
func normalizeCell(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string, int64, float64, bool, time.Time:
		return x, nil
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case uint:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case float32:
		return float64(x), nil
	default:
		return nil, fmt.Errorf("unsupported cell type %T", v)
	}
}

// FromColumns builds a table from column names and per-column cell slices.
// All columns must have the same length and names must be unique and
// non-empty.
func FromColumns(names []string, cols [][]interface{}) (*Table, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("got %d names for %d columns", len(names), len(cols))
	}
	rows := 0
	if len(cols) > 0 {
		rows = len(cols[0])
	}
	seen := make(map[string]bool, len(names))
	out := make([][]interface{}, len(cols))
	for i, name := range names {
		if name == "" {
			return nil, fmt.Errorf("column %d has an empty name", i)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate column name %q", name)
		}
		seen[name] = true
		if len(cols[i]) != rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", name, len(cols[i]), rows)
		}
		out[i] = make([]interface{}, rows)
		for j, v := range cols[i] {
			cell, err := normalizeCell(v)
			if err != nil {
				return nil, fmt.Errorf("column %q row %d: %w", name, j, err)
			}
			out[i][j] = cell
		}
	}
	return &Table{names: append([]string(nil), names...), cols: out, rows: rows}, nil
}

// FromRecords builds a table from row-oriented data. Each record must have
// one value per column.
func FromRecords(names []string, records [][]interface{}) (*Table, error) {
	cols := make([][]interface{}, len(names))
	for i := range cols {
		cols[i] = make([]interface{}, len(records))
	}
	for r, rec := range records {
		if len(rec) != len(names) {
			return nil, fmt.Errorf("record %d has %d values, expected %d", r, len(rec), len(names))
		}
		for c, v := range rec {
			cols[c][r] = v
		}
	}
	return FromColumns(names, cols)
}

// FromCSV reads a header row plus data rows and infers cell types per value:
// int64, then float64, then bool, falling back to string. Empty fields
// become nil.
func FromCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	var records [][]interface{}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row: %w", err)
		}
		rec := make([]interface{}, len(row))
		for i, field := range row {
			rec[i] = inferCell(field)
		}
		records = append(records, rec)
	}
	return FromRecords(header, records)
}

func inferCell(field string) interface{} {
	s := strings.TrimSpace(field)
	if s == "" {
		return nil
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// NumRows returns the row count shared by all columns.
func (t *Table) NumRows() int { return t.rows }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.names) }

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.names...)
}

// HasColumn reports whether the table has a column with the given name.
func (t *Table) HasColumn(name string) bool {
	return t.index(name) >= 0
}

func (t *Table) index(name string) int {
	for i, n := range t.names {
		if n == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column's cells.
func (t *Table) Column(name string) ([]interface{}, error) {
	i := t.index(name)
	if i < 0 {
		return nil, fmt.Errorf("unknown column %q", name)
	}
	return append([]interface{}(nil), t.cols[i]...), nil
}

// Cell returns the value at (row, column name).
func (t *Table) Cell(row int, name string) (interface{}, error) {
	i := t.index(name)
	if i < 0 {
		return nil, fmt.Errorf("unknown column %q", name)
	}
	if row < 0 || row >= t.rows {
		return nil, fmt.Errorf("row %d out of range [0,%d)", row, t.rows)
	}
	return t.cols[i][row], nil
}

// Row returns one row as a slice in column order.
func (t *Table) Row(row int) ([]interface{}, error) {
	if row < 0 || row >= t.rows {
		return nil, fmt.Errorf("row %d out of range [0,%d)", row, t.rows)
	}
	out := make([]interface{}, len(t.cols))
	for i := range t.cols {
		out[i] = t.cols[i][row]
	}
	return out, nil
}

// Records returns the table as row-oriented maps, the transport-safe
// representation used by the presentation layer.
func (t *Table) Records() []map[string]interface{} {
	out := make([]map[string]interface{}, t.rows)
	for r := 0; r < t.rows; r++ {
		rec := make(map[string]interface{}, len(t.names))
		for c, name := range t.names {
			rec[name] = t.cols[c][r]
		}
		out[r] = rec
	}
	return out
}

// Schema summarizes column names, inferred kinds, and the row count.
func (t *Table) Schema() Schema {
	cols := make([]ColumnSchema, len(t.names))
	for i, name := range t.names {
		cols[i] = ColumnSchema{Name: name, Kind: columnKind(t.cols[i])}
	}
	return Schema{Columns: cols, Rows: t.rows}
}

func columnKind(cells []interface{}) Kind {
	kind := KindNull
	for _, v := range cells {
		var k Kind
		switch v.(type) {
		case nil:
			continue
		case string:
			k = KindString
		case int64:
			k = KindInt
		case float64:
			k = KindFloat
		case bool:
			k = KindBool
		case time.Time:
			k = KindTime
		}
		switch {
		case kind == KindNull:
			kind = k
		case kind == k:
		case (kind == KindInt && k == KindFloat) || (kind == KindFloat && k == KindInt):
			kind = KindFloat
		default:
			return KindMixed
		}
	}
	return kind
}

// Equal reports whether two tables have the same column set, row order, and
// cell values.
func (t *Table) Equal(o *Table) bool {
	if o == nil || t.rows != o.rows || len(t.names) != len(o.names) {
		return false
	}
	for i, name := range t.names {
		if o.names[i] != name {
			return false
		}
		for r := 0; r < t.rows; r++ {
			if !cellEqual(t.cols[i][r], o.cols[i][r]) {
				return false
			}
		}
	}
	return true
}

func cellEqual(a, b interface{}) bool {
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return a == b
}

// clone returns a deep copy sharing no cell storage with the receiver.
func (t *Table) clone() *Table {
	cols := make([][]interface{}, len(t.cols))
	for i := range t.cols {
		cols[i] = append([]interface{}(nil), t.cols[i]...)
	}
	return &Table{names: append([]string(nil), t.names...), cols: cols, rows: t.rows}
}

// takeRows builds a new table from the given row indexes, in order.
func (t *Table) takeRows(idx []int) *Table {
	cols := make([][]interface{}, len(t.cols))
	for c := range t.cols {
		cols[c] = make([]interface{}, len(idx))
		for i, r := range idx {
			cols[c][i] = t.cols[c][r]
		}
	}
	return &Table{names: append([]string(nil), t.names...), cols: cols, rows: len(idx)}
}

// String renders a short human-readable summary.
func (t *Table) String() string {
	return fmt.Sprintf("table(%d cols, %d rows)", len(t.names), t.rows)
}
