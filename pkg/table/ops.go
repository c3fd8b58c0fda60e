package table

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// compare orders two cells. Nil sorts before everything; numeric values are
// compared cross-type (int64 against float64); otherwise both cells must
// share a type.
func compare(a, b interface{}) (int, error) {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0, nil
		case a == nil:
			return -1, nil
		default:
			return 1, nil
		}
	}
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1, nil
			case fa > fb:
				return 1, nil
			default:
				return 0, nil
			}
		}
		return 0, fmt.Errorf("cannot compare %T with %T", a, b)
	}
	switch x := a.(type) {
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, fmt.Errorf("cannot compare string with %T", b)
		}
		return strings.Compare(x, y), nil
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, fmt.Errorf("cannot compare bool with %T", b)
		}
		switch {
		case x == y:
			return 0, nil
		case !x:
			return -1, nil
		default:
			return 1, nil
		}
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			return 0, fmt.Errorf("cannot compare time with %T", b)
		}
		return x.Compare(y), nil
	default:
		return 0, fmt.Errorf("cannot compare %T values", a)
	}
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	default:
		return 0, false
	}
}

// Filter returns the rows where column op value holds. Supported operators:
// ==, !=, <, <=, >, >=, contains, startswith, endswith, in. Nil cells never
// match (except != against a non-nil value).
func (t *Table) Filter(column, op string, value interface{}) (*Table, error) {
	cells, err := t.columnRef(column)
	if err != nil {
		return nil, err
	}
	value, err = normalizeFilterValue(value)
	if err != nil {
		return nil, err
	}
	var idx []int
	for r, cell := range cells {
		ok, err := cellMatches(cell, op, value)
		if err != nil {
			return nil, fmt.Errorf("filter %s %s: %w", column, op, err)
		}
		if ok {
			idx = append(idx, r)
		}
	}
	return t.takeRows(idx), nil
}

func (t *Table) columnRef(name string) ([]interface{}, error) {
	i := t.index(name)
	if i < 0 {
		return nil, fmt.Errorf("unknown column %q", name)
	}
	return t.cols[i], nil
}

func normalizeFilterValue(value interface{}) (interface{}, error) {
	if list, ok := value.([]interface{}); ok {
		out := make([]interface{}, len(list))
		for i, v := range list {
			cell, err := normalizeCell(v)
			if err != nil {
				return nil, err
			}
			out[i] = cell
		}
		return out, nil
	}
	return normalizeCell(value)
}

func cellMatches(cell interface{}, op string, value interface{}) (bool, error) {
	switch op {
	case "==", "!=", "<", "<=", ">", ">=":
		if cell == nil {
			return op == "!=" && value != nil, nil
		}
		c, err := compare(cell, value)
		if err != nil {
			return false, err
		}
		switch op {
		case "==":
			return c == 0, nil
		case "!=":
			return c != 0, nil
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case "contains", "startswith", "endswith":
		s, ok := cell.(string)
		if !ok {
			return false, nil
		}
		sub, ok := value.(string)
		if !ok {
			return false, fmt.Errorf("operator %q needs a string argument, got %T", op, value)
		}
		switch op {
		case "contains":
			return strings.Contains(s, sub), nil
		case "startswith":
			return strings.HasPrefix(s, sub), nil
		default:
			return strings.HasSuffix(s, sub), nil
		}
	case "in":
		list, ok := value.([]interface{})
		if !ok {
			return false, fmt.Errorf("operator \"in\" needs a list argument, got %T", value)
		}
		for _, v := range list {
			if cell != nil {
				if c, err := compare(cell, v); err == nil && c == 0 {
					return true, nil
				}
			}
		}
		return false, nil
	default:
		return false, fmt.Errorf("unknown operator %q", op)
	}
}

// Select returns a table with only the named columns, in the given order.
func (t *Table) Select(columns []string) (*Table, error) {
	cols := make([][]interface{}, len(columns))
	for i, name := range columns {
		c := t.index(name)
		if c < 0 {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		cols[i] = append([]interface{}(nil), t.cols[c]...)
	}
	return FromColumns(columns, cols)
}

// Drop returns a table without the named columns.
func (t *Table) Drop(columns []string) (*Table, error) {
	drop := make(map[string]bool, len(columns))
	for _, name := range columns {
		if t.index(name) < 0 {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		drop[name] = true
	}
	var keep []string
	for _, name := range t.names {
		if !drop[name] {
			keep = append(keep, name)
		}
	}
	return t.Select(keep)
}

// Rename returns a table with columns renamed per the mapping.
func (t *Table) Rename(mapping map[string]string) (*Table, error) {
	names := make([]string, len(t.names))
	for i, name := range t.names {
		if to, ok := mapping[name]; ok {
			names[i] = to
		} else {
			names[i] = name
		}
	}
	out := t.clone()
	renamed, err := FromColumns(names, out.cols)
	if err != nil {
		return nil, err
	}
	return renamed, nil
}

// SortBy returns a table stably sorted by the given columns. ascending must
// be empty (all ascending) or have one entry per sort column.
func (t *Table) SortBy(columns []string, ascending []bool) (*Table, error) {
	if len(ascending) != 0 && len(ascending) != len(columns) {
		return nil, fmt.Errorf("got %d ascending flags for %d sort columns", len(ascending), len(columns))
	}
	keys := make([][]interface{}, len(columns))
	for i, name := range columns {
		cells, err := t.columnRef(name)
		if err != nil {
			return nil, err
		}
		keys[i] = cells
	}
	idx := make([]int, t.rows)
	for i := range idx {
		idx[i] = i
	}
	var sortErr error
	sort.SliceStable(idx, func(a, b int) bool {
		for k := range keys {
			c, err := compare(keys[k][idx[a]], keys[k][idx[b]])
			if err != nil && sortErr == nil {
				sortErr = fmt.Errorf("sort by %q: %w", columns[k], err)
			}
			if c == 0 {
				continue
			}
			if len(ascending) > 0 && !ascending[k] {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	if sortErr != nil {
		return nil, sortErr
	}
	return t.takeRows(idx), nil
}

// Head returns the first n rows (all rows when n exceeds the row count).
func (t *Table) Head(n int) (*Table, error) {
	if n < 0 {
		return nil, fmt.Errorf("head: negative row count %d", n)
	}
	if n > t.rows {
		n = t.rows
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return t.takeRows(idx), nil
}

// Tail returns the last n rows in their existing order.
func (t *Table) Tail(n int) (*Table, error) {
	if n < 0 {
		return nil, fmt.Errorf("tail: negative row count %d", n)
	}
	if n > t.rows {
		n = t.rows
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = t.rows - n + i
	}
	return t.takeRows(idx), nil
}

// Distinct returns the rows with duplicate rows removed, keeping the first
// occurrence in order.
func (t *Table) Distinct() (*Table, error) {
	seen := make(map[string]bool, t.rows)
	var idx []int
	for r := 0; r < t.rows; r++ {
		key := t.rowKey(r, t.names)
		if !seen[key] {
			seen[key] = true
			idx = append(idx, r)
		}
	}
	return t.takeRows(idx), nil
}

func (t *Table) rowKey(row int, columns []string) string {
	var sb strings.Builder
	for _, name := range columns {
		c := t.index(name)
		fmt.Fprintf(&sb, "%v\x1f", t.cols[c][row])
	}
	return sb.String()
}

// DropNulls removes rows with a nil cell in any of the given columns, or in
// any column at all when columns is empty.
func (t *Table) DropNulls(columns []string) (*Table, error) {
	check := columns
	if len(check) == 0 {
		check = t.names
	}
	refs := make([][]interface{}, len(check))
	for i, name := range check {
		cells, err := t.columnRef(name)
		if err != nil {
			return nil, err
		}
		refs[i] = cells
	}
	var idx []int
	for r := 0; r < t.rows; r++ {
		keep := true
		for _, cells := range refs {
			if cells[r] == nil {
				keep = false
				break
			}
		}
		if keep {
			idx = append(idx, r)
		}
	}
	return t.takeRows(idx), nil
}

// FillNulls replaces nil cells in the named column with value.
func (t *Table) FillNulls(column string, value interface{}) (*Table, error) {
	i := t.index(column)
	if i < 0 {
		return nil, fmt.Errorf("unknown column %q", column)
	}
	fill, err := normalizeCell(value)
	if err != nil {
		return nil, err
	}
	out := t.clone()
	for r, v := range out.cols[i] {
		if v == nil {
			out.cols[i][r] = fill
		}
	}
	return out, nil
}

// WithColumn appends a computed column: left op right per row, where op is
// one of + - * /. left names an existing column; right names a column when
// such a column exists, otherwise it is treated as a constant. Division by
// zero and nil operands yield nil cells. String + string concatenates.
func (t *Table) WithColumn(name, left, op string, right interface{}) (*Table, error) {
	if t.index(name) >= 0 {
		return nil, fmt.Errorf("column %q already exists", name)
	}
	lcells, err := t.columnRef(left)
	if err != nil {
		return nil, err
	}
	var rcells []interface{}
	if rname, ok := right.(string); ok && t.index(rname) >= 0 {
		rcells, _ = t.columnRef(rname)
	} else {
		constant, err := normalizeCell(right)
		if err != nil {
			return nil, err
		}
		rcells = make([]interface{}, t.rows)
		for i := range rcells {
			rcells[i] = constant
		}
	}
	out := make([]interface{}, t.rows)
	for r := 0; r < t.rows; r++ {
		v, err := arith(lcells[r], op, rcells[r])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", r, err)
		}
		out[r] = v
	}
	names := append(t.Columns(), name)
	cols := append(t.clone().cols, out)
	return FromColumns(names, cols)
}

func arith(a interface{}, op string, b interface{}) (interface{}, error) {
	if a == nil || b == nil {
		return nil, nil
	}
	if op == "+" {
		if sa, ok := a.(string); ok {
			if sb, ok := b.(string); ok {
				return sa + sb, nil
			}
		}
	}
	fa, ok := toFloat(a)
	if !ok {
		return nil, fmt.Errorf("arithmetic on non-numeric value %v (%T)", a, a)
	}
	fb, ok := toFloat(b)
	if !ok {
		return nil, fmt.Errorf("arithmetic on non-numeric value %v (%T)", b, b)
	}
	_, aInt := a.(int64)
	_, bInt := b.(int64)
	var out float64
	switch op {
	case "+":
		out = fa + fb
	case "-":
		out = fa - fb
	case "*":
		out = fa * fb
	case "/":
		if fb == 0 {
			return nil, nil
		}
		return fa / fb, nil
	default:
		return nil, fmt.Errorf("unknown arithmetic operator %q", op)
	}
	if aInt && bInt {
		return int64(out), nil
	}
	return out, nil
}

// DatePart appends a column holding a component (year, month, day, weekday,
// hour) of the time values in column. String cells are parsed as RFC 3339
// or YYYY-MM-DD dates; nil and unparseable cells yield nil.
func (t *Table) DatePart(column, part, name string) (*Table, error) {
	if t.index(name) >= 0 {
		return nil, fmt.Errorf("column %q already exists", name)
	}
	cells, err := t.columnRef(column)
	if err != nil {
		return nil, err
	}
	out := make([]interface{}, t.rows)
	for r, v := range cells {
		ts, ok := asTime(v)
		if !ok {
			out[r] = nil
			continue
		}
		switch part {
		case "year":
			out[r] = int64(ts.Year())
		case "month":
			out[r] = int64(ts.Month())
		case "day":
			out[r] = int64(ts.Day())
		case "weekday":
			out[r] = int64(ts.Weekday())
		case "hour":
			out[r] = int64(ts.Hour())
		default:
			return nil, fmt.Errorf("unknown date part %q", part)
		}
	}
	names := append(t.Columns(), name)
	cols := append(t.clone().cols, out)
	return FromColumns(names, cols)
}

func asTime(v interface{}) (time.Time, bool) {
	switch x := v.(type) {
	case time.Time:
		return x, true
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02", "2006-01-02 15:04:05"} {
			if ts, err := time.Parse(layout, x); err == nil {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// GroupBy groups rows by the key columns and aggregates valueColumn with
// each named function, producing one output column per function named
// "<valueColumn>_<fn>". Groups appear in first-seen order.
func (t *Table) GroupBy(by []string, valueColumn string, fns []string) (*Table, error) {
	if len(by) == 0 {
		return nil, fmt.Errorf("groupby needs at least one key column")
	}
	if len(fns) == 0 {
		return nil, fmt.Errorf("groupby needs at least one aggregate function")
	}
	for _, name := range by {
		if t.index(name) < 0 {
			return nil, fmt.Errorf("unknown column %q", name)
		}
	}
	values, err := t.columnRef(valueColumn)
	if err != nil {
		return nil, err
	}

	order := []string{}
	groups := make(map[string][]int)
	for r := 0; r < t.rows; r++ {
		key := t.rowKey(r, by)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	names := append([]string(nil), by...)
	for _, fn := range fns {
		names = append(names, valueColumn+"_"+fn)
	}
	cols := make([][]interface{}, len(names))
	for i := range cols {
		cols[i] = make([]interface{}, len(order))
	}
	for g, key := range order {
		rows := groups[key]
		for i, name := range by {
			c := t.index(name)
			cols[i][g] = t.cols[c][rows[0]]
		}
		groupVals := make([]interface{}, len(rows))
		for i, r := range rows {
			groupVals[i] = values[r]
		}
		for f, fn := range fns {
			agg, err := aggregate(fn, groupVals)
			if err != nil {
				return nil, fmt.Errorf("group %q: %w", key, err)
			}
			cols[len(by)+f][g] = agg
		}
	}
	return FromColumns(names, cols)
}

// Agg reduces a whole column to a scalar with the named aggregate function.
func (t *Table) Agg(column, fn string) (interface{}, error) {
	cells, err := t.columnRef(column)
	if err != nil {
		return nil, err
	}
	return aggregate(fn, cells)
}

// Pivot builds a wide table: one row per distinct index value, one column
// per distinct columns value, cells aggregated from values with fn. Both
// row and column orders follow first appearance.
func (t *Table) Pivot(index, columns, values, fn string) (*Table, error) {
	idxCells, err := t.columnRef(index)
	if err != nil {
		return nil, err
	}
	colCells, err := t.columnRef(columns)
	if err != nil {
		return nil, err
	}
	valCells, err := t.columnRef(values)
	if err != nil {
		return nil, err
	}

	var rowOrder, colOrder []string
	rowSeen := make(map[string]int)
	colSeen := make(map[string]int)
	rowVals := make(map[string]interface{})
	buckets := make(map[[2]string][]interface{})
	for r := 0; r < t.rows; r++ {
		rk := fmt.Sprintf("%v", idxCells[r])
		ck := fmt.Sprintf("%v", colCells[r])
		if _, ok := rowSeen[rk]; !ok {
			rowSeen[rk] = len(rowOrder)
			rowOrder = append(rowOrder, rk)
			rowVals[rk] = idxCells[r]
		}
		if _, ok := colSeen[ck]; !ok {
			colSeen[ck] = len(colOrder)
			colOrder = append(colOrder, ck)
		}
		key := [2]string{rk, ck}
		buckets[key] = append(buckets[key], valCells[r])
	}

	names := append([]string{index}, colOrder...)
	cols := make([][]interface{}, len(names))
	for i := range cols {
		cols[i] = make([]interface{}, len(rowOrder))
	}
	for ri, rk := range rowOrder {
		cols[0][ri] = rowVals[rk]
		for ci, ck := range colOrder {
			cells, ok := buckets[[2]string{rk, ck}]
			if !ok {
				cols[ci+1][ri] = nil
				continue
			}
			agg, err := aggregate(fn, cells)
			if err != nil {
				return nil, fmt.Errorf("pivot cell (%s, %s): %w", rk, ck, err)
			}
			cols[ci+1][ri] = agg
		}
	}
	return FromColumns(names, cols)
}

// Melt unpivots valueColumns into (variable, value) rows, repeating the
// idColumns for each, turning wide data into long data.
func (t *Table) Melt(idColumns, valueColumns []string, varName, valueName string) (*Table, error) {
	if varName == "" {
		varName = "variable"
	}
	if valueName == "" {
		valueName = "value"
	}
	if len(valueColumns) == 0 {
		used := make(map[string]bool, len(idColumns))
		for _, name := range idColumns {
			used[name] = true
		}
		for _, name := range t.names {
			if !used[name] {
				valueColumns = append(valueColumns, name)
			}
		}
	}
	idRefs := make([][]interface{}, len(idColumns))
	for i, name := range idColumns {
		cells, err := t.columnRef(name)
		if err != nil {
			return nil, err
		}
		idRefs[i] = cells
	}
	valRefs := make([][]interface{}, len(valueColumns))
	for i, name := range valueColumns {
		cells, err := t.columnRef(name)
		if err != nil {
			return nil, err
		}
		valRefs[i] = cells
	}

	names := append(append([]string(nil), idColumns...), varName, valueName)
	total := t.rows * len(valueColumns)
	cols := make([][]interface{}, len(names))
	for i := range cols {
		cols[i] = make([]interface{}, 0, total)
	}
	for _, vi := range rangeInts(len(valueColumns)) {
		for r := 0; r < t.rows; r++ {
			for i := range idColumns {
				cols[i] = append(cols[i], idRefs[i][r])
			}
			cols[len(idColumns)] = append(cols[len(idColumns)], valueColumns[vi])
			cols[len(idColumns)+1] = append(cols[len(idColumns)+1], valRefs[vi][r])
		}
	}
	return FromColumns(names, cols)
}

func rangeInts(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// Merge joins the receiver with other on leftOn == rightOn using how
// (inner, left, right, outer). Overlapping non-key column names from other
// are suffixed with "_right". Row order follows the left table's key order
// (right table's for unmatched right rows).
func (t *Table) Merge(other *Table, leftOn, rightOn, how string) (*Table, error) {
	switch how {
	case "inner", "left", "right", "outer":
	default:
		return nil, fmt.Errorf("unknown join type %q", how)
	}
	lkeys, err := t.columnRef(leftOn)
	if err != nil {
		return nil, fmt.Errorf("left table: %w", err)
	}
	rkeys, err := other.columnRef(rightOn)
	if err != nil {
		return nil, fmt.Errorf("right table: %w", err)
	}

	rightNames := make([]string, 0, len(other.names))
	rightCols := make([]int, 0, len(other.names))
	leftSet := make(map[string]bool, len(t.names))
	for _, name := range t.names {
		leftSet[name] = true
	}
	for i, name := range other.names {
		if name == rightOn {
			continue
		}
		if leftSet[name] {
			name += "_right"
		}
		rightNames = append(rightNames, name)
		rightCols = append(rightCols, i)
	}

	rIndex := make(map[string][]int, other.rows)
	for r := 0; r < other.rows; r++ {
		k := fmt.Sprintf("%v", rkeys[r])
		rIndex[k] = append(rIndex[k], r)
	}

	names := append(t.Columns(), rightNames...)
	cols := make([][]interface{}, len(names))
	for i := range cols {
		cols[i] = []interface{}{}
	}
	appendRow := func(lrow, rrow int) {
		for c := range t.cols {
			if lrow >= 0 {
				cols[c] = append(cols[c], t.cols[c][lrow])
			} else {
				cols[c] = append(cols[c], nil)
			}
		}
		// left-only rows still need the join key populated on right joins
		if lrow < 0 {
			cols[t.index(leftOn)][len(cols[0])-1] = rkeys[rrow]
		}
		for i, rc := range rightCols {
			if rrow >= 0 {
				cols[len(t.cols)+i] = append(cols[len(t.cols)+i], other.cols[rc][rrow])
			} else {
				cols[len(t.cols)+i] = append(cols[len(t.cols)+i], nil)
			}
		}
	}

	matchedRight := make([]bool, other.rows)
	for l := 0; l < t.rows; l++ {
		matches := rIndex[fmt.Sprintf("%v", lkeys[l])]
		if len(matches) == 0 {
			if how == "left" || how == "outer" {
				appendRow(l, -1)
			}
			continue
		}
		for _, r := range matches {
			matchedRight[r] = true
			appendRow(l, r)
		}
	}
	if how == "right" || how == "outer" {
		for r := 0; r < other.rows; r++ {
			if !matchedRight[r] {
				appendRow(-1, r)
			}
		}
	}
	return FromColumns(names, cols)
}

// CommonColumns returns the column names present in both tables, in the
// receiver's order. Used by callers to auto-detect join keys.
func (t *Table) CommonColumns(other *Table) []string {
	var out []string
	for _, name := range t.names {
		if other.index(name) >= 0 {
			out = append(out, name)
		}
	}
	return out
}
