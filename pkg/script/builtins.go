package script

import (
	"fmt"
	"sort"
	"strconv"

	"go.starlark.net/starlark"

	"github.com/tabulark/tabulark/pkg/table"
)

// tableValue exposes a table to the sandbox. The wrapper is immutable:
// every method returns a new value, never mutates the receiver.
type tableValue struct {
	tbl *table.Table
}

func wrapTable(t *table.Table) *tableValue { return &tableValue{tbl: t} }

func (t *tableValue) String() string        { return t.tbl.String() }
func (t *tableValue) Type() string          { return "table" }
func (t *tableValue) Freeze()               {}
func (t *tableValue) Truth() starlark.Bool  { return starlark.Bool(t.tbl.NumRows() > 0) }
func (t *tableValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: table") }

type tableMethod func(*tableValue, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error)

var tableMethods = map[string]tableMethod{
	"filter":      (*tableValue).filterFn,
	"select":      (*tableValue).selectFn,
	"drop":        (*tableValue).dropFn,
	"rename":      (*tableValue).renameFn,
	"sort":        (*tableValue).sortFn,
	"head":        (*tableValue).headFn,
	"tail":        (*tableValue).tailFn,
	"distinct":    (*tableValue).distinctFn,
	"dropnulls":   (*tableValue).dropNullsFn,
	"fillnulls":   (*tableValue).fillNullsFn,
	"with_column": (*tableValue).withColumnFn,
	"date_part":   (*tableValue).datePartFn,
	"groupby":     (*tableValue).groupByFn,
	"agg":         (*tableValue).aggFn,
	"pivot":       (*tableValue).pivotFn,
	"melt":        (*tableValue).meltFn,
	"merge":       (*tableValue).mergeFn,
	"columns":     (*tableValue).columnsFn,
	"col":         (*tableValue).colFn,
	"num_rows":    (*tableValue).numRowsFn,
	"schema":      (*tableValue).schemaFn,
}

// Attr implements starlark.HasAttrs.
func (t *tableValue) Attr(name string) (starlark.Value, error) {
	m, ok := tableMethods[name]
	if !ok {
		return nil, nil
	}
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return m(t, b, args, kwargs)
	}), nil
}

func (t *tableValue) AttrNames() []string {
	names := make([]string, 0, len(tableMethods))
	for name := range tableMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *tableValue) filterFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var column, op string
	var value starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "column", &column, "op", &op, "value", &value); err != nil {
		return nil, err
	}
	goVal, err := fromStarlark(value)
	if err != nil {
		return nil, err
	}
	out, err := t.tbl.Filter(column, op, goVal)
	if err != nil {
		return nil, err
	}
	return wrapTable(out), nil
}

func (t *tableValue) selectFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	cols, err := variadicStrings(b.Name(), args, kwargs)
	if err != nil {
		return nil, err
	}
	out, err := t.tbl.Select(cols)
	if err != nil {
		return nil, err
	}
	return wrapTable(out), nil
}

func (t *tableValue) dropFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	cols, err := variadicStrings(b.Name(), args, kwargs)
	if err != nil {
		return nil, err
	}
	out, err := t.tbl.Drop(cols)
	if err != nil {
		return nil, err
	}
	return wrapTable(out), nil
}

func (t *tableValue) renameFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	mapping := make(map[string]string)
	if len(args) == 1 && len(kwargs) == 0 {
		dict, ok := args[0].(*starlark.Dict)
		if !ok {
			return nil, fmt.Errorf("%s: expected dict, got %s", b.Name(), args[0].Type())
		}
		for _, item := range dict.Items() {
			from, ok := item[0].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("%s: column names must be strings", b.Name())
			}
			to, ok := item[1].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("%s: column names must be strings", b.Name())
			}
			mapping[string(from)] = string(to)
		}
	} else if len(args) == 0 {
		for _, kv := range kwargs {
			to, ok := kv[1].(starlark.String)
			if !ok {
				return nil, fmt.Errorf("%s: column names must be strings", b.Name())
			}
			mapping[string(kv[0].(starlark.String))] = string(to)
		}
	} else {
		return nil, fmt.Errorf("%s: takes a dict or keyword arguments", b.Name())
	}
	out, err := t.tbl.Rename(mapping)
	if err != nil {
		return nil, err
	}
	return wrapTable(out), nil
}

func (t *tableValue) sortFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var by, ascending starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "by", &by, "ascending?", &ascending); err != nil {
		return nil, err
	}
	columns, err := stringList(by)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	asc := make([]bool, len(columns))
	for i := range asc {
		asc[i] = true
	}
	if ascending != nil {
		switch v := ascending.(type) {
		case starlark.Bool:
			for i := range asc {
				asc[i] = bool(v)
			}
		case *starlark.List:
			if v.Len() != len(columns) {
				return nil, fmt.Errorf("%s: ascending length %d does not match %d sort columns", b.Name(), v.Len(), len(columns))
			}
			for i := 0; i < v.Len(); i++ {
				flag, ok := v.Index(i).(starlark.Bool)
				if !ok {
					return nil, fmt.Errorf("%s: ascending values must be bool", b.Name())
				}
				asc[i] = bool(flag)
			}
		default:
			return nil, fmt.Errorf("%s: ascending must be bool or list of bool", b.Name())
		}
	}
	out, err := t.tbl.SortBy(columns, asc)
	if err != nil {
		return nil, err
	}
	return wrapTable(out), nil
}

func (t *tableValue) headFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	out, err := t.tbl.Head(n)
	if err != nil {
		return nil, err
	}
	return wrapTable(out), nil
}

func (t *tableValue) tailFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	out, err := t.tbl.Tail(n)
	if err != nil {
		return nil, err
	}
	return wrapTable(out), nil
}

func (t *tableValue) distinctFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	out, err := t.tbl.Distinct()
	if err != nil {
		return nil, err
	}
	return wrapTable(out), nil
}

func (t *tableValue) dropNullsFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var cols []string
	if len(args) > 0 || len(kwargs) > 0 {
		var err error
		cols, err = variadicStrings(b.Name(), args, kwargs)
		if err != nil {
			return nil, err
		}
	}
	out, err := t.tbl.DropNulls(cols)
	if err != nil {
		return nil, err
	}
	return wrapTable(out), nil
}

func (t *tableValue) fillNullsFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var column string
	var value starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "column", &column, "value", &value); err != nil {
		return nil, err
	}
	goVal, err := fromStarlark(value)
	if err != nil {
		return nil, err
	}
	out, err := t.tbl.FillNulls(column, goVal)
	if err != nil {
		return nil, err
	}
	return wrapTable(out), nil
}

func (t *tableValue) withColumnFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name, left, op string
	var right starlark.Value
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name, "left", &left, "op", &op, "right", &right); err != nil {
		return nil, err
	}
	goVal, err := fromStarlark(right)
	if err != nil {
		return nil, err
	}
	out, err := t.tbl.WithColumn(name, left, op, goVal)
	if err != nil {
		return nil, err
	}
	return wrapTable(out), nil
}

func (t *tableValue) datePartFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var column, part, name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "column", &column, "part", &part, "name?", &name); err != nil {
		return nil, err
	}
	out, err := t.tbl.DatePart(column, part, name)
	if err != nil {
		return nil, err
	}
	return wrapTable(out), nil
}

func (t *tableValue) groupByFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var by, aggs starlark.Value
	var valueColumn string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "by", &by, "value", &valueColumn, "aggs", &aggs); err != nil {
		return nil, err
	}
	byCols, err := stringList(by)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	fns, err := stringList(aggs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	out, err := t.tbl.GroupBy(byCols, valueColumn, fns)
	if err != nil {
		return nil, err
	}
	return wrapTable(out), nil
}

func (t *tableValue) aggFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var column, fn string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "column", &column, "fn", &fn); err != nil {
		return nil, err
	}
	out, err := t.tbl.Agg(column, fn)
	if err != nil {
		return nil, err
	}
	return toStarlark(out)
}

func (t *tableValue) pivotFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var index, columns, values string
	fn := "mean"
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "index", &index, "columns", &columns, "values", &values, "aggfunc?", &fn); err != nil {
		return nil, err
	}
	out, err := t.tbl.Pivot(index, columns, values, fn)
	if err != nil {
		return nil, err
	}
	return wrapTable(out), nil
}

func (t *tableValue) meltFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var idVars, valueVars starlark.Value
	var varName, valueName string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"id_vars?", &idVars, "value_vars?", &valueVars,
		"var_name?", &varName, "value_name?", &valueName); err != nil {
		return nil, err
	}
	var idCols, valueCols []string
	var err error
	if idVars != nil {
		if idCols, err = stringList(idVars); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
	}
	if valueVars != nil {
		if valueCols, err = stringList(valueVars); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
	}
	out, err := t.tbl.Melt(idCols, valueCols, varName, valueName)
	if err != nil {
		return nil, err
	}
	return wrapTable(out), nil
}

func (t *tableValue) mergeFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var other starlark.Value
	var leftOn, rightOn string
	how := "inner"
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "other", &other, "on", &leftOn, "right_on?", &rightOn, "how?", &how); err != nil {
		return nil, err
	}
	tv, ok := other.(*tableValue)
	if !ok {
		return nil, fmt.Errorf("%s: other must be a table, got %s", b.Name(), other.Type())
	}
	if rightOn == "" {
		rightOn = leftOn
	}
	out, err := t.tbl.Merge(tv.tbl, leftOn, rightOn, how)
	if err != nil {
		return nil, err
	}
	return wrapTable(out), nil
}

func (t *tableValue) columnsFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	names := t.tbl.Columns()
	list := make([]starlark.Value, len(names))
	for i, name := range names {
		list[i] = starlark.String(name)
	}
	return starlark.NewList(list), nil
}

func (t *tableValue) colFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "name", &name); err != nil {
		return nil, err
	}
	cells, err := t.tbl.Column(name)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(cells))
	for i := range cells {
		keys[i] = strconv.Itoa(i)
	}
	ser, err := table.NewSeries(name, keys, cells)
	if err != nil {
		return nil, err
	}
	return wrapSeries(ser), nil
}

func (t *tableValue) numRowsFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	return starlark.MakeInt(t.tbl.NumRows()), nil
}

func (t *tableValue) schemaFn(b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
		return nil, err
	}
	schema := t.tbl.Schema()
	dict := starlark.NewDict(len(schema.Columns))
	for _, col := range schema.Columns {
		if err := dict.SetKey(starlark.String(col.Name), starlark.String(string(col.Kind))); err != nil {
			return nil, err
		}
	}
	return dict, nil
}

// seriesValue exposes a labeled series to the sandbox.
type seriesValue struct {
	ser *table.Series
}

func wrapSeries(s *table.Series) *seriesValue { return &seriesValue{ser: s} }

func (s *seriesValue) String() string        { return s.ser.String() }
func (s *seriesValue) Type() string          { return "series" }
func (s *seriesValue) Freeze()               {}
func (s *seriesValue) Truth() starlark.Bool  { return starlark.Bool(s.ser.Len() > 0) }
func (s *seriesValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: series") }
func (s *seriesValue) Len() int              { return s.ser.Len() }

// Iterate implements starlark.Iterable over the series values.
func (s *seriesValue) Iterate() starlark.Iterator {
	return &seriesIterator{ser: s.ser}
}

type seriesIterator struct {
	ser *table.Series
	i   int
}

func (it *seriesIterator) Next(p *starlark.Value) bool {
	if it.i >= it.ser.Len() {
		return false
	}
	_, val, err := it.ser.At(it.i)
	if err != nil {
		return false
	}
	sv, err := toStarlark(val)
	if err != nil {
		return false
	}
	*p = sv
	it.i++
	return true
}

func (it *seriesIterator) Done() {}

var seriesReducers = []string{"sum", "mean", "median", "min", "max", "count", "std", "var"}

// Attr implements starlark.HasAttrs.
func (s *seriesValue) Attr(name string) (starlark.Value, error) {
	for _, fn := range seriesReducers {
		if name == fn {
			reducer := fn
			return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
				if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
					return nil, err
				}
				out, err := s.ser.Reduce(reducer)
				if err != nil {
					return nil, err
				}
				return toStarlark(out)
			}), nil
		}
	}
	switch name {
	case "to_list", "values":
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
				return nil, err
			}
			return toStarlark(s.ser.Values())
		}), nil
	case "keys":
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackArgs(b.Name(), args, kwargs); err != nil {
				return nil, err
			}
			keys := s.ser.Keys()
			list := make([]starlark.Value, len(keys))
			for i, k := range keys {
				list[i] = starlark.String(k)
			}
			return starlark.NewList(list), nil
		}), nil
	case "get":
		return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var key string
			var fallback starlark.Value = starlark.None
			if err := starlark.UnpackArgs(b.Name(), args, kwargs, "key", &key, "default?", &fallback); err != nil {
				return nil, err
			}
			out, err := s.ser.Get(key)
			if err != nil {
				return fallback, nil
			}
			return toStarlark(out)
		}), nil
	}
	return nil, nil
}

func (s *seriesValue) AttrNames() []string {
	names := append([]string(nil), seriesReducers...)
	names = append(names, "to_list", "values", "keys", "get")
	sort.Strings(names)
	return names
}

// stringList accepts a string or a list/tuple of strings.
func stringList(v starlark.Value) ([]string, error) {
	switch x := v.(type) {
	case starlark.String:
		return []string{string(x)}, nil
	case *starlark.List:
		out := make([]string, 0, x.Len())
		for i := 0; i < x.Len(); i++ {
			s, ok := x.Index(i).(starlark.String)
			if !ok {
				return nil, fmt.Errorf("expected string, got %s", x.Index(i).Type())
			}
			out = append(out, string(s))
		}
		return out, nil
	case starlark.Tuple:
		out := make([]string, 0, len(x))
		for _, item := range x {
			s, ok := item.(starlark.String)
			if !ok {
				return nil, fmt.Errorf("expected string, got %s", item.Type())
			}
			out = append(out, string(s))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected string or list of strings, got %s", v.Type())
	}
}

// variadicStrings accepts select("a", "b") and select(["a", "b"]) forms.
func variadicStrings(name string, args starlark.Tuple, kwargs []starlark.Tuple) ([]string, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", name)
	}
	if len(args) == 1 {
		cols, err := stringList(args[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		return cols, nil
	}
	out := make([]string, 0, len(args))
	for _, arg := range args {
		s, ok := arg.(starlark.String)
		if !ok {
			return nil, fmt.Errorf("%s: expected string, got %s", name, arg.Type())
		}
		out = append(out, string(s))
	}
	return out, nil
}
