package table

import (
	"strings"
	"testing"
)

func employees(t *testing.T) *Table {
	t.Helper()
	tbl, err := FromColumns(
		[]string{"name", "dept", "salary", "bonus"},
		[][]interface{}{
			{"ada", "eng", "grace", "linus", "mary"},
			{"platform", "platform", "data", "kernel", "data"},
			{int64(120), int64(95), int64(110), int64(130), int64(105)},
			{float64(10), float64(5), float64(12), nil, float64(8)},
		},
	)
	if err != nil {
		t.Fatalf("FromColumns failed: %v", err)
	}
	return tbl
}

func TestFromColumnsValidation(t *testing.T) {
	tests := []struct {
		name  string
		names []string
		cols  [][]interface{}
	}{
		{"ragged columns", []string{"a", "b"}, [][]interface{}{{int64(1)}, {}}},
		{"duplicate names", []string{"a", "a"}, [][]interface{}{{int64(1)}, {int64(2)}}},
		{"empty name", []string{""}, [][]interface{}{{int64(1)}}},
		{"bad cell type", []string{"a"}, [][]interface{}{{struct{}{}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromColumns(tt.names, tt.cols); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestFromCSVInference(t *testing.T) {
	src := "id,score,active,label\n1,2.5,true,alpha\n2,,false,beta\n"
	tbl, err := FromCSV(strings.NewReader(src))
	if err != nil {
		t.Fatalf("FromCSV failed: %v", err)
	}
	if tbl.NumRows() != 2 || tbl.NumCols() != 4 {
		t.Fatalf("unexpected shape %dx%d", tbl.NumRows(), tbl.NumCols())
	}
	schema := tbl.Schema()
	wantKinds := map[string]Kind{"id": KindInt, "score": KindFloat, "active": KindBool, "label": KindString}
	for _, col := range schema.Columns {
		if col.Kind != wantKinds[col.Name] {
			t.Errorf("column %s: got kind %s, want %s", col.Name, col.Kind, wantKinds[col.Name])
		}
	}
	cell, err := tbl.Cell(1, "score")
	if err != nil {
		t.Fatalf("Cell failed: %v", err)
	}
	if cell != nil {
		t.Errorf("empty CSV field should be nil, got %v", cell)
	}
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	tbl := employees(t)
	before := tbl.Records()

	filtered, err := tbl.Filter("salary", ">", int64(100))
	if err != nil {
		t.Fatalf("Filter failed: %v", err)
	}
	if filtered.NumRows() != 3 {
		t.Errorf("got %d rows, want 3", filtered.NumRows())
	}
	after := tbl.Records()
	if len(before) != len(after) {
		t.Fatal("input table row count changed")
	}
	for i := range before {
		for k, v := range before[i] {
			if after[i][k] != v {
				t.Fatalf("input table mutated at row %d column %s", i, k)
			}
		}
	}
}

func TestFilterOperators(t *testing.T) {
	tbl := employees(t)
	tests := []struct {
		name   string
		column string
		op     string
		value  interface{}
		want   int
	}{
		{"eq", "dept", "==", "data", 2},
		{"ne", "dept", "!=", "data", 3},
		{"ge", "salary", ">=", int64(110), 3},
		{"contains", "name", "contains", "a", 3},
		{"startswith", "name", "startswith", "g", 1},
		{"in", "dept", "in", []interface{}{"kernel", "platform"}, 3},
		{"nil never matches lt", "bonus", "<", float64(100), 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tbl.Filter(tt.column, tt.op, tt.value)
			if err != nil {
				t.Fatalf("Filter failed: %v", err)
			}
			if got.NumRows() != tt.want {
				t.Errorf("got %d rows, want %d", got.NumRows(), tt.want)
			}
		})
	}

	if _, err := tbl.Filter("salary", "~", int64(1)); err == nil {
		t.Error("unknown operator should fail")
	}
	if _, err := tbl.Filter("missing", "==", int64(1)); err == nil {
		t.Error("unknown column should fail")
	}
}

func TestSortByStable(t *testing.T) {
	tbl := employees(t)
	sorted, err := tbl.SortBy([]string{"dept", "salary"}, []bool{true, false})
	if err != nil {
		t.Fatalf("SortBy failed: %v", err)
	}
	names, err := sorted.Column("name")
	if err != nil {
		t.Fatal(err)
	}
	want := []interface{}{"grace", "mary", "linus", "ada", "eng"}
	for i, n := range want {
		if names[i] != n {
			t.Errorf("row %d: got %v, want %v", i, names[i], n)
		}
	}
}

func TestGroupByAggregates(t *testing.T) {
	tbl := employees(t)
	grouped, err := tbl.GroupBy([]string{"dept"}, "salary", []string{"mean", "count"})
	if err != nil {
		t.Fatalf("GroupBy failed: %v", err)
	}
	if got := grouped.Columns(); got[1] != "salary_mean" || got[2] != "salary_count" {
		t.Errorf("unexpected output columns %v", got)
	}
	// Groups keep first-seen order: platform, data, kernel.
	depts, _ := grouped.Column("dept")
	if depts[0] != "platform" || depts[1] != "data" || depts[2] != "kernel" {
		t.Errorf("unexpected group order %v", depts)
	}
	means, _ := grouped.Column("salary_mean")
	if means[0] != 107.5 {
		t.Errorf("platform mean: got %v, want 107.5", means[0])
	}
	counts, _ := grouped.Column("salary_count")
	if counts[1] != int64(2) {
		t.Errorf("data count: got %v, want 2", counts[1])
	}
}

func TestAggSkipsNulls(t *testing.T) {
	tbl := employees(t)
	got, err := tbl.Agg("bonus", "sum")
	if err != nil {
		t.Fatalf("Agg failed: %v", err)
	}
	if got != float64(35) {
		t.Errorf("got %v, want 35", got)
	}
	count, err := tbl.Agg("bonus", "count")
	if err != nil {
		t.Fatal(err)
	}
	if count != int64(4) {
		t.Errorf("count: got %v, want 4", count)
	}
}

func TestWithColumnArithmetic(t *testing.T) {
	tbl := employees(t)
	out, err := tbl.WithColumn("total", "salary", "+", "bonus")
	if err != nil {
		t.Fatalf("WithColumn failed: %v", err)
	}
	totals, _ := out.Column("total")
	if totals[0] != float64(130) {
		t.Errorf("got %v, want 130", totals[0])
	}
	if totals[3] != nil {
		t.Errorf("nil operand should yield nil, got %v", totals[3])
	}
	if tbl.HasColumn("total") {
		t.Error("WithColumn mutated its input")
	}

	constOut, err := tbl.WithColumn("doubled", "salary", "*", int64(2))
	if err != nil {
		t.Fatal(err)
	}
	doubled, _ := constOut.Column("doubled")
	if doubled[0] != int64(240) {
		t.Errorf("int*int should stay int, got %v (%T)", doubled[0], doubled[0])
	}
}

func TestPivotAndMelt(t *testing.T) {
	tbl, err := FromRecords(
		[]string{"region", "quarter", "sales"},
		[][]interface{}{
			{"north", "q1", int64(10)},
			{"north", "q2", int64(20)},
			{"south", "q1", int64(5)},
		},
	)
	if err != nil {
		t.Fatal(err)
	}

	pivoted, err := tbl.Pivot("region", "quarter", "sales", "sum")
	if err != nil {
		t.Fatalf("Pivot failed: %v", err)
	}
	if cols := pivoted.Columns(); len(cols) != 3 || cols[0] != "region" || cols[1] != "q1" || cols[2] != "q2" {
		t.Fatalf("unexpected pivot columns %v", pivoted.Columns())
	}
	cell, _ := pivoted.Cell(1, "q2")
	if cell != nil {
		t.Errorf("missing pivot cell should be nil, got %v", cell)
	}

	melted, err := pivoted.Melt([]string{"region"}, nil, "quarter", "sales")
	if err != nil {
		t.Fatalf("Melt failed: %v", err)
	}
	if melted.NumRows() != 4 {
		t.Errorf("got %d melted rows, want 4", melted.NumRows())
	}
	if cols := melted.Columns(); cols[1] != "quarter" || cols[2] != "sales" {
		t.Errorf("unexpected melt columns %v", cols)
	}
}

func TestMergeJoinTypes(t *testing.T) {
	left, _ := FromRecords(
		[]string{"id", "name"},
		[][]interface{}{{int64(1), "a"}, {int64(2), "b"}, {int64(3), "c"}},
	)
	right, _ := FromRecords(
		[]string{"id", "score"},
		[][]interface{}{{int64(2), int64(20)}, {int64(3), int64(30)}, {int64(4), int64(40)}},
	)

	tests := []struct {
		how  string
		rows int
	}{
		{"inner", 2},
		{"left", 3},
		{"right", 3},
		{"outer", 4},
	}
	for _, tt := range tests {
		t.Run(tt.how, func(t *testing.T) {
			got, err := left.Merge(right, "id", "id", tt.how)
			if err != nil {
				t.Fatalf("Merge failed: %v", err)
			}
			if got.NumRows() != tt.rows {
				t.Errorf("got %d rows, want %d", got.NumRows(), tt.rows)
			}
		})
	}

	if common := left.CommonColumns(right); len(common) != 1 || common[0] != "id" {
		t.Errorf("CommonColumns: got %v", left.CommonColumns(right))
	}
}

func TestDistinctAndNulls(t *testing.T) {
	tbl, _ := FromRecords(
		[]string{"a", "b"},
		[][]interface{}{
			{int64(1), "x"},
			{int64(1), "x"},
			{int64(2), nil},
		},
	)
	distinct, err := tbl.Distinct()
	if err != nil {
		t.Fatal(err)
	}
	if distinct.NumRows() != 2 {
		t.Errorf("distinct: got %d rows, want 2", distinct.NumRows())
	}

	dropped, err := tbl.DropNulls(nil)
	if err != nil {
		t.Fatal(err)
	}
	if dropped.NumRows() != 2 {
		t.Errorf("dropnulls: got %d rows, want 2", dropped.NumRows())
	}

	filled, err := tbl.FillNulls("b", "missing")
	if err != nil {
		t.Fatal(err)
	}
	cell, _ := filled.Cell(2, "b")
	if cell != "missing" {
		t.Errorf("fillnulls: got %v", cell)
	}
}

func TestDatePart(t *testing.T) {
	tbl, _ := FromRecords(
		[]string{"joined"},
		[][]interface{}{{"2023-06-15"}, {"not a date"}, {nil}},
	)
	out, err := tbl.DatePart("joined", "year", "join_year")
	if err != nil {
		t.Fatalf("DatePart failed: %v", err)
	}
	years, _ := out.Column("join_year")
	if years[0] != int64(2023) || years[1] != nil || years[2] != nil {
		t.Errorf("unexpected years %v", years)
	}
	if _, err := tbl.DatePart("joined", "century", "c"); err == nil {
		t.Error("unknown date part should fail")
	}
}

func TestSeriesReduce(t *testing.T) {
	s, err := NewSeries("salary", []string{"a", "b", "c"}, []interface{}{int64(10), int64(20), nil})
	if err != nil {
		t.Fatal(err)
	}
	sum, err := s.Reduce("sum")
	if err != nil {
		t.Fatal(err)
	}
	if sum != int64(30) {
		t.Errorf("sum: got %v, want 30", sum)
	}
	mean, _ := s.Reduce("mean")
	if mean != 15.0 {
		t.Errorf("mean: got %v, want 15", mean)
	}
	if _, err := s.Reduce("mode"); err == nil {
		t.Error("unknown reducer should fail")
	}
	if _, err := s.Get("missing"); err == nil {
		t.Error("missing key should fail")
	}
}

func TestSeriesReduceIntegerTypes(t *testing.T) {
	s, err := NewSeries("counts", []string{"a", "b", "c"}, []interface{}{int64(3), int64(9), int64(5)})
	if err != nil {
		t.Fatal(err)
	}
	for op, want := range map[string]interface{}{
		"sum": int64(17),
		"min": int64(3),
		"max": int64(9),
	} {
		got, err := s.Reduce(op)
		if err != nil {
			t.Fatalf("%s failed: %v", op, err)
		}
		if got != want {
			t.Errorf("%s: got %v (%T), want %v (int64)", op, got, got, want)
		}
	}

	mixed, err := NewSeries("ratios", []string{"a", "b"}, []interface{}{int64(1), 2.5})
	if err != nil {
		t.Fatal(err)
	}
	got, err := mixed.Reduce("max")
	if err != nil {
		t.Fatalf("max failed: %v", err)
	}
	if got != 2.5 {
		t.Errorf("mixed max: got %v (%T), want 2.5 (float64)", got, got)
	}
}

func TestEqualAndHeadTail(t *testing.T) {
	tbl := employees(t)
	head, err := tbl.Head(2)
	if err != nil {
		t.Fatal(err)
	}
	tail, err := tbl.Tail(2)
	if err != nil {
		t.Fatal(err)
	}
	if head.NumRows() != 2 || tail.NumRows() != 2 {
		t.Fatal("unexpected head/tail sizes")
	}
	if head.Equal(tail) {
		t.Error("head and tail should differ")
	}
	if !tbl.Equal(tbl.clone()) {
		t.Error("clone should equal source")
	}
	big, err := tbl.Head(100)
	if err != nil {
		t.Fatal(err)
	}
	if !big.Equal(tbl) {
		t.Error("head beyond row count should return all rows")
	}
}
