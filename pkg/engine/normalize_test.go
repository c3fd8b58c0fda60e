package engine

import (
	"strings"
	"testing"
	"time"

	"github.com/tabulark/tabulark/pkg/table"
)

func bigTable(t *testing.T, rows int) *table.Table {
	t.Helper()
	ids := make([]interface{}, rows)
	vals := make([]interface{}, rows)
	for i := 0; i < rows; i++ {
		ids[i] = int64(i)
		vals[i] = float64(i) * 1.5
	}
	tbl, err := table.FromColumns([]string{"id", "value"}, [][]interface{}{ids, vals})
	if err != nil {
		t.Fatalf("FromColumns: %v", err)
	}
	return tbl
}

func TestNormalizeScalars(t *testing.T) {
	n := NewNormalizer(0)
	ts := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		raw  interface{}
		want interface{}
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"int64", int64(42), int64(42)},
		{"int widens", 7, int64(7)},
		{"float", 3.5, 3.5},
		{"string", "hello", "hello"},
		{"time", ts, ts},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := n.Normalize(tt.raw)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if out.Shape != ShapeScalar {
				t.Fatalf("shape = %s, want scalar", out.Shape)
			}
			if out.Scalar != tt.want {
				t.Errorf("scalar = %v, want %v", out.Scalar, tt.want)
			}
		})
	}
}

func TestNormalizeTableUnderCap(t *testing.T) {
	n := NewNormalizer(0)
	tbl := bigTable(t, 100)

	out, err := n.Normalize(tbl)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.Shape != ShapeTable {
		t.Fatalf("shape = %s, want table", out.Shape)
	}
	if out.Truncated {
		t.Error("table under the cap must not be truncated")
	}
	if out.Table.NumRows() != 100 {
		t.Errorf("rows = %d, want 100", out.Table.NumRows())
	}
}

func TestNormalizeTruncatesOversizedTable(t *testing.T) {
	n := NewNormalizer(0)
	tbl := bigTable(t, 15000)

	out, err := n.Normalize(tbl)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !out.Truncated {
		t.Fatal("expected truncation")
	}
	if out.Table.NumRows() != DefaultMaxRows {
		t.Errorf("rows = %d, want %d", out.Table.NumRows(), DefaultMaxRows)
	}
	if out.TotalRows != 15000 {
		t.Errorf("total rows = %d, want 15000", out.TotalRows)
	}

	// Truncation keeps the first rows in order.
	first, err := out.Table.Cell(0, "id")
	if err != nil {
		t.Fatalf("Cell: %v", err)
	}
	if first != int64(0) {
		t.Errorf("first id = %v, want 0", first)
	}
	last, err := out.Table.Cell(DefaultMaxRows-1, "id")
	if err != nil {
		t.Fatalf("Cell: %v", err)
	}
	if last != int64(DefaultMaxRows-1) {
		t.Errorf("last id = %v, want %d", last, DefaultMaxRows-1)
	}
}

func TestNormalizeCustomRowCap(t *testing.T) {
	n := NewNormalizer(50)
	out, err := n.Normalize(bigTable(t, 200))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !out.Truncated || out.Table.NumRows() != 50 || out.TotalRows != 200 {
		t.Errorf("got rows=%d truncated=%v total=%d, want 50/true/200",
			out.Table.NumRows(), out.Truncated, out.TotalRows)
	}
}

func TestNormalizeSeries(t *testing.T) {
	ser, err := table.NewSeries("salary", []string{"eng", "ops"}, []interface{}{120.0, 90.0})
	if err != nil {
		t.Fatalf("NewSeries: %v", err)
	}
	out, err := NewNormalizer(0).Normalize(ser)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.Shape != ShapeSeries || out.Series.Len() != 2 {
		t.Errorf("got shape=%s len=%d, want series/2", out.Shape, out.Series.Len())
	}
}

func TestNormalizeListBecomesSeries(t *testing.T) {
	out, err := NewNormalizer(0).Normalize([]interface{}{int64(1), int64(2), int64(3)})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.Shape != ShapeSeries {
		t.Fatalf("shape = %s, want series", out.Shape)
	}
	keys := out.Series.Keys()
	if len(keys) != 3 || keys[0] != "0" || keys[2] != "2" {
		t.Errorf("keys = %v, want positional 0..2", keys)
	}
	v, err := out.Series.Get("1")
	if err != nil || v != int64(2) {
		t.Errorf("Get(1) = %v, %v, want 2", v, err)
	}
}

func TestNormalizeMapping(t *testing.T) {
	m := map[string]interface{}{
		"count": int64(4),
		"by_team": map[string]interface{}{
			"eng": 110.0,
			"ops": 85.0,
		},
	}
	out, err := NewNormalizer(0).Normalize(m)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.Shape != ShapeMapping {
		t.Fatalf("shape = %s, want mapping", out.Shape)
	}
	if out.Mapping["count"] != int64(4) {
		t.Errorf("count = %v, want 4", out.Mapping["count"])
	}
}

func TestNormalizeRejectsUnrepresentable(t *testing.T) {
	tests := []struct {
		name string
		raw  interface{}
	}{
		{"channel", make(chan int)},
		{"func", func() {}},
		{"mapping with bad value", map[string]interface{}{"ch": make(chan int)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNormalizer(0).Normalize(tt.raw)
			if err == nil {
				t.Fatal("expected a shape error")
			}
			ee, ok := err.(*EngineError)
			if !ok || ee.Class != ErrorClassShape {
				t.Errorf("error = %v, want shape class", err)
			}
		})
	}
}

func TestNormalizeRejectsDeepMapping(t *testing.T) {
	m := map[string]interface{}{"v": int64(1)}
	for i := 0; i < maxMappingDepth+2; i++ {
		m = map[string]interface{}{"nested": m}
	}
	_, err := NewNormalizer(0).Normalize(m)
	if err == nil {
		t.Fatal("expected a shape error for deep nesting")
	}
	if !strings.Contains(err.Error(), "nests deeper") {
		t.Errorf("error = %v, want nesting message", err)
	}
}
