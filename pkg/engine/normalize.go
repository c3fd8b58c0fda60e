package engine

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tabulark/tabulark/pkg/table"
)

// DefaultMaxRows is the row cap applied to tabular results before they
// leave the engine.
const DefaultMaxRows = 10_000

// Normalizer classifies raw execution results into the closed shape set
// and truncates oversized tables deterministically (first rows kept, in
// order).
type Normalizer struct {
	maxRows int
}

// NewNormalizer creates a normalizer. maxRows of zero selects the
// default cap.
func NewNormalizer(maxRows int) *Normalizer {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	return &Normalizer{maxRows: maxRows}
}

// Normalize classifies raw into an outcome. A value outside the
// representable set yields a shape-class error, never a panic.
func (n *Normalizer) Normalize(raw interface{}) (*Outcome, error) {
	switch v := raw.(type) {
	case *table.Table:
		return n.normalizeTable(v)
	case *table.Series:
		return &Outcome{Shape: ShapeSeries, Series: v}, nil
	case nil, bool, int64, float64, string, time.Time:
		return &Outcome{Shape: ShapeScalar, Scalar: v}, nil
	case int:
		return &Outcome{Shape: ShapeScalar, Scalar: int64(v)}, nil
	case []interface{}:
		return normalizeList(v)
	case map[string]interface{}:
		if err := checkMapping(v, 0); err != nil {
			return nil, NewShapeError(err.Error())
		}
		return &Outcome{Shape: ShapeMapping, Mapping: v}, nil
	default:
		return nil, NewShapeError(fmt.Sprintf("result type %T cannot be represented", raw))
	}
}

func (n *Normalizer) normalizeTable(t *table.Table) (*Outcome, error) {
	total := t.NumRows()
	if total <= n.maxRows {
		return &Outcome{Shape: ShapeTable, Table: t}, nil
	}
	head, err := t.Head(n.maxRows)
	if err != nil {
		return nil, NewInternalError("failed to truncate table", err)
	}
	return &Outcome{
		Shape:     ShapeTable,
		Table:     head,
		Truncated: true,
		TotalRows: total,
	}, nil
}

// normalizeList turns a plain list into a positionally keyed series.
func normalizeList(items []interface{}) (*Outcome, error) {
	keys := make([]string, len(items))
	for i := range items {
		keys[i] = strconv.Itoa(i)
	}
	ser, err := table.NewSeries("result", keys, items)
	if err != nil {
		return nil, NewShapeError(fmt.Sprintf("list result cannot be represented: %v", err))
	}
	return &Outcome{Shape: ShapeSeries, Series: ser}, nil
}

const maxMappingDepth = 8

// checkMapping verifies a nested mapping stays within the representable
// value set and a sane depth.
func checkMapping(m map[string]interface{}, depth int) error {
	if depth > maxMappingDepth {
		return fmt.Errorf("mapping nests deeper than %d levels", maxMappingDepth)
	}
	for key, v := range m {
		switch x := v.(type) {
		case nil, bool, int64, float64, string, time.Time:
		case []interface{}:
			for _, item := range x {
				if nested, ok := item.(map[string]interface{}); ok {
					if err := checkMapping(nested, depth+1); err != nil {
						return err
					}
				}
			}
		case map[string]interface{}:
			if err := checkMapping(x, depth+1); err != nil {
				return err
			}
		default:
			return fmt.Errorf("mapping key %q holds unrepresentable type %T", key, v)
		}
	}
	return nil
}
