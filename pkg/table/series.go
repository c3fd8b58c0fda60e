package table

import (
	"fmt"
	"math"
	"sort"
)

// Series is an ordered mapping from row keys to values, the one-dimensional
// labeled result shape (for example a single aggregated column keyed by
// group). Like Table it is never mutated after construction.
type Series struct {
	name string
	keys []string
	vals []interface{}
}

// NewSeries builds a series from parallel key and value slices.
func NewSeries(name string, keys []string, vals []interface{}) (*Series, error) {
	if len(keys) != len(vals) {
		return nil, fmt.Errorf("series %q: %d keys for %d values", name, len(keys), len(vals))
	}
	out := make([]interface{}, len(vals))
	for i, v := range vals {
		cell, err := normalizeCell(v)
		if err != nil {
			return nil, fmt.Errorf("series %q index %d: %w", name, i, err)
		}
		out[i] = cell
	}
	return &Series{
		name: name,
		keys: append([]string(nil), keys...),
		vals: out,
	}, nil
}

// Name returns the series name.
func (s *Series) Name() string { return s.name }

// Len returns the number of entries.
func (s *Series) Len() int { return len(s.keys) }

// Keys returns a copy of the ordered keys.
func (s *Series) Keys() []string { return append([]string(nil), s.keys...) }

// Values returns a copy of the ordered values.
func (s *Series) Values() []interface{} {
	return append([]interface{}(nil), s.vals...)
}

// At returns the (key, value) pair at position i.
func (s *Series) At(i int) (string, interface{}, error) {
	if i < 0 || i >= len(s.keys) {
		return "", nil, fmt.Errorf("series index %d out of range [0,%d)", i, len(s.keys))
	}
	return s.keys[i], s.vals[i], nil
}

// Get returns the value for key, or an error if the key is absent.
func (s *Series) Get(key string) (interface{}, error) {
	for i, k := range s.keys {
		if k == key {
			return s.vals[i], nil
		}
	}
	return nil, fmt.Errorf("series key %q not found", key)
}

// Reduce applies a named aggregate (sum, mean, median, min, max, count,
// std, var) over the series values.
func (s *Series) Reduce(fn string) (interface{}, error) {
	return aggregate(fn, s.vals)
}

func (s *Series) String() string {
	return fmt.Sprintf("series(%q, %d entries)", s.name, len(s.keys))
}

// aggregate applies a named aggregate function over cells. Nil cells are
// skipped; count counts non-nil cells.
func aggregate(fn string, cells []interface{}) (interface{}, error) {
	if fn == "count" {
		n := int64(0)
		for _, v := range cells {
			if v != nil {
				n++
			}
		}
		return n, nil
	}

	nums := make([]float64, 0, len(cells))
	allInt := true
	for _, v := range cells {
		switch x := v.(type) {
		case nil:
		case int64:
			nums = append(nums, float64(x))
		case float64:
			nums = append(nums, x)
			allInt = false
		default:
			return nil, fmt.Errorf("aggregate %q over non-numeric value %v", fn, v)
		}
	}
	if len(nums) == 0 {
		return nil, nil
	}

	switch fn {
	case "sum":
		total := 0.0
		for _, n := range nums {
			total += n
		}
		if allInt {
			return int64(total), nil
		}
		return total, nil
	case "mean":
		total := 0.0
		for _, n := range nums {
			total += n
		}
		return total / float64(len(nums)), nil
	case "median":
		sorted := append([]float64(nil), nums...)
		sort.Float64s(sorted)
		mid := len(sorted) / 2
		if len(sorted)%2 == 1 {
			return sorted[mid], nil
		}
		return (sorted[mid-1] + sorted[mid]) / 2, nil
	case "min":
		m := nums[0]
		for _, n := range nums[1:] {
			if n < m {
				m = n
			}
		}
		if allInt {
			return int64(m), nil
		}
		return m, nil
	case "max":
		m := nums[0]
		for _, n := range nums[1:] {
			if n > m {
				m = n
			}
		}
		if allInt {
			return int64(m), nil
		}
		return m, nil
	case "std", "var":
		if len(nums) < 2 {
			return 0.0, nil
		}
		mean := 0.0
		for _, n := range nums {
			mean += n
		}
		mean /= float64(len(nums))
		sq := 0.0
		for _, n := range nums {
			d := n - mean
			sq += d * d
		}
		variance := sq / float64(len(nums)-1)
		if fn == "var" {
			return variance, nil
		}
		return math.Sqrt(variance), nil
	default:
		return nil, fmt.Errorf("unknown aggregate function %q", fn)
	}
}
