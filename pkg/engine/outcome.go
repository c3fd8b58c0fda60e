package engine

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tabulark/tabulark/pkg/table"
)

// Shape is the closed tagset classifying an execution's result.
type Shape string

const (
	ShapeScalar  Shape = "Scalar"
	ShapeSeries  Shape = "Series"
	ShapeTable   Shape = "Table"
	ShapeMapping Shape = "Mapping"
	ShapeError   Shape = "Error"
)

// Outcome is the tagged result of one execution. Exactly one variant
// matching Shape is populated.
type Outcome struct {
	Shape Shape `json:"shape"`

	Scalar  interface{}            `json:"scalar,omitempty"`
	Series  *table.Series          `json:"-"`
	Table   *table.Table           `json:"-"`
	Mapping map[string]interface{} `json:"mapping,omitempty"`

	// ErrClass and ErrMessage are set for ShapeError.
	ErrClass   ErrorClass `json:"err_class,omitempty"`
	ErrMessage string     `json:"err_message,omitempty"`

	// Truncated is set when a tabular result exceeded the row cap and
	// was cut; TotalRows preserves the pre-truncation count.
	Truncated bool `json:"truncated,omitempty"`
	TotalRows int  `json:"total_rows,omitempty"`
}

// ErrorOutcome builds the Error variant from a classified failure.
func ErrorOutcome(err *EngineError) *Outcome {
	return &Outcome{
		Shape:      ShapeError,
		ErrClass:   err.Class,
		ErrMessage: err.Message,
	}
}

// IsError reports whether the outcome is the Error variant.
func (o *Outcome) IsError() bool { return o.Shape == ShapeError }

// Payload returns a transport-safe representation of the outcome:
// primitives pass through, tables become column names plus row records,
// series become ordered key/value pairs.
func (o *Outcome) Payload() map[string]interface{} {
	out := map[string]interface{}{"shape": string(o.Shape)}
	switch o.Shape {
	case ShapeScalar:
		out["value"] = scalarPayload(o.Scalar)
	case ShapeSeries:
		keys := o.Series.Keys()
		vals := o.Series.Values()
		entries := make([]map[string]interface{}, len(keys))
		for i := range keys {
			entries[i] = map[string]interface{}{
				"key":   keys[i],
				"value": scalarPayload(vals[i]),
			}
		}
		out["name"] = o.Series.Name()
		out["entries"] = entries
	case ShapeTable:
		records := o.Table.Records()
		for _, rec := range records {
			for k, v := range rec {
				rec[k] = scalarPayload(v)
			}
		}
		out["columns"] = o.Table.Columns()
		out["records"] = records
		if o.Truncated {
			out["truncated"] = true
			out["total_rows"] = o.TotalRows
		}
	case ShapeMapping:
		out["value"] = o.Mapping
	case ShapeError:
		out["error"] = map[string]interface{}{
			"class":   string(o.ErrClass),
			"message": o.ErrMessage,
		}
	}
	return out
}

// MarshalJSON serializes the transport-safe representation, so Table and
// Series outcomes carry their data across the wire instead of just the
// shape tag.
func (o *Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Payload())
}

func scalarPayload(v interface{}) interface{} {
	if ts, ok := v.(time.Time); ok {
		return ts.Format(time.RFC3339)
	}
	return v
}

// String gives a one-line description for logs.
func (o *Outcome) String() string {
	switch o.Shape {
	case ShapeScalar:
		return fmt.Sprintf("Scalar(%v)", o.Scalar)
	case ShapeSeries:
		return fmt.Sprintf("Series(%d entries)", o.Series.Len())
	case ShapeTable:
		if o.Truncated {
			return fmt.Sprintf("Table(%d rows, truncated from %d)", o.Table.NumRows(), o.TotalRows)
		}
		return fmt.Sprintf("Table(%d rows)", o.Table.NumRows())
	case ShapeMapping:
		return fmt.Sprintf("Mapping(%d keys)", len(o.Mapping))
	case ShapeError:
		return fmt.Sprintf("Error(%s: %s)", o.ErrClass, o.ErrMessage)
	}
	return string(o.Shape)
}
