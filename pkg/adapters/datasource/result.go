package datasource

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Result holds the rows returned by a query with their column order.
type Result struct {
	Columns []string `json:"columns"`
	Rows    []Row    `json:"rows"`
}

// NewResult returns an empty result for the given columns.
func NewResult(columns []string) *Result {
	return &Result{Columns: columns, Rows: make([]Row, 0)}
}

// Append adds a row. values must line up with Columns.
func (r *Result) Append(values []any) {
	normalized := make([]any, len(values))
	for i, v := range values {
		normalized[i] = normalizeValue(v)
	}
	r.Rows = append(r.Rows, Row{columns: r.Columns, values: normalized})
}

// RowCount returns the number of rows.
func (r *Result) RowCount() int {
	return len(r.Rows)
}

// First returns the first row, or an empty row when there is none.
func (r *Result) First() Row {
	if r == nil || len(r.Rows) == 0 {
		return Row{}
	}
	return r.Rows[0]
}

// Row is one result row with ordered field access.
type Row struct {
	columns []string
	values  []any
}

// NewRow builds a row from parallel column and value slices.
func NewRow(columns []string, values []any) Row {
	normalized := make([]any, len(values))
	for i, v := range values {
		normalized[i] = normalizeValue(v)
	}
	return Row{columns: columns, values: normalized}
}

// Len returns the number of fields.
func (r Row) Len() int {
	return len(r.values)
}

// Empty reports whether the row has no fields.
func (r Row) Empty() bool {
	return len(r.values) == 0
}

// Columns returns the field names in order.
func (r Row) Columns() []string {
	return r.columns
}

// At returns the i-th value.
func (r Row) At(i int) any {
	if i < 0 || i >= len(r.values) {
		return nil
	}
	return r.values[i]
}

// Get returns the value of the first field called name.
func (r Row) Get(name string) (any, bool) {
	for i, c := range r.columns {
		if c == name {
			return r.values[i], true
		}
	}
	return nil, false
}

// Int64 returns the i-th value as an integer. Drivers disagree on the Go
// type of COUNT(*), so every numeric kind plus decimal text is accepted.
func (r Row) Int64(i int) (int64, error) {
	switch v := r.At(i).(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case uint64:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %q as integer: %w", v, err)
		}
		return n, nil
	case nil:
		return 0, fmt.Errorf("field %d is NULL or missing", i)
	default:
		return 0, fmt.Errorf("field %d has unsupported type %T", i, v)
	}
}

// MarshalJSON renders the row as an object whose keys follow column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i >= len(r.values) {
			break
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, fmt.Errorf("marshal column %s: %w", col, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		return string(val)
	case [16]byte:
		// pgx decodes uuid columns to raw bytes.
		return uuid.UUID(val).String()
	default:
		return v
	}
}
