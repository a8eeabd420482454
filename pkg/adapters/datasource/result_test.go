package datasource

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRow_MarshalJSONKeepsColumnOrder(t *testing.T) {
	result := NewResult([]string{"zeta", "alpha", "note"})
	result.Append([]any{int64(3), "x", []byte("raw bytes")})

	data, err := json.Marshal(result.First())
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":3,"alpha":"x","note":"raw bytes"}`, string(data))
}

func TestRow_EmptyMarshalsToObject(t *testing.T) {
	result := NewResult([]string{"count"})

	data, err := json.Marshal(result.First())
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
	assert.True(t, result.First().Empty())

	var nilResult *Result
	assert.True(t, nilResult.First().Empty())
}

func TestRow_UUIDBytesRenderAsText(t *testing.T) {
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	row := NewRow([]string{"id"}, []any{[16]byte(id)})

	v, ok := row.Get("id")
	require.True(t, ok)
	assert.Equal(t, id.String(), v)
}

func TestRow_Int64(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		want    int64
		wantErr bool
	}{
		{"int64", int64(5), 5, false},
		{"int32", int32(5), 5, false},
		{"float64", float64(5), 5, false},
		{"bytes", []byte("12"), 12, false},
		{"string", "12", 12, false},
		{"nil", nil, 0, true},
		{"bad string", "many", 0, true},
		{"bool", true, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := NewRow([]string{"count"}, []any{tt.value})
			got, err := row.Int64(0)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRow_Accessors(t *testing.T) {
	row := NewRow([]string{"a", "b"}, []any{1, "two"})
	assert.Equal(t, 2, row.Len())
	assert.Equal(t, []string{"a", "b"}, row.Columns())
	assert.Equal(t, "two", row.At(1))
	assert.Nil(t, row.At(5))

	_, ok := row.Get("missing")
	assert.False(t, ok)
}
