package column

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataio/strata/pkg/errors"
	"github.com/strataio/strata/pkg/schema"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name string
		typ  schema.Type
		in   interface{}
		want interface{}
	}{
		{"bool", schema.Boolean, true, true},
		{"int to int32", schema.Int32, 42, int32(42)},
		{"json number to int32", schema.Int32, float64(42), int32(42)},
		{"int to int64", schema.Int64, 42, int64(42)},
		{"uint32 to int64", schema.Int64, uint32(7), int64(7)},
		{"json number to int64", schema.Int64, float64(1e15), int64(1e15)},
		{"float64 to float", schema.Float, float64(1.5), float32(1.5)},
		{"float32 to double", schema.Double, float32(2.5), float64(2.5)},
		{"string", schema.UTF8, "hello", "hello"},
		{"bytes to utf8", schema.UTF8, []byte("hi"), "hi"},
		{"bytes", schema.ByteArray, []byte{1, 2}, []byte{1, 2}},
		{"string to bytes", schema.ByteArray, "ab", []byte("ab")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Coerce(tt.typ, tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v.Any())
		})
	}
}

func TestCoerceRejectsMismatches(t *testing.T) {
	tests := []struct {
		name string
		typ  schema.Type
		in   interface{}
	}{
		{"string as int", schema.Int64, "42"},
		{"fractional as int", schema.Int64, 1.5},
		{"int32 overflow", schema.Int32, int64(1) << 40},
		{"bool as string", schema.UTF8, true},
		{"number as bool", schema.Boolean, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Coerce(tt.typ, tt.in)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeSchemaMismatch))
		})
	}
}

func TestNullValue(t *testing.T) {
	v := Null()
	assert.True(t, v.IsNull())
	assert.Nil(t, v.Any())
}

func TestBufferCountsNulls(t *testing.T) {
	s, err := schema.Build([]schema.Field{
		{Name: "tags", Type: schema.UTF8, Repetition: schema.Repeated},
	})
	require.NoError(t, err)
	col := s.Leaves()[0]

	b := NewBuffer(col)
	b.Append(0, 2, StringValue("a"))
	b.Append(1, 2, StringValue("b"))
	b.Append(0, 1, Null())

	assert.Equal(t, int64(3), b.NumValues())
	assert.Equal(t, int64(1), b.NullCount())
	assert.Len(t, b.Values(), 2)
	assert.Equal(t, []uint8{0, 1, 0}, b.RepLevels())
	assert.Equal(t, []uint8{2, 2, 1}, b.DefLevels())
}

func TestBufferMarkRollback(t *testing.T) {
	s, err := schema.Build([]schema.Field{
		{Name: "id", Type: schema.Int64, Repetition: schema.Optional},
	})
	require.NoError(t, err)

	b := NewBuffer(s.Leaves()[0])
	b.Append(0, 1, Int64Value(1))

	m := b.Mark()
	b.Append(0, 1, Int64Value(2))
	b.Append(0, 0, Null())
	b.Rollback(m)

	assert.Equal(t, int64(1), b.NumValues())
	assert.Equal(t, int64(0), b.NullCount())
	assert.Len(t, b.Values(), 1)
}

func TestBufferReset(t *testing.T) {
	s, err := schema.Build([]schema.Field{
		{Name: "id", Type: schema.Int64},
	})
	require.NoError(t, err)

	b := NewBuffer(s.Leaves()[0])
	b.Append(0, 0, Int64Value(1))
	b.Reset()

	assert.Equal(t, int64(0), b.NumValues())
	assert.Equal(t, int64(0), b.ByteSize())
}
