package shred

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataio/strata/pkg/column"
	"github.com/strataio/strata/pkg/errors"
	"github.com/strataio/strata/pkg/schema"
)

func buildSchema(t *testing.T, fields []schema.Field) *schema.Schema {
	t.Helper()
	s, err := schema.Build(fields)
	require.NoError(t, err)
	return s
}

func newBuffers(s *schema.Schema) []*column.Buffer {
	buffers := make([]*column.Buffer, s.NumColumns())
	for i, col := range s.Leaves() {
		buffers[i] = column.NewBuffer(col)
	}
	return buffers
}

func TestShredFlatRecord(t *testing.T) {
	s := buildSchema(t, []schema.Field{
		{Name: "id", Type: schema.Int64, Repetition: schema.Required},
		{Name: "name", Type: schema.UTF8, Repetition: schema.Optional},
	})
	buffers := newBuffers(s)

	require.NoError(t, Shred(s, map[string]interface{}{"id": 1, "name": "ada"}, buffers))
	require.NoError(t, Shred(s, map[string]interface{}{"id": 2}, buffers))

	id, name := buffers[0], buffers[1]
	assert.Equal(t, []uint8{0, 0}, id.DefLevels())
	assert.Equal(t, int64(0), id.NullCount())

	assert.Equal(t, []uint8{1, 0}, name.DefLevels())
	assert.Equal(t, int64(1), name.NullCount())
	require.Len(t, name.Values(), 1)
	assert.Equal(t, "ada", name.Values()[0].Any())
}

func TestShredRepeatedLeaf(t *testing.T) {
	s := buildSchema(t, []schema.Field{
		{Name: "id", Type: schema.Int64, Repetition: schema.Required},
		{Name: "tags", Type: schema.UTF8, Repetition: schema.Repeated},
	})
	buffers := newBuffers(s)

	// Empty collection and a two-element collection must stay
	// distinguishable after a round trip.
	require.NoError(t, Shred(s, map[string]interface{}{"id": 1, "tags": []interface{}{}}, buffers))
	require.NoError(t, Shred(s, map[string]interface{}{"id": 2, "tags": []interface{}{"a", "b"}}, buffers))
	require.NoError(t, Shred(s, map[string]interface{}{"id": 3}, buffers))

	tags := buffers[1]
	assert.Equal(t, []uint8{0, 0, 1, 0}, tags.RepLevels())
	assert.Equal(t, []uint8{1, 2, 2, 0}, tags.DefLevels())
	require.Len(t, tags.Values(), 2)
	assert.Equal(t, "a", tags.Values()[0].Any())
	assert.Equal(t, "b", tags.Values()[1].Any())
	assert.Equal(t, int64(2), tags.NullCount())
}

func TestShredNestedGroups(t *testing.T) {
	s := buildSchema(t, []schema.Field{
		{Name: "name", Type: schema.UTF8, Repetition: schema.Required},
		{Name: "info", Repetition: schema.Optional, Fields: []schema.Field{
			{Name: "age", Type: schema.Int32, Repetition: schema.Optional},
			{Name: "emails", Type: schema.UTF8, Repetition: schema.Repeated},
		}},
	})
	buffers := newBuffers(s)

	require.NoError(t, Shred(s, map[string]interface{}{
		"name": "ada",
		"info": map[string]interface{}{"age": 36, "emails": []interface{}{"a@x", "b@x"}},
	}, buffers))
	// Null optional group: descent stops at the null point
	require.NoError(t, Shred(s, map[string]interface{}{"name": "bob"}, buffers))
	// Present group with an empty email list
	require.NoError(t, Shred(s, map[string]interface{}{
		"name": "eve",
		"info": map[string]interface{}{"emails": []interface{}{}},
	}, buffers))

	age := buffers[1]
	assert.Equal(t, []uint8{2, 0, 1}, age.DefLevels())

	emails := buffers[2]
	assert.Equal(t, []uint8{0, 1, 0, 0}, emails.RepLevels())
	assert.Equal(t, []uint8{3, 3, 0, 2}, emails.DefLevels())
}

func TestShredRepeatedGroup(t *testing.T) {
	s := buildSchema(t, []schema.Field{
		{Name: "points", Repetition: schema.Repeated, Fields: []schema.Field{
			{Name: "x", Type: schema.Double, Repetition: schema.Required},
			{Name: "y", Type: schema.Double, Repetition: schema.Optional},
		}},
	})
	buffers := newBuffers(s)

	require.NoError(t, Shred(s, map[string]interface{}{
		"points": []interface{}{
			map[string]interface{}{"x": 1.5, "y": 2.5},
			map[string]interface{}{"x": 3.0},
		},
	}, buffers))

	x, y := buffers[0], buffers[1]
	assert.Equal(t, []uint8{0, 1}, x.RepLevels())
	assert.Equal(t, []uint8{2, 2}, x.DefLevels())
	assert.Equal(t, []uint8{0, 1}, y.RepLevels())
	assert.Equal(t, []uint8{3, 2}, y.DefLevels())
	require.Len(t, y.Values(), 1)
	assert.Equal(t, 2.5, y.Values()[0].Any())
}

func TestShredRejectsBadRecords(t *testing.T) {
	s := buildSchema(t, []schema.Field{
		{Name: "id", Type: schema.Int64, Repetition: schema.Required},
		{Name: "tags", Type: schema.UTF8, Repetition: schema.Repeated},
	})

	tests := []struct {
		name   string
		record map[string]interface{}
	}{
		{"missing required", map[string]interface{}{"tags": []interface{}{"a"}}},
		{"unknown field", map[string]interface{}{"id": 1, "extra": true}},
		{"scalar for repeated", map[string]interface{}{"id": 1, "tags": "a"}},
		{"wrong leaf type", map[string]interface{}{"id": "one"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buffers := newBuffers(s)
			err := Shred(s, tt.record, buffers)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeSchemaMismatch), "got %v", err)
		})
	}
}

func TestShredAcceptsTypedSlices(t *testing.T) {
	s := buildSchema(t, []schema.Field{
		{Name: "tags", Type: schema.UTF8, Repetition: schema.Repeated},
	})
	buffers := newBuffers(s)

	require.NoError(t, Shred(s, map[string]interface{}{"tags": []string{"a", "b"}}, buffers))
	assert.Len(t, buffers[0].Values(), 2)
}

func columnData(b *column.Buffer) *ColumnData {
	return &ColumnData{
		Column:    b.Column(),
		RepLevels: b.RepLevels(),
		DefLevels: b.DefLevels(),
		Values:    b.Values(),
	}
}

func roundTrip(t *testing.T, s *schema.Schema, records []map[string]interface{}) []map[string]interface{} {
	t.Helper()
	buffers := newBuffers(s)
	for _, rec := range records {
		require.NoError(t, Shred(s, rec, buffers))
	}
	data := make([]*ColumnData, len(buffers))
	for i, b := range buffers {
		data[i] = columnData(b)
	}
	asm, err := NewAssembler(s, data)
	require.NoError(t, err)

	var out []map[string]interface{}
	for {
		rec, err := asm.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestRoundTripPreservesEmptyVsAbsent(t *testing.T) {
	s := buildSchema(t, []schema.Field{
		{Name: "id", Type: schema.Int64, Repetition: schema.Required},
		{Name: "tags", Type: schema.UTF8, Repetition: schema.Repeated},
	})

	got := roundTrip(t, s, []map[string]interface{}{
		{"id": int64(1), "tags": []interface{}{}},
		{"id": int64(2), "tags": []interface{}{"a", "b"}},
		{"id": int64(3)},
	})

	require.Len(t, got, 3)
	assert.Equal(t, map[string]interface{}{"id": int64(1), "tags": []interface{}{}}, got[0])
	assert.Equal(t, map[string]interface{}{"id": int64(2), "tags": []interface{}{"a", "b"}}, got[1])
	assert.Equal(t, map[string]interface{}{"id": int64(3)}, got[2])
}

func TestRoundTripNested(t *testing.T) {
	s := buildSchema(t, []schema.Field{
		{Name: "name", Type: schema.UTF8, Repetition: schema.Required},
		{Name: "info", Repetition: schema.Optional, Fields: []schema.Field{
			{Name: "age", Type: schema.Int32, Repetition: schema.Optional},
			{Name: "emails", Type: schema.UTF8, Repetition: schema.Repeated},
		}},
		{Name: "points", Repetition: schema.Repeated, Fields: []schema.Field{
			{Name: "x", Type: schema.Double, Repetition: schema.Required},
			{Name: "y", Type: schema.Double, Repetition: schema.Optional},
		}},
	})

	records := []map[string]interface{}{
		{
			"name": "ada",
			"info": map[string]interface{}{"age": int32(36), "emails": []interface{}{"a@x", "b@x"}},
			"points": []interface{}{
				map[string]interface{}{"x": 1.5, "y": 2.5},
				map[string]interface{}{"x": 3.0},
			},
		},
		{"name": "bob", "points": []interface{}{}},
		{"name": "eve", "info": map[string]interface{}{"emails": []interface{}{}}},
	}

	got := roundTrip(t, s, records)
	require.Len(t, got, 3)
	assert.Equal(t, records, got)
}

func TestAssembleProjection(t *testing.T) {
	s := buildSchema(t, []schema.Field{
		{Name: "id", Type: schema.Int64, Repetition: schema.Required},
		{Name: "tags", Type: schema.UTF8, Repetition: schema.Repeated},
	})
	buffers := newBuffers(s)
	require.NoError(t, Shred(s, map[string]interface{}{"id": int64(1), "tags": []interface{}{"a"}}, buffers))
	require.NoError(t, Shred(s, map[string]interface{}{"id": int64(2)}, buffers))

	asm, err := NewAssembler(s, []*ColumnData{columnData(buffers[0])})
	require.NoError(t, err)

	rec, err := asm.Next()
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"id": int64(1)}, rec)

	rec, err = asm.Next()
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"id": int64(2)}, rec)

	_, err = asm.Next()
	assert.Equal(t, io.EOF, err)
}

func TestAssembleMismatchedStreams(t *testing.T) {
	s := buildSchema(t, []schema.Field{
		{Name: "a", Type: schema.Int64, Repetition: schema.Required},
		{Name: "b", Type: schema.Int64, Repetition: schema.Required},
	})
	buffers := newBuffers(s)
	require.NoError(t, Shred(s, map[string]interface{}{"a": 1, "b": 2}, buffers))

	// Drop column b's only entry to desynchronize the streams.
	data := []*ColumnData{
		columnData(buffers[0]),
		{Column: buffers[1].Column()},
	}
	asm, err := NewAssembler(s, data)
	require.NoError(t, err)
	_, err = asm.Next()
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeCorruptFile))
}

func BenchmarkAssemble(b *testing.B) {
	s, err := schema.Build([]schema.Field{
		{Name: "id", Type: schema.Int64, Repetition: schema.Required},
		{Name: "tags", Type: schema.UTF8, Repetition: schema.Repeated},
	})
	if err != nil {
		b.Fatal(err)
	}
	buffers := make([]*column.Buffer, s.NumColumns())
	for i, col := range s.Leaves() {
		buffers[i] = column.NewBuffer(col)
	}
	for i := 0; i < 1000; i++ {
		record := map[string]interface{}{
			"id":   int64(i),
			"tags": []interface{}{"x", "y", "z"},
		}
		if err := Shred(s, record, buffers); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		data := make([]*ColumnData, len(buffers))
		for j, buf := range buffers {
			data[j] = columnData(buf)
		}
		asm, err := NewAssembler(s, data)
		if err != nil {
			b.Fatal(err)
		}
		for {
			if _, err := asm.Next(); err == io.EOF {
				break
			} else if err != nil {
				b.Fatal(err)
			}
		}
	}
}

func BenchmarkShred(b *testing.B) {
	s, err := schema.Build([]schema.Field{
		{Name: "id", Type: schema.Int64, Repetition: schema.Required},
		{Name: "name", Type: schema.UTF8, Repetition: schema.Optional},
		{Name: "tags", Type: schema.UTF8, Repetition: schema.Repeated},
	})
	if err != nil {
		b.Fatal(err)
	}
	buffers := newBuffers(s)
	record := map[string]interface{}{
		"id":   int64(7),
		"name": "benchmark",
		"tags": []interface{}{"x", "y", "z"},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := Shred(s, record, buffers); err != nil {
			b.Fatal(err)
		}
		if i%1024 == 0 {
			for _, buf := range buffers {
				buf.Reset()
			}
		}
	}
}
