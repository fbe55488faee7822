package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFlatSchema(t *testing.T) {
	s, err := Build([]Field{
		{Name: "id", Type: Int64, Repetition: Required},
		{Name: "name", Type: UTF8, Repetition: Optional},
	})
	require.NoError(t, err)

	require.Equal(t, 2, s.NumColumns())
	leaves := s.Leaves()

	assert.Equal(t, "id", leaves[0].DottedPath())
	assert.Equal(t, 0, leaves[0].Index)
	assert.Equal(t, 0, leaves[0].MaxRepetitionLevel)
	assert.Equal(t, 0, leaves[0].MaxDefinitionLevel)

	assert.Equal(t, "name", leaves[1].DottedPath())
	assert.Equal(t, 1, leaves[1].Index)
	assert.Equal(t, 0, leaves[1].MaxRepetitionLevel)
	assert.Equal(t, 1, leaves[1].MaxDefinitionLevel)
}

func TestBuildRepeatedLevels(t *testing.T) {
	s, err := Build([]Field{
		{Name: "id", Type: Int64, Repetition: Required},
		{Name: "tags", Type: UTF8, Repetition: Repeated},
	})
	require.NoError(t, err)

	tags, ok := s.ColumnByPath("tags")
	require.True(t, ok)
	assert.Equal(t, 1, tags.MaxRepetitionLevel)
	assert.Equal(t, 2, tags.MaxDefinitionLevel)
}

func TestBuildNestedLevels(t *testing.T) {
	s, err := Build([]Field{
		{Name: "name", Type: UTF8, Repetition: Required},
		{Name: "info", Repetition: Optional, Fields: []Field{
			{Name: "age", Type: Int32, Repetition: Optional},
			{Name: "emails", Type: UTF8, Repetition: Repeated},
		}},
		{Name: "points", Repetition: Repeated, Fields: []Field{
			{Name: "x", Type: Double, Repetition: Required},
			{Name: "y", Type: Double, Repetition: Optional},
		}},
	})
	require.NoError(t, err)

	tests := []struct {
		path   string
		maxRep int
		maxDef int
	}{
		{"name", 0, 0},
		{"info.age", 0, 2},
		{"info.emails", 1, 3},
		{"points.x", 1, 2},
		{"points.y", 1, 3},
	}
	for _, tt := range tests {
		col, ok := s.ColumnByPath(tt.path)
		require.True(t, ok, tt.path)
		assert.Equal(t, tt.maxRep, col.MaxRepetitionLevel, "%s maxRep", tt.path)
		assert.Equal(t, tt.maxDef, col.MaxDefinitionLevel, "%s maxDef", tt.path)
	}
}

func TestBuildCanonicalOrder(t *testing.T) {
	s, err := Build([]Field{
		{Name: "a", Repetition: Required, Fields: []Field{
			{Name: "b", Type: Int32},
			{Name: "c", Repetition: Optional, Fields: []Field{
				{Name: "d", Type: Int32},
			}},
		}},
		{Name: "e", Type: Int32},
	})
	require.NoError(t, err)

	var paths []string
	for _, col := range s.Leaves() {
		paths = append(paths, col.DottedPath())
	}
	assert.Equal(t, []string{"a.b", "a.c.d", "e"}, paths)
	for i, col := range s.Leaves() {
		assert.Equal(t, i, col.Index)
	}
}

func TestBuildDefaultsToRequired(t *testing.T) {
	s, err := Build([]Field{{Name: "id", Type: Int64}})
	require.NoError(t, err)
	col, _ := s.ColumnByPath("id")
	assert.Equal(t, 0, col.MaxDefinitionLevel)
}

func TestBuildRejectsInvalidSchemas(t *testing.T) {
	tests := []struct {
		name   string
		fields []Field
	}{
		{"empty schema", nil},
		{"empty name", []Field{{Type: Int32}}},
		{"duplicate siblings", []Field{{Name: "a", Type: Int32}, {Name: "a", Type: Int64}}},
		{"type and children", []Field{{Name: "a", Type: Int32, Fields: []Field{{Name: "b", Type: Int32}}}}},
		{"neither type nor children", []Field{{Name: "a"}}},
		{"unsupported type", []Field{{Name: "a", Type: "DECIMAL"}}},
		{"invalid repetition", []Field{{Name: "a", Type: Int32, Repetition: "MAYBE"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Build(tt.fields)
			assert.Error(t, err)
		})
	}
}

func TestBuildRejectsExcessiveNesting(t *testing.T) {
	// Each repeated level adds two definition levels; 130 of them exceed
	// the 255 bound that keeps levels within a byte.
	f := Field{Name: "leaf", Type: Int32}
	for i := 0; i < 130; i++ {
		f = Field{Name: "g", Repetition: Repeated, Fields: []Field{f}}
	}
	_, err := Build([]Field{f})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum definition level")

	// A deep but in-bounds schema still builds.
	f = Field{Name: "leaf", Type: Int32}
	for i := 0; i < 100; i++ {
		f = Field{Name: "g", Repetition: Repeated, Fields: []Field{f}}
	}
	s, err := Build([]Field{f})
	require.NoError(t, err)
	assert.Equal(t, 200, s.Leaves()[0].MaxDefinitionLevel)
}

func TestBuildAllowsDuplicateNamesInDifferentScopes(t *testing.T) {
	_, err := Build([]Field{
		{Name: "a", Repetition: Required, Fields: []Field{{Name: "id", Type: Int32}}},
		{Name: "b", Repetition: Required, Fields: []Field{{Name: "id", Type: Int32}}},
	})
	assert.NoError(t, err)
}
