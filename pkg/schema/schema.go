// Package schema models the nested field tree of a strata file and
// normalizes it into a flat, stable list of leaf columns.
//
// Each leaf column carries its dotted path and the maximum repetition and
// definition levels used by the shredding and assembly algorithms. Levels
// are computed once at Build time and memoized on the column.
//
// Level arithmetic: an OPTIONAL field contributes one definition level
// (present vs null). A REPEATED field contributes one repetition level and
// two definition levels: one for the collection being present at all (an
// empty collection is still present) and one for an element existing. This
// keeps empty collections distinguishable from absent ones after a
// shred/assemble round trip. REQUIRED fields contribute nothing.
package schema

import (
	"strings"

	"github.com/strataio/strata/pkg/errors"
)

// Type is the semantic type of a leaf column.
type Type string

const (
	Boolean   Type = "BOOLEAN"
	Int32     Type = "INT32"
	Int64     Type = "INT64"
	Float     Type = "FLOAT"
	Double    Type = "DOUBLE"
	ByteArray Type = "BYTE_ARRAY"
	UTF8      Type = "UTF8"
)

// Repetition describes how many times a field may occur within its parent.
type Repetition string

const (
	Required Repetition = "REQUIRED"
	Optional Repetition = "OPTIONAL"
	Repeated Repetition = "REPEATED"
)

// MaxLevel bounds repetition and definition levels. Level streams store
// one byte per level, so schemas nesting beyond it are rejected at Build.
const MaxLevel = 255

var supportedTypes = map[Type]bool{
	Boolean:   true,
	Int32:     true,
	Int64:     true,
	Float:     true,
	Double:    true,
	ByteArray: true,
	UTF8:      true,
}

// Field is one node of the user-supplied field tree. A field is either a
// primitive leaf (Type set, no Fields) or a group (Fields set, no Type).
type Field struct {
	// Name is the field identifier, unique within its sibling scope
	Name string `json:"name"`

	// Type is the primitive type; empty for groups
	Type Type `json:"type,omitempty"`

	// Repetition defaults to REQUIRED when empty
	Repetition Repetition `json:"repetition,omitempty"`

	// Fields defines nested structure for group fields
	Fields []Field `json:"fields,omitempty"`

	// Encoding optionally pins the value encoding for a leaf ("PLAIN", "RLE").
	// Empty selects the default for the type.
	Encoding string `json:"encoding,omitempty"`
}

// Column is one leaf of the schema, annotated with its canonical position
// and memoized level bounds.
type Column struct {
	// Path from root to the leaf
	Path []string

	// Index is the canonical column position (depth-first order)
	Index int

	Type     Type
	Encoding string

	// MaxRepetitionLevel is the deepest repetition level entries of this
	// column can carry
	MaxRepetitionLevel int

	// MaxDefinitionLevel is the definition level of a fully present value
	MaxDefinitionLevel int
}

// DottedPath returns the path joined with dots, the column's identity in
// chunk metadata.
func (c *Column) DottedPath() string {
	return strings.Join(c.Path, ".")
}

// Element is a schema tree node with its level context resolved. The
// shredder and assembler walk Elements rather than raw Fields.
type Element struct {
	Name       string
	Type       Type
	Repetition Repetition
	Children   []*Element

	// RepLevel is the repetition level of entries produced at this element
	RepLevel int

	// DefLevel is the definition level of a fully present value or group
	// content at this element. For REPEATED elements this is the level of
	// an existing element; DefLevel-1 marks a present-but-empty collection.
	DefLevel int

	// Column is set for leaves
	Column *Column
}

// IsLeaf reports whether the element is a primitive column.
func (e *Element) IsLeaf() bool { return e.Column != nil }

// Schema is a validated, immutable field tree with its flattened leaf
// column list.
type Schema struct {
	elements []*Element
	fields   []Field
	columns  []*Column
	byPath   map[string]*Column
}

// Build validates a field tree and derives the flat leaf column list. The
// returned schema is immutable; the input slice is copied.
func Build(fields []Field) (*Schema, error) {
	if len(fields) == 0 {
		return nil, errors.New(errors.ErrorTypeInvalidSchema, "schema has no fields")
	}

	s := &Schema{
		fields: append([]Field(nil), fields...),
		byPath: make(map[string]*Column),
	}

	elements, err := s.buildLevel(s.fields, nil, 0, 0)
	if err != nil {
		return nil, err
	}
	s.elements = elements

	return s, nil
}

func (s *Schema) buildLevel(fields []Field, path []string, repLevel, defLevel int) ([]*Element, error) {
	seen := make(map[string]bool, len(fields))
	elements := make([]*Element, 0, len(fields))

	for i := range fields {
		f := &fields[i]
		if f.Name == "" {
			return nil, errors.New(errors.ErrorTypeInvalidSchema, "field with empty name").
				WithDetail("path", strings.Join(path, "."))
		}
		if seen[f.Name] {
			return nil, errors.Newf(errors.ErrorTypeInvalidSchema, "duplicate field name %q", f.Name).
				WithDetail("path", strings.Join(path, "."))
		}
		seen[f.Name] = true

		rep := f.Repetition
		if rep == "" {
			rep = Required
		}
		switch rep {
		case Required, Optional, Repeated:
		default:
			return nil, errors.Newf(errors.ErrorTypeInvalidSchema, "invalid repetition %q for field %q", rep, f.Name)
		}

		elem := &Element{
			Name:       f.Name,
			Type:       f.Type,
			Repetition: rep,
			RepLevel:   repLevel,
			DefLevel:   defLevel,
		}
		switch rep {
		case Optional:
			elem.DefLevel++
		case Repeated:
			elem.RepLevel++
			elem.DefLevel += 2
		}
		if elem.DefLevel > MaxLevel {
			return nil, errors.Newf(errors.ErrorTypeInvalidSchema,
				"field %q nests beyond the maximum definition level %d", f.Name, MaxLevel)
		}

		fieldPath := append(append([]string(nil), path...), f.Name)

		isGroup := len(f.Fields) > 0
		if isGroup && f.Type != "" {
			return nil, errors.Newf(errors.ErrorTypeInvalidSchema, "field %q has both a type and children", f.Name)
		}
		if !isGroup && f.Type == "" {
			return nil, errors.Newf(errors.ErrorTypeInvalidSchema, "field %q has neither a type nor children", f.Name)
		}

		if isGroup {
			children, err := s.buildLevel(f.Fields, fieldPath, elem.RepLevel, elem.DefLevel)
			if err != nil {
				return nil, err
			}
			elem.Children = children
		} else {
			if !supportedTypes[f.Type] {
				return nil, errors.Newf(errors.ErrorTypeInvalidSchema, "unsupported type %q for field %q", f.Type, f.Name)
			}
			col := &Column{
				Path:               fieldPath,
				Index:              len(s.columns),
				Type:               f.Type,
				Encoding:           f.Encoding,
				MaxRepetitionLevel: elem.RepLevel,
				MaxDefinitionLevel: elem.DefLevel,
			}
			elem.Column = col
			s.columns = append(s.columns, col)
			s.byPath[col.DottedPath()] = col
		}

		elements = append(elements, elem)
	}

	return elements, nil
}

// Elements returns the resolved schema tree.
func (s *Schema) Elements() []*Element { return s.elements }

// Fields returns a copy of the original field tree.
func (s *Schema) Fields() []Field { return append([]Field(nil), s.fields...) }

// Leaves returns the leaf columns in canonical (depth-first) order. The
// slice is shared; callers must not mutate it.
func (s *Schema) Leaves() []*Column { return s.columns }

// NumColumns returns the number of leaf columns.
func (s *Schema) NumColumns() int { return len(s.columns) }

// ColumnByPath looks up a leaf column by its dotted path.
func (s *Schema) ColumnByPath(path string) (*Column, bool) {
	c, ok := s.byPath[path]
	return c, ok
}
