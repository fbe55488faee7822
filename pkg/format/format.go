// Package format defines the persisted footer metadata of a strata file and
// its Thrift compact-protocol serialization.
//
// The structures and field ids mirror the Apache Parquet footer
// (parquet.thrift), so the footer of a strata file can be decoded by
// external Parquet tooling. Files carry the standard "PAR1" magic at both
// ends, with the footer length as a little-endian uint32 directly before
// the trailing magic.
package format

import (
	"github.com/strataio/strata/pkg/errors"
	"github.com/strataio/strata/pkg/schema"
)

// Magic is the four-byte marker at the start and end of a file.
const Magic = "PAR1"

// FooterSuffixSize is the length of the footer-length word plus the
// trailing magic.
const FooterSuffixSize = 8

// Type is the persisted physical type id of a column.
type Type int32

const (
	TypeBoolean   Type = 0
	TypeInt32     Type = 1
	TypeInt64     Type = 2
	TypeFloat     Type = 4
	TypeDouble    Type = 5
	TypeByteArray Type = 6
)

// ConvertedType annotates a physical type with semantic meaning.
type ConvertedType int32

// ConvertedTypeUTF8 marks a BYTE_ARRAY column as UTF8 text.
const ConvertedTypeUTF8 ConvertedType = 0

// Repetition is the persisted repetition id of a schema element.
type Repetition int32

const (
	RepetitionRequired Repetition = 0
	RepetitionOptional Repetition = 1
	RepetitionRepeated Repetition = 2
)

// Encoding identifies a value encoding. The registry is closed: ids are
// persisted per chunk and must stay stable across files.
type Encoding int32

const (
	EncodingPlain Encoding = 0
	EncodingRLE   Encoding = 3
)

// String returns the encoding name.
func (e Encoding) String() string {
	switch e {
	case EncodingPlain:
		return "PLAIN"
	case EncodingRLE:
		return "RLE"
	default:
		return "UNKNOWN"
	}
}

// CompressionCodec identifies a block compression algorithm.
type CompressionCodec int32

const (
	CodecUncompressed CompressionCodec = 0
	CodecSnappy       CompressionCodec = 1
	CodecGzip         CompressionCodec = 2
	CodecBrotli       CompressionCodec = 4
	CodecLZ4          CompressionCodec = 5
	CodecZstd         CompressionCodec = 6
)

// String returns the codec name.
func (c CompressionCodec) String() string {
	switch c {
	case CodecUncompressed:
		return "UNCOMPRESSED"
	case CodecSnappy:
		return "SNAPPY"
	case CodecGzip:
		return "GZIP"
	case CodecBrotli:
		return "BROTLI"
	case CodecLZ4:
		return "LZ4"
	case CodecZstd:
		return "ZSTD"
	default:
		return "UNKNOWN"
	}
}

// SchemaElement is one node of the flattened (depth-first) schema tree.
type SchemaElement struct {
	Type           *Type
	RepetitionType *Repetition
	Name           string
	NumChildren    int32
	ConvertedType  *ConvertedType
}

// Statistics carries per-chunk value statistics.
type Statistics struct {
	NullCount int64
}

// ColumnMetaData describes one sealed column chunk.
type ColumnMetaData struct {
	Type                  Type
	Encodings             []Encoding
	PathInSchema          []string
	Codec                 CompressionCodec
	NumValues             int64
	TotalUncompressedSize int64
	TotalCompressedSize   int64
	DataPageOffset        int64
	Statistics            *Statistics
}

// ColumnChunk pairs a chunk's file offset with its metadata.
type ColumnChunk struct {
	FileOffset int64
	MetaData   *ColumnMetaData
}

// RowGroup indexes the column chunks of one horizontal partition.
type RowGroup struct {
	Columns       []*ColumnChunk
	TotalByteSize int64
	NumRows       int64
}

// FileMetaData is the file footer: schema, row-group index and provenance.
type FileMetaData struct {
	Version   int32
	Schema    []*SchemaElement
	NumRows   int64
	RowGroups []*RowGroup
	CreatedBy string
}

// RootName is the name given to the root schema element.
const RootName = "schema"

// SchemaElements flattens a schema into its persisted depth-first form,
// starting with a root element holding the top-level child count.
func SchemaElements(s *schema.Schema) []*SchemaElement {
	elements := []*SchemaElement{{
		Name:        RootName,
		NumChildren: int32(len(s.Elements())),
	}}
	for _, e := range s.Elements() {
		elements = appendElement(elements, e)
	}
	return elements
}

func appendElement(elements []*SchemaElement, e *schema.Element) []*SchemaElement {
	rep := repetitionOf(e.Repetition)
	se := &SchemaElement{
		Name:           e.Name,
		RepetitionType: &rep,
	}
	if e.IsLeaf() {
		t, ct := physicalTypeOf(e.Type)
		se.Type = &t
		se.ConvertedType = ct
	} else {
		se.NumChildren = int32(len(e.Children))
	}
	elements = append(elements, se)
	for _, child := range e.Children {
		elements = appendElement(elements, child)
	}
	return elements
}

// SchemaFromElements rebuilds a schema from its persisted flattened form.
func SchemaFromElements(elements []*SchemaElement) (*schema.Schema, error) {
	if len(elements) == 0 {
		return nil, errors.New(errors.ErrorTypeCorruptFile, "footer schema is empty")
	}
	root := elements[0]
	if root.NumChildren <= 0 {
		return nil, errors.New(errors.ErrorTypeCorruptFile, "footer schema root has no children")
	}
	fields, rest, err := readFields(elements[1:], int(root.NumChildren))
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, errors.Newf(errors.ErrorTypeCorruptFile, "footer schema has %d trailing elements", len(rest))
	}
	s, err := schema.Build(fields)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorruptFile, "footer schema is invalid")
	}
	return s, nil
}

func readFields(elements []*SchemaElement, count int) ([]schema.Field, []*SchemaElement, error) {
	fields := make([]schema.Field, 0, count)
	for i := 0; i < count; i++ {
		if len(elements) == 0 {
			return nil, nil, errors.New(errors.ErrorTypeCorruptFile, "footer schema is truncated")
		}
		se := elements[0]
		elements = elements[1:]

		f := schema.Field{Name: se.Name}
		if se.RepetitionType != nil {
			switch *se.RepetitionType {
			case RepetitionRequired:
				f.Repetition = schema.Required
			case RepetitionOptional:
				f.Repetition = schema.Optional
			case RepetitionRepeated:
				f.Repetition = schema.Repeated
			default:
				return nil, nil, errors.Newf(errors.ErrorTypeCorruptFile, "unknown repetition id %d", *se.RepetitionType)
			}
		}

		if se.NumChildren > 0 {
			children, rest, err := readFields(elements, int(se.NumChildren))
			if err != nil {
				return nil, nil, err
			}
			f.Fields = children
			elements = rest
		} else {
			if se.Type == nil {
				return nil, nil, errors.Newf(errors.ErrorTypeCorruptFile, "leaf element %q has no type", se.Name)
			}
			t, err := semanticTypeOf(*se.Type, se.ConvertedType)
			if err != nil {
				return nil, nil, err
			}
			f.Type = t
		}
		fields = append(fields, f)
	}
	return fields, elements, nil
}

func repetitionOf(r schema.Repetition) Repetition {
	switch r {
	case schema.Optional:
		return RepetitionOptional
	case schema.Repeated:
		return RepetitionRepeated
	default:
		return RepetitionRequired
	}
}

func physicalTypeOf(t schema.Type) (Type, *ConvertedType) {
	switch t {
	case schema.Boolean:
		return TypeBoolean, nil
	case schema.Int32:
		return TypeInt32, nil
	case schema.Int64:
		return TypeInt64, nil
	case schema.Float:
		return TypeFloat, nil
	case schema.Double:
		return TypeDouble, nil
	case schema.UTF8:
		utf8 := ConvertedTypeUTF8
		return TypeByteArray, &utf8
	default:
		return TypeByteArray, nil
	}
}

func semanticTypeOf(t Type, ct *ConvertedType) (schema.Type, error) {
	switch t {
	case TypeBoolean:
		return schema.Boolean, nil
	case TypeInt32:
		return schema.Int32, nil
	case TypeInt64:
		return schema.Int64, nil
	case TypeFloat:
		return schema.Float, nil
	case TypeDouble:
		return schema.Double, nil
	case TypeByteArray:
		if ct != nil && *ct == ConvertedTypeUTF8 {
			return schema.UTF8, nil
		}
		return schema.ByteArray, nil
	default:
		return "", errors.Newf(errors.ErrorTypeUnsupportedFormat, "unknown physical type id %d", t)
	}
}

// PhysicalType returns the persisted type id for a semantic type.
func PhysicalType(t schema.Type) Type {
	pt, _ := physicalTypeOf(t)
	return pt
}
