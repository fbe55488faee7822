package format

import (
	"context"

	"github.com/apache/thrift/lib/go/thrift"

	"github.com/strataio/strata/pkg/errors"
)

// Marshal serializes the footer with the Thrift compact protocol.
func (m *FileMetaData) Marshal() ([]byte, error) {
	ctx := context.Background()
	buf := thrift.NewTMemoryBuffer()
	p := thrift.NewTCompactProtocolConf(buf, &thrift.TConfiguration{})

	if err := m.write(ctx, p); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to serialize footer")
	}
	if err := p.Flush(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to flush footer serialization")
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a footer serialized with the Thrift compact protocol.
func (m *FileMetaData) Unmarshal(data []byte) error {
	ctx := context.Background()
	buf := thrift.NewTMemoryBuffer()
	if _, err := buf.Write(data); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to buffer footer bytes")
	}
	p := thrift.NewTCompactProtocolConf(buf, &thrift.TConfiguration{})

	if err := m.read(ctx, p); err != nil {
		return errors.Wrap(err, errors.ErrorTypeCorruptFile, "failed to decode footer")
	}
	return nil
}

func (m *FileMetaData) write(ctx context.Context, p thrift.TProtocol) error {
	if err := p.WriteStructBegin(ctx, "FileMetaData"); err != nil {
		return err
	}
	if err := writeI32Field(ctx, p, "version", 1, m.Version); err != nil {
		return err
	}

	if err := p.WriteFieldBegin(ctx, "schema", thrift.LIST, 2); err != nil {
		return err
	}
	if err := p.WriteListBegin(ctx, thrift.STRUCT, len(m.Schema)); err != nil {
		return err
	}
	for _, se := range m.Schema {
		if err := se.write(ctx, p); err != nil {
			return err
		}
	}
	if err := p.WriteListEnd(ctx); err != nil {
		return err
	}
	if err := p.WriteFieldEnd(ctx); err != nil {
		return err
	}

	if err := writeI64Field(ctx, p, "num_rows", 3, m.NumRows); err != nil {
		return err
	}

	if err := p.WriteFieldBegin(ctx, "row_groups", thrift.LIST, 4); err != nil {
		return err
	}
	if err := p.WriteListBegin(ctx, thrift.STRUCT, len(m.RowGroups)); err != nil {
		return err
	}
	for _, rg := range m.RowGroups {
		if err := rg.write(ctx, p); err != nil {
			return err
		}
	}
	if err := p.WriteListEnd(ctx); err != nil {
		return err
	}
	if err := p.WriteFieldEnd(ctx); err != nil {
		return err
	}

	if m.CreatedBy != "" {
		if err := writeStringField(ctx, p, "created_by", 6, m.CreatedBy); err != nil {
			return err
		}
	}

	if err := p.WriteFieldStop(ctx); err != nil {
		return err
	}
	return p.WriteStructEnd(ctx)
}

func (m *FileMetaData) read(ctx context.Context, p thrift.TProtocol) error {
	if _, err := p.ReadStructBegin(ctx); err != nil {
		return err
	}
	for {
		_, typeID, id, err := p.ReadFieldBegin(ctx)
		if err != nil {
			return err
		}
		if typeID == thrift.STOP {
			break
		}
		switch id {
		case 1:
			if m.Version, err = p.ReadI32(ctx); err != nil {
				return err
			}
		case 2:
			if m.Schema, err = readSchemaElements(ctx, p); err != nil {
				return err
			}
		case 3:
			if m.NumRows, err = p.ReadI64(ctx); err != nil {
				return err
			}
		case 4:
			if m.RowGroups, err = readRowGroups(ctx, p); err != nil {
				return err
			}
		case 6:
			if m.CreatedBy, err = p.ReadString(ctx); err != nil {
				return err
			}
		default:
			if err = p.Skip(ctx, typeID); err != nil {
				return err
			}
		}
		if err = p.ReadFieldEnd(ctx); err != nil {
			return err
		}
	}
	return p.ReadStructEnd(ctx)
}

func (se *SchemaElement) write(ctx context.Context, p thrift.TProtocol) error {
	if err := p.WriteStructBegin(ctx, "SchemaElement"); err != nil {
		return err
	}
	if se.Type != nil {
		if err := writeI32Field(ctx, p, "type", 1, int32(*se.Type)); err != nil {
			return err
		}
	}
	if se.RepetitionType != nil {
		if err := writeI32Field(ctx, p, "repetition_type", 3, int32(*se.RepetitionType)); err != nil {
			return err
		}
	}
	if err := writeStringField(ctx, p, "name", 4, se.Name); err != nil {
		return err
	}
	if se.NumChildren > 0 {
		if err := writeI32Field(ctx, p, "num_children", 5, se.NumChildren); err != nil {
			return err
		}
	}
	if se.ConvertedType != nil {
		if err := writeI32Field(ctx, p, "converted_type", 6, int32(*se.ConvertedType)); err != nil {
			return err
		}
	}
	if err := p.WriteFieldStop(ctx); err != nil {
		return err
	}
	return p.WriteStructEnd(ctx)
}

func readSchemaElements(ctx context.Context, p thrift.TProtocol) ([]*SchemaElement, error) {
	_, size, err := p.ReadListBegin(ctx)
	if err != nil {
		return nil, err
	}
	elements := make([]*SchemaElement, 0, size)
	for i := 0; i < size; i++ {
		se := &SchemaElement{}
		if err := se.read(ctx, p); err != nil {
			return nil, err
		}
		elements = append(elements, se)
	}
	return elements, p.ReadListEnd(ctx)
}

func (se *SchemaElement) read(ctx context.Context, p thrift.TProtocol) error {
	if _, err := p.ReadStructBegin(ctx); err != nil {
		return err
	}
	for {
		_, typeID, id, err := p.ReadFieldBegin(ctx)
		if err != nil {
			return err
		}
		if typeID == thrift.STOP {
			break
		}
		switch id {
		case 1:
			v, err := p.ReadI32(ctx)
			if err != nil {
				return err
			}
			t := Type(v)
			se.Type = &t
		case 3:
			v, err := p.ReadI32(ctx)
			if err != nil {
				return err
			}
			r := Repetition(v)
			se.RepetitionType = &r
		case 4:
			if se.Name, err = p.ReadString(ctx); err != nil {
				return err
			}
		case 5:
			if se.NumChildren, err = p.ReadI32(ctx); err != nil {
				return err
			}
		case 6:
			v, err := p.ReadI32(ctx)
			if err != nil {
				return err
			}
			ct := ConvertedType(v)
			se.ConvertedType = &ct
		default:
			if err = p.Skip(ctx, typeID); err != nil {
				return err
			}
		}
		if err = p.ReadFieldEnd(ctx); err != nil {
			return err
		}
	}
	return p.ReadStructEnd(ctx)
}

func (rg *RowGroup) write(ctx context.Context, p thrift.TProtocol) error {
	if err := p.WriteStructBegin(ctx, "RowGroup"); err != nil {
		return err
	}
	if err := p.WriteFieldBegin(ctx, "columns", thrift.LIST, 1); err != nil {
		return err
	}
	if err := p.WriteListBegin(ctx, thrift.STRUCT, len(rg.Columns)); err != nil {
		return err
	}
	for _, cc := range rg.Columns {
		if err := cc.write(ctx, p); err != nil {
			return err
		}
	}
	if err := p.WriteListEnd(ctx); err != nil {
		return err
	}
	if err := p.WriteFieldEnd(ctx); err != nil {
		return err
	}
	if err := writeI64Field(ctx, p, "total_byte_size", 2, rg.TotalByteSize); err != nil {
		return err
	}
	if err := writeI64Field(ctx, p, "num_rows", 3, rg.NumRows); err != nil {
		return err
	}
	if err := p.WriteFieldStop(ctx); err != nil {
		return err
	}
	return p.WriteStructEnd(ctx)
}

func readRowGroups(ctx context.Context, p thrift.TProtocol) ([]*RowGroup, error) {
	_, size, err := p.ReadListBegin(ctx)
	if err != nil {
		return nil, err
	}
	groups := make([]*RowGroup, 0, size)
	for i := 0; i < size; i++ {
		rg := &RowGroup{}
		if err := rg.read(ctx, p); err != nil {
			return nil, err
		}
		groups = append(groups, rg)
	}
	return groups, p.ReadListEnd(ctx)
}

func (rg *RowGroup) read(ctx context.Context, p thrift.TProtocol) error {
	if _, err := p.ReadStructBegin(ctx); err != nil {
		return err
	}
	for {
		_, typeID, id, err := p.ReadFieldBegin(ctx)
		if err != nil {
			return err
		}
		if typeID == thrift.STOP {
			break
		}
		switch id {
		case 1:
			_, size, err := p.ReadListBegin(ctx)
			if err != nil {
				return err
			}
			rg.Columns = make([]*ColumnChunk, 0, size)
			for i := 0; i < size; i++ {
				cc := &ColumnChunk{}
				if err := cc.read(ctx, p); err != nil {
					return err
				}
				rg.Columns = append(rg.Columns, cc)
			}
			if err := p.ReadListEnd(ctx); err != nil {
				return err
			}
		case 2:
			if rg.TotalByteSize, err = p.ReadI64(ctx); err != nil {
				return err
			}
		case 3:
			if rg.NumRows, err = p.ReadI64(ctx); err != nil {
				return err
			}
		default:
			if err = p.Skip(ctx, typeID); err != nil {
				return err
			}
		}
		if err = p.ReadFieldEnd(ctx); err != nil {
			return err
		}
	}
	return p.ReadStructEnd(ctx)
}

func (cc *ColumnChunk) write(ctx context.Context, p thrift.TProtocol) error {
	if err := p.WriteStructBegin(ctx, "ColumnChunk"); err != nil {
		return err
	}
	if err := writeI64Field(ctx, p, "file_offset", 2, cc.FileOffset); err != nil {
		return err
	}
	if cc.MetaData != nil {
		if err := p.WriteFieldBegin(ctx, "meta_data", thrift.STRUCT, 3); err != nil {
			return err
		}
		if err := cc.MetaData.write(ctx, p); err != nil {
			return err
		}
		if err := p.WriteFieldEnd(ctx); err != nil {
			return err
		}
	}
	if err := p.WriteFieldStop(ctx); err != nil {
		return err
	}
	return p.WriteStructEnd(ctx)
}

func (cc *ColumnChunk) read(ctx context.Context, p thrift.TProtocol) error {
	if _, err := p.ReadStructBegin(ctx); err != nil {
		return err
	}
	for {
		_, typeID, id, err := p.ReadFieldBegin(ctx)
		if err != nil {
			return err
		}
		if typeID == thrift.STOP {
			break
		}
		switch id {
		case 2:
			if cc.FileOffset, err = p.ReadI64(ctx); err != nil {
				return err
			}
		case 3:
			cc.MetaData = &ColumnMetaData{}
			if err := cc.MetaData.read(ctx, p); err != nil {
				return err
			}
		default:
			if err = p.Skip(ctx, typeID); err != nil {
				return err
			}
		}
		if err = p.ReadFieldEnd(ctx); err != nil {
			return err
		}
	}
	return p.ReadStructEnd(ctx)
}

func (md *ColumnMetaData) write(ctx context.Context, p thrift.TProtocol) error {
	if err := p.WriteStructBegin(ctx, "ColumnMetaData"); err != nil {
		return err
	}
	if err := writeI32Field(ctx, p, "type", 1, int32(md.Type)); err != nil {
		return err
	}

	if err := p.WriteFieldBegin(ctx, "encodings", thrift.LIST, 2); err != nil {
		return err
	}
	if err := p.WriteListBegin(ctx, thrift.I32, len(md.Encodings)); err != nil {
		return err
	}
	for _, e := range md.Encodings {
		if err := p.WriteI32(ctx, int32(e)); err != nil {
			return err
		}
	}
	if err := p.WriteListEnd(ctx); err != nil {
		return err
	}
	if err := p.WriteFieldEnd(ctx); err != nil {
		return err
	}

	if err := p.WriteFieldBegin(ctx, "path_in_schema", thrift.LIST, 3); err != nil {
		return err
	}
	if err := p.WriteListBegin(ctx, thrift.STRING, len(md.PathInSchema)); err != nil {
		return err
	}
	for _, part := range md.PathInSchema {
		if err := p.WriteString(ctx, part); err != nil {
			return err
		}
	}
	if err := p.WriteListEnd(ctx); err != nil {
		return err
	}
	if err := p.WriteFieldEnd(ctx); err != nil {
		return err
	}

	if err := writeI32Field(ctx, p, "codec", 4, int32(md.Codec)); err != nil {
		return err
	}
	if err := writeI64Field(ctx, p, "num_values", 5, md.NumValues); err != nil {
		return err
	}
	if err := writeI64Field(ctx, p, "total_uncompressed_size", 6, md.TotalUncompressedSize); err != nil {
		return err
	}
	if err := writeI64Field(ctx, p, "total_compressed_size", 7, md.TotalCompressedSize); err != nil {
		return err
	}
	if err := writeI64Field(ctx, p, "data_page_offset", 9, md.DataPageOffset); err != nil {
		return err
	}

	if md.Statistics != nil {
		if err := p.WriteFieldBegin(ctx, "statistics", thrift.STRUCT, 12); err != nil {
			return err
		}
		if err := md.Statistics.write(ctx, p); err != nil {
			return err
		}
		if err := p.WriteFieldEnd(ctx); err != nil {
			return err
		}
	}

	if err := p.WriteFieldStop(ctx); err != nil {
		return err
	}
	return p.WriteStructEnd(ctx)
}

func (md *ColumnMetaData) read(ctx context.Context, p thrift.TProtocol) error {
	if _, err := p.ReadStructBegin(ctx); err != nil {
		return err
	}
	for {
		_, typeID, id, err := p.ReadFieldBegin(ctx)
		if err != nil {
			return err
		}
		if typeID == thrift.STOP {
			break
		}
		switch id {
		case 1:
			v, err := p.ReadI32(ctx)
			if err != nil {
				return err
			}
			md.Type = Type(v)
		case 2:
			_, size, err := p.ReadListBegin(ctx)
			if err != nil {
				return err
			}
			md.Encodings = make([]Encoding, 0, size)
			for i := 0; i < size; i++ {
				v, err := p.ReadI32(ctx)
				if err != nil {
					return err
				}
				md.Encodings = append(md.Encodings, Encoding(v))
			}
			if err := p.ReadListEnd(ctx); err != nil {
				return err
			}
		case 3:
			_, size, err := p.ReadListBegin(ctx)
			if err != nil {
				return err
			}
			md.PathInSchema = make([]string, 0, size)
			for i := 0; i < size; i++ {
				part, err := p.ReadString(ctx)
				if err != nil {
					return err
				}
				md.PathInSchema = append(md.PathInSchema, part)
			}
			if err := p.ReadListEnd(ctx); err != nil {
				return err
			}
		case 4:
			v, err := p.ReadI32(ctx)
			if err != nil {
				return err
			}
			md.Codec = CompressionCodec(v)
		case 5:
			if md.NumValues, err = p.ReadI64(ctx); err != nil {
				return err
			}
		case 6:
			if md.TotalUncompressedSize, err = p.ReadI64(ctx); err != nil {
				return err
			}
		case 7:
			if md.TotalCompressedSize, err = p.ReadI64(ctx); err != nil {
				return err
			}
		case 9:
			if md.DataPageOffset, err = p.ReadI64(ctx); err != nil {
				return err
			}
		case 12:
			md.Statistics = &Statistics{}
			if err := md.Statistics.read(ctx, p); err != nil {
				return err
			}
		default:
			if err = p.Skip(ctx, typeID); err != nil {
				return err
			}
		}
		if err = p.ReadFieldEnd(ctx); err != nil {
			return err
		}
	}
	return p.ReadStructEnd(ctx)
}

func (st *Statistics) write(ctx context.Context, p thrift.TProtocol) error {
	if err := p.WriteStructBegin(ctx, "Statistics"); err != nil {
		return err
	}
	if err := writeI64Field(ctx, p, "null_count", 3, st.NullCount); err != nil {
		return err
	}
	if err := p.WriteFieldStop(ctx); err != nil {
		return err
	}
	return p.WriteStructEnd(ctx)
}

func (st *Statistics) read(ctx context.Context, p thrift.TProtocol) error {
	if _, err := p.ReadStructBegin(ctx); err != nil {
		return err
	}
	for {
		_, typeID, id, err := p.ReadFieldBegin(ctx)
		if err != nil {
			return err
		}
		if typeID == thrift.STOP {
			break
		}
		switch id {
		case 3:
			if st.NullCount, err = p.ReadI64(ctx); err != nil {
				return err
			}
		default:
			if err = p.Skip(ctx, typeID); err != nil {
				return err
			}
		}
		if err = p.ReadFieldEnd(ctx); err != nil {
			return err
		}
	}
	return p.ReadStructEnd(ctx)
}

func writeI32Field(ctx context.Context, p thrift.TProtocol, name string, id int16, v int32) error {
	if err := p.WriteFieldBegin(ctx, name, thrift.I32, id); err != nil {
		return err
	}
	if err := p.WriteI32(ctx, v); err != nil {
		return err
	}
	return p.WriteFieldEnd(ctx)
}

func writeI64Field(ctx context.Context, p thrift.TProtocol, name string, id int16, v int64) error {
	if err := p.WriteFieldBegin(ctx, name, thrift.I64, id); err != nil {
		return err
	}
	if err := p.WriteI64(ctx, v); err != nil {
		return err
	}
	return p.WriteFieldEnd(ctx)
}

func writeStringField(ctx context.Context, p thrift.TProtocol, name string, id int16, v string) error {
	if err := p.WriteFieldBegin(ctx, name, thrift.STRING, id); err != nil {
		return err
	}
	if err := p.WriteString(ctx, v); err != nil {
		return err
	}
	return p.WriteFieldEnd(ctx)
}
