package encoding

import (
	"encoding/binary"
	"math"

	"github.com/strataio/strata/pkg/column"
	"github.com/strataio/strata/pkg/errors"
	"github.com/strataio/strata/pkg/format"
	"github.com/strataio/strata/pkg/schema"
)

// plainCodec implements the PLAIN encoding: little-endian fixed-width
// numerics, LSB-first bit-packed booleans, and length-prefixed byte arrays.
type plainCodec struct{}

func (plainCodec) Encoding() format.Encoding { return format.EncodingPlain }

func (plainCodec) Encode(t schema.Type, values []column.Value) ([]byte, error) {
	switch t {
	case schema.Boolean:
		out := make([]byte, (len(values)+7)/8)
		for i, v := range values {
			if v.Boolean() {
				out[i/8] |= 1 << (i % 8)
			}
		}
		return out, nil

	case schema.Int32:
		out := make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(out[4*i:], uint32(v.Int32()))
		}
		return out, nil

	case schema.Int64:
		out := make([]byte, 8*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint64(out[8*i:], uint64(v.Int64()))
		}
		return out, nil

	case schema.Float:
		out := make([]byte, 4*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v.Float()))
		}
		return out, nil

	case schema.Double:
		out := make([]byte, 8*len(values))
		for i, v := range values {
			binary.LittleEndian.PutUint64(out[8*i:], math.Float64bits(v.Double()))
		}
		return out, nil

	case schema.UTF8, schema.ByteArray:
		size := 0
		for _, v := range values {
			size += 4 + len(v.Bytes())
		}
		out := make([]byte, 0, size)
		var lenBuf [4]byte
		for _, v := range values {
			binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(v.Bytes())))
			out = append(out, lenBuf[:]...)
			out = append(out, v.Bytes()...)
		}
		return out, nil

	default:
		return nil, errors.Newf(errors.ErrorTypeUnsupportedFormat, "PLAIN cannot encode type %q", t)
	}
}

func (plainCodec) Decode(t schema.Type, data []byte, count int) ([]column.Value, error) {
	values := make([]column.Value, 0, count)

	switch t {
	case schema.Boolean:
		if len(data) < (count+7)/8 {
			return nil, truncated(t, len(data), count)
		}
		for i := 0; i < count; i++ {
			values = append(values, column.BooleanValue(data[i/8]&(1<<(i%8)) != 0))
		}

	case schema.Int32:
		if len(data) < 4*count {
			return nil, truncated(t, len(data), count)
		}
		for i := 0; i < count; i++ {
			values = append(values, column.Int32Value(int32(binary.LittleEndian.Uint32(data[4*i:]))))
		}

	case schema.Int64:
		if len(data) < 8*count {
			return nil, truncated(t, len(data), count)
		}
		for i := 0; i < count; i++ {
			values = append(values, column.Int64Value(int64(binary.LittleEndian.Uint64(data[8*i:]))))
		}

	case schema.Float:
		if len(data) < 4*count {
			return nil, truncated(t, len(data), count)
		}
		for i := 0; i < count; i++ {
			values = append(values, column.FloatValue(math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))))
		}

	case schema.Double:
		if len(data) < 8*count {
			return nil, truncated(t, len(data), count)
		}
		for i := 0; i < count; i++ {
			values = append(values, column.DoubleValue(math.Float64frombits(binary.LittleEndian.Uint64(data[8*i:]))))
		}

	case schema.UTF8, schema.ByteArray:
		pos := 0
		for i := 0; i < count; i++ {
			if pos+4 > len(data) {
				return nil, truncated(t, len(data), count)
			}
			n := int(binary.LittleEndian.Uint32(data[pos:]))
			pos += 4
			if pos+n > len(data) {
				return nil, truncated(t, len(data), count)
			}
			buf := make([]byte, n)
			copy(buf, data[pos:pos+n])
			pos += n
			if t == schema.UTF8 {
				values = append(values, column.StringValue(string(buf)))
			} else {
				values = append(values, column.ByteArrayValue(buf))
			}
		}

	default:
		return nil, errors.Newf(errors.ErrorTypeUnsupportedFormat, "PLAIN cannot decode type %q", t)
	}

	return values, nil
}

func truncated(t schema.Type, have, count int) error {
	return errors.Newf(errors.ErrorTypeCorruptFile,
		"PLAIN %s stream too short: %d bytes for %d values", t, have, count)
}
