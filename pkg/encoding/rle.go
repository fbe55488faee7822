package encoding

import (
	"encoding/binary"

	"github.com/strataio/strata/pkg/column"
	"github.com/strataio/strata/pkg/errors"
	"github.com/strataio/strata/pkg/format"
	"github.com/strataio/strata/pkg/schema"
)

// BitWidth returns the number of bits needed to represent values in
// [0, maxValue].
func BitWidth(maxValue int) int {
	w := 0
	for (1 << w) <= maxValue {
		w++
	}
	return w
}

// EncodeLevels serializes a level stream with the RLE/bit-packed hybrid.
// The result is empty when maxLevel is zero (every level is implicitly 0).
func EncodeLevels(levels []uint8, maxLevel int) []byte {
	bw := BitWidth(maxLevel)
	if bw == 0 {
		return nil
	}
	return encodeHybrid(levels, bw)
}

// DecodeLevels decodes exactly count levels. A zero maxLevel yields count
// zero levels without consuming input.
func DecodeLevels(data []byte, maxLevel, count int) ([]uint8, error) {
	bw := BitWidth(maxLevel)
	if bw == 0 {
		return make([]uint8, count), nil
	}
	return decodeHybrid(data, bw, count)
}

// rleCodec applies the RLE/bit-packed hybrid to BOOLEAN values. The stream
// is prefixed with a single bit-width byte.
type rleCodec struct{}

func (rleCodec) Encoding() format.Encoding { return format.EncodingRLE }

func (rleCodec) Encode(t schema.Type, values []column.Value) ([]byte, error) {
	if t != schema.Boolean {
		return nil, errors.Newf(errors.ErrorTypeUnsupportedFormat, "RLE cannot encode type %q", t)
	}
	bits := make([]uint8, len(values))
	for i, v := range values {
		if v.Boolean() {
			bits[i] = 1
		}
	}
	out := []byte{1}
	return append(out, encodeHybrid(bits, 1)...), nil
}

func (rleCodec) Decode(t schema.Type, data []byte, count int) ([]column.Value, error) {
	if t != schema.Boolean {
		return nil, errors.Newf(errors.ErrorTypeUnsupportedFormat, "RLE cannot decode type %q", t)
	}
	if count == 0 {
		return nil, nil
	}
	if len(data) == 0 {
		return nil, errors.New(errors.ErrorTypeCorruptFile, "RLE boolean stream is empty")
	}
	bw := int(data[0])
	if bw != 1 {
		return nil, errors.Newf(errors.ErrorTypeCorruptFile, "RLE boolean stream has bit width %d", bw)
	}
	bits, err := decodeHybrid(data[1:], bw, count)
	if err != nil {
		return nil, err
	}
	values := make([]column.Value, count)
	for i, b := range bits {
		values[i] = column.BooleanValue(b != 0)
	}
	return values, nil
}

// encodeHybrid writes values with the Parquet RLE/bit-packed hybrid: runs
// of at least eight equal values become RLE runs (uvarint header with the
// low bit clear), everything else is accumulated into bit-packed groups of
// eight values (header low bit set, LSB-first packing).
func encodeHybrid(values []uint8, bw int) []byte {
	byteWidth := (bw + 7) / 8
	var out []byte
	var literals []uint8

	flushLiterals := func() {
		if len(literals) == 0 {
			return
		}
		for len(literals)%8 != 0 {
			literals = append(literals, 0)
		}
		groups := len(literals) / 8
		out = binary.AppendUvarint(out, uint64(groups)<<1|1)
		packed := make([]byte, groups*bw)
		bitPos := 0
		for _, v := range literals {
			for b := 0; b < bw; b++ {
				if v>>b&1 == 1 {
					packed[bitPos/8] |= 1 << (bitPos % 8)
				}
				bitPos++
			}
		}
		out = append(out, packed...)
		literals = literals[:0]
	}

	i := 0
	for i < len(values) {
		j := i
		for j < len(values) && values[j] == values[i] {
			j++
		}
		run := j - i
		if run >= 8 && len(literals)%8 == 0 {
			flushLiterals()
			out = binary.AppendUvarint(out, uint64(run)<<1)
			v := uint32(values[i])
			for k := 0; k < byteWidth; k++ {
				out = append(out, byte(v>>(8*k)))
			}
			i = j
			continue
		}
		// Bit-packed groups hold exactly eight values, so a long run can
		// only start on a group boundary; absorb values into the literal
		// buffer until one is reached.
		take := run
		if boundary := 8 - len(literals)%8; run >= 8 && take > boundary {
			take = boundary
		}
		literals = append(literals, values[i:i+take]...)
		i += take
	}
	// Trailing padding is harmless: the decoder stops at the caller's count.
	flushLiterals()
	return out
}

func decodeHybrid(data []byte, bw, count int) ([]uint8, error) {
	if bw <= 0 || bw > 8 {
		return nil, errors.Newf(errors.ErrorTypeCorruptFile, "invalid level bit width %d", bw)
	}
	mask := uint8(1<<bw - 1)
	byteWidth := (bw + 7) / 8

	out := make([]uint8, 0, count)
	pos := 0
	for len(out) < count {
		if pos >= len(data) {
			return nil, errors.Newf(errors.ErrorTypeCorruptFile,
				"level stream exhausted: decoded %d of %d values", len(out), count)
		}
		header, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return nil, errors.New(errors.ErrorTypeCorruptFile, "malformed varint in level stream")
		}
		pos += n

		if header&1 == 0 {
			// RLE run
			runLen := int(header >> 1)
			if pos+byteWidth > len(data) {
				return nil, errors.New(errors.ErrorTypeCorruptFile, "level stream truncated inside RLE run")
			}
			v := data[pos] & mask
			pos += byteWidth
			for i := 0; i < runLen && len(out) < count; i++ {
				out = append(out, v)
			}
		} else {
			// Bit-packed groups of eight values. The group count is bounded
			// by the remaining bytes before any slice arithmetic so a
			// crafted header cannot overflow it.
			if header>>1 == 0 || header>>1 > uint64((len(data)-pos)/bw) {
				return nil, errors.Newf(errors.ErrorTypeCorruptFile,
					"bit-packed run of %d groups does not fit the level stream", header>>1)
			}
			groups := int(header >> 1)
			total := groups * 8
			need := groups * bw
			packed := data[pos : pos+need]
			pos += need

			bitPos := 0
			for i := 0; i < total && len(out) < count; i++ {
				var v uint8
				for b := 0; b < bw; b++ {
					if packed[bitPos/8]>>(bitPos%8)&1 == 1 {
						v |= 1 << b
					}
					bitPos++
				}
				out = append(out, v&mask)
			}
		}
	}
	return out, nil
}
