// Package encoding provides the value codecs used inside column chunks and
// the RLE/bit-packed hybrid used for repetition and definition levels.
//
// Codec ids form a closed registry persisted in chunk metadata (see
// pkg/format); decoding a chunk with an unknown id fails with an
// unsupported-format error rather than guessing.
package encoding

import (
	"github.com/strataio/strata/pkg/column"
	"github.com/strataio/strata/pkg/errors"
	"github.com/strataio/strata/pkg/format"
	"github.com/strataio/strata/pkg/schema"
)

// Codec encodes a sequence of defined values into bytes and back. Encode
// and Decode must round-trip exactly.
type Codec interface {
	// Encoding returns the persisted id of this codec
	Encoding() format.Encoding

	// Encode serializes values of the given type
	Encode(t schema.Type, values []column.Value) ([]byte, error)

	// Decode deserializes exactly count values of the given type
	Decode(t schema.Type, data []byte, count int) ([]column.Value, error)
}

var registry = map[format.Encoding]Codec{
	format.EncodingPlain: plainCodec{},
	format.EncodingRLE:   rleCodec{},
}

// ForID returns the codec registered under the given id.
func ForID(id format.Encoding) (Codec, error) {
	c, ok := registry[id]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeUnsupportedFormat, "unknown encoding id %d", id)
	}
	return c, nil
}

// ForColumn resolves the codec for a leaf column: the explicitly chosen
// encoding when the schema pins one, PLAIN otherwise. RLE is only valid
// for BOOLEAN columns.
func ForColumn(col *schema.Column) (Codec, error) {
	switch col.Encoding {
	case "", "PLAIN":
		return plainCodec{}, nil
	case "RLE":
		if col.Type != schema.Boolean {
			return nil, errors.Newf(errors.ErrorTypeConfig,
				"RLE encoding requires a BOOLEAN column, %s is %s", col.DottedPath(), col.Type)
		}
		return rleCodec{}, nil
	default:
		return nil, errors.Newf(errors.ErrorTypeConfig, "unknown encoding %q for column %s", col.Encoding, col.DottedPath())
	}
}
