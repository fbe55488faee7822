package compression

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strataio/strata/pkg/errors"
	"github.com/strataio/strata/pkg/format"
)

var codecs = []format.CompressionCodec{
	format.CodecUncompressed,
	format.CodecSnappy,
	format.CodecGzip,
	format.CodecBrotli,
	format.CodecLZ4,
	format.CodecZstd,
}

func TestRoundTrip(t *testing.T) {
	payloads := map[string][]byte{
		"empty":      {},
		"short":      []byte("hello, columnar world"),
		"repetitive": bytes.Repeat([]byte("abcdefgh"), 4096),
	}

	for _, codec := range codecs {
		c, err := ForCodec(codec)
		require.NoError(t, err)
		assert.Equal(t, codec, c.Codec())

		for name, payload := range payloads {
			t.Run(codec.String()+"/"+name, func(t *testing.T) {
				compressed, err := c.Compress(payload)
				require.NoError(t, err)
				got, err := c.Decompress(compressed, len(payload))
				require.NoError(t, err)
				assert.Equal(t, payload, got)
			})
		}
	}
}

func TestCompressionReducesRepetitiveData(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdefgh"), 4096)
	for _, codec := range codecs {
		if codec == format.CodecUncompressed {
			continue
		}
		c, err := ForCodec(codec)
		require.NoError(t, err)
		compressed, err := c.Compress(payload)
		require.NoError(t, err)
		assert.Less(t, len(compressed), len(payload), codec.String())
	}
}

func TestLevels(t *testing.T) {
	payload := bytes.Repeat([]byte("strata"), 1000)
	for _, level := range []Level{Fastest, Default, Best} {
		c, err := NewCompressor(format.CodecZstd, level)
		require.NoError(t, err)
		compressed, err := c.Compress(payload)
		require.NoError(t, err)
		got, err := c.Decompress(compressed, len(payload))
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	}
}

func TestUnknownCodec(t *testing.T) {
	_, err := ForCodec(format.CompressionCodec(42))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeUnsupportedFormat))
}

func TestDecompressGarbage(t *testing.T) {
	for _, codec := range codecs {
		if codec == format.CodecUncompressed {
			continue
		}
		c, err := ForCodec(codec)
		require.NoError(t, err)
		_, err = c.Decompress([]byte{0xde, 0xad, 0xbe, 0xef}, 100)
		assert.Error(t, err, codec.String())
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		name string
		want format.CompressionCodec
	}{
		{"", format.CodecUncompressed},
		{"none", format.CodecUncompressed},
		{"snappy", format.CodecSnappy},
		{"gzip", format.CodecGzip},
		{"brotli", format.CodecBrotli},
		{"lz4", format.CodecLZ4},
		{"zstd", format.CodecZstd},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.name)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseAlgorithm("lzma")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
