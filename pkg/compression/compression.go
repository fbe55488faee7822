// Package compression provides the block compression used for column
// chunks, with multiple algorithms behind one interface.
//
// Algorithms are identified on disk by their codec id (see pkg/format);
// UNCOMPRESSED is a valid identity implementation. All compressors are
// safe for concurrent use; instances with expensive setup pool their
// encoder and decoder state.
package compression

import (
	"bytes"
	"compress/gzip"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/strataio/strata/pkg/errors"
	"github.com/strataio/strata/pkg/format"
)

// Level represents compression level, controlling the trade-off between
// compression speed and compression ratio.
type Level int

const (
	// Fastest prioritizes speed over compression ratio
	Fastest Level = 1
	// Default balances speed and compression
	Default Level = 5
	// Best maximizes compression ratio
	Best Level = 9
)

// Compressor compresses and decompresses column chunk payloads.
type Compressor interface {
	// Codec returns the persisted codec id
	Codec() format.CompressionCodec

	// Compress compresses data and returns the compressed bytes.
	// The input is not modified.
	Compress(data []byte) ([]byte, error)

	// Decompress decompresses data. expectedLen is the known uncompressed
	// size and is used to size the output buffer; it is advisory, the
	// caller validates the result length.
	Decompress(data []byte, expectedLen int) ([]byte, error)
}

// ForCodec returns a compressor for the given persisted codec id.
func ForCodec(codec format.CompressionCodec) (Compressor, error) {
	return NewCompressor(codec, Default)
}

// NewCompressor creates a compressor for the given codec at the given level.
func NewCompressor(codec format.CompressionCodec, level Level) (Compressor, error) {
	switch codec {
	case format.CodecUncompressed:
		return &noneCompressor{}, nil
	case format.CodecSnappy:
		return &snappyCompressor{}, nil
	case format.CodecGzip:
		return newGzipCompressor(level), nil
	case format.CodecBrotli:
		return newBrotliCompressor(level), nil
	case format.CodecLZ4:
		return &lz4Compressor{level: mapLZ4Level(level)}, nil
	case format.CodecZstd:
		return newZstdCompressor(level), nil
	default:
		return nil, errors.Newf(errors.ErrorTypeUnsupportedFormat, "unknown compression codec id %d", codec)
	}
}

// ParseAlgorithm maps a configuration name to its codec id.
func ParseAlgorithm(name string) (format.CompressionCodec, error) {
	switch name {
	case "", "uncompressed", "none":
		return format.CodecUncompressed, nil
	case "snappy":
		return format.CodecSnappy, nil
	case "gzip":
		return format.CodecGzip, nil
	case "brotli":
		return format.CodecBrotli, nil
	case "lz4":
		return format.CodecLZ4, nil
	case "zstd":
		return format.CodecZstd, nil
	default:
		return 0, errors.Newf(errors.ErrorTypeConfig, "unknown compression algorithm %q", name)
	}
}

// None compressor (identity)
type noneCompressor struct{}

func (noneCompressor) Codec() format.CompressionCodec { return format.CodecUncompressed }

func (noneCompressor) Compress(data []byte) ([]byte, error) { return data, nil }

func (noneCompressor) Decompress(data []byte, expectedLen int) ([]byte, error) { return data, nil }

// Snappy compressor
type snappyCompressor struct{}

func (snappyCompressor) Codec() format.CompressionCodec { return format.CodecSnappy }

func (snappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyCompressor) Decompress(data []byte, expectedLen int) ([]byte, error) {
	out, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorruptFile, "snappy decompression failed")
	}
	if out == nil {
		// snappy.Decode yields nil for an empty payload
		out = []byte{}
	}
	return out, nil
}

// Gzip compressor
type gzipCompressor struct {
	level      int
	writerPool sync.Pool
	readerPool sync.Pool
}

func newGzipCompressor(level Level) *gzipCompressor {
	gc := &gzipCompressor{level: mapGzipLevel(level)}
	gc.writerPool.New = func() interface{} {
		w, _ := gzip.NewWriterLevel(nil, gc.level)
		return w
	}
	gc.readerPool.New = func() interface{} {
		return new(gzip.Reader)
	}
	return gc
}

func (gc *gzipCompressor) Codec() format.CompressionCodec { return format.CodecGzip }

func (gc *gzipCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data)/2 + 64)

	w := gc.writerPool.Get().(*gzip.Writer)
	defer gc.writerPool.Put(w)

	w.Reset(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gc *gzipCompressor) Decompress(data []byte, expectedLen int) ([]byte, error) {
	r := gc.readerPool.Get().(*gzip.Reader)
	defer gc.readerPool.Put(r)

	if err := r.Reset(bytes.NewReader(data)); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorruptFile, "gzip decompression failed")
	}
	return readAll(r, expectedLen)
}

// Brotli compressor
type brotliCompressor struct {
	level int
}

func newBrotliCompressor(level Level) *brotliCompressor {
	return &brotliCompressor{level: mapBrotliLevel(level)}
}

func (bc *brotliCompressor) Codec() format.CompressionCodec { return format.CodecBrotli }

func (bc *brotliCompressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data)/2 + 64)

	w := brotli.NewWriterLevel(&buf, bc.level)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (bc *brotliCompressor) Decompress(data []byte, expectedLen int) ([]byte, error) {
	return readAll(brotli.NewReader(bytes.NewReader(data)), expectedLen)
}

// LZ4 compressor (frame format)
type lz4Compressor struct {
	level lz4.CompressionLevel
}

func (lc *lz4Compressor) Codec() format.CompressionCodec { return format.CodecLZ4 }

func (lc *lz4Compressor) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data)/2 + 64)

	w := lz4.NewWriter(&buf)
	if err := w.Apply(lz4.CompressionLevelOption(lc.level)); err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (lc *lz4Compressor) Decompress(data []byte, expectedLen int) ([]byte, error) {
	return readAll(lz4.NewReader(bytes.NewReader(data)), expectedLen)
}

// Zstd compressor
type zstdCompressor struct {
	level       zstd.EncoderLevel
	encoderPool sync.Pool
	decoderPool sync.Pool
}

func newZstdCompressor(level Level) *zstdCompressor {
	zc := &zstdCompressor{level: mapZstdLevel(level)}
	zc.encoderPool.New = func() interface{} {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zc.level))
		return enc
	}
	zc.decoderPool.New = func() interface{} {
		dec, _ := zstd.NewReader(nil)
		return dec
	}
	return zc
}

func (zc *zstdCompressor) Codec() format.CompressionCodec { return format.CodecZstd }

func (zc *zstdCompressor) Compress(data []byte) ([]byte, error) {
	enc := zc.encoderPool.Get().(*zstd.Encoder)
	defer zc.encoderPool.Put(enc)

	return enc.EncodeAll(data, nil), nil
}

func (zc *zstdCompressor) Decompress(data []byte, expectedLen int) ([]byte, error) {
	dec := zc.decoderPool.Get().(*zstd.Decoder)
	defer zc.decoderPool.Put(dec)

	out, err := dec.DecodeAll(data, make([]byte, 0, expectedLen))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorruptFile, "zstd decompression failed")
	}
	return out, nil
}

func readAll(r io.Reader, expectedLen int) ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, expectedLen))
	if _, err := io.Copy(buf, r); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeCorruptFile, "decompression failed")
	}
	return buf.Bytes(), nil
}

// Helper functions to map compression levels

func mapGzipLevel(level Level) int {
	switch level {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func mapBrotliLevel(level Level) int {
	switch level {
	case Fastest:
		return brotli.BestSpeed
	case Best:
		return brotli.BestCompression
	default:
		return brotli.DefaultCompression
	}
}

func mapLZ4Level(level Level) lz4.CompressionLevel {
	switch level {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func mapZstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case Fastest:
		return zstd.SpeedFastest
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
