package file

import (
	"encoding/binary"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/strataio/strata/pkg/compression"
	"github.com/strataio/strata/pkg/encoding"
	"github.com/strataio/strata/pkg/errors"
	"github.com/strataio/strata/pkg/format"
	"github.com/strataio/strata/pkg/schema"
	"github.com/strataio/strata/pkg/shred"
)

// maxChunkValues caps the per-chunk entry count accepted from a footer.
// RLE level streams can legitimately describe far more entries than their
// byte size, so the bound is a fixed ceiling rather than one derived from
// the chunk size.
const maxChunkValues = 1 << 31

// Reader opens a finished file: it validates the magic markers, decodes
// the footer and rebuilds the schema. Chunk data is only fetched when a
// cursor selects it.
//
// A Reader supports any number of concurrent cursors; each cursor is
// single-pass and not safe for concurrent use itself.
type Reader struct {
	r      io.ReaderAt
	size   int64
	meta   *format.FileMetaData
	schema *schema.Schema
	log    *zap.Logger
	closer io.Closer
}

// NewReader validates and indexes a file held in r.
func NewReader(r io.ReaderAt, size int64) (*Reader, error) {
	return NewReaderWithConfig(r, size, nil)
}

// NewReaderWithConfig is NewReader with explicit configuration.
func NewReaderWithConfig(r io.ReaderAt, size int64, cfg *ReaderConfig) (*Reader, error) {
	if cfg == nil {
		cfg = DefaultReaderConfig()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	minSize := int64(len(format.Magic) + format.FooterSuffixSize)
	if size < minSize {
		return nil, errors.Newf(errors.ErrorTypeCorruptFile, "file too small: %d bytes", size)
	}

	header := make([]byte, len(format.Magic))
	if _, err := r.ReadAt(header, 0); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to read file header")
	}
	if string(header) != format.Magic {
		return nil, errors.New(errors.ErrorTypeCorruptFile, "missing magic header")
	}

	suffix := make([]byte, format.FooterSuffixSize)
	if _, err := r.ReadAt(suffix, size-format.FooterSuffixSize); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to read footer suffix")
	}
	if string(suffix[4:]) != format.Magic {
		return nil, errors.New(errors.ErrorTypeCorruptFile, "missing magic trailer")
	}
	footerLen := int64(binary.LittleEndian.Uint32(suffix[:4]))
	if footerLen <= 0 || footerLen > size-minSize {
		return nil, errors.Newf(errors.ErrorTypeCorruptFile, "implausible footer length %d", footerLen)
	}

	footer := make([]byte, footerLen)
	if _, err := r.ReadAt(footer, size-format.FooterSuffixSize-footerLen); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to read footer")
	}
	meta := new(format.FileMetaData)
	if err := meta.Unmarshal(footer); err != nil {
		return nil, err
	}
	s, err := format.SchemaFromElements(meta.Schema)
	if err != nil {
		return nil, err
	}

	log.Debug("file opened",
		zap.Int64("rows", meta.NumRows),
		zap.Int("row_groups", len(meta.RowGroups)),
		zap.String("created_by", meta.CreatedBy))

	return &Reader{r: r, size: size, meta: meta, schema: s, log: log}, nil
}

// OpenFile opens a file from the filesystem. Closing the reader closes
// the file.
func OpenFile(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeIO, "failed to open %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, errors.ErrorTypeIO, "failed to stat %s", path)
	}
	r, err := NewReader(f, st.Size())
	if err != nil {
		f.Close()
		return nil, err
	}
	r.closer = f
	return r, nil
}

// Schema returns the schema rebuilt from the footer.
func (r *Reader) Schema() *schema.Schema { return r.schema }

// NumRows returns the total record count across all row groups.
func (r *Reader) NumRows() int64 { return r.meta.NumRows }

// NumRowGroups returns the number of row groups in the file.
func (r *Reader) NumRowGroups() int { return len(r.meta.RowGroups) }

// Metadata returns the decoded footer. Callers must not mutate it.
func (r *Reader) Metadata() *format.FileMetaData { return r.meta }

// Close releases the underlying file when the reader owns one.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

// Cursor starts a forward-only scan over the named columns, or over
// every column when no paths are given. Only the selected chunks are
// fetched, decompressed and decoded, one row group at a time.
func (r *Reader) Cursor(paths ...string) (*Cursor, error) {
	var cols []*schema.Column
	if len(paths) == 0 {
		cols = r.schema.Leaves()
	} else {
		cols = make([]*schema.Column, 0, len(paths))
		for _, p := range paths {
			col, ok := r.schema.ColumnByPath(p)
			if !ok {
				return nil, errors.Newf(errors.ErrorTypeConfig, "unknown column %q", p)
			}
			cols = append(cols, col)
		}
	}
	return &Cursor{reader: r, cols: cols}, nil
}

// Cursor iterates records in file order. Next returns io.EOF after the
// last record.
type Cursor struct {
	reader *Reader
	cols   []*schema.Column

	group int
	asm   *shred.Assembler
}

// Next assembles and returns the next record.
func (c *Cursor) Next() (map[string]interface{}, error) {
	for {
		if c.asm == nil {
			if c.group >= len(c.reader.meta.RowGroups) {
				return nil, io.EOF
			}
			asm, err := c.loadGroup(c.reader.meta.RowGroups[c.group])
			if err != nil {
				return nil, err
			}
			c.asm = asm
		}
		rec, err := c.asm.Next()
		if err == io.EOF {
			c.asm = nil
			c.group++
			continue
		}
		return rec, err
	}
}

// loadGroup fetches and decodes the selected chunks of one row group.
func (c *Cursor) loadGroup(rg *format.RowGroup) (*shred.Assembler, error) {
	data := make([]*shred.ColumnData, 0, len(c.cols))
	for _, col := range c.cols {
		chunk, err := findChunk(rg, col)
		if err != nil {
			return nil, err
		}
		cd, err := c.reader.readChunk(col, chunk)
		if err != nil {
			return nil, err
		}
		data = append(data, cd)
	}
	return shred.NewAssembler(c.reader.schema, data)
}

func findChunk(rg *format.RowGroup, col *schema.Column) (*format.ColumnChunk, error) {
	want := col.DottedPath()
	for _, chunk := range rg.Columns {
		if chunk.MetaData != nil && strings.Join(chunk.MetaData.PathInSchema, ".") == want {
			return chunk, nil
		}
	}
	return nil, errors.Newf(errors.ErrorTypeCorruptFile, "row group has no chunk for column %s", want)
}

// readChunk fetches one chunk's bytes and decodes them into level and
// value streams.
func (r *Reader) readChunk(col *schema.Column, chunk *format.ColumnChunk) (*shred.ColumnData, error) {
	meta := chunk.MetaData
	if len(meta.Encodings) == 0 {
		return nil, errors.Newf(errors.ErrorTypeCorruptFile, "chunk for column %s lists no encodings", col.DottedPath())
	}
	codec, err := encoding.ForID(meta.Encodings[0])
	if err != nil {
		return nil, err
	}
	comp, err := compression.ForCodec(meta.Codec)
	if err != nil {
		return nil, err
	}
	if chunk.FileOffset < 0 || meta.TotalCompressedSize < 0 ||
		chunk.FileOffset+meta.TotalCompressedSize > r.size {
		return nil, errors.Newf(errors.ErrorTypeCorruptFile,
			"chunk for column %s lies outside the file", col.DottedPath())
	}
	// NumValues sizes the level slices; a tampered footer must not drive
	// a negative or absurd allocation.
	if meta.NumValues < 0 || meta.NumValues > maxChunkValues {
		return nil, errors.Newf(errors.ErrorTypeCorruptFile,
			"chunk for column %s claims %d values", col.DottedPath(), meta.NumValues)
	}

	raw := make([]byte, meta.TotalCompressedSize)
	if _, err := r.r.ReadAt(raw, chunk.FileOffset); err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeIO, "failed to read chunk for column %s", col.DottedPath())
	}
	payload, err := comp.Decompress(raw, int(meta.TotalUncompressedSize))
	if err != nil {
		return nil, err
	}
	if int64(len(payload)) != meta.TotalUncompressedSize {
		return nil, errors.Newf(errors.ErrorTypeCorruptFile,
			"chunk for column %s decompressed to %d bytes, footer says %d",
			col.DottedPath(), len(payload), meta.TotalUncompressedSize)
	}

	count := int(meta.NumValues)
	cd := &shred.ColumnData{Column: col}

	if col.MaxRepetitionLevel > 0 {
		block, rest, err := splitLevelBlock(payload, col)
		if err != nil {
			return nil, err
		}
		payload = rest
		cd.RepLevels, err = encoding.DecodeLevels(block, col.MaxRepetitionLevel, count)
		if err != nil {
			return nil, err
		}
	} else {
		cd.RepLevels = make([]uint8, count)
	}

	if col.MaxDefinitionLevel > 0 {
		block, rest, err := splitLevelBlock(payload, col)
		if err != nil {
			return nil, err
		}
		payload = rest
		cd.DefLevels, err = encoding.DecodeLevels(block, col.MaxDefinitionLevel, count)
		if err != nil {
			return nil, err
		}
	} else {
		cd.DefLevels = make([]uint8, count)
	}

	defined := 0
	maxDef := uint8(col.MaxDefinitionLevel)
	for _, d := range cd.DefLevels {
		if d == maxDef {
			defined++
		}
	}
	cd.Values, err = codec.Decode(col.Type, payload, defined)
	if err != nil {
		return nil, err
	}
	return cd, nil
}

func splitLevelBlock(payload []byte, col *schema.Column) (block, rest []byte, err error) {
	if len(payload) < 4 {
		return nil, nil, errors.Newf(errors.ErrorTypeCorruptFile,
			"chunk for column %s is truncated before a level stream", col.DottedPath())
	}
	n := int(binary.LittleEndian.Uint32(payload))
	if 4+n > len(payload) {
		return nil, nil, errors.Newf(errors.ErrorTypeCorruptFile,
			"chunk for column %s has a level stream of %d bytes but only %d remain",
			col.DottedPath(), n, len(payload)-4)
	}
	return payload[4 : 4+n], payload[4+n:], nil
}
