// Package file implements the on-disk container: a row-group writer that
// shreds records into column chunks, and a reader with forward-only
// cursors that assemble them back.
//
// File layout: "PAR1" magic, column chunk data grouped by row group, a
// Thrift compact-protocol footer, the footer length as a little-endian
// uint32, and the trailing magic.
package file

import (
	"encoding/binary"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/strataio/strata/pkg/column"
	"github.com/strataio/strata/pkg/compression"
	"github.com/strataio/strata/pkg/encoding"
	"github.com/strataio/strata/pkg/errors"
	"github.com/strataio/strata/pkg/format"
	"github.com/strataio/strata/pkg/schema"
	"github.com/strataio/strata/pkg/shred"
)

// Writer builds a file record by record. Records are shredded into
// per-column buffers; once the buffered bytes or row count crosses the
// configured threshold the group is sealed: every column is encoded and
// compressed concurrently and the chunks are appended in canonical column
// order.
//
// All methods are safe for concurrent use.
type Writer struct {
	mu sync.Mutex

	w      io.Writer
	schema *schema.Schema
	cfg    *WriterConfig
	comp   compression.Compressor
	codecs []encoding.Codec
	log    *zap.Logger

	buffers []*column.Buffer
	rows    int64

	offset    int64
	rowGroups []*format.RowGroup
	totalRows int64
	closed    bool
}

// NewWriter starts a file on w with the given schema. A nil config uses
// DefaultWriterConfig. The magic header is written immediately.
func NewWriter(w io.Writer, s *schema.Schema, cfg *WriterConfig) (*Writer, error) {
	if cfg == nil {
		cfg = DefaultWriterConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	comp, err := compression.NewCompressor(cfg.Compression, cfg.CompressionLevel)
	if err != nil {
		return nil, err
	}

	leaves := s.Leaves()
	buffers := make([]*column.Buffer, len(leaves))
	codecs := make([]encoding.Codec, len(leaves))
	for i, col := range leaves {
		codec, err := encoding.ForColumn(col)
		if err != nil {
			return nil, err
		}
		buffers[i] = column.NewBuffer(col)
		codecs[i] = codec
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if _, err := w.Write([]byte(format.Magic)); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to write file header")
	}

	return &Writer{
		w:       w,
		schema:  s,
		cfg:     cfg,
		comp:    comp,
		codecs:  codecs,
		log:     log,
		buffers: buffers,
		offset:  int64(len(format.Magic)),
	}, nil
}

// Schema returns the writer's schema.
func (w *Writer) Schema() *schema.Schema { return w.schema }

// Append shreds one record into the buffered row group, sealing it first
// if the thresholds are reached. A rejected record leaves the writer
// unchanged.
func (w *Writer) Append(record map[string]interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.append(record)
}

// AppendBatch appends records under a single lock acquisition. It stops
// at the first rejected record; records before it remain written.
func (w *Writer) AppendBatch(records []map[string]interface{}) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, record := range records {
		if err := w.append(record); err != nil {
			return errors.Wrapf(err, errors.TypeOf(err), "record %d", i)
		}
	}
	return nil
}

func (w *Writer) append(record map[string]interface{}) error {
	if w.closed {
		return errors.New(errors.ErrorTypeWriterClosed, "append on closed writer")
	}

	marks := make([]column.Mark, len(w.buffers))
	for i, b := range w.buffers {
		marks[i] = b.Mark()
	}
	if err := shred.Shred(w.schema, record, w.buffers); err != nil {
		for i, b := range w.buffers {
			b.Rollback(marks[i])
		}
		return err
	}
	w.rows++

	if w.rows >= w.cfg.MaxRowGroupRows || w.bufferedBytes() >= w.cfg.RowGroupByteSize {
		return w.seal()
	}
	return nil
}

func (w *Writer) bufferedBytes() int64 {
	var n int64
	for _, b := range w.buffers {
		n += b.ByteSize()
	}
	return n
}

// Flush seals the in-progress row group regardless of its size. Flushing
// an empty group is a no-op.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New(errors.ErrorTypeWriterClosed, "flush on closed writer")
	}
	return w.seal()
}

// Close seals any buffered rows, writes the footer and marks the writer
// closed. Close is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if err := w.seal(); err != nil {
		return err
	}

	fmd := &format.FileMetaData{
		Version:   1,
		Schema:    format.SchemaElements(w.schema),
		NumRows:   w.totalRows,
		RowGroups: w.rowGroups,
		CreatedBy: w.cfg.CreatedBy,
	}
	footer, err := fmd.Marshal()
	if err != nil {
		return err
	}
	if _, err := w.w.Write(footer); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to write footer")
	}
	var suffix [8]byte
	binary.LittleEndian.PutUint32(suffix[:4], uint32(len(footer)))
	copy(suffix[4:], format.Magic)
	if _, err := w.w.Write(suffix[:]); err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to write footer suffix")
	}
	w.offset += int64(len(footer)) + format.FooterSuffixSize
	w.closed = true

	w.log.Info("file closed",
		zap.Int64("rows", w.totalRows),
		zap.Int("row_groups", len(w.rowGroups)),
		zap.Int64("bytes", w.offset))
	return nil
}

// RecordsWritten returns the number of records accepted so far, sealed or
// buffered.
func (w *Writer) RecordsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.totalRows + w.rows
}

// BytesWritten returns the number of bytes emitted to the underlying
// writer so far.
func (w *Writer) BytesWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.offset
}

type sealedChunk struct {
	data []byte
	meta *format.ColumnMetaData
	err  error
}

// seal encodes and compresses every column concurrently, then appends the
// chunks in canonical order. Any column failure aborts the whole seal and
// the buffered rows stay intact. Callers must hold the lock.
func (w *Writer) seal() error {
	if w.rows == 0 {
		return nil
	}

	chunks := make([]sealedChunk, len(w.buffers))
	var wg sync.WaitGroup
	for i := range w.buffers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			chunks[i] = w.sealColumn(w.buffers[i], w.codecs[i])
		}(i)
	}
	wg.Wait()

	for i := range chunks {
		if chunks[i].err != nil {
			return errors.Wrapf(chunks[i].err, errors.TypeOf(chunks[i].err),
				"failed to seal column %s", w.buffers[i].Column().DottedPath())
		}
	}

	rg := &format.RowGroup{NumRows: w.rows}
	for i := range chunks {
		c := &chunks[i]
		c.meta.DataPageOffset = w.offset
		if _, err := w.w.Write(c.data); err != nil {
			return errors.Wrap(err, errors.ErrorTypeIO, "failed to write column chunk")
		}
		rg.Columns = append(rg.Columns, &format.ColumnChunk{
			FileOffset: w.offset,
			MetaData:   c.meta,
		})
		rg.TotalByteSize += c.meta.TotalUncompressedSize
		w.offset += int64(len(c.data))
	}

	w.rowGroups = append(w.rowGroups, rg)
	w.totalRows += w.rows
	w.log.Debug("row group sealed",
		zap.Int64("rows", w.rows),
		zap.Int64("uncompressed_bytes", rg.TotalByteSize),
		zap.Int("row_group", len(w.rowGroups)-1))

	w.rows = 0
	for _, b := range w.buffers {
		b.Reset()
	}
	return nil
}

// sealColumn builds one column chunk: level streams and encoded values
// concatenated, then block compressed.
func (w *Writer) sealColumn(buf *column.Buffer, codec encoding.Codec) sealedChunk {
	col := buf.Column()

	var payload []byte
	if col.MaxRepetitionLevel > 0 {
		payload = appendLevelBlock(payload, encoding.EncodeLevels(buf.RepLevels(), col.MaxRepetitionLevel))
	}
	if col.MaxDefinitionLevel > 0 {
		payload = appendLevelBlock(payload, encoding.EncodeLevels(buf.DefLevels(), col.MaxDefinitionLevel))
	}
	values, err := codec.Encode(col.Type, buf.Values())
	if err != nil {
		return sealedChunk{err: err}
	}
	payload = append(payload, values...)

	compressed, err := w.comp.Compress(payload)
	if err != nil {
		return sealedChunk{err: errors.Wrap(err, errors.ErrorTypeIO, "compression failed")}
	}

	encodings := []format.Encoding{codec.Encoding()}
	if col.MaxRepetitionLevel > 0 || col.MaxDefinitionLevel > 0 {
		encodings = append(encodings, format.EncodingRLE)
	}
	return sealedChunk{
		data: compressed,
		meta: &format.ColumnMetaData{
			Type:                  format.PhysicalType(col.Type),
			Encodings:             encodings,
			PathInSchema:          col.Path,
			Codec:                 w.comp.Codec(),
			NumValues:             buf.NumValues(),
			TotalUncompressedSize: int64(len(payload)),
			TotalCompressedSize:   int64(len(compressed)),
			Statistics:            &format.Statistics{NullCount: buf.NullCount()},
		},
	}
}

func appendLevelBlock(payload, levels []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(levels)))
	payload = append(payload, lenBuf[:]...)
	return append(payload, levels...)
}
