package file

import (
	"go.uber.org/zap"

	"github.com/strataio/strata/pkg/compression"
	"github.com/strataio/strata/pkg/errors"
	"github.com/strataio/strata/pkg/format"
)

const (
	// DefaultRowGroupByteSize is the buffered uncompressed size at which a
	// row group is sealed.
	DefaultRowGroupByteSize = 128 << 20

	// DefaultMaxRowGroupRows bounds row-group size for narrow schemas whose
	// records are too small to hit the byte threshold quickly.
	DefaultMaxRowGroupRows = 1 << 20

	// DefaultCreatedBy is the provenance string stamped into footers.
	DefaultCreatedBy = "strata version 0.1.0"
)

// WriterConfig controls row-group sizing, compression and provenance.
type WriterConfig struct {
	// RowGroupByteSize seals the in-progress row group once the buffered
	// uncompressed bytes reach it
	RowGroupByteSize int64

	// MaxRowGroupRows seals the in-progress row group once it holds this
	// many records
	MaxRowGroupRows int64

	// Compression is the block codec applied to every column chunk
	Compression format.CompressionCodec

	// CompressionLevel tunes the codec's speed/ratio trade-off
	CompressionLevel compression.Level

	// CreatedBy is recorded in the footer
	CreatedBy string

	// Logger receives debug/info events; nil disables logging
	Logger *zap.Logger
}

// DefaultWriterConfig returns the default writer configuration.
func DefaultWriterConfig() *WriterConfig {
	return &WriterConfig{
		RowGroupByteSize: DefaultRowGroupByteSize,
		MaxRowGroupRows:  DefaultMaxRowGroupRows,
		Compression:      format.CodecSnappy,
		CompressionLevel: compression.Default,
		CreatedBy:        DefaultCreatedBy,
	}
}

// Validate checks the configuration for inconsistencies.
func (c *WriterConfig) Validate() error {
	if c.RowGroupByteSize <= 0 {
		return errors.New(errors.ErrorTypeConfig, "RowGroupByteSize must be positive")
	}
	if c.MaxRowGroupRows <= 0 {
		return errors.New(errors.ErrorTypeConfig, "MaxRowGroupRows must be positive")
	}
	if _, err := compression.NewCompressor(c.Compression, c.CompressionLevel); err != nil {
		return err
	}
	return nil
}

// ReaderConfig controls reader behavior.
type ReaderConfig struct {
	// Logger receives debug events; nil disables logging
	Logger *zap.Logger
}

// DefaultReaderConfig returns the default reader configuration.
func DefaultReaderConfig() *ReaderConfig {
	return &ReaderConfig{}
}
