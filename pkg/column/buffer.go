package column

import (
	"github.com/strataio/strata/pkg/schema"
)

// Buffer accumulates the shredded entries of one leaf column for the row
// group currently being built. Levels are stored for every entry; values
// only for entries whose definition level reaches the column's maximum.
//
// A Buffer is owned exclusively by its writer and is not safe for
// concurrent use.
type Buffer struct {
	col       *schema.Column
	repLevels []uint8
	defLevels []uint8
	values    []Value
	nullCount int64
	byteSize  int64
}

// NewBuffer creates an empty buffer for the given leaf column.
func NewBuffer(col *schema.Column) *Buffer {
	return &Buffer{
		col:       col,
		repLevels: make([]uint8, 0, 1024),
		defLevels: make([]uint8, 0, 1024),
	}
}

// Append records one shredded entry. The value is retained only when def
// equals the column's maximum definition level; callers pass Null()
// otherwise.
func (b *Buffer) Append(rep, def int, v Value) {
	b.repLevels = append(b.repLevels, uint8(rep))
	b.defLevels = append(b.defLevels, uint8(def))
	if def == b.col.MaxDefinitionLevel {
		b.values = append(b.values, v)
		b.byteSize += v.Size()
	} else {
		b.nullCount++
	}
	// One byte per level stream entry
	b.byteSize += 2
}

// Column returns the leaf column this buffer belongs to.
func (b *Buffer) Column() *schema.Column { return b.col }

// RepLevels returns the repetition level of every entry.
func (b *Buffer) RepLevels() []uint8 { return b.repLevels }

// DefLevels returns the definition level of every entry.
func (b *Buffer) DefLevels() []uint8 { return b.defLevels }

// Values returns the defined values in entry order.
func (b *Buffer) Values() []Value { return b.values }

// NumValues returns the total entry count, nulls included.
func (b *Buffer) NumValues() int64 { return int64(len(b.defLevels)) }

// NullCount returns the number of entries with no materialized value.
func (b *Buffer) NullCount() int64 { return b.nullCount }

// ByteSize returns the approximate uncompressed footprint of the buffer.
func (b *Buffer) ByteSize() int64 { return b.byteSize }

// Mark captures the current buffer position so a partially shredded
// record can be rolled back.
type Mark struct {
	entries int
	values  int
	nulls   int64
	bytes   int64
}

// Mark returns a rollback point at the current position.
func (b *Buffer) Mark() Mark {
	return Mark{
		entries: len(b.defLevels),
		values:  len(b.values),
		nulls:   b.nullCount,
		bytes:   b.byteSize,
	}
}

// Rollback discards everything appended after the mark.
func (b *Buffer) Rollback(m Mark) {
	b.repLevels = b.repLevels[:m.entries]
	b.defLevels = b.defLevels[:m.entries]
	b.values = b.values[:m.values]
	b.nullCount = m.nulls
	b.byteSize = m.bytes
}

// Reset clears the buffer for the next row group, retaining capacity.
func (b *Buffer) Reset() {
	b.repLevels = b.repLevels[:0]
	b.defLevels = b.defLevels[:0]
	b.values = b.values[:0]
	b.nullCount = 0
	b.byteSize = 0
}
