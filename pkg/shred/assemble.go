package shred

import (
	"io"

	"github.com/strataio/strata/pkg/column"
	"github.com/strataio/strata/pkg/errors"
	"github.com/strataio/strata/pkg/schema"
)

// ColumnData is the decoded stream of one leaf column: one rep/def pair
// per entry, and one value per entry whose definition level reaches the
// column maximum.
type ColumnData struct {
	Column    *schema.Column
	RepLevels []uint8
	DefLevels []uint8
	Values    []column.Value

	pos    int
	valPos int
}

// list is the mutable stand-in for a repeated field while a record is
// being assembled; Finalize turns it into a plain []interface{}.
type list struct {
	items []interface{}
}

// Assembler rebuilds records from shredded column streams. It may be fed
// a projected subset of the schema's columns; only those leaf paths are
// populated.
//
// An Assembler is single-pass and not safe for concurrent use.
type Assembler struct {
	cols  []*ColumnData
	paths [][]*schema.Element
	idx   [][]int
}

// NewAssembler prepares assembly of the given column streams. Each
// stream's column must belong to the schema.
func NewAssembler(s *schema.Schema, cols []*ColumnData) (*Assembler, error) {
	a := &Assembler{
		cols:  cols,
		paths: make([][]*schema.Element, len(cols)),
		idx:   make([][]int, len(cols)),
	}
	for i, cd := range cols {
		if len(cd.RepLevels) != len(cd.DefLevels) {
			return nil, errors.Newf(errors.ErrorTypeCorruptFile,
				"column %s has %d repetition levels but %d definition levels",
				cd.Column.DottedPath(), len(cd.RepLevels), len(cd.DefLevels))
		}
		path := elementPath(s.Elements(), cd.Column)
		if path == nil {
			return nil, errors.Newf(errors.ErrorTypeInternal,
				"column %s not found in schema", cd.Column.DottedPath())
		}
		a.paths[i] = path
		a.idx[i] = make([]int, cd.Column.MaxRepetitionLevel+1)
	}
	return a, nil
}

// Next assembles the next record, or returns io.EOF when every stream is
// exhausted.
func (a *Assembler) Next() (map[string]interface{}, error) {
	exhausted := 0
	for _, cd := range a.cols {
		if cd.pos >= len(cd.RepLevels) {
			exhausted++
		}
	}
	if exhausted == len(a.cols) {
		return nil, io.EOF
	}
	if exhausted > 0 {
		return nil, errors.New(errors.ErrorTypeCorruptFile,
			"column streams end at different records")
	}

	rec := make(map[string]interface{})
	for i, cd := range a.cols {
		if err := a.consumeColumn(rec, i, cd); err != nil {
			return nil, err
		}
	}
	finalizeRecord(rec)
	return rec, nil
}

// consumeColumn drains one column's entries for the current record: the
// first entry plus every following entry with a nonzero repetition level.
func (a *Assembler) consumeColumn(rec map[string]interface{}, i int, cd *ColumnData) error {
	path := a.paths[i]
	idx := a.idx[i]
	maxDef := cd.Column.MaxDefinitionLevel

	first := true
	for cd.pos < len(cd.RepLevels) {
		rep := int(cd.RepLevels[cd.pos])
		def := int(cd.DefLevels[cd.pos])
		if first {
			if rep != 0 {
				return errors.Newf(errors.ErrorTypeCorruptFile,
					"record for column %s starts at repetition level %d", cd.Column.DottedPath(), rep)
			}
			for k := range idx {
				idx[k] = 0
			}
		} else {
			if rep == 0 {
				break
			}
			if rep >= len(idx) {
				return errors.Newf(errors.ErrorTypeCorruptFile,
					"repetition level %d exceeds column %s maximum %d",
					rep, cd.Column.DottedPath(), cd.Column.MaxRepetitionLevel)
			}
			idx[rep]++
			for k := rep + 1; k < len(idx); k++ {
				idx[k] = 0
			}
		}
		if def > maxDef {
			return errors.Newf(errors.ErrorTypeCorruptFile,
				"definition level %d exceeds column %s maximum %d",
				def, cd.Column.DottedPath(), maxDef)
		}

		var val interface{}
		if def == maxDef {
			if cd.valPos >= len(cd.Values) {
				return errors.Newf(errors.ErrorTypeCorruptFile,
					"column %s has fewer values than defined entries", cd.Column.DottedPath())
			}
			val = cd.Values[cd.valPos].Any()
			cd.valPos++
		}

		insert(rec, path, idx, def, val)

		cd.pos++
		first = false
	}
	return nil
}

// insert materializes one entry's defined structural prefix into the
// record, setting the leaf value when the entry is fully defined.
func insert(rec map[string]interface{}, path []*schema.Element, idx []int, def int, val interface{}) {
	cur := rec
	for _, e := range path {
		switch e.Repetition {
		case schema.Optional:
			if def < e.DefLevel {
				return
			}
		case schema.Repeated:
			if def < e.DefLevel-1 {
				return
			}
			l, ok := cur[e.Name].(*list)
			if !ok {
				l = &list{}
				cur[e.Name] = l
			}
			if def < e.DefLevel {
				// Present but empty collection
				return
			}
			n := idx[e.RepLevel]
			for len(l.items) <= n {
				l.items = append(l.items, nil)
			}
			if e.IsLeaf() {
				l.items[n] = val
				return
			}
			m, ok := l.items[n].(map[string]interface{})
			if !ok {
				m = make(map[string]interface{})
				l.items[n] = m
			}
			cur = m
			continue
		}

		// REQUIRED, or OPTIONAL known present
		if e.IsLeaf() {
			if def == e.DefLevel {
				cur[e.Name] = val
			}
			return
		}
		m, ok := cur[e.Name].(map[string]interface{})
		if !ok {
			m = make(map[string]interface{})
			cur[e.Name] = m
		}
		cur = m
	}
}

func finalizeRecord(m map[string]interface{}) {
	for k, v := range m {
		switch t := v.(type) {
		case *list:
			m[k] = finalizeList(t)
		case map[string]interface{}:
			finalizeRecord(t)
		}
	}
}

func finalizeList(l *list) []interface{} {
	out := make([]interface{}, len(l.items))
	for i, it := range l.items {
		switch t := it.(type) {
		case map[string]interface{}:
			finalizeRecord(t)
			out[i] = t
		case *list:
			out[i] = finalizeList(t)
		default:
			out[i] = t
		}
	}
	return out
}

// elementPath returns the chain of elements from a root field down to the
// given leaf column.
func elementPath(elements []*schema.Element, col *schema.Column) []*schema.Element {
	for _, e := range elements {
		if e.IsLeaf() {
			if e.Column == col {
				return []*schema.Element{e}
			}
			continue
		}
		if sub := elementPath(e.Children, col); sub != nil {
			return append([]*schema.Element{e}, sub...)
		}
	}
	return nil
}
