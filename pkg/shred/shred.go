// Package shred flattens nested records into per-column level/value
// streams and reassembles them, Dremel style.
//
// Repetition levels mark where a new element begins in the chain of
// repeated ancestors; definition levels mark how deep the defined prefix
// of a path reaches. A value is materialized only when its definition
// level equals the column maximum, so nulls, empty collections and absent
// collections all survive a round trip.
package shred

import (
	"reflect"

	"github.com/strataio/strata/pkg/column"
	"github.com/strataio/strata/pkg/errors"
	"github.com/strataio/strata/pkg/schema"
)

const (
	opField = iota
	opContent
	opAbsent
)

// frame is one unit of pending shredding work. The shredder runs on an
// explicit stack so deeply nested records cannot exhaust the goroutine
// stack.
type frame struct {
	op    int
	elem  *schema.Element
	value interface{}
	path  string
	rep   int
	def   int
}

// Shred flattens one record into the per-column buffers. buffers must be
// indexed by canonical column position (schema.Column.Index).
//
// On error the buffers may hold a partial record; callers needing
// atomicity roll back with column.Buffer marks.
func Shred(s *schema.Schema, record map[string]interface{}, buffers []*column.Buffer) error {
	if len(buffers) != s.NumColumns() {
		return errors.Newf(errors.ErrorTypeInternal, "have %d buffers for %d columns", len(buffers), s.NumColumns())
	}

	stack := make([]frame, 0, 16)
	push := func(f frame) { stack = append(stack, f) }

	if err := pushGroup(&stack, s.Elements(), record, "", 0, 0); err != nil {
		return err
	}

	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		switch f.op {
		case opField:
			e := f.elem
			switch e.Repetition {
			case schema.Required:
				if f.value == nil {
					return errors.Newf(errors.ErrorTypeSchemaMismatch, "missing required field %s", f.path)
				}
				push(frame{op: opContent, elem: e, value: f.value, path: f.path, rep: f.rep, def: e.DefLevel})

			case schema.Optional:
				if f.value == nil {
					push(frame{op: opAbsent, elem: e, rep: f.rep, def: e.DefLevel - 1})
					continue
				}
				push(frame{op: opContent, elem: e, value: f.value, path: f.path, rep: f.rep, def: e.DefLevel})

			case schema.Repeated:
				if f.value == nil {
					push(frame{op: opAbsent, elem: e, rep: f.rep, def: e.DefLevel - 2})
					continue
				}
				items, ok := asList(f.value)
				if !ok {
					return errors.Newf(errors.ErrorTypeSchemaMismatch,
						"repeated field %s expects a list, got %T", f.path, f.value)
				}
				if len(items) == 0 {
					// Present but empty collection
					push(frame{op: opAbsent, elem: e, rep: f.rep, def: e.DefLevel - 1})
					continue
				}
				// First element continues the enclosing context; later
				// elements open a new entry at this repetition level.
				for i := len(items) - 1; i >= 0; i-- {
					rep := e.RepLevel
					if i == 0 {
						rep = f.rep
					}
					push(frame{op: opContent, elem: e, value: items[i], path: f.path, rep: rep, def: e.DefLevel})
				}
			}

		case opContent:
			e := f.elem
			if e.IsLeaf() {
				v, err := column.Coerce(e.Type, f.value)
				if err != nil {
					return errors.Wrapf(err, errors.ErrorTypeSchemaMismatch, "field %s", f.path)
				}
				buffers[e.Column.Index].Append(f.rep, f.def, v)
				continue
			}
			m, ok := f.value.(map[string]interface{})
			if !ok {
				return errors.Newf(errors.ErrorTypeSchemaMismatch,
					"group field %s expects an object, got %T", f.path, f.value)
			}
			if err := pushGroup(&stack, e.Children, m, f.path, f.rep, f.def); err != nil {
				return err
			}

		case opAbsent:
			e := f.elem
			if e.IsLeaf() {
				buffers[e.Column.Index].Append(f.rep, f.def, column.Null())
				continue
			}
			for i := len(e.Children) - 1; i >= 0; i-- {
				push(frame{op: opAbsent, elem: e.Children[i], rep: f.rep, def: f.def})
			}
		}
	}
	return nil
}

// pushGroup queues the children of a group, in schema order, and rejects
// record keys the schema does not declare.
func pushGroup(stack *[]frame, children []*schema.Element, m map[string]interface{}, path string, rep, def int) error {
	if len(m) > len(children) {
		return unknownKey(children, m, path)
	}
	known := 0
	for _, c := range children {
		if _, ok := m[c.Name]; ok {
			known++
		}
	}
	if known != len(m) {
		return unknownKey(children, m, path)
	}

	for i := len(children) - 1; i >= 0; i-- {
		c := children[i]
		*stack = append(*stack, frame{
			op:    opField,
			elem:  c,
			value: m[c.Name],
			path:  childPath(path, c.Name),
			rep:   rep,
			def:   def,
		})
	}
	return nil
}

func unknownKey(children []*schema.Element, m map[string]interface{}, path string) error {
	known := make(map[string]bool, len(children))
	for _, c := range children {
		known[c.Name] = true
	}
	for k := range m {
		if !known[k] {
			return errors.Newf(errors.ErrorTypeSchemaMismatch, "unknown field %s", childPath(path, k))
		}
	}
	return nil
}

func childPath(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// asList normalizes a repeated field's value to []interface{}. Any slice
// kind except []byte qualifies; []byte is a BYTE_ARRAY scalar.
func asList(v interface{}) ([]interface{}, bool) {
	switch t := v.(type) {
	case []interface{}:
		return t, true
	case []byte:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}
