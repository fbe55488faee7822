// Package column provides the scalar value representation and the in-memory
// per-leaf buffers that row groups accumulate into before being sealed.
package column

import (
	"fmt"
	"math"

	"github.com/strataio/strata/pkg/errors"
	"github.com/strataio/strata/pkg/schema"
)

// Value is one scalar occurrence for a leaf column. The zero Value is null.
type Value struct {
	typ   schema.Type
	null  bool
	i64   int64
	f64   float64
	b     bool
	bytes []byte
}

// Null returns the null value.
func Null() Value { return Value{null: true} }

// Int32Value returns an INT32 value.
func Int32Value(v int32) Value { return Value{typ: schema.Int32, i64: int64(v)} }

// Int64Value returns an INT64 value.
func Int64Value(v int64) Value { return Value{typ: schema.Int64, i64: v} }

// FloatValue returns a FLOAT value.
func FloatValue(v float32) Value { return Value{typ: schema.Float, f64: float64(v)} }

// DoubleValue returns a DOUBLE value.
func DoubleValue(v float64) Value { return Value{typ: schema.Double, f64: v} }

// BooleanValue returns a BOOLEAN value.
func BooleanValue(v bool) Value { return Value{typ: schema.Boolean, b: v} }

// ByteArrayValue returns a BYTE_ARRAY value. The slice is not copied.
func ByteArrayValue(v []byte) Value { return Value{typ: schema.ByteArray, bytes: v} }

// StringValue returns a UTF8 value.
func StringValue(v string) Value { return Value{typ: schema.UTF8, bytes: []byte(v)} }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.null }

// Type returns the value's semantic type; empty for null.
func (v Value) Type() schema.Type { return v.typ }

// Int32 returns the value as int32.
func (v Value) Int32() int32 { return int32(v.i64) }

// Int64 returns the value as int64.
func (v Value) Int64() int64 { return v.i64 }

// Float returns the value as float32.
func (v Value) Float() float32 { return float32(v.f64) }

// Double returns the value as float64.
func (v Value) Double() float64 { return v.f64 }

// Boolean returns the value as bool.
func (v Value) Boolean() bool { return v.b }

// Bytes returns the raw byte payload of BYTE_ARRAY and UTF8 values.
func (v Value) Bytes() []byte { return v.bytes }

// Any returns the canonical Go representation of the value: bool, int32,
// int64, float32, float64, string or []byte; nil when null.
func (v Value) Any() interface{} {
	if v.null {
		return nil
	}
	switch v.typ {
	case schema.Boolean:
		return v.b
	case schema.Int32:
		return int32(v.i64)
	case schema.Int64:
		return v.i64
	case schema.Float:
		return float32(v.f64)
	case schema.Double:
		return v.f64
	case schema.UTF8:
		return string(v.bytes)
	case schema.ByteArray:
		return v.bytes
	default:
		return nil
	}
}

// Size returns the approximate in-memory footprint of the value in bytes,
// used by the writer's flush policy.
func (v Value) Size() int64 {
	switch v.typ {
	case schema.Boolean:
		return 1
	case schema.Int32, schema.Float:
		return 4
	case schema.Int64, schema.Double:
		return 8
	case schema.UTF8, schema.ByteArray:
		return int64(len(v.bytes)) + 4
	default:
		return 0
	}
}

// Coerce converts a Go value to a Value of the given type, applying the
// lenient numeric conversions records commonly need (JSON numbers arrive as
// float64, integers as any width). Returns a schema mismatch error when the
// value cannot represent the type.
func Coerce(t schema.Type, value interface{}) (Value, error) {
	switch t {
	case schema.Boolean:
		if v, ok := value.(bool); ok {
			return BooleanValue(v), nil
		}
	case schema.Int32:
		if v, ok := toInt64(value); ok && v >= math.MinInt32 && v <= math.MaxInt32 {
			return Int32Value(int32(v)), nil
		}
	case schema.Int64:
		if v, ok := toInt64(value); ok {
			return Int64Value(v), nil
		}
	case schema.Float:
		switch v := value.(type) {
		case float32:
			return FloatValue(v), nil
		case float64:
			return FloatValue(float32(v)), nil
		}
	case schema.Double:
		switch v := value.(type) {
		case float64:
			return DoubleValue(v), nil
		case float32:
			return DoubleValue(float64(v)), nil
		}
	case schema.UTF8:
		switch v := value.(type) {
		case string:
			return StringValue(v), nil
		case []byte:
			return StringValue(string(v)), nil
		}
	case schema.ByteArray:
		switch v := value.(type) {
		case []byte:
			return ByteArrayValue(v), nil
		case string:
			return ByteArrayValue([]byte(v)), nil
		}
	default:
		return Null(), errors.Newf(errors.ErrorTypeSchemaMismatch, "unknown column type %q", t)
	}
	return Null(), errors.Newf(errors.ErrorTypeSchemaMismatch, "cannot use %s as %s", typeName(value), t)
}

func toInt64(value interface{}) (int64, bool) {
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		// JSON decoding yields float64 for all numbers
		if v == math.Trunc(v) && v >= math.MinInt64 && v <= math.MaxInt64 {
			return int64(v), true
		}
	}
	return 0, false
}

func typeName(value interface{}) string {
	if value == nil {
		return "null"
	}
	return fmt.Sprintf("%T", value)
}
