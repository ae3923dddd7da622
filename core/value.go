package core

import (
	"fmt"
	"math"
	"strconv"
)

// Timestamp is a point in time expressed in the caller's unit (typically
// milliseconds since epoch). The engine never interprets it beyond ordering.
type Timestamp uint64

// ValueType identifies the primitive type carried by every value of a stream.
// A stream is homogeneous: the type is fixed at creation and enforced on
// every insert.
type ValueType byte

const (
	Integer64  ValueType = 0x00
	UInteger64 ValueType = 0x01
	Float64    ValueType = 0x02
)

// ValueTypeFromByte decodes a ValueType from its on-disk representation.
func ValueTypeFromByte(b byte) (ValueType, error) {
	switch vt := ValueType(b); vt {
	case Integer64, UInteger64, Float64:
		return vt, nil
	default:
		return 0, fmt.Errorf("unknown value type byte 0x%02x", b)
	}
}

// ParseValueType parses a human-readable value type name, as used in config
// files and the boundary API.
func ParseValueType(s string) (ValueType, error) {
	switch s {
	case "int64", "integer64":
		return Integer64, nil
	case "uint64", "uinteger64":
		return UInteger64, nil
	case "float64":
		return Float64, nil
	default:
		return 0, fmt.Errorf("unknown value type %q", s)
	}
}

func (vt ValueType) String() string {
	switch vt {
	case Integer64:
		return "int64"
	case UInteger64:
		return "uint64"
	case Float64:
		return "float64"
	default:
		return fmt.Sprintf("ValueType(0x%02x)", byte(vt))
	}
}

// IsValid reports whether vt is one of the three supported types.
func (vt ValueType) IsValid() bool {
	return vt == Integer64 || vt == UInteger64 || vt == Float64
}

// ReturnType is the statically-determined shape of a query result: a single
// reduced scalar or a sequence of (timestamp, value) vectors.
type ReturnType byte

const (
	ReturnScalar ReturnType = 0x00
	ReturnVector ReturnType = 0x01
)

func (rt ReturnType) String() string {
	switch rt {
	case ReturnScalar:
		return "scalar"
	case ReturnVector:
		return "vector"
	default:
		return fmt.Sprintf("ReturnType(0x%02x)", byte(rt))
	}
}

// Value is an 8-byte tagged-by-context union over int64, uint64 and float64.
// The tag (ValueType) lives on the stream, not on the value, so a Value is
// meaningless without the ValueType of the stream it came from. Consumption
// sites must switch exhaustively on the ValueType; there is no implicit
// coercion between numeric kinds.
type Value struct {
	bits uint64
}

func NewInt64Value(v int64) Value     { return Value{bits: uint64(v)} }
func NewUint64Value(v uint64) Value   { return Value{bits: v} }
func NewFloat64Value(v float64) Value { return Value{bits: math.Float64bits(v)} }

// ZeroValue is the reducer identity for every value type: 0, 0 and 0.0 all
// share the same bit pattern.
func ZeroValue() Value { return Value{} }

func (v Value) Int64() int64     { return int64(v.bits) }
func (v Value) Uint64() uint64   { return v.bits }
func (v Value) Float64() float64 { return math.Float64frombits(v.bits) }

// Bits exposes the raw representation for serialization.
func (v Value) Bits() uint64 { return v.bits }

// ValueFromBits reconstructs a Value from its serialized representation.
func ValueFromBits(bits uint64) Value { return Value{bits: bits} }

// AsFloat64 converts the value to a float64 under the given type tag. Used
// by reductions whose result is inherently floating point (avg).
func (v Value) AsFloat64(vt ValueType) float64 {
	switch vt {
	case Integer64:
		return float64(v.Int64())
	case UInteger64:
		return float64(v.Uint64())
	case Float64:
		return v.Float64()
	default:
		panic("core: invalid value type " + vt.String())
	}
}

// Add returns v + other in the value type's native arithmetic. Integer
// addition wraps on overflow.
func (v Value) Add(vt ValueType, other Value) Value {
	switch vt {
	case Integer64:
		return NewInt64Value(v.Int64() + other.Int64())
	case UInteger64:
		return NewUint64Value(v.Uint64() + other.Uint64())
	case Float64:
		return NewFloat64Value(v.Float64() + other.Float64())
	default:
		panic("core: invalid value type " + vt.String())
	}
}

// Less reports v < other under the given type tag.
func (v Value) Less(vt ValueType, other Value) bool {
	switch vt {
	case Integer64:
		return v.Int64() < other.Int64()
	case UInteger64:
		return v.Uint64() < other.Uint64()
	case Float64:
		return v.Float64() < other.Float64()
	default:
		panic("core: invalid value type " + vt.String())
	}
}

// Min returns the smaller of v and other under the given type tag.
func (v Value) Min(vt ValueType, other Value) Value {
	if other.Less(vt, v) {
		return other
	}
	return v
}

// Max returns the larger of v and other under the given type tag.
func (v Value) Max(vt ValueType, other Value) Value {
	if v.Less(vt, other) {
		return other
	}
	return v
}

// Equal reports bitwise-typed equality of two values of the same type.
func (v Value) Equal(vt ValueType, other Value) bool {
	switch vt {
	case Float64:
		return v.Float64() == other.Float64()
	default:
		return v.bits == other.bits
	}
}

// Format renders the value for logs and tabular output.
func (v Value) Format(vt ValueType) string {
	switch vt {
	case Integer64:
		return strconv.FormatInt(v.Int64(), 10)
	case UInteger64:
		return strconv.FormatUint(v.Uint64(), 10)
	case Float64:
		return strconv.FormatFloat(v.Float64(), 'g', -1, 64)
	default:
		return fmt.Sprintf("Value(0x%016x)", v.bits)
	}
}

// Vector is one query result row: a timestamped value.
type Vector struct {
	Timestamp Timestamp
	Value     Value
}
