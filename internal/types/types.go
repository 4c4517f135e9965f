// Package types defines the scalar type system shared by every layer of
// the execution engine: the expression IR, the code generator, the
// runtime intrinsic library and the result set all describe values in
// terms of the Kind and Type defined here.
package types

import "fmt"

// Kind identifies the scalar representation of a column or expression
// result. Every Kind has a fixed in-memory width except Text/VarArray,
// which are represented as a 4-byte dictionary id or offset.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindDecimal  // int64 mantissa + Scale
	KindDate     // int64 epoch days
	KindTime     // int64 epoch seconds
	KindTimestamp
	KindInterval
	KindFixedChar // fixed-width byte string
	KindText      // dictionary-encoded int32 id, or raw varlen
	KindFixedArray
	KindVarArray
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindInt8:
		return "int8"
	case KindInt16:
		return "int16"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindDecimal:
		return "decimal"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindTimestamp:
		return "timestamp"
	case KindInterval:
		return "interval"
	case KindFixedChar:
		return "fixed_char"
	case KindText:
		return "text"
	case KindFixedArray:
		return "fixed_array"
	case KindVarArray:
		return "var_array"
	default:
		return "invalid"
	}
}

// ByteWidth returns the fixed storage width in bytes for fixed-width
// kinds. Text (dictionary-encoded) and VarArray report 4 (the id/offset
// width); FixedChar reports 0 since its width is carried on Type.Length.
func (k Kind) ByteWidth() int {
	switch k {
	case KindBool, KindInt8:
		return 1
	case KindInt16:
		return 2
	case KindInt32, KindFloat32:
		return 4
	case KindInt64, KindFloat64, KindDecimal, KindDate, KindTime, KindTimestamp, KindInterval:
		return 8
	case KindText, KindVarArray:
		return 4
	default:
		return 0
	}
}

// IsInteger reports whether the kind decodes through the integer
// intrinsic path (decode_fixed_width_int) rather than float decoders.
func (k Kind) IsInteger() bool {
	switch k {
	case KindBool, KindInt8, KindInt16, KindInt32, KindInt64,
		KindDecimal, KindDate, KindTime, KindTimestamp, KindInterval, KindText:
		return true
	default:
		return false
	}
}

func (k Kind) IsFloat() bool {
	return k == KindFloat32 || k == KindFloat64
}

// Type fully describes a scalar's storage: kind, nullability, the
// type-specific null sentinel, decimal scale and fixed-length width.
type Type struct {
	Kind     Kind
	Nullable bool
	Scale    int8 // decimal scale; unused otherwise
	Length   int  // FixedChar/FixedArray element width
	DictID   int  // Text dictionary identity, 0 = none (raw varlen)
}

func (t Type) ByteWidth() int {
	if t.Kind == KindFixedChar || t.Kind == KindFixedArray {
		return t.Length
	}
	return t.Kind.ByteWidth()
}

func (t Type) String() string {
	if t.Nullable {
		return fmt.Sprintf("%s?", t.Kind)
	}
	return t.Kind.String()
}

// Null sentinels. Null propagation in the hot path is performed by
// comparing against these values, never via an external bitmap
// (spec §3: "never with an external bitmap in the hot path").
const (
	NullInt8    int64 = -1 << 7
	NullInt16   int64 = -1 << 15
	NullInt32   int64 = -1 << 31
	NullInt64   int64 = -1 << 63
	NullBoolean int64 = NullInt8
)

// FloatNullBits are the IEEE-754 bit patterns used as float/double null
// sentinels (a NaN payload reserved by convention, distinct from any
// NaN produced by arithmetic so it round-trips through aggregation).
const (
	FloatNullBits  uint32 = 0x7f80_0001
	DoubleNullBits uint64 = 0x7ff0_0000_0000_0001
)

// InlineIntNull returns the null sentinel for an integer-backed Kind of
// the given byte width.
func InlineIntNull(byteWidth int) int64 {
	switch byteWidth {
	case 1:
		return NullInt8
	case 2:
		return NullInt16
	case 4:
		return NullInt32
	default:
		return NullInt64
	}
}

// InlineFPNull returns the float/double null sentinel for the given
// byte width, as its bit pattern reinterpreted to the matching numeric
// type by the caller.
func InlineFPNull(byteWidth int) uint64 {
	if byteWidth == 4 {
		return uint64(FloatNullBits)
	}
	return DoubleNullBits
}

// Sentinel returns the null sentinel appropriate for t, as a raw int64
// bit pattern (the caller reinterprets it for float kinds).
func (t Type) Sentinel() int64 {
	if t.Kind.IsFloat() {
		return int64(InlineFPNull(t.ByteWidth()))
	}
	return InlineIntNull(t.ByteWidth())
}
