package intrinsics

import "math"

// IntBinFunc is one unchecked integer binary operator. Division sets
// ErrCodeDivideByZero via the returned error code rather than panicking
// — per-row arithmetic errors never cross the JIT boundary as Go errors
// (spec §7).
type IntBinFunc func(a, b int64) (int64, int32)

var (
	IntAdd IntBinFunc = func(a, b int64) (int64, int32) { return a + b, 0 }
	IntSub IntBinFunc = func(a, b int64) (int64, int32) { return a - b, 0 }
	IntMul IntBinFunc = func(a, b int64) (int64, int32) { return a * b, 0 }
	IntDiv IntBinFunc = func(a, b int64) (int64, int32) {
		if b == 0 {
			return 0, ErrCodeDivideByZero
		}
		return a / b, 0
	}
	IntMod IntBinFunc = func(a, b int64) (int64, int32) {
		if b == 0 {
			return 0, ErrCodeDivideByZero
		}
		return a % b, 0
	}
)

// NullableBothInt applies op with "either operand null => null" null
// propagation (spec §8: op_nullable(a,b)=null iff a=null∨b=null).
func NullableBothInt(op IntBinFunc, a, b int64, aNull, bNull bool, sentinel int64) (int64, bool, int32) {
	if aNull || bNull {
		return sentinel, true, 0
	}
	v, code := op(a, b)
	return v, false, code
}

// NullableLhsInt propagates null only from the left operand — the
// restricted variant's contract from spec §8.
func NullableLhsInt(op IntBinFunc, a, b int64, aNull bool, sentinel int64) (int64, bool, int32) {
	if aNull {
		return sentinel, true, 0
	}
	v, code := op(a, b)
	return v, false, code
}

// NullableRhsInt propagates null only from the right operand.
func NullableRhsInt(op IntBinFunc, a, b int64, bNull bool, sentinel int64) (int64, bool, int32) {
	if bNull {
		return sentinel, true, 0
	}
	v, code := op(a, b)
	return v, false, code
}

// IntCompareFunc is one integer comparison operator.
type IntCompareFunc func(a, b int64) bool

var (
	IntEQ IntCompareFunc = func(a, b int64) bool { return a == b }
	IntNE IntCompareFunc = func(a, b int64) bool { return a != b }
	IntLT IntCompareFunc = func(a, b int64) bool { return a < b }
	IntLE IntCompareFunc = func(a, b int64) bool { return a <= b }
	IntGT IntCompareFunc = func(a, b int64) bool { return a > b }
	IntGE IntCompareFunc = func(a, b int64) bool { return a >= b }
)

// NullableCompareInt evaluates a boolean comparison with null
// propagation, returning the result as 0/1 plus an isNull flag (the row
// function branches on isNull rather than trusting the 0/1 value when
// a null sentinel is in play).
func NullableCompareInt(op IntCompareFunc, a, b int64, aNull, bNull bool) (int64, bool) {
	if aNull || bNull {
		return 0, true
	}
	if op(a, b) {
		return 1, false
	}
	return 0, false
}

// FloatBinFunc is one floating-point binary operator.
type FloatBinFunc func(a, b float64) float64

var (
	FloatAdd FloatBinFunc = func(a, b float64) float64 { return a + b }
	FloatSub FloatBinFunc = func(a, b float64) float64 { return a - b }
	FloatMul FloatBinFunc = func(a, b float64) float64 { return a * b }
)

// FloatDivSafeInfinite implements "safe infinite division" (spec
// §4.1): returns ±inf on an exact-zero divisor (sign taken from the
// dividend) and null on 0/0, rather than propagating Go's NaN/Inf
// straight through.
func FloatDivSafeInfinite(a, b float64, sentinel float64) (float64, bool) {
	if b == 0 {
		if a == 0 {
			return sentinel, true
		}
		if a > 0 {
			return math.Inf(1), false
		}
		return math.Inf(-1), false
	}
	return a / b, false
}

// NullableBothFloat is FloatBinFunc's null-propagating wrapper.
func NullableBothFloat(op FloatBinFunc, a, b float64, aNull, bNull bool, sentinel float64) (float64, bool) {
	if aNull || bNull {
		return sentinel, true
	}
	return op(a, b), false
}

func NullableLhsFloat(op FloatBinFunc, a, b float64, aNull bool, sentinel float64) (float64, bool) {
	if aNull {
		return sentinel, true
	}
	return op(a, b), false
}

func NullableRhsFloat(op FloatBinFunc, a, b float64, bNull bool, sentinel float64) (float64, bool) {
	if bNull {
		return sentinel, true
	}
	return op(a, b), false
}

// FloatCompareFunc mirrors IntCompareFunc for float operands.
type FloatCompareFunc func(a, b float64) bool

var (
	FloatEQ FloatCompareFunc = func(a, b float64) bool { return a == b }
	FloatNE FloatCompareFunc = func(a, b float64) bool { return a != b }
	FloatLT FloatCompareFunc = func(a, b float64) bool { return a < b }
	FloatLE FloatCompareFunc = func(a, b float64) bool { return a <= b }
	FloatGT FloatCompareFunc = func(a, b float64) bool { return a > b }
	FloatGE FloatCompareFunc = func(a, b float64) bool { return a >= b }
)

func NullableCompareFloat(op FloatCompareFunc, a, b float64, aNull, bNull bool) (int64, bool) {
	if aNull || bNull {
		return 0, true
	}
	if op(a, b) {
		return 1, false
	}
	return 0, false
}
