// Package codegen lowers an expression tree plus a query memory
// descriptor into a compiled kernel. A literal LLVM JIT is not an
// idiomatic Go artifact (no cgo/LLVM binding is available here), so
// "compiling" means building a tree of Go closures once and reusing it
// across every fragment and every row — the same dispatch-to-a-chosen-
// closure shape the quantum package uses to pick gpuDiff/simdMyersDiff/
// quantumDiff by input size. The "linked-in intrinsic module" becomes
// an ordinary import of internal/intrinsics.
package codegen

import (
	"fmt"
	"math"

	"github.com/fenilsonani/polyquery/internal/expr"
	"github.com/fenilsonani/polyquery/internal/intrinsics"
	"github.com/fenilsonani/polyquery/internal/qmd"
	"github.com/fenilsonani/polyquery/internal/types"
)

// Device identifies which closure variant a compiled kernel targets.
type Device int

const (
	DeviceCPU Device = iota
	DeviceGPU
)

func (d Device) String() string {
	if d == DeviceGPU {
		return "gpu"
	}
	return "cpu"
}

// Row is the per-row argument bundle the row function reads from. All
// fields are pre-pinned buffers; the row function never allocates
// (spec §5 "Memory discipline").
type Row struct {
	Columns     [][]byte // one buffer per referenced column, indexed by ColumnRef.ColumnIdx within its TableIdx
	ColumnWidth []int    // byte width of each Columns entry's elements
	RowIdx      int      // row position within the current fragment
	Literals    []int64  // hoisted literal buffer for this device
	ErrorCodes  []int32
	ErrorSlot   int
	CD          *intrinsics.CDStore // per-group COUNT DISTINCT / APPROX_COUNT_DISTINCT state, keyed by group key + target index
}

// EvalResult is an evaluated scalar, carried as a raw int64/float64 bit
// pattern plus a null flag — mirroring the runtime's sentinel-based
// null propagation rather than a boxed value.
type EvalResult struct {
	Int    int64
	Float  float64
	IsNull bool
}

// ScalarFunc is one compiled closure: evaluate an expression for the
// current row.
type ScalarFunc func(row *Row) EvalResult

// RowFunc is the compiled per-row body: evaluate quals, look up the
// group's aggregate region, and fold each target into it (spec §4.3
// "Row function" diamond-control-flow steps 3-6; qual skip/join-probe
// are steps 1-2, handled by internal/dispatch before RowFunc is
// called, since they operate at fragment/probe granularity rather than
// per-expression granularity).
type RowFunc func(row *Row, groups *intrinsics.GroupValueTable, groupKey int64, groupHash uint64) int32

// CompiledKernel is the result of Compile: a row function plus the
// metadata codegen needs to describe it (spec §3 "Compiled kernel:
// cached by fingerprint... Evicted under LRU").
type CompiledKernel struct {
	RowFunc       RowFunc
	GroupKeys     []ScalarFunc // one per GROUP BY column; internal/dispatch evaluates these per row since it owns the GroupValueTable
	Device        Device
	Descriptor    *qmd.Descriptor
	Fingerprint   string
	HoistLiterals bool
	// InitRegion is the per-slot "empty" template internal/dispatch
	// copies into a GroupValueTable region the first time a key claims
	// it (spec §3 "Output buffer... initialized with typed sentinel
	// 'empty' values"). Length is Descriptor.RowSizeBytes/8; nil means
	// zero-init is already correct (no MIN/MAX/SINGLE_VALUE targets).
	InitRegion []int64
}

// Fingerprint computes the cache key from spec §4.3's "Caching" rule:
// (RA unit normalized hash, QMD structural hash, device kind, literal-
// hoisting flag).
func Fingerprint(planHash string, d *qmd.Descriptor, device Device, hoistLiterals bool) string {
	return fmt.Sprintf("%s|%s|%s|%v", planHash, d.String(), device, hoistLiterals)
}

// CompileExpr lowers a standalone expression (e.g. a join condition's
// outer/inner key, evaluated by internal/dispatch outside of a Plan's
// qual/target list) into a callable closure using the same compiler
// compileScalar uses internally.
func CompileExpr(e expr.Expr) ScalarFunc { return compileScalar(e) }

// compileScalar lowers one expr.Expr into a closure. This is the
// "linked against internal/intrinsics by direct Go call" step — every
// leaf and operator maps onto a runtime intrinsic or a trivial decode.
func compileScalar(e expr.Expr) ScalarFunc {
	switch n := e.(type) {
	case *expr.Const:
		return compileConst(n)
	case *expr.ColumnRef:
		return compileColumnRef(n)
	case *expr.BinOp:
		return compileBinOp(n)
	case *expr.UnaryOp:
		return compileUnaryOp(n)
	case *expr.CaseWhen:
		return compileCaseWhen(n)
	default:
		return func(row *Row) EvalResult { return EvalResult{IsNull: true} }
	}
}

func compileConst(c *expr.Const) ScalarFunc {
	if c.IsNull {
		return func(row *Row) EvalResult { return EvalResult{IsNull: true} }
	}
	if c.Type.Kind.IsFloat() {
		v := c.Float
		return func(row *Row) EvalResult { return EvalResult{Float: v} }
	}
	v := c.Int
	return func(row *Row) EvalResult { return EvalResult{Int: v} }
}

func compileColumnRef(c *expr.ColumnRef) ScalarFunc {
	width := c.Type.ByteWidth()
	sentinel := c.Type.Sentinel()
	isFloat := c.Type.Kind.IsFloat()
	colIdx := c.ColumnIdx
	return func(row *Row) EvalResult {
		buf := row.Columns[colIdx]
		if isFloat {
			if width == 4 {
				v := intrinsics.DecodeFloat(buf, row.RowIdx)
				if uint64(math.Float32bits(v)) == uint64(types.FloatNullBits) {
					return EvalResult{IsNull: true}
				}
				return EvalResult{Float: float64(v)}
			}
			v := intrinsics.DecodeDouble(buf, row.RowIdx)
			if math.Float64bits(v) == types.DoubleNullBits {
				return EvalResult{IsNull: true}
			}
			return EvalResult{Float: v}
		}
		v := intrinsics.DecodeFixedWidthInt(buf, width, row.RowIdx)
		if v == sentinel {
			return EvalResult{IsNull: true}
		}
		return EvalResult{Int: v}
	}
}

func compileBinOp(b *expr.BinOp) ScalarFunc {
	left := compileScalar(b.Left)
	right := compileScalar(b.Right)
	isFloat := b.Left.ResultType().Kind.IsFloat() || b.Right.ResultType().Kind.IsFloat()
	sentinel := b.Type.Sentinel()

	if b.Op.IsComparison() {
		if isFloat {
			op := floatCompareOp(b.Op)
			return func(row *Row) EvalResult {
				l, r := left(row), right(row)
				v, isNull := intrinsics.NullableCompareFloat(op, l.Float, r.Float, l.IsNull, r.IsNull)
				return EvalResult{Int: v, IsNull: isNull}
			}
		}
		op := intCompareOp(b.Op)
		return func(row *Row) EvalResult {
			l, r := left(row), right(row)
			v, isNull := intrinsics.NullableCompareInt(op, l.Int, r.Int, l.IsNull, r.IsNull)
			return EvalResult{Int: v, IsNull: isNull}
		}
	}

	if isFloat {
		if b.Op == expr.OpDiv {
			sentinelF := floatSentinel(sentinel)
			return func(row *Row) EvalResult {
				l, r := left(row), right(row)
				if l.IsNull || r.IsNull {
					return EvalResult{Float: sentinelF, IsNull: true}
				}
				v, isNull := intrinsics.FloatDivSafeInfinite(l.Float, r.Float, sentinelF)
				return EvalResult{Float: v, IsNull: isNull}
			}
		}
		op := floatBinOp(b.Op)
		return func(row *Row) EvalResult {
			l, r := left(row), right(row)
			v, isNull := intrinsics.NullableBothFloat(op, l.Float, r.Float, l.IsNull, r.IsNull, floatSentinel(sentinel))
			return EvalResult{Float: v, IsNull: isNull}
		}
	}
	op := intBinOp(b.Op)
	return func(row *Row) EvalResult {
		l, r := left(row), right(row)
		v, isNull, code := intrinsics.NullableBothInt(op, l.Int, r.Int, l.IsNull, r.IsNull, sentinel)
		if code != 0 && row.ErrorCodes != nil {
			intrinsics.RecordErrorCode(code, row.ErrorCodes, row.ErrorSlot)
		}
		return EvalResult{Int: v, IsNull: isNull}
	}
}

func compileUnaryOp(u *expr.UnaryOp) ScalarFunc {
	input := compileScalar(u.Input)
	switch u.Op {
	case expr.OpIsNull:
		return func(row *Row) EvalResult {
			r := input(row)
			v := int64(0)
			if r.IsNull {
				v = 1
			}
			return EvalResult{Int: v}
		}
	case expr.OpIsNotNull:
		return func(row *Row) EvalResult {
			r := input(row)
			v := int64(1)
			if r.IsNull {
				v = 0
			}
			return EvalResult{Int: v}
		}
	case expr.OpNot:
		return func(row *Row) EvalResult {
			r := input(row)
			if r.IsNull {
				return r
			}
			v := int64(1)
			if r.Int != 0 {
				v = 0
			}
			return EvalResult{Int: v}
		}
	default: // OpNeg
		isFloat := u.Type.Kind.IsFloat()
		return func(row *Row) EvalResult {
			r := input(row)
			if r.IsNull {
				return r
			}
			if isFloat {
				return EvalResult{Float: -r.Float}
			}
			return EvalResult{Int: -r.Int}
		}
	}
}

func compileCaseWhen(c *expr.CaseWhen) ScalarFunc {
	conds := make([]ScalarFunc, len(c.Conditions))
	results := make([]ScalarFunc, len(c.Results))
	for i := range c.Conditions {
		conds[i] = compileScalar(c.Conditions[i])
		results[i] = compileScalar(c.Results[i])
	}
	var elseFn ScalarFunc
	if c.Else != nil {
		elseFn = compileScalar(c.Else)
	}
	return func(row *Row) EvalResult {
		for i, cond := range conds {
			r := cond(row)
			if !r.IsNull && r.Int != 0 {
				return results[i](row)
			}
		}
		if elseFn != nil {
			return elseFn(row)
		}
		return EvalResult{IsNull: true}
	}
}

func intBinOp(op expr.BinOpKind) intrinsics.IntBinFunc {
	switch op {
	case expr.OpAdd:
		return intrinsics.IntAdd
	case expr.OpSub:
		return intrinsics.IntSub
	case expr.OpMul:
		return intrinsics.IntMul
	case expr.OpMod:
		return intrinsics.IntMod
	default:
		return intrinsics.IntDiv
	}
}

// floatBinOp maps the arithmetic BinOpKinds except OpDiv, which compileBinOp
// handles separately via FloatDivSafeInfinite (spec §4.1 "safe infinite
// division" needs the divisor-is-zero branch a plain FloatBinFunc can't
// express).
func floatBinOp(op expr.BinOpKind) intrinsics.FloatBinFunc {
	switch op {
	case expr.OpSub:
		return intrinsics.FloatSub
	case expr.OpMul:
		return intrinsics.FloatMul
	case expr.OpMod:
		return math.Mod
	default:
		return intrinsics.FloatAdd
	}
}

func intCompareOp(op expr.BinOpKind) intrinsics.IntCompareFunc {
	switch op {
	case expr.OpEQ:
		return intrinsics.IntEQ
	case expr.OpNE:
		return intrinsics.IntNE
	case expr.OpLT:
		return intrinsics.IntLT
	case expr.OpLE:
		return intrinsics.IntLE
	case expr.OpGT:
		return intrinsics.IntGT
	default:
		return intrinsics.IntGE
	}
}

func floatCompareOp(op expr.BinOpKind) intrinsics.FloatCompareFunc {
	switch op {
	case expr.OpEQ:
		return intrinsics.FloatEQ
	case expr.OpNE:
		return intrinsics.FloatNE
	case expr.OpLT:
		return intrinsics.FloatLT
	case expr.OpLE:
		return intrinsics.FloatLE
	case expr.OpGT:
		return intrinsics.FloatGT
	default:
		return intrinsics.FloatGE
	}
}

// floatSentinel reinterprets a Type.Sentinel() int64 bit pattern as the
// float64 value the null-propagating float intrinsics expect.
func floatSentinel(bits int64) float64 {
	return math.Float64frombits(uint64(bits))
}
