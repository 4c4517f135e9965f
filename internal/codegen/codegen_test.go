package codegen

import (
	"math"
	"testing"

	"github.com/fenilsonani/polyquery/internal/expr"
	"github.com/fenilsonani/polyquery/internal/types"
)

func doubleType() types.Type { return types.Type{Kind: types.KindFloat64} }
func int64Type() types.Type  { return types.Type{Kind: types.KindInt64} }

func constF(v float64) expr.Expr {
	return &expr.Const{Type: doubleType(), Float: v}
}

func constI(v int64) expr.Expr {
	return &expr.Const{Type: int64Type(), Int: v}
}

func evalBinOp(t *testing.T, op expr.BinOpKind, left, right expr.Expr, resultType types.Type) EvalResult {
	t.Helper()
	b := &expr.BinOp{Op: op, Type: resultType, Left: left, Right: right}
	fn := compileScalar(b)
	return fn(&Row{})
}

func TestCompileBinOpFloatDivision(t *testing.T) {
	r := evalBinOp(t, expr.OpDiv, constF(10), constF(4), doubleType())
	if r.IsNull || r.Float != 2.5 {
		t.Fatalf("10/4 = %+v, want 2.5", r)
	}
}

func TestCompileBinOpFloatDivideByZeroIsInfinite(t *testing.T) {
	r := evalBinOp(t, expr.OpDiv, constF(5), constF(0), doubleType())
	if r.IsNull || !math.IsInf(r.Float, 1) {
		t.Fatalf("5/0 = %+v, want +Inf", r)
	}
	r = evalBinOp(t, expr.OpDiv, constF(-5), constF(0), doubleType())
	if r.IsNull || !math.IsInf(r.Float, -1) {
		t.Fatalf("-5/0 = %+v, want -Inf", r)
	}
}

func TestCompileBinOpFloatZeroOverZeroIsNull(t *testing.T) {
	r := evalBinOp(t, expr.OpDiv, constF(0), constF(0), doubleType())
	if !r.IsNull {
		t.Fatalf("0/0 = %+v, want null", r)
	}
}

func TestCompileBinOpFloatDivisionNullPropagates(t *testing.T) {
	nullConst := &expr.Const{Type: doubleType(), IsNull: true}
	r := evalBinOp(t, expr.OpDiv, nullConst, constF(4), doubleType())
	if !r.IsNull {
		t.Fatalf("null/4 = %+v, want null", r)
	}
}

func TestCompileBinOpIntArithmetic(t *testing.T) {
	cases := []struct {
		op   expr.BinOpKind
		a, b int64
		want int64
	}{
		{expr.OpAdd, 2, 3, 5},
		{expr.OpSub, 5, 3, 2},
		{expr.OpMul, 4, 3, 12},
		{expr.OpDiv, 12, 4, 3},
		{expr.OpMod, 7, 3, 1},
	}
	for _, c := range cases {
		r := evalBinOp(t, c.op, constI(c.a), constI(c.b), int64Type())
		if r.IsNull || r.Int != c.want {
			t.Fatalf("op=%v %d,%d = %+v, want %d", c.op, c.a, c.b, r, c.want)
		}
	}
}

func TestCompileBinOpIntDivideByZeroRecordsErrorCode(t *testing.T) {
	b := &expr.BinOp{Op: expr.OpDiv, Type: int64Type(), Left: constI(1), Right: constI(0)}
	fn := compileScalar(b)
	row := &Row{ErrorCodes: make([]int32, 1)}
	fn(row)
	if row.ErrorCodes[0] == 0 {
		t.Fatalf("expected a persistent error code after divide-by-zero, got 0")
	}
}

func TestCompileBinOpComparison(t *testing.T) {
	r := evalBinOp(t, expr.OpLT, constI(1), constI(2), types.Type{Kind: types.KindBool})
	if r.IsNull || r.Int != 1 {
		t.Fatalf("1<2 = %+v, want true", r)
	}
}
