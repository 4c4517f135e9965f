package dispatch

import (
	"github.com/fenilsonani/polyquery/internal/expr"
	"github.com/fenilsonani/polyquery/internal/storage"
)

// fragmentSkippable reports whether every row in frag is provably
// excluded by quals without decoding a single row, comparing each
// simple qual's literal against the fragment's per-column min/max
// summary (spec §4.3 row function step 1, "evaluate simple quals
// against fragment min/max; skip fragment entirely on failure").
func fragmentSkippable(quals []expr.Expr, frag *storage.Fragment) bool {
	for _, q := range quals {
		if qualExcludesFragment(q, frag) {
			return true
		}
	}
	return false
}

func qualExcludesFragment(q expr.Expr, frag *storage.Fragment) bool {
	b, ok := q.(*expr.BinOp)
	if !ok || !b.Op.IsComparison() {
		return false
	}
	col, lit, litOnRight := asColumnLiteral(b.Left, b.Right)
	if col == nil {
		return false
	}
	op := b.Op
	if !litOnRight {
		op = flip(op)
	}
	mm := frag.Range(col.ColumnIdx)
	if !mm.Valid {
		return false
	}
	if col.Type.Kind.IsFloat() {
		return floatExcludes(op, lit.Float, mm.MinFloat, mm.MaxFloat)
	}
	return intExcludes(op, lit.Int, mm.MinInt, mm.MaxInt)
}

func asColumnLiteral(l, r expr.Expr) (col *expr.ColumnRef, lit *expr.Const, litOnRight bool) {
	if c, ok := l.(*expr.ColumnRef); ok {
		if k, ok := r.(*expr.Const); ok && !k.IsNull {
			return c, k, true
		}
	}
	if c, ok := r.(*expr.ColumnRef); ok {
		if k, ok := l.(*expr.Const); ok && !k.IsNull {
			return c, k, false
		}
	}
	return nil, nil, false
}

func flip(op expr.BinOpKind) expr.BinOpKind {
	switch op {
	case expr.OpLT:
		return expr.OpGT
	case expr.OpLE:
		return expr.OpGE
	case expr.OpGT:
		return expr.OpLT
	case expr.OpGE:
		return expr.OpLE
	default:
		return op // EQ/NE are symmetric
	}
}

func intExcludes(op expr.BinOpKind, lit, min, max int64) bool {
	switch op {
	case expr.OpEQ:
		return lit < min || lit > max
	case expr.OpLT:
		return min >= lit
	case expr.OpLE:
		return min > lit
	case expr.OpGT:
		return max <= lit
	case expr.OpGE:
		return max < lit
	default:
		return false
	}
}

func floatExcludes(op expr.BinOpKind, lit, min, max float64) bool {
	switch op {
	case expr.OpEQ:
		return lit < min || lit > max
	case expr.OpLT:
		return min >= lit
	case expr.OpLE:
		return min > lit
	case expr.OpGT:
		return max <= lit
	case expr.OpGE:
		return max < lit
	default:
		return false
	}
}
