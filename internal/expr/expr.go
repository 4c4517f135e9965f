// Package expr defines the typed expression intermediate representation
// consumed by the code generator. Expressions are plain trees — no
// evaluation logic lives here, only shape and type, so this package has
// no dependency on storage or the intrinsic library.
package expr

import "github.com/fenilsonani/polyquery/internal/types"

// Expr is the interface implemented by every expression node.
type Expr interface {
	// ResultType is the type this expression evaluates to.
	ResultType() types.Type
	// Children returns the operand subexpressions, in evaluation order.
	Children() []Expr
}

// Const is a compile-time literal. Literal hoisting (codegen §4.3)
// collects these by (value, device) and emits them once into a
// per-device buffer.
type Const struct {
	Type  types.Type
	IsNull bool
	Int   int64   // valid for integer-backed kinds
	Float float64 // valid for float-backed kinds
	Text  string  // valid for KindText literals added transiently
}

func (c *Const) ResultType() types.Type { return c.Type }
func (c *Const) Children() []Expr       { return nil }

// ColumnRef references one column of one input table in the current
// execution unit.
type ColumnRef struct {
	Type      types.Type
	TableIdx  int
	ColumnIdx int
	Name      string
}

func (c *ColumnRef) ResultType() types.Type { return c.Type }
func (c *ColumnRef) Children() []Expr       { return nil }

// BinOp is an arithmetic or comparison operator over two operands.
type BinOp struct {
	Op          BinOpKind
	Type        types.Type
	Left, Right Expr
}

type BinOpKind uint8

const (
	OpAdd BinOpKind = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEQ
	OpNE
	OpLT
	OpLE
	OpGT
	OpGE
	OpAnd
	OpOr
)

func (b *BinOp) ResultType() types.Type { return b.Type }
func (b *BinOp) Children() []Expr       { return []Expr{b.Left, b.Right} }

// IsComparison reports whether Op yields a boolean result.
func (k BinOpKind) IsComparison() bool {
	return k >= OpEQ && k <= OpGE
}

// UnaryOp is a one-operand operator (negation, logical not, IS NULL and
// IS NOT NULL; the diamond-control-flow codegen treats these as a
// trivial one-child BinOp-shaped node).
type UnaryOp struct {
	Op    UnaryOpKind
	Type  types.Type
	Input Expr
}

type UnaryOpKind uint8

const (
	OpNeg UnaryOpKind = iota
	OpNot
	OpIsNull
	OpIsNotNull
)

func (u *UnaryOp) ResultType() types.Type { return u.Type }
func (u *UnaryOp) Children() []Expr       { return []Expr{u.Input} }

// CaseWhen implements CASE WHEN cond THEN then ... ELSE els END.
type CaseWhen struct {
	Type       types.Type
	Conditions []Expr
	Results    []Expr
	Else       Expr // may be nil, which evaluates to null
}

func (c *CaseWhen) ResultType() types.Type { return c.Type }
func (c *CaseWhen) Children() []Expr {
	out := make([]Expr, 0, len(c.Conditions)*2+1)
	for i := range c.Conditions {
		out = append(out, c.Conditions[i], c.Results[i])
	}
	if c.Else != nil {
		out = append(out, c.Else)
	}
	return out
}

// StringOp covers the small set of string operations the row function
// can call directly into the intrinsic library for (length, like,
// substring); dictionary translation is handled by the codegen, not
// modeled as a child expression here.
type StringOp struct {
	Op    StringOpKind
	Type  types.Type
	Input Expr
	Arg   Expr // optional second operand (pattern, start index, ...)
}

type StringOpKind uint8

const (
	StrLength StringOpKind = iota
	StrLike
	StrSubstring
)

func (s *StringOp) ResultType() types.Type { return s.Type }
func (s *StringOp) Children() []Expr {
	if s.Arg == nil {
		return []Expr{s.Input}
	}
	return []Expr{s.Input, s.Arg}
}

// AggKind enumerates the aggregate update intrinsics from spec §4.1.
type AggKind uint8

const (
	AggCount AggKind = iota
	AggSum
	AggMin
	AggMax
	AggSingleValue // kSINGLE_VALUE / kSAMPLE target
	AggAvg
	AggCountDistinct
	AggApproxCountDistinct
)

// Aggregate is an aggregate target: an expression evaluated per row and
// folded into one slot per group via AggKind's update intrinsic.
type Aggregate struct {
	Kind       AggKind
	Type       types.Type // the output slot's type (wider than Arg for AVG/SUM overflow headroom)
	Arg        Expr       // nil for COUNT(*)
	SkipNulls  bool       // true unless an explicit _skip_val-ignoring variant is requested
	ApproxBits uint8      // HLL register-count exponent, AggApproxCountDistinct only

	// HasRange/RangeMin/RangeMax annotate AggCountDistinct targets with
	// the operand column's known dense range, the same hint
	// qmd.GroupByColumn carries for GROUP BY keys — it is what lets
	// qmd.Decide resolve the Bitmap-vs-Sketch choice (spec §9 Open
	// Question a) instead of always falling back to a sketch.
	HasRange bool
	RangeMin int64
	RangeMax int64
}

func (a *Aggregate) ResultType() types.Type { return a.Type }
func (a *Aggregate) Children() []Expr {
	if a.Arg == nil {
		return nil
	}
	return []Expr{a.Arg}
}

// ExtensionCall invokes a whitelisted external C-ABI function declared
// to the code generator (spec §4.3 "Extension functions").
type ExtensionCall struct {
	Name string
	Type types.Type
	Args []Expr
}

func (e *ExtensionCall) ResultType() types.Type { return e.Type }
func (e *ExtensionCall) Children() []Expr        { return e.Args }

// Walk visits e and every descendant in pre-order.
func Walk(e Expr, visit func(Expr)) {
	if e == nil {
		return
	}
	visit(e)
	for _, c := range e.Children() {
		Walk(c, visit)
	}
}
