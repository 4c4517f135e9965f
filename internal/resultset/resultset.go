// Package resultset implements the result set and reduction stage:
// the typed, iterable view over one or more per-kernel output buffers,
// the multi-kernel/multi-device merge, and the terminal sort/limit/
// offset pass (spec.md §4.7). It sits directly above
// internal/dispatch, consuming the KernelResults a Dispatcher.Run call
// produces.
//
// Grounded on the teacher's internal/core/index.Index binary
// WriteTo/ReadFrom round-trip discipline for the columnar exchange
// format in exchange.go (which carries no header or checksum: each
// Column is a packed little-endian buffer plus a per-row null flag),
// and on objects.Tree's sorted-entry-iteration style for typed row
// iteration.
package resultset

import (
	"math"

	"github.com/fenilsonani/polyquery/internal/dispatch"
	"github.com/fenilsonani/polyquery/internal/expr"
	"github.com/fenilsonani/polyquery/internal/intrinsics"
	"github.com/fenilsonani/polyquery/internal/qmd"
	"github.com/fenilsonani/polyquery/internal/types"
)

// Value is one materialized scalar: a null-aware int64/float64 pair,
// the same shape codegen.EvalResult uses so the reduction stage never
// has to re-decode through the sentinel convention.
type Value struct {
	Int     int64
	Float   float64
	IsNull  bool
	IsFloat bool
}

// Row is one output row: one Value per output column.
type Row []Value

// ResultSet owns the reduced, typed rows plus the schema describing
// them (spec §3 "Result set. Owns... one or more output buffers with
// a QMD. Iteration yields typed target values.").
type ResultSet struct {
	ColumnTypes []types.Type
	Rows        []Row
	Descriptor  *qmd.Descriptor
}

// Len implements sort.Interface-adjacent iteration helpers.
func (rs *ResultSet) Len() int { return len(rs.Rows) }

// groupAccumulator is one logical group's merged state across every
// kernel result that touched it, keyed by the raw int64 group key the
// row loop computed (spec §5 "aggregates are order-independent by
// construction").
type groupAccumulator struct {
	rawKey int64
	region []int64
	cd     map[int]intrinsics.CDAccumulator
}

// Reduce merges one or more KernelResults from a Dispatcher.Run call
// into a single ResultSet, per spec §4.7:
//   - Projection: concatenate non-empty entries in kernel then slot
//     order (spec: "concatenate non-empty entries in input order").
//   - Hashed group-by: iterate aligned entry ranges and apply each
//     target's reduction operator.
//
// Known limitation: BaselineHash with more than one
// GROUP BY column folds its keys into one opaque mixed hash at
// dispatch time (internal/dispatch.evalGroupKey) to keep the runtime's
// group-value slot a single int64; Reduce cannot invert that mix back
// into the original tuple, so multi-column BaselineHash output
// exposes the raw composite key rather than the original columns.
// Single-column GROUP BY (BaselineHash or either PerfectHash layout)
// reconstructs the real key exactly.
func Reduce(desc *qmd.Descriptor, unit qmd.ExecutionUnit, kernels []*dispatch.KernelResult) (*ResultSet, error) {
	if desc.HashKind == qmd.Projection {
		return reduceProjection(desc, unit, kernels)
	}
	return reduceHashed(desc, unit, kernels)
}

func reduceProjection(desc *qmd.Descriptor, unit qmd.ExecutionUnit, kernels []*dispatch.KernelResult) (*ResultSet, error) {
	colTypes := make([]types.Type, len(unit.Projections))
	for i, p := range unit.Projections {
		colTypes[i] = p.ResultType()
	}
	rs := &ResultSet{ColumnTypes: colTypes, Descriptor: desc}
	rowWords := desc.RowSizeBytes / 8
	if rowWords < 1 {
		rowWords = 1
	}
	for _, k := range kernels {
		if k == nil || k.Groups == nil {
			continue
		}
		for slot, key := range k.Groups.Keys {
			if key == k.Groups.EmptyKey {
				continue // row excluded by a general qual; no slot was ever claimed
			}
			region := k.Groups.Regions[slot*rowWords : (slot+1)*rowWords]
			row := make(Row, len(colTypes))
			for c, t := range colTypes {
				row[c] = decodeSlot(region[c], t)
			}
			rs.Rows = append(rs.Rows, row)
		}
	}
	return rs, nil
}

func reduceHashed(desc *qmd.Descriptor, unit qmd.ExecutionUnit, kernels []*dispatch.KernelResult) (*ResultSet, error) {
	groups := make(map[int64]*groupAccumulator)
	var order []int64

	rowWords := desc.RowSizeBytes / 8
	if rowWords < 1 {
		rowWords = 1
	}

	for _, k := range kernels {
		if k == nil || k.Groups == nil {
			continue
		}
		for slot, key := range k.Groups.Keys {
			if key == k.Groups.EmptyKey {
				continue
			}
			region := k.Groups.Regions[slot*rowWords : (slot+1)*rowWords]
			g, ok := groups[key]
			if !ok {
				g = &groupAccumulator{rawKey: key, region: append([]int64(nil), region...), cd: map[int]intrinsics.CDAccumulator{}}
				groups[key] = g
				order = append(order, key)
			} else {
				mergeRegion(g.region, region, unit.Targets, desc)
			}
			if k.CD != nil {
				for ti, t := range unit.Targets {
					if t.Kind != expr.AggCountDistinct && t.Kind != expr.AggApproxCountDistinct {
						continue
					}
					acc, found := k.CD.Lookup(key, ti)
					if !found {
						continue
					}
					if existing, has := g.cd[ti]; has {
						existing.Merge(acc)
					} else {
						g.cd[ti] = acc
					}
				}
			}
		}
	}

	groupColTypes := groupByColumnTypes(unit.GroupBy)
	colTypes := append(append([]types.Type{}, groupColTypes...), targetColumnTypes(unit.Targets)...)
	rs := &ResultSet{ColumnTypes: colTypes, Descriptor: desc}

	for _, key := range order {
		g := groups[key]
		row := make(Row, 0, len(colTypes))
		row = append(row, decodeGroupKey(desc, unit, g.rawKey)...)
		for i, t := range unit.Targets {
			row = append(row, decodeTarget(i, t, desc, g))
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, nil
}

func groupByColumnTypes(cols []qmd.GroupByColumn) []types.Type {
	out := make([]types.Type, len(cols))
	for i, c := range cols {
		out[i] = c.Expr.ResultType()
	}
	return out
}

func targetColumnTypes(targets []expr.Aggregate) []types.Type {
	out := make([]types.Type, len(targets))
	for i, t := range targets {
		out[i] = t.Type
	}
	return out
}

// decodeSlot interprets one raw int64 region word as a typed Value,
// respecting the type's null sentinel.
func decodeSlot(raw int64, t types.Type) Value {
	if t.Kind.IsFloat() {
		f := math.Float64frombits(uint64(raw))
		bits := uint64(raw)
		if t.ByteWidth() == 4 {
			if uint32(bits) == uint32(types.FloatNullBits) {
				return Value{IsNull: true, IsFloat: true}
			}
		} else if bits == types.DoubleNullBits {
			return Value{IsNull: true, IsFloat: true}
		}
		return Value{Float: f, IsFloat: true}
	}
	if raw == t.Sentinel() {
		return Value{IsNull: true}
	}
	return Value{Int: raw}
}

// decodeGroupKey reconstructs the GROUP BY column value(s) for one
// output row from the raw dispatch-computed group key (spec §4.2's
// per-HashKind key representation).
func decodeGroupKey(desc *qmd.Descriptor, unit qmd.ExecutionUnit, rawKey int64) []Value {
	n := len(unit.GroupBy)
	if n == 0 {
		return nil // the implicit single-group case (e.g. SELECT SUM(x) FROM t) has no GROUP BY columns to report
	}
	switch desc.HashKind {
	case qmd.PerfectHashOneCol:
		return []Value{intKeyValue(rawKey+unit.GroupBy[0].MinVal, unit.GroupBy[0].Expr.ResultType())}
	case qmd.PerfectHashMulti:
		strides := make([]int64, n)
		strides[n-1] = 1
		for i := n - 2; i >= 0; i-- {
			strides[i] = strides[i+1] * rangeSize(unit.GroupBy[i+1])
		}
		out := make([]Value, n)
		rem := rawKey
		for i := 0; i < n; i++ {
			idx := rem / strides[i]
			rem -= idx * strides[i]
			out[i] = intKeyValue(idx+unit.GroupBy[i].MinVal, unit.GroupBy[i].Expr.ResultType())
		}
		return out
	default: // BaselineHash
		if n == 1 {
			return []Value{scalarFromBits(rawKey, unit.GroupBy[0].Expr.ResultType())}
		}
		// Multi-column baseline hash: the mixed composite key cannot
		// be inverted (see Reduce's doc comment); expose it verbatim.
		out := make([]Value, n)
		out[0] = Value{Int: rawKey}
		for i := 1; i < n; i++ {
			out[i] = Value{IsNull: true}
		}
		return out
	}
}

func rangeSize(g qmd.GroupByColumn) int64 {
	if !g.HasRange {
		return 1
	}
	n := g.MaxVal - g.MinVal + 1
	if n < 1 {
		return 1
	}
	return n
}

func intKeyValue(v int64, t types.Type) Value {
	if t.Kind.IsFloat() {
		return Value{Float: float64(v), IsFloat: true}
	}
	return Value{Int: v}
}

func scalarFromBits(raw int64, t types.Type) Value {
	if t.Kind.IsFloat() {
		return Value{Float: math.Float64frombits(uint64(raw)), IsFloat: true}
	}
	return Value{Int: raw}
}

// decodeTarget materializes one aggregate target's final value,
// reading from the merged region for COUNT/SUM/MIN/MAX/AVG/SAMPLE or
// from the merged CDAccumulator for COUNT DISTINCT/APPROX_COUNT_DISTINCT
// (spec §4.7's per-kind reduction operators). idx is the target's
// position within unit.Targets, matching the index CD state and
// SlotOffsets are both keyed on.
func decodeTarget(idx int, t expr.Aggregate, desc *qmd.Descriptor, g *groupAccumulator) Value {
	slotWords := desc.SlotOffsets[idx] / 8

	switch t.Kind {
	case expr.AggCountDistinct, expr.AggApproxCountDistinct:
		acc, ok := g.cd[idx]
		if !ok {
			return Value{Int: 0}
		}
		return Value{Int: int64(acc.EstimateSize())}
	case expr.AggAvg:
		avg := (*intrinsics.AvgSlot)(avgPtr(g.region, slotWords))
		v, isNull := avg.Result()
		return Value{Float: v, IsNull: isNull, IsFloat: true}
	default:
		raw := g.region[slotWords]
		return decodeSlot(raw, t.Type)
	}
}
