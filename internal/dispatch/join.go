package dispatch

import (
	"math"

	"github.com/cespare/xxhash/v2"

	"github.com/fenilsonani/polyquery/internal/codegen"
	"github.com/fenilsonani/polyquery/internal/intrinsics"
	"github.com/fenilsonani/polyquery/internal/qmd"
)

// JoinTable is one built join level's probe-side view, produced ahead
// of time by internal/joinhash and handed to the Dispatcher. Only one
// of OneToOne/OneToMany is set, matching the Layout the builder chose
// (spec §4.4).
type JoinTable struct {
	OneToOne   *intrinsics.OneToOneJoinTable
	OneToMany  *intrinsics.BucketizedJoinTable
	DenseRange bool // true when the build side is indexed by key - MinVal (perfect-hash probe)
	MinVal     int64
	LeftOuter  bool
}

// joinLevel is a JoinTable plus its compiled outer-key evaluator, built
// once per Dispatcher.Run call from qmd.ExecutionUnit.Joins (spec §4.3
// row function step 2: "for each join level, probe the join hash
// table; on miss, return early").
type joinLevel struct {
	table    JoinTable
	outerKey codegen.ScalarFunc
	isFloat  bool
}

func buildJoinLevels(joins []qmd.JoinCondition, tables []JoinTable) []joinLevel {
	if len(joins) == 0 || len(tables) == 0 {
		return nil
	}
	n := len(joins)
	if len(tables) < n {
		n = len(tables)
	}
	levels := make([]joinLevel, n)
	for i := 0; i < n; i++ {
		levels[i] = joinLevel{
			table:    tables[i],
			outerKey: codegen.CompileExpr(joins[i].OuterKey),
			isFloat:  joins[i].OuterKey.ResultType().Kind.IsFloat(),
		}
	}
	return levels
}

// probe evaluates one join level against the current row. matched
// reports whether a build-side row was found; for a left-outer level a
// miss is not a row-exclusion signal (the outer row is kept either
// way, matching spec §4.3's "Left-outer joins additionally set a
// 'match found' flag consulted on exit" rather than skipping the row).
func (j joinLevel) probe(row *codegen.Row) (matched bool, keep bool) {
	r := j.outerKey(row)
	if r.IsNull {
		return false, j.table.LeftOuter
	}
	key := r.Int
	if j.isFloat {
		key = int64(math.Float64bits(r.Float))
	}

	var found bool
	switch {
	case j.table.OneToOne != nil && j.table.DenseRange:
		found = intrinsics.RowIDHashJoinIdx(j.table.OneToOne, key-j.table.MinVal) != intrinsics.HashJoinNoMatch
	case j.table.OneToOne != nil:
		found = intrinsics.HashJoinIdx(j.table.OneToOne, xxhash.Sum64(int64Bytes(key))) != intrinsics.HashJoinNoMatch
	case j.table.OneToMany != nil && j.table.DenseRange:
		idx := key - j.table.MinVal
		found = idx >= 0 && idx < int64(len(j.table.OneToMany.BucketOffset)) &&
			len(intrinsics.BucketizedHashJoinIdx(j.table.OneToMany, uint64(idx))) > 0
	case j.table.OneToMany != nil:
		found = len(intrinsics.BucketizedHashJoinIdx(j.table.OneToMany, xxhash.Sum64(int64Bytes(key)))) > 0
	}
	return found, found || j.table.LeftOuter
}
