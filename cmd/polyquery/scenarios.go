package main

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/fenilsonani/polyquery/internal/expr"
	"github.com/fenilsonani/polyquery/internal/joinhash"
	"github.com/fenilsonani/polyquery/internal/qmd"
	"github.com/fenilsonani/polyquery/internal/resultset"
	"github.com/fenilsonani/polyquery/internal/storage"
	"github.com/fenilsonani/polyquery/internal/types"
	"github.com/fenilsonani/polyquery/pkg/query"
)

var int64Type = types.Type{Kind: types.KindInt64}
var nullableInt64Type = types.Type{Kind: types.KindInt64, Nullable: true}

// scenario is one of spec.md §8's literal end-to-end test scenarios,
// runnable standalone so cmd/polyquery has something to execute without
// a SQL layer in front of it.
type scenario struct {
	name        string
	description string
	build       func() (qmd.ExecutionUnit, []*storage.Fragment, []query.JoinBuildInput, *storage.Dictionary)
}

func scenarios() []scenario {
	return []scenario{
		{
			name:        "agg-basics",
			description: "SELECT COUNT(*), SUM(x), MIN(x), MAX(x), AVG(x) FROM t  -- x = [1,2,3,4,5]",
			build:       scenarioAggBasics,
		},
		{
			name:        "group-by-count",
			description: "SELECT k, COUNT(*) FROM t GROUP BY k ORDER BY k  -- k = [1,1,2,2,2,3]",
			build:       scenarioGroupByCount,
		},
		{
			name:        "null-aware-avg",
			description: "SELECT AVG(x), COUNT(x), COUNT(*) FROM t  -- x = [10,null,20,null,30]",
			build:       scenarioNullAwareAvg,
		},
		{
			name:        "inner-join",
			description: "SELECT b FROM inner JOIN outer ON a = b  -- inner.a=[1,2,3], outer.b=[3,3,1,4]",
			build:       scenarioInnerJoin,
		},
		{
			name:        "top-n",
			description: "SELECT x FROM t ORDER BY x DESC LIMIT 3 OFFSET 2  -- x = [1..100]",
			build:       scenarioTopN,
		},
		{
			name:        "group-by-string",
			description: "SELECT s, COUNT(*) FROM t GROUP BY s  -- s = ['hi','bye','hi']",
			build:       scenarioGroupByString,
		},
	}
}

func findScenario(name string) (scenario, bool) {
	for _, s := range scenarios() {
		if s.name == name {
			return s, true
		}
	}
	return scenario{}, false
}

func int64Col(vals ...int64) []byte {
	buf := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return buf
}

func int32Col(vals ...int32) []byte {
	buf := make([]byte, len(vals)*4)
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], uint32(v))
	}
	return buf
}

func minMaxOf(vals []int64) storage.MinMax {
	m := storage.MinMax{Valid: true, MinInt: vals[0], MaxInt: vals[0]}
	for _, v := range vals {
		if v < m.MinInt {
			m.MinInt = v
		}
		if v > m.MaxInt {
			m.MaxInt = v
		}
	}
	return m
}

func scenarioAggBasics() (qmd.ExecutionUnit, []*storage.Fragment, []query.JoinBuildInput, *storage.Dictionary) {
	x := &expr.ColumnRef{Type: int64Type, ColumnIdx: 0}
	unit := qmd.ExecutionUnit{
		Targets: []expr.Aggregate{
			{Kind: expr.AggCount, Type: int64Type},
			{Kind: expr.AggSum, Type: int64Type, Arg: x, SkipNulls: true},
			{Kind: expr.AggMin, Type: int64Type, Arg: x, SkipNulls: true},
			{Kind: expr.AggMax, Type: int64Type, Arg: x, SkipNulls: true},
			{Kind: expr.AggAvg, Type: int64Type, Arg: x, SkipNulls: true},
		},
	}
	vals := []int64{1, 2, 3, 4, 5}
	frag := &storage.Fragment{ID: 0, TableID: 0, RowCount: len(vals),
		Columns: []*storage.ColumnBuffer{storage.NewFixedWidthBuffer(int64Type, int64Col(vals...), len(vals))},
		MinMax:  []storage.MinMax{minMaxOf(vals)},
	}
	return unit, []*storage.Fragment{frag}, nil, nil
}

func scenarioGroupByCount() (qmd.ExecutionUnit, []*storage.Fragment, []query.JoinBuildInput, *storage.Dictionary) {
	k := &expr.ColumnRef{Type: int64Type, ColumnIdx: 0}
	unit := qmd.ExecutionUnit{
		GroupBy: []qmd.GroupByColumn{{Expr: k, HasRange: true, MinVal: 1, MaxVal: 3}},
		Targets: []expr.Aggregate{{Kind: expr.AggCount, Type: int64Type}},
		Sort: qmd.SortInfo{
			Entries: []qmd.SortEntry{{Target: k, Descending: false}},
		},
	}
	vals := []int64{1, 1, 2, 2, 2, 3}
	frag := &storage.Fragment{ID: 0, TableID: 0, RowCount: len(vals),
		Columns: []*storage.ColumnBuffer{storage.NewFixedWidthBuffer(int64Type, int64Col(vals...), len(vals))},
		MinMax:  []storage.MinMax{minMaxOf(vals)},
	}
	return unit, []*storage.Fragment{frag}, nil, nil
}

func scenarioNullAwareAvg() (qmd.ExecutionUnit, []*storage.Fragment, []query.JoinBuildInput, *storage.Dictionary) {
	x := &expr.ColumnRef{Type: nullableInt64Type, ColumnIdx: 0}
	unit := qmd.ExecutionUnit{
		Targets: []expr.Aggregate{
			{Kind: expr.AggAvg, Type: int64Type, Arg: x, SkipNulls: true},
			{Kind: expr.AggCount, Type: int64Type, Arg: x, SkipNulls: true},
			{Kind: expr.AggCount, Type: int64Type},
		},
	}
	null := nullableInt64Type.Sentinel()
	vals := []int64{10, null, 20, null, 30}
	frag := &storage.Fragment{ID: 0, TableID: 0, RowCount: len(vals),
		Columns: []*storage.ColumnBuffer{storage.NewFixedWidthBuffer(nullableInt64Type, int64Col(vals...), len(vals))},
		MinMax:  []storage.MinMax{{Valid: false}},
	}
	return unit, []*storage.Fragment{frag}, nil, nil
}

func scenarioInnerJoin() (qmd.ExecutionUnit, []*storage.Fragment, []query.JoinBuildInput, *storage.Dictionary) {
	b := &expr.ColumnRef{Type: int64Type, ColumnIdx: 0}
	a := &expr.ColumnRef{Type: int64Type, ColumnIdx: 0}
	unit := qmd.ExecutionUnit{
		Projections: []expr.Expr{b},
		Joins:       []qmd.JoinCondition{{OuterKey: b, InnerKey: a}},
	}
	outerVals := []int64{3, 3, 1, 4}
	frag := &storage.Fragment{ID: 0, TableID: 0, RowCount: len(outerVals),
		Columns: []*storage.ColumnBuffer{storage.NewFixedWidthBuffer(int64Type, int64Col(outerVals...), len(outerVals))},
		MinMax:  []storage.MinMax{minMaxOf(outerVals)},
	}
	joins := []query.JoinBuildInput{{
		Layout: joinhash.LayoutOneToOne,
		Params: joinhash.BuildParams{Keys: []int64{1, 2, 3}, DenseRange: true, MinVal: 1, MaxVal: 3},
	}}
	return unit, []*storage.Fragment{frag}, joins, nil
}

func scenarioTopN() (qmd.ExecutionUnit, []*storage.Fragment, []query.JoinBuildInput, *storage.Dictionary) {
	x := &expr.ColumnRef{Type: int64Type, ColumnIdx: 0}
	unit := qmd.ExecutionUnit{
		Projections: []expr.Expr{x},
		Sort: qmd.SortInfo{
			Entries: []qmd.SortEntry{{Target: x, Descending: true}},
			Limit:   3,
			Offset:  2,
		},
	}
	vals := make([]int64, 100)
	for i := range vals {
		vals[i] = int64(i + 1)
	}
	frag := &storage.Fragment{ID: 0, TableID: 0, RowCount: len(vals),
		Columns: []*storage.ColumnBuffer{storage.NewFixedWidthBuffer(int64Type, int64Col(vals...), len(vals))},
		MinMax:  []storage.MinMax{minMaxOf(vals)},
	}
	return unit, []*storage.Fragment{frag}, nil, nil
}

func scenarioGroupByString() (qmd.ExecutionUnit, []*storage.Fragment, []query.JoinBuildInput, *storage.Dictionary) {
	dict := storage.NewDictionary()
	hi := dict.GetOrAddID("hi")
	bye := dict.GetOrAddID("bye")

	minID, maxID := hi, bye
	if bye < hi {
		minID, maxID = bye, hi
	}

	textType := types.Type{Kind: types.KindText, DictID: 1}
	s := &expr.ColumnRef{Type: textType, ColumnIdx: 0}
	unit := qmd.ExecutionUnit{
		GroupBy: []qmd.GroupByColumn{{Expr: s, HasRange: true, MinVal: int64(minID), MaxVal: int64(maxID)}},
		Targets: []expr.Aggregate{{Kind: expr.AggCount, Type: int64Type}},
	}
	ids := []int32{hi, bye, hi}
	frag := &storage.Fragment{ID: 0, TableID: 0, RowCount: len(ids),
		Columns: []*storage.ColumnBuffer{storage.NewDictionaryBuffer(textType, int32Col(ids...), len(ids), 1)},
		MinMax:  []storage.MinMax{{Valid: true, MinInt: int64(minID), MaxInt: int64(maxID)}},
	}
	return unit, []*storage.Fragment{frag}, nil, dict
}

// runScenario executes one scenario end to end through the engine.
// The returned Dictionary is non-nil only for scenarios over
// dictionary-encoded text columns, letting the caller translate group
// keys back to strings for display.
func runScenario(s scenario) (*resultset.ResultSet, *storage.Dictionary, error) {
	unit, frags, joins, dict := s.build()
	e := query.NewEngine(qmd.DefaultConfig())
	rs, err := e.Execute(context.Background(), unit, frags, joins, "cmd/"+s.name)
	return rs, dict, err
}

func formatResultSet(rs *resultset.ResultSet, dict *storage.Dictionary) string {
	out := fmt.Sprintf("%d row(s)\n", len(rs.Rows))
	for _, row := range rs.Rows {
		for i, v := range row {
			if i > 0 {
				out += "\t"
			}
			switch {
			case v.IsNull:
				out += "null"
			case v.IsFloat:
				out += fmt.Sprintf("%g", v.Float)
			case dict != nil && i < len(rs.ColumnTypes) && rs.ColumnTypes[i].Kind == types.KindText:
				s, ok := dict.GetString(int32(v.Int))
				if !ok {
					out += fmt.Sprintf("%d", v.Int)
				} else {
					out += s
				}
			default:
				out += fmt.Sprintf("%d", v.Int)
			}
		}
		out += "\n"
	}
	return out
}
