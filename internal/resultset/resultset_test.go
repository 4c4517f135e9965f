package resultset

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/fenilsonani/polyquery/internal/codegen"
	"github.com/fenilsonani/polyquery/internal/dispatch"
	"github.com/fenilsonani/polyquery/internal/expr"
	"github.com/fenilsonani/polyquery/internal/qmd"
	"github.com/fenilsonani/polyquery/internal/storage"
	"github.com/fenilsonani/polyquery/internal/types"
)

func int64Col(vals ...int64) []byte {
	buf := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(v))
	}
	return buf
}

func minMax(vals []int64) storage.MinMax {
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

func TestReduceSumByGroupMergesAcrossFragments(t *testing.T) {
	int64Type := types.Type{Kind: types.KindInt64}
	groupCol := &expr.ColumnRef{Type: int64Type, ColumnIdx: 0}
	amountCol := &expr.ColumnRef{Type: int64Type, ColumnIdx: 1}

	unit := qmd.ExecutionUnit{
		GroupBy: []qmd.GroupByColumn{{Expr: groupCol, HasRange: true, MinVal: 0, MaxVal: 2}},
		Targets: []expr.Aggregate{{Kind: expr.AggSum, Type: int64Type, Arg: amountCol, SkipNulls: true}},
	}
	desc, err := qmd.Decide(unit, []qmd.FragmentMeta{{RowCount: 6}}, qmd.DefaultConfig())
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	kernel := codegen.Compile(unit, desc, codegen.DeviceCPU, "plan-sum-by-group")

	frag0 := &storage.Fragment{ID: 0, TableID: 1, RowCount: 3,
		Columns: []*storage.ColumnBuffer{
			storage.NewFixedWidthBuffer(int64Type, int64Col(0, 1, 2), 3),
			storage.NewFixedWidthBuffer(int64Type, int64Col(10, 20, 30), 3),
		},
		MinMax: []storage.MinMax{minMax([]int64{0, 1, 2}), minMax([]int64{10, 20, 30})},
	}
	frag1 := &storage.Fragment{ID: 1, TableID: 1, RowCount: 3,
		Columns: []*storage.ColumnBuffer{
			storage.NewFixedWidthBuffer(int64Type, int64Col(0, 1, 2), 3),
			storage.NewFixedWidthBuffer(int64Type, int64Col(1, 2, 3), 3),
		},
		MinMax: []storage.MinMax{minMax([]int64{0, 1, 2}), minMax([]int64{1, 2, 3})},
	}

	d := &dispatch.Dispatcher{Config: qmd.DefaultConfig(), Policy: dispatch.CPUOnlyPolicy{}}
	results, err := d.Run(context.Background(), unit, kernel, []*storage.Fragment{frag0, frag1}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	rs, err := Reduce(desc, unit, results)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if len(rs.Rows) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(rs.Rows))
	}

	want := map[int64]int64{0: 11, 1: 22, 2: 33}
	for _, row := range rs.Rows {
		group := row[0].Int
		sum := row[1].Int
		if sum != want[group] {
			t.Fatalf("group %d: sum = %d, want %d", group, sum, want[group])
		}
	}
}

func TestReduceProjectionConcatenatesSlots(t *testing.T) {
	int64Type := types.Type{Kind: types.KindInt64}
	col := &expr.ColumnRef{Type: int64Type, ColumnIdx: 0}
	unit := qmd.ExecutionUnit{Projections: []expr.Expr{col}}
	desc, err := qmd.Decide(unit, []qmd.FragmentMeta{{RowCount: 3}}, qmd.DefaultConfig())
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	kernel := codegen.Compile(unit, desc, codegen.DeviceCPU, "plan-projection")

	frag := &storage.Fragment{ID: 0, TableID: 1, RowCount: 3,
		Columns: []*storage.ColumnBuffer{
			storage.NewFixedWidthBuffer(int64Type, int64Col(7, 8, 9), 3),
		},
		MinMax: []storage.MinMax{minMax([]int64{7, 8, 9})},
	}

	d := &dispatch.Dispatcher{Config: qmd.DefaultConfig(), Policy: dispatch.CPUOnlyPolicy{}}
	results, err := d.Run(context.Background(), unit, kernel, []*storage.Fragment{frag}, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	rs, err := Reduce(desc, unit, results)
	if err != nil {
		t.Fatalf("Reduce: %v", err)
	}
	if len(rs.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rs.Rows))
	}
	seen := map[int64]bool{}
	for _, row := range rs.Rows {
		seen[row[0].Int] = true
	}
	for _, v := range []int64{7, 8, 9} {
		if !seen[v] {
			t.Fatalf("missing projected value %d", v)
		}
	}
}

func TestApplySortDescendingWithLimitOffset(t *testing.T) {
	rs := &ResultSet{
		ColumnTypes: []types.Type{{Kind: types.KindInt64}},
		Rows: []Row{
			{{Int: 3}}, {{Int: 1}}, {{Int: 4}}, {{Int: 1}}, {{Int: 5}},
		},
	}
	col := &expr.ColumnRef{Type: types.Type{Kind: types.KindInt64}, ColumnIdx: 0}
	ApplySort(rs, []expr.Expr{col}, []bool{true}, 3, 1)

	if len(rs.Rows) != 3 {
		t.Fatalf("expected 3 rows after limit, got %d", len(rs.Rows))
	}
	want := []int64{4, 3, 1}
	for i, w := range want {
		if rs.Rows[i][0].Int != w {
			t.Fatalf("row %d = %d, want %d", i, rs.Rows[i][0].Int, w)
		}
	}
}

func TestColumnarExchangeRoundTrip(t *testing.T) {
	rs := &ResultSet{
		ColumnTypes: []types.Type{{Kind: types.KindInt64}, {Kind: types.KindFloat64}},
		Rows: []Row{
			{{Int: 42}, {Float: 3.5, IsFloat: true}},
			{{IsNull: true}, {IsNull: true, IsFloat: true}},
		},
	}
	cols, err := ToColumnar(rs)
	if err != nil {
		t.Fatalf("ToColumnar: %v", err)
	}
	back := FromColumnar(cols)
	if len(back.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(back.Rows))
	}
	if back.Rows[0][0].Int != 42 || back.Rows[0][1].Float != 3.5 {
		t.Fatalf("row 0 mismatch: %+v", back.Rows[0])
	}
	if !back.Rows[1][0].IsNull || !back.Rows[1][1].IsNull {
		t.Fatalf("row 1 should round-trip as null: %+v", back.Rows[1])
	}
}
