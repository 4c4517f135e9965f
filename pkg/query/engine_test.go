package query

import (
	"context"
	"encoding/binary"
	"testing"

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

func TestEngineExecuteSumByGroupSortedDescending(t *testing.T) {
	int64Type := types.Type{Kind: types.KindInt64}
	groupCol := &expr.ColumnRef{Type: int64Type, ColumnIdx: 0}
	amountCol := &expr.ColumnRef{Type: int64Type, ColumnIdx: 1}

	unit := qmd.ExecutionUnit{
		GroupBy: []qmd.GroupByColumn{{Expr: groupCol, HasRange: true, MinVal: 0, MaxVal: 2}},
		Targets: []expr.Aggregate{{Kind: expr.AggSum, Type: int64Type, Arg: amountCol, SkipNulls: true}},
		Sort: qmd.SortInfo{
			Entries: []qmd.SortEntry{{Target: &expr.ColumnRef{Type: int64Type, ColumnIdx: 1}, Descending: true}},
		},
	}

	frag := &storage.Fragment{ID: 0, TableID: 1, RowCount: 6,
		Columns: []*storage.ColumnBuffer{
			storage.NewFixedWidthBuffer(int64Type, int64Col(0, 1, 2, 0, 1, 2), 6),
			storage.NewFixedWidthBuffer(int64Type, int64Col(10, 20, 30, 1, 2, 3), 6),
		},
		MinMax: []storage.MinMax{minMax([]int64{0, 1, 2, 0, 1, 2}), minMax([]int64{10, 20, 30, 1, 2, 3})},
	}

	e := NewEngine(qmd.DefaultConfig())
	rs, err := e.Execute(context.Background(), unit, []*storage.Fragment{frag}, nil, "plan-sum-by-group")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(rs.Rows) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(rs.Rows))
	}
	if rs.Rows[0][1].Int != 33 {
		t.Fatalf("expected highest sum first, got %+v", rs.Rows[0])
	}

	// Second call with the same planHash should hit the kernel cache.
	if _, err := e.Execute(context.Background(), unit, []*storage.Fragment{frag}, nil, "plan-sum-by-group"); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if len(e.cache) != 1 {
		t.Fatalf("expected one cached kernel, got %d", len(e.cache))
	}
}
