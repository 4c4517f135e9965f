package resultset

import (
	"testing"

	"github.com/fenilsonani/polyquery/internal/expr"
)

func colRef(idx int) expr.Expr {
	return &expr.ColumnRef{ColumnIdx: idx}
}

func TestApplyStreamingTopNMatchesFullSortAscending(t *testing.T) {
	rs := &ResultSet{Rows: []Row{
		{{Int: 5}}, {{Int: 1}}, {{Int: 9}}, {{Int: 3}}, {{Int: 7}}, {{Int: 2}},
	}}
	ApplyStreamingTopN(rs, []expr.Expr{colRef(0)}, []bool{false}, 3, 0)

	want := []int64{1, 2, 3}
	if len(rs.Rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rs.Rows), len(want))
	}
	for i, w := range want {
		if rs.Rows[i][0].Int != w {
			t.Fatalf("row %d = %d, want %d", i, rs.Rows[i][0].Int, w)
		}
	}
}

func TestApplyStreamingTopNMatchesFullSortDescending(t *testing.T) {
	rs := &ResultSet{Rows: []Row{
		{{Int: 5}}, {{Int: 1}}, {{Int: 9}}, {{Int: 3}}, {{Int: 7}}, {{Int: 2}},
	}}
	ApplyStreamingTopN(rs, []expr.Expr{colRef(0)}, []bool{true}, 3, 0)

	want := []int64{9, 7, 5}
	if len(rs.Rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rs.Rows), len(want))
	}
	for i, w := range want {
		if rs.Rows[i][0].Int != w {
			t.Fatalf("row %d = %d, want %d", i, rs.Rows[i][0].Int, w)
		}
	}
}

func TestApplyStreamingTopNHonorsOffset(t *testing.T) {
	rs := &ResultSet{Rows: []Row{
		{{Int: 5}}, {{Int: 1}}, {{Int: 9}}, {{Int: 3}}, {{Int: 7}}, {{Int: 2}},
	}}
	ApplyStreamingTopN(rs, []expr.Expr{colRef(0)}, []bool{false}, 2, 2)

	want := []int64{3, 5}
	if len(rs.Rows) != len(want) {
		t.Fatalf("got %d rows, want %d", len(rs.Rows), len(want))
	}
	for i, w := range want {
		if rs.Rows[i][0].Int != w {
			t.Fatalf("row %d = %d, want %d", i, rs.Rows[i][0].Int, w)
		}
	}
}

// TestApplyStreamingTopNMatchesApplySort cross-checks ApplyStreamingTopN
// against the full-sort ApplySort over the same input, guarding that the
// bounded-heap path is a genuine equivalent, not an approximation.
func TestApplyStreamingTopNMatchesApplySort(t *testing.T) {
	build := func() *ResultSet {
		return &ResultSet{Rows: []Row{
			{{Int: 40}}, {{Int: 10}}, {{Int: 30}}, {{Int: 20}},
			{{Int: 60}}, {{Int: 50}}, {{Int: 0}}, {{Int: 35}},
		}}
	}

	viaSort := build()
	ApplySort(viaSort, []expr.Expr{colRef(0)}, []bool{false}, 4, 1)

	viaHeap := build()
	ApplyStreamingTopN(viaHeap, []expr.Expr{colRef(0)}, []bool{false}, 4, 1)

	if len(viaSort.Rows) != len(viaHeap.Rows) {
		t.Fatalf("row count mismatch: sort=%d heap=%d", len(viaSort.Rows), len(viaHeap.Rows))
	}
	for i := range viaSort.Rows {
		if viaSort.Rows[i][0].Int != viaHeap.Rows[i][0].Int {
			t.Fatalf("row %d mismatch: sort=%d heap=%d", i, viaSort.Rows[i][0].Int, viaHeap.Rows[i][0].Int)
		}
	}
}
