package qmd

import (
	"testing"

	"github.com/fenilsonani/polyquery/internal/expr"
	"github.com/fenilsonani/polyquery/internal/types"
)

func intTarget(kind expr.AggKind) expr.Aggregate {
	return expr.Aggregate{Kind: kind, Type: types.Type{Kind: types.KindInt64}}
}

func TestDecideProjectionWhenNoGroupByNoTargets(t *testing.T) {
	unit := ExecutionUnit{ScanLimit: 0}
	frags := []FragmentMeta{{RowCount: 5}, {RowCount: 3}}
	d, err := Decide(unit, frags, DefaultConfig())
	if err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	if d.HashKind != Projection {
		t.Fatalf("HashKind = %v, want Projection", d.HashKind)
	}
	if d.EntryCount != 8 {
		t.Fatalf("EntryCount = %d, want 8", d.EntryCount)
	}
}

func TestDecideScanLimitCapsProjectionEntries(t *testing.T) {
	unit := ExecutionUnit{ScanLimit: 4}
	frags := []FragmentMeta{{RowCount: 100}}
	d, err := Decide(unit, frags, DefaultConfig())
	if err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	if d.EntryCount != 4 {
		t.Fatalf("EntryCount = %d, want 4 (capped by scan limit)", d.EntryCount)
	}
}

func TestDecidePerfectHashOneColDenseRange(t *testing.T) {
	unit := ExecutionUnit{
		GroupBy: []GroupByColumn{{HasRange: true, MinVal: 1, MaxVal: 3}},
		Targets: []expr.Aggregate{intTarget(expr.AggCount)},
	}
	frags := []FragmentMeta{{RowCount: 6}}
	d, err := Decide(unit, frags, DefaultConfig())
	if err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	if d.HashKind != PerfectHashOneCol {
		t.Fatalf("HashKind = %v, want PerfectHashOneCol", d.HashKind)
	}
	if d.EntryCount != 3 {
		t.Fatalf("EntryCount = %d, want 3", d.EntryCount)
	}
	if !d.Keyless {
		t.Fatal("expected Keyless = true")
	}
}

func TestDecidePerfectHashOneColKeylessFalseWhenColumnNullable(t *testing.T) {
	unit := ExecutionUnit{
		GroupBy: []GroupByColumn{{
			Expr:     &expr.ColumnRef{Type: types.Type{Kind: types.KindInt64, Nullable: true}},
			HasRange: true, MinVal: 1, MaxVal: 3,
		}},
		Targets: []expr.Aggregate{intTarget(expr.AggCount)},
	}
	frags := []FragmentMeta{{RowCount: 6}}
	d, err := Decide(unit, frags, DefaultConfig())
	if err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	if d.HashKind != PerfectHashOneCol {
		t.Fatalf("HashKind = %v, want PerfectHashOneCol", d.HashKind)
	}
	if d.Keyless {
		t.Fatal("expected Keyless = false for a nullable group-by column")
	}
}

func TestDecidePerfectHashOneColKeylessTrueWhenColumnNotNullable(t *testing.T) {
	unit := ExecutionUnit{
		GroupBy: []GroupByColumn{{
			Expr:     &expr.ColumnRef{Type: types.Type{Kind: types.KindInt64, Nullable: false}},
			HasRange: true, MinVal: 1, MaxVal: 3,
		}},
		Targets: []expr.Aggregate{intTarget(expr.AggCount)},
	}
	frags := []FragmentMeta{{RowCount: 6}}
	d, err := Decide(unit, frags, DefaultConfig())
	if err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	if !d.Keyless {
		t.Fatal("expected Keyless = true for a non-nullable group-by column")
	}
}

func TestDecidePerfectHashMultiColumn(t *testing.T) {
	unit := ExecutionUnit{
		GroupBy: []GroupByColumn{
			{HasRange: true, MinVal: 0, MaxVal: 9},
			{HasRange: true, MinVal: 0, MaxVal: 4},
		},
		Targets: []expr.Aggregate{intTarget(expr.AggCount)},
	}
	d, err := Decide(unit, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	if d.HashKind != PerfectHashMulti {
		t.Fatalf("HashKind = %v, want PerfectHashMulti", d.HashKind)
	}
	if d.EntryCount != 50 {
		t.Fatalf("EntryCount = %d, want 50", d.EntryCount)
	}
}

func TestDecideBaselineHashWhenRangeUnknown(t *testing.T) {
	unit := ExecutionUnit{
		GroupBy: []GroupByColumn{{HasRange: false}},
		Targets: []expr.Aggregate{intTarget(expr.AggSum)},
	}
	frags := []FragmentMeta{{RowCount: 1000}}
	d, err := Decide(unit, frags, DefaultConfig())
	if err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	if d.HashKind != BaselineHash {
		t.Fatalf("HashKind = %v, want BaselineHash", d.HashKind)
	}
}

func TestDecideImplicitSingleGroupWhenOnlyTargets(t *testing.T) {
	unit := ExecutionUnit{Targets: []expr.Aggregate{intTarget(expr.AggSum)}}
	d, err := Decide(unit, []FragmentMeta{{RowCount: 10}}, DefaultConfig())
	if err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	if d.HashKind != PerfectHashOneCol || d.EntryCount != 1 || !d.Keyless {
		t.Fatalf("expected a single keyless implicit group, got %+v", d)
	}
}

func TestDecideInfeasibleWhenRangeExceedsCap(t *testing.T) {
	unit := ExecutionUnit{
		GroupBy: []GroupByColumn{{HasRange: true, MinVal: 0, MaxVal: 1 << 40}},
		Targets: []expr.Aggregate{intTarget(expr.AggCount)},
	}
	cfg := DefaultConfig()
	cfg.DeviceMemCapBytes = 1024
	_, err := Decide(unit, nil, cfg)
	if err != ErrQMDInfeasible {
		t.Fatalf("err = %v, want ErrQMDInfeasible", err)
	}
}

func TestDecideAvgSlotIsEightByteAligned(t *testing.T) {
	unit := ExecutionUnit{
		GroupBy: []GroupByColumn{{HasRange: true, MinVal: 0, MaxVal: 9}},
		Targets: []expr.Aggregate{
			intTarget(expr.AggCount),
			{Kind: expr.AggAvg, Type: types.Type{Kind: types.KindFloat64}},
		},
	}
	d, err := Decide(unit, nil, DefaultConfig())
	if err != nil {
		t.Fatalf("Decide error: %v", err)
	}
	for _, off := range d.SlotOffsets {
		if off%8 != 0 {
			t.Fatalf("slot offset %d not 8-byte aligned", off)
		}
	}
}

func TestResolveCountDistinctKindBitmapVsSketch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaselineMaxGroups = 100
	d := ResolveCountDistinctKind(0, 50, cfg)
	if d.Kind != CountDistinctBitmapKind {
		t.Fatalf("expected Bitmap for small range, got %v", d.Kind)
	}
	d = ResolveCountDistinctKind(0, 1_000_000, cfg)
	if d.Kind != CountDistinctSketchKind {
		t.Fatalf("expected Sketch for large range, got %v", d.Kind)
	}
}

func TestDecideIsDeterministic(t *testing.T) {
	unit := ExecutionUnit{
		GroupBy: []GroupByColumn{{HasRange: true, MinVal: 1, MaxVal: 3}},
		Targets: []expr.Aggregate{intTarget(expr.AggCount)},
	}
	frags := []FragmentMeta{{RowCount: 6}}
	cfg := DefaultConfig()
	d1, _ := Decide(unit, frags, cfg)
	d2, _ := Decide(unit, frags, cfg)
	if d1.String() != d2.String() {
		t.Fatalf("Decide not deterministic: %v != %v", d1, d2)
	}
}
