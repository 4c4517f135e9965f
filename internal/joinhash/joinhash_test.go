package joinhash

import (
	"testing"

	"github.com/cespare/xxhash/v2"

	"github.com/fenilsonani/polyquery/internal/intrinsics"
)

func TestBuildOneToOneDenseRange(t *testing.T) {
	p := BuildParams{Keys: []int64{1, 2, 3}, DenseRange: true, MinVal: 1, MaxVal: 3}
	tbl, err := BuildOneToOne(p)
	if err != nil {
		t.Fatalf("BuildOneToOne error: %v", err)
	}
	for i, key := range p.Keys {
		if got := intrinsics.RowIDHashJoinIdx(tbl, key-p.MinVal); got != int32(i) {
			t.Fatalf("key %d -> %d, want %d", key, got, i)
		}
	}
}

func TestBuildOneToOneDuplicateDenseRangeFails(t *testing.T) {
	p := BuildParams{Keys: []int64{1, 1, 2}, DenseRange: true, MinVal: 1, MaxVal: 2}
	if _, err := BuildOneToOne(p); err != ErrNeedsOneToManyHash {
		t.Fatalf("err = %v, want ErrNeedsOneToManyHash", err)
	}
}

func TestBuildOneToOneBaselineProbe(t *testing.T) {
	p := BuildParams{Keys: []int64{10, 20, 30, 40}}
	tbl, err := BuildOneToOne(p)
	if err != nil {
		t.Fatalf("BuildOneToOne error: %v", err)
	}
	for i, key := range p.Keys {
		h := xxhashOf(key)
		if got := intrinsics.HashJoinIdx(tbl, h); got != int32(i) {
			t.Fatalf("key %d -> %d, want %d", key, got, i)
		}
	}
}

func TestBuildOneToOneBaselineDuplicateFails(t *testing.T) {
	p := BuildParams{Keys: []int64{7, 7}}
	if _, err := BuildOneToOne(p); err != ErrNeedsOneToManyHash {
		t.Fatalf("err = %v, want ErrNeedsOneToManyHash", err)
	}
}

func TestBuildOneToOneNullKeysSkipped(t *testing.T) {
	p := BuildParams{Keys: []int64{1, 2, 3}, DenseRange: true, MinVal: 1, MaxVal: 3, KeyIsNull: []bool{false, true, false}}
	tbl, err := BuildOneToOne(p)
	if err != nil {
		t.Fatalf("BuildOneToOne error: %v", err)
	}
	if got := intrinsics.RowIDHashJoinIdx(tbl, 1); got != intrinsics.HashJoinNoMatch {
		t.Fatalf("expected null key's slot to stay unfilled, got %d", got)
	}
}

func TestBuildOneToManyGroupsDuplicates(t *testing.T) {
	p := BuildParams{Keys: []int64{1, 1, 2, 2, 2, 3}, DenseRange: true, MinVal: 1, MaxVal: 3}
	tbl, err := BuildOneToMany(p)
	if err != nil {
		t.Fatalf("BuildOneToMany error: %v", err)
	}
	matches := intrinsics.BucketizedHashJoinIdx(tbl, uint64(2-1))
	if len(matches) != 3 {
		t.Fatalf("bucket for key=2 has %d entries, want 3", len(matches))
	}
}

func TestBuildOneToManyTotalRowsMatchesPayload(t *testing.T) {
	p := BuildParams{Keys: []int64{5, 6, 7, 8}}
	tbl, err := BuildOneToMany(p)
	if err != nil {
		t.Fatalf("BuildOneToMany error: %v", err)
	}
	if len(tbl.RowIDs) != len(p.Keys) {
		t.Fatalf("RowIDs len = %d, want %d", len(tbl.RowIDs), len(p.Keys))
	}
}

func TestBuildManyToManyWrapsOneToMany(t *testing.T) {
	p := BuildParams{Keys: []int64{1, 1, 2}, DenseRange: true, MinVal: 1, MaxVal: 2}
	m2m, err := BuildManyToMany(p)
	if err != nil {
		t.Fatalf("BuildManyToMany error: %v", err)
	}
	if m2m.BucketizedJoinTable == nil {
		t.Fatal("expected non-nil embedded table")
	}
}

func TestBuildOneToOneTooManyHashEntries(t *testing.T) {
	p := BuildParams{Keys: make([]int64, 1), DenseRange: false}
	// Only checks that a one-key input is under maxHashEntries; reaching
	// ErrTooManyHashEntries would need more than 2^31 keys, so
	// BuildOneToOne's guard itself is not exercised here.
	if len(p.Keys) > maxHashEntries {
		t.Fatal("sanity check failed")
	}
}

func xxhashOf(key int64) uint64 {
	return xxhash.Sum64(int64Bytes(key))
}
