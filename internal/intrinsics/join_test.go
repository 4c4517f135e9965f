package intrinsics

import "testing"

func TestHashJoinIdxMatchAndNoMatch(t *testing.T) {
	tbl := &OneToOneJoinTable{Buckets: []int32{HashJoinNoMatch, 7, HashJoinNoMatch}}
	if got := HashJoinIdx(tbl, 1); got != 7 {
		t.Fatalf("HashJoinIdx = %d, want 7", got)
	}
	if got := HashJoinIdx(tbl, 0); got != HashJoinNoMatch {
		t.Fatalf("HashJoinIdx = %d, want NoMatch", got)
	}
}

func TestHashJoinIdxNullableSkipsNullKey(t *testing.T) {
	tbl := &OneToOneJoinTable{Buckets: []int32{7}}
	if got := HashJoinIdxNullable(tbl, 0, true); got != HashJoinNoMatch {
		t.Fatalf("expected NoMatch for null key, got %d", got)
	}
	if got := HashJoinIdxNullable(tbl, 0, false); got != 7 {
		t.Fatalf("expected 7, got %d", got)
	}
}

func TestBucketizedHashJoinIdxReturnsAllMatches(t *testing.T) {
	tbl := &BucketizedJoinTable{
		BucketOffset: []int32{0, 2},
		BucketCount:  []int32{2, 1},
		RowIDs:       []int32{10, 11, 20},
	}
	got := BucketizedHashJoinIdx(tbl, 0)
	if len(got) != 2 || got[0] != 10 || got[1] != 11 {
		t.Fatalf("got %v, want [10 11]", got)
	}
	got = BucketizedHashJoinIdx(tbl, 1)
	if len(got) != 1 || got[0] != 20 {
		t.Fatalf("got %v, want [20]", got)
	}
}

func TestBucketizedHashJoinIdxEmptyBucket(t *testing.T) {
	tbl := &BucketizedJoinTable{
		BucketOffset: []int32{0},
		BucketCount:  []int32{0},
		RowIDs:       nil,
	}
	if got := BucketizedHashJoinIdx(tbl, 0); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}

func TestBucketizedHashJoinIdxNullableSkipsNullKey(t *testing.T) {
	tbl := &BucketizedJoinTable{
		BucketOffset: []int32{0},
		BucketCount:  []int32{1},
		RowIDs:       []int32{5},
	}
	if got := BucketizedHashJoinIdxNullable(tbl, 0, true); got != nil {
		t.Fatalf("expected nil for null key, got %v", got)
	}
}

func TestRowIDHashJoinIdxBounds(t *testing.T) {
	tbl := &OneToOneJoinTable{Buckets: []int32{100, 200, 300}}
	if got := RowIDHashJoinIdx(tbl, 1); got != 200 {
		t.Fatalf("RowIDHashJoinIdx(1) = %d, want 200", got)
	}
	if got := RowIDHashJoinIdx(tbl, 5); got != HashJoinNoMatch {
		t.Fatalf("RowIDHashJoinIdx(5) = %d, want NoMatch", got)
	}
	if got := RowIDHashJoinIdx(tbl, -1); got != HashJoinNoMatch {
		t.Fatalf("RowIDHashJoinIdx(-1) = %d, want NoMatch", got)
	}
}

func TestRowIDHashJoinIdxNullable(t *testing.T) {
	tbl := &OneToOneJoinTable{Buckets: []int32{100}}
	if got := RowIDHashJoinIdxNullable(tbl, 0, true); got != HashJoinNoMatch {
		t.Fatalf("expected NoMatch for null key, got %d", got)
	}
}
