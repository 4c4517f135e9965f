package intrinsics

import "testing"

func TestGetGroupValueInsertsOnce(t *testing.T) {
	tbl := NewGroupValueTable(16, 2, -1)
	r1, ok, code := tbl.GetGroupValue(5, 42)
	if !ok || code != 0 {
		t.Fatalf("first insert failed: ok=%v code=%d", ok, code)
	}
	r1[0] = 7
	r2, ok, code := tbl.GetGroupValue(5, 42)
	if !ok || code != 0 {
		t.Fatalf("second lookup failed: ok=%v code=%d", ok, code)
	}
	if r2[0] != 7 {
		t.Fatalf("region not shared across lookups: got %d", r2[0])
	}
	if tbl.Count != 1 {
		t.Fatalf("Count = %d, want 1", tbl.Count)
	}
}

func TestGetGroupValueDistinctKeysGetDistinctRegions(t *testing.T) {
	tbl := NewGroupValueTable(16, 1, -1)
	ra, _, _ := tbl.GetGroupValue(1, 1)
	rb, _, _ := tbl.GetGroupValue(2, 2)
	ra[0] = 100
	rb[0] = 200
	if ra[0] == rb[0] {
		t.Fatalf("regions alias: %d == %d", ra[0], rb[0])
	}
}

func TestGetGroupValueOutOfSlots(t *testing.T) {
	tbl := NewGroupValueTable(2, 1, -1)
	if _, ok, _ := tbl.GetGroupValue(0, 1); !ok {
		t.Fatal("expected first insert to succeed")
	}
	if _, ok, _ := tbl.GetGroupValue(0, 2); !ok {
		t.Fatal("expected second insert to succeed")
	}
	_, ok, code := tbl.GetGroupValue(0, 3)
	if ok || code != ErrCodeOutOfSlots {
		t.Fatalf("expected ErrCodeOutOfSlots, got ok=%v code=%d", ok, code)
	}
}

func TestGetGroupValueWithWatchdogHonorsInterrupt(t *testing.T) {
	ResetInterrupt()
	defer ResetInterrupt()
	tbl := NewGroupValueTable(4, 1, -1)
	RequestInterrupt()
	_, ok, code := tbl.GetGroupValueWithWatchdog(0, 9, 1)
	if ok || code != ErrCodeWatchdog {
		t.Fatalf("expected ErrCodeWatchdog, got ok=%v code=%d", ok, code)
	}
}

func TestColumnarGroupValueSlotStable(t *testing.T) {
	tbl := NewColumnarGroupValueTable(8, 2, -1)
	slot, ok, _ := tbl.GetGroupValue(3, 11)
	if !ok {
		t.Fatal("expected insert to succeed")
	}
	tbl.Columns[0][slot] = 5
	slot2, ok, _ := tbl.GetGroupValue(3, 11)
	if !ok || slot2 != slot {
		t.Fatalf("expected stable slot %d, got %d", slot, slot2)
	}
}

func TestGroupValueTableGetGroupValueKeylessInsertsAndReuses(t *testing.T) {
	tbl := NewGroupValueTable(8, 2, -1)
	r1, ok, code := tbl.GetGroupValueKeyless(3)
	if !ok || code != 0 {
		t.Fatalf("first keyless insert failed: ok=%v code=%d", ok, code)
	}
	r1[0] = 9
	r2, ok, code := tbl.GetGroupValueKeyless(3)
	if !ok || code != 0 {
		t.Fatalf("second keyless lookup failed: ok=%v code=%d", ok, code)
	}
	if r2[0] != 9 {
		t.Fatalf("region not shared across keyless lookups: got %d", r2[0])
	}
	if tbl.Count != 1 {
		t.Fatalf("Count = %d, want 1 (second call must not re-insert)", tbl.Count)
	}
}

func TestGroupValueTableGetGroupValueKeylessOutOfRange(t *testing.T) {
	tbl := NewGroupValueTable(4, 1, -1)
	if _, ok, code := tbl.GetGroupValueKeyless(4); ok || code != ErrCodeOutOfSlots {
		t.Fatalf("expected ErrCodeOutOfSlots for key >= capacity, got ok=%v code=%d", ok, code)
	}
	if _, ok, code := tbl.GetGroupValueKeyless(-1); ok || code != ErrCodeOutOfSlots {
		t.Fatalf("expected ErrCodeOutOfSlots for negative key, got ok=%v code=%d", ok, code)
	}
}

func TestGetGroupValueKeylessBounds(t *testing.T) {
	regions := make([]int64, 10*2)
	r, ok := GetGroupValueKeyless(regions, 2, 3, 5)
	if !ok || len(r) != 2 {
		t.Fatalf("expected in-range key to succeed, got ok=%v len=%d", ok, len(r))
	}
	if _, ok := GetGroupValueKeyless(regions, 2, 5, 5); ok {
		t.Fatal("expected out-of-range key to fail")
	}
	if _, ok := GetGroupValueKeyless(regions, 2, -1, 5); ok {
		t.Fatal("expected negative key to fail")
	}
}
