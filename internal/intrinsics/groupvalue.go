package intrinsics

// GroupValueTable is the hash table backing GROUP BY's per-row "find or
// insert my aggregate slot" intrinsic (spec §4.1 get_group_value family).
// Keys and aggregate regions are stored in parallel slices indexed by
// the same probed slot; RowWords is the aggregate region's width in
// int64 words.
type GroupValueTable struct {
	Keys     []int64 // EmptyKey sentinel marks an unused slot
	Regions  []int64 // len(Keys) * RowWords
	RowWords int
	EmptyKey int64
	Count    int

	// Init, if non-nil, is copied into a slot's region the first time a
	// key claims it — the "initialized with typed sentinel 'empty'
	// values" contract from spec §3 ("Output buffer" lifecycle). A
	// plain zero-value region is only correct for COUNT/SUM/AVG
	// accumulators; MIN/MAX/SINGLE_VALUE need their slot to start at
	// the target's null sentinel so the first real value always wins.
	Init []int64
}

// NewGroupValueTable allocates a table with capacity slots, each
// owning a RowWords-wide aggregate region.
func NewGroupValueTable(capacity, rowWords int, emptyKey int64) *GroupValueTable {
	keys := make([]int64, capacity)
	for i := range keys {
		keys[i] = emptyKey
	}
	return &GroupValueTable{
		Keys:     keys,
		Regions:  make([]int64, capacity*rowWords),
		RowWords: rowWords,
		EmptyKey: emptyKey,
	}
}

// GetGroupValue is the baseline linear-probing variant (spec §4.1
// "get_group_value(groups_buffer, h, key, ...)"). It returns the
// aggregate region for key, inserting a fresh one on first sight, or
// ok=false if the table is full (ErrCodeOutOfSlots).
func (t *GroupValueTable) GetGroupValue(hash uint64, key int64) (region []int64, ok bool, errCode int32) {
	n := len(t.Keys)
	if n == 0 {
		return nil, false, ErrCodeOutOfSlots
	}
	start := int(hash % uint64(n))
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if t.Keys[idx] == key {
			return t.region(idx), true, 0
		}
		if t.Keys[idx] == t.EmptyKey {
			t.Keys[idx] = key
			t.Count++
			r := t.region(idx)
			t.initRegion(r)
			return r, true, 0
		}
	}
	return nil, false, ErrCodeOutOfSlots
}

// initRegion copies Init into a freshly claimed region, if set.
func (t *GroupValueTable) initRegion(region []int64) {
	if t.Init == nil {
		return
	}
	copy(region, t.Init)
}

// GetGroupValueWithWatchdog is GetGroupValue, polling the interrupt
// flag every watchdogStride probes (spec §5 "Cancellation" applied to
// the probe loop, since an adversarial near-full table can probe
// every slot per row).
func (t *GroupValueTable) GetGroupValueWithWatchdog(hash uint64, key int64, watchdogStride int) (region []int64, ok bool, errCode int32) {
	n := len(t.Keys)
	if n == 0 {
		return nil, false, ErrCodeOutOfSlots
	}
	start := int(hash % uint64(n))
	for i := 0; i < n; i++ {
		if watchdogStride > 0 && i%watchdogStride == 0 && CheckInterrupt() {
			return nil, false, ErrCodeWatchdog
		}
		idx := (start + i) % n
		if t.Keys[idx] == key {
			return t.region(idx), true, 0
		}
		if t.Keys[idx] == t.EmptyKey {
			t.Keys[idx] = key
			t.Count++
			r := t.region(idx)
			t.initRegion(r)
			return r, true, 0
		}
	}
	return nil, false, ErrCodeOutOfSlots
}

// GetGroupValueKeyless is the direct-indexed method variant of
// get_group_value used when the QMD has already proven the key is a
// dense, non-null offset in [0, capacity) (qmd.Descriptor.Keyless):
// no probe loop or key comparison is needed, the key doubles as the
// slot index and Keys only records which slots have been touched
// (spec §4.1 "get_group_value... Variants exist for... keyless
// perfect hash", §9 "keyless perfect hash... requires a well-defined
// 'empty' sentinel... document this precondition").
func (t *GroupValueTable) GetGroupValueKeyless(key int64) (region []int64, ok bool, errCode int32) {
	n := int64(len(t.Keys))
	if key < 0 || key >= n {
		return nil, false, ErrCodeOutOfSlots
	}
	idx := int(key)
	r := t.region(idx)
	if t.Keys[idx] == t.EmptyKey {
		t.Keys[idx] = key
		t.Count++
		t.initRegion(r)
	}
	return r, true, 0
}

func (t *GroupValueTable) region(idx int) []int64 {
	off := idx * t.RowWords
	return t.Regions[off : off+t.RowWords]
}

// GetGroupValueColumnar is the columnar-layout variant: instead of one
// interleaved (key, region) slot, RowWords separate column slices hold
// one component each, all indexed by the same slot (spec §4.1
// "columnar output" buffer layout). The probing sequence is identical
// to GetGroupValue; only the storage shape differs.
type ColumnarGroupValueTable struct {
	Keys     []int64
	Columns  [][]int64 // one slice per aggregate column, each len(Keys) long
	EmptyKey int64
	Count    int
}

func NewColumnarGroupValueTable(capacity, numColumns int, emptyKey int64) *ColumnarGroupValueTable {
	keys := make([]int64, capacity)
	for i := range keys {
		keys[i] = emptyKey
	}
	cols := make([][]int64, numColumns)
	for i := range cols {
		cols[i] = make([]int64, capacity)
	}
	return &ColumnarGroupValueTable{Keys: keys, Columns: cols, EmptyKey: emptyKey}
}

func (t *ColumnarGroupValueTable) GetGroupValue(hash uint64, key int64) (slot int, ok bool, errCode int32) {
	n := len(t.Keys)
	if n == 0 {
		return 0, false, ErrCodeOutOfSlots
	}
	start := int(hash % uint64(n))
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		if t.Keys[idx] == key {
			return idx, true, 0
		}
		if t.Keys[idx] == t.EmptyKey {
			t.Keys[idx] = key
			t.Count++
			return idx, true, 0
		}
	}
	return 0, false, ErrCodeOutOfSlots
}

// GetGroupValueKeyless is the perfect-hash/"keyless" variant used when
// the group-by key is known at compile time to be dense in
// [0, cardinality) — the qmd package selects this layout whenever it
// can prove the range fits (spec §4.2's keyless-hash precondition). No
// probing or key storage is needed: the row index is the slot index.
func GetGroupValueKeyless(regions []int64, rowWords int, key int64, cardinality int64) (region []int64, ok bool) {
	if key < 0 || key >= cardinality {
		return nil, false
	}
	off := int(key) * rowWords
	return regions[off : off+rowWords], true
}
