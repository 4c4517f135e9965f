package intrinsics

// Aggregate update intrinsics operate on the address of one aggregator
// slot plus the new value (spec §4.1). CPU kernels own their output
// buffer exclusively per spec §5 ("single-thread slot ownership"), so
// no atomics are needed here; internal/dispatch's GPU row-function
// variant uses the *Shared suffixed functions in gpu.go instead.

// AggCount increments *slot unless val equals skipVal.
func AggCount(slot *int64, val int64, skipVal int64) {
	if val != skipVal {
		*slot++
	}
}

// AggCountStar increments *slot unconditionally (COUNT(*) has no
// operand to compare against a null sentinel).
func AggCountStar(slot *int64) {
	*slot++
}

// AggSumInt adds val into *slot unless val equals skipVal.
func AggSumInt(slot *int64, val int64, skipVal int64) {
	if val != skipVal {
		*slot += val
	}
}

// AggSumFloat is AggSumInt's float64-slot counterpart.
func AggSumFloat(slot *float64, val float64, skipVal float64) {
	if val != skipVal {
		*slot += val
	}
}

// AggMinInt keeps the smallest non-skip value seen. The first update
// into a freshly initialized slot (holding skipVal, per spec §3's
// "initialized with typed sentinel 'empty' values") always wins.
func AggMinInt(slot *int64, val int64, skipVal int64) {
	if val == skipVal {
		return
	}
	if *slot == skipVal || val < *slot {
		*slot = val
	}
}

func AggMaxInt(slot *int64, val int64, skipVal int64) {
	if val == skipVal {
		return
	}
	if *slot == skipVal || val > *slot {
		*slot = val
	}
}

func AggMinFloat(slot *float64, val float64, skipVal float64) {
	if val == skipVal {
		return
	}
	if *slot == skipVal || val < *slot {
		*slot = val
	}
}

func AggMaxFloat(slot *float64, val float64, skipVal float64) {
	if val == skipVal {
		return
	}
	if *slot == skipVal || val > *slot {
		*slot = val
	}
}

// AggID writes val unconditionally — used for a single-valued group
// key column riding along in the aggregate region.
func AggID(slot *int64, val int64) { *slot = val }

// AggSkipValCount, AggSkipValSumInt ignore the slot's configured null
// sentinel entirely (the "_skip_val variants that ignore the
// aggregate's null sentinel" from spec §4.1) — every row updates the
// slot regardless of value.
func AggSkipValCount(slot *int64) { *slot++ }

func AggSkipValSumInt(slot *int64, val int64) { *slot += val }

// AvgSlot is the pair-wise (sum, count) representation AVG reduces
// through (spec §4.7 "AVG→pair-wise sum and count").
type AvgSlot struct {
	Sum   float64
	Count int64
}

// AggAvgUpdate folds one value into an AvgSlot, skipping skipVal.
func AggAvgUpdate(slot *AvgSlot, val float64, skipVal float64) {
	if val == skipVal {
		return
	}
	slot.Sum += val
	slot.Count++
}

// Result returns sum/count, or isNull=true if count is zero.
func (a AvgSlot) Result() (float64, bool) {
	if a.Count == 0 {
		return 0, true
	}
	return a.Sum / float64(a.Count), false
}

// SampleSlot implements kSAMPLE/kSINGLE_VALUE: "write only on first
// occurrence" (spec §4.3 step 5) via a secondary diamond the row
// function consults before calling Write.
type SampleSlot struct {
	Written bool
	Value   int64
}

// Write sets the slot's value on the first call only. If a second,
// distinct value arrives for a kSINGLE_VALUE target the caller is
// expected to have already rejected the plan (single-value columns
// must be functionally dependent on the grouping key); if it is ever
// called with a different value after Written, the caller should
// record ErrCodeSingleValueMultipleRows instead of calling Write again.
func (s *SampleSlot) Write(val int64) {
	if s.Written {
		return
	}
	s.Value = val
	s.Written = true
}
