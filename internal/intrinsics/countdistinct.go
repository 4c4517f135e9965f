package intrinsics

import (
	"math"
	"math/bits"

	"github.com/cespare/xxhash/v2"
)

// CDAccumulator is the small capability set spec §9 calls for so
// callers never couple to Bitmap or Sketch directly: "route through a
// small capability set {add, size, merge}".
type CDAccumulator interface {
	Add(val int64)
	EstimateSize() float64
	Merge(other CDAccumulator)
}

// CDStore holds one CDAccumulator per (group key, target index) pair,
// created lazily on first sight — the per-kernel-group bookkeeping a
// CountDistinct/ApproxCountDistinct target needs alongside the
// int64-slot aggregate region (spec §4.1 agg_count_distinct_bitmap /
// agg_approximate_count_distinct operate on their own addressable
// state, not the aggregate region).
type CDStore struct {
	data map[int64]map[int]CDAccumulator
}

// NewCDStore allocates an empty store.
func NewCDStore() *CDStore {
	return &CDStore{data: make(map[int64]map[int]CDAccumulator)}
}

// Get returns the accumulator for (groupKey, targetIdx), creating one
// via factory on first access.
func (s *CDStore) Get(groupKey int64, targetIdx int, factory func() CDAccumulator) CDAccumulator {
	inner, ok := s.data[groupKey]
	if !ok {
		inner = make(map[int]CDAccumulator)
		s.data[groupKey] = inner
	}
	acc, ok := inner[targetIdx]
	if !ok {
		acc = factory()
		inner[targetIdx] = acc
	}
	return acc
}

// Lookup returns the accumulator for (groupKey, targetIdx) without
// creating one, reporting whether it exists — used at reduction time
// to read back a group's final distinct-count state.
func (s *CDStore) Lookup(groupKey int64, targetIdx int) (CDAccumulator, bool) {
	inner, ok := s.data[groupKey]
	if !ok {
		return nil, false
	}
	acc, ok := inner[targetIdx]
	return acc, ok
}

// CountDistinctBitmap addresses a bitmap by value-minVal, one bit per
// potential value in range (spec §4.1/GLOSSARY "Count-distinct
// bitmap"). The slot is the bitmap's backing []uint64 for one group.
type CountDistinctBitmap struct {
	Bits   []uint64
	MinVal int64
}

// NewCountDistinctBitmap allocates a bitmap covering [minVal, maxVal].
func NewCountDistinctBitmap(minVal, maxVal int64) *CountDistinctBitmap {
	n := maxVal - minVal + 1
	if n < 1 {
		n = 1
	}
	return &CountDistinctBitmap{Bits: make([]uint64, (n+63)/64), MinVal: minVal}
}

// AggCountDistinctBitmap sets the bit for val (spec §4.1
// "agg_count_distinct_bitmap(slot, val, min_val)").
func AggCountDistinctBitmap(b *CountDistinctBitmap, val int64) {
	idx := val - b.MinVal
	if idx < 0 || idx >= int64(len(b.Bits))*64 {
		return
	}
	b.Bits[idx/64] |= 1 << uint(idx%64)
}

// Size returns the number of set bits — the distinct-value count.
func (b *CountDistinctBitmap) Size() int64 {
	var n int64
	for _, word := range b.Bits {
		n += int64(bits.OnesCount64(word))
	}
	return n
}

// mergeBitmap ORs other into b in place (spec §4.7 "COUNT DISTINCT→
// bitmap OR").
func (b *CountDistinctBitmap) mergeBitmap(other *CountDistinctBitmap) {
	for i := range b.Bits {
		if i < len(other.Bits) {
			b.Bits[i] |= other.Bits[i]
		}
	}
}

// Add implements CDAccumulator.
func (b *CountDistinctBitmap) Add(val int64) { AggCountDistinctBitmap(b, val) }

// EstimateSize implements CDAccumulator; a bitmap's count is exact.
func (b *CountDistinctBitmap) EstimateSize() float64 { return float64(b.Size()) }

// Merge implements CDAccumulator. other must also be a *CountDistinctBitmap;
// a mismatched pairing (which qmd's deterministic per-query kind choice
// never produces) is a no-op rather than a panic.
func (b *CountDistinctBitmap) Merge(other CDAccumulator) {
	if o, ok := other.(*CountDistinctBitmap); ok {
		b.mergeBitmap(o)
	}
}

// HLLSketch is a HyperLogLog register table used for
// agg_approximate_count_distinct when the key range is too wide for a
// Bitmap (spec §9 Open Question a, resolved in DESIGN.md).
type HLLSketch struct {
	B        uint8 // register-count exponent: 2^B registers
	Registers []uint8
}

// NewHLLSketch allocates a sketch with 2^b registers.
func NewHLLSketch(b uint8) *HLLSketch {
	return &HLLSketch{B: b, Registers: make([]uint8, 1<<b)}
}

// AggApproximateCountDistinct hashes key with 64-bit xxhash in place of
// MurmurHash (spec §4.1 names MurmurHash specifically for this intrinsic;
// xxhash is the pack's equivalent fast 64-bit non-cryptographic hash,
// see DESIGN.md) and updates the sketch's rank table.
func AggApproximateCountDistinct(h *HLLSketch, key uint64) {
	hashed := xxhash.Sum64(uint64ToBytes(key))
	m := uint64(1) << h.B
	bucket := hashed & (m - 1)
	rest := hashed >> h.B
	rank := uint8(bits.TrailingZeros64(rest)+1)
	if rest == 0 {
		rank = uint8(64 - h.B + 1)
	}
	if rank > h.Registers[bucket] {
		h.Registers[bucket] = rank
	}
}

// mergeSketch takes the per-index max of HLL ranks (spec §4.7 "APPROX
// COUNT DISTINCT→per-index max of HLL ranks").
func (h *HLLSketch) mergeSketch(other *HLLSketch) {
	for i := range h.Registers {
		if i < len(other.Registers) && other.Registers[i] > h.Registers[i] {
			h.Registers[i] = other.Registers[i]
		}
	}
}

// Add implements CDAccumulator.
func (h *HLLSketch) Add(val int64) { AggApproximateCountDistinct(h, uint64(val)) }

// EstimateSize implements CDAccumulator.
func (h *HLLSketch) EstimateSize() float64 { return h.Estimate() }

// Merge implements CDAccumulator; see Merge's bitmap counterpart for
// the mismatched-pairing note.
func (h *HLLSketch) Merge(other CDAccumulator) {
	if o, ok := other.(*HLLSketch); ok {
		h.mergeSketch(o)
	}
}

// Estimate returns the HyperLogLog cardinality estimate.
func (h *HLLSketch) Estimate() float64 {
	m := float64(uint64(1) << h.B)
	sum := 0.0
	zeros := 0
	for _, r := range h.Registers {
		sum += 1.0 / math.Pow(2, float64(r))
		if r == 0 {
			zeros++
		}
	}
	alpha := 0.7213 / (1 + 1.079/m)
	raw := alpha * m * m / sum
	if raw <= 2.5*m && zeros > 0 {
		return m * math.Log(m/float64(zeros))
	}
	return raw
}

func uint64ToBytes(v uint64) []byte {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
	return b[:]
}
