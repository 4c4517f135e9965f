package resultset

import (
	"unsafe"

	"github.com/fenilsonani/polyquery/internal/expr"
	"github.com/fenilsonani/polyquery/internal/intrinsics"
	"github.com/fenilsonani/polyquery/internal/qmd"
)

// mergeRegion folds one kernel's per-group region into the running
// accumulator region dst, applying each target's combination rule
// (spec §4.7): additive for COUNT/SUM, elementwise for MIN/MAX,
// pairwise sum+count for AVG, first-wins for SINGLE_VALUE/SAMPLE.
// COUNT DISTINCT/APPROX_COUNT_DISTINCT carry no region state — their
// int64 slot is never written by applyTarget — so Reduce merges those
// entirely through the per-kernel CDStore instead.
func mergeRegion(dst, src []int64, targets []expr.Aggregate, desc *qmd.Descriptor) {
	for i, t := range targets {
		slotWords := desc.SlotOffsets[i] / 8
		switch t.Kind {
		case expr.AggCountDistinct, expr.AggApproxCountDistinct:
			continue
		case expr.AggCount, expr.AggSum:
			if t.Type.Kind.IsFloat() {
				*floatPtr(dst, slotWords) += *floatPtr(src, slotWords)
			} else {
				dst[slotWords] += src[slotWords]
			}
		case expr.AggMin:
			mergeExtreme(dst, src, slotWords, t, true)
		case expr.AggMax:
			mergeExtreme(dst, src, slotWords, t, false)
		case expr.AggAvg:
			d := avgPtr(dst, slotWords)
			s := avgPtr(src, slotWords)
			d.Sum += s.Sum
			d.Count += s.Count
		case expr.AggSingleValue:
			skip := t.Type.Sentinel()
			if dst[slotWords] == skip && src[slotWords] != skip {
				dst[slotWords] = src[slotWords]
			}
			// A genuine multiple-rows violation was already recorded
			// via ErrCodeSingleValueMultipleRows at row-fold time; the
			// reduction stage does not re-derive it from merged state.
		}
	}
}

func mergeExtreme(dst, src []int64, slotWords int, t expr.Aggregate, isMin bool) {
	skip := t.Type.Sentinel()
	if t.Type.Kind.IsFloat() {
		d, s := floatPtr(dst, slotWords), floatPtr(src, slotWords)
		dBits, sBits := int64(float64Bits(*d)), int64(float64Bits(*s))
		if sBits == skip {
			return
		}
		if dBits == skip || (isMin && *s < *d) || (!isMin && *s > *d) {
			*d = *s
		}
		return
	}
	if src[slotWords] == skip {
		return
	}
	if dst[slotWords] == skip || (isMin && src[slotWords] < dst[slotWords]) || (!isMin && src[slotWords] > dst[slotWords]) {
		dst[slotWords] = src[slotWords]
	}
}

func floatPtr(region []int64, wordOffset int) *float64 {
	return (*float64)(unsafe.Pointer(&region[wordOffset]))
}

func avgPtr(region []int64, wordOffset int) *intrinsics.AvgSlot {
	return (*intrinsics.AvgSlot)(unsafe.Pointer(&region[wordOffset]))
}

func float64Bits(f float64) uint64 {
	return *(*uint64)(unsafe.Pointer(&f))
}
