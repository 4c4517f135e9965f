package codegen

import (
	"unsafe"

	"github.com/fenilsonani/polyquery/internal/expr"
	"github.com/fenilsonani/polyquery/internal/intrinsics"
	"github.com/fenilsonani/polyquery/internal/qmd"
)

// TargetPlan is one compiled aggregate target: its argument closure,
// the word offset of its slot within the aggregate region (computed
// from qmd.Descriptor.SlotOffsets, which is byte-aligned), and the
// update function bound to its AggKind.
type TargetPlan struct {
	Kind       expr.AggKind
	Arg        ScalarFunc
	SlotWords  int // offset into the int64 region, SlotOffsets[i]/8
	SkipVal    int64
	IsFloat    bool // true when the target's *output* type (t.Type) is float-backed
	ArgIsFloat bool // true when Arg's own result type is float-backed — distinct from IsFloat for AggAvg, whose output is always float64 but whose operand may be an integer column
	CD         qmd.CountDistinctDescriptor // valid when Kind is AggCountDistinct/AggApproxCountDistinct
}

// cdFactory builds the CDAccumulator a TargetPlan's CD descriptor
// calls for — Bitmap when the operand's range was dense enough for
// qmd to choose it, Sketch (HyperLogLog) otherwise (spec §9 Open
// Question a, resolved in DESIGN.md).
func cdFactory(d qmd.CountDistinctDescriptor) func() intrinsics.CDAccumulator {
	if d.Kind == qmd.CountDistinctBitmapKind {
		return func() intrinsics.CDAccumulator { return intrinsics.NewCountDistinctBitmap(d.RangeMin, d.RangeMax) }
	}
	bits := d.SketchBits
	if bits == 0 {
		bits = 12
	}
	return func() intrinsics.CDAccumulator { return intrinsics.NewHLLSketch(bits) }
}

// ProjectionPlan is one compiled SELECT-list column for the Projection
// layout: no aggregation, just a direct write into the row's slot.
type ProjectionPlan struct {
	Fn        ScalarFunc
	SlotWords int
	IsFloat   bool
	Sentinel  int64
}

// Plan is the fully compiled query: one ScalarFunc per general qual,
// one per group-key column, and one TargetPlan per aggregate — or, for
// the Projection layout, one ProjectionPlan per SELECT-list column
// instead of Targets.
type Plan struct {
	GeneralQuals []ScalarFunc
	GroupKeys    []ScalarFunc
	Targets      []TargetPlan
	Projections  []ProjectionPlan
	Descriptor   *qmd.Descriptor
}

// Compile lowers an execution unit's expressions against its already-
// Decided descriptor into a Plan, then wraps it into a device-specific
// CompiledKernel (spec §4.3: "Compile walks the expr.Expr tree and the
// qmd.Descriptor once").
func Compile(unit qmd.ExecutionUnit, d *qmd.Descriptor, device Device, planHash string) *CompiledKernel {
	p := &Plan{Descriptor: d}
	for _, q := range unit.GeneralQuals {
		p.GeneralQuals = append(p.GeneralQuals, compileScalar(q))
	}
	for _, g := range unit.GroupBy {
		p.GroupKeys = append(p.GroupKeys, compileScalar(g.Expr))
	}
	for i, t := range unit.Targets {
		tp := TargetPlan{
			Kind:      t.Kind,
			SlotWords: d.SlotOffsets[i] / 8,
			SkipVal:   t.Type.Sentinel(),
			IsFloat:   t.Type.Kind.IsFloat(),
		}
		if i < len(d.CountDistinctDescriptors) {
			tp.CD = d.CountDistinctDescriptors[i]
		}
		if t.Arg != nil {
			tp.Arg = compileScalar(t.Arg)
			tp.ArgIsFloat = t.Arg.ResultType().Kind.IsFloat()
		}
		p.Targets = append(p.Targets, tp)
	}
	if len(unit.Targets) == 0 && len(unit.GroupBy) == 0 {
		for i, proj := range unit.Projections {
			p.Projections = append(p.Projections, ProjectionPlan{
				Fn:        compileScalar(proj),
				SlotWords: d.SlotOffsets[i] / 8,
				IsFloat:   proj.ResultType().Kind.IsFloat(),
				Sentinel:  proj.ResultType().Sentinel(),
			})
		}
	}

	rowFunc := buildRowFunc(p, device)

	return &CompiledKernel{
		RowFunc:       rowFunc,
		GroupKeys:     p.GroupKeys,
		Device:        device,
		Descriptor:    d,
		Fingerprint:   Fingerprint(planHash, d, device, true),
		HoistLiterals: true,
		InitRegion:    initRegionTemplate(p, d),
	}
}

// initRegionTemplate builds the per-slot empty-sentinel template a
// fresh GroupValueTable region is initialized with. COUNT/SUM/AVG's
// identity element is already zero, so only MIN/MAX/SINGLE_VALUE slots
// need a nonzero entry; a template of nil (not all-zero) lets the
// caller skip the copy entirely when no target needs one.
func initRegionTemplate(p *Plan, d *qmd.Descriptor) []int64 {
	rowWords := d.RowSizeBytes / 8
	if rowWords < 1 {
		return nil
	}
	var template []int64
	for _, t := range p.Targets {
		if t.Kind != expr.AggMin && t.Kind != expr.AggMax && t.Kind != expr.AggSingleValue {
			continue
		}
		if template == nil {
			template = make([]int64, rowWords)
		}
		if t.IsFloat {
			template[t.SlotWords] = t.SkipVal // already the float sentinel's bit pattern
		} else {
			template[t.SlotWords] = t.SkipVal
		}
	}
	return template
}

// buildRowFunc assembles the per-row diamond: general quals (step 3),
// group-value lookup happens in the caller (internal/dispatch, which
// owns the GroupValueTable and already has groupKey/groupHash by the
// time RowFunc runs), target evaluation and aggregate update (step 5),
// per-row error recording (step 6). The GPU variant reuses the exact
// same closure — spec §4.3's GPU row function is "the same row
// function compiled for a GPU target"; only internal/dispatch (4.5)
// decides whether the kernel containing this closure is launched as a
// "GPU" task, and on this host the kernel body always executes on CPU.
func buildRowFunc(p *Plan, device Device) RowFunc {
	// Resolved once at compile time, not per row — the same "pick one of
	// several closures by shape up front" dispatch the rest of this
	// package uses (spec §4.2 "Keyless... an optimization"; §4.1
	// "get_group_value... Variants exist for... keyless perfect hash").
	keyless := p.Descriptor.Keyless
	return func(row *Row, groups *intrinsics.GroupValueTable, groupKey int64, groupHash uint64) int32 {
		for _, qual := range p.GeneralQuals {
			r := qual(row)
			if r.IsNull || r.Int == 0 {
				return 0 // row excluded, not an error
			}
		}

		var region []int64
		var ok bool
		var errCode int32
		if keyless {
			region, ok, errCode = groups.GetGroupValueKeyless(groupKey)
		} else {
			region, ok, errCode = groups.GetGroupValue(groupHash, groupKey)
		}
		if !ok {
			if row.ErrorCodes != nil {
				intrinsics.RecordErrorCode(errCode, row.ErrorCodes, row.ErrorSlot)
			}
			return errCode
		}

		for i, t := range p.Targets {
			applyTarget(i, t, row, region, groupKey)
		}
		for _, proj := range p.Projections {
			applyProjection(proj, row, region)
		}
		return 0
	}
}

// applyProjection writes one SELECT-list column's value straight into
// its slot (spec §4.7 Projection layout: one materialized row per
// input row, no aggregate fold).
func applyProjection(p ProjectionPlan, row *Row, region []int64) {
	r := p.Fn(row)
	if r.IsNull {
		if p.IsFloat {
			*(*float64)(floatAlias(&region[p.SlotWords])) = floatSentinel(p.Sentinel)
		} else {
			region[p.SlotWords] = p.Sentinel
		}
		return
	}
	if p.IsFloat {
		*(*float64)(floatAlias(&region[p.SlotWords])) = r.Float
	} else {
		region[p.SlotWords] = r.Int
	}
}

func applyTarget(targetIdx int, t TargetPlan, row *Row, region []int64, groupKey int64) {
	slot := &region[t.SlotWords]
	switch t.Kind {
	case expr.AggCountDistinct, expr.AggApproxCountDistinct:
		r := t.Arg(row)
		if r.IsNull || row.CD == nil {
			return
		}
		acc := row.CD.Get(groupKey, targetIdx, cdFactory(t.CD))
		acc.Add(r.Int)
		return
	case expr.AggCount:
		if t.Arg == nil {
			intrinsics.AggCountStar(slot)
			return
		}
		r := t.Arg(row)
		if r.IsNull {
			return
		}
		intrinsics.AggCount(slot, r.Int, t.SkipVal)
	case expr.AggSum:
		r := t.Arg(row)
		if r.IsNull {
			return
		}
		if t.IsFloat {
			fslot := (*float64)(floatAlias(slot))
			intrinsics.AggSumFloat(fslot, r.Float, floatSentinel(t.SkipVal))
			return
		}
		intrinsics.AggSumInt(slot, r.Int, t.SkipVal)
	case expr.AggMin:
		r := t.Arg(row)
		if r.IsNull {
			return
		}
		if t.IsFloat {
			fslot := (*float64)(floatAlias(slot))
			intrinsics.AggMinFloat(fslot, r.Float, floatSentinel(t.SkipVal))
			return
		}
		intrinsics.AggMinInt(slot, r.Int, t.SkipVal)
	case expr.AggMax:
		r := t.Arg(row)
		if r.IsNull {
			return
		}
		if t.IsFloat {
			fslot := (*float64)(floatAlias(slot))
			intrinsics.AggMaxFloat(fslot, r.Float, floatSentinel(t.SkipVal))
			return
		}
		intrinsics.AggMaxInt(slot, r.Int, t.SkipVal)
	case expr.AggSingleValue:
		// "Write only on first occurrence" (spec §4.3 step 5): the
		// slot starts at SkipVal (via initRegionTemplate), so an
		// unwritten slot is distinguishable from a written one without
		// a separate flag. A later, differing value means the target
		// is not actually functionally dependent on the grouping key;
		// record the persistent runtime error instead of overwriting.
		r := t.Arg(row)
		if r.IsNull {
			return
		}
		if *slot == t.SkipVal {
			*slot = r.Int
		} else if *slot != r.Int && row.ErrorCodes != nil {
			intrinsics.RecordErrorCode(intrinsics.ErrCodeSingleValueMultipleRows, row.ErrorCodes, row.ErrorSlot)
		}
	case expr.AggAvg:
		r := t.Arg(row)
		if r.IsNull {
			return
		}
		val := r.Float
		if !t.ArgIsFloat {
			val = float64(r.Int)
		}
		avg := (*intrinsics.AvgSlot)(avgAlias(region, t.SlotWords))
		intrinsics.AggAvgUpdate(avg, val, floatSentinel(t.SkipVal))
	}
}

// floatAlias reinterprets an int64 region slot as a float64 slot — the
// "aggregate slots alias the 64-bit slot via memcpy-like
// reinterpretation" contract from spec §4.1, the same unsafe.Pointer
// block/slot-handle idiom the runtime's buffer tiers use elsewhere.
func floatAlias(slot *int64) *float64 {
	return (*float64)(unsafe.Pointer(slot))
}

// avgAlias overlays an AvgSlot{Sum float64, Count int64} onto two
// adjacent region words — AVG's pair-wise representation needs both
// the 8-byte-aligned Sum and the following Count word, which qmd's
// slot layout already reserves as one 16-byte AVG slot.
func avgAlias(region []int64, wordOffset int) *intrinsics.AvgSlot {
	return (*intrinsics.AvgSlot)(unsafe.Pointer(&region[wordOffset]))
}
