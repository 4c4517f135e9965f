// Package qmd computes the query memory descriptor: the structured,
// immutable decision record that fixes an execution unit's output
// buffer shape before codegen ever runs (spec.md §4.2). The layout
// discipline mirrors internal/core/index/index.go's fixed-header,
// versioned-record approach in the teacher repo, adapted here from a
// staging-area file format to an in-memory buffer descriptor.
package qmd

import (
	"errors"
	"fmt"

	"github.com/fenilsonani/polyquery/internal/expr"
)

// HashKind selects the group-by/output layout a compiled kernel
// targets.
type HashKind int

const (
	HashNone HashKind = iota
	PerfectHashOneCol
	PerfectHashMulti
	BaselineHash
	Projection
)

func (k HashKind) String() string {
	switch k {
	case Projection:
		return "Projection"
	case PerfectHashOneCol:
		return "PerfectHashOneCol"
	case PerfectHashMulti:
		return "PerfectHashMulti"
	case BaselineHash:
		return "BaselineHash"
	default:
		return "None"
	}
}

// CountDistinctKind tags which representation a COUNT DISTINCT or
// APPROX_COUNT_DISTINCT target uses (spec §9 "tagged union... route
// through a small capability set").
type CountDistinctKind int

const (
	CountDistinctBitmapKind CountDistinctKind = iota
	CountDistinctSketchKind
)

// CountDistinctDescriptor records the representation chosen for one
// target, plus the parameters needed to size its backing storage.
type CountDistinctDescriptor struct {
	Applicable bool // false for targets that are not COUNT DISTINCT / APPROX_COUNT_DISTINCT
	Kind       CountDistinctKind
	RangeMin   int64
	RangeMax   int64
	SketchBits uint8
}

// GroupByColumn is one GROUP BY key expression, annotated with the
// dense-integer-range hint the planner supplies when known (required
// for the PerfectHashOneCol/PerfectHashMulti decision in step 2/3).
type GroupByColumn struct {
	Expr     expr.Expr
	HasRange bool
	MinVal   int64
	MaxVal   int64
}

func (g GroupByColumn) rangeSize() int64 {
	if !g.HasRange {
		return 0
	}
	n := g.MaxVal - g.MinVal + 1
	if n < 0 {
		return 0
	}
	return n
}

// SortEntry is one ORDER BY term.
type SortEntry struct {
	Target     expr.Expr
	Descending bool
}

// SortInfo carries ORDER BY / LIMIT / OFFSET.
type SortInfo struct {
	Entries []SortEntry
	Limit   int64 // 0 means unbounded
	Offset  int64
}

// JoinCondition is one equi-join level the row function probes.
type JoinCondition struct {
	OuterKey  expr.Expr
	InnerKey  expr.Expr
	LeftOuter bool
}

// ExecutionUnit is the normalized plan fragment qmd.Decide consumes
// (spec §3 "Execution unit").
type ExecutionUnit struct {
	Projections   []expr.Expr
	SimpleQuals   []expr.Expr
	GeneralQuals  []expr.Expr
	GroupBy       []GroupByColumn
	Targets       []expr.Aggregate
	Joins         []JoinCondition
	Sort          SortInfo
	UnionAll      bool
	ScanLimit     int64 // 0 means unbounded; used for sample queries
}

// FragmentMeta is the subset of storage.Fragment the descriptor
// decision needs: row counts only (actual column buffers are fetched
// later, lazily, by the dispatcher).
type FragmentMeta struct {
	RowCount int64
}

// Config mirrors spec §6's recognized configuration knobs.
type Config struct {
	GPUInputMemLimitPercent float64
	AllowMultifrag          bool
	EnableColumnarOutput    bool
	BaselineMaxGroups       int64
	BigGroupThreshold       int64
	WatchdogEnable          bool
	HoistLiterals           bool
	EnableStreamingTopN     bool
	DeviceMemCapBytes       int64
	ApproxCountDistinctThreshold int64 // range above which Bitmap yields to Sketch
	DefaultSketchBits       uint8
}

// DefaultConfig returns reasonable defaults for standalone use (the
// values spec §6 treats as "recognized options", not mandated
// constants).
func DefaultConfig() Config {
	return Config{
		GPUInputMemLimitPercent:      0.8,
		AllowMultifrag:               true,
		EnableColumnarOutput:         true,
		BaselineMaxGroups:            1 << 20,
		BigGroupThreshold:            1 << 16,
		WatchdogEnable:               true,
		HoistLiterals:                true,
		EnableStreamingTopN:          true,
		DeviceMemCapBytes:            1 << 30,
		ApproxCountDistinctThreshold: 1 << 16,
		DefaultSketchBits:            12,
	}
}

// Descriptor is the immutable output of Decide (spec §3 "exactly one
// QMD is chosen and is immutable thereafter").
type Descriptor struct {
	HashKind                 HashKind
	KeyWidth                 int
	EntryCount               int64
	Keyless                  bool
	OutputColumnar           bool
	UseStreamingTopN         bool
	RowSizeBytes             int
	SlotOffsets              []int
	SlotWidths               []int
	CountDistinctDescriptors []CountDistinctDescriptor
	WarpCount                int
	BlocksShareMemory        bool
}

var (
	// ErrQMDInfeasible signals entry_count × row size exceeds the
	// device allocation cap (spec §7 "Compile-time... QMD infeasible").
	ErrQMDInfeasible = errors.New("qmd: entry count exceeds device allocation cap")
	// ErrCardinalityEstimationRequired signals BaselineHash chosen
	// without a cardinality hint to size entry_count from.
	ErrCardinalityEstimationRequired = errors.New("qmd: cardinality estimation required for baseline hash")
)

// Decide runs the deterministic six-step choice procedure from spec
// §4.2 and returns the resulting immutable Descriptor.
func Decide(unit ExecutionUnit, frags []FragmentMeta, cfg Config) (*Descriptor, error) {
	var totalRows int64
	for _, f := range frags {
		totalRows += f.RowCount
	}
	if unit.ScanLimit > 0 && totalRows > unit.ScanLimit {
		totalRows = unit.ScanLimit
	}

	slotWidths := targetSlotWidths(unit.Targets)
	if len(unit.Targets) == 0 && len(unit.GroupBy) == 0 && len(unit.Projections) > 0 {
		// Pure projection: the materialized row is the SELECT list, not
		// an aggregate region, so slot widths come from the projected
		// expressions' own types.
		slotWidths = projectionSlotWidths(unit.Projections)
	}

	d := &Descriptor{}

	switch {
	case len(unit.GroupBy) == 0 && len(unit.Targets) == 0:
		// Step 1: pure projection.
		d.HashKind = Projection
		d.EntryCount = totalRows

	case len(unit.GroupBy) == 1 && unit.GroupBy[0].HasRange &&
		fitsCap(unit.GroupBy[0].rangeSize(), slotWidths, cfg):
		// Step 2: single dense-range column. Keyless is only valid when
		// the key column can't be null — a null key has no slot within
		// [0, range) to collapse into, so nullability invalidates the
		// "offset alone identifies the row" precondition (spec §3/§4.2
		// step 2, §9 "keyless perfect hash... requires... fall back to
		// keyed layout when nullability invalidates it").
		g := unit.GroupBy[0]
		d.HashKind = PerfectHashOneCol
		d.EntryCount = g.rangeSize()
		d.Keyless = g.Expr == nil || !g.Expr.ResultType().Nullable
		d.KeyWidth = 8

	case len(unit.GroupBy) > 1 && allDenseRanges(unit.GroupBy) &&
		fitsCap(productOfRanges(unit.GroupBy), slotWidths, cfg):
		// Step 3: multi-column dense ranges whose product fits.
		d.HashKind = PerfectHashMulti
		d.EntryCount = productOfRanges(unit.GroupBy)
		d.KeyWidth = 8 * len(unit.GroupBy)

	case len(unit.GroupBy) >= 1:
		// Step 4: baseline hash.
		d.HashKind = BaselineHash
		if cfg.BaselineMaxGroups <= 0 {
			return nil, ErrCardinalityEstimationRequired
		}
		d.EntryCount = estimateBaselineEntries(totalRows, cfg)
		d.KeyWidth = 8 * len(unit.GroupBy)

	default:
		// Targets present with no GROUP BY: a single implicit group
		// (e.g. `SELECT SUM(x) FROM t`).
		d.HashKind = PerfectHashOneCol
		d.EntryCount = 1
		d.Keyless = true
		d.KeyWidth = 8
	}

	if d.EntryCount < 1 {
		d.EntryCount = 1
	}

	if !fitsCap(d.EntryCount, slotWidths, cfg) {
		return nil, ErrQMDInfeasible
	}

	// Step 5: output columnarity.
	d.OutputColumnar = cfg.EnableColumnarOutput && allFixedWidth(slotWidths) && d.HashKind != Projection

	// Step 6: streaming top-N.
	d.UseStreamingTopN = cfg.EnableStreamingTopN &&
		len(unit.Sort.Entries) > 0 &&
		unit.Sort.Limit > 0 &&
		unit.Sort.Limit+unit.Sort.Offset <= cfg.BigGroupThreshold &&
		(d.HashKind == PerfectHashOneCol || d.HashKind == PerfectHashMulti)

	offsets, rowSize := computeSlotLayout(slotWidths)
	d.SlotWidths = slotWidths
	d.SlotOffsets = offsets
	d.RowSizeBytes = rowSize

	d.CountDistinctDescriptors = countDistinctDescriptors(unit.Targets, cfg)

	d.WarpCount = 32
	d.BlocksShareMemory = d.HashKind != Projection

	return d, nil
}

// projectionSlotWidths mirrors targetSlotWidths for the Projection
// layout: every output column is the raw expression value (at least
// 8 bytes wide, matching the rest of the runtime's word-addressed
// aggregate regions) rather than an aggregate accumulator.
func projectionSlotWidths(projections []expr.Expr) []int {
	widths := make([]int, len(projections))
	for i, p := range projections {
		w := p.ResultType().ByteWidth()
		if w < 8 {
			w = 8
		}
		widths[i] = w
	}
	return widths
}

func targetSlotWidths(targets []expr.Aggregate) []int {
	widths := make([]int, len(targets))
	for i, t := range targets {
		switch t.Kind {
		case expr.AggAvg:
			widths[i] = 16 // sum (8) + count (8), 8-byte aligned pair
		default:
			w := t.Type.ByteWidth()
			if w < 8 {
				w = 8 // aggregate slots are at least as wide as an int64 accumulator
			}
			widths[i] = w
		}
	}
	return widths
}

// computeSlotLayout assigns each slot a byte offset, 8-byte-aligning
// double-width aggregates such as AVG (spec §4.2 "compute per-slot
// byte offset (with 8-byte alignment for double-slot aggregates)").
func computeSlotLayout(widths []int) (offsets []int, rowSize int) {
	offsets = make([]int, len(widths))
	cur := 0
	for i, w := range widths {
		if cur%8 != 0 {
			cur += 8 - cur%8
		}
		offsets[i] = cur
		cur += w
	}
	if cur%8 != 0 {
		cur += 8 - cur%8
	}
	return offsets, cur
}

func fitsCap(entryCount int64, widths []int, cfg Config) bool {
	if cfg.DeviceMemCapBytes <= 0 {
		return true
	}
	_, rowSize := computeSlotLayout(widths)
	if rowSize == 0 {
		rowSize = 8
	}
	return entryCount*int64(rowSize) <= cfg.DeviceMemCapBytes
}

func allDenseRanges(cols []GroupByColumn) bool {
	for _, c := range cols {
		if !c.HasRange {
			return false
		}
	}
	return true
}

func productOfRanges(cols []GroupByColumn) int64 {
	p := int64(1)
	for _, c := range cols {
		p *= c.rangeSize()
	}
	return p
}

func allFixedWidth(widths []int) bool {
	for _, w := range widths {
		if w <= 0 {
			return false
		}
	}
	return true
}

func estimateBaselineEntries(totalRows int64, cfg Config) int64 {
	// With no cardinality hint supplied, fall back to a conservative
	// estimate capped by baseline_max_groups; a real cardinality hint
	// (when the plan provider supplies one) would replace this.
	est := totalRows
	if est > cfg.BaselineMaxGroups {
		est = cfg.BaselineMaxGroups
	}
	if est < 16 {
		est = 16
	}
	return est
}

// countDistinctDescriptors returns one descriptor per target, index-
// aligned with unit.Targets (spec §3 "count_distinct_descriptors per
// target"), so codegen can look a target's descriptor up by its own
// index without a second mapping.
func countDistinctDescriptors(targets []expr.Aggregate, cfg Config) []CountDistinctDescriptor {
	out := make([]CountDistinctDescriptor, len(targets))
	for i, t := range targets {
		switch t.Kind {
		case expr.AggCountDistinct:
			if t.HasRange {
				out[i] = ResolveCountDistinctKind(t.RangeMin, t.RangeMax, cfg)
			} else {
				bits := cfg.DefaultSketchBits
				if bits == 0 {
					bits = 12
				}
				out[i] = CountDistinctDescriptor{Applicable: true, Kind: CountDistinctSketchKind, SketchBits: bits}
			}
		case expr.AggApproxCountDistinct:
			bits := t.ApproxBits
			if bits == 0 {
				bits = cfg.DefaultSketchBits
			}
			if bits == 0 {
				bits = 12
			}
			out[i] = CountDistinctDescriptor{Applicable: true, Kind: CountDistinctSketchKind, SketchBits: bits}
		}
	}
	return out
}

// ResolveCountDistinctKind picks Bitmap when the key's dense range fits
// within the baseline group cap, else Sketch — the SUPPLEMENTED
// resolution of the Bitmap-vs-Sketch open question: "Bitmap when
// max-min+1 <= baseline_max_groups, else Sketch."
func ResolveCountDistinctKind(minVal, maxVal int64, cfg Config) CountDistinctDescriptor {
	rangeSize := maxVal - minVal + 1
	if rangeSize > 0 && rangeSize <= cfg.BaselineMaxGroups {
		return CountDistinctDescriptor{Applicable: true, Kind: CountDistinctBitmapKind, RangeMin: minVal, RangeMax: maxVal}
	}
	bits := cfg.DefaultSketchBits
	if bits == 0 {
		bits = 12
	}
	return CountDistinctDescriptor{Applicable: true, Kind: CountDistinctSketchKind, SketchBits: bits}
}

func (d *Descriptor) String() string {
	return fmt.Sprintf("Descriptor{hash=%s entries=%d keyless=%v columnar=%v rowSize=%d}",
		d.HashKind, d.EntryCount, d.Keyless, d.OutputColumnar, d.RowSizeBytes)
}
