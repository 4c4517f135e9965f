package dispatch

import (
	"context"
	"errors"
	"math"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/errgroup"

	"github.com/fenilsonani/polyquery/internal/codegen"
	"github.com/fenilsonani/polyquery/internal/intrinsics"
	"github.com/fenilsonani/polyquery/internal/qmd"
	"github.com/fenilsonani/polyquery/internal/storage"
)

// ErrQueryMustRunOnCpu signals that a GPU device group's fragments
// would exceed its memory budget; the caller is expected to retry the
// whole query with a CPU-only policy (spec §4.5 "per-device memory
// accounting... QueryMustRunOnCpu escalation").
var ErrQueryMustRunOnCpu = errors.New("dispatch: gpu input would exceed device memory budget, retry on cpu")

// ErrWatchdogCancelled is returned by Run when the process-wide
// interrupt flag trips mid-scan (spec §5 "Cancellation").
var ErrWatchdogCancelled = errors.New("dispatch: query cancelled by watchdog")

const watchdogStride = 1024

// KernelResult is one device group's output: its own GroupValueTable
// (or direct-indexed region table for Projection/perfect-hash
// descriptors) plus bookkeeping the reduction stage needs.
type KernelResult struct {
	Device        Device
	DeviceID      int
	Groups        *intrinsics.GroupValueTable
	RowsProcessed int64
	RowsMatched   int64
	ErrorCodes    []int32
	CD            *intrinsics.CDStore // COUNT DISTINCT / APPROX_COUNT_DISTINCT state for this group's targets
}

// Dispatcher owns the device policy and per-device memory snapshot; it
// fans a compiled kernel out across fragments, one goroutine per
// device group, collecting each group's independent output buffer —
// grounded on the teacher's turbo.TurboDB.BatchWrite (group work items
// by partition key, one goroutine per partition, collect errors), here
// realized with golang.org/x/sync/errgroup instead of a raw
// WaitGroup+channel, matching pack.HyperPack.WriteObjects' use of
// errgroup.WithContext for the same shape of fan-out.
type Dispatcher struct {
	Config    qmd.Config
	Policy    Policy
	DeviceMem []DeviceMemInfo // indexed by DeviceID, GPU devices only
	Joins     []JoinTable     // pre-built join levels, index-aligned with the execution unit's Joins (spec §4.4/4.3 step 2)
}

// NewDispatcher builds a Dispatcher with the default round-robin
// policy over gpuCount devices, each reporting deviceMemBytes of
// total memory.
func NewDispatcher(cfg qmd.Config, gpuCount int, deviceMemBytes int64) *Dispatcher {
	mem := make([]DeviceMemInfo, gpuCount)
	for i := range mem {
		mem[i] = DeviceMemInfo{Device: DeviceGPU, DeviceID: i, TotalBytes: deviceMemBytes}
	}
	return &Dispatcher{Config: cfg, Policy: DefaultPolicy{GPUCount: gpuCount}, DeviceMem: mem}
}

type deviceGroup struct {
	assignment Assignment
	fragments  []*storage.Fragment
	rows       int64
}

// Run dispatches kernel across fragments and returns one KernelResult
// per device group the policy produced. If any GPU group's estimated
// input would exceed its configured memory budget, Run returns
// ErrQueryMustRunOnCpu without doing any work; RunWithCpuFallback
// retries that case automatically.
func (d *Dispatcher) Run(ctx context.Context, unit qmd.ExecutionUnit, kernel *codegen.CompiledKernel, fragments []*storage.Fragment, literals []int64) ([]*KernelResult, error) {
	groups := d.groupFragments(fragments)

	bytesPerRow := int64(kernel.Descriptor.RowSizeBytes)
	if bytesPerRow <= 0 {
		bytesPerRow = 8
	}
	if err := d.checkBudgets(groups, bytesPerRow); err != nil {
		return nil, err
	}

	intrinsics.ResetInterrupt()

	results := make([]*KernelResult, len(groups))
	var matched atomic.Int64
	eg, egctx := errgroup.WithContext(ctx)
	for i, g := range groups {
		i, g := i, g
		eg.Go(func() error {
			res, err := d.runGroup(egctx, unit, kernel, g, literals, &matched)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RunWithCpuFallback calls Run, and on ErrQueryMustRunOnCpu retries
// once with every fragment forced onto a single CPU device group — the
// "real control flow, not a stub" escalation path spec §4.5 calls for.
func (d *Dispatcher) RunWithCpuFallback(ctx context.Context, unit qmd.ExecutionUnit, kernel *codegen.CompiledKernel, fragments []*storage.Fragment, literals []int64) ([]*KernelResult, error) {
	results, err := d.Run(ctx, unit, kernel, fragments, literals)
	if err == nil {
		return results, nil
	}
	if !errors.Is(err, ErrQueryMustRunOnCpu) {
		return nil, err
	}
	fallback := &Dispatcher{Config: d.Config, Policy: CPUOnlyPolicy{}}
	cpuKernel := kernel
	if kernel.Device != DeviceCPU {
		// Same compiled RowFunc runs on either device (spec §4.3); only
		// the Device tag differs, so results report CPU accurately.
		clone := *kernel
		clone.Device = DeviceCPU
		cpuKernel = &clone
	}
	return fallback.Run(ctx, unit, cpuKernel, fragments, literals)
}

func (d *Dispatcher) groupFragments(fragments []*storage.Fragment) []*deviceGroup {
	byAssignment := map[Assignment]*deviceGroup{}
	var order []Assignment
	for i, f := range fragments {
		a := d.Policy.AssignFragment(i, int64(f.RowCount))
		g, ok := byAssignment[a]
		if !ok {
			g = &deviceGroup{assignment: a}
			byAssignment[a] = g
			order = append(order, a)
		}
		g.fragments = append(g.fragments, f)
		g.rows += int64(f.RowCount)
	}
	out := make([]*deviceGroup, 0, len(order))
	for _, a := range order {
		out = append(out, byAssignment[a])
	}
	return out
}

func (d *Dispatcher) checkBudgets(groups []*deviceGroup, bytesPerRow int64) error {
	limitPct := d.Config.GPUInputMemLimitPercent
	if limitPct <= 0 {
		limitPct = 1
	}
	for _, g := range groups {
		if g.assignment.Device != DeviceGPU {
			continue
		}
		var total int64
		for _, m := range d.DeviceMem {
			if m.DeviceID == g.assignment.DeviceID {
				total = m.TotalBytes
				break
			}
		}
		if total <= 0 {
			continue
		}
		budget := int64(float64(total) * limitPct)
		if g.rows*bytesPerRow > budget {
			return ErrQueryMustRunOnCpu
		}
	}
	return nil
}

func (d *Dispatcher) runGroup(ctx context.Context, unit qmd.ExecutionUnit, kernel *codegen.CompiledKernel, g *deviceGroup, literals []int64, matched *atomic.Int64) (*KernelResult, error) {
	desc := kernel.Descriptor
	rowWords := desc.RowSizeBytes / 8
	if rowWords < 1 {
		rowWords = 1
	}
	entryCount := desc.EntryCount
	if entryCount < 1 {
		entryCount = 1
	}
	table := intrinsics.NewGroupValueTable(int(entryCount), rowWords, math.MinInt64)
	table.Init = kernel.InitRegion

	res := &KernelResult{Device: g.assignment.Device, DeviceID: g.assignment.DeviceID, Groups: table, ErrorCodes: make([]int32, 1), CD: intrinsics.NewCDStore()}
	joins := buildJoinLevels(unit.Joins, d.Joins)

	var rowSeq int64
	keyIsFloat := make([]bool, len(unit.GroupBy))
	strides := make([]int64, len(unit.GroupBy)) // PerfectHashMulti only
	if len(unit.GroupBy) > 0 {
		strides[len(unit.GroupBy)-1] = 1
		for i := len(unit.GroupBy) - 2; i >= 0; i-- {
			strides[i] = strides[i+1] * rangeSizeOf(unit.GroupBy[i+1])
		}
	}
	for i, gb := range unit.GroupBy {
		keyIsFloat[i] = gb.Expr.ResultType().Kind.IsFloat()
	}

	for _, frag := range g.fragments {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if unit.ScanLimit > 0 && matched.Load() >= unit.ScanLimit {
			break
		}
		if fragmentSkippable(unit.SimpleQuals, frag) {
			continue
		}

		row := newRow(frag, literals, res.ErrorCodes, res.CD)
		for r := 0; r < frag.RowCount; r++ {
			if r%watchdogStride == 0 {
				if d.Config.WatchdogEnable && intrinsics.CheckInterrupt() {
					return nil, ErrWatchdogCancelled
				}
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
			}
			if unit.ScanLimit > 0 && matched.Load() >= unit.ScanLimit {
				break
			}

			row.RowIdx = r
			res.RowsProcessed++

			if len(joins) > 0 {
				skip := false
				for _, jl := range joins {
					_, keep := jl.probe(row)
					if !keep {
						skip = true
						break
					}
				}
				if skip {
					continue
				}
			}

			var groupKey int64
			var groupHash uint64
			switch desc.HashKind {
			case qmd.Projection:
				// Each row owns its own output slot (spec §4.7
				// "projection concatenates rows across fragments").
				groupKey = rowSeq
				groupHash = uint64(rowSeq)
				rowSeq++
			case qmd.PerfectHashOneCol:
				if len(unit.GroupBy) == 0 {
					// No GROUP BY at all: a single implicit group, e.g.
					// `SELECT SUM(x) FROM t` (qmd's Decide default case).
					groupKey, groupHash = 0, 0
					break
				}
				groupKey = scalarKeyBits(kernel.GroupKeys[0](row), keyIsFloat[0]) - unit.GroupBy[0].MinVal
				groupHash = uint64(groupKey)
			case qmd.PerfectHashMulti:
				var idx int64
				for i, k := range kernel.GroupKeys {
					v := scalarKeyBits(k(row), keyIsFloat[i]) - unit.GroupBy[i].MinVal
					idx += v * strides[i]
				}
				groupKey = idx
				groupHash = uint64(idx)
			default: // BaselineHash, and the implicit single-group case with no GroupBy columns
				groupKey = evalGroupKey(kernel.GroupKeys, keyIsFloat, row)
				groupHash = xxhash.Sum64(int64Bytes(groupKey))
			}

			code := kernel.RowFunc(row, table, groupKey, groupHash)
			if code == 0 {
				res.RowsMatched++
				matched.Add(1)
			}
		}
	}
	return res, nil
}

func newRow(frag *storage.Fragment, literals []int64, errorCodes []int32, cd *intrinsics.CDStore) *codegen.Row {
	cols := make([][]byte, len(frag.Columns))
	widths := make([]int, len(frag.Columns))
	for i, c := range frag.Columns {
		cols[i] = c.Bytes()
		widths[i] = c.Type.ByteWidth()
	}
	return &codegen.Row{Columns: cols, ColumnWidth: widths, Literals: literals, ErrorCodes: errorCodes, ErrorSlot: 0, CD: cd}
}

// evalGroupKey folds every compiled GROUP BY column into one int64.
// A single column's value is used verbatim (the common case); multiple
// columns are bit-mixed into one composite key, trading a theoretical
// hash collision across distinct tuples for staying inside
// GroupValueTable's single-int64-key slot shape rather than widening
// it throughout the runtime.
func evalGroupKey(keys []codegen.ScalarFunc, isFloat []bool, row *codegen.Row) int64 {
	if len(keys) == 0 {
		return 0
	}
	if len(keys) == 1 {
		return scalarKeyBits(keys[0](row), isFloat[0])
	}
	var mixed uint64
	for i, k := range keys {
		v := uint64(scalarKeyBits(k(row), isFloat[i]))
		mixed ^= v
		mixed *= 0x9E3779B97F4A7C15 // golden-ratio multiplicative mix
		mixed = (mixed << 31) | (mixed >> 33)
	}
	return int64(mixed)
}

// rangeSizeOf mirrors qmd.GroupByColumn's unexported rangeSize, needed
// here to compute PerfectHashMulti's per-column strides.
func rangeSizeOf(g qmd.GroupByColumn) int64 {
	if !g.HasRange {
		return 1
	}
	n := g.MaxVal - g.MinVal + 1
	if n < 1 {
		return 1
	}
	return n
}

func scalarKeyBits(r codegen.EvalResult, isFloat bool) int64 {
	if r.IsNull {
		return math.MinInt64
	}
	if isFloat {
		return int64(math.Float64bits(r.Float))
	}
	return r.Int
}

func int64Bytes(v int64) []byte {
	u := uint64(v)
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
	return b[:]
}
