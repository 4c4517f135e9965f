// Package query is the public entry point for the execution engine:
// the one "external collaborator contract" surface a SQL layer or CLI
// calls into. Engine wires internal/qmd's layout decision, internal/
// codegen's compilation, internal/joinhash's build-side hash tables,
// internal/dispatch's fan-out, and internal/resultset's reduction into
// a single Execute call — grounded on the teacher's pkg/vcs.Repository,
// which plays the identical role of "the one exported type other
// packages are allowed to depend on" over the teacher's internal/core
// packages.
package query

import (
	"context"
	"fmt"

	"github.com/fenilsonani/polyquery/internal/codegen"
	"github.com/fenilsonani/polyquery/internal/dispatch"
	"github.com/fenilsonani/polyquery/internal/expr"
	"github.com/fenilsonani/polyquery/internal/joinhash"
	"github.com/fenilsonani/polyquery/internal/qmd"
	"github.com/fenilsonani/polyquery/internal/resultset"
	"github.com/fenilsonani/polyquery/internal/storage"
)

// JoinBuildInput is one join level's build (inner) side, supplied by
// the caller since Engine has no catalog of its own to fetch the inner
// table from (spec §4.4 "build phase" precedes the probe phase this
// package wires into dispatch.Joins).
type JoinBuildInput struct {
	Layout     joinhash.Layout
	Params     joinhash.BuildParams
	LeftOuter  bool
}

// Engine is the compiled-query cache plus device policy a caller
// configures once and reuses across queries. Compiled kernels are cached
// by fingerprint in a plain map for the Engine's lifetime; entries are
// never evicted.
type Engine struct {
	Config     qmd.Config
	Dispatcher *dispatch.Dispatcher
	cache      map[string]*codegen.CompiledKernel
}

// NewEngine builds an Engine with cfg's knobs and a CPU-only dispatch
// policy by default; callers that want GPU device groups should set
// Engine.Dispatcher themselves after construction, the way the
// teacher's cmd/vcs constructs a vcs.Repository then configures it
// further before use.
func NewEngine(cfg qmd.Config) *Engine {
	return &Engine{
		Config:     cfg,
		Dispatcher: &dispatch.Dispatcher{Config: cfg, Policy: dispatch.CPUOnlyPolicy{}},
		cache:      make(map[string]*codegen.CompiledKernel),
	}
}

// Execute runs one execution unit end to end: decide its QMD, compile
// (or fetch from cache) its kernel, build any join levels, dispatch
// across fragments, and reduce the per-device results into one
// ResultSet with ORDER BY/LIMIT/OFFSET applied.
func (e *Engine) Execute(ctx context.Context, unit qmd.ExecutionUnit, fragments []*storage.Fragment, joins []JoinBuildInput, planHash string) (*resultset.ResultSet, error) {
	metas := make([]qmd.FragmentMeta, len(fragments))
	for i, f := range fragments {
		metas[i] = qmd.FragmentMeta{RowCount: int64(f.RowCount)}
	}

	desc, err := qmd.Decide(unit, metas, e.Config)
	if err != nil {
		return nil, fmt.Errorf("query: qmd decide: %w", err)
	}

	kernel, err := e.compile(unit, desc, planHash)
	if err != nil {
		return nil, fmt.Errorf("query: compile: %w", err)
	}

	if err := e.wireJoins(joins); err != nil {
		return nil, fmt.Errorf("query: build join tables: %w", err)
	}

	kernelResults, err := e.Dispatcher.RunWithCpuFallback(ctx, unit, kernel, fragments, nil)
	if err != nil {
		return nil, fmt.Errorf("query: dispatch: %w", err)
	}

	rs, err := resultset.Reduce(desc, unit, kernelResults)
	if err != nil {
		return nil, fmt.Errorf("query: reduce: %w", err)
	}

	sortExprs := make([]expr.Expr, len(unit.Sort.Entries))
	descending := make([]bool, len(unit.Sort.Entries))
	for i, s := range unit.Sort.Entries {
		sortExprs[i] = s.Target
		descending[i] = s.Descending
	}
	if desc.UseStreamingTopN {
		resultset.ApplyStreamingTopN(rs, sortExprs, descending, unit.Sort.Limit, unit.Sort.Offset)
	} else {
		resultset.ApplySort(rs, sortExprs, descending, unit.Sort.Limit, unit.Sort.Offset)
	}

	return rs, nil
}

// compile fetches a cached kernel by its (planHash, QMD, device)
// fingerprint or builds a fresh one (spec §4.3 "Caching").
func (e *Engine) compile(unit qmd.ExecutionUnit, desc *qmd.Descriptor, planHash string) (*codegen.CompiledKernel, error) {
	fp := codegen.Fingerprint(planHash, desc, codegen.DeviceCPU, e.Config.HoistLiterals)
	if k, ok := e.cache[fp]; ok {
		return k, nil
	}
	k := codegen.Compile(unit, desc, codegen.DeviceCPU, planHash)
	e.cache[fp] = k
	return k, nil
}

// wireJoins builds each join level's hash table and installs the
// result on e.Dispatcher.Joins, index-aligned with the execution
// unit's qmd.JoinCondition list (spec §4.4 build phase feeding §4.3
// step 2's probe).
func (e *Engine) wireJoins(joins []JoinBuildInput) error {
	if len(joins) == 0 {
		e.Dispatcher.Joins = nil
		return nil
	}
	tables := make([]dispatch.JoinTable, len(joins))
	for i, j := range joins {
		jt := dispatch.JoinTable{
			DenseRange: j.Params.DenseRange,
			MinVal:     j.Params.MinVal,
			LeftOuter:  j.LeftOuter,
		}
		switch j.Layout {
		case joinhash.LayoutOneToMany:
			table, err := joinhash.BuildOneToMany(j.Params)
			if err != nil {
				return fmt.Errorf("join %d: %w", i, err)
			}
			jt.OneToMany = table
		default:
			table, err := joinhash.BuildOneToOne(j.Params)
			if err != nil {
				return fmt.Errorf("join %d: %w", i, err)
			}
			jt.OneToOne = table
		}
		tables[i] = jt
	}
	e.Dispatcher.Joins = tables
	return nil
}
