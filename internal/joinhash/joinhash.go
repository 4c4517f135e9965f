// Package joinhash builds the hash tables the code generator's join
// intrinsics (internal/intrinsics/join.go) probe at row-evaluation
// time. Perfect-hash-by-dense-id and baseline open-addressed-with-
// linear-probing are grounded on the teacher's turbo.QuantumIndex
// (a CuckooHashTable stub we realize here as a working table) and
// pack.PackIndex's offset-directory shape for the OneToMany layout.
package joinhash

import (
	"errors"

	"github.com/cespare/xxhash/v2"

	"github.com/fenilsonani/polyquery/internal/intrinsics"
)

// Layout selects which shape the build phase produces (spec §4.4).
type Layout int

const (
	LayoutOneToOne Layout = iota
	LayoutOneToMany
	LayoutManyToMany
)

var (
	// ErrTooManyHashEntries is returned when the build side exceeds
	// the 32-bit row-id addressing limit (spec §4.4 ">2B").
	ErrTooManyHashEntries = errors.New("joinhash: build side exceeds 2^31 entries")
	// ErrNeedsOneToManyHash is returned by BuildOneToOne when the
	// build column contains duplicate keys.
	ErrNeedsOneToManyHash = errors.New("joinhash: build column has duplicate keys, requires OneToMany layout")
	// ErrFailedToFetchColumn signals insufficient device memory to
	// materialize the build column (surfaced by the caller before
	// invoking Build*; defined here so dispatch can match on it).
	ErrFailedToFetchColumn = errors.New("joinhash: failed to fetch build column (insufficient device memory)")
)

const maxHashEntries = 1 << 31

// BuildParams describes the inner (build) column the hash table is
// constructed from.
type BuildParams struct {
	Keys         []int64
	KeyIsNull    []bool // optional; nil means no nulls present
	NullSentinel int64  // reserved out-of-range value nullable keys translate to
	DenseRange   bool
	MinVal       int64
	MaxVal       int64
}

func (p BuildParams) rangeSize() int64 {
	n := p.MaxVal - p.MinVal + 1
	if n < 1 {
		n = 1
	}
	return n
}

func isNull(p BuildParams, i int) bool {
	return p.KeyIsNull != nil && p.KeyIsNull[i]
}

// BuildOneToOne constructs a slot table where each key maps to at most
// one build row id. Returns ErrNeedsOneToManyHash if a duplicate key is
// found, per spec §4.4's "caller requested OneToOne but duplicates
// exist" failure mode.
func BuildOneToOne(p BuildParams) (*intrinsics.OneToOneJoinTable, error) {
	if len(p.Keys) > maxHashEntries {
		return nil, ErrTooManyHashEntries
	}

	var bucketCount int
	hashOf := func(i int) uint64 { return 0 }

	if p.DenseRange {
		bucketCount = int(p.rangeSize())
		hashOf = func(i int) uint64 { return uint64(p.Keys[i] - p.MinVal) }
	} else {
		bucketCount = nextPow2(len(p.Keys)*2 + 1)
		hashOf = func(i int) uint64 { return xxhash.Sum64(int64Bytes(p.Keys[i])) }
	}

	t := &intrinsics.OneToOneJoinTable{Buckets: make([]int32, bucketCount)}
	for i := range t.Buckets {
		t.Buckets[i] = intrinsics.HashJoinNoMatch
	}

	for i, key := range p.Keys {
		if isNull(p, i) {
			continue
		}
		if p.DenseRange {
			idx := key - p.MinVal
			if idx < 0 || idx >= int64(bucketCount) {
				continue
			}
			if t.Buckets[idx] != intrinsics.HashJoinNoMatch {
				return nil, ErrNeedsOneToManyHash
			}
			t.Buckets[idx] = int32(i)
			continue
		}
		start := int(hashOf(i) % uint64(bucketCount))
		placed := false
		for probe := 0; probe < bucketCount; probe++ {
			idx := (start + probe) % bucketCount
			if t.Buckets[idx] == intrinsics.HashJoinNoMatch {
				t.Buckets[idx] = int32(i)
				placed = true
				break
			}
			if p.Keys[int(t.Buckets[idx])] == key {
				return nil, ErrNeedsOneToManyHash
			}
		}
		if !placed {
			return nil, ErrTooManyHashEntries
		}
	}
	return t, nil
}

// BuildOneToMany constructs the offsets/counts/payload layout (spec
// §4.4 OneToMany): first counting per-bucket hits, prefix-summing into
// offsets, then scattering row ids into payload.
func BuildOneToMany(p BuildParams) (*intrinsics.BucketizedJoinTable, error) {
	if len(p.Keys) > maxHashEntries {
		return nil, ErrTooManyHashEntries
	}

	var bucketCount int
	var bucketOf func(i int) int
	if p.DenseRange {
		bucketCount = int(p.rangeSize())
		bucketOf = func(i int) int {
			idx := int(p.Keys[i] - p.MinVal)
			if idx < 0 || idx >= bucketCount {
				return -1
			}
			return idx
		}
	} else {
		bucketCount = nextPow2(len(p.Keys)*2 + 1)
		bucketOf = func(i int) int {
			return int(xxhash.Sum64(int64Bytes(p.Keys[i])) % uint64(bucketCount))
		}
	}

	counts := make([]int32, bucketCount)
	validRows := 0
	for i := range p.Keys {
		if isNull(p, i) {
			continue
		}
		b := bucketOf(i)
		if b < 0 {
			continue
		}
		counts[b]++
		validRows++
	}

	offsets := make([]int32, bucketCount)
	cursor := int32(0)
	for i, c := range counts {
		offsets[i] = cursor
		cursor += c
	}

	payload := make([]int32, validRows)
	cursorPerBucket := make([]int32, bucketCount)
	copy(cursorPerBucket, offsets)
	for i := range p.Keys {
		if isNull(p, i) {
			continue
		}
		b := bucketOf(i)
		if b < 0 {
			continue
		}
		payload[cursorPerBucket[b]] = int32(i)
		cursorPerBucket[b]++
	}

	return &intrinsics.BucketizedJoinTable{
		BucketOffset: offsets,
		BucketCount:  counts,
		RowIDs:       payload,
	}, nil
}

// ManyToManyTable generalizes OneToMany to the case where both sides
// carry duplicates (spec §4.4: "payload is a two-dimensional list").
// Build is identical to BuildOneToMany's directory; the outer-side
// duplication is handled by the row function calling the probe once
// per outer row rather than by the table itself.
type ManyToManyTable struct {
	*intrinsics.BucketizedJoinTable
}

func BuildManyToMany(p BuildParams) (*ManyToManyTable, error) {
	inner, err := BuildOneToMany(p)
	if err != nil {
		return nil, err
	}
	return &ManyToManyTable{BucketizedJoinTable: inner}, nil
}

func nextPow2(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func int64Bytes(v int64) []byte {
	u := uint64(v)
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
	return b[:]
}
