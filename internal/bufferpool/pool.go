// Package bufferpool implements the three-tier (disk, CPU-pageable,
// GPU) paged buffer pool the dispatcher pins column chunks through
// before a kernel reads them (spec §4.6). Each tier is a list of
// fixed-size slabs, and each slab is a segment list of
// (start, length, state, last-touched, pin-count) exactly as spec §4.6
// describes; eviction picks the least-recently-touched unpinned
// segment, halving the requested slab size on OOM down to a minimum.
//
// Grounded on the teacher's internal/hyperdrive.MemoryPool/Block (a
// bucketed free-list allocator with a pin/free discipline, realized
// here as real segment bookkeeping instead of a microbenchmark stub)
// and internal/pack.HyperPack.HotCache (access-time ordered eviction,
// encoder/decoder sync.Pool reuse), adapted from "git object bytes on
// disk" to "pinned column chunk bytes across three storage tiers".
package bufferpool

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"

	"github.com/fenilsonani/polyquery/internal/storage"
)

// Tier identifies one of the three storage tiers spec §4.6 names.
type Tier int

const (
	TierDisk Tier = iota
	TierCPU
	TierGPU
)

func (t Tier) String() string {
	switch t {
	case TierDisk:
		return "disk"
	case TierGPU:
		return "gpu"
	default:
		return "cpu"
	}
}

var (
	// ErrBufferExists is create_buffer's "if key exists -> error" case.
	ErrBufferExists = errors.New("bufferpool: buffer already exists for key")
	// ErrBufferNotFound is returned by get_buffer/delete_buffer when
	// the key has no resident buffer.
	ErrBufferNotFound = errors.New("bufferpool: no resident buffer for key")
	// ErrZeroCopyUnsupported is zero_copy_buffer's "eligible only when
	// the parent tier supports it" failure (only TierCPU does here;
	// GPU has no host-visible zero-copy analog and disk is never
	// zero-copy by definition).
	ErrZeroCopyUnsupported = errors.New("bufferpool: zero-copy not supported on this tier")
)

type segState uint8

const (
	segFree segState = iota
	segUsed
)

// segment is one (start_page, num_pages, state, last_touched,
// pin_count) record, spec §4.6's unit of slab bookkeeping. Pages are
// bytes here — a column chunk's natural unit — rather than a fixed
// disk page size, since the pool never round-trips through an actual
// filesystem.
type segment struct {
	start      int
	length     int
	state      segState
	lastTouch  int64
	pinCount   int
	key        storage.ChunkKey
	hasKey     bool
	compressed bool // true on TierDisk: data[start:start+storedLen] is zstd-compressed
	storedLen  int  // bytes actually occupied; == logical size unless compressed
	plainSize  int  // uncompressed size, meaningful when compressed
}

type slab struct {
	data     []byte
	segments []*segment
}

// residency is the pool-wide lookup entry for one key: which tier,
// slab and segment currently hold it.
type residency struct {
	tier   Tier
	slb    *slab
	seg    *segment
	size   int
	zcData []byte // set only for zero-copy residencies, which own no slab
}

// Pool is the buffer pool described in spec §4.6: three tiers, a
// single mutex protecting segment lists per the concurrency model in
// spec §5 ("tier-wide mutexes for segment lists"), a separate mutex for
// the chunk index, and per-key singleflight to collapse concurrent
// fetches (spec §4.6 "a per-key condition variable so concurrent
// getters wait instead of duplicating work").
type Pool struct {
	mu          sync.Mutex // protects slabs across all tiers
	slabs       [3][]*slab
	minSlabSize int
	defSlabSize int
	clock       atomic.Int64

	chunkMu    sync.Mutex
	chunkIndex map[storage.ChunkKey]*residency

	fetch singleflight.Group

	encoders sync.Pool
	decoders sync.Pool
}

// NewPool creates a pool whose tiers grow slabs of defaultSlabSize
// bytes, halving down to minSlabSize on allocation failure (spec §4.6
// "halving the requested slab size on OOM until the minimum slab
// size").
func NewPool(defaultSlabSize, minSlabSize int) *Pool {
	if minSlabSize < 1 {
		minSlabSize = 4096
	}
	if defaultSlabSize < minSlabSize {
		defaultSlabSize = minSlabSize
	}
	p := &Pool{
		minSlabSize: minSlabSize,
		defSlabSize: defaultSlabSize,
		chunkIndex:  make(map[storage.ChunkKey]*residency),
	}
	p.encoders.New = func() interface{} {
		w, _ := zstd.NewWriter(nil)
		return w
	}
	p.decoders.New = func() interface{} {
		r, _ := zstd.NewReader(nil)
		return r
	}
	return p
}

func (p *Pool) now() int64 { return p.clock.Add(1) }

// CreateBuffer reserves size bytes for key on tier, evicting unpinned
// segments (LRU by last-touched) if no slab can host the request
// before growing a new slab (spec §4.6 create_buffer).
func (p *Pool) CreateBuffer(key storage.ChunkKey, tier Tier, size int) ([]byte, error) {
	p.chunkMu.Lock()
	if _, exists := p.chunkIndex[key]; exists {
		p.chunkMu.Unlock()
		return nil, ErrBufferExists
	}
	p.chunkMu.Unlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	slb, seg, err := p.reserve(tier, size)
	if err != nil {
		return nil, err
	}
	seg.key = key
	seg.hasKey = true
	seg.lastTouch = p.now()
	seg.pinCount = 1
	seg.storedLen = size

	p.chunkMu.Lock()
	p.chunkIndex[key] = &residency{tier: tier, slb: slb, seg: seg, size: size}
	p.chunkMu.Unlock()

	return slb.data[seg.start : seg.start+size], nil
}

// reserve finds or creates a segment of at least size bytes on tier,
// evicting as needed. Caller holds p.mu.
func (p *Pool) reserve(tier Tier, size int) (*slab, *segment, error) {
	for _, slb := range p.slabs[tier] {
		if seg := findFreeSegment(slb, size); seg != nil {
			return slb, seg, nil
		}
	}
	// No free segment anywhere; try evicting from existing slabs.
	for _, slb := range p.slabs[tier] {
		if p.evictToFit(slb, size) {
			if seg := findFreeSegment(slb, size); seg != nil {
				return slb, seg, nil
			}
		}
	}
	// Grow a new slab, halving the requested size on OOM.
	want := p.defSlabSize
	if want < size {
		want = size
	}
	for want >= p.minSlabSize {
		if want >= size {
			slb := &slab{data: make([]byte, want)}
			slb.segments = []*segment{{start: 0, length: want, state: segFree}}
			p.slabs[tier] = append(p.slabs[tier], slb)
			seg := findFreeSegment(slb, size)
			if seg != nil {
				return slb, seg, nil
			}
		}
		want /= 2
	}
	return nil, nil, fmt.Errorf("bufferpool: cannot allocate %d bytes on tier %s", size, tier)
}

func findFreeSegment(slb *slab, size int) *segment {
	for _, seg := range slb.segments {
		if seg.state == segFree && seg.length >= size {
			if seg.length > size {
				splitSegment(slb, seg, size)
			}
			seg.state = segUsed
			return seg
		}
	}
	return nil
}

// splitSegment carves a size-byte used segment out of the front of a
// larger free one, leaving the remainder free.
func splitSegment(slb *slab, seg *segment, size int) {
	remainder := &segment{start: seg.start + size, length: seg.length - size, state: segFree}
	seg.length = size
	idx := indexOf(slb.segments, seg)
	slb.segments = append(slb.segments[:idx+1], append([]*segment{remainder}, slb.segments[idx+1:]...)...)
}

func indexOf(segs []*segment, target *segment) int {
	for i, s := range segs {
		if s == target {
			return i
		}
	}
	return -1
}

// evictToFit evicts unpinned used segments from slb, lowest
// last-touched first, coalescing adjacent free segments, until a
// contiguous free run of at least size bytes exists or no more
// unpinned segments remain.
func (p *Pool) evictToFit(slb *slab, size int) bool {
	for {
		if findFreeSegment(slb, size) != nil {
			return true
		}
		victim := lowestTouchedUnpinned(slb)
		if victim == nil {
			return false
		}
		p.evictSegment(slb, victim)
		coalesce(slb)
	}
}

func lowestTouchedUnpinned(slb *slab) *segment {
	var victim *segment
	for _, seg := range slb.segments {
		if seg.state != segUsed || seg.pinCount > 0 {
			continue
		}
		if victim == nil || seg.lastTouch < victim.lastTouch {
			victim = seg
		}
	}
	return victim
}

func (p *Pool) evictSegment(slb *slab, seg *segment) {
	if seg.hasKey {
		p.chunkMu.Lock()
		delete(p.chunkIndex, seg.key)
		p.chunkMu.Unlock()
	}
	seg.state = segFree
	seg.hasKey = false
	seg.compressed = false
}

func coalesce(slb *slab) {
	sort.Slice(slb.segments, func(i, j int) bool { return slb.segments[i].start < slb.segments[j].start })
	out := slb.segments[:0]
	for _, seg := range slb.segments {
		if n := len(out); n > 0 && out[n-1].state == segFree && seg.state == segFree &&
			out[n-1].start+out[n-1].length == seg.start {
			out[n-1].length += seg.length
			continue
		}
		out = append(out, seg)
	}
	slb.segments = out
}

// GetBuffer returns key's resident bytes, pinning it. If key is not
// resident, or resident with fewer than size bytes, fetch is called to
// materialize the missing bytes; concurrent GetBuffer calls for the
// same key collapse onto one fetch via singleflight, matching spec
// §4.6's "concurrent getters wait instead of duplicating work".
func (p *Pool) GetBuffer(key storage.ChunkKey, tier Tier, size int, fetch func() ([]byte, error)) ([]byte, error) {
	p.chunkMu.Lock()
	r, ok := p.chunkIndex[key]
	p.chunkMu.Unlock()

	if ok && r.size >= size {
		return p.pinAndRead(r, size)
	}

	v, err, _ := p.fetch.Do(key.String(), func() (interface{}, error) {
		bs, err := fetch()
		if err != nil {
			return nil, err
		}
		buf, err := p.CreateBuffer(key, tier, len(bs))
		if errors.Is(err, ErrBufferExists) {
			p.chunkMu.Lock()
			existing := p.chunkIndex[key]
			p.chunkMu.Unlock()
			if existing.size >= size {
				return p.pinAndRead(existing, existing.size)
			}
			// Resident but shorter than requested: replace it with the
			// fetched bytes.
			if err := p.DeleteBuffer(key); err != nil {
				return nil, err
			}
			buf, err = p.CreateBuffer(key, tier, len(bs))
		}
		if err != nil {
			return nil, err
		}
		copy(buf, bs)
		return buf, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// pinAndRead pins r's segment, reads back size logical bytes
// (decompressing first if the segment was compacted by
// CompressForDisk), and bumps its last-touched clock.
func (p *Pool) pinAndRead(r *residency, size int) ([]byte, error) {
	p.mu.Lock()
	r.seg.pinCount++
	r.seg.lastTouch = p.now()
	if r.slb == nil { // zero-copy residency: no segment bytes to read
		out := r.zcData
		p.mu.Unlock()
		return out[:size], nil
	}
	raw := append([]byte(nil), r.slb.data[r.seg.start:r.seg.start+r.seg.storedLen]...)
	compressed := r.seg.compressed
	plainSize := r.seg.plainSize
	p.mu.Unlock()

	if compressed {
		out, err := p.decompress(raw, plainSize)
		if err != nil {
			return nil, err
		}
		return out[:size], nil
	}
	return raw[:size], nil
}

// Unpin decrements key's pin count, making it eligible for eviction
// once it reaches zero (spec §3 "eligible for eviction only when pin
// count = 0").
func (p *Pool) Unpin(key storage.ChunkKey) {
	p.chunkMu.Lock()
	r, ok := p.chunkIndex[key]
	p.chunkMu.Unlock()
	if !ok {
		return
	}
	p.mu.Lock()
	if r.seg.pinCount > 0 {
		r.seg.pinCount--
	}
	p.mu.Unlock()
}

// DeleteBuffer removes key's residency immediately, regardless of pin
// count (spec §4.6 delete_buffer).
func (p *Pool) DeleteBuffer(key storage.ChunkKey) error {
	p.chunkMu.Lock()
	r, ok := p.chunkIndex[key]
	if !ok {
		p.chunkMu.Unlock()
		return ErrBufferNotFound
	}
	delete(p.chunkIndex, key)
	p.chunkMu.Unlock()

	p.mu.Lock()
	r.seg.state = segFree
	r.seg.hasKey = false
	r.seg.pinCount = 0
	if r.slb != nil {
		coalesce(r.slb)
	}
	p.mu.Unlock()
	return nil
}

// DeleteBuffersWithPrefix removes every resident key sharing tableID
// (and, if columnID >= 0, columnID) — spec §4.6
// delete_buffers_with_prefix, applied to the (table, column, fragment)
// key hierarchy.
func (p *Pool) DeleteBuffersWithPrefix(tableID, columnID int) int {
	p.chunkMu.Lock()
	var victims []storage.ChunkKey
	for k := range p.chunkIndex {
		if k.TableID == tableID && (columnID < 0 || k.ColumnID == columnID) {
			victims = append(victims, k)
		}
	}
	p.chunkMu.Unlock()
	for _, k := range victims {
		_ = p.DeleteBuffer(k)
	}
	return len(victims)
}

// CompressForDisk rewrites key's TierDisk segment to hold zstd-
// compressed bytes, grounded on pack.HyperPack's encoder sync.Pool
// reuse. Used when the disk tier evicts a chunk that may be re-fetched
// later without re-reading the original source.
func (p *Pool) CompressForDisk(key storage.ChunkKey) error {
	p.chunkMu.Lock()
	r, ok := p.chunkIndex[key]
	p.chunkMu.Unlock()
	if !ok || r.tier != TierDisk {
		return ErrBufferNotFound
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if r.seg.compressed {
		return nil
	}
	plain := append([]byte(nil), r.slb.data[r.seg.start:r.seg.start+r.size]...)
	enc := p.encoders.Get().(*zstd.Encoder)
	defer p.encoders.Put(enc)
	var buf bytes.Buffer
	enc.Reset(&buf)
	if _, err := enc.Write(plain); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	compressed := buf.Bytes()
	if len(compressed) <= r.seg.length {
		copy(r.slb.data[r.seg.start:], compressed)
		r.seg.compressed = true
		r.seg.plainSize = r.size
		r.seg.storedLen = len(compressed)
	}
	return nil
}

func (p *Pool) decompress(compressed []byte, plainSize int) ([]byte, error) {
	dec := p.decoders.Get().(*zstd.Decoder)
	defer p.decoders.Put(dec)
	if err := dec.Reset(bytes.NewReader(compressed)); err != nil {
		return nil, err
	}
	out := make([]byte, plainSize)
	if _, err := io.ReadFull(dec, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ZeroCopyHandle wraps externally owned memory in a buffer handle
// without copying (spec §4.6 zero_copy_buffer). It never participates
// in eviction: there is no segment to reclaim, only a reference the
// caller is responsible for keeping alive.
type ZeroCopyHandle struct {
	Key  storage.ChunkKey
	Data []byte
}

// ZeroCopyBuffer registers data as key's resident buffer without
// copying it, only on TierCPU (the only tier whose parent storage is
// itself host memory the pool can alias safely).
func (p *Pool) ZeroCopyBuffer(key storage.ChunkKey, data []byte, tier Tier) (*ZeroCopyHandle, error) {
	if tier != TierCPU {
		return nil, ErrZeroCopyUnsupported
	}
	p.chunkMu.Lock()
	defer p.chunkMu.Unlock()
	if _, exists := p.chunkIndex[key]; exists {
		return nil, ErrBufferExists
	}
	// A zero-copy residency has no backing slab/segment; GetBuffer's
	// fast path checks chunkIndex first, so callers that only ever
	// read zero-copy keys through ZeroCopyHandle directly are fine,
	// but to keep DeleteBuffer/prefix scans consistent we still record
	// a residency with a nil slab and a dedicated sentinel segment.
	seg := &segment{state: segUsed, key: key, hasKey: true, length: len(data), storedLen: len(data), lastTouch: p.now()}
	p.chunkIndex[key] = &residency{tier: tier, seg: seg, size: len(data), zcData: data}
	return &ZeroCopyHandle{Key: key, Data: data}, nil
}

// Stats reports coarse occupancy for one tier, used by the dispatcher's
// memory-pressure checks (spec §4.5 "running per-device byte budget").
type Stats struct {
	SlabCount    int
	UsedBytes    int64
	FreeBytes    int64
	ResidentKeys int
}

func (p *Pool) Stats(tier Tier) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	var st Stats
	st.SlabCount = len(p.slabs[tier])
	for _, slb := range p.slabs[tier] {
		for _, seg := range slb.segments {
			if seg.state == segUsed {
				st.UsedBytes += int64(seg.length)
			} else {
				st.FreeBytes += int64(seg.length)
			}
		}
	}
	p.chunkMu.Lock()
	for _, r := range p.chunkIndex {
		if r.tier == tier {
			st.ResidentKeys++
		}
	}
	p.chunkMu.Unlock()
	return st
}
