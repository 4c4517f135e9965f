package storage

import (
	"fmt"
	"sync"
)

// Dictionary maps between int32 string ids and their string values for
// one dictionary-encoded text column family. It outlives any single
// query (spec §3 "Lifetime: outlives any query using it"); a query adds
// its own literal strings to a per-query Transient tier layered in
// front so that a literal never mutates the persistent dictionary.
//
// Grounded on the teacher's internal/core/objects.Storage: a mutex
// protected map used as a read-through cache in front of a slower
// backing store, adapted from "object id -> parsed git object" to
// "string id -> string".
type Dictionary struct {
	mu      sync.RWMutex
	byID    map[int32]string
	byValue map[string]int32
	nextID  int32
}

// NewDictionary returns an empty persistent dictionary.
func NewDictionary() *Dictionary {
	return &Dictionary{
		byID:    make(map[int32]string),
		byValue: make(map[string]int32),
	}
}

// GetString performs the O(1) id->string lookup.
func (d *Dictionary) GetString(id int32) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.byID[id]
	return s, ok
}

// GetOrAddID performs amortized O(1) string->id lookup, interning s if
// it is not already present.
func (d *Dictionary) GetOrAddID(s string) int32 {
	d.mu.RLock()
	if id, ok := d.byValue[s]; ok {
		d.mu.RUnlock()
		return id
	}
	d.mu.RUnlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if id, ok := d.byValue[s]; ok {
		return id
	}
	id := d.nextID
	d.nextID++
	d.byID[id] = s
	d.byValue[s] = id
	return id
}

// Len reports the number of interned strings.
func (d *Dictionary) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byID)
}

// TranslateBulk maps a batch of ids from src into the equivalent ids in
// dst, interning any string not yet present in dst. This is the
// "bulk id translation between dictionaries" contract from spec §3,
// used when a join or union combines columns encoded against different
// dictionaries.
func TranslateBulk(src *Dictionary, dst *Dictionary, ids []int32) ([]int32, error) {
	out := make([]int32, len(ids))
	for i, id := range ids {
		s, ok := src.GetString(id)
		if !ok {
			return nil, fmt.Errorf("storage: dictionary translation failed: id %d not found in source dictionary", id)
		}
		out[i] = dst.GetOrAddID(s)
	}
	return out, nil
}

// Transient is a per-query dictionary tier that holds literal strings
// added during a query without mutating the persistent Dictionary
// (spec §3 "a 'transient' tier"). Transient ids are allocated from a
// high range so they never collide with persistent ids; a reader
// consults Transient first, then falls back to the persistent
// dictionary.
type Transient struct {
	base      int32
	persistent *Dictionary
	local     *Dictionary
}

// transientBase is chosen comfortably above any realistic persistent
// dictionary size; production code would instead derive it from the
// persistent dictionary's current cardinality.
const transientBase = int32(1) << 30

// NewTransient creates a transient tier layered in front of persistent.
func NewTransient(persistent *Dictionary) *Transient {
	return &Transient{base: transientBase, persistent: persistent, local: NewDictionary()}
}

// AddLiteral interns a query-local literal and returns its transient id.
func (t *Transient) AddLiteral(s string) int32 {
	return t.base + t.local.GetOrAddID(s)
}

// GetString resolves an id from either tier.
func (t *Transient) GetString(id int32) (string, bool) {
	if id >= t.base {
		return t.local.GetString(id - t.base)
	}
	return t.persistent.GetString(id)
}
