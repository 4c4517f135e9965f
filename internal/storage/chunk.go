// Package storage implements the columnar storage adapter: the view
// fragments, column buffers and string dictionaries used by the query
// engine. It owns no execution logic — the code generator and
// dispatcher only read through the types defined here.
//
// Grounded on the teacher's internal/core/objects package (ObjectID as
// a fixed-width content hash, Blob as a raw-byte holder with a
// Serialize/ID pair, Storage's loose-object read/write discipline),
// adapted from "git object on disk" to "column chunk pinned in a
// buffer pool tier".
package storage

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ChunkKey identifies one column's data within one fragment of one
// table — the unit the buffer pool keys on (spec §4.6 "keyed chunk
// identity").
type ChunkKey struct {
	TableID    int
	ColumnID   int
	FragmentID int
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("t%d/c%d/f%d", k.TableID, k.ColumnID, k.FragmentID)
}

// Hash returns a 64-bit fingerprint of the key. The buffer pool and the
// join hash table builder do not call it; the pool keys its chunk index
// by ChunkKey directly. Grounded on the teacher's
// internal/turbo TurboDB, which imports cespare/xxhash/v2 for exactly
// this kind of identity hashing.
func (k ChunkKey) Hash() uint64 {
	var buf [24]byte
	putInt(buf[0:8], k.TableID)
	putInt(buf[8:16], k.ColumnID)
	putInt(buf[16:24], k.FragmentID)
	return xxhash.Sum64(buf[:])
}

func putInt(b []byte, v int) {
	u := uint64(int64(v))
	for i := 0; i < 8; i++ {
		b[i] = byte(u >> (8 * i))
	}
}
