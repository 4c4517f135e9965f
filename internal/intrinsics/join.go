package intrinsics

// HashJoinTable is the probe-side view of a built join hash table
// (spec §4.1 join-probe intrinsics; the table itself is built by
// internal/joinhash — this package only implements the per-row probe
// primitives that a compiled kernel calls). NoMatch marks an unfilled
// bucket or composite-key entry.
const HashJoinNoMatch = -1

// OneToOneJoinTable backs hash_join_idx: each build-side key maps to
// at most one row, so a match is a single row id.
type OneToOneJoinTable struct {
	Buckets []int32 // indexed by hash % len(Buckets); holds a build row id or HashJoinNoMatch
}

// HashJoinIdx probes for a single matching build-side row (spec §4.1
// "hash_join_idx(hash_table, key) -> row_id"). Nullable probe keys are
// handled by HashJoinIdxNullable, not here.
func HashJoinIdx(t *OneToOneJoinTable, hash uint64) int32 {
	n := len(t.Buckets)
	if n == 0 {
		return HashJoinNoMatch
	}
	return t.Buckets[hash%uint64(n)]
}

// HashJoinIdxNullable returns NoMatch immediately for a null probe key
// rather than hashing it (spec §8: nulls never match in an equi-join).
func HashJoinIdxNullable(t *OneToOneJoinTable, hash uint64, keyIsNull bool) int32 {
	if keyIsNull {
		return HashJoinNoMatch
	}
	return HashJoinIdx(t, hash)
}

// BucketizedJoinTable backs bucketized_hash_join_idx: a build-side key
// may match many rows, so each bucket holds an (offset, count) pair
// into a shared RowIDs array (spec §4.1's OneToMany layout, grounded on
// the same offset+payload-array shape internal/pack/hyperpack.go uses
// for its bucket directory).
type BucketizedJoinTable struct {
	BucketOffset []int32 // indexed by hash % len(BucketOffset)
	BucketCount  []int32
	RowIDs       []int32
}

// BucketizedHashJoinIdx returns the slice of build-side row ids
// matching hash, or nil if the bucket is empty.
func BucketizedHashJoinIdx(t *BucketizedJoinTable, hash uint64) []int32 {
	n := len(t.BucketOffset)
	if n == 0 {
		return nil
	}
	b := hash % uint64(n)
	off := t.BucketOffset[b]
	cnt := t.BucketCount[b]
	if cnt == 0 {
		return nil
	}
	return t.RowIDs[off : off+cnt]
}

// BucketizedHashJoinIdxNullable is BucketizedHashJoinIdx's null-aware
// counterpart.
func BucketizedHashJoinIdxNullable(t *BucketizedJoinTable, hash uint64, keyIsNull bool) []int32 {
	if keyIsNull {
		return nil
	}
	return BucketizedHashJoinIdx(t, hash)
}

// RowIDHashJoinIdx is the perfect-hash variant: when the build side's
// join key is already a dense, known-range integer (e.g. a dictionary
// id or a rowid itself), the key doubles as the bucket index and no
// hashing or probing is needed (spec §4.1 "rowid_hash_join_idx" —
// mirrors GetGroupValueKeyless's precondition in groupvalue.go).
func RowIDHashJoinIdx(t *OneToOneJoinTable, key int64) int32 {
	if key < 0 || key >= int64(len(t.Buckets)) {
		return HashJoinNoMatch
	}
	return t.Buckets[key]
}

func RowIDHashJoinIdxNullable(t *OneToOneJoinTable, key int64, keyIsNull bool) int32 {
	if keyIsNull {
		return HashJoinNoMatch
	}
	return RowIDHashJoinIdx(t, key)
}
