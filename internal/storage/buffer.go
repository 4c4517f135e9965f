package storage

import "github.com/fenilsonani/polyquery/internal/types"

// Encoding identifies how a ColumnBuffer's bytes map to scalar values.
type Encoding uint8

const (
	EncodingFixedWidth Encoding = iota
	EncodingRunLength
	EncodingDictionary
)

// ColumnBuffer is a contiguous byte region plus an encoding descriptor.
// Decoding is a pure function of (buffer, byte-width, row-index); the
// actual decode intrinsics live in internal/intrinsics so that both the
// storage adapter and the generated row function share one
// implementation.
//
// Grounded on the teacher's objects.Blob: a thin typed wrapper over a
// byte slice with an identity and a Serialize-style accessor, adapted
// here to also carry the decode metadata a column needs.
type ColumnBuffer struct {
	Type     types.Type
	Encoding Encoding
	Data     []byte
	RowCount int

	// DictID is set when Encoding == EncodingDictionary; it names the
	// Dictionary that decodes this buffer's int32 ids to strings.
	DictID int
}

// NewFixedWidthBuffer wraps data as a fixed-width column of the given
// type, with no further validation (the caller guarantees
// len(data) >= rowCount*type.ByteWidth()).
func NewFixedWidthBuffer(t types.Type, data []byte, rowCount int) *ColumnBuffer {
	return &ColumnBuffer{Type: t, Encoding: EncodingFixedWidth, Data: data, RowCount: rowCount}
}

// NewDictionaryBuffer wraps data as a dictionary-encoded text column:
// data holds one little-endian int32 id per row.
func NewDictionaryBuffer(t types.Type, data []byte, rowCount, dictID int) *ColumnBuffer {
	t.DictID = dictID
	return &ColumnBuffer{Type: t, Encoding: EncodingDictionary, Data: data, RowCount: rowCount, DictID: dictID}
}

// Bytes returns the raw backing bytes, for the code generator to pass
// through to the intrinsic decoders unchanged.
func (b *ColumnBuffer) Bytes() []byte { return b.Data }

// MinMax summarizes a column buffer's value range for predicate
// skipping (spec §3 "fragment metadata and min/max ranges"). Values are
// carried as raw int64/float64 bit patterns the same way Const literals
// are, so the simple-qual skip check in internal/dispatch can compare them
// directly against a literal without re-decoding every row.
type MinMax struct {
	Valid    bool // false when the column is all-null or unknown
	MinInt   int64
	MaxInt   int64
	MinFloat float64
	MaxFloat float64
}

// OutsideRangeInt reports whether literal falls entirely outside
// [mm.MinInt, mm.MaxInt] — used by a simple equality/range qual to
// decide a fragment is skippable without evaluating it row by row
// (spec §4.3 row function step 1).
func (mm MinMax) OutsideRangeInt(literal int64) bool {
	if !mm.Valid {
		return false
	}
	return literal < mm.MinInt || literal > mm.MaxInt
}

// OutsideRangeFloat is OutsideRangeInt's float-keyed counterpart.
func (mm MinMax) OutsideRangeFloat(literal float64) bool {
	if !mm.Valid {
		return false
	}
	return literal < mm.MinFloat || literal > mm.MaxFloat
}
