package resultset

import (
	"encoding/binary"
	"errors"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/fenilsonani/polyquery/internal/types"
)

// ErrVariableWidthColumn signals a column whose type cannot be framed
// as a fixed-width buffer (spec §8 "columnar exchange format... for
// fixed-width types").
var ErrVariableWidthColumn = errors.New("resultset: columnar exchange requires fixed-width columns")

// ErrColumnarOutputDisabled signals that qmd.Decide already evaluated
// this query's output shape and found it unfit for the columnar
// exchange format (e.g. a variable-width column killed the
// allFixedWidth precondition) — callers should consult rs.Descriptor.
// OutputColumnar themselves before committing to the columnar path
// rather than discovering it only after ToColumnar fails.
var ErrColumnarOutputDisabled = errors.New("resultset: qmd decided against columnar output for this result set")

// Column is one output column's exchange buffer: a packed, fixed-width
// byte slice plus a parallel null bitmap, little-endian throughout —
// the same on-disk byte order internal/storage.ColumnBuffer already
// uses, so the round trip stays byte-identical end to end rather than
// just self-consistent.
type Column struct {
	Type  types.Type
	Data  []byte
	Nulls []bool
}

// ToColumnar converts a ResultSet into one Column per output field,
// satisfying the "byte-identical round-trip for fixed-width types"
// testable property from spec §8. Returns ErrVariableWidthColumn if
// any column's type is not fixed-width (strings/variable-length types
// are out of scope here, matching qmd.Decide's OutputColumnar
// precondition of allFixedWidth).
func ToColumnar(rs *ResultSet) ([]Column, error) {
	if rs.Descriptor != nil && !rs.Descriptor.OutputColumnar {
		return nil, ErrColumnarOutputDisabled
	}
	cols := make([]Column, len(rs.ColumnTypes))
	for c, t := range rs.ColumnTypes {
		width := t.ByteWidth()
		if width <= 0 {
			return nil, ErrVariableWidthColumn
		}
		cols[c] = Column{
			Type:  t,
			Data:  make([]byte, width*len(rs.Rows)),
			Nulls: make([]bool, len(rs.Rows)),
		}
	}
	for r, row := range rs.Rows {
		for c, v := range row {
			writeValue(cols[c].Data, cols[c].Type.ByteWidth(), r, v)
			cols[c].Nulls[r] = v.IsNull
		}
	}
	return cols, nil
}

// FromColumnar reverses ToColumnar, reconstructing a ResultSet's Rows
// from a slice of Columns built with identical types and row counts.
func FromColumnar(cols []Column) *ResultSet {
	rs := &ResultSet{ColumnTypes: make([]types.Type, len(cols))}
	rowCount := 0
	for i, c := range cols {
		rs.ColumnTypes[i] = c.Type
		if n := len(c.Nulls); n > rowCount {
			rowCount = n
		}
	}
	rs.Rows = make([]Row, rowCount)
	for r := 0; r < rowCount; r++ {
		row := make(Row, len(cols))
		for c := range cols {
			row[c] = readValue(cols[c], r)
		}
		rs.Rows[r] = row
	}
	return rs
}

// CompressColumn zstd-compresses c.Data for spilling a large result
// set's columnar exchange form to disk, grounded on the same
// klauspost/compress/zstd encoder the buffer pool's disk tier uses
// (internal/bufferpool.CompressForDisk) — one-shot here rather than a
// pooled encoder since exchange conversion is not on the row hot path.
func CompressColumn(c Column) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(c.Data, nil), nil
}

// DecompressColumn reverses CompressColumn, reconstructing Data for a
// Column of the given type and row count.
func DecompressColumn(t types.Type, compressed []byte) (Column, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return Column{}, err
	}
	defer dec.Close()
	data, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return Column{}, err
	}
	width := t.ByteWidth()
	rowCount := 0
	if width > 0 {
		rowCount = len(data) / width
	}
	return Column{Type: t, Data: data, Nulls: make([]bool, rowCount)}, nil
}

func writeValue(buf []byte, width, row int, v Value) {
	off := row * width
	slot := buf[off : off+width]
	if v.IsFloat {
		if width == 4 {
			bits := math.Float32bits(float32(v.Float))
			if v.IsNull {
				bits = types.FloatNullBits
			}
			binary.LittleEndian.PutUint32(slot, bits)
			return
		}
		bits := math.Float64bits(v.Float)
		if v.IsNull {
			bits = types.DoubleNullBits
		}
		binary.LittleEndian.PutUint64(slot, bits)
		return
	}
	writeIntWidth(slot, width, v.Int)
}

func writeIntWidth(slot []byte, width int, val int64) {
	switch width {
	case 1:
		slot[0] = byte(val)
	case 2:
		binary.LittleEndian.PutUint16(slot, uint16(val))
	case 4:
		binary.LittleEndian.PutUint32(slot, uint32(val))
	default:
		binary.LittleEndian.PutUint64(slot, uint64(val))
	}
}

func readValue(c Column, row int) Value {
	width := c.Type.ByteWidth()
	off := row * width
	slot := c.Data[off : off+width]
	isNull := row < len(c.Nulls) && c.Nulls[row]
	if c.Type.Kind.IsFloat() {
		if width == 4 {
			bits := binary.LittleEndian.Uint32(slot)
			return Value{Float: float64(math.Float32frombits(bits)), IsFloat: true, IsNull: isNull}
		}
		bits := binary.LittleEndian.Uint64(slot)
		return Value{Float: math.Float64frombits(bits), IsFloat: true, IsNull: isNull}
	}
	return Value{Int: readIntWidth(slot, width), IsNull: isNull}
}

func readIntWidth(slot []byte, width int) int64 {
	switch width {
	case 1:
		return int64(int8(slot[0]))
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(slot)))
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(slot)))
	default:
		return int64(binary.LittleEndian.Uint64(slot))
	}
}
