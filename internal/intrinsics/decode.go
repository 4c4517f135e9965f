package intrinsics

import (
	"encoding/binary"
	"math"
)

// BoundsCheck gates the bounds check on every decode call. Off by
// default (spec §4.1: "Reads are bounds-checked only when a build flag
// is set"); flipped on by the "boundscheck" build tag, see
// decode_boundscheck.go / decode_nocheck.go.
var BoundsCheck = boundsCheckBuildFlag

// DecodeFixedWidthInt reads a byteWidth-wide little-endian integer at
// row pos from buf and sign-extends it to int64.
func DecodeFixedWidthInt(buf []byte, byteWidth, pos int) int64 {
	off := pos * byteWidth
	if BoundsCheck && (off < 0 || off+byteWidth > len(buf)) {
		panic("intrinsics: decode_fixed_width_int out of range")
	}
	switch byteWidth {
	case 1:
		return int64(int8(buf[off]))
	case 2:
		return int64(int16(binary.LittleEndian.Uint16(buf[off : off+2])))
	case 4:
		return int64(int32(binary.LittleEndian.Uint32(buf[off : off+4])))
	default:
		return int64(binary.LittleEndian.Uint64(buf[off : off+8]))
	}
}

// DecodeFloat reads a 4-byte IEEE-754 float at row pos.
func DecodeFloat(buf []byte, pos int) float32 {
	off := pos * 4
	if BoundsCheck && (off < 0 || off+4 > len(buf)) {
		panic("intrinsics: decode_float out of range")
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
}

// DecodeDouble reads an 8-byte IEEE-754 double at row pos.
func DecodeDouble(buf []byte, pos int) float64 {
	off := pos * 8
	if BoundsCheck && (off < 0 || off+8 > len(buf)) {
		panic("intrinsics: decode_double out of range")
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(buf[off : off+8]))
}

// DecodeDiff reads a byteWidth-wide delta-encoded integer at row pos
// and adds it to baseline, for delta/frame-of-reference encoded
// columns.
func DecodeDiff(buf []byte, byteWidth int, baseline int64, pos int) int64 {
	return baseline + DecodeFixedWidthInt(buf, byteWidth, pos)
}

// DecodeFixedWidthIntBatch decodes count consecutive rows starting at
// startPos into out. When the vectorized path is available this walks
// 4 rows per iteration (a stand-in for a real SIMD gather — see
// cpu_features.go); the decoded values are identical either way.
func DecodeFixedWidthIntBatch(buf []byte, byteWidth, startPos, count int, out []int64) {
	if !vectorizedDecodeAvailable || count < 4 {
		for i := 0; i < count; i++ {
			out[i] = DecodeFixedWidthInt(buf, byteWidth, startPos+i)
		}
		return
	}
	i := 0
	for ; i+4 <= count; i += 4 {
		out[i] = DecodeFixedWidthInt(buf, byteWidth, startPos+i)
		out[i+1] = DecodeFixedWidthInt(buf, byteWidth, startPos+i+1)
		out[i+2] = DecodeFixedWidthInt(buf, byteWidth, startPos+i+2)
		out[i+3] = DecodeFixedWidthInt(buf, byteWidth, startPos+i+3)
	}
	for ; i < count; i++ {
		out[i] = DecodeFixedWidthInt(buf, byteWidth, startPos+i)
	}
}
