// Package intrinsics is the runtime intrinsic library: a flat set of
// Go functions with C-ABI-shaped signatures (fixed-width buffers,
// pointer-like slots, integer/error-code returns) that the code
// generator's closures call into directly. The same function set
// backs both the CPU row function and the (host-executed, see
// DESIGN.md) GPU row function variant.
//
// Grounded on the teacher's internal/hyperdrive package: the same
// "detect capability, fall back to a scalar path" shape as
// cpu_features.go/asm_x64.go/asm_noasm.go, adapted from SHA/AVX feature
// gating to gating a vectorized batch-decode fast path.
package intrinsics

import "runtime"

var vectorizedDecodeAvailable bool

func init() {
	vectorizedDecodeAvailable = detectVectorCapability()
}

// detectVectorCapability reports whether the batch decode fast path
// should be used. Real AVX2/NEON detection requires assembly this
// Go-native rewrite does not carry (the teacher's own cpuid/xgetbv are
// themselves stubs returning zero); we key it off GOARCH the same way
// the teacher's detectCPUFeatures bails out early on non-amd64.
func detectVectorCapability() bool {
	return runtime.GOARCH == "amd64" || runtime.GOARCH == "arm64"
}

// VectorizedDecodeAvailable reports whether DecodeFixedWidthIntBatch
// will use its wide path.
func VectorizedDecodeAvailable() bool { return vectorizedDecodeAvailable }
