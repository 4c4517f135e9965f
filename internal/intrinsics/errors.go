package intrinsics

import "sync/atomic"

// Error codes recorded into the per-kernel-slot error buffer (spec
// §4.1). Codes are persistent: once a nonzero code is recorded for a
// slot it is never overwritten by a later code, including a later
// benign one (spec §9 Open Question b, resolved in DESIGN.md: this
// applies uniformly, not just to arithmetic codes).
const (
	ErrCodeNone             int32 = 0
	ErrCodeDivideByZero     int32 = 1
	ErrCodeOverflow         int32 = 2
	ErrCodeOutOfSlots       int32 = 3
	ErrCodeWatchdog         int32 = 4
	ErrCodeSingleValueMultipleRows int32 = 15
)

// RecordErrorCode writes code into errorCodes[slot] only if no
// persistent error is already recorded there.
func RecordErrorCode(code int32, errorCodes []int32, slot int) {
	if errorCodes[slot] == ErrCodeNone {
		errorCodes[slot] = code
	}
}

// interruptFlag is the process-wide watchdog flag polled by the row
// function every N rows (spec §5 "Cancellation").
var interruptFlag atomic.Bool

// CheckInterrupt reads the process-wide interrupt flag.
func CheckInterrupt() bool {
	return interruptFlag.Load()
}

// RequestInterrupt trips the watchdog flag; the dispatcher calls this
// to cancel all in-flight kernels.
func RequestInterrupt() {
	interruptFlag.Store(true)
}

// ResetInterrupt clears the flag before a new query starts.
func ResetInterrupt() {
	interruptFlag.Store(false)
}
