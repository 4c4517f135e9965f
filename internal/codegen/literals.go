package codegen

// LiteralHoister collects constants and deduplicates them by value into
// one per-device buffer (spec §4.3 "Literal hoisting"). Compile does not
// use it: compiled closures capture constants directly and never read
// the Row.Literals buffer.
type LiteralHoister struct {
	device Device
	index  map[int64]int
	values []int64
}

func NewLiteralHoister(device Device) *LiteralHoister {
	return &LiteralHoister{device: device, index: make(map[int64]int)}
}

// Hoist returns the buffer index for v, allocating a new slot on first
// sight and reusing it on every later call with the same value.
func (h *LiteralHoister) Hoist(v int64) int {
	if idx, ok := h.index[v]; ok {
		return idx
	}
	idx := len(h.values)
	h.values = append(h.values, v)
	h.index[v] = idx
	return idx
}

// Buffer returns the per-device literal buffer built so far, in
// hoist order.
func (h *LiteralHoister) Buffer() []int64 {
	return h.values
}

// Len returns the number of literals hoisted so far.
func (h *LiteralHoister) Len() int { return len(h.values) }
