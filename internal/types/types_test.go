package types

import "testing"

func TestByteWidth(t *testing.T) {
	tests := []struct {
		k    Kind
		want int
	}{
		{KindBool, 1},
		{KindInt8, 1},
		{KindInt16, 2},
		{KindInt32, 4},
		{KindFloat32, 4},
		{KindInt64, 8},
		{KindFloat64, 8},
		{KindDecimal, 8},
		{KindText, 4},
		{KindFixedChar, 0},
	}
	for _, tt := range tests {
		if got := tt.k.ByteWidth(); got != tt.want {
			t.Errorf("%s.ByteWidth() = %d, want %d", tt.k, got, tt.want)
		}
	}
}

func TestFixedCharUsesLength(t *testing.T) {
	ty := Type{Kind: KindFixedChar, Length: 12}
	if got := ty.ByteWidth(); got != 12 {
		t.Errorf("FixedChar.ByteWidth() = %d, want 12", got)
	}
}

func TestInlineIntNullDistinctPerWidth(t *testing.T) {
	seen := map[int64]bool{}
	for _, w := range []int{1, 2, 4, 8} {
		n := InlineIntNull(w)
		if seen[n] && w != 8 {
			t.Errorf("width %d collides with a previous null sentinel", w)
		}
		seen[n] = true
	}
}

func TestSentinelFloatVsInt(t *testing.T) {
	f := Type{Kind: KindFloat64}
	i := Type{Kind: KindInt64}
	if f.Sentinel() == i.Sentinel() {
		t.Errorf("float and int sentinels should differ in representation context")
	}
}
