package resultset

import (
	"errors"
	"testing"

	"github.com/fenilsonani/polyquery/internal/qmd"
	"github.com/fenilsonani/polyquery/internal/types"
)

func TestCompressColumnRoundTrip(t *testing.T) {
	int64Type := types.Type{Kind: types.KindInt64}
	rs := &ResultSet{
		ColumnTypes: []types.Type{int64Type},
		Rows: []Row{
			{{Int: 1}}, {{Int: 2}}, {{Int: 3}},
		},
	}
	cols, err := ToColumnar(rs)
	if err != nil {
		t.Fatalf("ToColumnar: %v", err)
	}

	compressed, err := CompressColumn(cols[0])
	if err != nil {
		t.Fatalf("CompressColumn: %v", err)
	}
	if len(compressed) == 0 {
		t.Fatal("expected non-empty compressed payload")
	}

	got, err := DecompressColumn(int64Type, compressed)
	if err != nil {
		t.Fatalf("DecompressColumn: %v", err)
	}
	if string(got.Data) != string(cols[0].Data) {
		t.Fatalf("decompressed data mismatch: got %v want %v", got.Data, cols[0].Data)
	}
}

// TestToColumnarRespectsOutputColumnarFlag guards qmd.Decide's
// OutputColumnar decision actually gating the columnar exchange path,
// rather than being read only by tests.
func TestToColumnarRespectsOutputColumnarFlag(t *testing.T) {
	rs := &ResultSet{
		ColumnTypes: []types.Type{{Kind: types.KindInt64}},
		Rows:        []Row{{{Int: 1}}},
		Descriptor:  &qmd.Descriptor{OutputColumnar: false},
	}
	if _, err := ToColumnar(rs); !errors.Is(err, ErrColumnarOutputDisabled) {
		t.Fatalf("err = %v, want ErrColumnarOutputDisabled", err)
	}

	rs.Descriptor.OutputColumnar = true
	if _, err := ToColumnar(rs); err != nil {
		t.Fatalf("unexpected error once OutputColumnar is true: %v", err)
	}
}
