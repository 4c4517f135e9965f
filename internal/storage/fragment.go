package storage

// Fragment is a horizontal slice of a table: an immutable set of
// per-column buffers sharing one row count. Ownership belongs to the
// storage adapter; queries only ever hold pinned views obtained through
// the buffer pool (spec §3 "Column fragment").
type Fragment struct {
	ID       int
	TableID  int
	RowCount int
	Columns  []*ColumnBuffer
	MinMax   []MinMax // parallel to Columns
}

// Column returns the buffer for columnIdx, or nil if out of range.
func (f *Fragment) Column(columnIdx int) *ColumnBuffer {
	if columnIdx < 0 || columnIdx >= len(f.Columns) {
		return nil
	}
	return f.Columns[columnIdx]
}

// Range returns the min/max summary for columnIdx.
func (f *Fragment) Range(columnIdx int) MinMax {
	if columnIdx < 0 || columnIdx >= len(f.MinMax) {
		return MinMax{}
	}
	return f.MinMax[columnIdx]
}

// Key returns the ChunkKey identifying columnIdx's buffer within this
// fragment, as used by the buffer pool and dispatcher.
func (f *Fragment) Key(columnIdx int) ChunkKey {
	return ChunkKey{TableID: f.TableID, ColumnID: columnIdx, FragmentID: f.ID}
}

// Table is an ordered set of fragments sharing a schema. The schema
// itself (names, SQL types, encodings) is an external collaborator's
// contract (spec §6 "Schema provider"); Table only holds what the
// engine needs to iterate fragments.
type Table struct {
	ID        int
	Fragments []*Fragment
}

// TotalRows sums RowCount across all fragments, used by QMD's
// Projection entry-count rule.
func (t *Table) TotalRows() int {
	n := 0
	for _, f := range t.Fragments {
		n += f.RowCount
	}
	return n
}
