package storage

import (
	"path/filepath"
	"testing"
)

func newTestHeapFile(t *testing.T) *HeapFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "t.tbl")
	hf, err := NewHeapFile(path)
	if err != nil {
		t.Fatalf("new heap file: %v", err)
	}
	t.Cleanup(func() { hf.Close() })
	return hf
}

func TestNewHeapFileStartsWithOnePage(t *testing.T) {
	hf := newTestHeapFile(t)
	if hf.PageCount() != 1 {
		t.Fatalf("want 1 page, got %d", hf.PageCount())
	}
}

func TestHeapFileInsertGetRoundTrip(t *testing.T) {
	hf := newTestHeapFile(t)
	cols := testColumns()
	row := Row{IntValue(1), TextValue("alice"), BoolValue(true)}
	data, err := EncodeTuple(row, cols, 10, 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	tid, err := hf.InsertRow(data)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, ok, err := hf.GetTuple(tid)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("expected tuple to be present")
	}
	_, gotRow, err := DecodeTuple(got, cols)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range row {
		if !gotRow[i].Equal(row[i]) {
			t.Fatalf("column %d: got %+v want %+v", i, gotRow[i], row[i])
		}
	}
}

func TestHeapFileInsertSpillsToNewPage(t *testing.T) {
	hf := newTestHeapFile(t)
	cols := []Column{{Name: "s", Type: KindText}}

	big := make([]byte, 1000)
	for i := range big {
		big[i] = 'x'
	}
	row := Row{TextValue(string(big))}
	data, err := EncodeTuple(row, cols, 1, 0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	for i := 0; i < 10; i++ {
		if _, err := hf.InsertRow(data); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	if hf.PageCount() < 2 {
		t.Fatalf("expected insertion to spill to a second page, got %d pages", hf.PageCount())
	}
}

// TestHeapFileDeleteAtStampsXmaxInPlace is spec.md §4.B's rule: delete
// overwrites xmax but does NOT clear the item id's used flag — the
// slot must still report as present to a scan.
func TestHeapFileDeleteAtStampsXmaxInPlace(t *testing.T) {
	hf := newTestHeapFile(t)
	cols := testColumns()
	row := Row{IntValue(1), TextValue("bob"), BoolValue(false)}
	data, _ := EncodeTuple(row, cols, 5, 0)
	tid, err := hf.InsertRow(data)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := hf.DeleteAt(tid, 9); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, ok, err := hf.GetTuple(tid)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("deleted tuple must still be physically present (item id stays used)")
	}
	hdr, _, err := DecodeTuple(got, cols)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if hdr.Xmax != 9 {
		t.Fatalf("expected xmax 9 stamped in place, got %d", hdr.Xmax)
	}
	if hdr.Xmin != 5 {
		t.Fatalf("delete must not disturb xmin, got %d", hdr.Xmin)
	}
}

// TestHeapFileUpdateCreatesFreshSlot is spec.md §4.B: update is never
// HOT — it stamps the old tuple's xmax and always lands the new
// version in a fresh slot, never overwriting the old one's payload.
func TestHeapFileUpdateCreatesFreshSlot(t *testing.T) {
	hf := newTestHeapFile(t)
	cols := testColumns()
	oldRow := Row{IntValue(1), TextValue("v1"), BoolValue(false)}
	oldData, _ := EncodeTuple(oldRow, cols, 1, 0)
	oldTid, err := hf.InsertRow(oldData)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	newRow := Row{IntValue(1), TextValue("v2"), BoolValue(true)}
	newData, _ := EncodeTuple(newRow, cols, 2, 0)
	newTid, err := hf.UpdateRow(oldTid, newData, 2)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if newTid == oldTid {
		t.Fatalf("update must produce a new tuple id distinct from the old one")
	}

	oldGot, ok, err := hf.GetTuple(oldTid)
	if err != nil || !ok {
		t.Fatalf("old tuple must still be physically present: ok=%v err=%v", ok, err)
	}
	oldHdr, _, _ := DecodeTuple(oldGot, cols)
	if oldHdr.Xmax != 2 {
		t.Fatalf("old tuple should have xmax 2 stamped, got %d", oldHdr.Xmax)
	}

	newGot, ok, err := hf.GetTuple(newTid)
	if err != nil || !ok {
		t.Fatalf("new tuple must be present: ok=%v err=%v", ok, err)
	}
	newHdr, newGotRow, _ := DecodeTuple(newGot, cols)
	if newHdr.Xmax != 0 {
		t.Fatalf("new tuple version must start alive (xmax 0), got %d", newHdr.Xmax)
	}
	if newGotRow[1].S != "v2" {
		t.Fatalf("new tuple should carry the updated value, got %+v", newGotRow)
	}
}

func TestHeapFileScanAllOrder(t *testing.T) {
	hf := newTestHeapFile(t)
	cols := []Column{{Name: "id", Type: KindInt}}

	var want []int64
	for i := int64(0); i < 5; i++ {
		data, _ := EncodeTuple(Row{IntValue(i)}, cols, uint32(i+1), 0)
		if _, err := hf.InsertRow(data); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
		want = append(want, i)
	}

	var got []int64
	err := hf.ScanAll(func(tid TupleID, data []byte) error {
		_, row, derr := DecodeTuple(data, cols)
		if derr != nil {
			return derr
		}
		got = append(got, row[0].I)
		return nil
	})
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d rows, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("scan order mismatch at %d: got %d want %d", i, got[i], want[i])
		}
	}
}

// TestHeapFileVacuumReclaimsDeadTuplesNotRenumberingSlots verifies
// spec.md §4.B's vacuum contract end to end: dead tuples are removed,
// live ones survive with their values intact, and onRemove fires
// exactly once per reclaimed tuple.
func TestHeapFileVacuumReclaimsDeadTuplesNotRenumberingSlots(t *testing.T) {
	hf := newTestHeapFile(t)
	cols := []Column{{Name: "id", Type: KindInt}}

	data1, _ := EncodeTuple(Row{IntValue(1)}, cols, 1, 0)
	tid1, err := hf.InsertRow(data1)
	if err != nil {
		t.Fatalf("insert 1: %v", err)
	}
	data2, _ := EncodeTuple(Row{IntValue(2)}, cols, 2, 0)
	tid2, err := hf.InsertRow(data2)
	if err != nil {
		t.Fatalf("insert 2: %v", err)
	}

	if err := hf.DeleteAt(tid1, 3); err != nil {
		t.Fatalf("delete: %v", err)
	}

	var removed []TupleID
	isDead := func(xmax uint32) bool { return xmax != 0 }
	onRemove := func(tid TupleID, hdr TupleHeader) { removed = append(removed, tid) }

	stats, err := hf.Vacuum(cols, isDead, onRemove)
	if err != nil {
		t.Fatalf("vacuum: %v", err)
	}
	if stats.Removed != 1 {
		t.Fatalf("want 1 removed tuple, got %d", stats.Removed)
	}
	if len(removed) != 1 || removed[0] != tid1 {
		t.Fatalf("onRemove should fire once for tid1, got %+v", removed)
	}

	if _, ok, _ := hf.GetTuple(tid1); ok {
		t.Fatalf("vacuumed tuple must no longer be gettable")
	}
	got2, ok, err := hf.GetTuple(tid2)
	if err != nil || !ok {
		t.Fatalf("surviving tuple must still be present: ok=%v err=%v", ok, err)
	}
	_, row2, err := DecodeTuple(got2, cols)
	if err != nil {
		t.Fatalf("decode survivor: %v", err)
	}
	if row2[0].I != 2 {
		t.Fatalf("surviving tuple's value changed, got %+v", row2)
	}
}

func TestHeapFileVacuumLeavesLiveTuplesAlone(t *testing.T) {
	hf := newTestHeapFile(t)
	cols := []Column{{Name: "id", Type: KindInt}}
	data, _ := EncodeTuple(Row{IntValue(1)}, cols, 1, 0)
	if _, err := hf.InsertRow(data); err != nil {
		t.Fatalf("insert: %v", err)
	}

	stats, err := hf.Vacuum(cols, func(uint32) bool { return true }, nil)
	if err != nil {
		t.Fatalf("vacuum: %v", err)
	}
	if stats.Removed != 0 {
		t.Fatalf("a live tuple (xmax=0) must never be removed, got %d removed", stats.Removed)
	}
}

func TestOpenHeapFilePreservesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.tbl")
	cols := []Column{{Name: "id", Type: KindInt}}

	hf, err := NewHeapFile(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	data, _ := EncodeTuple(Row{IntValue(42)}, cols, 1, 0)
	tid, err := hf.InsertRow(data)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := hf.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := OpenHeapFile(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, ok, err := reopened.GetTuple(tid)
	if err != nil || !ok {
		t.Fatalf("expected tuple to survive reopen: ok=%v err=%v", ok, err)
	}
	_, row, err := DecodeTuple(got, cols)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if row[0].I != 42 {
		t.Fatalf("got %+v want 42", row)
	}
}
