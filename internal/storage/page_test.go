package storage

import "testing"

// assertPageIntegrity is spec.md §8's property 2: every used item id's
// byte range must fall within [PageHeaderSize, FreeStart), and all used
// ranges must be pairwise disjoint, and FreeStart must never exceed
// FreeEnd.
func assertPageIntegrity(t *testing.T, p *Page) {
	t.Helper()
	if p.Header.FreeStart > p.Header.FreeEnd {
		t.Fatalf("free_start %d > free_end %d", p.Header.FreeStart, p.Header.FreeEnd)
	}

	type span struct{ lo, hi int }
	var used []span
	for i, item := range p.Items {
		if !item.IsUsed() {
			continue
		}
		lo := int(item.Offset)
		hi := lo + int(item.Len)
		if lo < PageHeaderSize || hi > int(p.Header.FreeStart) {
			t.Fatalf("slot %d range [%d,%d) outside [%d,%d)", i, lo, hi, PageHeaderSize, p.Header.FreeStart)
		}
		for _, s := range used {
			if lo < s.hi && s.lo < hi {
				t.Fatalf("slot %d range [%d,%d) overlaps existing range [%d,%d)", i, lo, hi, s.lo, s.hi)
			}
		}
		used = append(used, span{lo, hi})
	}
}

func TestNewPageEmpty(t *testing.T) {
	p := NewPage(0)
	assertPageIntegrity(t, p)
	if p.Header.FreeStart != PageHeaderSize {
		t.Fatalf("fresh page should start free_start at the header boundary, got %d", p.Header.FreeStart)
	}
	if p.Header.FreeEnd != PageSize {
		t.Fatalf("fresh page should start free_end at page size, got %d", p.Header.FreeEnd)
	}
}

func TestPageInsertGetRoundTrip(t *testing.T) {
	p := NewPage(0)
	tuple := []byte("a tiny tuple payload")

	slot, err := p.InsertTuple(tuple)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	assertPageIntegrity(t, p)

	got, ok := p.GetTuple(slot)
	if !ok {
		t.Fatalf("expected slot %d to be present", slot)
	}
	if string(got) != string(tuple) {
		t.Fatalf("got %q want %q", got, tuple)
	}
}

func TestPageInsertManyThenIntegrity(t *testing.T) {
	p := NewPage(0)
	for i := 0; i < 50; i++ {
		if _, err := p.InsertTuple([]byte("row-payload-of-some-length")); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}
	assertPageIntegrity(t, p)
	if p.SlotCount() != 50 {
		t.Fatalf("want 50 slots, got %d", p.SlotCount())
	}
}

func TestPageInsertNoSpace(t *testing.T) {
	p := NewPage(0)
	big := make([]byte, PageSize)
	if _, err := p.InsertTuple(big); err != ErrNoSpace {
		t.Fatalf("expected ErrNoSpace, got %v", err)
	}
	assertPageIntegrity(t, p)
}

func TestPageOverwriteTupleBytes(t *testing.T) {
	p := NewPage(0)
	tuple := make([]byte, 12)
	slot, err := p.InsertTuple(tuple)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := p.OverwriteTupleBytes(slot, 4, encodeXmax(77)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ := p.GetTuple(slot)
	if got[4] == 0 && got[5] == 0 && got[6] == 0 && got[7] == 0 {
		t.Fatalf("expected xmax bytes to be overwritten, got all zero")
	}
	assertPageIntegrity(t, p)
}

func TestPageOverwritePastTupleEnd(t *testing.T) {
	p := NewPage(0)
	slot, _ := p.InsertTuple(make([]byte, 4))
	if err := p.OverwriteTupleBytes(slot, 2, []byte{1, 2, 3}); err == nil {
		t.Fatalf("expected an error writing past the tuple end")
	}
}

func TestPageMarkUnusedThenGetFails(t *testing.T) {
	p := NewPage(0)
	slot, _ := p.InsertTuple([]byte("dead soon"))

	if err := p.MarkUnused(slot); err != nil {
		t.Fatalf("mark unused: %v", err)
	}
	if _, ok := p.GetTuple(slot); ok {
		t.Fatalf("expected GetTuple to report absent after MarkUnused")
	}
	if err := p.MarkUnused(slot); err != ErrSlotAlreadyUnused {
		t.Fatalf("expected ErrSlotAlreadyUnused on double-unmark, got %v", err)
	}
}

// TestPageCompactPreservesSlotNumbersAndLiveData is spec.md §4.B's
// vacuum contract: compaction must not renumber slots, and every
// surviving tuple's bytes must be unchanged.
func TestPageCompactPreservesSlotNumbersAndLiveData(t *testing.T) {
	p := NewPage(0)
	var slots []uint16
	payloads := [][]byte{
		[]byte("first-row-payload"),
		[]byte("second-row-payload"),
		[]byte("third-row-payload"),
	}
	for _, pl := range payloads {
		slot, err := p.InsertTuple(pl)
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		slots = append(slots, slot)
	}

	if err := p.MarkUnused(slots[1]); err != nil {
		t.Fatalf("mark unused: %v", err)
	}
	freeStartBefore := p.Header.FreeStart

	p.Compact()
	assertPageIntegrity(t, p)

	if p.SlotCount() != 3 {
		t.Fatalf("compact must not change slot_count, got %d", p.SlotCount())
	}
	if p.Header.FreeStart >= freeStartBefore {
		t.Fatalf("compact should reclaim space, free_start %d should be < %d", p.Header.FreeStart, freeStartBefore)
	}

	if _, ok := p.GetTuple(slots[1]); ok {
		t.Fatalf("slot 1 should remain unused after compaction")
	}
	got0, ok := p.GetTuple(slots[0])
	if !ok || string(got0) != string(payloads[0]) {
		t.Fatalf("slot 0 payload changed by compaction: got %q", got0)
	}
	got2, ok := p.GetTuple(slots[2])
	if !ok || string(got2) != string(payloads[2]) {
		t.Fatalf("slot 2 payload changed by compaction: got %q", got2)
	}
}

func TestPageLoadRejectsWrongSize(t *testing.T) {
	if _, err := LoadPage([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected an error loading a short buffer")
	}
}

func TestPageSealLoadRoundTrip(t *testing.T) {
	p := NewPage(3)
	if _, err := p.InsertTuple([]byte("payload")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	p.Seal()

	loaded, err := LoadPage(p.Data)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	assertPageIntegrity(t, loaded)
	if loaded.Header.PageNo != 3 {
		t.Fatalf("page_no didn't survive the round trip, got %d", loaded.Header.PageNo)
	}
	got, ok := loaded.GetTuple(0)
	if !ok || string(got) != "payload" {
		t.Fatalf("tuple data didn't survive the round trip, got %q", got)
	}
}

func TestPageLoadRejectsChecksumMismatch(t *testing.T) {
	p := NewPage(0)
	if _, err := p.InsertTuple([]byte("payload")); err != nil {
		t.Fatalf("insert: %v", err)
	}
	p.Seal()

	tampered := make([]byte, PageSize)
	copy(tampered, p.Data)
	tampered[PageHeaderSize] ^= 0xFF

	if _, err := LoadPage(tampered); err == nil {
		t.Fatalf("expected a checksum mismatch error")
	}
}
