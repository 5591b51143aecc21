package storage

import (
	"fmt"
	"os"
	"sync"
)

// TupleID identifies a tuple's physical position within a heap file.
type TupleID struct {
	PageNo  uint32
	SlotNo  uint16
}

// HeapFile is one file per table: a sequence of PageSize pages,
// page_no = file offset / PageSize (spec.md §3).
type HeapFile struct {
	path  string
	file  *os.File
	mu    sync.RWMutex
	pages uint32

	cache *pageCache
}

// NewHeapFile creates a heap file containing one empty page, per
// spec.md §4.B "new(path) creates a file containing one empty page."
func NewHeapFile(path string) (*HeapFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("storage: open heap file %s: %w", path, err)
	}
	hf := &HeapFile{path: path, file: f, cache: newPageCache(128)}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("storage: stat heap file %s: %w", path, err)
	}
	hf.pages = uint32(fi.Size() / PageSize)

	if hf.pages == 0 {
		if _, err := hf.allocatePage(); err != nil {
			f.Close()
			return nil, err
		}
	}
	return hf, nil
}

// OpenHeapFile opens an existing heap file (used when the catalog
// already knows about the table and the engine is recovering at
// open, spec.md §4.I).
func OpenHeapFile(path string) (*HeapFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("storage: open heap file %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("storage: stat heap file %s: %w", path, err)
	}
	hf := &HeapFile{
		path:  path,
		file:  f,
		cache: newPageCache(128),
		pages: uint32(fi.Size() / PageSize),
	}
	return hf, nil
}

func (hf *HeapFile) Close() error {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	return hf.file.Close()
}

func (hf *HeapFile) Path() string { return hf.path }

func (hf *HeapFile) PageCount() uint32 {
	hf.mu.RLock()
	defer hf.mu.RUnlock()
	return hf.pages
}

func (hf *HeapFile) allocatePage() (*Page, error) {
	pageNo := hf.pages
	hf.pages++
	p := NewPage(pageNo)
	if err := hf.writePageLocked(p); err != nil {
		return nil, err
	}
	return p, nil
}

// readPage loads a page, preferring the cache.
func (hf *HeapFile) readPage(pageNo uint32) (*Page, error) {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	return hf.readPageLocked(pageNo)
}

func (hf *HeapFile) readPageLocked(pageNo uint32) (*Page, error) {
	if p, ok := hf.cache.get(pageNo); ok {
		return p, nil
	}
	if pageNo >= hf.pages {
		return nil, fmt.Errorf("storage: page %d out of range (have %d)", pageNo, hf.pages)
	}
	buf := make([]byte, PageSize)
	if _, err := hf.file.ReadAt(buf, int64(pageNo)*PageSize); err != nil {
		return nil, fmt.Errorf("storage: read page %d: %w", pageNo, err)
	}
	p, err := LoadPage(buf)
	if err != nil {
		return nil, err
	}
	hf.cache.put(pageNo, p)
	return p, nil
}

// writePage rewrites a page to disk and fsyncs it — every write
// issues a data-sync, per spec.md §4.B durability contract.
func (hf *HeapFile) writePage(p *Page) error {
	hf.mu.Lock()
	defer hf.mu.Unlock()
	return hf.writePageLocked(p)
}

func (hf *HeapFile) writePageLocked(p *Page) error {
	p.Seal()
	if _, err := hf.file.WriteAt(p.Data, int64(p.Header.PageNo)*PageSize); err != nil {
		return fmt.Errorf("storage: write page %d: %w", p.Header.PageNo, err)
	}
	if err := hf.file.Sync(); err != nil {
		return fmt.Errorf("storage: sync page %d: %w", p.Header.PageNo, err)
	}
	hf.cache.put(p.Header.PageNo, p)
	return nil
}

// InsertRow writes a new tuple. Per spec.md §4.B: try the last page;
// if it doesn't fit, append a fresh page. Never scans earlier pages
// for free space in v1.
func (hf *HeapFile) InsertRow(tupleData []byte) (TupleID, error) {
	hf.mu.Lock()
	lastPageNo := hf.pages - 1
	hf.mu.Unlock()

	page, err := hf.readPage(lastPageNo)
	if err != nil {
		return TupleID{}, err
	}

	slot, err := page.InsertTuple(tupleData)
	if err == nil {
		if werr := hf.writePage(page); werr != nil {
			return TupleID{}, werr
		}
		return TupleID{PageNo: lastPageNo, SlotNo: slot}, nil
	}
	if err != ErrNoSpace {
		return TupleID{}, err
	}

	hf.mu.Lock()
	newPage, err := hf.allocatePage()
	hf.mu.Unlock()
	if err != nil {
		return TupleID{}, err
	}

	slot, err = newPage.InsertTuple(tupleData)
	if err != nil {
		return TupleID{}, err
	}
	if err := hf.writePage(newPage); err != nil {
		return TupleID{}, err
	}
	return TupleID{PageNo: newPage.Header.PageNo, SlotNo: slot}, nil
}

// GetTuple does a random read + decode.
func (hf *HeapFile) GetTuple(tid TupleID) ([]byte, bool, error) {
	page, err := hf.readPage(tid.PageNo)
	if err != nil {
		return nil, false, err
	}
	data, ok := page.GetTuple(tid.SlotNo)
	return data, ok, nil
}

// DeleteAt stamps xmax on the tuple header in place, per spec.md
// §4.B: the item id's flags are NOT cleared — the tuple stays
// physically present for visibility checks by older snapshots.
func (hf *HeapFile) DeleteAt(tid TupleID, xid uint32) error {
	page, err := hf.readPage(tid.PageNo)
	if err != nil {
		return err
	}
	if err := page.OverwriteTupleBytes(tid.SlotNo, xmaxOffset, encodeXmax(xid)); err != nil {
		return err
	}
	return hf.writePage(page)
}

// UpdateRow stamps xmax on the old tuple (as DeleteAt), then tries to
// insert the new version on the same page; on NoSpace it appends a
// new page. Update is never HOT — spec.md §4.B.
func (hf *HeapFile) UpdateRow(old TupleID, newTupleData []byte, xid uint32) (TupleID, error) {
	if err := hf.DeleteAt(old, xid); err != nil {
		return TupleID{}, err
	}

	page, err := hf.readPage(old.PageNo)
	if err != nil {
		return TupleID{}, err
	}
	slot, err := page.InsertTuple(newTupleData)
	if err == nil {
		if werr := hf.writePage(page); werr != nil {
			return TupleID{}, werr
		}
		return TupleID{PageNo: old.PageNo, SlotNo: slot}, nil
	}
	if err != ErrNoSpace {
		return TupleID{}, err
	}

	hf.mu.Lock()
	newPage, aerr := hf.allocatePage()
	hf.mu.Unlock()
	if aerr != nil {
		return TupleID{}, aerr
	}
	slot, err = newPage.InsertTuple(newTupleData)
	if err != nil {
		return TupleID{}, err
	}
	if err := hf.writePage(newPage); err != nil {
		return TupleID{}, err
	}
	return TupleID{PageNo: newPage.Header.PageNo, SlotNo: slot}, nil
}

// ScanFunc is invoked for every used slot in page/slot-index order.
// Returning an error stops the scan and propagates the error.
type ScanFunc func(tid TupleID, data []byte) error

// ScanAll iterates every page and every used slot in slot-index
// order, per spec.md §4.B.
func (hf *HeapFile) ScanAll(fn ScanFunc) error {
	n := hf.PageCount()
	for pageNo := uint32(0); pageNo < n; pageNo++ {
		page, err := hf.readPage(pageNo)
		if err != nil {
			return err
		}
		for slot := uint16(0); slot < page.SlotCount(); slot++ {
			data, ok := page.GetTuple(slot)
			if !ok {
				continue
			}
			if err := fn(TupleID{PageNo: pageNo, SlotNo: slot}, data); err != nil {
				return err
			}
		}
	}
	return nil
}

// VacuumStats reports what one vacuum pass over a heap file removed.
type VacuumStats struct {
	PagesScanned  int
	TuplesScanned int
	Removed       int
}

// IsDeadFunc decides, given a tuple's xmax, whether it is
// unreachable by any future snapshot (spec.md §4.C dead-tuple rule).
// xmax==0 tuples are never dead and this func isn't called for them.
type IsDeadFunc func(xmax uint32) bool

// OnRemoveFunc is called once per tuple about to be physically
// removed, so the caller can drop matching index entries before the
// slot disappears (spec.md §4.B vacuum contract).
type OnRemoveFunc func(tid TupleID, header TupleHeader)

// Vacuum walks every page's slots in order; for each still-used slot,
// if its tuple is dead it is removed (index entries first via
// onRemove, then the item id is marked unused). A page that lost at
// least one tuple is then compacted and written back; pages with no
// dead tuples are left untouched. free_end and slot_count are left
// alone so slot numbers never get renumbered.
func (hf *HeapFile) Vacuum(columns []Column, isDead IsDeadFunc, onRemove OnRemoveFunc) (VacuumStats, error) {
	var stats VacuumStats
	n := hf.PageCount()

	for pageNo := uint32(0); pageNo < n; pageNo++ {
		page, err := hf.readPage(pageNo)
		if err != nil {
			return stats, err
		}
		stats.PagesScanned++

		var deadSlots []uint16
		for slot := uint16(0); slot < page.SlotCount(); slot++ {
			data, ok := page.GetTuple(slot)
			if !ok {
				continue
			}
			stats.TuplesScanned++

			hdr, _, derr := DecodeTuple(data, columns)
			if derr != nil {
				continue
			}
			if hdr.Xmax == 0 || !isDead(hdr.Xmax) {
				continue
			}
			if onRemove != nil {
				onRemove(TupleID{PageNo: pageNo, SlotNo: slot}, hdr)
			}
			deadSlots = append(deadSlots, slot)
		}

		if len(deadSlots) == 0 {
			continue
		}
		for _, slot := range deadSlots {
			if err := page.MarkUnused(slot); err != nil {
				continue
			}
			stats.Removed++
		}
		page.Compact()
		if err := hf.writePage(page); err != nil {
			return stats, err
		}
	}

	return stats, nil
}
