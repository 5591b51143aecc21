package storage

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// Page layout constants, exactly as spec.md §3/§4.A mandates.
const (
	PageSize       = 8192
	PageHeaderSize = 16 // page_no(4) + slot_count(2) + free_start(2) + free_end(2) + checksum(4) + reserved(2)
	ItemIDSize     = 6  // offset(2) + len(2) + flags(2)
)

// item id flags.
const (
	itemUnused uint16 = 0
	itemUsed   uint16 = 1
)

// ItemID is a slot-array entry: (offset, len, flags). flags==0 means
// the slot is unused (never allocated, or vacuumed away).
type ItemID struct {
	Offset uint16
	Len    uint16
	Flags  uint16
}

func (id ItemID) IsUsed() bool { return id.Flags != itemUnused }

// PageHeader is the fixed 16-byte page header.
type PageHeader struct {
	PageNo    uint32
	SlotCount uint16
	FreeStart uint16
	FreeEnd   uint16
	Checksum  uint32
}

// Page is one 8192-byte slotted page: header + tuple payload growing
// from the low end + item-id array growing from the high end.
type Page struct {
	Header PageHeader
	Items  []ItemID
	Data   []byte // PageSize raw bytes, header+payload+slots, always kept in sync
}

var ErrNoSpace = fmt.Errorf("storage: no space in page")

// NewPage returns an empty page (spec.md §4.A new(page_no) contract).
func NewPage(pageNo uint32) *Page {
	p := &Page{
		Header: PageHeader{
			PageNo:    pageNo,
			SlotCount: 0,
			FreeStart: PageHeaderSize,
			FreeEnd:   PageSize,
		},
		Data: make([]byte, PageSize),
	}
	p.flushHeader()
	return p
}

func (p *Page) flushHeader() {
	binary.LittleEndian.PutUint32(p.Data[0:4], p.Header.PageNo)
	binary.LittleEndian.PutUint16(p.Data[4:6], p.Header.SlotCount)
	binary.LittleEndian.PutUint16(p.Data[6:8], p.Header.FreeStart)
	binary.LittleEndian.PutUint16(p.Data[8:10], p.Header.FreeEnd)
	binary.LittleEndian.PutUint32(p.Data[10:14], p.Header.Checksum)
}

func (p *Page) flushItem(i int) {
	off := PageSize - (i+1)*ItemIDSize
	item := p.Items[i]
	binary.LittleEndian.PutUint16(p.Data[off:off+2], item.Offset)
	binary.LittleEndian.PutUint16(p.Data[off+2:off+4], item.Len)
	binary.LittleEndian.PutUint16(p.Data[off+4:off+6], item.Flags)
}

// LoadPage decodes a page from exactly PageSize raw bytes, verifying
// the checksum (spec.md reserves the field; this engine gives it a
// job, see SPEC_FULL.md §9).
func LoadPage(data []byte) (*Page, error) {
	if len(data) != PageSize {
		return nil, fmt.Errorf("storage: invalid page size %d (want %d)", len(data), PageSize)
	}
	p := &Page{Data: make([]byte, PageSize)}
	copy(p.Data, data)

	p.Header.PageNo = binary.LittleEndian.Uint32(p.Data[0:4])
	p.Header.SlotCount = binary.LittleEndian.Uint16(p.Data[4:6])
	p.Header.FreeStart = binary.LittleEndian.Uint16(p.Data[6:8])
	p.Header.FreeEnd = binary.LittleEndian.Uint16(p.Data[8:10])
	p.Header.Checksum = binary.LittleEndian.Uint32(p.Data[10:14])

	p.Items = make([]ItemID, p.Header.SlotCount)
	for i := range p.Items {
		off := PageSize - (i+1)*ItemIDSize
		p.Items[i] = ItemID{
			Offset: binary.LittleEndian.Uint16(p.Data[off : off+2]),
			Len:    binary.LittleEndian.Uint16(p.Data[off+2 : off+4]),
			Flags:  binary.LittleEndian.Uint16(p.Data[off+4 : off+6]),
		}
	}

	if !p.verifyChecksum() {
		return nil, fmt.Errorf("storage: page %d checksum mismatch: %w", p.Header.PageNo, ErrCorruptTupleHeader)
	}
	return p, nil
}

func (p *Page) computeChecksum() uint32 {
	buf := make([]byte, PageSize)
	copy(buf, p.Data)
	binary.LittleEndian.PutUint32(buf[10:14], 0)
	return crc32.ChecksumIEEE(buf)
}

func (p *Page) verifyChecksum() bool {
	return p.Header.Checksum == p.computeChecksum()
}

// Seal recomputes and stores the checksum; call before writing the
// page to disk.
func (p *Page) Seal() {
	p.Header.Checksum = p.computeChecksum()
	binary.LittleEndian.PutUint32(p.Data[10:14], p.Header.Checksum)
}

func (p *Page) freeSpace() int {
	if int(p.Header.FreeEnd) <= int(p.Header.FreeStart) {
		return 0
	}
	return int(p.Header.FreeEnd) - int(p.Header.FreeStart)
}

// InsertTuple writes tupleData at free_start, appends a fresh item id
// at the high end, and returns the new slot number. Returns
// ErrNoSpace when the tuple plus a new item id doesn't fit.
func (p *Page) InsertTuple(tupleData []byte) (uint16, error) {
	needed := len(tupleData) + ItemIDSize
	if needed > p.freeSpace() {
		return 0, ErrNoSpace
	}

	offset := p.Header.FreeStart
	copy(p.Data[offset:int(offset)+len(tupleData)], tupleData)
	p.Header.FreeStart += uint16(len(tupleData))

	item := ItemID{Offset: offset, Len: uint16(len(tupleData)), Flags: itemUsed}
	p.Items = append(p.Items, item)
	p.Header.SlotCount++
	p.Header.FreeEnd -= ItemIDSize

	p.flushHeader()
	p.flushItem(len(p.Items) - 1)

	return p.Header.SlotCount - 1, nil
}

// GetTuple returns the raw tuple bytes for a slot, or (nil, false)
// when the slot is out of range or unused.
func (p *Page) GetTuple(slotNo uint16) ([]byte, bool) {
	if slotNo >= uint16(len(p.Items)) {
		return nil, false
	}
	item := p.Items[slotNo]
	if !item.IsUsed() {
		return nil, false
	}
	out := make([]byte, item.Len)
	copy(out, p.Data[item.Offset:int(item.Offset)+int(item.Len)])
	return out, true
}

// OverwriteTupleBytes writes data in place at byte offset at within
// a used slot's tuple. delete_at (spec.md §4.B) uses it to stamp the
// tuple header's xmax field; the offset of xmax within the tuple is
// passed in by the caller since only internal/storage's sibling
// tuple.go knows the tuple layout.
func (p *Page) OverwriteTupleBytes(slotNo uint16, at int, data []byte) error {
	if slotNo >= uint16(len(p.Items)) {
		return ErrInvalidSlot
	}
	item := p.Items[slotNo]
	if !item.IsUsed() {
		return ErrSlotAlreadyUnused
	}
	if at+len(data) > int(item.Len) {
		return fmt.Errorf("storage: write past tuple end")
	}
	base := int(item.Offset) + at
	copy(p.Data[base:base+len(data)], data)
	return nil
}

// MarkUnused clears an item id's flags (vacuum only — delete_at must
// NOT do this, per spec.md §4.B).
func (p *Page) MarkUnused(slotNo uint16) error {
	if slotNo >= uint16(len(p.Items)) {
		return ErrInvalidSlot
	}
	if !p.Items[slotNo].IsUsed() {
		return ErrSlotAlreadyUnused
	}
	p.Items[slotNo].Flags = itemUnused
	p.flushItem(int(slotNo))
	return nil
}

// Compact moves every still-used tuple payload towards free_start,
// in-place, updating each surviving item id's offset. free_end and
// slot_count are left unchanged so existing slot numbers keep their
// meaning, per spec.md §4.B.
func (p *Page) Compact() {
	writePtr := uint16(PageHeaderSize)
	buf := make([]byte, PageSize)
	copy(buf, p.Data)

	for i := range p.Items {
		item := &p.Items[i]
		if !item.IsUsed() {
			continue
		}
		copy(p.Data[writePtr:int(writePtr)+int(item.Len)], buf[item.Offset:int(item.Offset)+int(item.Len)])
		item.Offset = writePtr
		writePtr += item.Len
		p.flushItem(i)
	}

	p.Header.FreeStart = writePtr
	p.flushHeader()
}

func (p *Page) SlotCount() uint16 { return p.Header.SlotCount }
func (p *Page) PageNo() uint32    { return p.Header.PageNo }
