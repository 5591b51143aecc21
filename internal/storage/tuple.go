package storage

import (
	"encoding/binary"
	"fmt"
)

// TupleHeader carries the MVCC visibility fields plus the null
// bitmap, exactly as spec.md §3 describes: xmin (inserting xid),
// xmax (deleting xid, 0 = still live), a null-bitmap length prefix
// and bytes, and a flags word.
type TupleHeader struct {
	Xmin       uint32
	Xmax       uint32
	NullBitLen uint16 // length of the null-bitmap in bytes
	NullBitmap []byte
	Flags      uint16
}

func nullBitmapLen(numCols int) int {
	return (numCols + 7) / 8
}

func bitSet(bitmap []byte, i int) bool {
	return bitmap[i/8]&(1<<uint(i%8)) != 0
}

func setBit(bitmap []byte, i int) {
	bitmap[i/8] |= 1 << uint(i%8)
}

// EncodeTuple serializes header + row into the on-disk tuple format
// of spec.md §3/§4.A: little-endian fixed header, then each non-null
// column value in column order (Int -> i32, Text -> u16 len + UTF-8
// bytes, Bool -> 1 byte, Null -> no bytes, recorded only in the
// bitmap).
func EncodeTuple(row Row, columns []Column, xmin, xmax uint32) ([]byte, error) {
	if len(row) != len(columns) {
		return nil, fmt.Errorf("storage: row has %d values, schema has %d columns", len(row), len(columns))
	}

	bitmapLen := nullBitmapLen(len(columns))
	bitmap := make([]byte, bitmapLen)

	var payload []byte
	for i, v := range row {
		if v.IsNull() {
			setBit(bitmap, i)
			continue
		}
		switch columns[i].Type {
		case KindInt:
			buf := make([]byte, 4)
			binary.LittleEndian.PutUint32(buf, uint32(int32(v.I)))
			payload = append(payload, buf...)
		case KindText:
			b := []byte(v.S)
			lenBuf := make([]byte, 2)
			binary.LittleEndian.PutUint16(lenBuf, uint16(len(b)))
			payload = append(payload, lenBuf...)
			payload = append(payload, b...)
		case KindBool:
			if v.B {
				payload = append(payload, 1)
			} else {
				payload = append(payload, 0)
			}
		default:
			return nil, fmt.Errorf("storage: unknown column type for %q", columns[i].Name)
		}
	}

	headerLen := 4 + 4 + 2 + bitmapLen + 2
	out := make([]byte, headerLen+len(payload))
	binary.LittleEndian.PutUint32(out[0:4], xmin)
	binary.LittleEndian.PutUint32(out[4:8], xmax)
	binary.LittleEndian.PutUint16(out[8:10], uint16(bitmapLen))
	copy(out[10:10+bitmapLen], bitmap)
	binary.LittleEndian.PutUint16(out[10+bitmapLen:12+bitmapLen], 0) // flags
	copy(out[headerLen:], payload)

	return out, nil
}

// DecodeTuple parses the header before projecting any values — the
// null bitmap must be known before column offsets can be computed
// (spec.md §4.A).
func DecodeTuple(data []byte, columns []Column) (TupleHeader, Row, error) {
	if len(data) < 12 {
		return TupleHeader{}, nil, fmt.Errorf("storage: tuple too short: %w", ErrCorruptTupleHeader)
	}

	hdr := TupleHeader{
		Xmin:       binary.LittleEndian.Uint32(data[0:4]),
		Xmax:       binary.LittleEndian.Uint32(data[4:8]),
		NullBitLen: binary.LittleEndian.Uint16(data[8:10]),
	}
	bitmapLen := int(hdr.NullBitLen)
	if 10+bitmapLen+2 > len(data) {
		return TupleHeader{}, nil, fmt.Errorf("storage: tuple bitmap overruns buffer: %w", ErrCorruptTupleHeader)
	}
	hdr.NullBitmap = make([]byte, bitmapLen)
	copy(hdr.NullBitmap, data[10:10+bitmapLen])
	hdr.Flags = binary.LittleEndian.Uint16(data[10+bitmapLen : 12+bitmapLen])

	off := 12 + bitmapLen
	row := make(Row, len(columns))
	for i, col := range columns {
		if bitmapLen > 0 && bitSet(hdr.NullBitmap, i) {
			row[i] = NullValue()
			continue
		}
		switch col.Type {
		case KindInt:
			if off+4 > len(data) {
				return TupleHeader{}, nil, fmt.Errorf("storage: tuple int overruns buffer: %w", ErrCorruptTupleHeader)
			}
			row[i] = IntValue(int64(int32(binary.LittleEndian.Uint32(data[off : off+4]))))
			off += 4
		case KindText:
			if off+2 > len(data) {
				return TupleHeader{}, nil, fmt.Errorf("storage: tuple text len overruns buffer: %w", ErrCorruptTupleHeader)
			}
			n := int(binary.LittleEndian.Uint16(data[off : off+2]))
			off += 2
			if off+n > len(data) {
				return TupleHeader{}, nil, fmt.Errorf("storage: tuple text overruns buffer: %w", ErrCorruptTupleHeader)
			}
			row[i] = TextValue(string(data[off : off+n]))
			off += n
		case KindBool:
			if off+1 > len(data) {
				return TupleHeader{}, nil, fmt.Errorf("storage: tuple bool overruns buffer: %w", ErrCorruptTupleHeader)
			}
			row[i] = BoolValue(data[off] != 0)
			off++
		default:
			return TupleHeader{}, nil, fmt.Errorf("storage: unknown column type for %q", col.Name)
		}
	}

	return hdr, row, nil
}

// xmaxOffset is where Xmax sits within an encoded tuple — used by
// HeapFile.DeleteAt to overwrite it in place without re-encoding the
// whole tuple (spec.md §4.B: "overwrite the tuple header's xmax
// field in place").
const xmaxOffset = 4

func encodeXmax(xid uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, xid)
	return buf
}
