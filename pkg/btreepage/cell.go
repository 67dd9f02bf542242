package btreepage

import (
	"encoding/binary"

	"sharc/internal/varint"
)

// Cell is a parsed view of one cell, valid for the page type it came
// from. Not every field applies to every flavour; see the Page.Type that
// produced it.
type Cell struct {
	LeftChild    uint32 // interior table/index only
	Rowid        int64  // table cells only
	PayloadSize  int    // leaf table, leaf/interior index
	Payload      []byte // borrowed; local portion only, see Overflow
	OverflowPage uint32 // 0 if no overflow chain
}

// ParseLeafTableCell decodes a leaf-table cell: varint payload size,
// varint rowid, payload bytes (possibly truncated by an overflow chain),
// optional 4-byte overflow page pointer.
func ParseLeafTableCell(buf []byte, usablePageSize int) (Cell, int, error) {
	size, n1 := varint.GetVarint(buf)
	if n1 == 0 {
		return Cell{}, 0, ErrTruncatedPage
	}
	rowid, n2 := varint.GetVarintI64(buf[n1:])
	if n2 == 0 {
		return Cell{}, 0, ErrTruncatedPage
	}
	hdrLen := n1 + n2
	local, hasOverflow := localPayloadSize(int(size), usablePageSize, true)

	if hdrLen+local > len(buf) {
		return Cell{}, 0, ErrTruncatedPage
	}
	c := Cell{
		Rowid:       rowid,
		PayloadSize: int(size),
		Payload:     buf[hdrLen : hdrLen+local],
	}
	consumed := hdrLen + local
	if hasOverflow {
		if consumed+4 > len(buf) {
			return Cell{}, 0, ErrTruncatedPage
		}
		c.OverflowPage = binary.BigEndian.Uint32(buf[consumed : consumed+4])
		consumed += 4
	}
	return c, consumed, nil
}

// ParseInteriorTableCell decodes an interior-table cell: 4-byte left
// child page number, varint rowid (the upper key bound for the left
// subtree).
func ParseInteriorTableCell(buf []byte) (Cell, int, error) {
	if len(buf) < 4 {
		return Cell{}, 0, ErrTruncatedPage
	}
	left := binary.BigEndian.Uint32(buf[0:4])
	rowid, n := varint.GetVarintI64(buf[4:])
	if n == 0 {
		return Cell{}, 0, ErrTruncatedPage
	}
	return Cell{LeftChild: left, Rowid: rowid}, 4 + n, nil
}

// ParseLeafIndexCell decodes a leaf-index cell: varint payload size, key
// payload bytes, optional overflow pointer.
func ParseLeafIndexCell(buf []byte, usablePageSize int) (Cell, int, error) {
	size, n1 := varint.GetVarint(buf)
	if n1 == 0 {
		return Cell{}, 0, ErrTruncatedPage
	}
	local, hasOverflow := localPayloadSize(int(size), usablePageSize, false)
	if n1+local > len(buf) {
		return Cell{}, 0, ErrTruncatedPage
	}
	c := Cell{PayloadSize: int(size), Payload: buf[n1 : n1+local]}
	consumed := n1 + local
	if hasOverflow {
		if consumed+4 > len(buf) {
			return Cell{}, 0, ErrTruncatedPage
		}
		c.OverflowPage = binary.BigEndian.Uint32(buf[consumed : consumed+4])
		consumed += 4
	}
	return c, consumed, nil
}

// ParseInteriorIndexCell decodes an interior-index cell: 4-byte left
// child, varint payload size, key payload, optional overflow pointer.
func ParseInteriorIndexCell(buf []byte, usablePageSize int) (Cell, int, error) {
	if len(buf) < 4 {
		return Cell{}, 0, ErrTruncatedPage
	}
	left := binary.BigEndian.Uint32(buf[0:4])
	rest := buf[4:]
	size, n1 := varint.GetVarint(rest)
	if n1 == 0 {
		return Cell{}, 0, ErrTruncatedPage
	}
	local, hasOverflow := localPayloadSize(int(size), usablePageSize, false)
	if n1+local > len(rest) {
		return Cell{}, 0, ErrTruncatedPage
	}
	c := Cell{LeftChild: left, PayloadSize: int(size), Payload: rest[n1 : n1+local]}
	consumed := 4 + n1 + local
	if hasOverflow {
		if consumed+4 > len(buf) {
			return Cell{}, 0, ErrTruncatedPage
		}
		c.OverflowPage = binary.BigEndian.Uint32(buf[consumed : consumed+4])
		consumed += 4
	}
	return c, consumed, nil
}

// localPayloadSize computes how many payload bytes are stored locally in
// the cell versus spilled to an overflow chain, following SQLite's
// payload-fraction thresholds (max 64/255, min 32/255 of usable page
// size, plus the table/index leaf adjustment).
func localPayloadSize(total, usablePageSize int, isTableLeaf bool) (local int, overflow bool) {
	maxLocal := usablePageSize - 35
	if total <= maxLocal {
		return total, false
	}

	minLocal := (usablePageSize-12)*32/255 - 23
	k := minLocal + (total-minLocal)%(usablePageSize-4)
	if k <= maxLocal {
		local = k
	} else {
		local = minLocal
	}
	_ = isTableLeaf
	return local, true
}
