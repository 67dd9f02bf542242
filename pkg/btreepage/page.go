// Package btreepage parses the on-disk layout of a single B-tree page:
// its header, cell pointer array, freeblock chain, and individual cells,
// per spec section 3 and 4.4. Page contents are SQLite's real format, so
// a Sharc file can be read by (and mimic) stock SQLite tooling.
package btreepage

import (
	"encoding/binary"
	"errors"
)

// Type is the one-byte page type discriminator.
type Type uint8

const (
	TypeInteriorIndex Type = 0x02
	TypeInteriorTable Type = 0x05
	TypeLeafIndex     Type = 0x0A
	TypeLeafTable     Type = 0x0D
)

// IsLeaf reports whether t denotes a leaf page.
func (t Type) IsLeaf() bool { return t == TypeLeafIndex || t == TypeLeafTable }

// IsTable reports whether t denotes a table (rowid) b-tree page, as
// opposed to an index b-tree page.
func (t Type) IsTable() bool { return t == TypeInteriorTable || t == TypeLeafTable }

var (
	ErrBadPageType    = errors.New("btreepage: unrecognized page type byte")
	ErrTruncatedPage  = errors.New("btreepage: page buffer too short for its header")
	ErrCellOutOfRange = errors.New("btreepage: cell pointer out of range")
)

const (
	leafHeaderSize     = 8
	interiorHeaderSize = 12
)

// Page is a parsed view over one page's raw bytes. It never copies: every
// accessor returns a slice borrowed from buf.
type Page struct {
	buf          []byte // the full page buffer
	headerOffset int    // 0 normally, 100 for page 1 (after the file header)
	typ          Type
	firstFree    uint16
	cellCount    uint16
	contentStart int // 0 in the raw field means 65536
	fragBytes    uint8
	rightChild   uint32 // interior pages only
	ptrArray     []byte // borrowed 2-byte-per-entry cell pointer array
}

// Parse reads a page header and cell pointer array from buf, a full page
// buffer. headerOffset is 100 for page 1 (whose first 100 bytes are the
// database header) and 0 for every other page.
func Parse(buf []byte, headerOffset int) (*Page, error) {
	if headerOffset+leafHeaderSize > len(buf) {
		return nil, ErrTruncatedPage
	}
	h := buf[headerOffset:]
	typ := Type(h[0])
	switch typ {
	case TypeInteriorIndex, TypeInteriorTable, TypeLeafIndex, TypeLeafTable:
	default:
		return nil, ErrBadPageType
	}

	hdrSize := leafHeaderSize
	if !typ.IsLeaf() {
		hdrSize = interiorHeaderSize
	}
	if headerOffset+hdrSize > len(buf) {
		return nil, ErrTruncatedPage
	}

	p := &Page{
		buf:          buf,
		headerOffset: headerOffset,
		typ:          typ,
		firstFree:    binary.BigEndian.Uint16(h[1:3]),
		cellCount:    binary.BigEndian.Uint16(h[3:5]),
		contentStart: int(binary.BigEndian.Uint16(h[5:7])),
		fragBytes:    h[7],
	}
	if p.contentStart == 0 {
		p.contentStart = 65536
	}
	if !typ.IsLeaf() {
		p.rightChild = binary.BigEndian.Uint32(h[8:12])
	}

	ptrStart := headerOffset + hdrSize
	ptrEnd := ptrStart + int(p.cellCount)*2
	if ptrEnd > len(buf) {
		return nil, ErrTruncatedPage
	}
	p.ptrArray = buf[ptrStart:ptrEnd]

	return p, nil
}

// Type returns the page's type byte.
func (p *Page) Type() Type { return p.typ }

// CellCount returns the number of cells recorded in the header.
func (p *Page) CellCount() int { return int(p.cellCount) }

// RightChild returns the right-most child page number; only meaningful
// on interior pages.
func (p *Page) RightChild() uint32 { return p.rightChild }

// FirstFreeblock returns the page-relative offset of the first freeblock,
// or 0 if there are none.
func (p *Page) FirstFreeblock() uint16 { return p.firstFree }

// FragmentedBytes returns the count of fragmented free bytes.
func (p *Page) FragmentedBytes() uint8 { return p.fragBytes }

// ContentStart returns the page-relative offset where cell content begins.
func (p *Page) ContentStart() int { return p.contentStart }

// CellPointer returns the page-relative byte offset of cell i, per the
// big-endian 2-byte pointer array.
func (p *Page) CellPointer(i int) (int, error) {
	if i < 0 || i >= int(p.cellCount) {
		return 0, ErrCellOutOfRange
	}
	return int(binary.BigEndian.Uint16(p.ptrArray[i*2 : i*2+2])), nil
}

// CellBytes returns a borrowed slice starting at cell i's offset and
// running to the end of the page buffer. Callers parse the cell flavour
// themselves (see cell.go) since its length depends on varint fields
// within it.
func (p *Page) CellBytes(i int) ([]byte, error) {
	off, err := p.CellPointer(i)
	if err != nil {
		return nil, err
	}
	if off < 0 || off > len(p.buf) {
		return nil, ErrCellOutOfRange
	}
	return p.buf[off:], nil
}

// Freeblocks walks the intra-page freeblock linked list, calling fn with
// each freeblock's (offset, size) until the list ends or fn returns false.
func (p *Page) Freeblocks(fn func(offset, size int) bool) error {
	off := int(p.firstFree)
	for off != 0 {
		if off+4 > len(p.buf) {
			return ErrTruncatedPage
		}
		next := int(binary.BigEndian.Uint16(p.buf[off : off+2]))
		size := int(binary.BigEndian.Uint16(p.buf[off+2 : off+4]))
		if !fn(off, size) {
			return nil
		}
		off = next
	}
	return nil
}

// HeaderSize returns the size of this page's header (8 or 12 bytes).
func (p *Page) HeaderSize() int {
	if p.typ.IsLeaf() {
		return leafHeaderSize
	}
	return interiorHeaderSize
}

// HeaderOffset returns the byte offset within buf where this page's
// header begins (100 for page 1, 0 otherwise).
func (p *Page) HeaderOffset() int { return p.headerOffset }
