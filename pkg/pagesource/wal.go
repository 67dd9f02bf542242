package pagesource

import (
	"encoding/binary"
	"errors"
	"os"
)

// WAL header and frame layout, matching the real SQLite write-ahead log
// format: a 32-byte header followed by repeated 24-byte frame headers
// each prefixing one page-size page image.
const (
	walHeaderSize      = 32
	walFrameHeaderSize = 24
	walMagicBigEndian  = 0x377f0683
	walMagicLittle     = 0x377f0682
)

var (
	errWALBadMagic = errors.New("pagesource: bad WAL magic")
	errWALTooShort = errors.New("pagesource: WAL file too short for header")
)

// WAL is a read-only overlay that maps a page number to the offset of its
// last complete frame in a write-ahead log file, falling back to a base
// source for pages never written through the WAL. Frames are indexed
// whether or not they belong to a committed transaction: commit markers,
// salts and checksums are not checked.
type WAL struct {
	base      PageSource
	data      []byte
	pageSize  int
	byteOrder binary.ByteOrder
	frames    map[uint32]int // page number -> offset of frame payload
}

// OpenWAL reads every complete frame from a WAL file at path and builds
// the page -> frame-offset index, overlaying base; a later frame for a
// page replaces an earlier one.
func OpenWAL(path string, base PageSource) (*WAL, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &WAL{base: base, pageSize: base.PageSize(), frames: map[uint32]int{}}, nil
		}
		return nil, err
	}
	return newWALFromBytes(buf, base)
}

func newWALFromBytes(buf []byte, base PageSource) (*WAL, error) {
	w := &WAL{base: base, data: buf, pageSize: base.PageSize(), frames: make(map[uint32]int)}
	if len(buf) < walHeaderSize {
		if len(buf) == 0 {
			return w, nil
		}
		return nil, errWALTooShort
	}

	magic := binary.BigEndian.Uint32(buf[0:4])
	switch magic {
	case walMagicBigEndian:
		w.byteOrder = binary.BigEndian
	case walMagicLittle:
		w.byteOrder = binary.LittleEndian
	default:
		return nil, errWALBadMagic
	}
	pageSize := int(w.byteOrder.Uint32(buf[8:12]))
	if pageSize > 0 {
		w.pageSize = pageSize
	}

	off := walHeaderSize
	for off+walFrameHeaderSize+w.pageSize <= len(buf) {
		pageNo := w.byteOrder.Uint32(buf[off : off+4])
		payloadOff := off + walFrameHeaderSize
		if pageNo != 0 {
			w.frames[pageNo] = payloadOff
		}
		off = payloadOff + w.pageSize
	}
	return w, nil
}

func (w *WAL) PageCount() uint32 {
	max := w.base.PageCount()
	for n := range w.frames {
		if n > max {
			max = n
		}
	}
	return max
}

func (w *WAL) PageSize() int { return w.pageSize }

func (w *WAL) GetPage(n uint32) ([]byte, error) {
	if off, ok := w.frames[n]; ok {
		return w.data[off : off+w.pageSize], nil
	}
	return w.base.GetPage(n)
}

func (w *WAL) ReadPage(n uint32, into []byte) error {
	p, err := w.GetPage(n)
	if err != nil {
		return err
	}
	copy(into, p)
	return nil
}

func (w *WAL) Invalidate(n uint32) {
	delete(w.frames, n)
	w.base.Invalidate(n)
}
