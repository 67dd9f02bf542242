package btree

import (
	"encoding/binary"

	"sharc/pkg/pagesource"
)

// Freelist manages the trunk/leaf free-page chain described in spec
// section 4.8: trunk pages each hold up to (usable-8)/4 leaf page
// numbers plus a pointer to the next trunk.
type Freelist struct {
	src         pagesource.Writable
	usable      int
	firstTrunk  uint32
	leafCount   uint32
}

// NewFreelist wraps src, initialized from the header's recorded first
// trunk page and leaf count.
func NewFreelist(src pagesource.Writable, usable int, firstTrunk, leafCount uint32) *Freelist {
	return &Freelist{src: src, usable: usable, firstTrunk: firstTrunk, leafCount: leafCount}
}

// FirstTrunk and LeafCount report the current state for writing back into
// the database header on commit.
func (f *Freelist) FirstTrunk() uint32 { return f.firstTrunk }
func (f *Freelist) LeafCount() uint32  { return f.leafCount }

func maxLeavesPerTrunk(usable int) int { return (usable - 8) / 4 }

// Pop returns a free page, or (0, false) if the freelist is empty.
func (f *Freelist) Pop() (uint32, bool, error) {
	if f.firstTrunk == 0 {
		return 0, false, nil
	}
	trunkBuf, err := f.src.GetPage(f.firstTrunk)
	if err != nil {
		return 0, false, err
	}
	next := binary.BigEndian.Uint32(trunkBuf[0:4])
	count := binary.BigEndian.Uint32(trunkBuf[4:8])

	if count > 0 {
		leafOff := 8 + (count-1)*4
		leaf := binary.BigEndian.Uint32(trunkBuf[leafOff : leafOff+4])
		out := make([]byte, len(trunkBuf))
		copy(out, trunkBuf)
		binary.BigEndian.PutUint32(out[4:8], count-1)
		if err := f.src.WritePage(f.firstTrunk, out); err != nil {
			return 0, false, err
		}
		f.leafCount--
		return leaf, true, nil
	}

	// Trunk itself is empty: hand it out as the free page and advance.
	trunk := f.firstTrunk
	f.firstTrunk = next
	return trunk, true, nil
}

// Push returns page n to the freelist, appending to the current trunk or
// starting a new trunk when it is full (or none exists yet).
func (f *Freelist) Push(n uint32) error {
	if f.firstTrunk != 0 {
		trunkBuf, err := f.src.GetPage(f.firstTrunk)
		if err != nil {
			return err
		}
		count := binary.BigEndian.Uint32(trunkBuf[4:8])
		if int(count) < maxLeavesPerTrunk(f.usable) {
			out := make([]byte, len(trunkBuf))
			copy(out, trunkBuf)
			binary.BigEndian.PutUint32(out[4:8], count+1)
			leafOff := 8 + count*4
			binary.BigEndian.PutUint32(out[leafOff:leafOff+4], n)
			if err := f.src.WritePage(f.firstTrunk, out); err != nil {
				return err
			}
			f.leafCount++
			return nil
		}
	}

	// Make n itself the new trunk, pointing at the old one.
	buf := make([]byte, f.src.PageSize())
	binary.BigEndian.PutUint32(buf[0:4], f.firstTrunk)
	binary.BigEndian.PutUint32(buf[4:8], 0)
	if err := f.src.WritePage(n, buf); err != nil {
		return err
	}
	f.firstTrunk = n
	return nil
}
