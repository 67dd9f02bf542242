package btree

import (
	"encoding/binary"
	"errors"

	"sharc/internal/varint"
	"sharc/pkg/btreepage"
	"sharc/pkg/pagesource"
)

// ErrCorrupt is returned when a page's structure cannot be reconciled
// with the b-tree invariants (pointer array inconsistent, cell beyond
// page bounds, overflow chain cycle or truncation).
var ErrCorrupt = errors.New("btree: corrupt page")

// leafRow is one decoded table-leaf cell: its rowid and full logical
// payload (overflow chain already followed and concatenated).
type leafRow struct {
	rowid   int64
	payload []byte
}

// interiorEntry is one decoded table-interior cell: a child page and the
// largest rowid reachable through it.
type interiorEntry struct {
	child uint32
	rowid int64
}

// node is the fully decoded, mutate-in-memory form of one b-tree page.
type node struct {
	isLeaf     bool
	rightChild uint32 // interior only
	leafRows   []leafRow
	interior   []interiorEntry
}

func headerOffsetFor(pageNo uint32) int {
	if pageNo == 1 {
		return 100
	}
	return 0
}

// readNode loads and fully decodes page pageNo, following any overflow
// chains so leaf payloads are contiguous logical byte slices.
func readNode(src pagesource.PageSource, pageNo uint32, usable int) (*node, error) {
	buf, err := src.GetPage(pageNo)
	if err != nil {
		return nil, err
	}
	p, err := btreepage.Parse(buf, headerOffsetFor(pageNo))
	if err != nil {
		return nil, err
	}

	n := &node{isLeaf: p.Type().IsLeaf()}
	if !n.isLeaf {
		n.rightChild = p.RightChild()
	}

	for i := 0; i < p.CellCount(); i++ {
		cellBuf, err := p.CellBytes(i)
		if err != nil {
			return nil, err
		}
		if n.isLeaf {
			cell, _, err := btreepage.ParseLeafTableCell(cellBuf, usable)
			if err != nil {
				return nil, err
			}
			full, err := followOverflow(src, cell.Payload, cell.PayloadSize, cell.OverflowPage, usable)
			if err != nil {
				return nil, err
			}
			n.leafRows = append(n.leafRows, leafRow{rowid: cell.Rowid, payload: full})
		} else {
			cell, _, err := btreepage.ParseInteriorTableCell(cellBuf)
			if err != nil {
				return nil, err
			}
			n.interior = append(n.interior, interiorEntry{child: cell.LeftChild, rowid: cell.Rowid})
		}
	}
	return n, nil
}

// followOverflow reconstructs a cell's full logical payload, appending
// bytes from the overflow chain (each page prefixed by a 4-byte next
// pointer) when local is shorter than the recorded total size.
func followOverflow(src pagesource.PageSource, local []byte, total int, firstOverflow uint32, usable int) ([]byte, error) {
	if firstOverflow == 0 {
		if len(local) != total {
			return nil, ErrCorrupt
		}
		out := make([]byte, total)
		copy(out, local)
		return out, nil
	}

	out := make([]byte, 0, total)
	out = append(out, local...)

	visited := map[uint32]bool{}
	next := firstOverflow
	for next != 0 {
		if visited[next] {
			return nil, ErrCorrupt
		}
		visited[next] = true
		buf, err := src.GetPage(next)
		if err != nil {
			return nil, err
		}
		if len(buf) < 4 {
			return nil, ErrCorrupt
		}
		next = binary.BigEndian.Uint32(buf[0:4])
		remaining := total - len(out)
		chunk := buf[4:]
		if remaining < len(chunk) {
			chunk = chunk[:remaining]
		}
		out = append(out, chunk...)
	}
	if len(out) != total {
		return nil, ErrCorrupt
	}
	return out, nil
}

// localPayloadBudget mirrors btreepage's local-vs-overflow split so the
// mutator can decide up front how many bytes of a cell land on-page.
func localPayloadBudget(total, usable int) (local int, overflow bool) {
	maxLocal := usable - 35
	if total <= maxLocal {
		return total, false
	}
	minLocal := (usable-12)*32/255 - 23
	k := minLocal + (total-minLocal)%(usable-4)
	if k <= maxLocal {
		return k, true
	}
	return minLocal, true
}

// writeNode serializes n into pageNo, allocating overflow pages via
// alloc as needed for any leaf row whose payload exceeds the per-page
// local threshold. It always writes a full src.PageSize() buffer and
// returns only an error (ErrCorrupt if the cells do not fit) — the caller
// is responsible for triggering a split beforehand if n does not fit.
func writeNode(src pagesource.Writable, pageNo uint32, usable int, n *node, alloc func() (uint32, error), release func(uint32) error) error {
	pageSize := src.PageSize()
	buf := make([]byte, pageSize)
	headerOff := headerOffsetFor(pageNo)

	hdrSize := 8
	typ := byte(btreepage.TypeLeafTable)
	if !n.isLeaf {
		hdrSize = 12
		typ = byte(btreepage.TypeInteriorTable)
	}
	buf[headerOff] = typ

	cellCount := len(n.leafRows) + len(n.interior)
	ptrArrayOff := headerOff + hdrSize
	contentEnd := pageSize

	type encoded struct {
		off int
		len int
	}
	cells := make([]encoded, 0, cellCount)

	if n.isLeaf {
		for i := len(n.leafRows) - 1; i >= 0; i-- {
			row := n.leafRows[i]
			local, hasOverflow := localPayloadBudget(len(row.payload), usable)

			var overflowPage uint32
			localBytes := row.payload[:local]
			if hasOverflow {
				p, err := alloc()
				if err != nil {
					return err
				}
				overflowPage = p
				if err := writeOverflowChain(src, p, row.payload[local:], alloc); err != nil {
					return err
				}
			}

			var tmp [varint.MaxLen * 2]byte
			n1 := varint.PutVarint(tmp[:], uint64(len(row.payload)))
			n2 := varint.PutVarintI64(tmp[n1:], row.rowid)
			cellLen := n1 + n2 + len(localBytes)
			if hasOverflow {
				cellLen += 4
			}
			contentEnd -= cellLen
			if contentEnd < ptrArrayOff+cellCount*2 {
				return ErrCorrupt
			}
			pos := contentEnd
			copy(buf[pos:], tmp[:n1+n2])
			pos += n1 + n2
			copy(buf[pos:], localBytes)
			pos += len(localBytes)
			if hasOverflow {
				binary.BigEndian.PutUint32(buf[pos:pos+4], overflowPage)
			}
			cells = append(cells, encoded{off: contentEnd, len: cellLen})
		}
	} else {
		for i := len(n.interior) - 1; i >= 0; i-- {
			e := n.interior[i]
			var tmp [varint.MaxLen]byte
			m := varint.PutVarintI64(tmp[:], e.rowid)
			cellLen := 4 + m
			contentEnd -= cellLen
			if contentEnd < ptrArrayOff+cellCount*2 {
				return ErrCorrupt
			}
			binary.BigEndian.PutUint32(buf[contentEnd:contentEnd+4], e.child)
			copy(buf[contentEnd+4:], tmp[:m])
			cells = append(cells, encoded{off: contentEnd, len: cellLen})
		}
	}

	// cells was built back-to-front; reverse to front-to-back pointer order.
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
	for i, c := range cells {
		binary.BigEndian.PutUint16(buf[ptrArrayOff+i*2:ptrArrayOff+i*2+2], uint16(c.off))
	}

	binary.BigEndian.PutUint16(buf[headerOff+1:headerOff+3], 0) // no freeblocks
	binary.BigEndian.PutUint16(buf[headerOff+3:headerOff+5], uint16(cellCount))
	storedContentEnd := uint16(contentEnd)
	if contentEnd == 65536 {
		storedContentEnd = 0
	}
	binary.BigEndian.PutUint16(buf[headerOff+5:headerOff+7], storedContentEnd)
	buf[headerOff+7] = 0
	if !n.isLeaf {
		binary.BigEndian.PutUint32(buf[headerOff+8:headerOff+12], n.rightChild)
	}

	return src.WritePage(pageNo, buf)
}

func writeOverflowChain(src pagesource.Writable, firstPage uint32, data []byte, alloc func() (uint32, error)) error {
	pageSize := src.PageSize()
	chunkSize := pageSize - 4
	page := firstPage
	for {
		buf := make([]byte, pageSize)
		n := len(data)
		if n > chunkSize {
			n = chunkSize
		}
		var next uint32
		if len(data) > n {
			p, err := alloc()
			if err != nil {
				return err
			}
			next = p
		}
		binary.BigEndian.PutUint32(buf[0:4], next)
		copy(buf[4:], data[:n])
		if err := src.WritePage(page, buf); err != nil {
			return err
		}
		data = data[n:]
		if next == 0 {
			return nil
		}
		page = next
	}
}

// encodedNodeSize estimates the serialized byte footprint of n (pointer
// array + local cell bytes, excluding overflow-chain pages), used to
// decide whether a page needs to split before writeNode is called.
func encodedNodeSize(n *node, usable int) int {
	hdrSize := 8
	if !n.isLeaf {
		hdrSize = 12
	}
	size := hdrSize
	if n.isLeaf {
		for _, row := range n.leafRows {
			local, hasOverflow := localPayloadBudget(len(row.payload), usable)
			size += 2 // pointer
			size += varint.Len(uint64(len(row.payload)))
			size += varint.Len(uint64(row.rowid))
			size += local
			if hasOverflow {
				size += 4
			}
		}
	} else {
		for _, e := range n.interior {
			size += 2
			size += 4
			size += varint.Len(uint64(e.rowid))
		}
	}
	return size
}
