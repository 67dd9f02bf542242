package btree

import (
	"bytes"
	"encoding/binary"
	"sort"

	"sharc/internal/varint"
	"sharc/pkg/btreepage"
	"sharc/pkg/pagesource"
)

// IndexMutator applies insert/delete operations to an index b-tree
// (spec section 4.14's secondary index storage), keyed by raw
// byte-comparison order of the encoded index key (indexed column
// values followed by the row's rowid, so every key is unique even
// when the indexed columns are not). It mirrors Mutator's split and
// root-collapse handling, generalized from a rowid key to an
// arbitrary byte-string key.
type IndexMutator struct {
	src      pagesource.Writable
	usable   int
	freelist *Freelist
	nextPage uint32
}

// NewIndexMutator wraps src with the same allocation bookkeeping
// Mutator uses, so a statement that maintains both a table and its
// indexes can share one freelist/nextPage counter by passing the same
// values to both constructors and reconciling nextPage afterward.
func NewIndexMutator(src pagesource.Writable, usable int, freelist *Freelist, nextPage uint32) *IndexMutator {
	return &IndexMutator{src: src, usable: usable, freelist: freelist, nextPage: nextPage}
}

func (m *IndexMutator) NextPage() uint32 { return m.nextPage }

// WriteEmptyLeaf initializes page as a freshly allocated, empty index
// leaf page — the starting state of a brand-new index.
func (m *IndexMutator) WriteEmptyLeaf(page uint32) error {
	return writeIndexNode(m.src, page, m.usable, &indexNode{isLeaf: true}, m.allocate, m.release)
}

func (m *IndexMutator) allocate() (uint32, error) {
	if p, ok, err := m.freelist.Pop(); err != nil {
		return 0, err
	} else if ok {
		return p, nil
	}
	p := m.nextPage
	m.nextPage++
	return p, nil
}

func (m *IndexMutator) release(page uint32) error {
	return m.freelist.Push(page)
}

type indexPathFrame struct {
	page uint32
	idx  int
}

func (m *IndexMutator) descendToLeaf(root uint32, key []byte) (leafPage uint32, leaf *indexNode, path []indexPathFrame, err error) {
	page := root
	for {
		n, err := readIndexNode(m.src, page, m.usable)
		if err != nil {
			return 0, nil, nil, err
		}
		if n.isLeaf {
			return page, n, path, nil
		}
		idx := sort.Search(len(n.interior), func(i int) bool { return bytes.Compare(n.interior[i].key, key) >= 0 })
		path = append(path, indexPathFrame{page: page, idx: idx})
		if idx < len(n.interior) {
			page = n.interior[idx].child
		} else {
			page = n.rightChild
		}
	}
}

// Insert adds key to the index. Keys are expected unique (the caller
// encodes the owning rowid as the key's trailing column), so an exact
// duplicate is treated as a no-op rather than a replace.
func (m *IndexMutator) Insert(root uint32, key []byte) (uint32, error) {
	leafPage, leaf, path, err := m.descendToLeaf(root, key)
	if err != nil {
		return 0, err
	}
	idx := sort.Search(len(leaf.leafRows), func(i int) bool { return bytes.Compare(leaf.leafRows[i].key, key) >= 0 })
	if idx < len(leaf.leafRows) && bytes.Equal(leaf.leafRows[idx].key, key) {
		return root, nil
	}
	leaf.leafRows = append(leaf.leafRows, indexLeafRow{})
	copy(leaf.leafRows[idx+1:], leaf.leafRows[idx:])
	leaf.leafRows[idx] = indexLeafRow{key: key}

	return m.writeBackWithSplits(root, leafPage, leaf, path)
}

// Delete removes key from the index, if present. Like Mutator.Delete,
// underflow is not resolved: an emptied leaf stays in the tree, the
// root is never collapsed, and sibling redistribution/merge is not
// attempted.
func (m *IndexMutator) Delete(root uint32, key []byte) (uint32, error) {
	leafPage, leaf, path, err := m.descendToLeaf(root, key)
	if err != nil {
		return 0, err
	}
	idx := sort.Search(len(leaf.leafRows), func(i int) bool { return bytes.Compare(leaf.leafRows[i].key, key) >= 0 })
	if idx >= len(leaf.leafRows) || !bytes.Equal(leaf.leafRows[idx].key, key) {
		return root, nil
	}
	leaf.leafRows = append(leaf.leafRows[:idx], leaf.leafRows[idx+1:]...)

	if err := writeIndexNode(m.src, leafPage, m.usable, leaf, m.allocate, m.release); err != nil {
		return 0, err
	}

	for len(path) == 0 {
		rootNode, err := readIndexNode(m.src, root, m.usable)
		if err != nil {
			return 0, err
		}
		if rootNode.isLeaf || len(rootNode.interior) > 0 {
			break
		}
		child := rootNode.rightChild
		childNode, err := readIndexNode(m.src, child, m.usable)
		if err != nil {
			return 0, err
		}
		if err := writeIndexNode(m.src, root, m.usable, childNode, m.allocate, m.release); err != nil {
			return 0, err
		}
		if err := m.release(child); err != nil {
			return 0, err
		}
		break
	}

	return root, nil
}

func (m *IndexMutator) writeBackWithSplits(root, page uint32, n *indexNode, path []indexPathFrame) (uint32, error) {
	pageSize := m.src.PageSize()
	if encodedIndexNodeSize(n, m.usable) <= pageSize {
		if err := writeIndexNode(m.src, page, m.usable, n, m.allocate, m.release); err != nil {
			return 0, err
		}
		return root, nil
	}

	leftMax, rightPage, err := m.splitNode(page, n)
	if err != nil {
		return 0, err
	}

	for i := len(path) - 1; i >= 0; i-- {
		parentPage := path[i].page
		parent, err := readIndexNode(m.src, parentPage, m.usable)
		if err != nil {
			return 0, err
		}
		applyIndexSplitToParent(parent, page, leftMax, rightPage)

		if encodedIndexNodeSize(parent, m.usable) <= pageSize {
			if err := writeIndexNode(m.src, parentPage, m.usable, parent, m.allocate, m.release); err != nil {
				return 0, err
			}
			return root, nil
		}

		leftMax, rightPage, err = m.splitNode(parentPage, parent)
		if err != nil {
			return 0, err
		}
		page = parentPage
	}

	newRoot, err := m.allocate()
	if err != nil {
		return 0, err
	}
	rootNode := &indexNode{
		isLeaf:     false,
		rightChild: rightPage,
		interior:   []indexInteriorEntry{{child: root, key: leftMax}},
	}
	if err := writeIndexNode(m.src, newRoot, m.usable, rootNode, m.allocate, m.release); err != nil {
		return 0, err
	}
	return newRoot, nil
}

func (m *IndexMutator) splitNode(page uint32, n *indexNode) (leftMax []byte, rightPage uint32, err error) {
	rightPage, err = m.allocate()
	if err != nil {
		return nil, 0, err
	}

	if n.isLeaf {
		mid := len(n.leafRows) / 2
		left := &indexNode{isLeaf: true, leafRows: n.leafRows[:mid]}
		right := &indexNode{isLeaf: true, leafRows: n.leafRows[mid:]}
		if err := writeIndexNode(m.src, page, m.usable, left, m.allocate, m.release); err != nil {
			return nil, 0, err
		}
		if err := writeIndexNode(m.src, rightPage, m.usable, right, m.allocate, m.release); err != nil {
			return nil, 0, err
		}
		return left.leafRows[len(left.leafRows)-1].key, rightPage, nil
	}

	mid := len(n.interior) / 2
	promoted := n.interior[mid]
	left := &indexNode{isLeaf: false, interior: n.interior[:mid], rightChild: promoted.child}
	right := &indexNode{isLeaf: false, interior: n.interior[mid+1:], rightChild: n.rightChild}
	if err := writeIndexNode(m.src, page, m.usable, left, m.allocate, m.release); err != nil {
		return nil, 0, err
	}
	if err := writeIndexNode(m.src, rightPage, m.usable, right, m.allocate, m.release); err != nil {
		return nil, 0, err
	}
	return promoted.key, rightPage, nil
}

func applyIndexSplitToParent(parent *indexNode, oldChild uint32, leftMax []byte, rightPage uint32) {
	for i, e := range parent.interior {
		if e.child == oldChild {
			originalBound := e.key
			parent.interior[i].key = leftMax
			parent.interior = append(parent.interior, indexInteriorEntry{})
			copy(parent.interior[i+2:], parent.interior[i+1:])
			parent.interior[i+1] = indexInteriorEntry{child: rightPage, key: originalBound}
			return
		}
	}
	parent.interior = append(parent.interior, indexInteriorEntry{child: oldChild, key: leftMax})
	parent.rightChild = rightPage
}

// writeIndexNode serializes n into pageNo, spilling any key exceeding
// the local payload threshold into an overflow chain exactly like
// writeNode does for table cells.
func writeIndexNode(src pagesource.Writable, pageNo uint32, usable int, n *indexNode, alloc func() (uint32, error), release func(uint32) error) error {
	pageSize := src.PageSize()
	buf := make([]byte, pageSize)
	headerOff := headerOffsetFor(pageNo)

	hdrSize := 8
	typ := byte(btreepage.TypeLeafIndex)
	if !n.isLeaf {
		hdrSize = 12
		typ = byte(btreepage.TypeInteriorIndex)
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
			local, hasOverflow := localPayloadBudget(len(row.key), usable)

			var overflowPage uint32
			localBytes := row.key[:local]
			if hasOverflow {
				p, err := alloc()
				if err != nil {
					return err
				}
				overflowPage = p
				if err := writeOverflowChain(src, p, row.key[local:], alloc); err != nil {
					return err
				}
			}

			var tmp [varint.MaxLen]byte
			n1 := varint.PutVarint(tmp[:], uint64(len(row.key)))
			cellLen := n1 + len(localBytes)
			if hasOverflow {
				cellLen += 4
			}
			contentEnd -= cellLen
			if contentEnd < ptrArrayOff+cellCount*2 {
				return ErrCorrupt
			}
			pos := contentEnd
			copy(buf[pos:], tmp[:n1])
			pos += n1
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
			local, hasOverflow := localPayloadBudget(len(e.key), usable)

			var overflowPage uint32
			localBytes := e.key[:local]
			if hasOverflow {
				p, err := alloc()
				if err != nil {
					return err
				}
				overflowPage = p
				if err := writeOverflowChain(src, p, e.key[local:], alloc); err != nil {
					return err
				}
			}

			var tmp [varint.MaxLen]byte
			n1 := varint.PutVarint(tmp[:], uint64(len(e.key)))
			cellLen := 4 + n1 + len(localBytes)
			if hasOverflow {
				cellLen += 4
			}
			contentEnd -= cellLen
			if contentEnd < ptrArrayOff+cellCount*2 {
				return ErrCorrupt
			}
			pos := contentEnd
			binary.BigEndian.PutUint32(buf[pos:pos+4], e.child)
			pos += 4
			copy(buf[pos:], tmp[:n1])
			pos += n1
			copy(buf[pos:], localBytes)
			pos += len(localBytes)
			if hasOverflow {
				binary.BigEndian.PutUint32(buf[pos:pos+4], overflowPage)
			}
			cells = append(cells, encoded{off: contentEnd, len: cellLen})
		}
	}

	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
	for i, c := range cells {
		binary.BigEndian.PutUint16(buf[ptrArrayOff+i*2:ptrArrayOff+i*2+2], uint16(c.off))
	}

	binary.BigEndian.PutUint16(buf[headerOff+1:headerOff+3], 0)
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

	_ = release
	return src.WritePage(pageNo, buf)
}

func encodedIndexNodeSize(n *indexNode, usable int) int {
	hdrSize := 8
	if !n.isLeaf {
		hdrSize = 12
	}
	size := hdrSize
	if n.isLeaf {
		for _, row := range n.leafRows {
			local, hasOverflow := localPayloadBudget(len(row.key), usable)
			size += 2
			size += varint.Len(uint64(len(row.key)))
			size += local
			if hasOverflow {
				size += 4
			}
		}
	} else {
		for _, e := range n.interior {
			local, hasOverflow := localPayloadBudget(len(e.key), usable)
			size += 2 + 4
			size += varint.Len(uint64(len(e.key)))
			size += local
			if hasOverflow {
				size += 4
			}
		}
	}
	return size
}
