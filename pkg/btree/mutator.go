// Package btree implements the table b-tree described in spec section
// 4: page layout, cursors, and the insert/update/delete mutator with
// split and merge handling.
package btree

import (
	"sort"

	"sharc/pkg/pagesource"
)

// Mutator applies insert/update/delete operations to a table b-tree,
// allocating and freeing pages through freelist as needed.
type Mutator struct {
	src      pagesource.Writable
	usable   int
	freelist *Freelist
	nextPage uint32 // one past the highest page currently in use
}

// NewMutator wraps src. nextPage is the page number to hand out when
// freelist is empty and the file must grow.
func NewMutator(src pagesource.Writable, usable int, freelist *Freelist, nextPage uint32) *Mutator {
	return &Mutator{src: src, usable: usable, freelist: freelist, nextPage: nextPage}
}

// NextPage reports the next page number that would be used to grow the
// file, for writing back into the database header on commit.
func (m *Mutator) NextPage() uint32 { return m.nextPage }

// AllocatePage hands out a free page from the freelist, or grows the
// file, for callers outside this package that need a fresh page (the
// schema writer allocating a new table's root, for instance).
func (m *Mutator) AllocatePage() (uint32, error) { return m.allocate() }

// WriteEmptyLeaf initializes page as a freshly allocated, empty leaf
// table page — the starting state of a brand-new table's b-tree.
func (m *Mutator) WriteEmptyLeaf(page uint32) error {
	return writeNode(m.src, page, m.usable, &node{isLeaf: true}, m.allocate, m.release)
}

func (m *Mutator) allocate() (uint32, error) {
	if p, ok, err := m.freelist.Pop(); err != nil {
		return 0, err
	} else if ok {
		return p, nil
	}
	p := m.nextPage
	m.nextPage++
	return p, nil
}

func (m *Mutator) release(page uint32) error {
	return m.freelist.Push(page)
}

// pathFrame records one step taken while descending to the leaf that
// will receive a mutation: the interior page visited and the index of
// the child pointer followed (len(interior) means rightChild).
type pathFrame struct {
	page uint32
	idx  int
}

func (m *Mutator) descendToLeaf(root uint32, rowid int64) (leafPage uint32, leaf *node, path []pathFrame, err error) {
	page := root
	for {
		n, err := readNode(m.src, page, m.usable)
		if err != nil {
			return 0, nil, nil, err
		}
		if n.isLeaf {
			return page, n, path, nil
		}
		idx := sort.Search(len(n.interior), func(i int) bool { return n.interior[i].rowid >= rowid })
		path = append(path, pathFrame{page: page, idx: idx})
		if idx < len(n.interior) {
			page = n.interior[idx].child
		} else {
			page = n.rightChild
		}
	}
}

// Insert adds a new row, or overwrites an existing row with the same
// rowid (matching SQLite's REPLACE-into-rowid semantics for an
// existing key within one leaf). It returns the (possibly new) root
// page number.
func (m *Mutator) Insert(root uint32, rowid int64, payload []byte) (uint32, error) {
	leafPage, leaf, path, err := m.descendToLeaf(root, rowid)
	if err != nil {
		return 0, err
	}

	idx := sort.Search(len(leaf.leafRows), func(i int) bool { return leaf.leafRows[i].rowid >= rowid })
	if idx < len(leaf.leafRows) && leaf.leafRows[idx].rowid == rowid {
		leaf.leafRows[idx].payload = payload
	} else {
		leaf.leafRows = append(leaf.leafRows, leafRow{})
		copy(leaf.leafRows[idx+1:], leaf.leafRows[idx:])
		leaf.leafRows[idx] = leafRow{rowid: rowid, payload: payload}
	}

	return m.writeBackWithSplits(root, leafPage, leaf, path)
}

// Delete removes the row with the given rowid, if present, and
// returns the root page number, which Delete never changes. Underflow
// is not resolved: an emptied leaf stays in the tree, interior entries
// are never removed, and redistribution/merge across sibling leaves is
// not attempted, so pages may run under the target fill factor.
func (m *Mutator) Delete(root uint32, rowid int64) (uint32, error) {
	leafPage, leaf, path, err := m.descendToLeaf(root, rowid)
	if err != nil {
		return 0, err
	}
	idx := sort.Search(len(leaf.leafRows), func(i int) bool { return leaf.leafRows[i].rowid >= rowid })
	if idx >= len(leaf.leafRows) || leaf.leafRows[idx].rowid != rowid {
		return root, nil
	}
	leaf.leafRows = append(leaf.leafRows[:idx], leaf.leafRows[idx+1:]...)

	if err := writeNode(m.src, leafPage, m.usable, leaf, m.allocate, m.release); err != nil {
		return 0, err
	}

	// Root collapse check: this loop only runs when the leaf just
	// written is the root itself (path is empty), in which case the
	// root is a leaf and is left as it is. An interior root is never
	// collapsed here, since Delete never removes interior entries.
	for len(path) == 0 {
		rootNode, err := readNode(m.src, root, m.usable)
		if err != nil {
			return 0, err
		}
		if rootNode.isLeaf || len(rootNode.interior) > 0 {
			break
		}
		child := rootNode.rightChild
		childNode, err := readNode(m.src, child, m.usable)
		if err != nil {
			return 0, err
		}
		if err := writeNode(m.src, root, m.usable, childNode, m.allocate, m.release); err != nil {
			return 0, err
		}
		if err := m.release(child); err != nil {
			return 0, err
		}
		break
	}

	return root, nil
}

// writeBackWithSplits serializes leaf, splitting it (and propagating
// the split up through path) as many times as needed to keep every
// page within the usable size budget. It returns the possibly-new
// root page number.
func (m *Mutator) writeBackWithSplits(root, page uint32, n *node, path []pathFrame) (uint32, error) {
	pageSize := m.src.PageSize()
	if encodedNodeSize(n, m.usable) <= pageSize {
		if err := writeNode(m.src, page, m.usable, n, m.allocate, m.release); err != nil {
			return 0, err
		}
		return root, nil
	}

	leftMax, rightPage, err := m.splitNode(page, n)
	if err != nil {
		return 0, err
	}

	// Propagate upward.
	for i := len(path) - 1; i >= 0; i-- {
		parentPage := path[i].page
		parent, err := readNode(m.src, parentPage, m.usable)
		if err != nil {
			return 0, err
		}
		applySplitToParent(parent, page, leftMax, rightPage)

		if encodedNodeSize(parent, m.usable) <= pageSize {
			if err := writeNode(m.src, parentPage, m.usable, parent, m.allocate, m.release); err != nil {
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

	// The root itself split: allocate a brand new root page. The
	// original root page keeps its existing number and becomes the
	// new root's left child; rightPage (already allocated above)
	// holds the split-off half.
	newRoot, err := m.allocate()
	if err != nil {
		return 0, err
	}
	rootNode := &node{
		isLeaf:     false,
		rightChild: rightPage,
		interior:   []interiorEntry{{child: root, rowid: leftMax}},
	}
	if err := writeNode(m.src, newRoot, m.usable, rootNode, m.allocate, m.release); err != nil {
		return 0, err
	}
	return newRoot, nil
}

// splitNode divides an overflowing node's rows/entries in half by
// count, keeping the left half on page (rewriting it in place) and
// writing the right half to a freshly allocated page. It returns the
// maximum key reachable through the left half and the right half's
// new page number.
func (m *Mutator) splitNode(page uint32, n *node) (leftMax int64, rightPage uint32, err error) {
	rightPage, err = m.allocate()
	if err != nil {
		return 0, 0, err
	}

	if n.isLeaf {
		mid := len(n.leafRows) / 2
		left := &node{isLeaf: true, leafRows: n.leafRows[:mid]}
		right := &node{isLeaf: true, leafRows: n.leafRows[mid:]}
		if err := writeNode(m.src, page, m.usable, left, m.allocate, m.release); err != nil {
			return 0, 0, err
		}
		if err := writeNode(m.src, rightPage, m.usable, right, m.allocate, m.release); err != nil {
			return 0, 0, err
		}
		return left.leafRows[len(left.leafRows)-1].rowid, rightPage, nil
	}

	mid := len(n.interior) / 2
	promoted := n.interior[mid]
	left := &node{isLeaf: false, interior: n.interior[:mid], rightChild: promoted.child}
	right := &node{isLeaf: false, interior: n.interior[mid+1:], rightChild: n.rightChild}
	if err := writeNode(m.src, page, m.usable, left, m.allocate, m.release); err != nil {
		return 0, 0, err
	}
	if err := writeNode(m.src, rightPage, m.usable, right, m.allocate, m.release); err != nil {
		return 0, 0, err
	}
	return promoted.rowid, rightPage, nil
}

// applySplitToParent rewires parent so that oldChild's former single
// pointer is replaced by two: oldChild itself (now holding only the
// left half, bounded by leftMax) and rightPage (holding the right
// half, preserving whatever bound oldChild previously had, or
// remaining the unbounded rightChild).
func applySplitToParent(parent *node, oldChild uint32, leftMax int64, rightPage uint32) {
	for i, e := range parent.interior {
		if e.child == oldChild {
			originalBound := e.rowid
			parent.interior[i].rowid = leftMax
			parent.interior = append(parent.interior, interiorEntry{})
			copy(parent.interior[i+2:], parent.interior[i+1:])
			parent.interior[i+1] = interiorEntry{child: rightPage, rowid: originalBound}
			return
		}
	}
	// oldChild was the rightChild: left keeps oldChild's page number
	// as a newly bounded entry, right becomes the new rightChild.
	parent.interior = append(parent.interior, interiorEntry{child: oldChild, rowid: leftMax})
	parent.rightChild = rightPage
}
