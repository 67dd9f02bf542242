package btree

import (
	"errors"
	"sort"

	"sharc/pkg/pagesource"
)

// ErrNotFound is returned by Seek when no row with the requested rowid
// exists.
var ErrNotFound = errors.New("btree: rowid not found")

type frame struct {
	page uint32
	idx  int // index into the interior node's (entries + rightChild) children, or the leaf cell index
}

// Cursor walks a table (rowid-keyed) b-tree in ascending key order. Its
// state is an explicit stack of (page, index) frames, per spec
// section 4.6.
type Cursor struct {
	src    pagesource.PageSource
	root   uint32
	usable int

	stack   []frame
	leaf    *node
	leafIdx int
	valid   bool
}

// NewCursor returns a cursor over the table b-tree rooted at root.
func NewCursor(src pagesource.PageSource, root uint32, usable int) *Cursor {
	return &Cursor{src: src, root: root, usable: usable}
}

// Reset returns the cursor to its pre-first-row state.
func (c *Cursor) Reset() {
	c.stack = c.stack[:0]
	c.leaf = nil
	c.leafIdx = 0
	c.valid = false
}

// First positions the cursor at the leftmost leaf cell.
func (c *Cursor) First() error {
	c.Reset()
	page := c.root
	for {
		n, err := readNode(c.src, page, c.usable)
		if err != nil {
			return err
		}
		if n.isLeaf {
			c.leaf = n
			c.leafIdx = 0
			c.valid = len(n.leafRows) > 0
			return nil
		}
		c.stack = append(c.stack, frame{page: page, idx: 0})
		if len(n.interior) > 0 {
			page = n.interior[0].child
		} else {
			page = n.rightChild
		}
	}
}

// Next advances depth-first in key order: emit cells in order, and on
// exhausting a leaf, ascend and step to the next sibling subtree.
func (c *Cursor) Next() error {
	if !c.valid {
		return nil
	}
	c.leafIdx++
	if c.leafIdx < len(c.leaf.leafRows) {
		return nil
	}

	for len(c.stack) > 0 {
		top := &c.stack[len(c.stack)-1]
		parent, err := readNode(c.src, top.page, c.usable)
		if err != nil {
			return err
		}
		top.idx++
		var childPage uint32
		if top.idx < len(parent.interior) {
			childPage = parent.interior[top.idx].child
		} else if top.idx == len(parent.interior) {
			childPage = parent.rightChild
		} else {
			c.stack = c.stack[:len(c.stack)-1]
			continue
		}

		page := childPage
		for {
			n, err := readNode(c.src, page, c.usable)
			if err != nil {
				return err
			}
			if n.isLeaf {
				if len(n.leafRows) == 0 {
					break
				}
				c.leaf = n
				c.leafIdx = 0
				c.valid = true
				return nil
			}
			c.stack = append(c.stack, frame{page: page, idx: 0})
			if len(n.interior) > 0 {
				page = n.interior[0].child
			} else {
				page = n.rightChild
			}
		}
	}
	c.valid = false
	return nil
}

// Valid reports whether the cursor is positioned at a row.
func (c *Cursor) Valid() bool { return c.valid }

// Rowid returns the current row's key.
func (c *Cursor) Rowid() int64 { return c.leaf.leafRows[c.leafIdx].rowid }

// Payload returns the current row's full logical payload, a borrowed
// slice already reassembled across any overflow chain.
func (c *Cursor) Payload() []byte { return c.leaf.leafRows[c.leafIdx].payload }

// Seek performs binary search on each interior and leaf level to
// position the cursor at rowid, or returns ErrNotFound.
func (c *Cursor) Seek(rowid int64) error {
	c.Reset()
	page := c.root
	for {
		n, err := readNode(c.src, page, c.usable)
		if err != nil {
			return err
		}
		if n.isLeaf {
			idx := sort.Search(len(n.leafRows), func(i int) bool { return n.leafRows[i].rowid >= rowid })
			if idx >= len(n.leafRows) || n.leafRows[idx].rowid != rowid {
				c.leaf = n
				c.leafIdx = idx
				c.valid = false
				return ErrNotFound
			}
			c.leaf = n
			c.leafIdx = idx
			c.valid = true
			return nil
		}

		idx := sort.Search(len(n.interior), func(i int) bool { return n.interior[i].rowid >= rowid })
		c.stack = append(c.stack, frame{page: page, idx: idx})
		if idx < len(n.interior) {
			page = n.interior[idx].child
		} else {
			page = n.rightChild
		}
	}
}
