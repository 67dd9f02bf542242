package pagesource

import "container/list"

// Cached wraps a base PageSource with an LRU cache of decoded page
// buffers, matching the teacher's inline pager cache shape (container/list
// plus a map) but generalized to sit over any base source.
type Cached struct {
	base     PageSource
	capacity int
	entries  map[uint32]*list.Element
	lru      *list.List // front = most recently used
}

type cacheEntry struct {
	page uint32
	data []byte
}

// NewCached wraps base with an LRU cache holding up to capacity pages.
func NewCached(base PageSource, capacity int) *Cached {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Cached{
		base:     base,
		capacity: capacity,
		entries:  make(map[uint32]*list.Element),
		lru:      list.New(),
	}
}

func (c *Cached) PageCount() uint32 { return c.base.PageCount() }
func (c *Cached) PageSize() int     { return c.base.PageSize() }

func (c *Cached) GetPage(n uint32) ([]byte, error) {
	if el, ok := c.entries[n]; ok {
		c.lru.MoveToFront(el)
		return el.Value.(*cacheEntry).data, nil
	}
	data, err := c.base.GetPage(n)
	if err != nil {
		return nil, err
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	c.insert(n, owned)
	return owned, nil
}

func (c *Cached) ReadPage(n uint32, into []byte) error {
	data, err := c.GetPage(n)
	if err != nil {
		return err
	}
	copy(into, data)
	return nil
}

func (c *Cached) Invalidate(n uint32) {
	if el, ok := c.entries[n]; ok {
		c.lru.Remove(el)
		delete(c.entries, n)
	}
	c.base.Invalidate(n)
}

func (c *Cached) insert(n uint32, data []byte) {
	el := c.lru.PushFront(&cacheEntry{page: n, data: data})
	c.entries[n] = el
	for c.lru.Len() > c.capacity {
		back := c.lru.Back()
		if back == nil {
			break
		}
		c.lru.Remove(back)
		delete(c.entries, back.Value.(*cacheEntry).page)
	}
}

// WritePage invalidates the cached copy (if the base is writable) and
// writes through.
func (c *Cached) WritePage(n uint32, bytes []byte) error {
	w, ok := c.base.(Writable)
	if !ok {
		return ErrReadOnly
	}
	if err := w.WritePage(n, bytes); err != nil {
		return err
	}
	c.Invalidate(n)
	return nil
}

// Flush delegates to the base source, if writable.
func (c *Cached) Flush() error {
	w, ok := c.base.(Writable)
	if !ok {
		return ErrReadOnly
	}
	return w.Flush()
}
