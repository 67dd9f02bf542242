package pagesource

// Memory is a page source backed entirely by an owned in-process byte
// region, used for in-memory databases and as the building block under
// File's dirty-page staging in tests.
type Memory struct {
	pageSize int
	pages    [][]byte
	readOnly bool
}

// NewMemory returns an empty Memory source with the given fixed page size.
func NewMemory(pageSize int) *Memory {
	return &Memory{pageSize: pageSize}
}

// NewMemoryFromBytes builds a Memory source from an existing flat buffer,
// slicing it into pageSize-sized pages. len(buf) must be a multiple of
// pageSize.
func NewMemoryFromBytes(buf []byte, pageSize int) *Memory {
	n := len(buf) / pageSize
	pages := make([][]byte, n)
	for i := 0; i < n; i++ {
		pages[i] = buf[i*pageSize : (i+1)*pageSize]
	}
	return &Memory{pageSize: pageSize, pages: pages}
}

func (m *Memory) PageCount() uint32 { return uint32(len(m.pages)) }
func (m *Memory) PageSize() int     { return m.pageSize }

func (m *Memory) GetPage(n uint32) ([]byte, error) {
	if n == 0 || n > m.PageCount() {
		return nil, ErrOutOfRange
	}
	return m.pages[n-1], nil
}

func (m *Memory) ReadPage(n uint32, into []byte) error {
	p, err := m.GetPage(n)
	if err != nil {
		return err
	}
	copy(into, p)
	return nil
}

func (m *Memory) Invalidate(uint32) {}

func (m *Memory) WritePage(n uint32, bytes []byte) error {
	if m.readOnly {
		return ErrReadOnly
	}
	for n > m.PageCount() {
		m.pages = append(m.pages, make([]byte, m.pageSize))
	}
	copy(m.pages[n-1], bytes)
	return nil
}

func (m *Memory) Flush() error { return nil }
