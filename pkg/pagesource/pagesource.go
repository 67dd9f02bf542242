// Package pagesource provides the pluggable page-storage abstraction that
// every layer above it (b-tree, journal, schema) reads and writes through,
// per spec section 4.1. A PageSource never interprets page contents; it
// only moves fixed-size buffers by page number.
package pagesource

import "errors"

// ErrOutOfRange is returned when a page number is outside [1, PageCount()].
var ErrOutOfRange = errors.New("pagesource: page number out of range")

// ErrReadOnly is returned when a write is attempted on a read-only source.
var ErrReadOnly = errors.New("pagesource: source is read-only")

// PageSource is the read side of the abstraction. Page numbers are
// 1-based; page 1 holds the 100-byte database header at its start.
type PageSource interface {
	// PageCount returns the number of pages currently in the source.
	PageCount() uint32

	// PageSize returns the fixed page size in bytes.
	PageSize() int

	// GetPage returns a borrowed view of page n. The caller must not
	// retain the slice past the next mutating call on the source.
	GetPage(n uint32) ([]byte, error)

	// ReadPage copies page n's contents into into, which must be at
	// least PageSize() bytes long.
	ReadPage(n uint32, into []byte) error

	// Invalidate drops any cached copy of page n, forcing the next read
	// to go back to the underlying layer.
	Invalidate(n uint32)
}

// Writable is implemented by page sources that accept mutation.
type Writable interface {
	PageSource

	// WritePage replaces page n's contents with bytes, which must be
	// exactly PageSize() bytes long.
	WritePage(n uint32, bytes []byte) error

	// Flush durably persists all writes made so far.
	Flush() error
}
