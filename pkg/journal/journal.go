// Package journal implements the rollback journal described in spec
// section 4.9: on commit, every dirty page's pre-image is copied from
// the base file into a journal before any base page is overwritten,
// so a crash mid-commit can be undone by replaying the journal back
// onto the base. This is the crash-recovery half of the write path
// that pairs with pkg/pagesource.Shadow on the in-memory side.
package journal

import (
	"encoding/binary"
	"errors"
	"os"

	"sharc/pkg/pagesource"
)

// Magic is the fixed 8-byte journal file identifier, per spec section
// 6.1.
const Magic = "SharcJnl"

// headerSize is the fixed on-disk header layout from spec section 6.1:
// <magic:8>\0<page_size:4>\0<count:4>\0 — each fixed-width field is
// followed by a single NUL separator byte.
const headerSize = 8 + 1 + 4 + 1 + 4 + 1

var (
	ErrBadMagic      = errors.New("journal: bad magic string")
	ErrTruncated     = errors.New("journal: truncated file")
	ErrWrongPageSize = errors.New("journal: page size does not match target")
)

// Write captures the pre-image of every page in pages (read from base
// before any of them are overwritten), fsyncs the journal, and returns
// the open file so the caller can delete it once the base flush and
// its own fsync complete.
//
// pages must already be in ascending page-number order; the caller
// (the commit path) is responsible for that ordering, matching spec
// section 9's "ascending page-number order" invariant for the later
// base-write step.
func Write(path string, base pagesource.PageSource, pages []uint32) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}

	pageSize := base.PageSize()
	header := make([]byte, headerSize)
	copy(header[0:8], Magic)
	header[8] = 0
	binary.BigEndian.PutUint32(header[9:13], uint32(pageSize))
	header[13] = 0
	binary.BigEndian.PutUint32(header[14:18], uint32(len(pages)))
	header[18] = 0
	if _, err := f.Write(header); err != nil {
		f.Close()
		return nil, err
	}

	record := make([]byte, 4+pageSize)
	for _, pn := range pages {
		preImage, err := base.GetPage(pn)
		if err != nil {
			f.Close()
			return nil, err
		}
		binary.BigEndian.PutUint32(record[0:4], pn)
		copy(record[4:], preImage)
		if _, err := f.Write(record); err != nil {
			f.Close()
			return nil, err
		}
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// Entry is one decoded journal record: a page number and its
// pre-commit image.
type Entry struct {
	PageNumber uint32
	PreImage   []byte
}

// Read parses a journal file in full, returning its page size and
// every recorded entry, for crash recovery.
func Read(path string) (pageSize int, entries []Entry, err error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return 0, nil, err
	}
	if len(buf) < headerSize {
		return 0, nil, ErrTruncated
	}
	if string(buf[0:8]) != Magic {
		return 0, nil, ErrBadMagic
	}
	pageSize = int(binary.BigEndian.Uint32(buf[9:13]))
	count := int(binary.BigEndian.Uint32(buf[14:18]))

	recordSize := 4 + pageSize
	pos := headerSize
	entries = make([]Entry, 0, count)
	for i := 0; i < count; i++ {
		if pos+recordSize > len(buf) {
			return 0, nil, ErrTruncated
		}
		pn := binary.BigEndian.Uint32(buf[pos : pos+4])
		pre := make([]byte, pageSize)
		copy(pre, buf[pos+4:pos+recordSize])
		entries = append(entries, Entry{PageNumber: pn, PreImage: pre})
		pos += recordSize
	}
	return pageSize, entries, nil
}

// Recover restores every entry's pre-image onto base, fsyncs base,
// and deletes the journal file at path. Called on open when a
// leftover journal is found, per spec section 4.9's crash-recovery
// rule: either the whole commit lands (journal already deleted) or
// the base is rolled all the way back to its pre-commit state.
func Recover(path string, base pagesource.Writable) error {
	pageSize, entries, err := Read(path)
	if err != nil {
		return err
	}
	if pageSize != base.PageSize() {
		return ErrWrongPageSize
	}
	for _, e := range entries {
		if err := base.WritePage(e.PageNumber, e.PreImage); err != nil {
			return err
		}
	}
	if err := base.Flush(); err != nil {
		return err
	}
	return os.Remove(path)
}

// Delete removes the journal file at path, synchronously, as the
// final step of a successful commit.
func Delete(path string) error {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Exists reports whether a journal file is present at path, so the
// caller can decide whether Recover needs to run on open.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
