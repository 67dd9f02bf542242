//go:build unix || darwin || linux || freebsd || openbsd || netbsd

package pagesource

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// File is a page source backed by a memory-mapped database file, shared
// read-write with any other process holding the same file open.
type File struct {
	f        *os.File
	data     []byte
	pageSize int
	readOnly bool
}

// OpenFile opens or creates path as a file-backed page source with the
// given page size. If the file is smaller than one page, it is extended.
func OpenFile(path string, pageSize int, readOnly bool) (*File, error) {
	flag := os.O_RDWR | os.O_CREATE
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0644)
	if err != nil {
		return nil, err
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	size := st.Size()
	if !readOnly && size < int64(pageSize) {
		if err := f.Truncate(int64(pageSize)); err != nil {
			f.Close()
			return nil, err
		}
		size = int64(pageSize)
	}
	if size == 0 {
		f.Close()
		return nil, os.ErrInvalid
	}

	prot := syscall.PROT_READ
	if !readOnly {
		prot |= syscall.PROT_WRITE
	}
	data, err := syscall.Mmap(int(f.Fd()), 0, int(size), prot, syscall.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, err
	}

	return &File{f: f, data: data, pageSize: pageSize, readOnly: readOnly}, nil
}

func (fs *File) PageCount() uint32 { return uint32(len(fs.data) / fs.pageSize) }
func (fs *File) PageSize() int     { return fs.pageSize }

func (fs *File) offset(n uint32) (int, int, error) {
	if n == 0 || n > fs.PageCount() {
		return 0, 0, ErrOutOfRange
	}
	start := int(n-1) * fs.pageSize
	return start, start + fs.pageSize, nil
}

func (fs *File) GetPage(n uint32) ([]byte, error) {
	start, end, err := fs.offset(n)
	if err != nil {
		return nil, err
	}
	return fs.data[start:end], nil
}

func (fs *File) ReadPage(n uint32, into []byte) error {
	p, err := fs.GetPage(n)
	if err != nil {
		return err
	}
	copy(into, p)
	return nil
}

// Invalidate is a no-op for the mmap-backed source: the kernel's page
// cache is the single source of truth, so there is nothing to evict.
func (fs *File) Invalidate(uint32) {}

func (fs *File) WritePage(n uint32, bytes []byte) error {
	if fs.readOnly {
		return ErrReadOnly
	}
	start, end, err := fs.offset(n)
	if err != nil {
		return err
	}
	copy(fs.data[start:end], bytes)
	return nil
}

// Grow extends the backing file and remaps it to hold at least n pages.
func (fs *File) Grow(n uint32) error {
	want := int64(n) * int64(fs.pageSize)
	if want <= int64(len(fs.data)) {
		return nil
	}
	if err := unix.Msync(fs.data, unix.MS_SYNC); err != nil {
		return err
	}
	if err := syscall.Munmap(fs.data); err != nil {
		return err
	}
	if err := fs.f.Truncate(want); err != nil {
		return err
	}
	prot := syscall.PROT_READ
	if !fs.readOnly {
		prot |= syscall.PROT_WRITE
	}
	data, err := syscall.Mmap(int(fs.f.Fd()), 0, int(want), prot, syscall.MAP_SHARED)
	if err != nil {
		return err
	}
	fs.data = data
	return nil
}

// Flush durably syncs the mapped region to disk via msync.
func (fs *File) Flush() error {
	if fs.readOnly {
		return ErrReadOnly
	}
	return unix.Msync(fs.data, unix.MS_SYNC)
}

// Close unmaps and closes the underlying file.
func (fs *File) Close() error {
	var firstErr error
	if fs.data != nil {
		if err := syscall.Munmap(fs.data); err != nil && firstErr == nil {
			firstErr = err
		}
		fs.data = nil
	}
	if fs.f != nil {
		if err := fs.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		fs.f = nil
	}
	return firstErr
}
