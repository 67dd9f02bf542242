package pagesource

import "sharc/pkg/transform"

// Decrypting wraps a base source whose physical pages are
// UsablePageSize + transform overhead bytes, presenting plaintext pages
// of the logical page size to callers above it.
type Decrypting struct {
	base      PageSource
	tr        transform.PageTransform
	plainSize int
}

// NewDecrypting wraps base, which stores pages transformed by tr, and
// presents plainSize-byte plaintext pages to callers.
func NewDecrypting(base PageSource, tr transform.PageTransform, plainSize int) *Decrypting {
	return &Decrypting{base: base, tr: tr, plainSize: plainSize}
}

func (d *Decrypting) PageCount() uint32 { return d.base.PageCount() }
func (d *Decrypting) PageSize() int     { return d.plainSize }

func (d *Decrypting) GetPage(n uint32) ([]byte, error) {
	cipher, err := d.base.GetPage(n)
	if err != nil {
		return nil, err
	}
	plain := make([]byte, d.plainSize)
	if err := d.tr.TransformRead(cipher, plain, n); err != nil {
		return nil, err
	}
	return plain, nil
}

func (d *Decrypting) ReadPage(n uint32, into []byte) error {
	cipher, err := d.base.GetPage(n)
	if err != nil {
		return err
	}
	return d.tr.TransformRead(cipher, into, n)
}

func (d *Decrypting) Invalidate(n uint32) { d.base.Invalidate(n) }

func (d *Decrypting) WritePage(n uint32, bytes []byte) error {
	w, ok := d.base.(Writable)
	if !ok {
		return ErrReadOnly
	}
	cipherSize := d.tr.TransformedPageSize(len(bytes))
	cipher := make([]byte, cipherSize)
	if err := d.tr.TransformWrite(bytes, cipher, n); err != nil {
		return err
	}
	return w.WritePage(n, cipher)
}

func (d *Decrypting) Flush() error {
	w, ok := d.base.(Writable)
	if !ok {
		return ErrReadOnly
	}
	return w.Flush()
}
