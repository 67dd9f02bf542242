// Package transform implements the page transform layer from spec
// section 4.10: a pluggable encode/decode step applied to whole page
// buffers on their way to and from a page source, used for at-rest
// encryption.
package transform

import "errors"

// ErrVerifyFailed is returned when a transform's authentication check
// fails on read, a fatal condition per spec section 4.10 that must
// surface as an open error, never a silent corruption.
var ErrVerifyFailed = errors.New("transform: authentication verification failed")

// PageTransform converts between a page's plaintext representation and
// its on-disk ("cipher") representation. The page number feeds the
// transform as a nonce-diversifier so identical plaintext pages never
// produce identical ciphertext.
type PageTransform interface {
	// TransformedPageSize returns the on-disk size of a page whose
	// plaintext is plainSize bytes.
	TransformedPageSize(plainSize int) int

	// TransformRead decodes cipher into outPlain for the given page
	// number. outPlain must be at least the plaintext page size long.
	TransformRead(cipher []byte, outPlain []byte, pageNumber uint32) error

	// TransformWrite encodes plain into outCipher for the given page
	// number. outCipher must be at least TransformedPageSize(len(plain))
	// bytes long.
	TransformWrite(plain []byte, outCipher []byte, pageNumber uint32) error
}

// Identity is the no-op transform: cipher and plaintext are identical.
type Identity struct{}

func (Identity) TransformedPageSize(plainSize int) int { return plainSize }

func (Identity) TransformRead(cipher []byte, outPlain []byte, _ uint32) error {
	copy(outPlain, cipher)
	return nil
}

func (Identity) TransformWrite(plain []byte, outCipher []byte, _ uint32) error {
	copy(outCipher, plain)
	return nil
}
