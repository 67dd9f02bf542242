package transform

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
)

const (
	nonceSize = 12
	tagSize   = 16
)

// ErrKeyLen is returned when a key is not a valid AES key size.
var ErrKeyLen = errors.New("transform: key must be 16, 24, or 32 bytes")

// AESGCM is an authenticated page transform: crypto/aes and
// crypto/cipher's standard GCM mode provide the actual primitive (the
// key-derivation step that produces the raw key is a separate, external
// concern). On disk each page is laid out as a random 12-byte nonce,
// followed by the GCM ciphertext, followed by its 16-byte tag; the
// database page number is folded into the nonce as a diversifier so two
// pages never share an effective nonce even if the random draw collided.
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM builds an AESGCM transform from a raw key (16/24/32 bytes for
// AES-128/192/256).
func NewAESGCM(key []byte) (*AESGCM, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AESGCM{aead: aead}, nil
}

// TransformedPageSize returns plainSize plus the nonce prefix and the
// authentication tag appended by GCM.
func (t *AESGCM) TransformedPageSize(plainSize int) int {
	return plainSize + nonceSize + tagSize
}

func diversify(nonce []byte, pageNumber uint32) []byte {
	out := make([]byte, len(nonce))
	copy(out, nonce)
	var pn [4]byte
	binary.BigEndian.PutUint32(pn[:], pageNumber)
	for i := 0; i < 4; i++ {
		out[nonceSize-4+i] ^= pn[i]
	}
	return out
}

// TransformRead verifies and decrypts cipher (nonce || ciphertext || tag)
// into outPlain. A failed authentication check returns ErrVerifyFailed,
// which callers must treat as a fatal open error per spec section 4.10.
func (t *AESGCM) TransformRead(cipherBuf []byte, outPlain []byte, pageNumber uint32) error {
	if len(cipherBuf) < nonceSize+tagSize {
		return ErrVerifyFailed
	}
	nonce := diversify(cipherBuf[:nonceSize], pageNumber)
	sealed := cipherBuf[nonceSize:]
	plain, err := t.aead.Open(outPlain[:0], nonce, sealed, nil)
	if err != nil {
		return ErrVerifyFailed
	}
	if len(plain) > 0 && &plain[0] != &outPlain[0] {
		copy(outPlain, plain)
	}
	return nil
}

// TransformWrite encrypts plain into outCipher as nonce || ciphertext || tag.
func (t *AESGCM) TransformWrite(plain []byte, outCipher []byte, pageNumber uint32) error {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}
	copy(outCipher[:nonceSize], nonce[:])
	effective := diversify(nonce[:], pageNumber)
	t.aead.Seal(outCipher[nonceSize:nonceSize], effective, plain, nil)
	return nil
}
