package pagesource

import (
	"bytes"
	"testing"

	"sharc/pkg/transform"
)

func TestDecryptingRoundTrip(t *testing.T) {
	tr, err := transform.NewAESGCM(bytes.Repeat([]byte{0x07}, 16))
	if err != nil {
		t.Fatalf("NewAESGCM: %v", err)
	}

	const plainSize = 64
	physSize := tr.TransformedPageSize(plainSize)
	base := NewMemory(physSize)

	dec := NewDecrypting(base, tr, plainSize)
	plain := fillPage(plainSize, 0x5A)
	if err := dec.WritePage(1, plain); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	got, err := dec.GetPage(1)
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Errorf("decrypted page mismatch")
	}

	rawPhys, _ := base.GetPage(1)
	if bytes.Equal(rawPhys[:plainSize], plain) {
		t.Errorf("physical page appears to be stored as plaintext")
	}
}

func TestDecryptingSurfacesVerifyFailure(t *testing.T) {
	tr, _ := transform.NewAESGCM(bytes.Repeat([]byte{0x07}, 16))
	const plainSize = 32
	base := NewMemory(tr.TransformedPageSize(plainSize))
	dec := NewDecrypting(base, tr, plainSize)
	dec.WritePage(1, fillPage(plainSize, 1))

	phys, _ := base.GetPage(1)
	corrupted := make([]byte, len(phys))
	copy(corrupted, phys)
	corrupted[len(corrupted)-1] ^= 0xFF
	base.WritePage(1, corrupted)

	if _, err := dec.GetPage(1); err != transform.ErrVerifyFailed {
		t.Errorf("GetPage on tampered page = %v, want ErrVerifyFailed", err)
	}
}
