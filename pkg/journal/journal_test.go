package journal

import (
	"os"
	"path/filepath"
	"testing"

	"sharc/pkg/pagesource"
)

func fillPage(pageSize int, b byte) []byte {
	p := make([]byte, pageSize)
	for i := range p {
		p[i] = b
	}
	return p
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal")

	base := pagesource.NewMemory(512)
	for i := uint32(1); i <= 3; i++ {
		if err := base.WritePage(i, fillPage(512, byte(i))); err != nil {
			t.Fatalf("WritePage: %v", err)
		}
	}

	f, err := Write(path, base, []uint32{1, 3})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	f.Close()

	pageSize, entries, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if pageSize != 512 {
		t.Errorf("pageSize = %d, want 512", pageSize)
	}
	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].PageNumber != 1 || entries[0].PreImage[0] != 1 {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].PageNumber != 3 || entries[1].PreImage[0] != 3 {
		t.Errorf("entry 1 = %+v", entries[1])
	}
}

func TestRecoverRestoresPreImagesAndDeletesJournal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal")

	base := pagesource.NewMemory(512)
	for i := uint32(1); i <= 2; i++ {
		if err := base.WritePage(i, fillPage(512, 0xAA)); err != nil {
			t.Fatalf("WritePage: %v", err)
		}
	}

	f, err := Write(path, base, []uint32{1, 2})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	f.Close()

	// Simulate the commit having overwritten both pages before a crash.
	if err := base.WritePage(1, fillPage(512, 0xFF)); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	if err := base.WritePage(2, fillPage(512, 0xFF)); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	if err := Recover(path, base); err != nil {
		t.Fatalf("Recover: %v", err)
	}

	p1, _ := base.GetPage(1)
	if p1[0] != 0xAA {
		t.Errorf("page 1 not restored: got %#x", p1[0])
	}
	p2, _ := base.GetPage(2)
	if p2[0] != 0xAA {
		t.Errorf("page 2 not restored: got %#x", p2[0])
	}

	if Exists(path) {
		t.Errorf("journal file should be deleted after recovery")
	}
}

func TestReadRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal")
	if err := os.WriteFile(path, []byte("not-a-journal-file-at-all-00000"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, _, err := Read(path); err != ErrBadMagic {
		t.Errorf("Read with bad magic: got %v, want ErrBadMagic", err)
	}
}

func TestExistsReflectsFileState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal")
	if Exists(path) {
		t.Errorf("Exists should be false before the file is created")
	}
	base := pagesource.NewMemory(512)
	if err := base.WritePage(1, fillPage(512, 1)); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	f, err := Write(path, base, []uint32{1})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	f.Close()
	if !Exists(path) {
		t.Errorf("Exists should be true after Write")
	}
	if err := Delete(path); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if Exists(path) {
		t.Errorf("Exists should be false after Delete")
	}
	if err := Delete(path); err != nil {
		t.Errorf("Delete on missing file should be a no-op, got %v", err)
	}
}
