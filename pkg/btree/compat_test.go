package btree

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"sharc/pkg/dbheader"
	"sharc/pkg/pagesource"
	"sharc/pkg/record"
	"sharc/pkg/serial"
)

// TestCompatReadsRealSQLiteTableBTree builds a database with the stock
// CGO sqlite3 driver, then walks its sqlite_master and table b-trees
// with this package's own reader to confirm the page and cell layout
// this engine produces (and expects) matches a real SQLite file.
func TestCompatReadsRealSQLiteTableBTree(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "compat.db")

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=DELETE"); err != nil {
		t.Fatalf("PRAGMA journal_mode: %v", err)
	}
	if _, err := db.Exec("CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)"); err != nil {
		t.Fatalf("CREATE TABLE: %v", err)
	}
	for i := 1; i <= 50; i++ {
		if _, err := db.Exec("INSERT INTO widgets (id, name) VALUES (?, ?)", i, "w"); err != nil {
			t.Fatalf("INSERT: %v", err)
		}
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	hdr, err := dbheader.Decode(raw[:dbheader.Size])
	if err != nil {
		t.Fatalf("dbheader.Decode: %v", err)
	}
	usable := hdr.UsablePageSize()
	src := pagesource.NewMemoryFromBytes(raw, int(hdr.PageSize))

	rootPage := findTableRootPage(t, src, usable, "widgets")
	if rootPage == 0 {
		t.Fatalf("widgets table not found in sqlite_master")
	}

	c := NewCursor(src, rootPage, usable)
	if err := c.First(); err != nil {
		t.Fatalf("First: %v", err)
	}
	var count int64
	var lastRowid int64 = -1
	for c.Valid() {
		if c.Rowid() <= lastRowid {
			t.Fatalf("rowids not ascending: %d after %d", c.Rowid(), lastRowid)
		}
		lastRowid = c.Rowid()
		count++
		if err := c.Next(); err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	if count != 50 {
		t.Errorf("iterated %d rows, want 50", count)
	}

	if err := c.Seek(25); err != nil {
		t.Fatalf("Seek(25): %v", err)
	}
	var types [4]serial.Type
	n, bodyOff, err := record.ReadSerialTypes(c.Payload(), types[:])
	if err != nil {
		t.Fatalf("ReadSerialTypes: %v", err)
	}
	if n < 2 {
		t.Fatalf("expected at least 2 columns, got %d", n)
	}
	name, ok, err := record.DecodeStringDirect(c.Payload(), 1, types[:n], bodyOff)
	if err != nil || !ok {
		t.Fatalf("DecodeStringDirect(name): ok=%v err=%v", ok, err)
	}
	if string(name) != "w" {
		t.Errorf("row 25 name = %q, want w", name)
	}
}

// findTableRootPage scans the schema b-tree (always rooted at page 1)
// for a sqlite_master row of type 'table' with the given name, and
// returns its rootpage column.
func findTableRootPage(t *testing.T, src pagesource.PageSource, usable int, name string) uint32 {
	t.Helper()
	c := NewCursor(src, 1, usable)
	if err := c.First(); err != nil {
		t.Fatalf("First (schema): %v", err)
	}
	var types [8]serial.Type
	for c.Valid() {
		payload := c.Payload()
		n, bodyOff, err := record.ReadSerialTypes(payload, types[:])
		if err != nil {
			t.Fatalf("ReadSerialTypes (schema): %v", err)
		}
		if n >= 4 {
			tblName, ok, err := record.DecodeStringDirect(payload, 2, types[:n], bodyOff)
			if err == nil && ok && string(tblName) == name {
				root, _ := record.DecodeInt64Direct(payload, 3, types[:n], bodyOff)
				return uint32(root)
			}
		}
		if err := c.Next(); err != nil {
			t.Fatalf("Next (schema): %v", err)
		}
	}
	return 0
}
