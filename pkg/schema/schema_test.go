package schema

import (
	"testing"

	"sharc/pkg/btree"
	"sharc/pkg/pagesource"
)

const testUsable = 512

func newBootstrappedSchema(t *testing.T) (*pagesource.Memory, *btree.Freelist) {
	t.Helper()
	mem := pagesource.NewMemory(testUsable)
	fl := btree.NewFreelist(mem, testUsable, 0, 0)
	m := btree.NewMutator(mem, testUsable, fl, 2)
	if err := m.WriteEmptyLeaf(SchemaRootPage); err != nil {
		t.Fatalf("bootstrap schema root: %v", err)
	}
	return mem, fl
}

func TestCreateTableThenReadCatalog(t *testing.T) {
	mem, fl := newBootstrappedSchema(t)
	w := NewWriter(mem, testUsable, fl, 2)
	cat := NewCatalog()

	def, err := w.CreateTable(cat, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if def.RootPage == 0 {
		t.Errorf("expected nonzero root page")
	}

	reread, err := ReadCatalog(mem, testUsable, 0)
	if err != nil {
		t.Fatalf("ReadCatalog: %v", err)
	}
	got := reread.GetTable("widgets")
	if got == nil {
		t.Fatalf("widgets table not found after reread")
	}
	if got.RootPage != def.RootPage {
		t.Errorf("RootPage = %d, want %d", got.RootPage, def.RootPage)
	}
	if len(got.Columns) != 2 {
		t.Errorf("Columns = %d, want 2", len(got.Columns))
	}
}

func TestCreateTableIfNotExistsIsNoOp(t *testing.T) {
	mem, fl := newBootstrappedSchema(t)
	w := NewWriter(mem, testUsable, fl, 2)
	cat := NewCatalog()

	first, err := w.CreateTable(cat, `CREATE TABLE t (a INTEGER)`)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	second, err := w.CreateTable(cat, `CREATE TABLE IF NOT EXISTS t (a INTEGER)`)
	if err != nil {
		t.Fatalf("CreateTable IF NOT EXISTS: %v", err)
	}
	if first.RootPage != second.RootPage {
		t.Errorf("expected the same table back, got different root pages")
	}
}

func TestCreateTableRejectsDuplicateWithoutIfNotExists(t *testing.T) {
	mem, fl := newBootstrappedSchema(t)
	w := NewWriter(mem, testUsable, fl, 2)
	cat := NewCatalog()

	if _, err := w.CreateTable(cat, `CREATE TABLE t (a INTEGER)`); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if _, err := w.CreateTable(cat, `CREATE TABLE t (a INTEGER)`); err != ErrTableExists {
		t.Errorf("got %v, want ErrTableExists", err)
	}
}

func TestCreateIndexAndView(t *testing.T) {
	mem, fl := newBootstrappedSchema(t)
	w := NewWriter(mem, testUsable, fl, 2)
	cat := NewCatalog()

	if _, err := w.CreateTable(cat, `CREATE TABLE widgets (id INTEGER PRIMARY KEY, name TEXT)`); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	idx, err := w.CreateIndex(cat, `CREATE INDEX idx_name ON widgets (name)`)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if idx.RootPage == 0 {
		t.Errorf("expected nonzero index root page")
	}

	view, err := w.CreateView(cat, `CREATE VIEW named AS SELECT name FROM widgets`)
	if err != nil {
		t.Fatalf("CreateView: %v", err)
	}
	if view.SQL != "SELECT name FROM widgets" {
		t.Errorf("view SQL = %q", view.SQL)
	}

	reread, err := ReadCatalog(mem, testUsable, 0)
	if err != nil {
		t.Fatalf("ReadCatalog: %v", err)
	}
	if reread.GetTable("widgets") == nil {
		t.Errorf("expected widgets table after reread")
	}
	if len(reread.IndexesForTable("widgets")) != 1 {
		t.Errorf("expected 1 index on widgets after reread")
	}
	if reread.GetView("named") == nil {
		t.Errorf("expected named view after reread")
	}
}

func TestRenameTableUpdatesCatalogAndSchemaBTree(t *testing.T) {
	mem, fl := newBootstrappedSchema(t)
	w := NewWriter(mem, testUsable, fl, 2)
	cat := NewCatalog()

	if _, err := w.CreateTable(cat, `CREATE TABLE widgets (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := w.AlterTable(cat, `ALTER TABLE widgets RENAME TO gadgets`); err != nil {
		t.Fatalf("AlterTable rename: %v", err)
	}
	if cat.GetTable("widgets") != nil {
		t.Errorf("old name should be gone from the catalog")
	}
	if cat.GetTable("gadgets") == nil {
		t.Errorf("expected new name in the catalog")
	}

	reread, err := ReadCatalog(mem, testUsable, 0)
	if err != nil {
		t.Fatalf("ReadCatalog: %v", err)
	}
	if reread.GetTable("gadgets") == nil {
		t.Errorf("expected renamed table to survive a catalog rebuild")
	}
}

func TestAddColumnExtendsSchema(t *testing.T) {
	mem, fl := newBootstrappedSchema(t)
	w := NewWriter(mem, testUsable, fl, 2)
	cat := NewCatalog()

	if _, err := w.CreateTable(cat, `CREATE TABLE widgets (id INTEGER PRIMARY KEY)`); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := w.AlterTable(cat, `ALTER TABLE widgets ADD COLUMN color TEXT`); err != nil {
		t.Fatalf("AlterTable add column: %v", err)
	}
	def := cat.GetTable("widgets")
	if len(def.Columns) != 2 || def.Columns[1].Name != "color" {
		t.Errorf("Columns = %+v", def.Columns)
	}

	reread, err := ReadCatalog(mem, testUsable, 0)
	if err != nil {
		t.Fatalf("ReadCatalog: %v", err)
	}
	rdef := reread.GetTable("widgets")
	if len(rdef.Columns) != 2 {
		t.Errorf("reread Columns = %d, want 2", len(rdef.Columns))
	}
}
