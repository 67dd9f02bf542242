package exec

import (
	"testing"

	"sharc/pkg/btree"
	"sharc/pkg/planner"
	"sharc/pkg/record"
	"sharc/pkg/schema"
	"sharc/pkg/sqlparse"
	"sharc/pkg/sqlvalue"
)

// items builds `CREATE TABLE items (id INTEGER PRIMARY KEY, score INTEGER,
// name TEXT)` plus an index on score, inserting rows 1..N in the given
// (name, score) order and keeping the index in sync the same way
// pkg/sharc's maintainIndexesOnInsert does.
func (f *fixture) items(t *testing.T, rows []struct {
	name  string
	score int64
}) (*schema.TableDef, *schema.IndexDef) {
	t.Helper()
	w := schema.NewWriter(f.mem, testUsable, f.fl, f.mu.NextPage())
	def, err := w.CreateTable(f.cat, `CREATE TABLE items (id INTEGER PRIMARY KEY, score INTEGER, name TEXT)`)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	idx, err := w.CreateIndex(f.cat, `CREATE INDEX idx_score ON items (score)`)
	if err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	mu := btree.NewMutator(f.mem, testUsable, f.fl, w.NextPage())
	for i, row := range rows {
		rowid := int64(i + 1)
		values := []sqlvalue.Value{
			sqlvalue.Null(),
			sqlvalue.Int(row.score),
			sqlvalue.Text(row.name),
		}
		buf := make([]byte, record.ComputedEncodedSize(values))
		record.EncodeRecord(values, buf)
		newRoot, err := mu.Insert(def.RootPage, rowid, buf)
		if err != nil {
			t.Fatalf("insert row %d: %v", rowid, err)
		}
		def.RootPage = newRoot
	}

	im := btree.NewIndexMutator(f.mem, testUsable, f.fl, mu.NextPage())
	for i, row := range rows {
		rowid := int64(i + 1)
		keyValues := []sqlvalue.Value{sqlvalue.Int(row.score), sqlvalue.Int(rowid)}
		keyBuf := make([]byte, record.ComputedEncodedSize(keyValues))
		record.EncodeRecord(keyValues, keyBuf)
		newRoot, err := im.Insert(idx.RootPage, keyBuf)
		if err != nil {
			t.Fatalf("index insert row %d: %v", rowid, err)
		}
		idx.RootPage = newRoot
	}
	return def, idx
}

// TestIndexScanBoundsToRangeAndAppliesResidualLike exercises the §8
// scenario the review called out: a BETWEEN range over the indexed
// column combined with a prefix LIKE predicate (itself byte-level
// evaluable, via toLikeNode's StartsWith case) over a non-indexed
// column. It checks both the surviving rows and that
// IndexEntriesVisited reflects a bounded walk — only the entries whose
// key sorts inside [1000, 1050] — rather than every row in the table.
func TestIndexScanBoundsToRangeAndAppliesResidualLike(t *testing.T) {
	f := newFixture(t)
	rows := []struct {
		name  string
		score int64
	}{
		{"Alice", 900},
		{"Bob", 1000},
		{"Amy", 1020},
		{"Carl", 1050},
		{"Abel", 1060},
		{"Dina", 1200},
	}
	f.items(t, rows)

	it, err := planner.BuildIntent(f.cat, `SELECT name, score FROM items WHERE score BETWEEN 1000 AND 1050 AND name LIKE 'A%'`)
	if err != nil {
		t.Fatalf("BuildIntent: %v", err)
	}
	plan, err := planner.Build(f.cat, it)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	stats := newStats()
	reader, err := Execute(f.cat, f.mem, testUsable, plan, Params{}, stats)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	got := drainAll(t, reader)
	if len(got) != 1 {
		t.Fatalf("got %d rows, want 1: %+v", len(got), got)
	}
	if got[0][0].AsOwnedString() != "Amy" {
		t.Errorf("row = %+v, want name=Amy", got[0])
	}
	// The in-range index entries are score=1000,1020,1050 (Bob, Amy,
	// Carl); 900 and 1060+ must never be counted as visited.
	if stats.IndexEntriesVisited != 3 {
		t.Errorf("IndexEntriesVisited = %d, want 3 (bounded scan, not a full index walk)", stats.IndexEntriesVisited)
	}
}

// TestByteLevelFilterMatchesDecodedRowFilter checks the §8 property the
// review named directly: a predicate that compileByteFilter can express
// fully must reject exactly the rows the generic decoded-row filterReader
// would, when run against the same table scan.
func TestByteLevelFilterMatchesDecodedRowFilter(t *testing.T) {
	f := newFixture(t)
	def := f.widgets(t, [][2]interface{}{
		{"bolt", 1.5},
		{"nut", 0.5},
		{"screw", 2.0},
		{"washer", 1.0},
	})

	it, err := sqlparse.ParseSelect(`SELECT category FROM widgets WHERE price >= 1.0`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	byteScan, err := newTableScan(f.mem, testUsable, def, newStats(), it.Core.Where, &evalCtx{})
	if err != nil {
		t.Fatalf("newTableScan (byte-level): %v", err)
	}
	byteRows := drainAll(t, byteScan)

	decodedScan, err := newTableScan(f.mem, testUsable, def, newStats(), nil, nil)
	if err != nil {
		t.Fatalf("newTableScan (decoded): %v", err)
	}
	decodedFiltered := newFilter(decodedScan, it.Core.Where, &evalCtx{})
	decodedRows := drainAll(t, decodedFiltered)

	if len(byteRows) != len(decodedRows) {
		t.Fatalf("byte-level produced %d rows, decoded-row filter produced %d", len(byteRows), len(decodedRows))
	}
	for i := range byteRows {
		if byteRows[i][0].AsOwnedString() != decodedRows[i][0].AsOwnedString() {
			t.Errorf("row %d: byte-level=%v decoded=%v", i, byteRows[i], decodedRows[i])
		}
	}
}
