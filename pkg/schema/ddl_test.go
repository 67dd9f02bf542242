package schema

import "testing"

func TestParseCreateTableBasic(t *testing.T) {
	def, ifNotExists, err := ParseCreateTable(
		`CREATE TABLE IF NOT EXISTS widgets (id INTEGER PRIMARY KEY, name TEXT NOT NULL, weight REAL)`)
	if err != nil {
		t.Fatalf("ParseCreateTable: %v", err)
	}
	if !ifNotExists {
		t.Errorf("expected ifNotExists = true")
	}
	if def.Name != "widgets" {
		t.Errorf("Name = %q", def.Name)
	}
	if len(def.Columns) != 3 {
		t.Fatalf("Columns = %d, want 3", len(def.Columns))
	}
	if def.Columns[0].Name != "id" || !def.Columns[0].PrimaryKey {
		t.Errorf("column 0 = %+v", def.Columns[0])
	}
	if def.RowidAlias != 0 {
		t.Errorf("RowidAlias = %d, want 0", def.RowidAlias)
	}
	if !def.Columns[1].NotNull {
		t.Errorf("expected name column NOT NULL")
	}
	if def.Columns[2].Affinity != AffinityReal {
		t.Errorf("weight affinity = %v, want AffinityReal", def.Columns[2].Affinity)
	}
}

func TestParseCreateTableWithoutRowid(t *testing.T) {
	def, _, err := ParseCreateTable(`CREATE TABLE kv (k TEXT PRIMARY KEY, v BLOB) WITHOUT ROWID`)
	if err != nil {
		t.Fatalf("ParseCreateTable: %v", err)
	}
	if !def.WithoutRowID {
		t.Errorf("expected WithoutRowID = true")
	}
	if def.RowidAlias != -1 {
		t.Errorf("RowidAlias = %d, want -1 for WITHOUT ROWID table", def.RowidAlias)
	}
}

func TestParseCreateTableSkipsTableConstraints(t *testing.T) {
	def, _, err := ParseCreateTable(
		`CREATE TABLE t (a INTEGER, b INTEGER, PRIMARY KEY (a, b))`)
	if err != nil {
		t.Fatalf("ParseCreateTable: %v", err)
	}
	if len(def.Columns) != 2 {
		t.Fatalf("Columns = %d, want 2", len(def.Columns))
	}
}

func TestParseCreateIndex(t *testing.T) {
	idx, ifNotExists, err := ParseCreateIndex(`CREATE UNIQUE INDEX IF NOT EXISTS idx_name ON widgets (name, weight)`)
	if err != nil {
		t.Fatalf("ParseCreateIndex: %v", err)
	}
	if !ifNotExists || !idx.Unique {
		t.Errorf("ifNotExists=%v unique=%v", ifNotExists, idx.Unique)
	}
	if idx.TableName != "widgets" || len(idx.Columns) != 2 {
		t.Errorf("idx = %+v", idx)
	}
}

func TestParseCreateView(t *testing.T) {
	v, _, err := ParseCreateView(`CREATE VIEW heavy AS SELECT id, name FROM widgets WHERE weight > 10`)
	if err != nil {
		t.Fatalf("ParseCreateView: %v", err)
	}
	if v.Name != "heavy" {
		t.Errorf("Name = %q", v.Name)
	}
	want := "SELECT id, name FROM widgets WHERE weight > 10"
	if v.SQL != want {
		t.Errorf("SQL = %q, want %q", v.SQL, want)
	}
}

func TestParseAlterTableRenameAndAddColumn(t *testing.T) {
	a, err := ParseAlterTable(`ALTER TABLE widgets RENAME TO gadgets`)
	if err != nil {
		t.Fatalf("ParseAlterTable rename: %v", err)
	}
	if a.RenameTo != "gadgets" || a.Table != "widgets" {
		t.Errorf("rename = %+v", a)
	}

	b, err := ParseAlterTable(`ALTER TABLE widgets ADD COLUMN color TEXT`)
	if err != nil {
		t.Fatalf("ParseAlterTable add column: %v", err)
	}
	if b.AddColumn == nil || b.AddColumn.Name != "color" {
		t.Errorf("add column = %+v", b.AddColumn)
	}
}

func TestColumnAffinityRules(t *testing.T) {
	cases := map[string]Affinity{
		"INTEGER":  AffinityInteger,
		"INT":      AffinityInteger,
		"VARCHAR":  AffinityText,
		"TEXT":     AffinityText,
		"BLOB":     AffinityBlob,
		"":         AffinityBlob,
		"REAL":     AffinityReal,
		"DOUBLE":   AffinityReal,
		"NUMERIC":  AffinityNumeric,
		"DECIMAL":  AffinityNumeric,
	}
	for decl, want := range cases {
		if got := ColumnAffinity(decl); got != want {
			t.Errorf("ColumnAffinity(%q) = %v, want %v", decl, got, want)
		}
	}
}
