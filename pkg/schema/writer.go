package schema

import (
	"sharc/pkg/btree"
	"sharc/pkg/dbheader"
	"sharc/pkg/pagesource"
	"sharc/pkg/record"
	"sharc/pkg/serial"
	"sharc/pkg/sqlvalue"
)

// Writer mutates the schema b-tree: CREATE TABLE, CREATE VIEW, CREATE
// INDEX, and the two ALTER TABLE forms spec section 4.13 names. Every
// operation inserts or updates one sqlite_master row and bumps the
// header's schema cookie so readers invalidate their cached Catalog.
type Writer struct {
	src     pagesource.Writable
	usable  int
	mutator *btree.Mutator
}

// NewWriter wraps src's schema b-tree (always rooted at page 1).
func NewWriter(src pagesource.Writable, usable int, freelist *btree.Freelist, nextPage uint32) *Writer {
	return &Writer{src: src, usable: usable, mutator: btree.NewMutator(src, usable, freelist, nextPage)}
}

// NextPage reports the writer's current high-water page number, for
// the caller to persist into the header on commit.
func (w *Writer) NextPage() uint32 { return w.mutator.NextPage() }

func (w *Writer) nextRowid() (int64, error) {
	c := btree.NewCursor(w.src, SchemaRootPage, w.usable)
	if err := c.First(); err != nil {
		return 0, err
	}
	var max int64
	for c.Valid() {
		if c.Rowid() > max {
			max = c.Rowid()
		}
		if err := c.Next(); err != nil {
			return 0, err
		}
	}
	return max + 1, nil
}

func (w *Writer) insertMasterRow(typ, name, tblName string, rootPage uint32, sqlText string) error {
	rowid, err := w.nextRowid()
	if err != nil {
		return err
	}
	values := []sqlvalue.Value{
		sqlvalue.Text(typ),
		sqlvalue.Text(name),
		sqlvalue.Text(tblName),
		sqlvalue.Int(int64(rootPage)),
		sqlvalue.Text(sqlText),
	}
	buf := make([]byte, record.ComputedEncodedSize(values))
	record.EncodeRecord(values, buf)
	_, err = w.mutator.Insert(SchemaRootPage, rowid, buf)
	return err
}

func (w *Writer) bumpSchemaCookie() error {
	buf, err := w.src.GetPage(1)
	if err != nil {
		return err
	}
	out := append([]byte(nil), buf...)
	dbheader.BumpSchemaCookie(out)
	return w.src.WritePage(1, out)
}

// CreateTable parses sqlText (a verbatim CREATE TABLE statement, the
// same text that will be stored in sqlite_master), allocates a root
// page for the new table, inserts the schema row, and registers the
// table in cat. If the table already exists, ifNotExists (parsed from
// sqlText itself) controls whether this is a no-op or ErrTableExists.
func (w *Writer) CreateTable(cat *Catalog, sqlText string) (*TableDef, error) {
	def, ifNotExists, err := ParseCreateTable(sqlText)
	if err != nil {
		return nil, err
	}
	if existing, ok := cat.Tables[def.Name]; ok {
		if ifNotExists {
			return existing, nil
		}
		return nil, ErrTableExists
	}

	root, err := w.mutator.AllocatePage()
	if err != nil {
		return nil, err
	}
	if err := w.mutator.WriteEmptyLeaf(root); err != nil {
		return nil, err
	}
	def.RootPage = root

	if err := w.insertMasterRow("table", def.Name, def.Name, root, sqlText); err != nil {
		return nil, err
	}
	if err := w.bumpSchemaCookie(); err != nil {
		return nil, err
	}
	cat.Tables[def.Name] = def
	cat.SchemaCookie++
	return def, nil
}

// CreateIndex parses sqlText (a verbatim CREATE INDEX statement),
// allocates a root page for the index's own b-tree, inserts the
// schema row, and registers it in cat.
func (w *Writer) CreateIndex(cat *Catalog, sqlText string) (*IndexDef, error) {
	idx, ifNotExists, err := ParseCreateIndex(sqlText)
	if err != nil {
		return nil, err
	}
	if existing, ok := cat.Indexes[idx.Name]; ok {
		if ifNotExists {
			return existing, nil
		}
		return nil, ErrIndexExists
	}
	if _, ok := cat.Tables[idx.TableName]; !ok {
		return nil, ErrTableNotFound
	}

	root, err := w.mutator.AllocatePage()
	if err != nil {
		return nil, err
	}
	if err := w.mutator.WriteEmptyLeaf(root); err != nil {
		return nil, err
	}
	idx.RootPage = root

	if err := w.insertMasterRow("index", idx.Name, idx.TableName, root, sqlText); err != nil {
		return nil, err
	}
	if err := w.bumpSchemaCookie(); err != nil {
		return nil, err
	}
	cat.Indexes[idx.Name] = idx
	cat.SchemaCookie++
	return idx, nil
}

// CreateView parses sqlText (a verbatim CREATE VIEW statement) and
// registers it in cat. Views have no root page: they are resolved as
// inline subqueries on each reference, per spec section 4.13.
func (w *Writer) CreateView(cat *Catalog, sqlText string) (*ViewDef, error) {
	v, ifNotExists, err := ParseCreateView(sqlText)
	if err != nil {
		return nil, err
	}
	if existing, ok := cat.Views[v.Name]; ok {
		if ifNotExists {
			return existing, nil
		}
		return nil, ErrViewExists
	}

	if err := w.insertMasterRow("view", v.Name, v.Name, 0, sqlText); err != nil {
		return nil, err
	}
	if err := w.bumpSchemaCookie(); err != nil {
		return nil, err
	}
	cat.Views[v.Name] = v
	cat.SchemaCookie++
	return v, nil
}

// updateMasterSQL rewrites the sql and tbl_name columns of the
// sqlite_master row identified by (typ, name), used by ALTER TABLE to
// keep the stored CREATE statement consistent with the live schema.
func (w *Writer) updateMasterRow(typ, oldName, newName, newTblName, newSQL string) error {
	c := btree.NewCursor(w.src, SchemaRootPage, w.usable)
	if err := c.First(); err != nil {
		return err
	}
	for c.Valid() {
		payload := c.Payload()
		var st [8]serial.Type
		n, bodyOff, err := record.ReadSerialTypes(payload, st[:])
		if err != nil {
			return err
		}
		if n >= 5 {
			rowTyp, _, _ := record.DecodeStringDirect(payload, 0, st[:n], bodyOff)
			rowName, _, _ := record.DecodeStringDirect(payload, 1, st[:n], bodyOff)
			if string(rowTyp) == typ && string(rowName) == oldName {
				root, _ := record.DecodeInt64Direct(payload, 3, st[:n], bodyOff)
				values := []sqlvalue.Value{
					sqlvalue.Text(typ),
					sqlvalue.Text(newName),
					sqlvalue.Text(newTblName),
					sqlvalue.Int(root),
					sqlvalue.Text(newSQL),
				}
				buf := make([]byte, record.ComputedEncodedSize(values))
				record.EncodeRecord(values, buf)
				rowid := c.Rowid()
				_, err := w.mutator.Insert(SchemaRootPage, rowid, buf)
				return err
			}
		}
		if err := c.Next(); err != nil {
			return err
		}
	}
	return ErrTableNotFound
}

// RenameTable implements ALTER TABLE old RENAME TO new: updates the
// sqlite_master row's name, tbl_name, and stored SQL text, and moves
// the in-memory TableDef under its new key.
func (w *Writer) RenameTable(cat *Catalog, oldName, newName string) error {
	def, ok := cat.Tables[oldName]
	if !ok {
		return ErrTableNotFound
	}
	if _, exists := cat.Tables[newName]; exists {
		return ErrTableExists
	}

	newSQL := renameInCreateTable(def, newName)
	if err := w.updateMasterRow("table", oldName, newName, newName, newSQL); err != nil {
		return err
	}
	if err := w.bumpSchemaCookie(); err != nil {
		return err
	}
	def.Name = newName
	delete(cat.Tables, oldName)
	cat.Tables[newName] = def
	cat.SchemaCookie++
	return nil
}

// AddColumn implements ALTER TABLE table ADD COLUMN coldef: updates
// the stored CREATE TABLE text with the new column appended and adds
// it to the in-memory TableDef. Existing rows are left as-is; readers
// treat a row with fewer stored columns than the live schema as
// having NULL in the added column (the column-offset arithmetic in
// pkg/record naturally yields this once the column count mismatch is
// handled by the caller defaulting to NULL past the decoded header).
func (w *Writer) AddColumn(cat *Catalog, tableName string, col ColumnDef) error {
	def, ok := cat.Tables[tableName]
	if !ok {
		return ErrTableNotFound
	}
	newSQL := addColumnInCreateTable(def, col)
	if err := w.updateMasterRow("table", tableName, tableName, tableName, newSQL); err != nil {
		return err
	}
	if err := w.bumpSchemaCookie(); err != nil {
		return err
	}
	def.Columns = append(def.Columns, col)
	cat.SchemaCookie++
	return nil
}

// AlterTable parses sqlText as an ALTER TABLE statement and dispatches
// to RenameTable or AddColumn.
func (w *Writer) AlterTable(cat *Catalog, sqlText string) error {
	alter, err := ParseAlterTable(sqlText)
	if err != nil {
		return err
	}
	if alter.RenameTo != "" {
		return w.RenameTable(cat, alter.Table, alter.RenameTo)
	}
	if alter.AddColumn != nil {
		return w.AddColumn(cat, alter.Table, *alter.AddColumn)
	}
	return ErrParse
}

func renameInCreateTable(def *TableDef, newName string) string {
	return reconstructCreateTable(newName, def.Columns, def.WithoutRowID)
}

func addColumnInCreateTable(def *TableDef, col ColumnDef) string {
	cols := append(append([]ColumnDef(nil), def.Columns...), col)
	return reconstructCreateTable(def.Name, cols, def.WithoutRowID)
}

func reconstructCreateTable(name string, cols []ColumnDef, withoutRowID bool) string {
	sql := "CREATE TABLE " + name + " ("
	for i, c := range cols {
		if i > 0 {
			sql += ", "
		}
		sql += c.Name + " " + c.Declared
		if c.PrimaryKey {
			sql += " PRIMARY KEY"
		}
		if c.NotNull {
			sql += " NOT NULL"
		}
	}
	sql += ")"
	if withoutRowID {
		sql += " WITHOUT ROWID"
	}
	return sql
}
