package sharc

import (
	"strings"
	"sync"

	"sharc/pkg/agent"
	"sharc/pkg/btree"
	"sharc/pkg/dbheader"
	"sharc/pkg/journal"
	"sharc/pkg/pagesource"
	"sharc/pkg/record"
	"sharc/pkg/schema"
	"sharc/pkg/serial"
	"sharc/pkg/sharcerr"
	"sharc/pkg/sqlvalue"
)

// Begin starts the database's one allowed write transaction. A second
// Begin while one is already active fails immediately with
// InvalidOperation, per spec section 5.
func (db *DB) Begin() (*Tx, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, sharcerr.New(sharcerr.InvalidOperation, "sharc: database is closed")
	}
	if db.writing {
		return nil, sharcerr.Wrap(sharcerr.InvalidOperation, errWriteInFlight)
	}

	var shadow *pagesource.Shadow
	if pooled := db.shadowPool.Get(); pooled != nil {
		shadow = pooled.(*pagesource.Shadow)
		shadow.Reset()
	} else {
		shadow = pagesource.NewShadow(db.base)
	}

	db.writing = true
	db.proxy.SwapTo(shadow)

	return &Tx{
		db:       db,
		shadow:   shadow,
		freelist: freelistFromHeader(shadow, db.usable, db.header),
		nextPage: db.header.PageCount + 1,
	}, nil
}

// Tx is the database's single active write transaction. Every
// mutating or schema-changing call happens against the transaction's
// Shadow; nothing reaches the base page source until Commit.
type Tx struct {
	mu       sync.Mutex
	db       *DB
	shadow   *pagesource.Shadow
	freelist *btree.Freelist
	nextPage uint32
	done     bool

	// touchedSchema is set whenever a DDL operation runs in this
	// transaction, so Commit/Rollback know whether the catalog needs
	// rebuilding from the (possibly now-stale) schema b-tree. Kept as a
	// plain bool rather than inferred from the dirty-page set: a dirty
	// page 1 alone doesn't distinguish a schema change from the
	// header-only bookkeeping Commit itself adds.
	touchedSchema bool

	mutations []Mutation
}

func (tx *Tx) checkDone() error {
	if tx.done {
		return sharcerr.Wrap(sharcerr.InvalidOperation, errTxDone)
	}
	return nil
}

func (tx *Tx) authorize(op agent.Operation, table string) error {
	tx.db.mu.Lock()
	ent := tx.db.entitlement
	tx.db.mu.Unlock()
	if ent == nil {
		return nil
	}
	if err := ent.Authorize(op, table); err != nil {
		return sharcerr.Wrap(sharcerr.Unauthorized, err)
	}
	return nil
}

// Rollback discards every write made in the transaction, restoring
// the handle to direct reads against its base page source. Safe to
// call after a successful Commit (a no-op), matching the idiomatic
// "defer tx.Rollback()" pattern.
func (tx *Tx) Rollback() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return nil
	}
	tx.done = true

	db := tx.db
	db.mu.Lock()
	defer db.mu.Unlock()
	db.proxy.SwapTo(db.base)
	db.writing = false
	db.shadowPool.Put(tx.shadow)

	if tx.touchedSchema {
		cat, err := schema.ReadCatalog(db.base, db.usable, db.header.SchemaCookie)
		if err != nil {
			return sharcerr.Classify(err)
		}
		db.cat = cat
	}
	return nil
}

// Commit journals every dirty page's pre-image, writes the
// transaction's changes into the base page source, deletes the
// journal, and finally notifies any registered commit observers. A
// failure partway through the base write is recovered immediately
// from the just-written journal (rather than waiting for the next
// Open), so the handle never observes a partially-applied commit.
func (tx *Tx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return sharcerr.Wrap(sharcerr.InvalidOperation, errTxDone)
	}

	db := tx.db
	db.mu.Lock()
	defer db.mu.Unlock()

	dirty := tx.shadow.DirtyPages()
	if len(dirty) == 0 {
		tx.done = true
		db.proxy.SwapTo(db.base)
		db.writing = false
		db.shadowPool.Put(tx.shadow)
		return nil
	}

	newPageCount := tx.shadow.PageCount()
	if newPageCount > db.header.PageCount {
		if g, ok := db.base.(grower); ok {
			if err := g.Grow(newPageCount); err != nil {
				return tx.abortCommit(sharcerr.Wrap(sharcerr.IoError, err))
			}
		}
	}

	headerBuf, err := tx.shadow.GetPage(1)
	if err != nil {
		return tx.abortCommit(sharcerr.Classify(err))
	}
	updated := append([]byte(nil), headerBuf...)
	newHeader := *db.header
	if h, err := dbheader.Decode(headerBuf); err == nil {
		newHeader.SchemaCookie = h.SchemaCookie
	}
	newHeader.PageCount = newPageCount
	newHeader.ChangeCounter++
	newHeader.FreelistTrunk = tx.freelist.FirstTrunk()
	newHeader.FreelistCount = tx.freelist.LeafCount()
	copy(updated[:dbheader.Size], newHeader.Encode())
	if err := tx.shadow.WritePage(1, updated); err != nil {
		return tx.abortCommit(sharcerr.Classify(err))
	}
	dirty = tx.shadow.DirtyPages()

	if !db.memory {
		f, err := journal.Write(db.journalPath, db.base, dirty)
		if err != nil {
			return tx.abortCommit(sharcerr.Wrap(sharcerr.IoError, err))
		}
		f.Close()
	}

	if err := tx.shadow.FlushTo(db.base); err != nil {
		if !db.memory {
			if rerr := journal.Recover(db.journalPath, db.base); rerr != nil {
				return tx.abortCommit(sharcerr.Wrapf(sharcerr.CorruptPage, rerr, "sharc: commit failed and recovery also failed"))
			}
		}
		return tx.abortCommit(sharcerr.Wrap(sharcerr.IoError, err))
	}

	if !db.memory {
		if err := journal.Delete(db.journalPath); err != nil {
			return tx.abortCommit(sharcerr.Wrap(sharcerr.IoError, err))
		}
	}

	db.header = &newHeader
	db.proxy.SwapTo(db.base)
	db.writing = false
	db.shadowPool.Put(tx.shadow)
	tx.done = true

	if tx.touchedSchema {
		if cat, err := schema.ReadCatalog(db.base, db.usable, db.header.SchemaCookie); err == nil {
			db.cat = cat
		}
	}

	muts := tx.mutations
	db.mu.Unlock()
	db.notifyCommit(muts)
	db.mu.Lock()
	return nil
}

// abortCommit restores the handle to direct base access and marks the
// transaction done without attempting to salvage the shadow: the
// shadow's content is unreliable after a partial commit failure, so it
// is not returned to the pool.
func (tx *Tx) abortCommit(err error) error {
	db := tx.db
	db.proxy.SwapTo(db.base)
	db.writing = false
	tx.done = true
	return err
}

// --- DDL ---

// Exec dispatches sqlText as a schema-changing statement: CREATE
// TABLE, CREATE INDEX, CREATE VIEW, or ALTER TABLE (its two forms,
// RENAME TO and ADD COLUMN). Spec section 6.2 names no other
// statement kinds as SQL text; row mutation is the programmatic
// Insert/Update/Delete API below.
func (tx *Tx) Exec(sqlText string) error {
	if err := tx.checkDone(); err != nil {
		return err
	}
	if err := tx.authorize(agent.OpSchemaChange, ""); err != nil {
		return err
	}

	db := tx.db
	w := schema.NewWriter(tx.shadow, db.usable, tx.freelist, tx.nextPage)
	defer func() { tx.nextPage = w.NextPage() }()

	kw := leadingKeyword(sqlText)
	var err error
	switch kw {
	case "CREATE TABLE":
		_, err = w.CreateTable(db.cat, sqlText)
	case "CREATE INDEX", "CREATE UNIQUE INDEX":
		var idx *schema.IndexDef
		idx, err = w.CreateIndex(db.cat, sqlText)
		if err == nil {
			err = tx.populateNewIndex(idx)
		}
	case "CREATE VIEW":
		_, err = w.CreateView(db.cat, sqlText)
	case "ALTER TABLE":
		err = w.AlterTable(db.cat, sqlText)
	default:
		err = sharcerr.New(sharcerr.ParseError, "sharc: unsupported statement: "+sqlText)
	}
	if err != nil {
		return sharcerr.Classify(err)
	}
	tx.touchedSchema = true
	return nil
}

func leadingKeyword(sql string) string {
	u := strings.ToUpper(strings.TrimSpace(sql))
	for _, kw := range []string{"CREATE TABLE", "CREATE UNIQUE INDEX", "CREATE INDEX", "CREATE VIEW", "ALTER TABLE"} {
		if strings.HasPrefix(u, kw) {
			return kw
		}
	}
	return ""
}

// populateNewIndex back-fills a freshly created index from the
// existing rows of its owning table, so CREATE INDEX works on a table
// that already has data (not just an empty one).
func (tx *Tx) populateNewIndex(idx *schema.IndexDef) error {
	table := tx.db.cat.GetTable(idx.TableName)
	if table == nil {
		return schema.ErrTableNotFound
	}
	cur := btree.NewCursor(tx.shadow, table.RootPage, tx.db.usable)
	if err := cur.First(); err != nil {
		return err
	}
	im := btree.NewIndexMutator(tx.shadow, tx.db.usable, tx.freelist, tx.nextPage)
	for cur.Valid() {
		rowid := cur.Rowid()
		row, err := decodeFullRow(cur.Payload(), table)
		if err != nil {
			return err
		}
		key, err := encodeIndexKey(idx, table, row, rowid)
		if err != nil {
			return err
		}
		newRoot, err := im.Insert(idx.RootPage, key)
		if err != nil {
			return err
		}
		idx.RootPage = newRoot
		if err := cur.Next(); err != nil {
			return err
		}
	}
	tx.nextPage = im.NextPage()
	return nil
}

// --- Query ---

// Query plans and executes a SELECT statement against the
// transaction's in-progress state (read-your-writes).
func (tx *Tx) Query(sqlText string) (*Rows, error) {
	if err := tx.checkDone(); err != nil {
		return nil, err
	}
	if err := tx.authorize(agent.OpQuery, ""); err != nil {
		return nil, err
	}
	return runQuery(tx.db.cat, tx.shadow, tx.db.usable, sqlText)
}

// --- Row mutation ---

// Insert appends a new row to table and returns its rowid. values must
// supply exactly one entry per column named in cols; cols defaults to
// the table's declared column order (rowid alias included) when nil.
// A non-NULL value for the rowid alias column becomes the row's rowid;
// otherwise the next rowid is assigned.
func (tx *Tx) Insert(table string, cols []string, values []interface{}) (int64, error) {
	if err := tx.checkDone(); err != nil {
		return 0, err
	}
	if err := tx.authorize(agent.OpInsert, table); err != nil {
		return 0, err
	}
	def := tx.db.cat.GetTable(table)
	if def == nil {
		return 0, sharcerr.Wrap(sharcerr.SchemaMismatch, schema.ErrTableNotFound)
	}
	if def.WithoutRowID {
		return 0, sharcerr.New(sharcerr.UnsupportedFeature, "sharc: programmatic Insert does not support WITHOUT ROWID tables")
	}
	if cols == nil {
		cols = def.ColumnNames()
	}
	if len(cols) != len(values) {
		return 0, sharcerr.New(sharcerr.InvalidOperation, "sharc: Insert column/value count mismatch")
	}

	row := make([]sqlvalue.Value, len(def.Columns))
	for i := range row {
		row[i] = sqlvalue.Null()
	}
	var explicitRowid *int64
	for i, col := range cols {
		_, ord := def.GetColumn(col)
		if ord < 0 {
			return 0, sharcerr.New(sharcerr.SchemaMismatch, "sharc: no such column: "+col)
		}
		v, err := goToValue(values[i])
		if err != nil {
			return 0, sharcerr.Wrap(sharcerr.InvalidOperation, err)
		}
		if ord == def.RowidAlias {
			if !v.IsNull() {
				r := v.Int64()
				explicitRowid = &r
			}
			continue
		}
		row[ord] = coerceAffinity(v, def.Columns[ord].Affinity)
	}

	var rowid int64
	if explicitRowid != nil {
		rowid = *explicitRowid
	} else {
		r, err := tx.nextRowid(table, def)
		if err != nil {
			return 0, sharcerr.Classify(err)
		}
		rowid = r
	}

	buf := make([]byte, record.ComputedEncodedSize(row))
	record.EncodeRecord(row, buf)

	mu := btree.NewMutator(tx.shadow, tx.db.usable, tx.freelist, tx.nextPage)
	newRoot, err := mu.Insert(def.RootPage, rowid, buf)
	tx.nextPage = mu.NextPage()
	if err != nil {
		return 0, sharcerr.Classify(err)
	}
	def.RootPage = newRoot

	if err := tx.maintainIndexesOnInsert(def, row, rowid); err != nil {
		return 0, err
	}

	if rowid > tx.db.maxRowid[table] {
		tx.db.maxRowid[table] = rowid
	}
	tx.mutations = append(tx.mutations, Mutation{Table: table, Rowid: rowid, Kind: agent.OpInsert})
	return rowid, nil
}

// Update replaces the stored row at rowid with values (by column
// name; unmentioned columns are left unchanged).
func (tx *Tx) Update(table string, rowid int64, values map[string]interface{}) error {
	if err := tx.checkDone(); err != nil {
		return err
	}
	if err := tx.authorize(agent.OpUpdate, table); err != nil {
		return err
	}
	def := tx.db.cat.GetTable(table)
	if def == nil {
		return sharcerr.Wrap(sharcerr.SchemaMismatch, schema.ErrTableNotFound)
	}
	if def.WithoutRowID {
		return sharcerr.New(sharcerr.UnsupportedFeature, "sharc: programmatic Update does not support WITHOUT ROWID tables")
	}

	cur := btree.NewCursor(tx.shadow, def.RootPage, tx.db.usable)
	if err := cur.Seek(rowid); err != nil {
		return sharcerr.Classify(err)
	}
	oldRow, err := decodeFullRow(cur.Payload(), def)
	if err != nil {
		return sharcerr.Classify(err)
	}

	newRow := append([]sqlvalue.Value(nil), oldRow...)
	for name, raw := range values {
		_, ord := def.GetColumn(name)
		if ord < 0 {
			return sharcerr.New(sharcerr.SchemaMismatch, "sharc: no such column: "+name)
		}
		if ord == def.RowidAlias {
			continue
		}
		v, err := goToValue(raw)
		if err != nil {
			return sharcerr.Wrap(sharcerr.InvalidOperation, err)
		}
		newRow[ord] = coerceAffinity(v, def.Columns[ord].Affinity)
	}

	if err := tx.maintainIndexesOnDelete(def, oldRow, rowid); err != nil {
		return err
	}

	buf := make([]byte, record.ComputedEncodedSize(newRow))
	record.EncodeRecord(newRow, buf)
	mu := btree.NewMutator(tx.shadow, tx.db.usable, tx.freelist, tx.nextPage)
	newRoot, err := mu.Insert(def.RootPage, rowid, buf)
	tx.nextPage = mu.NextPage()
	if err != nil {
		return sharcerr.Classify(err)
	}
	def.RootPage = newRoot

	if err := tx.maintainIndexesOnInsert(def, newRow, rowid); err != nil {
		return err
	}

	tx.mutations = append(tx.mutations, Mutation{Table: table, Rowid: rowid, Kind: agent.OpUpdate})
	return nil
}

// Delete removes the row identified by rowid from table.
func (tx *Tx) Delete(table string, rowid int64) error {
	if err := tx.checkDone(); err != nil {
		return err
	}
	if err := tx.authorize(agent.OpDelete, table); err != nil {
		return err
	}
	def := tx.db.cat.GetTable(table)
	if def == nil {
		return sharcerr.Wrap(sharcerr.SchemaMismatch, schema.ErrTableNotFound)
	}
	if def.WithoutRowID {
		return sharcerr.New(sharcerr.UnsupportedFeature, "sharc: programmatic Delete does not support WITHOUT ROWID tables")
	}

	cur := btree.NewCursor(tx.shadow, def.RootPage, tx.db.usable)
	if err := cur.Seek(rowid); err != nil {
		if err == btree.ErrNotFound {
			return sharcerr.New(sharcerr.NotFound, "sharc: no such row")
		}
		return sharcerr.Classify(err)
	}
	oldRow, err := decodeFullRow(cur.Payload(), def)
	if err != nil {
		return sharcerr.Classify(err)
	}

	mu := btree.NewMutator(tx.shadow, tx.db.usable, tx.freelist, tx.nextPage)
	newRoot, err := mu.Delete(def.RootPage, rowid)
	tx.nextPage = mu.NextPage()
	if err != nil {
		return sharcerr.Classify(err)
	}
	def.RootPage = newRoot

	if err := tx.maintainIndexesOnDelete(def, oldRow, rowid); err != nil {
		return err
	}

	tx.mutations = append(tx.mutations, Mutation{Table: table, Rowid: rowid, Kind: agent.OpDelete})
	return nil
}

func (tx *Tx) maintainIndexesOnInsert(def *schema.TableDef, row []sqlvalue.Value, rowid int64) error {
	for _, idx := range tx.db.cat.IndexesForTable(def.Name) {
		key, err := encodeIndexKey(idx, def, row, rowid)
		if err != nil {
			return sharcerr.Classify(err)
		}
		im := btree.NewIndexMutator(tx.shadow, tx.db.usable, tx.freelist, tx.nextPage)
		newRoot, err := im.Insert(idx.RootPage, key)
		tx.nextPage = im.NextPage()
		if err != nil {
			return sharcerr.Classify(err)
		}
		idx.RootPage = newRoot
	}
	return nil
}

func (tx *Tx) maintainIndexesOnDelete(def *schema.TableDef, row []sqlvalue.Value, rowid int64) error {
	for _, idx := range tx.db.cat.IndexesForTable(def.Name) {
		key, err := encodeIndexKey(idx, def, row, rowid)
		if err != nil {
			return sharcerr.Classify(err)
		}
		im := btree.NewIndexMutator(tx.shadow, tx.db.usable, tx.freelist, tx.nextPage)
		newRoot, err := im.Delete(idx.RootPage, key)
		tx.nextPage = im.NextPage()
		if err != nil {
			return sharcerr.Classify(err)
		}
		idx.RootPage = newRoot
	}
	return nil
}

// nextRowid returns the next unused rowid for table, consulting (and
// updating) the handle-wide cache rather than rescanning the b-tree
// on every insert.
func (tx *Tx) nextRowid(table string, def *schema.TableDef) (int64, error) {
	if max, ok := tx.db.maxRowid[table]; ok {
		return max + 1, nil
	}
	cur := btree.NewCursor(tx.shadow, def.RootPage, tx.db.usable)
	if err := cur.First(); err != nil {
		return 0, err
	}
	var max int64
	for cur.Valid() {
		if cur.Rowid() > max {
			max = cur.Rowid()
		}
		if err := cur.Next(); err != nil {
			return 0, err
		}
	}
	return max + 1, nil
}

// encodeIndexKey builds the byte-comparable index key for row:
// its indexed columns, in index-definition order, followed by the
// owning rowid as a trailing integer column — matching
// pkg/exec/scan.go's indexScanReader decode convention.
func encodeIndexKey(idx *schema.IndexDef, table *schema.TableDef, row []sqlvalue.Value, rowid int64) ([]byte, error) {
	values := make([]sqlvalue.Value, 0, len(idx.Columns)+1)
	for _, colName := range idx.Columns {
		_, ord := table.GetColumn(colName)
		if ord < 0 {
			return nil, sharcerr.New(sharcerr.SchemaMismatch, "sharc: index references unknown column: "+colName)
		}
		if ord == table.RowidAlias {
			values = append(values, sqlvalue.Int(rowid))
		} else {
			values = append(values, row[ord])
		}
	}
	values = append(values, sqlvalue.Int(rowid))
	buf := make([]byte, record.ComputedEncodedSize(values))
	record.EncodeRecord(values, buf)
	return buf, nil
}

// decodeFullRow decodes every declared column of a table row's
// payload, applying the same rowid-alias substitution
// pkg/exec/scan.go's decodeRow does.
func decodeFullRow(payload []byte, table *schema.TableDef) ([]sqlvalue.Value, error) {
	types := make([]serial.Type, len(table.Columns))
	n, bodyOffset, err := record.ReadSerialTypes(payload, types)
	if err != nil {
		return nil, err
	}
	row := make([]sqlvalue.Value, len(table.Columns))
	for i := range table.Columns {
		if i == table.RowidAlias {
			row[i] = sqlvalue.Null()
			continue
		}
		if i >= n {
			row[i] = sqlvalue.Null()
			continue
		}
		v, err := record.DecodeColumn(payload, i, types[:n], bodyOffset)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// goToValue converts a Go literal into a sqlvalue.Value. Supported
// kinds mirror what a caller can plausibly have on hand after
// decoding JSON, a form post, or a Go literal: nil, sqlvalue.Value,
// int, int32, int64, float32, float64, string, []byte, and bool (stored
// as integer 1 or 0). Any other type, including the other integer
// kinds, is rejected.
func goToValue(v interface{}) (sqlvalue.Value, error) {
	switch x := v.(type) {
	case nil:
		return sqlvalue.Null(), nil
	case sqlvalue.Value:
		return x, nil
	case int:
		return sqlvalue.Int(int64(x)), nil
	case int32:
		return sqlvalue.Int(int64(x)), nil
	case int64:
		return sqlvalue.Int(x), nil
	case float32:
		return sqlvalue.Real(float64(x)), nil
	case float64:
		return sqlvalue.Real(x), nil
	case string:
		return sqlvalue.Text(x), nil
	case []byte:
		return sqlvalue.Blob(x), nil
	case bool:
		if x {
			return sqlvalue.Int(1), nil
		}
		return sqlvalue.Int(0), nil
	default:
		return sqlvalue.Value{}, sharcerr.New(sharcerr.InvalidOperation, "sharc: unsupported Go value type for insert/update")
	}
}

// coerceAffinity applies SQLite's column-affinity coercion rules
// (spec section 4.13 / pkg/schema.ColumnAffinity) to a value about to
// be stored. Only two conversions are made: INTEGER affinity turns an
// integral REAL into an INTEGER, and REAL affinity turns an INTEGER into
// a REAL. Every other value is stored as given: TEXT values are not
// converted to numbers under any affinity, NUMERIC affinity converts
// nothing, and TEXT affinity does not convert numbers to text.
func coerceAffinity(v sqlvalue.Value, aff schema.Affinity) sqlvalue.Value {
	if v.IsNull() {
		return v
	}
	switch aff {
	case schema.AffinityInteger:
		switch v.Kind() {
		case sqlvalue.KindReal:
			if f := v.Float64(); f == float64(int64(f)) {
				return sqlvalue.Int(int64(f))
			}
		}
		return v
	case schema.AffinityReal:
		if v.Kind() == sqlvalue.KindInteger {
			return sqlvalue.Real(v.Float64())
		}
		return v
	case schema.AffinityText:
		switch v.Kind() {
		case sqlvalue.KindInteger, sqlvalue.KindReal:
			return v
		}
		return v
	default:
		return v
	}
}
