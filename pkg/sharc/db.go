// Package sharc ties the lower layers together into the engine handle
// applications open: DB (a file or in-memory database), Tx (the single
// active write transaction a handle may hold at once, per spec section
// 5), and the prepared query/reader surface built on top of
// pkg/planner and pkg/exec. Grounded on mjm918-tur/pkg/turdb's
// db.go/tx.go/stmt.go/rows.go/pool.go, generalized from that package's
// SQL-text-driven mutation API to the programmatic Insert/Update/Delete
// shape this dialect's query surface requires (spec section 6.2 never
// defines INSERT/UPDATE/DELETE syntax).
package sharc

import (
	"os"
	"sync"

	"sharc/pkg/agent"
	"sharc/pkg/btree"
	"sharc/pkg/dbheader"
	"sharc/pkg/journal"
	"sharc/pkg/pagesource"
	"sharc/pkg/schema"
	"sharc/pkg/sharcerr"
	"sharc/pkg/transform"
)

// Options configures Open/OpenMemory.
type Options struct {
	// PageSize is used only when creating a brand-new database; an
	// existing file's page size is read from its own header.
	PageSize int
	ReadOnly bool
	// CacheCapacity, when non-zero, wraps the base page source in a
	// pagesource.Cached LRU of that many pages.
	CacheCapacity int
	// EncryptionKey, when non-nil, opens the file through a
	// pagesource.Decrypting wrapping transform.AESGCM, per spec section
	// 4.10's encrypted-header format. PageSize must be set explicitly
	// in this case: the real header is unreadable before decryption.
	EncryptionKey []byte
}

// Mutation is one row change reported to a commit observer, per spec
// section 9's "observer notifications as message passing" design
// note: a snapshot list handed to observers after the journal for the
// committing transaction has been deleted.
type Mutation struct {
	Table string
	Rowid int64
	Kind  agent.Operation // OpInsert, OpUpdate, or OpDelete
}

// DB is an open database handle. At most one write transaction may be
// active at a time (spec section 5); readers during that transaction
// observe its uncommitted writes through the same proxy swap the
// transaction itself writes through.
type DB struct {
	mu sync.Mutex

	path   string
	memory bool

	lockFile *os.File

	base   pagesource.Writable
	proxy  *pagesource.Proxy
	header *dbheader.Header
	usable int

	cat *schema.Catalog

	journalPath string

	writing     bool
	entitlement agent.Entitlement
	observers   []func([]Mutation)
	maxRowid    map[string]int64
	shadowPool  sync.Pool

	closed bool
}

type grower interface {
	Grow(n uint32) error
}

// Open opens (or creates) a database file at path.
func Open(path string, opts Options) (*DB, error) {
	if opts.PageSize == 0 {
		opts.PageSize = dbheader.DefaultPageSize
	}

	lf, err := os.OpenFile(path+".lock", os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, sharcerr.Wrap(sharcerr.IoError, err)
	}
	if err := lockFile(lf); err != nil {
		lf.Close()
		return nil, sharcerr.Wrap(sharcerr.Unauthorized, err)
	}

	fresh := false
	if st, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			unlockFile(lf)
			lf.Close()
			return nil, sharcerr.Wrap(sharcerr.IoError, err)
		}
		fresh = true
	} else if st.Size() == 0 {
		fresh = true
	}

	journalPath := path + "-journal"
	pageSize := opts.PageSize
	if !fresh && journal.Exists(journalPath) {
		if jpSize, _, err := journal.Read(journalPath); err == nil && jpSize > 0 {
			pageSize = jpSize
		}
	}

	var base pagesource.Writable
	if fresh {
		f, err := pagesource.OpenFile(path, pageSize, false)
		if err != nil {
			unlockFile(lf)
			lf.Close()
			return nil, sharcerr.Wrap(sharcerr.IoError, err)
		}
		base = f
		if err := initializeFreshDatabase(base, pageSize); err != nil {
			f.Close()
			unlockFile(lf)
			lf.Close()
			return nil, sharcerr.Classify(err)
		}
	} else {
		realSize, err := detectPageSize(path)
		if err != nil {
			unlockFile(lf)
			lf.Close()
			return nil, sharcerr.Classify(err)
		}
		pageSize = realSize
		f, err := pagesource.OpenFile(path, pageSize, opts.ReadOnly)
		if err != nil {
			unlockFile(lf)
			lf.Close()
			return nil, sharcerr.Wrap(sharcerr.IoError, err)
		}
		base = f
	}

	if journal.Exists(journalPath) {
		if err := journal.Recover(journalPath, base); err != nil {
			base.(*pagesource.File).Close()
			unlockFile(lf)
			lf.Close()
			return nil, sharcerr.Wrap(sharcerr.InvalidFile, err)
		}
	}

	if len(opts.EncryptionKey) > 0 {
		tr, err := transform.NewAESGCM(opts.EncryptionKey)
		if err != nil {
			base.(*pagesource.File).Close()
			unlockFile(lf)
			lf.Close()
			return nil, sharcerr.Classify(err)
		}
		base = &decryptingWritable{Decrypting: pagesource.NewDecrypting(base, tr, pageSize), backing: base}
	}

	if opts.CacheCapacity > 0 {
		base = &cachedWritable{Cached: pagesource.NewCached(base, opts.CacheCapacity), backing: base}
	}

	db, err := newDB(path, base, journalPath)
	if err != nil {
		return nil, err
	}
	db.lockFile = lf
	return db, nil
}

// OpenMemory opens a transient, unbacked database that disappears on
// Close. No journal or lock file is used: spec section 4.9's crash
// recovery story has nothing to recover from a memory-only handle.
func OpenMemory(opts Options) (*DB, error) {
	if opts.PageSize == 0 {
		opts.PageSize = dbheader.DefaultPageSize
	}
	mem := pagesource.NewMemory(opts.PageSize)
	if err := initializeFreshDatabase(mem, opts.PageSize); err != nil {
		return nil, sharcerr.Classify(err)
	}
	return newDB(":memory:", mem, "")
}

func newDB(path string, base pagesource.Writable, journalPath string) (*DB, error) {
	hdrBuf, err := base.GetPage(1)
	if err != nil {
		return nil, sharcerr.Classify(err)
	}
	header, err := dbheader.Decode(hdrBuf[:dbheader.Size])
	if err != nil {
		return nil, sharcerr.Classify(err)
	}
	usable := header.UsablePageSize()

	cat, err := schema.ReadCatalog(base, usable, header.SchemaCookie)
	if err != nil {
		return nil, sharcerr.Classify(err)
	}

	db := &DB{
		path:      path,
		memory:    journalPath == "",
		base:      base,
		proxy:     pagesource.NewProxy(base),
		header:    header,
		usable:    usable,
		cat:       cat,
		maxRowid:  make(map[string]int64),
	}
	db.journalPath = journalPath
	return db, nil
}

func initializeFreshDatabase(dst pagesource.Writable, pageSize int) error {
	h := dbheader.New(uint32(pageSize))
	h.PageCount = 1
	buf := make([]byte, pageSize)
	copy(buf, h.Encode())
	buf[dbheader.Size] = 0x0d // leaf table page type (btreepage.TypeLeafTable)
	if err := dst.WritePage(1, buf); err != nil {
		return err
	}
	return dst.Flush()
}

// detectPageSize reads just enough of an existing file to decode its
// page size, without knowing it up front (File.OpenFile requires a
// page size to compute page boundaries for mmap, so the first open is
// unavoidably a guess the header then corrects).
func detectPageSize(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	buf := make([]byte, dbheader.Size)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return 0, err
	}
	h, err := dbheader.Decode(buf)
	if err != nil {
		return 0, err
	}
	return int(h.PageSize), nil
}

// Path reports the file path the handle was opened with, or
// ":memory:" for an in-memory database.
func (db *DB) Path() string { return db.path }

// Catalog returns the current schema catalog. Callers must not mutate
// the returned value; it is replaced wholesale after a commit that
// changes the schema.
func (db *DB) Catalog() *schema.Catalog {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.cat
}

// SetEntitlement installs the contract every prepared handle's
// mutating operation is authorized through. A nil entitlement (the
// default) permits every operation.
func (db *DB) SetEntitlement(e agent.Entitlement) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.entitlement = e
}

// OnCommit registers fn to be invoked with the list of row mutations
// made by a transaction, after that transaction's journal entry has
// been deleted. A panic or any other failure inside fn never affects
// the transaction, which has already committed by the time fn runs.
func (db *DB) OnCommit(fn func([]Mutation)) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.observers = append(db.observers, fn)
}

func (db *DB) notifyCommit(muts []Mutation) {
	if len(muts) == 0 {
		return
	}
	db.mu.Lock()
	observers := make([]func([]Mutation), len(db.observers))
	copy(observers, db.observers)
	db.mu.Unlock()
	for _, obs := range observers {
		runObserver(obs, muts)
	}
}

func runObserver(obs func([]Mutation), muts []Mutation) {
	defer func() { recover() }()
	obs(muts)
}

// Close releases the handle's file descriptor and advisory lock. It is
// an error to call Close while a transaction is active.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil
	}
	if db.writing {
		return sharcerr.New(sharcerr.InvalidOperation, "sharc: close called with an active transaction")
	}
	db.closed = true

	var err error
	if f, ok := db.base.(interface{ Close() error }); ok {
		err = f.Close()
	}
	if db.lockFile != nil {
		unlockFile(db.lockFile)
		db.lockFile.Close()
	}
	if err != nil {
		return sharcerr.Wrap(sharcerr.IoError, err)
	}
	return nil
}

// cachedWritable and decryptingWritable adapt the read-oriented Cached
// and Decrypting wrappers (whose WritePage/Flush already exist, but
// which only type-assert cleanly to pagesource.Writable once paired
// with a concrete backing source for interfaces like grower) so Grow
// still reaches the real file underneath.
type cachedWritable struct {
	*pagesource.Cached
	backing pagesource.Writable
}

func (c *cachedWritable) Grow(n uint32) error {
	if g, ok := c.backing.(grower); ok {
		return g.Grow(n)
	}
	return nil
}

type decryptingWritable struct {
	*pagesource.Decrypting
	backing pagesource.Writable
}

func (d *decryptingWritable) Grow(n uint32) error {
	if g, ok := d.backing.(grower); ok {
		return g.Grow(n)
	}
	return nil
}

// freelistFromHeader and mutatorFromHeader build the allocator
// bookkeeping a transaction or schema writer needs from the header
// fields persisted in page 1.
func freelistFromHeader(src pagesource.Writable, usable int, h *dbheader.Header) *btree.Freelist {
	return btree.NewFreelist(src, usable, h.FreelistTrunk, h.FreelistCount)
}
