package sharc

import (
	"sharc/pkg/agent"
	"sharc/pkg/exec"
	"sharc/pkg/pagesource"
	"sharc/pkg/planner"
	"sharc/pkg/schema"
	"sharc/pkg/sharcerr"
	"sharc/pkg/sqlvalue"
)

// Stmt is a SELECT statement prepared once and executed (possibly
// many times) against a DB's current state. Grounded on
// mjm918-tur/pkg/turdb/stmt.go, cut down to the SELECT-only grammar
// pkg/sqlparse implements: DDL and row mutation go through Tx.Exec and
// Tx.Insert/Update/Delete instead.
type Stmt struct {
	db           *DB
	sql          string
	intent       *planner.Intent
	schemaCookie uint32
	closed       bool
}

// Prepare parses and plans sqlText against the handle's current
// catalog. Re-planning happens automatically on every Query call if
// the schema cookie has since changed (mirrors pkg/planner.Cache's
// invalidation rule), so a Stmt survives schema changes rather than
// needing to be re-prepared.
func (db *DB) Prepare(sqlText string) (*Stmt, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.closed {
		return nil, sharcerr.New(sharcerr.InvalidOperation, "sharc: database is closed")
	}
	intent, err := planner.BuildIntent(db.cat, sqlText)
	if err != nil {
		return nil, sharcerr.Wrap(sharcerr.ParseError, err)
	}
	return &Stmt{db: db, sql: sqlText, intent: intent, schemaCookie: db.cat.SchemaCookie}, nil
}

// Close releases the statement. Safe to call more than once.
func (s *Stmt) Close() error {
	s.closed = true
	return nil
}

// Query executes the prepared statement and returns a Rows over the
// handle's current page source: the live base, or the active write
// transaction's shadow if one is open, via the same Proxy a
// transaction itself writes through.
func (s *Stmt) Query(params ...sqlvalue.Value) (*Rows, error) {
	if s.closed {
		return nil, sharcerr.Wrap(sharcerr.InvalidOperation, errStmtClosed)
	}
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.db.entitlement != nil {
		if err := s.db.entitlement.Authorize(agent.OpQuery, ""); err != nil {
			return nil, sharcerr.Wrap(sharcerr.Unauthorized, err)
		}
	}

	intent := s.intent
	if s.schemaCookie != s.db.cat.SchemaCookie {
		rebuilt, err := planner.BuildIntent(s.db.cat, s.sql)
		if err != nil {
			return nil, sharcerr.Wrap(sharcerr.ParseError, err)
		}
		intent = rebuilt
		s.intent = rebuilt
		s.schemaCookie = s.db.cat.SchemaCookie
	}

	plan, err := planner.Build(s.db.cat, intent)
	if err != nil {
		return nil, sharcerr.Classify(err)
	}
	stats := &exec.Stats{}
	reader, err := exec.Execute(s.db.cat, s.db.proxy, s.db.usable, plan, exec.Params{Positional: params}, stats)
	if err != nil {
		return nil, sharcerr.Classify(err)
	}
	return newRows(reader, stats), nil
}

// Query prepares and immediately executes sqlText against db, a
// one-shot convenience equivalent to Prepare followed by Query.
func (db *DB) Query(sqlText string, params ...sqlvalue.Value) (*Rows, error) {
	stmt, err := db.Prepare(sqlText)
	if err != nil {
		return nil, err
	}
	return stmt.Query(params...)
}

// runQuery is the shared implementation behind DB.Query and
// Tx.Query: a transaction reads against its own shadow (through src)
// rather than db.proxy, since db.proxy has already been swapped to
// that same shadow for the duration of the transaction — passing src
// explicitly keeps Tx.Query correct even if that invariant changes.
func runQuery(cat *schema.Catalog, src pagesource.PageSource, usable int, sqlText string) (*Rows, error) {
	intent, err := planner.BuildIntent(cat, sqlText)
	if err != nil {
		return nil, sharcerr.Wrap(sharcerr.ParseError, err)
	}
	plan, err := planner.Build(cat, intent)
	if err != nil {
		return nil, sharcerr.Classify(err)
	}
	stats := &exec.Stats{}
	reader, err := exec.Execute(cat, src, usable, plan, exec.Params{}, stats)
	if err != nil {
		return nil, sharcerr.Classify(err)
	}
	return newRows(reader, stats), nil
}
