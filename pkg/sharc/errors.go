package sharc

import "errors"

var (
	errDatabaseLocked = errors.New("sharc: database is locked by another handle")
	errTxDone         = errors.New("sharc: transaction has already committed or rolled back")
	errWriteInFlight  = errors.New("sharc: a write transaction is already active on this handle")
	errStmtClosed     = errors.New("sharc: statement is closed")
	errRowsClosed     = errors.New("sharc: rows are closed")
	errNoRows         = errors.New("sharc: no rows in result set")
	errScanBeforeNext = errors.New("sharc: Scan called before Next")
)
