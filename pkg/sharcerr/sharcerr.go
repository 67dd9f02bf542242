// Package sharcerr classifies every error the engine surfaces into one of
// the kinds spec section 7 names, independent of the originating package's
// own sentinel errors. A kind is a classification, not a distinct Go type:
// callers compare it with Kind(), not with errors.Is against a per-site var.
package sharcerr

import (
	"errors"
	"fmt"

	"sharc/pkg/btree"
	"sharc/pkg/btreepage"
	"sharc/pkg/dbheader"
	"sharc/pkg/record"
	"sharc/pkg/schema"
	"sharc/pkg/transform"
)

// Kind is one of the eleven error classifications spec section 7 names.
type Kind int

const (
	InvalidFile Kind = iota
	UnsupportedFeature
	CorruptPage
	IoError
	CryptoVerifyFailed
	SchemaMismatch
	Unauthorized
	InvalidOperation
	ParseError
	ConstraintFailure
	NotFound
)

func (k Kind) String() string {
	switch k {
	case InvalidFile:
		return "InvalidFile"
	case UnsupportedFeature:
		return "UnsupportedFeature"
	case CorruptPage:
		return "CorruptPage"
	case IoError:
		return "IoError"
	case CryptoVerifyFailed:
		return "CryptoVerifyFailed"
	case SchemaMismatch:
		return "SchemaMismatch"
	case Unauthorized:
		return "Unauthorized"
	case InvalidOperation:
		return "InvalidOperation"
	case ParseError:
		return "ParseError"
	case ConstraintFailure:
		return "ConstraintFailure"
	case NotFound:
		return "NotFound"
	}
	return "Unknown"
}

// Error wraps an underlying cause with a classification kind. It is the
// only error type this module mints directly; every other package keeps
// its own plain sentinel errors, which Classify recognizes at the
// pkg/sharc boundary.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

func Wrap(kind Kind, cause error) *Error {
	return &Error{kind: kind, msg: cause.Error(), cause: cause}
}

func Wrapf(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...) + ": " + cause.Error(), cause: cause}
}

func (e *Error) Error() string { return e.kind.String() + ": " + e.msg }
func (e *Error) Kind() Kind    { return e.kind }
func (e *Error) Unwrap() error { return e.cause }

// Is reports whether err carries kind, either directly or through any
// wrapped *Error in its chain.
func Is(err error, kind Kind) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.kind == kind
	}
	return false
}

// KindOf returns err's kind if it is (or wraps) a *Error, classifying
// unrecognized errors as IoError, the catch-all for "something the
// underlying page source or OS reported" per spec section 7.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.kind
	}
	return IoError
}

// Classify maps a lower-layer sentinel error to the spec's error kind,
// wrapping it in an *Error so callers anywhere above pkg/sharc's entry
// points see a consistent classification without every package having
// to import sharcerr itself.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	switch {
	case errors.Is(err, dbheader.ErrHeaderTooShort), errors.Is(err, dbheader.ErrBadMagic), errors.Is(err, dbheader.ErrBadPageSize):
		return Wrap(InvalidFile, err)
	case errors.Is(err, dbheader.ErrUnsupportedEncoding):
		return Wrap(UnsupportedFeature, err)
	case errors.Is(err, transform.ErrVerifyFailed):
		return Wrap(CryptoVerifyFailed, err)
	case errors.Is(err, transform.ErrKeyLen):
		return Wrap(UnsupportedFeature, err)
	case errors.Is(err, btree.ErrCorrupt), errors.Is(err, btreepage.ErrBadPageType), errors.Is(err, btreepage.ErrTruncatedPage), errors.Is(err, btreepage.ErrCellOutOfRange):
		return Wrap(CorruptPage, err)
	case errors.Is(err, record.ErrTruncated), errors.Is(err, record.ErrBadOrdinal), errors.Is(err, record.ErrHeaderTooBig):
		return Wrap(CorruptPage, err)
	case errors.Is(err, btree.ErrNotFound):
		return Wrap(NotFound, err)
	case errors.Is(err, schema.ErrTableNotFound), errors.Is(err, schema.ErrIndexNotFound), errors.Is(err, schema.ErrViewNotFound):
		return Wrap(SchemaMismatch, err)
	case errors.Is(err, schema.ErrTableExists), errors.Is(err, schema.ErrIndexExists), errors.Is(err, schema.ErrViewExists):
		return Wrap(ConstraintFailure, err)
	case errors.Is(err, schema.ErrParse):
		return Wrap(ParseError, err)
	default:
		return Wrap(IoError, err)
	}
}
