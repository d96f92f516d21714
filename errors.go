package hashcache

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind classifies every failure the cache reports, whatever the backend.
type Kind uint8

const (
	_ Kind = iota
	KindInsertion
	KindDeletion
	KindAccess // includes record decoding failures
	KindConnection
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindInsertion:
		return "insertion"
	case KindDeletion:
		return "deletion"
	case KindAccess:
		return "access"
	case KindConnection:
		return "connection"
	case KindOther:
		return "other"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrInsertion  = &Error{Kind: KindInsertion}
	ErrDeletion   = &Error{Kind: KindDeletion}
	ErrAccess     = &Error{Kind: KindAccess}
	ErrConnection = &Error{Kind: KindConnection}
	ErrOther      = &Error{Kind: KindOther}
)

// Error is the single error type returned by Cache operations.
type Error struct {
	Kind Kind
	Op   string // operation, e.g. "insert", "hash_get"
	Key  string // storage key, when one is involved
	Err  error  // backend or decoding cause
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("hashcache: ")
	b.WriteString(e.Kind.String())
	b.WriteString(" error")
	if e.Op != "" {
		b.WriteString(" in ")
		b.WriteString(e.Op)
	}
	if e.Key != "" {
		b.WriteString(" ")
		b.WriteString(strconv.Quote(e.Key))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Key == "" && t.Err == nil && t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

var errEmptyRecord = errors.New("record has no fields")

func newError(kind Kind, op, key string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Key: key, Err: cause}
}

func errNoArgs(op, key, what string) *Error {
	return newError(KindOther, op, key, errors.Newf("at least one %s is required", what))
}
