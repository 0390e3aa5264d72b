// Package vidqrerr defines the shared error taxonomy used across vidqr:
// invalid argument, invalid state, resource/IO, corrupt data, and
// best-effort partial failure (the five kinds a caller needs to
// distinguish, per the core's error handling design).
package vidqrerr

import (
	"errors"
	"fmt"
)

// Kind classifies an Error so callers can branch on failure category
// without string matching.
type Kind int

const (
	KindInvalidArgument Kind = iota
	KindInvalidState
	KindResource
	KindCorrupt
	KindPartial
)

func (k Kind) String() string {
	switch k {
	case KindInvalidArgument:
		return "invalid_argument"
	case KindInvalidState:
		return "invalid_state"
	case KindResource:
		return "resource"
	case KindCorrupt:
		return "corrupt"
	case KindPartial:
		return "partial"
	default:
		return "unknown"
	}
}

// Error is a classified, wrappable error carrying the operation name.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, &vidqrerr.Error{Kind: vidqrerr.KindX}) style
// checks work by comparing Kind when the target is itself an *Error
// with no wrapped err.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) && t.Err == nil {
		return e.Kind == t.Kind
	}
	return false
}

func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Invalid(op string, err error) *Error  { return New(KindInvalidArgument, op, err) }
func State(op string, err error) *Error    { return New(KindInvalidState, op, err) }
func Resource(op string, err error) *Error { return New(KindResource, op, err) }
func Corrupt(op string, err error) *Error  { return New(KindCorrupt, op, err) }

// KindOf reports the Kind of err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
