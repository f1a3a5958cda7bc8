package core

import (
	"errors"
	"fmt"
)

// Kind classifies an Error so transports can map it to a response.
type Kind int

const (
	KindNotFound Kind = iota + 1
	KindConflict
	KindCapacityExceeded
	KindInvalidState
	KindForbidden
	KindInvalidArgument
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindConflict:
		return "conflict"
	case KindCapacityExceeded:
		return "capacity exceeded"
	case KindInvalidState:
		return "invalid state"
	case KindForbidden:
		return "forbidden"
	case KindInvalidArgument:
		return "invalid argument"
	case KindUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// Error is returned by every core operation that fails a precondition or
// cannot reach storage.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict)
// works regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrCapacityExceeded = &Error{Kind: KindCapacityExceeded}
	ErrInvalidState     = &Error{Kind: KindInvalidState}
	ErrForbidden        = &Error{Kind: KindForbidden}
	ErrInvalidArgument  = &Error{Kind: KindInvalidArgument}
	ErrUnavailable      = &Error{Kind: KindUnavailable}
)

// ErrMarshalIDTaken is wrapped by the Conflict a UserStore returns when the
// marshal identifier, not the email, already belongs to another account.
var ErrMarshalIDTaken = errors.New("marshal id already allocated")

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// storeErr passes classified errors through and treats anything else as a
// storage failure.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != 0 {
		return err
	}
	return &Error{Kind: KindUnavailable, Msg: op, Err: err}
}

// notFound keeps a NotFound error but gives it a resource-specific message.
func notFound(resource string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return newError(KindNotFound, "%s not found", resource)
	}
	return storeErr("load "+resource, err)
}
