// Package errs defines the failure taxonomy shared by acquisition,
// prediction and pipeline components.
package errs

import (
	"errors"
	"fmt"
)

type Kind uint8

const (
	KindUnknown Kind = iota
	KindBlocked
	KindSessionExpired
	KindTransient
	KindMalformed
	KindInsufficientData
	KindCriticalStageFailure
	KindExhausted
	KindNotFound
	KindInvalid
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindBlocked:
		return "blocked"
	case KindSessionExpired:
		return "session_expired"
	case KindTransient:
		return "transient"
	case KindMalformed:
		return "malformed"
	case KindInsufficientData:
		return "insufficient_data"
	case KindCriticalStageFailure:
		return "critical_stage_failure"
	case KindExhausted:
		return "exhausted"
	case KindNotFound:
		return "not_found"
	case KindInvalid:
		return "invalid"
	case KindConflict:
		return "conflict"
	default:
		return "unknown"
	}
}

// Retryable reports whether a request failing with this kind may be retried.
func (k Kind) Retryable() bool {
	return k == KindBlocked || k == KindTransient || k == KindSessionExpired
}

var (
	ErrBlocked              = &Error{Kind: KindBlocked}
	ErrSessionExpired       = &Error{Kind: KindSessionExpired}
	ErrTransient            = &Error{Kind: KindTransient}
	ErrMalformed            = &Error{Kind: KindMalformed}
	ErrInsufficientData     = &Error{Kind: KindInsufficientData}
	ErrCriticalStageFailure = &Error{Kind: KindCriticalStageFailure}
	ErrExhausted            = &Error{Kind: KindExhausted}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrInvalid              = &Error{Kind: KindInvalid}
	ErrConflict             = &Error{Kind: KindConflict}
)

type Error struct {
	Kind   Kind
	Op     string
	Status int
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrBlocked)
// works regardless of Op or Status.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
