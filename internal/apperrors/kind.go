package apperrors

import (
	"errors"
	"fmt"
)

// Kind classifies failures returned across the core/caller boundary.
type Kind string

const (
	KindUnauthorized    Kind = "unauthorized"
	KindInvalidTarget   Kind = "invalid_target"
	KindConflict        Kind = "conflict"
	KindAlreadyResolved Kind = "already_resolved"
	KindNotFound        Kind = "not_found"
	KindTransient       Kind = "transient"
	KindInvalid         Kind = "invalid_argument"
)

// Error is a typed failure. Op names the operation that produced it.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict)
// works regardless of Op or Message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Kind sentinels for errors.Is.
var (
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrInvalidTarget   = &Error{Kind: KindInvalidTarget}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrAlreadyResolved = &Error{Kind: KindAlreadyResolved}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrTransient       = &Error{Kind: KindTransient}
	ErrInvalid         = &Error{Kind: KindInvalid}
)

// New builds an Error with a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps a collaborator failure. Existing *Error values pass
// through unchanged.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return err
	}
	return &Error{Kind: KindTransient, Op: op, Message: "temporary failure", Err: err}
}

// KindOf returns the kind of err; unclassified errors are transient.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindTransient
}

// Retryable reports whether a caller may retry the whole operation.
func Retryable(err error) bool {
	return KindOf(err) == KindTransient
}
