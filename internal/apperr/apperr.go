// Package apperr classifies handler failures so the router can decide how
// to report and whether to log them.
package apperr

import (
	"errors"
	"fmt"
)

// Kind is the category of a handler failure.
type Kind int

const (
	Unexpected Kind = iota
	UserInput
	External
	Permission
	NotFound
	SessionLimit
)

func (k Kind) String() string {
	switch k {
	case UserInput:
		return "user_input"
	case External:
		return "external"
	case Permission:
		return "permission"
	case NotFound:
		return "not_found"
	case SessionLimit:
		return "session_limit"
	default:
		return "unexpected"
	}
}

// Logged reports whether failures of this kind are logged at error level.
func (k Kind) Logged() bool {
	return k == External || k == Unexpected
}

// Error is a classified failure. Message is safe to show to the user.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates a classified error with an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func UserInputf(format string, args ...interface{}) *Error {
	return New(UserInput, fmt.Sprintf(format, args...))
}

func Externalf(err error, format string, args ...interface{}) *Error {
	return Wrap(External, fmt.Sprintf(format, args...), err)
}

func NotFoundf(format string, args ...interface{}) *Error {
	return New(NotFound, fmt.Sprintf(format, args...))
}

func Permissionf(format string, args ...interface{}) *Error {
	return New(Permission, fmt.Sprintf(format, args...))
}

// As extracts a classified error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err, Unexpected when unclassified.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return Unexpected
}

// Is reports whether err is classified as kind.
func Is(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
