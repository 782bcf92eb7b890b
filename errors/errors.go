package errors

import (
	"fmt"
	"path/filepath"
	"runtime"
)

// Kind classifies an error into one of the failure categories the gateway
// reports to its caller. The set is closed; callers switch on it.
type Kind string

const (
	NotFound           Kind = "not_found"
	PermissionDenied   Kind = "permission_denied"
	Timeout            Kind = "timeout"
	InvalidArgument    Kind = "invalid_argument"
	RemoteUnavailable  Kind = "remote_unavailable"
	ConfigurationError Kind = "configuration_error"
)

// Error is a typed error with an optional chained cause.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Cause)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// E creates a typed error. The message includes the caller's file and line.
func E(kind Kind, format string, a ...interface{}) error {
	return &Error{
		Kind: kind,
		Msg:  fmt.Sprintf("[%s] %s", location(2), fmt.Sprintf(format, a...)),
	}
}

// Wrap attaches a kind and context to an existing error. Returns nil if the
// provided error is nil.
func Wrap(kind Kind, err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{
		Kind:  kind,
		Msg:   fmt.Sprintf("[%s] %s", location(2), fmt.Sprintf(format, a...)),
		Cause: err,
	}
}

// New creates a new untyped error with file and line number information.
func New(format string, a ...interface{}) error {
	return fmt.Errorf("[%s] %s", location(2), fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %s: %w", location(2), fmt.Sprintf(format, a...), err)
}

// KindOf returns the kind of the outermost typed error in the chain, or the
// empty string when no typed error is present.
func KindOf(err error) Kind {
	for err != nil {
		if te, ok := err.(*Error); ok && te.Kind != "" {
			return te.Kind
		}
		err = unwrap(err)
	}
	return ""
}

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if te, ok := err.(*Error); ok && te.Kind == kind {
			return true
		}
		err = unwrap(err)
	}
	return false
}

func unwrap(err error) error {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return nil
	}
	return u.Unwrap()
}

func location(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "???:0"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
