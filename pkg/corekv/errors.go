package corekv

import (
	"fmt"

	"github.com/pkg/errors"
)

// ResultCode tags the taxonomy of errors the core can produce. Values are
// never used as exceptions: every fallible call returns one as part of its
// normal result.
type ResultCode int

const (
	OK ResultCode = iota
	Timeout
	Connection
	ProtocolVersion
	ProtocolType
	Truncated
	Decompress
	UnexpectedKey
	NotFound
	ClusterEmpty
	NoNodeForKey
	MultipleNamespaces
	ServerError
	ClientAbort
	Unsupported
)

func (c ResultCode) String() string {
	switch c {
	case OK:
		return "OK"
	case Timeout:
		return "Timeout"
	case Connection:
		return "Connection"
	case ProtocolVersion:
		return "ProtocolVersion"
	case ProtocolType:
		return "ProtocolType"
	case Truncated:
		return "Truncated"
	case Decompress:
		return "Decompress"
	case UnexpectedKey:
		return "UnexpectedKey"
	case NotFound:
		return "NotFound"
	case ClusterEmpty:
		return "ClusterEmpty"
	case NoNodeForKey:
		return "NoNodeForKey"
	case MultipleNamespaces:
		return "MultipleNamespaces"
	case ServerError:
		return "ServerError"
	case ClientAbort:
		return "ClientAbort"
	case Unsupported:
		return "Unsupported"
	default:
		return "Unknown"
	}
}

// Error is the core's single error type: a tagged code, a server code when
// applicable, and a human message. The stack captured by pkg/errors supplies
// the "origin" the spec asks for without a hand-rolled file/line field.
type Error struct {
	Code       ResultCode
	ServerCode int
	Message    string
	cause      error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code.String()
}

// Unwrap exposes the underlying cause, if any, for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// newError builds a stack-annotated *Error.
func newError(code ResultCode, format string, args ...any) error {
	return errors.WithStack(&Error{Code: code, Message: fmt.Sprintf(format, args...)})
}

func wrapError(code ResultCode, cause error) error {
	if cause == nil {
		return nil
	}
	return errors.WithStack(&Error{Code: code, Message: cause.Error(), cause: cause})
}

func serverError(code int, format string, args ...any) error {
	return errors.WithStack(&Error{Code: ServerError, ServerCode: code, Message: fmt.Sprintf(format, args...)})
}

// CodeOf extracts the ResultCode from err, returning ClientAbort for any
// error not produced by this package.
func CodeOf(err error) ResultCode {
	if err == nil {
		return OK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ClientAbort
}
