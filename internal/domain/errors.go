package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an error for transport mapping. The wrapped cause stays
// server-side; only Code and Message are rendered to clients.
type Kind int

const (
	KindValidation Kind = iota
	KindConflict
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindInternal
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func NewError(kind Kind, code, message string, cause error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, cause: cause}
}

func ValidationError(code, message string) *Error {
	return NewError(KindValidation, code, message, nil)
}

func ConflictError(code, message string) *Error {
	return NewError(KindConflict, code, message, nil)
}

func AuthenticationError(code, message string) *Error {
	return NewError(KindAuthentication, code, message, nil)
}

func AuthorizationError(code, message string) *Error {
	return NewError(KindAuthorization, code, message, nil)
}

func NotFoundError(code, message string) *Error {
	return NewError(KindNotFound, code, message, nil)
}

func InternalError(code, message string, cause error) *Error {
	return NewError(KindInternal, code, message, cause)
}

// AsError extracts the coded error, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf reports the kind of err, defaulting to KindInternal for errors
// that did not originate in this package.
func KindOf(err error) Kind {
	if de, ok := AsError(err); ok {
		return de.Kind
	}
	return KindInternal
}
