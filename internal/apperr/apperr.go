// Package apperr defines the error taxonomy shared by the auth pipeline, the
// middleware chain and the terminal error handler.
//
// Validation, Auth and Token errors are expected outcomes and are answered
// where they happen. Csrf errors are answered by the CSRF middleware. Every
// other error is a Fault and ends up in the terminal handler.
package apperr

import (
	"net/http"

	"github.com/pkg/errors"
)

// Kind classifies an error for the HTTP layer.
type Kind int

const (
	KindFault Kind = iota
	KindValidation
	KindAuth
	KindToken
	KindCsrf
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindToken:
		return "token"
	case KindCsrf:
		return "csrf"
	default:
		return "fault"
	}
}

// Error is an application error with a message that is safe to show to the
// user. Field names the offending form field for validation errors.
type Error struct {
	Kind    Kind
	Message string
	Field   string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Kind.String() + ": " + e.Message + ": " + e.cause.Error()
	}
	return e.Kind.String() + ": " + e.Message
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// Status returns the HTTP status the kind maps to.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation, KindAuth:
		return http.StatusUnprocessableEntity
	case KindToken:
		return http.StatusFound
	case KindCsrf:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Validation reports user-correctable input on field.
func Validation(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: msg}
}

// Auth reports rejected credentials.
func Auth(msg string) *Error {
	return &Error{Kind: KindAuth, Message: msg}
}

// Token reports a missing, expired or already used reset token.
func Token(msg string) *Error {
	return &Error{Kind: KindToken, Message: msg}
}

// Csrf reports a missing or mismatched CSRF token.
func Csrf() *Error {
	return &Error{Kind: KindCsrf, Message: "invalid csrf token"}
}

// Fault wraps an unexpected failure. The message is never shown to users.
func Fault(err error, msg string) *Error {
	return &Error{Kind: KindFault, Message: msg, cause: errors.WithStack(err)}
}

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// KindOf returns the kind of err; untyped errors are faults.
func KindOf(err error) Kind {
	if ae, ok := As(err); ok {
		return ae.Kind
	}
	return KindFault
}
