// Package apperr defines the error kinds surfaced to HTTP clients. Domain
// packages declare sentinel *Error values or wrap causes with one of the
// constructors; the api package maps kinds to status codes in one place.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies an error for the HTTP boundary.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindRateLimit
	KindUnsupportedMedia
	KindProvider
	KindProviderRateLimit
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindRateLimit:
		return "rate_limit"
	case KindUnsupportedMedia:
		return "unsupported_media"
	case KindProvider:
		return "provider"
	case KindProviderRateLimit:
		return "provider_rate_limit"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Status reports the HTTP status code for the kind. Duplicate registrations
// are reported as 400 to match the public API contract.
func (k Kind) Status() int {
	switch k {
	case KindValidation, KindUnsupportedMedia, KindConflict:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindRateLimit, KindProviderRateLimit:
		return http.StatusTooManyRequests
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// FieldError is a single per-field violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the typed application error.
type Error struct {
	Kind    Kind
	Message string
	Details []FieldError
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinel errors by identity, and bare kind templates
// (New(kind, "")) by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e == t {
		return true
	}
	return t.Message == "" && t.Kind == e.Kind
}

// New returns an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Wrap returns an error of the given kind carrying cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// Validation builds a validation error with per-field details.
func Validation(msg string, details ...FieldError) *Error {
	return &Error{Kind: KindValidation, Message: msg, Details: details}
}

// Provider wraps a remote-provider failure. The provider's message is kept in
// the error text so callers see what the remote side reported.
func Provider(msg string, cause error) *Error {
	return &Error{Kind: KindProvider, Message: msg, Err: cause}
}

// Sentinel wraps sentinel with an additional cause while keeping errors.Is
// matches against the sentinel.
func Sentinel(sentinel *Error, cause error) error {
	if cause == nil {
		return sentinel
	}
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Details: sentinel.Details, Err: &wrapped{sentinel: sentinel, cause: cause}}
}

type wrapped struct {
	sentinel *Error
	cause    error
}

func (w *wrapped) Error() string { return w.cause.Error() }

func (w *wrapped) Unwrap() []error { return []error{w.sentinel, w.cause} }

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// As extracts the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
