// Package apperr defines the closed set of failure kinds returned by the
// service layers and their mapping to HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error.
type Kind int

const (
	// Internal is any unexpected failure. Its detail is never shown to callers.
	Internal Kind = iota
	// InvalidRequest means a malformed query or body.
	InvalidRequest
	// InvalidState means the OAuth state token is unknown or already used.
	InvalidState
	// ExpiredState means the OAuth state token exists but is older than its TTL.
	ExpiredState
	// ProviderRejected means the user denied consent or the provider reported an error.
	ProviderRejected
	// ProviderProtocol means the provider answered with an unexpected response shape.
	ProviderProtocol
	// Conflict means a unique key is already taken.
	Conflict
	// NotFound means the entity does not exist.
	NotFound
	// Disabled means the owning account is disabled and the caller is not privileged.
	Disabled
	// InvalidTemplate means command content violates the variable grammar.
	InvalidTemplate
	// MissingVariable means a template references a variable with no stored value.
	MissingVariable
)

// String returns the kind name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case Internal:
		return "internal"
	case InvalidRequest:
		return "invalid_request"
	case InvalidState:
		return "invalid_state"
	case ExpiredState:
		return "expired_state"
	case ProviderRejected:
		return "provider_rejected"
	case ProviderProtocol:
		return "provider_protocol"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not_found"
	case Disabled:
		return "disabled"
	case InvalidTemplate:
		return "invalid_template"
	case MissingVariable:
		return "missing_variable"
	default:
		return "unknown"
	}
}

// HTTPStatus returns the response status for the kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case InvalidRequest, ExpiredState, InvalidTemplate:
		return http.StatusBadRequest
	case InvalidState, ProviderRejected:
		return http.StatusUnauthorized
	case Disabled:
		return http.StatusForbidden
	case NotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	case ProviderProtocol, MissingVariable, Internal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// Error is an error tagged with a Kind. Message is safe to show to API callers
// for every kind except Internal.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, apperr.New(apperr.NotFound, "")) matches any not-found error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New builds an error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap tags err with kind. A nil err yields nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: msg, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// PublicMessage returns the text that may be shown to an API caller.
// Internal errors and foreign errors collapse to a generic message.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Kind == Internal {
		return "Internal server error."
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Kind.String()
}
