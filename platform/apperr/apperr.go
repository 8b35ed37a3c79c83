// Package apperr classifies errors raised by the booking core. Services and
// repositories return *Error values; httpkit.HandleError turns them into
// responses without knowing which layer produced them.
package apperr

import (
	"errors"
	"net/http"
)

// Kind is the category an error falls into.
type Kind int

const (
	KindUnknown Kind = iota
	// KindNotFound: a referenced record does not exist, or the directory gave
	// up looking for it.
	KindNotFound
	KindValidation
	// KindConflict: the write clashes with existing state, e.g. a doctor's
	// slot already held by an active appointment.
	KindConflict
	KindForbidden
	KindUnauthorized
	// KindBadRequest: the request breaks a booking rule (past slot, missing
	// fee, illegal transition).
	KindBadRequest
	KindInternal
	// KindTransient: a collaborator or deadline failed in a way a retry may fix.
	KindTransient
)

type kindInfo struct {
	code   string
	status int
}

var kinds = map[Kind]kindInfo{
	KindNotFound:     {"not_found", http.StatusNotFound},
	KindValidation:   {"validation", http.StatusBadRequest},
	KindConflict:     {"conflict", http.StatusConflict},
	KindForbidden:    {"forbidden", http.StatusForbidden},
	KindUnauthorized: {"unauthorized", http.StatusUnauthorized},
	KindBadRequest:   {"bad_request", http.StatusBadRequest},
	KindInternal:     {"internal", http.StatusInternalServerError},
	KindTransient:    {"unavailable", http.StatusServiceUnavailable},
}

// String returns the stable code clients see in error bodies.
func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.code
	}
	return "unknown"
}

// HTTPStatus maps the kind to a response status. Unknown kinds are 500.
func (k Kind) HTTPStatus() int {
	if info, ok := kinds[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Error is a classified error. Message is safe to show to callers; the
// wrapped cause is not.
type Error struct {
	Kind    Kind
	Message string
	Details any
	cause   error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the response status for e.
func (e *Error) HTTPStatus() int { return e.Kind.HTTPStatus() }

// WithDetails attaches structured details (ids, retryable flags) shown in the
// response body.
func (e *Error) WithDetails(details any) *Error {
	e.Details = details
	return e
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap classifies err under kind. errors.Is and errors.As still see err.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, cause: err}
}

func NotFound(message string) *Error     { return New(KindNotFound, message) }
func Validation(message string) *Error   { return New(KindValidation, message) }
func Conflict(message string) *Error     { return New(KindConflict, message) }
func Forbidden(message string) *Error    { return New(KindForbidden, message) }
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }
func BadRequest(message string) *Error   { return New(KindBadRequest, message) }
func Internal(message string) *Error     { return New(KindInternal, message) }
func Transient(message string) *Error    { return New(KindTransient, message) }

// GetKind returns the kind of the first *Error in err's chain, or KindUnknown.
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether err's chain carries an *Error of kind.
func Is(err error, kind Kind) bool {
	return GetKind(err) == kind
}
