// Package shiperr defines the typed error kinds shared by the driver,
// service, and HTTP façade layers so a single switch maps every failure to
// the right response, instead of string-matching error text.
package shiperr

import "fmt"

// Kind enumerates the error categories the system distinguishes.
type Kind string

const (
	KindNotFound          Kind = "not_found"
	KindUnauthorized      Kind = "unauthorized"
	KindForbidden         Kind = "forbidden"
	KindInvalidRequest    Kind = "invalid_request"
	KindCapacityReject    Kind = "capacity_reject"
	KindCapacityWaitTimeout Kind = "capacity_wait_timeout"
	KindBackendUnreachable  Kind = "backend_unreachable"
	KindImagePullFailed     Kind = "image_pull_failed"
	KindQuotaExceeded       Kind = "quota_exceeded"
	KindShipUnready         Kind = "ship_unready"
	KindBackendTimeout      Kind = "backend_timeout"
	KindConflict            Kind = "conflict" // internal only, never surfaced
)

// Error is the concrete error type carried through driver, service and
// façade code. Wrap a cause with New/Wrap; unwrap with errors.As.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an Error carrying an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// As extracts a *Error from err, if present.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	if ok {
		return e, true
	}
	type unwrapper interface{ Unwrap() error }
	for {
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
		if e, ok := err.(*Error); ok {
			return e, true
		}
	}
}
