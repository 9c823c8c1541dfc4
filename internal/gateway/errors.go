package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a failure at the backend boundary.
type Kind string

const (
	// KindValidation is a client-detected failure that never reached the
	// network (bad file size, missing selection).
	KindValidation Kind = "validation"
	// KindTransport is a network-level failure: connect error, timeout,
	// or an unreadable response.
	KindTransport Kind = "transport"
	// KindApplication is a well-formed error returned by the backend.
	KindApplication Kind = "application"
	// KindAuth is a 401-class response. Unlike the other kinds it
	// invalidates all future calls, not just the current one.
	KindAuth Kind = "auth"
)

// Error is the uniform error shape every gateway operation returns.
// HTTPStatus is zero when the failure happened before a response arrived.
type Error struct {
	Kind       Kind
	Message    string
	HTTPStatus int
	cause      error
}

func (e *Error) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Kind, e.HTTPStatus, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf extracts the gateway kind from an error chain. Errors that did
// not originate at the gateway report KindTransport, the conservative
// "retry might help" classification.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindTransport
}

// IsAuth reports whether the error is the 401-class signal that new
// credentials are required before any call can succeed.
func IsAuth(err error) bool {
	return KindOf(err) == KindAuth
}

func transportErr(msg string, cause error) *Error {
	return &Error{Kind: KindTransport, Message: msg, cause: cause}
}

func applicationErr(msg string, status int) *Error {
	return &Error{Kind: KindApplication, Message: msg, HTTPStatus: status}
}

func authErr(status int) *Error {
	return &Error{Kind: KindAuth, Message: "reauthentication required", HTTPStatus: status}
}
