// Package chaterr carries the typed errors used across the sync engine.
// The Kind mirrors the error `type` field of the platform's wire protocol,
// so server-side failures map onto the same taxonomy as local ones.
package chaterr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers that need to branch on it.
type Kind string

const (
	// KindValidation marks caller misuse, e.g. missing required local state.
	KindValidation Kind = "validation"
	// KindAuthentication marks a credential rejection. Not retryable
	// without re-authenticating out of band.
	KindAuthentication Kind = "authentication"
	// KindChatInactive is a server precondition failure with a defined
	// fallback (resume the chat instead of adding a user).
	KindChatInactive Kind = "chat_inactive"
	// KindRequestTimeout marks a request whose connection closed while
	// the request was still pending.
	KindRequestTimeout Kind = "request_timeout"
	// KindAborted marks explicit cancellation by the caller.
	KindAborted Kind = "aborted"
	// KindConnection marks a transport that never opened.
	KindConnection Kind = "connection_error"
	// KindInternal marks a malformed response body.
	KindInternal Kind = "internal_error"
	// KindUnknown is the default catch-all.
	KindUnknown Kind = "unknown_error"
)

// Error is an error with a protocol kind and an optional HTTP-ish status.
type Error struct {
	Message string
	Kind    Kind
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Message: message, Kind: kind}
}

// Wrap builds an Error of the given kind wrapping cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Message: message, Kind: kind, Err: cause}
}

// WithStatus attaches a transport status code.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// FromWire maps a wire-level error type string onto a Kind; unrecognized
// types stay visible as KindUnknown rather than being dropped.
func FromWire(typ, message string) *Error {
	switch Kind(typ) {
	case KindValidation, KindAuthentication, KindChatInactive,
		KindRequestTimeout, KindAborted, KindConnection, KindInternal:
		return New(Kind(typ), message)
	default:
		if message == "" {
			message = "unknown error"
		}
		return New(KindUnknown, message)
	}
}

// KindOf reports the Kind of err, or KindUnknown when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is lets errors.Is match on kind when the target carries no message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}
