// Package auth provides authentication value types and pure functions.
// This package has NO dependencies on I/O or external packages.
package auth

import (
	"errors"
	"strings"
)

// Reason classifies why a caller could not be authenticated.
type Reason string

const (
	ReasonMissing   Reason = "missing_credentials"
	ReasonMalformed Reason = "malformed_credentials"
	ReasonInvalid   Reason = "invalid_token"
	ReasonExpired   Reason = "expired_token"
	ReasonNoSubject Reason = "no_subject"
)

// Error is returned when a caller's identity is missing or cannot be verified.
// It is surfaced before any settings logic runs.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return "authentication failed: " + string(e.Reason) + ": " + e.Err.Error()
	}
	return "authentication failed: " + string(e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same Reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Reason == e.Reason && t.Err == nil
}

// Sentinel errors for errors.Is checks.
var (
	ErrMissingCredentials = &Error{Reason: ReasonMissing}
	ErrMalformedHeader    = &Error{Reason: ReasonMalformed}
	ErrInvalidToken       = &Error{Reason: ReasonInvalid}
	ErrExpiredToken       = &Error{Reason: ReasonExpired}
	ErrNoSubject          = &Error{Reason: ReasonNoSubject}
)

// Wrap attaches cause to an error of the given reason.
func Wrap(reason Reason, cause error) *Error {
	return &Error{Reason: reason, Err: cause}
}

// IsAuthError reports whether err is or wraps an *Error.
func IsAuthError(err error) bool {
	var ae *Error
	return errors.As(err, &ae)
}

// ReasonOf returns the Reason of an auth error, or "" if err is not one.
func ReasonOf(err error) Reason {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}

// ParseBearer extracts the token from an Authorization header value.
// The scheme is matched case-insensitively.
func ParseBearer(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissingCredentials
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedHeader
	}

	token = strings.TrimSpace(token)
	if token == "" || strings.ContainsAny(token, " \t") {
		return "", ErrMalformedHeader
	}
	return token, nil
}
