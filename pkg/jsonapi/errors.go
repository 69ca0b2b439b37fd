package jsonapi

import (
	"fmt"
	"strconv"
	"strings"
)

// ErrorBuilder provides a fluent API for building Error objects.
type ErrorBuilder struct {
	err Error
}

// NewError creates a new ErrorBuilder with the given status, code, and title.
func NewError(status int, code, title string) *ErrorBuilder {
	return &ErrorBuilder{
		err: Error{
			Status: strconv.Itoa(status),
			Code:   code,
			Title:  title,
		},
	}
}

// Detail sets the error detail message.
func (b *ErrorBuilder) Detail(detail string) *ErrorBuilder {
	b.err.Detail = detail
	return b
}

// Detailf sets the error detail message with formatting.
func (b *ErrorBuilder) Detailf(format string, args ...any) *ErrorBuilder {
	b.err.Detail = fmt.Sprintf(format, args...)
	return b
}

// ID sets the error ID.
func (b *ErrorBuilder) ID(id string) *ErrorBuilder {
	b.err.ID = id
	return b
}

// Pointer sets the JSON pointer to the source of the error.
// Dotted field paths such as "subscription.storage.price" are converted.
func (b *ErrorBuilder) Pointer(pointer string) *ErrorBuilder {
	if b.err.Source == nil {
		b.err.Source = &ErrorSource{}
	}
	if !strings.HasPrefix(pointer, "/") {
		pointer = "/" + strings.ReplaceAll(pointer, ".", "/")
	}
	b.err.Source.Pointer = pointer
	return b
}

// Header sets the header that caused the error.
func (b *ErrorBuilder) Header(header string) *ErrorBuilder {
	if b.err.Source == nil {
		b.err.Source = &ErrorSource{}
	}
	b.err.Source.Header = header
	return b
}

// Meta adds metadata to the error.
func (b *ErrorBuilder) Meta(key string, value any) *ErrorBuilder {
	if b.err.Meta == nil {
		b.err.Meta = make(Meta)
	}
	b.err.Meta[key] = value
	return b
}

// Build returns the constructed Error.
func (b *ErrorBuilder) Build() Error {
	return b.err
}

// StatusCode returns the HTTP status code as an int.
func (e Error) StatusCode() int {
	code, _ := strconv.Atoi(e.Status)
	return code
}

// Common error constructors

// ErrBadRequest creates a 400 Bad Request error.
func ErrBadRequest(detail string) Error {
	return NewError(400, "bad_request", "Bad Request").Detail(detail).Build()
}

// ErrInvalidField creates a 400 error pointing at the offending field.
func ErrInvalidField(field, reason string) Error {
	b := NewError(400, "invalid_field", "Invalid Field").Detail(strings.TrimSpace(field + " " + reason))
	if field != "" {
		b.Pointer(field)
	}
	return b.Build()
}

// ErrUnauthorized creates a 401 Unauthorized error.
func ErrUnauthorized(detail string) Error {
	if detail == "" {
		detail = "Authentication required"
	}
	return NewError(401, "unauthorized", "Unauthorized").Detail(detail).Header("Authorization").Build()
}

// ErrNotFound creates a 404 Not Found error.
func ErrNotFound(resourceType string) Error {
	return NewError(404, "not_found", "Not Found").
		Detailf("The requested %s was not found", resourceType).
		Build()
}

// ErrMethodNotAllowed creates a 405 Method Not Allowed error.
func ErrMethodNotAllowed(method string, allowed []string) Error {
	b := NewError(405, "method_not_allowed", "Method Not Allowed").Meta("method", method)
	if len(allowed) > 0 {
		b.Detailf("%s is not supported. Use one of: %s", method, strings.Join(allowed, ", "))
	} else {
		b.Detailf("The %s method is not allowed for this resource", method)
	}
	return b.Build()
}

// ErrRequestTooLarge creates a 413 Payload Too Large error.
func ErrRequestTooLarge(limit int64) Error {
	return NewError(413, "request_too_large", "Payload Too Large").
		Detailf("Request body exceeds %d bytes", limit).
		Build()
}

// ErrInternal creates a 500 Internal Server Error.
func ErrInternal(detail string) Error {
	if detail == "" {
		detail = "An internal error occurred"
	}
	return NewError(500, "internal_error", "Internal Server Error").Detail(detail).Build()
}

// ErrBadGateway creates a 502 error for a failed upstream collaborator.
func ErrBadGateway(detail string) Error {
	if detail == "" {
		detail = "Upstream service failed"
	}
	return NewError(502, "bad_gateway", "Bad Gateway").Detail(detail).Build()
}

// ErrServiceUnavailable creates a 503 Service Unavailable error.
func ErrServiceUnavailable(detail string) Error {
	if detail == "" {
		detail = "Service temporarily unavailable"
	}
	return NewError(503, "service_unavailable", "Service Unavailable").Detail(detail).Build()
}

// ErrFromError creates a JSON:API Error from a standard Go error.
func ErrFromError(err error) Error {
	if err == nil {
		return ErrInternal("")
	}
	return ErrInternal(err.Error())
}
