// Package jsonapi writes JSON responses and JSON:API error documents.
// See https://jsonapi.org/format/#errors for the error object format.
package jsonapi

// ErrorDocument is a top-level error response.
// Message repeats the first error's detail for clients that only read
// a flat message field.
type ErrorDocument struct {
	Errors  []Error `json:"errors"`
	Message string  `json:"message,omitempty"`
}

// Error represents a JSON:API error object.
type Error struct {
	ID     string       `json:"id,omitempty"`
	Status string       `json:"status"`
	Code   string       `json:"code"`
	Title  string       `json:"title"`
	Detail string       `json:"detail,omitempty"`
	Source *ErrorSource `json:"source,omitempty"`
	Meta   Meta         `json:"meta,omitempty"`
}

// ErrorSource indicates the source of an error.
type ErrorSource struct {
	Pointer   string `json:"pointer,omitempty"`   // JSON pointer to offending field
	Parameter string `json:"parameter,omitempty"` // Query parameter that caused error
	Header    string `json:"header,omitempty"`    // Header that caused error
}

// Meta represents arbitrary metadata.
type Meta map[string]any

// ContentType is the JSON:API media type, used for error documents.
const ContentType = "application/vnd.api+json"

// JSONContentType is used for plain resource bodies.
const JSONContentType = "application/json"
