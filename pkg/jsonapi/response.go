package jsonapi

import (
	"encoding/json"
	"net/http"
)

// WriteJSON writes v as a plain JSON body.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", JSONContentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// WriteError writes an error response with one or more errors.
// The HTTP status is derived from the first error's status field.
func WriteError(w http.ResponseWriter, errs ...Error) {
	if len(errs) == 0 {
		errs = []Error{ErrInternal("")}
	}

	status := errs[0].StatusCode()
	if status == 0 {
		status = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", ContentType)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorDocument{
		Errors:  errs,
		Message: errs[0].Detail,
	})
}

// WriteAccepted writes a 202 Accepted response pointing at location,
// where the caller can fetch the eventual state.
func WriteAccepted(w http.ResponseWriter, location string) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	WriteJSON(w, http.StatusAccepted, struct{}{})
}

// WriteNoContent writes a 204 No Content response.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest is a convenience for 400 errors.
func WriteBadRequest(w http.ResponseWriter, detail string) {
	WriteError(w, ErrBadRequest(detail))
}

// WriteUnauthorized is a convenience for 401 errors.
// It also sets the WWW-Authenticate challenge.
func WriteUnauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="w3api"`)
	WriteError(w, ErrUnauthorized(detail))
}
