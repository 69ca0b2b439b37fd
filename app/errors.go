package app

import (
	"errors"
	"fmt"
)

// Collaborator names used in errors, spans and metrics.
const (
	CollaboratorCustomers      = "customers"
	CollaboratorPaymentMethods = "payment_methods"
	CollaboratorSubscriptions  = "subscriptions"
)

// CollaboratorError reports a failed call to a billing collaborator.
// The underlying error message is preserved.
type CollaboratorError struct {
	Collaborator string
	Op           string
	CustomerID   string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s.%s: %v", e.Collaborator, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// IsCollaboratorError reports whether err is or wraps a *CollaboratorError.
func IsCollaboratorError(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce)
}
