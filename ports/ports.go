// Package ports defines interfaces (contracts) between layers.
// These interfaces enable dependency injection and testability.
// Implementations live in adapters/.
package ports

import (
	"context"
	"time"

	"github.com/tinytb/web3.storage/domain/billing"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// -----------------------------------------------------------------------------
// Billing Collaborator Ports
// -----------------------------------------------------------------------------

// CustomerDirectory maps application users to billing customers.
type CustomerDirectory interface {
	// Resolve returns the customer for userID, creating one if absent.
	// Repeated calls return the same customer and create at most one.
	Resolve(ctx context.Context, userID string) (billing.Customer, error)
}

// PaymentMethodRegistry records the default payment method of a customer.
type PaymentMethodRegistry interface {
	// Attach makes methodID the customer's default payment method.
	// Attaching the same method again is a no-op.
	Attach(ctx context.Context, customerID, methodID string) error

	// Get returns the customer's default payment method, or nil if none.
	Get(ctx context.Context, customerID string) (*billing.PaymentMethod, error)
}

// SubscriptionLedger records the storage subscription of a customer.
type SubscriptionLedger interface {
	// SetPrice replaces the customer's storage price. A nil price cancels
	// the subscription.
	SetPrice(ctx context.Context, customerID string, price *string) error

	// Get returns the customer's storage subscription, or nil if none.
	Get(ctx context.Context, customerID string) (*billing.StorageSubscription, error)
}

// Collaborators bundles the billing back-end used by the reconciler.
type Collaborators struct {
	Customers      CustomerDirectory
	PaymentMethods PaymentMethodRegistry
	Subscriptions  SubscriptionLedger
}

// -----------------------------------------------------------------------------
// Cache Ports
// -----------------------------------------------------------------------------

// CustomerCache caches user to customer mappings.
type CustomerCache interface {
	// Get returns the cached customer id for userID. The bool is false on a miss.
	Get(ctx context.Context, userID string) (string, bool, error)

	// Set stores the customer id for userID.
	Set(ctx context.Context, userID, customerID string) error
}

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// ReconcileMetrics receives reconciliation measurements.
type ReconcileMetrics interface {
	// ObserveCollaborator records one collaborator call.
	ObserveCollaborator(collaborator, op string, d time.Duration, err error)

	// ObserveReconcile records the outcome of a settings read or write.
	ObserveReconcile(op, outcome string)
}

// -----------------------------------------------------------------------------
// Health Ports
// -----------------------------------------------------------------------------

// HealthChecker reports whether a dependency is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
