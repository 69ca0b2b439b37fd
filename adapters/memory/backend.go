// Package memory provides in-memory implementations of the billing ports.
// State is lost on restart; intended for development and tests.
package memory

import "github.com/tinytb/web3.storage/ports"

// Backend groups the in-memory billing stores.
type Backend struct {
	Customers      *CustomerStore
	PaymentMethods *PaymentMethodStore
	Subscriptions  *SubscriptionStore
}

// NewBackend creates empty in-memory stores.
func NewBackend(idGen ports.IDGenerator, clk ports.Clock) *Backend {
	return &Backend{
		Customers:      NewCustomerStore(idGen, clk),
		PaymentMethods: NewPaymentMethodStore(),
		Subscriptions:  NewSubscriptionStore(),
	}
}

// Collaborators returns the stores as reconciler collaborators.
func (b *Backend) Collaborators() ports.Collaborators {
	return ports.Collaborators{
		Customers:      b.Customers,
		PaymentMethods: b.PaymentMethods,
		Subscriptions:  b.Subscriptions,
	}
}

// Clear resets every store (for testing).
func (b *Backend) Clear() {
	b.Customers.Clear()
	b.PaymentMethods.Clear()
	b.Subscriptions.Clear()
}
