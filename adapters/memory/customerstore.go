package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/tinytb/web3.storage/adapters/clock"
	"github.com/tinytb/web3.storage/adapters/idgen"
	"github.com/tinytb/web3.storage/domain/billing"
	"github.com/tinytb/web3.storage/ports"
)

// ErrNotFound is returned when an entity is not found.
var ErrNotFound = errors.New("not found")

// CustomerStore is an in-memory implementation of ports.CustomerDirectory.
type CustomerStore struct {
	mu        sync.RWMutex
	customers map[string]billing.Customer // by ID
	byUser    map[string]string           // user ID -> customer ID
	order     []string
	idGen     ports.IDGenerator
	clock     ports.Clock
	faults
}

// NewCustomerStore creates a new in-memory customer store.
// Nil idGen and clk default to prefixed UUIDs and the real clock.
func NewCustomerStore(idGen ports.IDGenerator, clk ports.Clock) *CustomerStore {
	if idGen == nil {
		idGen = idgen.NewPrefixed("cus_")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &CustomerStore{
		customers: make(map[string]billing.Customer),
		byUser:    make(map[string]string),
		idGen:     idGen,
		clock:     clk,
	}
}

// Resolve returns the customer for userID, creating one if absent.
func (s *CustomerStore) Resolve(ctx context.Context, userID string) (billing.Customer, error) {
	if err := s.take("resolve"); err != nil {
		return billing.Customer{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byUser[userID]; ok {
		return s.customers[id], nil
	}

	c := billing.Customer{
		ID:        s.idGen.New(),
		UserID:    userID,
		CreatedAt: s.clock.Now().UTC(),
	}
	s.customers[c.ID] = c
	s.byUser[userID] = c.ID
	s.order = append(s.order, c.ID)
	return c, nil
}

// Get retrieves a customer by ID.
func (s *CustomerStore) Get(ctx context.Context, id string) (billing.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.customers[id]
	if !ok {
		return billing.Customer{}, ErrNotFound
	}
	return c, nil
}

// All returns every customer in creation order (for testing).
func (s *CustomerStore) All() []billing.Customer {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]billing.Customer, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.customers[id])
	}
	return out
}

// Has reports whether a customer with id exists (for testing).
func (s *CustomerStore) Has(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.customers[id]
	return ok
}

// Count returns the number of customers.
func (s *CustomerStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.customers)
}

// Clear removes all customers (for testing).
func (s *CustomerStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers = make(map[string]billing.Customer)
	s.byUser = make(map[string]string)
	s.order = nil
}

// Ensure interface compliance.
var _ ports.CustomerDirectory = (*CustomerStore)(nil)
