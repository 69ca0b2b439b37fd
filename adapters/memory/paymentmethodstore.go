package memory

import (
	"context"
	"sync"

	"github.com/tinytb/web3.storage/domain/billing"
	"github.com/tinytb/web3.storage/ports"
)

// PaymentMethodSave records one Attach call.
type PaymentMethodSave struct {
	CustomerID string
	MethodID   string
}

// PaymentMethodStore is an in-memory implementation of ports.PaymentMethodRegistry.
type PaymentMethodStore struct {
	mu       sync.RWMutex
	defaults map[string]string              // customer ID -> method ID
	attached map[string]map[string]struct{} // customer ID -> method IDs
	cards    map[string]billing.Card        // method ID -> card
	saves    []PaymentMethodSave
	faults
}

// NewPaymentMethodStore creates a new in-memory payment method store.
func NewPaymentMethodStore() *PaymentMethodStore {
	return &PaymentMethodStore{
		defaults: make(map[string]string),
		attached: make(map[string]map[string]struct{}),
		cards:    make(map[string]billing.Card),
	}
}

// RegisterCard makes Get report card detail for methodID, the way a card
// processor would after tokenization.
func (s *PaymentMethodStore) RegisterCard(methodID string, card billing.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[methodID] = card
}

// Attach makes methodID the customer's default payment method.
func (s *PaymentMethodStore) Attach(ctx context.Context, customerID, methodID string) error {
	if err := s.take("attach"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.attached[customerID]
	if !ok {
		set = make(map[string]struct{})
		s.attached[customerID] = set
	}
	set[methodID] = struct{}{}
	s.defaults[customerID] = methodID
	s.saves = append(s.saves, PaymentMethodSave{CustomerID: customerID, MethodID: methodID})
	return nil
}

// Get returns the customer's default payment method, or nil if none.
func (s *PaymentMethodStore) Get(ctx context.Context, customerID string) (*billing.PaymentMethod, error) {
	if err := s.take("get"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.defaults[customerID]
	if !ok {
		return nil, nil
	}
	pm := &billing.PaymentMethod{ID: id}
	if card, ok := s.cards[id]; ok {
		c := card
		pm.Card = &c
	}
	return pm, nil
}

// Attached returns the distinct methods attached to a customer (for testing).
func (s *PaymentMethodStore) Attached(customerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.attached[customerID])
}

// Saves returns every recorded Attach call in order.
func (s *PaymentMethodStore) Saves() []PaymentMethodSave {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PaymentMethodSave, len(s.saves))
	copy(out, s.saves)
	return out
}

// Clear removes all state (for testing).
func (s *PaymentMethodStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defaults = make(map[string]string)
	s.attached = make(map[string]map[string]struct{})
	s.cards = make(map[string]billing.Card)
	s.saves = nil
}

// Ensure interface compliance.
var _ ports.PaymentMethodRegistry = (*PaymentMethodStore)(nil)
