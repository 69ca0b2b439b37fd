package memory

import (
	"context"
	"sync"

	"github.com/tinytb/web3.storage/domain/billing"
	"github.com/tinytb/web3.storage/ports"
)

// SubscriptionSave records one SetPrice call. A nil Price is a cancellation.
type SubscriptionSave struct {
	CustomerID string
	Price      *string
}

// SubscriptionStore is an in-memory implementation of ports.SubscriptionLedger.
type SubscriptionStore struct {
	mu     sync.RWMutex
	prices map[string]string // customer ID -> price
	saves  []SubscriptionSave
	faults
}

// NewSubscriptionStore creates a new in-memory subscription store.
func NewSubscriptionStore() *SubscriptionStore {
	return &SubscriptionStore{prices: make(map[string]string)}
}

// SetPrice replaces the customer's storage price; nil cancels.
func (s *SubscriptionStore) SetPrice(ctx context.Context, customerID string, price *string) error {
	if err := s.take("set_price"); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	save := SubscriptionSave{CustomerID: customerID}
	if price == nil {
		delete(s.prices, customerID)
	} else {
		p := *price
		s.prices[customerID] = p
		save.Price = &p
	}
	s.saves = append(s.saves, save)
	return nil
}

// Get returns the customer's storage subscription, or nil if none.
func (s *SubscriptionStore) Get(ctx context.Context, customerID string) (*billing.StorageSubscription, error) {
	if err := s.take("get"); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.prices[customerID]
	if !ok {
		return nil, nil
	}
	return &billing.StorageSubscription{Price: p}, nil
}

// Saves returns every recorded SetPrice call in order.
func (s *SubscriptionStore) Saves() []SubscriptionSave {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SubscriptionSave, len(s.saves))
	copy(out, s.saves)
	return out
}

// Clear removes all state (for testing).
func (s *SubscriptionStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices = make(map[string]string)
	s.saves = nil
}

// Ensure interface compliance.
var _ ports.SubscriptionLedger = (*SubscriptionStore)(nil)
