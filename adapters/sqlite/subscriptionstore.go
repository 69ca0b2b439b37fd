package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/tinytb/web3.storage/adapters/clock"
	"github.com/tinytb/web3.storage/domain/billing"
	"github.com/tinytb/web3.storage/ports"
)

// SubscriptionStore implements ports.SubscriptionLedger using SQLite.
type SubscriptionStore struct {
	db    *DB
	clock ports.Clock
}

// NewSubscriptionStore creates a new SQLite subscription store.
func NewSubscriptionStore(db *DB, clk ports.Clock) *SubscriptionStore {
	if clk == nil {
		clk = clock.Real{}
	}
	return &SubscriptionStore{db: db, clock: clk}
}

// SetPrice replaces the customer's storage price. A nil price cancels.
func (s *SubscriptionStore) SetPrice(ctx context.Context, customerID string, price *string) error {
	now := s.clock.Now().UTC()

	var err error
	if price == nil {
		_, err = s.db.ExecContext(ctx, `
			UPDATE storage_subscriptions
			SET price = NULL, cancelled_at = ?, updated_at = ?
			WHERE customer_id = ? AND price IS NOT NULL
		`, now, now, customerID)
	} else {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO storage_subscriptions (customer_id, price, cancelled_at, updated_at)
			VALUES (?, ?, NULL, ?)
			ON CONFLICT(customer_id) DO UPDATE SET
				price = excluded.price,
				cancelled_at = NULL,
				updated_at = excluded.updated_at
		`, customerID, *price, now)
	}
	if err != nil {
		if isForeignKeyError(err) {
			return ErrNotFound
		}
		return fmt.Errorf("save storage subscription: %w", err)
	}
	return nil
}

// Get returns the customer's active storage subscription, or nil if none.
func (s *SubscriptionStore) Get(ctx context.Context, customerID string) (*billing.StorageSubscription, error) {
	var price sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT price FROM storage_subscriptions WHERE customer_id = ?
	`, customerID).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query storage subscription: %w", err)
	}
	if !price.Valid {
		return nil, nil
	}
	return &billing.StorageSubscription{Price: price.String}, nil
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// Ensure interface compliance.
var _ ports.SubscriptionLedger = (*SubscriptionStore)(nil)
