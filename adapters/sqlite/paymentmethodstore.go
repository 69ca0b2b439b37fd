package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tinytb/web3.storage/adapters/clock"
	"github.com/tinytb/web3.storage/domain/billing"
	"github.com/tinytb/web3.storage/ports"
)

// PaymentMethodStore implements ports.PaymentMethodRegistry using SQLite.
// It records method IDs only; card details stay with the processor.
type PaymentMethodStore struct {
	db    *DB
	clock ports.Clock
}

// NewPaymentMethodStore creates a new SQLite payment method store.
func NewPaymentMethodStore(db *DB, clk ports.Clock) *PaymentMethodStore {
	if clk == nil {
		clk = clock.Real{}
	}
	return &PaymentMethodStore{db: db, clock: clk}
}

// Attach records methodID for the customer and makes it the default.
func (s *PaymentMethodStore) Attach(ctx context.Context, customerID, methodID string) error {
	now := s.clock.Now().UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE customers SET default_payment_method_id = ?, updated_at = ? WHERE id = ?
	`, methodID, now, customerID)
	if err != nil {
		return fmt.Errorf("set default payment method: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payment_methods (customer_id, method_id, attached_at)
		VALUES (?, ?, ?)
		ON CONFLICT(customer_id, method_id) DO NOTHING
	`, customerID, methodID, now)
	if err != nil {
		return fmt.Errorf("insert payment method: %w", err)
	}

	return tx.Commit()
}

// Get returns the customer's default payment method, or nil if none.
func (s *PaymentMethodStore) Get(ctx context.Context, customerID string) (*billing.PaymentMethod, error) {
	var id sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT default_payment_method_id FROM customers WHERE id = ?
	`, customerID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query payment method: %w", err)
	}
	if !id.Valid || id.String == "" {
		return nil, nil
	}
	return &billing.PaymentMethod{ID: id.String}, nil
}

// Attached returns the distinct methods ever attached to a customer.
func (s *PaymentMethodStore) Attached(ctx context.Context, customerID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM payment_methods WHERE customer_id = ?
	`, customerID).Scan(&n)
	return n, err
}

// Ensure interface compliance.
var _ ports.PaymentMethodRegistry = (*PaymentMethodStore)(nil)
