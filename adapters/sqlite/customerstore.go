package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/tinytb/web3.storage/adapters/clock"
	"github.com/tinytb/web3.storage/adapters/idgen"
	"github.com/tinytb/web3.storage/domain/billing"
	"github.com/tinytb/web3.storage/ports"
)

// CustomerStore implements ports.CustomerDirectory using SQLite.
type CustomerStore struct {
	db    *DB
	idGen ports.IDGenerator
	clock ports.Clock
}

// NewCustomerStore creates a new SQLite customer store.
// Nil idGen and clk default to prefixed UUIDs and the real clock.
func NewCustomerStore(db *DB, idGen ports.IDGenerator, clk ports.Clock) *CustomerStore {
	if idGen == nil {
		idGen = idgen.NewPrefixed("cus_")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &CustomerStore{db: db, idGen: idGen, clock: clk}
}

// Resolve returns the customer for userID, creating one if absent.
// Concurrent first calls for the same user converge on one row.
func (s *CustomerStore) Resolve(ctx context.Context, userID string) (billing.Customer, error) {
	now := s.clock.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO customers (id, user_id, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id) DO NOTHING
	`, s.idGen.New(), userID, now, now)
	if err != nil {
		return billing.Customer{}, fmt.Errorf("insert customer: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, created_at FROM customers WHERE user_id = ?
	`, userID)
	return scanCustomer(row)
}

// Get retrieves a customer by ID.
func (s *CustomerStore) Get(ctx context.Context, id string) (billing.Customer, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, created_at FROM customers WHERE id = ?
	`, id)
	return scanCustomer(row)
}

// Count returns the number of customers.
func (s *CustomerStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers").Scan(&n)
	return n, err
}

func scanCustomer(row *sql.Row) (billing.Customer, error) {
	var c billing.Customer
	if err := row.Scan(&c.ID, &c.UserID, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return billing.Customer{}, ErrNotFound
		}
		return billing.Customer{}, fmt.Errorf("scan customer: %w", err)
	}
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

// Ensure interface compliance.
var _ ports.CustomerDirectory = (*CustomerStore)(nil)
