package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/tinytb/web3.storage/adapters/clock"
	"github.com/tinytb/web3.storage/adapters/idgen"
	"github.com/tinytb/web3.storage/adapters/sqlite"
)

var baseTime = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)

func setupTestDB(t *testing.T) *sqlite.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "w3api-test.db")
	db, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func strPtr(s string) *string { return &s }

// -----------------------------------------------------------------------------
// Migrations
// -----------------------------------------------------------------------------

func TestMigrate_Idempotent(t *testing.T) {
	db := setupTestDB(t)

	if err := db.Migrate(); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != 1 {
		t.Errorf("applied migrations = %d, want 1", n)
	}
}

func TestOpen_InMemory(t *testing.T) {
	db, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

// -----------------------------------------------------------------------------
// CustomerStore
// -----------------------------------------------------------------------------

func TestCustomerStore_ResolveCreatesOnce(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewCustomerStore(db, idgen.NewSequential("cus_"), clock.NewFake(baseTime))
	ctx := context.Background()

	first, err := store.Resolve(ctx, "did:key:alice")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if first.ID != "cus_1" || first.UserID != "did:key:alice" || !first.CreatedAt.Equal(baseTime) {
		t.Errorf("first = %+v", first)
	}

	again, err := store.Resolve(ctx, "did:key:alice")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("second resolve ID = %q, want %q", again.ID, first.ID)
	}

	other, _ := store.Resolve(ctx, "did:key:bob")
	if other.ID == first.ID {
		t.Error("different users share a customer")
	}

	if n, _ := store.Count(ctx); n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}
}

func TestCustomerStore_ResolveConcurrent(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewCustomerStore(db, nil, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := store.Resolve(ctx, "did:key:alice")
			if err != nil {
				t.Errorf("Resolve() error = %v", err)
				return
			}
			ids[i] = c.ID
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		if id != ids[0] {
			t.Fatalf("resolved IDs diverge: %v", ids)
		}
	}
	if n, _ := store.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestCustomerStore_GetNotFound(t *testing.T) {
	db := setupTestDB(t)
	store := sqlite.NewCustomerStore(db, nil, nil)

	_, err := store.Get(context.Background(), "cus_missing")
	if !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

// -----------------------------------------------------------------------------
// PaymentMethodStore
// -----------------------------------------------------------------------------

func TestPaymentMethodStore_AttachAndGet(t *testing.T) {
	db := setupTestDB(t)
	collab := sqlite.Collaborators(db, idgen.NewSequential("cus_"), clock.NewFake(baseTime))
	methods := collab.PaymentMethods.(*sqlite.PaymentMethodStore)
	ctx := context.Background()

	c, err := collab.Customers.Resolve(ctx, "did:key:alice")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	pm, err := methods.Get(ctx, c.ID)
	if err != nil || pm != nil {
		t.Fatalf("Get() before attach = %+v, %v; want nil, nil", pm, err)
	}

	for _, id := range []string{"pm_1", "pm_2", "pm_2"} {
		if err := methods.Attach(ctx, c.ID, id); err != nil {
			t.Fatalf("Attach(%s) error = %v", id, err)
		}
	}

	pm, err = methods.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if pm == nil || pm.ID != "pm_2" {
		t.Errorf("Get() = %+v, want pm_2", pm)
	}
	if n, _ := methods.Attached(ctx, c.ID); n != 2 {
		t.Errorf("Attached() = %d, want 2", n)
	}
}

func TestPaymentMethodStore_AttachUnknownCustomer(t *testing.T) {
	db := setupTestDB(t)
	methods := sqlite.NewPaymentMethodStore(db, nil)

	err := methods.Attach(context.Background(), "cus_missing", "pm_1")
	if !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("Attach() error = %v, want ErrNotFound", err)
	}
}

// -----------------------------------------------------------------------------
// SubscriptionStore
// -----------------------------------------------------------------------------

func TestSubscriptionStore_SetAndCancel(t *testing.T) {
	db := setupTestDB(t)
	collab := sqlite.Collaborators(db, nil, clock.NewFake(baseTime))
	ctx := context.Background()

	c, _ := collab.Customers.Resolve(ctx, "did:key:alice")
	subs := collab.Subscriptions

	if sub, err := subs.Get(ctx, c.ID); err != nil || sub != nil {
		t.Fatalf("Get() before set = %+v, %v", sub, err)
	}

	// Cancelling with nothing to cancel is a no-op.
	if err := subs.SetPrice(ctx, c.ID, nil); err != nil {
		t.Fatalf("SetPrice(nil) error = %v", err)
	}

	if err := subs.SetPrice(ctx, c.ID, strPtr("lite")); err != nil {
		t.Fatalf("SetPrice(lite) error = %v", err)
	}
	if err := subs.SetPrice(ctx, c.ID, strPtr("pro")); err != nil {
		t.Fatalf("SetPrice(pro) error = %v", err)
	}

	sub, err := subs.Get(ctx, c.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if sub == nil || sub.Price != "pro" {
		t.Errorf("Get() = %+v, want pro", sub)
	}

	if err := subs.SetPrice(ctx, c.ID, nil); err != nil {
		t.Fatalf("SetPrice(nil) error = %v", err)
	}
	if sub, _ := subs.Get(ctx, c.ID); sub != nil {
		t.Errorf("Get() after cancel = %+v, want nil", sub)
	}
}

func TestSubscriptionStore_UnknownCustomer(t *testing.T) {
	db := setupTestDB(t)
	subs := sqlite.NewSubscriptionStore(db, nil)

	err := subs.SetPrice(context.Background(), "cus_missing", strPtr("lite"))
	if !errors.Is(err, sqlite.ErrNotFound) {
		t.Errorf("SetPrice() error = %v, want ErrNotFound", err)
	}
}

// -----------------------------------------------------------------------------
// Driver failures
// -----------------------------------------------------------------------------

func TestCustomerStore_ResolveDriverError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer conn.Close()

	mock.ExpectExec("INSERT INTO customers").
		WithArgs("cus_1", "did:key:alice", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(errors.New("disk I/O error"))

	store := sqlite.NewCustomerStore(sqlite.New(conn), idgen.NewSequential("cus_"), nil)
	_, err = store.Resolve(context.Background(), "did:key:alice")
	if err == nil || !strings.Contains(err.Error(), "disk I/O error") {
		t.Errorf("Resolve() error = %v, want driver error", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPaymentMethodStore_AttachRollsBack(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer conn.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE customers SET default_payment_method_id").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO payment_methods").
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	store := sqlite.NewPaymentMethodStore(sqlite.New(conn), nil)
	if err := store.Attach(context.Background(), "cus_1", "pm_1"); err == nil {
		t.Fatal("Attach() error = nil, want failure")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestSubscriptionStore_GetDriverError(t *testing.T) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer conn.Close()

	mock.ExpectQuery("SELECT price FROM storage_subscriptions").
		WithArgs("cus_1").
		WillReturnError(errors.New("database is locked"))

	store := sqlite.NewSubscriptionStore(sqlite.New(conn), nil)
	if _, err := store.Get(context.Background(), "cus_1"); err == nil {
		t.Error("Get() error = nil, want failure")
	}
}

func TestDB_HealthCheck(t *testing.T) {
	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer conn.Close()

	db := sqlite.New(conn)

	mock.ExpectPing()
	if err := db.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	mock.ExpectPing().WillReturnError(errors.New("unable to open database file"))
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() error = nil, want failure")
	}
}
