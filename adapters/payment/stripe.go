// Package payment provides payment processor adapters for the billing ports.
package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/tinytb/web3.storage/domain/billing"
	"github.com/tinytb/web3.storage/ports"
)

// userIDMetadataKey links a Stripe customer back to its user.
const userIDMetadataKey = "user_id"

// StripeConfig holds Stripe configuration.
type StripeConfig struct {
	SecretKey string
	// APIURL overrides the Stripe API endpoint, e.g. stripe-mock.
	APIURL  string
	Timeout time.Duration
}

// Stripe implements the billing collaborators against the Stripe API.
// Storage prices are translated through the catalog's provider IDs.
type Stripe struct {
	api     *client.API
	catalog billing.PriceCatalog
	logger  zerolog.Logger
}

// NewStripe creates a Stripe-backed billing adapter.
func NewStripe(cfg StripeConfig, catalog billing.PriceCatalog, logger zerolog.Logger) (*Stripe, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe secret key is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	backendCfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		LeveledLogger:     stripeLogger{logger},
		MaxNetworkRetries: stripe.Int64(2),
	}
	if cfg.APIURL != "" {
		backendCfg.URL = stripe.String(strings.TrimSuffix(cfg.APIURL, "/"))
		backendCfg.MaxNetworkRetries = stripe.Int64(0)
	}

	api := client.New(cfg.SecretKey, &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, backendCfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, backendCfg),
	})

	return &Stripe{
		api:     api,
		catalog: catalog,
		logger:  logger.With().Str("component", "stripe").Logger(),
	}, nil
}

// Collaborators returns the adapter as reconciler collaborators.
func (s *Stripe) Collaborators() ports.Collaborators {
	return ports.Collaborators{
		Customers:      (*StripeCustomers)(s),
		PaymentMethods: (*StripePaymentMethods)(s),
		Subscriptions:  (*StripeSubscriptions)(s),
	}
}

// -----------------------------------------------------------------------------
// Customers
// -----------------------------------------------------------------------------

// StripeCustomers implements ports.CustomerDirectory.
type StripeCustomers Stripe

// Resolve finds the Stripe customer tagged with userID, creating it if absent.
// Creation carries an idempotency key so retries converge on one customer.
func (s *StripeCustomers) Resolve(ctx context.Context, userID string) (billing.Customer, error) {
	params := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   fmt.Sprintf("metadata['%s']:'%s'", userIDMetadataKey, escapeSearch(userID)),
			Context: ctx,
		},
	}
	iter := s.api.Customers.Search(params)
	for iter.Next() {
		c := iter.Customer()
		if c.Deleted || c.Metadata[userIDMetadataKey] != userID {
			continue
		}
		return toCustomer(c, userID), nil
	}
	if err := iter.Err(); err != nil {
		return billing.Customer{}, fmt.Errorf("search customers: %w", err)
	}

	create := &stripe.CustomerParams{}
	create.Context = ctx
	create.AddMetadata(userIDMetadataKey, userID)
	create.SetIdempotencyKey("w3api-customer-" + userID)

	c, err := s.api.Customers.New(create)
	if err != nil {
		return billing.Customer{}, fmt.Errorf("create customer: %w", err)
	}
	s.logger.Info().Str("customer_id", c.ID).Str("user_id", userID).Msg("stripe customer created")
	return toCustomer(c, userID), nil
}

func toCustomer(c *stripe.Customer, userID string) billing.Customer {
	return billing.Customer{
		ID:        c.ID,
		UserID:    userID,
		CreatedAt: time.Unix(c.Created, 0).UTC(),
	}
}

// escapeSearch quotes a value for the Stripe search query language.
func escapeSearch(v string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v)
}

// -----------------------------------------------------------------------------
// Payment methods
// -----------------------------------------------------------------------------

// StripePaymentMethods implements ports.PaymentMethodRegistry.
type StripePaymentMethods Stripe

// Attach attaches methodID to the customer and makes it the invoice default.
func (s *StripePaymentMethods) Attach(ctx context.Context, customerID, methodID string) error {
	attach := &stripe.PaymentMethodAttachParams{Customer: stripe.String(customerID)}
	attach.Context = ctx
	if _, err := s.api.PaymentMethods.Attach(methodID, attach); err != nil {
		return fmt.Errorf("attach payment method: %w", err)
	}

	update := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(methodID),
		},
	}
	update.Context = ctx
	if _, err := s.api.Customers.Update(customerID, update); err != nil {
		return fmt.Errorf("set default payment method: %w", err)
	}
	return nil
}

// Get returns the customer's default payment method with card detail.
func (s *StripePaymentMethods) Get(ctx context.Context, customerID string) (*billing.PaymentMethod, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	params.AddExpand("invoice_settings.default_payment_method")

	c, err := s.api.Customers.Get(customerID, params)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	if c.InvoiceSettings == nil || c.InvoiceSettings.DefaultPaymentMethod == nil {
		return nil, nil
	}

	pm := c.InvoiceSettings.DefaultPaymentMethod
	out := &billing.PaymentMethod{ID: pm.ID}
	if pm.Card != nil {
		out.Card = &billing.Card{
			Brand:    string(pm.Card.Brand),
			Last4:    pm.Card.Last4,
			ExpMonth: pm.Card.ExpMonth,
			ExpYear:  pm.Card.ExpYear,
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

// StripeSubscriptions implements ports.SubscriptionLedger.
type StripeSubscriptions Stripe

// SetPrice moves the customer's storage subscription to price, creating it
// if needed. A nil price cancels the subscription immediately.
func (s *StripeSubscriptions) SetPrice(ctx context.Context, customerID string, price *string) error {
	current, err := s.active(ctx, customerID)
	if err != nil {
		return err
	}

	if price == nil {
		if current == nil {
			return nil
		}
		cancel := &stripe.SubscriptionCancelParams{}
		cancel.Context = ctx
		if _, err := s.api.Subscriptions.Cancel(current.ID, cancel); err != nil {
			return fmt.Errorf("cancel subscription: %w", err)
		}
		return nil
	}

	priceID := s.providerPrice(*price)

	if current == nil {
		create := &stripe.SubscriptionParams{
			Customer: stripe.String(customerID),
			Items: []*stripe.SubscriptionItemsParams{
				{Price: stripe.String(priceID)},
			},
		}
		create.Context = ctx
		create.AddMetadata("storage_price", *price)
		if _, err := s.api.Subscriptions.New(create); err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
		return nil
	}

	item := firstItem(current)
	if item != nil && item.Price != nil && item.Price.ID == priceID {
		return nil
	}

	update := &stripe.SubscriptionParams{
		ProrationBehavior: stripe.String("create_prorations"),
	}
	update.Context = ctx
	update.AddMetadata("storage_price", *price)
	if item != nil {
		update.Items = []*stripe.SubscriptionItemsParams{
			{ID: stripe.String(item.ID), Price: stripe.String(priceID)},
		}
	} else {
		update.Items = []*stripe.SubscriptionItemsParams{{Price: stripe.String(priceID)}}
	}
	if _, err := s.api.Subscriptions.Update(current.ID, update); err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	return nil
}

// Get returns the customer's live storage subscription, or nil if none.
// A price outside the catalog is an error.
func (s *StripeSubscriptions) Get(ctx context.Context, customerID string) (*billing.StorageSubscription, error) {
	current, err := s.active(ctx, customerID)
	if err != nil || current == nil {
		return nil, err
	}
	item := firstItem(current)
	if item == nil || item.Price == nil {
		return nil, nil
	}
	name, ok := s.priceName(item.Price.ID)
	if !ok {
		s.logger.Warn().
			Str("customer_id", customerID).
			Str("subscription_id", current.ID).
			Str("price_id", item.Price.ID).
			Msg("subscription price is not in the catalog")
		return nil, fmt.Errorf("subscription %s: unknown price %q", current.ID, item.Price.ID)
	}
	return &billing.StorageSubscription{Price: name}, nil
}

// active returns the customer's live subscription: any status other than
// canceled or incomplete_expired.
func (s *StripeSubscriptions) active(ctx context.Context, customerID string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerID),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(10)

	iter := s.api.Subscriptions.List(params)
	for iter.Next() {
		sub := iter.Subscription()
		if isLive(sub.Status) {
			return sub, nil
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return nil, nil
}

func isLive(status stripe.SubscriptionStatus) bool {
	switch status {
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired:
		return false
	}
	return true
}

// providerPrice falls back to the name when no provider ID is configured,
// which lets Stripe lookup keys double as price names.
func (s *StripeSubscriptions) providerPrice(name string) string {
	if id, ok := s.catalog.ProviderID(name); ok && id != "" {
		return id
	}
	return name
}

// priceName inverts providerPrice.
func (s *StripeSubscriptions) priceName(providerID string) (string, bool) {
	if name, ok := s.catalog.NameForProviderID(providerID); ok {
		return name, true
	}
	if _, mapped := s.catalog.ProviderID(providerID); !mapped && s.catalog.IsAllowed(providerID) {
		return providerID, true
	}
	return "", false
}

func firstItem(sub *stripe.Subscription) *stripe.SubscriptionItem {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil
	}
	return sub.Items.Data[0]
}

// stripeLogger routes stripe-go's leveled logging through zerolog.
type stripeLogger struct {
	zerolog.Logger
}

func (l stripeLogger) Debugf(format string, v ...interface{}) { l.Debug().Msgf(format, v...) }
func (l stripeLogger) Infof(format string, v ...interface{})  { l.Debug().Msgf(format, v...) }
func (l stripeLogger) Warnf(format string, v ...interface{})  { l.Warn().Msgf(format, v...) }
func (l stripeLogger) Errorf(format string, v ...interface{}) { l.Error().Msgf(format, v...) }

// Ensure interface compliance.
var (
	_ ports.CustomerDirectory     = (*StripeCustomers)(nil)
	_ ports.PaymentMethodRegistry = (*StripePaymentMethods)(nil)
	_ ports.SubscriptionLedger    = (*StripeSubscriptions)(nil)
)
