// Package app contains the SettingsReconciler, which merges desired payment
// settings with the state held by billing collaborators.
package app

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/tinytb/web3.storage/domain/auth"
	"github.com/tinytb/web3.storage/domain/billing"
	"github.com/tinytb/web3.storage/ports"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SettingsLocation is where the authoritative settings of the caller can be
// re-fetched after a write is accepted.
const SettingsLocation = "/user/payment"

const tracerName = "github.com/tinytb/web3.storage/app"

// Reconcile outcomes reported to metrics.
const (
	OutcomeOK           = "ok"
	OutcomeInvalid      = "invalid"
	OutcomeUnauthorized = "unauthorized"
	OutcomeFailed       = "failed"
)

// Accepted acknowledges a settings write.
type Accepted struct {
	CustomerID string
	Location   string
}

// SettingsReconciler reads and writes payment settings through the
// customer, payment method and subscription collaborators.
type SettingsReconciler struct {
	customers     ports.CustomerDirectory
	methods       ports.PaymentMethodRegistry
	subscriptions ports.SubscriptionLedger
	validator     *billing.Validator
	metrics       ports.ReconcileMetrics
	tracer        trace.Tracer
	logger        zerolog.Logger
}

// ReconcilerOption configures a SettingsReconciler.
type ReconcilerOption func(*SettingsReconciler)

// WithMetrics records collaborator latency and reconcile outcomes.
func WithMetrics(m ports.ReconcileMetrics) ReconcilerOption {
	return func(s *SettingsReconciler) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracerProvider uses tp instead of the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) ReconcilerOption {
	return func(s *SettingsReconciler) {
		if tp != nil {
			s.tracer = tp.Tracer(tracerName)
		}
	}
}

// NewSettingsReconciler creates a new settings reconciler.
// The catalog is copied into the reconciler and never consulted by name.
func NewSettingsReconciler(
	collaborators ports.Collaborators,
	catalog billing.PriceCatalog,
	logger zerolog.Logger,
	opts ...ReconcilerOption,
) *SettingsReconciler {
	s := &SettingsReconciler{
		customers:     collaborators.Customers,
		methods:       collaborators.PaymentMethods,
		subscriptions: collaborators.Subscriptions,
		validator:     billing.NewValidator(catalog),
		metrics:       noopMetrics{},
		tracer:        otel.Tracer(tracerName),
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the price catalog writes are validated against.
func (s *SettingsReconciler) Catalog() billing.PriceCatalog {
	return s.validator.Catalog()
}

// GetSettings returns the user's current payment settings.
// The user's customer record is created if it does not exist yet.
func (s *SettingsReconciler) GetSettings(ctx context.Context, user billing.User) (billing.PaymentSettings, error) {
	ctx, span := s.tracer.Start(ctx, "settings.get", trace.WithAttributes(attribute.String("user.id", user.ID)))
	defer span.End()

	settings, err := s.getSettings(ctx, user)
	s.finish(span, "get", err)
	if err != nil {
		return billing.PaymentSettings{}, err
	}
	return settings, nil
}

func (s *SettingsReconciler) getSettings(ctx context.Context, user billing.User) (billing.PaymentSettings, error) {
	if user.ID == "" {
		return billing.PaymentSettings{}, auth.ErrNoSubject
	}

	customer, err := s.resolve(ctx, user)
	if err != nil {
		return billing.PaymentSettings{}, err
	}

	var method *billing.PaymentMethod
	err = s.call(ctx, CollaboratorPaymentMethods, "get", customer.ID, func(ctx context.Context) error {
		var err error
		method, err = s.methods.Get(ctx, customer.ID)
		return err
	})
	if err != nil {
		return billing.PaymentSettings{}, err
	}

	var storage *billing.StorageSubscription
	err = s.call(ctx, CollaboratorSubscriptions, "get", customer.ID, func(ctx context.Context) error {
		var err error
		storage, err = s.subscriptions.Get(ctx, customer.ID)
		return err
	})
	if err != nil {
		return billing.PaymentSettings{}, err
	}

	return billing.PaymentSettings{
		PaymentMethod: method,
		Subscription:  billing.Subscription{Storage: storage},
	}, nil
}

// PutSettings applies a settings update for the user.
//
// The update is validated before any collaborator is contacted. The payment
// method is attached before the storage subscription is changed. The two
// writes are independent: nothing is retried and a failed subscription
// change does not undo the attach.
func (s *SettingsReconciler) PutSettings(ctx context.Context, user billing.User, update billing.SettingsUpdate) (Accepted, error) {
	ctx, span := s.tracer.Start(ctx, "settings.put", trace.WithAttributes(attribute.String("user.id", user.ID)))
	defer span.End()

	accepted, err := s.putSettings(ctx, user, update)
	s.finish(span, "put", err)
	if err != nil {
		return Accepted{}, err
	}
	return accepted, nil
}

func (s *SettingsReconciler) putSettings(ctx context.Context, user billing.User, update billing.SettingsUpdate) (Accepted, error) {
	if user.ID == "" {
		return Accepted{}, auth.ErrNoSubject
	}

	if err := s.validator.Validate(update); err != nil {
		s.logger.Info().
			Err(err).
			Str("user_id", user.ID).
			Msg("rejected payment settings")
		return Accepted{}, err
	}

	customer, err := s.resolve(ctx, user)
	if err != nil {
		return Accepted{}, err
	}

	if pm := update.PaymentMethod; pm != nil {
		err := s.call(ctx, CollaboratorPaymentMethods, "attach", customer.ID, func(ctx context.Context) error {
			return s.methods.Attach(ctx, customer.ID, pm.ID)
		})
		if err != nil {
			return Accepted{}, err
		}
		s.logger.Info().
			Str("customer_id", customer.ID).
			Str("payment_method_id", pm.ID).
			Msg("payment method saved")
	}

	if change := update.Storage; change != nil {
		price := change.PriceOrNil()
		err := s.call(ctx, CollaboratorSubscriptions, "set_price", customer.ID, func(ctx context.Context) error {
			return s.subscriptions.SetPrice(ctx, customer.ID, price)
		})
		if err != nil {
			if update.PaymentMethod != nil {
				s.logger.Warn().
					Str("customer_id", customer.ID).
					Msg("payment method attached but storage subscription not updated")
			}
			return Accepted{}, err
		}

		evt := s.logger.Info().Str("customer_id", customer.ID)
		if price == nil {
			evt.Msg("storage subscription cancelled")
		} else {
			evt.Str("price", *price).Msg("storage subscription saved")
		}
	}

	return Accepted{CustomerID: customer.ID, Location: SettingsLocation}, nil
}

func (s *SettingsReconciler) resolve(ctx context.Context, user billing.User) (billing.Customer, error) {
	var customer billing.Customer
	err := s.call(ctx, CollaboratorCustomers, "resolve", "", func(ctx context.Context) error {
		var err error
		customer, err = s.customers.Resolve(ctx, user.ID)
		return err
	})
	if err != nil {
		return billing.Customer{}, err
	}
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("customer.id", customer.ID))
	return customer, nil
}

// call runs one collaborator operation inside its own span and wraps any
// failure in a *CollaboratorError.
func (s *SettingsReconciler) call(ctx context.Context, collaborator, op, customerID string, fn func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, collaborator+"."+op)
	defer span.End()
	if customerID != "" {
		span.SetAttributes(attribute.String("customer.id", customerID))
	}

	start := time.Now()
	err := fn(ctx)
	s.metrics.ObserveCollaborator(collaborator, op, time.Since(start), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error().
			Err(err).
			Str("collaborator", collaborator).
			Str("op", op).
			Str("customer_id", customerID).
			Msg("billing collaborator failed")
		return &CollaboratorError{
			Collaborator: collaborator,
			Op:           op,
			CustomerID:   customerID,
			Err:          err,
		}
	}
	return nil
}

func (s *SettingsReconciler) finish(span trace.Span, op string, err error) {
	outcome := outcomeOf(err)
	s.metrics.ObserveReconcile(op, outcome)
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case IsCollaboratorError(err):
		return OutcomeFailed
	case billing.IsValidationError(err):
		return OutcomeInvalid
	case auth.IsAuthError(err):
		return OutcomeUnauthorized
	default:
		return OutcomeFailed
	}
}

type noopMetrics struct{}

func (noopMetrics) ObserveCollaborator(string, string, time.Duration, error) {}
func (noopMetrics) ObserveReconcile(string, string)                         {}
