// Package http provides the HTTP surface of the payment settings service.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/tinytb/web3.storage/adapters/auth"
	"github.com/tinytb/web3.storage/adapters/metrics"
	"github.com/tinytb/web3.storage/app"
	domainauth "github.com/tinytb/web3.storage/domain/auth"
	"github.com/tinytb/web3.storage/domain/billing"
	"github.com/tinytb/web3.storage/pkg/jsonapi"
	"github.com/tinytb/web3.storage/ports"
)

// MaxSettingsBody caps the size of a PUT /user/payment body.
const MaxSettingsBody = 1 << 20

// SettingsService is the application surface the payment handler drives.
type SettingsService interface {
	GetSettings(ctx context.Context, user billing.User) (billing.PaymentSettings, error)
	PutSettings(ctx context.Context, user billing.User, update billing.SettingsUpdate) (app.Accepted, error)
}

// VersionResponse represents the version endpoint response.
type VersionResponse struct {
	Version string `json:"version"`
	Service string `json:"service"`
}

// PaymentHandler serves GET and PUT /user/payment.
type PaymentHandler struct {
	service SettingsService
	logger  zerolog.Logger
}

// NewPaymentHandler creates a new payment settings handler.
func NewPaymentHandler(service SettingsService, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{service: service, logger: logger}
}

// Get returns the caller's current payment settings.
func (h *PaymentHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.writeError(w, r, domainauth.ErrMissingCredentials)
		return
	}

	settings, err := h.service.GetSettings(r.Context(), user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonapi.WriteJSON(w, http.StatusOK, settings)
}

// Put applies the desired payment settings for the caller.
// The response is 202 with a Location the client can poll.
func (h *PaymentHandler) Put(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.writeError(w, r, domainauth.ErrMissingCredentials)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxSettingsBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonapi.WriteError(w, jsonapi.ErrRequestTooLarge(tooLarge.Limit))
			return
		}
		jsonapi.WriteBadRequest(w, "Failed to read request body")
		return
	}

	update, err := billing.DecodeSettingsUpdate(bytes.NewReader(body))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	accepted, err := h.service.PutSettings(r.Context(), user, update)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonapi.WriteAccepted(w, accepted.Location)
}

// writeError maps reconcile failures onto HTTP statuses.
func (h *PaymentHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *billing.ValidationError
	var cerr *app.CollaboratorError

	switch {
	// Collaborator failures map to 502 whatever they wrap.
	case errors.As(err, &cerr):
		h.logger.Error().
			Err(cerr.Err).
			Str("collaborator", cerr.Collaborator).
			Str("op", cerr.Op).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("billing collaborator failed")
		jsonapi.WriteError(w, jsonapi.ErrBadGateway(cerr.Error()))
	case errors.As(err, &verr):
		errs := make([]jsonapi.Error, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			errs = append(errs, jsonapi.ErrInvalidField(f.Field, f.Reason))
		}
		if len(errs) == 0 {
			errs = append(errs, jsonapi.ErrBadRequest(err.Error()))
		}
		jsonapi.WriteError(w, errs...)
	case domainauth.IsAuthError(err):
		jsonapi.WriteUnauthorized(w, err.Error())
	default:
		h.logger.Error().
			Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("payment settings request failed")
		jsonapi.WriteError(w, jsonapi.ErrInternal(""))
	}
}

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checkers map[string]ports.HealthChecker
}

// NewHealthHandler creates a new health handler. Nil checkers are skipped.
func NewHealthHandler(checkers map[string]ports.HealthChecker) *HealthHandler {
	h := &HealthHandler{checkers: make(map[string]ports.HealthChecker, len(checkers))}
	for name, c := range checkers {
		if c != nil {
			h.checkers[name] = c
		}
	}
	return h
}

// Liveness returns a simple liveness check.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// Readiness checks every dependency and reports failures by name.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checkers))
	for name := range h.checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	failures := map[string]string{}
	for _, name := range names {
		if err := h.checkers[name].HealthCheck(ctx); err != nil {
			failures[name] = err.Error()
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if len(failures) > 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]any{
			"status": "unhealthy",
			"errors": failures,
		})
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// NewVersionHandler returns a handler reporting the build version.
func NewVersionHandler(version string) http.HandlerFunc {
	if version == "" {
		version = "dev"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(VersionResponse{
			Version: version,
			Service: "w3api",
		})
	}
}

// RouterConfig holds the dependencies of the router.
type RouterConfig struct {
	Settings       SettingsService
	Authenticator  auth.Authenticator
	Logger         zerolog.Logger
	Metrics        *metrics.Collector // optional
	MetricsHandler http.Handler       // optional exporter for /metrics
	MetricsPath    string             // default /metrics
	HealthCheckers map[string]ports.HealthChecker
	Version        string
	RequestTimeout time.Duration // default 60s
}

// NewRouter creates the main HTTP router.
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(NewLoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	if cfg.Metrics != nil {
		r.Use(NewMetricsMiddleware(cfg.Metrics))
	}

	health := NewHealthHandler(cfg.HealthCheckers)
	r.Get("/health", health.Liveness)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	if cfg.MetricsHandler != nil {
		r.Handle(metricsPath, cfg.MetricsHandler)
	} else if cfg.Metrics != nil {
		r.Handle(metricsPath, promhttp.Handler())
	}

	r.Get("/version", NewVersionHandler(cfg.Version))

	payments := NewPaymentHandler(cfg.Settings, cfg.Logger)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireUser(cfg.Authenticator, cfg.Logger, cfg.Metrics, func(w http.ResponseWriter, _ *http.Request, err error) {
			jsonapi.WriteUnauthorized(w, err.Error())
		}))
		r.Get(app.SettingsLocation, payments.Get)
		r.Put(app.SettingsLocation, payments.Put)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		jsonapi.WriteError(w, jsonapi.ErrNotFound("route"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		var allowed []string
		if r.URL.Path == app.SettingsLocation {
			allowed = []string{http.MethodGet, http.MethodPut}
			w.Header().Set("Allow", "GET, PUT")
		}
		jsonapi.WriteError(w, jsonapi.ErrMethodNotAllowed(r.Method, allowed))
	})

	return r
}
