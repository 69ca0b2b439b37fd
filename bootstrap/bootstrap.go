// Package bootstrap wires all dependencies and starts the application.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/tinytb/web3.storage/adapters/auth"
	"github.com/tinytb/web3.storage/adapters/cache"
	"github.com/tinytb/web3.storage/adapters/clock"
	apihttp "github.com/tinytb/web3.storage/adapters/http"
	"github.com/tinytb/web3.storage/adapters/idgen"
	"github.com/tinytb/web3.storage/adapters/metrics"
	"github.com/tinytb/web3.storage/adapters/payment"
	"github.com/tinytb/web3.storage/adapters/sqlite"
	"github.com/tinytb/web3.storage/adapters/tracing"
	"github.com/tinytb/web3.storage/app"
	"github.com/tinytb/web3.storage/config"
	"github.com/tinytb/web3.storage/ports"
	"go.opentelemetry.io/otel/trace"
)

// Options carries process-level inputs that do not come from the config file.
type Options struct {
	Version   string
	LogOutput io.Writer         // default os.Stdout
	Clock     ports.Clock       // default wall clock
	IDGen     ports.IDGenerator // default "cus_" prefixed UUIDs
}

// App represents the running application.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	DB         *sqlite.DB        // nil unless billing.backend is sqlite
	Cache      *cache.RedisCache // nil unless redis is enabled
	Metrics    *metrics.Collector
	Registry   *prometheus.Registry
	Reconciler *app.SettingsReconciler
	Tokens     *auth.TokenService
	Router     http.Handler
	HTTPServer *http.Server

	holder          *config.Holder
	tracingShutdown tracing.Shutdown
}

// New creates and initializes the application from cfg.
func New(cfg *config.Config, opts Options) (*App, error) {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	if opts.LogOutput == nil {
		opts.LogOutput = os.Stdout
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.IDGen == nil {
		opts.IDGen = idgen.NewPrefixed("cus_")
	}

	logger := SetupLogger(cfg.Log, opts.LogOutput)
	logger.Info().
		Str("version", opts.Version).
		Str("backend", cfg.Billing.Backend).
		Msg("initializing w3api")

	a := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := a.init(cfg, opts); err != nil {
		a.close(context.Background())
		return nil, err
	}
	return a, nil
}

// NewWithHotReload loads the config file at path and reloads the log level
// whenever the file changes or the process receives SIGHUP.
func NewWithHotReload(path string, opts Options) (*App, error) {
	bootLogger := SetupLogger(config.LogConfig{Level: "info", Format: "json"}, opts.LogOutput)

	holder, err := config.NewHolder(path, bootLogger)
	if err != nil {
		return nil, err
	}

	a, err := New(holder.Get(), opts)
	if err != nil {
		return nil, err
	}

	a.holder = holder
	if a.Metrics != nil {
		holder.SetRecorder(a.Metrics)
	}
	holder.OnChange(func(cfg *config.Config) {
		applyLogLevel(cfg.Log.Level)
	})

	if err := holder.WatchFile(); err != nil {
		a.Logger.Warn().Err(err).Msg("config file watch unavailable, SIGHUP only")
	}
	holder.WatchSignals()

	return a, nil
}

func (a *App) init(cfg *config.Config, opts Options) error {
	ctx := context.Background()

	if cfg.Metrics.Enabled {
		a.Registry = prometheus.NewRegistry()
		a.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.Metrics = metrics.NewWithRegistry(a.Registry)
		a.Logger.Info().Str("path", cfg.Metrics.Path).Msg("prometheus metrics enabled")
	}

	tp, shutdown, err := tracing.Setup(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: opts.Version,
	}, a.Logger)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	a.tracingShutdown = shutdown

	checkers := map[string]ports.HealthChecker{}

	if cfg.Billing.Backend == payment.BackendSQLite {
		if err := a.initDatabase(cfg.Database.DSN); err != nil {
			return fmt.Errorf("init database: %w", err)
		}
		checkers["database"] = a.DB
	}

	collabs, err := payment.NewCollaborators(payment.Options{
		Backend: cfg.Billing.Backend,
		Stripe: payment.StripeConfig{
			SecretKey: cfg.Stripe.SecretKey,
			APIURL:    cfg.Stripe.APIURL,
			Timeout:   cfg.Stripe.Timeout,
		},
		Catalog: cfg.Catalog(),
		DB:      a.DB,
		IDGen:   opts.IDGen,
		Clock:   opts.Clock,
		Logger:  a.Logger,
	})
	if err != nil {
		return fmt.Errorf("init billing: %w", err)
	}

	if cfg.Redis.Enabled {
		c, err := cache.Open(ctx, cfg.Redis.URL, cfg.Redis.TTL)
		if err != nil {
			return fmt.Errorf("init redis: %w", err)
		}
		a.Cache = c
		checkers["redis"] = c

		var recorder cache.LookupRecorder
		if a.Metrics != nil {
			recorder = a.Metrics
		}
		collabs.Customers = cache.NewDirectory(collabs.Customers, c, recorder, a.Logger)
		a.Logger.Info().Dur("ttl", cfg.Redis.TTL).Msg("customer cache enabled")
	}

	a.Reconciler = app.NewSettingsReconciler(collabs, cfg.Catalog(), a.Logger, a.reconcilerOptions(tp)...)
	a.Tokens = auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)

	var metricsHandler http.Handler
	if a.Registry != nil {
		metricsHandler = promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})
	}

	a.Router = apihttp.NewRouter(apihttp.RouterConfig{
		Settings:       a.Reconciler,
		Authenticator:  a.Tokens,
		Logger:         a.Logger,
		Metrics:        a.Metrics,
		MetricsHandler: metricsHandler,
		MetricsPath:    cfg.Metrics.Path,
		HealthCheckers: checkers,
		Version:        opts.Version,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	a.HTTPServer = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      a.Router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return nil
}

func (a *App) reconcilerOptions(tp trace.TracerProvider) []app.ReconcilerOption {
	opts := []app.ReconcilerOption{app.WithTracerProvider(tp)}
	if a.Metrics != nil {
		opts = append(opts, app.WithMetrics(a.Metrics))
	}
	return opts
}

func (a *App) initDatabase(dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return fmt.Errorf("migrate: %w", err)
	}
	a.DB = db
	a.Logger.Info().Str("dsn", dsn).Msg("database ready")
	return nil
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM or ctx is done.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.HTTPServer.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info().Str("addr", ln.Addr().String()).Msg("starting http server")
		if err := a.HTTPServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		a.Logger.Info().Msg("shutting down")
	}

	return a.Shutdown()
}

// Shutdown gracefully stops the application.
func (a *App) Shutdown() error {
	timeout := a.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var err error
	if a.HTTPServer != nil {
		if serr := a.HTTPServer.Shutdown(ctx); serr != nil {
			a.Logger.Error().Err(serr).Msg("http server shutdown error")
			err = serr
		}
	}

	a.close(ctx)
	a.Logger.Info().Msg("shutdown complete")
	return err
}

func (a *App) close(ctx context.Context) {
	if a.holder != nil {
		a.holder.Stop()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("redis close error")
		}
		a.Cache = nil
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Error().Err(err).Msg("database close error")
		}
		a.DB = nil
	}
	if a.tracingShutdown != nil {
		if err := a.tracingShutdown(ctx); err != nil {
			a.Logger.Error().Err(err).Msg("tracer shutdown error")
		}
		a.tracingShutdown = nil
	}
}

// SetupLogger builds the process logger and sets the global level.
func SetupLogger(cfg config.LogConfig, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	applyLogLevel(cfg.Level)

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).With().Timestamp().Str("service", "w3api").Logger()
}

func applyLogLevel(levelStr string) {
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil || levelStr == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
