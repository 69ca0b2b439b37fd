// Package config provides configuration loading and validation.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/tinytb/web3.storage/domain/billing"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "W3API_"

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Auth     AuthConfig     `yaml:"auth"`
	Billing  BillingConfig  `yaml:"billing"`
	Stripe   StripeConfig   `yaml:"stripe"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=trace debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// BillingConfig selects the billing backend and the storage prices it accepts.
type BillingConfig struct {
	Backend string        `yaml:"backend" validate:"oneof=memory sqlite stripe"`
	Prices  []PriceConfig `yaml:"prices" validate:"dive"`
}

// PriceConfig maps a storage price name to the processor's price ID.
type PriceConfig struct {
	Name       string `yaml:"name" validate:"required"`
	ProviderID string `yaml:"provider_id,omitempty"`
}

// StripeConfig configures the Stripe backend.
type StripeConfig struct {
	SecretKey string        `yaml:"secret_key,omitempty"`
	APIURL    string        `yaml:"api_url,omitempty"` // e.g. stripe-mock
	Timeout   time.Duration `yaml:"timeout,omitempty"`
}

// DatabaseConfig configures the SQLite database.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig configures the customer cache.
type RedisConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url" validate:"required_if=Enabled true"`
	TTL     time.Duration `yaml:"ttl"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint" validate:"required_if=Enabled true"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio" validate:"min=0,max=1"`
	ServiceName string  `yaml:"service_name"`
}

// Catalog builds the price catalog from the configured prices.
func (c *Config) Catalog() billing.PriceCatalog {
	prices := make([]billing.Price, len(c.Billing.Prices))
	for i, p := range c.Billing.Prices {
		prices[i] = billing.Price{Name: p.Name, ProviderID: p.ProviderID}
	}
	return billing.NewPriceCatalog(prices...)
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
//
// Environment variables:
//
//	W3API_SERVER_HOST        - Server host (default: 0.0.0.0)
//	W3API_SERVER_PORT        - Server port (default: 8080)
//	W3API_LOG_LEVEL          - debug, info, warn, error (default: info)
//	W3API_LOG_FORMAT         - json or console (default: json)
//	W3API_AUTH_JWT_SECRET    - Bearer token signing secret (required)
//	W3API_AUTH_ISSUER        - Expected token issuer
//	W3API_BILLING_BACKEND    - memory, sqlite or stripe (default: memory)
//	W3API_BILLING_PRICES     - name[=provider_id] list, comma separated
//	W3API_STRIPE_SECRET_KEY  - Stripe API key
//	W3API_STRIPE_API_URL     - Stripe API endpoint override
//	W3API_DATABASE_DSN       - SQLite path (default: w3api.db)
//	W3API_REDIS_URL          - Enables the customer cache when set
//	W3API_METRICS_ENABLED    - Enable /metrics (default: true)
//	W3API_TRACING_ENDPOINT   - Enables tracing when set
func LoadFromEnv() (*Config, error) {
	cfg := Config{
		Metrics: MetricsConfig{Enabled: true},
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}

	if HasEnvConfig() {
		return LoadFromEnv()
	}

	return nil, fmt.Errorf("no configuration found: provide config file or set %sAUTH_JWT_SECRET", EnvPrefix)
}

// HasEnvConfig returns true if essential environment variables are set.
func HasEnvConfig() bool {
	return os.Getenv(EnvPrefix+"AUTH_JWT_SECRET") != ""
}

// LoadDotEnv loads variables from the given .env files into the process
// environment. Missing files are skipped and existing variables are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func env(key string) string {
	return os.Getenv(EnvPrefix + key)
}

// applyEnvOverrides applies W3API_* environment variables to the config.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	// Server configuration
	if v := env("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := env("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := env("SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := env("SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	// Logging configuration
	if v := env("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := env("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}

	// Auth configuration
	if v := env("AUTH_JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := env("AUTH_ISSUER"); v != "" {
		cfg.Auth.Issuer = v
	}
	if v := env("AUTH_TOKEN_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Auth.TokenTTL = d
		}
	}

	// Billing configuration
	if v := env("BILLING_BACKEND"); v != "" {
		cfg.Billing.Backend = v
	}
	if v := env("BILLING_PRICES"); v != "" {
		cfg.Billing.Prices = parsePrices(v)
	}
	if v := env("STRIPE_SECRET_KEY"); v != "" {
		cfg.Stripe.SecretKey = v
	}
	if v := env("STRIPE_API_URL"); v != "" {
		cfg.Stripe.APIURL = v
	}

	// Storage configuration
	if v := env("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := env("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
		cfg.Redis.Enabled = true
	}
	if v := env("REDIS_ENABLED"); v != "" {
		cfg.Redis.Enabled = parseBool(v)
	}

	// Observability configuration
	if v := env("METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := env("METRICS_PATH"); v != "" {
		cfg.Metrics.Path = v
	}
	if v := env("TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
		cfg.Tracing.Enabled = true
	}
	if v := env("TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = parseBool(v)
	}
	if v := env("TRACING_INSECURE"); v != "" {
		cfg.Tracing.Insecure = parseBool(v)
	}
}

// parsePrices parses "lite=price_123,pro=price_456,free".
func parsePrices(v string) []PriceConfig {
	var prices []PriceConfig
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, providerID, _ := strings.Cut(item, "=")
		prices = append(prices, PriceConfig{
			Name:       strings.TrimSpace(name),
			ProviderID: strings.TrimSpace(providerID),
		})
	}
	return prices
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 60 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "w3api"
	}
	if cfg.Auth.TokenTTL == 0 {
		cfg.Auth.TokenTTL = 24 * time.Hour
	}

	if cfg.Billing.Backend == "" {
		cfg.Billing.Backend = "memory"
	}
	// Default storage tiers if none configured
	if len(cfg.Billing.Prices) == 0 {
		for _, p := range billing.DefaultStoragePrices() {
			cfg.Billing.Prices = append(cfg.Billing.Prices, PriceConfig{Name: p.Name, ProviderID: p.ProviderID})
		}
	}
	if cfg.Stripe.Timeout == 0 {
		cfg.Stripe.Timeout = 30 * time.Second
	}

	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "w3api.db"
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 24 * time.Hour
	}

	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "w3api"
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 1
	}
}

var structValidator = newValidator()

// newValidator reports fields by their YAML names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s: failed %q check (value %v)", fieldPath(fe.Namespace()), fe.Tag(), fe.Value())
		}
		return err
	}

	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}

	if cfg.Billing.Backend == "stripe" && cfg.Stripe.SecretKey == "" {
		return fmt.Errorf("stripe.secret_key is required when billing.backend is 'stripe'")
	}

	seen := make(map[string]bool, len(cfg.Billing.Prices))
	for i, p := range cfg.Billing.Prices {
		if seen[p.Name] {
			return fmt.Errorf("billing.prices[%d]: duplicate price %q", i, p.Name)
		}
		seen[p.Name] = true
	}

	return nil
}

// fieldPath turns "Config.billing.prices[0].name" into "billing.prices[0].name".
func fieldPath(ns string) string {
	return strings.TrimPrefix(ns, "Config.")
}
