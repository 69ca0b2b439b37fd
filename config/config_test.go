package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tinytb/web3.storage/config"
)

func TestLoad_ValidConfig(t *testing.T) {
	content := `
server:
  host: "127.0.0.1"
  port: 9090
  request_timeout: 15s

log:
  level: debug
  format: console

auth:
  jwt_secret: "s3cret"
  issuer: "web3.storage"
  token_ttl: 2h

billing:
  backend: sqlite
  prices:
    - name: lite
      provider_id: price_lite
    - name: pro
      provider_id: price_pro

database:
  dsn: ":memory:"
`

	cfg := writeAndLoad(t, content)

	if cfg.Server.Addr() != "127.0.0.1:9090" {
		t.Errorf("Addr() = %s, want 127.0.0.1:9090", cfg.Server.Addr())
	}
	if cfg.Server.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want 15s", cfg.Server.RequestTimeout)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("Log = %+v", cfg.Log)
	}
	if cfg.Auth.Issuer != "web3.storage" || cfg.Auth.TokenTTL != 2*time.Hour {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if cfg.Billing.Backend != "sqlite" {
		t.Errorf("Billing.Backend = %s, want sqlite", cfg.Billing.Backend)
	}
	if len(cfg.Billing.Prices) != 2 {
		t.Fatalf("len(Prices) = %d, want 2", len(cfg.Billing.Prices))
	}

	catalog := cfg.Catalog()
	if catalog.IsAllowed("free") {
		t.Error("configured prices should replace the defaults")
	}
	if id, ok := catalog.ProviderID("pro"); !ok || id != "price_pro" {
		t.Errorf("ProviderID(pro) = %q, %v", id, ok)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := writeAndLoad(t, minimalConfig())

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Host = %s, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("default Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("default ShutdownTimeout = %v, want 30s", cfg.Server.ShutdownTimeout)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("default Log = %+v", cfg.Log)
	}
	if cfg.Auth.Issuer != "w3api" {
		t.Errorf("default Issuer = %s, want w3api", cfg.Auth.Issuer)
	}
	if cfg.Billing.Backend != "memory" {
		t.Errorf("default Backend = %s, want memory", cfg.Billing.Backend)
	}
	if cfg.Database.DSN != "w3api.db" {
		t.Errorf("default DSN = %s, want w3api.db", cfg.Database.DSN)
	}
	if cfg.Redis.TTL != 24*time.Hour {
		t.Errorf("default Redis.TTL = %v, want 24h", cfg.Redis.TTL)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics.Path = %s, want /metrics", cfg.Metrics.Path)
	}
	if cfg.Tracing.ServiceName != "w3api" || cfg.Tracing.SampleRatio != 1 {
		t.Errorf("default Tracing = %+v", cfg.Tracing)
	}

	catalog := cfg.Catalog()
	for _, name := range []string{"free", "lite", "pro"} {
		if !catalog.IsAllowed(name) {
			t.Errorf("default catalog rejects %q", name)
		}
	}
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_JWT_SECRET", "from-env")

	cfg := writeAndLoad(t, `
auth:
  jwt_secret: "${TEST_JWT_SECRET}"
`)

	if cfg.Auth.JWTSecret != "from-env" {
		t.Errorf("JWTSecret = %s, want from-env", cfg.Auth.JWTSecret)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "missing jwt secret",
			content: `server: {port: 8080}`,
			want:    "auth.jwt_secret",
		},
		{
			name: "unknown backend",
			content: minimalConfig() + `
billing:
  backend: paypal
`,
			want: "billing.backend",
		},
		{
			name: "stripe without key",
			content: minimalConfig() + `
billing:
  backend: stripe
`,
			want: "stripe.secret_key",
		},
		{
			name: "price without name",
			content: minimalConfig() + `
billing:
  prices:
    - provider_id: price_1
`,
			want: "billing.prices[0].name",
		},
		{
			name: "duplicate price",
			content: minimalConfig() + `
billing:
  prices:
    - name: lite
    - name: lite
`,
			want: "duplicate price",
		},
		{
			name: "bad log level",
			content: minimalConfig() + `
log:
  level: loud
`,
			want: "log.level",
		},
		{
			name: "redis enabled without url",
			content: minimalConfig() + `
redis:
  enabled: true
`,
			want: "redis.url",
		},
		{
			name: "tracing enabled without endpoint",
			content: minimalConfig() + `
tracing:
  enabled: true
`,
			want: "tracing.endpoint",
		},
		{
			name: "sample ratio out of range",
			content: minimalConfig() + `
tracing:
  sample_ratio: 2
`,
			want: "tracing.sample_ratio",
		},
		{
			name: "port out of range",
			content: minimalConfig() + `
server:
  port: 70000
`,
			want: "server.port",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := writeAndLoadErr(t, tt.content)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestLoad_StripeBackend(t *testing.T) {
	cfg := writeAndLoad(t, minimalConfig()+`
billing:
  backend: stripe
stripe:
  secret_key: sk_test_123
  api_url: http://localhost:12111
`)

	if cfg.Stripe.SecretKey != "sk_test_123" {
		t.Errorf("SecretKey = %s", cfg.Stripe.SecretKey)
	}
	if cfg.Stripe.Timeout != 30*time.Second {
		t.Errorf("default Stripe.Timeout = %v, want 30s", cfg.Stripe.Timeout)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := writeAndLoadErr(t, "auth: [unclosed")
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("W3API_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("W3API_SERVER_PORT", "9999")
	t.Setenv("W3API_LOG_LEVEL", "debug")
	t.Setenv("W3API_BILLING_BACKEND", "sqlite")
	t.Setenv("W3API_BILLING_PRICES", "lite=price_lite, pro=price_pro,free")
	t.Setenv("W3API_DATABASE_DSN", "/tmp/env-test.db")
	t.Setenv("W3API_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv error: %v", err)
	}

	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("JWTSecret = %s, want env-secret", cfg.Auth.JWTSecret)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want debug", cfg.Log.Level)
	}
	if cfg.Billing.Backend != "sqlite" || cfg.Database.DSN != "/tmp/env-test.db" {
		t.Errorf("Billing = %+v, Database = %+v", cfg.Billing, cfg.Database)
	}
	if !cfg.Redis.Enabled {
		t.Error("setting W3API_REDIS_URL should enable the cache")
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}

	want := []config.PriceConfig{
		{Name: "lite", ProviderID: "price_lite"},
		{Name: "pro", ProviderID: "price_pro"},
		{Name: "free"},
	}
	if len(cfg.Billing.Prices) != len(want) {
		t.Fatalf("Prices = %+v, want %+v", cfg.Billing.Prices, want)
	}
	for i := range want {
		if cfg.Billing.Prices[i] != want[i] {
			t.Errorf("Prices[%d] = %+v, want %+v", i, cfg.Billing.Prices[i], want[i])
		}
	}
}

func TestLoadFromEnv_MissingRequired(t *testing.T) {
	t.Setenv("W3API_AUTH_JWT_SECRET", "")

	if _, err := config.LoadFromEnv(); err == nil {
		t.Fatal("expected error for missing jwt secret")
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("W3API_SERVER_PORT", "7777")
	t.Setenv("W3API_LOG_LEVEL", "error")
	t.Setenv("W3API_TRACING_ENDPOINT", "otel:4317")
	t.Setenv("W3API_TRACING_INSECURE", "yes")

	cfg := writeAndLoad(t, minimalConfig()+`
server:
  port: 8000
log:
  level: debug
`)

	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777 (env override)", cfg.Server.Port)
	}
	if cfg.Log.Level != "error" {
		t.Errorf("Log.Level = %s, want error (env override)", cfg.Log.Level)
	}
	if !cfg.Tracing.Enabled || !cfg.Tracing.Insecure || cfg.Tracing.Endpoint != "otel:4317" {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
}

func TestEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("W3API_SERVER_PORT", "not-a-number")
	t.Setenv("W3API_SERVER_READ_TIMEOUT", "soon")

	cfg := writeAndLoad(t, minimalConfig())

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("ReadTimeout = %v, want default 30s", cfg.Server.ReadTimeout)
	}
}

func TestLoadWithFallback(t *testing.T) {
	t.Run("file exists", func(t *testing.T) {
		path := writeConfig(t, minimalConfig())
		cfg, err := config.LoadWithFallback(path)
		if err != nil {
			t.Fatalf("LoadWithFallback error: %v", err)
		}
		if cfg.Auth.JWTSecret != "test-secret" {
			t.Errorf("JWTSecret = %s, want test-secret", cfg.Auth.JWTSecret)
		}
	})

	t.Run("env only", func(t *testing.T) {
		t.Setenv("W3API_AUTH_JWT_SECRET", "env-secret")
		cfg, err := config.LoadWithFallback(filepath.Join(t.TempDir(), "missing.yaml"))
		if err != nil {
			t.Fatalf("LoadWithFallback error: %v", err)
		}
		if cfg.Auth.JWTSecret != "env-secret" {
			t.Errorf("JWTSecret = %s, want env-secret", cfg.Auth.JWTSecret)
		}
	})

	t.Run("nothing", func(t *testing.T) {
		t.Setenv("W3API_AUTH_JWT_SECRET", "")
		if _, err := config.LoadWithFallback(""); err == nil {
			t.Fatal("expected error when no config is available")
		}
	})
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("W3API_DOTENV_PROBE=loaded\n"), 0644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("W3API_DOTENV_PROBE", "")
	os.Unsetenv("W3API_DOTENV_PROBE")

	if err := config.LoadDotEnv(filepath.Join(dir, "absent.env"), path); err != nil {
		t.Fatalf("LoadDotEnv error: %v", err)
	}
	if got := os.Getenv("W3API_DOTENV_PROBE"); got != "loaded" {
		t.Errorf("W3API_DOTENV_PROBE = %q, want loaded", got)
	}
}

func TestParseBoolValues(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{" on ", true},
		{"false", false},
		{"0", false},
		{"no", false},
		{"garbage", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			t.Setenv("W3API_AUTH_JWT_SECRET", "x")
			t.Setenv("W3API_METRICS_ENABLED", tt.value)

			cfg, err := config.LoadFromEnv()
			if err != nil {
				t.Fatalf("LoadFromEnv error: %v", err)
			}
			if cfg.Metrics.Enabled != tt.want {
				t.Errorf("Metrics.Enabled for %q = %v, want %v", tt.value, cfg.Metrics.Enabled, tt.want)
			}
		})
	}
}

func minimalConfig() string {
	return `
auth:
  jwt_secret: "test-secret"
`
}

func writeAndLoad(t *testing.T, content string) *config.Config {
	t.Helper()
	cfg, err := writeAndLoadErr(t, content)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	return cfg
}

func writeAndLoadErr(t *testing.T, content string) (*config.Config, error) {
	t.Helper()
	return config.Load(writeConfig(t, content))
}
