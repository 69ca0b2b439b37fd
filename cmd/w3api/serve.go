package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tinytb/web3.storage/bootstrap"
	"github.com/tinytb/web3.storage/config"
)

var (
	hotReload bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the payment settings server",
	Long: `Start the w3api HTTP server.

The server will:
  - Load configuration from w3api.yaml (or --config)
  - Or load configuration from W3API_* environment variables
  - Open the configured billing backend (memory, sqlite or stripe)
  - Serve /user/payment, /health, /version and /metrics

Environment variables (for Docker deployments):
  W3API_AUTH_JWT_SECRET    - Bearer token signing secret (required)
  W3API_BILLING_BACKEND    - memory, sqlite or stripe
  W3API_STRIPE_SECRET_KEY  - Stripe API key
  W3API_DATABASE_DSN       - SQLite path (default: w3api.db)
  W3API_REDIS_URL          - Customer cache
  W3API_SERVER_PORT        - Server port (default: 8080)

Examples:
  w3api serve
  w3api serve --config /etc/w3api/config.yaml
  W3API_AUTH_JWT_SECRET=dev w3api serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().BoolVar(&hotReload, "hot-reload", true, "reload the log level when the config file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	hasConfigFile := false
	if _, err := os.Stat(cfgFile); err == nil {
		hasConfigFile = true
	}

	if !hasConfigFile && !config.HasEnvConfig() {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "No configuration found.")
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Option 1: Create %s\n", cfgFile)
		fmt.Fprintf(out, "Option 2: Set %sAUTH_JWT_SECRET\n", config.EnvPrefix)
		return nil
	}

	opts := bootstrap.Options{Version: version}

	var app *bootstrap.App
	var err error
	if hasConfigFile && hotReload {
		app, err = bootstrap.NewWithHotReload(cfgFile, opts)
	} else {
		cfg, loadErr := config.LoadWithFallback(cfgFile)
		if loadErr != nil {
			return fmt.Errorf("error loading config: %w", loadErr)
		}
		app, err = bootstrap.New(cfg, opts)
	}
	if err != nil {
		return fmt.Errorf("error initializing: %w", err)
	}

	// Blocks until SIGINT/SIGTERM.
	return app.Run(cmd.Context())
}
