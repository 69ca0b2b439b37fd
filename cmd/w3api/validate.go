package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tinytb/web3.storage/adapters/cache"
	"github.com/tinytb/web3.storage/adapters/sqlite"
	"github.com/tinytb/web3.storage/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration before deployment",
	Long: `Validate the w3api configuration file.

Checks:
  - YAML syntax is valid
  - Required fields are present
  - Database is writable (optional)
  - Redis is reachable (optional)

Examples:
  w3api validate
  w3api validate --config /etc/w3api/config.yaml --check-database`,
	RunE: runValidate,
}

var (
	validateCheckDatabase bool
	validateCheckRedis    bool
)

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateCheckDatabase, "check-database", false, "check if database is writable")
	validateCmd.Flags().BoolVar(&validateCheckRedis, "check-redis", false, "check if redis is reachable")
}

func runValidate(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Validating %s...\n\n", cfgFile)

	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		fmt.Fprintf(out, "  %s Config file exists\n", crossMark)
		return fmt.Errorf("config file not found: %s", cfgFile)
	}
	fmt.Fprintf(out, "  %s Config file exists\n", checkMark)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		fmt.Fprintf(out, "  %s Config valid\n", crossMark)
		return fmt.Errorf("config error: %w", err)
	}
	fmt.Fprintf(out, "  %s Config valid\n", checkMark)

	fmt.Fprintf(out, "  %s Billing backend: %s\n", checkMark, cfg.Billing.Backend)
	fmt.Fprintf(out, "  %s Storage prices: %v\n", checkMark, cfg.Catalog().Names())
	fmt.Fprintf(out, "  %s Listen: %s\n", checkMark, cfg.Server.Addr())

	if validateCheckDatabase {
		report(out, "Database writable", checkDatabaseWritable(cfg.Database.DSN))
	}
	if validateCheckRedis && cfg.Redis.Enabled {
		report(out, "Redis reachable", checkRedisReachable(cfg.Redis.URL))
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Configuration is valid.")
	return nil
}

func report(out io.Writer, check string, err error) {
	if err != nil {
		fmt.Fprintf(out, "  %s %s\n", crossMark, check)
		fmt.Fprintf(out, "      Error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "  %s %s\n", checkMark, check)
}

func checkDatabaseWritable(dsn string) error {
	db, err := sqlite.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Migrate()
}

func checkRedisReachable(url string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := cache.Open(ctx, url, 0)
	if err != nil {
		return err
	}
	return c.Close()
}

const (
	checkMark = "\033[32m✓\033[0m"
	crossMark = "\033[31m✗\033[0m"
)
