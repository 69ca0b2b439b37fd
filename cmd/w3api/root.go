package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "w3api",
	Short: "Payment settings service for storage subscriptions",
	Long: `w3api serves GET and PUT /user/payment for authenticated users.

It resolves each user to a billing customer, attaches the default payment
method and keeps the storage subscription on the requested price.

Quick start:
  w3api serve              # Start the server
  w3api token did:key:abc  # Issue a bearer token for local testing
  w3api validate           # Validate configuration`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "w3api.yaml", "config file path")
}
