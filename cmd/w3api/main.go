// Package main is the entry point for w3api, the payment settings service.
package main

import (
	"fmt"
	"os"

	"github.com/tinytb/web3.storage/config"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}
	Execute()
}
