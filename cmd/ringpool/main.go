// ============================================================================
// ringpool - Main Entry Point
// ============================================================================
//
// File: cmd/ringpool/main.go
// Purpose: Application entry point and CLI initialization for the
// demonstration binary - not part of the core's interesting engineering
// (that lives in pkg/ringqueue, internal/promise, internal/worker, and
// internal/pool).
//
// Version Injection:
//   Variables injected at build time via -ldflags:
//   go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
//
// Usage:
//   ./ringpool --help              # Show help
//   ./ringpool run                 # Start a pool and block until a signal
//   ./ringpool submit -f tasks.json # Run a JSON-described task batch
//   ./ringpool status              # Show the resolved configuration
//
// ============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/ringpool/ringpool/internal/cli"
)

var (
	version = "1.0.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
