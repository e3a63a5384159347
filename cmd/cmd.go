// Package cmd provides the tidemark CLI commands.
//
// Commands:
//   - serve: HTTP API server plus the recurring pulse schedule
//   - pulse: one-shot digest run for a client, printed as JSON
//   - ingest: index a reference document into the knowledge corpus
//   - migrate: apply database migrations and exit
//
// Signal handling and graceful shutdown are implemented for all commands via
// context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tidemark/tidemark/internal/log"
)

// Execute is the main entry point for the tidemark CLI.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: os.Getenv("LOG_JSON") != ""})
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe(logger)
	case "pulse":
		return runPulse(logger, os.Args[2:])
	case "ingest":
		return runIngest(logger, os.Args[2:])
	case "migrate":
		return runMigrate(logger)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Tidemark - trade compliance monitoring and advisory")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  tidemark serve                     Start HTTP API server and pulse schedule")
	fmt.Println("  tidemark pulse -client <id>        Run one digest cycle and print it")
	fmt.Println("  tidemark ingest -type <t> <file>   Index a reference document")
	fmt.Println("  tidemark migrate                   Apply database migrations")
	fmt.Println("  tidemark --version                 Show version information")
	fmt.Println("  tidemark --help                    Show this help")
	fmt.Println()
	fmt.Println("Configuration is read from ~/.tidemark/config.yaml and environment")
	fmt.Println("variables.")
}
