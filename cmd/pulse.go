package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tidemark/tidemark/internal/app"
	"github.com/tidemark/tidemark/internal/compliance"
	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/pulse"
)

// runPulse executes one digest cycle for a client and prints the digest as
// JSON on stdout. Exit is non-zero when the run itself fails; a persistence
// failure still prints the computed digest before reporting the error.
func runPulse(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("pulse", flag.ContinueOnError)
	clientID := fs.String("client", "", "client id to run the digest for")
	endFlag := fs.String("end", "", "period end as RFC 3339 (default: now)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *clientID == "" {
		return fmt.Errorf("pulse: -client is required")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	end := time.Now().UTC()
	if *endFlag != "" {
		end, err = time.Parse(time.RFC3339, *endFlag)
		if err != nil {
			return fmt.Errorf("parsing -end: %w", err)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	period := pulse.Period{Start: end.Add(-cfg.Pulse.Interval), End: end}
	digest, runErr := a.Runner.Run(ctx, *clientID, period)

	if digest != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(digest); err != nil {
			return fmt.Errorf("encoding digest: %w", err)
		}
	}

	if runErr != nil {
		if errors.Is(runErr, compliance.ErrPersistence) {
			return fmt.Errorf("digest computed but not saved: %w", runErr)
		}
		return fmt.Errorf("pulse run: %w", runErr)
	}
	return nil
}
