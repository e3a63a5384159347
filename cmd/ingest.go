package cmd

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/tidemark/tidemark/internal/app"
	"github.com/tidemark/tidemark/internal/config"
	"github.com/tidemark/tidemark/internal/knowledge"
)

// runIngest indexes one reference document file into the knowledge corpus.
func runIngest(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	sourceType := fs.String("type", knowledge.SourceRegulation,
		"source type: regulation, guidance or ruling")
	title := fs.String("title", "", "optional document title stored as metadata")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("ingest: exactly one file argument is required")
	}

	content, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("reading document: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
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

	doc := knowledge.Document{
		Content:    string(content),
		SourceType: *sourceType,
	}
	if *title != "" {
		doc.Metadata = map[string]any{"title": *title}
	}

	id, err := a.Knowledge.Add(ctx, doc)
	if err != nil {
		return fmt.Errorf("indexing document: %w", err)
	}

	fmt.Println(id)
	return nil
}
