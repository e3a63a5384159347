package cmd

import (
	"fmt"
	"log/slog"

	"github.com/tidemark/tidemark/db"
	"github.com/tidemark/tidemark/internal/config"
)

// runMigrate applies database migrations and exits. serve and pulse also
// migrate on startup; this command exists for deploy pipelines that migrate
// before rolling instances.
func runMigrate(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("migrations applied", "database", cfg.PostgresDBName)
	return nil
}
