// Command migratetest opens an existing database, which migrates it to the current schema, and checks that the
// pipeline tables are in place and still hold their rows.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/myrjola/canonforge/internal/errors"
	"github.com/myrjola/canonforge/internal/sqlite"
	"github.com/myrjola/canonforge/internal/testhelpers"
)

var pipelineTables = []string{ //nolint:gochecknoglobals // constant list.
	"generation_drafts",
	"draft_citations",
	"canon_status_log",
	"acceptance_events",
	"canonical_entities",
	"source_excerpts",
}

func main() {
	logger := testhelpers.NewLogger(os.Stdout)
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second) //nolint:mnd // 5 seconds

	if err := run(ctx, logger); err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "migration test failed", errors.SlogError(err))
		cancel()
		os.Exit(1)
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "Migration test successful 🙌", slog.Duration("duration", time.Since(start)))
	cancel()
}

func run(ctx context.Context, logger *slog.Logger) error {
	sqliteURL, ok := os.LookupEnv("CANONFORGE_SQLITE_URL")
	if !ok {
		return errors.New("CANONFORGE_SQLITE_URL not set")
	}

	db, err := sqlite.NewDatabase(ctx, sqliteURL, logger)
	if err != nil {
		return errors.Wrap(err, "create database", slog.String("url", sqliteURL))
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			logger.LogAttrs(ctx, slog.LevelWarn, "close database", errors.SlogError(closeErr))
		}
	}()

	for _, table := range pipelineTables {
		var exists bool
		if err = db.ReadOnly.GetContext(ctx, &exists,
			`SELECT COUNT(*) > 0 FROM sqlite_schema WHERE type = 'table' AND name = ?`, table); err != nil {
			return errors.Wrap(err, "look up table", slog.String("table", table))
		}
		if !exists {
			return errors.New("table missing after migration", slog.String("table", table))
		}
	}

	// Fetch the number of drafts as a simple smoke test that existing data survived.
	var count int
	if err = db.ReadOnly.GetContext(ctx, &count, `SELECT COUNT(*) FROM generation_drafts`); err != nil {
		return errors.Wrap(err, "count drafts")
	}
	if count == 0 {
		return errors.New("no drafts found, something is likely wrong")
	}
	logger.LogAttrs(ctx, slog.LevelInfo, "draft count", slog.Int("count", count))
	return nil
}
