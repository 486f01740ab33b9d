// Command migrate-json-to-postgres copies media asset records from the JSON
// datastore into Postgres. It is a one-shot tool for promoting a small
// deployment onto a durable datastore.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"chapelcast/internal/storage"
)

func main() {
	jsonPath := flag.String("json", "data/assets.json", "path to the JSON datastore to migrate")
	postgresDSN := flag.String("postgres-dsn", "", "Postgres connection string")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	dsn := strings.TrimSpace(*postgresDSN)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("CHAPELCAST_POSTGRES_DSN"))
	}
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	}
	if dsn == "" {
		logger.Error("postgres DSN required", "hint", "set --postgres-dsn, CHAPELCAST_POSTGRES_DSN, or DATABASE_URL")
		os.Exit(1)
	}

	ctx := context.Background()

	source, err := storage.NewStorage(*jsonPath)
	if err != nil {
		logger.Error("failed to open JSON datastore", "error", err)
		os.Exit(1)
	}
	assets, err := source.ListAssets(ctx, storage.ListFilter{})
	if err != nil {
		logger.Error("failed to list assets", "error", err)
		os.Exit(1)
	}
	logger.Info("loaded JSON datastore", "path", *jsonPath, "assets", len(assets))

	repo, err := storage.NewPostgresRepository(ctx, dsn)
	if err != nil {
		logger.Error("failed to open postgres repository", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = repo.Close(context.Background())
	}()

	migrated := 0
	for _, asset := range assets {
		if _, err := repo.CreateAsset(ctx, asset); err != nil {
			logger.Error("failed to migrate asset", "id", asset.ID, "object_name", asset.ObjectName, "error", err)
			os.Exit(1)
		}
		migrated++
	}
	logger.Info("migration complete", "assets", migrated)

	if err := verifyCount(ctx, dsn, migrated); err != nil {
		logger.Error("verification failed", "error", err)
		os.Exit(1)
	}
	logger.Info("verification passed")
}

// verifyCount checks the row count through a fresh connection rather than the
// repository that performed the writes.
func verifyCount(ctx context.Context, dsn string, expected int) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open verification pool: %w", err)
	}
	defer pool.Close()

	var count int
	if err := pool.QueryRow(ctx, "SELECT COUNT(*) FROM media_assets").Scan(&count); err != nil {
		return fmt.Errorf("count media_assets: %w", err)
	}
	if count < expected {
		return fmt.Errorf("expected at least %d rows, found %d", expected, count)
	}
	return nil
}
