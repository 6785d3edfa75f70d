package db

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrate applies pending goose migrations from the given embedded filesystem.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys embed.FS, dir string) error {
	goose.SetBaseFS(fsys)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("platform/db: set dialect: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	defer func() {
		_ = sqlDB.Close()
	}()

	if err := goose.UpContext(ctx, sqlDB, dir); err != nil {
		return fmt.Errorf("platform/db: migrate up: %w", err)
	}

	return nil
}
