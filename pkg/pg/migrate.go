package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrations locates goose SQL files. When FS is nil, Dir is read from disk.
type Migrations struct {
	FS  fs.FS
	Dir string
}

// Migrate applies every pending migration.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg Config, src Migrations, log Logger) error {
	return runGoose(ctx, pool, cfg, src, log, func(db *sql.DB, dir string) error {
		return goose.UpContext(ctx, db, dir)
	})
}

// Rollback reverts the most recent migration.
func Rollback(ctx context.Context, pool *pgxpool.Pool, cfg Config, src Migrations, log Logger) error {
	return runGoose(ctx, pool, cfg, src, log, func(db *sql.DB, dir string) error {
		return goose.DownContext(ctx, db, dir)
	})
}

// MigrationStatus logs the state of every migration.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, cfg Config, src Migrations, log Logger) error {
	return runGoose(ctx, pool, cfg, src, log, func(db *sql.DB, dir string) error {
		return goose.StatusContext(ctx, db, dir)
	})
}

// goose keeps its configuration in package globals.
func runGoose(ctx context.Context, pool *pgxpool.Pool, cfg Config, src Migrations, log Logger, fn func(*sql.DB, string) error) error {
	dir := src.Dir
	if src.FS == nil {
		if dir == "" {
			dir = cfg.MigrationsPath
		}
		if dir == "" {
			return errors.Join(ErrFailedToApplyMigrations, ErrMigrationPathNotProvided)
		}
		if _, err := os.Stat(dir); err != nil {
			if os.IsNotExist(err) {
				return errors.Join(ErrMigrationsDirNotFound, err)
			}
			return errors.Join(ErrFailedToApplyMigrations, err)
		}
	}
	if dir == "" {
		dir = "."
	}

	db := stdlib.OpenDBFromPool(pool)
	defer func() {
		if err := db.Close(); err != nil {
			log.ErrorContext(ctx, "failed to close migration connection", "error", err)
		}
	}()

	goose.SetBaseFS(src.FS)
	goose.SetLogger(newSlogAdapter(ctx, log))
	if cfg.MigrationsTable != "" {
		goose.SetTableName(cfg.MigrationsTable)
	}
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	if err := fn(db, dir); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

type migrateSlogAdapter struct {
	ctx context.Context
	log Logger
}

func newSlogAdapter(ctx context.Context, log Logger) goose.Logger {
	return &migrateSlogAdapter{ctx: ctx, log: log}
}

func (a *migrateSlogAdapter) Fatalf(format string, v ...any) {
	a.log.ErrorContext(a.ctx, fmt.Sprintf(format, v...))
}

func (a *migrateSlogAdapter) Printf(format string, v ...any) {
	a.log.InfoContext(a.ctx, fmt.Sprintf(format, v...))
}
