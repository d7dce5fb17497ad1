package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"

	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// MigrationStatus: строка для `migrate status`.
type MigrationStatus struct {
	Version int64
	Path    string
	Applied bool
}

func ensureDatabase(databaseURL string) error {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return fmt.Errorf("parse database url: %w", err)
	}
	dbName := strings.TrimPrefix(u.Path, "/")
	if dbName == "" {
		return fmt.Errorf("database name is empty in url")
	}
	u.Path = "/postgres"
	adminURL := u.String()
	db, err := sql.Open("postgres", adminURL)
	if err != nil {
		return fmt.Errorf("open admin connection: %w", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping admin connection: %w", err)
	}
	var exists bool
	if err := db.QueryRow("SELECT true FROM pg_database WHERE datname = $1", dbName).Scan(&exists); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check database existence: %w", err)
	}
	if exists {
		return nil
	}
	if _, err = db.Exec("CREATE DATABASE " + pq.QuoteIdentifier(dbName)); err != nil {
		return fmt.Errorf("create database %q: %w", dbName, err)
	}
	slog.Info("database: created", "name", dbName)
	return nil
}

func newProvider(databaseURL string) (*goose.Provider, *sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open: %w", err)
	}
	fsys, err := fs.Sub(embedMigrations, "migrations")
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	p, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("goose provider: %w", err)
	}
	return p, db, nil
}

func MigrateUp(ctx context.Context, databaseURL string) error {
	if err := ensureDatabase(databaseURL); err != nil {
		return fmt.Errorf("ensure database: %w", err)
	}
	p, db, err := newProvider(databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	results, err := p.Up(ctx)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		slog.Info("migrate: no pending migrations")
		return nil
	}
	for _, r := range results {
		slog.Info("migrate: applied", "version", r.Source.Version, "duration", r.Duration)
	}
	return nil
}

// MigrateDown откатывает одну последнюю миграцию.
func MigrateDown(ctx context.Context, databaseURL string) error {
	p, db, err := newProvider(databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()
	r, err := p.Down(ctx)
	if err != nil {
		return err
	}
	if r != nil {
		slog.Info("migrate: rolled back", "version", r.Source.Version)
	}
	return nil
}

func MigrateStatus(ctx context.Context, databaseURL string) ([]MigrationStatus, error) {
	p, db, err := newProvider(databaseURL)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	list, err := p.Status(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationStatus, 0, len(list))
	for _, s := range list {
		out = append(out, MigrationStatus{
			Version: s.Source.Version,
			Path:    s.Source.Path,
			Applied: s.State == goose.StateApplied,
		})
	}
	return out, nil
}
