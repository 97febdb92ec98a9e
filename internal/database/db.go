// Package database provides database setup, models, and the settings and
// history store backed by SQLite.
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/edgard/assistbot/migrations"

	_ "modernc.org/sqlite" //revive:disable:blank-imports
)

// NewDB opens the profile and history database at dbPath and brings its
// schema up to date.
func NewDB(dbPath string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000;"); err != nil {
		slog.Warn("Failed to set busy timeout on settings database", "error", err)
	}

	dbName := ExtractDBNameFromPath(dbPath)
	if err := ApplyMigrations(db.DB, dbName); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("Failed to close settings database after schema error", "error", closeErr)
		}
		return nil, fmt.Errorf("failed to migrate settings schema: %w", err)
	}

	slog.Info("Settings database ready", "path", dbPath)
	return db, nil
}

// CloseDB closes the pool. Pending profile writes finish first.
func CloseDB(db *sqlx.DB) {
	if db == nil {
		return
	}
	if err := db.Close(); err != nil {
		slog.Error("Failed to close settings database", "error", err)
		return
	}
	slog.Info("Settings database closed")
}

// ApplyMigrations creates or upgrades the users and messages tables.
func ApplyMigrations(db *sql.DB, dbName string) error {
	if db == nil {
		return errors.New("settings schema: nil connection")
	}
	if dbName == "" {
		return errors.New("settings schema: empty database name")
	}

	slog.Info("Checking settings schema", "database_name", dbName)

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to create embed source driver instance: %w", err)
	}

	dbDriver, err := sqlite3.WithInstance(db, &sqlite3.Config{DatabaseName: dbName})
	if err != nil {
		return fmt.Errorf("failed to create sqlite3 database driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", dbDriver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = migrator.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		slog.Info("Settings schema is current")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, _, verr := migrator.Version()
	if verr != nil {
		slog.Warn("Settings schema upgraded, version unknown", "error", verr)
		return nil
	}
	slog.Info("Settings schema upgraded", "version", version)
	return nil
}

// ExtractDBNameFromPath returns the file part of a DSN such as
// "file:assistbot.db?_pragma=foreign_keys(1)".
func ExtractDBNameFromPath(path string) string {
	path = strings.TrimPrefix(path, "file:")

	if idx := strings.Index(path, "?"); idx != -1 {
		path = path[:idx]
	}

	if decoded, err := url.PathUnescape(path); err == nil {
		return decoded
	}
	return path
}
