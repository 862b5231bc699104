// Package db opens the shared database and applies schema migrations.
//
// The default backend is SQLite at <brainDir>/brain.db; a postgres:// DSN
// selects PostgreSQL.
package db

import (
	"context"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/brainsh/brain/internal/db/driver"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// DB wraps a database connection behind the driver abstraction.
type DB struct {
	drv driver.Driver
}

// Open opens the database for a DSN, creating parent directories for SQLite
// paths, and applies pending migrations.
func Open(ctx context.Context, dsn string) (*DB, error) {
	dialect := driver.DialectForDSN(dsn)
	drv, err := driver.New(dialect)
	if err != nil {
		return nil, err
	}

	if dialect == driver.DialectSQLite && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	if err := drv.Open(dsn); err != nil {
		return nil, err
	}

	d := &DB{drv: drv}
	if err := d.migrate(ctx); err != nil {
		_ = drv.Close()
		return nil, err
	}
	return d, nil
}

// OpenInMemory opens a fresh in-memory SQLite database. Intended for tests.
func OpenInMemory(ctx context.Context) (*DB, error) {
	return Open(ctx, ":memory:")
}

// Driver returns the underlying driver.
func (d *DB) Driver() driver.Driver {
	return d.drv
}

// Close closes the connection.
func (d *DB) Close() error {
	return d.drv.Close()
}

// migrate applies schema files in version order, tracking applied versions
// in a _migrations table.
func (d *DB) migrate(ctx context.Context) error {
	if _, err := d.drv.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			version BIGINT PRIMARY KEY,
			applied_at BIGINT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := d.drv.Query(ctx, "SELECT version FROM _migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Close(); err != nil {
		return err
	}

	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		version, err := strconv.Atoi(strings.SplitN(name, "_", 2)[0])
		if err != nil {
			return fmt.Errorf("schema file %s has no numeric version prefix", name)
		}
		if applied[version] {
			continue
		}

		ddl, err := schemaFS.ReadFile("schema/" + name)
		if err != nil {
			return err
		}
		for _, stmt := range strings.Split(string(ddl), ";") {
			stmt = strings.TrimSpace(stmt)
			if stmt == "" {
				continue
			}
			if _, err := d.drv.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply %s: %w", name, err)
			}
		}
		if _, err := d.drv.Exec(ctx,
			"INSERT INTO _migrations (version, applied_at) VALUES (?, ?)",
			version, nowUnix()); err != nil {
			return fmt.Errorf("record migration %d: %w", version, err)
		}
	}
	return nil
}
