package catalog

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"igarchive/pkg/catalog/migrations"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Catalog is the relational store for archived entities. The engine is
// its only writer; all statements go through parameterized queries and
// multi-statement mutations through a single transaction wrapper.
type Catalog struct {
	db   *sql.DB
	path string
}

// Open opens (and migrates) the catalog database.
// path can be a file path or ":memory:" for an in-memory catalog.
func Open(path string) (*Catalog, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	// SQLite ships with foreign keys off for backward compatibility
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Catalog{db: db, path: path}, nil
}

// Close closes the underlying database connection
func (c *Catalog) Close() error {
	return c.db.Close()
}

// withTx runs fn inside a transaction, rolling back the whole batch on
// any failure. This is the single place the rollback policy lives.
func (c *Catalog) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
