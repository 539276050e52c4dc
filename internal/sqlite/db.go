// Package sqlite implements every internal/store interface against a single
// embedded modernc.org/sqlite database file — one file, one instance,
// no managed/multi-tenant mode.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/nextlevelbuilder/goclaw/internal/sqlite/migrations"
)

// DB wraps the pooled connection and applies migrations on Open.
type DB struct {
	*sql.DB
	path string
}

// Open opens (creating if necessary) the sqlite file at path, applies
// migrations, and returns a ready-to-use DB. Pragmas are set via DSN
// parameters so every pooled connection picks them up identically.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", buildDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite permits exactly one writer; a small pool avoids SQLITE_BUSY
	// contention while WAL mode still allows concurrent readers.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if err := os.Chmod(path, 0600); err != nil && !os.IsNotExist(err) {
		slog.Warn("sqlite: chmod data file failed", "path", path, "error", err)
	}

	return &DB{DB: db, path: path}, nil
}

func buildDSN(path string) string {
	v := url.Values{}
	v.Set("_pragma", "journal_mode=WAL")
	v.Add("_pragma", "foreign_keys=ON")
	v.Add("_pragma", "busy_timeout=30000")
	v.Add("_pragma", "synchronous=NORMAL")
	v.Add("_txlock", "immediate")
	return path + "?" + v.Encode()
}

func (db *DB) Path() string { return db.path }
