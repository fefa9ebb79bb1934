// Package store provides the local bookmark tree backed by an embedded SQLite
// database.
//
// The store plays the role of the host tree: every node has a stable
// identifier, nodes are only created or destroyed through Create and
// RemoveTree, and a fixed set of top-level containers exists from the start:
//
//	0  (root, cannot hold new children)
//	├── 1  Bookmarks bar
//	├── 2  Other bookmarks
//	└── 3  Mobile bookmarks
//
// The containers are protected: RemoveTree rejects them with ErrProtected.
//
// Architecture:
//   - Database file: ~/.config/marksync/bookmarks.db by default
//   - WAL mode with immediate transactions so concurrent sibling mutations
//     from the sync engine serialize cleanly
//   - Children are ordered by (position, id)
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// RootID is the identifier of the root container.
const RootID = "0"

// Errors returned by store operations. Check them with errors.Is.
var (
	// ErrNotFound is returned when a node id does not exist.
	ErrNotFound = errors.New("node not found")

	// ErrProtected is returned when removing one of the fixed containers.
	ErrProtected = errors.New("node is protected")

	// ErrInvalidParent is returned when creating under the root container
	// or under a bookmark.
	ErrInvalidParent = errors.New("invalid parent")
)

// DB wraps the SQLite connection holding the bookmark tree.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// The caller MUST call Close() when done.
//
// Example:
//
//	db, err := store.Open("bookmarks.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	connStr := fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)&_pragma=journal_mode(wal)&_txlock=immediate", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(8)
	conn.SetMaxIdleConns(4)
	conn.SetConnMaxLifetime(5 * time.Minute)

	return &DB{conn: conn, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the nodes table and seeds the fixed containers.
// It is idempotent.
func (db *DB) InitSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS nodes (
		id INTEGER PRIMARY KEY,
		parent_id INTEGER REFERENCES nodes(id) ON DELETE CASCADE,
		title TEXT NOT NULL DEFAULT '',
		url TEXT,                      -- NULL for folders
		position INTEGER NOT NULL DEFAULT 0,
		protected INTEGER NOT NULL DEFAULT 0,
		date_added TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_parent ON nodes(parent_id, position);
	`
	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	seed := `
	INSERT OR IGNORE INTO nodes (id, parent_id, title, url, position, protected, date_added) VALUES
		(0, NULL, '', NULL, 0, 1, ?),
		(1, 0, 'Bookmarks bar', NULL, 0, 1, ?),
		(2, 0, 'Other bookmarks', NULL, 1, 1, ?),
		(3, 0, 'Mobile bookmarks', NULL, 2, 1, ?)
	`
	if _, err := db.conn.ExecContext(ctx, seed, now, now, now, now); err != nil {
		return fmt.Errorf("failed to seed root folders: %w", err)
	}

	return nil
}

// CountNodes returns the number of nodes, containers included.
func (db *DB) CountNodes(ctx context.Context) (int, error) {
	var count int
	if err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count nodes: %w", err)
	}
	return count, nil
}

func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return n, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
