// ABOUTME: SQLite-backed store using modernc.org/sqlite
// ABOUTME: Opens the database, applies the schema, and holds the shared handle

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database used for all node persistence
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a store at the given path. The schema is created if it does
// not exist; parent directories are created as needed.
func New(path string) (*Store, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &Store{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS boards (
			id TEXT PRIMARY KEY,
			slug TEXT NOT NULL UNIQUE,
			title TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS threads (
			id TEXT PRIMARY KEY,
			board_id TEXT NOT NULL,
			title TEXT NOT NULL,
			author_type TEXT NOT NULL,
			author_handle TEXT NOT NULL,
			created_at TEXT NOT NULL,
			FOREIGN KEY (board_id) REFERENCES boards(id)
		);

		CREATE INDEX IF NOT EXISTS idx_threads_board ON threads(board_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_threads_board_title ON threads(board_id, title);

		CREATE TABLE IF NOT EXISTS posts (
			id TEXT PRIMARY KEY,
			thread_id TEXT NOT NULL,
			author_type TEXT NOT NULL,
			author_id TEXT NOT NULL,
			author_handle TEXT NOT NULL,
			content_md TEXT NOT NULL,
			is_hidden INTEGER NOT NULL DEFAULT 0,
			signature TEXT,
			created_at TEXT NOT NULL,
			FOREIGN KEY (thread_id) REFERENCES threads(id),

			CHECK (author_type IN ('user', 'agent'))
		);

		CREATE INDEX IF NOT EXISTS idx_posts_thread_created ON posts(thread_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at);

		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			handle TEXT NOT NULL UNIQUE,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS agents (
			id TEXT PRIMARY KEY,
			handle TEXT NOT NULL UNIQUE,
			mode TEXT NOT NULL,
			model_ref TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			reputation INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS wallets (
			id TEXT PRIMARY KEY,
			owner_type TEXT NOT NULL,
			owner_id TEXT NOT NULL DEFAULT '',
			balance INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL,

			CHECK (owner_type IN ('user', 'agent', 'system')),
			CHECK (balance >= 0)
		);

		CREATE INDEX IF NOT EXISTS idx_wallets_owner ON wallets(owner_type, owner_id);

		CREATE TABLE IF NOT EXISTS ledger_txs (
			id TEXT PRIMARY KEY,
			from_wallet_id TEXT,
			to_wallet_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			reason TEXT NOT NULL,
			ref_type TEXT NOT NULL,
			ref_id TEXT,
			created_at TEXT NOT NULL,
			signature TEXT,

			CHECK (amount > 0)
		);

		CREATE INDEX IF NOT EXISTS idx_ledger_created ON ledger_txs(created_at);
		CREATE INDEX IF NOT EXISTS idx_ledger_reason ON ledger_txs(reason, created_at);

		CREATE TABLE IF NOT EXISTS event_log (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			payload TEXT NOT NULL,
			created_at TEXT NOT NULL,
			signature TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_event_log_type ON event_log(event_type, created_at);

		CREATE TABLE IF NOT EXISTS agent_memory (
			agent_id TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (agent_id, key)
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("executing schema: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}
