package state

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/rosmirror/internal/events"
	"github.com/TheMichaelB/rosmirror/internal/models"
)

// SQLiteStore keeps the history in a SQLite table.
type SQLiteStore struct {
	db     *sql.DB
	limit  int
	logger *events.Logger

	mu sync.Mutex
}

// NewSQLiteStore creates a SQLite history store.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		limit:  models.HistoryLimit,
		logger: logger.WithField("component", "sqlite_history_store"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return store, nil
}

// initialize creates tables.
func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS version_history (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        recorded_at TIMESTAMP NOT NULL,
        v6_stable TEXT NOT NULL DEFAULT '',
        v7_fixed TEXT NOT NULL DEFAULT '',
        v7_stable TEXT NOT NULL DEFAULT '',
        v6_build INTEGER NOT NULL DEFAULT 0,
        v7_stable_build INTEGER NOT NULL DEFAULT 0
    );
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Load returns the history, oldest first.
func (s *SQLiteStore) Load() ([]models.HistoryEntry, error) {
	rows, err := s.db.Query(`
        SELECT recorded_at, v6_stable, v7_fixed, v7_stable, v6_build, v7_stable_build
        FROM version_history
        ORDER BY id ASC
    `)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []models.HistoryEntry
	for rows.Next() {
		var e models.HistoryEntry
		if err := rows.Scan(&e.Timestamp, &e.V6Stable, &e.V7Fixed, &e.V7Stable, &e.V6Build, &e.V7StableBuild); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// Append inserts an entry and trims rows beyond the history limit.
func (s *SQLiteStore) Append(entry models.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{
		"v6": entry.V6Stable,
		"v7": entry.V7Stable,
	}).Debug("Appending history entry to SQLite")

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
        INSERT INTO version_history (recorded_at, v6_stable, v7_fixed, v7_stable, v6_build, v7_stable_build)
        VALUES (?, ?, ?, ?, ?, ?)
    `, entry.Timestamp.UTC(), entry.V6Stable, entry.V7Fixed, entry.V7Stable, entry.V6Build, entry.V7StableBuild)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	_, err = tx.Exec(`
        DELETE FROM version_history
        WHERE id NOT IN (SELECT id FROM version_history ORDER BY id DESC LIMIT ?)
    `, s.limit)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	return tx.Commit()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
