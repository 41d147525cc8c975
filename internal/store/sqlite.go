package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/soriview/soriview/internal/domain"
	"github.com/soriview/soriview/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		actor TEXT NOT NULL,
		text TEXT NOT NULL,
		tts_url TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_session ON entries(user_id, session_id, id);
	CREATE INDEX IF NOT EXISTS idx_entries_created ON entries(created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AppendEntry persists a conversation entry.
// Retries with exponential backoff to handle SQLITE_BUSY under write load.
func (s *SQLiteStore) AppendEntry(ctx context.Context, entry *domain.Entry) (*domain.Entry, error) {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		stored, err := s.appendEntryOnce(ctx, entry)
		if err == nil {
			return stored, nil
		}
		lastErr = err

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			time.Sleep(baseDelay * time.Duration(1<<i))
			continue
		}
		break
	}

	return nil, fmt.Errorf("append entry after retries: %w", lastErr)
}

func (s *SQLiteStore) appendEntryOnce(ctx context.Context, entry *domain.Entry) (*domain.Entry, error) {
	now := entry.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}

	var ttsURL interface{}
	if entry.TTSURL != "" {
		ttsURL = entry.TTSURL
	}

	query := `
	INSERT INTO entries (user_id, session_id, actor, text, tts_url, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`

	result, err := s.db.ExecContext(ctx, query,
		entry.UserID, entry.SessionID, string(entry.Actor),
		entry.Text, ttsURL, now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("entry last insert id: %w", err)
	}

	stored := *entry
	stored.ID = id
	stored.CreatedAt = time.Unix(now.Unix(), 0)
	return &stored, nil
}

// RecentEntries retrieves up to limit entries for a user/session, oldest first.
func (s *SQLiteStore) RecentEntries(ctx context.Context, userID, sessionID string, limit int) ([]*domain.Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	// Select the newest rows, then return them in chronological order.
	query := `
	SELECT id, user_id, session_id, actor, text, tts_url, created_at
	FROM (
		SELECT id, user_id, session_id, actor, text, tts_url, created_at
		FROM entries
		WHERE user_id = ? AND session_id = ?
		ORDER BY id DESC
		LIMIT ?
	) ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, userID, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent entries: %w", err)
	}
	defer rows.Close()

	var entries []*domain.Entry
	for rows.Next() {
		var entry domain.Entry
		var actor string
		var ttsURL sql.NullString
		var createdAt int64

		if err := rows.Scan(
			&entry.ID, &entry.UserID, &entry.SessionID,
			&actor, &entry.Text, &ttsURL, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan entry row: %w", err)
		}

		entry.Actor = domain.Actor(actor)
		entry.TTSURL = ttsURL.String
		entry.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}

	return entries, nil
}

// CleanupExpiredEntries removes entries older than the TTL.
func (s *SQLiteStore) CleanupExpiredEntries(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE created_at < ?`, threshold)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired entries: %w", err)
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
