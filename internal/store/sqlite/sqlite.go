package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/knagata/memosync-server/internal/store"
)

// SQLiteStore implements store.AuthStore against the memo database that
// the surrounding application maintains.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the memo database at dbPath read-only for authorization lookups.
func New(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	// SQLite works best with a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	return &SQLiteStore{db: db}, nil
}

// NewWithSetup opens the database and runs a setup function first.
// Useful for tests to apply schema without migrations.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// FindRoomAuthorization reads the sharing record for one memo.
func (s *SQLiteStore) FindRoomAuthorization(ctx context.Context, roomID string) (*store.RoomAuthorization, error) {
	query := `
		SELECT id, user_id, is_shared, COALESCE(password, '')
		FROM memos
		WHERE id = ?
	`
	var rec store.RoomAuthorization
	var shared int
	err := s.db.QueryRowContext(ctx, query, roomID).Scan(&rec.RoomID, &rec.OwnerUserID, &shared, &rec.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query room authorization: %w", err)
	}
	rec.IsShared = shared != 0

	return &rec, nil
}

// FindRoomTitle returns the memo title for the verify endpoint.
func (s *SQLiteStore) FindRoomTitle(ctx context.Context, roomID string) (string, error) {
	var title string
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(title, '') FROM memos WHERE id = ?`, roomID).Scan(&title)
	if errors.Is(err, sql.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("query room title: %w", err)
	}
	return title, nil
}
