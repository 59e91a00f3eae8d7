package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/melih/diskforge/internal/core/domain"
)

// SQLiteStore implements ports.BuildHistory using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewSQLiteStore opens (or creates) the build history at dbPath.
// Use ":memory:" for an in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close() // Best effort cleanup on initialization error
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		container_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		record BLOB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_builds_container_id ON builds(container_id);
	CREATE INDEX IF NOT EXISTS idx_builds_created_at ON builds(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// AddOrUpdate stores rec, replacing any record with the same ID.
func (s *SQLiteStore) AddOrUpdate(ctx context.Context, rec domain.BuildRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal build record: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO builds (id, status, container_id, created_at, updated_at, record)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			container_id = excluded.container_id,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at,
			record = excluded.record`,
		rec.ID, string(rec.Status), rec.ContainerID, rec.CreatedAt.UnixNano(), rec.UpdatedAt.UnixNano(), payload,
	)
	if err != nil {
		return fmt.Errorf("upsert build %s: %w", rec.ID, err)
	}
	return nil
}

// List returns every build, most recently created first.
func (s *SQLiteStore) List(ctx context.Context) ([]domain.BuildRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT record FROM builds ORDER BY created_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	var records []domain.BuildRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		rec, err := decode(payload)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

// Get returns the build with the given ID or domain.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (domain.BuildRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT record FROM builds WHERE id = ?", id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.BuildRecord{}, fmt.Errorf("build %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.BuildRecord{}, fmt.Errorf("query build %s: %w", id, err)
	}
	return decode(payload)
}

// Remove deletes a build record. Removing an unknown ID is not an error.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM builds WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete build %s: %w", id, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func decode(payload []byte) (domain.BuildRecord, error) {
	var rec domain.BuildRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return domain.BuildRecord{}, fmt.Errorf("unmarshal build record: %w", err)
	}
	return rec, nil
}
