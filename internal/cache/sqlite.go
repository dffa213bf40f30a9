// Package cache is a local fetch-once store for raw replay logs, so a
// reparse (new resolver version, schema change) never re-hits the replay
// server.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps a local sqlite database of raw replays.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the cache database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay cache: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping replay cache: %w", err)
	}

	s := &Store{db: db}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the cache database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS replays (
			id TEXT PRIMARY KEY,
			format TEXT NOT NULL,
			rating INTEGER NOT NULL DEFAULT 0,
			upload_time INTEGER NOT NULL,
			log TEXT NOT NULL,
			fetched_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to create cache tables: %w", err)
	}
	return nil
}

// CachedReplay is one stored raw replay.
type CachedReplay struct {
	ID         string
	Format     string
	Rating     int
	UploadTime int64
	Log        string
}

// Put stores a raw replay, replacing any previous copy of the same ID.
func (s *Store) Put(ctx context.Context, r *CachedReplay) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO replays (id, format, rating, upload_time, log, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			format = excluded.format,
			rating = excluded.rating,
			upload_time = excluded.upload_time,
			log = excluded.log,
			fetched_at = excluded.fetched_at
	`, r.ID, r.Format, r.Rating, r.UploadTime, r.Log, time.Now().UTC().Format(time.RFC3339))
	return err
}

// Get returns a cached replay, or ok=false when the ID is not cached.
func (s *Store) Get(ctx context.Context, id string) (*CachedReplay, bool, error) {
	var r CachedReplay
	err := s.db.QueryRowContext(ctx, `
		SELECT id, format, rating, upload_time, log FROM replays WHERE id = ?
	`, id).Scan(&r.ID, &r.Format, &r.Rating, &r.UploadTime, &r.Log)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &r, true, nil
}

// Count returns the number of cached replays.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM replays`).Scan(&n)
	return n, err
}

// IDs returns every cached replay ID for a format, oldest upload first.
// The reparse command walks this to re-run the engine offline.
func (s *Store) IDs(ctx context.Context, format string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM replays WHERE format = ? OR ? = '' ORDER BY upload_time
	`, format, format)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
