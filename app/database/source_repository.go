package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SourceStore handles database operations for channels
type SourceStore struct {
	db *DB
}

// NewSourceStore creates a new source store
func NewSourceStore(db *DB) *SourceStore {
	return &SourceStore{db: db}
}

// UpsertSource registers a channel or refreshes its display name.
func (s *SourceStore) UpsertSource(ctx context.Context, sourceID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sources (source_id, name) VALUES (?, ?)
		ON CONFLICT(source_id) DO UPDATE SET name = excluded.name
	`, sourceID, name)
	if err != nil {
		return fmt.Errorf("failed to upsert source %s: %w", sourceID, err)
	}
	return nil
}

// MarkSourceChecked records a successful poll and resets the error counter.
func (s *SourceStore) MarkSourceChecked(ctx context.Context, sourceID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sources SET last_checked_at = ?, error_count = 0
		WHERE source_id = ?
	`, time.Now().UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to mark source %s checked: %w", sourceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SourceStore) IncrementSourceError(ctx context.Context, sourceID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sources SET error_count = error_count + 1
		WHERE source_id = ?
	`, sourceID)
	if err != nil {
		return fmt.Errorf("failed to increment error count for %s: %w", sourceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSourceEnabled pauses or resumes polling of a channel.
func (s *SourceStore) SetSourceEnabled(ctx context.Context, sourceID string, enabled bool) error {
	res, err := s.db.ExecContext(ctx, `UPDATE sources SET enabled = ? WHERE source_id = ?`, enabled, sourceID)
	if err != nil {
		return fmt.Errorf("failed to update source %s: %w", sourceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SourceStore) GetSource(ctx context.Context, sourceID string) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT source_id, name, last_checked_at, error_count, enabled
		FROM sources WHERE source_id = ?
	`, sourceID)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get source %s: %w", sourceID, err)
	}
	return src, nil
}

func (s *SourceStore) ListSources(ctx context.Context) ([]Source, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, name, last_checked_at, error_count, enabled
		FROM sources ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, *src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating source rows: %w", err)
	}
	return sources, nil
}

func scanSource(row rowScanner) (*Source, error) {
	var src Source
	var checked sql.NullTime
	if err := row.Scan(&src.ID, &src.Name, &checked, &src.ErrorCount, &src.Enabled); err != nil {
		return nil, err
	}
	if checked.Valid {
		t := checked.Time.UTC()
		src.LastCheckedAt = &t
	}
	return &src, nil
}
