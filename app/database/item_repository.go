package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ItemStore handles database operations for video items
type ItemStore struct {
	db *DB
}

// NewItemStore creates a new item store
func NewItemStore(db *DB) *ItemStore {
	return &ItemStore{db: db}
}

const itemColumns = `
	item_id, source_id, source_name, title, published_at,
	COALESCE(tier, 0), COALESCE(extracted_text, ''),
	generation_status, COALESCE(generated_text, ''), COALESCE(generation_error, ''),
	COALESCE(input_tokens, 0), COALESCE(output_tokens, 0),
	delivery_status, COALESCE(delivery_ref, ''), COALESCE(delivery_error, ''),
	created_at, updated_at`

// InsertIfAbsent stores a new item. A known item id is left untouched and false is returned.
func (s *ItemStore) InsertIfAbsent(ctx context.Context, item Item) (bool, error) {
	if item.GenerationStatus == "" {
		item.GenerationStatus = GenerationPending
	}
	if item.DeliveryStatus == "" {
		item.DeliveryStatus = DeliveryPending
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO items (
			item_id, source_id, source_name, title, published_at,
			tier, extracted_text,
			generation_status, generated_text, input_tokens, output_tokens,
			delivery_status, delivery_ref,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(item_id) DO NOTHING
	`, item.ID, item.SourceID, item.SourceName, item.Title, utcPtr(item.PublishedAt),
		nullInt(item.Tier), nullString(item.ExtractedText),
		string(item.GenerationStatus), nullString(item.GeneratedText),
		nullInt64(item.InputTokens), nullInt64(item.OutputTokens),
		string(item.DeliveryStatus), nullString(item.DeliveryRef),
		now, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert item %s: %w", item.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return n > 0, nil
}

// InsertDelivered records an item that was generated and published outside the
// regular cycle, so the poller never reconsiders it.
func (s *ItemStore) InsertDelivered(ctx context.Context, item Item) (bool, error) {
	item.GenerationStatus = GenerationDone
	item.DeliveryStatus = DeliveryDone
	return s.InsertIfAbsent(ctx, item)
}

func (s *ItemStore) IsKnown(ctx context.Context, itemID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM items WHERE item_id = ?`, itemID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check item %s: %w", itemID, err)
	}
	return true, nil
}

func (s *ItemStore) GetItem(ctx context.Context, itemID string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE item_id = ?`, itemID)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", itemID, err)
	}
	return item, nil
}

func (s *ItemStore) UpdateExtraction(ctx context.Context, itemID string, tier int, text string) error {
	return s.exec(ctx, "update extraction", itemID, `
		UPDATE items SET tier = ?, extracted_text = ?, updated_at = ?
		WHERE item_id = ?
	`, tier, text, time.Now().UTC(), itemID)
}

// UpdateGeneration sets the generation status. Text, error and token
// counters are only written when non-zero so a status transition keeps
// previously recorded values.
func (s *ItemStore) UpdateGeneration(ctx context.Context, itemID string, u GenerationUpdate) error {
	return s.exec(ctx, "update generation", itemID, `
		UPDATE items SET
			generation_status = ?,
			generated_text    = COALESCE(?, generated_text),
			generation_error  = COALESCE(?, generation_error),
			input_tokens      = COALESCE(?, input_tokens),
			output_tokens     = COALESCE(?, output_tokens),
			updated_at        = ?
		WHERE item_id = ?
	`, string(u.Status), nullString(u.Text), nullString(u.Error),
		nullInt64(u.InputTokens), nullInt64(u.OutputTokens),
		time.Now().UTC(), itemID)
}

// UpdateDelivery sets the delivery status. An item already delivered is
// never moved again; the call is then a no-op.
func (s *ItemStore) UpdateDelivery(ctx context.Context, itemID string, u DeliveryUpdate) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET
			delivery_status = ?,
			delivery_ref    = COALESCE(?, delivery_ref),
			delivery_error  = COALESCE(?, delivery_error),
			updated_at      = ?
		WHERE item_id = ? AND delivery_status != ?
	`, string(u.Status), nullString(u.Ref), nullString(u.Error),
		time.Now().UTC(), itemID, string(DeliveryDone))
	if err != nil {
		return fmt.Errorf("failed to update delivery for %s: %w", itemID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if known, err := s.IsKnown(ctx, itemID); err == nil && !known {
			return ErrNotFound
		}
	}
	return nil
}

// ListReadyForGeneration returns pending items that already carry extracted text, oldest first.
func (s *ItemStore) ListReadyForGeneration(ctx context.Context) ([]Item, error) {
	return s.list(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE generation_status = ? AND extracted_text IS NOT NULL
		ORDER BY published_at ASC, created_at ASC
	`, string(GenerationPending))
}

// ListReadyForDelivery returns generated items awaiting delivery, oldest first.
func (s *ItemStore) ListReadyForDelivery(ctx context.Context) ([]Item, error) {
	return s.list(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE generation_status = ? AND delivery_status = ?
		ORDER BY published_at ASC, created_at ASC
	`, string(GenerationDone), string(DeliveryPending))
}

// ListRecentDelivered returns generated items, newest first.
func (s *ItemStore) ListRecentDelivered(ctx context.Context, limit int) ([]Item, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.list(ctx, `
		SELECT `+itemColumns+` FROM items
		WHERE generation_status = ?
		ORDER BY published_at DESC, created_at DESC
		LIMIT ?
	`, string(GenerationDone), limit)
}

func (s *ItemStore) ListAllItemIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT item_id FROM items`)
	if err != nil {
		return nil, fmt.Errorf("failed to list item ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan item id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item ids: %w", err)
	}
	return ids, nil
}

// GetStats returns item counters grouped by status
func (s *ItemStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByGeneration: make(map[GenerationStatus]int),
		ByDelivery:   make(map[DeliveryStatus]int),
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM items),
			(SELECT COUNT(*) FROM sources),
			(SELECT COALESCE(SUM(input_tokens), 0) FROM items),
			(SELECT COALESCE(SUM(output_tokens), 0) FROM items)
	`).Scan(&stats.Items, &stats.Sources, &stats.InputTokens, &stats.OutputTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	if err := s.countBy(ctx, "generation_status", func(k string, n int) {
		stats.ByGeneration[GenerationStatus(k)] = n
	}); err != nil {
		return nil, err
	}
	if err := s.countBy(ctx, "delivery_status", func(k string, n int) {
		stats.ByDelivery[DeliveryStatus(k)] = n
	}); err != nil {
		return nil, err
	}

	return stats, nil
}

func (s *ItemStore) countBy(ctx context.Context, column string, fn func(string, int)) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+column+`, COUNT(*) FROM items GROUP BY `+column)
	if err != nil {
		return fmt.Errorf("failed to count items by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		fn(key, n)
	}
	return rows.Err()
}

func (s *ItemStore) exec(ctx context.Context, op, itemID, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s for %s: %w", op, itemID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ItemStore) list(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating item rows: %w", err)
	}
	return items, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*Item, error) {
	var item Item
	var published sql.NullTime
	var genStatus, delStatus string

	err := row.Scan(
		&item.ID, &item.SourceID, &item.SourceName, &item.Title, &published,
		&item.Tier, &item.ExtractedText,
		&genStatus, &item.GeneratedText, &item.GenerationError,
		&item.InputTokens, &item.OutputTokens,
		&delStatus, &item.DeliveryRef, &item.DeliveryError,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if published.Valid {
		t := published.Time.UTC()
		item.PublishedAt = &t
	}
	item.GenerationStatus = GenerationStatus(genStatus)
	item.DeliveryStatus = DeliveryStatus(delStatus)
	return &item, nil
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(n int) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(n), Valid: n != 0}
}

func nullInt64(n int64) sql.NullInt64 {
	return sql.NullInt64{Int64: n, Valid: n != 0}
}
