package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/pribylovaa/go-news-digest/internal/models"
)

// SaveKnownItems добавляет записи одной транзакцией.
// Существующие ключи и отпечатки не перезаписываются, пустой отпечаток не хранится.
func (s *Storage) SaveKnownItems(ctx context.Context, items []models.KnownItemRecord) error {
	const op = "storage.postgres.SaveKnownItems"

	if len(items) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, it := range items {
		at := it.FirstSeenAt.UTC()
		if it.IdentityKey != "" {
			batch.Queue(`
			INSERT INTO known_items (identity_key, fingerprint, first_seen_at, source_label)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (identity_key) DO NOTHING
			`, it.IdentityKey, it.Fingerprint, at, it.SourceLabel)
		}
		if it.Fingerprint != "" {
			batch.Queue(`
			INSERT INTO known_fingerprints (fingerprint, first_seen_at)
			VALUES ($1, $2)
			ON CONFLICT (fingerprint) DO NOTHING
			`, it.Fingerprint, at)
		}
	}

	if batch.Len() == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("%s: batch item %d: %w", op, i, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("%s: close batch: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

// KnownItems возвращает все записи, упорядоченные по ключу.
func (s *Storage) KnownItems(ctx context.Context) ([]models.KnownItemRecord, error) {
	const op = "storage.postgres.KnownItems"

	rows, err := s.db.Query(ctx, `
	SELECT identity_key, fingerprint, first_seen_at, source_label
	FROM known_items
	ORDER BY identity_key
	`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.KnownItemRecord
	for rows.Next() {
		var rec models.KnownItemRecord
		if err := rows.Scan(&rec.IdentityKey, &rec.Fingerprint, &rec.FirstSeenAt, &rec.SourceLabel); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		rec.FirstSeenAt = rec.FirstSeenAt.UTC()
		out = append(out, rec)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, rows.Err())
	}

	return out, nil
}

// KnownFingerprints возвращает все сохранённые отпечатки.
func (s *Storage) KnownFingerprints(ctx context.Context) ([]string, error) {
	const op = "storage.postgres.KnownFingerprints"

	rows, err := s.db.Query(ctx, `SELECT fingerprint FROM known_fingerprints ORDER BY fingerprint`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	fps, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return fps, nil
}

// DeleteKnownItemsBefore удаляет ключи, впервые увиденные раньше cutoff.
// Таблица отпечатков не затрагивается.
func (s *Storage) DeleteKnownItemsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const op = "storage.postgres.DeleteKnownItemsBefore"

	query, args, err := s.psql.
		Delete("known_items").
		Where(sq.Lt{"first_seen_at": cutoff.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("%s: build query: %w", op, err)
	}

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return int(tag.RowsAffected()), nil
}
