package sqlite

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/pribylovaa/go-news-digest/internal/models"
)

// SaveKnownItems добавляет записи одной транзакцией, пропуская известные.
func (s *Storage) SaveKnownItems(ctx context.Context, items []models.KnownItemRecord) error {
	const op = "storage.sqlite.SaveKnownItems"

	if len(items) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, it := range items {
		at := toUnix(it.FirstSeenAt)
		if it.IdentityKey != "" {
			if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO known_items (identity_key, fingerprint, first_seen_at, source_label)
			VALUES (?, ?, ?, ?)
			`, it.IdentityKey, it.Fingerprint, at, it.SourceLabel); err != nil {
				return fmt.Errorf("%s: item %d: %w", op, i, err)
			}
		}
		if it.Fingerprint != "" {
			if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO known_fingerprints (fingerprint, first_seen_at) VALUES (?, ?)
			`, it.Fingerprint, at); err != nil {
				return fmt.Errorf("%s: fingerprint %d: %w", op, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

// KnownItems возвращает все записи, упорядоченные по ключу.
func (s *Storage) KnownItems(ctx context.Context) ([]models.KnownItemRecord, error) {
	const op = "storage.sqlite.KnownItems"

	rows, err := s.psql.
		Select("identity_key", "fingerprint", "first_seen_at", "source_label").
		From("known_items").
		OrderBy("identity_key").
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []models.KnownItemRecord
	for rows.Next() {
		var (
			rec models.KnownItemRecord
			at  int64
		)
		if err := rows.Scan(&rec.IdentityKey, &rec.Fingerprint, &at, &rec.SourceLabel); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		rec.FirstSeenAt = fromUnix(at)
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}

	return out, nil
}

// KnownFingerprints возвращает все сохранённые отпечатки.
func (s *Storage) KnownFingerprints(ctx context.Context) ([]string, error) {
	const op = "storage.sqlite.KnownFingerprints"

	rows, err := s.db.QueryContext(ctx, `SELECT fingerprint FROM known_fingerprints ORDER BY fingerprint`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}
		out = append(out, fp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}

	return out, nil
}

// DeleteKnownItemsBefore удаляет ключи старше cutoff. Отпечатки остаются.
func (s *Storage) DeleteKnownItemsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	const op = "storage.sqlite.DeleteKnownItemsBefore"

	res, err := s.psql.
		Delete("known_items").
		Where(sq.Lt{"first_seen_at": toUnix(cutoff)}).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", op, err)
	}

	return int(n), nil
}
