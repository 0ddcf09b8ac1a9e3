package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/storage"
)

// SaveRun сохраняет запись о цикле. Повторный id - storage.ErrAlreadyExists.
func (s *Storage) SaveRun(ctx context.Context, run models.DigestRun) error {
	const op = "storage.sqlite.SaveRun"

	keys := run.ItemKeys
	if keys == nil {
		keys = []string{}
	}
	rawKeys, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("%s: encode item keys: %w", op, err)
	}

	var promo any
	if run.Promotion != nil {
		b, err := json.Marshal(run.Promotion)
		if err != nil {
			return fmt.Errorf("%s: encode promotion: %w", op, err)
		}
		promo = string(b)
	}

	_, err = s.psql.
		Insert("digest_runs").
		Columns("id", "generated_at", "subject_line", "item_keys", "promotion", "handle_location").
		Values(run.ID, toUnix(run.GeneratedAt), run.SubjectLine, string(rawKeys), promo, run.Handle.Location).
		RunWith(s.db).
		ExecContext(ctx)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RecentRuns возвращает последние limit записей, новые первыми.
// limit <= 0 трактуется как 1.
func (s *Storage) RecentRuns(ctx context.Context, limit int) ([]models.DigestRun, error) {
	const op = "storage.sqlite.RecentRuns"

	if limit <= 0 {
		limit = 1
	}

	rows, err := s.psql.
		Select("id", "generated_at", "subject_line", "item_keys", "promotion", "handle_location").
		From("digest_runs").
		OrderBy("seq DESC").
		Limit(uint64(limit)).
		RunWith(s.db).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := []models.DigestRun{}
	for rows.Next() {
		var (
			run     models.DigestRun
			at      int64
			rawKeys string
			promo   sql.NullString
		)
		if err := rows.Scan(&run.ID, &at, &run.SubjectLine, &rawKeys, &promo, &run.Handle.Location); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}

		run.GeneratedAt = fromUnix(at)
		run.Handle.ID = run.ID
		if err := json.Unmarshal([]byte(rawKeys), &run.ItemKeys); err != nil {
			return nil, fmt.Errorf("%s: decode item keys: %w", op, err)
		}
		if promo.Valid {
			var snap models.PromotionSnapshot
			if err := json.Unmarshal([]byte(promo.String), &snap); err != nil {
				return nil, fmt.Errorf("%s: decode promotion: %w", op, err)
			}
			run.Promotion = &snap
		}

		out = append(out, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}

	return out, nil
}
