package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/storage"
)

// SaveRun сохраняет запись о цикле. Повторный id - storage.ErrAlreadyExists.
func (s *Storage) SaveRun(ctx context.Context, run models.DigestRun) error {
	const op = "storage.postgres.SaveRun"

	var promo []byte
	if run.Promotion != nil {
		b, err := json.Marshal(run.Promotion)
		if err != nil {
			return fmt.Errorf("%s: encode promotion: %w", op, err)
		}
		promo = b
	}

	keys := run.ItemKeys
	if keys == nil {
		keys = []string{}
	}

	_, err := s.db.Exec(ctx, `
	INSERT INTO digest_runs (id, generated_at, subject_line, item_keys, promotion, handle_location)
	VALUES ($1, $2, $3, $4, $5, $6)
	`, run.ID, run.GeneratedAt.UTC(), run.SubjectLine, keys, promo, run.Handle.Location)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%s: %w", op, storage.ErrAlreadyExists)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RecentRuns возвращает последние limit записей, новые первыми.
// limit <= 0 трактуется как 1.
func (s *Storage) RecentRuns(ctx context.Context, limit int) ([]models.DigestRun, error) {
	const op = "storage.postgres.RecentRuns"

	if limit <= 0 {
		limit = 1
	}

	query, args, err := s.psql.
		Select("id", "generated_at", "subject_line", "item_keys", "promotion", "handle_location").
		From("digest_runs").
		OrderBy("seq DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("%s: build query: %w", op, err)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := []models.DigestRun{}
	for rows.Next() {
		var (
			run   models.DigestRun
			promo []byte
		)
		if err := rows.Scan(&run.ID, &run.GeneratedAt, &run.SubjectLine, &run.ItemKeys, &promo, &run.Handle.Location); err != nil {
			return nil, fmt.Errorf("%s: scan row: %w", op, err)
		}

		run.GeneratedAt = run.GeneratedAt.UTC()
		run.Handle.ID = run.ID
		if len(promo) > 0 {
			var snap models.PromotionSnapshot
			if err := json.Unmarshal(promo, &snap); err != nil {
				return nil, fmt.Errorf("%s: decode promotion: %w", op, err)
			}
			run.Promotion = &snap
		}

		out = append(out, run)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, rows.Err())
	}

	return out, nil
}
