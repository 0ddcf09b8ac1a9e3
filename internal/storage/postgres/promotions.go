package postgres

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/storage"
)

// UpsertPromotions создаёт/обновляет слоты по имени одним батчем.
// last_used_at и appearance_count существующих строк не трогаются.
func (s *Storage) UpsertPromotions(ctx context.Context, entries []models.PromotionEntry) error {
	const op = "storage.postgres.UpsertPromotions"

	if len(entries) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`
		INSERT INTO promotions (name, message, link, active, priority)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO UPDATE
		SET
		message = EXCLUDED.message,
		link = EXCLUDED.link,
		active = EXCLUDED.active,
		priority = EXCLUDED.priority
		`, e.Name, e.Message, e.Link, e.Active, e.Priority)
	}

	br := s.db.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("%s: batch item %d: %w", op, i, err)
		}
	}

	return nil
}

// Promotions возвращает слоты, отсортированные по имени.
func (s *Storage) Promotions(ctx context.Context, activeOnly bool) ([]models.PromotionEntry, error) {
	const op = "storage.postgres.Promotions"

	out, err := s.promotions(ctx, s.db, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func (s *Storage) promotions(ctx context.Context, q querier, activeOnly bool) ([]models.PromotionEntry, error) {
	b := s.psql.
		Select("name", "message", "link", "active", "priority", "last_used_at", "appearance_count").
		From("promotions").
		OrderBy("name")
	if activeOnly {
		b = b.Where(sq.Eq{"active": true})
	}

	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PromotionEntry
	for rows.Next() {
		var (
			e        models.PromotionEntry
			lastUsed *time.Time
		)
		if err := rows.Scan(&e.Name, &e.Message, &e.Link, &e.Active, &e.Priority, &lastUsed, &e.AppearanceCount); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if lastUsed != nil {
			at := lastUsed.UTC()
			e.LastUsedAt = &at
		}
		out = append(out, e)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("rows: %w", rows.Err())
	}

	return out, nil
}

// SetPromotionActive включает/выключает слот.
// Если слот не найден - storage.ErrNotFound.
func (s *Storage) SetPromotionActive(ctx context.Context, name string, active bool) error {
	const op = "storage.postgres.SetPromotionActive"

	tag, err := s.db.Exec(ctx, `UPDATE promotions SET active = $1 WHERE name = $2`, active, name)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// RotationState возвращает курсор и историю переходов (от старых к новым).
func (s *Storage) RotationState(ctx context.Context) (*models.RotationState, error) {
	const op = "storage.postgres.RotationState"

	var current *string
	if err := s.db.QueryRow(ctx, `SELECT current_name FROM rotation_state WHERE id = 1`).Scan(&current); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	history, err := s.history(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	st := &models.RotationState{History: history}
	if current != nil {
		st.CurrentName = *current
	}

	return st, nil
}

func (s *Storage) history(ctx context.Context, q querier) ([]models.RotationRecord, error) {
	query, args, err := s.psql.
		Select("at", "from_name", "to_name", "kind", "digest_id").
		From("rotation_history").
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.RotationRecord
	for rows.Next() {
		var (
			rec  models.RotationRecord
			kind string
		)
		if err := rows.Scan(&rec.At, &rec.From, &rec.To, &kind, &rec.DigestID); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.At = rec.At.UTC()
		rec.Kind = models.RotationKind(kind)
		out = append(out, rec)
	}

	if rows.Err() != nil {
		return nil, fmt.Errorf("rows: %w", rows.Err())
	}

	return out, nil
}

// UpdateRotation выполняет чтение-решение-запись в одной транзакции.
// Строка rotation_state блокируется FOR UPDATE, поэтому
// параллельные вызовы (в том числе из разных процессов) выполняются по очереди.
func (s *Storage) UpdateRotation(ctx context.Context, fn storage.RotationFunc) error {
	const op = "storage.postgres.UpdateRotation"

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current *string
	if err := tx.QueryRow(ctx, `SELECT current_name FROM rotation_state WHERE id = 1 FOR UPDATE`).Scan(&current); err != nil {
		return fmt.Errorf("%s: lock state: %w", op, err)
	}

	entries, err := s.promotions(ctx, tx, false)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	history, err := s.history(ctx, tx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	state := models.RotationState{History: history}
	if current != nil {
		state.CurrentName = *current
	}

	upd, err := fn(entries, state)
	if err != nil {
		return err
	}
	if upd == nil {
		return nil
	}

	if err := applyRotation(ctx, tx, upd); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

func applyRotation(ctx context.Context, tx pgx.Tx, upd *models.RotationUpdate) error {
	if upd.Used != "" {
		tag, err := tx.Exec(ctx, `
		UPDATE promotions
		SET last_used_at = $1, appearance_count = appearance_count + 1
		WHERE name = $2
		`, upd.UsedAt.UTC(), upd.Used)
		if err != nil {
			return fmt.Errorf("mark used: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("mark used %q: %w", upd.Used, storage.ErrNotFound)
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE rotation_state SET current_name = NULLIF($1, '') WHERE id = 1`, upd.Current); err != nil {
		return fmt.Errorf("set current: %w", err)
	}

	if upd.Record == nil {
		return nil
	}

	rec := upd.Record
	if _, err := tx.Exec(ctx, `
	INSERT INTO rotation_history (at, from_name, to_name, kind, digest_id)
	VALUES ($1, $2, $3, $4, $5)
	`, rec.At.UTC(), rec.From, rec.To, string(rec.Kind), rec.DigestID); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	if upd.HistoryLimit > 0 {
		if _, err := tx.Exec(ctx, `
		DELETE FROM rotation_history
		WHERE id NOT IN (SELECT id FROM rotation_history ORDER BY id DESC LIMIT $1)
		`, upd.HistoryLimit); err != nil {
			return fmt.Errorf("trim history: %w", err)
		}
	}

	return nil
}
