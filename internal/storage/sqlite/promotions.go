package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/storage"
)

// UpsertPromotions создаёт/обновляет слоты, не трогая поля использования.
func (s *Storage) UpsertPromotions(ctx context.Context, entries []models.PromotionEntry) error {
	const op = "storage.sqlite.UpsertPromotions"

	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, e := range entries {
		if _, err := tx.ExecContext(ctx, `
		INSERT INTO promotions (name, message, link, active, priority)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE
		SET
		message = excluded.message,
		link = excluded.link,
		active = excluded.active,
		priority = excluded.priority
		`, e.Name, e.Message, e.Link, e.Active, e.Priority); err != nil {
			return fmt.Errorf("%s: item %d: %w", op, i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

// Promotions возвращает слоты, отсортированные по имени.
func (s *Storage) Promotions(ctx context.Context, activeOnly bool) ([]models.PromotionEntry, error) {
	const op = "storage.sqlite.Promotions"

	out, err := s.promotions(ctx, s.db, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func (s *Storage) promotions(ctx context.Context, runner sq.BaseRunner, activeOnly bool) ([]models.PromotionEntry, error) {
	b := s.psql.
		Select("name", "message", "link", "active", "priority", "last_used_at", "appearance_count").
		From("promotions").
		OrderBy("name")
	if activeOnly {
		b = b.Where(sq.Eq{"active": true})
	}

	rows, err := b.RunWith(runner).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.PromotionEntry
	for rows.Next() {
		var (
			e        models.PromotionEntry
			lastUsed sql.NullInt64
		)
		if err := rows.Scan(&e.Name, &e.Message, &e.Link, &e.Active, &e.Priority, &lastUsed, &e.AppearanceCount); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		if lastUsed.Valid {
			at := fromUnix(lastUsed.Int64)
			e.LastUsedAt = &at
		}
		out = append(out, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return out, nil
}

// SetPromotionActive включает/выключает слот. Нет слота - storage.ErrNotFound.
func (s *Storage) SetPromotionActive(ctx context.Context, name string, active bool) error {
	const op = "storage.sqlite.SetPromotionActive"

	res, err := s.db.ExecContext(ctx, `UPDATE promotions SET active = ? WHERE name = ?`, active, name)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrNotFound)
	}

	return nil
}

// RotationState возвращает курсор и историю (от старых к новым).
func (s *Storage) RotationState(ctx context.Context) (*models.RotationState, error) {
	const op = "storage.sqlite.RotationState"

	st, err := s.rotationState(ctx, s.db)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return st, nil
}

func (s *Storage) rotationState(ctx context.Context, runner sq.BaseRunner) (*models.RotationState, error) {
	var current sql.NullString
	if err := s.psql.
		Select("current_name").
		From("rotation_state").
		Where(sq.Eq{"id": 1}).
		RunWith(runner).
		QueryRowContext(ctx).
		Scan(&current); err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	rows, err := s.psql.
		Select("at", "from_name", "to_name", "kind", "digest_id").
		From("rotation_history").
		OrderBy("id").
		RunWith(runner).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer rows.Close()

	st := &models.RotationState{CurrentName: current.String}
	for rows.Next() {
		var (
			rec  models.RotationRecord
			at   int64
			kind string
		)
		if err := rows.Scan(&at, &rec.From, &rec.To, &kind, &rec.DigestID); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.At = fromUnix(at)
		rec.Kind = models.RotationKind(kind)
		st.History = append(st.History, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return st, nil
}

// UpdateRotation выполняет чтение-решение-запись в одной транзакции.
// Единственное соединение пула держится транзакцией до её завершения,
// поэтому параллельные вызовы ждут своей очереди.
func (s *Storage) UpdateRotation(ctx context.Context, fn storage.RotationFunc) error {
	const op = "storage.sqlite.UpdateRotation"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", op, err)
	}
	defer func() { _ = tx.Rollback() }()

	entries, err := s.promotions(ctx, tx, false)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	state, err := s.rotationState(ctx, tx)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	upd, err := fn(entries, *state)
	if err != nil {
		return err
	}
	if upd == nil {
		return nil
	}

	if err := applyRotation(ctx, tx, upd); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: commit: %w", op, err)
	}

	return nil
}

func applyRotation(ctx context.Context, tx *sql.Tx, upd *models.RotationUpdate) error {
	if upd.Used != "" {
		res, err := tx.ExecContext(ctx, `
		UPDATE promotions
		SET last_used_at = ?, appearance_count = appearance_count + 1
		WHERE name = ?
		`, toUnix(upd.UsedAt), upd.Used)
		if err != nil {
			return fmt.Errorf("mark used: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("mark used %q: %w", upd.Used, storage.ErrNotFound)
		}
	}

	var current any
	if upd.Current != "" {
		current = upd.Current
	}
	if _, err := tx.ExecContext(ctx, `UPDATE rotation_state SET current_name = ? WHERE id = 1`, current); err != nil {
		return fmt.Errorf("set current: %w", err)
	}

	if upd.Record == nil {
		return nil
	}

	rec := upd.Record
	if _, err := tx.ExecContext(ctx, `
	INSERT INTO rotation_history (at, from_name, to_name, kind, digest_id)
	VALUES (?, ?, ?, ?, ?)
	`, toUnix(rec.At), rec.From, rec.To, string(rec.Kind), rec.DigestID); err != nil {
		return fmt.Errorf("append history: %w", err)
	}

	if upd.HistoryLimit > 0 {
		if _, err := tx.ExecContext(ctx, `
		DELETE FROM rotation_history
		WHERE id NOT IN (SELECT id FROM rotation_history ORDER BY id DESC LIMIT ?)
		`, upd.HistoryLimit); err != nil {
			return fmt.Errorf("trim history: %w", err)
		}
	}

	return nil
}
