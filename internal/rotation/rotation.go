// rotation ведёт курсор по промо-слотам.
//
// Порядок кандидатов не хранится: он пересчитывается из активных слотов
// при каждом чтении и каждом продвижении по правилу
// (priority desc, last_used_at asc с NULL первыми, name asc).
// Поля использования слота меняет только Advance.
package rotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/storage"
	"github.com/pribylovaa/go-news-digest/pkg/log"
)

// DefaultHistoryLimit - сколько переходов хранится в истории по умолчанию.
const DefaultHistoryLimit = 100

var (
	// ErrNotFound - слота с таким именем нет.
	ErrNotFound = errors.New("promotion not found")
	// ErrInvalidArgument - некорректные входные аргументы.
	ErrInvalidArgument = errors.New("invalid argument")
)

// State - состояние движка.
type State string

const (
	StateEmpty   State = "EMPTY"
	StateServing State = "SERVING"
)

// Engine - движок ротации.
type Engine struct {
	store        storage.PromotionStorage
	historyLimit int
}

// New создаёт движок. historyLimit <= 0 заменяется на DefaultHistoryLimit.
func New(store storage.PromotionStorage, historyLimit int) *Engine {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	return &Engine{store: store, historyLimit: historyLimit}
}

// Eligible возвращает активные слоты в порядке выбора.
func Eligible(entries []models.PromotionEntry) []models.PromotionEntry {
	out := make([]models.PromotionEntry, 0, len(entries))
	for _, e := range entries {
		if e.Active {
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}

		switch {
		case a.LastUsedAt == nil && b.LastUsedAt != nil:
			return true
		case a.LastUsedAt != nil && b.LastUsedAt == nil:
			return false
		case a.LastUsedAt != nil && b.LastUsedAt != nil && !a.LastUsedAt.Equal(*b.LastUsedAt):
			return a.LastUsedAt.Before(*b.LastUsedAt)
		}

		return a.Name < b.Name
	})

	return out
}

// Advance выбирает следующий слот, обновляет его LastUsedAt/AppearanceCount,
// переставляет курсор и пишет запись в историю. Всё - в одной транзакции хранилища.
//
// Если активных слотов нет, курсор сбрасывается и возвращается (nil, nil).
func (e *Engine) Advance(ctx context.Context, now time.Time, digestID string) (*models.PromotionEntry, error) {
	const op = "rotation.Advance"

	var picked *models.PromotionEntry

	err := e.store.UpdateRotation(ctx, func(entries []models.PromotionEntry, st models.RotationState) (*models.RotationUpdate, error) {
		picked = nil

		eligible := Eligible(entries)
		if len(eligible) == 0 {
			if st.CurrentName == "" {
				return nil, nil
			}
			return &models.RotationUpdate{}, nil
		}

		next := eligible[0]
		at := now.UTC()
		next.LastUsedAt = &at
		next.AppearanceCount++
		picked = &next

		return &models.RotationUpdate{
			Current: next.Name,
			Used:    next.Name,
			UsedAt:  at,
			Record: &models.RotationRecord{
				At:       at,
				From:     st.CurrentName,
				To:       next.Name,
				Kind:     models.RotationAutomatic,
				DigestID: digestID,
			},
			HistoryLimit: e.historyLimit,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	lg := log.From(ctx)
	if picked == nil {
		lg.Info("rotation_empty", slog.String("op", op))
		return nil, nil
	}

	lg.Info("rotation_advanced",
		slog.String("op", op),
		slog.String("promotion", picked.Name),
		slog.Int("appearances", picked.AppearanceCount),
	)

	return picked, nil
}

// Current возвращает слот под курсором. Если он больше не активен,
// слот выбирается по тому же правилу, что и в Advance, без записи в хранилище.
// Если активных слотов нет - (nil, nil).
func (e *Engine) Current(ctx context.Context) (*models.PromotionEntry, error) {
	const op = "rotation.Current"

	entries, err := e.store.Promotions(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	st, err := e.store.RotationState(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	return resolve(entries, st.CurrentName), nil
}

func resolve(entries []models.PromotionEntry, current string) *models.PromotionEntry {
	if current != "" {
		for _, en := range entries {
			if en.Name == current && en.Active {
				en := en
				return &en
			}
		}
	}

	eligible := Eligible(entries)
	if len(eligible) == 0 {
		return nil
	}

	return &eligible[0]
}

// SetCurrent вручную ставит курсор на слот name (без учёта регистра).
// AppearanceCount не меняется, в историю пишется запись вида manual.
// Возвращает false, если слота с таким именем нет.
func (e *Engine) SetCurrent(ctx context.Context, name string, now time.Time) (bool, error) {
	const op = "rotation.SetCurrent"

	name = strings.TrimSpace(name)
	if name == "" {
		return false, nil
	}

	var found string

	err := e.store.UpdateRotation(ctx, func(entries []models.PromotionEntry, st models.RotationState) (*models.RotationUpdate, error) {
		found = ""
		for _, en := range entries {
			if strings.EqualFold(en.Name, name) {
				found = en.Name
				break
			}
		}
		if found == "" {
			return nil, nil
		}

		return &models.RotationUpdate{
			Current: found,
			Record: &models.RotationRecord{
				At:   now.UTC(),
				From: st.CurrentName,
				To:   found,
				Kind: models.RotationManual,
			},
			HistoryLimit: e.historyLimit,
		}, nil
	})
	if err != nil {
		return false, fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	if found == "" {
		return false, nil
	}

	log.From(ctx).Info("rotation_manual_select",
		slog.String("op", op),
		slog.String("promotion", found),
	)

	return true, nil
}

// State сообщает EMPTY, если нет слота для показа, иначе SERVING.
func (e *Engine) State(ctx context.Context) (State, error) {
	cur, err := e.Current(ctx)
	if err != nil {
		return "", err
	}
	if cur == nil {
		return StateEmpty, nil
	}

	return StateServing, nil
}

// Active возвращает активные слоты в порядке выбора.
func (e *Engine) Active(ctx context.Context) ([]models.PromotionEntry, error) {
	const op = "rotation.Active"

	entries, err := e.store.Promotions(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	return Eligible(entries), nil
}

// History возвращает историю переходов, новые первыми.
func (e *Engine) History(ctx context.Context) ([]models.RotationRecord, error) {
	const op = "rotation.History"

	st, err := e.store.RotationState(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	out := make([]models.RotationRecord, 0, len(st.History))
	for i := len(st.History) - 1; i >= 0; i-- {
		out = append(out, st.History[i])
	}

	return out, nil
}

// Stats собирает сводку по ротации.
func (e *Engine) Stats(ctx context.Context) (*models.RotationStats, error) {
	const op = "rotation.Stats"

	entries, err := e.store.Promotions(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	st, err := e.store.RotationState(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	stats := &models.RotationStats{
		TotalEntries:     len(entries),
		TotalTransitions: len(st.History),
		Appearances:      make(map[string]int, len(entries)),
	}

	for _, en := range entries {
		if en.Active {
			stats.ActiveEntries++
		}
		stats.Appearances[en.Name] = en.AppearanceCount
	}

	if cur := resolve(entries, st.CurrentName); cur != nil {
		stats.CurrentName = cur.Name
	}

	if n := len(st.History); n > 0 {
		last := st.History[n-1]
		stats.LastTransition = &last
	}

	return stats, nil
}

// SetActive включает или выключает слот. Выключение текущего слота
// историю не меняет: следующий Advance его просто не выберет.
func (e *Engine) SetActive(ctx context.Context, name string, active bool) error {
	const op = "rotation.SetActive"

	if err := e.store.SetPromotionActive(ctx, name, active); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrNotFound)
		}
		return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	log.From(ctx).Info("promotion_active_changed",
		slog.String("op", op),
		slog.String("promotion", name),
		slog.Bool("active", active),
	)

	return nil
}

// Sync загружает слоты из каталога после валидации.
// Поля использования существующих слотов сохраняются.
func (e *Engine) Sync(ctx context.Context, entries []models.PromotionEntry) error {
	const op = "rotation.Sync"

	seen := make(map[string]struct{}, len(entries))
	for i := range entries {
		if err := Validate(entries[i]); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		key := strings.ToLower(entries[i].Name)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("%s: duplicate promotion %q: %w", op, entries[i].Name, ErrInvalidArgument)
		}
		seen[key] = struct{}{}
	}

	if err := e.store.UpsertPromotions(ctx, entries); err != nil {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	log.From(ctx).Info("promotions_synced",
		slog.String("op", op),
		slog.Int("count", len(entries)),
	)

	return nil
}

// Validate проверяет слот каталога: имя и сообщение обязательны,
// ссылка (если задана) должна начинаться с http:// или https://.
func Validate(p models.PromotionEntry) error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("promotion name is required: %w", ErrInvalidArgument)
	}
	if strings.TrimSpace(p.Message) == "" {
		return fmt.Errorf("promotion %q: message is required: %w", p.Name, ErrInvalidArgument)
	}
	if p.Link != "" && !strings.HasPrefix(p.Link, "http://") && !strings.HasPrefix(p.Link, "https://") {
		return fmt.Errorf("promotion %q: link must start with http:// or https://: %w", p.Name, ErrInvalidArgument)
	}
	if p.Priority < 0 {
		return fmt.Errorf("promotion %q: priority must be >= 0: %w", p.Name, ErrInvalidArgument)
	}

	return nil
}
