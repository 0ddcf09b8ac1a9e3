// dedup решает, встречался ли элемент раньше, по двум сигналам:
// точному ключу (нормализованная ссылка) и отпечатку содержимого.
//
// Совпадение любого из сигналов означает "известен". Пустой отпечаток
// ни с чем не совпадает. Индексы в памяти - кэш над долговременным
// хранилищем: запись сначала уходит в хранилище, потом в индексы.
package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/storage"
	"github.com/pribylovaa/go-news-digest/pkg/log"
)

// ErrInvalidArgument - некорректные входные аргументы.
var ErrInvalidArgument = errors.New("invalid argument")

// Engine - движок дедупликации.
//
// Читатели (IsKnown, FilterNew, KnownCount) работают параллельно,
// писатели (Admit, EvictOlderThan, Load) сериализуются через writeMu.
type Engine struct {
	store storage.KnownItemStorage

	writeMu sync.Mutex

	mu           sync.RWMutex
	keys         map[string]models.KnownItemRecord
	fingerprints map[string]struct{}
}

// New создаёт движок с пустыми индексами. Для восстановления
// состояния из хранилища вызовите Load.
func New(store storage.KnownItemStorage) *Engine {
	return &Engine{
		store:        store,
		keys:         make(map[string]models.KnownItemRecord),
		fingerprints: make(map[string]struct{}),
	}
}

// Load перестраивает оба индекса из хранилища.
func (e *Engine) Load(ctx context.Context) error {
	const op = "dedup.Load"

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	records, err := e.store.KnownItems(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	fps, err := e.store.KnownFingerprints(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	keys := make(map[string]models.KnownItemRecord, len(records))
	fingerprints := make(map[string]struct{}, len(fps))

	for _, r := range records {
		keys[r.IdentityKey] = r
		if r.Fingerprint != "" {
			fingerprints[r.Fingerprint] = struct{}{}
		}
	}
	for _, fp := range fps {
		if fp != "" {
			fingerprints[fp] = struct{}{}
		}
	}

	e.mu.Lock()
	e.keys = keys
	e.fingerprints = fingerprints
	e.mu.Unlock()

	log.From(ctx).Info("dedup_loaded",
		slog.String("op", op),
		slog.Int("keys", len(keys)),
		slog.Int("fingerprints", len(fingerprints)),
	)

	return nil
}

// IsKnown сообщает, встречался ли элемент: по ключу ИЛИ по непустому отпечатку.
func (e *Engine) IsKnown(item models.Item) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.isKnownLocked(item)
}

func (e *Engine) isKnownLocked(item models.Item) bool {
	if item.IdentityKey != "" {
		if _, ok := e.keys[item.IdentityKey]; ok {
			return true
		}
	}

	if item.Fingerprint != "" {
		if _, ok := e.fingerprints[item.Fingerprint]; ok {
			return true
		}
	}

	return false
}

// FilterNew возвращает неизвестные элементы в исходном порядке. Состояние не меняется.
func (e *Engine) FilterNew(items []models.Item) []models.Item {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.Item, 0, len(items))
	for _, it := range items {
		if !e.isKnownLocked(it) {
			out = append(out, it)
		}
	}

	return out
}

// Admit записывает элементы как известные и возвращает число новых записей.
//
// Повторный допуск известного элемента - no-op. Дубликаты внутри пачки
// учитываются один раз. Если хранилище не приняло запись, индексы
// не меняются и возвращается ошибка, оборачивающая storage.ErrUnavailable.
func (e *Engine) Admit(ctx context.Context, items []models.Item, now time.Time) (int, error) {
	const op = "dedup.Admit"

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	records := e.newRecords(items, now)
	if len(records) == 0 {
		return 0, nil
	}

	if err := e.store.SaveKnownItems(ctx, records); err != nil {
		return 0, fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	e.mu.Lock()
	for _, r := range records {
		if r.IdentityKey != "" {
			e.keys[r.IdentityKey] = r
		}
		if r.Fingerprint != "" {
			e.fingerprints[r.Fingerprint] = struct{}{}
		}
	}
	e.mu.Unlock()

	log.From(ctx).Debug("dedup_admitted",
		slog.String("op", op),
		slog.Int("requested", len(items)),
		slog.Int("admitted", len(records)),
	)

	return len(records), nil
}

// newRecords отбирает элементы, которых нет ни в индексах, ни раньше в пачке.
func (e *Engine) newRecords(items []models.Item, now time.Time) []models.KnownItemRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()

	batch := newIndex()
	records := make([]models.KnownItemRecord, 0, len(items))

	for _, it := range items {
		if it.IdentityKey == "" && it.Fingerprint == "" {
			continue
		}
		if e.isKnownLocked(it) || batch.Seen(it) {
			continue
		}
		batch.Add(it)

		records = append(records, models.KnownItemRecord{
			IdentityKey: it.IdentityKey,
			Fingerprint: it.Fingerprint,
			FirstSeenAt: now.UTC(),
			SourceLabel: it.Raw.Source,
		})
	}

	return records
}

// EvictOlderThan удаляет записи ключей старше age (относительно now).
// Отпечатки сохраняются, поэтому перепубликация того же текста
// под новой ссылкой по-прежнему распознаётся.
func (e *Engine) EvictOlderThan(ctx context.Context, age time.Duration, now time.Time) (int, error) {
	const op = "dedup.EvictOlderThan"

	if age <= 0 {
		return 0, fmt.Errorf("%s: age must be > 0: %w", op, ErrInvalidArgument)
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	cutoff := now.Add(-age)

	n, err := e.store.DeleteKnownItemsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	e.mu.Lock()
	for k, r := range e.keys {
		if r.FirstSeenAt.Before(cutoff) {
			delete(e.keys, k)
		}
	}
	e.mu.Unlock()

	log.From(ctx).Info("dedup_evicted",
		slog.String("op", op),
		slog.Duration("age", age),
		slog.Int("evicted", n),
	)

	return n, nil
}

// KnownCount - число различных ключей идентичности.
func (e *Engine) KnownCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.keys)
}

// FingerprintCount - число хранимых отпечатков.
func (e *Engine) FingerprintCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return len(e.fingerprints)
}
