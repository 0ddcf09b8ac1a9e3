// memory - реализация storage.Storage в памяти процесса.
// Используется в тестах и для запуска без внешней БД (storage.driver: memory).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/storage"
)

// Storage хранит все сущности под одним мьютексом.
type Storage struct {
	mu sync.Mutex

	keys         map[string]models.KnownItemRecord
	fingerprints map[string]struct{}

	promotions map[string]models.PromotionEntry
	state      models.RotationState

	runs []models.DigestRun
}

// New создаёт пустое хранилище.
func New() *Storage {
	return &Storage{
		keys:         make(map[string]models.KnownItemRecord),
		fingerprints: make(map[string]struct{}),
		promotions:   make(map[string]models.PromotionEntry),
	}
}

// Close - no-op.
func (s *Storage) Close() {}

func (s *Storage) SaveKnownItems(ctx context.Context, records []models.KnownItemRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("storage.memory.SaveKnownItems: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range records {
		if r.IdentityKey != "" {
			if _, ok := s.keys[r.IdentityKey]; !ok {
				r.FirstSeenAt = r.FirstSeenAt.UTC()
				s.keys[r.IdentityKey] = r
			}
		}
		if r.Fingerprint != "" {
			s.fingerprints[r.Fingerprint] = struct{}{}
		}
	}

	return nil
}

func (s *Storage) KnownItems(_ context.Context) ([]models.KnownItemRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.KnownItemRecord, 0, len(s.keys))
	for _, r := range s.keys {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IdentityKey < out[j].IdentityKey })

	return out, nil
}

func (s *Storage) KnownFingerprints(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.fingerprints))
	for fp := range s.fingerprints {
		out = append(out, fp)
	}
	sort.Strings(out)

	return out, nil
}

func (s *Storage) DeleteKnownItemsBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	for k, r := range s.keys {
		if r.FirstSeenAt.Before(cutoff) {
			delete(s.keys, k)
			n++
		}
	}

	return n, nil
}

func (s *Storage) UpsertPromotions(_ context.Context, entries []models.PromotionEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range entries {
		if cur, ok := s.promotions[e.Name]; ok {
			e.LastUsedAt = cur.LastUsedAt
			e.AppearanceCount = cur.AppearanceCount
		}
		s.promotions[e.Name] = e
	}

	return nil
}

func (s *Storage) Promotions(_ context.Context, activeOnly bool) ([]models.PromotionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.promotionsLocked(activeOnly), nil
}

func (s *Storage) promotionsLocked(activeOnly bool) []models.PromotionEntry {
	out := make([]models.PromotionEntry, 0, len(s.promotions))
	for _, e := range s.promotions {
		if activeOnly && !e.Active {
			continue
		}
		out = append(out, copyEntry(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	return out
}

func (s *Storage) SetPromotionActive(_ context.Context, name string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.promotions[name]
	if !ok {
		return fmt.Errorf("storage.memory.SetPromotionActive: %w", storage.ErrNotFound)
	}
	e.Active = active
	s.promotions[name] = e

	return nil
}

func (s *Storage) RotationState(_ context.Context) (*models.RotationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := copyState(s.state)
	return &st, nil
}

func (s *Storage) UpdateRotation(ctx context.Context, fn storage.RotationFunc) error {
	const op = "storage.memory.UpdateRotation"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	upd, err := fn(s.promotionsLocked(false), copyState(s.state))
	if err != nil {
		return err
	}
	if upd == nil {
		return nil
	}

	if upd.Used != "" {
		e, ok := s.promotions[upd.Used]
		if !ok {
			return fmt.Errorf("%s: %q: %w", op, upd.Used, storage.ErrNotFound)
		}
		at := upd.UsedAt.UTC()
		e.LastUsedAt = &at
		e.AppearanceCount++
		s.promotions[upd.Used] = e
	}

	s.state.CurrentName = upd.Current

	if upd.Record != nil {
		s.state.History = append(s.state.History, *upd.Record)
		if upd.HistoryLimit > 0 && len(s.state.History) > upd.HistoryLimit {
			s.state.History = append([]models.RotationRecord(nil), s.state.History[len(s.state.History)-upd.HistoryLimit:]...)
		}
	}

	return nil
}

func (s *Storage) SaveRun(_ context.Context, run models.DigestRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.runs {
		if r.ID == run.ID {
			return fmt.Errorf("storage.memory.SaveRun: %w", storage.ErrAlreadyExists)
		}
	}
	run.ItemKeys = append([]string(nil), run.ItemKeys...)
	s.runs = append(s.runs, run)

	return nil
}

func (s *Storage) RecentRuns(_ context.Context, limit int) ([]models.DigestRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 1
	}

	out := make([]models.DigestRun, 0, limit)
	for i := len(s.runs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.runs[i])
	}

	return out, nil
}

func copyEntry(e models.PromotionEntry) models.PromotionEntry {
	if e.LastUsedAt != nil {
		t := *e.LastUsedAt
		e.LastUsedAt = &t
	}

	return e
}

func copyState(st models.RotationState) models.RotationState {
	return models.RotationState{
		CurrentName: st.CurrentName,
		History:     append([]models.RotationRecord(nil), st.History...),
	}
}

// Проверка на соответствие интерфейсу Storage.
var _ storage.Storage = (*Storage)(nil)
