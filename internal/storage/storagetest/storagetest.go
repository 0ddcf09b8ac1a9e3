// storagetest - общий набор проверок контракта storage.Storage.
// Каждая реализация вызывает Run со своей фабрикой чистого хранилища.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/storage"
)

// Factory возвращает пустое хранилище. Закрытие - забота фабрики (t.Cleanup).
type Factory func(t *testing.T) storage.Storage

// base - точка отсчёта с точностью до секунды: так проверки
// не зависят от разрешения времени конкретной БД.
var base = time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

// Run прогоняет все проверки контракта.
func Run(t *testing.T, newStore Factory) {
	t.Run("KnownItems", func(t *testing.T) { testKnownItems(t, newStore(t)) })
	t.Run("KnownItemsEviction", func(t *testing.T) { testEviction(t, newStore(t)) })
	t.Run("Promotions", func(t *testing.T) { testPromotions(t, newStore(t)) })
	t.Run("UpdateRotation", func(t *testing.T) { testUpdateRotation(t, newStore(t)) })
	t.Run("UpdateRotationSerialized", func(t *testing.T) { testUpdateRotationSerialized(t, newStore(t)) })
	t.Run("Runs", func(t *testing.T) { testRuns(t, newStore(t)) })
}

func testKnownItems(t *testing.T, st storage.Storage) {
	ctx := context.Background()

	require.NoError(t, st.SaveKnownItems(ctx, nil))

	require.NoError(t, st.SaveKnownItems(ctx, []models.KnownItemRecord{
		{IdentityKey: "https://a", Fingerprint: "fa", FirstSeenAt: base, SourceLabel: "A"},
		{IdentityKey: "https://b", FirstSeenAt: base, SourceLabel: "B"},
	}))
	// Повторный ключ не перезаписывает запись, новый отпечаток сохраняется.
	require.NoError(t, st.SaveKnownItems(ctx, []models.KnownItemRecord{
		{IdentityKey: "https://a", Fingerprint: "fa2", FirstSeenAt: base.Add(time.Hour), SourceLabel: "other"},
	}))

	items, err := st.KnownItems(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)

	byKey := map[string]models.KnownItemRecord{}
	for _, it := range items {
		byKey[it.IdentityKey] = it
	}
	require.Equal(t, "fa", byKey["https://a"].Fingerprint)
	require.Equal(t, "A", byKey["https://a"].SourceLabel)
	require.True(t, base.Equal(byKey["https://a"].FirstSeenAt))
	require.Equal(t, "", byKey["https://b"].Fingerprint)

	fps, err := st.KnownFingerprints(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"fa", "fa2"}, fps)
}

func testEviction(t *testing.T, st storage.Storage) {
	ctx := context.Background()

	require.NoError(t, st.SaveKnownItems(ctx, []models.KnownItemRecord{
		{IdentityKey: "old", Fingerprint: "f-old", FirstSeenAt: base.Add(-48 * time.Hour)},
		{IdentityKey: "edge", Fingerprint: "f-edge", FirstSeenAt: base},
		{IdentityKey: "new", Fingerprint: "f-new", FirstSeenAt: base.Add(time.Hour)},
	}))

	n, err := st.DeleteKnownItemsBefore(ctx, base)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	items, err := st.KnownItems(ctx)
	require.NoError(t, err)
	keys := make([]string, 0, len(items))
	for _, it := range items {
		keys = append(keys, it.IdentityKey)
	}
	require.ElementsMatch(t, []string{"edge", "new"}, keys)

	fps, err := st.KnownFingerprints(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"f-old", "f-edge", "f-new"}, fps, "отпечатки не удаляются по возрасту")
}

func testPromotions(t *testing.T, st storage.Storage) {
	ctx := context.Background()

	require.NoError(t, st.UpsertPromotions(ctx, []models.PromotionEntry{
		{Name: "b", Message: "B", Active: true, Priority: 1},
		{Name: "a", Message: "A", Link: "https://a", Active: true},
		{Name: "c", Message: "C", Active: false},
	}))

	all, err := st.Promotions(ctx, false)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c"}, names(all))
	require.Equal(t, "https://a", all[0].Link)
	require.Equal(t, 1, all[1].Priority)
	require.Nil(t, all[0].LastUsedAt)

	active, err := st.Promotions(ctx, true)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, names(active))

	// Отмечаем использование и проверяем, что upsert его не сбрасывает.
	require.NoError(t, st.UpdateRotation(ctx, func(_ []models.PromotionEntry, _ models.RotationState) (*models.RotationUpdate, error) {
		return &models.RotationUpdate{Current: "a", Used: "a", UsedAt: base}, nil
	}))
	require.NoError(t, st.UpsertPromotions(ctx, []models.PromotionEntry{
		{Name: "a", Message: "A v2", Active: true, Priority: 5},
	}))

	all, err = st.Promotions(ctx, false)
	require.NoError(t, err)
	require.Equal(t, "A v2", all[0].Message)
	require.Equal(t, 5, all[0].Priority)
	require.Equal(t, 1, all[0].AppearanceCount)
	require.NotNil(t, all[0].LastUsedAt)
	require.True(t, base.Equal(*all[0].LastUsedAt))

	require.NoError(t, st.SetPromotionActive(ctx, "a", false))
	active, err = st.Promotions(ctx, true)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, names(active))

	require.ErrorIs(t, st.SetPromotionActive(ctx, "missing", true), storage.ErrNotFound)
}

func testUpdateRotation(t *testing.T, st storage.Storage) {
	ctx := context.Background()

	require.NoError(t, st.UpsertPromotions(ctx, []models.PromotionEntry{
		{Name: "a", Message: "A", Active: true},
		{Name: "b", Message: "B", Active: true},
	}))

	state, err := st.RotationState(ctx)
	require.NoError(t, err)
	require.Equal(t, "", state.CurrentName)
	require.Empty(t, state.History)

	// nil - ничего не менять.
	require.NoError(t, st.UpdateRotation(ctx, func([]models.PromotionEntry, models.RotationState) (*models.RotationUpdate, error) {
		return nil, nil
	}))

	// Ошибка fn возвращается как есть и ничего не применяет.
	boom := errors.New("boom")
	err = st.UpdateRotation(ctx, func([]models.PromotionEntry, models.RotationState) (*models.RotationUpdate, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	for i, name := range []string{"a", "b", "a", "b"} {
		at := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, st.UpdateRotation(ctx, func(entries []models.PromotionEntry, s models.RotationState) (*models.RotationUpdate, error) {
			require.Len(t, entries, 2)
			return &models.RotationUpdate{
				Current: name,
				Used:    name,
				UsedAt:  at,
				Record: &models.RotationRecord{
					At: at, From: s.CurrentName, To: name,
					Kind: models.RotationAutomatic, DigestID: fmt.Sprintf("d-%d", i),
				},
				HistoryLimit: 3,
			}, nil
		}))
	}

	state, err = st.RotationState(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", state.CurrentName)
	require.Len(t, state.History, 3, "история обрезается до HistoryLimit")
	require.Equal(t, "d-1", state.History[0].DigestID, "история - от старых к новым")
	require.Equal(t, "d-3", state.History[2].DigestID)
	require.Equal(t, "a", state.History[2].From)
	require.Equal(t, models.RotationAutomatic, state.History[2].Kind)
	require.True(t, base.Add(3*time.Hour).Equal(state.History[2].At))

	all, err := st.Promotions(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 2, all[0].AppearanceCount)
	require.True(t, base.Add(2*time.Hour).Equal(*all[0].LastUsedAt))

	// Ручной переход без изменения счётчиков; сброс курсора.
	require.NoError(t, st.UpdateRotation(ctx, func(_ []models.PromotionEntry, s models.RotationState) (*models.RotationUpdate, error) {
		return &models.RotationUpdate{
			Current: "",
			Record:  &models.RotationRecord{At: base, From: s.CurrentName, Kind: models.RotationManual},
		}, nil
	}))
	state, err = st.RotationState(ctx)
	require.NoError(t, err)
	require.Equal(t, "", state.CurrentName)
	require.Len(t, state.History, 4, "без HistoryLimit история не обрезается")
	require.Equal(t, models.RotationManual, state.History[3].Kind)

	all, err = st.Promotions(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 2, all[0].AppearanceCount)
	require.Equal(t, 2, all[1].AppearanceCount)

	// Неизвестный слот в Used - ErrNotFound, состояние не меняется.
	err = st.UpdateRotation(ctx, func([]models.PromotionEntry, models.RotationState) (*models.RotationUpdate, error) {
		return &models.RotationUpdate{Current: "ghost", Used: "ghost", UsedAt: base}, nil
	})
	require.ErrorIs(t, err, storage.ErrNotFound)

	state, err = st.RotationState(ctx)
	require.NoError(t, err)
	require.Equal(t, "", state.CurrentName)
}

func testUpdateRotationSerialized(t *testing.T, st storage.Storage) {
	ctx := context.Background()

	require.NoError(t, st.UpsertPromotions(ctx, []models.PromotionEntry{{Name: "a", Message: "A", Active: true}}))

	const workers = 8

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[int]bool{}
		errs = make(chan error, workers)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- st.UpdateRotation(ctx, func(_ []models.PromotionEntry, s models.RotationState) (*models.RotationUpdate, error) {
				mu.Lock()
				seen[len(s.History)] = true
				mu.Unlock()
				return &models.RotationUpdate{
					Current: "a", Used: "a", UsedAt: base,
					Record: &models.RotationRecord{At: base, From: s.CurrentName, To: "a", Kind: models.RotationAutomatic},
				}, nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	// Каждый вызов видел результат предыдущего.
	require.Len(t, seen, workers)

	all, err := st.Promotions(ctx, false)
	require.NoError(t, err)
	require.Equal(t, workers, all[0].AppearanceCount)
}

func testRuns(t *testing.T, st storage.Storage) {
	ctx := context.Background()

	runs, err := st.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, runs)

	r1 := models.DigestRun{
		ID: "r1", GeneratedAt: base, SubjectLine: "S1",
		ItemKeys: []string{"k2", "k1"},
		Handle:   models.DigestHandle{ID: "r1", Location: "file:///tmp/r1.json"},
	}
	r2 := models.DigestRun{
		ID: "r2", GeneratedAt: base.Add(24 * time.Hour), SubjectLine: "S2",
		ItemKeys:  []string{"k3"},
		Promotion: &models.PromotionSnapshot{Name: "a", Message: "A", Link: "https://a"},
		Handle:    models.DigestHandle{ID: "r2", Location: "s3://digests/r2.json"},
	}
	require.NoError(t, st.SaveRun(ctx, r1))
	require.NoError(t, st.SaveRun(ctx, r2))
	require.ErrorIs(t, st.SaveRun(ctx, r1), storage.ErrAlreadyExists)

	runs, err = st.RecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "r2", runs[0].ID, "новые первыми")
	require.Equal(t, r2.Promotion, runs[0].Promotion)
	require.Equal(t, r2.Handle, runs[0].Handle)
	require.True(t, r2.GeneratedAt.Equal(runs[0].GeneratedAt))
	require.Equal(t, []string{"k2", "k1"}, runs[1].ItemKeys)
	require.Nil(t, runs[1].Promotion)

	runs, err = st.RecentRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, "r2", runs[0].ID)
}

func names(entries []models.PromotionEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name)
	}
	return out
}
