package rotation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/storage"
	"github.com/pribylovaa/go-news-digest/internal/storage/memory"
	"github.com/pribylovaa/go-news-digest/mocks"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func promo(name string, priority int) models.PromotionEntry {
	return models.PromotionEntry{Name: name, Message: "msg " + name, Active: true, Priority: priority}
}

// newEngineWith - движок над memory-хранилищем с заданным каталогом.
func newEngineWith(t *testing.T, entries ...models.PromotionEntry) (*Engine, *memory.Storage) {
	t.Helper()

	st := memory.New()
	e := New(st, 0)
	require.NoError(t, e.Sync(context.Background(), entries))

	return e, st
}

func TestAdvance_FairnessAcrossEqualEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newEngineWith(t, promo("A", 1), promo("B", 1), promo("C", 1))

	var got []string
	for i := 0; i < 4; i++ {
		p, err := e.Advance(ctx, t0.Add(time.Duration(i)*time.Hour), "")
		require.NoError(t, err)
		require.NotNil(t, p)
		got = append(got, p.Name)
	}

	require.Equal(t, []string{"A", "B", "C", "A"}, got)
}

func TestAdvance_SameTimestamp_StillFair(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newEngineWith(t, promo("A", 1), promo("B", 1), promo("C", 1))

	seen := map[string]int{}
	for i := 0; i < 3; i++ {
		p, err := e.Advance(ctx, t0, "")
		require.NoError(t, err)
		seen[p.Name]++
	}

	require.Equal(t, map[string]int{"A": 1, "B": 1, "C": 1}, seen)
}

func TestAdvance_PriorityFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newEngineWith(t, promo("low", 1), promo("high", 5))

	p, err := e.Advance(ctx, t0, "")
	require.NoError(t, err)
	require.Equal(t, "high", p.Name)

	// Более приоритетный слот выигрывает даже после показа.
	p, err = e.Advance(ctx, t0.Add(time.Hour), "")
	require.NoError(t, err)
	require.Equal(t, "high", p.Name)
	require.Equal(t, 2, p.AppearanceCount)
}

func TestAdvance_UpdatesUsageAndHistory(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, st := newEngineWith(t, promo("A", 1))

	p, err := e.Advance(ctx, t0, "digest-1")
	require.NoError(t, err)
	require.Equal(t, 1, p.AppearanceCount)
	require.NotNil(t, p.LastUsedAt)
	require.True(t, p.LastUsedAt.Equal(t0))

	state, err := st.RotationState(ctx)
	require.NoError(t, err)
	require.Equal(t, "A", state.CurrentName)
	require.Len(t, state.History, 1)
	require.Equal(t, models.RotationAutomatic, state.History[0].Kind)
	require.Equal(t, "digest-1", state.History[0].DigestID)
}

func TestAdvance_ExcludesDeactivatedEntry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newEngineWith(t, promo("A", 1), promo("B", 1), promo("C", 1))

	p, err := e.Advance(ctx, t0, "")
	require.NoError(t, err)
	require.Equal(t, "A", p.Name)

	require.NoError(t, e.SetActive(ctx, "B", false))

	for i := 1; i <= 4; i++ {
		p, err := e.Advance(ctx, t0.Add(time.Duration(i)*time.Hour), "")
		require.NoError(t, err)
		require.NotEqual(t, "B", p.Name)
	}
}

func TestAdvance_EmptyActiveSet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, st := newEngineWith(t, promo("A", 1))

	_, err := e.Advance(ctx, t0, "")
	require.NoError(t, err)
	require.NoError(t, e.SetActive(ctx, "A", false))

	p, err := e.Advance(ctx, t0.Add(time.Hour), "")
	require.NoError(t, err)
	require.Nil(t, p)

	state, err := st.RotationState(ctx)
	require.NoError(t, err)
	require.Empty(t, state.CurrentName)

	s, err := e.State(ctx)
	require.NoError(t, err)
	require.Equal(t, StateEmpty, s)
}

func TestCurrent_ReadOnlyAndReResolves(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, st := newEngineWith(t, promo("A", 1), promo("B", 1))

	// До первого Advance курсор пуст, но Current вычисляет кандидата.
	cur, err := e.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, "A", cur.Name)
	require.Equal(t, 0, cur.AppearanceCount)

	_, err = e.Advance(ctx, t0, "")
	require.NoError(t, err)

	cur, err = e.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, "A", cur.Name)

	require.NoError(t, e.SetActive(ctx, "A", false))

	cur, err = e.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, "B", cur.Name)

	// Чтение ничего не записало.
	state, err := st.RotationState(ctx)
	require.NoError(t, err)
	require.Equal(t, "A", state.CurrentName)
	require.Len(t, state.History, 1)
}

func TestSetCurrent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, st := newEngineWith(t, promo("Alpha", 1), promo("Beta", 1))

	ok, err := e.SetCurrent(ctx, "missing", t0)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = e.SetCurrent(ctx, "beta", t0)
	require.NoError(t, err)
	require.True(t, ok)

	cur, err := e.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, "Beta", cur.Name)
	require.Equal(t, 0, cur.AppearanceCount, "ручной выбор не увеличивает счётчик")

	state, err := st.RotationState(ctx)
	require.NoError(t, err)
	require.Len(t, state.History, 1)
	require.Equal(t, models.RotationManual, state.History[0].Kind)
}

func TestHistory_Capped(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := memory.New()
	e := New(st, 3)
	require.NoError(t, e.Sync(ctx, []models.PromotionEntry{promo("A", 1), promo("B", 1)}))

	for i := 0; i < 5; i++ {
		_, err := e.Advance(ctx, t0.Add(time.Duration(i)*time.Minute), "")
		require.NoError(t, err)
	}

	hist, err := e.History(ctx)
	require.NoError(t, err)
	require.Len(t, hist, 3)
	// Новые первыми: последний переход - пятый.
	require.True(t, hist[0].At.Equal(t0.Add(4*time.Minute)))
}

func TestAdvance_ConcurrentCallsNeverDoubleSelect(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newEngineWith(t, promo("A", 1), promo("B", 1), promo("C", 1))

	const n = 30
	errs := make(chan error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := e.Advance(ctx, t0.Add(time.Duration(i)*time.Second), "")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	stats, err := e.Stats(ctx)
	require.NoError(t, err)

	total := 0
	for _, c := range stats.Appearances {
		total += c
	}
	require.Equal(t, n, total)
	require.Equal(t, n, stats.TotalTransitions)
}

func TestStats(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newEngineWith(t, promo("A", 1), promo("B", 1))
	require.NoError(t, e.SetActive(ctx, "B", false))

	_, err := e.Advance(ctx, t0, "")
	require.NoError(t, err)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.TotalEntries)
	require.Equal(t, 1, stats.ActiveEntries)
	require.Equal(t, "A", stats.CurrentName)
	require.Equal(t, map[string]int{"A": 1, "B": 0}, stats.Appearances)
	require.NotNil(t, stats.LastTransition)
}

func TestSetActive_NotFound(t *testing.T) {
	t.Parallel()

	e, _ := newEngineWith(t, promo("A", 1))
	err := e.SetActive(context.Background(), "nope", false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSync_KeepsUsageFields(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	e, _ := newEngineWith(t, promo("A", 1))

	_, err := e.Advance(ctx, t0, "")
	require.NoError(t, err)

	updated := promo("A", 3)
	updated.Message = "new message"
	require.NoError(t, e.Sync(ctx, []models.PromotionEntry{updated}))

	cur, err := e.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, "new message", cur.Message)
	require.Equal(t, 3, cur.Priority)
	require.Equal(t, 1, cur.AppearanceCount)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		entry   models.PromotionEntry
		wantErr bool
	}{
		{"ok", models.PromotionEntry{Name: "a", Message: "m", Link: "https://x"}, false},
		{"ok without link", models.PromotionEntry{Name: "a", Message: "m"}, false},
		{"no name", models.PromotionEntry{Message: "m"}, true},
		{"no message", models.PromotionEntry{Name: "a"}, true},
		{"bad link", models.PromotionEntry{Name: "a", Message: "m", Link: "ftp://x"}, true},
		{"negative priority", models.PromotionEntry{Name: "a", Message: "m", Priority: -1}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tt.entry)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestSync_RejectsDuplicates(t *testing.T) {
	t.Parallel()

	e := New(memory.New(), 0)
	err := e.Sync(context.Background(), []models.PromotionEntry{promo("A", 1), promo("a", 2)})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestAdvance_StoreFailure(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := mocks.NewMockStorage(ctrl)
	st.EXPECT().UpdateRotation(gomock.Any(), gomock.Any()).Return(errors.New("tx aborted"))

	p, err := New(st, 0).Advance(context.Background(), t0, "")
	require.Nil(t, p)
	require.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestEligible_NullsFirstThenOldest(t *testing.T) {
	t.Parallel()

	older := t0.Add(-2 * time.Hour)
	newer := t0.Add(-time.Hour)

	entries := []models.PromotionEntry{
		{Name: "used-new", Active: true, Priority: 1, LastUsedAt: &newer},
		{Name: "inactive", Active: false, Priority: 9},
		{Name: "never", Active: true, Priority: 1},
		{Name: "used-old", Active: true, Priority: 1, LastUsedAt: &older},
	}

	got := Eligible(entries)
	names := make([]string, 0, len(got))
	for _, e := range got {
		names = append(names, e.Name)
	}
	require.Equal(t, []string{"never", "used-old", "used-new"}, names)
}
