package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pribylovaa/go-news-digest/internal/dedup"
	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/rotation"
	"github.com/pribylovaa/go-news-digest/internal/storage/memory"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 2, 7, 30, 0, 0, time.UTC)

// stubFetcher отдаёт заранее заданные элементы по URL источника.
type stubFetcher struct {
	items map[string][]models.RawItem
	errs  map[string]error
	delay map[string]time.Duration
	// block - источник ждёт отмены контекста (для проверки таймаутов).
	block map[string]bool
}

func (f *stubFetcher) Fetch(ctx context.Context, src models.Source) ([]models.RawItem, error) {
	if f.block[src.URL] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if d := f.delay[src.URL]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.errs[src.URL]; err != nil {
		return nil, err
	}

	return append([]models.RawItem(nil), f.items[src.URL]...), nil
}

// stubEnricher падает на ссылках из fail и может вызвать hook перед работой.
type stubEnricher struct {
	mu         sync.Mutex
	fail       map[string]bool
	calls      int
	subject    string
	subjectErr error
	before     func()
}

func (e *stubEnricher) Enrich(ctx context.Context, raw models.RawItem) (models.EnrichedItem, error) {
	e.mu.Lock()
	e.calls++
	before := e.before
	e.mu.Unlock()

	if before != nil {
		before()
	}
	if err := ctx.Err(); err != nil {
		return models.EnrichedItem{}, err
	}
	if e.fail[raw.Link] {
		return models.EnrichedItem{}, fmt.Errorf("model refused %s", raw.Link)
	}

	return models.EnrichedItem{Summary: "summary: " + raw.Title}, nil
}

func (e *stubEnricher) Subject(context.Context, string, []models.EnrichedItem) (string, error) {
	return e.subject, e.subjectErr
}

// stubAssembler запоминает собранные дайджесты.
type stubAssembler struct {
	mu      sync.Mutex
	err     error
	digests []models.Digest
}

func (a *stubAssembler) AssembleAndPersist(_ context.Context, d models.Digest) (models.DigestHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.err != nil {
		return models.DigestHandle{}, a.err
	}
	a.digests = append(a.digests, d)

	return models.DigestHandle{ID: d.ID, Location: "mem://digests/" + d.ID}, nil
}

func (a *stubAssembler) last(t *testing.T) models.Digest {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	require.NotEmpty(t, a.digests)
	return a.digests[len(a.digests)-1]
}

// failingKnownStore - memory-хранилище, у которого не работает запись допусков.
type failingKnownStore struct {
	*memory.Storage
}

func (failingKnownStore) SaveKnownItems(context.Context, []models.KnownItemRecord) error {
	return errors.New("disk full")
}

type fixture struct {
	store     *memory.Storage
	dedup     *dedup.Engine
	rotation  *rotation.Engine
	fetcher   *stubFetcher
	enricher  *stubEnricher
	assembler *stubAssembler
	ids       atomic.Int64
}

func newFixture(t *testing.T, promos ...models.PromotionEntry) *fixture {
	t.Helper()

	st := memory.New()
	rot := rotation.New(st, 0)
	if len(promos) > 0 {
		require.NoError(t, rot.Sync(context.Background(), promos))
	}

	return &fixture{
		store:     st,
		dedup:     dedup.New(st),
		rotation:  rot,
		fetcher:   &stubFetcher{items: map[string][]models.RawItem{}, errs: map[string]error{}, delay: map[string]time.Duration{}, block: map[string]bool{}},
		enricher:  &stubEnricher{fail: map[string]bool{}, subject: "Generated subject"},
		assembler: &stubAssembler{},
	}
}

func (f *fixture) pipeline(t *testing.T, hook StageHook, opts Options) *Pipeline {
	t.Helper()

	p, err := New(Deps{
		Fetcher:   f.fetcher,
		Enricher:  f.enricher,
		Assembler: f.assembler,
		Dedup:     f.dedup,
		Rotation:  f.rotation,
		Runs:      f.store,
		Hook:      hook,
		Clock:     func() time.Time { return t0 },
		NewID:     func() string { return fmt.Sprintf("cycle-%d", f.ids.Add(1)) },
	}, opts)
	require.NoError(t, err)

	return p
}

func raw(n int) models.RawItem {
	return models.RawItem{
		Link:  fmt.Sprintf("https://example.com/story-%d?utm_source=rss", n),
		Title: fmt.Sprintf("Story %d", n),
		Body:  fmt.Sprintf("Body of story %d", n),
	}
}

func titles(d models.Digest) []string {
	out := make([]string, 0, len(d.Items))
	for _, it := range d.Items {
		out = append(out, it.Item.Raw.Title)
	}
	return out
}

func (f *fixture) rotationHistory(t *testing.T) []models.RotationRecord {
	t.Helper()
	st, err := f.store.RotationState(context.Background())
	require.NoError(t, err)
	return st.History
}

func (f *fixture) runs(t *testing.T) []models.DigestRun {
	t.Helper()
	runs, err := f.store.RecentRuns(context.Background(), 100)
	require.NoError(t, err)
	return runs
}

func TestRunCycle_HappyPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t, models.PromotionEntry{Name: "Acme", Message: "Try Acme", Active: true, Priority: 1})
	f.fetcher.items["low"] = []models.RawItem{raw(1), raw(2)}
	f.fetcher.items["high"] = []models.RawItem{raw(3)}

	sources := []models.Source{
		{Name: "low", URL: "low", Priority: 1},
		{Name: "high", URL: "high", Priority: 5},
	}

	res := f.pipeline(t, nil, Options{Title: "Planner Pulse"}).RunCycle(context.Background(), sources)

	require.Equal(t, ResultDigest, res.Kind, "err: %v", res.Err)
	require.NoError(t, res.Err)
	require.Equal(t, StageDone, res.Stage)
	require.Equal(t, "Generated subject", res.SubjectLine)
	require.Equal(t, "Acme", res.Promotion)
	require.Equal(t, "Acme", res.NextPromotion)
	require.Equal(t, Counters{SourcesOK: 2, Fetched: 3, New: 3, Included: 3, Admitted: 3}, res.Counters)

	d := f.assembler.last(t)
	require.Equal(t, []string{"Story 3", "Story 1", "Story 2"}, titles(d))
	require.NotNil(t, d.Promotion)
	require.Equal(t, "Acme", d.Promotion.Name)
	require.Equal(t, "summary: Story 3", d.Items[0].Summary)
	require.Equal(t, "high", d.Items[0].Item.Raw.Source)

	require.Equal(t, 3, f.dedup.KnownCount())
	require.Len(t, f.rotationHistory(t), 1)

	runs := f.runs(t)
	require.Len(t, runs, 1)
	require.Equal(t, res.CycleID, runs[0].ID)
	require.Equal(t, []string{
		"https://example.com/story-3",
		"https://example.com/story-1",
		"https://example.com/story-2",
	}, runs[0].ItemKeys)
	require.Equal(t, res.Handle, runs[0].Handle)
}

func TestRunCycle_SourceFailureTolerated(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.fetcher.items["ok"] = []models.RawItem{raw(1)}
	f.fetcher.errs["down"] = errors.New("503")

	res := f.pipeline(t, nil, Options{}).RunCycle(context.Background(), []models.Source{
		{URL: "down"}, {URL: "ok"},
	})

	require.Equal(t, ResultDigest, res.Kind)
	require.Equal(t, 1, res.Counters.SourcesFailed)
	require.Equal(t, 1, res.Counters.SourcesOK)
	require.Equal(t, 1, res.Counters.Included)
}

func TestRunCycle_SourceTimeoutIsSourceFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.fetcher.items["ok"] = []models.RawItem{raw(1)}
	f.fetcher.block["hang"] = true

	res := f.pipeline(t, nil, Options{FetchTimeout: 20 * time.Millisecond}).RunCycle(context.Background(), []models.Source{
		{URL: "hang"}, {URL: "ok"},
	})

	require.Equal(t, ResultDigest, res.Kind)
	require.Equal(t, 1, res.Counters.SourcesFailed)
}

func TestRunCycle_DeterministicOrderRegardlessOfCompletion(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.fetcher.items["slow"] = []models.RawItem{raw(1), raw(2)}
	f.fetcher.items["fast"] = []models.RawItem{raw(3), raw(4)}
	f.fetcher.delay["slow"] = 30 * time.Millisecond

	res := f.pipeline(t, nil, Options{}).RunCycle(context.Background(), []models.Source{
		{URL: "slow", Priority: 2}, {URL: "fast", Priority: 2},
	})

	require.Equal(t, ResultDigest, res.Kind)
	require.Equal(t, []string{"Story 1", "Story 2", "Story 3", "Story 4"}, titles(f.assembler.last(t)))
}

func TestRunCycle_MaxItemsPerSource(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.fetcher.items["a"] = []models.RawItem{raw(1), raw(2), raw(3)}
	f.fetcher.items["b"] = []models.RawItem{raw(4), raw(5), raw(6), raw(7)}

	res := f.pipeline(t, nil, Options{DefaultMaxItems: 3}).RunCycle(context.Background(), []models.Source{
		{URL: "a", MaxItems: 2}, {URL: "b"},
	})

	require.Equal(t, ResultDigest, res.Kind)
	require.Equal(t, []string{"Story 1", "Story 2", "Story 4", "Story 5", "Story 6"}, titles(f.assembler.last(t)))
}

func TestRunCycle_NoNewContent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, models.PromotionEntry{Name: "Acme", Message: "m", Active: true, Priority: 1})
	f.fetcher.items["a"] = []models.RawItem{raw(1)}
	p := f.pipeline(t, nil, Options{})
	sources := []models.Source{{URL: "a"}}

	first := p.RunCycle(context.Background(), sources)
	require.Equal(t, ResultDigest, first.Kind)

	second := p.RunCycle(context.Background(), sources)
	require.Equal(t, ResultNoNewContent, second.Kind)
	require.NoError(t, second.Err)
	require.True(t, second.OK())

	require.Len(t, f.runs(t), 1)
	require.Len(t, f.rotationHistory(t), 1)
}

func TestRunCycle_AllSourcesDown_NoNewContent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.fetcher.errs["a"] = errors.New("dns")

	res := f.pipeline(t, nil, Options{}).RunCycle(context.Background(), []models.Source{{URL: "a"}})
	require.Equal(t, ResultNoNewContent, res.Kind)
	require.Equal(t, 1, res.Counters.SourcesFailed)
}

func TestRunCycle_DuplicatesWithinBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	sameText := raw(9)
	sameText.Link = "https://mirror.example.org/copy"
	f.fetcher.items["a"] = []models.RawItem{raw(1), raw(9)}
	f.fetcher.items["b"] = []models.RawItem{raw(1), sameText}

	res := f.pipeline(t, nil, Options{}).RunCycle(context.Background(), []models.Source{{URL: "a"}, {URL: "b"}})

	require.Equal(t, ResultDigest, res.Kind)
	require.Equal(t, 2, res.Counters.New)
	require.Equal(t, []string{"Story 1", "Story 9"}, titles(f.assembler.last(t)))
}

func TestRunCycle_FailureIsolation_PreservesOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.fetcher.items["a"] = []models.RawItem{raw(1), raw(2), raw(3), raw(4), raw(5)}
	f.enricher.fail[raw(3).Link] = true

	res := f.pipeline(t, nil, Options{DefaultMaxItems: 10}).RunCycle(context.Background(), []models.Source{{URL: "a"}})

	require.Equal(t, ResultDigest, res.Kind)
	require.Equal(t, 1, res.Counters.EnrichFailed)
	require.Equal(t, 4, res.Counters.Admitted)
	require.Equal(t, []string{"Story 1", "Story 2", "Story 4", "Story 5"}, titles(f.assembler.last(t)))

	require.Equal(t, 4, f.dedup.KnownCount())
	require.False(t, f.dedup.IsKnown(models.Item{IdentityKey: "https://example.com/story-3"}))
	require.True(t, f.dedup.IsKnown(models.Item{IdentityKey: "https://example.com/story-5"}))
}

func TestRunCycle_TotalEnrichmentFailure_IsNoOp(t *testing.T) {
	t.Parallel()

	f := newFixture(t, models.PromotionEntry{Name: "Acme", Message: "m", Active: true, Priority: 1})
	f.fetcher.items["a"] = []models.RawItem{raw(1), raw(2)}
	f.enricher.fail[raw(1).Link] = true
	f.enricher.fail[raw(2).Link] = true

	res := f.pipeline(t, nil, Options{}).RunCycle(context.Background(), []models.Source{{URL: "a"}})

	require.Equal(t, ResultFailed, res.Kind)
	require.Equal(t, StageEnriching, res.Stage)
	require.ErrorIs(t, res.Err, ErrAllEnrichmentFailed)

	var se *StageError
	require.ErrorAs(t, res.Err, &se)
	require.Equal(t, StageEnriching, se.Stage)

	require.Zero(t, f.dedup.KnownCount())
	require.Empty(t, f.rotationHistory(t))
	require.Empty(t, f.runs(t))
	require.Empty(t, f.assembler.digests)
}

func TestRunCycle_CrashAfterAssembly_LeavesStateUntouched(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		models.PromotionEntry{Name: "A", Message: "m", Active: true, Priority: 1},
		models.PromotionEntry{Name: "B", Message: "m", Active: true, Priority: 1},
	)
	f.fetcher.items["a"] = []models.RawItem{raw(1), raw(2)}
	sources := []models.Source{{URL: "a"}}

	crash := errors.New("process killed")
	hook := func(from, to Stage) error {
		if from == StageAssembling && to == StageCommitting {
			return crash
		}
		return nil
	}

	res := f.pipeline(t, hook, Options{}).RunCycle(context.Background(), sources)
	require.Equal(t, ResultFailed, res.Kind)
	require.Equal(t, StageCommitting, res.Stage)
	require.ErrorIs(t, res.Err, crash)
	require.Len(t, f.assembler.digests, 1, "артефакт был собран")

	require.Zero(t, f.dedup.KnownCount())
	require.Empty(t, f.rotationHistory(t))
	require.Empty(t, f.runs(t))

	// Повторный запуск видит те же элементы как новые.
	again := f.pipeline(t, nil, Options{}).RunCycle(context.Background(), sources)
	require.Equal(t, ResultDigest, again.Kind)
	require.Equal(t, 2, again.Counters.New)
	require.Equal(t, 2, again.Counters.Admitted)
	require.Len(t, f.rotationHistory(t), 1)
}

func TestRunCycle_AssemblyFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, models.PromotionEntry{Name: "A", Message: "m", Active: true, Priority: 1})
	f.fetcher.items["a"] = []models.RawItem{raw(1)}
	f.assembler.err = errors.New("bucket missing")

	res := f.pipeline(t, nil, Options{}).RunCycle(context.Background(), []models.Source{{URL: "a"}})

	require.Equal(t, ResultFailed, res.Kind)
	require.Equal(t, StageAssembling, res.Stage)
	require.ErrorIs(t, res.Err, ErrAssemblyFailed)
	require.Zero(t, f.dedup.KnownCount())
	require.Empty(t, f.rotationHistory(t))
}

func TestRunCycle_CommitFailure_DoesNotRotate(t *testing.T) {
	t.Parallel()

	st := memory.New()
	rot := rotation.New(st, 0)
	require.NoError(t, rot.Sync(context.Background(), []models.PromotionEntry{{Name: "A", Message: "m", Active: true, Priority: 1}}))

	fetcher := &stubFetcher{items: map[string][]models.RawItem{"a": {raw(1)}}}
	p, err := New(Deps{
		Fetcher:   fetcher,
		Enricher:  &stubEnricher{},
		Assembler: &stubAssembler{},
		Dedup:     dedup.New(failingKnownStore{st}),
		Rotation:  rot,
		Runs:      st,
	}, Options{})
	require.NoError(t, err)

	res := p.RunCycle(context.Background(), []models.Source{{URL: "a"}})
	require.Equal(t, ResultFailed, res.Kind)
	require.Equal(t, StageCommitting, res.Stage)
	require.ErrorIs(t, res.Err, ErrStorageUnavailable)

	state, err := st.RotationState(context.Background())
	require.NoError(t, err)
	require.Empty(t, state.History)
}

func TestRunCycle_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.fetcher.items["a"] = []models.RawItem{raw(1)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := f.pipeline(t, nil, Options{}).RunCycle(ctx, []models.Source{{URL: "a"}})
	require.Equal(t, ResultFailed, res.Kind)
	require.Equal(t, StageFetching, res.Stage)
	require.ErrorIs(t, res.Err, context.Canceled)
	require.Zero(t, f.dedup.KnownCount())
}

func TestRunCycle_CancelledDuringEnrichment(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.fetcher.items["a"] = []models.RawItem{raw(1), raw(2)}

	ctx, cancel := context.WithCancel(context.Background())
	f.enricher.before = cancel

	res := f.pipeline(t, nil, Options{}).RunCycle(ctx, []models.Source{{URL: "a"}})
	require.Equal(t, ResultFailed, res.Kind)
	require.Equal(t, StageEnriching, res.Stage)
	require.ErrorIs(t, res.Err, context.Canceled)
	require.Zero(t, f.dedup.KnownCount())
	require.Empty(t, f.assembler.digests)
}

func TestRunCycle_CancellationIgnoredOnceCommitting(t *testing.T) {
	t.Parallel()

	f := newFixture(t, models.PromotionEntry{Name: "A", Message: "m", Active: true, Priority: 1})
	f.fetcher.items["a"] = []models.RawItem{raw(1)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hook := func(from, to Stage) error {
		if from == StageCommitting {
			cancel()
		}
		return nil
	}

	res := f.pipeline(t, hook, Options{}).RunCycle(ctx, []models.Source{{URL: "a"}})
	require.Equal(t, ResultDigest, res.Kind, "err: %v", res.Err)
	require.Len(t, f.rotationHistory(t), 1)
	require.Len(t, f.runs(t), 1)
}

func TestRunCycle_SubjectFallback(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.fetcher.items["a"] = []models.RawItem{raw(1)}
	f.enricher.subjectErr = errors.New("quota")

	res := f.pipeline(t, nil, Options{Title: "Planner Pulse"}).RunCycle(context.Background(), []models.Source{{URL: "a"}})

	require.Equal(t, ResultDigest, res.Kind)
	require.Equal(t, "Planner Pulse - June 02, 2025", res.SubjectLine)
}

func TestRunCycle_NoPromotion_NotFatal(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.fetcher.items["a"] = []models.RawItem{raw(1)}

	res := f.pipeline(t, nil, Options{}).RunCycle(context.Background(), []models.Source{{URL: "a"}})

	require.Equal(t, ResultDigest, res.Kind)
	require.Empty(t, res.Promotion)
	require.Nil(t, f.assembler.last(t).Promotion)
}

func TestRunCycle_EmbedsCurrentThenAdvances(t *testing.T) {
	t.Parallel()

	f := newFixture(t,
		models.PromotionEntry{Name: "A", Message: "m", Active: true, Priority: 1},
		models.PromotionEntry{Name: "B", Message: "m", Active: true, Priority: 1},
	)
	p := f.pipeline(t, nil, Options{})

	_, err := f.rotation.SetCurrent(context.Background(), "B", t0)
	require.NoError(t, err)

	f.fetcher.items["a"] = []models.RawItem{raw(1)}
	res := p.RunCycle(context.Background(), []models.Source{{URL: "a"}})

	require.Equal(t, ResultDigest, res.Kind)
	require.Equal(t, "B", f.assembler.last(t).Promotion.Name)
	require.Equal(t, "A", res.NextPromotion)
}

func TestNew_ValidatesDeps(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{}, Options{})
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestStage_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ASSEMBLING", StageAssembling.String())
	require.Equal(t, "UNKNOWN", Stage(42).String())
	require.True(t, StageEnriching.Cancellable())
	require.False(t, StageCommitting.Cancellable())
}
