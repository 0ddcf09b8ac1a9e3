// pipeline проводит один цикл: загрузка -> фильтрация -> обогащение ->
// сборка -> фиксация допусков -> продвижение ротации -> запись о цикле.
//
// Состояние дедупликации и ротации меняется только после успешной сборки
// дайджеста и строго в порядке "сначала допуски, потом ротация".
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pribylovaa/go-news-digest/internal/dedup"
	"github.com/pribylovaa/go-news-digest/internal/fingerprint"
	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/pkg/log"
)

const (
	defaultConcurrency = 6
	defaultMaxItems    = 5
	defaultTitle       = "Digest"
)

// Options - параметры цикла.
type Options struct {
	// Title - название рассылки; используется в запасной теме письма.
	Title             string
	FetchConcurrency  int
	EnrichConcurrency int
	// DefaultMaxItems применяется к источникам без max_items.
	DefaultMaxItems int

	FetchTimeout    time.Duration
	EnrichTimeout   time.Duration
	SubjectTimeout  time.Duration
	AssembleTimeout time.Duration
}

// Deps - зависимости цикла.
type Deps struct {
	Fetcher   Fetcher
	Enricher  Enricher
	Assembler Assembler
	Dedup     Deduper
	Rotation  Rotator
	Runs      RunRecorder

	// Необязательные.
	Recorder Recorder
	Hook     StageHook
	Clock    func() time.Time
	NewID    func() string
}

// Pipeline - оркестратор цикла. Сам по себе не защищён от параллельных
// вызовов RunCycle: это обязанность вызывающего (см. service).
type Pipeline struct {
	deps Deps
	opts Options
}

// New проверяет зависимости и подставляет значения по умолчанию.
func New(deps Deps, opts Options) (*Pipeline, error) {
	if err := validateDeps(deps); err != nil {
		return nil, err
	}

	if deps.Recorder == nil {
		deps.Recorder = noopRecorder{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}

	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = defaultConcurrency
	}
	if opts.EnrichConcurrency <= 0 {
		opts.EnrichConcurrency = defaultConcurrency
	}
	if opts.DefaultMaxItems <= 0 {
		opts.DefaultMaxItems = defaultMaxItems
	}
	if strings.TrimSpace(opts.Title) == "" {
		opts.Title = defaultTitle
	}

	return &Pipeline{deps: deps, opts: opts}, nil
}

func validateDeps(d Deps) error {
	var missing []string

	if d.Fetcher == nil {
		missing = append(missing, "Fetcher")
	}
	if d.Enricher == nil {
		missing = append(missing, "Enricher")
	}
	if d.Assembler == nil {
		missing = append(missing, "Assembler")
	}
	if d.Dedup == nil {
		missing = append(missing, "Dedup")
	}
	if d.Rotation == nil {
		missing = append(missing, "Rotation")
	}
	if d.Runs == nil {
		missing = append(missing, "Runs")
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrNotConfigured, strings.Join(missing, ", "))
	}

	return nil
}

// cycle - рабочее состояние одного прохода.
type cycle struct {
	id      string
	now     time.Time
	sources []models.Source

	raw       []models.RawItem
	items     []models.Item
	enriched  []models.EnrichedItem
	promotion *models.PromotionEntry
	subject   string
	handle    models.DigestHandle
	advanced  *models.PromotionEntry

	noNewContent bool
	counters     Counters
}

type stageFunc func(ctx context.Context, c *cycle) (Stage, error)

func (p *Pipeline) stage(s Stage) stageFunc {
	switch s {
	case StageFetching:
		return p.fetch
	case StageFiltering:
		return p.filter
	case StageEnriching:
		return p.enrich
	case StageAssembling:
		return p.assemble
	case StageCommitting:
		return p.commit
	case StageRotating:
		return p.rotate
	case StageRecording:
		return p.record
	default:
		return nil
	}
}

// RunCycle выполняет один цикл и всегда возвращает явный результат.
//
// Отмена ctx учитывается только на стадиях до COMMITTING. Начиная с COMMITTING
// цикл доводится до конца (или до явной ошибки) с контекстом без отмены.
func (p *Pipeline) RunCycle(ctx context.Context, sources []models.Source) CycleResult {
	const op = "pipeline.RunCycle"

	start := time.Now()
	c := &cycle{
		id:      p.deps.NewID(),
		now:     p.deps.Clock(),
		sources: sources,
	}

	ctx = log.With(ctx, slog.String("cycle_id", c.id))
	lg := log.From(ctx)
	lg.Info("cycle_start",
		slog.String("op", op),
		slog.Int("sources", len(sources)),
	)

	stage := StageFetching
	for stage != StageDone {
		if stage.Cancellable() {
			if err := ctx.Err(); err != nil {
				return p.finish(ctx, c, start, stage, err)
			}
		} else {
			ctx = context.WithoutCancel(ctx)
		}

		lg.Debug("cycle_stage", slog.String("op", op), slog.String("stage", stage.String()))

		next, err := p.stage(stage)(ctx, c)
		if err != nil {
			return p.finish(ctx, c, start, stage, err)
		}

		if p.deps.Hook != nil {
			if err := p.deps.Hook(stage, next); err != nil {
				return p.finish(ctx, c, start, next, err)
			}
		}

		stage = next
	}

	return p.finish(ctx, c, start, StageDone, nil)
}

func (p *Pipeline) finish(ctx context.Context, c *cycle, start time.Time, stage Stage, err error) CycleResult {
	const op = "pipeline.finish"

	res := CycleResult{
		CycleID:     c.id,
		Stage:       stage,
		Handle:      c.handle,
		SubjectLine: c.subject,
		Counters:    c.counters,
		Duration:    time.Since(start),
	}
	if c.promotion != nil {
		res.Promotion = c.promotion.Name
	}
	if c.advanced != nil {
		res.NextPromotion = c.advanced.Name
	}

	lg := log.From(ctx)

	switch {
	case err != nil:
		res.Kind = ResultFailed
		res.Err = &StageError{Stage: stage, Err: err}
		lg.Error("cycle_failed",
			slog.String("op", op),
			slog.String("stage", stage.String()),
			slog.String("err", err.Error()),
		)
	case c.noNewContent:
		res.Kind = ResultNoNewContent
		lg.Info("cycle_no_new_content",
			slog.String("op", op),
			slog.Int("fetched", c.counters.Fetched),
			slog.Int("sources_failed", c.counters.SourcesFailed),
		)
	default:
		res.Kind = ResultDigest
		lg.Info("cycle_done",
			slog.String("op", op),
			slog.Int("included", c.counters.Included),
			slog.Int("admitted", c.counters.Admitted),
			slog.String("promotion", res.Promotion),
			slog.String("location", c.handle.Location),
		)
	}

	p.deps.Recorder.CycleFinished(res.Kind, stage, res.Duration)

	return res
}

// fetch опрашивает источники с ограниченным параллелизмом.
// Упавший источник учитывается и пропускается.
func (p *Pipeline) fetch(ctx context.Context, c *cycle) (Stage, error) {
	const op = "pipeline.fetch"

	lg := log.From(ctx)

	results := make([][]models.RawItem, len(c.sources))
	errs := make([]error, len(c.sources))

	var g errgroup.Group
	g.SetLimit(p.opts.FetchConcurrency)

	for i, src := range c.sources {
		g.Go(func() error {
			fctx, cancel := withTimeout(ctx, p.opts.FetchTimeout)
			defer cancel()

			items, err := p.deps.Fetcher.Fetch(fctx, src)
			results[i], errs[i] = items, err
			return nil
		})
	}
	_ = g.Wait()

	for i, src := range c.sources {
		if errs[i] != nil {
			c.counters.SourcesFailed++
			p.deps.Recorder.SourceFailed(src.Label())
			lg.Warn("source_unavailable",
				slog.String("op", op),
				slog.String("source", src.Label()),
				slog.String("err", fmt.Errorf("%w: %w", ErrSourceUnavailable, errs[i]).Error()),
			)
			continue
		}
		c.counters.SourcesOK++

		limit := src.MaxItems
		if limit <= 0 {
			limit = p.opts.DefaultMaxItems
		}

		items := results[i]
		if len(items) > limit {
			items = items[:limit]
		}

		for j, it := range items {
			if it.Source == "" {
				it.Source = src.Label()
			}
			it.SourcePriority = src.Priority
			it.SourceOrder = i
			it.FetchOrder = j
			c.raw = append(c.raw, it)
		}
	}

	sort.SliceStable(c.raw, func(i, j int) bool {
		a, b := c.raw[i], c.raw[j]
		if a.SourcePriority != b.SourcePriority {
			return a.SourcePriority > b.SourcePriority
		}
		if a.SourceOrder != b.SourceOrder {
			return a.SourceOrder < b.SourceOrder
		}
		return a.FetchOrder < b.FetchOrder
	})

	c.counters.Fetched = len(c.raw)
	p.deps.Recorder.ItemsFetched(len(c.raw))

	lg.Info("fetch_done",
		slog.String("op", op),
		slog.Int("items", len(c.raw)),
		slog.Int("sources_ok", c.counters.SourcesOK),
		slog.Int("sources_failed", c.counters.SourcesFailed),
	)

	return StageFiltering, nil
}

// filter вычисляет идентичность и оставляет только новые элементы.
func (p *Pipeline) filter(ctx context.Context, c *cycle) (Stage, error) {
	const op = "pipeline.filter"

	candidates := make([]models.Item, 0, len(c.raw))
	for _, raw := range c.raw {
		key := fingerprint.NormalizeIdentity(raw.Link)
		if key == "" {
			continue
		}

		candidates = append(candidates, models.Item{
			IdentityKey: key,
			Fingerprint: fingerprint.Content(raw.Title, raw.Body),
			Raw:         raw,
		})
	}

	c.items = dedup.Unique(p.deps.Dedup.FilterNew(candidates))
	c.counters.New = len(c.items)
	p.deps.Recorder.ItemsNew(len(c.items))

	log.From(ctx).Info("filter_done",
		slog.String("op", op),
		slog.Int("candidates", len(candidates)),
		slog.Int("new", len(c.items)),
	)

	if len(c.items) == 0 {
		c.noNewContent = true
		return StageDone, nil
	}

	return StageEnriching, nil
}

// enrich обогащает элементы с ограниченным параллелизмом и сохраняет
// исходный порядок. Упавший элемент выбрасывается.
func (p *Pipeline) enrich(ctx context.Context, c *cycle) (Stage, error) {
	const op = "pipeline.enrich"

	lg := log.From(ctx)

	results := make([]models.EnrichedItem, len(c.items))
	errs := make([]error, len(c.items))

	var g errgroup.Group
	g.SetLimit(p.opts.EnrichConcurrency)

	for i, it := range c.items {
		g.Go(func() error {
			ectx, cancel := withTimeout(ctx, p.opts.EnrichTimeout)
			defer cancel()

			e, err := p.deps.Enricher.Enrich(ectx, it.Raw)
			if err == nil {
				e.Item = it
			}
			results[i], errs[i] = e, err
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return StageEnriching, err
	}

	for i, it := range c.items {
		if errs[i] != nil {
			c.counters.EnrichFailed++
			lg.Warn("enrich_failed",
				slog.String("op", op),
				slog.String("key", it.IdentityKey),
				slog.String("err", fmt.Errorf("%w: %w", ErrEnrichmentFailed, errs[i]).Error()),
			)
			continue
		}
		c.enriched = append(c.enriched, results[i])
	}
	p.deps.Recorder.EnrichFailed(c.counters.EnrichFailed)

	if len(c.enriched) == 0 {
		return StageEnriching, fmt.Errorf("%w: %d items", ErrAllEnrichmentFailed, len(c.items))
	}

	c.counters.Included = len(c.enriched)

	lg.Info("enrich_done",
		slog.String("op", op),
		slog.Int("enriched", len(c.enriched)),
		slog.Int("failed", c.counters.EnrichFailed),
	)

	return StageAssembling, nil
}

// assemble читает текущий промо-слот (без продвижения), формирует тему
// и отдаёт дайджест Assembler.
func (p *Pipeline) assemble(ctx context.Context, c *cycle) (Stage, error) {
	const op = "pipeline.assemble"

	lg := log.From(ctx)

	promo, err := p.deps.Rotation.Current(ctx)
	switch {
	case err != nil:
		lg.Warn("no_eligible_promotion",
			slog.String("op", op),
			slog.String("err", fmt.Errorf("%w: %w", ErrNoEligiblePromotion, err).Error()),
		)
	case promo == nil:
		lg.Info("no_eligible_promotion", slog.String("op", op))
	default:
		c.promotion = promo
	}

	c.subject = p.subject(ctx, c)

	digest := models.Digest{
		ID:          c.id,
		Title:       p.opts.Title,
		SubjectLine: c.subject,
		GeneratedAt: c.now,
		Items:       c.enriched,
		Promotion:   c.promotion.Snapshot(),
	}

	actx, cancel := withTimeout(ctx, p.opts.AssembleTimeout)
	defer cancel()

	handle, err := p.deps.Assembler.AssembleAndPersist(actx, digest)
	if err != nil {
		return StageAssembling, fmt.Errorf("%w: %w", ErrAssemblyFailed, err)
	}
	c.handle = handle

	lg.Info("assemble_done",
		slog.String("op", op),
		slog.String("location", handle.Location),
		slog.String("subject", c.subject),
	)

	return StageCommitting, nil
}

// subject генерирует тему письма; при ошибке - "<title> - <Month DD, YYYY>".
func (p *Pipeline) subject(ctx context.Context, c *cycle) string {
	const op = "pipeline.subject"

	sctx, cancel := withTimeout(ctx, p.opts.SubjectTimeout)
	defer cancel()

	s, err := p.deps.Enricher.Subject(sctx, p.opts.Title, c.enriched)
	if err == nil && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}

	if err != nil {
		log.From(ctx).Warn("subject_fallback",
			slog.String("op", op),
			slog.String("err", err.Error()),
		)
	}

	return FallbackSubject(p.opts.Title, c.now)
}

// FallbackSubject - тема письма, когда генерация недоступна.
func FallbackSubject(title string, at time.Time) string {
	return fmt.Sprintf("%s - %s", title, at.Format("January 02, 2006"))
}

// commit допускает ровно те элементы, что вошли в дайджест.
func (p *Pipeline) commit(ctx context.Context, c *cycle) (Stage, error) {
	const op = "pipeline.commit"

	items := make([]models.Item, 0, len(c.enriched))
	for _, e := range c.enriched {
		items = append(items, e.Item)
	}

	n, err := p.deps.Dedup.Admit(ctx, items, c.now)
	if err != nil {
		return StageCommitting, err
	}
	c.counters.Admitted = n
	p.deps.Recorder.ItemsAdmitted(n)

	log.From(ctx).Info("commit_done",
		slog.String("op", op),
		slog.Int("admitted", n),
	)

	return StageRotating, nil
}

// rotate продвигает ротацию после фиксации допусков.
func (p *Pipeline) rotate(ctx context.Context, c *cycle) (Stage, error) {
	next, err := p.deps.Rotation.Advance(ctx, c.now, c.id)
	if err != nil {
		return StageRotating, err
	}

	c.advanced = next
	if next != nil {
		p.deps.Recorder.RotationAdvanced(next.Name)
	}

	return StageRecording, nil
}

// record сохраняет запись о цикле одной вставкой.
func (p *Pipeline) record(ctx context.Context, c *cycle) (Stage, error) {
	keys := make([]string, 0, len(c.enriched))
	for _, e := range c.enriched {
		keys = append(keys, e.Item.IdentityKey)
	}

	run := models.DigestRun{
		ID:          c.id,
		GeneratedAt: c.now,
		SubjectLine: c.subject,
		ItemKeys:    keys,
		Promotion:   c.promotion.Snapshot(),
		Handle:      c.handle,
	}

	if err := p.deps.Runs.SaveRun(ctx, run); err != nil {
		if errors.Is(err, ErrStorageUnavailable) {
			return StageRecording, err
		}
		return StageRecording, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	return StageDone, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, d)
}
