package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/pribylovaa/go-news-digest/internal/archive"
	"github.com/pribylovaa/go-news-digest/internal/catalog"
	"github.com/pribylovaa/go-news-digest/internal/config"
	"github.com/pribylovaa/go-news-digest/internal/dedup"
	"github.com/pribylovaa/go-news-digest/internal/enrich"
	"github.com/pribylovaa/go-news-digest/internal/lock"
	"github.com/pribylovaa/go-news-digest/internal/metrics"
	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/pipeline"
	"github.com/pribylovaa/go-news-digest/internal/rotation"
	"github.com/pribylovaa/go-news-digest/internal/rss"
	"github.com/pribylovaa/go-news-digest/internal/service"
	"github.com/pribylovaa/go-news-digest/internal/storage"
	"github.com/pribylovaa/go-news-digest/internal/storage/memory"
	"github.com/pribylovaa/go-news-digest/internal/storage/minio"
	"github.com/pribylovaa/go-news-digest/internal/storage/mongo"
	"github.com/pribylovaa/go-news-digest/internal/storage/postgres"
	"github.com/pribylovaa/go-news-digest/internal/storage/sqlite"
	"github.com/pribylovaa/go-news-digest/pkg/redact"
)

// connectTimeout ограничивает подключение к каждой внешней зависимости на старте.
const connectTimeout = 10 * time.Second

// app - собранные зависимости процесса.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	store   storage.Storage
	svc     *service.Service
	metrics *metrics.Metrics
	sources []models.Source

	closers []func()
}

// pinger - хранилища, умеющие проверять соединение.
type pinger interface {
	Ping(ctx context.Context) error
}

// newApp подключает хранилища, синхронизирует каталог и собирает сервис.
// При ошибке уже открытые ресурсы закрываются.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger, reg prometheus.Registerer) (_ *app, err error) {
	a := &app{cfg: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.store, err = openStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store.Close)
	log.Info("storage_opened",
		slog.String("driver", cfg.Storage.Driver),
		slog.String("url", redact.URL(cfg.Storage.URL)),
	)

	sources := cfg.Fetcher.All()
	rot := rotation.New(a.store, cfg.Rotation.HistoryLimit)

	if cfg.Catalog != "" {
		cat, err := catalog.Load(cfg.Catalog)
		if err != nil {
			return nil, err
		}
		if err := rot.Sync(ctx, cat.Entries()); err != nil {
			return nil, err
		}
		sources = mergeSources(sources, cat.Sources)
		log.Info("catalog_loaded",
			slog.String("path", cfg.Catalog),
			slog.Int("sources", len(cat.Sources)),
			slog.Int("promotions", len(cat.Promotions)),
		)
	}

	dd := dedup.New(a.store)
	if err := dd.Load(ctx); err != nil {
		return nil, err
	}

	enricher, err := newEnricher(ctx, cfg)
	if err != nil {
		return nil, err
	}

	assembler, archiveIndex, err := a.newAssembler(ctx, cfg)
	if err != nil {
		return nil, err
	}

	locker, err := newLocker(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { _ = locker.Close() })
	if cfg.Redis.URL != "" {
		log.Info("cycle_lock", slog.String("backend", "redis"), slog.String("url", redact.URL(cfg.Redis.URL)))
	}

	if reg != nil {
		a.metrics = metrics.New(reg)
	}

	fetcher := rss.New(&http.Client{Timeout: cfg.Timeouts.Fetch}, rss.Options{
		DefaultMaxItems: cfg.Fetcher.DefaultMaxItems,
		FullText:        true,
	})

	deps := pipeline.Deps{
		Fetcher:   fetcher,
		Enricher:  enricher,
		Assembler: assembler,
		Dedup:     dd,
		Rotation:  rot,
		Runs:      a.store,
	}
	if a.metrics != nil {
		deps.Recorder = a.metrics
	}

	pl, err := pipeline.New(deps, pipeline.Options{
		Title:             cfg.Digest.Title,
		FetchConcurrency:  cfg.Pipeline.FetchConcurrency,
		EnrichConcurrency: cfg.Pipeline.EnrichConcurrency,
		DefaultMaxItems:   cfg.Fetcher.DefaultMaxItems,
		FetchTimeout:      cfg.Timeouts.Fetch,
		EnrichTimeout:     cfg.Timeouts.Enrich,
		SubjectTimeout:    cfg.Timeouts.Subject,
		AssembleTimeout:   cfg.Timeouts.Assemble,
	})
	if err != nil {
		return nil, err
	}

	svcDeps := service.Deps{
		Cycles:   pl,
		Dedup:    dd,
		Rotation: rot,
		Runs:     a.store,
		Locker:   locker,
	}
	if a.metrics != nil {
		svcDeps.Stats = a.metrics
	}
	if archiveIndex != nil {
		svcDeps.Archive = archiveIndex
	}

	a.sources = sources
	a.svc = service.New(svcDeps, service.Options{
		Sources:      sources,
		Interval:     cfg.Schedule.Interval,
		Retention:    cfg.Dedup.Retention,
		CycleTimeout: cfg.Timeouts.Cycle,
	})

	log.Info("service_initialized",
		slog.Int("sources", len(sources)),
		slog.Int("known", dd.KnownCount()),
	)

	return a, nil
}

// Ready - проверка готовности для /healthz.
func (a *app) Ready(ctx context.Context) error {
	if p, ok := a.store.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close освобождает ресурсы в обратном порядке.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.New(ctx, cfg.URL)
	case config.DriverSQLite:
		return sqlite.New(ctx, cfg.URL)
	case config.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// newEnricher - Gemini при заданном ключе, иначе обогащение без модели.
func newEnricher(ctx context.Context, cfg *config.Config) (pipeline.Enricher, error) {
	if cfg.Gemini.APIKey == "" {
		return enrich.Passthrough{}, nil
	}

	gen, err := enrich.NewGeminiClient(ctx, cfg.Gemini.APIKey)
	if err != nil {
		return nil, err
	}

	return enrich.New(gen, enrich.Options{Model: cfg.Gemini.Model}), nil
}

// newAssembler - артефакты в MinIO при заданном endpoint, иначе в локальный каталог.
// Индекс архива в MongoDB подключается, если задан его URL.
func (a *app) newAssembler(ctx context.Context, cfg *config.Config) (*archive.Assembler, *mongo.Index, error) {
	var objects archive.ObjectStore

	if cfg.S3.Endpoint != "" {
		cctx, cancel := context.WithTimeout(ctx, connectTimeout)
		store, err := minio.New(cctx, cfg.S3)
		cancel()
		if err != nil {
			return nil, nil, err
		}
		objects = store
		a.log.Info("archive_objects", slog.String("backend", "s3"), slog.String("bucket", cfg.S3.Bucket))
	} else {
		store, err := archive.NewDirStore(cfg.S3.Dir)
		if err != nil {
			return nil, nil, err
		}
		objects = store
		a.log.Info("archive_objects", slog.String("backend", "dir"), slog.String("dir", cfg.S3.Dir))
	}

	if cfg.Mongo.URL == "" {
		return archive.New(objects, nil), nil, nil
	}

	cctx, cancel := context.WithTimeout(ctx, connectTimeout)
	index, err := mongo.New(cctx, cfg.Mongo.URL)
	cancel()
	if err != nil {
		return nil, nil, err
	}
	a.log.Info("archive_index", slog.String("backend", "mongo"), slog.String("url", redact.URL(cfg.Mongo.URL)))
	a.closers = append(a.closers, func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := index.Close(cctx); err != nil {
			a.log.Warn("mongo_close_failed", slog.String("err", err.Error()))
		}
	})

	return archive.New(objects, index), index, nil
}

func newLocker(ctx context.Context, cfg config.RedisConfig) (lock.Locker, error) {
	if cfg.URL == "" {
		return lock.Noop{}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	return lock.NewRedisLocker(ctx, cfg.URL, cfg.LockKey, cfg.LockTTL)
}

// mergeSources дополняет источники конфига источниками каталога; URL уникальны.
func mergeSources(base, extra []models.Source) []models.Source {
	out := make([]models.Source, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, cap(out))

	for _, list := range [][]models.Source{base, extra} {
		for _, s := range list {
			if _, ok := seen[s.URL]; ok {
				continue
			}
			seen[s.URL] = struct{}{}
			out = append(out, s)
		}
	}

	return out
}

// errNoSources - нечего опрашивать.
var errNoSources = errors.New("no feed sources configured")
