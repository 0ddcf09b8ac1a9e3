// service содержит прикладной слой digest-service: запуск циклов
// (по запросу и по расписанию) и административные операции.
package service

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/pribylovaa/go-news-digest/internal/dedup"
	"github.com/pribylovaa/go-news-digest/internal/lock"
	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/pipeline"
	"github.com/pribylovaa/go-news-digest/internal/rotation"
	"github.com/pribylovaa/go-news-digest/internal/storage"
)

var (
	// ErrCycleInProgress - цикл уже идёт в этом процессе или в другой реплике.
	// Транспорт: 409 Conflict.
	ErrCycleInProgress = errors.New("cycle already in progress")
	// ErrNotFound - сущность отсутствует.
	// Транспорт: 404 Not Found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument - некорректные входные аргументы.
	// Транспорт: 400 Bad Request.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotConfigured - запрошенная возможность не подключена в конфигурации.
	// Транспорт: 501 Not Implemented.
	ErrNotConfigured = errors.New("not configured")
	// ErrUnavailable - хранилище или блокировка не ответили.
	// Транспорт: 503 Service Unavailable.
	ErrUnavailable = errors.New("unavailable")
)

// CycleRunner - оркестратор цикла (pipeline.Pipeline).
type CycleRunner interface {
	RunCycle(ctx context.Context, sources []models.Source) pipeline.CycleResult
}

// SizeRecorder принимает размеры индексов дедупликации (internal/metrics).
type SizeRecorder interface {
	DedupSize(keys, fingerprints int)
	Evicted(n int)
}

// ArchiveLister - каталог сохранённых дайджестов (MongoDB).
type ArchiveLister interface {
	Recent(ctx context.Context, limit int) ([]models.ArchiveEntry, error)
}

// Deps - зависимости сервиса. Locker, Stats и Archive необязательны.
type Deps struct {
	Cycles   CycleRunner
	Dedup    *dedup.Engine
	Rotation *rotation.Engine
	Runs     storage.RunStorage

	Locker  lock.Locker
	Stats   SizeRecorder
	Archive ArchiveLister
	Clock   func() time.Time
}

// Options - параметры расписания.
type Options struct {
	Sources []models.Source
	// Interval - период StartCycles.
	Interval time.Duration
	// Retention - возраст, после которого ключи вытесняются (после каждого планового цикла).
	Retention time.Duration
	// CycleTimeout ограничивает один цикл целиком; 0 - без ограничения.
	CycleTimeout time.Duration
}

// Service - прикладной слой поверх движков и оркестратора.
type Service struct {
	cycles   CycleRunner
	dedup    *dedup.Engine
	rotation *rotation.Engine
	runs     storage.RunStorage
	locker   lock.Locker
	stats    SizeRecorder
	archive  ArchiveLister
	clock    func() time.Time
	opts     Options

	running atomic.Bool
	last    atomic.Pointer[pipeline.CycleResult]
}

// New создает новый экземпляр Service.
func New(deps Deps, opts Options) *Service {
	if deps.Locker == nil {
		deps.Locker = lock.Noop{}
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}

	return &Service{
		cycles:   deps.Cycles,
		dedup:    deps.Dedup,
		rotation: deps.Rotation,
		runs:     deps.Runs,
		locker:   deps.Locker,
		stats:    deps.Stats,
		archive:  deps.Archive,
		clock:    deps.Clock,
		opts:     opts,
	}
}

// LastResult - результат последнего завершённого цикла (nil, если циклов не было).
func (s *Service) LastResult() *pipeline.CycleResult {
	return s.last.Load()
}

func (s *Service) reportSize() {
	if s.stats == nil || s.dedup == nil {
		return
	}

	s.stats.DedupSize(s.dedup.KnownCount(), s.dedup.FingerprintCount())
}
