package pipeline

import (
	"context"
	"time"

	"github.com/pribylovaa/go-news-digest/internal/models"
)

// Fetcher загружает элементы одного источника.
type Fetcher interface {
	Fetch(ctx context.Context, src models.Source) ([]models.RawItem, error)
}

// Enricher обогащает элемент и генерирует тему письма.
type Enricher interface {
	Enrich(ctx context.Context, item models.RawItem) (models.EnrichedItem, error)
	Subject(ctx context.Context, title string, items []models.EnrichedItem) (string, error)
}

// Assembler рендерит и сохраняет дайджест, возвращая ссылку на артефакт.
type Assembler interface {
	AssembleAndPersist(ctx context.Context, digest models.Digest) (models.DigestHandle, error)
}

// Deduper - часть dedup.Engine, нужная циклу.
type Deduper interface {
	FilterNew(items []models.Item) []models.Item
	Admit(ctx context.Context, items []models.Item, now time.Time) (int, error)
}

// Rotator - часть rotation.Engine, нужная циклу.
type Rotator interface {
	Current(ctx context.Context) (*models.PromotionEntry, error)
	Advance(ctx context.Context, now time.Time, digestID string) (*models.PromotionEntry, error)
}

// RunRecorder сохраняет запись об успешном цикле.
type RunRecorder interface {
	SaveRun(ctx context.Context, run models.DigestRun) error
}

// Recorder принимает метрики цикла.
type Recorder interface {
	CycleFinished(kind ResultKind, stage Stage, d time.Duration)
	SourceFailed(source string)
	ItemsFetched(n int)
	ItemsNew(n int)
	EnrichFailed(n int)
	ItemsAdmitted(n int)
	RotationAdvanced(name string)
}

type noopRecorder struct{}

func (noopRecorder) CycleFinished(ResultKind, Stage, time.Duration) {}
func (noopRecorder) SourceFailed(string)                            {}
func (noopRecorder) ItemsFetched(int)                               {}
func (noopRecorder) ItemsNew(int)                                   {}
func (noopRecorder) EnrichFailed(int)                               {}
func (noopRecorder) ItemsAdmitted(int)                              {}
func (noopRecorder) RotationAdvanced(string)                        {}
