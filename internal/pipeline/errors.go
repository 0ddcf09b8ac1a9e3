package pipeline

import (
	"errors"
	"fmt"

	"github.com/pribylovaa/go-news-digest/internal/storage"
)

var (
	// ErrNotConfigured - в Deps не хватает обязательной зависимости.
	ErrNotConfigured = errors.New("pipeline not configured")

	// ErrSourceUnavailable - источник не ответил или ответил мусором. Не фатально.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrEnrichmentFailed - обогащение одного элемента не удалось. Элемент выбрасывается.
	ErrEnrichmentFailed = errors.New("enrichment failed")
	// ErrAllEnrichmentFailed - не обогатился ни один элемент. Цикл завершается ошибкой.
	ErrAllEnrichmentFailed = errors.New("all enrichment failed")
	// ErrAssemblyFailed - сборка/сохранение дайджеста не удались. Состояние не меняется.
	ErrAssemblyFailed = errors.New("assembly failed")
	// ErrNoEligiblePromotion - нет слота для показа. Дайджест собирается без него.
	ErrNoEligiblePromotion = errors.New("no eligible promotion")
	// ErrStorageUnavailable - хранилище состояния недоступно.
	ErrStorageUnavailable = storage.ErrUnavailable
)

// StageError - ошибка цикла с указанием стадии, на которой он остановился.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
