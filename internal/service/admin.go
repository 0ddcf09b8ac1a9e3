package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pribylovaa/go-news-digest/internal/dedup"
	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/rotation"
	"github.com/pribylovaa/go-news-digest/internal/storage"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// DedupStats - размеры индексов дедупликации.
type DedupStats struct {
	Keys         int `json:"keys"`
	Fingerprints int `json:"fingerprints"`
}

// KnownCount - число различных ключей идентичности.
func (s *Service) KnownCount() int {
	return s.dedup.KnownCount()
}

// DedupStats возвращает размеры обоих индексов.
func (s *Service) DedupStats() DedupStats {
	return DedupStats{
		Keys:         s.dedup.KnownCount(),
		Fingerprints: s.dedup.FingerprintCount(),
	}
}

// EvictOlderThan вытесняет ключи старше age. Отпечатки сохраняются.
func (s *Service) EvictOlderThan(ctx context.Context, age time.Duration) (int, error) {
	const op = "service.EvictOlderThan"

	n, err := s.dedup.EvictOlderThan(ctx, age, s.clock())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, mapErr(err))
	}

	if s.stats != nil {
		s.stats.Evicted(n)
	}
	s.reportSize()

	return n, nil
}

// ActivePromotions - активные слоты в порядке выбора.
func (s *Service) ActivePromotions(ctx context.Context) ([]models.PromotionEntry, error) {
	const op = "service.ActivePromotions"

	out, err := s.rotation.Active(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}

	return out, nil
}

// CurrentPromotion - слот для следующего дайджеста; nil, если показывать нечего.
func (s *Service) CurrentPromotion(ctx context.Context) (*models.PromotionEntry, error) {
	const op = "service.CurrentPromotion"

	cur, err := s.rotation.Current(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}

	return cur, nil
}

// ForceAdvance продвигает ротацию вне цикла. nil - активных слотов нет.
func (s *Service) ForceAdvance(ctx context.Context) (*models.PromotionEntry, error) {
	const op = "service.ForceAdvance"

	next, err := s.rotation.Advance(ctx, s.clock(), "")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}

	return next, nil
}

// ForceSelect ставит курсор на слот name без учёта регистра.
// Если такого слота нет - ErrNotFound.
func (s *Service) ForceSelect(ctx context.Context, name string) error {
	const op = "service.ForceSelect"

	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s: empty name: %w", op, ErrInvalidArgument)
	}

	ok, err := s.rotation.SetCurrent(ctx, name, s.clock())
	if err != nil {
		return fmt.Errorf("%s: %w", op, mapErr(err))
	}
	if !ok {
		return fmt.Errorf("%s: promotion %q: %w", op, name, ErrNotFound)
	}

	return nil
}

// SetPromotionActive включает или выключает слот.
func (s *Service) SetPromotionActive(ctx context.Context, name string, active bool) error {
	const op = "service.SetPromotionActive"

	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%s: empty name: %w", op, ErrInvalidArgument)
	}

	if err := s.rotation.SetActive(ctx, name, active); err != nil {
		return fmt.Errorf("%s: %w", op, mapErr(err))
	}

	return nil
}

// RotationStats - сводка по ротации.
func (s *Service) RotationStats(ctx context.Context) (*models.RotationStats, error) {
	const op = "service.RotationStats"

	st, err := s.rotation.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}

	return st, nil
}

// RotationHistory - последние limit переходов, новые первыми.
func (s *Service) RotationHistory(ctx context.Context, limit int) ([]models.RotationRecord, error) {
	const op = "service.RotationHistory"

	history, err := s.rotation.History(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapErr(err))
	}

	limit = clampLimit(limit)
	if len(history) > limit {
		history = history[:limit]
	}

	return history, nil
}

// RecentRuns - последние limit успешных циклов, новые первыми.
func (s *Service) RecentRuns(ctx context.Context, limit int) ([]models.DigestRun, error) {
	const op = "service.RecentRuns"

	runs, err := s.runs.RecentRuns(ctx, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}

	return runs, nil
}

// RecentArchive - последние записи каталога архива.
// Без подключённого каталога - ErrNotConfigured.
func (s *Service) RecentArchive(ctx context.Context, limit int) ([]models.ArchiveEntry, error) {
	const op = "service.RecentArchive"

	if s.archive == nil {
		return nil, fmt.Errorf("%s: archive index: %w", op, ErrNotConfigured)
	}

	out, err := s.archive.Recent(ctx, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}

	return out, nil
}

// clampLimit: <= 0 -> значение по умолчанию, сверху - maxListLimit.
func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}

// mapErr переводит ошибки движков в ошибки сервиса, сохраняя цепочку.
func mapErr(err error) error {
	switch {
	case errors.Is(err, rotation.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, rotation.ErrInvalidArgument), errors.Is(err, dedup.ErrInvalidArgument):
		return fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	case errors.Is(err, storage.ErrUnavailable):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return err
	}
}
