// storage определяет контракты долговременного хранилища digest-service.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/pribylovaa/go-news-digest/internal/models"
)

//go:generate mockgen -destination=../../mocks/mock_storage.go -package=mocks github.com/pribylovaa/go-news-digest/internal/storage Storage

var (
	// ErrNotFound - сущность отсутствует в хранилище.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists - конфликт уникальности.
	ErrAlreadyExists = errors.New("already exists")
	// ErrUnavailable - хранилище не приняло чтение/запись.
	// Движки не угадывают состояние и прерывают операцию.
	ErrUnavailable = errors.New("storage unavailable")
)

// KnownItemStorage - записи об уже обработанных элементах.
//
// Ключи и отпечатки хранятся раздельно: удаление ключей по возрасту
// не затрагивает отпечатки.
type KnownItemStorage interface {
	// SaveKnownItems атомарно сохраняет пачку записей.
	// Уже известные ключи/отпечатки пропускаются без ошибки.
	SaveKnownItems(ctx context.Context, records []models.KnownItemRecord) error
	// KnownItems возвращает все хранимые записи ключей.
	KnownItems(ctx context.Context) ([]models.KnownItemRecord, error)
	// KnownFingerprints возвращает все хранимые непустые отпечатки.
	KnownFingerprints(ctx context.Context) ([]string, error)
	// DeleteKnownItemsBefore удаляет записи ключей с FirstSeenAt < cutoff
	// и возвращает их количество. Отпечатки сохраняются.
	DeleteKnownItemsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// RotationFunc получает текущий набор слотов и состояние курсора
// и возвращает изменение (nil - ничего не менять).
type RotationFunc func(entries []models.PromotionEntry, state models.RotationState) (*models.RotationUpdate, error)

// PromotionStorage - промо-слоты и состояние ротации.
type PromotionStorage interface {
	// UpsertPromotions создаёт/обновляет слоты по имени.
	// Поля использования (LastUsedAt, AppearanceCount) у существующих слотов не меняются.
	UpsertPromotions(ctx context.Context, entries []models.PromotionEntry) error
	// Promotions возвращает слоты, отсортированные по имени.
	Promotions(ctx context.Context, activeOnly bool) ([]models.PromotionEntry, error)
	// SetPromotionActive включает/выключает слот. Если слота нет - ErrNotFound.
	SetPromotionActive(ctx context.Context, name string, active bool) error
	// RotationState возвращает курсор и историю (от старых к новым).
	RotationState(ctx context.Context) (*models.RotationState, error)
	// UpdateRotation читает слоты и состояние, вызывает fn и применяет
	// возвращённое изменение в одной транзакции. Параллельные вызовы сериализуются.
	UpdateRotation(ctx context.Context, fn RotationFunc) error
}

// RunStorage - журнал успешных циклов.
type RunStorage interface {
	// SaveRun сохраняет запись одной вставкой.
	SaveRun(ctx context.Context, run models.DigestRun) error
	// RecentRuns возвращает последние limit записей, новые первыми.
	RecentRuns(ctx context.Context, limit int) ([]models.DigestRun, error)
}

// Storage задаёт полный контракт хранилища digest-service.
type Storage interface {
	KnownItemStorage
	PromotionStorage
	RunStorage
	Close()
}
