// minio кладёт артефакты дайджестов в бакет MinIO/S3.
// Конструктор нормализует endpoint, подбирает Secure по схеме
// и проверяет наличие бакета (fail-fast).
package minio

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	mclient "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/pribylovaa/go-news-digest/internal/archive"
	"github.com/pribylovaa/go-news-digest/internal/config"
)

// ObjectStore - адаптер MinIO для артефактов дайджестов.
type ObjectStore struct {
	bucket string
	client *mclient.Client
}

// New создает клиент MinIO и проверяет, что бакет существует.
func New(ctx context.Context, cfg config.S3Config) (*ObjectStore, error) {
	const op = "storage.minio.New"

	endpoint := cfg.Endpoint
	secure := strings.HasPrefix(endpoint, "https://")

	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		endpoint = u.Host
		secure = u.Scheme == "https"
	}

	client, err := mclient.New(endpoint, &mclient.Options{
		Creds:  credentials.NewStaticV4(cfg.RootUser, cfg.RootPassword, ""),
		Secure: secure,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !exists {
		return nil, fmt.Errorf("%s: bucket %q does not exist", op, cfg.Bucket)
	}

	return &ObjectStore{bucket: cfg.Bucket, client: client}, nil
}

// Put записывает объект key и возвращает его адрес вида s3://<bucket>/<key>.
// Повторная запись того же ключа перезаписывает объект.
func (s *ObjectStore) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	const op = "storage.minio.Put"

	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", fmt.Errorf("%s: empty key", op)
	}

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), mclient.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return "s3://" + s.bucket + "/" + key, nil
}

// Проверка выполнения контракта.
var _ archive.ObjectStore = (*ObjectStore)(nil)
