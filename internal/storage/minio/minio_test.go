package minio

import (
	"context"
	"fmt"
	"io"
	"os"
	"testing"
	"time"

	mclient "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pribylovaa/go-news-digest/internal/config"
)

// Интеграционные тесты поднимают MinIO через testcontainers-go.
//
// Запуск:
//   GO_TEST_INTEGRATION=1 go test ./internal/storage/minio -v -race -count=1

const (
	rootUser     = "root"
	rootPassword = "rootpass"
	bucket       = "digests"
)

// startMinio поднимает контейнер и возвращает конфиг и admin-клиент.
func startMinio(t *testing.T, createBucket bool) (config.S3Config, *mclient.Client) {
	t.Helper()
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image: "docker.io/minio/minio:latest",
		Env: map[string]string{
			"MINIO_ROOT_USER":     rootUser,
			"MINIO_ROOT_PASSWORD": rootPassword,
		},
		Cmd:          []string{"server", "/data"},
		ExposedPorts: []string{"9000/tcp"},
		WaitingFor:   wait.ForListeningPort("9000/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })

	host, _ := c.Host(ctx)
	port, _ := c.MappedPort(ctx, "9000/tcp")

	admin, err := mclient.New(host+":"+port.Port(), &mclient.Options{
		Creds:  credentials.NewStaticV4(rootUser, rootPassword, ""),
		Secure: false,
	})
	require.NoError(t, err)

	if createBucket {
		require.Eventually(t, func() bool {
			return admin.MakeBucket(ctx, bucket, mclient.MakeBucketOptions{Region: "us-east-1"}) == nil
		}, 30*time.Second, 500*time.Millisecond)
	}

	cfg := config.S3Config{
		Endpoint:     fmt.Sprintf("http://%s:%s", host, port.Port()),
		RootUser:     rootUser,
		RootPassword: rootPassword,
		Bucket:       bucket,
	}

	return cfg, admin
}

func TestIntegration_New_BucketMissing(t *testing.T) {
	cfg, _ := startMinio(t, false)

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not exist")
}

func TestIntegration_Put_OK(t *testing.T) {
	cfg, admin := startMinio(t, true)
	ctx := context.Background()

	st, err := New(ctx, cfg)
	require.NoError(t, err)

	loc, err := st.Put(ctx, "/2025/06/02/d-1/digest.json", "application/json", []byte(`{"id":"d-1"}`))
	require.NoError(t, err)
	require.Equal(t, "s3://digests/2025/06/02/d-1/digest.json", loc)

	// Повторная запись перезаписывает объект.
	_, err = st.Put(ctx, "2025/06/02/d-1/digest.json", "application/json", []byte(`{"id":"d-1","v":2}`))
	require.NoError(t, err)

	obj, err := admin.GetObject(ctx, bucket, "2025/06/02/d-1/digest.json", mclient.GetObjectOptions{})
	require.NoError(t, err)
	defer obj.Close()

	body, err := io.ReadAll(obj)
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"d-1","v":2}`, string(body))

	info, err := admin.StatObject(ctx, bucket, "2025/06/02/d-1/digest.json", mclient.StatObjectOptions{})
	require.NoError(t, err)
	require.Equal(t, "application/json", info.ContentType)
}

func TestIntegration_Put_EmptyKey(t *testing.T) {
	cfg, _ := startMinio(t, true)

	st, err := New(context.Background(), cfg)
	require.NoError(t, err)

	_, err = st.Put(context.Background(), "/", "text/plain", []byte("x"))
	require.Error(t, err)
}
