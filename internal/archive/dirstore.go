package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DirStore - хранилище артефактов в локальном каталоге.
// Файл появляется целиком или не появляется: запись идёт через временный файл.
type DirStore struct {
	root string
}

// NewDirStore создаёт каталог root при необходимости.
func NewDirStore(root string) (*DirStore, error) {
	const op = "archive.NewDirStore"

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &DirStore{root: root}, nil
}

func (s *DirStore) Put(ctx context.Context, key, _ string, data []byte) (string, error) {
	const op = "archive.DirStore.Put"

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
		return "", fmt.Errorf("%s: invalid key %q", op, key)
	}

	path := filepath.Join(s.root, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("%s: write: %w", op, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("%s: close: %w", op, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("%s: rename: %w", op, err)
	}

	return "file://" + filepath.ToSlash(path), nil
}

var _ ObjectStore = (*DirStore)(nil)
