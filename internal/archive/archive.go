// archive собирает и сохраняет артефакты дайджеста
// и реализует pipeline.Assembler.
package archive

import (
	"context"
	"fmt"
	"log/slog"
	"path"

	"github.com/pribylovaa/go-news-digest/internal/models"
	"github.com/pribylovaa/go-news-digest/internal/pipeline"
	"github.com/pribylovaa/go-news-digest/pkg/log"
)

// ObjectStore - куда кладутся артефакты (MinIO/S3 или локальный каталог).
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (location string, err error)
}

// Index - каталог сохранённых дайджестов (MongoDB).
type Index interface {
	IndexDigest(ctx context.Context, entry models.ArchiveEntry) error
}

// Assembler рендерит дайджест, кладёт артефакты в ObjectStore
// и регистрирует их в Index.
type Assembler struct {
	store ObjectStore
	index Index
}

var _ pipeline.Assembler = (*Assembler)(nil)

// New создаёт Assembler. index может быть nil.
func New(store ObjectStore, index Index) *Assembler {
	return &Assembler{store: store, index: index}
}

// AssembleAndPersist сохраняет digest.json и digest.md под префиксом ID.
// Handle указывает на JSON-артефакт. Ошибка индекса не делает сборку
// неуспешной: артефакты уже сохранены, индекс вторичен.
func (a *Assembler) AssembleAndPersist(ctx context.Context, d models.Digest) (models.DigestHandle, error) {
	const op = "archive.AssembleAndPersist"

	lg := log.From(ctx)

	doc := NewDocument(d)

	jsonData, err := RenderJSON(doc)
	if err != nil {
		return models.DigestHandle{}, fmt.Errorf("%s: %w", op, err)
	}
	mdData, err := RenderMarkdown(doc)
	if err != nil {
		return models.DigestHandle{}, fmt.Errorf("%s: %w", op, err)
	}

	prefix := d.GeneratedAt.UTC().Format("2006/01/02") + "/" + d.ID
	objects := make(map[string]string, 2)

	for _, o := range []struct {
		name, contentType string
		data              []byte
	}{
		{"digest.md", "text/markdown; charset=utf-8", mdData},
		{"digest.json", "application/json", jsonData},
	} {
		loc, err := a.store.Put(ctx, path.Join(prefix, o.name), o.contentType, o.data)
		if err != nil {
			return models.DigestHandle{}, fmt.Errorf("%s: put %s: %w", op, o.name, err)
		}
		objects[o.name] = loc
	}

	if a.index != nil {
		if err := a.index.IndexDigest(ctx, entryOf(d, objects)); err != nil {
			lg.Warn("archive_index_failed",
				slog.String("op", op),
				slog.String("digest_id", d.ID),
				slog.String("err", err.Error()),
			)
		}
	}

	lg.Debug("digest_archived",
		slog.String("op", op),
		slog.String("digest_id", d.ID),
		slog.Int("stories", len(doc.Stories)),
	)

	return models.DigestHandle{ID: d.ID, Location: objects["digest.json"]}, nil
}

func entryOf(d models.Digest, objects map[string]string) models.ArchiveEntry {
	e := models.ArchiveEntry{
		ID:          d.ID,
		Title:       d.Title,
		SubjectLine: d.SubjectLine,
		GeneratedAt: d.GeneratedAt.UTC(),
		ItemCount:   len(d.Items),
		Links:       make([]string, 0, len(d.Items)),
		Objects:     objects,
	}
	for _, it := range d.Items {
		e.Links = append(e.Links, it.Item.Raw.Link)
	}
	if d.Promotion != nil {
		e.Promotion = d.Promotion.Name
	}
	return e
}
