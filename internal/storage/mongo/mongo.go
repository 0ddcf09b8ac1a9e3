// mongo ведёт каталог сохранённых дайджестов в MongoDB.
package mongo

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/pribylovaa/go-news-digest/internal/archive"
	"github.com/pribylovaa/go-news-digest/internal/models"
)

const (
	digestsCollection = "digests"
	defaultDBName     = "digest"
)

// Index - адаптер MongoDB для каталога дайджестов.
type Index struct {
	client  *mongodriver.Client
	digests *mongodriver.Collection
}

// New подключается к MongoDB, проверяет соединение и создаёт индексы.
func New(ctx context.Context, uri string) (*Index, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongo: empty url")
	}

	cli, err := mongodriver.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := cli.Ping(ctx, readpref.Primary()); err != nil {
		_ = cli.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := cli.Database(databaseFromURI(uri))

	idx := &Index{
		client:  cli,
		digests: db.Collection(digestsCollection),
	}

	if err := idx.ensureIndexes(ctx); err != nil {
		_ = idx.Close(ctx)
		return nil, err
	}

	return idx, nil
}

func (i *Index) Close(ctx context.Context) error {
	return i.client.Disconnect(ctx)
}

// ensureIndexes: лента по generated_at(desc) и поиск дайджеста по ссылке.
func (i *Index) ensureIndexes(ctx context.Context) error {
	indexes := []mongodriver.IndexModel{
		{
			Keys:    bson.D{{Key: "generated_at", Value: -1}},
			Options: options.Index().SetName("generated_at_desc"),
		},
		{
			Keys:    bson.D{{Key: "links", Value: 1}},
			Options: options.Index().SetName("links"),
		},
	}

	if _, err := i.digests.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("mongo ensure indexes: %w", err)
	}

	return nil
}

// IndexDigest сохраняет запись о дайджесте. Повтор с тем же id заменяет запись.
func (i *Index) IndexDigest(ctx context.Context, entry models.ArchiveEntry) error {
	const op = "storage.mongo.IndexDigest"

	entry.GeneratedAt = entry.GeneratedAt.UTC()

	_, err := i.digests.ReplaceOne(ctx,
		bson.M{"_id": entry.ID},
		entry,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Recent возвращает последние limit записей, новые первыми. limit <= 0 -> 1.
func (i *Index) Recent(ctx context.Context, limit int) ([]models.ArchiveEntry, error) {
	const op = "storage.mongo.Recent"

	if limit <= 0 {
		limit = 1
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "generated_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := i.digests.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: find: %w", op, err)
	}
	defer cur.Close(ctx)

	out := make([]models.ArchiveEntry, 0, limit)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", op, err)
	}

	for k := range out {
		out[k].GeneratedAt = out[k].GeneratedAt.UTC()
	}

	return out, nil
}

// databaseFromURI извлекает имя БД из пути URI; иначе - значение по умолчанию.
func databaseFromURI(uri string) string {
	u, err := url.Parse(uri)
	if err == nil {
		if name := strings.Trim(u.Path, "/"); name != "" {
			return name
		}
	}
	return defaultDBName
}

// Проверка выполнения контракта.
var _ archive.Index = (*Index)(nil)
