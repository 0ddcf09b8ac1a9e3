// sqlite - встраиваемая реализация storage.Storage для одиночного процесса.
//
// Все моменты времени хранятся как unix-наносекунды (INTEGER) в UTC.
// Пул ограничен одним соединением: писатель в SQLite один,
// и транзакция UpdateRotation естественным образом сериализуется.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/mattn/go-sqlite3"

	"github.com/pribylovaa/go-news-digest/internal/storage"
)

//go:embed schema.sql
var schemaSQL string

type Storage struct {
	db   *sql.DB
	psql sq.StatementBuilderType
}

// New открывает (или создаёт) файл БД по dsn и применяет схему.
func New(ctx context.Context, dsn string) (*Storage, error) {
	const op = "storage.sqlite.New"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %q: %w", op, pragma, err)
		}
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s: apply schema: %w", op, err)
	}

	return &Storage{
		db:   db,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

// Ping проверяет, что файл базы доступен.
func (s *Storage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close закрывает соединение.
func (s *Storage) Close() {
	_ = s.db.Close()
}

func toUnix(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}

// Проверка выполнения контракта верхнего уровня.
var _ storage.Storage = (*Storage)(nil)
