// lock реализует блокировку цикла дайджеста между репликами.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld - блокировка уже истекла или перехвачена другим владельцем.
var ErrNotHeld = errors.New("lock not held")

// Locker - минимальный контракт блокировки цикла.
type Locker interface {
	// TryAcquire пытается взять блокировку без ожидания.
	// ok=false означает, что её держит кто-то другой.
	TryAcquire(ctx context.Context) (lease Lease, ok bool, err error)
	// Close освобождает ресурсы клиента.
	Close() error
}

// Lease - взятая блокировка.
type Lease interface {
	Release(ctx context.Context) error
}

// Снимаем ключ только если он всё ещё наш.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker - блокировка на SET NX PX с токеном владельца.
type RedisLocker struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisLocker создаёт клиент Redis из URL (например, redis://:pass@host:6379/0).
// TTL ограничивает время жизни блокировки, если владелец упал, не сняв её.
func NewRedisLocker(ctx context.Context, redisURL, key string, ttl time.Duration) (*RedisLocker, error) {
	const op = "lock.NewRedisLocker"

	if key == "" || ttl <= 0 {
		return nil, fmt.Errorf("%s: key and positive ttl are required", op)
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	rdb := redis.NewClient(opt)

	// Fail-fast на старте.
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &RedisLocker{rdb: rdb, key: key, ttl: ttl}, nil
}

func (l *RedisLocker) TryAcquire(ctx context.Context) (Lease, bool, error) {
	const op = "lock.RedisLocker.TryAcquire"

	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", op, err)
	}
	if !ok {
		return nil, false, nil
	}

	return &redisLease{rdb: l.rdb, key: l.key, token: token}, true, nil
}

func (l *RedisLocker) Close() error { return l.rdb.Close() }

type redisLease struct {
	rdb   *redis.Client
	key   string
	token string
}

func (r *redisLease) Release(ctx context.Context) error {
	const op = "lock.redisLease.Release"

	n, err := releaseScript.Run(ctx, r.rdb, []string{r.key}, r.token).Int()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, ErrNotHeld)
	}

	return nil
}

// Noop - блокировка для одной реплики: всегда успешна.
type Noop struct{}

func (Noop) TryAcquire(context.Context) (Lease, bool, error) { return noopLease{}, true, nil }
func (Noop) Close() error                                    { return nil }

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = Noop{}
)
