package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("record lock not acquired")
)

// Locker guards critical sections per record. The kind keeps appointment and
// emergency locks in separate keyspaces so their ids can never collide.
type Locker interface {
	WithRecordLock(ctx context.Context, kind string, recordID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisRecordLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisRecordLocker creates a locker that uses a per record Redis key
func NewRedisRecordLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisRecordLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisRecordLocker) WithRecordLock(ctx context.Context, kind string, recordID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:%s:%s", kind, recordID.String())
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire record lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisRecordLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release record lock: %w", err)
	}
	return nil
}
