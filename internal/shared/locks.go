package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockBusy is returned when another operation holds the document lock.
var ErrLockBusy = NewKindError(ErrConflict, "document locked by another operation")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// DocumentLockKey builds redis keys guarding a single document.
func DocumentLockKey(document string, id int64) string {
	return fmt.Sprintf("procurement:%s:%d:lock", document, id)
}

// Locker hands out short-lived redis locks keyed by document.
type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewLocker constructs a Locker. A nil client yields a locker that never blocks.
func NewLocker(client redis.UniversalClient, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Locker{client: client, ttl: ttl}
}

// Release frees a held lock.
type Release func(ctx context.Context) error

// Acquire takes the lock for key or fails with ErrLockBusy.
func (l *Locker) Acquire(ctx context.Context, key string) (Release, error) {
	if l == nil || l.client == nil {
		return func(context.Context) error { return nil }, nil
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, ErrLockBusy
	}
	return func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("shared: release lock %s: %w", key, err)
		}
		return nil
	}, nil
}
