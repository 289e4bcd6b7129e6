package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockHeld indicates another worker owns the lock.
var ErrLockHeld = fmt.Errorf("%w: operation already in progress", ErrConflict)

// BillingRunLockKey builds the redis key guarding one billing period.
func BillingRunLockKey(start, end time.Time) string {
	return fmt.Sprintf("billing:generate:%s:%s:lock", start.Format(DateLayout), end.Format(DateLayout))
}

// Locker hands out short lived redis locks.
type Locker struct {
	client *redis.Client
}

// NewLocker builds a Locker. A nil client disables locking.
func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Acquire takes key for ttl and returns the release function.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	if l == nil || l.client == nil {
		return func() {}, nil
	}
	if key == "" {
		return nil, errors.New("lock key required")
	}
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockHeld
	}
	return func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{key}, token).Err()
	}, nil
}
