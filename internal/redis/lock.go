package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/booking-availability/internal/schedule"
)

var (
	ErrLockNotAcquired = errors.New("day lock not acquired")
)

// DayLocker serializes critical sections per business and calendar date across instances.
type DayLocker interface {
	WithDayLock(ctx context.Context, businessID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error
}

const lockPollInterval = 25 * time.Millisecond

type redisDayLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisDayLocker creates a locker that uses one Redis key per business day.
// Acquisition waits up to wait for a competing holder to release before giving up.
func NewRedisDayLocker(client *redis.Client, ttl, wait time.Duration) DayLocker {
	return &redisDayLocker{
		client: client,
		ttl:    ttl,
		wait:   wait,
	}
}

// DayLockKey is the Redis key guarding one business day.
func DayLockKey(businessID uuid.UUID, date time.Time) string {
	return fmt.Sprintf("lock:day:%s:%s", businessID.String(), schedule.FormatDate(date))
}

func (l *redisDayLocker) WithDayLock(ctx context.Context, businessID uuid.UUID, date time.Time, fn func(ctx context.Context) error) error {
	key := DayLockKey(businessID, date)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// The caller's context may already be done; release on a fresh one.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisDayLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.wait)
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire day lock: %w", err)
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrLockNotAcquired
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisDayLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release day lock: %w", err)
	}
	return nil
}
