package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-ordering/internal/config"
	"ms-ordering/internal/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ErrLockTimeout is returned when a cart stays locked past the wait limit.
var ErrLockTimeout = errors.New("cart is locked by another request")

// unlockScript deletes the key only while it still holds our token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CartLock serializes mutations of one cart across service instances.
type CartLock struct {
	Client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger *logger.Logger
}

func NewCartLock(client *redis.Client, cfg config.RedisConfig, log *logger.Logger) *CartLock {
	return &CartLock{Client: client, ttl: cfg.CartLockTTL, wait: cfg.CartLockWait, logger: log}
}

func lockKey(orderID string) string {
	return "cart_lock:" + orderID
}

// TryLock takes the lock once. The returned token is needed to unlock.
func (l *CartLock) TryLock(ctx context.Context, orderID string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.Client.SetNX(ctx, lockKey(orderID), token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("lock cart %s: %w", orderID, err)
	}
	return token, ok, nil
}

// Lock waits for the cart with exponential backoff until it is free, the
// wait limit passes or ctx ends.
func (l *CartLock) Lock(ctx context.Context, orderID string) (string, error) {
	var token string

	op := func() error {
		t, ok, err := l.TryLock(ctx, orderID)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrLockTimeout
		}
		token = t
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = l.wait

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if errors.Is(err, ErrLockTimeout) {
			l.logger.Warn("ORDER", fmt.Sprintf("Timed out waiting for cart lock %s", orderID))
		}
		return "", err
	}
	return token, nil
}

// Unlock releases the lock if token still owns it. A lock that expired and
// was taken by someone else is left alone.
func (l *CartLock) Unlock(ctx context.Context, orderID, token string) error {
	if err := unlockScript.Run(ctx, l.Client, []string{lockKey(orderID)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("unlock cart %s: %w", orderID, err)
	}
	return nil
}

// WithLock runs fn while holding the cart's lock.
func (l *CartLock) WithLock(ctx context.Context, orderID string, fn func() error) error {
	token, err := l.Lock(ctx, orderID)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Unlock(context.Background(), orderID, token); err != nil {
			l.logger.Error("ORDER", err.Error())
		}
	}()
	return fn()
}
