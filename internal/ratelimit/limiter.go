package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "ratelimit:"

// Limiter is a fixed-window counter kept in Redis. A nil *Limiter allows
// everything.
type Limiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// New returns a limiter, or nil when client is nil or the limit is disabled.
func New(client *redis.Client, limit int, window time.Duration) *Limiter {
	if client == nil || limit <= 0 || window <= 0 {
		return nil
	}
	return &Limiter{client: client, limit: int64(limit), window: window}
}

// Allow counts one hit against key and reports whether it is within the
// limit. Callers decide whether to fail open on error.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil {
		return true, nil
	}
	k := keyPrefix + key

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.TTL(ctx, k)
		return nil
	})
	if err != nil {
		return true, fmt.Errorf("ratelimit incr: %w", err)
	}

	// A counter without a TTL would never reset, so the window is applied
	// whenever it is missing, not only on the first hit.
	if ttl.Val() < 0 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return true, fmt.Errorf("ratelimit expire: %w", err)
		}
	}
	return incr.Val() <= l.limit, nil
}

// Key builds a limiter key for a token purpose and normalized email.
func Key(purpose, email string) string {
	return purpose + ":" + email
}
