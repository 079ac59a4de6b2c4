package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// loginAttemptPrefix is the Redis key prefix for failed-login counters.
const loginAttemptPrefix = "login_attempts:"

// loginAttemptTTL is how long a failure counter lives. The window restarts
// from the most recent failure, so a persistent attacker stays locked out.
const loginAttemptTTL = 30 * time.Minute

// minAttemptLimit is the floor applied to the configured threshold, so a
// misconfigured limit of 0 or 1 can never lock everyone out instantly.
const minAttemptLimit = 3

// LoginLimiter counts failed login attempts per client IP in Redis. The
// IP is hashed before use as a key so raw addresses are not retained.
// This is distinct from the per-IP HTTP request throttle in the middleware
// package: this limiter only advances on wrong credentials.
type LoginLimiter struct {
	redis *redis.Client
}

// NewLoginLimiter creates a login failure limiter on the given Redis client.
func NewLoginLimiter(rdb *redis.Client) *LoginLimiter {
	return &LoginLimiter{redis: rdb}
}

// Blocked reports whether the client has reached the attempt limit. A
// Redis read failure fails open -- a broken cache must not lock out every
// legitimate member.
func (l *LoginLimiter) Blocked(ctx context.Context, ip string, limit int) bool {
	if limit < minAttemptLimit {
		limit = minAttemptLimit
	}

	count, err := l.redis.Get(ctx, attemptKey(ip)).Int()
	if err != nil {
		return false
	}
	return count >= limit
}

// RecordFailure increments the failure counter and restarts its window.
func (l *LoginLimiter) RecordFailure(ctx context.Context, ip string) error {
	key := attemptKey(ip)

	pipe := l.redis.TxPipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, loginAttemptTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("recording login failure: %w", err)
	}

	return nil
}

// Reset clears the failure counter after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, ip string) error {
	if err := l.redis.Del(ctx, attemptKey(ip)).Err(); err != nil {
		return fmt.Errorf("resetting login failures: %w", err)
	}
	return nil
}

// attemptKey derives the Redis key for a client IP.
func attemptKey(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return loginAttemptPrefix + hex.EncodeToString(sum[:])
}
