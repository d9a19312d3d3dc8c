package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const revocationPrefix = "jwt:blacklist:"

// RedisRevocations keeps revoked token ids as expiring Redis keys.
type RedisRevocations struct {
	rdb *redis.Client
}

// NewRedisRevocations wraps an existing client.
func NewRedisRevocations(rdb *redis.Client) *RedisRevocations {
	return &RedisRevocations{rdb: rdb}
}

// DialRedis connects to addr and pings it. Callers treat an error as "revocation disabled".
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// IsRevoked reports whether jti is on the blacklist. Redis outages do not fail authentication.
func (r *RedisRevocations) IsRevoked(ctx context.Context, jti string) (bool, error) {
	res, err := r.rdb.Get(ctx, revocationPrefix+jti).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		log.Printf("[auth] revocation lookup failed, allowing token: %v", err)
		return false, nil
	}
	return res == "1", nil
}

// Revoke blacklists jti for ttl.
func (r *RedisRevocations) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return errors.New("empty jti")
	}
	return r.rdb.Set(ctx, revocationPrefix+jti, "1", ttl).Err()
}
