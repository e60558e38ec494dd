// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package locks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis is a Locker shared by every process using the same Redis.
// A lock is a key holding the owner's random token, set with NX and a
// millisecond expiry; renew and release run as scripts that first
// compare the token, so an owner whose lease expired cannot clobber
// its successor.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis connects to url.
func NewRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("locks: parsing redis url: %w", err)
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("locks: connecting to redis: %w", err)
	}
	return NewRedisClient(client, prefix), nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(client redis.UniversalClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) key(resource string) string {
	return r.prefix + "lock:" + resource
}

func (r *Redis) TryLock(ctx context.Context, resource string, ttl time.Duration) (Lease, error) {
	token := uuid.NewString()
	acquired, err := r.client.SetNX(ctx, r.key(resource), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("locks: acquiring %s: %w", resource, err)
	}
	if !acquired {
		return nil, ErrHeld
	}
	return &redisLease{locker: r, key: r.key(resource), token: token}, nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type redisLease struct {
	locker *Redis
	key    string
	token  string
}

func (lease *redisLease) Renew(ctx context.Context, ttl time.Duration) error {
	result, err := renewScript.Run(ctx, lease.locker.client, []string{lease.key}, lease.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("locks: renewing %s: %w", lease.key, err)
	}
	if result == 0 {
		return ErrLost
	}
	return nil
}

func (lease *redisLease) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, lease.locker.client, []string{lease.key}, lease.token).Int()
	if err != nil {
		return fmt.Errorf("locks: releasing %s: %w", lease.key, err)
	}
	if result == 0 {
		return ErrLost
	}
	return nil
}
