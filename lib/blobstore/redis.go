// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores objects in Redis: the bytes under "{prefix}blob:{key}"
// and the metadata in a hash under "{prefix}meta:{key}". Both are
// written in one MULTI so readers never see bytes without metadata.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

// NewRedis connects to url and verifies the connection.
func NewRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("blobstore: parsing redis url: %w", err)
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("blobstore: connecting to redis: %w", err)
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

func (r *Redis) blobKey(key string) string { return r.prefix + "blob:" + key }
func (r *Redis) metaKey(key string) string { return r.prefix + "meta:" + key }

func (r *Redis) Put(ctx context.Context, key string, data []byte, meta Metadata) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.blobKey(key), data, 0)
	pipe.Del(ctx, r.metaKey(key))
	pipe.HSet(ctx, r.metaKey(key), "content_type", meta.ContentType, "cache_control", meta.CacheControl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("blobstore: redis put %s: %w", key, err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, Metadata, error) {
	pipe := r.client.Pipeline()
	dataCmd := pipe.Get(ctx, r.blobKey(key))
	metaCmd := pipe.HGetAll(ctx, r.metaKey(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, Metadata{}, fmt.Errorf("blobstore: redis get %s: %w", key, err)
	}
	data, err := dataCmd.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, Metadata{}, ErrNotFound
	}
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("blobstore: redis get %s: %w", key, err)
	}
	fields := metaCmd.Val()
	return data, Metadata{ContentType: fields["content_type"], CacheControl: fields["cache_control"]}, nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.blobKey(key), r.metaKey(key)).Err(); err != nil {
		return fmt.Errorf("blobstore: redis delete %s: %w", key, err)
	}
	return nil
}
