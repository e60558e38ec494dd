// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/registry/lib/blobstore"
	"github.com/bureau-foundation/registry/lib/clock"
	"github.com/bureau-foundation/registry/lib/config"
	"github.com/bureau-foundation/registry/lib/git"
	"github.com/bureau-foundation/registry/lib/github"
	"github.com/bureau-foundation/registry/lib/jobqueue"
	"github.com/bureau-foundation/registry/lib/locks"
	"github.com/bureau-foundation/registry/lib/metrics"
	"github.com/bureau-foundation/registry/lib/ratelimit"
	"github.com/bureau-foundation/registry/lib/rights"
	"github.com/bureau-foundation/registry/lib/store"
)

// configParams is embedded by every command that touches registry
// state.
type configParams struct {
	ConfigPath string `flag:"config" desc:"registry config file (default: $REGISTRY_CONFIG)"`
}

// actorParams names the user a command acts as.
type actorParams struct {
	User string `flag:"user" desc:"login of the acting user (required)"`
}

func (p actorParams) login() (string, error) {
	login := strings.TrimSpace(p.User)
	if login == "" {
		return "", errors.New("--user is required")
	}
	return login, nil
}

// environment holds the components built from one config file.
// Network-backed components are built on first use so a command only
// needs the backends it touches.
type environment struct {
	config *config.Config
	logger *slog.Logger
	clock  clock.Clock
	store  *store.Store

	blobs     blobstore.Store
	directory rights.TeamDirectory
	registry  *prometheus.Registry
	metrics   metrics.Metrics

	closers []func() error
}

func openEnvironment(params configParams, logger *slog.Logger) (*environment, error) {
	var cfg *config.Config
	var err error
	if params.ConfigPath != "" {
		cfg, err = config.LoadFile(params.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}

	env := &environment{config: cfg, logger: logger, clock: clock.Real()}
	env.store, err = store.Open(store.Config{
		Path:     cfg.Database.Path,
		PoolSize: cfg.Database.PoolSize,
		Clock:    env.clock,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, env.store.Close)
	return env, nil
}

// Close releases everything the environment opened, newest first.
func (e *environment) Close() error {
	var errs []error
	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i]())
	}
	return errors.Join(errs...)
}

func (e *environment) Blobs(ctx context.Context) (blobstore.Store, error) {
	if e.blobs != nil {
		return e.blobs, nil
	}
	storage := e.config.Storage
	var backend blobstore.Store
	switch storage.Backend {
	case config.BackendRedis:
		redisStore, err := blobstore.NewRedis(ctx, storage.RedisURL, storage.KeyPrefix)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, redisStore.Close)
		backend = redisStore
	default:
		disk, err := blobstore.NewDisk(storage.DiskRoot, e.logger)
		if err != nil {
			return nil, err
		}
		backend = disk
	}
	if storage.BreakerThreshold > 0 {
		backend = blobstore.NewGuarded(backend, blobstore.GuardOptions{Threshold: storage.BreakerThreshold})
	}
	e.blobs = backend
	return backend, nil
}

func (e *environment) Directory() (rights.TeamDirectory, error) {
	if e.directory != nil {
		return e.directory, nil
	}
	directory := e.config.Directory
	switch directory.Backend {
	case config.DirectoryGitHub:
		token, err := os.ReadFile(directory.GitHubTokenFile)
		if err != nil {
			return nil, fmt.Errorf("reading github token: %w", err)
		}
		client, err := github.NewClient(github.Config{
			BaseURL: directory.GitHubAPIURL,
			Token:   strings.TrimSpace(string(token)),
			Clock:   e.clock,
			Logger:  e.logger,
		})
		if err != nil {
			return nil, err
		}
		e.directory = github.NewDirectory(client)
	default:
		e.directory = rights.NewStaticDirectory(directory.Teams, directory.Orgs)
	}
	return e.directory, nil
}

// Metrics returns the Prometheus-backed metrics and the registry that
// serves them.
func (e *environment) Metrics() (metrics.Metrics, *prometheus.Registry, error) {
	if e.metrics != nil {
		return e.metrics, e.registry, nil
	}
	registry := prometheus.NewRegistry()
	prom, err := metrics.NewProm(e.config.Metrics.Namespace, registry)
	if err != nil {
		return nil, nil, err
	}
	e.metrics, e.registry = prom, registry
	return prom, registry, nil
}

func (e *environment) Limiter() (*ratelimit.Limiter, error) {
	limits := make(map[ratelimit.Action]ratelimit.Limit, len(e.config.RateLimits))
	for action, limit := range e.config.RateLimits {
		limits[ratelimit.Action(action)] = ratelimit.Limit{Rate: limit.Rate, Burst: limit.Burst}
	}
	return ratelimit.New(ratelimit.Config{DB: e.store, Limits: limits, Clock: e.clock, Logger: e.logger})
}

func (e *environment) Queue() (*jobqueue.Queue, error) {
	jobs := e.config.Jobs
	return jobqueue.New(jobqueue.Config{
		DB:          e.store,
		Lease:       jobs.Lease,
		MaxAttempts: jobs.MaxAttempts,
		RetryBase:   jobs.RetryBase,
		RetryMax:    jobs.RetryMax,
		Clock:       e.clock,
		Logger:      e.logger,
	})
}

func (e *environment) Locker(ctx context.Context) (locks.Locker, error) {
	if e.config.Index.LockRedisURL == "" {
		return locks.NewLocal(e.clock), nil
	}
	redisLocks, err := locks.NewRedis(ctx, e.config.Index.LockRedisURL, e.config.Storage.KeyPrefix)
	if err != nil {
		return nil, err
	}
	e.closers = append(e.closers, redisLocks.Close)
	return redisLocks, nil
}

func (e *environment) Repository() *git.Repository {
	return git.NewRepository(e.config.Index.Repository)
}

// Actor returns the acting user, creating the account on first use.
func (e *environment) Actor(ctx context.Context, login string) (rights.Actor, error) {
	var actor rights.Actor
	err := e.store.Transact(ctx, func(conn *sqlite.Conn) error {
		user, err := store.EnsureUser(conn, login, e.clock.Now())
		if err != nil {
			return err
		}
		actor = rights.Actor{UserID: user.ID, Login: user.Login}
		return nil
	})
	return actor, err
}

// withEnvironment opens the environment for the duration of fn.
func withEnvironment(params configParams, fn func(env *environment) error) (err error) {
	env, err := openEnvironment(params, newLogger())
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, env.Close())
	}()
	return fn(env)
}
