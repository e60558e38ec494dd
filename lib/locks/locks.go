// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package locks provides exclusive, expiring locks for jobs that must
// not overlap, such as index synchronization runs.
package locks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/registry/lib/clock"
)

// ErrHeld is returned by TryLock when another owner holds the lock.
var ErrHeld = errors.New("locks: lock is held by another owner")

// ErrLost is returned by Renew and Release when the lock expired and
// was possibly taken by someone else.
var ErrLost = errors.New("locks: lock no longer held")

// Locker hands out exclusive leases on named resources.
type Locker interface {
	// TryLock acquires resource for ttl or returns ErrHeld without
	// waiting.
	TryLock(ctx context.Context, resource string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	// Renew extends the lease to ttl from now.
	Renew(ctx context.Context, ttl time.Duration) error

	// Release gives the lock up. Releasing twice returns ErrLost.
	Release(ctx context.Context) error
}

// Local is an in-process Locker for single-process deployments and
// tests.
type Local struct {
	clock clock.Clock

	mu   sync.Mutex
	held map[string]localEntry
}

type localEntry struct {
	token   string
	expires time.Time
}

// NewLocal returns an empty Local locker.
func NewLocal(c clock.Clock) *Local {
	return &Local{clock: c, held: make(map[string]localEntry)}
}

func (l *Local) TryLock(ctx context.Context, resource string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	if entry, ok := l.held[resource]; ok && now.Before(entry.expires) {
		return nil, ErrHeld
	}
	token := uuid.NewString()
	l.held[resource] = localEntry{token: token, expires: now.Add(ttl)}
	return &localLease{locker: l, resource: resource, token: token}, nil
}

type localLease struct {
	locker   *Local
	resource string
	token    string
}

func (lease *localLease) Renew(ctx context.Context, ttl time.Duration) error {
	l := lease.locker
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock.Now()
	entry, ok := l.held[lease.resource]
	if !ok || entry.token != lease.token || !now.Before(entry.expires) {
		return ErrLost
	}
	l.held[lease.resource] = localEntry{token: lease.token, expires: now.Add(ttl)}
	return nil
}

func (lease *localLease) Release(ctx context.Context) error {
	l := lease.locker
	l.mu.Lock()
	defer l.mu.Unlock()
	entry, ok := l.held[lease.resource]
	if !ok || entry.token != lease.token {
		return ErrLost
	}
	delete(l.held, lease.resource)
	return nil
}
