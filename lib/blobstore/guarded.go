// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenk/backoff"
	circuit "github.com/rubyist/circuitbreaker"
)

// ErrUnavailable is returned while the circuit breaker is open.
var ErrUnavailable = errors.New("blobstore: backend unavailable")

// GuardOptions shapes a Guarded store's breaker.
type GuardOptions struct {
	// Threshold is the number of consecutive failures that opens the
	// breaker. Defaults to 5.
	Threshold int64

	// InitialInterval and MaxInterval bound the exponential wait
	// before a half-open probe. Default 30s and 5m.
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Guarded wraps a Store with a circuit breaker. While the backend
// keeps failing, calls fail fast with ErrUnavailable instead of
// piling onto it. ErrNotFound counts as success.
type Guarded struct {
	inner   Store
	breaker *circuit.Breaker
}

// NewGuarded wraps inner.
func NewGuarded(inner Store, options GuardOptions) *Guarded {
	if options.Threshold <= 0 {
		options.Threshold = 5
	}
	if options.InitialInterval <= 0 {
		options.InitialInterval = 30 * time.Second
	}
	if options.MaxInterval <= 0 {
		options.MaxInterval = 5 * time.Minute
	}
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = options.InitialInterval
	expBackoff.MaxInterval = options.MaxInterval
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	return &Guarded{
		inner: inner,
		breaker: circuit.NewBreakerWithOptions(&circuit.Options{
			BackOff:    expBackoff,
			ShouldTrip: circuit.ThresholdTripFunc(options.Threshold),
		}),
	}
}

// Tripped reports whether the breaker is open.
func (g *Guarded) Tripped() bool {
	return g.breaker.Tripped()
}

func (g *Guarded) call(fn func() error) error {
	if !g.breaker.Ready() {
		return ErrUnavailable
	}
	var notFound bool
	err := g.breaker.Call(func() error {
		err := fn()
		if errors.Is(err, ErrNotFound) {
			notFound = true
			return nil
		}
		return err
	}, 0)
	if errors.Is(err, circuit.ErrBreakerOpen) {
		return ErrUnavailable
	}
	if err != nil {
		return err
	}
	if notFound {
		return ErrNotFound
	}
	return nil
}

func (g *Guarded) Put(ctx context.Context, key string, data []byte, meta Metadata) error {
	return g.call(func() error { return g.inner.Put(ctx, key, data, meta) })
}

func (g *Guarded) Get(ctx context.Context, key string) ([]byte, Metadata, error) {
	var data []byte
	var meta Metadata
	err := g.call(func() error {
		var err error
		data, meta, err = g.inner.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, Metadata{}, err
	}
	return data, meta, nil
}

func (g *Guarded) Delete(ctx context.Context, key string) error {
	return g.call(func() error { return g.inner.Delete(ctx, key) })
}

// String describes the breaker state for status output.
func (g *Guarded) String() string {
	state := "closed"
	if g.breaker.Tripped() {
		state = "open"
	}
	return fmt.Sprintf("guarded(breaker %s, %d consecutive failures)", state, g.breaker.ConsecFailures())
}
