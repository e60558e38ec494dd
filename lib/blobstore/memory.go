// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"context"
	"slices"
	"sync"
)

type memoryObject struct {
	data []byte
	meta Metadata
}

// Memory is an in-process Store for tests and dry runs.
type Memory struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	puts    int

	failPuts int
	failErr  error
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memoryObject)}
}

func (m *Memory) Put(ctx context.Context, key string, data []byte, meta Metadata) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failPuts > 0 {
		m.failPuts--
		return m.failErr
	}
	m.objects[key] = memoryObject{data: slices.Clone(data), meta: meta}
	m.puts++
	return nil
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	object, ok := m.objects[key]
	if !ok {
		return nil, Metadata{}, ErrNotFound
	}
	return slices.Clone(object.data), object.meta, nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

// Keys returns every stored key, sorted.
func (m *Memory) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Puts returns the number of successful puts.
func (m *Memory) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

// FailPuts makes the next n puts return err.
func (m *Memory) FailPuts(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPuts = n
	m.failErr = err
}
