// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package blobstore stores crate archives, rendered readmes and index
// files under slash-separated keys.
//
// Every backend implements [Store]. Puts replace the whole object, so
// a repeated put of the same key and bytes is harmless; publish and
// index sync both rely on that to retry freely.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by Get for keys with no object.
var ErrNotFound = errors.New("blobstore: not found")

// Metadata travels with an object.
type Metadata struct {
	ContentType  string `json:"content_type,omitempty"`
	CacheControl string `json:"cache_control,omitempty"`
}

// Content types and cache policies used by the registry.
const (
	ContentTypeCrate = "application/gzip"
	ContentTypeIndex = "text/plain"
	ContentTypeHTML  = "text/html"

	// Index files change on every publish; clients must revalidate.
	CacheIndex = "public,max-age=600"

	// Archives and readmes never change once written.
	CacheImmutable = "public,max-age=31536000,immutable"
)

// Store is a key-value object store.
type Store interface {
	Put(ctx context.Context, key string, data []byte, meta Metadata) error
	Get(ctx context.Context, key string) ([]byte, Metadata, error)
	Delete(ctx context.Context, key string) error
}

// ValidateKey rejects keys that could escape a backend's namespace:
// empty, absolute, or containing "." or ".." segments.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("blobstore: empty key")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("blobstore: invalid key %q", key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("blobstore: key %q is not clean", key)
	}
	for _, segment := range strings.Split(key, "/") {
		if segment == "." || segment == ".." {
			return fmt.Errorf("blobstore: invalid key %q", key)
		}
	}
	return nil
}
