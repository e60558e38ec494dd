// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package blobstore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// Disk stores objects as files under a root directory. Each object
// has a ".meta" sidecar holding its metadata and a BLAKE3 digest of
// its bytes; a put whose digest and metadata match the sidecar is
// skipped.
type Disk struct {
	root   string
	logger *slog.Logger
}

type diskSidecar struct {
	Metadata
	Digest string `json:"blake3"`
}

const sidecarSuffix = ".meta"

// NewDisk returns a Disk store rooted at root, creating it if needed.
func NewDisk(root string, logger *slog.Logger) (*Disk, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: creating root: %w", err)
	}
	return &Disk{root: root, logger: logger}, nil
}

func (d *Disk) path(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(d.root, filepath.FromSlash(key)), nil
}

func (d *Disk) Put(ctx context.Context, key string, data []byte, meta Metadata) error {
	target, err := d.path(key)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	digest := blake3.Sum256(data)
	sidecar := diskSidecar{Metadata: meta, Digest: hex.EncodeToString(digest[:])}
	if existing, err := readSidecar(target); err == nil && existing == sidecar {
		if _, err := os.Stat(target); err == nil {
			d.logger.Debug("blob unchanged, skipping put", "key", key)
			return nil
		}
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("blobstore: creating directory for %s: %w", key, err)
	}
	if err := writeAtomic(target, data); err != nil {
		return fmt.Errorf("blobstore: writing %s: %w", key, err)
	}
	encoded, err := json.Marshal(sidecar)
	if err != nil {
		return fmt.Errorf("blobstore: encoding metadata: %w", err)
	}
	if err := writeAtomic(target+sidecarSuffix, encoded); err != nil {
		return fmt.Errorf("blobstore: writing metadata for %s: %w", key, err)
	}
	return nil
}

func (d *Disk) Get(ctx context.Context, key string) ([]byte, Metadata, error) {
	target, err := d.path(key)
	if err != nil {
		return nil, Metadata{}, err
	}
	data, err := os.ReadFile(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, Metadata{}, ErrNotFound
	}
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("blobstore: reading %s: %w", key, err)
	}
	sidecar, err := readSidecar(target)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, Metadata{}, fmt.Errorf("blobstore: reading metadata for %s: %w", key, err)
	}
	return data, sidecar.Metadata, nil
}

func (d *Disk) Delete(ctx context.Context, key string) error {
	target, err := d.path(key)
	if err != nil {
		return err
	}
	for _, name := range []string{target, target + sidecarSuffix} {
		if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("blobstore: deleting %s: %w", key, err)
		}
	}
	return nil
}

func readSidecar(target string) (diskSidecar, error) {
	var sidecar diskSidecar
	data, err := os.ReadFile(target + sidecarSuffix)
	if err != nil {
		return sidecar, err
	}
	if err := json.Unmarshal(data, &sidecar); err != nil {
		return sidecar, err
	}
	return sidecar, nil
}

// writeAtomic writes data to a temporary file beside target and
// renames it into place, so readers see the old or the new bytes and
// never a prefix.
func writeAtomic(target string, data []byte) error {
	file, err := os.CreateTemp(filepath.Dir(target), ".tmp-*")
	if err != nil {
		return err
	}
	temporary := file.Name()
	if _, err := file.Write(data); err != nil {
		file.Close()
		os.Remove(temporary)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(temporary)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(temporary)
		return err
	}
	if err := os.Chmod(temporary, 0o644); err != nil {
		os.Remove(temporary)
		return err
	}
	return os.Rename(temporary, target)
}
