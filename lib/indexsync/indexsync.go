// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package indexsync copies index files from the authoritative git
// repository into the blob store that serves the sparse index.
//
// A full run uploads every file at head. An incremental run, given a
// checkpoint commit, uploads only files changed since it; files that
// no longer exist at head are skipped with a warning. Each changed
// file is uploaded whole. A failed upload is logged and counted and
// does not stop the run. The report's Head is the checkpoint for the
// next incremental run.
//
// Runs hold an exclusive lock from [locks.Locker] so two syncers never
// upload against the same repository at once. Cancellation is checked
// between files.
package indexsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/registry/lib/blobstore"
	"github.com/bureau-foundation/registry/lib/cratename"
	"github.com/bureau-foundation/registry/lib/git"
	"github.com/bureau-foundation/registry/lib/locks"
	"github.com/bureau-foundation/registry/lib/metrics"
)

// LockResource names the lock held during a run.
const LockResource = "index-sync"

const defaultLockTTL = 10 * time.Minute

// Repository is the subset of git.Repository a run reads.
type Repository interface {
	Head(ctx context.Context) (string, error)
	FilesChangedSince(ctx context.Context, since, head string) ([]string, error)
	ReadAt(ctx context.Context, commit, path string) ([]byte, bool, error)
}

var _ Repository = (*git.Repository)(nil)

// Config configures a Syncer.
type Config struct {
	Repository Repository
	Blobs      blobstore.Store
	Locker     locks.Locker

	// LockTTL bounds how long a crashed run blocks the next one. The
	// lease is renewed while the run progresses. Defaults to 10m.
	LockTTL time.Duration

	// Concurrency is the number of uploads in flight. Defaults to 1.
	Concurrency int

	Metrics metrics.Metrics
	Logger  *slog.Logger
}

// Syncer runs index synchronization.
type Syncer struct {
	repository  Repository
	blobs       blobstore.Store
	locker      locks.Locker
	lockTTL     time.Duration
	concurrency int
	metrics     metrics.Metrics
	logger      *slog.Logger
}

// New validates config and returns a Syncer.
func New(config Config) (*Syncer, error) {
	if config.Repository == nil {
		return nil, errors.New("indexsync: Repository is required")
	}
	if config.Blobs == nil {
		return nil, errors.New("indexsync: Blobs is required")
	}
	if config.Locker == nil {
		return nil, errors.New("indexsync: Locker is required")
	}
	if config.Logger == nil {
		return nil, errors.New("indexsync: Logger is required")
	}
	syncer := &Syncer{
		repository:  config.Repository,
		blobs:       config.Blobs,
		locker:      config.Locker,
		lockTTL:     config.LockTTL,
		concurrency: config.Concurrency,
		metrics:     config.Metrics,
		logger:      config.Logger,
	}
	if syncer.lockTTL <= 0 {
		syncer.lockTTL = defaultLockTTL
	}
	if syncer.concurrency <= 0 {
		syncer.concurrency = 1
	}
	if syncer.metrics == nil {
		syncer.metrics = metrics.Noop{}
	}
	return syncer, nil
}

// Options controls one run.
type Options struct {
	// Checkpoint is the commit of the previous run. Empty means a
	// full run.
	Checkpoint string

	// Confirm, when set, is shown the head and the number of files
	// before anything is uploaded. Returning false ends the run
	// with an empty report and ErrDeclined.
	Confirm func(head string, files int) bool
}

// Report summarises a run.
type Report struct {
	// Head is the commit the run synchronized to.
	Head string `json:"head"`

	// Files is the number of changed paths considered.
	Files int `json:"files"`

	Uploaded int `json:"uploaded"`

	// Skipped lists crate names whose index file no longer exists.
	Skipped []string `json:"skipped"`

	// Failed lists crate names whose upload failed.
	Failed []string `json:"failed"`
}

// ErrDeclined is returned when Options.Confirm refuses the run.
var ErrDeclined = errors.New("indexsync: run declined")

// Run synchronizes the blob store with the repository head.
func (s *Syncer) Run(ctx context.Context, options Options) (*Report, error) {
	lease, err := s.locker.TryLock(ctx, LockResource, s.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("indexsync: acquiring lock: %w", err)
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, locks.ErrLost) {
			s.logger.Warn("releasing index sync lock", "error", err)
		}
	}()

	head, err := s.repository.Head(ctx)
	if err != nil {
		return nil, fmt.Errorf("indexsync: reading head: %w", err)
	}
	files, err := s.repository.FilesChangedSince(ctx, options.Checkpoint, head)
	if err != nil {
		return nil, fmt.Errorf("indexsync: listing changed files: %w", err)
	}
	s.logger.Info("index sync starting",
		"head", head,
		"checkpoint", options.Checkpoint,
		"files", len(files),
	)

	report := &Report{Head: head, Files: len(files)}
	if options.Confirm != nil && !options.Confirm(head, len(files)) {
		return report, ErrDeclined
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for _, file := range files {
		if groupCtx.Err() != nil {
			break
		}
		group.Go(func() error {
			outcome := s.syncFile(groupCtx, lease, head, file)
			mu.Lock()
			defer mu.Unlock()
			name := path.Base(file)
			switch outcome {
			case metrics.ResultOK:
				report.Uploaded++
			case metrics.ResultSkipped:
				report.Skipped = append(report.Skipped, name)
			default:
				report.Failed = append(report.Failed, name)
			}
			return nil
		})
	}
	group.Wait()

	if err := ctx.Err(); err != nil {
		return report, err
	}
	s.logger.Info("index sync complete",
		"head", head,
		"uploaded", report.Uploaded,
		"skipped", len(report.Skipped),
		"failed", len(report.Failed),
	)
	return report, nil
}

// syncFile uploads one index file and returns a metrics result.
func (s *Syncer) syncFile(ctx context.Context, lease locks.Lease, head, file string) string {
	name := path.Base(file)
	logger := s.logger.With("crate", name, "path", file)

	if cratename.IndexPath(name) != file {
		logger.Warn("skipping file outside the index layout")
		s.metrics.IncIndexUpload(metrics.ResultSkipped)
		return metrics.ResultSkipped
	}

	data, exists, err := s.repository.ReadAt(ctx, head, file)
	if err != nil {
		logger.Error("reading index file", "error", err)
		s.metrics.IncIndexUpload(metrics.ResultFailed)
		return metrics.ResultFailed
	}
	if !exists {
		logger.Warn("skipping index file missing at head")
		s.metrics.IncIndexUpload(metrics.ResultSkipped)
		return metrics.ResultSkipped
	}

	err = s.blobs.Put(ctx, cratename.IndexKey(name), data, blobstore.Metadata{
		ContentType:  blobstore.ContentTypeIndex,
		CacheControl: blobstore.CacheIndex,
	})
	if err != nil {
		logger.Error("uploading index file", "error", err)
		s.metrics.IncIndexUpload(metrics.ResultFailed)
		return metrics.ResultFailed
	}
	if err := lease.Renew(ctx, s.lockTTL); err != nil {
		logger.Warn("renewing index sync lock", "error", err)
	}
	s.metrics.IncIndexUpload(metrics.ResultOK)
	return metrics.ResultOK
}

// FollowUp returns the command an operator runs next for an
// incremental sync from report's head.
func FollowUp(report *Report) string {
	return "registry upload-index " + report.Head
}
