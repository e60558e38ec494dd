// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/registry/lib/blobstore"
	"github.com/bureau-foundation/registry/lib/cratename"
	"github.com/bureau-foundation/registry/lib/indexfile"
	"github.com/bureau-foundation/registry/lib/jobqueue"
	"github.com/bureau-foundation/registry/lib/readme"
	"github.com/bureau-foundation/registry/lib/store"
)

// ReadmeJob is the payload of a render_and_upload_readme job.
type ReadmeJob struct {
	VersionID  int64  `cbor:"version_id"`
	Crate      string `cbor:"crate"`
	Version    string `cbor:"version"`
	Text       string `cbor:"text"`
	File       string `cbor:"file"`
	Repository string `cbor:"repository,omitempty"`
	PathInVCS  string `cbor:"path_in_vcs,omitempty"`
}

// SyncJob is the payload of both index sync jobs.
type SyncJob struct {
	Crate string `cbor:"crate"`
}

// IndexWriter commits index files to the git index.
type IndexWriter interface {
	WriteAndCommit(ctx context.Context, path string, data []byte, message string) (commit string, changed bool, err error)
}

// JobsConfig configures Jobs.
type JobsConfig struct {
	Store *store.Store
	Blobs blobstore.Store

	// Index is the git index repository. When nil the
	// sync_to_git_index handler is not registered.
	Index IndexWriter

	Logger *slog.Logger
}

// Jobs executes the work Publish enqueues.
type Jobs struct {
	store  *store.Store
	blobs  blobstore.Store
	index  IndexWriter
	logger *slog.Logger
}

// NewJobs validates config and returns Jobs.
func NewJobs(config JobsConfig) (*Jobs, error) {
	if config.Store == nil {
		return nil, errors.New("publish: JobsConfig.Store is required")
	}
	if config.Blobs == nil {
		return nil, errors.New("publish: JobsConfig.Blobs is required")
	}
	if config.Logger == nil {
		return nil, errors.New("publish: JobsConfig.Logger is required")
	}
	return &Jobs{store: config.Store, blobs: config.Blobs, index: config.Index, logger: config.Logger}, nil
}

// Register installs the handlers on runner.
func (j *Jobs) Register(runner *jobqueue.Runner) {
	runner.Register(jobqueue.RenderReadme, j.RenderReadme)
	runner.Register(jobqueue.SyncToSparseIndex, j.SyncToSparseIndex)
	if j.index != nil {
		runner.Register(jobqueue.SyncToGitIndex, j.SyncToGitIndex)
	}
}

// RenderReadme renders the readme and stores the HTML. Relative links
// resolve against the readme's directory in the repository.
func (j *Jobs) RenderReadme(ctx context.Context, job *jobqueue.Job) error {
	var payload ReadmeJob
	if err := job.Decode(&payload); err != nil {
		return jobqueue.Permanent(err)
	}
	html, err := readme.RenderFile(payload.File, payload.Text, readme.Options{
		BaseURL:   payload.Repository,
		PathInVCS: path.Join(payload.PathInVCS, path.Dir(payload.File)),
	})
	if err != nil {
		return jobqueue.Permanent(err)
	}
	err = j.blobs.Put(ctx, cratename.ReadmeKey(payload.Crate, payload.Version), []byte(html), blobstore.Metadata{
		ContentType:  blobstore.ContentTypeHTML,
		CacheControl: blobstore.CacheImmutable,
	})
	if err != nil {
		return fmt.Errorf("uploading readme for %s@%s: %w", payload.Crate, payload.Version, err)
	}
	j.logger.Info("readme rendered", "crate", payload.Crate, "version", payload.Version, "bytes", len(html))
	return nil
}

// SyncToGitIndex rewrites the crate's file in the git index.
func (j *Jobs) SyncToGitIndex(ctx context.Context, job *jobqueue.Job) error {
	if j.index == nil {
		return jobqueue.Permanent(errors.New("no git index configured"))
	}
	name, data, err := j.buildIndexFile(ctx, job)
	if err != nil {
		return err
	}
	commit, changed, err := j.index.WriteAndCommit(ctx, cratename.IndexPath(name), data, "Update crate `"+name+"`")
	if err != nil {
		return fmt.Errorf("committing index file for %s: %w", name, err)
	}
	j.logger.Info("git index synced", "crate", name, "commit", commit, "changed", changed)
	return nil
}

// SyncToSparseIndex uploads the crate's file to the sparse index.
func (j *Jobs) SyncToSparseIndex(ctx context.Context, job *jobqueue.Job) error {
	name, data, err := j.buildIndexFile(ctx, job)
	if err != nil {
		return err
	}
	err = j.blobs.Put(ctx, cratename.IndexKey(name), data, blobstore.Metadata{
		ContentType:  blobstore.ContentTypeIndex,
		CacheControl: blobstore.CacheIndex,
	})
	if err != nil {
		return fmt.Errorf("uploading index file for %s: %w", name, err)
	}
	j.logger.Info("sparse index synced", "crate", name, "bytes", len(data))
	return nil
}

func (j *Jobs) buildIndexFile(ctx context.Context, job *jobqueue.Job) (string, []byte, error) {
	var payload SyncJob
	if err := job.Decode(&payload); err != nil {
		return "", nil, jobqueue.Permanent(err)
	}
	var data []byte
	err := j.store.Read(ctx, func(conn *sqlite.Conn) error {
		var err error
		data, err = indexfile.Build(conn, payload.Crate)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return "", nil, jobqueue.Permanent(fmt.Errorf("crate %s does not exist", payload.Crate))
	}
	if err != nil {
		return "", nil, fmt.Errorf("building index file for %s: %w", payload.Crate, err)
	}
	return payload.Crate, data, nil
}
