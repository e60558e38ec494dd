// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package git drives the git CLI for the registry's index repository.
// Every command targets one working tree through "git -C <dir>"; the
// commit identity is passed with -c so no global git configuration is
// needed.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// ErrNoCommits is returned by Head for a repository without commits.
var ErrNoCommits = errors.New("git: repository has no commits")

// Repository is a git working tree. Writes are serialized within the
// process.
type Repository struct {
	dir         string
	authorName  string
	authorEmail string

	mu sync.Mutex
}

// NewRepository returns a Repository for the working tree at dir.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir, authorName: "registry", authorEmail: "registry@localhost"}
}

// Init creates an empty repository at dir, or reopens an existing
// one (git init is idempotent).
func Init(ctx context.Context, dir string) (*Repository, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("git: creating %s: %w", dir, err)
	}
	repository := NewRepository(dir)
	if _, err := repository.Run(ctx, "init", "--quiet"); err != nil {
		return nil, err
	}
	return repository, nil
}

// SetAuthor sets the identity recorded on commits.
func (r *Repository) SetAuthor(name, email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authorName = name
	r.authorEmail = email
}

// Dir returns the working tree directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes git in the repository and returns stdout. Stderr is
// folded into the error on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	output, err := r.run(ctx, args...)
	return string(output), err
}

func (r *Repository) run(ctx context.Context, args ...string) ([]byte, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr
	if err := command.Run(); err != nil {
		return nil, fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// Head returns the commit id of HEAD.
func (r *Repository) Head(ctx context.Context) (string, error) {
	command := exec.CommandContext(ctx, "git", "-C", r.dir, "rev-parse", "--verify", "--quiet", "HEAD^{commit}")
	output, err := command.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) && exitError.ExitCode() == 1 {
			return "", ErrNoCommits
		}
		return "", fmt.Errorf("git rev-parse HEAD in %s: %w", r.dir, err)
	}
	return strings.TrimSpace(string(output)), nil
}

// ListFiles returns every file path in commit's tree.
func (r *Repository) ListFiles(ctx context.Context, commit string) ([]string, error) {
	output, err := r.run(ctx, "ls-tree", "-r", "-z", "--name-only", commit)
	if err != nil {
		return nil, err
	}
	return splitNUL(output), nil
}

// FilesChangedSince lists the paths that differ between since and
// head, including deleted ones. An empty since lists every file in
// head.
func (r *Repository) FilesChangedSince(ctx context.Context, since, head string) ([]string, error) {
	if since == "" {
		return r.ListFiles(ctx, head)
	}
	output, err := r.run(ctx, "diff", "--name-only", "-z", "--no-renames", since, head, "--")
	if err != nil {
		return nil, err
	}
	return splitNUL(output), nil
}

// ReadAt returns the contents of path at commit. exists is false when
// the path is not in that tree.
func (r *Repository) ReadAt(ctx context.Context, commit, path string) (data []byte, exists bool, err error) {
	entry, err := r.run(ctx, "ls-tree", "-z", commit, "--", path)
	if err != nil {
		return nil, false, err
	}
	if len(splitNUL(entry)) == 0 {
		return nil, false, nil
	}
	data, err = r.run(ctx, "cat-file", "blob", commit+":"+path)
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// WriteAndCommit writes data to path in the working tree and commits
// it. When the file already holds data, nothing is committed and
// changed is false. The returned commit is HEAD afterwards.
func (r *Repository) WriteAndCommit(ctx context.Context, path string, data []byte, message string) (commit string, changed bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	clean := filepath.Clean(filepath.FromSlash(path))
	if filepath.IsAbs(clean) || clean == "." || strings.HasPrefix(clean, "..") {
		return "", false, fmt.Errorf("git: invalid path %q", path)
	}
	target := filepath.Join(r.dir, clean)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", false, fmt.Errorf("git: creating directory for %s: %w", path, err)
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", false, fmt.Errorf("git: writing %s: %w", path, err)
	}
	if _, err := r.run(ctx, "add", "--", filepath.ToSlash(clean)); err != nil {
		return "", false, err
	}

	staged, err := r.run(ctx, "diff", "--cached", "--name-only", "-z")
	if err != nil {
		return "", false, err
	}
	if len(splitNUL(staged)) == 0 {
		head, err := r.Head(ctx)
		return head, false, err
	}

	_, err = r.run(ctx,
		"-c", "user.name="+r.authorName,
		"-c", "user.email="+r.authorEmail,
		"-c", "commit.gpgsign=false",
		"commit", "--quiet", "--no-verify", "-m", message,
	)
	if err != nil {
		return "", false, err
	}
	head, err := r.Head(ctx)
	return head, true, err
}

func splitNUL(output []byte) []string {
	var paths []string
	for _, field := range bytes.Split(output, []byte{0}) {
		if len(field) > 0 {
			paths = append(paths, string(field))
		}
	}
	return paths
}
