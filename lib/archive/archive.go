// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/klauspost/compress/gzip"
)

const (
	manifestName = "Cargo.toml"
	vcsInfoName  = ".cargo_vcs_info.json"
)

// Limits bounds the resources one archive may consume.
type Limits struct {
	// MaxCompressed is the ceiling on the raw upload.
	MaxCompressed int64

	// MaxDecompressed is the ceiling on the decompressed tar stream.
	MaxDecompressed int64
}

// Info is what a valid archive yields.
type Info struct {
	Manifest Manifest

	// PathInVCS is the package's directory within its source
	// repository, from .cargo_vcs_info.json. Empty when absent.
	PathInVCS string

	// UnpackedSize is the number of decompressed bytes read.
	UnpackedSize int64
}

type vcsInfo struct {
	PathInVCS string `json:"path_in_vcs"`
}

type manifestCandidate struct {
	name     string
	contents []byte
}

// Process validates data as the archive of the package whose top-level
// directory is prefix ("{name}-{version}"). Rejections are *Error.
func Process(data []byte, prefix string, limits Limits) (*Info, error) {
	if limits.MaxCompressed > 0 && int64(len(data)) > limits.MaxCompressed {
		return nil, &Error{Kind: TooLarge, Limit: limits.MaxCompressed}
	}

	decompressor, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Kind: Malformed, Err: err}
	}
	defer decompressor.Close()

	stream := &boundedReader{reader: decompressor, limit: limits.MaxDecompressed}
	reader := tar.NewReader(stream)
	root := prefix + "/"

	var (
		info       Info
		candidates []manifestCandidate
	)
	for {
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, malformed(err, limits)
		}

		name := header.Name
		if (name != prefix && !strings.HasPrefix(name, root)) || !safePath(name) {
			return nil, &Error{Kind: InvalidPath, Path: name}
		}
		if header.Typeflag == tar.TypeSymlink || header.Typeflag == tar.TypeLink {
			return nil, &Error{Kind: UnexpectedSymlink, Path: name}
		}

		relative := strings.TrimPrefix(name, root)
		switch {
		case relative == vcsInfoName:
			contents, err := io.ReadAll(reader)
			if err != nil {
				return nil, malformed(err, limits)
			}
			var vcs vcsInfo
			// A malformed VCS hint is not fatal; it only affects
			// readme link rewriting.
			if json.Unmarshal(contents, &vcs) == nil {
				info.PathInVCS = vcs.PathInVCS
			}
		case !strings.Contains(relative, "/") && strings.EqualFold(relative, manifestName):
			contents, err := io.ReadAll(reader)
			if err != nil {
				return nil, malformed(err, limits)
			}
			candidates = append(candidates, manifestCandidate{name: relative, contents: contents})
		}
	}

	// Anything after the tar end-of-archive marker still counts
	// toward the decompressed limit and must pass the gzip checksum.
	if _, err := io.Copy(io.Discard, stream); err != nil {
		return nil, malformed(err, limits)
	}
	info.UnpackedSize = stream.read

	switch len(candidates) {
	case 0:
		return nil, &Error{Kind: MissingManifest}
	case 1:
		if candidates[0].name != manifestName {
			return nil, &Error{Kind: IncorrectlyCasedManifest, Path: candidates[0].name}
		}
	default:
		paths := make([]string, len(candidates))
		for i, candidate := range candidates {
			paths[i] = candidate.name
		}
		return nil, &Error{Kind: TooManyManifests, Paths: paths}
	}

	manifest, err := parseManifest(candidates[0].contents)
	if err != nil {
		return nil, &Error{Kind: InvalidManifest, Err: err}
	}
	info.Manifest = *manifest
	return &info, nil
}

func malformed(err error, limits Limits) *Error {
	rejection := &Error{Kind: Malformed, Err: err}
	if errors.Is(err, ErrUnpackLimit) {
		rejection.Limit = limits.MaxDecompressed
	}
	return rejection
}

// safePath rejects absolute paths and any ".." component. Paths are
// compared in tar's slash-separated form; backslashes are treated as
// separators too so a Windows-style traversal cannot slip through.
func safePath(name string) bool {
	if strings.HasPrefix(name, "/") || strings.Contains(name, "\\") {
		return false
	}
	for _, component := range strings.Split(name, "/") {
		if component == ".." {
			return false
		}
	}
	return path.Clean(name) != "."
}

// boundedReader fails with ErrUnpackLimit as soon as more than limit
// bytes have been read. A non-positive limit means unlimited.
type boundedReader struct {
	reader io.Reader
	limit  int64
	read   int64
}

func (b *boundedReader) Read(p []byte) (int, error) {
	if b.limit <= 0 {
		n, err := b.reader.Read(p)
		b.read += int64(n)
		return n, err
	}
	if b.read > b.limit {
		return 0, ErrUnpackLimit
	}
	// Allow one byte past the limit so crossing it is detectable
	// without a further read.
	if allowed := b.limit - b.read + 1; int64(len(p)) > allowed {
		p = p[:allowed]
	}
	n, err := b.reader.Read(p)
	b.read += int64(n)
	if b.read > b.limit {
		return n, ErrUnpackLimit
	}
	return n, err
}
