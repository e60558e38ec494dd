// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an archive rejection.
type Kind int

const (
	// Malformed covers corrupt gzip or tar framing and archives that
	// exceed the decompressed limit.
	Malformed Kind = iota + 1
	InvalidPath
	UnexpectedSymlink
	MissingManifest
	IncorrectlyCasedManifest
	TooManyManifests
	InvalidManifest

	// TooLarge means the compressed archive exceeded its limit;
	// decompression was not attempted.
	TooLarge
)

// ErrUnpackLimit is the cause of a Malformed error raised because the
// decompressed stream crossed its limit.
var ErrUnpackLimit = errors.New("decompressed size limit exceeded")

// Error is a typed archive rejection. Error() renders the message
// shown to the publishing client.
type Error struct {
	Kind Kind

	// Path is the offending member for InvalidPath and
	// UnexpectedSymlink, and the found name for
	// IncorrectlyCasedManifest.
	Path string

	// Paths lists the manifest candidates for TooManyManifests.
	Paths []string

	// Limit is the exceeded byte ceiling, for TooLarge and for
	// Malformed caused by ErrUnpackLimit.
	Limit int64

	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case Malformed:
		return "uploaded tarball is malformed or too large when decompressed"
	case InvalidPath:
		return "invalid path found: " + e.Path
	case UnexpectedSymlink:
		return "unexpected symlink or hard link found: " + e.Path
	case MissingManifest:
		return "uploaded tarball is missing a `Cargo.toml` manifest file"
	case IncorrectlyCasedManifest:
		return fmt.Sprintf("uploaded tarball is missing a `Cargo.toml` manifest file; `%s` was found, but must be named `Cargo.toml` with that exact casing", e.Path)
	case TooManyManifests:
		return fmt.Sprintf("uploaded tarball contains more than one `Cargo.toml` manifest file; found `%s`", strings.Join(e.Paths, "`, `"))
	case InvalidManifest:
		return fmt.Sprintf("failed to parse `Cargo.toml` manifest file\n\n%v", e.Err)
	case TooLarge:
		return fmt.Sprintf("max upload size is: %d", e.Limit)
	default:
		return fmt.Sprintf("archive: rejected (kind %d)", int(e.Kind))
	}
}

func (e *Error) Unwrap() error { return e.Err }
