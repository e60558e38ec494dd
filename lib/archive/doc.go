// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive validates an uploaded crate archive.
//
// An archive is a gzip-compressed tar whose members all live under a
// single "{name}-{version}/" directory. Process streams the archive
// once, enforcing two independent ceilings: the compressed size is
// checked before decompression starts, and the decompressed size is
// checked on every read from the gzip stream so a small payload that
// expands without bound is rejected as soon as it crosses the limit.
//
// Along the way it rejects absolute paths, ".." components, members
// outside the package directory, symlinks and hard links, and it
// locates exactly one Cargo.toml at the package root. The manifest is
// decoded with BurntSushi/toml.
package archive
