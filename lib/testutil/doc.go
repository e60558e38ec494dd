// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for registry packages.
//
// [CrateArchive] and [TarGz] build gzip-compressed tar archives in
// memory, so archive validation and publish tests describe their
// fixtures inline instead of checking binary files into the tree.
// [Manifest] renders a minimal Cargo.toml that passes metadata
// validation.
//
// [RequireReceive] encapsulates the timeout safety valve pattern
// (select with time.After fallback) so that individual tests do not
// need direct time.After calls.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
