// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for the registry binary.
//
// [Version], [GitCommit] and [BuildTime] are injected at build time:
//
//	go build -ldflags "-X github.com/bureau-foundation/registry/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// When GitCommit is not injected, the VCS revision the Go toolchain
// embeds in the binary is used instead.
package version
