// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint helpers for the registry
// binary: the one place that writes raw text to stderr and exits,
// before or after the structured logger exists.
package process
