// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package github answers team questions for crate ownership against
// the GitHub REST API: resolving "github:org:team" names to numeric
// ids and checking team membership and organization ownership.
//
// [Directory] implements rights.TeamDirectory. Requests authenticate
// with a token, honour GitHub's rate limit headers and go over HTTPS
// only.
package github
