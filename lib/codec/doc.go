// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the registry's CBOR configuration.
//
// Background job payloads are stored in the database as CBOR. Every
// package that enqueues or runs jobs encodes through this package so
// payload bytes are identical across binaries:
//
//	data, err := codec.Marshal(payload)
//	err = codec.Unmarshal(data, &payload)
//
// Payload types use `cbor` struct tags. Types that also appear in CLI
// JSON output use `json` tags only; fxamacker/cbor falls back to them.
package codec
