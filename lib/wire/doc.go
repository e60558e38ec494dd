// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire decodes the publish request body.
//
// A publish body is two length-prefixed segments:
//
//	u32 little-endian   metadata length
//	[]byte              metadata, a JSON document
//	u32 little-endian   archive length
//	[]byte              archive, a gzip-compressed tar
//
// Split checks both lengths against the bytes actually present before
// anything downstream looks at either segment. DecodeMetadata then
// validates the JSON against an embedded schema, decodes it, and checks
// the crate name grammar and the version syntax.
package wire
