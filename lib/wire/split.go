// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"

	"github.com/bureau-foundation/registry/lib/apperr"
)

const lengthPrefixSize = 4

// Split separates a publish body into its metadata and archive
// segments. Trailing bytes after the archive segment are ignored. The
// returned slices alias body.
func Split(body []byte) (metadata, archive []byte, err error) {
	if len(body) < lengthPrefixSize {
		return nil, nil, apperr.Inputf("invalid metadata length")
	}
	metadataLength := uint64(binary.LittleEndian.Uint32(body))
	body = body[lengthPrefixSize:]
	if metadataLength > uint64(len(body)) {
		return nil, nil, apperr.Inputf("invalid metadata length for remaining payload: %d", metadataLength)
	}
	metadata, body = body[:metadataLength], body[metadataLength:]

	if len(body) < lengthPrefixSize {
		return nil, nil, apperr.Inputf("invalid tarball length")
	}
	archiveLength := uint64(binary.LittleEndian.Uint32(body))
	body = body[lengthPrefixSize:]
	if archiveLength > uint64(len(body)) {
		return nil, nil, apperr.Inputf("invalid tarball length for remaining payload: %d", archiveLength)
	}
	return metadata, body[:archiveLength], nil
}

// Encode builds a publish body from its two segments. Used by the admin
// CLI and by tests.
func Encode(metadata, archive []byte) []byte {
	body := make([]byte, 0, 2*lengthPrefixSize+len(metadata)+len(archive))
	body = binary.LittleEndian.AppendUint32(body, uint32(len(metadata)))
	body = append(body, metadata...)
	body = binary.LittleEndian.AppendUint32(body, uint32(len(archive)))
	body = append(body, archive...)
	return body
}
