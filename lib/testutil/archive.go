// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"archive/tar"
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
)

// Entry is one tar member. A zero Typeflag means a regular file.
type Entry struct {
	Name     string
	Body     []byte
	Typeflag byte
	Linkname string
}

// File is shorthand for a regular file entry.
func File(name, body string) Entry {
	return Entry{Name: name, Body: []byte(body)}
}

// TarGz builds a gzip-compressed tar archive from entries.
func TarGz(t testing.TB, entries ...Entry) []byte {
	t.Helper()

	var buffer bytes.Buffer
	compressor := gzip.NewWriter(&buffer)
	writer := tar.NewWriter(compressor)
	for _, entry := range entries {
		header := &tar.Header{
			Name:     entry.Name,
			Mode:     0o644,
			Size:     int64(len(entry.Body)),
			Typeflag: entry.Typeflag,
			Linkname: entry.Linkname,
		}
		if header.Typeflag == 0 {
			header.Typeflag = tar.TypeReg
		}
		if header.Typeflag != tar.TypeReg {
			header.Size = 0
		}
		if err := writer.WriteHeader(header); err != nil {
			t.Fatalf("tar header %s: %v", entry.Name, err)
		}
		if header.Size > 0 {
			if _, err := writer.Write(entry.Body); err != nil {
				t.Fatalf("tar body %s: %v", entry.Name, err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := compressor.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buffer.Bytes()
}

// CrateArchive builds the archive of name@version with the given
// manifest text at its root and any extra entries. Extra entry names
// are relative to the "{name}-{version}/" directory.
func CrateArchive(t testing.TB, name, version, manifest string, extra ...Entry) []byte {
	t.Helper()

	prefix := name + "-" + version + "/"
	entries := []Entry{File(prefix+"Cargo.toml", manifest)}
	for _, entry := range extra {
		entry.Name = prefix + strings.TrimPrefix(entry.Name, "/")
		entries = append(entries, entry)
	}
	return TarGz(t, entries...)
}

// Manifest renders a minimal valid Cargo.toml. Extra lines are
// appended inside the [package] table.
func Manifest(name, version string, extra ...string) string {
	var builder strings.Builder
	fmt.Fprintf(&builder, "[package]\nname = %q\nversion = %q\n", name, version)
	hasDescription, hasLicense := false, false
	for _, line := range extra {
		key := strings.TrimSpace(strings.SplitN(line, "=", 2)[0])
		switch key {
		case "description":
			hasDescription = true
		case "license", "license-file":
			hasLicense = true
		}
	}
	if !hasDescription {
		builder.WriteString("description = \"a test crate\"\n")
	}
	if !hasLicense {
		builder.WriteString("license = \"MIT\"\n")
	}
	for _, line := range extra {
		builder.WriteString(line)
		builder.WriteString("\n")
	}
	return builder.String()
}
