// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cratename holds the naming rules shared by the publish
// pipeline, the record store and the index: canonicalization, the
// crate-name grammar, and the blob-store keys derived from a name.
package cratename

import (
	"strings"
)

// MaxLength is the longest accepted crate name.
const MaxLength = 64

// Canonical folds a name to the form used for uniqueness: lowercase,
// with '-' and '_' treated as the same character. "Foo-Bar" and
// "foo_bar" collide.
func Canonical(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), "-", "_")
}

// Valid reports whether name is an acceptable crate name: between 1 and
// MaxLength ASCII characters, starting with a letter, containing only
// letters, digits, '-' and '_'.
func Valid(name string) bool {
	if name == "" || len(name) > MaxLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case isASCIILetter(c):
		case i > 0 && (isASCIIDigit(c) || c == '-' || c == '_'):
		default:
			return false
		}
	}
	return true
}

// IndexPath returns the sharded relative path of a crate's index file.
// The lowercased name is split into directory prefixes so no directory
// holds more than a bounded fan-out of entries:
//
//	a        -> 1/a
//	ab       -> 2/ab
//	abc      -> 3/a/abc
//	serde    -> se/rd/serde
func IndexPath(name string) string {
	lower := strings.ToLower(name)
	switch len(lower) {
	case 0:
		return ""
	case 1:
		return "1/" + lower
	case 2:
		return "2/" + lower
	case 3:
		return "3/" + lower[:1] + "/" + lower
	default:
		return lower[:2] + "/" + lower[2:4] + "/" + lower
	}
}

// IndexKey is the blob-store key of a crate's sparse index file.
func IndexKey(name string) string {
	return "index/" + IndexPath(name)
}

// ArchiveKey is the blob-store key of an uploaded archive.
func ArchiveKey(name, version string) string {
	return "crates/" + name + "/" + name + "-" + version + ".crate"
}

// ReadmeKey is the blob-store key of a rendered readme.
func ReadmeKey(name, version string) string {
	return "readmes/" + name + "/" + name + "-" + version + ".html"
}

func isASCIILetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isASCIIDigit(c byte) bool {
	return '0' <= c && c <= '9'
}
