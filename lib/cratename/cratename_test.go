// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cratename

import (
	"strings"
	"testing"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"serde", "serde"},
		{"Serde", "serde"},
		{"foo-bar", "foo_bar"},
		{"FOO_Bar", "foo_bar"},
		{"a-b_c", "a_b_c"},
	}
	for _, test := range tests {
		if got := Canonical(test.name); got != test.want {
			t.Errorf("Canonical(%q) = %q, want %q", test.name, got, test.want)
		}
	}
	if Canonical("Foo-Bar") != Canonical("foo_bar") {
		t.Error("case and punctuation variants must collide")
	}
}

func TestValid(t *testing.T) {
	valid := []string{"a", "serde", "foo-bar", "foo_bar", "x86", "A1", strings.Repeat("a", MaxLength)}
	for _, name := range valid {
		if !Valid(name) {
			t.Errorf("Valid(%q) = false, want true", name)
		}
	}
	invalid := []string{"", "1abc", "-foo", "_foo", "foo bar", "foo.bar", "föö", strings.Repeat("a", MaxLength+1)}
	for _, name := range invalid {
		if Valid(name) {
			t.Errorf("Valid(%q) = true, want false", name)
		}
	}
}

func TestIndexPath(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"a", "1/a"},
		{"ab", "2/ab"},
		{"abc", "3/a/abc"},
		{"abcd", "ab/cd/abcd"},
		{"Serde", "se/rd/serde"},
		{"foo_whitelist", "fo/o_/foo_whitelist"},
	}
	for _, test := range tests {
		if got := IndexPath(test.name); got != test.want {
			t.Errorf("IndexPath(%q) = %q, want %q", test.name, got, test.want)
		}
	}
}

func TestKeys(t *testing.T) {
	if got := IndexKey("foo_whitelist"); got != "index/fo/o_/foo_whitelist" {
		t.Errorf("IndexKey = %q", got)
	}
	if got := ArchiveKey("foo_whitelist", "1.1.0"); got != "crates/foo_whitelist/foo_whitelist-1.1.0.crate" {
		t.Errorf("ArchiveKey = %q", got)
	}
	if got := ReadmeKey("foo", "0.1.0"); got != "readmes/foo/foo-0.1.0.html" {
		t.Errorf("ReadmeKey = %q", got)
	}
}
