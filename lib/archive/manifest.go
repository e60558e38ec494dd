// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"errors"

	"github.com/BurntSushi/toml"
)

// Manifest is the subset of Cargo.toml the registry reads.
type Manifest struct {
	Package *Package `toml:"package"`
}

// Package is the [package] table. Fields inherited from a workspace
// (`license.workspace = true`) are tables rather than strings and fail
// to decode; clients normalize the manifest before upload.
type Package struct {
	Name          string   `toml:"name"`
	Version       string   `toml:"version"`
	Description   string   `toml:"description"`
	License       string   `toml:"license"`
	LicenseFile   string   `toml:"license-file"`
	Homepage      string   `toml:"homepage"`
	Documentation string   `toml:"documentation"`
	Repository    string   `toml:"repository"`
	Keywords      []string `toml:"keywords"`
	Categories    []string `toml:"categories"`
	Links         string   `toml:"links"`
	RustVersion   string   `toml:"rust-version"`
}

func parseManifest(data []byte) (*Manifest, error) {
	var manifest Manifest
	if _, err := toml.Decode(string(data), &manifest); err != nil {
		return nil, err
	}
	if manifest.Package == nil {
		return nil, errors.New("missing field `package`")
	}
	return &manifest, nil
}
