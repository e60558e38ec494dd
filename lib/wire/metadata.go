// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bureau-foundation/registry/lib/apperr"
	"github.com/bureau-foundation/registry/lib/cratename"
)

//go:embed publish_metadata.schema.json
var metadataSchemaJSON []byte

const metadataSchemaID = "inmemory://publish_metadata.schema.json"

var metadataSchema = compileSchema()

func compileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(metadataSchemaID, bytes.NewReader(metadataSchemaJSON)); err != nil {
		panic(fmt.Sprintf("wire: add schema resource: %v", err))
	}
	return compiler.MustCompile(metadataSchemaID)
}

// PublishMetadata is the JSON segment of a publish body as sent by the
// client. Descriptive fields (description, license, URLs, keywords,
// categories) are read from the archive's manifest instead; only the
// fields below are taken from the request.
type PublishMetadata struct {
	Name     string              `json:"name"`
	Vers     string              `json:"vers"`
	Deps     []Dependency        `json:"deps"`
	Features map[string][]string `json:"features"`

	// Readme is the raw readme text, rendered asynchronously.
	Readme *string `json:"readme,omitempty"`

	// ReadmeFile is the readme's path inside the package, used to
	// resolve relative links. Defaults to README.md when rendering.
	ReadmeFile *string `json:"readme_file,omitempty"`
}

// Dependency is one declared dependency edge.
type Dependency struct {
	Name            string   `json:"name"`
	VersionReq      string   `json:"version_req"`
	Features        []string `json:"features"`
	Optional        bool     `json:"optional"`
	DefaultFeatures bool     `json:"default_features"`
	Target          *string  `json:"target,omitempty"`
	Kind            string   `json:"kind,omitempty"`

	// Registry is the index URL of a foreign registry. Only empty or
	// absent is accepted.
	Registry *string `json:"registry,omitempty"`

	// ExplicitNameInToml is the local rename, when the dependent's
	// manifest uses `package = "..."`. Name is then the real crate.
	ExplicitNameInToml *string `json:"explicit_name_in_toml,omitempty"`
}

// DecodeMetadata validates and decodes the metadata segment. Every
// failure is an apperr.Input error prefixed "invalid upload request: ".
func DecodeMetadata(data []byte) (*PublishMetadata, error) {
	var document any
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, invalidRequest(err)
	}
	if err := metadataSchema.Validate(document); err != nil {
		return nil, invalidRequest(err)
	}

	var metadata PublishMetadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, invalidRequest(err)
	}

	if !cratename.Valid(metadata.Name) {
		return nil, invalidRequest(fmt.Errorf("invalid crate name %q; crate names must start with a letter, contain only letters, numbers, `-` or `_`, and be at most %d characters", metadata.Name, cratename.MaxLength))
	}
	version, err := semver.StrictNewVersion(metadata.Vers)
	if err != nil {
		return nil, invalidRequest(fmt.Errorf("invalid semver %q: %w", metadata.Vers, err))
	}
	metadata.Vers = version.String()

	for i := range metadata.Deps {
		dep := &metadata.Deps[i]
		if dep.Kind == "" {
			dep.Kind = KindNormal
		}
		dep.VersionReq = strings.TrimSpace(dep.VersionReq)
	}
	if metadata.Features == nil {
		metadata.Features = map[string][]string{}
	}
	return &metadata, nil
}

// Dependency kinds.
const (
	KindNormal = "normal"
	KindBuild  = "build"
	KindDev    = "dev"
)

func invalidRequest(err error) error {
	return apperr.Inputf("invalid upload request: %v", err)
}
