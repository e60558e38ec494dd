// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package indexfile renders per-crate index files: one JSON record per
// published version, one record per line, in publish order.
package indexfile

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/registry/lib/store"
)

// Record is one version line.
type Record struct {
	Name     string              `json:"name"`
	Vers     string              `json:"vers"`
	Deps     []Dependency        `json:"deps"`
	Cksum    string              `json:"cksum"`
	Features map[string][]string `json:"features"`

	// Features2 holds feature entries using the "dep:" or "?"
	// syntax, which older clients cannot parse. Its presence sets V
	// to 2.
	Features2 map[string][]string `json:"features2,omitempty"`

	Yanked      bool   `json:"yanked"`
	Links       string `json:"links,omitempty"`
	RustVersion string `json:"rust_version,omitempty"`
	V           int    `json:"v,omitempty"`
}

// Dependency is one edge of a Record. Name is the name the dependent
// uses; Package is the registered crate when the edge is renamed.
type Dependency struct {
	Name            string   `json:"name"`
	Req             string   `json:"req"`
	Features        []string `json:"features"`
	Optional        bool     `json:"optional"`
	DefaultFeatures bool     `json:"default_features"`
	Target          *string  `json:"target"`
	Kind            string   `json:"kind"`
	Package         string   `json:"package,omitempty"`
}

// Render encodes records as an index file, one line each.
func Render(records []Record) ([]byte, error) {
	var buffer bytes.Buffer
	encoder := json.NewEncoder(&buffer)
	encoder.SetEscapeHTML(false)
	for i := range records {
		if err := encoder.Encode(&records[i]); err != nil {
			return nil, fmt.Errorf("indexfile: encoding %s %s: %w", records[i].Name, records[i].Vers, err)
		}
	}
	return buffer.Bytes(), nil
}

// Parse decodes an index file. Blank lines are ignored.
func Parse(data []byte) ([]Record, error) {
	var records []Record
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var record Record
		if err := json.Unmarshal(text, &record); err != nil {
			return nil, fmt.Errorf("indexfile: line %d: %w", line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("indexfile: %w", err)
	}
	return records, nil
}

// Build materialises crateName's index file from the record store.
// It returns store.ErrNotFound when the crate does not exist.
func Build(conn *sqlite.Conn, crateName string) ([]byte, error) {
	crate, err := store.CrateByName(conn, crateName)
	if err != nil {
		return nil, err
	}
	versions, err := store.Versions(conn, crate.ID)
	if err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(versions))
	for _, version := range versions {
		deps, err := store.DependenciesOf(conn, version.ID)
		if err != nil {
			return nil, err
		}
		records = append(records, NewRecord(crate.Name, version, deps))
	}
	return Render(records)
}

// NewRecord converts a stored version and its edges to a Record.
func NewRecord(crateName string, version *store.Version, deps []store.Dependency) Record {
	features, features2 := splitFeatures(version.Features)
	record := Record{
		Name:        crateName,
		Vers:        version.Num,
		Deps:        make([]Dependency, 0, len(deps)),
		Cksum:       version.Checksum,
		Features:    features,
		Features2:   features2,
		Yanked:      version.Yanked,
		Links:       version.Links,
		RustVersion: version.RustVersion,
	}
	if len(features2) > 0 {
		record.V = 2
	}
	for _, dep := range deps {
		record.Deps = append(record.Deps, newDependency(dep))
	}
	sort.SliceStable(record.Deps, func(i, j int) bool {
		if record.Deps[i].Name != record.Deps[j].Name {
			return record.Deps[i].Name < record.Deps[j].Name
		}
		return record.Deps[i].Kind < record.Deps[j].Kind
	})
	return record
}

func newDependency(dep store.Dependency) Dependency {
	out := Dependency{
		Name:            dep.CrateName,
		Req:             dep.Req,
		Features:        dep.Features,
		Optional:        dep.Optional,
		DefaultFeatures: dep.DefaultFeatures,
		Kind:            dep.Kind,
	}
	if out.Features == nil {
		out.Features = []string{}
	}
	if dep.Target != "" {
		target := dep.Target
		out.Target = &target
	}
	if dep.ExplicitName != "" {
		out.Name = dep.ExplicitName
		out.Package = dep.CrateName
	}
	return out
}

// splitFeatures moves every feature that enables a "dep:" entry or
// uses a weak "?/" reference into the second map.
func splitFeatures(all map[string][]string) (features, features2 map[string][]string) {
	features = make(map[string][]string, len(all))
	for name, values := range all {
		if needsV2(values) {
			if features2 == nil {
				features2 = make(map[string][]string)
			}
			features2[name] = values
			continue
		}
		features[name] = values
	}
	return features, features2
}

func needsV2(values []string) bool {
	for _, value := range values {
		if strings.HasPrefix(value, "dep:") || strings.Contains(value, "?/") {
			return true
		}
	}
	return false
}
