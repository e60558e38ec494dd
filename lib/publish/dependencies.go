// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"errors"
	"strings"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/registry/lib/apperr"
	"github.com/bureau-foundation/registry/lib/store"
	"github.com/bureau-foundation/registry/lib/wire"
)

// linkDependencies resolves every declared edge before any is written,
// so a bad edge leaves no partial rows. Targets match by exact name so
// the index always refers to a crate as it was first published.
func linkDependencies(conn *sqlite.Conn, deps []wire.Dependency) ([]store.NewDependency, error) {
	edges := make([]store.NewDependency, 0, len(deps))
	for _, dep := range deps {
		if dep.Registry != nil && *dep.Registry != "" {
			return nil, apperr.Inputf("Dependency `%s` is hosted on another registry. Cross-registry dependencies are not permitted on crates.io.", dep.Name)
		}

		target, err := store.CrateByExactName(conn, dep.Name)
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Inputf("no known crate named `%s`", dep.Name)
		}
		if err != nil {
			return nil, err
		}

		if isWildcard(dep.VersionReq) {
			return nil, apperr.Inputf("wildcard (`*`) dependency constraints are not allowed on crates.io. "+
				"Crate with this problem: `%s` See https://doc.rust-lang.org/cargo/faq.html#can-libraries-use--as-a-version-for-their-dependencies for more information", dep.Name)
		}

		edge := store.NewDependency{
			CrateID:         target.ID,
			Req:             dep.VersionReq,
			Kind:            dep.Kind,
			Optional:        dep.Optional,
			DefaultFeatures: dep.DefaultFeatures,
			Features:        dep.Features,
		}
		if dep.Target != nil {
			edge.Target = *dep.Target
		}
		if dep.ExplicitNameInToml != nil {
			edge.ExplicitName = *dep.ExplicitNameInToml
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

// isWildcard reports whether req accepts every version. Cargo reads a
// bare `x` or `X` the same as `*`.
func isWildcard(req string) bool {
	switch strings.TrimSpace(req) {
	case "*", "x", "X":
		return true
	}
	return false
}
