// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands assembles the registry admin command tree.
package commands

import (
	"io"

	"github.com/bureau-foundation/registry/cmd/registry/cli"
)

// newLogger builds the logger each command runs with. Tests replace
// it to keep output quiet.
var newLogger = cli.NewCommandLogger

// Root returns the top-level command. Command results are written to
// out; logs and prompts go to stderr.
func Root(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "registry",
		Summary: "Administer a package registry",
		Description: `Administer a package registry: publish crates, manage owners, run
background jobs and synchronize the index to blob storage.

Every command reads its configuration from --config or the file named by
REGISTRY_CONFIG.`,
		Subcommands: []*cli.Command{
			publishCommand(out),
			uploadIndexCommand(out),
			jobsCommand(out),
			ownerCommand(out),
			followCommand(out, true),
			followCommand(out, false),
			rateLimitCommand(out),
			migrateCommand(out),
			versionCommand(out),
		},
	}
}
