// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/bureau-foundation/registry/cmd/registry/cli"
	"github.com/bureau-foundation/registry/lib/version"
)

func versionCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "version",
		Summary: "Print build information",
		Run: func(context.Context, []string) error {
			fmt.Fprintln(out, version.Full())
			return nil
		},
	}
}
