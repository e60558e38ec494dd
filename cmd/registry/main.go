// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Command registry administers a package registry.
package main

import (
	"context"
	"os"

	"github.com/bureau-foundation/registry/cmd/registry/commands"
	"github.com/bureau-foundation/registry/lib/process"
)

func main() {
	if err := commands.Root(os.Stdout).Execute(context.Background(), os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}
