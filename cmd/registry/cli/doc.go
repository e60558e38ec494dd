// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the registry
// admin tool.
//
// The central type is [Command]: a named node with optional nested
// [Command.Subcommands], a [pflag.FlagSet] factory and a Run function.
// The tree is assembled in cmd/registry/commands and dispatched via
// [Command.Execute], which parses flags, routes subcommands and prints
// help. Unknown commands and flags get a closest-match suggestion.
//
// [FlagsFromParams] binds a params struct's tagged fields to flags,
// [JSONOutput] adds a --json switch, and [Confirm] asks a yes/no
// question on the controlling terminal.
package cli
