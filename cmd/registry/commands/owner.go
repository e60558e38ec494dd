// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/registry/cmd/registry/cli"
	"github.com/bureau-foundation/registry/lib/owners"
)

func ownerCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "owner",
		Summary: "List, add and remove crate owners",
		Description: `Manage crate owners. An owner is a user login or a team written
github:org:team. Only individual owners may change the owner list; team
members can publish but not manage owners.`,
		Subcommands: []*cli.Command{
			ownerListCommand(out),
			ownerChangeCommand(out, "add"),
			ownerChangeCommand(out, "remove"),
		},
	}
}

func newOwnersService(env *environment) (*owners.Service, error) {
	directory, err := env.Directory()
	if err != nil {
		return nil, err
	}
	return owners.New(owners.Config{Store: env.store, Directory: directory, Clock: env.clock, Logger: env.logger})
}

type ownerListParams struct {
	configParams
	cli.JSONOutput
}

func ownerListCommand(out io.Writer) *cli.Command {
	var params ownerListParams
	return &cli.Command{
		Name:    "list",
		Summary: "List a crate's owners",
		Usage:   "registry owner list [flags] CRATE",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("list", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExpectArgs(args, 1, 1, "registry owner list [flags] CRATE"); err != nil {
				return err
			}
			return withEnvironment(params.configParams, func(env *environment) error {
				service, err := newOwnersService(env)
				if err != nil {
					return err
				}
				list, err := service.List(ctx, args[0])
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(out, list); done {
					return err
				}
				for _, owner := range list {
					fmt.Fprintln(out, owners.String(owner))
				}
				return nil
			})
		},
	}
}

type ownerChangeParams struct {
	configParams
	actorParams
}

func ownerChangeCommand(out io.Writer, verb string) *cli.Command {
	var params ownerChangeParams
	usage := fmt.Sprintf("registry owner %s --user LOGIN CRATE OWNER...", verb)
	summary := "Add owners to a crate"
	if verb == "remove" {
		summary = "Remove owners from a crate"
	}
	return &cli.Command{
		Name:    verb,
		Summary: summary,
		Usage:   usage,
		Examples: []cli.Example{
			{Command: fmt.Sprintf("registry owner %s --user alice serde bob github:serde-rs:maintainers", verb)},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams(verb, &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExpectArgs(args, 2, -1, usage); err != nil {
				return err
			}
			login, err := params.login()
			if err != nil {
				return err
			}
			return withEnvironment(params.configParams, func(env *environment) error {
				service, err := newOwnersService(env)
				if err != nil {
					return err
				}
				actor, err := env.Actor(ctx, login)
				if err != nil {
					return err
				}
				crate := args[0]
				for _, owner := range args[1:] {
					if verb == "add" {
						err = service.Add(ctx, actor, crate, owner)
					} else {
						err = service.Remove(ctx, actor, crate, owner)
					}
					if err != nil {
						return fmt.Errorf("%s %s: %w", verb, owner, err)
					}
					if verb == "add" {
						fmt.Fprintf(out, "Added %s as an owner of %s\n", owner, crate)
					} else {
						fmt.Fprintf(out, "Removed %s from the owners of %s\n", owner, crate)
					}
				}
				return nil
			})
		},
	}
}
