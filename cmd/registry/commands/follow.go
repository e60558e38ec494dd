// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/registry/cmd/registry/cli"
	"github.com/bureau-foundation/registry/lib/apperr"
	"github.com/bureau-foundation/registry/lib/store"
)

type followParams struct {
	configParams
	actorParams
	cli.JSONOutput
}

// followCommand builds "follow" or, with follow false, "unfollow".
// Both are idempotent. "follow" without crates lists what the user
// follows.
func followCommand(out io.Writer, follow bool) *cli.Command {
	var params followParams
	name, summary := "follow", "Follow crates, or list followed crates"
	if !follow {
		name, summary = "unfollow", "Stop following crates"
	}
	usage := fmt.Sprintf("registry %s --user LOGIN CRATE...", name)
	least := 1
	if follow {
		usage = "registry follow --user LOGIN [CRATE...]"
		least = 0
	}
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   usage,
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams(name, &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExpectArgs(args, least, -1, usage); err != nil {
				return err
			}
			login, err := params.login()
			if err != nil {
				return err
			}
			return withEnvironment(params.configParams, func(env *environment) error {
				actor, err := env.Actor(ctx, login)
				if err != nil {
					return err
				}
				if len(args) == 0 {
					var followed []string
					err := env.store.Read(ctx, func(conn *sqlite.Conn) error {
						followed, err = store.FollowedCrates(conn, actor.UserID)
						return err
					})
					if err != nil {
						return err
					}
					if done, err := params.EmitJSON(out, followed); done {
						return err
					}
					for _, crate := range followed {
						fmt.Fprintln(out, crate)
					}
					return nil
				}
				return env.store.Transact(ctx, func(conn *sqlite.Conn) error {
					for _, crateName := range args {
						crate, err := store.CrateByName(conn, crateName)
						if errors.Is(err, store.ErrNotFound) {
							return apperr.Inputf("crate `%s` does not exist", crateName)
						}
						if err != nil {
							return err
						}
						if follow {
							err = store.Follow(conn, actor.UserID, crate.ID)
						} else {
							err = store.Unfollow(conn, actor.UserID, crate.ID)
						}
						if err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
}
