// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/registry/cmd/registry/cli"
	"github.com/bureau-foundation/registry/lib/ratelimit"
)

func rateLimitCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "ratelimit",
		Summary: "Manage per-user publish rate limit overrides",
		Subcommands: []*cli.Command{
			rateLimitOverrideCommand(out, true),
			rateLimitOverrideCommand(out, false),
		},
	}
}

type rateLimitParams struct {
	configParams
	Action  string        `flag:"action" desc:"publish-new or publish-update" default:"publish-new"`
	Burst   int           `flag:"burst" desc:"bucket capacity for the user"`
	Expires time.Duration `flag:"expires" desc:"how long the override lasts; zero keeps it until cleared"`
}

func rateLimitOverrideCommand(out io.Writer, set bool) *cli.Command {
	var params rateLimitParams
	name, summary, usage := "set", "Raise or lower one user's burst", "registry ratelimit set --burst N [flags] LOGIN"
	if !set {
		name, summary, usage = "clear", "Return a user to the configured burst", "registry ratelimit clear [flags] LOGIN"
	}
	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   usage,
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams(name, &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExpectArgs(args, 1, 1, usage); err != nil {
				return err
			}
			action := ratelimit.Action(params.Action)
			if action != ratelimit.PublishNew && action != ratelimit.PublishUpdate {
				return fmt.Errorf("unknown action %q", params.Action)
			}
			return withEnvironment(params.configParams, func(env *environment) error {
				limiter, err := env.Limiter()
				if err != nil {
					return err
				}
				actor, err := env.Actor(ctx, args[0])
				if err != nil {
					return err
				}
				if !set {
					if err := limiter.ClearOverride(ctx, actor.UserID, action); err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %s override for %s\n", action, actor.Login)
					return nil
				}
				var expires time.Time
				if params.Expires > 0 {
					expires = env.clock.Now().Add(params.Expires)
				}
				if err := limiter.SetOverride(ctx, actor.UserID, action, params.Burst, expires); err != nil {
					return err
				}
				fmt.Fprintf(out, "Set %s burst for %s to %d\n", action, actor.Login, params.Burst)
				return nil
			})
		},
	}
}
