// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/pflag"
	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/registry/cmd/registry/cli"
	"github.com/bureau-foundation/registry/lib/git"
	"github.com/bureau-foundation/registry/lib/metadata"
	"github.com/bureau-foundation/registry/lib/store"
)

func migrateCommand(out io.Writer) *cli.Command {
	var params configParams
	return &cli.Command{
		Name:    "migrate",
		Summary: "Create or upgrade the database and index repository",
		Description: `Bring the database schema up to date, seed the category taxonomy from
categories_file, reserve the configured crate names and initialize the git
index repository. Safe to run repeatedly.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("migrate", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExpectArgs(args, 0, 0, "registry migrate [flags]"); err != nil {
				return err
			}
			return withEnvironment(params, func(env *environment) error {
				return runMigrate(ctx, env, out)
			})
		},
	}
}

func runMigrate(ctx context.Context, env *environment, out io.Writer) error {
	var categories []metadata.Category
	if path := env.config.CategoriesFile; path != "" {
		var err error
		categories, err = metadata.LoadTaxonomy(path)
		if err != nil {
			return err
		}
	}

	err := env.store.Transact(ctx, func(conn *sqlite.Conn) error {
		if len(categories) > 0 {
			if err := store.SeedCategories(conn, categories); err != nil {
				return err
			}
		}
		return store.ReserveNames(conn, env.config.ReservedNames...)
	})
	if err != nil {
		return err
	}

	if _, err := git.Init(ctx, env.config.Index.Repository); err != nil {
		return err
	}

	fmt.Fprintf(out, "Database %s is up to date (%d categories, %d reserved names)\n",
		env.config.Database.Path, len(categories), len(env.config.ReservedNames))
	fmt.Fprintf(out, "Index repository %s is ready\n", env.config.Index.Repository)
	return nil
}
