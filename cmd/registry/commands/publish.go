// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/registry/cmd/registry/cli"
	"github.com/bureau-foundation/registry/lib/publish"
	"github.com/bureau-foundation/registry/lib/wire"
)

type publishParams struct {
	configParams
	actorParams
	cli.JSONOutput
	Metadata string `flag:"metadata" desc:"publish metadata JSON file; the positional argument is then a .crate archive"`
}

func publishCommand(out io.Writer) *cli.Command {
	var params publishParams
	return &cli.Command{
		Name:    "publish",
		Summary: "Publish a crate version",
		Description: `Publish a crate version as the given user.

FILE is a complete publish request body (two length-prefixed segments:
metadata JSON then the .crate archive). With --metadata, FILE is the bare
.crate archive and the body is assembled here.`,
		Usage: "registry publish --user LOGIN [--metadata FILE] FILE",
		Examples: []cli.Example{
			{Description: "Publish a packaged crate", Command: "registry publish --user alice --metadata serde.json serde-1.0.0.crate"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("publish", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExpectArgs(args, 1, 1, "registry publish --user LOGIN [--metadata FILE] FILE"); err != nil {
				return err
			}
			login, err := params.login()
			if err != nil {
				return err
			}
			body, err := readPublishBody(args[0], params.Metadata)
			if err != nil {
				return err
			}
			return withEnvironment(params.configParams, func(env *environment) error {
				return runPublish(ctx, env, out, params, login, body)
			})
		},
	}
}

func readPublishBody(path, metadataPath string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if metadataPath == "" {
		return data, nil
	}
	metadata, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, err
	}
	return wire.Encode(metadata, data), nil
}

func runPublish(ctx context.Context, env *environment, out io.Writer, params publishParams, login string, body []byte) error {
	blobs, err := env.Blobs(ctx)
	if err != nil {
		return err
	}
	directory, err := env.Directory()
	if err != nil {
		return err
	}
	limiter, err := env.Limiter()
	if err != nil {
		return err
	}
	registryMetrics, _, err := env.Metrics()
	if err != nil {
		return err
	}
	service, err := publish.New(publish.Config{
		Store:     env.store,
		Limiter:   limiter,
		Directory: directory,
		Blobs:     blobs,
		Limits: publish.Limits{
			MaxUploadSize:        env.config.Limits.MaxUploadSize,
			MaxUnpackSize:        env.config.Limits.MaxUnpackSize,
			NewVersionDailyLimit: env.config.Limits.NewVersionDailyLimit,
		},
		Metrics: registryMetrics,
		Clock:   env.clock,
		Logger:  env.logger,
	})
	if err != nil {
		return err
	}

	actor, err := env.Actor(ctx, login)
	if err != nil {
		return err
	}
	result, err := service.Publish(ctx, publish.Request{Actor: actor, Body: body})
	if err != nil {
		return err
	}

	if done, err := params.EmitJSON(out, result); done {
		return err
	}
	fmt.Fprintf(out, "Published %s\n", result)
	for _, category := range result.Warnings.InvalidCategories {
		fmt.Fprintf(out, "warning: unknown category %q ignored\n", category)
	}
	for _, warning := range result.Warnings.Other {
		fmt.Fprintf(out, "warning: %s\n", warning)
	}
	return nil
}
