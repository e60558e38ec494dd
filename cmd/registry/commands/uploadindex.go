// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/registry/cmd/registry/cli"
	"github.com/bureau-foundation/registry/lib/indexsync"
)

type uploadIndexParams struct {
	configParams
	cli.JSONOutput
	Yes bool `flag:"yes,y" desc:"upload without asking for confirmation"`
}

func uploadIndexCommand(out io.Writer) *cli.Command {
	var params uploadIndexParams
	return &cli.Command{
		Name:    "upload-index",
		Summary: "Upload changed index files to blob storage",
		Description: `Upload the index files that changed since COMMIT to blob storage. Without
COMMIT every index file is uploaded. Only one run may hold the sync lock at
a time.

A run that reports failures prints the command to repeat: rerunning from
the same checkpoint is safe because uploads overwrite.`,
		Usage: "registry upload-index [flags] [COMMIT]",
		Examples: []cli.Example{
			{Description: "Upload everything", Command: "registry upload-index --yes"},
			{Description: "Upload files changed since a commit", Command: "registry upload-index 1a2b3c4"},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("upload-index", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExpectArgs(args, 0, 1, "registry upload-index [flags] [COMMIT]"); err != nil {
				return err
			}
			var checkpoint string
			if len(args) == 1 {
				checkpoint = args[0]
			}
			return withEnvironment(params.configParams, func(env *environment) error {
				return runUploadIndex(ctx, env, out, params, checkpoint, cli.Confirm)
			})
		},
	}
}

type confirmFunc func(question string) (bool, error)

func runUploadIndex(ctx context.Context, env *environment, out io.Writer, params uploadIndexParams, checkpoint string, confirm confirmFunc) error {
	blobs, err := env.Blobs(ctx)
	if err != nil {
		return err
	}
	locker, err := env.Locker(ctx)
	if err != nil {
		return err
	}
	registryMetrics, _, err := env.Metrics()
	if err != nil {
		return err
	}
	syncer, err := indexsync.New(indexsync.Config{
		Repository:  env.Repository(),
		Blobs:       blobs,
		Locker:      locker,
		LockTTL:     env.config.Index.LockTTL,
		Concurrency: env.config.Index.Concurrency,
		Metrics:     registryMetrics,
		Logger:      env.logger,
	})
	if err != nil {
		return err
	}

	options := indexsync.Options{Checkpoint: checkpoint}
	var confirmErr error
	if !params.Yes {
		options.Confirm = func(head string, files int) bool {
			var ok bool
			ok, confirmErr = confirm(fmt.Sprintf("Upload %d index files changed up to %s?", files, head))
			return ok
		}
	}

	report, err := syncer.Run(ctx, options)
	if confirmErr != nil {
		return confirmErr
	}
	if errors.Is(err, indexsync.ErrDeclined) {
		fmt.Fprintln(out, "Aborted.")
		return nil
	}
	if err != nil {
		return err
	}

	if done, err := params.EmitJSON(out, report); done {
		return err
	}
	fmt.Fprintf(out, "Synchronized to %s: %d uploaded, %d skipped, %d failed of %d files\n",
		report.Head, report.Uploaded, len(report.Skipped), len(report.Failed), report.Files)
	if len(report.Failed) > 0 {
		for _, name := range report.Failed {
			fmt.Fprintf(out, "failed: %s\n", name)
		}
		fmt.Fprintf(out, "Rerun from the same checkpoint to retry the failures: registry upload-index %s\n", checkpoint)
		return &cli.ExitError{Code: 1}
	}
	fmt.Fprintf(out, "Next time, run: %s\n", indexsync.FollowUp(report))
	return nil
}
