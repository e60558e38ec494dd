// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/registry/cmd/registry/cli"
	"github.com/bureau-foundation/registry/lib/git"
	"github.com/bureau-foundation/registry/lib/jobqueue"
	"github.com/bureau-foundation/registry/lib/metrics"
	"github.com/bureau-foundation/registry/lib/publish"
)

func jobsCommand(out io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "jobs",
		Summary: "Run and inspect background jobs",
		Subcommands: []*cli.Command{
			jobsRunCommand(out),
			jobsListCommand(out),
			jobsRetryCommand(out),
		},
	}
}

type jobsRunParams struct {
	configParams
	Once bool `flag:"once" desc:"run every runnable job once, then exit"`
}

func jobsRunCommand(out io.Writer) *cli.Command {
	var params jobsRunParams
	return &cli.Command{
		Name:    "run",
		Summary: "Work the job queue",
		Description: `Claim and run background jobs: readme rendering and index
synchronization. Without --once the worker polls until interrupted and,
when metrics.listen is set, serves /metrics.`,
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("run", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExpectArgs(args, 0, 0, "registry jobs run [--once]"); err != nil {
				return err
			}
			return withEnvironment(params.configParams, func(env *environment) error {
				return runJobs(ctx, env, out, params.Once)
			})
		},
	}
}

func runJobs(ctx context.Context, env *environment, out io.Writer, once bool) error {
	blobs, err := env.Blobs(ctx)
	if err != nil {
		return err
	}
	registryMetrics, registry, err := env.Metrics()
	if err != nil {
		return err
	}
	queue, err := env.Queue()
	if err != nil {
		return err
	}
	repository := env.Repository()
	if _, err := repository.Head(ctx); err != nil && !errors.Is(err, git.ErrNoCommits) {
		return fmt.Errorf("opening index repository: %w", err)
	}
	jobs, err := publish.NewJobs(publish.JobsConfig{
		Store:  env.store,
		Blobs:  blobs,
		Index:  repository,
		Logger: env.logger,
	})
	if err != nil {
		return err
	}
	runner := jobqueue.NewRunner(queue, registryMetrics)
	jobs.Register(runner)

	if once {
		summary, err := runner.RunPending(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%d succeeded, %d retried, %d failed\n", summary.Succeeded, summary.Retried, summary.Failed)
		if summary.Failed > 0 {
			return &cli.ExitError{Code: 1}
		}
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if listen := env.config.Metrics.Listen; listen != "" {
		server := &http.Server{Addr: listen, Handler: metricsMux(registry), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				env.logger.Error("metrics server failed", "error", err)
			}
		}()
		defer server.Close()
		env.logger.Info("serving metrics", "address", listen)
	}

	env.logger.Info("job worker started", "poll_interval", env.config.Jobs.PollInterval)
	err = runner.Run(ctx, env.config.Jobs.PollInterval)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func metricsMux(gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.HandlerFor(gatherer))
	return mux
}

type jobsListParams struct {
	configParams
	cli.JSONOutput
	State string `flag:"state" desc:"job state to list: pending, failed or done" default:"failed"`
}

func jobsListCommand(out io.Writer) *cli.Command {
	var params jobsListParams
	return &cli.Command{
		Name:    "list",
		Summary: "List jobs in a state",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("list", &params) },
		Run: func(ctx context.Context, args []string) error {
			state := jobqueue.State(params.State)
			switch state {
			case jobqueue.Pending, jobqueue.Failed, jobqueue.Done:
			default:
				return fmt.Errorf("unknown job state %q", params.State)
			}
			return withEnvironment(params.configParams, func(env *environment) error {
				queue, err := env.Queue()
				if err != nil {
					return err
				}
				jobs, err := queue.List(ctx, state)
				if err != nil {
					return err
				}
				if done, err := params.EmitJSON(out, jobs); done {
					return err
				}
				tw := tabwriter.NewWriter(out, 2, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tTYPE\tATTEMPTS\tENQUEUED\tLAST ERROR")
				for _, job := range jobs {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", job.ID, job.Type, job.Attempts,
						job.EnqueuedAt.UTC().Format(time.RFC3339), job.LastError)
				}
				return tw.Flush()
			})
		},
	}
}

func jobsRetryCommand(out io.Writer) *cli.Command {
	var params configParams
	return &cli.Command{
		Name:    "retry",
		Summary: "Return a failed job to the queue",
		Usage:   "registry jobs retry [flags] JOB_ID...",
		Flags:   func() *pflag.FlagSet { return cli.FlagsFromParams("retry", &params) },
		Run: func(ctx context.Context, args []string) error {
			if err := cli.ExpectArgs(args, 1, -1, "registry jobs retry [flags] JOB_ID..."); err != nil {
				return err
			}
			return withEnvironment(params, func(env *environment) error {
				queue, err := env.Queue()
				if err != nil {
					return err
				}
				for _, id := range args {
					if err := queue.Retry(ctx, id); err != nil {
						return fmt.Errorf("retrying %s: %w", id, err)
					}
					fmt.Fprintf(out, "Requeued %s\n", id)
				}
				return nil
			})
		},
	}
}
