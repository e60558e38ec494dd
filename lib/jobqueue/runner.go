// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/registry/lib/clock"
	"github.com/bureau-foundation/registry/lib/metrics"
)

// Handler performs one job. Returning an error schedules a retry
// unless the error is wrapped with [Permanent].
type Handler func(ctx context.Context, job *Job) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. The job moves straight
// to Failed.
func Permanent(err error) error {
	return &permanentError{err: err}
}

// Summary counts the outcomes of a RunPending pass.
type Summary struct {
	Succeeded int
	Retried   int
	Failed    int
}

// Runner dispatches claimed jobs to registered handlers.
type Runner struct {
	queue    *Queue
	handlers map[Type]Handler
	metrics  metrics.Metrics
	clock    clock.Clock
	logger   *slog.Logger
}

// NewRunner returns a Runner over queue. A nil m disables metrics.
func NewRunner(queue *Queue, m metrics.Metrics) *Runner {
	if m == nil {
		m = metrics.Noop{}
	}
	return &Runner{
		queue:    queue,
		handlers: make(map[Type]Handler),
		metrics:  m,
		clock:    queue.clock,
		logger:   queue.logger,
	}
}

// Register sets the handler for jobType, replacing any earlier one.
func (r *Runner) Register(jobType Type, handler Handler) {
	r.handlers[jobType] = handler
}

// RunPending claims and runs jobs of the registered types until none
// is runnable or ctx is done.
func (r *Runner) RunPending(ctx context.Context) (Summary, error) {
	var summary Summary
	types := make([]Type, 0, len(r.handlers))
	for jobType := range r.handlers {
		types = append(types, jobType)
	}
	if len(types) == 0 {
		return summary, fmt.Errorf("jobqueue: no handlers registered")
	}

	for ctx.Err() == nil {
		job, err := r.queue.Claim(ctx, types...)
		if err != nil {
			return summary, err
		}
		if job == nil {
			return summary, nil
		}
		if err := r.runOne(ctx, job, &summary); err != nil {
			return summary, err
		}
	}
	return summary, ctx.Err()
}

func (r *Runner) runOne(ctx context.Context, job *Job, summary *Summary) error {
	logger := r.logger.With("job_id", job.ID, "job_type", string(job.Type), "attempt", job.Attempts+1)
	start := r.clock.Now()

	runErr := r.handlers[job.Type](ctx, job)
	if runErr == nil {
		if err := r.queue.Complete(ctx, job.ID); err != nil {
			return err
		}
		summary.Succeeded++
		r.metrics.IncJob(string(job.Type), metrics.ResultOK)
		logger.Info("job completed", "duration", r.clock.Now().Sub(start))
		return nil
	}

	var permanent *permanentError
	if errors.As(runErr, &permanent) {
		if err := r.queue.exhaust(ctx, job.ID, runErr); err != nil {
			return err
		}
		summary.Failed++
		r.metrics.IncJob(string(job.Type), metrics.ResultFailed)
		return nil
	}

	state, err := r.queue.Fail(ctx, job.ID, runErr)
	if err != nil {
		return err
	}
	if state == Failed {
		summary.Failed++
		r.metrics.IncJob(string(job.Type), metrics.ResultFailed)
	} else {
		summary.Retried++
		r.metrics.IncJob(string(job.Type), metrics.ResultRetry)
	}
	return nil
}

// Run calls RunPending, then waits interval, until ctx is done. Pass
// errors are logged and do not stop the loop.
func (r *Runner) Run(ctx context.Context, interval time.Duration) error {
	for {
		summary, err := r.RunPending(ctx)
		if err != nil && ctx.Err() == nil {
			r.logger.Error("job pass failed", "error", err)
		}
		if summary != (Summary{}) {
			r.logger.Info("job pass finished",
				"succeeded", summary.Succeeded,
				"retried", summary.Retried,
				"failed", summary.Failed,
			)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.clock.After(interval):
		}
	}
}
