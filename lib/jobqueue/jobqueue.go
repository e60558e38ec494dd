// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/bureau-foundation/registry/lib/clock"
	"github.com/bureau-foundation/registry/lib/codec"
)

// Type names a job kind. Handlers are registered per type.
type Type string

const (
	RenderReadme      Type = "render_and_upload_readme"
	SyncToGitIndex    Type = "sync_to_git_index"
	SyncToSparseIndex Type = "sync_to_sparse_index"
)

// Priorities. Higher runs first; ties run in enqueue order.
const (
	PriorityDefault      = 0
	PriorityRenderReadme = 50
	PrioritySyncToIndex  = 100
)

// State is a job's lifecycle position.
type State string

const (
	Pending State = "pending"
	Done    State = "done"
	Failed  State = "failed"
)

// Job is a stored job.
type Job struct {
	ID         string    `json:"id"`
	Seq        int64     `json:"seq"`
	Type       Type      `json:"type"`
	Payload    []byte    `json:"-"`
	Priority   int       `json:"priority"`
	State      State     `json:"state"`
	Attempts   int       `json:"attempts"`
	LastError  string    `json:"last_error,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	RunAfter   time.Time `json:"run_after"`
}

// Decode unmarshals the job's payload into v.
func (j *Job) Decode(v any) error {
	if err := codec.Unmarshal(j.Payload, v); err != nil {
		return fmt.Errorf("jobqueue: decoding %s payload: %w", j.Type, err)
	}
	return nil
}

// Enqueue inserts a pending job on conn, normally inside the caller's
// transaction so the job commits or rolls back with the work that
// produced it. It returns the job id.
func Enqueue(conn *sqlite.Conn, jobType Type, payload any, priority int, now time.Time) (string, error) {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("jobqueue: encoding %s payload: %w", jobType, err)
	}
	id := uuid.NewString()
	err = sqlitex.Execute(conn, `
		INSERT INTO background_jobs (id, job_type, payload, priority, state, enqueued_at, run_after)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{id, string(jobType), encoded, priority, string(Pending), now.UnixNano(), now.UnixNano()},
	})
	if err != nil {
		return "", fmt.Errorf("jobqueue: enqueueing %s: %w", jobType, err)
	}
	return id, nil
}

// EnqueueUnique is Enqueue that skips the insert when a pending,
// unclaimed job of the same type already carries an identical payload.
// Index syncs use it: one pending sync per crate is enough because the
// job reads current state when it runs. The returned id is the
// existing job's when the insert was skipped. A coalesced job gets a
// fresh retry budget and becomes runnable at now, so the new work is not
// lost to attempts spent before it was enqueued.
func EnqueueUnique(conn *sqlite.Conn, jobType Type, payload any, priority int, now time.Time) (string, error) {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("jobqueue: encoding %s payload: %w", jobType, err)
	}
	existing := ""
	err = sqlitex.Execute(conn, `
		SELECT id FROM background_jobs
		WHERE job_type = ? AND payload = ? AND state = ? AND (leased_until IS NULL OR leased_until <= ?)
		LIMIT 1`, &sqlitex.ExecOptions{
		Args: []any{string(jobType), encoded, string(Pending), now.UnixNano()},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			existing = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		return "", fmt.Errorf("jobqueue: checking pending %s: %w", jobType, err)
	}
	if existing == "" {
		return Enqueue(conn, jobType, payload, priority, now)
	}
	err = sqlitex.Execute(conn, `
		UPDATE background_jobs SET attempts = 0, run_after = ?, priority = MAX(priority, ?)
		WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{now.UnixNano(), priority, existing},
	})
	if err != nil {
		return "", fmt.Errorf("jobqueue: refreshing pending %s: %w", jobType, err)
	}
	return existing, nil
}

// Transactor runs fn inside a write transaction. *store.Store
// satisfies it.
type Transactor interface {
	Transact(ctx context.Context, fn func(conn *sqlite.Conn) error) error
}

// ErrNotFound is returned for unknown job ids.
var ErrNotFound = errors.New("jobqueue: job not found")

// Config holds the queue's parameters.
type Config struct {
	// DB runs queue transactions. Required.
	DB Transactor

	// Lease is how long a claimed job stays invisible to other
	// workers. A worker that dies mid-job releases it when the
	// lease lapses. Defaults to 5 minutes.
	Lease time.Duration

	// MaxAttempts moves a job to Failed after this many failures.
	// Defaults to 5.
	MaxAttempts int

	// RetryBase is the first retry delay; each later retry doubles
	// it, up to RetryMax. Defaults to 10 seconds and 1 hour.
	RetryBase time.Duration
	RetryMax  time.Duration

	// Clock orders leases and retries. Required.
	Clock clock.Clock

	// Logger receives state transitions. Required.
	Logger *slog.Logger
}

// Queue claims and settles jobs.
type Queue struct {
	db          Transactor
	lease       time.Duration
	maxAttempts int
	retryBase   time.Duration
	retryMax    time.Duration
	clock       clock.Clock
	logger      *slog.Logger
}

// New validates cfg and returns a Queue.
func New(cfg Config) (*Queue, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("jobqueue: DB is required")
	}
	if cfg.Clock == nil {
		return nil, fmt.Errorf("jobqueue: Clock is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("jobqueue: Logger is required")
	}
	queue := &Queue{
		db:          cfg.DB,
		lease:       cfg.Lease,
		maxAttempts: cfg.MaxAttempts,
		retryBase:   cfg.RetryBase,
		retryMax:    cfg.RetryMax,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
	if queue.lease <= 0 {
		queue.lease = 5 * time.Minute
	}
	if queue.maxAttempts <= 0 {
		queue.maxAttempts = 5
	}
	if queue.retryBase <= 0 {
		queue.retryBase = 10 * time.Second
	}
	if queue.retryMax <= 0 {
		queue.retryMax = time.Hour
	}
	return queue, nil
}

const jobColumns = `seq, id, job_type, payload, priority, state, attempts, last_error, enqueued_at, run_after`

func scanJob(stmt *sqlite.Stmt) *Job {
	payload := make([]byte, stmt.ColumnLen(3))
	stmt.ColumnBytes(3, payload)
	return &Job{
		Seq:        stmt.ColumnInt64(0),
		ID:         stmt.ColumnText(1),
		Type:       Type(stmt.ColumnText(2)),
		Payload:    payload,
		Priority:   stmt.ColumnInt(4),
		State:      State(stmt.ColumnText(5)),
		Attempts:   stmt.ColumnInt(6),
		LastError:  stmt.ColumnText(7),
		EnqueuedAt: time.Unix(0, stmt.ColumnInt64(8)).UTC(),
		RunAfter:   time.Unix(0, stmt.ColumnInt64(9)).UTC(),
	}
}

// Claim leases the highest-priority runnable job, or returns nil when
// none is runnable. types restricts the claim to those job types; an
// empty list claims any type.
func (q *Queue) Claim(ctx context.Context, types ...Type) (*Job, error) {
	now := q.clock.Now()
	var job *Job
	err := q.db.Transact(ctx, func(conn *sqlite.Conn) error {
		query := `SELECT ` + jobColumns + ` FROM background_jobs
			WHERE state = ? AND run_after <= ? AND (leased_until IS NULL OR leased_until <= ?)`
		args := []any{string(Pending), now.UnixNano(), now.UnixNano()}
		if len(types) > 0 {
			query += ` AND job_type IN (?` + strings.Repeat(", ?", len(types)-1) + `)`
			for _, t := range types {
				args = append(args, string(t))
			}
		}
		query += ` ORDER BY priority DESC, seq LIMIT 1`

		err := sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
			Args: args,
			ResultFunc: func(stmt *sqlite.Stmt) error {
				job = scanJob(stmt)
				return nil
			},
		})
		if err != nil {
			return fmt.Errorf("jobqueue: selecting job: %w", err)
		}
		if job == nil {
			return nil
		}
		return sqlitex.Execute(conn, `UPDATE background_jobs SET leased_until = ? WHERE seq = ?`, &sqlitex.ExecOptions{
			Args: []any{now.Add(q.lease).UnixNano(), job.Seq},
		})
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Complete marks a claimed job done.
func (q *Queue) Complete(ctx context.Context, id string) error {
	return q.settle(ctx, id, func(conn *sqlite.Conn, job *Job) error {
		return sqlitex.Execute(conn, `UPDATE background_jobs SET state = ?, leased_until = NULL, attempts = attempts + 1 WHERE seq = ?`, &sqlitex.ExecOptions{
			Args: []any{string(Done), job.Seq},
		})
	})
}

// Fail records a failed attempt. The job is rescheduled with
// exponential delay, or moved to Failed once it has used MaxAttempts.
// It returns the job's resulting state.
func (q *Queue) Fail(ctx context.Context, id string, cause error) (State, error) {
	result := Pending
	err := q.settle(ctx, id, func(conn *sqlite.Conn, job *Job) error {
		attempts := job.Attempts + 1
		state := Pending
		if attempts >= q.maxAttempts {
			state = Failed
		}
		result = state
		runAfter := q.clock.Now().Add(q.retryDelay(attempts))
		return sqlitex.Execute(conn, `
			UPDATE background_jobs SET state = ?, attempts = ?, last_error = ?, run_after = ?, leased_until = NULL
			WHERE seq = ?`, &sqlitex.ExecOptions{
			Args: []any{string(state), attempts, cause.Error(), runAfter.UnixNano(), job.Seq},
		})
	})
	if err != nil {
		return "", err
	}
	if result == Failed {
		q.logger.Error("job failed permanently", "job_id", id, "error", cause)
	} else {
		q.logger.Warn("job attempt failed", "job_id", id, "error", cause)
	}
	return result, nil
}

// exhaust moves a job straight to Failed.
func (q *Queue) exhaust(ctx context.Context, id string, cause error) error {
	err := q.settle(ctx, id, func(conn *sqlite.Conn, job *Job) error {
		return sqlitex.Execute(conn, `
			UPDATE background_jobs SET state = ?, attempts = attempts + 1, last_error = ?, leased_until = NULL
			WHERE seq = ?`, &sqlitex.ExecOptions{
			Args: []any{string(Failed), cause.Error(), job.Seq},
		})
	})
	if err != nil {
		return err
	}
	q.logger.Error("job failed permanently", "job_id", id, "error", cause)
	return nil
}

// Retry moves a Failed job back to Pending with a fresh attempt count.
func (q *Queue) Retry(ctx context.Context, id string) error {
	return q.settle(ctx, id, func(conn *sqlite.Conn, job *Job) error {
		if job.State != Failed {
			return fmt.Errorf("jobqueue: job %s is %s, not failed", id, job.State)
		}
		return sqlitex.Execute(conn, `UPDATE background_jobs SET state = ?, attempts = 0, run_after = ? WHERE seq = ?`, &sqlitex.ExecOptions{
			Args: []any{string(Pending), q.clock.Now().UnixNano(), job.Seq},
		})
	})
}

// Get returns the job with id.
func (q *Queue) Get(ctx context.Context, id string) (*Job, error) {
	var job *Job
	err := q.db.Transact(ctx, func(conn *sqlite.Conn) error {
		var err error
		job, err = jobByID(conn, id)
		return err
	})
	return job, err
}

// List returns jobs in state, in claim order.
func (q *Queue) List(ctx context.Context, state State) ([]*Job, error) {
	var jobs []*Job
	err := q.db.Transact(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT `+jobColumns+` FROM background_jobs WHERE state = ? ORDER BY priority DESC, seq`, &sqlitex.ExecOptions{
			Args: []any{string(state)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				jobs = append(jobs, scanJob(stmt))
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("jobqueue: listing %s jobs: %w", state, err)
	}
	return jobs, nil
}

// Pending counts pending jobs by type, including leased ones.
func (q *Queue) Pending(ctx context.Context) (map[Type]int, error) {
	counts := make(map[Type]int)
	err := q.db.Transact(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT job_type, count(*) FROM background_jobs WHERE state = ? GROUP BY job_type`, &sqlitex.ExecOptions{
			Args: []any{string(Pending)},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				counts[Type(stmt.ColumnText(0))] = stmt.ColumnInt(1)
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("jobqueue: counting pending jobs: %w", err)
	}
	return counts, nil
}

func (q *Queue) settle(ctx context.Context, id string, fn func(conn *sqlite.Conn, job *Job) error) error {
	return q.db.Transact(ctx, func(conn *sqlite.Conn) error {
		job, err := jobByID(conn, id)
		if err != nil {
			return err
		}
		if err := fn(conn, job); err != nil {
			return fmt.Errorf("jobqueue: updating job %s: %w", id, err)
		}
		return nil
	})
}

func (q *Queue) retryDelay(attempts int) time.Duration {
	delay := q.retryBase
	for i := 1; i < attempts && delay < q.retryMax; i++ {
		delay *= 2
	}
	return min(delay, q.retryMax)
}

func jobByID(conn *sqlite.Conn, id string) (*Job, error) {
	var job *Job
	err := sqlitex.Execute(conn, `SELECT `+jobColumns+` FROM background_jobs WHERE id = ?`, &sqlitex.ExecOptions{
		Args: []any{id},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			job = scanJob(stmt)
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jobqueue: job %s: %w", id, err)
	}
	if job == nil {
		return nil, ErrNotFound
	}
	return job, nil
}
