// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jobqueue

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/registry/lib/clock"
	"github.com/bureau-foundation/registry/lib/store"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type syncPayload struct {
	Crate string `cbor:"crate"`
}

func newTestQueue(t *testing.T) (*Queue, *store.Store, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(epoch)
	db, err := store.Open(store.Config{
		Path:   filepath.Join(t.TempDir(), "registry.db"),
		Clock:  fake,
		Logger: slog.Default(),
	})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	queue, err := New(Config{
		DB:          db,
		Lease:       time.Minute,
		MaxAttempts: 3,
		RetryBase:   10 * time.Second,
		RetryMax:    time.Minute,
		Clock:       fake,
		Logger:      slog.Default(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return queue, db, fake
}

func enqueue(t *testing.T, db *store.Store, jobType Type, crate string, priority int) string {
	t.Helper()
	var id string
	err := db.Transact(context.Background(), func(conn *sqlite.Conn) error {
		var err error
		id, err = Enqueue(conn, jobType, syncPayload{Crate: crate}, priority, db.Now())
		return err
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return id
}

func claimCrate(t *testing.T, queue *Queue) (*Job, string) {
	t.Helper()
	job, err := queue.Claim(context.Background())
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if job == nil {
		return nil, ""
	}
	var payload syncPayload
	if err := job.Decode(&payload); err != nil {
		t.Fatal(err)
	}
	return job, payload.Crate
}

func TestClaimOrdersByPriorityThenEnqueueOrder(t *testing.T) {
	queue, db, _ := newTestQueue(t)
	enqueue(t, db, RenderReadme, "readme-a", PriorityRenderReadme)
	enqueue(t, db, SyncToGitIndex, "index-a", PrioritySyncToIndex)
	enqueue(t, db, RenderReadme, "readme-b", PriorityRenderReadme)
	enqueue(t, db, SyncToSparseIndex, "index-b", PrioritySyncToIndex)
	enqueue(t, db, "other", "other", PriorityDefault)

	var order []string
	for {
		job, crate := claimCrate(t, queue)
		if job == nil {
			break
		}
		order = append(order, crate)
		if err := queue.Complete(context.Background(), job.ID); err != nil {
			t.Fatal(err)
		}
	}
	want := []string{"index-a", "index-b", "readme-a", "readme-b", "other"}
	if len(order) != len(want) {
		t.Fatalf("claimed %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("claimed %v, want %v", order, want)
		}
	}
}

func TestEnqueueRollsBackWithTransaction(t *testing.T) {
	queue, db, _ := newTestQueue(t)
	sentinel := errors.New("publish failed")
	err := db.Transact(context.Background(), func(conn *sqlite.Conn) error {
		if _, err := Enqueue(conn, SyncToGitIndex, syncPayload{Crate: "foo"}, PrioritySyncToIndex, db.Now()); err != nil {
			return err
		}
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("Transact = %v", err)
	}
	if job, _ := claimCrate(t, queue); job != nil {
		t.Errorf("rolled-back job is claimable: %+v", job)
	}
}

func TestEnqueueUnique(t *testing.T) {
	queue, db, _ := newTestQueue(t)
	ctx := context.Background()
	var first, second, other string
	err := db.Transact(ctx, func(conn *sqlite.Conn) error {
		var err error
		if first, err = EnqueueUnique(conn, SyncToGitIndex, syncPayload{Crate: "foo"}, PrioritySyncToIndex, db.Now()); err != nil {
			return err
		}
		if second, err = EnqueueUnique(conn, SyncToGitIndex, syncPayload{Crate: "foo"}, PrioritySyncToIndex, db.Now()); err != nil {
			return err
		}
		other, err = EnqueueUnique(conn, SyncToSparseIndex, syncPayload{Crate: "foo"}, PrioritySyncToIndex, db.Now())
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("duplicate pending sync enqueued twice: %s != %s", first, second)
	}
	if other == first {
		t.Error("different job type deduplicated against the git sync")
	}

	// A claimed job no longer absorbs new requests: the worker may
	// already have read the old state.
	job, _ := claimCrate(t, queue)
	if job == nil || job.ID != first {
		t.Fatalf("claimed %+v, want %s", job, first)
	}
	var third string
	err = db.Transact(ctx, func(conn *sqlite.Conn) error {
		var err error
		third, err = EnqueueUnique(conn, SyncToGitIndex, syncPayload{Crate: "foo"}, PrioritySyncToIndex, db.Now())
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if third == first {
		t.Error("claimed job absorbed a new sync request")
	}
}

func TestEnqueueUniqueRefreshesRetryBudget(t *testing.T) {
	queue, db, fake := newTestQueue(t)
	ctx := context.Background()
	enqueueSync := func() string {
		t.Helper()
		var id string
		err := db.Transact(ctx, func(conn *sqlite.Conn) error {
			var err error
			id, err = EnqueueUnique(conn, SyncToGitIndex, syncPayload{Crate: "foo"}, PrioritySyncToIndex, db.Now())
			return err
		})
		if err != nil {
			t.Fatalf("EnqueueUnique: %v", err)
		}
		return id
	}
	cause := errors.New("index unavailable")

	id := enqueueSync()
	for attempt := 1; attempt <= 2; attempt++ {
		job, _ := claimCrate(t, queue)
		if job == nil || job.ID != id {
			t.Fatalf("attempt %d: claimed %+v, want %s", attempt, job, id)
		}
		if _, err := queue.Fail(ctx, id, cause); err != nil {
			t.Fatal(err)
		}
		if attempt == 1 {
			fake.Advance(10 * time.Second)
		}
	}

	// A publish folds into the retrying job; the attempts spent before
	// it must not count against the new work.
	if again := enqueueSync(); again != id {
		t.Fatalf("EnqueueUnique = %s, want coalesced %s", again, id)
	}
	stored, err := queue.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Attempts != 0 {
		t.Errorf("attempts after coalescing = %d, want 0", stored.Attempts)
	}

	job, _ := claimCrate(t, queue)
	if job == nil || job.ID != id {
		t.Fatalf("coalesced job not runnable now: %+v", job)
	}
	state, err := queue.Fail(ctx, id, cause)
	if err != nil {
		t.Fatal(err)
	}
	if state != Pending {
		t.Errorf("state after one failure of the refreshed job = %s, want pending", state)
	}
}

func TestLeaseHidesThenReleases(t *testing.T) {
	queue, db, fake := newTestQueue(t)
	id := enqueue(t, db, SyncToGitIndex, "foo", PrioritySyncToIndex)

	job, _ := claimCrate(t, queue)
	if job == nil || job.ID != id {
		t.Fatalf("first claim = %+v", job)
	}
	if again, _ := claimCrate(t, queue); again != nil {
		t.Fatalf("leased job claimed twice: %+v", again)
	}

	fake.Advance(time.Minute)
	again, _ := claimCrate(t, queue)
	if again == nil || again.ID != id {
		t.Fatalf("claim after lease expiry = %+v", again)
	}
}

func TestFailRetriesWithBackoffThenFails(t *testing.T) {
	queue, db, fake := newTestQueue(t)
	ctx := context.Background()
	id := enqueue(t, db, RenderReadme, "foo", PriorityRenderReadme)
	cause := errors.New("storage unavailable")

	delays := []time.Duration{10 * time.Second, 20 * time.Second}
	for attempt, delay := range delays {
		job, _ := claimCrate(t, queue)
		if job == nil {
			t.Fatalf("attempt %d: nothing to claim", attempt+1)
		}
		state, err := queue.Fail(ctx, id, cause)
		if err != nil {
			t.Fatal(err)
		}
		if state != Pending {
			t.Fatalf("attempt %d: state = %s, want pending", attempt+1, state)
		}

		fake.Advance(delay - time.Second)
		if early, _ := claimCrate(t, queue); early != nil {
			t.Fatalf("attempt %d: retried before its delay", attempt+1)
		}
		fake.Advance(time.Second)
	}

	if job, _ := claimCrate(t, queue); job == nil {
		t.Fatal("final attempt not claimable")
	}
	state, err := queue.Fail(ctx, id, cause)
	if err != nil {
		t.Fatal(err)
	}
	if state != Failed {
		t.Fatalf("state after %d attempts = %s, want failed", 3, state)
	}

	stored, err := queue.Get(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Attempts != 3 || stored.LastError != "storage unavailable" {
		t.Errorf("stored job = %+v", stored)
	}

	failed, err := queue.List(ctx, Failed)
	if err != nil {
		t.Fatal(err)
	}
	if len(failed) != 1 || failed[0].ID != id {
		t.Errorf("failed jobs = %+v", failed)
	}

	if err := queue.Retry(ctx, id); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if job, _ := claimCrate(t, queue); job == nil || job.ID != id {
		t.Errorf("retried job not claimable: %+v", job)
	}
}

func TestRetryRejectsPendingJob(t *testing.T) {
	queue, db, _ := newTestQueue(t)
	id := enqueue(t, db, RenderReadme, "foo", PriorityRenderReadme)
	if err := queue.Retry(context.Background(), id); err == nil {
		t.Error("Retry of a pending job succeeded")
	}
	if _, err := queue.Get(context.Background(), "no-such-id"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(unknown) = %v, want ErrNotFound", err)
	}
}

func TestClaimFiltersByType(t *testing.T) {
	queue, db, _ := newTestQueue(t)
	enqueue(t, db, SyncToGitIndex, "foo", PrioritySyncToIndex)
	readme := enqueue(t, db, RenderReadme, "foo", PriorityRenderReadme)

	job, err := queue.Claim(context.Background(), RenderReadme)
	if err != nil {
		t.Fatal(err)
	}
	if job == nil || job.ID != readme {
		t.Errorf("filtered claim = %+v, want readme job", job)
	}
}

func TestPendingCounts(t *testing.T) {
	queue, db, _ := newTestQueue(t)
	enqueue(t, db, SyncToGitIndex, "a", PrioritySyncToIndex)
	enqueue(t, db, SyncToGitIndex, "b", PrioritySyncToIndex)
	done := enqueue(t, db, RenderReadme, "a", PriorityRenderReadme)
	if err := queue.Complete(context.Background(), done); err != nil {
		t.Fatal(err)
	}
	counts, err := queue.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if counts[SyncToGitIndex] != 2 || counts[RenderReadme] != 0 {
		t.Errorf("pending = %v", counts)
	}
}
