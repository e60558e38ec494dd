// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package jobqueue is a durable background job queue in the registry
// database.
//
// Jobs are enqueued with [Enqueue] on the caller's connection, inside
// the same transaction as the state change that needs follow-up work.
// A rolled-back publish therefore never leaves a job behind, and a
// committed publish always has its jobs.
//
// Workers lease jobs with [Queue.Claim]. A lease hides the job from
// other workers until it lapses, so a crashed worker's job becomes
// claimable again. Failed attempts are retried with exponential delay
// and the job moves to [Failed] after the configured attempt budget.
// [Runner] dispatches claimed jobs to handlers by [Type].
//
// Payloads are CBOR (see lib/codec).
package jobqueue
