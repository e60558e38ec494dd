// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package publish turns an uploaded crate into registry records.
//
// [Service.Publish] runs the pipeline for one request: split the body,
// decode the metadata, debit the actor's rate limit bucket, validate
// the archive and manifest, then write the crate, version, dependency,
// keyword and category rows in one transaction. The same transaction
// enqueues the index sync jobs and, when the request carries a readme,
// a render job. The raw archive is uploaded to the blob store after
// the commit; that upload is retried with backoff and is the only step
// whose failure leaves committed records behind.
//
// [Jobs] holds the background handlers for the enqueued work.
package publish
