// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package store

// Migrations is the registry database schema. Timestamps are Unix
// nanoseconds. The rate-limit and job tables are owned by the
// ratelimit and jobqueue packages but live in the same file so a
// publish can touch all of them in one transaction.
var Migrations = []string{
	`
CREATE TABLE users (
	id          INTEGER PRIMARY KEY,
	login       TEXT NOT NULL,
	login_lower TEXT NOT NULL UNIQUE,
	created_at  INTEGER NOT NULL
);

CREATE TABLE crates (
	id              INTEGER PRIMARY KEY,
	name            TEXT NOT NULL,
	canonical_name  TEXT NOT NULL UNIQUE,
	description     TEXT,
	homepage        TEXT,
	documentation   TEXT,
	repository      TEXT,
	readme          TEXT,
	max_upload_size INTEGER,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
CREATE INDEX crates_name ON crates (name);

CREATE TABLE versions (
	id           INTEGER PRIMARY KEY,
	crate_id     INTEGER NOT NULL REFERENCES crates (id),
	num          TEXT NOT NULL,
	checksum     TEXT NOT NULL,
	license      TEXT,
	features     TEXT NOT NULL,
	crate_size   INTEGER NOT NULL,
	links        TEXT,
	rust_version TEXT,
	published_by INTEGER NOT NULL REFERENCES users (id),
	yanked       INTEGER NOT NULL DEFAULT 0,
	created_at   INTEGER NOT NULL,
	UNIQUE (crate_id, num)
);
CREATE INDEX versions_crate_created ON versions (crate_id, created_at);

CREATE TABLE version_owner_actions (
	id         INTEGER PRIMARY KEY,
	version_id INTEGER NOT NULL REFERENCES versions (id),
	user_id    INTEGER NOT NULL REFERENCES users (id),
	token_id   INTEGER,
	action     TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE dependencies (
	id               INTEGER PRIMARY KEY,
	version_id       INTEGER NOT NULL REFERENCES versions (id),
	crate_id         INTEGER NOT NULL REFERENCES crates (id),
	req              TEXT NOT NULL,
	kind             TEXT NOT NULL,
	optional         INTEGER NOT NULL,
	default_features INTEGER NOT NULL,
	features         TEXT NOT NULL,
	target           TEXT,
	explicit_name    TEXT
);
CREATE INDEX dependencies_version ON dependencies (version_id);

CREATE TABLE teams (
	id      INTEGER PRIMARY KEY,
	login   TEXT NOT NULL UNIQUE,
	org_id  INTEGER NOT NULL,
	team_id INTEGER NOT NULL,
	name    TEXT,
	UNIQUE (org_id, team_id)
);

-- owner_kind: 0 user, 1 team.
CREATE TABLE crate_owners (
	crate_id   INTEGER NOT NULL REFERENCES crates (id),
	owner_kind INTEGER NOT NULL,
	owner_id   INTEGER NOT NULL,
	created_by INTEGER,
	created_at INTEGER NOT NULL,
	PRIMARY KEY (crate_id, owner_kind, owner_id)
);

CREATE TABLE keywords (
	id      INTEGER PRIMARY KEY,
	keyword TEXT NOT NULL UNIQUE
);

CREATE TABLE crates_keywords (
	crate_id   INTEGER NOT NULL REFERENCES crates (id),
	keyword_id INTEGER NOT NULL REFERENCES keywords (id),
	PRIMARY KEY (crate_id, keyword_id)
);

CREATE TABLE categories (
	id          INTEGER PRIMARY KEY,
	slug        TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	description TEXT
);

CREATE TABLE crates_categories (
	crate_id    INTEGER NOT NULL REFERENCES crates (id),
	category_id INTEGER NOT NULL REFERENCES categories (id),
	PRIMARY KEY (crate_id, category_id)
);

-- name holds the canonical form.
CREATE TABLE reserved_crate_names (
	name TEXT PRIMARY KEY
);

CREATE TABLE follows (
	user_id  INTEGER NOT NULL REFERENCES users (id),
	crate_id INTEGER NOT NULL REFERENCES crates (id),
	PRIMARY KEY (user_id, crate_id)
);

CREATE TABLE publish_limit_buckets (
	user_id     INTEGER NOT NULL,
	action      TEXT NOT NULL,
	tokens      INTEGER NOT NULL,
	last_refill INTEGER NOT NULL,
	PRIMARY KEY (user_id, action)
);

CREATE TABLE publish_rate_overrides (
	user_id    INTEGER NOT NULL,
	action     TEXT NOT NULL,
	burst      INTEGER NOT NULL,
	expires_at INTEGER,
	PRIMARY KEY (user_id, action)
);

-- state: pending, done, failed. seq gives the enqueue order.
CREATE TABLE background_jobs (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	job_type     TEXT NOT NULL,
	payload      BLOB NOT NULL,
	priority     INTEGER NOT NULL,
	state        TEXT NOT NULL,
	attempts     INTEGER NOT NULL DEFAULT 0,
	last_error   TEXT,
	enqueued_at  INTEGER NOT NULL,
	run_after    INTEGER NOT NULL,
	leased_until INTEGER
);
CREATE INDEX background_jobs_claim ON background_jobs (state, priority DESC, seq);
`,
}
