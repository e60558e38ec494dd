// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package publish

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenk/backoff"
	"github.com/google/go-cmp/cmp"
	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/registry/lib/apperr"
	"github.com/bureau-foundation/registry/lib/blobstore"
	"github.com/bureau-foundation/registry/lib/clock"
	"github.com/bureau-foundation/registry/lib/indexfile"
	"github.com/bureau-foundation/registry/lib/jobqueue"
	"github.com/bureau-foundation/registry/lib/metadata"
	"github.com/bureau-foundation/registry/lib/ratelimit"
	"github.com/bureau-foundation/registry/lib/rights"
	"github.com/bureau-foundation/registry/lib/store"
	"github.com/bureau-foundation/registry/lib/testutil"
	"github.com/bureau-foundation/registry/lib/wire"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	store     *store.Store
	clock     *clock.FakeClock
	blobs     *blobstore.Memory
	directory *rights.StaticDirectory
	metrics   *recordingMetrics
	service   *Service
	queue     *jobqueue.Queue
}

type harnessOptions struct {
	limits    map[ratelimit.Action]ratelimit.Limit
	publish   Limits
	configure func(*Config)
}

func newHarness(t *testing.T, options harnessOptions) *harness {
	t.Helper()
	fake := clock.Fake(epoch)
	s, err := store.Open(store.Config{
		Path:   filepath.Join(t.TempDir(), "registry.db"),
		Clock:  fake,
		Logger: slog.Default(),
	})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	err = s.Transact(context.Background(), func(conn *sqlite.Conn) error {
		return store.SeedCategories(conn, []metadata.Category{
			{Slug: "parsing", Name: "Parsing"},
			{Slug: "command-line-utilities", Name: "Command line utilities"},
		})
	})
	if err != nil {
		t.Fatalf("SeedCategories: %v", err)
	}

	limits := options.limits
	if limits == nil {
		limits = map[ratelimit.Action]ratelimit.Limit{
			ratelimit.PublishNew:    {Rate: time.Minute, Burst: 100},
			ratelimit.PublishUpdate: {Rate: time.Minute, Burst: 100},
		}
	}
	limiter, err := ratelimit.New(ratelimit.Config{DB: s, Limits: limits, Clock: fake, Logger: slog.Default()})
	if err != nil {
		t.Fatalf("ratelimit.New: %v", err)
	}

	publishLimits := options.publish
	if publishLimits.MaxUploadSize == 0 {
		publishLimits.MaxUploadSize = 1 << 20
	}
	if publishLimits.MaxUnpackSize == 0 {
		publishLimits.MaxUnpackSize = 4 << 20
	}

	h := &harness{
		store:     s,
		clock:     fake,
		blobs:     blobstore.NewMemory(),
		directory: rights.NewStaticDirectory(nil, nil),
		metrics:   &recordingMetrics{},
	}
	config := Config{
		Store:     s,
		Limiter:   limiter,
		Directory: h.directory,
		Blobs:     h.blobs,
		Limits:    publishLimits,
		UploadBackOff: func() backoff.BackOff {
			return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 2)
		},
		Metrics: h.metrics,
		Clock:   fake,
		Logger:  slog.Default(),
	}
	if options.configure != nil {
		options.configure(&config)
	}
	h.service, err = New(config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.queue, err = jobqueue.New(jobqueue.Config{DB: s, Clock: fake, Logger: slog.Default()})
	if err != nil {
		t.Fatalf("jobqueue.New: %v", err)
	}
	return h
}

func (h *harness) user(t *testing.T, login string) rights.Actor {
	t.Helper()
	var actor rights.Actor
	err := h.store.Transact(context.Background(), func(conn *sqlite.Conn) error {
		user, err := store.EnsureUser(conn, login, h.clock.Now())
		if err != nil {
			return err
		}
		actor = rights.Actor{UserID: user.ID, Login: user.Login}
		return nil
	})
	if err != nil {
		t.Fatalf("EnsureUser(%s): %v", login, err)
	}
	return actor
}

// upload describes one publish request body.
type upload struct {
	name, version string
	manifest      []string
	deps          []wire.Dependency
	features      map[string][]string
	readme        string
	readmeFile    string
	extraFiles    []testutil.Entry
}

func (u upload) body(t *testing.T) []byte {
	t.Helper()
	meta := wire.PublishMetadata{
		Name:     u.name,
		Vers:     u.version,
		Deps:     u.deps,
		Features: u.features,
	}
	if meta.Deps == nil {
		meta.Deps = []wire.Dependency{}
	}
	if meta.Features == nil {
		meta.Features = map[string][]string{}
	}
	for i := range meta.Deps {
		if meta.Deps[i].Features == nil {
			meta.Deps[i].Features = []string{}
		}
	}
	if u.readme != "" {
		meta.Readme = &u.readme
	}
	if u.readmeFile != "" {
		meta.ReadmeFile = &u.readmeFile
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("encoding metadata: %v", err)
	}
	archiveBytes := testutil.CrateArchive(t, u.name, u.version, testutil.Manifest(u.name, u.version, u.manifest...), u.extraFiles...)
	return wire.Encode(encoded, archiveBytes)
}

func (h *harness) publish(t *testing.T, actor rights.Actor, u upload) (*Result, error) {
	t.Helper()
	return h.service.Publish(context.Background(), Request{Actor: actor, Body: u.body(t)})
}

func (h *harness) mustPublish(t *testing.T, actor rights.Actor, u upload) *Result {
	t.Helper()
	result, err := h.publish(t, actor, u)
	if err != nil {
		t.Fatalf("Publish(%s@%s): %v", u.name, u.version, err)
	}
	return result
}

func requireKind(t *testing.T, err error, kind apperr.Kind, message string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error %q, got nil", kind, message)
	}
	if !apperr.Is(err, kind) {
		t.Fatalf("error kind = %s (%v), want %s", apperr.KindOf(err), err, kind)
	}
	if message != "" && !strings.Contains(err.Error(), message) {
		t.Fatalf("error = %q, want it to contain %q", err.Error(), message)
	}
}

type recordingMetrics struct {
	mu          sync.Mutex
	outcomes    []string
	rateLimited []string
}

func (m *recordingMetrics) ObservePublish(outcome string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) IncRateLimited(action string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimited = append(m.rateLimited, action)
}

func (m *recordingMetrics) IncJob(string, string)  {}
func (m *recordingMetrics) IncIndexUpload(string) {}

func TestPublishNewCrate(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	alice := h.user(t, "alice")

	result := h.mustPublish(t, alice, upload{
		name:     "foo",
		version:  "1.0.0",
		manifest: []string{`repository = "https://github.com/alice/foo"`, `keywords = ["Parser"]`, `categories = ["parsing", "no-such-category"]`},
		features: map[string][]string{"default": {"std"}, "std": {}},
	})

	if !result.Crate.Created || result.Crate.Name != "foo" || result.Crate.Version != "1.0.0" {
		t.Errorf("crate = %+v", result.Crate)
	}
	if result.Crate.PackageURL != "pkg:cargo/foo@1.0.0" {
		t.Errorf("PackageURL = %q", result.Crate.PackageURL)
	}
	if result.Crate.MaxVersion != "1.0.0" || result.Crate.NewestVersion != "1.0.0" {
		t.Errorf("top versions = %+v", result.Crate)
	}
	if diff := cmp.Diff([]string{"no-such-category"}, result.Warnings.InvalidCategories); diff != "" {
		t.Errorf("invalid categories (-want +got):\n%s", diff)
	}

	if _, meta, err := h.blobs.Get(context.Background(), "crates/foo/foo-1.0.0.crate"); err != nil {
		t.Errorf("archive blob: %v", err)
	} else if meta.ContentType != blobstore.ContentTypeCrate {
		t.Errorf("archive content type = %q", meta.ContentType)
	}

	err := h.store.Read(context.Background(), func(conn *sqlite.Conn) error {
		crate, err := store.CrateByName(conn, "foo")
		if err != nil {
			return err
		}
		owners, err := store.Owners(conn, crate.ID)
		if err != nil {
			return err
		}
		if len(owners) != 1 || owners[0].ID != alice.UserID {
			t.Errorf("owners = %+v", owners)
		}
		keywords, err := store.CrateKeywords(conn, crate.ID)
		if err != nil {
			return err
		}
		if diff := cmp.Diff([]string{"parser"}, keywords); diff != "" {
			t.Errorf("keywords (-want +got):\n%s", diff)
		}
		categories, err := store.CrateCategories(conn, crate.ID)
		if err != nil {
			return err
		}
		if diff := cmp.Diff([]string{"parsing"}, categories); diff != "" {
			t.Errorf("categories (-want +got):\n%s", diff)
		}
		versions, err := store.Versions(conn, crate.ID)
		if err != nil {
			return err
		}
		if len(versions) != 1 || len(versions[0].Checksum) != 64 || versions[0].License != "MIT" {
			t.Errorf("versions = %+v", versions)
		}
		actions, err := store.VersionOwnerActions(conn, versions[0].ID)
		if err != nil {
			return err
		}
		if len(actions) != 1 {
			t.Errorf("owner actions = %+v", actions)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	pending, err := h.queue.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := map[jobqueue.Type]int{jobqueue.SyncToGitIndex: 1, jobqueue.SyncToSparseIndex: 1}
	if diff := cmp.Diff(want, pending); diff != "" {
		t.Errorf("pending jobs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"ok"}, h.metrics.outcomes); diff != "" {
		t.Errorf("outcomes (-want +got):\n%s", diff)
	}
}

func TestPublishUpdate(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	alice := h.user(t, "alice")
	h.mustPublish(t, alice, upload{name: "foo", version: "1.0.0"})
	result := h.mustPublish(t, alice, upload{name: "foo", version: "1.1.0-beta.1", manifest: []string{`description = "updated"`}})

	if result.Crate.Created {
		t.Error("update reported as created")
	}
	if result.Crate.Description != "updated" {
		t.Errorf("description = %q", result.Crate.Description)
	}
	if result.Crate.MaxVersion != "1.0.0" || result.Crate.MaxStableVersion != "1.0.0" || result.Crate.NewestVersion != "1.1.0-beta.1" {
		t.Errorf("top versions = %+v", result.Crate)
	}

	pending, err := h.queue.Pending(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if pending[jobqueue.SyncToSparseIndex] != 1 {
		t.Errorf("pending sparse syncs = %d, want one absorbed job", pending[jobqueue.SyncToSparseIndex])
	}
}

func TestPublishRejections(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	h.mustPublish(t, alice, upload{name: "Foo_Bar", version: "1.0.0"})
	err := h.store.Transact(context.Background(), func(conn *sqlite.Conn) error {
		return store.ReserveNames(conn, "std")
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		actor   rights.Actor
		upload  upload
		kind    apperr.Kind
		message string
	}{
		{
			name:    "not an owner",
			actor:   bob,
			upload:  upload{name: "Foo_Bar", version: "2.0.0"},
			kind:    apperr.Forbidden,
			message: "this crate exists but you don't seem to be an owner",
		},
		{
			name:    "case drift",
			actor:   alice,
			upload:  upload{name: "foo-bar", version: "2.0.0"},
			kind:    apperr.Input,
			message: "crate was previously named `Foo_Bar`",
		},
		{
			name:    "duplicate version",
			actor:   alice,
			upload:  upload{name: "Foo_Bar", version: "1.0.0"},
			kind:    apperr.Input,
			message: "crate version `1.0.0` is already uploaded",
		},
		{
			name:    "reserved name",
			actor:   alice,
			upload:  upload{name: "STD", version: "1.0.0"},
			kind:    apperr.Input,
			message: "cannot upload a crate with a reserved name",
		},
		{
			name:    "missing metadata",
			actor:   alice,
			upload:  upload{name: "nodesc", version: "1.0.0", manifest: []string{`description = ""`}},
			kind:    apperr.Input,
			message: "missing or empty metadata fields: description",
		},
		{
			name:    "bad license",
			actor:   alice,
			upload:  upload{name: "badlicense", version: "1.0.0", manifest: []string{`license = "Not-A-License"`}},
			kind:    apperr.Input,
			message: "unknown or invalid license expression",
		},
		{
			name:    "relative repository URL",
			actor:   alice,
			upload:  upload{name: "badurl", version: "1.0.0", manifest: []string{`repository = "github.com/x/y"`}},
			kind:    apperr.Input,
			message: "URL for field `repository` must begin with http:// or https://",
		},
		{
			name:    "symlink in archive",
			actor:   alice,
			upload:  upload{name: "linky", version: "1.0.0", extraFiles: []testutil.Entry{{Name: "evil", Typeflag: '2', Linkname: "/etc/passwd"}}},
			kind:    apperr.Input,
			message: "unexpected symlink or hard link found",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := h.publish(t, test.actor, test.upload)
			requireKind(t, err, test.kind, test.message)
		})
	}

	err = h.store.Read(context.Background(), func(conn *sqlite.Conn) error {
		names, err := store.AllCrateNames(conn)
		if err != nil {
			return err
		}
		if diff := cmp.Diff([]string{"Foo_Bar"}, names); diff != "" {
			t.Errorf("crates after rejections (-want +got):\n%s", diff)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestPublishMalformedBody(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	alice := h.user(t, "alice")
	_, err := h.service.Publish(context.Background(), Request{Actor: alice, Body: []byte{1, 2}})
	requireKind(t, err, apperr.Input, "invalid metadata length")

	_, err = h.service.Publish(context.Background(), Request{Actor: alice, Body: wire.Encode([]byte(`{"name": "foo"}`), nil)})
	requireKind(t, err, apperr.Input, "invalid upload request: ")
}

func TestDependencyLinking(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	alice := h.user(t, "alice")
	h.mustPublish(t, alice, upload{name: "serde", version: "1.0.0"})
	h.mustPublish(t, alice, upload{name: "Inflector", version: "0.11.0"})

	other := "https://example.com/index"
	target := "cfg(unix)"
	rename := "serde_renamed"
	tests := []struct {
		name    string
		deps    []wire.Dependency
		message string
	}{
		{
			name:    "unknown crate",
			deps:    []wire.Dependency{{Name: "serde", VersionReq: "^1"}, {Name: "nope", VersionReq: "^1"}},
			message: "no known crate named `nope`",
		},
		{
			name:    "exact name required",
			deps:    []wire.Dependency{{Name: "inflector", VersionReq: "^0.11"}},
			message: "no known crate named `inflector`",
		},
		{
			name:    "wildcard",
			deps:    []wire.Dependency{{Name: "serde", VersionReq: "*"}},
			message: "wildcard (`*`) dependency constraints are not allowed",
		},
		{
			name:    "wildcard with spaces",
			deps:    []wire.Dependency{{Name: "serde", VersionReq: " * "}},
			message: "wildcard (`*`) dependency constraints are not allowed",
		},
		{
			name:    "lowercase x wildcard",
			deps:    []wire.Dependency{{Name: "serde", VersionReq: "x"}},
			message: "wildcard (`*`) dependency constraints are not allowed",
		},
		{
			name:    "uppercase X wildcard",
			deps:    []wire.Dependency{{Name: "serde", VersionReq: "X"}},
			message: "wildcard (`*`) dependency constraints are not allowed",
		},
		{
			name:    "other registry",
			deps:    []wire.Dependency{{Name: "serde", VersionReq: "^1", Registry: &other}},
			message: "Dependency `serde` is hosted on another registry",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := h.publish(t, alice, upload{name: "app", version: "1.0.0", deps: test.deps})
			requireKind(t, err, apperr.Input, test.message)
		})
	}

	h.mustPublish(t, alice, upload{name: "app", version: "1.0.0", deps: []wire.Dependency{
		{Name: "serde", VersionReq: "^1.0", Features: []string{"derive"}, DefaultFeatures: true, Kind: wire.KindNormal},
		{Name: "serde", VersionReq: "^1.0", Optional: true, Target: &target, Kind: wire.KindDev, ExplicitNameInToml: &rename},
		{Name: "Inflector", VersionReq: "=0.11.0", Kind: wire.KindBuild},
	}})

	var records []indexfile.Record
	err := h.store.Read(context.Background(), func(conn *sqlite.Conn) error {
		data, err := indexfile.Build(conn, "app")
		if err != nil {
			return err
		}
		records, err = indexfile.Parse(data)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("records = %d, want 1 (rejected publishes must leave no version)", len(records))
	}
	var names []string
	for _, dep := range records[0].Deps {
		names = append(names, dep.Name+"/"+dep.Kind)
	}
	if diff := cmp.Diff([]string{"Inflector/build", "serde/normal", "serde_renamed/dev"}, names); diff != "" {
		t.Errorf("deps (-want +got):\n%s", diff)
	}
}

func TestDailyVersionCap(t *testing.T) {
	h := newHarness(t, harnessOptions{publish: Limits{NewVersionDailyLimit: 2}})
	alice := h.user(t, "alice")
	h.mustPublish(t, alice, upload{name: "foo", version: "1.0.0"})
	h.mustPublish(t, alice, upload{name: "foo", version: "1.0.1"})

	_, err := h.publish(t, alice, upload{name: "foo", version: "1.0.2"})
	requireKind(t, err, apperr.Input, "too many versions of this crate in the last 24 hours")

	// Another crate is unaffected.
	h.mustPublish(t, alice, upload{name: "bar", version: "1.0.0"})

	h.clock.Advance(24*time.Hour + time.Second)
	h.mustPublish(t, alice, upload{name: "foo", version: "1.0.2"})
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, harnessOptions{limits: map[ratelimit.Action]ratelimit.Limit{
		ratelimit.PublishNew:    {Rate: 10 * time.Minute, Burst: 1},
		ratelimit.PublishUpdate: {Rate: time.Minute, Burst: 100},
	}})
	alice := h.user(t, "alice")
	h.mustPublish(t, alice, upload{name: "first", version: "1.0.0"})

	_, err := h.publish(t, alice, upload{name: "second", version: "1.0.0"})
	requireKind(t, err, apperr.RateLimited, "You have published too many new crates")
	var appErr *apperr.Error
	if !errors.As(err, &appErr) || !appErr.RetryAfter.Equal(epoch.Add(10*time.Minute)) {
		t.Errorf("RetryAfter = %v, want %v", appErr.RetryAfter, epoch.Add(10*time.Minute))
	}
	if diff := cmp.Diff([]string{"publish-new"}, h.metrics.rateLimited); diff != "" {
		t.Errorf("rate limited metrics (-want +got):\n%s", diff)
	}

	// Updates draw on their own bucket.
	h.mustPublish(t, alice, upload{name: "first", version: "1.0.1"})

	// The token is spent even when validation later fails.
	h.clock.Advance(10 * time.Minute)
	_, err = h.publish(t, alice, upload{name: "third", version: "1.0.0", manifest: []string{`description = ""`}})
	requireKind(t, err, apperr.Input, "missing or empty metadata fields")
	_, err = h.publish(t, alice, upload{name: "third", version: "1.0.0"})
	requireKind(t, err, apperr.RateLimited, "")
}

func TestUploadSizeLimits(t *testing.T) {
	h := newHarness(t, harnessOptions{publish: Limits{MaxUploadSize: 2000, MaxUnpackSize: 2000}})
	alice := h.user(t, "alice")

	big := upload{name: "big", version: "1.0.0", extraFiles: []testutil.Entry{
		{Name: "data.bin", Body: randomishBytes(4000)},
	}}
	_, err := h.publish(t, alice, big)
	requireKind(t, err, apperr.TooLarge, "max upload size is: 2000")

	bomb := upload{name: "bomb", version: "1.0.0", extraFiles: []testutil.Entry{
		{Name: "zeros.bin", Body: make([]byte, 1<<20)},
	}}
	_, err = h.publish(t, alice, bomb)
	requireKind(t, err, apperr.TooLarge, "uploaded tarball is malformed or too large when decompressed")

	h.mustPublish(t, alice, upload{name: "big", version: "0.1.0"})
	err = h.store.Transact(context.Background(), func(conn *sqlite.Conn) error {
		crate, err := store.CrateByName(conn, "big")
		if err != nil {
			return err
		}
		return store.SetMaxUploadSize(conn, crate.ID, 1<<20)
	})
	if err != nil {
		t.Fatal(err)
	}
	h.mustPublish(t, alice, big)
}

func TestNonOwnerRejectedBeforeArchiveWork(t *testing.T) {
	h := newHarness(t, harnessOptions{
		publish: Limits{MaxUploadSize: 2000, MaxUnpackSize: 2000},
		limits: map[ratelimit.Action]ratelimit.Limit{
			ratelimit.PublishNew:    {Rate: time.Minute, Burst: 10},
			ratelimit.PublishUpdate: {Rate: time.Hour, Burst: 1},
		},
	})
	alice := h.user(t, "alice")
	bob := h.user(t, "bob")
	h.mustPublish(t, alice, upload{name: "foo", version: "1.0.0"})

	bomb := upload{name: "foo", version: "1.1.0", extraFiles: []testutil.Entry{
		{Name: "zeros.bin", Body: make([]byte, 1<<20)},
	}}
	_, err := h.publish(t, bob, bomb)
	requireKind(t, err, apperr.Forbidden, missingRightsMessage)

	// The rejected attempt spent none of bob's update tokens.
	h.mustPublish(t, bob, upload{name: "bar", version: "1.0.0"})
	h.mustPublish(t, bob, upload{name: "bar", version: "1.0.1"})
}

// randomishBytes returns poorly compressible bytes.
func randomishBytes(n int) []byte {
	data := make([]byte, n)
	state := uint32(2463534242)
	for i := range data {
		state ^= state << 13
		state ^= state >> 17
		state ^= state << 5
		data[i] = byte(state)
	}
	return data
}

func TestArchiveUploadRetriesThenFails(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	alice := h.user(t, "alice")

	h.blobs.FailPuts(1, errors.New("transient"))
	h.mustPublish(t, alice, upload{name: "foo", version: "1.0.0"})

	h.blobs.FailPuts(10, errors.New("bucket gone"))
	_, err := h.publish(t, alice, upload{name: "foo", version: "1.0.1"})
	requireKind(t, err, apperr.Internal, "failed to upload crate: bucket gone")

	// The record stays committed; a retry reports the duplicate.
	h.blobs.FailPuts(0, nil)
	_, err = h.publish(t, alice, upload{name: "foo", version: "1.0.1"})
	requireKind(t, err, apperr.Input, "crate version `1.0.1` is already uploaded")
}

func TestTeamOwnerPublish(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	alice := h.user(t, "alice")
	carol := h.user(t, "carol")
	dave := h.user(t, "dave")
	h.directory.AddTeam(rights.StaticTeam{OrgID: 1, TeamID: 2, Org: "rust-lang", Team: "core", Members: []string{"carol"}})
	h.mustPublish(t, alice, upload{name: "foo", version: "1.0.0"})

	err := h.store.Transact(context.Background(), func(conn *sqlite.Conn) error {
		crate, err := store.CrateByName(conn, "foo")
		if err != nil {
			return err
		}
		team, err := store.UpsertTeam(conn, "github:rust-lang:core", 1, 2, "Core")
		if err != nil {
			return err
		}
		return store.AddTeamOwner(conn, crate.ID, team.ID, alice.UserID, h.clock.Now())
	})
	if err != nil {
		t.Fatal(err)
	}

	h.mustPublish(t, carol, upload{name: "foo", version: "1.1.0"})

	_, err = h.publish(t, dave, upload{name: "foo", version: "1.2.0"})
	requireKind(t, err, apperr.Forbidden, "")

	h.directory.SetFailure(errors.New("identity provider down"))
	_, err = h.publish(t, carol, upload{name: "foo", version: "1.2.0"})
	requireKind(t, err, apperr.Unverified, "could not verify team membership")
}

func TestConcurrentFirstPublish(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	actors := []rights.Actor{h.user(t, "alice"), h.user(t, "bob"), h.user(t, "carol"), h.user(t, "dave")}
	bodies := make([][]byte, len(actors))
	for i := range actors {
		bodies[i] = upload{name: "contested", version: "1.0." + string(rune('0'+i))}.body(t)
	}

	var wg sync.WaitGroup
	errs := make([]error, len(actors))
	for i, actor := range actors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.service.Publish(context.Background(), Request{Actor: actor, Body: bodies[i]})
		}()
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			if winner != -1 {
				t.Fatalf("both %s and %s won the first publish", actors[winner].Login, actors[i].Login)
			}
			winner = i
			continue
		}
		requireKind(t, err, apperr.Forbidden, "")
	}
	if winner == -1 {
		t.Fatalf("no publish succeeded: %v", errs)
	}

	err := h.store.Read(context.Background(), func(conn *sqlite.Conn) error {
		crate, err := store.CrateByName(conn, "contested")
		if err != nil {
			return err
		}
		owners, err := store.Owners(conn, crate.ID)
		if err != nil {
			return err
		}
		if len(owners) != 1 || owners[0].ID != actors[winner].UserID {
			t.Errorf("owners = %+v, want only %s", owners, actors[winner].Login)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty config")
	}
}
