// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package owners

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/registry/lib/apperr"
	"github.com/bureau-foundation/registry/lib/clock"
	"github.com/bureau-foundation/registry/lib/rights"
	"github.com/bureau-foundation/registry/lib/store"
)

// The directory mirrors a provider org with two teams: "all" holds
// every test user, "core" only user-all-teams. user-org-owner owns the
// org without being on a team.
func newTestService(t *testing.T) (*Service, *store.Store, *rights.StaticDirectory) {
	t.Helper()
	fake := clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	s, err := store.Open(store.Config{
		Path:   filepath.Join(t.TempDir(), "registry.db"),
		Clock:  fake,
		Logger: slog.Default(),
	})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	directory := rights.NewStaticDirectory(
		[]rights.StaticTeam{
			{OrgID: 1000, TeamID: 1, Org: "test-org", Team: "core", Members: []string{"user-all-teams"}},
			{OrgID: 1000, TeamID: 2, Org: "test-org", Team: "all", Members: []string{"user-all-teams", "user-one-team"}},
		},
		[]rights.StaticOrg{{OrgID: 1000, Owners: []string{"user-org-owner"}}},
	)
	service, err := New(Config{Store: s, Directory: directory, Clock: fake, Logger: slog.Default()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return service, s, directory
}

func ensureUser(t *testing.T, s *store.Store, login string) rights.Actor {
	t.Helper()
	var actor rights.Actor
	err := s.Transact(context.Background(), func(conn *sqlite.Conn) error {
		user, err := store.EnsureUser(conn, login, s.Now())
		if err != nil {
			return err
		}
		actor = rights.Actor{UserID: user.ID, Login: user.Login}
		return nil
	})
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	return actor
}

func createCrate(t *testing.T, s *store.Store, name string, owner rights.Actor) {
	t.Helper()
	err := s.Transact(context.Background(), func(conn *sqlite.Conn) error {
		_, _, err := store.CreateOrUpdateCrate(conn, store.NewCrate{Name: name}, owner.UserID, s.Now())
		return err
	})
	if err != nil {
		t.Fatalf("CreateOrUpdateCrate: %v", err)
	}
}

func ownerLogins(t *testing.T, service *Service, crate string) []string {
	t.Helper()
	owners, err := service.List(context.Background(), crate)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	logins := make([]string, 0, len(owners))
	for _, owner := range owners {
		logins = append(logins, owner.Login)
	}
	return logins
}

func requireError(t *testing.T, err error, kind apperr.Kind, message string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", message)
	}
	if !apperr.Is(err, kind) {
		t.Fatalf("error kind = %s (%v), want %s", apperr.KindOf(err), err, kind)
	}
	if err.Error() != message {
		t.Fatalf("error = %q\nwant    %q", err.Error(), message)
	}
}

func TestAddTeamLoginErrors(t *testing.T) {
	service, s, _ := newTestService(t)
	owner := ensureUser(t, s, "user-all-teams")
	createCrate(t, s, "foo", owner)
	ctx := context.Background()

	tests := []struct {
		login   string
		kind    apperr.Kind
		message string
	}{
		{"dropbox:foo:foo", apperr.Input, "unknown organization handler, only 'github:org:team' is supported"},
		{"github:foo/../bar:wut", apperr.Input, "organization cannot contain special characters like /"},
		{"github:test-org", apperr.Input, "missing github team argument; format is github:org:team"},
		{"github:test-org:this-does-not-exist", apperr.Input, "could not find the github team test-org/this-does-not-exist"},
	}
	for _, test := range tests {
		t.Run(test.login, func(t *testing.T) {
			requireError(t, service.Add(ctx, owner, "foo", test.login), test.kind, test.message)
		})
	}
}

func TestAddTeamMixedCaseAndRename(t *testing.T) {
	service, s, directory := newTestService(t)
	owner := ensureUser(t, s, "user-all-teams")
	createCrate(t, s, "foo", owner)
	ctx := context.Background()

	if err := service.Add(ctx, owner, "foo", "github:Test-Org:Core"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if diff := cmp.Diff([]string{"user-all-teams", "github:test-org:core"}, ownerLogins(t, service, "foo")); diff != "" {
		t.Errorf("owners (-want +got):\n%s", diff)
	}

	// The provider renamed the team; the same ids keep one row.
	directory.AddTeam(rights.StaticTeam{OrgID: 1000, TeamID: 1, Org: "test-org", Team: "core-renamed", Members: []string{"user-all-teams"}})
	createCrate(t, s, "bar", owner)
	if err := service.Add(ctx, owner, "bar", "github:test-org:core-renamed"); err != nil {
		t.Fatalf("Add renamed: %v", err)
	}
	if diff := cmp.Diff([]string{"user-all-teams", "github:test-org:core-renamed"}, ownerLogins(t, service, "foo")); diff != "" {
		t.Errorf("renamed team owners (-want +got):\n%s", diff)
	}
}

func TestAddTeamAsOrgOwner(t *testing.T) {
	service, s, _ := newTestService(t)
	owner := ensureUser(t, s, "user-org-owner")
	createCrate(t, s, "foo", owner)
	if err := service.Add(context.Background(), owner, "foo", "github:test-org:core"); err != nil {
		t.Fatalf("Add as org owner: %v", err)
	}
}

func TestAddTeamAsNonMember(t *testing.T) {
	service, s, _ := newTestService(t)
	owner := ensureUser(t, s, "user-one-team")
	createCrate(t, s, "foo", owner)
	err := service.Add(context.Background(), owner, "foo", "github:test-org:core")
	requireError(t, err, apperr.Forbidden, "only members of a team or organization owners can add it as an owner")
}

func TestAddOwnersRequiresIndividualOwnership(t *testing.T) {
	service, s, _ := newTestService(t)
	owner := ensureUser(t, s, "user-all-teams")
	oneTeam := ensureUser(t, s, "user-one-team")
	orgOwner := ensureUser(t, s, "user-org-owner")
	ensureUser(t, s, "arbitrary_username")
	createCrate(t, s, "foo", owner)
	ctx := context.Background()
	if err := service.Add(ctx, owner, "foo", "github:test-org:all"); err != nil {
		t.Fatalf("Add team: %v", err)
	}

	requireError(t, service.Add(ctx, oneTeam, "foo", "arbitrary_username"),
		apperr.Forbidden, "team members don't have permission to modify owners")
	requireError(t, service.Add(ctx, orgOwner, "foo", "arbitrary_username"),
		apperr.Forbidden, "only owners have permission to modify owners")
	requireError(t, service.Remove(ctx, oneTeam, "foo", "github:test-org:all"),
		apperr.Forbidden, "team members don't have permission to modify owners")
	requireError(t, service.Remove(ctx, orgOwner, "foo", "github:test-org:all"),
		apperr.Forbidden, "only owners have permission to modify owners")
}

func TestAddUserOwner(t *testing.T) {
	service, s, _ := newTestService(t)
	owner := ensureUser(t, s, "alice")
	ensureUser(t, s, "bob")
	createCrate(t, s, "foo", owner)
	ctx := context.Background()

	if err := service.Add(ctx, owner, "foo", "Bob"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	requireError(t, service.Add(ctx, owner, "foo", "bob"), apperr.Input, "`bob` is already an owner")
	requireError(t, service.Add(ctx, owner, "foo", "nobody"), apperr.Input, "could not find user with login `nobody`")
	requireError(t, service.Add(ctx, owner, "missing", "bob"), apperr.Input, "crate `missing` does not exist")
}

func TestRemoveKeepsAnIndividualOwner(t *testing.T) {
	service, s, _ := newTestService(t)
	owner := ensureUser(t, s, "user-all-teams")
	createCrate(t, s, "foo", owner)
	ctx := context.Background()
	if err := service.Add(ctx, owner, "foo", "github:test-org:core"); err != nil {
		t.Fatalf("Add team: %v", err)
	}

	requireError(t, service.Remove(ctx, owner, "foo", "user-all-teams"), apperr.Input, lastOwnerMessage)

	if err := service.Remove(ctx, owner, "foo", "github:test-org:core"); err != nil {
		t.Fatalf("Remove team: %v", err)
	}
	if diff := cmp.Diff([]string{"user-all-teams"}, ownerLogins(t, service, "foo")); diff != "" {
		t.Errorf("owners (-want +got):\n%s", diff)
	}
	err := service.Remove(ctx, owner, "foo", "github:test-org:core")
	if !apperr.Is(err, apperr.Input) || !strings.Contains(err.Error(), "is not an owner") {
		t.Errorf("removing absent owner = %v", err)
	}
}

func TestDirectoryFailureIsUnverified(t *testing.T) {
	service, s, directory := newTestService(t)
	owner := ensureUser(t, s, "user-all-teams")
	createCrate(t, s, "foo", owner)
	directory.SetFailure(errors.New("provider down"))
	err := service.Add(context.Background(), owner, "foo", "github:test-org:core")
	if !apperr.Is(err, apperr.Unverified) {
		t.Fatalf("Add with failing directory = %v, want Unverified", err)
	}
}

func TestParseTeamLogin(t *testing.T) {
	name, err := ParseTeamLogin("github:Rust-Lang:Core")
	if err != nil {
		t.Fatal(err)
	}
	if name.Org != "Rust-Lang" || name.Team != "Core" || name.Login() != "github:rust-lang:core" {
		t.Errorf("ParseTeamLogin = %+v (%s)", name, name.Login())
	}
}
