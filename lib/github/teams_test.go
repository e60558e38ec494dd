// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/bureau-foundation/registry/lib/clock"
	"github.com/bureau-foundation/registry/lib/rights"
)

func newTestDirectory(t *testing.T, handler http.Handler) *Directory {
	t.Helper()
	server := httptest.NewTLSServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{
		BaseURL:    server.URL,
		Token:      "test-token",
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return NewDirectory(client)
}

func TestNewClientRequiresHTTPS(t *testing.T) {
	if _, err := NewClient(Config{BaseURL: "http://example.com", Token: "x"}); err == nil {
		t.Fatal("expected error for plain HTTP base URL")
	}
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestLookupTeam(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orgs/rust-lang", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("X-GitHub-Api-Version"); got != apiVersion {
			t.Errorf("X-GitHub-Api-Version = %q", got)
		}
		w.Write([]byte(`{"id": 5430905, "login": "rust-lang"}`))
	})
	mux.HandleFunc("GET /orgs/rust-lang/teams/core", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 42, "slug": "core", "name": "Core"}`))
	})
	mux.HandleFunc("GET /orgs/rust-lang/teams/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message": "Not Found"}`))
	})
	directory := newTestDirectory(t, mux)
	ctx := context.Background()

	info, err := directory.LookupTeam(ctx, "rust-lang", "Core")
	if err != nil {
		t.Fatalf("LookupTeam: %v", err)
	}
	if info.OrgID != 5430905 || info.TeamID != 42 || info.Org != "rust-lang" || info.Team != "core" {
		t.Errorf("LookupTeam = %+v", info)
	}

	if _, err := directory.LookupTeam(ctx, "rust-lang", "missing"); !errors.Is(err, rights.ErrTeamNotFound) {
		t.Errorf("missing team error = %v, want ErrTeamNotFound", err)
	}
	if _, err := directory.LookupTeam(ctx, "nobody", "core"); !errors.Is(err, rights.ErrTeamNotFound) {
		t.Errorf("missing org error = %v, want ErrTeamNotFound", err)
	}
}

func TestMembership(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /organizations/1/team/2/memberships/alice", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state": "active", "role": "member"}`))
	})
	mux.HandleFunc("GET /organizations/1/team/2/memberships/bob", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state": "pending", "role": "member"}`))
	})
	mux.HandleFunc("GET /organizations/1/memberships/alice", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state": "active", "role": "member"}`))
	})
	mux.HandleFunc("GET /organizations/1/memberships/carol", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state": "active", "role": "admin"}`))
	})
	mux.HandleFunc("GET /organizations/1/team/2/memberships/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"message": "upstream"}`))
	})
	directory := newTestDirectory(t, mux)
	ctx := context.Background()

	for _, test := range []struct {
		login string
		want  bool
	}{
		{"alice", true},
		{"bob", false},
		{"dave", false},
	} {
		got, err := directory.IsMember(ctx, 1, 2, test.login)
		if err != nil {
			t.Fatalf("IsMember(%s): %v", test.login, err)
		}
		if got != test.want {
			t.Errorf("IsMember(%s) = %v, want %v", test.login, got, test.want)
		}
	}

	if owner, err := directory.IsOrgOwner(ctx, 1, "alice"); err != nil || owner {
		t.Errorf("IsOrgOwner(alice) = %v, %v; want false", owner, err)
	}
	if owner, err := directory.IsOrgOwner(ctx, 1, "carol"); err != nil || !owner {
		t.Errorf("IsOrgOwner(carol) = %v, %v; want true", owner, err)
	}

	_, err := directory.IsMember(ctx, 1, 2, "broken")
	var apiError *APIError
	if !errors.As(err, &apiError) || apiError.StatusCode != http.StatusBadGateway {
		t.Errorf("IsMember(broken) error = %v, want 502 APIError", err)
	}
}

func TestRateLimitRetry(t *testing.T) {
	fake := clock.Fake(time.Unix(1_700_000_000, 0))
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orgs/busy", func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"message": "secondary rate limit"}`))
			return
		}
		w.Header().Set("X-RateLimit-Remaining", "4999")
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(fake.Now().Add(time.Hour).Unix(), 10))
		w.Write([]byte(`{"id": 7, "login": "busy"}`))
	})
	mux.HandleFunc("GET /orgs/busy/teams/t", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": 8, "slug": "t"}`))
	})
	server := httptest.NewTLSServer(mux)
	t.Cleanup(server.Close)
	client, err := NewClient(Config{BaseURL: server.URL, Token: "x", HTTPClient: server.Client(), Clock: fake})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	directory := NewDirectory(client)

	done := make(chan error, 1)
	go func() {
		_, err := directory.LookupTeam(context.Background(), "busy", "t")
		done <- err
	}()

	deadline := time.Now().Add(5 * time.Second)
	for fake.Waiters() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never waited on the rate limit")
		}
		time.Sleep(time.Millisecond)
	}
	fake.Advance(30 * time.Second)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("LookupTeam after retry: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("LookupTeam did not complete after advancing the clock")
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestIsRateLimited(t *testing.T) {
	if !IsRateLimited(&APIError{StatusCode: 403, Message: "API rate limit exceeded for user"}) {
		t.Error("403 rate limit message not recognised")
	}
	if IsRateLimited(&APIError{StatusCode: 403, Message: "Resource not accessible"}) {
		t.Error("plain 403 treated as rate limited")
	}
	if !IsNotFound(&APIError{StatusCode: 404}) {
		t.Error("404 not recognised")
	}
}
