// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package rights resolves what an actor may do to a crate.
//
// Capability is a total order, None < Read < Publish < Full. A direct
// individual owner holds Full: they may publish and manage the owner
// list. A member of an owning team holds Publish. Everyone else holds
// None. For a crate that does not exist yet, every authenticated actor
// holds Publish, since the first publish makes the publisher its owner.
//
// Team membership is answered by a [TeamDirectory]. A directory
// failure is reported as an apperr.Unverified error, never folded into
// a denial.
package rights

import (
	"context"
	"strings"

	"github.com/bureau-foundation/registry/lib/apperr"
)

// Rights is a capability level.
type Rights int

const (
	None Rights = iota
	Read
	Publish
	Full
)

func (r Rights) String() string {
	switch r {
	case None:
		return "none"
	case Read:
		return "read"
	case Publish:
		return "publish"
	case Full:
		return "full"
	default:
		return "unknown"
	}
}

// Actor is the authenticated user a request runs as.
type Actor struct {
	UserID int64
	Login  string
}

// OwnerKind distinguishes individual and team owners.
type OwnerKind int

const (
	UserOwner OwnerKind = iota
	TeamOwner
)

// Owner is one ownership entry of a crate.
type Owner struct {
	Kind OwnerKind

	// ID is the user id or the team id in the record store.
	ID int64

	// Login is the user's login or the team's "github:org:team" login.
	Login string

	// OrgID and TeamID are the team's external identity. Zero for
	// individual owners.
	OrgID  int64
	TeamID int64
}

// TeamDirectory answers membership questions about external teams.
// Implementations reach an identity provider; every method may fail
// independently of the answer.
type TeamDirectory interface {
	// IsMember reports whether login belongs to the team identified
	// by its numeric org and team ids.
	IsMember(ctx context.Context, orgID, teamID int64, login string) (bool, error)

	// IsOrgOwner reports whether login is an administrator of the
	// organization.
	IsOrgOwner(ctx context.Context, orgID int64, login string) (bool, error)

	// LookupTeam resolves an org and team name to their numeric ids.
	// Returns ErrTeamNotFound when the team does not exist.
	LookupTeam(ctx context.Context, org, team string) (TeamInfo, error)
}

// TeamInfo identifies a team at the identity provider.
type TeamInfo struct {
	OrgID  int64
	TeamID int64

	// Org and Team are the provider's display names.
	Org  string
	Team string
}

// Resolve computes actor's capability over a crate owned by owners.
// A nil owners slice means the crate does not exist yet.
func Resolve(ctx context.Context, actor Actor, owners []Owner, directory TeamDirectory) (Rights, error) {
	if owners == nil {
		return Publish, nil
	}

	best := None
	for _, owner := range owners {
		if owner.Kind == UserOwner && owner.ID == actor.UserID {
			return Full, nil
		}
	}
	for _, owner := range owners {
		if owner.Kind != TeamOwner {
			continue
		}
		if directory == nil {
			return None, apperr.Unverifiedf(nil, "could not verify team membership for %s: no team directory configured", owner.Login)
		}
		member, err := directory.IsMember(ctx, owner.OrgID, owner.TeamID, actor.Login)
		if err != nil {
			return None, apperr.Unverifiedf(err, "could not verify team membership for %s", owner.Login)
		}
		if member {
			best = Publish
		}
	}
	return best, nil
}

// IsTeamLogin reports whether login names a team rather than a user.
func IsTeamLogin(login string) bool {
	return strings.Contains(login, ":")
}
