// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package owners adds and removes crate owners. Owners are either
// individual users, named by login, or provider teams, named
// "github:org:team". Changing owners requires individual ownership;
// team members can publish but not manage owners.
package owners

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"zombiezen.com/go/sqlite"

	"github.com/bureau-foundation/registry/lib/apperr"
	"github.com/bureau-foundation/registry/lib/clock"
	"github.com/bureau-foundation/registry/lib/rights"
	"github.com/bureau-foundation/registry/lib/store"
)

const lastOwnerMessage = "cannot remove all individual owners of a crate. " +
	"Team member don't have permission to modify owners, so at least one individual owner is required."

// Config configures a Service.
type Config struct {
	Store     *store.Store
	Directory rights.TeamDirectory
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Service manages crate ownership.
type Service struct {
	store     *store.Store
	directory rights.TeamDirectory
	clock     clock.Clock
	logger    *slog.Logger
}

// New validates config and returns a Service.
func New(config Config) (*Service, error) {
	if config.Store == nil {
		return nil, errors.New("owners: Store is required")
	}
	if config.Directory == nil {
		return nil, errors.New("owners: Directory is required")
	}
	if config.Clock == nil {
		return nil, errors.New("owners: Clock is required")
	}
	if config.Logger == nil {
		return nil, errors.New("owners: Logger is required")
	}
	return &Service{store: config.Store, directory: config.Directory, clock: config.Clock, logger: config.Logger}, nil
}

// List returns the owners of crateName.
func (s *Service) List(ctx context.Context, crateName string) ([]rights.Owner, error) {
	var owners []rights.Owner
	err := s.store.Read(ctx, func(conn *sqlite.Conn) error {
		crate, err := lookupCrate(conn, crateName)
		if err != nil {
			return err
		}
		owners, err = store.Owners(conn, crate.ID)
		return err
	})
	return owners, err
}

// TeamName is a parsed "github:org:team" login.
type TeamName struct {
	Org  string
	Team string
}

// Login is the canonical lowercase login.
func (n TeamName) Login() string {
	return strings.ToLower("github:" + n.Org + ":" + n.Team)
}

// ParseTeamLogin splits a team login. Errors are apperr.Input with the
// messages shown to clients.
func ParseTeamLogin(login string) (TeamName, error) {
	parts := strings.SplitN(login, ":", 3)
	if parts[0] != "github" {
		return TeamName{}, apperr.Inputf("unknown organization handler, only 'github:org:team' is supported")
	}
	if len(parts) < 3 || parts[2] == "" {
		return TeamName{}, apperr.Inputf("missing github team argument; format is github:org:team")
	}
	if strings.Contains(parts[1], "/") {
		return TeamName{}, apperr.Inputf("organization cannot contain special characters like /")
	}
	return TeamName{Org: parts[1], Team: parts[2]}, nil
}

// Add makes login an owner of crateName.
func (s *Service) Add(ctx context.Context, actor rights.Actor, crateName, login string) error {
	if err := s.requireFull(ctx, actor, crateName); err != nil {
		return err
	}
	if rights.IsTeamLogin(login) {
		return s.addTeam(ctx, actor, crateName, login)
	}

	err := s.store.Transact(ctx, func(conn *sqlite.Conn) error {
		crate, err := s.authorize(ctx, conn, actor, crateName)
		if err != nil {
			return err
		}
		user, err := store.UserByLogin(conn, login)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.Inputf("could not find user with login `%s`", login)
		}
		if err != nil {
			return err
		}
		owners, err := store.Owners(conn, crate.ID)
		if err != nil {
			return err
		}
		for _, owner := range owners {
			if owner.Kind == rights.UserOwner && owner.ID == user.ID {
				return apperr.Inputf("`%s` is already an owner", user.Login)
			}
		}
		return store.AddUserOwner(conn, crate.ID, user.ID, actor.UserID, s.clock.Now())
	})
	if err != nil {
		return classify(err, "adding owner")
	}
	s.logger.Info("owner added", "crate", crateName, "owner", login, "user", actor.Login)
	return nil
}

// addTeam resolves the team at the provider before opening the write
// transaction, so no provider round trip happens under the lock.
func (s *Service) addTeam(ctx context.Context, actor rights.Actor, crateName, login string) error {
	name, err := ParseTeamLogin(login)
	if err != nil {
		return err
	}
	info, err := s.directory.LookupTeam(ctx, name.Org, name.Team)
	if errors.Is(err, rights.ErrTeamNotFound) {
		return apperr.Inputf("could not find the github team %s/%s", name.Org, name.Team)
	}
	if err != nil {
		return apperr.Unverifiedf(err, "could not look up the github team %s/%s", name.Org, name.Team)
	}

	member, err := s.directory.IsMember(ctx, info.OrgID, info.TeamID, actor.Login)
	if err != nil {
		return apperr.Unverifiedf(err, "could not verify team membership for %s", name.Login())
	}
	if !member {
		owner, err := s.directory.IsOrgOwner(ctx, info.OrgID, actor.Login)
		if err != nil {
			return apperr.Unverifiedf(err, "could not verify organization ownership for %s", name.Org)
		}
		if !owner {
			return apperr.Forbiddenf("only members of a team or organization owners can add it as an owner")
		}
	}

	err = s.store.Transact(ctx, func(conn *sqlite.Conn) error {
		crate, err := s.authorize(ctx, conn, actor, crateName)
		if err != nil {
			return err
		}
		team, err := store.UpsertTeam(conn, name.Login(), info.OrgID, info.TeamID, info.Team)
		if err != nil {
			return err
		}
		return store.AddTeamOwner(conn, crate.ID, team.ID, actor.UserID, s.clock.Now())
	})
	if err != nil {
		return classify(err, "adding team owner")
	}
	s.logger.Info("team owner added", "crate", crateName, "owner", name.Login(), "org_id", info.OrgID, "team_id", info.TeamID, "user", actor.Login)
	return nil
}

// Remove drops login from crateName's owners. At least one individual
// owner always remains.
func (s *Service) Remove(ctx context.Context, actor rights.Actor, crateName, login string) error {
	err := s.store.Transact(ctx, func(conn *sqlite.Conn) error {
		crate, err := s.authorize(ctx, conn, actor, crateName)
		if err != nil {
			return err
		}
		owners, err := store.Owners(conn, crate.ID)
		if err != nil {
			return err
		}

		var target *rights.Owner
		users := 0
		for i := range owners {
			if owners[i].Kind == rights.UserOwner {
				users++
			}
			if strings.EqualFold(owners[i].Login, login) {
				target = &owners[i]
			}
		}
		if target == nil {
			return apperr.Inputf("`%s` is not an owner of `%s`", login, crate.Name)
		}
		if target.Kind == rights.UserOwner && users == 1 {
			return apperr.Inputf("%s", lastOwnerMessage)
		}
		return store.RemoveOwner(conn, crate.ID, target.Kind, target.ID)
	})
	if err != nil {
		return classify(err, "removing owner")
	}
	s.logger.Info("owner removed", "crate", crateName, "owner", login, "user", actor.Login)
	return nil
}

func (s *Service) requireFull(ctx context.Context, actor rights.Actor, crateName string) error {
	err := s.store.Read(ctx, func(conn *sqlite.Conn) error {
		_, err := s.authorize(ctx, conn, actor, crateName)
		return err
	})
	return classify(err, "checking ownership")
}

// authorize loads the crate and requires actor to be an individual
// owner of it.
func (s *Service) authorize(ctx context.Context, conn *sqlite.Conn, actor rights.Actor, crateName string) (*store.Crate, error) {
	crate, err := lookupCrate(conn, crateName)
	if err != nil {
		return nil, err
	}
	owners, err := store.Owners(conn, crate.ID)
	if err != nil {
		return nil, err
	}
	level, err := rights.Resolve(ctx, actor, owners, s.directory)
	if err != nil {
		return nil, err
	}
	switch {
	case level >= rights.Full:
		return crate, nil
	case level == rights.Publish:
		return nil, apperr.Forbiddenf("team members don't have permission to modify owners")
	default:
		return nil, apperr.Forbiddenf("only owners have permission to modify owners")
	}
}

func lookupCrate(conn *sqlite.Conn, name string) (*store.Crate, error) {
	crate, err := store.CrateByName(conn, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Inputf("crate `%s` does not exist", name)
	}
	return crate, err
}

func classify(err error, operation string) error {
	if err == nil {
		return nil
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperr.Internalf(err, "%s", operation)
}

// String renders an owner for listings.
func String(owner rights.Owner) string {
	if owner.Kind == rights.TeamOwner {
		return fmt.Sprintf("%s (team %d/%d)", owner.Login, owner.OrgID, owner.TeamID)
	}
	return owner.Login
}
