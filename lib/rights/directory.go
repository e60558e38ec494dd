// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package rights

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrTeamNotFound is returned by LookupTeam for an unknown team.
var ErrTeamNotFound = errors.New("rights: team not found")

// StaticTeam describes a team in a StaticDirectory.
type StaticTeam struct {
	OrgID   int64    `yaml:"org_id"`
	TeamID  int64    `yaml:"team_id"`
	Org     string   `yaml:"org"`
	Team    string   `yaml:"team"`
	Members []string `yaml:"members"`
}

// StaticOrg describes an organization in a StaticDirectory.
type StaticOrg struct {
	OrgID  int64    `yaml:"org_id"`
	Owners []string `yaml:"owners"`
}

// StaticDirectory is an in-memory TeamDirectory, configured from the
// registry config file or built by tests. Logins compare
// case-insensitively. Safe for concurrent use; SetFailure lets tests
// simulate an identity provider outage.
type StaticDirectory struct {
	mu      sync.RWMutex
	teams   []StaticTeam
	owners  map[int64]map[string]bool
	failure error
}

// NewStaticDirectory builds a directory from teams and orgs.
func NewStaticDirectory(teams []StaticTeam, orgs []StaticOrg) *StaticDirectory {
	directory := &StaticDirectory{owners: make(map[int64]map[string]bool)}
	for _, team := range teams {
		directory.AddTeam(team)
	}
	for _, org := range orgs {
		for _, owner := range org.Owners {
			directory.AddOrgOwner(org.OrgID, owner)
		}
	}
	return directory
}

// AddTeam registers a team, replacing any team with the same ids.
func (d *StaticDirectory) AddTeam(team StaticTeam) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, existing := range d.teams {
		if existing.OrgID == team.OrgID && existing.TeamID == team.TeamID {
			d.teams[i] = team
			return
		}
	}
	d.teams = append(d.teams, team)
}

// AddOrgOwner records login as an administrator of orgID.
func (d *StaticDirectory) AddOrgOwner(orgID int64, login string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.owners[orgID] == nil {
		d.owners[orgID] = make(map[string]bool)
	}
	d.owners[orgID][strings.ToLower(login)] = true
}

// SetFailure makes every query fail with err until called with nil.
func (d *StaticDirectory) SetFailure(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failure = err
}

func (d *StaticDirectory) IsMember(_ context.Context, orgID, teamID int64, login string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.failure != nil {
		return false, d.failure
	}
	for _, team := range d.teams {
		if team.OrgID != orgID || team.TeamID != teamID {
			continue
		}
		for _, member := range team.Members {
			if strings.EqualFold(member, login) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (d *StaticDirectory) IsOrgOwner(_ context.Context, orgID int64, login string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.failure != nil {
		return false, d.failure
	}
	return d.owners[orgID][strings.ToLower(login)], nil
}

func (d *StaticDirectory) LookupTeam(_ context.Context, org, team string) (TeamInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.failure != nil {
		return TeamInfo{}, d.failure
	}
	for _, candidate := range d.teams {
		if strings.EqualFold(candidate.Org, org) && strings.EqualFold(candidate.Team, team) {
			return TeamInfo{OrgID: candidate.OrgID, TeamID: candidate.TeamID, Org: candidate.Org, Team: candidate.Team}, nil
		}
	}
	return TeamInfo{}, ErrTeamNotFound
}
