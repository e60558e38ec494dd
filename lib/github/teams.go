// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/bureau-foundation/registry/lib/rights"
)

// Directory is a rights.TeamDirectory backed by the GitHub API.
type Directory struct {
	client *Client
}

var _ rights.TeamDirectory = (*Directory)(nil)

// NewDirectory returns a Directory using client.
func NewDirectory(client *Client) *Directory {
	return &Directory{client: client}
}

type organization struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

type team struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type membership struct {
	State string `json:"state"`
	Role  string `json:"role"`
}

// LookupTeam resolves org and team names to ids. Team names match
// GitHub's lowercase slugs.
func (d *Directory) LookupTeam(ctx context.Context, org, teamName string) (rights.TeamInfo, error) {
	var orgInfo organization
	if err := d.client.get(ctx, "/orgs/"+url.PathEscape(org), &orgInfo); err != nil {
		if IsNotFound(err) {
			return rights.TeamInfo{}, rights.ErrTeamNotFound
		}
		return rights.TeamInfo{}, err
	}
	var teamInfo team
	path := fmt.Sprintf("/orgs/%s/teams/%s", url.PathEscape(org), url.PathEscape(strings.ToLower(teamName)))
	if err := d.client.get(ctx, path, &teamInfo); err != nil {
		if IsNotFound(err) {
			return rights.TeamInfo{}, rights.ErrTeamNotFound
		}
		return rights.TeamInfo{}, err
	}
	return rights.TeamInfo{OrgID: orgInfo.ID, TeamID: teamInfo.ID, Org: orgInfo.Login, Team: teamInfo.Slug}, nil
}

// IsMember reports whether login is an active member of the team.
// Pending invitations do not count.
func (d *Directory) IsMember(ctx context.Context, orgID, teamID int64, login string) (bool, error) {
	path := fmt.Sprintf("/organizations/%d/team/%d/memberships/%s", orgID, teamID, url.PathEscape(login))
	return d.activeMembership(ctx, path, "")
}

// IsOrgOwner reports whether login is an active admin of the org.
func (d *Directory) IsOrgOwner(ctx context.Context, orgID int64, login string) (bool, error) {
	path := fmt.Sprintf("/organizations/%d/memberships/%s", orgID, url.PathEscape(login))
	return d.activeMembership(ctx, path, "admin")
}

func (d *Directory) activeMembership(ctx context.Context, path, role string) (bool, error) {
	var result membership
	if err := d.client.get(ctx, path, &result); err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if result.State != "active" {
		return false, nil
	}
	return role == "" || result.Role == role, nil
}
