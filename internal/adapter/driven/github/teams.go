package github

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v82/github"
)

// ListTeamMembers lists the logins of a team addressed as "org/slug".
func (c *Client) ListTeamMembers(ctx context.Context, team string) ([]string, error) {
	org, slug, err := splitRepo(team)
	if err != nil {
		return nil, fmt.Errorf("invalid team %q: %w", team, err)
	}

	return c.listMembers(team, func(opts *gh.TeamListTeamMembersOptions) ([]*gh.User, *gh.Response, error) {
		return c.gh.Teams.ListTeamMembersBySlug(ctx, org, slug, opts)
	})
}

// ListTeamMembersByID lists the logins of a team addressed by numeric ids.
func (c *Client) ListTeamMembersByID(ctx context.Context, orgID, teamID int64) ([]string, error) {
	name := fmt.Sprintf("%d/%d", orgID, teamID)
	return c.listMembers(name, func(opts *gh.TeamListTeamMembersOptions) ([]*gh.User, *gh.Response, error) {
		return c.gh.Teams.ListTeamMembersByID(ctx, orgID, teamID, opts)
	})
}

func (c *Client) listMembers(team string, list func(*gh.TeamListTeamMembersOptions) ([]*gh.User, *gh.Response, error)) ([]string, error) {
	opts := &gh.TeamListTeamMembersOptions{ListOptions: gh.ListOptions{PerPage: 100}}
	members := []string{}

	for {
		users, resp, err := list(opts)
		if err != nil {
			return nil, wrapNotFound(err, fmt.Sprintf("listing members of team %s (page %d)", team, opts.Page))
		}

		logRateLimit(resp, "teams/"+team, opts.Page, len(users))

		for _, u := range users {
			members = append(members, u.GetLogin())
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return members, nil
}
