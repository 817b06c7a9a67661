package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
)

// GetIssue fetches a submission thread.
func (c *Client) GetIssue(ctx context.Context, repoFullName string, number int) (*model.Issue, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	issue, resp, err := c.gh.Issues.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("getting issue %s#%d", repoFullName, number))
	}

	logRateLimit(resp, repoFullName+"/issue", 0, 1)
	return mapIssue(issue, repoFullName), nil
}

// UpdateIssue edits the title, body, assignees or state of an issue.
// Nil fields of update are not sent.
func (c *Client) UpdateIssue(ctx context.Context, repoFullName string, number int, update model.IssueUpdate) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	req := &gh.IssueRequest{
		Title:     update.Title,
		Body:      update.Body,
		Assignees: update.Assignees,
		State:     update.State,
	}

	_, resp, err := c.gh.Issues.Edit(ctx, owner, repo, number, req)
	if err != nil {
		return fmt.Errorf("updating issue %s#%d: %w", repoFullName, number, err)
	}

	logRateLimit(resp, repoFullName+"/edit-issue", 0, 1)
	return nil
}

// CreateComment posts a comment on an issue.
func (c *Client) CreateComment(ctx context.Context, repoFullName string, number int, body string) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	comment := &gh.IssueComment{Body: gh.Ptr(body)}
	_, resp, err := c.gh.Issues.CreateComment(ctx, owner, repo, number, comment)
	if err != nil {
		return fmt.Errorf("creating comment on %s#%d: %w", repoFullName, number, err)
	}

	logRateLimit(resp, repoFullName+"/create-comment", 0, 1)
	return nil
}

// AddLabels adds labels to an issue, creating unknown labels on the fly.
func (c *Client) AddLabels(ctx context.Context, repoFullName string, number int, labels ...string) error {
	if len(labels) == 0 {
		return nil
	}

	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	_, resp, err := c.gh.Issues.AddLabelsToIssue(ctx, owner, repo, number, labels)
	if err != nil {
		return fmt.Errorf("labeling %s#%d: %w", repoFullName, number, err)
	}

	logRateLimit(resp, repoFullName+"/labels", 0, len(labels))
	return nil
}

// RemoveLabel removes one label from an issue. A label that is not on the
// issue counts as removed.
func (c *Client) RemoveLabel(ctx context.Context, repoFullName string, number int, label string) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	resp, err := c.gh.Issues.RemoveLabelForIssue(ctx, owner, repo, number, label)
	if err != nil {
		if statusOf(err) == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("removing label %q from %s#%d: %w", label, repoFullName, number, err)
	}

	logRateLimit(resp, repoFullName+"/labels", 0, 1)
	return nil
}

// CloseIssue closes an issue.
func (c *Client) CloseIssue(ctx context.Context, repoFullName string, number int) error {
	closed := "closed"
	if err := c.UpdateIssue(ctx, repoFullName, number, model.IssueUpdate{State: &closed}); err != nil {
		return fmt.Errorf("closing issue: %w", err)
	}
	return nil
}

// IsCollaborator reports whether handle already has access to the repository.
func (c *Client) IsCollaborator(ctx context.Context, repoFullName, handle string) (bool, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return false, err
	}

	ok, resp, err := c.gh.Repositories.IsCollaborator(ctx, owner, repo, strings.TrimPrefix(handle, "@"))
	if err != nil {
		return false, fmt.Errorf("checking collaborator %s on %s: %w", handle, repoFullName, err)
	}

	logRateLimit(resp, repoFullName+"/collaborator", 0, 1)
	return ok, nil
}

// HasPendingInvitation reports whether handle has an unanswered repository invitation.
func (c *Client) HasPendingInvitation(ctx context.Context, repoFullName, handle string) (bool, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return false, err
	}

	login := strings.TrimPrefix(handle, "@")
	opts := &gh.ListOptions{PerPage: 100}

	for {
		invitations, resp, err := c.gh.Repositories.ListInvitations(ctx, owner, repo, opts)
		if err != nil {
			return false, fmt.Errorf("listing invitations for %s (page %d): %w", repoFullName, opts.Page, err)
		}

		logRateLimit(resp, repoFullName+"/invitations", opts.Page, len(invitations))

		for _, inv := range invitations {
			if strings.EqualFold(inv.GetInvitee().GetLogin(), login) {
				return true, nil
			}
		}

		if resp.NextPage == 0 {
			return false, nil
		}
		opts.Page = resp.NextPage
	}
}

// AddCollaborator invites handle to the repository with push access.
func (c *Client) AddCollaborator(ctx context.Context, repoFullName, handle string) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	opts := &gh.RepositoryAddCollaboratorOptions{Permission: "push"}
	_, resp, err := c.gh.Repositories.AddCollaborator(ctx, owner, repo, strings.TrimPrefix(handle, "@"), opts)
	if err != nil {
		return fmt.Errorf("adding collaborator %s to %s: %w", handle, repoFullName, err)
	}

	logRateLimit(resp, repoFullName+"/add-collaborator", 0, 1)
	return nil
}

// mapIssue converts a go-github Issue to a domain model Issue.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapIssue(issue *gh.Issue, repoFullName string) *model.Issue {
	labels := make([]string, 0, len(issue.Labels))
	for _, l := range issue.Labels {
		labels = append(labels, l.GetName())
	}

	assignees := make([]string, 0, len(issue.Assignees))
	for _, a := range issue.Assignees {
		assignees = append(assignees, a.GetLogin())
	}

	return &model.Issue{
		Repo:      repoFullName,
		Number:    issue.GetNumber(),
		Title:     issue.GetTitle(),
		Body:      issue.GetBody(),
		State:     issue.GetState(),
		Labels:    labels,
		Assignees: assignees,
		UpdatedAt: issue.GetUpdatedAt().Time,
	}
}
