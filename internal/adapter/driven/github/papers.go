package github

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// DefaultBranch returns the default branch of a repository.
func (c *Client) DefaultBranch(ctx context.Context, repoFullName string) (string, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return "", err
	}

	r, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return "", wrapNotFound(err, "getting repository "+repoFullName)
	}

	logRateLimit(resp, repoFullName, 0, 1)
	return r.GetDefaultBranch(), nil
}

// BranchSHA returns the commit SHA at the tip of branch.
func (c *Client) BranchSHA(ctx context.Context, repoFullName, branch string) (string, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return "", err
	}

	ref, resp, err := c.gh.Git.GetRef(ctx, owner, repo, "heads/"+branch)
	if err != nil {
		return "", wrapNotFound(err, fmt.Sprintf("getting branch %s of %s", branch, repoFullName))
	}

	logRateLimit(resp, repoFullName+"/ref", 0, 1)
	return ref.GetObject().GetSHA(), nil
}

// CreateBranch creates branch pointing at sha.
func (c *Client) CreateBranch(ctx context.Context, repoFullName, branch, sha string) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	_, resp, err := c.gh.Git.CreateRef(ctx, owner, repo, gh.CreateRef{Ref: "refs/heads/" + branch, SHA: sha})
	if err != nil {
		if statusOf(err) == http.StatusUnprocessableEntity && strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("creating branch %s: %w", branch, driven.ErrAlreadyExists)
		}
		return fmt.Errorf("creating branch %s on %s: %w", branch, repoFullName, err)
	}

	logRateLimit(resp, repoFullName+"/create-ref", 0, 1)
	return nil
}

// DeleteBranch deletes branch. Deleting a missing branch is not an error.
func (c *Client) DeleteBranch(ctx context.Context, repoFullName, branch string) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	resp, err := c.gh.Git.DeleteRef(ctx, owner, repo, "heads/"+branch)
	if err != nil {
		// GitHub answers 422 "Reference does not exist" for missing refs.
		if s := statusOf(err); s == http.StatusNotFound || s == http.StatusUnprocessableEntity {
			return nil
		}
		return fmt.Errorf("deleting branch %s on %s: %w", branch, repoFullName, err)
	}

	logRateLimit(resp, repoFullName+"/delete-ref", 0, 1)
	return nil
}

// ListFiles lists the files directly under dir on branch.
func (c *Client) ListFiles(ctx context.Context, repoFullName, branch, dir string) ([]model.RepoFile, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.RepositoryContentGetOptions{Ref: branch}
	file, entries, resp, err := c.gh.Repositories.GetContents(ctx, owner, repo, dir, opts)
	if err != nil {
		return nil, wrapNotFound(err, fmt.Sprintf("listing %s on %s@%s", dir, repoFullName, branch))
	}

	logRateLimit(resp, repoFullName+"/contents", 0, len(entries))

	if file != nil {
		return []model.RepoFile{mapContent(file)}, nil
	}

	files := make([]model.RepoFile, 0, len(entries))
	for _, e := range entries {
		if e.GetType() != "file" {
			continue
		}
		files = append(files, mapContent(e))
	}
	return files, nil
}

// DeleteFile deletes path if its blob still has the given SHA.
func (c *Client) DeleteFile(ctx context.Context, repoFullName, branch, path, sha, message string) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(message),
		SHA:     gh.Ptr(sha),
		Branch:  gh.Ptr(branch),
	}

	_, resp, err := c.gh.Repositories.DeleteFile(ctx, owner, repo, path, opts)
	if err != nil {
		return wrapNotFound(err, fmt.Sprintf("deleting %s on %s@%s", path, repoFullName, branch))
	}

	logRateLimit(resp, repoFullName+"/delete-file", 0, 1)
	return nil
}

// CreateFile writes content to path on branch, replacing an existing file.
func (c *Client) CreateFile(ctx context.Context, repoFullName, branch, path string, content []byte, message string) (model.RepoFile, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return model.RepoFile{}, err
	}

	opts := &gh.RepositoryContentFileOptions{
		Message: gh.Ptr(message),
		Content: content,
		Branch:  gh.Ptr(branch),
	}

	// An existing file must be replaced with its current blob SHA.
	existing, _, _, err := c.gh.Repositories.GetContents(ctx, owner, repo, path, &gh.RepositoryContentGetOptions{Ref: branch})
	switch {
	case err == nil && existing != nil:
		opts.SHA = gh.Ptr(existing.GetSHA())
	case err != nil && statusOf(err) != http.StatusNotFound:
		return model.RepoFile{}, fmt.Errorf("checking %s on %s@%s: %w", path, repoFullName, branch, err)
	}

	var (
		result *gh.RepositoryContentResponse
		resp   *gh.Response
	)
	if opts.SHA != nil {
		result, resp, err = c.gh.Repositories.UpdateFile(ctx, owner, repo, path, opts)
	} else {
		result, resp, err = c.gh.Repositories.CreateFile(ctx, owner, repo, path, opts)
	}
	if err != nil {
		return model.RepoFile{}, fmt.Errorf("writing %s on %s@%s: %w", path, repoFullName, branch, err)
	}

	logRateLimit(resp, repoFullName+"/write-file", 0, 1)
	return mapContent(result.GetContent()), nil
}

// OpenPullRequest opens a pull request from head into base.
func (c *Client) OpenPullRequest(ctx context.Context, repoFullName, head, base, title, body string) (*model.PullRequest, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	pr, resp, err := c.gh.PullRequests.Create(ctx, owner, repo, &gh.NewPullRequest{
		Title: gh.Ptr(title),
		Head:  gh.Ptr(head),
		Base:  gh.Ptr(base),
		Body:  gh.Ptr(body),
	})
	if err != nil {
		if statusOf(err) == http.StatusUnprocessableEntity && strings.Contains(err.Error(), "already exists") {
			return nil, fmt.Errorf("opening pull request for %s: %w", head, driven.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("opening pull request for %s on %s: %w", head, repoFullName, err)
	}

	logRateLimit(resp, repoFullName+"/create-pull", 0, 1)
	return mapPullRequest(pr), nil
}

// FindPullRequest returns the open pull request whose head is the given branch.
func (c *Client) FindPullRequest(ctx context.Context, repoFullName, head string) (*model.PullRequest, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.PullRequestListOptions{
		State:       "open",
		Head:        owner + ":" + head,
		ListOptions: gh.ListOptions{PerPage: 10},
	}

	prs, resp, err := c.gh.PullRequests.List(ctx, owner, repo, opts)
	if err != nil {
		return nil, fmt.Errorf("listing pull requests for %s on %s: %w", head, repoFullName, err)
	}

	logRateLimit(resp, repoFullName+"/pulls", 0, len(prs))

	if len(prs) == 0 {
		return nil, fmt.Errorf("pull request for %s: %w", head, driven.ErrNotFound)
	}
	return mapPullRequest(prs[0]), nil
}

// MergePullRequest merges a pull request with a merge commit.
func (c *Client) MergePullRequest(ctx context.Context, repoFullName string, number int, message string) error {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return err
	}

	_, resp, err := c.gh.PullRequests.Merge(ctx, owner, repo, number, message, &gh.PullRequestOptions{MergeMethod: "merge"})
	if err != nil {
		// 405: not mergeable; 409: head moved since the pull request was read.
		if s := statusOf(err); s == http.StatusMethodNotAllowed || s == http.StatusConflict {
			return fmt.Errorf("merging %s#%d: %w", repoFullName, number, driven.ErrNotMergeable)
		}
		return fmt.Errorf("merging %s#%d: %w", repoFullName, number, err)
	}

	logRateLimit(resp, repoFullName+"/merge", 0, 1)
	return nil
}

func mapContent(c *gh.RepositoryContent) model.RepoFile {
	return model.RepoFile{
		Path:        c.GetPath(),
		SHA:         c.GetSHA(),
		HTMLURL:     c.GetHTMLURL(),
		DownloadURL: c.GetDownloadURL(),
	}
}

func mapPullRequest(pr *gh.PullRequest) *model.PullRequest {
	return &model.PullRequest{
		Number:  pr.GetNumber(),
		HTMLURL: pr.GetHTMLURL(),
		Head:    pr.GetHead().GetRef(),
		Base:    pr.GetBase().GetRef(),
	}
}
