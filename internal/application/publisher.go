package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// ArtifactPublisher publishes generated files to the per-submission branch of
// a papers repository. Running Publish repeatedly for the same issue converges
// on one live copy of each artifact.
type ArtifactPublisher struct {
	papers driven.PapersRepository
	policy RetryPolicy
	logger *slog.Logger
}

// NewArtifactPublisher creates an ArtifactPublisher.
func NewArtifactPublisher(papers driven.PapersRepository, policy RetryPolicy, logger *slog.Logger) *ArtifactPublisher {
	return &ArtifactPublisher{papers: papers, policy: policy, logger: logger}
}

// Publish resets the submission branch to the default branch tip, uploads the
// artifacts and optionally opens and merges a pull request.
func (p *ArtifactPublisher) Publish(ctx context.Context, req model.PublishRequest) (*model.PublishResult, error) {
	branch := model.BranchName(req.Alias, req.Issue)

	base, err := p.papers.DefaultBranch(ctx, req.Repo)
	if err != nil {
		return nil, fmt.Errorf("reading default branch of %s: %w", req.Repo, err)
	}

	if err := p.resetBranch(ctx, req.Repo, branch, base); err != nil {
		return nil, err
	}

	result := &model.PublishResult{Branch: branch}

	for _, a := range req.Artifacts {
		f, err := p.papers.CreateFile(ctx, req.Repo, branch, a.Path, a.Content, req.Message)
		if err != nil {
			return nil, fmt.Errorf("uploading %s to %s: %w", a.Path, branch, err)
		}
		result.Files = append(result.Files, f)
	}

	if !req.OpenPR {
		return result, nil
	}

	pr, err := p.openPullRequest(ctx, req, branch, base)
	if err != nil {
		return nil, err
	}
	result.PullRequest = pr

	if !req.Merge {
		return result, nil
	}

	err = retryOn(ctx, p.policy, driven.ErrNotMergeable, func() error {
		return p.papers.MergePullRequest(ctx, req.Repo, pr.Number, req.Message)
	})
	if err != nil {
		return nil, fmt.Errorf("merging pull request #%d: %w", pr.Number, err)
	}
	result.Merged = true

	if err := p.papers.DeleteBranch(ctx, req.Repo, branch); err != nil && !errors.Is(err, driven.ErrNotFound) {
		return nil, fmt.Errorf("deleting merged branch %s: %w", branch, err)
	}

	return result, nil
}

// resetBranch removes any previous artifacts and recreates branch at the base tip.
func (p *ArtifactPublisher) resetBranch(ctx context.Context, repo, branch, base string) error {
	_, err := p.papers.BranchSHA(ctx, repo, branch)
	switch {
	case err == nil:
		if err := p.clearSubmissionFiles(ctx, repo, branch); err != nil {
			return err
		}
		if err := p.papers.DeleteBranch(ctx, repo, branch); err != nil && !errors.Is(err, driven.ErrNotFound) {
			return fmt.Errorf("deleting branch %s: %w", branch, err)
		}
		p.logger.Debug("stale branch removed", "repo", repo, "branch", branch)
	case errors.Is(err, driven.ErrNotFound):
	default:
		return fmt.Errorf("reading branch %s: %w", branch, err)
	}

	tip, err := p.papers.BranchSHA(ctx, repo, base)
	if err != nil {
		return fmt.Errorf("reading %s tip: %w", base, err)
	}

	if err := p.papers.CreateBranch(ctx, repo, branch, tip); err != nil {
		if errors.Is(err, driven.ErrAlreadyExists) {
			p.logger.Info("branch created concurrently", "repo", repo, "branch", branch)
			return nil
		}
		return fmt.Errorf("creating branch %s: %w", branch, err)
	}
	return nil
}

func (p *ArtifactPublisher) clearSubmissionFiles(ctx context.Context, repo, branch string) error {
	files, err := p.papers.ListFiles(ctx, repo, branch, branch)
	if errors.Is(err, driven.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("listing files on %s: %w", branch, err)
	}

	for _, f := range files {
		if err := p.papers.DeleteFile(ctx, repo, branch, f.Path, f.SHA, "Deleting "+f.Path); err != nil {
			return fmt.Errorf("deleting %s: %w", f.Path, err)
		}
	}
	return nil
}

func (p *ArtifactPublisher) openPullRequest(ctx context.Context, req model.PublishRequest, branch, base string) (*model.PullRequest, error) {
	pr, err := p.papers.OpenPullRequest(ctx, req.Repo, branch, base, req.PRTitle, req.PRBody)
	if err == nil {
		return pr, nil
	}
	if !errors.Is(err, driven.ErrAlreadyExists) {
		return nil, fmt.Errorf("opening pull request for %s: %w", branch, err)
	}

	pr, err = p.papers.FindPullRequest(ctx, req.Repo, branch)
	if err != nil {
		return nil, fmt.Errorf("finding existing pull request for %s: %w", branch, err)
	}
	return pr, nil
}
