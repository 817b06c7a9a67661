package driven

import (
	"context"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
)

// PapersRepository defines the driven port for the content, branch and pull
// request operations used to publish artifacts.
type PapersRepository interface {
	DefaultBranch(ctx context.Context, repo string) (string, error)
	// BranchSHA returns the tip of branch, or ErrNotFound.
	BranchSHA(ctx context.Context, repo, branch string) (string, error)
	// CreateBranch returns ErrAlreadyExists when the ref is already present.
	CreateBranch(ctx context.Context, repo, branch, sha string) error
	DeleteBranch(ctx context.Context, repo, branch string) error

	// ListFiles lists files directly under dir on branch, or ErrNotFound.
	ListFiles(ctx context.Context, repo, branch, dir string) ([]model.RepoFile, error)
	// DeleteFile deletes path only if its blob SHA still equals sha.
	DeleteFile(ctx context.Context, repo, branch, path, sha, message string) error
	CreateFile(ctx context.Context, repo, branch, path string, content []byte, message string) (model.RepoFile, error)

	// OpenPullRequest returns ErrAlreadyExists when a pull request for head is already open.
	OpenPullRequest(ctx context.Context, repo, head, base, title, body string) (*model.PullRequest, error)
	// FindPullRequest returns the open pull request for head, or ErrNotFound.
	FindPullRequest(ctx context.Context, repo, head string) (*model.PullRequest, error)
	// MergePullRequest returns ErrNotMergeable when the hosting API refuses the merge.
	MergePullRequest(ctx context.Context, repo string, number int, message string) error
}
