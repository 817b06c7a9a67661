// Package workspace clones submitted repositories into local working copies.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"

	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Workspace = (*Git)(nil)

// errStop ends a log walk early.
var errStop = errors.New("stop")

// Git implements driven.Workspace with go-git, without a git binary.
type Git struct {
	token string
}

// NewGit creates a Git workspace. A non-empty token is sent as basic auth
// so that private repositories on the hosting service can be cloned.
func NewGit(token string) *Git {
	return &Git{token: token}
}

// Clone clones repoURL into dest, checking out branch when given.
func (g *Git) Clone(ctx context.Context, repoURL, branch, dest string) error {
	opts := &git.CloneOptions{
		URL:          repoURL,
		SingleBranch: branch != "",
		Tags:         git.NoTags,
	}
	if branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(branch)
	}
	if g.token != "" && strings.HasPrefix(repoURL, "https://") {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: g.token}
	}

	if _, err := git.PlainCloneContext(ctx, dest, false, opts); err != nil {
		if branch != "" {
			return fmt.Errorf("clone %s (branch %s): %w", repoURL, branch, err)
		}
		return fmt.Errorf("clone %s: %w", repoURL, err)
	}
	return nil
}

// LatestCommitMatching walks history from HEAD, newest first, and returns the
// first commit whose message contains marker.
func (g *Git) LatestCommitMatching(_ context.Context, dir, marker string) (string, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return "", fmt.Errorf("open repo: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash(), Order: git.LogOrderCommitterTime})
	if err != nil {
		return "", fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	var found string
	err = iter.ForEach(func(c *object.Commit) error {
		if strings.Contains(c.Message, marker) {
			found = c.Hash.String()
			return errStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStop) {
		return "", fmt.Errorf("walk log: %w", err)
	}

	if found == "" {
		return "", fmt.Errorf("commit matching %q: %w", marker, driven.ErrNotFound)
	}
	return found, nil
}
