package driven

import (
	"context"
	"io"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
)

// Workspace defines the driven port for local working copies of submitted repositories.
type Workspace interface {
	// Clone clones repoURL into dest. An empty branch clones the default branch.
	Clone(ctx context.Context, repoURL, branch, dest string) error
	// LatestCommitMatching returns the SHA of the newest commit in dir whose
	// message contains marker, or ErrNotFound.
	LatestCommitMatching(ctx context.Context, dir, marker string) (string, error)
}

// Typesetter compiles papers into proofs and registrar metadata.
type Typesetter interface {
	Compile(ctx context.Context, req model.TypesetRequest) (*model.TypesetResult, error)
}

// PaperInspector locates and reads papers in a working copy.
type PaperInspector interface {
	// Locate finds the paper under dir, or returns ErrNotFound.
	Locate(ctx context.Context, dir string) (*model.Paper, error)
	ParseBibliography(r io.Reader) ([]model.BibEntry, error)
}

// SourceAnalyzer reports languages and license of a working copy.
type SourceAnalyzer interface {
	Analyze(ctx context.Context, dir string) (*model.SourceReport, error)
}
