package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
)

// ErrInProgress is returned by external services that report a conflicting
// request already being processed.
var ErrInProgress = errors.New("already in progress")

// VenueAPI defines the driven port for the journal website's editorial API.
type VenueAPI interface {
	// StartReview creates the REVIEW issue and returns its number.
	StartReview(ctx context.Context, venue model.Venue, issue int, editor string, reviewers []string) (int, error)
	AssignEditor(ctx context.Context, venue model.Venue, issue int, editor string) error
	InviteEditor(ctx context.Context, venue model.Venue, issue int, editor string) error
	Reject(ctx context.Context, venue model.Venue, issue int) error
	Withdraw(ctx context.Context, venue model.Venue, issue int) error
	// Deposit registers final metadata for an accepted paper.
	Deposit(ctx context.Context, venue model.Venue, issue int, doi, archiveDOI string, crossrefXML []byte) error
	// Announce posts a publication notice; a venue without an announce URL is a no-op.
	Announce(ctx context.Context, venue model.Venue, text string) error
}

// DOIResolver resolves identifiers against the DOI resolver without following redirects.
type DOIResolver interface {
	// Resolve returns the HTTP status of a HEAD request for doi.
	Resolve(ctx context.Context, doi string) (int, error)
}

// WorksSearch searches a bibliographic metadata registry by free text.
type WorksSearch interface {
	SearchWorks(ctx context.Context, query string) ([]model.Work, error)
}

// BuildService defines the driven port for the external notebook book builder.
type BuildService interface {
	// Build requests a build of commit. An already existing build is returned
	// with Existing set.
	Build(ctx context.Context, venue model.Venue, repoURL, commit string) (*model.BuildResult, error)
}

// ArchiveService defines the driven port for the software archiving service.
type ArchiveService interface {
	// Archive deposits a release and returns its DOI. ErrNotFound means the
	// repository or release is unknown; ErrInProgress means a deposit is running.
	Archive(ctx context.Context, venue model.Venue, repoURL, version string) (string, error)
}

// DeliveryDeduper detects redelivered webhooks.
type DeliveryDeduper interface {
	// FirstDelivery records id and reports whether it had not been seen before.
	FirstDelivery(ctx context.Context, id string) (bool, error)
	// Forget releases id so a later redelivery counts as first again.
	Forget(ctx context.Context, id string) error
}

// ArtifactStore stores generated files that are not tied to a submission thread.
type ArtifactStore interface {
	// Upload stores the local file at path under key and returns a download URL.
	Upload(ctx context.Context, key, path string) (string, error)
}
