package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// ErrInvalidPreview is returned for preview requests that cannot be queued.
var ErrInvalidPreview = errors.New("invalid preview request")

// PreviewRequest asks for a proof of the paper in a public repository.
// Journal names the venue whose templates are used, by its reviews
// repository; empty selects the default templates.
type PreviewRequest struct {
	Repository string
	Branch     string
	Journal    string
}

// PreviewService queues preview jobs. Previews are not tied to a submission
// thread and are tracked by an unguessable token.
type PreviewService struct {
	queue    driven.JobQueue
	venues   VenueLookup
	newToken func() string
	logger   *slog.Logger
}

// NewPreviewService creates a PreviewService.
func NewPreviewService(queue driven.JobQueue, venues VenueLookup, logger *slog.Logger) *PreviewService {
	return &PreviewService{
		queue:    queue,
		venues:   venues,
		newToken: uuid.NewString,
		logger:   logger,
	}
}

// Request validates req and enqueues a preview job.
func (s *PreviewService) Request(ctx context.Context, req PreviewRequest) (model.Job, error) {
	repoURL := strings.TrimSpace(req.Repository)
	u, err := url.Parse(repoURL)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return model.Job{}, fmt.Errorf("%w: repository must be an http(s) URL", ErrInvalidPreview)
	}

	journal := strings.TrimSpace(req.Journal)
	if journal != "" {
		if _, ok := s.venues.Lookup(journal); !ok {
			return model.Job{}, fmt.Errorf("%w: unknown journal %s", ErrInvalidPreview, journal)
		}
	}

	job, err := s.queue.Enqueue(ctx, model.Job{
		Kind:      model.JobKindPreview,
		Token:     s.newToken(),
		Repo:      journal,
		Branch:    strings.TrimSpace(req.Branch),
		SourceURL: repoURL,
	})
	if err != nil {
		return model.Job{}, fmt.Errorf("enqueueing preview: %w", err)
	}

	s.logger.Info("preview queued", "token", job.Token, "repository", repoURL)
	return job, nil
}

// Status returns a preview job by its token.
func (s *PreviewService) Status(ctx context.Context, token string) (*model.Job, error) {
	job, err := s.queue.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if job.Kind != model.JobKindPreview {
		return nil, fmt.Errorf("job %s: %w", token, driven.ErrNotFound)
	}
	return job, nil
}
