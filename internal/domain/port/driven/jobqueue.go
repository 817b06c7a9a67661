package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
)

// JobQueue defines the driven port for the durable background job queue.
type JobQueue interface {
	Enqueue(ctx context.Context, job model.Job) (model.Job, error)
	// ClaimNext atomically marks the oldest due queued job as running.
	// Returns (nil, nil) when nothing is due.
	ClaimNext(ctx context.Context, now time.Time) (*model.Job, error)
	Complete(ctx context.Context, id int64, report string) error
	Fail(ctx context.Context, id int64, message string) error

	// Get and GetByToken return ErrNotFound for unknown jobs.
	Get(ctx context.Context, id int64) (*model.Job, error)
	GetByToken(ctx context.Context, token string) (*model.Job, error)
	ListByIssue(ctx context.Context, repo string, issue int) ([]model.Job, error)

	// FailInterrupted marks jobs left running by a previous process as failed.
	FailInterrupted(ctx context.Context, message string) (int64, error)
}
