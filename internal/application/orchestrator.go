package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

const interruptedMessage = "job was interrupted by a restart before it finished; please re-issue the command"

// JobHandler executes one kind of background job. The returned report is
// posted to the submission thread, or only stored for jobs without one.
type JobHandler interface {
	Run(ctx context.Context, job model.Job) (string, error)
}

// JobHandlerFunc adapts a function to JobHandler.
type JobHandlerFunc func(ctx context.Context, job model.Job) (string, error)

// Run calls f.
func (f JobHandlerFunc) Run(ctx context.Context, job model.Job) (string, error) {
	return f(ctx, job)
}

// Failure is a job error whose message is meant for the submission thread.
type Failure struct {
	Message string
	Err     error
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.Err }

func failf(err error, format string, args ...any) error {
	return &Failure{Message: fmt.Sprintf(format, args...), Err: err}
}

// threadMessage renders a job error for the thread. Failures are posted as
// they are; anything else is posted verbatim behind a short header.
func threadMessage(job model.Job, err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Message
	}
	return fmt.Sprintf("The %s job for issue #%d failed with the following error: \n\n %s", job.Kind, job.Issue, err)
}

// Orchestrator runs queued jobs on a fixed pool of workers. Jobs are never
// retried automatically; users re-issue the command instead.
type Orchestrator struct {
	queue    driven.JobQueue
	tracker  driven.IssueTracker
	handlers map[model.JobKind]JobHandler
	locks    *IssueLocks
	workers  int
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewOrchestrator creates an Orchestrator. locks must be the instance shared
// with the dispatcher.
func NewOrchestrator(
	queue driven.JobQueue,
	tracker driven.IssueTracker,
	handlers map[model.JobKind]JobHandler,
	locks *IssueLocks,
	workers int,
	interval time.Duration,
	logger *slog.Logger,
) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	return &Orchestrator{
		queue:    queue,
		tracker:  tracker,
		handlers: handlers,
		locks:    locks,
		workers:  workers,
		interval: interval,
		logger:   logger,
		now:      time.Now,
	}
}

// Recover marks jobs left running by a previous process as failed.
func (o *Orchestrator) Recover(ctx context.Context) error {
	n, err := o.queue.FailInterrupted(ctx, interruptedMessage)
	if err != nil {
		return fmt.Errorf("failing interrupted jobs: %w", err)
	}
	if n > 0 {
		o.logger.Warn("interrupted jobs marked failed", "count", n)
	}
	return nil
}

// Start runs the workers and blocks until ctx is canceled and every
// in-flight job has returned.
func (o *Orchestrator) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for i := range o.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.work(ctx, i)
		}()
	}
	wg.Wait()
	o.logger.Info("job workers stopped")
}

func (o *Orchestrator) work(ctx context.Context, worker int) {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		for ctx.Err() == nil {
			ran, err := o.RunNext(ctx)
			if err != nil {
				o.logger.Error("job poll failed", "worker", worker, "error", err)
				break
			}
			if !ran {
				break
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunNext claims and executes one due job. It reports whether a job ran.
func (o *Orchestrator) RunNext(ctx context.Context) (bool, error) {
	job, err := o.queue.ClaimNext(ctx, o.now())
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}
	o.execute(ctx, *job)
	return true, nil
}

func (o *Orchestrator) execute(ctx context.Context, job model.Job) {
	logger := o.logger.With("job_id", job.ID, "kind", job.Kind, "repo", job.Repo, "issue", job.Issue)

	unlock := o.locks.Lock(job.LockKey())
	defer unlock()

	start := time.Now()
	report, err := o.run(ctx, job)

	// Bookkeeping must land even when shutdown canceled the job itself.
	bg := context.WithoutCancel(ctx)

	if err != nil {
		logger.Error("job failed", "error", err, "duration", time.Since(start).Round(time.Millisecond))
		if ferr := o.queue.Fail(bg, job.ID, err.Error()); ferr != nil {
			logger.Error("recording job failure", "error", ferr)
		}
		o.post(bg, job, threadMessage(job, err), logger)
		return
	}

	logger.Info("job succeeded", "duration", time.Since(start).Round(time.Millisecond))
	if cerr := o.queue.Complete(bg, job.ID, report); cerr != nil {
		logger.Error("recording job result", "error", cerr)
	}
	o.post(bg, job, report, logger)
}

func (o *Orchestrator) run(ctx context.Context, job model.Job) (report string, err error) {
	h, ok := o.handlers[job.Kind]
	if !ok {
		return "", fmt.Errorf("no handler for job kind %q", job.Kind)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()

	return h.Run(ctx, job)
}

func (o *Orchestrator) post(ctx context.Context, job model.Job, msg string, logger *slog.Logger) {
	if job.Issue == 0 || msg == "" {
		return
	}
	if err := o.tracker.CreateComment(ctx, job.Repo, job.Issue, msg); err != nil {
		logger.Error("posting job result", "error", err)
	}
}
