package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.JobQueue = (*JobRepo)(nil)

// timeLayout is fixed-width so that stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const jobColumns = `id, token, kind, repo, issue, branch, dry_run, target, source_url,
	status, run_at, report, error, created_at, updated_at`

// JobRepo is the SQLite implementation of the JobQueue port interface.
type JobRepo struct {
	db  *DB
	now func() time.Time
}

// NewJobRepo creates a new JobRepo backed by the given DB.
func NewJobRepo(db *DB) *JobRepo {
	return &JobRepo{db: db, now: time.Now}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// Enqueue inserts a queued job. A zero RunAt means the job is due immediately.
func (r *JobRepo) Enqueue(ctx context.Context, job model.Job) (model.Job, error) {
	const query = `
		INSERT INTO jobs (token, kind, repo, issue, branch, dry_run, target, source_url,
		                  status, run_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := r.now().UTC().Truncate(time.Microsecond)
	if job.RunAt.IsZero() {
		job.RunAt = now
	}
	job.Status = model.JobStatusQueued
	job.CreatedAt = now
	job.UpdatedAt = now

	dryRun := 0
	if job.DryRun {
		dryRun = 1
	}

	result, err := r.db.Writer.ExecContext(ctx, query,
		job.Token, string(job.Kind), job.Repo, job.Issue, job.Branch, dryRun, job.Target, job.SourceURL,
		string(job.Status), formatTime(job.RunAt), formatTime(now), formatTime(now),
	)
	if err != nil {
		return model.Job{}, fmt.Errorf("enqueue %s job: %w", job.Kind, err)
	}

	job.ID, err = result.LastInsertId()
	if err != nil {
		return model.Job{}, fmt.Errorf("get last insert id: %w", err)
	}

	return job, nil
}

// ClaimNext marks the oldest due queued job as running and returns it. Jobs
// for an issue that already has a running job are passed over, so queued work
// for one submission never ties up more than one worker. The single writer
// connection makes the update atomic across workers.
func (r *JobRepo) ClaimNext(ctx context.Context, now time.Time) (*model.Job, error) {
	query := `
		UPDATE jobs SET status = 'running', updated_at = ?
		WHERE id = (
			SELECT q.id FROM jobs q
			WHERE q.status = 'queued' AND q.run_at <= ?
			  AND (q.issue = 0 OR NOT EXISTS (
			      SELECT 1 FROM jobs busy
			      WHERE busy.status = 'running' AND busy.repo = q.repo AND busy.issue = q.issue
			  ))
			ORDER BY q.run_at, q.id
			LIMIT 1
		)
		RETURNING ` + jobColumns

	job, err := scanJob(r.db.Writer.QueryRowContext(ctx, query, formatTime(r.now()), formatTime(now)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}

	return job, nil
}

// Complete marks a job succeeded and stores its report.
func (r *JobRepo) Complete(ctx context.Context, id int64, report string) error {
	return r.finish(ctx, id, model.JobStatusSucceeded, report, "")
}

// Fail marks a job failed and stores the error message.
func (r *JobRepo) Fail(ctx context.Context, id int64, message string) error {
	return r.finish(ctx, id, model.JobStatusFailed, "", message)
}

func (r *JobRepo) finish(ctx context.Context, id int64, status model.JobStatus, report, message string) error {
	const query = `UPDATE jobs SET status = ?, report = ?, error = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, string(status), report, message, formatTime(r.now()), id)
	if err != nil {
		return fmt.Errorf("finish job %d: %w", id, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("job %d: %w", id, driven.ErrNotFound)
	}

	return nil
}

// Get retrieves a job by ID.
func (r *JobRepo) Get(ctx context.Context, id int64) (*model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE id = ?`

	job, err := scanJob(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %d: %w", id, driven.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}

	return job, nil
}

// GetByToken retrieves a job by its public token.
func (r *JobRepo) GetByToken(ctx context.Context, token string) (*model.Job, error) {
	if token == "" {
		return nil, fmt.Errorf("empty token: %w", driven.ErrNotFound)
	}

	query := `SELECT ` + jobColumns + ` FROM jobs WHERE token = ?`

	job, err := scanJob(r.db.Reader.QueryRowContext(ctx, query, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", token, driven.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", token, err)
	}

	return job, nil
}

// ListByIssue returns all jobs of a submission thread, oldest first.
func (r *JobRepo) ListByIssue(ctx context.Context, repo string, issue int) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE repo = ? AND issue = ? ORDER BY id`

	rows, err := r.db.Reader.QueryContext(ctx, query, repo, issue)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}

	return jobs, nil
}

// FailInterrupted marks every running job as failed. It is called once at
// startup, before any worker claims a job.
func (r *JobRepo) FailInterrupted(ctx context.Context, message string) (int64, error) {
	const query = `UPDATE jobs SET status = 'failed', error = ?, updated_at = ? WHERE status = 'running'`

	result, err := r.db.Writer.ExecContext(ctx, query, message, formatTime(r.now()))
	if err != nil {
		return 0, fmt.Errorf("fail interrupted jobs: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}

	return n, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*model.Job, error) {
	var job model.Job
	var kind, status string
	var dryRun int
	var runAt, createdAt, updatedAt string

	err := s.Scan(
		&job.ID, &job.Token, &kind, &job.Repo, &job.Issue, &job.Branch, &dryRun, &job.Target, &job.SourceURL,
		&status, &runAt, &job.Report, &job.Error, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Kind = model.JobKind(kind)
	job.Status = model.JobStatus(status)
	job.DryRun = dryRun != 0

	if job.RunAt, err = parseTime(runAt); err != nil {
		return nil, fmt.Errorf("parse run_at: %w", err)
	}
	if job.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if job.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}

	return &job, nil
}

// parseTime tries the stored layout first, then other SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		timeLayout,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
