package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"

	"github.com/cenkalti/backoff/v4"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// JobDeps collects the collaborators of the job handlers.
type JobDeps struct {
	Bot        string
	Venues     VenueLookup
	Tracker    driven.IssueTracker
	Workspace  driven.Workspace
	Typesetter driven.Typesetter
	Inspector  driven.PaperInspector
	Analyzer   driven.SourceAnalyzer
	Validator  *ReferenceValidator
	Publisher  *ArtifactPublisher
	VenueAPI   driven.VenueAPI
	Builds     driven.BuildService
	Archives   driven.ArchiveService
	Store      driven.ArtifactStore
	Locks      *IssueLocks
	Policy     RetryPolicy
	WorkRoot   string
	Logger     *slog.Logger
}

// Jobs implements the handler for every job kind.
type Jobs struct {
	JobDeps
}

// NewJobs creates the job handlers.
func NewJobs(deps JobDeps) *Jobs {
	return &Jobs{JobDeps: deps}
}

// Handlers returns the handler table for the Orchestrator.
func (j *Jobs) Handlers() map[model.JobKind]JobHandler {
	return map[model.JobKind]JobHandler{
		model.JobKindPDF:        JobHandlerFunc(j.runPDF),
		model.JobKindReferences: JobHandlerFunc(j.runReferences),
		model.JobKindRepository: JobHandlerFunc(j.runRepository),
		model.JobKindDeposit:    JobHandlerFunc(j.runDeposit),
		model.JobKindReminder:   JobHandlerFunc(j.runReminder),
		model.JobKindArchive:    JobHandlerFunc(j.runArchive),
		model.JobKindBook:       JobHandlerFunc(j.runBook),
		model.JobKindPreview:    JobHandlerFunc(j.runPreview),
	}
}

// submission loads the issue and venue a job refers to.
func (j *Jobs) submission(ctx context.Context, job model.Job) (*model.Issue, model.Venue, error) {
	venue, ok := j.Venues.Lookup(job.Repo)
	if !ok {
		return nil, model.Venue{}, fmt.Errorf("%s: %w", job.Repo, ErrUnknownVenue)
	}
	issue, err := j.Tracker.GetIssue(ctx, job.Repo, job.Issue)
	if err != nil {
		return nil, model.Venue{}, fmt.Errorf("reading %s: %w", model.IssueKey(job.Repo, job.Issue), err)
	}
	return issue, venue, nil
}

// sourceOf returns the repository URL and branch a job should clone.
// A branch given with the command wins over the one in the issue body.
func sourceOf(job model.Job, issue *model.Issue) (string, string) {
	if issue == nil {
		return job.SourceURL, job.Branch
	}
	body := model.ParseIssueBody(issue.Body)
	branch := job.Branch
	if branch == "" {
		if b := body.Get(model.FieldBranch); b.Assigned() {
			branch = b.Value
		}
	}
	return body.Get(model.FieldRepository).Value, branch
}

var unsafePathChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// workdir is the working copy directory of a job. Jobs sharing a lock key
// share the directory, which is safe because they never run concurrently.
func (j *Jobs) workdir(job model.Job) string {
	return filepath.Join(j.WorkRoot, unsafePathChars.ReplaceAllString(job.LockKey(), "_"))
}

// checkout clears the job's working copy and clones the submission into it.
// The cleanup function removes the directory again.
func (j *Jobs) checkout(ctx context.Context, job model.Job, issue *model.Issue) (string, func(), error) {
	repoURL, branch := sourceOf(job, issue)
	if repoURL == "" {
		return "", func() {}, failf(nil, "I can't find the repository URL for issue #%d.", job.Issue)
	}

	dir := j.workdir(job)
	cleanup := func() {
		if err := os.RemoveAll(dir); err != nil {
			j.Logger.Warn("removing working copy", "dir", dir, "error", err)
		}
	}

	err := backoff.Retry(func() error {
		if err := os.RemoveAll(dir); err != nil {
			return backoff.Permanent(err)
		}
		if err := j.Workspace.Clone(ctx, repoURL, branch, dir); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			j.Logger.Debug("clone attempt failed", "repo_url", repoURL, "error", err)
			return err
		}
		return nil
	}, j.Policy.backOff(ctx))
	if err != nil {
		cleanup()
		return "", func() {}, failf(err, "Downloading of the repository for issue #%d failed with the following error: \n\n %s", job.Issue, err)
	}
	return dir, cleanup, nil
}

const msgNoPaper = "Can't find any papers to compile. Make sure there's a file named `paper.md` in your repository."

func (j *Jobs) locatePaper(ctx context.Context, dir string) (*model.Paper, error) {
	paper, err := j.Inspector.Locate(ctx, dir)
	if errors.Is(err, driven.ErrNotFound) {
		return nil, failf(err, msgNoPaper)
	}
	if err != nil {
		return nil, fmt.Errorf("locating paper: %w", err)
	}
	return paper, nil
}
