package model

import "time"

// JobKind identifies the handler that executes a queued job.
type JobKind string

const (
	JobKindPDF        JobKind = "pdf"
	JobKindReferences JobKind = "references"
	JobKindRepository JobKind = "repository"
	JobKindDeposit    JobKind = "deposit"
	JobKindReminder   JobKind = "reminder"
	JobKindArchive    JobKind = "archive"
	JobKindBook       JobKind = "book"
	JobKindPreview    JobKind = "preview"
)

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Job is a unit of background work. Issue is zero for jobs not tied to a
// submission thread (previews).
type Job struct {
	ID        int64
	Token     string
	Kind      JobKind
	Repo      string
	Issue     int
	Branch    string
	DryRun    bool
	Target    string
	SourceURL string
	Status    JobStatus
	RunAt     time.Time
	Report    string
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LockKey is the serialization key for jobs touching the same submission.
// Jobs without an issue are keyed by their token.
func (j Job) LockKey() string {
	if j.Issue == 0 {
		return "token:" + j.Token
	}
	return IssueKey(j.Repo, j.Issue)
}

// IsFinished reports whether the job reached a terminal status.
func (j Job) IsFinished() bool {
	return j.Status == JobStatusSucceeded || j.Status == JobStatusFailed
}
