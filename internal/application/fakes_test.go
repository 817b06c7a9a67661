package application

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// --- fakeTracker ---

var errFakeTracker = errors.New("github 502")

type postedComment struct {
	Number int
	Body   string
}

type fakeTracker struct {
	mu            sync.Mutex
	issues        map[int]*model.Issue
	comments      []postedComment
	collaborators map[string]bool
	invitations   map[string]bool
	added         []string
	updateErr     error
	// labelErrs and closeErrs fail that many upcoming calls.
	labelErrs int
	closeErrs int
}

func newFakeTracker(issues ...model.Issue) *fakeTracker {
	t := &fakeTracker{
		issues:        map[int]*model.Issue{},
		collaborators: map[string]bool{},
		invitations:   map[string]bool{},
	}
	for i := range issues {
		issue := issues[i]
		if issue.State == "" {
			issue.State = "open"
		}
		t.issues[issue.Number] = &issue
	}
	return t
}

func (f *fakeTracker) GetIssue(_ context.Context, _ string, number int) (*model.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[number]
	if !ok {
		return nil, driven.ErrNotFound
	}
	cp := *issue
	cp.Labels = slices.Clone(issue.Labels)
	cp.Assignees = slices.Clone(issue.Assignees)
	return &cp, nil
}

func (f *fakeTracker) UpdateIssue(_ context.Context, _ string, number int, u model.IssueUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	issue, ok := f.issues[number]
	if !ok {
		return driven.ErrNotFound
	}
	if u.Title != nil {
		issue.Title = *u.Title
	}
	if u.Body != nil {
		issue.Body = *u.Body
	}
	if u.Assignees != nil {
		issue.Assignees = slices.Clone(*u.Assignees)
	}
	if u.State != nil {
		issue.State = *u.State
	}
	issue.UpdatedAt = time.Now()
	return nil
}

func (f *fakeTracker) CreateComment(_ context.Context, _ string, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, postedComment{Number: number, Body: body})
	return nil
}

func (f *fakeTracker) AddLabels(_ context.Context, _ string, number int, labels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.labelErrs > 0 {
		f.labelErrs--
		return errFakeTracker
	}
	issue, ok := f.issues[number]
	if !ok {
		return driven.ErrNotFound
	}
	for _, l := range labels {
		if !slices.Contains(issue.Labels, l) {
			issue.Labels = append(issue.Labels, l)
		}
	}
	return nil
}

func (f *fakeTracker) RemoveLabel(_ context.Context, _ string, number int, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	issue, ok := f.issues[number]
	if !ok {
		return driven.ErrNotFound
	}
	issue.Labels = slices.DeleteFunc(issue.Labels, func(l string) bool { return l == label })
	return nil
}

func (f *fakeTracker) CloseIssue(_ context.Context, _ string, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closeErrs > 0 {
		f.closeErrs--
		return errFakeTracker
	}
	issue, ok := f.issues[number]
	if !ok {
		return driven.ErrNotFound
	}
	issue.State = "closed"
	return nil
}

func (f *fakeTracker) IsCollaborator(_ context.Context, _, handle string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.collaborators[handle], nil
}

func (f *fakeTracker) HasPendingInvitation(_ context.Context, _, handle string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.invitations[handle], nil
}

func (f *fakeTracker) AddCollaborator(_ context.Context, _, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, handle)
	f.invitations[handle] = true
	return nil
}

func (f *fakeTracker) issue(number int) model.Issue {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.issues[number]
}

func (f *fakeTracker) lastComment() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.comments) == 0 {
		return ""
	}
	return f.comments[len(f.comments)-1].Body
}

func (f *fakeTracker) commentBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.comments))
	for _, c := range f.comments {
		out = append(out, c.Body)
	}
	return out
}

// --- fakeQueue ---

type fakeQueue struct {
	mu     sync.Mutex
	jobs   []model.Job
	nextID int64
}

func (q *fakeQueue) Enqueue(_ context.Context, job model.Job) (model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	job.ID = q.nextID
	job.Status = model.JobStatusQueued
	if job.RunAt.IsZero() {
		job.RunAt = time.Now()
	}
	q.jobs = append(q.jobs, job)
	return job, nil
}

func (q *fakeQueue) ClaimNext(_ context.Context, now time.Time) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.jobs {
		if q.jobs[i].Status == model.JobStatusQueued && !q.jobs[i].RunAt.After(now) {
			q.jobs[i].Status = model.JobStatusRunning
			j := q.jobs[i]
			return &j, nil
		}
	}
	return nil, nil
}

func (q *fakeQueue) finish(id int64, status model.JobStatus, report, msg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.jobs {
		if q.jobs[i].ID == id {
			q.jobs[i].Status = status
			q.jobs[i].Report = report
			q.jobs[i].Error = msg
			return nil
		}
	}
	return driven.ErrNotFound
}

func (q *fakeQueue) Complete(_ context.Context, id int64, report string) error {
	return q.finish(id, model.JobStatusSucceeded, report, "")
}

func (q *fakeQueue) Fail(_ context.Context, id int64, msg string) error {
	return q.finish(id, model.JobStatusFailed, "", msg)
}

func (q *fakeQueue) Get(_ context.Context, id int64) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.ID == id {
			return &j, nil
		}
	}
	return nil, driven.ErrNotFound
}

func (q *fakeQueue) GetByToken(_ context.Context, token string) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.Token == token {
			return &j, nil
		}
	}
	return nil, driven.ErrNotFound
}

func (q *fakeQueue) ListByIssue(_ context.Context, repo string, issue int) ([]model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []model.Job
	for _, j := range q.jobs {
		if j.Repo == repo && j.Issue == issue {
			out = append(out, j)
		}
	}
	return out, nil
}

func (q *fakeQueue) FailInterrupted(_ context.Context, msg string) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for i := range q.jobs {
		if q.jobs[i].Status == model.JobStatusRunning {
			q.jobs[i].Status = model.JobStatusFailed
			q.jobs[i].Error = msg
			n++
		}
	}
	return n, nil
}

func (q *fakeQueue) kinds() []model.JobKind {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := []model.JobKind{}
	for _, j := range q.jobs {
		out = append(out, j.Kind)
	}
	return out
}

func (q *fakeQueue) snapshot() []model.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.jobs)
}

// --- fakeVenueAPI ---

type fakeVenueAPI struct {
	mu            sync.Mutex
	calls         []string
	reviewIssueID int
	err           error
	deposits      []string
	announcements []string
}

func (f *fakeVenueAPI) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.err
}

func (f *fakeVenueAPI) StartReview(_ context.Context, _ model.Venue, _ int, editor string, reviewers []string) (int, error) {
	if err := f.record("start_review " + editor + " " + strings.Join(reviewers, ",")); err != nil {
		return 0, err
	}
	return f.reviewIssueID, nil
}

func (f *fakeVenueAPI) AssignEditor(_ context.Context, _ model.Venue, _ int, editor string) error {
	return f.record("assign_editor " + editor)
}

func (f *fakeVenueAPI) InviteEditor(_ context.Context, _ model.Venue, _ int, editor string) error {
	return f.record("invite_editor " + editor)
}

func (f *fakeVenueAPI) Reject(_ context.Context, _ model.Venue, _ int) error {
	return f.record("reject")
}

func (f *fakeVenueAPI) Withdraw(_ context.Context, _ model.Venue, _ int) error {
	return f.record("withdraw")
}

func (f *fakeVenueAPI) Deposit(_ context.Context, _ model.Venue, _ int, doi, archiveDOI string, _ []byte) error {
	f.mu.Lock()
	f.deposits = append(f.deposits, doi+" "+archiveDOI)
	f.mu.Unlock()
	return f.record("deposit")
}

func (f *fakeVenueAPI) Announce(_ context.Context, _ model.Venue, text string) error {
	f.mu.Lock()
	f.announcements = append(f.announcements, text)
	f.mu.Unlock()
	return nil
}

func (f *fakeVenueAPI) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// --- fakePapers ---

type fakePapers struct {
	mu             sync.Mutex
	branches       map[string]string
	files          map[string]map[string]model.RepoFile
	prs            map[string]*model.PullRequest
	nextPR         int
	nextSHA        int
	mergeFailures  int
	raceOnCreate   bool
	merged         []int
	deletedFiles   []string
	createdBranches []string
}

func newFakePapers() *fakePapers {
	return &fakePapers{
		branches: map[string]string{"main": "sha-main"},
		files:    map[string]map[string]model.RepoFile{"main": {}},
		prs:      map[string]*model.PullRequest{},
	}
}

func (f *fakePapers) sha() string {
	f.nextSHA++
	return "blob-" + strings.Repeat("x", f.nextSHA)
}

func (f *fakePapers) DefaultBranch(_ context.Context, _ string) (string, error) {
	return "main", nil
}

func (f *fakePapers) BranchSHA(_ context.Context, _, branch string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sha, ok := f.branches[branch]
	if !ok {
		return "", driven.ErrNotFound
	}
	return sha, nil
}

func (f *fakePapers) CreateBranch(_ context.Context, _, branch, sha string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.raceOnCreate {
		f.raceOnCreate = false
		f.branches[branch] = sha
		f.files[branch] = map[string]model.RepoFile{}
		return driven.ErrAlreadyExists
	}
	if _, ok := f.branches[branch]; ok {
		return driven.ErrAlreadyExists
	}
	f.branches[branch] = sha
	f.files[branch] = map[string]model.RepoFile{}
	for p, file := range f.files["main"] {
		f.files[branch][p] = file
	}
	f.createdBranches = append(f.createdBranches, branch)
	return nil
}

func (f *fakePapers) DeleteBranch(_ context.Context, _, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.branches[branch]; !ok {
		return driven.ErrNotFound
	}
	delete(f.branches, branch)
	delete(f.files, branch)
	return nil
}

func (f *fakePapers) ListFiles(_ context.Context, _, branch, dir string) ([]model.RepoFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.RepoFile
	for p, file := range f.files[branch] {
		if strings.HasPrefix(p, dir+"/") {
			out = append(out, file)
		}
	}
	if len(out) == 0 {
		return nil, driven.ErrNotFound
	}
	return out, nil
}

func (f *fakePapers) DeleteFile(_ context.Context, _, branch, path, sha, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	file, ok := f.files[branch][path]
	if !ok {
		return driven.ErrNotFound
	}
	if file.SHA != sha {
		return driven.ErrNotMergeable
	}
	delete(f.files[branch], path)
	f.deletedFiles = append(f.deletedFiles, path)
	return nil
}

func (f *fakePapers) CreateFile(_ context.Context, _, branch, path string, _ []byte, _ string) (model.RepoFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.branches[branch]; !ok {
		return model.RepoFile{}, driven.ErrNotFound
	}
	file := model.RepoFile{
		Path:        path,
		SHA:         f.sha(),
		HTMLURL:     "https://github.com/org/papers/blob/" + branch + "/" + path,
		DownloadURL: "https://raw.githubusercontent.com/org/papers/" + branch + "/" + path,
	}
	f.files[branch][path] = file
	return file, nil
}

func (f *fakePapers) OpenPullRequest(_ context.Context, _, head, base, _, _ string) (*model.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.prs[head]; ok {
		return nil, driven.ErrAlreadyExists
	}
	f.nextPR++
	pr := &model.PullRequest{Number: f.nextPR, Head: head, Base: base, HTMLURL: "https://github.com/org/papers/pull/" + strings.Repeat("1", f.nextPR)}
	f.prs[head] = pr
	return pr, nil
}

func (f *fakePapers) FindPullRequest(_ context.Context, _, head string) (*model.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pr, ok := f.prs[head]
	if !ok {
		return nil, driven.ErrNotFound
	}
	return pr, nil
}

func (f *fakePapers) MergePullRequest(_ context.Context, _ string, number int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.mergeFailures > 0 {
		f.mergeFailures--
		return driven.ErrNotMergeable
	}
	for head, pr := range f.prs {
		if pr.Number == number {
			for p, file := range f.files[head] {
				f.files["main"][p] = file
			}
			delete(f.prs, head)
		}
	}
	f.merged = append(f.merged, number)
	return nil
}

func (f *fakePapers) filesUnder(branch, dir string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for p := range f.files[branch] {
		if strings.HasPrefix(p, dir+"/") {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out
}

var fastRetry = RetryPolicy{
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
	MaxElapsed:      time.Second,
}
