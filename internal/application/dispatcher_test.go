package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
)

const reviewsRepo = "openjournals/joss-reviews"

type staticVenues map[string]model.Venue

func (s staticVenues) Lookup(repo string) (model.Venue, bool) {
	v, ok := s[repo]
	return v, ok
}

func testVenue() model.Venue {
	return model.Venue{
		Repo:         reviewsRepo,
		Name:         "JOSS",
		SiteHost:     "https://joss.theoj.org",
		Editors:      []string{"editor1", "eic"},
		EICs:         []string{"eic"},
		EICTeamName:  "openjournals/joss-eics",
		DOIPrefix:    "10.21105",
		JournalAlias: "joss",
		PapersRepo:   "openjournals/joss-papers",
		ReviewersURL: "https://bit.ly/joss-reviewers",
	}
}

func submissionBody(editor, reviewers, archive string) string {
	return "**Submitting author:** @jdoe (Jane Doe)\n" +
		"**Repository:** https://github.com/jdoe/fancy\n" +
		"**Version:** v1.0.0\n" +
		"**Editor:** " + editor + "\n" +
		"**Reviewers:** " + reviewers + "\n" +
		"**Archive:** " + archive + "\n"
}

type dispatcherFixture struct {
	d       *Dispatcher
	tracker *fakeTracker
	queue   *fakeQueue
	api     *fakeVenueAPI
}

func newDispatcherFixture(issues ...model.Issue) *dispatcherFixture {
	tracker := newFakeTracker(issues...)
	queue := &fakeQueue{}
	api := &fakeVenueAPI{reviewIssueID: 77}
	d := NewDispatcher("whedon", staticVenues{reviewsRepo: testVenue()}, tracker, queue, api, NewIssueLocks(), fastRetry, discardLogger())
	return &dispatcherFixture{d: d, tracker: tracker, queue: queue, api: api}
}

func preReviewIssue(number int, body string) model.Issue {
	return model.Issue{Repo: reviewsRepo, Number: number, Title: "[PRE REVIEW]: Fancy", Body: body}
}

func reviewIssue(number int, body string) model.Issue {
	return model.Issue{Repo: reviewsRepo, Number: number, Title: "[REVIEW]: Fancy", Body: body}
}

func comment(number int, sender, text string) model.Event {
	return model.Event{
		Kind:        "issue_comment",
		Action:      "created",
		Sender:      sender,
		Repo:        reviewsRepo,
		Issue:       model.Issue{Repo: reviewsRepo, Number: number},
		CommentBody: text,
	}
}

func (f *dispatcherFixture) say(t *testing.T, number int, sender, text string) error {
	t.Helper()
	return f.d.Handle(context.Background(), comment(number, sender, text))
}

func TestHandle_InvalidAndUnknown(t *testing.T) {
	f := newDispatcherFixture()

	err := f.d.Handle(context.Background(), model.Event{Kind: "issue_comment", Action: "created", Repo: reviewsRepo})
	assert.ErrorIs(t, err, ErrInvalidEvent)

	ev := comment(1, "editor1", "@whedon commands")
	ev.Repo = "someone/else"
	assert.ErrorIs(t, f.d.Handle(context.Background(), ev), ErrUnknownVenue)
	assert.Empty(t, f.tracker.commentBodies())
}

func TestHandle_IgnoresCommentsWithoutMention(t *testing.T) {
	f := newDispatcherFixture(preReviewIssue(1, submissionBody("Pending", "Pending", "Pending")))

	require.NoError(t, f.say(t, 1, "editor1", "thanks, looks great"))
	require.NoError(t, f.say(t, 1, "editor1", "cc @whedon commands"))
	assert.Empty(t, f.tracker.commentBodies())
}

func TestHandle_UnknownCommand(t *testing.T) {
	f := newDispatcherFixture(preReviewIssue(1, submissionBody("Pending", "Pending", "Pending")))

	require.NoError(t, f.say(t, 1, "jdoe", "@whedon make me a sandwich"))
	assert.Contains(t, f.tracker.lastComment(), "I don't understand that")
}

func TestHandle_IgnoresOwnUnknownCommand(t *testing.T) {
	f := newDispatcherFixture(preReviewIssue(1, submissionBody("Pending", "Pending", "Pending")))

	require.NoError(t, f.say(t, 1, "whedon", "@whedon is looking into it"))
	assert.Empty(t, f.tracker.commentBodies())
}

func TestHandle_NonEditorIsDenied(t *testing.T) {
	body := submissionBody("@editor1", "Pending", "Pending")
	f := newDispatcherFixture(preReviewIssue(1, body))

	err := f.say(t, 1, "mallory", "@whedon add @alice as reviewer")
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Equal(t, "I'm sorry @mallory, I'm afraid I can't do that. That's something only editors are allowed to do.", f.tracker.lastComment())
	assert.Equal(t, body, f.tracker.issue(1).Body)
	assert.Empty(t, f.queue.snapshot())
}

func TestHandle_EditorIsNotEIC(t *testing.T) {
	f := newDispatcherFixture(reviewIssue(1, submissionBody("@editor1", "@alice", "10.5281/zenodo.1")))

	err := f.say(t, 1, "editor1", "@whedon reject")
	assert.ErrorIs(t, err, ErrForbidden)
	assert.Contains(t, f.tracker.lastComment(), "only editor-in-chiefs are allowed")
	assert.Empty(t, f.api.callList())
}

func TestHandle_ListCommandsDependsOnRole(t *testing.T) {
	f := newDispatcherFixture(preReviewIssue(1, submissionBody("Pending", "Pending", "Pending")))

	require.NoError(t, f.say(t, 1, "jdoe", "@whedon commands"))
	public := f.tracker.lastComment()
	assert.Contains(t, public, "@whedon generate pdf")
	assert.NotContains(t, public, "start review")

	require.NoError(t, f.say(t, 1, "editor1", "@whedon commands"))
	assert.Contains(t, f.tracker.lastComment(), "@whedon start review")
}

func TestAddReviewer_RequiresEditor(t *testing.T) {
	f := newDispatcherFixture(preReviewIssue(1, submissionBody("Pending", "Pending", "Pending")))

	err := f.say(t, 1, "editor1", "@whedon add @alice as reviewer")
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Equal(t, msgNeedEditorFirst, f.tracker.lastComment())
}

func TestAddRemoveReviewer(t *testing.T) {
	f := newDispatcherFixture(preReviewIssue(1, submissionBody("@editor1", "Pending", "Pending")))

	require.NoError(t, f.say(t, 1, "editor1", "@whedon add @alice as reviewer"))
	assert.Equal(t, "OK, @alice is now a reviewer", f.tracker.lastComment())
	assert.Equal(t, "@alice", model.ReadField(f.tracker.issue(1).Body, model.FieldReviewers).Value)
	assert.Equal(t, []string{"editor1", "alice"}, f.tracker.issue(1).Assignees)

	// Adding an existing reviewer again, in any case, leaves one entry.
	require.NoError(t, f.say(t, 1, "editor1", "@whedon add @Alice as reviewer"))
	require.NoError(t, f.say(t, 1, "editor1", "@whedon add @bob as reviewer"))
	assert.Equal(t, "@alice, @bob", model.ReadField(f.tracker.issue(1).Body, model.FieldReviewers).Value)

	require.NoError(t, f.say(t, 1, "editor1", "@whedon remove @ALICE as reviewer"))
	assert.Equal(t, "OK, @ALICE is no longer a reviewer", f.tracker.lastComment())
	assert.Equal(t, "@bob", model.ReadField(f.tracker.issue(1).Body, model.FieldReviewers).Value)
	assert.Equal(t, []string{"editor1", "bob"}, f.tracker.issue(1).Assignees)

	require.NoError(t, f.say(t, 1, "editor1", "@whedon remove @bob as reviewer"))
	assert.True(t, model.ReadField(f.tracker.issue(1).Body, model.FieldReviewers).Pending)

	assert.Contains(t, f.tracker.added, "alice")
	assert.Contains(t, f.tracker.added, "bob")
}

func TestAssignReviewer_ReplacesList(t *testing.T) {
	f := newDispatcherFixture(preReviewIssue(1, submissionBody("@editor1", "@alice, @bob", "Pending")))

	require.NoError(t, f.say(t, 1, "editor1", "@whedon assign @carol as reviewer"))
	assert.Equal(t, "@carol", model.ReadField(f.tracker.issue(1).Body, model.FieldReviewers).Value)
}

func TestAddReviewer_MissingField(t *testing.T) {
	body := "**Editor:** @editor1\n**Repository:** https://github.com/jdoe/fancy\n"
	f := newDispatcherFixture(preReviewIssue(1, body))

	err := f.say(t, 1, "editor1", "@whedon add @alice as reviewer")
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Contains(t, f.tracker.lastComment(), "`**Reviewers:**`")
	assert.Equal(t, body, f.tracker.issue(1).Body)
}

func TestAssignEditor_Me(t *testing.T) {
	f := newDispatcherFixture(preReviewIssue(1, submissionBody("Pending", "@alice", "Pending")))

	require.NoError(t, f.say(t, 1, "editor1", "@whedon assign me as editor"))
	assert.Equal(t, "OK, the editor is @editor1", f.tracker.lastComment())
	assert.Equal(t, "@editor1", model.ReadField(f.tracker.issue(1).Body, model.FieldEditor).Value)
	assert.Equal(t, []string{"editor1", "alice"}, f.tracker.issue(1).Assignees)
	assert.Equal(t, []string{"assign_editor editor1"}, f.api.callList())
}

func TestStartReview_AlreadyStarted(t *testing.T) {
	f := newDispatcherFixture(reviewIssue(1, submissionBody("@editor1", "@alice", "Pending")))

	err := f.say(t, 1, "editor1", "@whedon start review")
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Equal(t, msgReviewAlreadyStarted, f.tracker.lastComment())
	assert.Empty(t, f.api.callList())
}

func TestStartReview_Preconditions(t *testing.T) {
	tests := []struct {
		name   string
		editor string
		revs   string
		want   string
	}{
		{"no reviewers", "@editor1", "Pending", msgNoReviewers},
		{"no editor", "Pending", "@alice", msgNoEditor},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newDispatcherFixture(preReviewIssue(1, submissionBody(tt.editor, tt.revs, "Pending")))

			err := f.say(t, 1, "editor1", "@whedon start review")
			assert.ErrorIs(t, err, ErrPrecondition)
			assert.Equal(t, tt.want, f.tracker.lastComment())
			assert.Empty(t, f.api.callList())
		})
	}
}

func TestStartReview(t *testing.T) {
	f := newDispatcherFixture(preReviewIssue(1, submissionBody("@editor1", "@alice, @bob", "Pending")))

	require.NoError(t, f.say(t, 1, "editor1", "@whedon start review"))
	assert.Equal(t, []string{"start_review editor1 alice,bob"}, f.api.callList())
	assert.Contains(t, f.tracker.lastComment(), "https://github.com/openjournals/joss-reviews/issues/77")
	assert.True(t, f.tracker.issue(1).IsClosed())
}

func TestAccept_WithoutArchive(t *testing.T) {
	f := newDispatcherFixture(reviewIssue(1, submissionBody("@editor1", "@alice", "Pending")))

	err := f.say(t, 1, "editor1", "@whedon accept")
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Equal(t, msgNoArchive, f.tracker.lastComment())
	assert.Empty(t, f.queue.snapshot())
	assert.Empty(t, f.tracker.issue(1).Labels)
}

func TestAccept_NotReviewed(t *testing.T) {
	f := newDispatcherFixture(preReviewIssue(1, submissionBody("@editor1", "@alice", "10.5281/zenodo.1")))

	err := f.say(t, 1, "editor1", "@whedon accept")
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Equal(t, msgNotReviewed, f.tracker.lastComment())
}

func TestAccept_DryRun(t *testing.T) {
	f := newDispatcherFixture(reviewIssue(1, submissionBody("@editor1", "@alice", "10.5281/zenodo.1")))

	require.NoError(t, f.say(t, 1, "editor1", "@whedon accept"))
	assert.Equal(t, []string{model.LabelRecommendAccept}, f.tracker.issue(1).Labels)
	assert.Equal(t, msgDryRun, f.tracker.lastComment())

	jobs := f.queue.snapshot()
	require.Len(t, jobs, 2)
	assert.Equal(t, model.JobKindReferences, jobs[0].Kind)
	assert.Equal(t, model.JobKindDeposit, jobs[1].Kind)
	assert.True(t, jobs[1].DryRun)
}

func TestAccept_Live(t *testing.T) {
	f := newDispatcherFixture(reviewIssue(1, submissionBody("@editor1", "@alice", "10.5281/zenodo.1")))

	require.NoError(t, f.say(t, 1, "eic", "@whedon accept deposit=true from branch paper"))
	assert.ElementsMatch(t, []string{model.LabelAccepted, model.LabelPublished}, f.tracker.issue(1).Labels)

	jobs := f.queue.snapshot()
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobKindDeposit, jobs[0].Kind)
	assert.False(t, jobs[0].DryRun)
	assert.Equal(t, "paper", jobs[0].Branch)
}

func TestReject_Idempotent(t *testing.T) {
	f := newDispatcherFixture(reviewIssue(1, submissionBody("@editor1", "@alice", "Pending")))

	require.NoError(t, f.say(t, 1, "eic", "@whedon reject"))
	assert.Equal(t, []string{"reject"}, f.api.callList())
	assert.Equal(t, msgPaperRejected, f.tracker.lastComment())
	assert.True(t, f.tracker.issue(1).IsClosed())
	assert.Equal(t, model.StageRejected, f.tracker.issue(1).Stage())

	require.NoError(t, f.say(t, 1, "eic", "@whedon reject"))
	assert.Equal(t, []string{"reject"}, f.api.callList())
	assert.Equal(t, "This submission has already been rejected.", f.tracker.lastComment())
}

func TestReject_FinishesInterruptedTransition(t *testing.T) {
	issue := reviewIssue(1, submissionBody("@editor1", "@alice", "Pending"))
	issue.Labels = []string{model.LabelRejected}
	f := newDispatcherFixture(issue)

	require.NoError(t, f.say(t, 1, "eic", "@whedon reject"))
	assert.Empty(t, f.api.callList())
	assert.True(t, f.tracker.issue(1).IsClosed())
}

func TestReject_VenueFailure(t *testing.T) {
	f := newDispatcherFixture(reviewIssue(1, submissionBody("@editor1", "@alice", "Pending")))
	f.api.err = assert.AnError

	require.NoError(t, f.say(t, 1, "eic", "@whedon reject"))
	assert.Equal(t, msgRejectFailed, f.tracker.lastComment())
	assert.Empty(t, f.tracker.issue(1).Labels)
	assert.False(t, f.tracker.issue(1).IsClosed())
}

func TestReject_RetriesAfterLabelFailure(t *testing.T) {
	f := newDispatcherFixture(reviewIssue(1, submissionBody("@editor1", "@alice", "Pending")))
	f.tracker.labelErrs = 1

	require.Error(t, f.say(t, 1, "eic", "@whedon reject"))
	assert.Empty(t, f.api.callList(), "venue is not called before the issue is marked")

	require.NoError(t, f.say(t, 1, "eic", "@whedon reject"))
	assert.Equal(t, []string{"reject"}, f.api.callList())
	assert.Equal(t, model.StageRejected, f.tracker.issue(1).Stage())
	assert.True(t, f.tracker.issue(1).IsClosed())
}

func TestReject_RetryAfterCloseFailureSkipsVenue(t *testing.T) {
	f := newDispatcherFixture(reviewIssue(1, submissionBody("@editor1", "@alice", "Pending")))
	f.tracker.closeErrs = 1

	require.Error(t, f.say(t, 1, "eic", "@whedon reject"))
	assert.Equal(t, []string{"reject"}, f.api.callList())
	assert.False(t, f.tracker.issue(1).IsClosed())

	require.NoError(t, f.say(t, 1, "eic", "@whedon reject"))
	assert.Equal(t, []string{"reject"}, f.api.callList())
	assert.Equal(t, msgPaperRejected, f.tracker.lastComment())
	assert.True(t, f.tracker.issue(1).IsClosed())
}

func TestWithdrawAfterReject(t *testing.T) {
	issue := reviewIssue(1, submissionBody("@editor1", "@alice", "Pending"))
	issue.Labels = []string{model.LabelRejected}
	issue.State = "closed"
	f := newDispatcherFixture(issue)

	err := f.say(t, 1, "eic", "@whedon withdraw")
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Empty(t, f.api.callList())
}

func TestTerminalSubmissionRefusesMutations(t *testing.T) {
	body := submissionBody("@editor1", "@alice", "Pending")
	issue := reviewIssue(1, body)
	issue.Labels = []string{model.LabelWithdrawn}
	f := newDispatcherFixture(issue)

	err := f.say(t, 1, "editor1", "@whedon add @bob as reviewer")
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Equal(t, alreadyTerminal(model.StageWithdrawn), f.tracker.lastComment())
	assert.Equal(t, body, f.tracker.issue(1).Body)
}

func TestSetArchiveAndVersion(t *testing.T) {
	f := newDispatcherFixture(reviewIssue(1, submissionBody("@editor1", "@alice", "Pending")))

	require.NoError(t, f.say(t, 1, "editor1", "@whedon set https://doi.org/10.5281/zenodo.12345. as archive"))
	assert.Equal(t, "10.5281/zenodo.12345", model.ReadField(f.tracker.issue(1).Body, model.FieldArchive).Value)
	assert.Contains(t, f.tracker.lastComment(), `<a href="https://doi.org/10.5281/zenodo.12345"`)

	require.NoError(t, f.say(t, 1, "editor1", "@whedon set not-a-doi as archive"))
	assert.Equal(t, "not-a-doi doesn't look like an archive DOI.", f.tracker.lastComment())

	require.NoError(t, f.say(t, 1, "editor1", "@whedon set v2.0.1 as version"))
	assert.Equal(t, "OK. v2.0.1 is the version.", f.tracker.lastComment())
	assert.Equal(t, "v2.0.1", model.ReadField(f.tracker.issue(1).Body, model.FieldVersion).Value)
}

func TestReinviteReviewer(t *testing.T) {
	f := newDispatcherFixture(reviewIssue(1, submissionBody("@editor1", "@alice", "Pending")))

	require.NoError(t, f.say(t, 1, "editor1", "@whedon re-invite @Alice as reviewer"))
	assert.Contains(t, f.tracker.lastComment(), "has been re-invited")
	assert.Equal(t, []string{"alice"}, f.tracker.added)

	require.NoError(t, f.say(t, 1, "editor1", "@whedon re-invite @alice as reviewer"))
	assert.Contains(t, f.tracker.lastComment(), "already has a pending invite")

	f.tracker.collaborators["carol"] = true
	require.NoError(t, f.say(t, 1, "editor1", "@whedon re-invite @carol as reviewer"))
	assert.Equal(t, "@carol already has access.", f.tracker.lastComment())
}

func TestRemind(t *testing.T) {
	f := newDispatcherFixture(reviewIssue(1, submissionBody("@editor1", "@alice", "Pending")))
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	f.d.now = func() time.Time { return now }

	require.NoError(t, f.say(t, 1, "editor1", "@whedon remind @alice in 2 weeks"))
	assert.Equal(t, "Reminder set for @alice in 2 weeks", f.tracker.lastComment())

	jobs := f.queue.snapshot()
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobKindReminder, jobs[0].Kind)
	assert.Equal(t, "@alice", jobs[0].Target)
	assert.True(t, jobs[0].RunAt.After(now.Add(13*24*time.Hour)))
}

func TestRemind_Refusals(t *testing.T) {
	f := newDispatcherFixture(
		reviewIssue(1, submissionBody("@editor1", "@alice", "Pending")),
		preReviewIssue(2, submissionBody("@editor1", "@alice", "Pending")),
	)

	err := f.say(t, 1, "editor1", "@whedon remind @zed in 2 weeks")
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Equal(t, "@zed doesn't seem to be a reviewer or author for this submission.", f.tracker.lastComment())

	err = f.say(t, 2, "editor1", "@whedon remind @alice in 2 weeks")
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Equal(t, msgPreReviewReminder, f.tracker.lastComment())

	require.NoError(t, f.say(t, 1, "editor1", "@whedon remind @alice in two fortnights"))
	assert.Contains(t, f.tracker.lastComment(), "I don't recognize this description of time")
	assert.Empty(t, f.queue.snapshot())
}

func TestGeneratePDF_FromBranch(t *testing.T) {
	f := newDispatcherFixture(preReviewIssue(1, submissionBody("Pending", "Pending", "Pending")))

	require.NoError(t, f.say(t, 1, "jdoe", "@whedon generate pdf from branch joss-paper"))
	assert.Contains(t, f.tracker.lastComment(), "from custom branch joss-paper")

	jobs := f.queue.snapshot()
	require.Len(t, jobs, 1)
	assert.Equal(t, model.JobKindPDF, jobs[0].Kind)
	assert.Equal(t, "joss-paper", jobs[0].Branch)
}

func TestQueryScope(t *testing.T) {
	f := newDispatcherFixture(preReviewIssue(1, submissionBody("Pending", "Pending", "Pending")))

	require.NoError(t, f.say(t, 1, "editor1", "@whedon query scope"))
	assert.Equal(t, []string{model.LabelQueryScope}, f.tracker.issue(1).Labels)
	assert.Equal(t, msgQueryScope, f.tracker.lastComment())
}

func TestHandleOpened_PreReview(t *testing.T) {
	issue := preReviewIssue(5, submissionBody("Pending", "Pending", "Pending"))
	issue.Assignees = []string{"editor1"}
	f := newDispatcherFixture(issue)

	err := f.d.Handle(context.Background(), model.Event{Kind: "issues", Action: "opened", Repo: reviewsRepo, Issue: issue})
	require.NoError(t, err)

	assert.Contains(t, f.tracker.lastComment(), "@editor1, this submission is assigned to you.")
	assert.Equal(t, []model.JobKind{model.JobKindRepository, model.JobKindReferences, model.JobKindPDF}, f.queue.kinds())
}

func TestHandleOpened_ReviewSchedulesReminders(t *testing.T) {
	issue := reviewIssue(6, submissionBody("@editor1", "@alice, @bob", "Pending"))
	f := newDispatcherFixture(issue)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	f.d.now = func() time.Time { return now }

	err := f.d.Handle(context.Background(), model.Event{Kind: "issues", Action: "opened", Repo: reviewsRepo, Issue: issue})
	require.NoError(t, err)

	assert.Contains(t, f.tracker.commentBodies()[0], "Hello @alice, @bob")

	var reminders []model.Job
	for _, j := range f.queue.snapshot() {
		if j.Kind == model.JobKindReminder {
			reminders = append(reminders, j)
		}
	}
	require.Len(t, reminders, 2)
	assert.Equal(t, "@alice", reminders[0].Target)
	assert.Equal(t, now.Add(reminderDelay), reminders[0].RunAt)
}

func TestHandleClosed_Goodbye(t *testing.T) {
	issue := reviewIssue(7, submissionBody("@editor1", "@alice", "Pending"))
	issue.Labels = []string{model.LabelAccepted}
	f := newDispatcherFixture(issue)

	err := f.d.Handle(context.Background(), model.Event{Kind: "issues", Action: "closed", Repo: reviewsRepo, Issue: issue})
	require.NoError(t, err)
	assert.Contains(t, f.tracker.lastComment(), "10.21105/joss.00007")

	plain := reviewIssue(8, "")
	require.NoError(t, f.d.Handle(context.Background(), model.Event{Kind: "issues", Action: "closed", Repo: reviewsRepo, Issue: plain}))
	assert.Len(t, f.tracker.commentBodies(), 1)
}
