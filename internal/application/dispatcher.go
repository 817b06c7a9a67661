package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

var (
	// ErrInvalidEvent is returned for webhook payloads without an issue.
	ErrInvalidEvent = errors.New("event has no issue")

	// ErrUnknownVenue is returned when the repository is not a configured venue.
	ErrUnknownVenue = errors.New("repository is not a configured venue")

	// ErrPrecondition is returned when a command was refused because the
	// submission is not in a state that allows it. The reason has already
	// been posted to the thread.
	ErrPrecondition = errors.New("command precondition not met")
)

// reminderDelay is how long after a review opens reviewers get their first nudge.
const reminderDelay = 14 * 24 * time.Hour

// VenueLookup resolves a repository to its venue configuration.
type VenueLookup interface {
	Lookup(repo string) (model.Venue, bool)
}

type commandFunc func(ctx context.Context, c *commandContext, args []string) error

type command struct {
	name    string
	pattern *regexp.Regexp
	role    Role
	// mutating commands take the body lock and are refused on terminal submissions.
	mutating bool
	run      commandFunc
}

type commandContext struct {
	event  model.Event
	venue  model.Venue
	issue  *model.Issue
	repo   string
	number int
	actor  string
}

// Dispatcher routes webhook events to command handlers. It runs synchronously
// per request and hands every slow action to the job queue.
type Dispatcher struct {
	bot       string
	venues    VenueLookup
	tracker   driven.IssueTracker
	gate      *AuthorizationGate
	queue     driven.JobQueue
	venueAPI  driven.VenueAPI
	locks     *IssueLocks
	durations *DurationParser
	policy    RetryPolicy
	logger    *slog.Logger
	now       func() time.Time

	mention  *regexp.Regexp
	commands []command
}

// NewDispatcher creates a Dispatcher that answers to @bot.
func NewDispatcher(
	bot string,
	venues VenueLookup,
	tracker driven.IssueTracker,
	queue driven.JobQueue,
	venueAPI driven.VenueAPI,
	locks *IssueLocks,
	policy RetryPolicy,
	logger *slog.Logger,
) *Dispatcher {
	d := &Dispatcher{
		bot:       bot,
		venues:    venues,
		tracker:   tracker,
		gate:      NewAuthorizationGate(tracker),
		queue:     queue,
		venueAPI:  venueAPI,
		locks:     locks,
		durations: NewDurationParser(),
		policy:    policy,
		logger:    logger,
		now:       time.Now,
		mention:   regexp.MustCompile(`(?i)^@` + regexp.QuoteMeta(bot) + `\b`),
	}
	d.commands = d.commandTable()
	return d
}

func (d *Dispatcher) pattern(expr string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^@` + regexp.QuoteMeta(d.bot) + `\s+` + expr)
}

// commandTable is ordered; the first matching pattern wins.
func (d *Dispatcher) commandTable() []command {
	return []command{
		{name: "commands", pattern: d.pattern(`commands`), run: d.listCommands},
		{name: "assign reviewer", pattern: d.pattern(`assign (.*) as reviewer`), role: RoleEditor, mutating: true, run: d.assignReviewer},
		{name: "add reviewer", pattern: d.pattern(`add (.*) as reviewer`), role: RoleEditor, mutating: true, run: d.addReviewer},
		{name: "remove reviewer", pattern: d.pattern(`remove (.*) as reviewer`), role: RoleEditor, mutating: true, run: d.removeReviewer},
		{name: "assign editor", pattern: d.pattern(`assign (.*) as editor`), role: RoleEditor, mutating: true, run: d.assignEditor},
		{name: "invite editor", pattern: d.pattern(`invite (.*) as editor`), role: RoleEditorInChief, mutating: true, run: d.inviteEditor},
		{name: "re-invite reviewer", pattern: d.pattern(`re-invite (.*) as reviewer`), role: RoleEditor, mutating: true, run: d.reinviteReviewer},
		{name: "set archive", pattern: d.pattern(`set (.*) as archive`), role: RoleEditor, mutating: true, run: d.setArchive},
		{name: "set version", pattern: d.pattern(`set (.*) as version`), role: RoleEditor, mutating: true, run: d.setVersion},
		{name: "start review", pattern: d.pattern(`start review`), role: RoleEditor, mutating: true, run: d.startReview},
		{name: "list editors", pattern: d.pattern(`list editors`), run: d.listEditors},
		{name: "list reviewers", pattern: d.pattern(`list reviewers`), run: d.listReviewers},
		{name: "generate pdf", pattern: d.pattern(`generate pdf(?: from branch (\S+))?`), run: d.generatePDF},
		{name: "build book", pattern: d.pattern(`build jupyter-book(?: from branch (\S+))?`), run: d.buildBook},
		{name: "accept live", pattern: d.pattern(`accept deposit=true(?: from branch (\S+))?`), role: RoleEditorInChief, mutating: true, run: d.acceptLive},
		{name: "accept", pattern: d.pattern(`accept(?: from branch (\S+))?`), role: RoleEditor, mutating: true, run: d.acceptDryRun},
		{name: "reject", pattern: d.pattern(`reject`), role: RoleEditorInChief, run: d.reject},
		{name: "withdraw", pattern: d.pattern(`withdraw`), role: RoleEditorInChief, run: d.withdraw},
		{name: "check references", pattern: d.pattern(`check references(?: from branch (\S+))?`), run: d.checkReferences},
		{name: "check repository", pattern: d.pattern(`check repository(?: from branch (\S+))?`), run: d.checkRepository},
		{name: "archive software", pattern: d.pattern(`archive software(?: from branch (\S+))?`), role: RoleEditor, mutating: true, run: d.archiveSoftware},
		{name: "remind", pattern: d.pattern(`remind (.*) in (.*) (.*)`), role: RoleEditor, mutating: true, run: d.remind},
		{name: "query scope", pattern: d.pattern(`query scope`), role: RoleEditor, mutating: true, run: d.queryScope},
	}
}

// Handle processes one webhook event. The returned error classifies the
// outcome for the caller: ErrInvalidEvent, ErrUnknownVenue, ErrForbidden or
// ErrPrecondition; any other error is an internal failure.
func (d *Dispatcher) Handle(ctx context.Context, event model.Event) error {
	if event.Issue.Number == 0 {
		return ErrInvalidEvent
	}

	venue, ok := d.venues.Lookup(event.Repo)
	if !ok {
		return fmt.Errorf("%s: %w", event.Repo, ErrUnknownVenue)
	}

	switch {
	case event.Kind == "issues" && event.Action == "opened":
		return d.handleOpened(ctx, event, venue)
	case event.Kind == "issues" && event.Action == "closed":
		return d.handleClosed(ctx, event, venue)
	case event.Kind == "issue_comment" && event.Action == "created":
		return d.handleComment(ctx, event, venue)
	default:
		d.logger.Debug("event ignored", "kind", event.Kind, "action", event.Action, "repo", event.Repo)
		return nil
	}
}

func (d *Dispatcher) handleOpened(ctx context.Context, event model.Event, venue model.Venue) error {
	issue, err := awaitIssue(ctx, d.tracker, d.policy, event.Repo, event.Issue.Number, event.Issue.UpdatedAt)
	if err != nil {
		return err
	}

	if model.IsReviewTitle(issue.Title) {
		reviewers := model.ParseHandles(model.ReadField(issue.Body, model.FieldReviewers))
		if err := d.tracker.CreateComment(ctx, event.Repo, issue.Number, reviewerWelcomeMessage(venue, event.Repo, reviewers)); err != nil {
			return fmt.Errorf("posting reviewer welcome: %w", err)
		}
		for _, r := range reviewers {
			_, err := d.queue.Enqueue(ctx, model.Job{
				Kind:   model.JobKindReminder,
				Repo:   event.Repo,
				Issue:  issue.Number,
				Target: model.Mention(r),
				RunAt:  d.now().Add(reminderDelay),
			})
			if err != nil {
				return fmt.Errorf("scheduling reminder for %s: %w", r, err)
			}
		}
	} else {
		editor := ""
		if len(issue.Assignees) > 0 {
			editor = issue.Assignees[0]
		}
		if err := d.tracker.CreateComment(ctx, event.Repo, issue.Number, welcomeMessage(venue, d.bot, editor)); err != nil {
			return fmt.Errorf("posting welcome: %w", err)
		}
	}

	for _, kind := range []model.JobKind{model.JobKindRepository, model.JobKindReferences, model.JobKindPDF} {
		if err := d.enqueue(ctx, event.Repo, issue.Number, kind, "", false); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) handleClosed(ctx context.Context, event model.Event, venue model.Venue) error {
	issue := event.Issue
	if !model.IsReviewTitle(issue.Title) || !issue.HasLabel(model.LabelAccepted) {
		return nil
	}
	if err := d.tracker.CreateComment(ctx, event.Repo, issue.Number, goodbyeMessage(venue, issue.Number)); err != nil {
		return fmt.Errorf("posting goodbye: %w", err)
	}
	return nil
}

func (d *Dispatcher) handleComment(ctx context.Context, event model.Event, venue model.Venue) error {
	text := strings.TrimSpace(event.CommentBody)
	if !d.mention.MatchString(text) {
		return nil
	}

	cmd, args, ok := d.match(text)
	if !ok {
		if strings.EqualFold(event.Sender, d.bot) {
			return nil
		}
		return d.tracker.CreateComment(ctx, event.Repo, event.Issue.Number, notUnderstood(d.bot))
	}

	logger := d.logger.With("command", cmd.name, "repo", event.Repo, "issue", event.Issue.Number, "sender", event.Sender)

	if cmd.role != "" {
		if err := d.gate.RequireRole(ctx, event.Repo, event.Issue.Number, event.Sender, cmd.role, venue); err != nil {
			logger.Info("command denied", "role", cmd.role)
			return err
		}
	}

	if cmd.mutating {
		unlock := d.locks.Lock(bodyLockKey(event.Repo, event.Issue.Number))
		defer unlock()
	}

	issue, err := awaitIssue(ctx, d.tracker, d.policy, event.Repo, event.Issue.Number, event.Issue.UpdatedAt)
	if err != nil {
		return err
	}

	c := &commandContext{
		event:  event,
		venue:  venue,
		issue:  issue,
		repo:   event.Repo,
		number: issue.Number,
		actor:  event.Sender,
	}

	if cmd.mutating {
		if stage := issue.Stage(); stage == model.StageRejected || stage == model.StageWithdrawn {
			if err := d.respond(ctx, c, alreadyTerminal(stage)); err != nil {
				return err
			}
			return ErrPrecondition
		}
	}

	logger.Info("running command")
	return cmd.run(ctx, c, args)
}

func (d *Dispatcher) match(text string) (command, []string, bool) {
	for _, cmd := range d.commands {
		if m := cmd.pattern.FindStringSubmatch(text); m != nil {
			args := make([]string, 0, len(m)-1)
			for _, a := range m[1:] {
				args = append(args, strings.TrimSpace(a))
			}
			return cmd, args, true
		}
	}
	return command{}, nil, false
}

func (d *Dispatcher) respond(ctx context.Context, c *commandContext, msg string) error {
	if err := d.tracker.CreateComment(ctx, c.repo, c.number, msg); err != nil {
		return fmt.Errorf("commenting on %s: %w", model.IssueKey(c.repo, c.number), err)
	}
	return nil
}

// refuse posts msg and reports a precondition failure.
func (d *Dispatcher) refuse(ctx context.Context, c *commandContext, msg string) error {
	if err := d.respond(ctx, c, msg); err != nil {
		return err
	}
	return ErrPrecondition
}

func (d *Dispatcher) enqueue(ctx context.Context, repo string, issue int, kind model.JobKind, branch string, dryRun bool) error {
	job, err := d.queue.Enqueue(ctx, model.Job{
		Kind:   kind,
		Repo:   repo,
		Issue:  issue,
		Branch: branch,
		DryRun: dryRun,
	})
	if err != nil {
		return fmt.Errorf("enqueueing %s job: %w", kind, err)
	}
	d.logger.Info("job enqueued", "job_id", job.ID, "kind", kind, "repo", repo, "issue", issue)
	return nil
}

// bodyLockKey is separate from the job key so a long-running job never blocks
// a webhook request.
func bodyLockKey(repo string, issue int) string {
	return "body:" + model.IssueKey(repo, issue)
}
