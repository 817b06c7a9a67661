package application

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
)

var doiPattern = regexp.MustCompile(`\b(10[.][0-9]{4,}(?:[.][0-9]+)*/[^\s"&'<>]+)`)

// extractDOI returns the first DOI in s, trimmed to end on a word character.
func extractDOI(s string) (string, bool) {
	m := doiPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	doi := strings.TrimRightFunc(m[1], func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
	})
	return doi, doi != ""
}

func (d *Dispatcher) listCommands(ctx context.Context, c *commandContext, _ []string) error {
	if c.venue.IsEditor(c.actor) {
		return d.respond(ctx, c, editorCommands(d.bot))
	}
	return d.respond(ctx, c, publicCommands(d.bot))
}

func (d *Dispatcher) listEditors(ctx context.Context, c *commandContext, _ []string) error {
	mentions := make([]string, 0, len(c.venue.Editors))
	for _, e := range c.venue.Editors {
		mentions = append(mentions, model.Mention(e))
	}
	return d.respond(ctx, c, "Here are the current editors: "+strings.Join(mentions, ", "))
}

func (d *Dispatcher) listReviewers(ctx context.Context, c *commandContext, _ []string) error {
	return d.respond(ctx, c, "Here's the current list of reviewers: "+c.venue.ReviewersURL)
}

// --- reviewers and editor ---

func (d *Dispatcher) assignReviewer(ctx context.Context, c *commandContext, args []string) error {
	return d.changeReviewers(ctx, c, args[0], func(_ []string) []string {
		return []string{args[0]}
	}, fmt.Sprintf("OK, %s is now a reviewer", args[0]))
}

func (d *Dispatcher) addReviewer(ctx context.Context, c *commandContext, args []string) error {
	return d.changeReviewers(ctx, c, args[0], func(current []string) []string {
		return addHandle(current, args[0])
	}, fmt.Sprintf("OK, %s is now a reviewer", args[0]))
}

func (d *Dispatcher) removeReviewer(ctx context.Context, c *commandContext, args []string) error {
	return d.changeReviewers(ctx, c, args[0], func(current []string) []string {
		return removeHandle(current, args[0])
	}, fmt.Sprintf("OK, %s is no longer a reviewer", args[0]))
}

func (d *Dispatcher) changeReviewers(ctx context.Context, c *commandContext, _ string, change func([]string) []string, reply string) error {
	body := model.ParseIssueBody(c.issue.Body)

	editor := body.Get(model.FieldEditor)
	if !editor.Assigned() {
		return d.refuse(ctx, c, msgNeedEditorFirst)
	}

	reviewers := change(model.ParseHandles(body.Get(model.FieldReviewers)))
	if err := body.Set(model.FieldReviewers, model.FormatHandles(reviewers)); err != nil {
		if errors.Is(err, model.ErrFieldMissing) {
			return d.refuse(ctx, c, missingField(model.FieldReviewers))
		}
		return err
	}

	logins := reviewerLogins(reviewers)
	for _, login := range logins {
		if err := d.tracker.AddCollaborator(ctx, c.repo, login); err != nil {
			d.logger.Warn("adding reviewer as collaborator failed", "repo", c.repo, "login", login, "error", err)
		}
	}

	if err := d.writeIssue(ctx, c, body, union([]string{model.NormalizeHandle(editor.Value)}, logins)); err != nil {
		return err
	}
	return d.respond(ctx, c, reply)
}

func (d *Dispatcher) assignEditor(ctx context.Context, c *commandContext, args []string) error {
	editor := args[0]
	if strings.EqualFold(editor, "me") {
		editor = c.actor
	}
	editor = model.NormalizeHandle(editor)

	body := model.ParseIssueBody(c.issue.Body)
	if err := body.Set(model.FieldEditor, model.Mention(editor)); err != nil {
		if errors.Is(err, model.ErrFieldMissing) {
			return d.refuse(ctx, c, missingField(model.FieldEditor))
		}
		return err
	}

	if err := d.venueAPI.AssignEditor(ctx, c.venue, c.number, editor); err != nil {
		d.logger.Warn("venue editor assignment failed", "repo", c.repo, "issue", c.number, "editor", editor, "error", err)
	}

	logins := reviewerLogins(model.ParseHandles(body.Get(model.FieldReviewers)))
	if err := d.writeIssue(ctx, c, body, union([]string{editor}, logins)); err != nil {
		return err
	}
	return d.respond(ctx, c, "OK, the editor is @"+editor)
}

func (d *Dispatcher) inviteEditor(ctx context.Context, c *commandContext, args []string) error {
	editor := model.NormalizeHandle(args[0])
	if err := d.venueAPI.InviteEditor(ctx, c.venue, c.number, editor); err != nil {
		d.logger.Warn("editor invitation failed", "repo", c.repo, "issue", c.number, "editor", editor, "error", err)
		return d.respond(ctx, c, fmt.Sprintf("There was a problem inviting `@%s` to edit this submission.", editor))
	}
	return d.respond(ctx, c, fmt.Sprintf("@%s has been invited to edit this submission.", editor))
}

func (d *Dispatcher) reinviteReviewer(ctx context.Context, c *commandContext, args []string) error {
	login := strings.ToLower(model.NormalizeHandle(args[0]))

	pending, err := d.tracker.HasPendingInvitation(ctx, c.repo, login)
	if err != nil {
		return fmt.Errorf("listing invitations: %w", err)
	}
	if pending {
		return d.respond(ctx, c, pendingInviteMessage(c.repo, login))
	}

	collaborator, err := d.tracker.IsCollaborator(ctx, c.repo, login)
	if err != nil {
		return fmt.Errorf("checking collaborator %s: %w", login, err)
	}
	if collaborator {
		return d.respond(ctx, c, fmt.Sprintf("@%s already has access.", login))
	}

	if err := d.tracker.AddCollaborator(ctx, c.repo, login); err != nil {
		return fmt.Errorf("inviting %s: %w", login, err)
	}
	return d.respond(ctx, c, reinvitedMessage(c.repo, login))
}

// --- archive and version ---

func (d *Dispatcher) setArchive(ctx context.Context, c *commandContext, args []string) error {
	doi, ok := extractDOI(args[0])
	if !ok {
		return d.respond(ctx, c, fmt.Sprintf("%s doesn't look like an archive DOI.", args[0]))
	}
	if err := d.setField(ctx, c, model.FieldArchive, doi); err != nil {
		return err
	}
	return d.respond(ctx, c, fmt.Sprintf("OK. %s is the archive.", archiveLink(doi)))
}

func (d *Dispatcher) setVersion(ctx context.Context, c *commandContext, args []string) error {
	version := args[0]
	if version == "" {
		return d.respond(ctx, c, fmt.Sprintf("%s doesn't look like a valid version string.", version))
	}
	if err := d.setField(ctx, c, model.FieldVersion, version); err != nil {
		return err
	}
	return d.respond(ctx, c, fmt.Sprintf("OK. %s is the version.", version))
}

func (d *Dispatcher) setField(ctx context.Context, c *commandContext, field model.Field, value string) error {
	body := model.ParseIssueBody(c.issue.Body)
	if err := body.Set(field, value); err != nil {
		if errors.Is(err, model.ErrFieldMissing) {
			return d.refuse(ctx, c, missingField(field))
		}
		return err
	}
	return d.writeIssue(ctx, c, body, nil)
}

// writeIssue stores the re-rendered body and, when assignees is non-nil,
// replaces the assignees.
func (d *Dispatcher) writeIssue(ctx context.Context, c *commandContext, body *model.IssueBody, assignees []string) error {
	text := body.String()
	update := model.IssueUpdate{Body: &text}
	if assignees != nil {
		update.Assignees = &assignees
	}
	if err := d.tracker.UpdateIssue(ctx, c.repo, c.number, update); err != nil {
		return fmt.Errorf("updating %s: %w", model.IssueKey(c.repo, c.number), err)
	}
	c.issue.Body = text
	return nil
}

// --- lifecycle ---

func (d *Dispatcher) startReview(ctx context.Context, c *commandContext, _ []string) error {
	if model.IsReviewTitle(c.issue.Title) {
		return d.refuse(ctx, c, msgReviewAlreadyStarted)
	}

	body := model.ParseIssueBody(c.issue.Body)
	reviewers := model.ParseHandles(body.Get(model.FieldReviewers))
	if len(reviewers) == 0 {
		return d.refuse(ctx, c, msgNoReviewers)
	}

	editor := body.Get(model.FieldEditor)
	if !editor.Assigned() {
		return d.refuse(ctx, c, msgNoEditor)
	}

	logins := make([]string, 0, len(reviewers))
	for _, r := range reviewers {
		logins = append(logins, model.NormalizeHandle(r))
	}

	reviewIssue, err := d.venueAPI.StartReview(ctx, c.venue, c.number, model.NormalizeHandle(editor.Value), logins)
	if err != nil {
		if rerr := d.respond(ctx, c, "There was a problem starting the review: "+err.Error()); rerr != nil {
			return rerr
		}
		return fmt.Errorf("starting review: %w", err)
	}

	if err := d.respond(ctx, c, startReviewMessage(c.repo, reviewIssue)); err != nil {
		return err
	}
	if err := d.tracker.CloseIssue(ctx, c.repo, c.number); err != nil {
		return fmt.Errorf("closing pre-review issue: %w", err)
	}
	return nil
}

// checkAcceptable enforces that a paper is in review and has an archive DOI.
func (d *Dispatcher) checkAcceptable(ctx context.Context, c *commandContext) error {
	if !model.IsReviewTitle(c.issue.Title) {
		return d.refuse(ctx, c, msgNotReviewed)
	}
	if !model.ReadField(c.issue.Body, model.FieldArchive).Assigned() {
		return d.refuse(ctx, c, msgNoArchive)
	}
	return nil
}

func (d *Dispatcher) acceptDryRun(ctx context.Context, c *commandContext, args []string) error {
	if err := d.checkAcceptable(ctx, c); err != nil {
		return err
	}
	if err := d.tracker.AddLabels(ctx, c.repo, c.number, model.LabelRecommendAccept); err != nil {
		return fmt.Errorf("labeling: %w", err)
	}
	if err := d.respond(ctx, c, msgDryRun); err != nil {
		return err
	}
	if err := d.enqueue(ctx, c.repo, c.number, model.JobKindReferences, args[0], false); err != nil {
		return err
	}
	return d.enqueue(ctx, c.repo, c.number, model.JobKindDeposit, args[0], true)
}

func (d *Dispatcher) acceptLive(ctx context.Context, c *commandContext, args []string) error {
	if err := d.checkAcceptable(ctx, c); err != nil {
		return err
	}
	if err := d.tracker.AddLabels(ctx, c.repo, c.number, model.LabelAccepted, model.LabelPublished); err != nil {
		return fmt.Errorf("labeling: %w", err)
	}
	if err := d.respond(ctx, c, msgLiveRun); err != nil {
		return err
	}
	return d.enqueue(ctx, c.repo, c.number, model.JobKindDeposit, args[0], false)
}

func (d *Dispatcher) reject(ctx context.Context, c *commandContext, _ []string) error {
	return d.terminate(ctx, c, model.StageRejected, model.LabelRejected, d.venueAPI.Reject, msgPaperRejected, msgRejectFailed)
}

func (d *Dispatcher) withdraw(ctx context.Context, c *commandContext, _ []string) error {
	return d.terminate(ctx, c, model.StageWithdrawn, model.LabelWithdrawn, d.venueAPI.Withdraw, msgPaperWithdrawn, msgWithdrawFailed)
}

// terminate performs a terminal transition. A retry after a partial failure
// finishes labeling and closing without calling the venue API again.
func (d *Dispatcher) terminate(
	ctx context.Context,
	c *commandContext,
	stage model.Stage,
	label string,
	call func(context.Context, model.Venue, int) error,
	done, failed string,
) error {
	unlock := d.locks.Lock(bodyLockKey(c.repo, c.number))
	defer unlock()

	current := c.issue.Stage()
	switch {
	case current == stage && c.issue.IsClosed():
		return d.respond(ctx, c, fmt.Sprintf("This submission has already been %s.", stage))
	case current == stage:
		d.logger.Info("finishing interrupted terminal transition", "repo", c.repo, "issue", c.number, "stage", stage)
	case current == model.StageRejected || current == model.StageWithdrawn:
		return d.refuse(ctx, c, alreadyTerminal(current))
	default:
		// The label marks the transition as started; retries skip the venue API.
		if err := d.tracker.AddLabels(ctx, c.repo, c.number, label); err != nil {
			return fmt.Errorf("labeling %s: %w", label, err)
		}
		if err := call(ctx, c.venue, c.number); err != nil {
			d.logger.Warn("venue rejected terminal transition", "repo", c.repo, "issue", c.number, "stage", stage, "error", err)
			if rmErr := d.tracker.RemoveLabel(ctx, c.repo, c.number, label); rmErr != nil {
				_ = d.respond(ctx, c, failed)
				return fmt.Errorf("removing %s label after failed transition: %w", label, rmErr)
			}
			return d.respond(ctx, c, failed)
		}
	}

	if err := d.respond(ctx, c, done); err != nil {
		return err
	}
	if err := d.tracker.CloseIssue(ctx, c.repo, c.number); err != nil {
		return fmt.Errorf("closing issue: %w", err)
	}
	return nil
}

func (d *Dispatcher) queryScope(ctx context.Context, c *commandContext, _ []string) error {
	if err := d.tracker.AddLabels(ctx, c.repo, c.number, model.LabelQueryScope); err != nil {
		return fmt.Errorf("labeling: %w", err)
	}
	return d.respond(ctx, c, msgQueryScope)
}

func (d *Dispatcher) remind(ctx context.Context, c *commandContext, args []string) error {
	human, size, unit := args[0], args[1], args[2]

	if !strings.Contains(c.issue.Body, human) {
		return d.refuse(ctx, c, fmt.Sprintf("%s doesn't seem to be a reviewer or author for this submission.", human))
	}
	if !model.IsReviewTitle(c.issue.Title) {
		return d.refuse(ctx, c, msgPreReviewReminder)
	}

	at, ok := d.durations.After(size, unit, d.now())
	if !ok {
		return d.respond(ctx, c, fmt.Sprintf("I don't recognize this description of time '%s' '%s'.", size, unit))
	}

	_, err := d.queue.Enqueue(ctx, model.Job{
		Kind:   model.JobKindReminder,
		Repo:   c.repo,
		Issue:  c.number,
		Target: model.Mention(human),
		RunAt:  at,
	})
	if err != nil {
		return fmt.Errorf("scheduling reminder: %w", err)
	}
	return d.respond(ctx, c, fmt.Sprintf("Reminder set for %s in %s %s", human, size, unit))
}

// --- job commands ---

func (d *Dispatcher) generatePDF(ctx context.Context, c *commandContext, args []string) error {
	msg := fmt.Sprintf("```\nAttempting PDF compilation%s. Reticulating splines etc...\n```", customBranchSuffix(args[0]))
	if err := d.respond(ctx, c, msg); err != nil {
		return err
	}
	return d.enqueue(ctx, c.repo, c.number, model.JobKindPDF, args[0], false)
}

func (d *Dispatcher) buildBook(ctx context.Context, c *commandContext, args []string) error {
	msg := fmt.Sprintf("```\nAttempting to build the Jupyter Book%s...\n```", customBranchSuffix(args[0]))
	if err := d.respond(ctx, c, msg); err != nil {
		return err
	}
	return d.enqueue(ctx, c.repo, c.number, model.JobKindBook, args[0], false)
}

func (d *Dispatcher) checkReferences(ctx context.Context, c *commandContext, args []string) error {
	msg := fmt.Sprintf("```\nAttempting to check references...%s\n```", customBranchSuffix(args[0]))
	if err := d.respond(ctx, c, msg); err != nil {
		return err
	}
	return d.enqueue(ctx, c.repo, c.number, model.JobKindReferences, args[0], false)
}

func (d *Dispatcher) checkRepository(ctx context.Context, c *commandContext, args []string) error {
	return d.enqueue(ctx, c.repo, c.number, model.JobKindRepository, args[0], false)
}

func (d *Dispatcher) archiveSoftware(ctx context.Context, c *commandContext, args []string) error {
	if !model.ReadField(c.issue.Body, model.FieldVersion).Assigned() {
		return d.refuse(ctx, c, msgNoVersion)
	}
	if err := d.respond(ctx, c, "```\nAttempting to archive the software release...\n```"); err != nil {
		return err
	}
	return d.enqueue(ctx, c.repo, c.number, model.JobKindArchive, args[0], false)
}

// --- handle list helpers ---

func sameHandle(a, b string) bool {
	return strings.EqualFold(model.NormalizeHandle(a), model.NormalizeHandle(b))
}

func addHandle(list []string, h string) []string {
	for _, existing := range list {
		if sameHandle(existing, h) {
			return list
		}
	}
	return append(list, h)
}

func removeHandle(list []string, h string) []string {
	return slices.DeleteFunc(slices.Clone(list), func(existing string) bool {
		return sameHandle(existing, h)
	})
}

// reviewerLogins normalizes handles to lower-case logins without duplicates.
func reviewerLogins(handles []string) []string {
	out := []string{}
	for _, h := range handles {
		login := strings.ToLower(model.NormalizeHandle(h))
		if login != "" && !slices.Contains(out, login) {
			out = append(out, login)
		}
	}
	return out
}

func union(a, b []string) []string {
	out := slices.Clone(a)
	for _, s := range b {
		if !slices.ContainsFunc(out, func(x string) bool { return strings.EqualFold(x, s) }) {
			out = append(out, s)
		}
	}
	return out
}
