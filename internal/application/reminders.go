package application

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
)

var handlePattern = regexp.MustCompile(`@[A-Za-z0-9_-]+`)

// DurationParser turns "in <size> <unit>" phrases into absolute times.
type DurationParser struct {
	w *when.Parser
}

// NewDurationParser creates a parser with the English and common rule sets.
func NewDurationParser() *DurationParser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &DurationParser{w: w}
}

// After returns the time described by "in size unit" relative to now.
// ok is false when the phrase is not recognized or does not lie in the future.
func (p *DurationParser) After(size, unit string, now time.Time) (time.Time, bool) {
	phrase := fmt.Sprintf("in %s %s", strings.TrimSpace(size), strings.TrimSpace(unit))

	r, err := p.w.Parse(phrase, now)
	if err != nil || r == nil {
		return time.Time{}, false
	}
	if !r.Time.After(now) {
		return time.Time{}, false
	}
	return r.Time, true
}

// needsReminder reports whether a reviewer's checklist in the issue body is
// missing or still has unchecked items.
func needsReminder(body, reviewer string) bool {
	lines := strings.Split(body, "\n")
	marker := "review checklist for " + strings.ToLower(reviewer)

	inSection := false
	found := false
	for _, line := range lines {
		lower := strings.ToLower(line)
		if strings.Contains(lower, "review checklist for ") {
			inSection = containsHandle(lower, marker)
			found = found || inSection
			continue
		}
		if inSection && strings.Contains(line, "- [ ]") {
			return true
		}
	}
	return !found
}

// containsHandle matches s only where the handle is not followed by more handle characters.
func containsHandle(text, s string) bool {
	for {
		idx := strings.Index(text, s)
		if idx < 0 {
			return false
		}
		rest := text[idx+len(s):]
		if rest == "" || !isHandleChar(rest[0]) {
			return true
		}
		text = rest
	}
}

func isHandleChar(c byte) bool {
	return c == '-' || c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// submittingAuthor returns the first handle named in the Submitting author field.
func submittingAuthor(body string) string {
	v := model.ReadField(body, model.FieldSubmittingAuthor)
	if !v.Assigned() {
		return ""
	}
	return handlePattern.FindString(v.Value)
}

// runReminder nudges the target of a scheduled reminder. Closed issues and
// reviewers whose checklist is complete are left alone.
func (j *Jobs) runReminder(ctx context.Context, job model.Job) (string, error) {
	issue, err := j.Tracker.GetIssue(ctx, job.Repo, job.Issue)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", model.IssueKey(job.Repo, job.Issue), err)
	}
	if issue.IsClosed() {
		return "", nil
	}

	human := model.Mention(job.Target)
	if strings.EqualFold(human, submittingAuthor(issue.Body)) {
		return fmt.Sprintf(":wave: %s, please update us on how things are progressing here.", human), nil
	}
	if needsReminder(issue.Body, human) {
		return fmt.Sprintf(":wave: %s, please update us on how your review is going.", human), nil
	}
	return "", nil
}
