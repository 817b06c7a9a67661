package model

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"
)

// Stage is the lifecycle position of a submission.
type Stage string

const (
	StagePreReview Stage = "pre_review"
	StageReview    Stage = "review"
	StageAccepted  Stage = "accepted"
	StageRejected  Stage = "rejected"
	StageWithdrawn Stage = "withdrawn"
)

// Labels applied by the bot.
const (
	LabelRecommendAccept = "recommend-accept"
	LabelAccepted        = "accepted"
	LabelPublished       = "published"
	LabelRejected        = "rejected"
	LabelWithdrawn       = "withdrawn"
	LabelQueryScope      = "query-scope"
)

var reviewTitlePattern = regexp.MustCompile(`^\[REVIEW\]:`)

// IsReviewTitle reports whether an issue title carries the REVIEW tag.
func IsReviewTitle(title string) bool {
	return reviewTitlePattern.MatchString(title)
}

// Issue is a submission thread as read from the hosting API.
type Issue struct {
	Repo      string
	Number    int
	Title     string
	Body      string
	State     string // "open" or "closed"
	Labels    []string
	Assignees []string
	UpdatedAt time.Time
}

// HasLabel reports whether the issue carries the given label.
func (i Issue) HasLabel(label string) bool {
	return slices.Contains(i.Labels, label)
}

// IsClosed reports whether the issue is closed.
func (i Issue) IsClosed() bool {
	return strings.EqualFold(i.State, "closed")
}

// Stage derives the lifecycle stage. Terminal stages come from labels; the
// title alone decides between pre-review and review.
func (i Issue) Stage() Stage {
	switch {
	case i.HasLabel(LabelWithdrawn):
		return StageWithdrawn
	case i.HasLabel(LabelRejected):
		return StageRejected
	case i.HasLabel(LabelAccepted):
		return StageAccepted
	case IsReviewTitle(i.Title):
		return StageReview
	default:
		return StagePreReview
	}
}

// IssueUpdate carries the mutable parts of an issue. Nil fields are left unchanged.
type IssueUpdate struct {
	Title     *string
	Body      *string
	Assignees *[]string
	State     *string
}

// BranchName is the papers repository branch for a submission, e.g. "joss.00042".
func BranchName(alias string, issue int) string {
	return fmt.Sprintf("%s.%05d", alias, issue)
}

// PaperDOI is the DOI minted for an accepted paper.
func PaperDOI(prefix, alias string, issue int) string {
	return fmt.Sprintf("%s/%s", prefix, BranchName(alias, issue))
}

// ArtifactPath is the file path of a generated artifact inside the submission directory.
// The file name embeds the DOI with slashes replaced by dots.
func ArtifactPath(prefix, alias string, issue int, ext string) string {
	branch := BranchName(alias, issue)
	name := strings.ReplaceAll(PaperDOI(prefix, alias, issue), "/", ".")
	return fmt.Sprintf("%s/%s.%s", branch, name, ext)
}

// NormalizeHandle strips a leading "@" from a GitHub handle.
func NormalizeHandle(h string) string {
	return strings.TrimPrefix(strings.TrimSpace(h), "@")
}

// Mention renders a handle with exactly one leading "@".
func Mention(h string) string {
	return "@" + NormalizeHandle(h)
}
