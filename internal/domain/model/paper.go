package model

// PaperFormat is the source format of a submitted paper.
type PaperFormat string

const (
	PaperMarkdown PaperFormat = "markdown"
	PaperLaTeX    PaperFormat = "latex"
)

// Paper is a located paper inside a working copy.
type Paper struct {
	Path             string
	Format           PaperFormat
	BibliographyPath string // empty when the metadata names no bibliography
	Text             string
}

// SourceReport summarizes a software repository.
type SourceReport struct {
	Languages []string // most used first, at most three
	License   string   // SPDX identifier, empty when none was detected
	Files     int
}

// Event is a normalized inbound webhook delivery.
type Event struct {
	Delivery    string
	Kind        string // "issues" or "issue_comment"
	Action      string
	Sender      string
	Repo        string
	Issue       Issue
	CommentBody string
}
