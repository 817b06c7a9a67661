// Package viewmodel defines presentation-ready structs for templ components.
// View models decouple template rendering from domain model types.
package viewmodel

// JobViewModel holds presentation-ready data for the job status page.
type JobViewModel struct {
	Title       string
	Kind        string
	Subject     string // "owner/repo#42" or the previewed repository
	SubjectURL  string
	Branch      string
	Status      string
	StatusClass string
	Finished    bool
	OutputHTML  string
	Queued      string
	Updated     string
	Elapsed     string
}

// JournalOption is one entry of the preview form's journal selector.
type JournalOption struct {
	Repo     string
	Name     string
	Selected bool
}

// PreviewFormViewModel holds the state of the preview request form.
type PreviewFormViewModel struct {
	CSRFToken  string
	Repository string
	Branch     string
	Journals   []JournalOption
	Error      string
}
