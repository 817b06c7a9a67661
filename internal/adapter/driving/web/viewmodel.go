package web

import (
	"fmt"
	"strings"
	"time"

	vm "github.com/ericfisherdev/reviewbot/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/reviewbot/internal/domain/model"
)

var jobTitles = map[model.JobKind]string{
	model.JobKindPDF:        "Paper proof",
	model.JobKindReferences: "Reference check",
	model.JobKindRepository: "Repository analysis",
	model.JobKindDeposit:    "Acceptance",
	model.JobKindReminder:   "Reviewer reminder",
	model.JobKindArchive:    "Software archive",
	model.JobKindBook:       "Notebook book build",
	model.JobKindPreview:    "Paper preview",
}

// toJobViewModel converts a queued job to its status page view model.
// now is only used for the elapsed time of unfinished jobs.
func toJobViewModel(job model.Job, now time.Time) vm.JobViewModel {
	title, ok := jobTitles[job.Kind]
	if !ok {
		title = string(job.Kind)
	}

	v := vm.JobViewModel{
		Title:       title,
		Kind:        string(job.Kind),
		Branch:      job.Branch,
		Status:      string(job.Status),
		StatusClass: "status status-" + string(job.Status),
		Finished:    job.IsFinished(),
		Queued:      job.CreatedAt.UTC().Format(time.RFC3339),
		Updated:     job.UpdatedAt.UTC().Format(time.RFC3339),
	}

	switch {
	case job.Issue != 0:
		v.Subject = fmt.Sprintf("%s#%d", job.Repo, job.Issue)
		v.SubjectURL = fmt.Sprintf("https://github.com/%s/issues/%d", job.Repo, job.Issue)
	case job.SourceURL != "":
		v.Subject = strings.TrimSuffix(job.SourceURL, ".git")
		v.SubjectURL = job.SourceURL
	}

	if v.Finished {
		v.OutputHTML = RenderJobOutput(job.Report, job.Error)
		v.Elapsed = job.UpdatedAt.Sub(job.CreatedAt).Round(time.Second).String()
	} else {
		v.Elapsed = now.Sub(job.CreatedAt).Round(time.Second).String()
	}

	return v
}

// toPreviewFormViewModel builds the preview form, pre-selecting journal.
func toPreviewFormViewModel(venues []model.Venue, csrf string, req previewForm, errMsg string) vm.PreviewFormViewModel {
	journals := make([]vm.JournalOption, 0, len(venues))
	for _, v := range venues {
		name := v.Name
		if name == "" {
			name = v.Repo
		}
		journals = append(journals, vm.JournalOption{
			Repo:     v.Repo,
			Name:     name,
			Selected: v.Repo == req.Journal,
		})
	}

	return vm.PreviewFormViewModel{
		CSRFToken:  csrf,
		Repository: req.Repository,
		Branch:     req.Branch,
		Journals:   journals,
		Error:      errMsg,
	}
}
