package application

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

const bookBuildMarker = "--build-book"

func (j *Jobs) runDeposit(ctx context.Context, job model.Job) (string, error) {
	issue, venue, err := j.submission(ctx, job)
	if err != nil {
		return "", err
	}

	archive := model.ReadField(issue.Body, model.FieldArchive)
	if !archive.Assigned() {
		return "", failf(nil, msgNoArchive)
	}

	dir, cleanup, err := j.checkout(ctx, job, issue)
	if err != nil {
		return "", err
	}
	defer cleanup()

	paper, err := j.locatePaper(ctx, dir)
	if err != nil {
		return "", err
	}

	res, err := j.Typesetter.Compile(ctx, model.TypesetRequest{Dir: dir, PaperPath: paper.Path, Venue: venue, Issue: job.Issue, Final: true})
	if err != nil {
		return "", failf(err, "PDF failed to compile for issue #%d with the following error: \n\n %s", job.Issue, err)
	}

	pdf, err := os.ReadFile(res.PDFPath)
	if err != nil {
		return "", fmt.Errorf("reading final proof: %w", err)
	}
	crossref, err := os.ReadFile(res.CrossrefPath)
	if err != nil {
		return "", fmt.Errorf("reading crossref metadata: %w", err)
	}

	doi := model.PaperDOI(venue.DOIPrefix, venue.JournalAlias, job.Issue)
	pdfPath := model.ArtifactPath(venue.DOIPrefix, venue.JournalAlias, job.Issue, "pdf")
	name := strings.TrimSuffix(filepath.Base(pdfPath), ".pdf")

	result, err := j.Publisher.Publish(ctx, model.PublishRequest{
		Repo:  venue.PapersRepo,
		Alias: venue.JournalAlias,
		Issue: job.Issue,
		Artifacts: []model.Artifact{
			{Path: pdfPath, Content: pdf},
			{Path: model.ArtifactPath(venue.DOIPrefix, venue.JournalAlias, job.Issue, "crossref.xml"), Content: crossref},
		},
		Message: "Creating " + name,
		OpenPR:  true,
		Merge:   !job.DryRun,
		PRTitle: "Creating pull request for " + name,
		PRBody:  fmt.Sprintf("Final proof and Crossref metadata for https://github.com/%s/issues/%d", job.Repo, job.Issue),
	})
	if err != nil {
		return "", fmt.Errorf("publishing final proof: %w", err)
	}
	prURL := result.PullRequest.HTMLURL

	if job.DryRun {
		return dryRunDepositMessage(venue, j.Bot, prURL, job.Branch), nil
	}

	if err := j.VenueAPI.Deposit(ctx, venue, job.Issue, doi, archive.Value, crossref); err != nil {
		return "", failf(err, "Depositing the metadata for issue #%d failed with the following error: \n\n %s", job.Issue, err)
	}

	if venue.AnnounceURL != "" {
		title := strings.TrimSpace(strings.TrimPrefix(issue.Title, "[REVIEW]:"))
		if err := j.VenueAPI.Announce(ctx, venue, fmt.Sprintf("Just published in #%s: '%s' https://doi.org/%s", venue.JournalAlias, title, doi)); err != nil {
			j.Logger.Warn("announcing publication failed", "repo", job.Repo, "issue", job.Issue, "error", err)
		}
	}

	return liveDepositMessage(venue, prURL, doi), nil
}

func dryRunDepositMessage(venue model.Venue, bot, prURL, branch string) string {
	cmd := fmt.Sprintf("@%s accept deposit=true", bot)
	if branch != "" {
		cmd += " from branch " + branch
	}
	return fmt.Sprintf(":wave: @%s, this paper is ready to be accepted and published.\n\n Check final proof :point_right: %s\n\n"+
		"If the paper PDF and Crossref deposit XML look good in %s, then you can now move forward with accepting the submission by compiling again with the flag `deposit=true` e.g.\n ```\n%s\n```",
		venue.EICTeamName, prURL, prURL, cmd)
}

func liveDepositMessage(venue model.Venue, prURL, doi string) string {
	link := "https://doi.org/" + doi
	return fmt.Sprintf(":rotating_light::rotating_light::rotating_light: **THIS IS NOT A DRILL, YOU HAVE JUST ACCEPTED A PAPER INTO %s!** :rotating_light::rotating_light::rotating_light:\n\n"+
		" Here's what you must now do:\n\n"+
		"0. Check final PDF and Crossref metadata that was deposited :point_right: %s\n"+
		"1. Wait a couple of minutes to verify that the paper DOI resolves [%s](%s)\n"+
		"2. If everything looks good, then close this review issue.\n"+
		"3. Party like you just published a paper! :tada::rainbow::unicorn::dancer::ghost::metal:\n\n"+
		" Any issues? Notify your editorial technical team...",
		strings.ToUpper(venue.JournalAlias), prURL, link, link)
}

func (j *Jobs) runArchive(ctx context.Context, job model.Job) (string, error) {
	issue, venue, err := j.submission(ctx, job)
	if err != nil {
		return "", err
	}

	body := model.ParseIssueBody(issue.Body)
	version := body.Get(model.FieldVersion)
	if !version.Assigned() {
		return "", failf(nil, msgNoVersion)
	}
	repoURL := body.Get(model.FieldRepository).Value

	doi, err := j.Archives.Archive(ctx, venue, repoURL, version.Value)
	switch {
	case errors.Is(err, driven.ErrInProgress):
		return fmt.Sprintf("An archive deposit of %s %s is already in progress. I'll post the DOI once you set it with `@%s set <doi> as archive`.", repoURL, version.Value, j.Bot), nil
	case errors.Is(err, driven.ErrNotFound):
		return "", failf(err, "I couldn't find release %s of %s on the archive service. Please make sure the release exists and try again.", version.Value, repoURL)
	case err != nil:
		return "", failf(err, "Archiving the software for issue #%d failed with the following error: \n\n %s", job.Issue, err)
	}

	if err := j.writeArchive(ctx, job, doi); err != nil {
		return "", err
	}
	return fmt.Sprintf("OK. %s is the archive.", archiveLink(doi)), nil
}

// writeArchive stores doi in the Archive field under the same lock the
// dispatcher holds for body mutations.
func (j *Jobs) writeArchive(ctx context.Context, job model.Job, doi string) error {
	unlock := j.Locks.Lock(bodyLockKey(job.Repo, job.Issue))
	defer unlock()

	fresh, err := j.Tracker.GetIssue(ctx, job.Repo, job.Issue)
	if err != nil {
		return fmt.Errorf("re-reading issue: %w", err)
	}
	body, err := model.WriteField(fresh.Body, model.FieldArchive, doi)
	if err != nil {
		return failf(err, "%s", missingField(model.FieldArchive))
	}
	if err := j.Tracker.UpdateIssue(ctx, job.Repo, job.Issue, model.IssueUpdate{Body: &body}); err != nil {
		return fmt.Errorf("writing archive DOI: %w", err)
	}
	return nil
}

func (j *Jobs) runBook(ctx context.Context, job model.Job) (string, error) {
	issue, venue, err := j.submission(ctx, job)
	if err != nil {
		return "", err
	}

	dir, cleanup, err := j.checkout(ctx, job, issue)
	if err != nil {
		return "", err
	}
	defer cleanup()

	sha, err := j.Workspace.LatestCommitMatching(ctx, dir, bookBuildMarker)
	if errors.Is(err, driven.ErrNotFound) {
		return "", failf(err, "Repository does not contain any commits with %s message.", bookBuildMarker)
	}
	if err != nil {
		return "", fmt.Errorf("searching history: %w", err)
	}

	repoURL, _ := sourceOf(job, issue)
	res, err := j.Builds.Build(ctx, venue, repoURL, sha)
	if err != nil {
		return "", failf(err, "Jupyter Book failed to build for issue #%d with the following error: \n\n %s", job.Issue, err)
	}

	if res.Existing {
		return fmt.Sprintf(":point_right: A book for commit `%s` was already built: [Jupyter Book](%s) :point_left:", sha, res.BookURL), nil
	}
	return fmt.Sprintf(":point_right::closed_book: [Jupyter Book](%s) built from commit `%s` :closed_book: :point_left:", res.BookURL, sha), nil
}
