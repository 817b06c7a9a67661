package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
)

var statementOfNeedPattern = regexp.MustCompile(`(?i)#\s*Statement of need`)

var errPreviewsDisabled = errors.New("preview uploads are not configured")

func (j *Jobs) runPDF(ctx context.Context, job model.Job) (string, error) {
	issue, venue, err := j.submission(ctx, job)
	if err != nil {
		return "", err
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

	res, err := j.Typesetter.Compile(ctx, model.TypesetRequest{Dir: dir, PaperPath: paper.Path, Venue: venue, Issue: job.Issue})
	if err != nil {
		return "", failf(err, "PDF failed to compile for issue #%d with the following error: \n\n %s", job.Issue, err)
	}

	pdf, err := os.ReadFile(res.PDFPath)
	if err != nil {
		return "", fmt.Errorf("reading proof: %w", err)
	}

	path := model.ArtifactPath(venue.DOIPrefix, venue.JournalAlias, job.Issue, "pdf")
	result, err := j.Publisher.Publish(ctx, model.PublishRequest{
		Repo:      venue.PapersRepo,
		Alias:     venue.JournalAlias,
		Issue:     job.Issue,
		Artifacts: []model.Artifact{{Path: path, Content: pdf}},
		Message:   "Creating " + filepath.Base(path),
	})
	if err != nil {
		return "", fmt.Errorf("publishing proof: %w", err)
	}

	f := result.Files[0]
	return fmt.Sprintf(":point_right::page_facing_up: [Download article proof](%s) :page_facing_up: [View article proof on GitHub](%s) :page_facing_up: :point_left:",
		f.DownloadURL, f.HTMLURL), nil
}

func (j *Jobs) runReferences(ctx context.Context, job model.Job) (string, error) {
	issue, _, err := j.submission(ctx, job)
	if err != nil {
		return "", err
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
	if paper.BibliographyPath == "" {
		return msgNoBibliography, nil
	}

	rel, err := filepath.Rel(dir, filepath.Join(filepath.Dir(paper.Path), paper.BibliographyPath))
	if err != nil || !filepath.IsLocal(rel) {
		return "", failf(nil, "The bibliography %q is outside the repository.", paper.BibliographyPath)
	}

	// Opening through a root also refuses symlinks that leave the working copy.
	root, err := os.OpenRoot(dir)
	if err != nil {
		return "", fmt.Errorf("opening working copy: %w", err)
	}
	defer root.Close()

	f, err := root.Open(rel)
	if errors.Is(err, fs.ErrNotExist) {
		return msgNoBibliography, nil
	}
	if err != nil {
		return "", failf(err, "The bibliography %q could not be read: %s", paper.BibliographyPath, err)
	}
	defer f.Close()

	entries, err := j.Inspector.ParseBibliography(f)
	if err != nil {
		return "", failf(err, "Checking the BibTeX entries failed with the following error: \n\n %s", err)
	}

	return j.Validator.Validate(ctx, entries).Markdown(), nil
}

func (j *Jobs) runRepository(ctx context.Context, job model.Job) (string, error) {
	issue, _, err := j.submission(ctx, job)
	if err != nil {
		return "", err
	}

	dir, cleanup, err := j.checkout(ctx, job, issue)
	if err != nil {
		return "", err
	}
	defer cleanup()

	report, err := j.Analyzer.Analyze(ctx, dir)
	if err != nil {
		return "", fmt.Errorf("analyzing repository: %w", err)
	}

	if len(report.Languages) > 0 {
		if err := j.Tracker.AddLabels(ctx, job.Repo, job.Issue, report.Languages...); err != nil {
			return "", fmt.Errorf("labeling languages: %w", err)
		}
	}

	sections := []string{softwareReport(report)}
	if report.License == "" {
		sections = append(sections, msgNoLicense)
	}

	// A missing paper is reported by the pdf job; only its content matters here.
	if paper, err := j.Inspector.Locate(ctx, dir); err == nil && !statementOfNeedPattern.MatchString(paper.Text) {
		sections = append(sections, msgNoStatementOfNeed)
	}

	return strings.Join(sections, "\n\n"), nil
}

func softwareReport(r *model.SourceReport) string {
	var b strings.Builder
	b.WriteString("```\nSoftware report:\n\n")
	languages := "none detected"
	if len(r.Languages) > 0 {
		languages = strings.Join(r.Languages, ", ")
	}
	license := "none detected"
	if r.License != "" {
		license = r.License
	}
	fmt.Fprintf(&b, "Languages: %s\nLicense:   %s\nFiles:     %d\n```", languages, license, r.Files)
	return b.String()
}

// runPreview compiles a paper for the public preview form. The report is
// the download URL of the proof.
func (j *Jobs) runPreview(ctx context.Context, job model.Job) (string, error) {
	if j.Store == nil {
		return "", errPreviewsDisabled
	}
	venue, _ := j.Venues.Lookup(job.Repo)

	dir, cleanup, err := j.checkout(ctx, job, nil)
	if err != nil {
		return "", err
	}
	defer cleanup()

	paper, err := j.locatePaper(ctx, dir)
	if err != nil {
		return "", err
	}

	res, err := j.Typesetter.Compile(ctx, model.TypesetRequest{Dir: dir, PaperPath: paper.Path, Venue: venue})
	if err != nil {
		return "", failf(err, "Looks like we failed to compile the PDF with the following error: \n\n %s", err)
	}

	url, err := j.Store.Upload(ctx, "previews/"+job.Token+".pdf", res.PDFPath)
	if err != nil {
		return "", fmt.Errorf("uploading preview: %w", err)
	}
	return url, nil
}
