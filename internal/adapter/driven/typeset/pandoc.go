// Package typeset compiles papers with the pandoc command line tool.
package typeset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Typesetter = (*Pandoc)(nil)

// Pandoc runs pandoc in the paper's directory. Per-venue templates are read
// from {resources}/{alias}/latex.template and crossref.template when present.
type Pandoc struct {
	binary    string
	resources string
	timeout   time.Duration
	now       func() time.Time
}

// NewPandoc creates a Pandoc typesetter. Each invocation is killed after timeout.
func NewPandoc(binary, resources string, timeout time.Duration) *Pandoc {
	if binary == "" {
		binary = "pandoc"
	}
	return &Pandoc{binary: binary, resources: resources, timeout: timeout, now: time.Now}
}

// Compile produces {paper}.pdf next to the paper and, for final compiles,
// {paper}.crossref.xml.
func (p *Pandoc) Compile(ctx context.Context, req model.TypesetRequest) (*model.TypesetResult, error) {
	workDir := filepath.Dir(req.PaperPath)
	base := strings.TrimSuffix(filepath.Base(req.PaperPath), filepath.Ext(req.PaperPath))
	vars := p.variables(req)

	res := &model.TypesetResult{PDFPath: filepath.Join(workDir, base+".pdf")}

	args := []string{filepath.Base(req.PaperPath), "-o", res.PDFPath, "--pdf-engine=xelatex", "--citeproc"}
	if filepath.Ext(req.PaperPath) == ".md" {
		args = append(args, "--from", "markdown+autolink_bare_uris")
	}
	if tmpl := p.template(req.Venue, "latex.template"); tmpl != "" {
		args = append(args, "--template", tmpl)
	}
	args = append(args, vars...)

	if err := p.run(ctx, workDir, args); err != nil {
		return nil, err
	}

	if !req.Final {
		return res, nil
	}

	res.CrossrefPath = filepath.Join(workDir, base+".crossref.xml")
	args = []string{filepath.Base(req.PaperPath), "-o", res.CrossrefPath, "-t", "plain"}
	if tmpl := p.template(req.Venue, "crossref.template"); tmpl != "" {
		args = append(args, "--template", tmpl)
	}
	args = append(args, vars...)
	args = append(args,
		"-V", "doi_batch_id="+strconv.FormatInt(p.now().UnixNano(), 36),
		"-V", "timestamp="+p.now().UTC().Format("20060102150405"),
	)

	if err := p.run(ctx, workDir, args); err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Pandoc) variables(req model.TypesetRequest) []string {
	v := req.Venue
	issue := "XXXX"
	doi := fmt.Sprintf("%s/%s.0XXXX", v.DOIPrefix, v.JournalAlias)
	if req.Issue != 0 {
		issue = fmt.Sprintf("https://github.com/%s/issues/%d", v.Repo, req.Issue)
		doi = model.PaperDOI(v.DOIPrefix, v.JournalAlias, req.Issue)
	}
	return []string{
		"-V", "journal_name=" + v.Name,
		"-V", "formatted_doi=" + doi,
		"-V", "review_issue_url=" + issue,
		"-V", "graphics=true",
	}
}

func (p *Pandoc) template(v model.Venue, name string) string {
	if p.resources == "" || v.JournalAlias == "" {
		return ""
	}
	path := filepath.Join(p.resources, v.JournalAlias, name)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// run executes pandoc and returns its stderr as the error text on failure.
func (p *Pandoc) run(ctx context.Context, dir string, args []string) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.binary, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return errors.New(msg)
	}
	return nil
}
