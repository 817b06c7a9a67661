package web

import (
	"context"
	"io"
	"strings"

	"github.com/a-h/templ"

	vm "github.com/ericfisherdev/reviewbot/internal/adapter/driving/web/viewmodel"
)

var esc = templ.EscapeString[string]

// layout wraps body in the page chrome. Unfinished job pages refresh
// themselves every few seconds.
func layout(title string, refresh bool, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8">`)
		b.WriteString(`<meta name="viewport" content="width=device-width, initial-scale=1">`)
		if refresh {
			b.WriteString(`<meta http-equiv="refresh" content="5">`)
		}
		b.WriteString(`<title>` + esc(title) + `</title>`)
		b.WriteString(`<link rel="stylesheet" href="/static/reviewbot.css"></head><body>`)
		b.WriteString(`<header><a href="/preview">reviewbot</a></header><main>`)
		if _, err := io.WriteString(w, b.String()); err != nil {
			return err
		}

		if err := body.Render(ctx, w); err != nil {
			return err
		}

		_, err := io.WriteString(w, `</main></body></html>`)
		return err
	})
}

func jobPage(v vm.JobViewModel) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<h1>` + esc(v.Title) + ` <span class="` + esc(v.StatusClass) + `">` + esc(v.Status) + `</span></h1>`)
		b.WriteString(`<dl class="meta">`)
		if v.Subject != "" {
			b.WriteString(`<dt>For</dt><dd><a href="` + esc(v.SubjectURL) + `">` + esc(v.Subject) + `</a></dd>`)
		}
		if v.Branch != "" {
			b.WriteString(`<dt>Branch</dt><dd><code>` + esc(v.Branch) + `</code></dd>`)
		}
		b.WriteString(`<dt>Queued</dt><dd><time datetime="` + esc(v.Queued) + `">` + esc(v.Queued) + `</time></dd>`)
		b.WriteString(`<dt>Updated</dt><dd><time datetime="` + esc(v.Updated) + `">` + esc(v.Updated) + `</time></dd>`)
		b.WriteString(`<dt>Elapsed</dt><dd>` + esc(v.Elapsed) + `</dd>`)
		b.WriteString(`</dl>`)

		if v.Finished {
			b.WriteString(`<section class="output">` + v.OutputHTML + `</section>`)
		} else {
			b.WriteString(`<p>This page refreshes until the job finishes.</p>`)
		}

		_, err := io.WriteString(w, b.String())
		return err
	})
}

func previewFormPage(v vm.PreviewFormViewModel) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString(`<h1>Preview your paper</h1>`)
		if v.Error != "" {
			b.WriteString(`<p class="error">` + esc(v.Error) + `</p>`)
		}
		b.WriteString(`<form method="post" action="/preview">`)
		b.WriteString(`<input type="hidden" name="` + csrfFormField + `" value="` + esc(v.CSRFToken) + `">`)
		b.WriteString(`<label for="repository">Repository URL</label>`)
		b.WriteString(`<input id="repository" name="repository" type="url" required placeholder="https://github.com/you/project" value="` + esc(v.Repository) + `">`)
		b.WriteString(`<label for="branch">Branch (optional)</label>`)
		b.WriteString(`<input id="branch" name="branch" type="text" value="` + esc(v.Branch) + `">`)
		if len(v.Journals) > 0 {
			b.WriteString(`<label for="journal">Journal</label><select id="journal" name="journal">`)
			b.WriteString(`<option value="">Default</option>`)
			for _, j := range v.Journals {
				selected := ""
				if j.Selected {
					selected = " selected"
				}
				b.WriteString(`<option value="` + esc(j.Repo) + `"` + selected + `>` + esc(j.Name) + `</option>`)
			}
			b.WriteString(`</select>`)
		}
		b.WriteString(`<button type="submit">Compile</button></form>`)

		_, err := io.WriteString(w, b.String())
		return err
	})
}
