package web

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var (
	mdRenderer    goldmark.Markdown
	htmlSanitizer *bluemonday.Policy
)

func init() {
	mdRenderer = goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithRendererOptions(html.WithUnsafe()),
	)

	htmlSanitizer = bluemonday.UGCPolicy()
}

// RenderMarkdown converts a markdown string to sanitized HTML.
// Returns empty string for empty input.
func RenderMarkdown(src string) string {
	if src == "" {
		return ""
	}

	var buf bytes.Buffer
	if err := mdRenderer.Convert([]byte(src), &buf); err != nil {
		return htmlSanitizer.Sanitize(src)
	}

	return htmlSanitizer.Sanitize(buf.String())
}

// RenderJobOutput renders what a job left behind. A failure message is shown
// verbatim as a code block; otherwise the report is rendered as Markdown.
func RenderJobOutput(report, failure string) string {
	if failure == "" {
		return RenderMarkdown(report)
	}

	fence := "```"
	for strings.Contains(failure, fence) {
		fence += "`"
	}
	return RenderMarkdown(fence + "\n" + strings.TrimRight(failure, "\n") + "\n" + fence)
}
