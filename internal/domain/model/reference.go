package model

import (
	"fmt"
	"strings"
)

// BibEntry is one bibliography record. DOI and Title may be empty.
type BibEntry struct {
	Key   string
	DOI   string
	Title string
}

// Work is a bibliographic search result.
type Work struct {
	DOI   string
	Title string
}

// ReferenceReport groups human-readable reference findings into buckets.
type ReferenceReport struct {
	OK      []string
	Missing []string
	Invalid []string
}

// Markdown renders the report as a single fenced block.
func (r ReferenceReport) Markdown() string {
	var b strings.Builder
	b.WriteString("```\nReference check summary (note 'MISSING' DOIs are suggestions that need verification):\n")

	writeBucket := func(kind string, msgs []string) {
		fmt.Fprintf(&b, "\n%s DOIs\n\n", kind)
		if len(msgs) == 0 {
			b.WriteString("- None\n")
			return
		}
		for _, m := range msgs {
			fmt.Fprintf(&b, "- %s\n", m)
		}
	}

	writeBucket("OK", r.OK)
	writeBucket("MISSING", r.Missing)
	writeBucket("INVALID", r.Invalid)
	b.WriteString("```")

	return b.String()
}

// IssueKey is a stable identifier for a submission thread.
func IssueKey(repo string, issue int) string {
	return fmt.Sprintf("%s#%d", repo, issue)
}
