package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrFieldMissing is returned when a field's label line does not appear in the
// issue body at all, meaning the submission template was never applied.
var ErrFieldMissing = errors.New("field missing from issue body")

// ErrReadOnlyField is returned when writing a field the bot never mutates.
var ErrReadOnlyField = errors.New("field is read-only")

// Field identifies one bold-labeled line in a submission issue body.
type Field string

const (
	FieldEditor           Field = "Editor"
	FieldReviewers        Field = "Reviewers"
	FieldArchive          Field = "Archive"
	FieldVersion          Field = "Version"
	FieldRepository       Field = "Repository"
	FieldSubmittingAuthor Field = "Submitting author"
	FieldBranch           Field = "Branch with paper.md"
)

// pendingToken marks a field that is present in the template but unassigned.
const pendingToken = "Pending"

// fieldLabels lists the accepted label spellings for each field, most specific first.
var fieldLabels = map[Field][]string{
	FieldEditor:           {"Editor"},
	FieldReviewers:        {"Reviewers", "Reviewer"},
	FieldArchive:          {"Archive"},
	FieldVersion:          {"Version"},
	FieldRepository:       {"Repository"},
	FieldSubmittingAuthor: {"Submitting author"},
	FieldBranch:           {"Branch with paper.md"},
}

var writableFields = map[Field]bool{
	FieldEditor:    true,
	FieldReviewers: true,
	FieldArchive:   true,
	FieldVersion:   true,
}

var archiveLinkPattern = regexp.MustCompile(`^<a href="https?://doi\.org/([^"]+)"[^>]*>.*</a>$`)

// FieldValue is the result of reading a field from an issue body.
// Present is false when the label line is absent. Pending is true when the
// line exists but carries no assignment yet.
type FieldValue struct {
	Present bool
	Pending bool
	Value   string
}

// Assigned reports whether the field is present and holds a non-pending value.
func (v FieldValue) Assigned() bool {
	return v.Present && !v.Pending
}

type bodyLine struct {
	text string
	eol  string
}

type fieldLine struct {
	index  int
	prefix string // leading whitespace plus the label exactly as written
}

// IssueBody is a parsed submission issue body. Mutations touch only the line
// of the affected field; every other byte, including line terminators, is
// re-rendered unchanged by String.
type IssueBody struct {
	lines  []bodyLine
	fields map[Field]fieldLine
}

// ParseIssueBody splits body into lines and indexes the first occurrence of
// every known field label.
func ParseIssueBody(body string) *IssueBody {
	ib := &IssueBody{fields: make(map[Field]fieldLine)}

	rest := body
	for len(rest) > 0 {
		idx := strings.IndexByte(rest, '\n')
		if idx < 0 {
			ib.lines = append(ib.lines, bodyLine{text: rest})
			break
		}

		text, eol := rest[:idx], "\n"
		if strings.HasSuffix(text, "\r") {
			text, eol = text[:len(text)-1], "\r\n"
		}
		ib.lines = append(ib.lines, bodyLine{text: text, eol: eol})
		rest = rest[idx+1:]
	}

	for i, line := range ib.lines {
		field, prefix, ok := matchFieldLabel(line.text)
		if !ok {
			continue
		}
		if _, seen := ib.fields[field]; seen {
			continue
		}
		ib.fields[field] = fieldLine{index: i, prefix: prefix}
	}

	return ib
}

func matchFieldLabel(text string) (Field, string, bool) {
	trimmed := strings.TrimLeft(text, " \t")
	indent := text[:len(text)-len(trimmed)]
	lower := strings.ToLower(trimmed)

	for field, labels := range fieldLabels {
		for _, label := range labels {
			marker := "**" + strings.ToLower(label) + ":**"
			if strings.HasPrefix(lower, marker) {
				return field, indent + trimmed[:len(marker)], true
			}
		}
	}
	return "", "", false
}

// Get reads a field. Archive values rendered as DOI links are returned as the bare DOI.
func (ib *IssueBody) Get(field Field) FieldValue {
	fl, ok := ib.fields[field]
	if !ok {
		return FieldValue{}
	}

	raw := strings.TrimSpace(strings.TrimPrefix(ib.lines[fl.index].text, fl.prefix))
	if raw == "" || strings.EqualFold(raw, pendingToken) {
		return FieldValue{Present: true, Pending: true}
	}

	if field == FieldArchive {
		if m := archiveLinkPattern.FindStringSubmatch(raw); m != nil {
			raw = m[1]
		}
	}

	return FieldValue{Present: true, Value: raw}
}

// Set replaces the value of a writable field. An empty value renders as Pending.
// The line keeps its original label spelling, indentation and terminator.
func (ib *IssueBody) Set(field Field, value string) error {
	if !writableFields[field] {
		return fmt.Errorf("set %s: %w", field, ErrReadOnlyField)
	}

	fl, ok := ib.fields[field]
	if !ok {
		return fmt.Errorf("set %s: %w", field, ErrFieldMissing)
	}

	value = sanitizeFieldValue(value)

	rendered := value
	switch {
	case value == "":
		rendered = pendingToken
	case field == FieldArchive:
		rendered = fmt.Sprintf(`<a href="https://doi.org/%s" target="_blank">%s</a>`, value, value)
	}

	ib.lines[fl.index].text = fl.prefix + " " + rendered
	return nil
}

// Has reports whether the field's label line is present.
func (ib *IssueBody) Has(field Field) bool {
	_, ok := ib.fields[field]
	return ok
}

// Contains reports whether s occurs anywhere in the body text.
func (ib *IssueBody) Contains(s string) bool {
	return strings.Contains(ib.String(), s)
}

// String renders the body back to text.
func (ib *IssueBody) String() string {
	var b strings.Builder
	for _, line := range ib.lines {
		b.WriteString(line.text)
		b.WriteString(line.eol)
	}
	return b.String()
}

// ReadField parses body and reads a single field.
func ReadField(body string, field Field) FieldValue {
	return ParseIssueBody(body).Get(field)
}

// WriteField parses body, replaces a single field and re-renders it.
// On error the original body is returned unchanged.
func WriteField(body string, field Field, value string) (string, error) {
	ib := ParseIssueBody(body)
	if err := ib.Set(field, value); err != nil {
		return body, err
	}
	return ib.String(), nil
}

func sanitizeFieldValue(v string) string {
	v = strings.NewReplacer("\r\n", " ", "\r", " ", "\n", " ").Replace(v)
	return strings.TrimSpace(v)
}

// ParseHandles splits a comma-separated reviewer value into handles.
// A pending or empty value yields an empty slice.
func ParseHandles(v FieldValue) []string {
	handles := []string{}
	if !v.Assigned() {
		return handles
	}
	for _, h := range strings.Split(v.Value, ",") {
		h = strings.TrimSpace(h)
		if h != "" {
			handles = append(handles, h)
		}
	}
	return handles
}

// FormatHandles joins handles into a reviewer field value.
func FormatHandles(handles []string) string {
	return strings.Join(handles, ", ")
}
