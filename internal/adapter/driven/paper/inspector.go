// Package paper locates submitted papers and reads their bibliographies.
package paper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nickng/bibtex"
	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.PaperInspector = (*Inspector)(nil)

// candidates are the paper file names in order of preference.
var candidates = []struct {
	name   string
	format model.PaperFormat
}{
	{"paper.md", model.PaperMarkdown},
	{"paper.tex", model.PaperLaTeX},
}

// skipDirs are never searched for papers.
var skipDirs = map[string]bool{".git": true, "node_modules": true, "vendor": true}

// Inspector reads papers from a working copy.
type Inspector struct{}

// NewInspector creates an Inspector.
func NewInspector() *Inspector {
	return &Inspector{}
}

// metadata is the subset of the paper's YAML metadata the bot reads.
type metadata struct {
	Bibliography string `yaml:"bibliography"`
}

// Locate finds the shallowest paper.md (preferred) or paper.tex under dir.
func (i *Inspector) Locate(_ context.Context, dir string) (*model.Paper, error) {
	path, format, err := find(dir)
	if err != nil {
		return nil, err
	}

	text, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading paper: %w", err)
	}

	meta, err := readMetadata(path, format, text)
	if err != nil {
		return nil, err
	}

	return &model.Paper{
		Path:             path,
		Format:           format,
		BibliographyPath: meta.Bibliography,
		Text:             string(text),
	}, nil
}

func find(root string) (string, model.PaperFormat, error) {
	var (
		best       string
		bestFormat model.PaperFormat
		bestDepth  = -1
		bestRank   int
	)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}

		for rank, c := range candidates {
			if d.Name() != c.name {
				continue
			}
			rel, _ := filepath.Rel(root, path)
			depth := strings.Count(rel, string(filepath.Separator))
			if bestDepth == -1 || depth < bestDepth || (depth == bestDepth && rank < bestRank) {
				best, bestFormat, bestDepth, bestRank = path, c.format, depth, rank
			}
		}
		return nil
	})
	if err != nil {
		return "", "", fmt.Errorf("searching for paper: %w", err)
	}

	if best == "" {
		return "", "", fmt.Errorf("paper in %s: %w", root, driven.ErrNotFound)
	}
	return best, bestFormat, nil
}

// readMetadata reads the YAML front matter of a Markdown paper, or the
// paper.yml next to a LaTeX paper.
func readMetadata(path string, format model.PaperFormat, text []byte) (metadata, error) {
	var meta metadata

	var raw []byte
	switch format {
	case model.PaperMarkdown:
		raw = frontMatter(text)
	case model.PaperLaTeX:
		b, err := os.ReadFile(filepath.Join(filepath.Dir(path), "paper.yml"))
		if errors.Is(err, fs.ErrNotExist) {
			return meta, nil
		}
		if err != nil {
			return meta, fmt.Errorf("reading paper.yml: %w", err)
		}
		raw = b
	}

	if len(raw) == 0 {
		return meta, nil
	}
	if err := yaml.Unmarshal(raw, &meta); err != nil {
		return meta, fmt.Errorf("parsing paper metadata: %w", err)
	}
	return meta, nil
}

// frontMatter returns the YAML block between the leading "---" lines, or nil.
func frontMatter(text []byte) []byte {
	text = bytes.TrimPrefix(text, []byte("\ufeff"))
	lines := bytes.SplitAfter(text, []byte("\n"))
	if len(lines) == 0 || strings.TrimSpace(string(lines[0])) != "---" {
		return nil
	}

	var block []byte
	for _, line := range lines[1:] {
		switch strings.TrimSpace(string(line)) {
		case "---", "...":
			return block
		}
		block = append(block, line...)
	}
	return nil
}

// ParseBibliography parses a BibTeX database. Only the doi and title fields are kept.
func (i *Inspector) ParseBibliography(r io.Reader) ([]model.BibEntry, error) {
	db, err := bibtex.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing BibTeX: %w", err)
	}

	entries := make([]model.BibEntry, 0, len(db.Entries))
	for _, e := range db.Entries {
		entry := model.BibEntry{Key: e.CiteName}
		for name, value := range e.Fields {
			switch strings.ToLower(name) {
			case "doi":
				entry.DOI = clean(value.String())
			case "title":
				entry.Title = clean(value.String())
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

var braces = strings.NewReplacer("{", "", "}", "")

func clean(s string) string {
	return strings.TrimSpace(braces.Replace(s))
}
