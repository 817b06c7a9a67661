// Package analysis detects the languages and license of a working copy.
package analysis

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-enry/go-enry/v2"
	"github.com/google/licensecheck"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SourceAnalyzer = (*Analyzer)(nil)

const (
	// sniffBytes is how much of each file is read for content-based detection.
	sniffBytes   = 16 << 10
	maxLanguages = 3
	// minLicenseCoverage is the share of a license file that must match a
	// known license text.
	minLicenseCoverage = 75.0
)

// Analyzer uses enry for languages and licensecheck for licenses.
type Analyzer struct{}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze walks dir and reports the three most used programming languages by
// bytes and the SPDX identifier of the top-level license file.
func (a *Analyzer) Analyze(ctx context.Context, dir string) (*model.SourceReport, error) {
	sizes := map[string]int64{}
	files := 0

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, _ := filepath.Rel(dir, path)
		if d.IsDir() {
			if path != dir && (enry.IsDotFile(rel) || enry.IsVendor(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || enry.IsVendor(rel) || enry.IsDotFile(rel) ||
			enry.IsDocumentation(rel) || enry.IsConfiguration(rel) || enry.IsImage(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		files++

		content, err := sniff(path)
		if err != nil {
			return err
		}
		if enry.IsBinary(content) {
			return nil
		}

		lang := enry.GetLanguage(filepath.Base(path), content)
		if lang == "" || enry.GetLanguageType(lang) != enry.Programming {
			return nil
		}
		sizes[lang] += info.Size()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}

	license, err := detectLicense(dir)
	if err != nil {
		return nil, err
	}

	return &model.SourceReport{
		Languages: topLanguages(sizes, maxLanguages),
		License:   license,
		Files:     files,
	}, nil
}

func sniff(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, sniffBytes))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return content, nil
}

// topLanguages orders languages by size, then name, and keeps the first n.
func topLanguages(sizes map[string]int64, n int) []string {
	langs := make([]string, 0, len(sizes))
	for l := range sizes {
		langs = append(langs, l)
	}
	sort.Slice(langs, func(i, j int) bool {
		if sizes[langs[i]] != sizes[langs[j]] {
			return sizes[langs[i]] > sizes[langs[j]]
		}
		return langs[i] < langs[j]
	})
	if len(langs) > n {
		langs = langs[:n]
	}
	return langs
}

// detectLicense scans LICENSE/COPYING files in the top-level directory.
func detectLicense(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("listing %s: %w", dir, err)
	}

	for _, e := range entries {
		if e.IsDir() || !isLicenseFile(e.Name()) {
			continue
		}

		text, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", e.Name(), err)
		}

		cov := licensecheck.Scan(text)
		if cov.Percent < minLicenseCoverage || len(cov.Match) == 0 {
			continue
		}
		return cov.Match[0].ID, nil
	}
	return "", nil
}

func isLicenseFile(name string) bool {
	upper := strings.ToUpper(name)
	return strings.HasPrefix(upper, "LICENSE") || strings.HasPrefix(upper, "LICENCE") || strings.HasPrefix(upper, "COPYING")
}
