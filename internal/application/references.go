package application

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// maxTitleDistance is the exclusive edit distance bound for accepting a
// search result as a DOI candidate.
const maxTitleDistance = 3

// ReferenceValidator classifies bibliography entries by resolving their DOIs
// and suggesting DOIs for entries that lack one.
type ReferenceValidator struct {
	resolver driven.DOIResolver
	search   driven.WorksSearch
	logger   *slog.Logger
}

// NewReferenceValidator creates a ReferenceValidator.
func NewReferenceValidator(resolver driven.DOIResolver, search driven.WorksSearch, logger *slog.Logger) *ReferenceValidator {
	return &ReferenceValidator{resolver: resolver, search: search, logger: logger}
}

// Validate checks every entry in order. It never fails: network errors count
// as INVALID for DOIs and as "no candidate" for title searches.
func (v *ReferenceValidator) Validate(ctx context.Context, entries []model.BibEntry) model.ReferenceReport {
	report := model.ReferenceReport{OK: []string{}, Missing: []string{}, Invalid: []string{}}

	for _, entry := range entries {
		switch {
		case entry.DOI != "":
			if ok, msg := v.checkDOI(ctx, entry.DOI); ok {
				report.OK = append(report.OK, msg)
			} else {
				report.Invalid = append(report.Invalid, msg)
			}
		case entry.Title != "":
			if candidate, found := v.lookupTitle(ctx, entry.Title); found {
				report.Missing = append(report.Missing,
					fmt.Sprintf("%s may be a valid DOI for title: %s", candidate, entry.Title))
			}
		}
	}

	return report
}

func (v *ReferenceValidator) checkDOI(ctx context.Context, doi string) (bool, string) {
	if strings.Contains(doi, "http") {
		if strings.Contains(doi, "doi.org/") {
			return false, fmt.Sprintf("%s is INVALID because of 'https://doi.org/' prefix", doi)
		}
		return false, fmt.Sprintf("%s is INVALID", doi)
	}

	status, err := v.resolver.Resolve(ctx, doi)
	if err != nil {
		v.logger.Debug("doi resolution failed", "doi", doi, "error", err)
		return false, fmt.Sprintf("%s is INVALID", doi)
	}

	if status == http.StatusMovedPermanently || status == http.StatusFound {
		return true, fmt.Sprintf("%s is OK", doi)
	}
	return false, fmt.Sprintf("%s is INVALID", doi)
}

func (v *ReferenceValidator) lookupTitle(ctx context.Context, title string) (string, bool) {
	works, err := v.search.SearchWorks(ctx, title)
	if err != nil {
		v.logger.Debug("works search failed", "title", title, "error", err)
		return "", false
	}
	if len(works) == 0 {
		return "", false
	}

	first := works[0]
	if first.DOI == "" || first.Title == "" {
		return "", false
	}

	if Levenshtein(strings.ToLower(first.Title), strings.ToLower(title)) < maxTitleDistance {
		return first.DOI, true
	}
	return "", false
}

// Levenshtein returns the edit distance between a and b with unit insert,
// delete and substitute costs, compared rune by rune.
func Levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	m, n := len(ra), len(rb)

	d := make([][]int, m+1)
	for i := range d {
		d[i] = make([]int, n+1)
		d[i][0] = i
	}
	for j := 0; j <= n; j++ {
		d[0][j] = j
	}

	for i := 1; i <= m; i++ {
		for j := 1; j <= n; j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			d[i][j] = min(
				d[i-1][j]+1,
				d[i][j-1]+1,
				d[i-1][j-1]+cost,
			)
		}
	}

	return d[m][n]
}
