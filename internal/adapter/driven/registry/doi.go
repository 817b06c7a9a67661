// Package registry queries the DOI resolver and the Crossref works API.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.DOIResolver = (*DOIResolver)(nil)
	_ driven.WorksSearch = (*Crossref)(nil)
)

// DefaultDOIBaseURL is the public DOI resolver.
const DefaultDOIBaseURL = "https://doi.org"

// DOIResolver checks identifiers with a HEAD request. Redirects are not
// followed: a registered DOI answers with a redirect to its landing page.
type DOIResolver struct {
	client  *http.Client
	baseURL string
}

// NewDOIResolver creates a resolver against baseURL.
func NewDOIResolver(baseURL string, timeout time.Duration) *DOIResolver {
	return &DOIResolver{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Resolve returns the status code of HEAD {baseURL}/{doi}.
func (r *DOIResolver) Resolve(ctx context.Context, doi string) (int, error) {
	target := r.baseURL + "/" + (&url.URL{Path: doi}).EscapedPath()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return 0, fmt.Errorf("building request for %s: %w", doi, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("resolving %s: %w", doi, err)
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}
