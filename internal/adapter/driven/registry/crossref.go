package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
)

// DefaultCrossrefBaseURL is the public Crossref REST API.
const DefaultCrossrefBaseURL = "https://api.crossref.org"

// Crossref searches the Crossref works index.
type Crossref struct {
	client  *http.Client
	baseURL string
	mailto  string
}

// NewCrossref creates a Crossref client. mailto, when set, is sent so that
// requests are routed to the polite pool.
func NewCrossref(baseURL, mailto string, timeout time.Duration) *Crossref {
	return &Crossref{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		mailto:  mailto,
	}
}

type worksResponse struct {
	Message struct {
		Items []struct {
			DOI   string   `json:"DOI"`
			Title []string `json:"title"`
		} `json:"items"`
	} `json:"message"`
}

// SearchWorks returns the best matches for query, best first. Items without
// a title are skipped.
func (c *Crossref) SearchWorks(ctx context.Context, query string) ([]model.Work, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("rows", "5")
	if c.mailto != "" {
		params.Set("mailto", c.mailto)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/works?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building works query: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("querying works: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("querying works: unexpected status %d", resp.StatusCode)
	}

	var body worksResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding works response: %w", err)
	}

	works := make([]model.Work, 0, len(body.Message.Items))
	for _, item := range body.Message.Items {
		if item.DOI == "" || len(item.Title) == 0 {
			continue
		}
		works = append(works, model.Work{DOI: item.DOI, Title: item.Title[0]})
	}
	return works, nil
}
