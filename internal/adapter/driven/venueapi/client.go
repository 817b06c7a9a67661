// Package venueapi calls the editorial API of a journal website.
package venueapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.VenueAPI = (*Client)(nil)

// Client posts editorial actions to {site_host}/papers/api_*. Every call
// authenticates with the venue's site API key.
type Client struct {
	http *http.Client
}

// NewClient creates a Client whose requests time out after timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// StartReview asks the site to open the REVIEW issue and returns its number.
func (c *Client) StartReview(ctx context.Context, venue model.Venue, issue int, editor string, reviewers []string) (int, error) {
	params := url.Values{}
	params.Set("editor", strings.TrimPrefix(editor, "@"))
	logins := make([]string, len(reviewers))
	for i, r := range reviewers {
		logins[i] = strings.TrimPrefix(r, "@")
	}
	params.Set("reviewers", strings.Join(logins, ","))

	body, err := c.post(ctx, venue, "api_start_review", issue, params, nil, "")
	if err != nil {
		return 0, err
	}

	var paper struct {
		ReviewIssueID int `json:"review_issue_id"`
	}
	if err := json.Unmarshal(body, &paper); err != nil {
		return 0, fmt.Errorf("decoding start review response: %w", err)
	}
	if paper.ReviewIssueID == 0 {
		return 0, fmt.Errorf("start review response has no review_issue_id")
	}
	return paper.ReviewIssueID, nil
}

// AssignEditor records the handling editor on the site.
func (c *Client) AssignEditor(ctx context.Context, venue model.Venue, issue int, editor string) error {
	params := url.Values{"editor": {strings.TrimPrefix(editor, "@")}}
	_, err := c.post(ctx, venue, "api_assign_editor", issue, params, nil, "")
	return err
}

// InviteEditor emails an editor an invitation to handle the submission.
func (c *Client) InviteEditor(ctx context.Context, venue model.Venue, issue int, editor string) error {
	params := url.Values{"editor": {strings.TrimPrefix(editor, "@")}}
	_, err := c.post(ctx, venue, "api_editor_invite", issue, params, nil, "")
	return err
}

// Reject marks the submission rejected on the site.
func (c *Client) Reject(ctx context.Context, venue model.Venue, issue int) error {
	_, err := c.post(ctx, venue, "api_reject", issue, nil, nil, "")
	return err
}

// Withdraw marks the submission withdrawn on the site.
func (c *Client) Withdraw(ctx context.Context, venue model.Venue, issue int) error {
	_, err := c.post(ctx, venue, "api_withdraw", issue, nil, nil, "")
	return err
}

// Deposit sends the final Crossref metadata and marks the paper accepted.
func (c *Client) Deposit(ctx context.Context, venue model.Venue, issue int, doi, archiveDOI string, crossrefXML []byte) error {
	params := url.Values{}
	params.Set("doi", doi)
	params.Set("archive_doi", archiveDOI)
	_, err := c.post(ctx, venue, "api_deposit", issue, params, crossrefXML, "application/xml")
	return err
}

// Announce posts a publication notice to the venue's announce hook.
func (c *Client) Announce(ctx context.Context, venue model.Venue, text string) error {
	if venue.AnnounceURL == "" {
		return nil
	}

	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("encoding announcement: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, venue.AnnounceURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building announce request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	_, err = c.do(req, "announce")
	return err
}

func (c *Client) post(ctx context.Context, venue model.Venue, action string, issue int, params url.Values, body []byte, contentType string) ([]byte, error) {
	if venue.SiteHost == "" {
		return nil, fmt.Errorf("%s: venue %s has no site host", action, venue.Repo)
	}
	if params == nil {
		params = url.Values{}
	}
	params.Set("id", strconv.Itoa(issue))
	params.Set("secret", venue.SiteAPIKey)

	target := strings.TrimSuffix(venue.SiteHost, "/") + "/papers/" + action + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", action, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return c.do(req, action)
}

// do sends req and treats any 2xx status as success.
func (c *Client) do(req *http.Request, action string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", action, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: unexpected status %d", action, resp.StatusCode)
	}
	return body, nil
}
