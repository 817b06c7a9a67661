// Package services calls the external book build and software archive services.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.BuildService   = (*BookBuilder)(nil)
	_ driven.ArchiveService = (*Archiver)(nil)
)

// client is a JSON client authenticated with a shared bearer token.
type client struct {
	http  *http.Client
	token string
}

func (c client) do(ctx context.Context, method, target string, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// BookBuilder requests notebook book builds.
type BookBuilder struct {
	client client
}

// NewBookBuilder creates a BookBuilder. Builds run synchronously on the
// service side, so timeout should allow several minutes.
func NewBookBuilder(token string, timeout time.Duration) *BookBuilder {
	return &BookBuilder{client: client{http: &http.Client{Timeout: timeout}, token: token}}
}

type book struct {
	BookURL   string    `json:"book_url"`
	TimeAdded time.Time `json:"time_added"`
}

// Build posts {repo_url, commit_hash}. A 409 means the commit was built
// before; the newest existing build is looked up and returned instead.
func (b *BookBuilder) Build(ctx context.Context, venue model.Venue, repoURL, commit string) (*model.BuildResult, error) {
	if venue.BuildServiceURL == "" {
		return nil, fmt.Errorf("venue %s has no build service", venue.Repo)
	}
	endpoint := strings.TrimSuffix(venue.BuildServiceURL, "/") + "/api/v1/resources/books"

	var built book
	status, err := b.client.do(ctx, http.MethodPost, endpoint, map[string]string{
		"repo_url":    repoURL,
		"commit_hash": commit,
	}, &built)
	if err != nil {
		return nil, fmt.Errorf("requesting book build: %w", err)
	}

	switch status {
	case http.StatusOK, http.StatusCreated:
		return &model.BuildResult{BookURL: built.BookURL}, nil
	case http.StatusConflict:
		existing, err := b.latest(ctx, endpoint, commit)
		if err != nil {
			return nil, err
		}
		return &model.BuildResult{BookURL: existing, Existing: true}, nil
	default:
		return nil, fmt.Errorf("requesting book build: unexpected status %d", status)
	}
}

func (b *BookBuilder) latest(ctx context.Context, endpoint, commit string) (string, error) {
	var books []book
	status, err := b.client.do(ctx, http.MethodGet, endpoint+"?commit_hash="+commit, nil, &books)
	if err != nil {
		return "", fmt.Errorf("looking up existing build: %w", err)
	}
	if status != http.StatusOK || len(books) == 0 {
		return "", fmt.Errorf("looking up existing build of %s: %w", commit, driven.ErrNotFound)
	}

	newest := books[0]
	for _, bk := range books[1:] {
		if bk.TimeAdded.After(newest.TimeAdded) {
			newest = bk
		}
	}
	return newest.BookURL, nil
}

// Archiver deposits software releases with the archive service.
type Archiver struct {
	client client
}

// NewArchiver creates an Archiver.
func NewArchiver(token string, timeout time.Duration) *Archiver {
	return &Archiver{client: client{http: &http.Client{Timeout: timeout}, token: token}}
}

// Archive posts {repository_url, version} and returns the minted DOI.
func (a *Archiver) Archive(ctx context.Context, venue model.Venue, repoURL, version string) (string, error) {
	if venue.ArchiveServiceURL == "" {
		return "", fmt.Errorf("venue %s has no archive service", venue.Repo)
	}
	endpoint := strings.TrimSuffix(venue.ArchiveServiceURL, "/") + "/api/v1/archives"

	var deposit struct {
		DOI string `json:"doi"`
	}
	status, err := a.client.do(ctx, http.MethodPost, endpoint, map[string]string{
		"repository_url": repoURL,
		"version":        version,
	}, &deposit)
	if err != nil {
		return "", fmt.Errorf("archiving %s: %w", repoURL, err)
	}

	switch {
	case status == http.StatusNotFound:
		return "", fmt.Errorf("archiving %s %s: %w", repoURL, version, driven.ErrNotFound)
	case status == http.StatusConflict:
		return "", fmt.Errorf("archiving %s %s: %w", repoURL, version, driven.ErrInProgress)
	case status < 200 || status > 299:
		return "", fmt.Errorf("archiving %s: unexpected status %d", repoURL, status)
	case deposit.DOI == "":
		return "", fmt.Errorf("archiving %s: response has no doi", repoURL)
	}
	return deposit.DOI, nil
}
