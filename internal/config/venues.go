package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
)

// venueFile is the on-disk layout of the venues file.
type venueFile struct {
	Journals []venueEntry `yaml:"journals"`
}

type venueEntry struct {
	Repo              string   `yaml:"repo"`
	Name              string   `yaml:"name"`
	SiteHost          string   `yaml:"site_host"`
	SiteAPIKey        string   `yaml:"site_api_key"`
	EditorTeam        string   `yaml:"editor_team"`
	EditorTeamID      int64    `yaml:"editor_team_id"`
	OrganizationID    int64    `yaml:"organization_id"`
	Editors           []string `yaml:"editors"`
	EICs              []string `yaml:"eics"`
	EICTeamName       string   `yaml:"eic_team_name"`
	DOIPrefix         string   `yaml:"doi_prefix"`
	JournalAlias      string   `yaml:"journal_alias"`
	PapersRepo        string   `yaml:"papers_repo"`
	ReviewersURL      string   `yaml:"reviewers_url"`
	BuildServiceURL   string   `yaml:"build_service_url"`
	ArchiveServiceURL string   `yaml:"archive_service_url"`
	AnnounceURL       string   `yaml:"announce_url"`
}

// VenueFile returns a loader for the venues file at path, suitable as the
// source of the venue registry. The file is re-read on every call so an admin
// refresh picks up edits.
func VenueFile(path string) func(ctx context.Context) ([]model.Venue, error) {
	return func(_ context.Context) ([]model.Venue, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open venues file: %w", err)
		}
		defer f.Close()

		return ParseVenues(f)
	}
}

// ParseVenues decodes and validates venue definitions. ${VAR} references in
// the file are expanded from the environment so API keys stay out of it.
func ParseVenues(r io.Reader) ([]model.Venue, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read venues: %w", err)
	}

	dec := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(raw))))
	dec.KnownFields(true)

	var file venueFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode venues: %w", err)
	}

	venues := make([]model.Venue, 0, len(file.Journals))
	seen := make(map[string]bool, len(file.Journals))
	for i, e := range file.Journals {
		if err := e.validate(); err != nil {
			return nil, fmt.Errorf("journal %d: %w", i+1, err)
		}
		if seen[e.Repo] {
			return nil, fmt.Errorf("journal %d: duplicate repo %s", i+1, e.Repo)
		}
		seen[e.Repo] = true
		venues = append(venues, e.toModel())
	}

	return venues, nil
}

func (e venueEntry) validate() error {
	owner, name, ok := strings.Cut(e.Repo, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("repo %q must be in owner/name form", e.Repo)
	}
	if e.EditorTeam != "" && e.EditorTeamID != 0 {
		return errors.New("set either editor_team or editor_team_id, not both")
	}
	if e.EditorTeamID != 0 && e.OrganizationID == 0 {
		return errors.New("editor_team_id requires organization_id")
	}
	if e.PapersRepo != "" && !strings.Contains(e.PapersRepo, "/") {
		return fmt.Errorf("papers_repo %q must be in owner/name form", e.PapersRepo)
	}
	return nil
}

func (e venueEntry) toModel() model.Venue {
	name := e.Name
	if name == "" {
		name = e.Repo
	}
	return model.Venue{
		Repo:              e.Repo,
		Name:              name,
		SiteHost:          strings.TrimRight(e.SiteHost, "/"),
		SiteAPIKey:        e.SiteAPIKey,
		EditorTeam:        e.EditorTeam,
		EditorTeamID:      e.EditorTeamID,
		OrganizationID:    e.OrganizationID,
		Editors:           e.Editors,
		EICs:              e.EICs,
		EICTeamName:       e.EICTeamName,
		DOIPrefix:         e.DOIPrefix,
		JournalAlias:      e.JournalAlias,
		PapersRepo:        e.PapersRepo,
		ReviewersURL:      e.ReviewersURL,
		BuildServiceURL:   strings.TrimRight(e.BuildServiceURL, "/"),
		ArchiveServiceURL: strings.TrimRight(e.ArchiveServiceURL, "/"),
		AnnounceURL:       e.AnnounceURL,
	}
}
