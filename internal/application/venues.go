package application

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// VenueSource loads the raw venue definitions, for example from a YAML file.
type VenueSource func(ctx context.Context) ([]model.Venue, error)

// VenueRegistry holds an immutable snapshot of venue configuration keyed by
// repository NWO. Editor team membership is resolved when a snapshot is built
// and never re-read lazily; Refresh builds and swaps a whole new snapshot.
type VenueRegistry struct {
	mu     sync.RWMutex
	venues map[string]model.Venue

	source VenueSource
	teams  driven.TeamDirectory
	logger *slog.Logger
}

// NewVenueRegistry creates an empty registry. Call Refresh before use.
func NewVenueRegistry(source VenueSource, teams driven.TeamDirectory, logger *slog.Logger) *VenueRegistry {
	return &VenueRegistry{
		venues: map[string]model.Venue{},
		source: source,
		teams:  teams,
		logger: logger,
	}
}

// Lookup returns the venue configured for repo.
func (r *VenueRegistry) Lookup(repo string) (model.Venue, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.venues[repo]
	return v, ok
}

// Len returns the number of venues in the current snapshot.
func (r *VenueRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.venues)
}

// List returns the venues of the current snapshot ordered by name.
func (r *VenueRegistry) List() []model.Venue {
	r.mu.RLock()
	out := make([]model.Venue, 0, len(r.venues))
	for _, v := range r.venues {
		out = append(out, v)
	}
	r.mu.RUnlock()

	slices.SortFunc(out, func(a, b model.Venue) int { return strings.Compare(a.Name, b.Name) })
	return out
}

// Refresh reloads venue definitions and editor teams. On error the previous
// snapshot stays in place.
func (r *VenueRegistry) Refresh(ctx context.Context) error {
	defs, err := r.source(ctx)
	if err != nil {
		return fmt.Errorf("loading venues: %w", err)
	}

	next := make(map[string]model.Venue, len(defs))
	for _, v := range defs {
		editors, err := r.resolveEditors(ctx, v)
		if err != nil {
			return fmt.Errorf("resolving editors for %s: %w", v.Repo, err)
		}
		v.Editors = editors
		next[v.Repo] = v
	}

	r.mu.Lock()
	r.venues = next
	r.mu.Unlock()

	r.logger.Info("venue snapshot built", "venues", len(next))
	return nil
}

// resolveEditors merges statically configured editors with team membership.
func (r *VenueRegistry) resolveEditors(ctx context.Context, v model.Venue) ([]string, error) {
	seen := make(map[string]bool)
	var editors []string
	add := func(handles []string) {
		for _, h := range handles {
			if !seen[h] {
				seen[h] = true
				editors = append(editors, h)
			}
		}
	}

	add(v.Editors)

	switch {
	case v.EditorTeam != "":
		members, err := r.teams.ListTeamMembers(ctx, v.EditorTeam)
		if err != nil {
			return nil, err
		}
		add(members)
	case v.EditorTeamID != 0:
		members, err := r.teams.ListTeamMembersByID(ctx, v.OrganizationID, v.EditorTeamID)
		if err != nil {
			return nil, err
		}
		add(members)
	}

	if editors == nil {
		editors = []string{}
	}
	return editors, nil
}
