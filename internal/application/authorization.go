package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// ErrForbidden is returned when the actor lacks the role a command requires.
// The denial has already been posted to the thread when it is returned.
var ErrForbidden = errors.New("forbidden")

// Role is an editorial permission level.
type Role string

const (
	RoleEditor        Role = "editor"
	RoleEditorInChief Role = "editor_in_chief"
)

// AuthorizationGate checks roles and reports denials to the submission thread.
type AuthorizationGate struct {
	tracker driven.IssueTracker
}

// NewAuthorizationGate creates an AuthorizationGate.
func NewAuthorizationGate(tracker driven.IssueTracker) *AuthorizationGate {
	return &AuthorizationGate{tracker: tracker}
}

// RequireRole returns nil when actor holds role in venue. Otherwise it posts
// a denial comment and returns ErrForbidden. Handles are compared exactly.
func (g *AuthorizationGate) RequireRole(ctx context.Context, repo string, issue int, actor string, role Role, venue model.Venue) error {
	var allowed bool
	var who string
	switch role {
	case RoleEditor:
		allowed, who = venue.IsEditor(actor), "editors"
	case RoleEditorInChief:
		allowed, who = venue.IsEIC(actor), "editor-in-chiefs"
	default:
		return fmt.Errorf("unknown role %q", role)
	}

	if allowed {
		return nil
	}

	msg := fmt.Sprintf("I'm sorry @%s, I'm afraid I can't do that. That's something only %s are allowed to do.", actor, who)
	if err := g.tracker.CreateComment(ctx, repo, issue, msg); err != nil {
		return fmt.Errorf("posting denial: %w", errors.Join(ErrForbidden, err))
	}
	return ErrForbidden
}
