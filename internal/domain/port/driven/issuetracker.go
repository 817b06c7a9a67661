package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/reviewbot/internal/domain/model"
)

var (
	// ErrNotFound is returned when the requested remote object does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when a create races with an earlier create.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotMergeable is returned when a merge is refused, typically because
	// the base branch moved since the pull request was opened.
	ErrNotMergeable = errors.New("pull request not mergeable")
)

// IssueTracker defines the driven port for submission threads on the hosting API.
// Every user-visible result of the bot is delivered through CreateComment.
type IssueTracker interface {
	GetIssue(ctx context.Context, repo string, number int) (*model.Issue, error)
	UpdateIssue(ctx context.Context, repo string, number int, update model.IssueUpdate) error
	CreateComment(ctx context.Context, repo string, number int, body string) error
	AddLabels(ctx context.Context, repo string, number int, labels ...string) error
	RemoveLabel(ctx context.Context, repo string, number int, label string) error
	CloseIssue(ctx context.Context, repo string, number int) error

	// Collaborator management backs reviewer re-invitations.

	IsCollaborator(ctx context.Context, repo, handle string) (bool, error)
	HasPendingInvitation(ctx context.Context, repo, handle string) (bool, error)
	AddCollaborator(ctx context.Context, repo, handle string) error
}

// TeamDirectory resolves editor team membership.
type TeamDirectory interface {
	// ListTeamMembers lists members of a team addressed by "org/slug".
	ListTeamMembers(ctx context.Context, team string) ([]string, error)
	// ListTeamMembersByID lists members of a team addressed by numeric ids.
	ListTeamMembersByID(ctx context.Context, orgID, teamID int64) ([]string, error)
}
