package github_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ghAdapter "github.com/ericfisherdev/reviewbot/internal/adapter/driven/github"
	"github.com/ericfisherdev/reviewbot/internal/domain/model"
	"github.com/ericfisherdev/reviewbot/internal/domain/port/driven"
)

// newTestClient creates a Client backed by the given httptest handler.
func newTestClient(t *testing.T, handler http.Handler) *ghAdapter.Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := ghAdapter.NewClientWithHTTPClient(server.Client(), server.URL+"/")
	require.NoError(t, err)

	return client
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func TestGetIssue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/openjournals/joss-reviews/issues/42", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"number":     42,
			"title":      "[PRE REVIEW]: Fancy",
			"body":       "**Editor:** Pending",
			"state":      "open",
			"labels":     []map[string]any{{"name": "pre-review"}},
			"assignees":  []map[string]any{{"login": "editor1"}},
			"updated_at": "2026-03-02T12:00:00Z",
		})
	})

	client := newTestClient(t, mux)

	issue, err := client.GetIssue(context.Background(), "openjournals/joss-reviews", 42)
	require.NoError(t, err)
	assert.Equal(t, "openjournals/joss-reviews", issue.Repo)
	assert.Equal(t, 42, issue.Number)
	assert.Equal(t, "**Editor:** Pending", issue.Body)
	assert.Equal(t, []string{"pre-review"}, issue.Labels)
	assert.Equal(t, []string{"editor1"}, issue.Assignees)
	assert.Equal(t, 2026, issue.UpdatedAt.Year())
}

func TestGetIssue_NotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/o/r/issues/1", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})

	_, err := newTestClient(t, mux).GetIssue(context.Background(), "o/r", 1)
	assert.ErrorIs(t, err, driven.ErrNotFound)
}

func TestUpdateIssue_SendsOnlySetFields(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /repos/o/r/issues/3", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, http.StatusOK, map[string]any{"number": 3})
	})

	body := "new body"
	assignees := []string{"editor1", "rev1"}
	err := newTestClient(t, mux).UpdateIssue(context.Background(), "o/r", 3, model.IssueUpdate{
		Body:      &body,
		Assignees: &assignees,
	})
	require.NoError(t, err)

	assert.Equal(t, "new body", got["body"])
	assert.Equal(t, []any{"editor1", "rev1"}, got["assignees"])
	assert.NotContains(t, got, "title")
	assert.NotContains(t, got, "state")
}

func TestCloseIssue(t *testing.T) {
	var got map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("PATCH /repos/o/r/issues/3", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(t, w, http.StatusOK, map[string]any{"number": 3})
	})

	require.NoError(t, newTestClient(t, mux).CloseIssue(context.Background(), "o/r", 3))
	assert.Equal(t, "closed", got["state"])
}

func TestCreateCommentAndLabels(t *testing.T) {
	var comment map[string]any
	var labels []string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/o/r/issues/3/comments", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&comment))
		writeJSON(t, w, http.StatusCreated, map[string]any{"id": 1})
	})
	mux.HandleFunc("POST /repos/o/r/issues/3/labels", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&labels))
		writeJSON(t, w, http.StatusOK, []map[string]any{})
	})

	client := newTestClient(t, mux)
	require.NoError(t, client.CreateComment(context.Background(), "o/r", 3, "hello"))
	require.NoError(t, client.AddLabels(context.Background(), "o/r", 3, "accepted", "published"))

	assert.Equal(t, "hello", comment["body"])
	assert.Equal(t, []string{"accepted", "published"}, labels)
}

func TestRemoveLabel(t *testing.T) {
	var removed []string
	mux := http.NewServeMux()
	mux.HandleFunc("DELETE /repos/o/r/issues/3/labels/{name}", func(w http.ResponseWriter, r *http.Request) {
		removed = append(removed, r.PathValue("name"))
		writeJSON(t, w, http.StatusOK, []map[string]any{})
	})
	mux.HandleFunc("DELETE /repos/o/r/issues/4/labels/{name}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]any{"message": "Label does not exist"})
	})
	mux.HandleFunc("DELETE /repos/o/r/issues/5/labels/{name}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusUnprocessableEntity, map[string]any{"message": "Validation Failed"})
	})

	client := newTestClient(t, mux)
	require.NoError(t, client.RemoveLabel(context.Background(), "o/r", 3, "rejected"))
	assert.Equal(t, []string{"rejected"}, removed)

	assert.NoError(t, client.RemoveLabel(context.Background(), "o/r", 4, "rejected"), "missing label counts as removed")
	assert.Error(t, client.RemoveLabel(context.Background(), "o/r", 5, "rejected"))
}

func TestHasPendingInvitation_Paginates(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/o/r/invitations", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			writeJSON(t, w, http.StatusOK, []map[string]any{{"id": 2, "invitee": map[string]any{"login": "Rev2"}}})
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s?page=2>; rel="next"`, "http://"+r.Host+r.URL.Path))
		writeJSON(t, w, http.StatusOK, []map[string]any{{"id": 1, "invitee": map[string]any{"login": "rev1"}}})
	})

	client := newTestClient(t, mux)

	ok, err := client.HasPendingInvitation(context.Background(), "o/r", "@rev2")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.HasPendingInvitation(context.Background(), "o/r", "rev3")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsCollaborator(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/o/r/collaborators/rev1", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /repos/o/r/collaborators/rev2", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	client := newTestClient(t, mux)

	ok, err := client.IsCollaborator(context.Background(), "o/r", "@rev1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.IsCollaborator(context.Background(), "o/r", "rev2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListTeamMembers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /orgs/openjournals/teams/joss-editors/members", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, []map[string]any{{"login": "editor1"}, {"login": "eic"}})
	})
	mux.HandleFunc("GET /organizations/1/team/2/members", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, []map[string]any{{"login": "editor2"}})
	})

	client := newTestClient(t, mux)

	members, err := client.ListTeamMembers(context.Background(), "openjournals/joss-editors")
	require.NoError(t, err)
	assert.Equal(t, []string{"editor1", "eic"}, members)

	members, err = client.ListTeamMembersByID(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"editor2"}, members)

	_, err = client.ListTeamMembers(context.Background(), "no-slug")
	assert.Error(t, err)
}

func TestCreateBranch_AlreadyExists(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/o/papers/git/refs", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusUnprocessableEntity, map[string]string{"message": "Reference already exists"})
	})

	err := newTestClient(t, mux).CreateBranch(context.Background(), "o/papers", "joss.00042", "abc")
	assert.ErrorIs(t, err, driven.ErrAlreadyExists)
}

func TestBranchSHA(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/o/papers/git/ref/heads/master", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"ref": "refs/heads/master", "object": map[string]any{"sha": "abc123"}})
	})
	mux.HandleFunc("GET /repos/o/papers/git/ref/heads/joss.00042", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})

	client := newTestClient(t, mux)

	sha, err := client.BranchSHA(context.Background(), "o/papers", "master")
	require.NoError(t, err)
	assert.Equal(t, "abc123", sha)

	_, err = client.BranchSHA(context.Background(), "o/papers", "joss.00042")
	assert.ErrorIs(t, err, driven.ErrNotFound)
}

func TestCreateFile_ReplacesExisting(t *testing.T) {
	var put map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/o/papers/contents/joss.00042/10.21105.joss.00042.pdf", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "joss.00042", r.URL.Query().Get("ref"))
		writeJSON(t, w, http.StatusOK, map[string]any{"type": "file", "path": "joss.00042/10.21105.joss.00042.pdf", "sha": "old"})
	})
	mux.HandleFunc("PUT /repos/o/papers/contents/joss.00042/10.21105.joss.00042.pdf", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&put))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"content": map[string]any{
				"path":         "joss.00042/10.21105.joss.00042.pdf",
				"sha":          "new",
				"html_url":     "https://github.com/o/papers/blob/joss.00042/joss.00042/10.21105.joss.00042.pdf",
				"download_url": "https://raw.githubusercontent.com/o/papers/joss.00042/joss.00042/10.21105.joss.00042.pdf",
			},
		})
	})

	file, err := newTestClient(t, mux).CreateFile(context.Background(), "o/papers", "joss.00042",
		"joss.00042/10.21105.joss.00042.pdf", []byte("%PDF"), "Creating paper")
	require.NoError(t, err)

	assert.Equal(t, "old", put["sha"])
	assert.Equal(t, "joss.00042", put["branch"])
	assert.Equal(t, "new", file.SHA)
	assert.Contains(t, file.DownloadURL, "raw.githubusercontent.com")
}

func TestCreateFile_New(t *testing.T) {
	var put map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/o/papers/contents/joss.00042/paper.pdf", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]string{"message": "Not Found"})
	})
	mux.HandleFunc("PUT /repos/o/papers/contents/joss.00042/paper.pdf", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&put))
		writeJSON(t, w, http.StatusCreated, map[string]any{"content": map[string]any{"path": "joss.00042/paper.pdf", "sha": "s1"}})
	})

	file, err := newTestClient(t, mux).CreateFile(context.Background(), "o/papers", "joss.00042",
		"joss.00042/paper.pdf", []byte("%PDF"), "Creating paper")
	require.NoError(t, err)

	assert.NotContains(t, put, "sha")
	assert.Equal(t, "s1", file.SHA)
}

func TestListFiles_SkipsDirectories(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/o/papers/contents/joss.00042", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusOK, []map[string]any{
			{"type": "file", "path": "joss.00042/paper.pdf", "sha": "a"},
			{"type": "dir", "path": "joss.00042/media", "sha": "b"},
		})
	})

	files, err := newTestClient(t, mux).ListFiles(context.Background(), "o/papers", "joss.00042", "joss.00042")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "joss.00042/paper.pdf", files[0].Path)
}

func TestPullRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/o/papers/pulls", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusUnprocessableEntity, map[string]any{
			"message": "Validation Failed",
			"errors":  []map[string]string{{"resource": "PullRequest", "code": "custom", "message": "A pull request already exists for o:joss.00042."}},
		})
	})
	mux.HandleFunc("GET /repos/o/papers/pulls", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "o:joss.00042", r.URL.Query().Get("head"))
		writeJSON(t, w, http.StatusOK, []map[string]any{{
			"number":   7,
			"html_url": "https://github.com/o/papers/pull/7",
			"head":     map[string]any{"ref": "joss.00042"},
			"base":     map[string]any{"ref": "master"},
		}})
	})
	mux.HandleFunc("PUT /repos/o/papers/pulls/7/merge", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, http.StatusMethodNotAllowed, map[string]string{"message": "Pull Request is not mergeable"})
	})

	client := newTestClient(t, mux)
	ctx := context.Background()

	_, err := client.OpenPullRequest(ctx, "o/papers", "joss.00042", "master", "title", "body")
	assert.ErrorIs(t, err, driven.ErrAlreadyExists)

	pr, err := client.FindPullRequest(ctx, "o/papers", "joss.00042")
	require.NoError(t, err)
	assert.Equal(t, 7, pr.Number)
	assert.Equal(t, "master", pr.Base)

	err = client.MergePullRequest(ctx, "o/papers", 7, "merge")
	assert.ErrorIs(t, err, driven.ErrNotMergeable)
}

func TestSplitRepo_Invalid(t *testing.T) {
	client := newTestClient(t, http.NewServeMux())

	_, err := client.GetIssue(context.Background(), "no-slash", 1)
	assert.Error(t, err)
}
